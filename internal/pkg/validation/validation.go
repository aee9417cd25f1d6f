package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"brokerdesk-backend/internal/pkg/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Fullname: letters, spaces, hyphens, apostrophes only.
var fullnameRe = regexp.MustCompile(`^[A-Za-z\s\-']+$`)

// Ticker symbols: 1-10 upper-case letters, digits, dots or dashes (BRK.B, RDS-A).
var symbolRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
		return IsValidSymbol(fl.Field().String())
	})
	return v
}

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidPassword requires at least 8 characters with a letter, a digit and a symbol.
func IsValidPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLetter, hasDigit, hasSpecial := false, false, false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	return hasLetter && hasDigit && hasSpecial
}

func IsValidFullname(fullname string) bool {
	return fullname != "" && fullnameRe.MatchString(fullname)
}

func IsValidSymbol(symbol string) bool {
	return symbolRe.MatchString(symbol)
}

// Struct validates a request body against its `validate` tags. The first failing field
// is reported as a Validation error.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation("invalid_"+fe.Field(), fieldMessage(fe))
	}
	return apperr.Validation("invalid_request", "Invalid request body")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("Invalid UUID format for %s", fe.Field())
	case "email":
		return "Invalid email format"
	case "symbol":
		return "Invalid ticker symbol"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// PositiveAmount parses a decimal amount string and rejects zero or negative values.
func PositiveAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperr.Validation("invalid_"+field, fmt.Sprintf("%s must be a decimal number", field))
	}
	if !d.IsPositive() {
		return decimal.Zero, apperr.Validation("non_positive_"+field, fmt.Sprintf("%s must be a positive number", field))
	}
	return d, nil
}
