package user

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/application/emails"
	"brokerdesk-backend/internal/application/policies/access"
	policies "brokerdesk-backend/internal/application/policies/user"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

// SessionRevoker drops every live session of a user.
type SessionRevoker interface {
	DestroyUser(ctx context.Context, userID uuid.UUID) error
}

// Service holds DB and session store for user operations.
type Service struct {
	DB       *gorm.DB
	Sessions SessionRevoker
	Emails   emails.Sender
	Async    async.Runner
}

type RegisterInput struct {
	Email       string `json:"email" validate:"required"`
	Password    string `json:"password" validate:"required"`
	Fullname    string `json:"fullname" validate:"required"`
	AccountType string `json:"account_type" validate:"omitempty,oneof=individual broker"`
}

// Register creates an individual account, or a broker-pending one when account_type is broker.
// KYC starts pending; the welcome email is sent asynchronously.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if !validation.IsValidEmail(email) {
		return nil, apperr.Validation("invalid_email", "Invalid email format")
	}
	if !validation.IsValidPassword(in.Password) {
		return nil, apperr.Validation("invalid_password", "Password must be at least 8 characters with a letter, a number and a symbol")
	}
	fullname := strings.TrimSpace(in.Fullname)
	if !validation.IsValidFullname(fullname) {
		return nil, apperr.Validation("invalid_fullname", "Full name contains invalid characters (only letters, spaces, hyphens, and apostrophes allowed)")
	}

	accountType := domain.AccountIndividual
	role := constants.Individual
	if in.AccountType == domain.AccountBroker {
		accountType = domain.AccountBroker
		role = constants.BrokerPending
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Fullname:     titleCaseAndNormalize(fullname),
		AccountType:  accountType,
		Role:         role,
		KYCStatus:    domain.KYCPending,
		Status:       domain.UserActive,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("email_taken", "Email already registered")
		}
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor:  access.Principal{UserID: u.UserID, Role: u.Role},
			Action: "user.register", TargetType: access.KindUser, TargetID: u.UserID, After: u,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.Emails != nil {
		to, name := u.Email, u.Fullname
		async.Run(s.Async, "welcome_email", func(ctx context.Context) {
			if err := s.Emails.SendWelcome(ctx, to, name); err != nil {
				log.Warn().Err(err).Str("user_id", u.UserID.String()).Msg("welcome email failed")
			}
		})
	}
	return u, nil
}

// View returns the caller's own profile.
func (s *Service) View(ctx context.Context, p access.Principal) (*domain.User, error) {
	if p.IsZero() {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	return s.load(s.DB.WithContext(ctx), p.UserID.String())
}

// ViewUser returns user by ID when the caller may read it.
func (s *Service) ViewUser(ctx context.Context, p access.Principal, userID string) (*domain.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperr.Validation("invalid_user_id", "Invalid user ID format (must be a valid UUID)")
	}
	u, err := s.load(s.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, access.UserResource(*u), access.Read); err != nil {
		return nil, err
	}
	return u, nil
}

type UpdateProfileInput struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Fullname *string `json:"fullname"`
}

// UpdateProfile changes the caller's own email, password or full name.
func (s *Service) UpdateProfile(ctx context.Context, p access.Principal, in UpdateProfileInput) (*domain.User, error) {
	if p.IsZero() {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	upd := map[string]interface{}{}
	if in.Email != nil {
		e := strings.TrimSpace(strings.ToLower(*in.Email))
		if !validation.IsValidEmail(e) {
			return nil, apperr.Validation("invalid_email", "Invalid email format")
		}
		upd["email"] = e
	}
	if in.Password != nil {
		if !validation.IsValidPassword(*in.Password) {
			return nil, apperr.Validation("invalid_password", "Invalid password format")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcryptCost)
		if err != nil {
			return nil, err
		}
		upd["password_hash"] = string(hash)
	}
	if in.Fullname != nil {
		fn := strings.TrimSpace(*in.Fullname)
		if !validation.IsValidFullname(fn) {
			return nil, apperr.Validation("invalid_fullname", "Full name contains invalid characters")
		}
		upd["fullname"] = titleCaseAndNormalize(fn)
	}
	if len(upd) == 0 {
		return nil, apperr.Validation("no_fields", "No valid update fields provided")
	}

	var out *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := s.load(tx, p.UserID.String())
		if err != nil {
			return err
		}
		if e, ok := upd["email"].(string); ok && e != before.Email {
			var n int64
			if err := tx.Model(&domain.User{}).Where("email = ? AND user_id <> ?", e, p.UserID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return apperr.Conflict("email_taken", "Email already registered")
			}
		}
		if err := tx.Model(&domain.User{}).Where("user_id = ?", p.UserID).Updates(upd).Error; err != nil {
			return err
		}
		if out, err = s.load(tx, p.UserID.String()); err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "user.update", TargetType: access.KindUser, TargetID: p.UserID,
			Before: before, After: out,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRole changes target's role after the governance checks and revokes their sessions
// so the new role takes effect on the next login.
func (s *Service) UpdateRole(ctx context.Context, p access.Principal, targetID, role string) (*domain.User, error) {
	if _, err := uuid.Parse(targetID); err != nil {
		return nil, apperr.Validation("invalid_user_id", "Invalid user ID format (must be a valid UUID)")
	}
	var out *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := policies.LoadTarget(tx, targetID)
		if err != nil {
			return err
		}
		if err := policies.ValidateRoleAssignment(tx, p, *target, role); err != nil {
			return err
		}
		before := target.Role
		if err := tx.Model(&domain.User{}).Where("user_id = ?", target.UserID).Update("role", role).Error; err != nil {
			return err
		}
		target.Role = role
		out = target
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "user.role_change", TargetType: access.KindUser, TargetID: target.UserID,
			Before: map[string]string{"role": before}, After: map[string]string{"role": role},
		})
	})
	if err != nil {
		return nil, err
	}
	s.revoke(ctx, out.UserID)
	return out, nil
}

// Suspend blocks a user from logging in. Accounts are never hard-deleted.
func (s *Service) Suspend(ctx context.Context, p access.Principal, targetID string) (*domain.User, error) {
	return s.setStatus(ctx, p, targetID, domain.UserSuspended, "user.suspend")
}

// Reactivate lifts a suspension.
func (s *Service) Reactivate(ctx context.Context, p access.Principal, targetID string) (*domain.User, error) {
	return s.setStatus(ctx, p, targetID, domain.UserActive, "user.reactivate")
}

func (s *Service) setStatus(ctx context.Context, p access.Principal, targetID, status, action string) (*domain.User, error) {
	if _, err := uuid.Parse(targetID); err != nil {
		return nil, apperr.Validation("invalid_user_id", "Invalid user ID format (must be a valid UUID)")
	}
	var out *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := policies.LoadTarget(tx, targetID)
		if err != nil {
			return err
		}
		if status == domain.UserSuspended {
			if err := policies.ValidateSuspension(tx, p, *target); err != nil {
				return err
			}
		} else if p.Role != constants.SuperAdmin {
			return apperr.Forbidden("forbidden", "Only super-admins can reactivate users")
		}
		if target.Status == status {
			out = target
			return nil
		}
		before := target.Status
		if err := tx.Model(&domain.User{}).Where("user_id = ?", target.UserID).Update("status", status).Error; err != nil {
			return err
		}
		target.Status = status
		out = target
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: action, TargetType: access.KindUser, TargetID: target.UserID,
			Before: map[string]string{"status": before}, After: map[string]string{"status": status},
		})
	})
	if err != nil {
		return nil, err
	}
	if status == domain.UserSuspended {
		s.revoke(ctx, out.UserID)
	}
	return out, nil
}

func (s *Service) revoke(ctx context.Context, userID uuid.UUID) {
	if s.Sessions == nil {
		return
	}
	if err := s.Sessions.DestroyUser(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to revoke sessions")
	}
}

func (s *Service) load(tx *gorm.DB, userID string) (*domain.User, error) {
	var u domain.User
	if err := tx.Where("user_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user_not_found", "User not found")
		}
		return nil, err
	}
	return &u, nil
}

func titleCaseAndNormalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	capitalize := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !capitalize {
				b.WriteRune(' ')
				capitalize = true
			}
			continue
		}
		if capitalize {
			b.WriteRune(unicode.ToUpper(r))
			capitalize = false
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
