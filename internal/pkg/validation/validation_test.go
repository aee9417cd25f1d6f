package validation

import (
	"testing"

	"brokerdesk-backend/internal/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidPassword(t *testing.T) {
	assert.True(t, IsValidPassword("Pass1!word"))
	assert.False(t, IsValidPassword("short1!"))
	assert.False(t, IsValidPassword("nodigits!!"))
	assert.False(t, IsValidPassword("n0special"))
}

func TestIsValidSymbol(t *testing.T) {
	assert.True(t, IsValidSymbol("AAPL"))
	assert.True(t, IsValidSymbol("BRK.B"))
	assert.False(t, IsValidSymbol("aapl"))
	assert.False(t, IsValidSymbol(""))
	assert.False(t, IsValidSymbol("TOOLONGSYMBOL"))
}

func TestStruct_ReportsJSONFieldName(t *testing.T) {
	type body struct {
		Symbol string `json:"symbol" validate:"required,symbol"`
		Side   string `json:"side" validate:"required,oneof=buy sell"`
	}
	err := Struct(body{Symbol: "AAPL", Side: "hold"})
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "invalid_side", e.Code)

	assert.NoError(t, Struct(body{Symbol: "AAPL", Side: "buy"}))
}

func TestPositiveAmount(t *testing.T) {
	d, err := PositiveAmount("amount", "100.00")
	require.NoError(t, err)
	assert.Equal(t, "100", d.String())

	_, err = PositiveAmount("amount", "0")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = PositiveAmount("amount", "-5")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = PositiveAmount("amount", "abc")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
