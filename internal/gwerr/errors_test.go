package gwerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindMatching(t *testing.T) {
	err := New(Timeout, "data.market_data", "deadline expired")
	assert.True(t, errors.Is(err, E(Timeout)))
	assert.False(t, errors.Is(err, E(Internal)))
	assert.Equal(t, Timeout, KindOf(err))
}

func TestWrapKeepsKind(t *testing.T) {
	inner := Vendor("trading.submit_order", -61)
	outer := Wrap(Internal, "trading.submit_order", inner)

	assert.Equal(t, VendorError, KindOf(outer))
	var ge *Error
	require.True(t, errors.As(outer, &ge))
	assert.Equal(t, -61, ge.Code)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(Internal, "op", nil))
}

func TestWrapPlainError(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := Wrap(UpstreamUnavailable, "trading.connect", cause)

	assert.Equal(t, UpstreamUnavailable, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestErrorStringCarriesVendorCode(t *testing.T) {
	err := Vendor("trading.cancel_order", 42)
	assert.Contains(t, err.Error(), "code 42")
	assert.Contains(t, err.Error(), "trading.cancel_order")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(New(ModeRefused, "op", ""), ModeRefused))
	assert.False(t, IsKind(nil, ModeRefused))
}
