package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkedErrorsMatchTheirSentinel(t *testing.T) {
	err := NewError("inventory record missing").
		WithHint("unknown variant").
		WithReportableDetails(map[string]any{"variant_id": "var_a"}).
		Mark(ErrNotFound)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, ErrCodeNotFound, Code(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromErr(err))
	assert.Equal(t, "unknown variant", Hint(err))
}

func TestWrappedCauseSurvives(t *testing.T) {
	err := WithError(context.DeadlineExceeded).WithMessage("charge").Mark(ErrPaymentGateway)
	wrapped := fmt.Errorf("billing sub_1: %w", err)

	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.True(t, IsPaymentFailure(wrapped))
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromErr(wrapped))
}

func TestPaymentFailureKinds(t *testing.T) {
	tests := []struct {
		sentinel error
		want     bool
	}{
		{ErrNoPaymentMethod, true},
		{ErrPaymentDeclined, true},
		{ErrPaymentGateway, true},
		{ErrInsufficientStock, false},
		{ErrLockTimeout, false},
	}
	for _, tt := range tests {
		t.Run(tt.sentinel.Error(), func(t *testing.T) {
			err := NewError("x").Mark(tt.sentinel)
			assert.Equal(t, tt.want, IsPaymentFailure(err))
		})
	}
}

func TestUnmarkedErrorIsSystem(t *testing.T) {
	err := fmt.Errorf("plain")
	assert.Equal(t, ErrCodeSystemError, Code(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromErr(err))
	assert.Empty(t, Hint(err))
}
