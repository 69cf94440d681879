package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
		{KindAuthRequired, http.StatusForbidden},
		{KindAuthInvalid, http.StatusUnauthorized},
		{KindCSRFInvalid, http.StatusForbidden},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
		{Kind(99), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Status())
		})
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection refused")
	got := From(cause)

	assert.Equal(t, KindInternal, got.Kind)
	assert.Equal(t, MsgInternal, got.Message)
	assert.ErrorIs(t, got, cause)
	assert.Nil(t, From(nil))
}

func TestFromKeepsClassifiedErrors(t *testing.T) {
	wrapped := fmt.Errorf("create user: %w", Conflict())
	got := From(wrapped)

	assert.Equal(t, KindConflict, got.Kind)
	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
}

func TestRateLimitedMessage(t *testing.T) {
	err := RateLimited(15*time.Minute, 90*time.Second)

	assert.Equal(t, "Demasiados intentos de inicio de sesión, por favor intente luego de 15 minutos.", err.Message)
	assert.Equal(t, 90*time.Second, err.RetryAfter)
	assert.Equal(t, http.StatusTooManyRequests, err.Kind.Status())
}

func TestValidationCarriesAllDetails(t *testing.T) {
	err := Validation(`"name" is required`, `"email" must be a valid email`)
	assert.Len(t, err.Details, 2)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
}
