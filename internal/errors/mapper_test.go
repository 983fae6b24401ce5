package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	svcErr "github.com/campusmatch/engine/internal/errors"
)

func TestMap_Classification(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", svcErr.InvalidArgument("bad"), http.StatusBadRequest},
		{"forbidden", svcErr.Forbidden("blocked"), http.StatusForbidden},
		{"quota", svcErr.QuotaExceeded(20), http.StatusTooManyRequests},
		{"not found", fmt.Errorf("load user: %w", gorm.ErrRecordNotFound), http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", stderrors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, svcErr.HTTPStatus(tc.err))
		})
	}
}

func TestIs_MatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", svcErr.Forbidden("users are blocked"))
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	assert.NotErrorIs(t, err, svcErr.ErrNotFound)
}

func TestInternal_HidesCause(t *testing.T) {
	cause := stderrors.New("dial tcp 10.0.0.1: refused")
	mapped := svcErr.Map(cause)

	var e *svcErr.Error
	assert.True(t, stderrors.As(mapped, &e))
	assert.Equal(t, "internal server error", e.Message)
	assert.ErrorIs(t, mapped, cause)
}

func TestQuotaExceeded_Details(t *testing.T) {
	var e *svcErr.Error
	assert.True(t, stderrors.As(svcErr.QuotaExceeded(20), &e))
	assert.Equal(t, 0, e.Details["remainingSwipes"])
}
