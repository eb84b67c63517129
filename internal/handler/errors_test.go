package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gameshop-api/internal/model"
	"gameshop-api/pkg/apierror"

	"github.com/stretchr/testify/require"
)

func TestToAPIError(t *testing.T) {
	tests := map[string]struct {
		err    error
		status int
		code   string
	}{
		"not found":          {model.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		"forbidden":          {model.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		"invalid input":      {model.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST"},
		"pool exhausted":     {model.ErrPoolExhausted, http.StatusConflict, "POOL_EXHAUSTED"},
		"lost draw":          {model.ErrDuplicateReservation, http.StatusConflict, "DUPLICATE_RESERVATION"},
		"account gone":       {model.ErrAccountUnavailable, http.StatusConflict, "ACCOUNT_UNAVAILABLE"},
		"conflict":           {model.ErrConflict, http.StatusConflict, "CONFLICT"},
		"bad transition":     {model.ErrInvalidTransition, http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
		"stale update":       {model.ErrStaleGatewayUpdate, http.StatusUnprocessableEntity, "STALE_UPDATE"},
		"undeletable":        {model.ErrUndeletable, http.StatusUnprocessableEntity, "UNDELETABLE"},
		"not confirmed":      {model.ErrPaymentNotConfirmed, http.StatusUnprocessableEntity, "PAYMENT_NOT_CONFIRMED"},
		"gateway down":       {model.ErrGatewayUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		"unknown":            {errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		"api error kept":     {apierror.Unauthorized(""), http.StatusUnauthorized, "UNAUTHORIZED"},
		"wrapped not found":  {fmt.Errorf("order abc: %w", model.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		"wrapped pool empty": {fmt.Errorf("tear: %w", model.ErrPoolExhausted), http.StatusConflict, "POOL_EXHAUSTED"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := toAPIError(tc.err)
			require.Equal(t, tc.status, got.StatusCode)
			require.Equal(t, tc.code, got.Code)
		})
	}

	require.NotContains(t, toAPIError(errors.New("db password hunter2")).Message, "hunter2")
}

func TestPageBounds(t *testing.T) {
	for _, tc := range []struct {
		total, page, limit, start, end int
	}{
		{0, 1, 20, 0, 0},
		{5, 1, 20, 0, 5},
		{45, 2, 20, 20, 40},
		{45, 3, 20, 40, 45},
		{45, 9, 20, 45, 45},
	} {
		start, end := pageBounds(tc.total, tc.page, tc.limit)
		require.Equal(t, tc.start, start)
		require.Equal(t, tc.end, end)
	}
}
