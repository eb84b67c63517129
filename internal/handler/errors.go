package handler

import (
	"errors"
	"log"
	"net/http"

	"gameshop-api/internal/model"
	"gameshop-api/pkg/apierror"
	"gameshop-api/pkg/response"
)

// toAPIError maps a domain error onto the API error envelope.
// Unrecognised errors become a 500 without details.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return apierror.NotFound("")
	case errors.Is(err, model.ErrForbidden):
		return apierror.Forbidden("")
	case errors.Is(err, model.ErrInvalidInput):
		return apierror.BadRequest(err.Error())
	case errors.Is(err, model.ErrPoolExhausted):
		return apierror.Conflict(model.ErrPoolExhausted.Error()).WithCode("POOL_EXHAUSTED")
	case errors.Is(err, model.ErrDuplicateReservation):
		return apierror.Conflict(model.ErrDuplicateReservation.Error()).WithCode("DUPLICATE_RESERVATION")
	case errors.Is(err, model.ErrAccountUnavailable):
		return apierror.Conflict(model.ErrAccountUnavailable.Error()).WithCode("ACCOUNT_UNAVAILABLE")
	case errors.Is(err, model.ErrConflict):
		return apierror.Conflict("please retry")
	case errors.Is(err, model.ErrInvalidTransition):
		return apierror.UnprocessableEntity(err.Error()).WithCode("INVALID_TRANSITION")
	case errors.Is(err, model.ErrStaleGatewayUpdate):
		return apierror.UnprocessableEntity(err.Error()).WithCode("STALE_UPDATE")
	case errors.Is(err, model.ErrUndeletable):
		return apierror.UnprocessableEntity(err.Error()).WithCode("UNDELETABLE")
	case errors.Is(err, model.ErrPaymentNotConfirmed):
		return apierror.UnprocessableEntity(err.Error()).WithCode("PAYMENT_NOT_CONFIRMED")
	case errors.Is(err, model.ErrGatewayUnavailable):
		return apierror.ServiceUnavailable("payment gateway unavailable, please retry")
	}
	return apierror.InternalError("")
}

// writeError logs unexpected failures and writes the mapped error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Printf("[Handler] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	response.Error(w, apiErr)
}
