package handler

import (
	"errors"
	"log"
	"net/http"

	"gameshop-api/internal/gateway"
	"gameshop-api/internal/service"
	"gameshop-api/pkg/apierror"
	"gameshop-api/pkg/response"
)

// WebhookHandler receives asynchronous gateway notifications. It answers
// the gateway only; nothing here reaches a buyer.
type WebhookHandler struct {
	gw       gateway.Gateway
	payments *service.PaymentService
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(gw gateway.Gateway, payments *service.PaymentService) *WebhookHandler {
	return &WebhookHandler{gw: gw, payments: payments}
}

// PaymentWebhook handles POST /api/v1/payments/webhook
func (h *WebhookHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	res, err := h.gw.ParseCallback(r)
	switch {
	case errors.Is(err, gateway.ErrUnauthorizedCallback):
		log.Printf("[Webhook] Rejected unauthenticated %s callback from %s", h.gw.Name(), r.RemoteAddr)
		response.Error(w, apierror.Unauthorized("invalid callback credentials"))
		return
	case errors.Is(err, gateway.ErrIgnoredCallback):
		// Acknowledge so the gateway does not retry.
		response.Fields(w, http.StatusOK, map[string]interface{}{"outcome": service.OutcomeIgnored})
		return
	case err != nil:
		log.Printf("[Webhook] Malformed %s callback: %v", h.gw.Name(), err)
		response.Error(w, apierror.BadRequest("malformed callback"))
		return
	}

	outcome := h.payments.HandleCallback(r.Context(), res)
	response.Fields(w, http.StatusOK, map[string]interface{}{"outcome": outcome})
}
