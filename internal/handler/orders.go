package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"gameshop-api/internal/middleware"
	"gameshop-api/internal/model"
	"gameshop-api/internal/service"
	"gameshop-api/pkg/apierror"
	"gameshop-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// OrderHandler serves the buyer-facing purchase and order endpoints.
// Every route sits behind RequireSession.
type OrderHandler struct {
	purchases *service.PurchaseService
	ledger    *service.OrderLedger
	status    *service.StatusService
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(purchases *service.PurchaseService, ledger *service.OrderLedger, status *service.StatusService) *OrderHandler {
	return &OrderHandler{purchases: purchases, ledger: ledger, status: status}
}

// PurchaseRequest represents the request body for POST /purchases.
type PurchaseRequest struct {
	AccountID     string `json:"accountId"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
}

// Purchase handles POST /api/v1/purchases
func (h *OrderHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.AccountID) == "" {
		response.Error(w, apierror.ValidationError("accountId is required",
			apierror.FieldError{Field: "accountId", Message: "required"}))
		return
	}

	sess := middleware.GetSessionFromContext(r.Context())
	res, err := h.purchases.Purchase(r.Context(), sess, req.AccountID, req.CustomerName, req.CustomerEmail)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	response.Fields(w, status, map[string]interface{}{
		"reused": res.Reused,
		"order": map[string]interface{}{
			"orderNumber": res.Order.OrderNumber,
			"status":      res.Order.Status,
			"amount":      res.Order.Amount,
		},
		"sepay": map[string]interface{}{
			"qrUrl":     res.Payment.QRURL,
			"status":    res.Payment.Status,
			"expiresAt": res.Payment.ExpiresAt,
		},
	})
}

// OrderStatus handles GET /api/v1/orders/status?orderNumber=...
// Unknown orders and orders of other buyers both answer found=false.
func (h *OrderHandler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	orderNumber := strings.TrimSpace(r.URL.Query().Get("orderNumber"))
	if orderNumber == "" {
		response.Error(w, apierror.BadRequest("orderNumber is required"))
		return
	}

	sess := middleware.GetSessionFromContext(r.Context())
	view, err := h.status.CheckStatus(r.Context(), sess.BuyerID, orderNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}

	fields := map[string]interface{}{"found": view.Found}
	if view.Found {
		fields["status"] = view.Status
	}
	w.Header().Set("Cache-Control", "no-store")
	response.Fields(w, http.StatusOK, fields)
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())
	orders, err := h.ledger.ListForBuyer(r.Context(), sess.BuyerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*model.Order{}
	}
	response.OK(w, orders)
}

// Credentials handles GET /api/v1/orders/{orderNumber}/credentials
func (h *OrderHandler) Credentials(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	sess := middleware.GetSessionFromContext(r.Context())

	creds, err := h.ledger.Credentials(r.Context(), sess, orderNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	response.OK(w, creds)
}

// TearRequest represents the request body for a blind box draw. Owner and
// AccountID are accepted for compatibility; the buyer comes from the session
// and the account is always drawn at random. BlindBoxID is read when the
// path does not name the box.
type TearRequest struct {
	Owner      string `json:"owner"`
	AccountID  string `json:"accountId"`
	BlindBoxID string `json:"blindBoxId"`
}

// Tear handles POST /api/v1/blind-boxes/{blindBoxId}/tear and
// POST /api/v1/blind-boxes/tear
func (h *OrderHandler) Tear(w http.ResponseWriter, r *http.Request) {
	var req TearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	blindBoxID := chi.URLParam(r, "blindBoxId")
	switch {
	case blindBoxID == "":
		blindBoxID = req.BlindBoxID
	case req.BlindBoxID != "" && req.BlindBoxID != blindBoxID:
		response.Error(w, apierror.BadRequest("blindBoxId does not match the path"))
		return
	}
	if blindBoxID == "" {
		response.Error(w, apierror.BadRequest("blindBoxId is required"))
		return
	}

	sess := middleware.GetSessionFromContext(r.Context())
	item, reservation, err := h.purchases.Tear(r.Context(), sess, blindBoxID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Fields(w, http.StatusOK, map[string]interface{}{
		"item":      item,
		"expiresAt": reservation.ExpiresAt,
	})
}
