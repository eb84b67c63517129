package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"strings"
	"time"

	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"
	"gameshop-api/internal/service"
	"gameshop-api/pkg/apierror"
	"gameshop-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	store      repository.Store
	inventory  *service.InventoryService
	ledger     *service.OrderLedger
	payments   *service.PaymentService
	reconciler *service.Reconciler
	sweeper    *service.ReservationSweeper
	driver     string
	startTime  time.Time
}

// AdminDeps groups the services the admin API drives.
type AdminDeps struct {
	Store      repository.Store
	Inventory  *service.InventoryService
	Ledger     *service.OrderLedger
	Payments   *service.PaymentService
	Reconciler *service.Reconciler
	Sweeper    *service.ReservationSweeper
	Driver     string // sqlite, postgres, mysql or memory
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		store:      deps.Store,
		inventory:  deps.Inventory,
		ledger:     deps.Ledger,
		payments:   deps.Payments,
		reconciler: deps.Reconciler,
		sweeper:    deps.Sweeper,
		driver:     deps.Driver,
		startTime:  time.Now(),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return false
	}
	return true
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.driver

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	storeStats, err := h.store.GetStats(ctx)
	if err == nil {
		storeStats["status"] = "connected"
		stats["store"] = storeStats
	} else {
		stats["store"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// CreateAccountRequest represents the request body for account creation.
type CreateAccountRequest struct {
	Title     string   `json:"title"`
	Price     int64    `json:"price"`
	Rank      string   `json:"rank"`
	HeroCount int      `json:"hero_count"`
	SkinCount int      `json:"skin_count"`
	Skins     []string `json:"skins"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
}

// CreateAccount handles POST /api/v1/admin/accounts
func (h *AdminHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	acc, err := h.inventory.CreateAccount(r.Context(), service.NewAccountInput{
		Title:       req.Title,
		Price:       req.Price,
		Rank:        req.Rank,
		HeroCount:   req.HeroCount,
		SkinCount:   req.SkinCount,
		Skins:       req.Skins,
		Credentials: model.Credentials{Username: req.Username, Password: req.Password},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, acc)
}

// ListAccounts handles GET /api/v1/admin/accounts?status=
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	status := model.AccountStatus(strings.ToUpper(r.URL.Query().Get("status")))
	accounts, err := h.inventory.ListAccounts(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, limit := pagination(r)
	start, end := pageBounds(len(accounts), page, limit)
	response.JSONWithMeta(w, http.StatusOK, accounts[start:end], page, limit, int64(len(accounts)))
}

// SetAccountVisibility handles PUT /api/v1/admin/accounts/{id}/visibility
func (h *AdminHandler) SetAccountVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.inventory.SetVisibility(r.Context(), id, req.Visible); err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{"id": id, "visible": req.Visible})
}

// CreateBlindBox handles POST /api/v1/admin/blind-boxes
func (h *AdminHandler) CreateBlindBox(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Price *int64 `json:"price"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	box, err := h.inventory.CreateBlindBox(r.Context(), req.Name, req.Price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, box)
}

// AddToPool handles POST /api/v1/admin/blind-boxes/{blindBoxId}/pool
func (h *AdminHandler) AddToPool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountIDs []string `json:"account_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	box, err := h.inventory.AddToPool(r.Context(), chi.URLParam(r, "blindBoxId"), req.AccountIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, box)
}

// UpdateOrderStatus handles PUT /api/v1/admin/orders/{id}/status
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	to := model.OrderStatus(strings.ToUpper(req.Status))
	if !to.Valid() {
		response.Error(w, apierror.ValidationError("unknown status",
			apierror.FieldError{Field: "status", Message: "must be one of PENDING, PROCESSING, COMPLETED, CANCELLED, REFUNDED"}))
		return
	}

	o, err := h.ledger.Transition(r.Context(), chi.URLParam(r, "id"), to, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, o)
}

// DeleteOrder handles DELETE /api/v1/admin/orders/{id}
func (h *AdminHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// UpdatePaymentStatus handles PUT /api/v1/admin/payments/{id}/status
// A manual SUCCESS completes the order like a gateway confirmation would.
func (h *AdminHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status       string `json:"status"`
		Reason       string `json:"reason"`
		RefundAmount int64  `json:"refund_amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	to := model.PaymentStatus(strings.ToUpper(req.Status))
	if !to.Valid() {
		response.Error(w, apierror.ValidationError("unknown status",
			apierror.FieldError{Field: "status", Message: "must be one of PENDING, SUCCESS, FAILED, CANCELLED, REFUNDED"}))
		return
	}

	extra := model.StatusExtra{FailureReason: req.Reason, RefundAmount: req.RefundAmount, Source: "admin"}
	if to == model.PaymentSuccess {
		now := time.Now().UTC()
		extra.PaidAt = &now
	}

	p, err := h.payments.ApplyStatusUpdate(r.Context(), chi.URLParam(r, "id"), to, extra)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := map[string]interface{}{"payment": p}
	if p.Status == model.PaymentSuccess {
		o, _, err := h.reconciler.OnPaymentConfirmed(r.Context(), p.ID)
		if err != nil {
			log.Printf("[Admin] Confirmation of payment %s did not complete its order: %v", p.ID, err)
			body["error"] = err.Error()
		}
		if o != nil {
			body["order"] = o
		}
	}
	response.OK(w, body)
}

// SweepReservations handles POST /api/v1/admin/reservations/sweep
func (h *AdminHandler) SweepReservations(w http.ResponseWriter, r *http.Request) {
	released, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]int{"released": released})
}

// Reconcile handles POST /api/v1/admin/reconcile
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.ReconcilePending(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]string{"status": "done"})
}
