package handler

import (
	"net/http"

	"gameshop-api/internal/model"
	"gameshop-api/internal/service"
	"gameshop-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// InventoryHandler serves the public catalog.
type InventoryHandler struct {
	inventoryService *service.InventoryService
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(inventoryService *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
	}
}

// ListAccounts handles GET /api/v1/accounts
// Only accounts for sale are listed, concealed.
func (h *InventoryHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.inventoryService.ListAccounts(r.Context(), model.AccountAvailable)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, limit := pagination(r)
	total := len(accounts)
	start, end := pageBounds(total, page, limit)

	items := make([]*model.Account, 0, end-start)
	for _, a := range accounts[start:end] {
		items = append(items, a.Concealed())
	}
	response.JSONWithMeta(w, http.StatusOK, items, page, limit, int64(total))
}

// GetAccount handles GET /api/v1/accounts/{id}
func (h *InventoryHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.inventoryService.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, acc)
}

// GetBlindBox handles GET /api/v1/blind-boxes/{blindBoxId}
func (h *InventoryHandler) GetBlindBox(w http.ResponseWriter, r *http.Request) {
	box, err := h.inventoryService.GetBlindBox(r.Context(), chi.URLParam(r, "blindBoxId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, box)
}
