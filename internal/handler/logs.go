package handler

import (
	"net/http"
	"strconv"

	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"
	"gameshop-api/pkg/response"
)

// LogHandler exposes the gateway callback audit trail.
type LogHandler struct {
	events repository.EventLogRepository
}

// NewLogHandler creates a new log handler.
func NewLogHandler(events repository.EventLogRepository) *LogHandler {
	return &LogHandler{events: events}
}

// pagination reads page and limit, defaulting to page 1 of 20.
func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// pageBounds clamps the slice bounds of a page to total.
func pageBounds(total, page, limit int) (start, end int) {
	start = (page - 1) * limit
	if start > total {
		start = total
	}
	end = start + limit
	if end > total {
		end = total
	}
	return start, end
}

// GetGatewayEvents handles GET /api/v1/admin/gateway-events
func (h *LogHandler) GetGatewayEvents(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	offset := (page - 1) * limit

	events, total, err := h.events.ListGatewayEvents(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.GatewayEvent{}
	}

	response.JSONWithMeta(w, http.StatusOK, events, page, limit, total)
}
