package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/services"
)

// InternalHandlers exposes scheduler-triggered maintenance. Callers are authenticated by the
// /internal middleware chain.
type InternalHandlers struct {
	maintenance services.MaintenanceService
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(maintenance services.MaintenanceService) *InternalHandlers {
	return &InternalHandlers{maintenance: maintenance}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/group-orders:close-expired", h.closeExpiredGroupOrders)
	r.Post("/maintenance/distributions:remind-overdue", h.remindOverdueDistributions)
}

type maintenanceResponse struct {
	Task      string `json:"task"`
	Processed int    `json:"processed"`
	RanAt     string `json:"ran_at"`
}

func (h *InternalHandlers) closeExpiredGroupOrders(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		serviceUnavailable(r.Context(), w, "maintenance")
		return
	}
	h.runTask(w, r, h.maintenance.CloseExpiredGroupOrders)
}

func (h *InternalHandlers) remindOverdueDistributions(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		serviceUnavailable(r.Context(), w, "maintenance")
		return
	}
	h.runTask(w, r, h.maintenance.RemindOverdueDistributions)
}

func (h *InternalHandlers) runTask(w http.ResponseWriter, r *http.Request, task func(context.Context) (services.MaintenanceResult, error)) {
	ctx := r.Context()
	result, err := task(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.Internal("maintenance_failed"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, maintenanceResponse{
		Task:      result.Task,
		Processed: result.Processed,
		RanAt:     formatTime(result.RanAt),
	})
}
