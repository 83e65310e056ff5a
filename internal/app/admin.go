package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// AdminHandler exposes operational endpoints.
type AdminHandler struct {
	jobs *jobs.Client
}

func NewAdminHandler(jobsClient *jobs.Client) *AdminHandler {
	return &AdminHandler{jobs: jobsClient}
}

func (h *AdminHandler) MountRoutes(r chi.Router) {
	r.Post("/ledger-resync", h.enqueueLedgerResync)
}

// enqueueLedgerResync schedules a balance resync. An empty body sweeps every
// confirmed order; a body with order_ids narrows the sweep.
func (h *AdminHandler) enqueueLedgerResync(w http.ResponseWriter, r *http.Request) {
	var payload jobs.LedgerResyncPayload
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
			return
		}
	}
	info, err := h.jobs.EnqueueLedgerResync(r.Context(), payload)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{
		"task_id": info.ID,
		"queue":   info.Queue,
	})
}
