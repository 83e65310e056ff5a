package stock

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes picking and movement endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pickings/{id}", h.getPicking)
	r.Get("/pickings", h.listPickings)
	r.Post("/movements/{id}/cancel", h.cancelMovement)
	r.Post("/movements/{id}/scrap", h.scrapMovement)
	r.Post("/movements/{id}/complete", h.completeMovement)
	r.Put("/movements/{id}/quantity", h.updateMovementQty)
}

func (h *Handler) getPicking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	picking, err := h.service.GetPicking(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, picking)
}

func (h *Handler) listPickings(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.URL.Query().Get("order_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "order_id is required")
		return
	}
	pickings, err := h.service.ListPickingsForOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"items": pickings})
}

func (h *Handler) cancelMovement(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.CancelMovement)
}

func (h *Handler) scrapMovement(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.ScrapMovement)
}

func (h *Handler) completeMovement(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.CompleteMovement)
}

func (h *Handler) updateMovementQty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateMovementQtyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.service.UpdateMovementQty(r.Context(), id, req.Qty, shared.ActorFromRequest(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id, shared.ActorFromRequest(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "record not found")
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}
