package manualdelivery

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the delivery request workflow.
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
	r.Post("/requests", h.openRequest)
	r.Get("/requests/{id}", h.getRequest)
	r.Patch("/requests/{id}", h.updateRequest)
	r.Put("/requests/{id}/lines/{lineID}", h.setLineQuantity)
	r.Post("/requests/{id}/confirm", h.confirmRequest)
	r.Delete("/requests/{id}", h.discardRequest)
}

func (h *Handler) openRequest(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "order_ids or line_ids is required")
		return
	}

	dr, err := h.service.Open(r.Context(), req, shared.ActorFromRequest(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, dr)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	dr, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dr)
}

func (h *Handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	var upd UpdateRequest
	if err := httpx.DecodeJSON(r, &upd); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	dr, err := h.service.UpdateShipping(r.Context(), id, upd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dr)
}

func (h *Handler) setLineQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	var req SetQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	dr, err := h.service.SetLineQuantity(r.Context(), id, lineID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dr)
}

func (h *Handler) confirmRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	outcome, err := h.service.Confirm(r.Context(), id, shared.ActorFromRequest(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

func (h *Handler) discardRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	if err := h.service.Discard(r.Context(), id, shared.ActorFromRequest(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, sales.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotDeliverable):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNothingPending),
		errors.Is(err, ErrAmbiguousPartner),
		errors.Is(err, ErrAmbiguousCompany),
		errors.Is(err, ErrQuantityExceeded),
		errors.Is(err, ErrNegativeQuantity),
		errors.Is(err, ErrInvalidDestination),
		errors.Is(err, ErrRouteNotSelectable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrLineNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request id")
		return uuid.Nil, false
	}
	return id, true
}
