package manualdelivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Store keeps open requests between HTTP calls.
type Store interface {
	Save(ctx context.Context, req *DeliveryRequest) error
	Get(ctx context.Context, id uuid.UUID) (*DeliveryRequest, error)
	Consume(ctx context.Context, id uuid.UUID) (*DeliveryRequest, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// LineSource reads order lines with their current balances.
type LineSource interface {
	GetOrderLine(ctx context.Context, id int64) (*sales.OrderLine, error)
}

// Directory resolves reference data used by request edits.
type Directory interface {
	GetPartner(ctx context.Context, id int64) (*masterdata.Partner, error)
	GetRoute(ctx context.Context, id int64) (*masterdata.Route, error)
	GetCarrier(ctx context.Context, id int64) (*masterdata.Carrier, error)
}

// Auditor records business events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the delivery request workflow: open a request over pending
// lines, edit it, then confirm it into a fulfillment launch or discard it.
type Service struct {
	builder    *Builder
	dispatcher *Dispatcher
	store      Store
	orders     OrderGateway
	lines      LineSource
	directory  Directory
	audit      Auditor
	logger     *slog.Logger
}

func NewService(
	builder *Builder,
	dispatcher *Dispatcher,
	store Store,
	orders OrderGateway,
	lines LineSource,
	directory Directory,
	audit Auditor,
	logger *slog.Logger,
) *Service {
	return &Service{
		builder:    builder,
		dispatcher: dispatcher,
		store:      store,
		orders:     orders,
		lines:      lines,
		directory:  directory,
		audit:      audit,
		logger:     logger,
	}
}

// Open builds a request over the selection's pending lines and stores it.
// Every order touched must be confirmed with deferred delivery.
func (s *Service) Open(ctx context.Context, sel OpenRequest, actorID int64) (*DeliveryRequest, error) {
	req, err := s.builder.BuildDefaults(ctx, sel, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDeliverable(ctx, req); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, req); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "delivery_request.opened", req.ID, map[string]any{
		"lines": len(req.Lines),
	})
	return req, nil
}

// Get loads an open request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*DeliveryRequest, error) {
	return s.store.Get(ctx, id)
}

// UpdateShipping changes the request's destination, carrier, route or
// planned date.
func (s *Service) UpdateShipping(ctx context.Context, id uuid.UUID, upd UpdateRequest) (*DeliveryRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.PartnerID != nil {
		partner, err := s.directory.GetPartner(ctx, *upd.PartnerID)
		if err != nil {
			return nil, fmt.Errorf("resolve partner %d: %w", *upd.PartnerID, err)
		}
		if partner.CommercialID() != req.CommercialPartnerID {
			return nil, fmt.Errorf("%w: partner %d", ErrInvalidDestination, partner.ID)
		}
		req.PartnerID = partner.ID
	}
	if upd.CarrierID != nil {
		if _, err := s.directory.GetCarrier(ctx, *upd.CarrierID); err != nil {
			return nil, fmt.Errorf("resolve carrier %d: %w", *upd.CarrierID, err)
		}
		req.CarrierID = upd.CarrierID
	}
	if upd.RouteID != nil {
		route, err := s.directory.GetRoute(ctx, *upd.RouteID)
		if err != nil {
			return nil, fmt.Errorf("resolve route %d: %w", *upd.RouteID, err)
		}
		if !route.SaleSelectable {
			return nil, fmt.Errorf("%w: route %d", ErrRouteNotSelectable, route.ID)
		}
		req.RouteID = upd.RouteID
	}
	if upd.PlannedDate != nil {
		req.PlannedDate = upd.PlannedDate
	}

	if err := s.store.Save(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// SetLineQuantity changes one line's requested quantity, validated against
// the line's balance as it stands right now rather than as it stood when the
// request was opened.
func (s *Service) SetLineQuantity(ctx context.Context, id uuid.UUID, lineID int64, quantity float64) (*DeliveryRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range req.Lines {
		if req.Lines[i].OrderLineID == lineID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: line %d", ErrLineNotFound, lineID)
	}

	if err := s.refreshLine(ctx, &req.Lines[idx]); err != nil {
		return nil, err
	}
	if err := ValidateQuantity(req.Lines[idx], quantity); err != nil {
		return nil, err
	}
	req.Lines[idx].Quantity = quantity

	if err := s.store.Save(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Discard drops an open request without touching any order.
func (s *Service) Discard(ctx context.Context, id uuid.UUID, actorID int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "delivery_request.discarded", id, nil)
	return nil
}

// Confirm validates the request against fresh balances, consumes it and
// dispatches the launches. Consumption is atomic, so a request confirms at
// most once no matter how many calls race.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actorID int64) (*Outcome, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range req.Lines {
		if err := s.refreshLine(ctx, &req.Lines[i]); err != nil {
			return nil, err
		}
	}
	// Orders may have been cancelled or un-flagged since the request opened.
	if err := s.checkDeliverable(ctx, req); err != nil {
		return nil, err
	}
	if err := ValidateLines(req.Lines); err != nil {
		// Leave the request in place so staff can fix the quantities.
		if saveErr := s.store.Save(ctx, req); saveErr != nil {
			s.logger.Warn("save refreshed request failed", "request_id", id, "error", saveErr)
		}
		return nil, err
	}

	if _, err := s.store.Consume(ctx, id); err != nil {
		return nil, err
	}

	outcome, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "delivery_request.confirmed", id, map[string]any{
		"dispatched":      outcome.Dispatched,
		"launched_orders": outcome.LaunchedOrders,
	})
	return outcome, nil
}

func (s *Service) checkDeliverable(ctx context.Context, req *DeliveryRequest) error {
	seen := make(map[int64]bool)
	for _, line := range req.Lines {
		if seen[line.OrderID] {
			continue
		}
		seen[line.OrderID] = true
		order, err := s.orders.GetOrder(ctx, line.OrderID)
		if err != nil {
			return fmt.Errorf("load order %d: %w", line.OrderID, err)
		}
		if order.Status != sales.OrderStatusConfirmed || !order.ManualDelivery {
			return fmt.Errorf("%w: order %s", ErrNotDeliverable, order.DocNumber)
		}
	}
	return nil
}

func (s *Service) refreshLine(ctx context.Context, line *RequestLine) error {
	fresh, err := s.lines.GetOrderLine(ctx, line.OrderLineID)
	if err != nil {
		return fmt.Errorf("refresh line %d: %w", line.OrderLineID, err)
	}
	line.QtyOrdered = fresh.QtyOrdered
	line.QtyProcured = fresh.QtyProcured
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, requestID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "delivery_request",
		EntityID: requestID.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "request_id", requestID, "error", err)
	}
}
