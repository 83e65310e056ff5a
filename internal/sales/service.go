package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Store is the persistence surface the service depends on.
type Store interface {
	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error)
	GetOrderLine(ctx context.Context, id int64) (*OrderLine, error)
	SelectCandidateLines(ctx context.Context, orderIDs, lineIDs []int64) ([]PendingLine, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Catalog resolves products and sales teams from reference data.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*masterdata.Product, error)
	GetSalesTeam(ctx context.Context, id int64) (*masterdata.SalesTeam, error)
}

// Auditor records business events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for sales orders.
type Service struct {
	repo    Store
	catalog Catalog
	ledger  *Ledger
	gate    *LaunchGate
	audit   Auditor
	logger  *slog.Logger
}

// NewService constructs a sales service.
func NewService(repo Store, catalog Catalog, ledger *Ledger, gate *LaunchGate, audit Auditor, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		ledger:  ledger,
		gate:    gate,
		audit:   audit,
		logger:  logger,
	}
}

// CreateOrder creates a draft order. When the payload does not set the
// manual-delivery flag explicitly, the assigned team's default applies.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest, createdBy int64) (*Order, error) {
	manual := false
	if req.ManualDelivery != nil {
		manual = *req.ManualDelivery
	} else if req.TeamID != nil {
		team, err := s.catalog.GetSalesTeam(ctx, *req.TeamID)
		if err != nil {
			return nil, fmt.Errorf("resolve sales team %d: %w", *req.TeamID, err)
		}
		manual = team.ManualDelivery
	}

	shipping := req.ShippingPartnerID
	if shipping == 0 {
		shipping = req.PartnerID
	}

	order := Order{
		CompanyID:         req.CompanyID,
		PartnerID:         req.PartnerID,
		ShippingPartnerID: shipping,
		CarrierID:         req.CarrierID,
		TeamID:            req.TeamID,
		ManualDelivery:    manual,
		Status:            OrderStatusDraft,
		Notes:             req.Notes,
		CreatedBy:         createdBy,
	}

	lines := make([]OrderLine, 0, len(req.Lines))
	for i, lr := range req.Lines {
		product, err := s.catalog.GetProduct(ctx, lr.ProductID)
		if err != nil {
			return nil, fmt.Errorf("resolve product %d: %w", lr.ProductID, err)
		}
		method := DeliveredManually
		if product.Type.Trackable() {
			method = DeliveredByMovement
		}
		desc := lr.Description
		if desc == "" {
			desc = product.Name
		}
		lines = append(lines, OrderLine{
			ProductID:       lr.ProductID,
			Description:     desc,
			QtyOrdered:      lr.QtyOrdered,
			UomID:           lr.UomID,
			UnitPrice:       lr.UnitPrice,
			DeliveredMethod: method,
			QtyProcured:     0,
			QtyToProcure:    lr.QtyOrdered,
			LineOrder:       i + 1,
		})
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, docNumber, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		order.DocNumber = docNumber
		for i := range lines {
			lines[i].OrderID = id
			lineID, err := tx.InsertOrderLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	order.Lines = lines

	s.recordAudit(ctx, createdBy, "sales.order.created", order.ID, map[string]any{
		"doc_number":      order.DocNumber,
		"manual_delivery": order.ManualDelivery,
	})
	return &order, nil
}

// GetOrder retrieves an order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// GetOrderLine retrieves a single order line with its current balances.
func (s *Service) GetOrderLine(ctx context.Context, id int64) (*OrderLine, error) {
	return s.repo.GetOrderLine(ctx, id)
}

// ListOrders retrieves orders matching filters.
func (s *Service) ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.ListOrders(ctx, filters)
}

// SubmitQuote transitions a draft to a quote.
func (s *Service) SubmitQuote(ctx context.Context, id int64, actorID int64) (*Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != OrderStatusDraft {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, order.Status, OrderStatusQuote)
		}
		return tx.UpdateOrderStatus(ctx, id, OrderStatusQuote, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("submit quote: %w", err)
	}
	return s.repo.GetOrder(ctx, id)
}

// ConfirmOrder confirms an order and, unless the order defers delivery,
// launches fulfillment for its movement-tracked lines.
func (s *Service) ConfirmOrder(ctx context.Context, id int64, actorID int64) (*Order, error) {
	var confirmed *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.Editable() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, order.Status, OrderStatusConfirmed)
		}
		now := time.Now().UTC()
		if err := tx.UpdateOrderStatus(ctx, id, OrderStatusConfirmed, &now); err != nil {
			return err
		}
		lines, err := tx.GetOrderLines(ctx, id)
		if err != nil {
			return err
		}
		order.Status = OrderStatusConfirmed
		order.ConfirmedAt = &now
		order.Lines = lines
		confirmed = order
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm order: %w", err)
	}

	launched, err := s.gate.LaunchStockRules(ctx, confirmed, movementLines(confirmed.Lines), LaunchContext{})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actorID, "sales.order.confirmed", id, map[string]any{
		"doc_number": confirmed.DocNumber,
		"launched":   launched,
	})
	return s.repo.GetOrder(ctx, id)
}

// CancelOrder cancels an order that has not shipped anything yet.
func (s *Service) CancelOrder(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == OrderStatusDone || order.Status == OrderStatusCancelled {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, order.Status, OrderStatusCancelled)
		}
		lines, err := tx.GetOrderLines(ctx, id)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if line.QtyProcured > 0 {
				return fmt.Errorf("%w: line %d already has procured quantity", ErrStateConflict, line.ID)
			}
		}
		return tx.UpdateOrderStatus(ctx, id, OrderStatusCancelled, nil)
	})
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	s.recordAudit(ctx, actorID, "sales.order.cancelled", id, nil)
	return nil
}

// SetManualDelivery toggles the manual-delivery flag. Once an order leaves
// the editable states the flag is frozen.
func (s *Service) SetManualDelivery(ctx context.Context, id int64, manual bool, actorID int64) (*Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.Editable() {
			return fmt.Errorf("%w: manual delivery is frozen after confirmation", ErrStateConflict)
		}
		if order.ManualDelivery == manual {
			return nil
		}
		return tx.SetManualDeliveryFlag(ctx, id, manual)
	})
	if err != nil {
		return nil, fmt.Errorf("set manual delivery: %w", err)
	}
	s.recordAudit(ctx, actorID, "sales.order.manual_delivery_set", id, map[string]any{
		"manual_delivery": manual,
	})
	return s.repo.GetOrder(ctx, id)
}

// PendingLines returns the lines of the given orders (or the explicitly
// selected lines) that still have quantity waiting for a delivery request.
func (s *Service) PendingLines(ctx context.Context, orderIDs, lineIDs []int64) ([]PendingLine, error) {
	candidates, err := s.repo.SelectCandidateLines(ctx, orderIDs, lineIDs)
	if err != nil {
		return nil, fmt.Errorf("select candidate lines: %w", err)
	}
	var pending []PendingLine
	for _, c := range candidates {
		if IsPending(masterdata.ProductType(c.ProductType), c.Line, c.UomRounding) {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// RecomputeOrderBalances refreshes the procured ledger of every line on the
// order from its linked movements. Called after any movement mutation and by
// the periodic resync job.
func (s *Service) RecomputeOrderBalances(ctx context.Context, orderID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		lines, err := tx.GetOrderLines(ctx, orderID)
		if err != nil {
			return err
		}
		updated, err := s.ledger.Recompute(ctx, lines)
		if err != nil {
			return err
		}
		for _, line := range updated {
			if err := tx.UpdateLineBalances(ctx, line.ID, line.QtyProcured, line.QtyToProcure); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recompute order %d balances: %w", orderID, err)
	}
	return nil
}

// Launch runs the gate on behalf of a delivery request dispatch.
func (s *Service) Launch(ctx context.Context, order *Order, lines []OrderLine, lctx LaunchContext) (bool, error) {
	return s.gate.LaunchStockRules(ctx, order, lines, lctx)
}

func movementLines(lines []OrderLine) []OrderLine {
	var out []OrderLine
	for _, l := range lines {
		if l.DeliveredMethod == DeliveredByMovement {
			out = append(out, l)
		}
	}
	return out
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "order_id", orderID, "error", err)
	}
}
