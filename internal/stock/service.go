package stock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Store is the persistence surface the service depends on.
type Store interface {
	GetPicking(ctx context.Context, id int64) (*Picking, error)
	ListPickingsForOrder(ctx context.Context, orderID int64) ([]Picking, error)
	GetMovement(ctx context.Context, id int64) (*Movement, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Auditor records business events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for movement mutations. Every mutation
// that changes what counts as procured pushes a balance recompute for the
// affected order.
type Service struct {
	repo      Store
	refresher BalanceRefresher
	audit     Auditor
	logger    *slog.Logger
}

func NewService(repo Store, refresher BalanceRefresher, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, refresher: refresher, audit: audit, logger: logger}
}

// GetPicking retrieves a picking with its movements.
func (s *Service) GetPicking(ctx context.Context, id int64) (*Picking, error) {
	return s.repo.GetPicking(ctx, id)
}

// ListPickingsForOrder retrieves all pickings created for an order.
func (s *Service) ListPickingsForOrder(ctx context.Context, orderID int64) ([]Picking, error) {
	return s.repo.ListPickingsForOrder(ctx, orderID)
}

// CancelMovement cancels a pending movement. The linked order line's balance
// returns to the pool of quantity a delivery request can claim.
func (s *Service) CancelMovement(ctx context.Context, id int64, actorID int64) error {
	movement, err := s.mutateMovement(ctx, id, func(m *Movement) error {
		if m.State == MovementStateDone {
			return fmt.Errorf("%w: movement already done", ErrInvalidStatus)
		}
		m.State = MovementStateCancelled
		return nil
	}, func(ctx context.Context, tx TxRepository, m *Movement) error {
		return tx.UpdateMovementState(ctx, m.ID, MovementStateCancelled)
	})
	if err != nil {
		return fmt.Errorf("cancel movement: %w", err)
	}
	s.recordAudit(ctx, actorID, "stock.movement.cancelled", id, nil)
	return s.refreshMovementOrder(ctx, movement)
}

// ScrapMovement marks a movement scrapped. Scrapped goods never count as
// procured even when the movement completed.
func (s *Service) ScrapMovement(ctx context.Context, id int64, actorID int64) error {
	movement, err := s.mutateMovement(ctx, id, func(m *Movement) error {
		if m.Scrapped {
			return nil
		}
		m.Scrapped = true
		return nil
	}, func(ctx context.Context, tx TxRepository, m *Movement) error {
		return tx.SetMovementScrapped(ctx, m.ID)
	})
	if err != nil {
		return fmt.Errorf("scrap movement: %w", err)
	}
	s.recordAudit(ctx, actorID, "stock.movement.scrapped", id, nil)
	return s.refreshMovementOrder(ctx, movement)
}

// CompleteMovement marks a pending movement done.
func (s *Service) CompleteMovement(ctx context.Context, id int64, actorID int64) error {
	movement, err := s.mutateMovement(ctx, id, func(m *Movement) error {
		if m.State != MovementStatePending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, m.State, MovementStateDone)
		}
		m.State = MovementStateDone
		return nil
	}, func(ctx context.Context, tx TxRepository, m *Movement) error {
		return tx.UpdateMovementState(ctx, m.ID, MovementStateDone)
	})
	if err != nil {
		return fmt.Errorf("complete movement: %w", err)
	}
	s.recordAudit(ctx, actorID, "stock.movement.done", id, nil)
	return s.refreshMovementOrder(ctx, movement)
}

// UpdateMovementQty adjusts a pending movement's quantity.
func (s *Service) UpdateMovementQty(ctx context.Context, id int64, qty float64, actorID int64) error {
	movement, err := s.mutateMovement(ctx, id, func(m *Movement) error {
		if m.State != MovementStatePending {
			return fmt.Errorf("%w: quantity is frozen once the movement leaves PENDING", ErrInvalidStatus)
		}
		m.Qty = qty
		return nil
	}, func(ctx context.Context, tx TxRepository, m *Movement) error {
		return tx.UpdateMovementQty(ctx, m.ID, qty)
	})
	if err != nil {
		return fmt.Errorf("update movement quantity: %w", err)
	}
	s.recordAudit(ctx, actorID, "stock.movement.qty_updated", id, map[string]any{"qty": qty})
	return s.refreshMovementOrder(ctx, movement)
}

func (s *Service) mutateMovement(
	ctx context.Context,
	id int64,
	check func(*Movement) error,
	apply func(context.Context, TxRepository, *Movement) error,
) (*Movement, error) {
	var movement *Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.LockMovement(ctx, id)
		if err != nil {
			return err
		}
		if err := check(m); err != nil {
			return err
		}
		if err := apply(ctx, tx, m); err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

func (s *Service) refreshMovementOrder(ctx context.Context, m *Movement) error {
	if m == nil || m.OrderLineID == nil {
		return nil
	}
	orderID, err := s.orderIDForLine(ctx, m)
	if err != nil {
		return err
	}
	if err := s.refresher.RecomputeOrderBalances(ctx, orderID); err != nil {
		return fmt.Errorf("refresh order %d balances: %w", orderID, err)
	}
	return nil
}

func (s *Service) orderIDForLine(ctx context.Context, m *Movement) (int64, error) {
	picking, err := s.repo.GetPicking(ctx, m.PickingID)
	if err != nil {
		return 0, fmt.Errorf("load picking %d: %w", m.PickingID, err)
	}
	return picking.OrderID, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, movementID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: strconv.FormatInt(movementID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "movement_id", movementID, "error", err)
	}
}
