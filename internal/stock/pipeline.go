package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

// ErrUnknownOverrideLine indicates a launch override keyed by a line that is
// not part of the launch.
var ErrUnknownOverrideLine = errors.New("override references a line outside the launch")

// PipelineStore is the persistence surface the pipeline needs.
type PipelineStore interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// UnitResolver loads units of measure.
type UnitResolver interface {
	GetUnit(ctx context.Context, id int64) (*masterdata.Unit, error)
}

// Pipeline turns a fulfillment launch into pickings and movements. It is the
// sales package's Launcher.
type Pipeline struct {
	store  PipelineStore
	units  UnitResolver
	logger *slog.Logger
}

func NewPipeline(store PipelineStore, units UnitResolver, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: store, units: units, logger: logger}
}

// Launch creates movements for every line that still has quantity to fulfill
// and updates the lines' procured balances in the same transaction.
//
// Without an override, a line's launch quantity is its remaining balance
// (ordered minus procured). With an override, the override value replaces the
// procured baseline, so overrides[line] = ordered - requested launches
// exactly the requested quantity. Lines whose launch quantity vanishes within
// the unit's precision are skipped.
func (p *Pipeline) Launch(ctx context.Context, order *sales.Order, lines []sales.OrderLine, lctx sales.LaunchContext) error {
	if len(lines) == 0 {
		return nil
	}

	known := make(map[int64]sales.OrderLine, len(lines))
	for _, l := range lines {
		known[l.ID] = l
	}
	for lineID := range lctx.OverrideQuantities {
		if _, ok := known[lineID]; !ok {
			return fmt.Errorf("%w: line %d", ErrUnknownOverrideLine, lineID)
		}
	}

	partnerID := order.ShippingPartnerID
	if lctx.PartnerID != nil {
		partnerID = *lctx.PartnerID
	}
	carrierID := order.CarrierID
	if lctx.CarrierID != nil {
		carrierID = lctx.CarrierID
	}
	scheduled := time.Now().UTC()
	if lctx.PlannedDate != nil {
		scheduled = *lctx.PlannedDate
	}

	return p.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var picking *Picking
		created := 0
		for _, line := range lines {
			unit, err := p.units.GetUnit(ctx, line.UomID)
			if err != nil {
				return fmt.Errorf("resolve unit %d: %w", line.UomID, err)
			}

			baseline := line.QtyProcured
			if qty, ok := lctx.OverrideQuantities[line.ID]; ok {
				baseline = qty
			}
			launchQty := line.QtyOrdered - baseline
			if masterdata.CompareQty(launchQty, 0, unit.Rounding) <= 0 {
				continue
			}

			if picking == nil {
				picking, err = p.resolvePicking(ctx, tx, order.ID, partnerID, carrierID, scheduled)
				if err != nil {
					return err
				}
			}

			lineID := line.ID
			movement := Movement{
				PickingID:   picking.ID,
				OrderLineID: &lineID,
				ProductID:   line.ProductID,
				Qty:         launchQty,
				UomID:       line.UomID,
				State:       MovementStatePending,
				RouteID:     lctx.RouteID,
			}
			if _, err := tx.InsertMovement(ctx, movement); err != nil {
				return fmt.Errorf("insert movement for line %d: %w", line.ID, err)
			}

			newProcured := line.QtyProcured + launchQty
			if err := tx.UpdateLineBalances(ctx, line.ID, newProcured, line.QtyOrdered-newProcured); err != nil {
				return fmt.Errorf("update line %d balances: %w", line.ID, err)
			}
			created++
		}

		if created > 0 {
			p.logger.Info("fulfillment launched",
				"order_id", order.ID,
				"picking_id", picking.ID,
				"movements", created,
			)
		}
		return nil
	})
}

func (p *Pipeline) resolvePicking(ctx context.Context, tx TxRepository, orderID, partnerID int64, carrierID *int64, scheduled time.Time) (*Picking, error) {
	existing, err := tx.FindOpenPicking(ctx, orderID, partnerID, carrierID, scheduled)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find open picking: %w", err)
	}

	picking := Picking{
		OrderID:       orderID,
		PartnerID:     partnerID,
		CarrierID:     carrierID,
		ScheduledDate: scheduled,
		State:         PickingStateOpen,
	}
	id, docNumber, err := tx.CreatePicking(ctx, picking)
	if err != nil {
		return nil, fmt.Errorf("create picking: %w", err)
	}
	picking.ID = id
	picking.DocNumber = docNumber
	return &picking, nil
}
