package sales

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
)

// Ledger keeps each order line's procured balance in sync with the goods
// movements linked to it. Cancelled and scrapped movements never count.
type Ledger struct {
	movements MovementReader
	units     UnitConverter
	logger    *slog.Logger
}

func NewLedger(movements MovementReader, units UnitConverter, logger *slog.Logger) *Ledger {
	return &Ledger{movements: movements, units: units, logger: logger}
}

// ProcuredQty sums the quantities of a line's live movements, expressed in
// the line's unit of measure. Only movement-tracked lines accrue procured
// quantity; a manually delivered line stays at zero even when a movement
// points at it.
func (l *Ledger) ProcuredQty(ctx context.Context, line OrderLine, movements []LinkedMovement) (float64, error) {
	if line.DeliveredMethod != DeliveredByMovement {
		return 0, nil
	}
	var total float64
	for _, m := range movements {
		if m.Cancelled || m.Scrapped {
			continue
		}
		qty, err := l.units.ConvertToUnit(ctx, m.Qty, m.UomID, line.UomID)
		if err != nil {
			return 0, fmt.Errorf("convert movement %d quantity: %w", m.ID, err)
		}
		total += qty
	}
	return total, nil
}

// Recompute refreshes QtyProcured and QtyToProcure on the given lines from
// their linked movements and returns the updated copies. Persisting the
// result is the caller's business, so recomputes can ride an enclosing
// transaction.
func (l *Ledger) Recompute(ctx context.Context, lines []OrderLine) ([]OrderLine, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ID
	}
	linked, err := l.movements.LinkedMovements(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load linked movements: %w", err)
	}

	out := make([]OrderLine, len(lines))
	for i, line := range lines {
		procured, err := l.ProcuredQty(ctx, line, linked[line.ID])
		if err != nil {
			return nil, err
		}
		line.QtyProcured = procured
		line.QtyToProcure = line.QtyOrdered - procured
		out[i] = line
	}
	return out, nil
}

// IsPending reports whether a line still has quantity waiting for a delivery
// request. Service lines never ship and balances inside the unit's precision
// step count as settled.
func IsPending(productType masterdata.ProductType, line OrderLine, uomRounding float64) bool {
	if !productType.Trackable() {
		return false
	}
	return masterdata.CompareQty(line.QtyToProcure, 0, uomRounding) > 0
}
