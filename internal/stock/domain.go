package stock

import (
	"context"
	"time"
)

// MovementState represents the goods movement lifecycle.
type MovementState string

const (
	MovementStatePending   MovementState = "PENDING"
	MovementStateDone      MovementState = "DONE"
	MovementStateCancelled MovementState = "CANCELLED"
)

// PickingState represents the picking lifecycle.
type PickingState string

const (
	PickingStateOpen      PickingState = "OPEN"
	PickingStateDone      PickingState = "DONE"
	PickingStateCancelled PickingState = "CANCELLED"
)

// Movement represents a planned or executed goods movement. Movements linked
// to a sales order line feed that line's procured balance.
type Movement struct {
	ID          int64         `json:"id"`
	PickingID   int64         `json:"picking_id"`
	OrderLineID *int64        `json:"order_line_id,omitempty"`
	ProductID   int64         `json:"product_id"`
	Qty         float64       `json:"qty"`
	UomID       int64         `json:"uom_id"`
	State       MovementState `json:"state"`
	Scrapped    bool          `json:"scrapped"`
	RouteID     *int64        `json:"route_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Live reports whether the movement counts toward procured balances.
func (m Movement) Live() bool {
	return m.State != MovementStateCancelled && !m.Scrapped
}

// Picking groups movements shipping together to one destination on one day
// with one carrier.
type Picking struct {
	ID            int64        `json:"id"`
	DocNumber     string       `json:"doc_number"`
	OrderID       int64        `json:"order_id"`
	PartnerID     int64        `json:"partner_id"`
	CarrierID     *int64       `json:"carrier_id,omitempty"`
	ScheduledDate time.Time    `json:"scheduled_date"`
	State         PickingState `json:"state"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	Movements []Movement `json:"movements,omitempty"`
}

// UpdateMovementQtyRequest adjusts a pending movement's quantity.
type UpdateMovementQtyRequest struct {
	Qty float64 `json:"qty" validate:"required,gt=0"`
}

// BalanceRefresher re-derives an order's procured balances after movements
// change. Implemented by the sales service.
type BalanceRefresher interface {
	RecomputeOrderBalances(ctx context.Context, orderID int64) error
}
