package sales

import (
	"context"
	"time"
)

// OrderStatus represents the sales order lifecycle.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusQuote     OrderStatus = "QUOTE"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusDone      OrderStatus = "DONE"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Editable reports whether order-level settings such as the manual-delivery
// flag may still change.
func (s OrderStatus) Editable() bool {
	return s == OrderStatusDraft || s == OrderStatusQuote
}

// DeliveredMethod states how a line's delivered quantity is tracked.
type DeliveredMethod string

const (
	DeliveredByMovement DeliveredMethod = "MOVEMENT"
	DeliveredManually   DeliveredMethod = "MANUAL"
)

// Order represents a sales order. When ManualDelivery is set, confirming the
// order does not launch fulfillment; goods ship only through explicit
// delivery requests.
type Order struct {
	ID                int64       `json:"id"`
	DocNumber         string      `json:"doc_number"`
	CompanyID         int64       `json:"company_id"`
	PartnerID         int64       `json:"partner_id"`
	ShippingPartnerID int64       `json:"shipping_partner_id"`
	CarrierID         *int64      `json:"carrier_id,omitempty"`
	TeamID            *int64      `json:"team_id,omitempty"`
	ManualDelivery    bool        `json:"manual_delivery"`
	Status            OrderStatus `json:"status"`
	Notes             *string     `json:"notes,omitempty"`
	CreatedBy         int64       `json:"created_by"`
	ConfirmedAt       *time.Time  `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`

	Lines []OrderLine `json:"lines,omitempty"`
}

// OrderLine represents a single ordered product. QtyProcured is derived from
// the line's linked goods movements and QtyToProcure is the remainder still
// waiting for fulfillment to be launched.
type OrderLine struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Description     string          `json:"description"`
	QtyOrdered      float64         `json:"qty_ordered"`
	UomID           int64           `json:"uom_id"`
	UnitPrice       float64         `json:"unit_price"`
	DeliveredMethod DeliveredMethod `json:"delivered_method"`
	QtyProcured     float64         `json:"qty_procured"`
	QtyToProcure    float64         `json:"qty_to_procure"`
	LineOrder       int             `json:"line_order"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PendingLine is an order line that still has quantity waiting for a
// delivery request, joined with the context a request builder needs.
type PendingLine struct {
	Line           OrderLine `json:"line"`
	OrderID        int64     `json:"order_id"`
	OrderDocNumber string    `json:"order_doc_number"`
	CompanyID      int64     `json:"company_id"`
	PartnerID      int64     `json:"partner_id"`
	ShippingID     int64     `json:"shipping_partner_id"`
	CarrierID      *int64    `json:"carrier_id,omitempty"`
	ProductType    string    `json:"product_type"`
	UomRounding    float64   `json:"uom_rounding"`
}

// CreateOrderRequest is the payload for creating an order.
type CreateOrderRequest struct {
	CompanyID         int64                    `json:"company_id" validate:"required"`
	PartnerID         int64                    `json:"partner_id" validate:"required"`
	ShippingPartnerID int64                    `json:"shipping_partner_id"`
	CarrierID         *int64                   `json:"carrier_id"`
	TeamID            *int64                   `json:"team_id"`
	ManualDelivery    *bool                    `json:"manual_delivery"`
	Notes             *string                  `json:"notes"`
	Lines             []CreateOrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// CreateOrderLineRequest is one line of a create payload.
type CreateOrderLineRequest struct {
	ProductID   int64   `json:"product_id" validate:"required"`
	Description string  `json:"description"`
	QtyOrdered  float64 `json:"qty_ordered" validate:"required,gt=0"`
	UomID       int64   `json:"uom_id" validate:"required"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// SetManualDeliveryRequest toggles the manual-delivery flag.
type SetManualDeliveryRequest struct {
	ManualDelivery bool `json:"manual_delivery"`
}

// LaunchContext carries the per-launch parameters a delivery request
// dispatches with. A nil OverrideQuantities map means an ordinary automatic
// launch; a non-nil map (even empty) marks the launch as manually requested
// and replaces the procured baseline per line.
type LaunchContext struct {
	OverrideQuantities map[int64]float64
	PlannedDate        *time.Time
	RouteID            *int64
	PartnerID          *int64
	CarrierID          *int64
}

// IsManualOverride reports whether this launch was explicitly requested,
// which bypasses the manual-delivery suppression.
func (lc LaunchContext) IsManualOverride() bool {
	return lc.OverrideQuantities != nil
}

// Launcher starts goods fulfillment for a set of order lines. Implemented by
// the stock pipeline; sales only decides whether launching is allowed.
type Launcher interface {
	Launch(ctx context.Context, order *Order, lines []OrderLine, lctx LaunchContext) error
}

// LinkedMovement is the projection of a goods movement the procured ledger
// needs.
type LinkedMovement struct {
	ID        int64
	Qty       float64
	UomID     int64
	Cancelled bool
	Scrapped  bool
}

// MovementReader loads the goods movements linked to order lines.
type MovementReader interface {
	LinkedMovements(ctx context.Context, lineIDs []int64) (map[int64][]LinkedMovement, error)
}

// UnitConverter converts quantities across units of measure.
type UnitConverter interface {
	ConvertToUnit(ctx context.Context, qty float64, fromID, toID int64) (float64, error)
}
