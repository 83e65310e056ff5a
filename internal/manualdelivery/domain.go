package manualdelivery

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRequestNotFound covers missing, expired and already-confirmed
	// requests alike; the store keeps no tombstones.
	ErrRequestNotFound = errors.New("delivery request not found or expired")

	// ErrNotDeliverable indicates the selected orders cannot take a delivery
	// request in their current state.
	ErrNotDeliverable = errors.New("order is not open for manual delivery")

	// ErrNothingPending indicates the selection holds no line with quantity
	// left to deliver.
	ErrNothingPending = errors.New("no pending quantity in selection")

	// ErrAmbiguousPartner indicates the selected orders do not share a single
	// delivery destination or commercial partner.
	ErrAmbiguousPartner = errors.New("selection spans multiple delivery partners")

	// ErrAmbiguousCompany indicates the selected orders belong to different
	// companies.
	ErrAmbiguousCompany = errors.New("selection spans multiple companies")

	// ErrQuantityExceeded indicates a requested quantity above the line's
	// remaining balance.
	ErrQuantityExceeded = errors.New("requested quantity exceeds remaining balance")

	// ErrNegativeQuantity indicates a requested quantity below zero.
	ErrNegativeQuantity = errors.New("requested quantity is negative")

	// ErrLineNotFound indicates a line outside the request.
	ErrLineNotFound = errors.New("line is not part of the delivery request")

	// ErrInvalidDestination indicates a destination partner outside the
	// request's commercial account.
	ErrInvalidDestination = errors.New("destination partner outside the commercial account")

	// ErrRouteNotSelectable indicates a route override that is not open for
	// sales use.
	ErrRouteNotSelectable = errors.New("route is not sale selectable")
)

// DeliveryRequest is a staff-editable draft of a manual fulfillment launch.
// It lives in the cache until confirmed or discarded and never touches order
// state while open.
type DeliveryRequest struct {
	ID                  uuid.UUID     `json:"id"`
	CompanyID           int64         `json:"company_id"`
	CommercialPartnerID int64         `json:"commercial_partner_id"`
	PartnerID           int64         `json:"partner_id"`
	CarrierID           *int64        `json:"carrier_id,omitempty"`
	RouteID             *int64        `json:"route_id,omitempty"`
	PlannedDate         *time.Time    `json:"planned_date,omitempty"`
	CreatedBy           int64         `json:"created_by"`
	CreatedAt           time.Time     `json:"created_at"`
	Lines               []RequestLine `json:"lines"`
}

// RequestLine mirrors one pending order line. QtyOrdered and QtyProcured are
// the balances as of building the request; Quantity is what staff asks to
// ship now, defaulted to the full remaining balance.
type RequestLine struct {
	OrderLineID    int64   `json:"order_line_id"`
	OrderID        int64   `json:"order_id"`
	OrderDocNumber string  `json:"order_doc_number"`
	ProductID      int64   `json:"product_id"`
	Description    string  `json:"description"`
	QtyOrdered     float64 `json:"qty_ordered"`
	QtyProcured    float64 `json:"qty_procured"`
	UomID          int64   `json:"uom_id"`
	UomRounding    float64 `json:"uom_rounding"`
	Quantity       float64 `json:"quantity"`
}

// Remaining is the line's balance still open for delivery.
func (l RequestLine) Remaining() float64 {
	return l.QtyOrdered - l.QtyProcured
}

// OpenRequest selects the orders or individual lines a request is built from.
type OpenRequest struct {
	OrderIDs []int64 `json:"order_ids" validate:"required_without=LineIDs"`
	LineIDs  []int64 `json:"line_ids" validate:"required_without=OrderIDs"`
}

// UpdateRequest adjusts the request's shipping parameters.
type UpdateRequest struct {
	PartnerID   *int64     `json:"partner_id"`
	CarrierID   *int64     `json:"carrier_id"`
	RouteID     *int64     `json:"route_id"`
	PlannedDate *time.Time `json:"planned_date"`
}

// SetQuantityRequest changes one line's requested quantity.
type SetQuantityRequest struct {
	Quantity float64 `json:"quantity"`
}

// Outcome reports what a confirmation dispatched.
type Outcome struct {
	Dispatched     bool    `json:"dispatched"`
	LaunchedOrders []int64 `json:"launched_orders,omitempty"`
}
