package manualdelivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

// OrderGateway is the slice of the sales service the dispatcher needs.
type OrderGateway interface {
	GetOrder(ctx context.Context, id int64) (*sales.Order, error)
	Launch(ctx context.Context, order *sales.Order, lines []sales.OrderLine, lctx sales.LaunchContext) (bool, error)
}

// Dispatcher turns a confirmed delivery request into fulfillment launches,
// one per order touched.
type Dispatcher struct {
	orders OrderGateway
	logger *slog.Logger
}

func NewDispatcher(orders OrderGateway, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{orders: orders, logger: logger}
}

// Dispatch launches the request's quantities. The launch pipeline works from
// a procured baseline, so each requested quantity inverts into
// override[line] = ordered - requested; lines requesting nothing stay out of
// the launch entirely. A request with only zero quantities dispatches
// nothing and succeeds.
func (d *Dispatcher) Dispatch(ctx context.Context, req *DeliveryRequest) (*Outcome, error) {
	byOrder := make(map[int64][]RequestLine)
	for _, line := range req.Lines {
		if masterdata.CompareQty(line.Quantity, 0, line.UomRounding) <= 0 {
			continue
		}
		byOrder[line.OrderID] = append(byOrder[line.OrderID], line)
	}
	if len(byOrder) == 0 {
		d.logger.Info("delivery request dispatched nothing", "request_id", req.ID)
		return &Outcome{Dispatched: false}, nil
	}

	orderIDs := make([]int64, 0, len(byOrder))
	for id := range byOrder {
		orderIDs = append(orderIDs, id)
	}
	sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })

	outcome := &Outcome{Dispatched: true}
	for _, orderID := range orderIDs {
		if err := d.dispatchOrder(ctx, req, orderID, byOrder[orderID]); err != nil {
			return nil, err
		}
		outcome.LaunchedOrders = append(outcome.LaunchedOrders, orderID)
	}
	return outcome, nil
}

func (d *Dispatcher) dispatchOrder(ctx context.Context, req *DeliveryRequest, orderID int64, lines []RequestLine) error {
	order, err := d.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %d: %w", orderID, err)
	}

	overrides := make(map[int64]float64, len(lines))
	var launchLines []sales.OrderLine
	wanted := make(map[int64]RequestLine, len(lines))
	for _, l := range lines {
		overrides[l.OrderLineID] = l.QtyOrdered - l.Quantity
		wanted[l.OrderLineID] = l
	}
	for _, ol := range order.Lines {
		if _, ok := wanted[ol.ID]; ok {
			launchLines = append(launchLines, ol)
		}
	}
	if len(launchLines) != len(lines) {
		return fmt.Errorf("order %d no longer carries every requested line: %w", orderID, sales.ErrNotFound)
	}

	lctx := sales.LaunchContext{
		OverrideQuantities: overrides,
		PlannedDate:        req.PlannedDate,
		RouteID:            req.RouteID,
		PartnerID:          &req.PartnerID,
		CarrierID:          req.CarrierID,
	}
	launched, err := d.orders.Launch(ctx, order, launchLines, lctx)
	if err != nil {
		return fmt.Errorf("launch order %d: %w", orderID, err)
	}
	d.logger.Info("delivery request launched order",
		"request_id", req.ID,
		"order_id", orderID,
		"lines", len(launchLines),
		"launched", launched,
	)
	return nil
}
