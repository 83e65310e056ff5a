package manualdelivery

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/sales"
)

type launchCall struct {
	orderID int64
	lines   []sales.OrderLine
	lctx    sales.LaunchContext
}

type stubOrderGateway struct {
	orders map[int64]*sales.Order
	calls  []launchCall
}

func (s *stubOrderGateway) GetOrder(_ context.Context, id int64) (*sales.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, sales.ErrNotFound
	}
	return o, nil
}

func (s *stubOrderGateway) Launch(_ context.Context, order *sales.Order, lines []sales.OrderLine, lctx sales.LaunchContext) (bool, error) {
	s.calls = append(s.calls, launchCall{orderID: order.ID, lines: lines, lctx: lctx})
	return true, nil
}

func testGateway() *stubOrderGateway {
	return &stubOrderGateway{orders: map[int64]*sales.Order{
		1: {
			ID:             1,
			DocNumber:      "SO-2026-00001",
			Status:         sales.OrderStatusConfirmed,
			ManualDelivery: true,
			Lines: []sales.OrderLine{
				{ID: 10, OrderID: 1, ProductID: 1, QtyOrdered: 10, UomID: 1},
				{ID: 11, OrderID: 1, ProductID: 2, QtyOrdered: 5, UomID: 1},
			},
		},
		2: {
			ID:             2,
			DocNumber:      "SO-2026-00002",
			Status:         sales.OrderStatusConfirmed,
			ManualDelivery: true,
			Lines: []sales.OrderLine{
				{ID: 20, OrderID: 2, ProductID: 3, QtyOrdered: 8, UomID: 1},
			},
		},
	}}
}

func requestWith(lines ...RequestLine) *DeliveryRequest {
	return &DeliveryRequest{
		ID:                  uuid.New(),
		CompanyID:           1,
		CommercialPartnerID: 20,
		PartnerID:           21,
		Lines:               lines,
	}
}

func TestDispatchInvertsQuantities(t *testing.T) {
	gw := testGateway()
	d := NewDispatcher(gw, slog.Default())

	t.Run("full balance inverts to zero", func(t *testing.T) {
		gw.calls = nil
		req := requestWith(RequestLine{OrderLineID: 10, OrderID: 1, QtyOrdered: 10, UomRounding: 0.01, Quantity: 10})
		outcome, err := d.Dispatch(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, outcome.Dispatched)

		require.Len(t, gw.calls, 1)
		assert.Equal(t, map[int64]float64{10: 0}, gw.calls[0].lctx.OverrideQuantities)
		assert.True(t, gw.calls[0].lctx.IsManualOverride())
	})

	t.Run("partial request inverts to the held-back balance", func(t *testing.T) {
		gw.calls = nil
		req := requestWith(RequestLine{OrderLineID: 10, OrderID: 1, QtyOrdered: 10, UomRounding: 0.01, Quantity: 4})
		_, err := d.Dispatch(context.Background(), req)
		require.NoError(t, err)

		require.Len(t, gw.calls, 1)
		assert.Equal(t, map[int64]float64{10: 6}, gw.calls[0].lctx.OverrideQuantities)
	})
}

func TestDispatchOmitsZeroQuantityLines(t *testing.T) {
	gw := testGateway()
	d := NewDispatcher(gw, slog.Default())

	req := requestWith(
		RequestLine{OrderLineID: 10, OrderID: 1, QtyOrdered: 10, UomRounding: 0.01, Quantity: 10},
		RequestLine{OrderLineID: 11, OrderID: 1, QtyOrdered: 5, UomRounding: 0.01, Quantity: 0},
	)
	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, gw.calls, 1)
	require.Len(t, gw.calls[0].lines, 1)
	assert.Equal(t, int64(10), gw.calls[0].lines[0].ID)
	_, hasZeroLine := gw.calls[0].lctx.OverrideQuantities[11]
	assert.False(t, hasZeroLine)
}

func TestDispatchAllZeroIsNoOp(t *testing.T) {
	gw := testGateway()
	d := NewDispatcher(gw, slog.Default())

	req := requestWith(
		RequestLine{OrderLineID: 10, OrderID: 1, QtyOrdered: 10, UomRounding: 0.01, Quantity: 0},
	)
	outcome, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, outcome.Dispatched)
	assert.Empty(t, gw.calls)
}

func TestDispatchSpansOrders(t *testing.T) {
	gw := testGateway()
	d := NewDispatcher(gw, slog.Default())

	planned := testPlannedDate()
	routeID := int64(3)
	req := requestWith(
		RequestLine{OrderLineID: 10, OrderID: 1, QtyOrdered: 10, UomRounding: 0.01, Quantity: 10},
		RequestLine{OrderLineID: 20, OrderID: 2, QtyOrdered: 8, UomRounding: 0.01, Quantity: 2},
	)
	req.PlannedDate = &planned
	req.RouteID = &routeID

	outcome, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, outcome.LaunchedOrders)

	require.Len(t, gw.calls, 2)
	assert.Equal(t, map[int64]float64{20: 6}, gw.calls[1].lctx.OverrideQuantities)
	// The request's shipping parameters ride along on every launch.
	require.NotNil(t, gw.calls[0].lctx.PartnerID)
	assert.Equal(t, int64(21), *gw.calls[0].lctx.PartnerID)
	assert.Equal(t, routeID, *gw.calls[1].lctx.RouteID)
	assert.True(t, planned.Equal(*gw.calls[0].lctx.PlannedDate))
}
