package stock

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockPipelineStore struct {
	pickings  []Picking
	movements []Movement
	balances  map[int64][2]float64 // lineID -> {procured, toProcure}
}

func newMockPipelineStore() *mockPipelineStore {
	return &mockPipelineStore{balances: make(map[int64][2]float64)}
}

func (m *mockPipelineStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockPipelineTx{store: m})
}

type mockPipelineTx struct {
	store *mockPipelineStore
}

func (t *mockPipelineTx) FindOpenPicking(_ context.Context, orderID, partnerID int64, carrierID *int64, scheduledDate time.Time) (*Picking, error) {
	for i := range t.store.pickings {
		p := &t.store.pickings[i]
		sameCarrier := (p.CarrierID == nil && carrierID == nil) ||
			(p.CarrierID != nil && carrierID != nil && *p.CarrierID == *carrierID)
		if p.OrderID == orderID && p.PartnerID == partnerID && sameCarrier &&
			p.ScheduledDate.Truncate(24*time.Hour).Equal(scheduledDate.Truncate(24*time.Hour)) &&
			p.State == PickingStateOpen {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (t *mockPipelineTx) CreatePicking(_ context.Context, p Picking) (int64, string, error) {
	id := int64(len(t.store.pickings) + 1)
	p.ID = id
	p.DocNumber = fmt.Sprintf("PK-2026-%05d", id)
	t.store.pickings = append(t.store.pickings, p)
	return id, p.DocNumber, nil
}

func (t *mockPipelineTx) InsertMovement(_ context.Context, m Movement) (int64, error) {
	id := int64(len(t.store.movements) + 1)
	m.ID = id
	t.store.movements = append(t.store.movements, m)
	return id, nil
}

func (t *mockPipelineTx) LockMovement(context.Context, int64) (*Movement, error) {
	return nil, ErrNotFound
}

func (t *mockPipelineTx) UpdateMovementState(context.Context, int64, MovementState) error {
	return nil
}

func (t *mockPipelineTx) SetMovementScrapped(context.Context, int64) error { return nil }

func (t *mockPipelineTx) UpdateMovementQty(context.Context, int64, float64) error { return nil }

func (t *mockPipelineTx) UpdateLineBalances(_ context.Context, lineID int64, procured, toProcure float64) error {
	t.store.balances[lineID] = [2]float64{procured, toProcure}
	return nil
}

type stubUnits struct{}

func (stubUnits) GetUnit(_ context.Context, id int64) (*masterdata.Unit, error) {
	return &masterdata.Unit{ID: id, Code: "EA", Category: "unit", Factor: 1, Rounding: 0.01}, nil
}

func newTestPipeline(store *mockPipelineStore) *Pipeline {
	return NewPipeline(store, stubUnits{}, slog.Default())
}

func testOrder() *sales.Order {
	return &sales.Order{
		ID:                1,
		DocNumber:         "SO-2026-00001",
		CompanyID:         1,
		PartnerID:         20,
		ShippingPartnerID: 21,
		Status:            sales.OrderStatusConfirmed,
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestPipelineLaunchFullBalance(t *testing.T) {
	store := newMockPipelineStore()
	p := newTestPipeline(store)

	lines := []sales.OrderLine{
		{ID: 10, OrderID: 1, ProductID: 1, QtyOrdered: 10, UomID: 1},
		{ID: 11, OrderID: 1, ProductID: 2, QtyOrdered: 4, UomID: 1},
	}
	err := p.Launch(context.Background(), testOrder(), lines, sales.LaunchContext{})
	require.NoError(t, err)

	require.Len(t, store.pickings, 1)
	assert.Equal(t, int64(21), store.pickings[0].PartnerID)

	require.Len(t, store.movements, 2)
	assert.Equal(t, 10.0, store.movements[0].Qty)
	assert.Equal(t, 4.0, store.movements[1].Qty)
	assert.Equal(t, MovementStatePending, store.movements[0].State)

	assert.Equal(t, [2]float64{10, 0}, store.balances[10])
	assert.Equal(t, [2]float64{4, 0}, store.balances[11])
}

func TestPipelineLaunchWithOverrides(t *testing.T) {
	store := newMockPipelineStore()
	p := newTestPipeline(store)

	// Line 10 already procured 2; the override asks for 4 more by replacing
	// the baseline with ordered-requested.
	lines := []sales.OrderLine{
		{ID: 10, OrderID: 1, ProductID: 1, QtyOrdered: 10, UomID: 1, QtyProcured: 2, QtyToProcure: 8},
		{ID: 11, OrderID: 1, ProductID: 2, QtyOrdered: 5, UomID: 1, QtyToProcure: 5},
	}
	err := p.Launch(context.Background(), testOrder(), lines, sales.LaunchContext{
		OverrideQuantities: map[int64]float64{10: 6},
	})
	require.NoError(t, err)

	require.Len(t, store.movements, 2)
	assert.Equal(t, 4.0, store.movements[0].Qty)
	// Lines absent from the override launch their remaining balance.
	assert.Equal(t, 5.0, store.movements[1].Qty)

	assert.Equal(t, [2]float64{6, 4}, store.balances[10])
}

func TestPipelineSkipsSettledLines(t *testing.T) {
	store := newMockPipelineStore()
	p := newTestPipeline(store)

	lines := []sales.OrderLine{
		{ID: 10, OrderID: 1, ProductID: 1, QtyOrdered: 10, UomID: 1, QtyProcured: 10},
		{ID: 11, OrderID: 1, ProductID: 2, QtyOrdered: 5, UomID: 1, QtyProcured: 4.996},
		{ID: 12, OrderID: 1, ProductID: 3, QtyOrdered: 5, UomID: 1, QtyProcured: 2},
	}
	err := p.Launch(context.Background(), testOrder(), lines, sales.LaunchContext{})
	require.NoError(t, err)

	// Fully procured and within-precision lines create nothing.
	require.Len(t, store.movements, 1)
	assert.Equal(t, int64(12), *store.movements[0].OrderLineID)
	assert.Equal(t, 3.0, store.movements[0].Qty)
}

func TestPipelineNoLinesNoPicking(t *testing.T) {
	store := newMockPipelineStore()
	p := newTestPipeline(store)

	lines := []sales.OrderLine{
		{ID: 10, OrderID: 1, ProductID: 1, QtyOrdered: 10, UomID: 1, QtyProcured: 10},
	}
	err := p.Launch(context.Background(), testOrder(), lines, sales.LaunchContext{})
	require.NoError(t, err)
	assert.Empty(t, store.pickings, "no picking when nothing launches")
}

func TestPipelineRejectsUnknownOverrideLine(t *testing.T) {
	store := newMockPipelineStore()
	p := newTestPipeline(store)

	lines := []sales.OrderLine{
		{ID: 10, OrderID: 1, ProductID: 1, QtyOrdered: 10, UomID: 1},
	}
	err := p.Launch(context.Background(), testOrder(), lines, sales.LaunchContext{
		OverrideQuantities: map[int64]float64{99: 5},
	})
	require.ErrorIs(t, err, ErrUnknownOverrideLine)
	assert.Empty(t, store.movements)
}

func TestPipelineLaunchContextOverridesDestination(t *testing.T) {
	store := newMockPipelineStore()
	p := newTestPipeline(store)

	partnerID := int64(42)
	carrierID := int64(7)
	routeID := int64(3)
	planned := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	lines := []sales.OrderLine{
		{ID: 10, OrderID: 1, ProductID: 1, QtyOrdered: 10, UomID: 1},
	}
	err := p.Launch(context.Background(), testOrder(), lines, sales.LaunchContext{
		OverrideQuantities: map[int64]float64{10: 0},
		PartnerID:          &partnerID,
		CarrierID:          &carrierID,
		RouteID:            &routeID,
		PlannedDate:        &planned,
	})
	require.NoError(t, err)

	require.Len(t, store.pickings, 1)
	assert.Equal(t, partnerID, store.pickings[0].PartnerID)
	assert.Equal(t, carrierID, *store.pickings[0].CarrierID)
	assert.True(t, planned.Equal(store.pickings[0].ScheduledDate))

	require.Len(t, store.movements, 1)
	assert.Equal(t, routeID, *store.movements[0].RouteID)
}

func TestPipelineReusesOpenPicking(t *testing.T) {
	store := newMockPipelineStore()
	store.pickings = append(store.pickings, Picking{
		ID:            1,
		DocNumber:     "PK-2026-00001",
		OrderID:       1,
		PartnerID:     21,
		ScheduledDate: time.Now().UTC(),
		State:         PickingStateOpen,
	})
	p := newTestPipeline(store)

	lines := []sales.OrderLine{
		{ID: 10, OrderID: 1, ProductID: 1, QtyOrdered: 10, UomID: 1},
	}
	err := p.Launch(context.Background(), testOrder(), lines, sales.LaunchContext{})
	require.NoError(t, err)

	require.Len(t, store.pickings, 1)
	require.Len(t, store.movements, 1)
	assert.Equal(t, int64(1), store.movements[0].PickingID)
}
