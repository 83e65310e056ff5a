package stock

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockMovementStore struct {
	pickings  map[int64]*Picking
	movements map[int64]*Movement
}

func newMockMovementStore() *mockMovementStore {
	return &mockMovementStore{
		pickings:  make(map[int64]*Picking),
		movements: make(map[int64]*Movement),
	}
}

func (m *mockMovementStore) GetPicking(_ context.Context, id int64) (*Picking, error) {
	p, ok := m.pickings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockMovementStore) ListPickingsForOrder(_ context.Context, orderID int64) ([]Picking, error) {
	var out []Picking
	for _, p := range m.pickings {
		if p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockMovementStore) GetMovement(_ context.Context, id int64) (*Movement, error) {
	mv, ok := m.movements[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mv
	return &cp, nil
}

func (m *mockMovementStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockMovementTx{store: m})
}

type mockMovementTx struct {
	mockPipelineTx

	store *mockMovementStore
}

func (t *mockMovementTx) LockMovement(_ context.Context, id int64) (*Movement, error) {
	mv, ok := t.store.movements[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mv
	return &cp, nil
}

func (t *mockMovementTx) UpdateMovementState(_ context.Context, id int64, state MovementState) error {
	t.store.movements[id].State = state
	return nil
}

func (t *mockMovementTx) SetMovementScrapped(_ context.Context, id int64) error {
	t.store.movements[id].Scrapped = true
	return nil
}

func (t *mockMovementTx) UpdateMovementQty(_ context.Context, id int64, qty float64) error {
	t.store.movements[id].Qty = qty
	return nil
}

type recordingRefresher struct {
	orders []int64
}

func (r *recordingRefresher) RecomputeOrderBalances(_ context.Context, orderID int64) error {
	r.orders = append(r.orders, orderID)
	return nil
}

func lineRef(id int64) *int64 { return &id }

func newMovementFixture() (*Service, *mockMovementStore, *recordingRefresher) {
	store := newMockMovementStore()
	store.pickings[1] = &Picking{ID: 1, DocNumber: "PK-2026-00001", OrderID: 42, PartnerID: 21, State: PickingStateOpen}
	store.movements[100] = &Movement{ID: 100, PickingID: 1, OrderLineID: lineRef(10), ProductID: 1, Qty: 5, UomID: 1, State: MovementStatePending}
	refresher := &recordingRefresher{}
	svc := NewService(store, refresher, nil, slog.Default())
	return svc, store, refresher
}

// ============================================================================
// TESTS
// ============================================================================

func TestCancelMovementRefreshesOrderBalances(t *testing.T) {
	svc, store, refresher := newMovementFixture()

	err := svc.CancelMovement(context.Background(), 100, 7)
	require.NoError(t, err)

	assert.Equal(t, MovementStateCancelled, store.movements[100].State)
	assert.Equal(t, []int64{42}, refresher.orders)
}

func TestCancelMovementRejectsDone(t *testing.T) {
	svc, store, refresher := newMovementFixture()
	store.movements[100].State = MovementStateDone

	err := svc.CancelMovement(context.Background(), 100, 7)
	require.ErrorIs(t, err, ErrInvalidStatus)

	assert.Equal(t, MovementStateDone, store.movements[100].State)
	assert.Empty(t, refresher.orders)
}

func TestCompleteMovement(t *testing.T) {
	svc, store, refresher := newMovementFixture()

	err := svc.CompleteMovement(context.Background(), 100, 7)
	require.NoError(t, err)
	assert.Equal(t, MovementStateDone, store.movements[100].State)
	assert.Equal(t, []int64{42}, refresher.orders)

	err = svc.CompleteMovement(context.Background(), 100, 7)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestScrapMovementStillRefreshes(t *testing.T) {
	svc, store, refresher := newMovementFixture()
	store.movements[100].State = MovementStateDone

	// Scrapping a delivered movement removes it from the procured total,
	// so the order balance must be recomputed.
	err := svc.ScrapMovement(context.Background(), 100, 7)
	require.NoError(t, err)

	assert.True(t, store.movements[100].Scrapped)
	assert.Equal(t, []int64{42}, refresher.orders)
}

func TestUpdateMovementQty(t *testing.T) {
	svc, store, refresher := newMovementFixture()

	err := svc.UpdateMovementQty(context.Background(), 100, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, 3.0, store.movements[100].Qty)
	assert.Equal(t, []int64{42}, refresher.orders)

	store.movements[100].State = MovementStateDone
	err = svc.UpdateMovementQty(context.Background(), 100, 2, 7)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 3.0, store.movements[100].Qty)
}

func TestUnlinkedMovementSkipsRefresh(t *testing.T) {
	svc, store, refresher := newMovementFixture()
	store.movements[200] = &Movement{ID: 200, PickingID: 1, ProductID: 2, Qty: 1, UomID: 1, State: MovementStatePending}

	err := svc.CancelMovement(context.Background(), 200, 7)
	require.NoError(t, err)

	assert.Equal(t, MovementStateCancelled, store.movements[200].State)
	assert.Empty(t, refresher.orders)
}

func TestMovementNotFound(t *testing.T) {
	svc, _, _ := newMovementFixture()

	err := svc.CompleteMovement(context.Background(), 999, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}
