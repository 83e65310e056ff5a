package sales

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockStore struct {
	orders     map[int64]*Order
	nextID     int64
	nextLineID int64
	candidates []PendingLine
}

func newMockStore() *mockStore {
	return &mockStore{orders: make(map[int64]*Order), nextID: 1, nextLineID: 100}
}

func (m *mockStore) GetOrder(_ context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Lines = append([]OrderLine(nil), o.Lines...)
	return &cp, nil
}

func (m *mockStore) ListOrders(_ context.Context, _ ListFilters) ([]Order, int, error) {
	var out []Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (m *mockStore) GetOrderLine(_ context.Context, id int64) (*OrderLine, error) {
	for _, o := range m.orders {
		for _, l := range o.Lines {
			if l.ID == id {
				return &l, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) SelectCandidateLines(_ context.Context, _, _ []int64) ([]PendingLine, error) {
	return m.candidates, nil
}

func (m *mockStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTx{store: m})
}

type mockTx struct {
	store *mockStore
}

func (t *mockTx) CreateOrder(_ context.Context, order Order) (int64, string, error) {
	id := t.store.nextID
	t.store.nextID++
	doc := fmt.Sprintf("SO-2026-%05d", id)
	order.ID = id
	order.DocNumber = doc
	t.store.orders[id] = &order
	return id, doc, nil
}

func (t *mockTx) InsertOrderLine(_ context.Context, line OrderLine) (int64, error) {
	id := t.store.nextLineID
	t.store.nextLineID++
	line.ID = id
	o := t.store.orders[line.OrderID]
	o.Lines = append(o.Lines, line)
	return id, nil
}

func (t *mockTx) LockOrder(ctx context.Context, id int64) (*Order, error) {
	return t.store.GetOrder(ctx, id)
}

func (t *mockTx) GetOrderLines(_ context.Context, orderID int64) ([]OrderLine, error) {
	o, ok := t.store.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]OrderLine(nil), o.Lines...), nil
}

func (t *mockTx) UpdateOrderStatus(_ context.Context, id int64, status OrderStatus, confirmedAt *time.Time) error {
	o, ok := t.store.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	if confirmedAt != nil {
		o.ConfirmedAt = confirmedAt
	}
	return nil
}

func (t *mockTx) SetManualDeliveryFlag(_ context.Context, id int64, manual bool) error {
	o, ok := t.store.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.ManualDelivery = manual
	return nil
}

func (t *mockTx) UpdateLineBalances(_ context.Context, lineID int64, procured, toProcure float64) error {
	for _, o := range t.store.orders {
		for i := range o.Lines {
			if o.Lines[i].ID == lineID {
				o.Lines[i].QtyProcured = procured
				o.Lines[i].QtyToProcure = toProcure
				return nil
			}
		}
	}
	return ErrNotFound
}

type mockCatalog struct {
	products map[int64]*masterdata.Product
	teams    map[int64]*masterdata.SalesTeam
}

func (m *mockCatalog) GetProduct(_ context.Context, id int64) (*masterdata.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, masterdata.ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) GetSalesTeam(_ context.Context, id int64) (*masterdata.SalesTeam, error) {
	t, ok := m.teams[id]
	if !ok {
		return nil, masterdata.ErrNotFound
	}
	return t, nil
}

type mockLauncher struct {
	calls []LaunchContext
	lines [][]OrderLine
}

func (m *mockLauncher) Launch(_ context.Context, _ *Order, lines []OrderLine, lctx LaunchContext) error {
	m.calls = append(m.calls, lctx)
	m.lines = append(m.lines, lines)
	return nil
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, shared.AuditLog) error { return nil }

func newTestService(store *mockStore, launcher *mockLauncher, catalog *mockCatalog) *Service {
	logger := slog.Default()
	ledger := NewLedger(&stubMovements{}, identityConverter{}, logger)
	gate := NewLaunchGate(launcher, logger)
	return NewService(store, catalog, ledger, gate, noopAudit{}, logger)
}

func defaultCatalog() *mockCatalog {
	return &mockCatalog{
		products: map[int64]*masterdata.Product{
			1: {ID: 1, Name: "Widget", Type: masterdata.ProductTypeStockable, UnitID: 1},
			2: {ID: 2, Name: "Install service", Type: masterdata.ProductTypeService, UnitID: 1},
		},
		teams: map[int64]*masterdata.SalesTeam{
			7: {ID: 7, Name: "Projects", ManualDelivery: true},
			8: {ID: 8, Name: "Webshop", ManualDelivery: false},
		},
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateOrderManualDeliveryDefault(t *testing.T) {
	teamID := int64(7)
	autoTeamID := int64(8)
	explicit := false

	tests := []struct {
		name string
		req  CreateOrderRequest
		want bool
	}{
		{
			name: "team default applies",
			req:  CreateOrderRequest{TeamID: &teamID},
			want: true,
		},
		{
			name: "auto team stays auto",
			req:  CreateOrderRequest{TeamID: &autoTeamID},
			want: false,
		},
		{
			name: "explicit flag beats team default",
			req:  CreateOrderRequest{TeamID: &teamID, ManualDelivery: &explicit},
			want: false,
		},
		{
			name: "no team means auto",
			req:  CreateOrderRequest{},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMockStore(), &mockLauncher{}, defaultCatalog())
			tt.req.CompanyID = 1
			tt.req.PartnerID = 20
			tt.req.Lines = []CreateOrderLineRequest{
				{ProductID: 1, QtyOrdered: 5, UomID: 1},
			}
			order, err := svc.CreateOrder(context.Background(), tt.req, 99)
			require.NoError(t, err)
			assert.Equal(t, tt.want, order.ManualDelivery)
		})
	}
}

func TestCreateOrderLineDefaults(t *testing.T) {
	svc := newTestService(newMockStore(), &mockLauncher{}, defaultCatalog())
	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CompanyID: 1,
		PartnerID: 20,
		Lines: []CreateOrderLineRequest{
			{ProductID: 1, QtyOrdered: 10, UomID: 1},
			{ProductID: 2, QtyOrdered: 1, UomID: 1},
		},
	}, 99)
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)

	assert.Equal(t, DeliveredByMovement, order.Lines[0].DeliveredMethod)
	assert.Equal(t, 10.0, order.Lines[0].QtyToProcure)
	assert.Equal(t, "Widget", order.Lines[0].Description)
	assert.Equal(t, DeliveredManually, order.Lines[1].DeliveredMethod)
	// Shipping address falls back to the order partner.
	assert.Equal(t, int64(20), order.ShippingPartnerID)
}

func TestConfirmOrderLaunchesAutomaticFulfillment(t *testing.T) {
	store := newMockStore()
	launcher := &mockLauncher{}
	svc := newTestService(store, launcher, defaultCatalog())

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CompanyID: 1,
		PartnerID: 20,
		Lines: []CreateOrderLineRequest{
			{ProductID: 1, QtyOrdered: 10, UomID: 1},
			{ProductID: 2, QtyOrdered: 1, UomID: 1},
		},
	}, 99)
	require.NoError(t, err)

	confirmed, err := svc.ConfirmOrder(context.Background(), order.ID, 99)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	require.Len(t, launcher.calls, 1)
	assert.False(t, launcher.calls[0].IsManualOverride())
	// Only movement-tracked lines launch; the service line stays out.
	require.Len(t, launcher.lines[0], 1)
	assert.Equal(t, int64(1), launcher.lines[0][0].ProductID)
}

func TestConfirmOrderSuppressesLaunchForManualDelivery(t *testing.T) {
	store := newMockStore()
	launcher := &mockLauncher{}
	svc := newTestService(store, launcher, defaultCatalog())

	manual := true
	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CompanyID:      1,
		PartnerID:      20,
		ManualDelivery: &manual,
		Lines: []CreateOrderLineRequest{
			{ProductID: 1, QtyOrdered: 10, UomID: 1},
		},
	}, 99)
	require.NoError(t, err)

	confirmed, err := svc.ConfirmOrder(context.Background(), order.ID, 99)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, confirmed.Status)
	assert.Empty(t, launcher.calls, "manual-delivery order must not launch at confirmation")
}

func TestManualOverrideBypassesSuppression(t *testing.T) {
	store := newMockStore()
	launcher := &mockLauncher{}
	svc := newTestService(store, launcher, defaultCatalog())

	manual := true
	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CompanyID:      1,
		PartnerID:      20,
		ManualDelivery: &manual,
		Lines: []CreateOrderLineRequest{
			{ProductID: 1, QtyOrdered: 10, UomID: 1},
		},
	}, 99)
	require.NoError(t, err)
	_, err = svc.ConfirmOrder(context.Background(), order.ID, 99)
	require.NoError(t, err)
	require.Empty(t, launcher.calls)

	fresh, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)

	launched, err := svc.Launch(context.Background(), fresh, fresh.Lines, LaunchContext{
		OverrideQuantities: map[int64]float64{fresh.Lines[0].ID: 6},
	})
	require.NoError(t, err)
	assert.True(t, launched)
	require.Len(t, launcher.calls, 1)
	assert.True(t, launcher.calls[0].IsManualOverride())
}

func TestSetManualDelivery(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockLauncher{}, defaultCatalog())

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CompanyID: 1,
		PartnerID: 20,
		Lines:     []CreateOrderLineRequest{{ProductID: 1, QtyOrdered: 5, UomID: 1}},
	}, 99)
	require.NoError(t, err)

	t.Run("toggles while draft", func(t *testing.T) {
		updated, err := svc.SetManualDelivery(context.Background(), order.ID, true, 99)
		require.NoError(t, err)
		assert.True(t, updated.ManualDelivery)
	})

	t.Run("frozen after confirmation", func(t *testing.T) {
		_, err := svc.ConfirmOrder(context.Background(), order.ID, 99)
		require.NoError(t, err)

		_, err = svc.SetManualDelivery(context.Background(), order.ID, false, 99)
		require.ErrorIs(t, err, ErrStateConflict)
	})
}

func TestPendingLinesFiltering(t *testing.T) {
	store := newMockStore()
	store.candidates = []PendingLine{
		{
			Line:        OrderLine{ID: 1, QtyOrdered: 10, QtyToProcure: 10},
			ProductType: string(masterdata.ProductTypeStockable),
			UomRounding: 0.01,
		},
		{
			Line:        OrderLine{ID: 2, QtyOrdered: 5, QtyToProcure: 0},
			ProductType: string(masterdata.ProductTypeStockable),
			UomRounding: 0.01,
		},
		{
			Line:        OrderLine{ID: 3, QtyOrdered: 1, QtyToProcure: 1},
			ProductType: string(masterdata.ProductTypeService),
			UomRounding: 0.01,
		},
		{
			Line:        OrderLine{ID: 4, QtyOrdered: 8, QtyToProcure: 2.5},
			ProductType: string(masterdata.ProductTypeConsumable),
			UomRounding: 0.01,
		},
	}
	svc := newTestService(store, &mockLauncher{}, defaultCatalog())

	pending, err := svc.PendingLines(context.Background(), []int64{1}, nil)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(1), pending[0].Line.ID)
	assert.Equal(t, int64(4), pending[1].Line.ID)
}

func TestRecomputeOrderBalances(t *testing.T) {
	store := newMockStore()
	launcher := &mockLauncher{}
	logger := slog.Default()
	movements := &stubMovements{byLine: map[int64][]LinkedMovement{}}
	ledger := NewLedger(movements, identityConverter{}, logger)
	gate := NewLaunchGate(launcher, logger)
	svc := NewService(store, defaultCatalog(), ledger, gate, noopAudit{}, logger)

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CompanyID: 1,
		PartnerID: 20,
		Lines:     []CreateOrderLineRequest{{ProductID: 1, QtyOrdered: 10, UomID: 1}},
	}, 99)
	require.NoError(t, err)
	lineID := order.Lines[0].ID

	movements.byLine[lineID] = []LinkedMovement{
		{ID: 1, Qty: 4, UomID: 1},
		{ID: 2, Qty: 3, UomID: 1, Cancelled: true},
	}

	require.NoError(t, svc.RecomputeOrderBalances(context.Background(), order.ID))

	fresh, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, fresh.Lines[0].QtyProcured)
	assert.Equal(t, 6.0, fresh.Lines[0].QtyToProcure)
}
