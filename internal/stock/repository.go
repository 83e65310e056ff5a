package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidStatus = errors.New("invalid status transition")
)

// Repository provides PostgreSQL backed persistence for pickings and
// movements. It also serves the sales package as its movement reader.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	FindOpenPicking(ctx context.Context, orderID, partnerID int64, carrierID *int64, scheduledDate time.Time) (*Picking, error)
	CreatePicking(ctx context.Context, p Picking) (int64, string, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	LockMovement(ctx context.Context, id int64) (*Movement, error)
	UpdateMovementState(ctx context.Context, id int64, state MovementState) error
	SetMovementScrapped(ctx context.Context, id int64) error
	UpdateMovementQty(ctx context.Context, id int64, qty float64) error
	UpdateLineBalances(ctx context.Context, lineID int64, procured, toProcure float64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// LinkedMovements implements sales.MovementReader.
func (r *Repository) LinkedMovements(ctx context.Context, lineIDs []int64) (map[int64][]sales.LinkedMovement, error) {
	if len(lineIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, order_line_id, qty, uom_id, state, scrapped
		FROM stock_movements
		WHERE order_line_id = ANY($1)
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, lineIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]sales.LinkedMovement)
	for rows.Next() {
		var (
			m      sales.LinkedMovement
			lineID int64
			state  MovementState
		)
		if err := rows.Scan(&m.ID, &lineID, &m.Qty, &m.UomID, &state, &m.Scrapped); err != nil {
			return nil, err
		}
		m.Cancelled = state == MovementStateCancelled
		out[lineID] = append(out[lineID], m)
	}
	return out, rows.Err()
}

// GetPicking retrieves a picking with its movements.
func (r *Repository) GetPicking(ctx context.Context, id int64) (*Picking, error) {
	query := `
		SELECT id, doc_number, order_id, partner_id, carrier_id, scheduled_date,
		       state, created_at, updated_at
		FROM stock_pickings
		WHERE id = $1
	`
	var p Picking
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.DocNumber, &p.OrderID, &p.PartnerID, &p.CarrierID,
		&p.ScheduledDate, &p.State, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	movements, err := r.getPickingMovements(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Movements = movements
	return &p, nil
}

// ListPickingsForOrder retrieves all pickings created for an order.
func (r *Repository) ListPickingsForOrder(ctx context.Context, orderID int64) ([]Picking, error) {
	query := `
		SELECT id, doc_number, order_id, partner_id, carrier_id, scheduled_date,
		       state, created_at, updated_at
		FROM stock_pickings
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pickings []Picking
	for rows.Next() {
		var p Picking
		if err := rows.Scan(
			&p.ID, &p.DocNumber, &p.OrderID, &p.PartnerID, &p.CarrierID,
			&p.ScheduledDate, &p.State, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		pickings = append(pickings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range pickings {
		movements, err := r.getPickingMovements(ctx, pickings[i].ID)
		if err != nil {
			return nil, err
		}
		pickings[i].Movements = movements
	}
	return pickings, nil
}

// GetMovement retrieves a movement by ID.
func (r *Repository) GetMovement(ctx context.Context, id int64) (*Movement, error) {
	return scanMovement(r.pool.QueryRow(ctx, movementSelect+` WHERE id = $1`, id))
}

const movementSelect = `
	SELECT id, picking_id, order_line_id, product_id, qty, uom_id, state,
	       scrapped, route_id, created_at, updated_at
	FROM stock_movements`

func scanMovement(row pgx.Row) (*Movement, error) {
	var m Movement
	err := row.Scan(
		&m.ID, &m.PickingID, &m.OrderLineID, &m.ProductID, &m.Qty, &m.UomID,
		&m.State, &m.Scrapped, &m.RouteID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) getPickingMovements(ctx context.Context, pickingID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, movementSelect+` WHERE picking_id = $1 ORDER BY id`, pickingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(
			&m.ID, &m.PickingID, &m.OrderLineID, &m.ProductID, &m.Qty, &m.UomID,
			&m.State, &m.Scrapped, &m.RouteID, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

// FindOpenPicking locates an open picking for the same order, destination,
// day and carrier so a new launch rides an existing shipment.
func (t *txRepo) FindOpenPicking(ctx context.Context, orderID, partnerID int64, carrierID *int64, scheduledDate time.Time) (*Picking, error) {
	query := `
		SELECT id, doc_number, order_id, partner_id, carrier_id, scheduled_date,
		       state, created_at, updated_at
		FROM stock_pickings
		WHERE order_id = $1
		  AND partner_id = $2
		  AND carrier_id IS NOT DISTINCT FROM $3
		  AND scheduled_date::date = $4::date
		  AND state = 'OPEN'
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`
	var p Picking
	err := t.tx.QueryRow(ctx, query, orderID, partnerID, carrierID, scheduledDate).Scan(
		&p.ID, &p.DocNumber, &p.OrderID, &p.PartnerID, &p.CarrierID,
		&p.ScheduledDate, &p.State, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *txRepo) CreatePicking(ctx context.Context, p Picking) (int64, string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('stock_picking_doc_seq')`).Scan(&seq); err != nil {
		return 0, "", fmt.Errorf("allocate doc number: %w", err)
	}
	docNumber := fmt.Sprintf("PK-%s-%05d", time.Now().UTC().Format("2006"), seq)

	query := `
		INSERT INTO stock_pickings (doc_number, order_id, partner_id, carrier_id, scheduled_date, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		docNumber, p.OrderID, p.PartnerID, p.CarrierID, p.ScheduledDate, PickingStateOpen,
	).Scan(&id)
	if err != nil {
		return 0, "", err
	}
	return id, docNumber, nil
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	query := `
		INSERT INTO stock_movements (picking_id, order_line_id, product_id, qty,
		                             uom_id, state, scrapped, route_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		m.PickingID, m.OrderLineID, m.ProductID, m.Qty, m.UomID,
		m.State, m.Scrapped, m.RouteID,
	).Scan(&id)
	return id, err
}

func (t *txRepo) LockMovement(ctx context.Context, id int64) (*Movement, error) {
	return scanMovement(t.tx.QueryRow(ctx, movementSelect+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateMovementState(ctx context.Context, id int64, state MovementState) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE stock_movements SET state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetMovementScrapped(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE stock_movements SET scrapped = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) UpdateMovementQty(ctx context.Context, id int64, qty float64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE stock_movements SET qty = $2, updated_at = NOW() WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLineBalances writes a sales order line's recomputed procured balance.
// Lives here so a launch and its ledger update commit atomically.
func (t *txRepo) UpdateLineBalances(ctx context.Context, lineID int64, procured, toProcure float64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales_order_lines
		SET qty_procured = $2, qty_to_procure = $3, updated_at = NOW()
		WHERE id = $1
	`, lineID, procured, toProcure)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
