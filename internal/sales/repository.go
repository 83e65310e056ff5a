package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidStatus = errors.New("invalid status transition")
	ErrStateConflict = errors.New("order state forbids this change")
)

// ListFilters narrows order listings.
type ListFilters struct {
	CompanyID      *int64
	Status         *OrderStatus
	ManualDelivery *bool
	Limit          int
	Offset         int
}

// Repository provides PostgreSQL backed persistence for sales orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateOrder(ctx context.Context, order Order) (int64, string, error)
	InsertOrderLine(ctx context.Context, line OrderLine) (int64, error)
	LockOrder(ctx context.Context, id int64) (*Order, error)
	GetOrderLines(ctx context.Context, orderID int64) ([]OrderLine, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus, confirmedAt *time.Time) error
	SetManualDeliveryFlag(ctx context.Context, id int64, manual bool) error
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

const orderColumns = `id, doc_number, company_id, partner_id, shipping_partner_id, carrier_id,
	       team_id, manual_delivery, status, notes, created_by, confirmed_at,
	       created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.DocNumber, &o.CompanyID, &o.PartnerID, &o.ShippingPartnerID,
		&o.CarrierID, &o.TeamID, &o.ManualDelivery, &o.Status, &o.Notes,
		&o.CreatedBy, &o.ConfirmedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// GetOrder retrieves an order by ID with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders WHERE id = $1`
	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	lines, err := queryOrderLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return o, nil
}

// ListOrders retrieves orders matching filters.
func (r *Repository) ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if filters.CompanyID != nil {
		where += fmt.Sprintf(" AND company_id = $%d", argPos)
		args = append(args, *filters.CompanyID)
		argPos++
	}
	if filters.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *filters.Status)
		argPos++
	}
	if filters.ManualDelivery != nil {
		where += fmt.Sprintf(" AND manual_delivery = $%d", argPos)
		args = append(args, *filters.ManualDelivery)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sales_orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+orderColumns+` FROM sales_orders %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, argPos, argPos+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.DocNumber, &o.CompanyID, &o.PartnerID, &o.ShippingPartnerID,
			&o.CarrierID, &o.TeamID, &o.ManualDelivery, &o.Status, &o.Notes,
			&o.CreatedBy, &o.ConfirmedAt, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// GetOrderLine retrieves a single order line.
func (r *Repository) GetOrderLine(ctx context.Context, id int64) (*OrderLine, error) {
	query := `
		SELECT id, order_id, product_id, description, qty_ordered, uom_id,
		       unit_price, delivered_method, qty_procured, qty_to_procure,
		       line_order, created_at, updated_at
		FROM sales_order_lines
		WHERE id = $1
	`
	var l OrderLine
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.OrderID, &l.ProductID, &l.Description, &l.QtyOrdered,
		&l.UomID, &l.UnitPrice, &l.DeliveredMethod, &l.QtyProcured,
		&l.QtyToProcure, &l.LineOrder, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryOrderLines(ctx context.Context, q querier, orderID int64) ([]OrderLine, error) {
	query := `
		SELECT id, order_id, product_id, description, qty_ordered, uom_id,
		       unit_price, delivered_method, qty_procured, qty_to_procure,
		       line_order, created_at, updated_at
		FROM sales_order_lines
		WHERE order_id = $1
		ORDER BY line_order, id
	`
	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.ProductID, &l.Description, &l.QtyOrdered,
			&l.UomID, &l.UnitPrice, &l.DeliveredMethod, &l.QtyProcured,
			&l.QtyToProcure, &l.LineOrder, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// SelectCandidateLines loads order lines with the order and product context a
// delivery request builder needs. Selection is by explicit line IDs, by
// order IDs, or both; results come back in document order.
func (r *Repository) SelectCandidateLines(ctx context.Context, orderIDs, lineIDs []int64) ([]PendingLine, error) {
	if len(orderIDs) == 0 && len(lineIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT l.id, l.order_id, l.product_id, l.description, l.qty_ordered,
		       l.uom_id, l.unit_price, l.delivered_method, l.qty_procured,
		       l.qty_to_procure, l.line_order, l.created_at, l.updated_at,
		       o.doc_number, o.company_id, o.partner_id, o.shipping_partner_id,
		       o.carrier_id, p.type, u.rounding
		FROM sales_order_lines l
		JOIN sales_orders o ON o.id = l.order_id
		JOIN products p ON p.id = l.product_id
		JOIN units u ON u.id = l.uom_id
		WHERE (l.order_id = ANY($1) OR l.id = ANY($2))
		  AND o.status = 'CONFIRMED'
		ORDER BY o.id, l.line_order, l.id
	`
	rows, err := r.pool.Query(ctx, query, orderIDs, lineIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingLine
	for rows.Next() {
		var pl PendingLine
		l := &pl.Line
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.ProductID, &l.Description, &l.QtyOrdered,
			&l.UomID, &l.UnitPrice, &l.DeliveredMethod, &l.QtyProcured,
			&l.QtyToProcure, &l.LineOrder, &l.CreatedAt, &l.UpdatedAt,
			&pl.OrderDocNumber, &pl.CompanyID, &pl.PartnerID, &pl.ShippingID,
			&pl.CarrierID, &pl.ProductType, &pl.UomRounding,
		); err != nil {
			return nil, err
		}
		pl.OrderID = l.OrderID
		out = append(out, pl)
	}
	return out, rows.Err()
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) CreateOrder(ctx context.Context, order Order) (int64, string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('sales_order_doc_seq')`).Scan(&seq); err != nil {
		return 0, "", fmt.Errorf("allocate doc number: %w", err)
	}
	docNumber := fmt.Sprintf("SO-%s-%05d", time.Now().UTC().Format("2006"), seq)

	query := `
		INSERT INTO sales_orders (doc_number, company_id, partner_id, shipping_partner_id,
		                          carrier_id, team_id, manual_delivery, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		docNumber, order.CompanyID, order.PartnerID, order.ShippingPartnerID,
		order.CarrierID, order.TeamID, order.ManualDelivery, order.Status,
		order.Notes, order.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, "", err
	}
	return id, docNumber, nil
}

func (t *txRepo) InsertOrderLine(ctx context.Context, line OrderLine) (int64, error) {
	query := `
		INSERT INTO sales_order_lines (order_id, product_id, description, qty_ordered,
		                               uom_id, unit_price, delivered_method,
		                               qty_procured, qty_to_procure, line_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		line.OrderID, line.ProductID, line.Description, line.QtyOrdered,
		line.UomID, line.UnitPrice, line.DeliveredMethod,
		line.QtyProcured, line.QtyToProcure, line.LineOrder,
	).Scan(&id)
	return id, err
}

// LockOrder loads an order row under FOR UPDATE so status transitions and
// flag changes serialize.
func (t *txRepo) LockOrder(ctx context.Context, id int64) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders WHERE id = $1 FOR UPDATE`
	return scanOrder(t.tx.QueryRow(ctx, query, id))
}

func (t *txRepo) GetOrderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	return queryOrderLines(ctx, t.tx, orderID)
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus, confirmedAt *time.Time) error {
	query := `
		UPDATE sales_orders
		SET status = $2, confirmed_at = COALESCE($3, confirmed_at), updated_at = NOW()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query, id, status, confirmedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetManualDeliveryFlag(ctx context.Context, id int64, manual bool) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE sales_orders SET manual_delivery = $2, updated_at = NOW() WHERE id = $1`,
		id, manual)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

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
