package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing masterdata record.
var ErrNotFound = errors.New("record not found")

// Repository provides PostgreSQL backed access to reference data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetCompany(ctx context.Context, id int64) (*Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at, updated_at FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) GetSalesTeam(ctx context.Context, id int64) (*SalesTeam, error) {
	var t SalesTeam
	err := r.pool.QueryRow(ctx,
		`SELECT id, company_id, name, manual_delivery FROM sales_teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.CompanyID, &t.Name, &t.ManualDelivery)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) GetPartner(ctx context.Context, id int64) (*Partner, error) {
	var p Partner
	err := r.pool.QueryRow(ctx,
		`SELECT id, company_id, name, parent_id, is_active, created_at, updated_at
		 FROM partners WHERE id = $1`, id,
	).Scan(&p.ID, &p.CompanyID, &p.Name, &p.ParentID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListDeliveryAddresses returns the commercial partner plus its child
// addresses, the candidates allowed as a delivery-request destination.
func (r *Repository) ListDeliveryAddresses(ctx context.Context, commercialID int64) ([]Partner, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, company_id, name, parent_id, is_active, created_at, updated_at
		 FROM partners
		 WHERE id = $1 OR parent_id = $1
		 ORDER BY id`, commercialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partners []Partner
	for rows.Next() {
		var p Partner
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.ParentID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

func (r *Repository) GetCarrier(ctx context.Context, id int64) (*Carrier, error) {
	var c Carrier
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, is_active FROM carriers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) GetRoute(ctx context.Context, id int64) (*Route, error) {
	var rt Route
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, sale_selectable FROM routes WHERE id = $1`, id,
	).Scan(&rt.ID, &rt.Name, &rt.SaleSelectable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rt, nil
}

func (r *Repository) ListSaleSelectableRoutes(ctx context.Context) ([]Route, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, sale_selectable FROM routes WHERE sale_selectable ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var rt Route
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.SaleSelectable); err != nil {
			return nil, err
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, type, unit_id, is_active, created_at, updated_at
		 FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.UnitID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if filters.IsActive != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argPos)
		args = append(args, *filters.IsActive)
		argPos++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filters.Search+"%")
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, code, name, type, unit_id, is_active, created_at, updated_at
		FROM products
		%s
		ORDER BY code
		LIMIT $%d OFFSET $%d
	`, where, argPos, argPos+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.UnitID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *Repository) GetUnit(ctx context.Context, id int64) (*Unit, error) {
	var u Unit
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, category, factor, rounding FROM units WHERE id = $1`, id,
	).Scan(&u.ID, &u.Code, &u.Name, &u.Category, &u.Factor, &u.Rounding)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, category, factor, rounding FROM units ORDER BY category, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Code, &u.Name, &u.Category, &u.Factor, &u.Rounding); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
