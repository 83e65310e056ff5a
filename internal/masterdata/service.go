package masterdata

import (
	"context"
	"fmt"
	"log/slog"
)

// Store is the read surface the rest of the application depends on for
// reference data lookups.
type Store interface {
	GetCompany(ctx context.Context, id int64) (*Company, error)
	GetSalesTeam(ctx context.Context, id int64) (*SalesTeam, error)
	GetPartner(ctx context.Context, id int64) (*Partner, error)
	ListDeliveryAddresses(ctx context.Context, commercialID int64) ([]Partner, error)
	GetCarrier(ctx context.Context, id int64) (*Carrier, error)
	GetRoute(ctx context.Context, id int64) (*Route, error)
	ListSaleSelectableRoutes(ctx context.Context) ([]Route, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	GetUnit(ctx context.Context, id int64) (*Unit, error)
	ListUnits(ctx context.Context) ([]Unit, error)
}

// Service exposes reference data with the lookups sales, stock and the
// delivery request flow need.
type Service struct {
	repo   Store
	logger *slog.Logger
}

func NewService(repo Store, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.ListProducts(ctx, filters)
}

func (s *Service) GetUnit(ctx context.Context, id int64) (*Unit, error) {
	return s.repo.GetUnit(ctx, id)
}

func (s *Service) ListUnits(ctx context.Context) ([]Unit, error) {
	return s.repo.ListUnits(ctx)
}

func (s *Service) GetPartner(ctx context.Context, id int64) (*Partner, error) {
	return s.repo.GetPartner(ctx, id)
}

func (s *Service) GetCarrier(ctx context.Context, id int64) (*Carrier, error) {
	return s.repo.GetCarrier(ctx, id)
}

func (s *Service) GetRoute(ctx context.Context, id int64) (*Route, error) {
	return s.repo.GetRoute(ctx, id)
}

func (s *Service) ListSaleSelectableRoutes(ctx context.Context) ([]Route, error) {
	return s.repo.ListSaleSelectableRoutes(ctx)
}

func (s *Service) GetSalesTeam(ctx context.Context, id int64) (*SalesTeam, error) {
	return s.repo.GetSalesTeam(ctx, id)
}

// ConvertToUnit converts qty expressed in fromID into the unit toID.
func (s *Service) ConvertToUnit(ctx context.Context, qty float64, fromID, toID int64) (float64, error) {
	if fromID == toID {
		return qty, nil
	}
	from, err := s.repo.GetUnit(ctx, fromID)
	if err != nil {
		return 0, fmt.Errorf("load source unit %d: %w", fromID, err)
	}
	to, err := s.repo.GetUnit(ctx, toID)
	if err != nil {
		return 0, fmt.Errorf("load target unit %d: %w", toID, err)
	}
	return ConvertQty(qty, *from, *to)
}
