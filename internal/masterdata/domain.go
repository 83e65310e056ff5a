package masterdata

import (
	"time"
)

// ListFilters represents standard list page filters
type ListFilters struct {
	Limit    int
	Offset   int
	Search   string
	IsActive *bool

	CompanyID *int64
}

// Company represents a company entity
type Company struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SalesTeam groups orders and supplies their manual-delivery default.
type SalesTeam struct {
	ID             int64  `json:"id"`
	CompanyID      int64  `json:"company_id"`
	Name           string `json:"name"`
	ManualDelivery bool   `json:"manual_delivery"`
}

// Partner represents a customer or one of its delivery addresses. Delivery
// addresses reference the commercial partner through ParentID.
type Partner struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommercialID returns the partner owning the commercial relationship.
func (p Partner) CommercialID() int64 {
	if p.ParentID != nil {
		return *p.ParentID
	}
	return p.ID
}

// Carrier represents a delivery method.
type Carrier struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Route represents a fulfillment route. Only sale-selectable routes may be
// chosen as a per-request override.
type Route struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	SaleSelectable bool   `json:"sale_selectable"`
}

// ProductType classifies how a product is fulfilled.
type ProductType string

const (
	ProductTypeService    ProductType = "SERVICE"
	ProductTypeConsumable ProductType = "CONSUMABLE"
	ProductTypeStockable  ProductType = "STOCKABLE"
)

// Trackable reports whether the product type participates in goods movements.
func (t ProductType) Trackable() bool {
	return t == ProductTypeConsumable || t == ProductTypeStockable
}

// Product represents a product entity
type Product struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      ProductType `json:"type"`
	UnitID    int64       `json:"unit_id"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Unit represents a unit of measure. Factor relates the unit to its
// category's reference unit; Rounding is the precision step used when
// comparing quantities expressed in this unit.
type Unit struct {
	ID       int64   `json:"id"`
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Factor   float64 `json:"factor"`
	Rounding float64 `json:"rounding"`
}
