package manualdelivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/sales"
)

// PendingSource lists the lines still waiting for delivery.
type PendingSource interface {
	PendingLines(ctx context.Context, orderIDs, lineIDs []int64) ([]sales.PendingLine, error)
}

// PartnerDirectory resolves partners for commercial-entity checks.
type PartnerDirectory interface {
	GetPartner(ctx context.Context, id int64) (*masterdata.Partner, error)
}

// Builder assembles a delivery request's defaults from a selection of orders
// or lines.
type Builder struct {
	pending  PendingSource
	partners PartnerDirectory
}

func NewBuilder(pending PendingSource, partners PartnerDirectory) *Builder {
	return &Builder{pending: pending, partners: partners}
}

// BuildDefaults resolves the selection into a request prefilled with every
// pending line at its full remaining balance. The selection must resolve to
// one company, one commercial partner and one delivery destination; the
// carrier prefills only when all selected orders agree on it.
func (b *Builder) BuildDefaults(ctx context.Context, sel OpenRequest, createdBy int64) (*DeliveryRequest, error) {
	pendings, err := b.pending.PendingLines(ctx, sel.OrderIDs, sel.LineIDs)
	if err != nil {
		return nil, fmt.Errorf("list pending lines: %w", err)
	}
	if len(pendings) == 0 {
		return nil, ErrNothingPending
	}

	companyID, err := b.resolveCompany(pendings)
	if err != nil {
		return nil, err
	}
	commercialID, err := b.resolveCommercialPartner(ctx, pendings)
	if err != nil {
		return nil, err
	}
	partnerID, err := b.resolveDestination(pendings)
	if err != nil {
		return nil, err
	}
	carrierID := resolveCarrier(pendings)

	req := &DeliveryRequest{
		ID:                  uuid.New(),
		CompanyID:           companyID,
		CommercialPartnerID: commercialID,
		PartnerID:           partnerID,
		CarrierID:           carrierID,
		CreatedBy:           createdBy,
		CreatedAt:           time.Now().UTC(),
	}
	for _, p := range pendings {
		req.Lines = append(req.Lines, RequestLine{
			OrderLineID:    p.Line.ID,
			OrderID:        p.OrderID,
			OrderDocNumber: p.OrderDocNumber,
			ProductID:      p.Line.ProductID,
			Description:    p.Line.Description,
			QtyOrdered:     p.Line.QtyOrdered,
			QtyProcured:    p.Line.QtyProcured,
			UomID:          p.Line.UomID,
			UomRounding:    p.UomRounding,
			Quantity:       p.Line.QtyToProcure,
		})
	}
	return req, nil
}

func (b *Builder) resolveCompany(pendings []sales.PendingLine) (int64, error) {
	companyID := pendings[0].CompanyID
	for _, p := range pendings[1:] {
		if p.CompanyID != companyID {
			return 0, ErrAmbiguousCompany
		}
	}
	return companyID, nil
}

func (b *Builder) resolveCommercialPartner(ctx context.Context, pendings []sales.PendingLine) (int64, error) {
	var commercialID int64
	seen := make(map[int64]bool)
	for _, p := range pendings {
		if seen[p.PartnerID] {
			continue
		}
		seen[p.PartnerID] = true
		partner, err := b.partners.GetPartner(ctx, p.PartnerID)
		if err != nil {
			return 0, fmt.Errorf("resolve partner %d: %w", p.PartnerID, err)
		}
		id := partner.CommercialID()
		if commercialID == 0 {
			commercialID = id
		} else if commercialID != id {
			return 0, fmt.Errorf("%w: multiple commercial partners", ErrAmbiguousPartner)
		}
	}
	return commercialID, nil
}

// resolveDestination prefers a shared shipping address and falls back to a
// shared ordering partner.
func (b *Builder) resolveDestination(pendings []sales.PendingLine) (int64, error) {
	shipping := distinct(pendings, func(p sales.PendingLine) int64 { return p.ShippingID })
	if len(shipping) == 1 {
		return shipping[0], nil
	}
	billing := distinct(pendings, func(p sales.PendingLine) int64 { return p.PartnerID })
	if len(billing) == 1 {
		return billing[0], nil
	}
	return 0, fmt.Errorf("%w: no common delivery address", ErrAmbiguousPartner)
}

func resolveCarrier(pendings []sales.PendingLine) *int64 {
	var carrierID *int64
	for i, p := range pendings {
		if i == 0 {
			carrierID = p.CarrierID
			continue
		}
		switch {
		case carrierID == nil && p.CarrierID == nil:
		case carrierID != nil && p.CarrierID != nil && *carrierID == *p.CarrierID:
		default:
			return nil
		}
	}
	return carrierID
}

func distinct(pendings []sales.PendingLine, key func(sales.PendingLine) int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, p := range pendings {
		id := key(p)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
