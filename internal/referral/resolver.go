package referral

import (
	"github.com/shopspring/decimal"

	"treasury/internal/domain"
)

// Referral is the resolved fee recipient of a credited request.
type Referral struct {
	Party       string
	Address     string
	FeeFraction decimal.Decimal
	Known       bool
}

// Resolver is a pure lookup over the loaded request and the registry.
type Resolver struct {
	registry *Registry
}

func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve returns the referral carried by req, or false when the request was
// created without attribution.
func (r *Resolver) Resolve(req *domain.DonationRequest) (Referral, bool) {
	if req == nil || !req.HasReferral() {
		return Referral{}, false
	}
	party, known := r.registry.Lookup(req.ReferralAttribution)
	if party.Name == "" {
		return Referral{}, false
	}
	return Referral{
		Party:       party.Name,
		Address:     party.Address,
		FeeFraction: party.FeeFraction,
		Known:       known,
	}, true
}
