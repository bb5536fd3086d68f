package filter

import (
	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
)

const volumetricDivisor = 6000

// ProfitCalculator computes the landed cost of sourcing a listing and the
// resulting profit at the listing's sale price.
type ProfitCalculator struct {
	cfg  config.ProfitConfig
	fees config.FeesConfig
}

func NewProfitCalculator(cfg config.ProfitConfig, fees config.FeesConfig) *ProfitCalculator {
	return &ProfitCalculator{cfg: cfg, fees: fees}
}

// Calculate prices a candidate bought for priceCNY and sold as listing.
// category is the normalized category key used for the referral rate.
func (c *ProfitCalculator) Calculate(listing entity.CandidateListing, priceCNY float64, category string) entity.ProfitBreakdown {
	dims := c.dimensions(listing)
	weight := c.cfg.DefaultWeightKG
	if listing.WeightKG != nil && *listing.WeightKG > 0 {
		weight = *listing.WeightKG
	}
	volumetric := dims[0] * dims[1] * dims[2] / volumetricDivisor
	shippingWeight := max(weight, volumetric)

	b := entity.ProfitBreakdown{SalePrice: listing.Price}
	b.SourceCost = int(priceCNY * c.cfg.ExchangeRate)
	b.DomesticShipping = int(c.cfg.DomesticShippingCNY * c.cfg.ExchangeRate)
	b.AgentFee = int(float64(b.SourceCost) * c.cfg.AgentFeeRate)
	b.InternationalShipping = int(shippingWeight * c.cfg.ShippingPerKgCNY * c.cfg.ExchangeRate)
	b.Customs = int(float64(b.SourceCost+b.InternationalShipping) * c.cfg.CustomsRate)
	b.ReferralFee = int(float64(listing.Price) * c.referralRate(category))
	if listing.IsFBA() {
		b.FulfillmentFee = c.FulfillmentFee(dims, weight)
	}

	b.TotalCost = b.SourceCost + b.DomesticShipping + b.AgentFee + b.InternationalShipping +
		b.Customs + b.ReferralFee + b.FulfillmentFee
	b.Profit = listing.Price - b.TotalCost
	if listing.Price > 0 {
		b.Margin = float64(b.Profit) / float64(listing.Price)
	}
	return b
}

// FulfillmentFee picks the first size tier whose dimension sum and weight
// limits both hold: small, then standard, then large, then the default fee.
func (c *ProfitCalculator) FulfillmentFee(dims [3]float64, weightKG float64) int {
	sum := dims[0] + dims[1] + dims[2]
	fits := func(t config.FeeTier) bool {
		return t.Fee > 0 && sum <= t.MaxDimensionSum && weightKG <= t.MaxWeightKG
	}
	if fits(c.fees.Small) {
		return c.fees.Small.Fee
	}
	for _, t := range c.fees.Standard {
		if fits(t) {
			return t.Fee
		}
	}
	for _, t := range c.fees.Large {
		if fits(t) {
			return t.Fee
		}
	}
	return c.fees.DefaultFee
}

func (c *ProfitCalculator) referralRate(category string) float64 {
	if r, ok := c.cfg.ReferralRates[category]; ok {
		return r
	}
	if r, ok := c.cfg.ReferralRates["default"]; ok {
		return r
	}
	return 0.15
}

func (c *ProfitCalculator) dimensions(l entity.CandidateListing) [3]float64 {
	if l.Dimensions != nil {
		return *l.Dimensions
	}
	var d [3]float64
	copy(d[:], c.cfg.DefaultDimensions)
	return d
}
