package filter

import (
	"testing"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
)

func TestProfitCalculatorDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	c := NewProfitCalculator(cfg.Profit, cfg.Fees)
	listing := entity.CandidateListing{Price: 3000, Fulfillment: entity.FulfillmentFBA}

	got := c.Calculate(listing, 20, "home_kitchen")
	want := entity.ProfitBreakdown{
		SalePrice:             3000,
		SourceCost:            460,
		DomesticShipping:      46,
		AgentFee:              13,
		InternationalShipping: 115,
		Customs:               57,
		ReferralFee:           450,
		FulfillmentFee:        318,
		TotalCost:             1459,
		Profit:                1541,
	}
	want.Margin = float64(want.Profit) / 3000
	if got != want {
		t.Fatalf("Calculate() =\n%+v\nwant\n%+v", got, want)
	}
	if !got.Profitable() {
		t.Fatal("expected profitable")
	}
}

func TestProfitCalculatorFBMHasNoFulfillmentFee(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	c := NewProfitCalculator(cfg.Profit, cfg.Fees)
	got := c.Calculate(entity.CandidateListing{Price: 3000, Fulfillment: entity.FulfillmentFBM}, 20, "home_kitchen")
	if got.FulfillmentFee != 0 {
		t.Fatalf("FulfillmentFee = %d", got.FulfillmentFee)
	}
}

func TestProfitCalculatorVolumetricWeight(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	c := NewProfitCalculator(cfg.Profit, cfg.Fees)
	dims := [3]float64{30, 20, 20} // 2kg volumetric
	got := c.Calculate(entity.CandidateListing{Price: 3000, Fulfillment: entity.FulfillmentFBM, Dimensions: &dims}, 10, "default")
	if got.InternationalShipping != int(2.0*10*23) {
		t.Fatalf("InternationalShipping = %d", got.InternationalShipping)
	}
}

func TestFulfillmentFeeTiers(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	c := NewProfitCalculator(cfg.Profit, cfg.Fees)
	cases := []struct {
		dims   [3]float64
		weight float64
		want   int
	}{
		{[3]float64{20, 15, 5}, 0.2, 288},
		{[3]float64{20, 15, 10}, 0.5, 318},
		{[3]float64{40, 30, 10}, 3, 434},
		{[3]float64{60, 50, 20}, 10, 603},
		{[3]float64{100, 100, 100}, 50, 434},
	}
	for _, tc := range cases {
		if got := c.FulfillmentFee(tc.dims, tc.weight); got != tc.want {
			t.Errorf("FulfillmentFee(%v, %.2f) = %d, want %d", tc.dims, tc.weight, got, tc.want)
		}
	}
}
