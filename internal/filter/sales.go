package filter

import (
	"math"
	"sort"

	"github.com/tomichandesu/research-tool-sub000/pkg/config"
)

// SalesEstimator converts a sales rank into estimated monthly units.
type SalesEstimator struct {
	table        []config.RankUnits
	coefficients map[string]config.PowerLaw
	policy       string
}

func NewSalesEstimator(cfg config.SalesConfig) *SalesEstimator {
	table := append([]config.RankUnits(nil), cfg.Table...)
	sort.Slice(table, func(i, j int) bool { return table[i].MaxRank < table[j].MaxRank })
	policy := cfg.Policy
	if policy == "" {
		policy = config.SalesPolicyOptimistic
	}
	return &SalesEstimator{table: table, coefficients: cfg.Coefficients, policy: policy}
}

// MonthlyUnits estimates monthly unit sales. Ranks <= 0 are unknown and yield 0.
// The optimistic policy takes the larger of the table and power-law estimates;
// the conservative policy takes the smaller.
func (e *SalesEstimator) MonthlyUnits(rank int, category string) int {
	if rank <= 0 {
		return 0
	}
	table := e.TableUnits(rank)
	formula := e.FormulaUnits(rank, category)
	if e.policy == config.SalesPolicyConservative {
		return min(table, formula)
	}
	return max(table, formula)
}

// MonthlyRevenue is MonthlyUnits multiplied by price.
func (e *SalesEstimator) MonthlyRevenue(rank int, category string, price int) int {
	return e.MonthlyUnits(rank, category) * price
}

// TableUnits looks the rank up in the step table. Ranks beyond the table sell one unit.
func (e *SalesEstimator) TableUnits(rank int) int {
	if rank <= 0 {
		return 0
	}
	for _, row := range e.table {
		if rank <= row.MaxRank {
			return row.Units
		}
	}
	return 1
}

// FormulaUnits evaluates max(1, floor(a * rank^-b * 30)) with per-category coefficients.
func (e *SalesEstimator) FormulaUnits(rank int, category string) int {
	if rank <= 0 {
		return 0
	}
	law, ok := e.coefficients[category]
	if !ok {
		law = e.coefficients["default"]
	}
	if law.A <= 0 {
		return 1
	}
	daily := law.A * math.Pow(float64(rank), -law.B)
	return max(1, int(daily*30))
}
