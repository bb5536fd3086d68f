package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
	"github.com/tomichandesu/research-tool-sub000/pkg/utils"
)

const defaultCategory = "default"

// Pipeline applies the listing filter rules in a fixed order; the first
// failing rule decides the verdict.
type Pipeline struct {
	cfg        config.FilterConfig
	excluded   []string
	prohibited []string
	brands     []string
	aliases    map[string]string
	aliasNames []string
	sales      *SalesEstimator
}

func NewPipeline(cfg config.FilterConfig, sales *SalesEstimator) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		excluded:   normalizeAll(cfg.ExcludedCategories),
		prohibited: normalizeAll(cfg.ProhibitedKeywords),
		brands:     normalizeAll(cfg.ExcludedBrands),
		aliases:    make(map[string]string, len(cfg.CategoryAliases)),
		sales:      sales,
	}
	for name, key := range cfg.CategoryAliases {
		n := utils.NormalizeKeyword(name)
		p.aliases[n] = key
		p.aliasNames = append(p.aliasNames, n)
	}
	// Longest names first so the most specific alias wins a substring match.
	sort.Slice(p.aliasNames, func(i, j int) bool {
		if len(p.aliasNames[i]) != len(p.aliasNames[j]) {
			return len(p.aliasNames[i]) > len(p.aliasNames[j])
		}
		return p.aliasNames[i] < p.aliasNames[j]
	})
	return p
}

// NormalizeCategory maps a display category name to its canonical key.
// Unknown categories map to "default".
func (p *Pipeline) NormalizeCategory(category string) string {
	c := utils.NormalizeKeyword(category)
	if c == "" {
		return defaultCategory
	}
	if key, ok := p.aliases[c]; ok {
		return key
	}
	for _, name := range p.aliasNames {
		if strings.Contains(c, name) {
			return p.aliases[name]
		}
	}
	return defaultCategory
}

// Check runs listing through every rule and returns the verdict.
func (p *Pipeline) Check(l entity.CandidateListing) entity.FilterVerdict {
	category := p.NormalizeCategory(l.Category)
	reject := func(reason entity.RejectReason, format string, args ...any) entity.FilterVerdict {
		return entity.FilterVerdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
	}

	if l.Fulfillment == entity.FulfillmentDirect {
		return reject(entity.ReasonDirectSale, "sold directly by the marketplace")
	}
	if c := utils.NormalizeKeyword(l.Category); c != "" {
		for _, ex := range p.excluded {
			if strings.Contains(c, ex) {
				return reject(entity.ReasonExcludedCategory, "category %q is excluded", l.Category)
			}
		}
	}
	title := utils.NormalizeKeyword(l.Title)
	for _, kw := range p.prohibited {
		if strings.Contains(title, kw) {
			return reject(entity.ReasonProhibitedKeyword, "title contains %q", kw)
		}
	}
	for _, brand := range p.brands {
		if strings.Contains(title, brand) {
			return reject(entity.ReasonExcludedBrand, "title contains brand %q", brand)
		}
	}
	if l.Price < p.cfg.MinPrice {
		return reject(entity.ReasonPriceTooLow, "price %d below %d", l.Price, p.cfg.MinPrice)
	}
	if l.Price > p.cfg.MaxPrice {
		return reject(entity.ReasonPriceTooHigh, "price %d above %d", l.Price, p.cfg.MaxPrice)
	}
	if l.ReviewCount > p.cfg.MaxReviews {
		return reject(entity.ReasonTooManyReviews, "%d reviews above %d", l.ReviewCount, p.cfg.MaxReviews)
	}
	if l.Rating != nil && *l.Rating > p.cfg.MaxRating {
		return reject(entity.ReasonRatingTooHigh, "rating %.1f above %.1f", *l.Rating, p.cfg.MaxRating)
	}
	if l.Rank > 0 && l.Rank < p.cfg.MinRank {
		return reject(entity.ReasonRankTooStrong, "rank %d better than %d", l.Rank, p.cfg.MinRank)
	}
	if ceiling := p.RankCeiling(category, l.IsFBA()); l.Rank > ceiling {
		return reject(entity.ReasonRankTooWeak, "rank %d worse than %d for %s", l.Rank, ceiling, category)
	}
	if l.VariationCount > p.cfg.MaxVariations {
		return reject(entity.ReasonTooManyVariations, "%d variations above %d", l.VariationCount, p.cfg.MaxVariations)
	}
	if p.oversize(l) {
		return reject(entity.ReasonOversize, "exceeds %.0fcm or %.1fkg", p.cfg.MaxDimensionSumCM, p.cfg.MaxWeightKG)
	}
	if l.Rank <= 0 {
		return reject(entity.ReasonRankUnknown, "rank unknown")
	}

	return entity.FilterVerdict{
		Passed:                  true,
		EstimatedMonthlyUnits:   p.sales.MonthlyUnits(l.Rank, category),
		EstimatedMonthlyRevenue: p.sales.MonthlyRevenue(l.Rank, category, l.Price),
	}
}

// RankCeiling returns the worst acceptable rank for a category and fulfillment
// method, falling back to the "default" entry and then to MaxRank.
func (p *Pipeline) RankCeiling(category string, fba bool) int {
	th, ok := p.cfg.CategoryRankThresholds[category]
	if !ok {
		th, ok = p.cfg.CategoryRankThresholds[defaultCategory]
	}
	if !ok {
		return p.cfg.MaxRank
	}
	v := th.FBM
	if fba {
		v = th.FBA
	}
	if v <= 0 {
		return p.cfg.MaxRank
	}
	return v
}

func (p *Pipeline) oversize(l entity.CandidateListing) bool {
	if l.Dimensions != nil {
		d := l.Dimensions
		if d[0]+d[1]+d[2] > p.cfg.MaxDimensionSumCM {
			return true
		}
	}
	return l.WeightKG != nil && *l.WeightKG > p.cfg.MaxWeightKG
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := utils.NormalizeKeyword(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
