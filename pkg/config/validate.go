package config

import (
	"errors"
	"fmt"
	"math"
)

// Validate rejects missing or contradictory thresholds. Every problem found
// is reported; the returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	f := c.Filter
	if f.MinPrice < 0 || f.MaxPrice <= 0 || f.MinPrice > f.MaxPrice {
		add("filter price range [%d, %d] is invalid", f.MinPrice, f.MaxPrice)
	}
	if f.MinRank < 0 || f.MaxRank <= 0 || f.MinRank > f.MaxRank {
		add("filter rank range [%d, %d] is invalid", f.MinRank, f.MaxRank)
	}
	if f.MaxRating <= 0 || f.MaxRating > 5 {
		add("filter.max_rating %.2f must be in (0, 5]", f.MaxRating)
	}
	if f.MaxReviews < 0 || f.MaxVariations < 0 {
		add("filter review and variation limits must not be negative")
	}
	if _, ok := f.CategoryRankThresholds["default"]; !ok && len(f.CategoryRankThresholds) > 0 {
		add("filter.category_rank_thresholds needs a default entry")
	}

	switch c.Sales.Policy {
	case SalesPolicyOptimistic, SalesPolicyConservative:
	default:
		add("sales.policy %q must be %q or %q", c.Sales.Policy, SalesPolicyOptimistic, SalesPolicyConservative)
	}
	if _, ok := c.Sales.Coefficients["default"]; !ok {
		add("sales.coefficients needs a default entry")
	}
	for i := 1; i < len(c.Sales.Table); i++ {
		if c.Sales.Table[i].MaxRank <= c.Sales.Table[i-1].MaxRank {
			add("sales.table must be sorted by ascending max_rank")
			break
		}
	}

	m := c.Matcher
	if m.RatioThreshold <= 0 || m.RatioThreshold >= 1 {
		add("matcher.ratio_threshold %.2f must be in (0, 1)", m.RatioThreshold)
	}
	if m.ImageSize < 32 {
		add("matcher.image_size %d is too small", m.ImageSize)
	}
	if m.MaxKeypoints < 2 {
		add("matcher.max_keypoints must be at least 2")
	}
	if !sumsToOne(m.EmbeddingWeight, m.EmbeddingHistogramWeight, m.EmbeddingTitleWeight) {
		add("matcher embedding-path weights must sum to 1")
	}
	if !sumsToOne(m.FeatureWeight, m.FeatureHistogramWeight, m.FeatureTitleWeight) {
		add("matcher feature-path weights must sum to 1")
	}
	if m.EmbeddingHardFloor > m.EmbeddingSoftFloor {
		add("matcher.embedding_hard_floor must not exceed embedding_soft_floor")
	}
	if m.FeatureHardFloor > m.FeatureSoftFloor {
		add("matcher.feature_hard_floor must not exceed feature_soft_floor")
	}
	if m.MinProfitRate > m.MaxProfitRate {
		add("matcher profit-rate window [%.2f, %.2f] is invalid", m.MinProfitRate, m.MaxProfitRate)
	}
	if m.FetchConcurrency < 1 {
		add("matcher.fetch_concurrency must be at least 1")
	}

	p := c.Profit
	if p.ExchangeRate <= 0 {
		add("profit.exchange_rate must be positive")
	}
	if len(p.DefaultDimensions) != 3 {
		add("profit.default_dimensions must have three entries")
	}

	e := c.Explore
	if e.StatePath == "" {
		add("explore.state_path is required")
	}
	if e.MaxKeywords < 0 || e.MaxDurationMinutes < 0 || e.MaxCandidates < 0 {
		add("explore stop limits must not be negative")
	}
	if e.MaxDepth < 1 {
		add("explore.max_depth must be at least 1")
	}
	if e.BatchConcurrency < 1 {
		add("explore.batch_concurrency must be at least 1")
	}
	if e.DryRunThreshold < 1 {
		add("explore.dry_run_threshold must be at least 1")
	}
	if e.KeywordTimeout <= 0 {
		add("explore.keyword_timeout must be positive")
	}

	switch c.Registry.Backend {
	case RegistryBackendFile:
		if c.Registry.Path == "" {
			add("registry.path is required for the file backend")
		}
	case RegistryBackendRedis:
		if c.RedisAddr == "" {
			add("registry backend redis requires redis_addr")
		}
	default:
		add("registry.backend %q is unknown", c.Registry.Backend)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func sumsToOne(weights ...float64) bool {
	var sum float64
	for _, w := range weights {
		if w < 0 {
			return false
		}
		sum += w
	}
	return math.Abs(sum-1) < 1e-6
}
