package entity

// RejectReason is a stable code describing why a listing was dropped.
type RejectReason string

const (
	ReasonNone              RejectReason = ""
	ReasonDirectSale        RejectReason = "direct_sale"
	ReasonExcludedCategory  RejectReason = "excluded_category"
	ReasonProhibitedKeyword RejectReason = "prohibited_keyword"
	ReasonExcludedBrand     RejectReason = "excluded_brand"
	ReasonPriceTooLow       RejectReason = "price_too_low"
	ReasonPriceTooHigh      RejectReason = "price_too_high"
	ReasonTooManyReviews    RejectReason = "too_many_reviews"
	ReasonRatingTooHigh     RejectReason = "rating_too_high"
	ReasonRankTooStrong     RejectReason = "rank_too_strong"
	ReasonRankTooWeak       RejectReason = "rank_too_weak"
	ReasonTooManyVariations RejectReason = "too_many_variations"
	ReasonOversize          RejectReason = "oversize"
	ReasonRankUnknown       RejectReason = "rank_unknown"
)

// FilterVerdict is the outcome of running a listing through the filter pipeline.
type FilterVerdict struct {
	Passed                  bool         `json:"passed"`
	Reason                  RejectReason `json:"reason,omitempty"`
	Detail                  string       `json:"detail,omitempty"`
	EstimatedMonthlyUnits   int          `json:"estimated_monthly_units"`
	EstimatedMonthlyRevenue int          `json:"estimated_monthly_revenue"`
}
