package entity

// MatchPath identifies which fusion formula produced a MatchSignal.
type MatchPath string

const (
	PathEmbedding MatchPath = "embedding"
	PathFeatures  MatchPath = "features"
	PathScreened  MatchPath = "screened"
)

// MatchSignal holds the per-pair similarity readings and the keep/reject decision.
type MatchSignal struct {
	Embedding      float64   `json:"embedding"`
	EmbeddingOK    bool      `json:"embedding_ok"`
	LocalFeature   float64   `json:"local_feature"`
	Histogram      float64   `json:"histogram"`
	TitleRelevance float64   `json:"title_relevance"`
	Combined       float64   `json:"combined"`
	Path           MatchPath `json:"path"`
	Keep           bool      `json:"keep"`
	RejectReason   string    `json:"reject_reason,omitempty"`
}

// ProfitBreakdown itemizes landed cost and fees in yen.
type ProfitBreakdown struct {
	SalePrice             int     `json:"sale_price"`
	SourceCost            int     `json:"source_cost"`
	DomesticShipping      int     `json:"domestic_shipping"`
	AgentFee              int     `json:"agent_fee"`
	InternationalShipping int     `json:"international_shipping"`
	Customs               int     `json:"customs"`
	ReferralFee           int     `json:"referral_fee"`
	FulfillmentFee        int     `json:"fulfillment_fee"`
	TotalCost             int     `json:"total_cost"`
	Profit                int     `json:"profit"`
	Margin                float64 `json:"margin"`
}

// Profitable reports whether the sale price covers every cost.
func (p ProfitBreakdown) Profitable() bool {
	return p.Profit > 0
}

// ScoredCandidate pairs a sourcing candidate with its match signal and profit.
type ScoredCandidate struct {
	Candidate SourcingCandidate `json:"candidate"`
	Signal    MatchSignal       `json:"signal"`
	Profit    ProfitBreakdown   `json:"profit"`
}

// MatchedProduct is a listing that survived filtering and found a visual match.
type MatchedProduct struct {
	Listing      CandidateListing  `json:"listing"`
	Verdict      FilterVerdict     `json:"verdict"`
	Best         ScoredCandidate   `json:"best"`
	Alternatives []ScoredCandidate `json:"alternatives,omitempty"`
	Duplicate    bool              `json:"duplicate"`
}
