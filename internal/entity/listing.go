package entity

// Fulfillment describes who ships a marketplace listing.
type Fulfillment string

const (
	FulfillmentFBA    Fulfillment = "fba"
	FulfillmentFBM    Fulfillment = "fbm"
	FulfillmentDirect Fulfillment = "direct"
)

// CandidateListing mirrors one product found on the destination marketplace.
// Rating, Dimensions and WeightKG are nil when the page did not expose them.
type CandidateListing struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Price          int         `json:"price"`
	ImageURL       string      `json:"image_url"`
	ProductURL     string      `json:"product_url"`
	Rank           int         `json:"rank"`
	Category       string      `json:"category"`
	ReviewCount    int         `json:"review_count"`
	Rating         *float64    `json:"rating,omitempty"`
	Fulfillment    Fulfillment `json:"fulfillment"`
	VariationCount int         `json:"variation_count"`
	Dimensions     *[3]float64 `json:"dimensions,omitempty"`
	WeightKG       *float64    `json:"weight_kg,omitempty"`
	SellerName     string      `json:"seller_name,omitempty"`
}

// IsFBA reports whether the listing is fulfilled by the marketplace on behalf of a third party.
func (l CandidateListing) IsFBA() bool {
	return l.Fulfillment == FulfillmentFBA
}

// SourcingCandidate mirrors one product on the source marketplace.
type SourcingCandidate struct {
	PriceCNY   float64 `json:"price_cny"`
	ImageURL   string  `json:"image_url"`
	ProductURL string  `json:"product_url"`
	Title      string  `json:"title,omitempty"`
	MinOrder   int     `json:"min_order"`
	ShopName   string  `json:"shop_name,omitempty"`
	ShopURL    string  `json:"shop_url,omitempty"`
}
