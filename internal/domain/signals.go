package domain

import "time"

// SampleProduct is a single product observed by the research collaborator.
type SampleProduct struct {
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Vendor string  `json:"vendor,omitempty"`
}

// PriceTier enumerates the normalized pricing posture of a storefront.
type PriceTier string

const (
	TierLuxury   PriceTier = "luxury"
	TierMid      PriceTier = "mid"
	TierDiscount PriceTier = "discount"
	TierMixed    PriceTier = "mixed"
)

// SignalSet holds everything observed about a lead's storefront: the raw
// fields captured by the research collaborator plus the AI-normalized fields
// merged in by classification. One per lead, updated in place, never
// duplicated.
type SignalSet struct {
	LeadID string `json:"lead_id" db:"lead_id"`

	// Raw research signals.
	DetectedPlatform  string          `json:"detected_platform" db:"detected_platform"`
	SiteExcerpt       string          `json:"site_excerpt" db:"site_excerpt"`
	Categories        []string        `json:"categories" db:"categories"`
	SampleProducts    []SampleProduct `json:"sample_products" db:"sample_products"`
	BrandMentionsRaw  []string        `json:"brand_mentions_raw" db:"brand_mentions_raw"`
	SKUEstimate       int             `json:"sku_count_estimate" db:"sku_count_estimate"`
	PriceRangeMin     float64         `json:"price_range_min" db:"price_range_min"`
	PriceRangeMax     float64         `json:"price_range_max" db:"price_range_max"`
	MAPTextFound      bool            `json:"map_text_found" db:"map_text_found"`
	MAPTextExcerpt    string          `json:"map_text_excerpt" db:"map_text_excerpt"`
	PrivateLabelRatio float64         `json:"private_label_ratio" db:"private_label_ratio"`

	// AI-normalized signals (merged once by classification).
	BrandList        []string  `json:"brand_list" db:"brand_list"`
	PriceTier        PriceTier `json:"price_tier" db:"price_tier"`
	ScaleScore       int       `json:"scale_score" db:"scale_score"`               // 0-100
	MAPBehaviorScore int       `json:"map_behavior_score" db:"map_behavior_score"` // 0-100
	StoreCount       int       `json:"store_count" db:"store_count"`

	// Evidence pointers for forensic traceability.
	ArtifactPath string `json:"scrape_artifact_path" db:"scrape_artifact_path"`
	ArtifactHash string `json:"scrape_artifact_hash" db:"scrape_artifact_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
