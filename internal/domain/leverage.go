package domain

import "time"

// Angle enumerates the strategic angles a rule can assign.
type Angle string

const (
	AngleExpansion     Angle = "expansion"
	AngleAlignment     Angle = "alignment"
	AngleStability     Angle = "stability"
	AngleScalability   Angle = "scalability"
	AngleInstitutional Angle = "institutional"
	AngleGrowth        Angle = "growth"
)

// Fallback match reasons. Distinguishable from genuine rule matches so the
// audit trail shows whether strategy came from a rule or the default.
const (
	MatchReasonNoRulesLoaded = "no_rules_loaded_fallback"
	MatchReasonNoRuleMatched = "no_rule_matched_fallback"
)

// ItemQuery is the selection filter template a rule hands to the catalog
// matcher.
type ItemQuery struct {
	PriorityFirst bool     `json:"priority_first"`
	Cap           int      `json:"cap"`
	Categories    []string `json:"categories,omitempty"`
}

// Rule is a single row of the deterministic leverage matrix. Rules are
// immutable at runtime. All non-nil predicates must hold simultaneously for
// a match; evaluation is first-match by ascending priority.
type Rule struct {
	ID       string `json:"rule_id" db:"rule_id"`
	Priority int    `json:"priority" db:"priority"` // lower = evaluated first
	Active   bool   `json:"is_active" db:"is_active"`

	// Match predicates; nil means "don't care".
	ChannelMatch          *Channel `json:"channel_match,omitempty" db:"channel_match"`
	MinScaleScore         *int     `json:"min_scale_score,omitempty" db:"min_scale_score"`
	MaxPrivateLabelRatio  *float64 `json:"max_private_label_ratio,omitempty" db:"max_private_label_ratio"`
	MinMAPBehaviorScore   *int     `json:"min_map_behavior_score,omitempty" db:"min_map_behavior_score"`
	MinStoreCount         *int     `json:"min_store_count,omitempty" db:"min_store_count"`
	RequiresBrandOverlap  bool     `json:"requires_brand_overlap" db:"requires_brand_overlap"`
	RequiresAdjacentBrand bool     `json:"requires_adjacent_brands" db:"requires_adjacent_brands"`

	// Output.
	PrimaryAngle   Angle      `json:"primary_angle" db:"primary_angle"`
	SecondaryAngle Angle      `json:"secondary_angle,omitempty" db:"secondary_angle"`
	ItemQuery      *ItemQuery `json:"item_query,omitempty" db:"item_query"`
	Description    string     `json:"description" db:"description"`
}

// LeverageAssignment is the strategy assigned to a qualified lead.
// One per lead; overwritten (not duplicated) on re-evaluation.
type LeverageAssignment struct {
	LeadID         string     `json:"lead_id" db:"lead_id"`
	PrimaryAngle   Angle      `json:"primary_angle" db:"primary_angle"`
	SecondaryAngle Angle      `json:"secondary_angle,omitempty" db:"secondary_angle"`
	MatchedRuleID  *string    `json:"matched_rule_id" db:"matched_rule_id"` // nil on fallback
	MatchReason    string     `json:"match_reason" db:"match_reason"`
	ItemQuery      *ItemQuery `json:"item_query" db:"item_query"`
	SelectedItems  []string   `json:"selected_item_ids" db:"selected_item_ids"` // capped, ≤ cap
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Qualification is the persisted qualification verdict with its AI trace.
type Qualification struct {
	LeadID           string           `json:"lead_id" db:"lead_id"`
	Qualifies        bool             `json:"qualifies" db:"qualifies"`
	DisqualifyReason DisqualifyReason `json:"disqualify_reason,omitempty" db:"disqualify_reason"`
	CallID           string           `json:"call_id" db:"call_id"`
	SchemaVersion    string           `json:"schema_version" db:"schema_version"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}
