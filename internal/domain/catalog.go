package domain

import "time"

// PriorityDiscountThreshold is the pct-off-retail at or above which a catalog
// item is flagged priority.
const PriorityDiscountThreshold = 45.0

// Item is a curated catalog entry. Immutable reference data during a
// matching run.
type Item struct {
	ID            string    `json:"item_id" db:"item_id"`
	Name          string    `json:"item_name" db:"item_name"`
	Categories    []string  `json:"categories" db:"categories"`
	PctOffRetail  float64   `json:"pct_off_retail" db:"pct_off_retail"`
	MinOrderValue float64   `json:"mov" db:"mov"`
	LeadTimeMin   int       `json:"lead_time_min" db:"lead_time_min"`
	LeadTimeMax   int       `json:"lead_time_max" db:"lead_time_max"`
	Origin        string    `json:"origin" db:"origin"`
	ChannelFit    []Channel `json:"channel_fit" db:"channel_fit"`
	Replenishable bool      `json:"replenishable" db:"replenishable"`
	Priority      bool      `json:"priority" db:"priority"` // pct_off_retail >= threshold
	Notes         string    `json:"notes" db:"notes"`
	Active        bool      `json:"active" db:"active"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// PrimaryCategory returns the first category tag, or "general" when untagged.
// The diversity rule in the matcher groups by this.
func (i Item) PrimaryCategory() string {
	if len(i.Categories) == 0 {
		return "general"
	}
	return i.Categories[0]
}

// FitsChannel reports whether the item's channel-fit list contains the given
// channel or the multi-channel marker.
func (i Item) FitsChannel(ch Channel) bool {
	for _, fit := range i.ChannelFit {
		if fit == ch || fit == ChannelMulti {
			return true
		}
	}
	return false
}
