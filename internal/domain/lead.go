package domain

import "time"

// LeadStatus enumerates the lifecycle states of a lead.
//
// Transitions are one-directional:
//
//	new → researched → {qualified | disqualified} → contacted →
//	{interested | objection | dead} → booked
//
// Any state may jump to dead via suppression. disqualified and dead are
// terminal; booked is terminal for outcome tracking.
type LeadStatus string

const (
	LeadNew          LeadStatus = "new"
	LeadResearched   LeadStatus = "researched"
	LeadQualified    LeadStatus = "qualified"
	LeadDisqualified LeadStatus = "disqualified"
	LeadContacted    LeadStatus = "contacted"
	LeadReplied      LeadStatus = "replied"
	LeadObjection    LeadStatus = "objection"
	LeadInterested   LeadStatus = "interested"
	LeadBooked       LeadStatus = "booked"
	LeadDead         LeadStatus = "dead"
)

// IsTerminal returns true if the lead can no longer move through the pipeline.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadDisqualified || s == LeadDead || s == LeadBooked
}

// Channel enumerates the sales channels a lead operates on.
type Channel string

const (
	ChannelAmazon  Channel = "amazon"
	ChannelWalmart Channel = "walmart"
	ChannelRetail  Channel = "retail"
	ChannelMulti   Channel = "multi-channel"
	ChannelShopify Channel = "shopify"
	ChannelOther   Channel = "other"
)

// DisqualifyReason enumerates why a lead was removed from the pipeline.
type DisqualifyReason string

const (
	DisqualifyPrivateLabelOnly DisqualifyReason = "private_label_only"
	DisqualifyArbitrageNoScale DisqualifyReason = "arbitrage_no_scale"
	DisqualifySuppressed       DisqualifyReason = "suppressed"
)

// Outcome enumerates the final result of a booked lead.
type Outcome string

const (
	OutcomeNotFit         Outcome = "not_fit"
	OutcomeFollowUp       Outcome = "follow_up"
	OutcomeDealInProgress Outcome = "deal_in_progress"
	OutcomeClosed         Outcome = "closed"
)

// Lead is the core pipeline record and the source of truth for lead state.
// Leads are never deleted; terminal statuses end the lifecycle instead.
type Lead struct {
	ID               string           `json:"lead_id" db:"lead_id"`
	CompanyName      string           `json:"company_name" db:"company_name"`
	WebsiteURL       string           `json:"website_url" db:"website_url"`
	ContactEmail     string           `json:"contact_email" db:"contact_email"`
	Channel          Channel          `json:"channel" db:"channel"`
	Niche            string           `json:"niche" db:"niche"`
	Location         string           `json:"location" db:"location"`
	Notes            string           `json:"notes" db:"notes"`
	Status           LeadStatus       `json:"status" db:"status"`
	DisqualifyReason DisqualifyReason `json:"disqualify_reason,omitempty" db:"disqualify_reason"`
	BookedAt         *time.Time       `json:"booked_at,omitempty" db:"booked_at"`
	Outcome          Outcome          `json:"outcome,omitempty" db:"outcome"`
	OutcomeNotes     string           `json:"outcome_notes,omitempty" db:"outcome_notes"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// IntakeRequest is the validated input for creating a lead.
type IntakeRequest struct {
	CompanyName  string  `json:"company_name"`
	WebsiteURL   string  `json:"website_url"`
	ContactEmail string  `json:"contact_email"`
	Channel      Channel `json:"channel"`
	Niche        string  `json:"niche"`
	Location     string  `json:"location"`
	Notes        string  `json:"notes"`
}

// PipelineStats aggregates lead counts per status for the dashboard.
type PipelineStats struct {
	TotalLeads     int     `json:"total_leads"`
	New            int     `json:"new"`
	Researched     int     `json:"researched"`
	Qualified      int     `json:"qualified"`
	Disqualified   int     `json:"disqualified"`
	Contacted      int     `json:"contacted"`
	Interested     int     `json:"interested"`
	Objections     int     `json:"objections"`
	Booked         int     `json:"booked"`
	Dead           int     `json:"dead"`
	TotalSent      int     `json:"total_emails_sent"`
	TotalReplies   int     `json:"total_replies"`
	ConversionRate float64 `json:"conversion_rate"`
}
