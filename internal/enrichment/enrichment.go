// Package enrichment holds the contracts for the external collaborators the
// pipeline calls: storefront research, lead and reply classification, and
// message generation. Each collaborator degrades to a deterministic safe
// default when its backing service is not configured, so the pipeline never
// blocks on a missing key.
package enrichment

import (
	"context"

	"github.com/ignite/leadflow/internal/domain"
)

// Researcher visits a lead's storefront within the scrape budget and
// returns the raw signals it observed.
type Researcher interface {
	Research(ctx context.Context, lead *domain.Lead, budget domain.ScrapeJob) (*domain.SignalSet, error)
}

// LeadClassification is the strict output schema of the lead classifier.
type LeadClassification struct {
	BrandList         []string         `json:"brand_list"`
	PrivateLabelRatio float64          `json:"private_label_ratio"`
	PriceTier         domain.PriceTier `json:"price_tier"`
	ScaleScore        int              `json:"scale_score"`
	MAPBehaviorScore  int              `json:"map_behavior_score"`
	StoreCount        int              `json:"store_count"`
	Qualifies         bool             `json:"qualifies"`
	DisqualifyReason  string           `json:"disqualify_reason"`
}

// DefaultLeadClassification is what the pipeline proceeds with when
// classification is unavailable or returns garbage twice.
func DefaultLeadClassification() LeadClassification {
	return LeadClassification{PriceTier: domain.TierMixed, Qualifies: true}
}

// LeadClassifier normalizes raw research signals into scored fields.
type LeadClassifier interface {
	ClassifyLead(ctx context.Context, signals *domain.SignalSet, companyName, niche string) (LeadClassification, string, error)
}

// ReplyVerdict is the strict output schema of the reply classifier.
type ReplyVerdict struct {
	Classification domain.ReplyClassification `json:"classification"`
	ObjectionType  string                     `json:"objection_type"`
	Action         domain.ReplyAction         `json:"action"`
	InterestLevel  int                        `json:"interest_level"`
}

// DefaultReplyVerdict routes to a human when classification is unavailable.
func DefaultReplyVerdict() ReplyVerdict {
	return ReplyVerdict{Classification: domain.ReplyUnknown, Action: domain.ActionHandoff}
}

// ReplyClassifier interprets an inbound reply.
type ReplyClassifier interface {
	ClassifyReply(ctx context.Context, replyText, leadContext string) (ReplyVerdict, string, error)
}

// Message is one generated outbound message.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MessageRequest carries everything the generator may reference. Store
// references must be traceable to the excerpt or omitted.
type MessageRequest struct {
	CompanyName string
	Niche       string
	Angle       domain.Angle
	TouchNumber int
	BrandNames  []string
	SiteExcerpt string
	Categories  []string
}

// MessageGenerator drafts one touch of the outbound sequence.
type MessageGenerator interface {
	GenerateMessage(ctx context.Context, req MessageRequest) (Message, error)
}

// Completer is the raw text-completion collaborator the strict classifiers
// and the generator sit on. A nil Completer selects the offline defaults.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
