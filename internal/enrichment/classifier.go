package enrichment

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/domain"
)

const leadClassifierPrompt = `You are a wholesale lead qualification analyst for a distributor of premium
branded products at 45-75%% off retail.

Analyze the following scraped storefront data and return a STRICT JSON object.
DO NOT include any text outside the JSON. Only return the JSON object.

Scraped signals:
- Platform: %s
- Categories: %s
- Brand mentions: %s
- SKU estimate: %d
- Price range: $%.2f - $%.2f
- Site excerpt: %s
- MAP text found: %t
- Company: %s
- Niche: %s

Return this exact JSON schema:
{
    "brand_list": ["cleaned brand names found"],
    "private_label_ratio": 0.0 to 1.0,
    "price_tier": "luxury" | "mid" | "discount" | "mixed",
    "scale_score": 0 to 100,
    "map_behavior_score": 0 to 100,
    "store_count": integer,
    "qualifies": true | false,
    "disqualify_reason": null | "private_label_only" | "arbitrage_no_scale" | "unknown"
}

Rules:
- scale_score: 0=tiny/dropship, 50=medium, 100=large multi-location
- map_behavior_score: 0=no MAP respect, 50=some, 100=strict MAP compliance
- qualifies: false ONLY if private_label_only or arbitrage_no_scale
- brand_list: only real brand names, not the store's own name
- private_label_ratio: fraction of products that are the store's own brand`

const replyClassifierPrompt = `You are classifying an inbound email reply from a wholesale lead.
Context: %s

Reply text:
%s

Return STRICT JSON only:
{
    "classification": "interested" | "objection" | "not_interested" | "unsubscribe" | "out_of_office" | "unknown",
    "objection_type": null | "catalog_request" | "pricing" | "margins" | "already_have_supplier" | "timing" | "identity" | "minimums" | "authenticity" | "MAP" | "samples" | "returns" | "need_approval" | "already_stocked" | "too_many_brands" | "cash_flow" | "slow_season" | "legal_concerns" | "website_only" | "small_business" | "send_email_info",
    "action": "send_calendar" | "send_curated_catalog" | "suppress" | "handoff_to_human",
    "interest_level": 1 to 10
}

Rules:
- If they say "remove me" / "unsubscribe" / "stop emailing": classification "unsubscribe", action "suppress"
- If they show interest / want to talk / ask for time: classification "interested", action "send_calendar"
- If they have an objection but are engaging: classify the objection_type, action "send_curated_catalog" or "handoff_to_human"
- If clearly not interested: classification "not_interested", action "handoff_to_human"
- interest_level: 1=hostile, 5=neutral, 10=very interested`

// StrictClassifier implements LeadClassifier and ReplyClassifier over a raw
// Completer with a one-shot schema repair retry. A nil completer degrades to
// the safe defaults with call id "no-completer".
type StrictClassifier struct {
	completer Completer
}

// NewStrictClassifier wraps a completer. completer may be nil.
func NewStrictClassifier(completer Completer) *StrictClassifier {
	return &StrictClassifier{completer: completer}
}

const excerptLimit = 1000

// ClassifyLead normalizes raw research signals. Call id is returned for the
// audit payload even when the output degrades to the default.
func (c *StrictClassifier) ClassifyLead(ctx context.Context, signals *domain.SignalSet, companyName, niche string) (LeadClassification, string, error) {
	if c.completer == nil {
		log.Printf("[Classifier] No completer configured, returning default lead classification")
		return DefaultLeadClassification(), "no-completer", nil
	}

	callID := newCallID()
	excerpt := signals.SiteExcerpt
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit]
	}
	prompt := fmt.Sprintf(leadClassifierPrompt,
		signals.DetectedPlatform,
		strings.Join(signals.Categories, ", "),
		strings.Join(signals.BrandMentionsRaw, ", "),
		signals.SKUEstimate,
		signals.PriceRangeMin,
		signals.PriceRangeMax,
		excerpt,
		signals.MAPTextFound,
		companyName,
		niche,
	)

	out := DefaultLeadClassification()
	repairSchema := `{"brand_list":[],"private_label_ratio":0.0,"price_tier":"mixed","scale_score":0,"map_behavior_score":0,"store_count":0,"qualifies":true,"disqualify_reason":null}`
	if err := c.completeStrict(ctx, callID, prompt, repairSchema, &out); err != nil {
		log.Printf("[Classifier] Lead classification failed [%s]: %v, returning default", callID, err)
		return DefaultLeadClassification(), callID, nil
	}
	return out, callID, nil
}

// ClassifyReply interprets an inbound reply.
func (c *StrictClassifier) ClassifyReply(ctx context.Context, replyText, leadContext string) (ReplyVerdict, string, error) {
	if c.completer == nil {
		return DefaultReplyVerdict(), "no-completer", nil
	}

	callID := newCallID()
	prompt := fmt.Sprintf(replyClassifierPrompt, leadContext, replyText)

	var out ReplyVerdict
	repairSchema := `{"classification":"unknown","objection_type":null,"action":"handoff_to_human","interest_level":5}`
	if err := c.completeStrict(ctx, callID, prompt, repairSchema, &out); err != nil {
		log.Printf("[Classifier] Reply classification failed [%s]: %v, routing to human", callID, err)
		return DefaultReplyVerdict(), callID, nil
	}
	if out.Classification == "" || out.Action == "" {
		return DefaultReplyVerdict(), callID, nil
	}
	return out, callID, nil
}

// completeStrict runs the prompt, parses strict JSON, and on a parse failure
// makes exactly one repair attempt before giving up.
func (c *StrictClassifier) completeStrict(ctx context.Context, callID, prompt, repairSchema string, v interface{}) error {
	raw, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return fmt.Errorf("completion [%s]: %w", callID, err)
	}

	if err := parseStrictJSON(raw, v); err == nil {
		return nil
	}

	log.Printf("[Classifier] JSON parse failed [%s], attempting repair", callID)
	repairPrompt := fmt.Sprintf(
		"Your previous output was not valid JSON. Here is what you returned:\n%s\n\nPlease return ONLY a valid JSON object matching this schema:\n%s",
		raw, repairSchema,
	)
	raw, err = c.completer.Complete(ctx, repairPrompt)
	if err != nil {
		return fmt.Errorf("repair completion [%s]: %w", callID, err)
	}
	if err := parseStrictJSON(raw, v); err != nil {
		return fmt.Errorf("repair parse [%s]: %w", callID, err)
	}
	return nil
}

func newCallID() string {
	return "llm-" + fmt.Sprintf("%x", [16]byte(uuid.New()))[:12]
}
