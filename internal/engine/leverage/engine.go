// Package leverage implements the deterministic leverage rule engine.
//
// Strategy comes only from the rules matrix: rules are evaluated in
// ascending priority order and the first rule whose non-nil predicates all
// hold wins. No generative component participates. When nothing matches
// (or no rules are loaded) a designated fallback angle is assigned with a
// match reason that keeps the fallback auditable.
package leverage

import (
	"log"
	"sort"

	"github.com/ignite/leadflow/internal/domain"
)

// Qualification gate thresholds.
const (
	maxPrivateLabelRatio = 0.95
	minSKUEstimate       = 10
	minScaleScore        = 20
)

// FallbackAngle is assigned when no rule matches.
const FallbackAngle = domain.AngleGrowth

// Verdict is the outcome of the qualification gates.
type Verdict struct {
	Qualified bool
	Reason    domain.DisqualifyReason
}

// Qualify applies the deterministic disqualification gates. These are the
// only two disqualify reasons this engine produces; anything else (e.g.
// suppression) originates elsewhere.
func Qualify(signals *domain.SignalSet) Verdict {
	if signals.PrivateLabelRatio > maxPrivateLabelRatio {
		return Verdict{Qualified: false, Reason: domain.DisqualifyPrivateLabelOnly}
	}
	// Boundary values qualify: sku_estimate = 10 or scale_score = 20 pass.
	if signals.SKUEstimate < minSKUEstimate && signals.ScaleScore < minScaleScore {
		return Verdict{Qualified: false, Reason: domain.DisqualifyArbitrageNoScale}
	}
	return Verdict{Qualified: true}
}

// Match is the result of a rule evaluation.
type Match struct {
	RuleID         *string // nil on fallback
	PrimaryAngle   domain.Angle
	SecondaryAngle domain.Angle
	Reason         string
	ItemQuery      *domain.ItemQuery
}

// predicate reports whether one rule condition holds for the lead+signals
// pair. A rule is a conjunction of these; nil-valued conditions contribute
// nothing.
type predicate func(lead *domain.Lead, signals *domain.SignalSet) bool

// predicatesFor expands a rule's non-nil conditions into a predicate list.
// Adding a new condition means adding a clause here, not new branching in
// Evaluate.
func predicatesFor(rule domain.Rule) []predicate {
	var preds []predicate
	if rule.ChannelMatch != nil {
		want := *rule.ChannelMatch
		preds = append(preds, func(lead *domain.Lead, _ *domain.SignalSet) bool {
			return lead.Channel == want
		})
	}
	if rule.MinScaleScore != nil {
		min := *rule.MinScaleScore
		preds = append(preds, func(_ *domain.Lead, s *domain.SignalSet) bool {
			return s.ScaleScore >= min
		})
	}
	if rule.MaxPrivateLabelRatio != nil {
		max := *rule.MaxPrivateLabelRatio
		preds = append(preds, func(_ *domain.Lead, s *domain.SignalSet) bool {
			return s.PrivateLabelRatio <= max
		})
	}
	if rule.MinMAPBehaviorScore != nil {
		min := *rule.MinMAPBehaviorScore
		preds = append(preds, func(_ *domain.Lead, s *domain.SignalSet) bool {
			return s.MAPBehaviorScore >= min
		})
	}
	if rule.MinStoreCount != nil {
		min := *rule.MinStoreCount
		preds = append(preds, func(_ *domain.Lead, s *domain.SignalSet) bool {
			return s.StoreCount >= min
		})
	}
	if rule.RequiresBrandOverlap {
		// The reference brand set this predicate was meant to compare
		// against was never populated upstream, so the condition cannot be
		// satisfied. Kept as an explicit never-match rather than silently
		// inventing a comparison set.
		preds = append(preds, func(_ *domain.Lead, _ *domain.SignalSet) bool {
			return false
		})
	}
	if rule.RequiresAdjacentBrand {
		preds = append(preds, func(_ *domain.Lead, s *domain.SignalSet) bool {
			return len(s.BrandList) > 0
		})
	}
	return preds
}

// matches reports whether all of a rule's predicates hold.
func matches(rule domain.Rule, lead *domain.Lead, signals *domain.SignalSet) bool {
	for _, pred := range predicatesFor(rule) {
		if !pred(lead, signals) {
			return false
		}
	}
	return true
}

// Evaluate runs the rule matrix for a lead. First match wins; rules after
// the winner are not considered. The rules slice may arrive in any order;
// evaluation always sorts by ascending priority.
func Evaluate(rules []domain.Rule, lead *domain.Lead, signals *domain.SignalSet, defaultCap int) Match {
	active := make([]domain.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority < active[j].Priority })

	fallbackQuery := &domain.ItemQuery{PriorityFirst: true, Cap: defaultCap}

	if len(active) == 0 {
		log.Printf("[LeverageEngine] no active rules loaded, falling back to %s for lead %s", FallbackAngle, lead.ID)
		return Match{
			PrimaryAngle: FallbackAngle,
			Reason:       domain.MatchReasonNoRulesLoaded,
			ItemQuery:    fallbackQuery,
		}
	}

	for _, rule := range active {
		if rule.RequiresBrandOverlap {
			log.Printf("[LeverageEngine] rule %s requires brand overlap; reference set unavailable, rule cannot match", rule.ID)
		}
		if !matches(rule, lead, signals) {
			continue
		}

		reason := rule.Description
		if reason == "" {
			reason = "rule_matched"
		}
		query := rule.ItemQuery
		if query == nil {
			query = fallbackQuery
		}
		ruleID := rule.ID
		return Match{
			RuleID:         &ruleID,
			PrimaryAngle:   rule.PrimaryAngle,
			SecondaryAngle: rule.SecondaryAngle,
			Reason:         reason,
			ItemQuery:      query,
		}
	}

	return Match{
		PrimaryAngle: FallbackAngle,
		Reason:       domain.MatchReasonNoRuleMatched,
		ItemQuery:    fallbackQuery,
	}
}
