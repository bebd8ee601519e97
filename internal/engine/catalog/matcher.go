// Package catalog implements promotional item selection for qualified leads.
//
// Selection is hard-capped and diversity-constrained: the matcher scores
// priority items against the lead's channel and category signals, extends
// the pool with non-priority items when short, and greedily picks the top
// of the ordered pool while never accepting more than two items sharing a
// primary category.
package catalog

import (
	"sort"
	"strings"

	"github.com/ignite/leadflow/internal/domain"
)

// Scoring weights.
const (
	scoreChannelFit    = 20
	scorePerCategory   = 15
	scoreHighDiscount  = 10
	scoreReplenishable = 10

	highDiscountThreshold = 60.0
	maxPerPrimaryCategory = 2
)

// Selection is the matcher output together with the figures recorded in
// the audit trail.
type Selection struct {
	ItemIDs       []string
	CandidateSize int
	Cap           int
}

type scoredItem struct {
	item  domain.Item
	score int
}

// Select picks up to cap items for a lead. Candidates are the active
// priority-flagged items; the pool is extended with active non-priority
// items (discount desc) when fewer candidates than the cap exist. The
// items slice is reference data and is never mutated.
func Select(items []domain.Item, lead *domain.Lead, signals *domain.SignalSet, cap int) Selection {
	leadCategories := lowerSet(signals.Categories)

	var scored []scoredItem
	for _, item := range items {
		if !item.Active || !item.Priority {
			continue
		}
		scored = append(scored, scoredItem{item: item, score: score(item, lead.Channel, leadCategories)})
	}

	// Order by score desc, discount desc as tiebreak.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].item.PctOffRetail > scored[j].item.PctOffRetail
	})

	// Extend with non-priority actives when the pool is short, without
	// duplicating ids already present.
	if len(scored) < cap {
		seen := make(map[string]bool, len(scored))
		for _, s := range scored {
			seen[s.item.ID] = true
		}

		var extras []domain.Item
		for _, item := range items {
			if item.Active && !item.Priority && !seen[item.ID] {
				extras = append(extras, item)
			}
		}
		sort.SliceStable(extras, func(i, j int) bool {
			return extras[i].PctOffRetail > extras[j].PctOffRetail
		})
		for _, item := range extras {
			if len(scored) >= cap {
				break
			}
			scored = append(scored, scoredItem{item: item})
		}
	}

	// Greedy walk with the diversity rule: violators are skipped, not
	// substituted.
	selected := make([]string, 0, cap)
	perCategory := make(map[string]int)
	for _, s := range scored {
		if len(selected) >= cap {
			break
		}
		primary := s.item.PrimaryCategory()
		if perCategory[primary] >= maxPerPrimaryCategory {
			continue
		}
		selected = append(selected, s.item.ID)
		perCategory[primary]++
	}

	return Selection{ItemIDs: selected, CandidateSize: len(scored), Cap: cap}
}

func score(item domain.Item, channel domain.Channel, leadCategories map[string]bool) int {
	total := 0
	if item.FitsChannel(channel) {
		total += scoreChannelFit
	}
	for _, cat := range item.Categories {
		if leadCategories[strings.ToLower(cat)] {
			total += scorePerCategory
		}
	}
	if item.PctOffRetail >= highDiscountThreshold {
		total += scoreHighDiscount
	}
	if item.Replenishable && channel == domain.ChannelAmazon {
		total += scoreReplenishable
	}
	return total
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}
