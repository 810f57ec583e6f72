package ledger

import (
	"fmt"
	"sort"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// Project derives the current view of one (deal, factKey) from its event
// history. Pure: no store access, no clock. events may arrive in any order;
// openReviews are the deal's unresolved reviews (any key — they are filtered
// here). Returns nil when no live CREATED event exists, plus any
// data-integrity warnings found while projecting.
func Project(events []model.FactEvent, openReviews []model.PendingReview) (*model.CurrentFact, []string) {
	if len(events) == 0 {
		return nil, nil
	}

	ordered := make([]model.FactEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].Seq < ordered[j].Seq
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	// Single pass over the arena: an event is live iff it is CREATED and no
	// later event references it as superseded. The back-reference set guards
	// against rows whose event_type was never flipped.
	superseded := make(map[string]bool, len(ordered))
	for _, ev := range ordered {
		if ev.SupersedesEventID != "" {
			superseded[ev.SupersedesEventID] = true
		}
	}

	var warnings []string
	var live []model.FactEvent
	for _, ev := range ordered {
		if ev.EventType != model.EventCreated || superseded[ev.ID] {
			continue
		}
		live = append(live, ev)
	}
	if len(live) == 0 {
		return nil, warnings
	}
	current := live[len(live)-1]
	if len(live) > 1 {
		warnings = append(warnings, fmt.Sprintf(
			"integrity: %d live CREATED events for %s/%s, using most recent %s",
			len(live), current.DealID, current.FactKey, current.ID,
		))
	}

	cf := &model.CurrentFact{
		DealID:              current.DealID,
		FactKey:             current.FactKey,
		Category:            current.Category,
		CurrentEventID:      current.ID,
		CurrentValue:        current.Value,
		CurrentDisplayValue: current.DisplayValue,
		CurrentSource:       current.Source,
		CurrentConfidence:   current.SourceConfidence,
		FirstSeenAt:         ordered[0].CreatedAt,
		LastUpdatedAt:       ordered[len(ordered)-1].CreatedAt,
	}

	// An I1 violation is surfaced as a disputed fact, not a failure.
	if len(live) > 1 {
		cf.IsDisputed = true
		cf.DisputeDetails = append(cf.DisputeDetails, "data integrity: multiple live values recorded")
	}
	for _, r := range openReviews {
		if r.FactKey != current.FactKey {
			continue
		}
		cf.IsDisputed = true
		cf.DisputeDetails = append(cf.DisputeDetails, r.ContradictionReason)
	}

	// History newest first.
	history := make([]model.FactEvent, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		history = append(history, ordered[i])
	}
	cf.EventHistory = history

	return cf, warnings
}

// ProjectDeal projects every fact of a deal, sorted by fact key. Warnings
// from all keys are pooled.
func ProjectDeal(events []model.FactEvent, openReviews []model.PendingReview) ([]model.CurrentFact, []string) {
	byKey := make(map[string][]model.FactEvent)
	var keys []string
	for _, ev := range events {
		if _, seen := byKey[ev.FactKey]; !seen {
			keys = append(keys, ev.FactKey)
		}
		byKey[ev.FactKey] = append(byKey[ev.FactKey], ev)
	}
	sort.Strings(keys)

	var facts []model.CurrentFact
	var warnings []string
	for _, key := range keys {
		cf, w := Project(byKey[key], openReviews)
		warnings = append(warnings, w...)
		if cf != nil {
			facts = append(facts, *cf)
		}
	}
	return facts, warnings
}
