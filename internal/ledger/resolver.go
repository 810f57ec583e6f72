package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// OverrideInput is the human-supplied replacement value on the OVERRIDE path.
type OverrideInput struct {
	Value        model.FactValue
	DisplayValue string
}

// Resolver applies human decisions to pending reviews and performs direct
// fact overrides, maintaining the supersession chain.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver creates a resolution service backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve consumes a pending review with the given decision. ACCEPT_NEW
// promotes the candidate, KEEP_EXISTING discards it (recording the discard as
// a DELETED audit event), OVERRIDE replaces the value with a human-authored
// one. Returns the fact's resulting current event. Fails with
// StaleReviewError when the review was already resolved concurrently.
func (r *Resolver) Resolve(ctx context.Context, dealID, reviewID string, decision model.Decision, override *OverrideInput, reason, userID string) (*model.FactEvent, error) {
	if reason == "" {
		return nil, NewValidationError("reason", "must not be empty")
	}

	review, err := r.store.GetReview(ctx, dealID, reviewID)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	w := ResolutionWrite{ReviewID: review.ID}

	switch decision {
	case model.DecisionAcceptNew:
		w.SupersedeID = review.ExistingEventID
		w.NewEvent = &model.FactEvent{
			ID:                uuid.New().String(),
			DealID:            dealID,
			FactKey:           review.FactKey,
			Category:          review.Category,
			Value:             review.NewValue,
			DisplayValue:      review.NewDisplayValue,
			Source:            review.NewSource,
			SourceConfidence:  review.NewConfidence,
			EventType:         model.EventCreated,
			SupersedesEventID: review.ExistingEventID,
			CreatedBy:         userID,
			Reason:            reason,
			CreatedAt:         now,
		}

	case model.DecisionKeepExisting:
		// The candidate never enters the live chain, but the proposal is
		// preserved as a DELETED event for audit completeness.
		w.AuditEvent = &model.FactEvent{
			ID:               uuid.New().String(),
			DealID:           dealID,
			FactKey:          review.FactKey,
			Category:         review.Category,
			Value:            review.NewValue,
			DisplayValue:     review.NewDisplayValue,
			Source:           review.NewSource,
			SourceConfidence: review.NewConfidence,
			EventType:        model.EventDeleted,
			CreatedBy:        userID,
			Reason:           reason,
			CreatedAt:        now,
		}

	case model.DecisionOverride:
		if override == nil || override.Value.IsZero() {
			return nil, NewValidationError("override_value", "required for OVERRIDE decision")
		}
		display := override.DisplayValue
		if display == "" {
			display = override.Value.Display()
		}
		w.SupersedeID = review.ExistingEventID
		w.NewEvent = &model.FactEvent{
			ID:                uuid.New().String(),
			DealID:            dealID,
			FactKey:           review.FactKey,
			Category:          review.Category,
			Value:             override.Value,
			DisplayValue:      display,
			Source:            model.SourceBAOverride,
			SourceConfidence:  100,
			EventType:         model.EventCreated,
			SupersedesEventID: review.ExistingEventID,
			CreatedBy:         userID,
			Reason:            reason,
			CreatedAt:         now,
		}

	default:
		return nil, NewValidationError("decision", "must be ACCEPT_NEW, KEEP_EXISTING, or OVERRIDE")
	}

	if err := r.store.ApplyResolution(ctx, w); err != nil {
		return nil, err
	}
	zap.L().Info("review resolved",
		zap.String("deal_id", dealID),
		zap.String("fact_key", review.FactKey),
		zap.String("review_id", review.ID),
		zap.String("decision", string(decision)),
	)

	if w.NewEvent != nil {
		return w.NewEvent, nil
	}
	// KEEP_EXISTING: the incumbent remains current.
	events, err := r.store.EventsForFact(ctx, dealID, review.FactKey)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: reload events")
	}
	current, _ := Project(events, nil)
	if current == nil {
		return nil, &NotFoundError{Entity: "fact", ID: review.FactKey}
	}
	for _, ev := range current.EventHistory {
		if ev.ID == current.CurrentEventID {
			return &ev, nil
		}
	}
	return nil, &NotFoundError{Entity: "event", ID: current.CurrentEventID}
}

// Override applies a direct human override outside the review queue: the
// current event (if any) is superseded unconditionally by a BA_OVERRIDE
// event with confidence 100.
func (r *Resolver) Override(ctx context.Context, dealID, factKey string, value model.FactValue, displayValue, reason, userID string) (*model.FactEvent, error) {
	if factKey == "" {
		return nil, NewValidationError("factKey", "must not be empty")
	}
	if value.IsZero() {
		return nil, NewValidationError("value", "must not be empty")
	}
	if reason == "" {
		return nil, NewValidationError("reason", "must not be empty")
	}
	if _, err := r.store.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}

	events, err := r.store.EventsForFact(ctx, dealID, factKey)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: load events")
	}
	current, warnings := Project(events, nil)
	for _, w := range warnings {
		zap.L().Warn("projection integrity warning",
			zap.String("deal_id", dealID),
			zap.String("fact_key", factKey),
			zap.String("warning", w),
		)
	}

	supersedes := ""
	if current != nil {
		supersedes = current.CurrentEventID
	}
	if displayValue == "" {
		displayValue = value.Display()
	}

	ev := model.FactEvent{
		ID:                uuid.New().String(),
		DealID:            dealID,
		FactKey:           factKey,
		Category:          model.CategoryFromKey(factKey),
		Value:             value,
		DisplayValue:      displayValue,
		Source:            model.SourceBAOverride,
		SourceConfidence:  100,
		EventType:         model.EventCreated,
		SupersedesEventID: supersedes,
		CreatedBy:         userID,
		Reason:            reason,
		CreatedAt:         r.now().UTC(),
	}
	return r.store.AppendEvent(ctx, ev, supersedes)
}
