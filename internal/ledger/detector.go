package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// Claim is a structured fact assertion from an agent: the only contract this
// subsystem has with the agent layer.
type Claim struct {
	FactKey      string          `json:"factKey"`
	Value        model.FactValue `json:"value"`
	DisplayValue string          `json:"displayValue,omitempty"`
	Source       string          `json:"source"`
	Confidence   int             `json:"confidence"`
	Reason       string          `json:"reason,omitempty"`
	CreatedBy    string          `json:"createdBy,omitempty"`
}

// Outcome is the detector's verdict on a claim: either an appended ledger
// event (accepted) or a queued pending review (contradiction).
type Outcome struct {
	Accepted bool                 `json:"accepted"`
	Event    *model.FactEvent     `json:"event,omitempty"`
	Review   *model.PendingReview `json:"review,omitempty"`
}

// Detector compares incoming claims against the current projection and
// decides direct append vs. flag-for-review.
type Detector struct {
	store Store
	now   func() time.Time
}

// NewDetector creates a contradiction detector backed by the given store.
func NewDetector(store Store) *Detector {
	return &Detector{store: store, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (d *Detector) WithNow(now func() time.Time) *Detector {
	d.now = now
	return d
}

func validateClaim(c Claim) error {
	if c.FactKey == "" {
		return NewValidationError("factKey", "must not be empty")
	}
	if c.Source == "" {
		return NewValidationError("source", "must not be empty")
	}
	if c.Confidence < 0 || c.Confidence > 100 {
		return NewValidationError("confidence", "must be between 0 and 100")
	}
	if c.Value.IsZero() {
		return NewValidationError("value", "must not be empty")
	}
	// Human-authored events must state why.
	if c.Source == model.SourceBAOverride && c.Reason == "" {
		return NewValidationError("reason", "required for BA_OVERRIDE claims")
	}
	return nil
}

// Evaluate applies the contradiction rule for one claim. No current fact, or
// a structurally equal value, appends directly. A differing value queues a
// PendingReview and leaves the ledger untouched. BA_OVERRIDE claims always
// append, superseding unconditionally.
func (d *Detector) Evaluate(ctx context.Context, dealID string, c Claim) (*Outcome, error) {
	if err := validateClaim(c); err != nil {
		return nil, err
	}
	if _, err := d.store.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}

	events, err := d.store.EventsForFact(ctx, dealID, c.FactKey)
	if err != nil {
		return nil, eris.Wrap(err, "detector: load events")
	}
	current, warnings := Project(events, nil)
	for _, w := range warnings {
		zap.L().Warn("projection integrity warning",
			zap.String("deal_id", dealID),
			zap.String("fact_key", c.FactKey),
			zap.String("warning", w),
		)
	}

	override := c.Source == model.SourceBAOverride
	if override {
		// Human overrides carry confidence 100, always.
		c.Confidence = 100
	}

	if current == nil || override || current.CurrentValue.Equal(c.Value) {
		supersedes := ""
		if current != nil {
			supersedes = current.CurrentEventID
		}
		ev := d.newEvent(dealID, c, supersedes)
		appended, err := d.store.AppendEvent(ctx, ev, supersedes)
		if err != nil {
			return nil, err
		}
		return &Outcome{Accepted: true, Event: appended}, nil
	}

	review := model.PendingReview{
		ID:                   uuid.New().String(),
		DealID:               dealID,
		FactKey:              c.FactKey,
		Category:             model.CategoryFromKey(c.FactKey),
		NewValue:             c.Value,
		NewDisplayValue:      displayFor(c),
		NewSource:            c.Source,
		NewConfidence:        c.Confidence,
		ExistingEventID:      current.CurrentEventID,
		ExistingValue:        current.CurrentValue,
		ExistingDisplayValue: current.CurrentDisplayValue,
		ExistingSource:       current.CurrentSource,
		ExistingConfidence:   current.CurrentConfidence,
		ContradictionReason: fmt.Sprintf(
			"%s reports %q (confidence %d), conflicting with current value %q from %s (confidence %d)",
			c.Source, displayFor(c), c.Confidence,
			current.CurrentDisplayValue, current.CurrentSource, current.CurrentConfidence,
		),
		CreatedAt: d.now().UTC(),
	}

	created, err := d.store.CreateReview(ctx, review)
	if err != nil {
		return nil, eris.Wrap(err, "detector: queue review")
	}
	zap.L().Info("contradiction queued for review",
		zap.String("deal_id", dealID),
		zap.String("fact_key", c.FactKey),
		zap.String("review_id", created.ID),
	)
	return &Outcome{Accepted: false, Review: created}, nil
}

func (d *Detector) newEvent(dealID string, c Claim, supersedes string) model.FactEvent {
	return model.FactEvent{
		ID:                uuid.New().String(),
		DealID:            dealID,
		FactKey:           c.FactKey,
		Category:          model.CategoryFromKey(c.FactKey),
		Value:             c.Value,
		DisplayValue:      displayFor(c),
		Source:            c.Source,
		SourceConfidence:  c.Confidence,
		EventType:         model.EventCreated,
		SupersedesEventID: supersedes,
		CreatedBy:         c.CreatedBy,
		Reason:            c.Reason,
		CreatedAt:         d.now().UTC(),
	}
}

func displayFor(c Claim) string {
	if c.DisplayValue != "" {
		return c.DisplayValue
	}
	return c.Value.Display()
}
