package ledger

import (
	"context"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// ResolutionWrite is the atomic write set for applying a review decision:
// consume the review, optionally supersede the current event and insert its
// replacement, and optionally record the discarded candidate as a DELETED
// audit event. The store applies all of it in one transaction so invariant
// "at most one live CREATED event" is never observable mid-flight.
type ResolutionWrite struct {
	ReviewID string
	// SupersedeID is the event to mark SUPERSEDED; empty for KEEP_EXISTING.
	SupersedeID string
	// NewEvent is the CREATED event to insert; nil for KEEP_EXISTING.
	NewEvent *model.FactEvent
	// AuditEvent records a discarded candidate as a DELETED event; only set
	// on the KEEP_EXISTING path.
	AuditEvent *model.FactEvent
}

// Store defines the persistence interface for the reconciliation ledger.
type Store interface {
	// Deals
	CreateDeal(ctx context.Context, deal model.Deal) (*model.Deal, error)
	GetDeal(ctx context.Context, dealID string) (*model.Deal, error)
	ListDeals(ctx context.Context) ([]model.Deal, error)

	// Fact events. AppendEvent marks supersedesID SUPERSEDED (when non-empty)
	// and inserts ev in one transaction; it fails with StaleReviewError if
	// another live CREATED event appeared since the caller's read.
	EventsForFact(ctx context.Context, dealID, factKey string) ([]model.FactEvent, error)
	EventsForDeal(ctx context.Context, dealID string) ([]model.FactEvent, error)
	AppendEvent(ctx context.Context, ev model.FactEvent, supersedesID string) (*model.FactEvent, error)

	// Pending reviews
	CreateReview(ctx context.Context, review model.PendingReview) (*model.PendingReview, error)
	OpenReviews(ctx context.Context, dealID string) ([]model.PendingReview, error)
	GetReview(ctx context.Context, dealID, reviewID string) (*model.PendingReview, error)
	ApplyResolution(ctx context.Context, w ResolutionWrite) error

	// Alert resolutions
	UpsertResolution(ctx context.Context, res model.AlertResolution) (*model.AlertResolution, error)
	GetResolution(ctx context.Context, dealID, alertKey string) (*model.AlertResolution, error)
	ListResolutions(ctx context.Context, dealID string) ([]model.AlertResolution, error)
	DeleteResolution(ctx context.Context, dealID, alertKey string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
