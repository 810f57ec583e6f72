package model

import "time"

// Decision is the human verdict applied to a pending review.
type Decision string

const (
	DecisionAcceptNew    Decision = "ACCEPT_NEW"
	DecisionKeepExisting Decision = "KEEP_EXISTING"
	DecisionOverride     Decision = "OVERRIDE"
)

// PendingReview is a queued contradiction awaiting a human decision. It holds
// both sides' full provenance so the reviewer never needs to replay the log.
// A review is destroyed when its decision is applied; there is no reopening.
type PendingReview struct {
	ID                   string    `json:"id"`
	DealID               string    `json:"deal_id"`
	FactKey              string    `json:"fact_key"`
	Category             Category  `json:"category"`
	NewValue             FactValue `json:"new_value"`
	NewDisplayValue      string    `json:"new_display_value"`
	NewSource            string    `json:"new_source"`
	NewConfidence        int       `json:"new_confidence"`
	ExistingEventID      string    `json:"existing_event_id"`
	ExistingValue        FactValue `json:"existing_value"`
	ExistingDisplayValue string    `json:"existing_display_value"`
	ExistingSource       string    `json:"existing_source"`
	ExistingConfidence   int       `json:"existing_confidence"`
	ContradictionReason  string    `json:"contradiction_reason"`
	CreatedAt            time.Time `json:"created_at"`
}
