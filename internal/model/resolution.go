package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AlertType classifies the analysis surface an alert came from.
type AlertType string

const (
	AlertRedFlag        AlertType = "RED_FLAG"
	AlertDevilsAdvocate AlertType = "DEVILS_ADVOCATE"
)

// ResolutionStatus is the human verdict on an alert.
type ResolutionStatus string

const (
	StatusResolved ResolutionStatus = "RESOLVED"
	StatusAccepted ResolutionStatus = "ACCEPTED"
)

// AlertResolution records a human decision on a consolidated alert, keyed by
// the alert's deterministic identity. Deleting it reverts the alert to
// unresolved; re-creating after deletion is allowed.
type AlertResolution struct {
	AlertKey      string           `json:"alert_key"`
	DealID        string           `json:"deal_id"`
	AlertType     AlertType        `json:"alert_type"`
	Status        ResolutionStatus `json:"status"`
	Justification string           `json:"justification"`
	AlertTitle    string           `json:"alert_title,omitempty"`
	AlertSeverity Severity         `json:"alert_severity,omitempty"`
	AlertCategory string           `json:"alert_category,omitempty"`
	CreatedBy     string           `json:"created_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AlertKey derives the deterministic key for an alert from its type and
// stable identity text (a canonical topic, or a kill-reason). The same
// inputs always reproduce the same key, so resolutions re-attach correctly
// across repeated consolidation runs.
func AlertKey(alertType AlertType, identity string) string {
	sum := sha256.Sum256([]byte(string(alertType) + "\x1f" + identity))
	return hex.EncodeToString(sum[:8])
}
