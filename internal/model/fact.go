package model

import (
	"strings"
	"time"
)

// Category buckets a fact by the first segment of its dotted key.
type Category string

const (
	CategoryFinancial   Category = "FINANCIAL"
	CategoryTeam        Category = "TEAM"
	CategoryMarket      Category = "MARKET"
	CategoryProduct     Category = "PRODUCT"
	CategoryLegal       Category = "LEGAL"
	CategoryCompetition Category = "COMPETITION"
	CategoryTraction    Category = "TRACTION"
	CategoryOther       Category = "OTHER"
)

// CategoryFromKey derives the category from a dotted fact key such as
// "financial.arr". Unknown prefixes fall into OTHER.
func CategoryFromKey(factKey string) Category {
	prefix, _, _ := strings.Cut(factKey, ".")
	switch strings.ToLower(prefix) {
	case "financial", "financials":
		return CategoryFinancial
	case "team", "founders":
		return CategoryTeam
	case "market":
		return CategoryMarket
	case "product", "tech":
		return CategoryProduct
	case "legal", "compliance":
		return CategoryLegal
	case "competition", "competitors":
		return CategoryCompetition
	case "traction", "growth":
		return CategoryTraction
	default:
		return CategoryOther
	}
}

// EventType is the lifecycle state of a single ledger entry.
type EventType string

const (
	EventCreated    EventType = "CREATED"
	EventSuperseded EventType = "SUPERSEDED"
	EventDeleted    EventType = "DELETED"
)

// SourceBAOverride is the reserved source marking a human-authored event.
// Events from this source always carry confidence 100.
const SourceBAOverride = "BA_OVERRIDE"

// FactEvent is one immutable entry in the append-only fact ledger.
type FactEvent struct {
	ID                string    `json:"id"`
	Seq               int64     `json:"seq"`
	DealID            string    `json:"deal_id"`
	FactKey           string    `json:"fact_key"`
	Category          Category  `json:"category"`
	Value             FactValue `json:"value"`
	DisplayValue      string    `json:"display_value"`
	Source            string    `json:"source"`
	SourceConfidence  int       `json:"source_confidence"`
	EventType         EventType `json:"event_type"`
	SupersedesEventID string    `json:"supersedes_event_id,omitempty"`
	CreatedBy         string    `json:"created_by,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// CurrentFact is the derived "latest accepted" view of one (deal, factKey),
// projected from the event history. It is never stored.
type CurrentFact struct {
	DealID              string      `json:"deal_id"`
	FactKey             string      `json:"fact_key"`
	Category            Category    `json:"category"`
	CurrentEventID      string      `json:"current_event_id"`
	CurrentValue        FactValue   `json:"current_value"`
	CurrentDisplayValue string      `json:"current_display_value"`
	CurrentSource       string      `json:"current_source"`
	CurrentConfidence   int         `json:"current_confidence"`
	IsDisputed          bool        `json:"is_disputed"`
	DisputeDetails      []string    `json:"dispute_details,omitempty"`
	EventHistory        []FactEvent `json:"event_history,omitempty"`
	FirstSeenAt         time.Time   `json:"first_seen_at"`
	LastUpdatedAt       time.Time   `json:"last_updated_at"`
}
