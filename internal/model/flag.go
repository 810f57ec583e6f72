package model

// Severity ranks a red flag. The ordering is CRITICAL > HIGH > MEDIUM;
// merging never regresses toward a weaker severity.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Rank returns the numeric strength of a severity for max/sort comparisons.
// Unknown severities rank below MEDIUM.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// MaxSeverity returns the stronger of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// RedFlag is one raw warning emitted by a single agent.
type RedFlag struct {
	Title       string   `json:"title"`
	Category    string   `json:"category,omitempty"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description,omitempty"`
	Evidence    string   `json:"evidence,omitempty"`
	Impact      string   `json:"impact,omitempty"`
	Question    string   `json:"question,omitempty"`
}

// AgentFlags is the full red-flag output of one agent for an analysis run.
type AgentFlags struct {
	Agent string    `json:"agent"`
	Flags []RedFlag `json:"red_flags"`
}

// FlagInstance is a raw flag retained verbatim with its originating agent,
// kept inside a consolidated flag for audit and expand-to-detail views.
type FlagInstance struct {
	Agent string  `json:"agent"`
	Flag  RedFlag `json:"flag"`
}

// ConsolidatedFlag is the deduplicated, cross-agent-merged form of a red
// flag: one entry per inferred topic, computed fresh per analysis run.
type ConsolidatedFlag struct {
	Topic       string         `json:"topic"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Evidence    string         `json:"evidence,omitempty"`
	Impact      string         `json:"impact,omitempty"`
	Question    string         `json:"question,omitempty"`
	DetectedBy  []string       `json:"detected_by"`
	Duplicates  []FlagInstance `json:"duplicates"`

	// AlertKey and Resolution are attached by consumers that join the
	// consolidated view against stored resolutions; Resolution stays nil
	// while the alert is unresolved.
	AlertKey   string           `json:"alert_key,omitempty"`
	Resolution *AlertResolution `json:"resolution,omitempty"`
}
