// Package scoring recomputes a deal score with credit for resolved alerts.
package scoring

import (
	"fmt"
	"sort"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// CreditConfig sets the points recovered per severity tier when an alert is
// resolved or accepted.
type CreditConfig struct {
	Critical float64 `yaml:"critical" mapstructure:"critical"`
	High     float64 `yaml:"high" mapstructure:"high"`
	Medium   float64 `yaml:"medium" mapstructure:"medium"`
}

// DefaultCredits returns the standard per-tier credit table.
func DefaultCredits() CreditConfig {
	return CreditConfig{Critical: 15, High: 10, Medium: 5}
}

func (c CreditConfig) points(sev model.Severity) float64 {
	switch sev {
	case model.SeverityCritical:
		return c.Critical
	case model.SeverityHigh:
		return c.High
	case model.SeverityMedium:
		return c.Medium
	}
	return 0
}

// Adjustment explains one resolution's contribution to the adjusted score.
type Adjustment struct {
	AlertKey string                 `json:"alert_key"`
	Title    string                 `json:"title,omitempty"`
	Severity model.Severity         `json:"severity"`
	Status   model.ResolutionStatus `json:"status"`
	Points   float64                `json:"points"`
}

// Result is the adjusted-score computation output. Delta == 0 means no
// adjustment applies.
type Result struct {
	OriginalScore float64      `json:"original_score"`
	AdjustedScore float64      `json:"adjusted_score"`
	Delta         float64      `json:"delta"`
	Explanation   string       `json:"explanation"`
	Adjustments   []Adjustment `json:"adjustments,omitempty"`
}

// ComputeAdjustedScore credits the original score for every RESOLVED or
// ACCEPTED alert, summing per-tier credits over the set. Order-independent;
// the result never exceeds 100 and never drops below the original score.
func ComputeAdjustedScore(originalScore float64, resolutions []model.AlertResolution, credits CreditConfig) Result {
	var recovered float64
	var adjustments []Adjustment

	for _, res := range resolutions {
		if res.Status != model.StatusResolved && res.Status != model.StatusAccepted {
			continue
		}
		points := credits.points(res.AlertSeverity)
		if points == 0 {
			continue
		}
		recovered += points
		adjustments = append(adjustments, Adjustment{
			AlertKey: res.AlertKey,
			Title:    res.AlertTitle,
			Severity: res.AlertSeverity,
			Status:   res.Status,
			Points:   points,
		})
	}
	sort.Slice(adjustments, func(i, j int) bool {
		if adjustments[i].Points != adjustments[j].Points {
			return adjustments[i].Points > adjustments[j].Points
		}
		return adjustments[i].AlertKey < adjustments[j].AlertKey
	})

	adjusted := originalScore + recovered
	if adjusted > 100 {
		adjusted = 100
	}
	if adjusted < originalScore {
		adjusted = originalScore
	}

	result := Result{
		OriginalScore: originalScore,
		AdjustedScore: adjusted,
		Delta:         adjusted - originalScore,
		Adjustments:   adjustments,
	}
	if result.Delta == 0 {
		result.Explanation = "no adjustment"
	} else {
		result.Explanation = fmt.Sprintf(
			"recovered %.0f points across %d resolved alerts", result.Delta, len(adjustments),
		)
	}
	return result
}
