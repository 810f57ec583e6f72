package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-ledger/internal/model"
)

func fiveAgentArrFlags() []model.AgentFlags {
	return []model.AgentFlags{
		{Agent: "financial_agent", Flags: []model.RedFlag{{
			Title: "ARR inconsistency", Category: "financial", Severity: model.SeverityHigh,
			Evidence: "Deck states $1.2M ARR, bank statements imply $950K.",
		}}},
		{Agent: "market_agent", Flags: []model.RedFlag{{
			Title: "MRR/ARR mismatch", Category: "financial", Severity: model.SeverityHigh,
		}}},
		{Agent: "devils_advocate", Flags: []model.RedFlag{{
			Title: "Conflicting ARR", Category: "financial", Severity: model.SeverityCritical,
			Evidence: "Reported ARR conflicts across the deck, the data room, and the bank statements provided.",
		}}},
		{Agent: "legal_agent", Flags: []model.RedFlag{{
			Title: "ARR discrepancy detected", Category: "financial", Severity: model.SeverityMedium,
		}}},
		{Agent: "traction_agent", Flags: []model.RedFlag{{
			Title: "Inconsistent ARR", Category: "financial", Severity: model.SeverityHigh,
		}}},
	}
}

func TestConsolidate_MergesAcrossAgents(t *testing.T) {
	out := Consolidate(fiveAgentArrFlags(), nil)

	require.Len(t, out, 1, "five wordings of one problem collapse into one alert")
	cf := out[0]
	assert.Equal(t, model.SeverityCritical, cf.Severity, "severity merges to the maximum seen")
	assert.Equal(t, []string{"financial_agent", "market_agent", "devils_advocate", "legal_agent", "traction_agent"}, cf.DetectedBy)
	assert.Len(t, cf.Duplicates, 5, "every raw flag retained verbatim")
	assert.Contains(t, cf.Evidence, "data room", "longest evidence wins")
}

func TestConsolidate_Idempotent(t *testing.T) {
	first := Consolidate(fiveAgentArrFlags(), nil)
	second := Consolidate(Flatten(first), nil)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Topic, second[i].Topic)
		assert.Equal(t, first[i].Severity, second[i].Severity)
		assert.ElementsMatch(t, first[i].DetectedBy, second[i].DetectedBy)
		assert.Len(t, second[i].Duplicates, len(first[i].Duplicates))
	}
}

func TestConsolidate_DistinctTopicsStaySeparate(t *testing.T) {
	in := []model.AgentFlags{
		{Agent: "financial_agent", Flags: []model.RedFlag{
			{Title: "ARR mismatch", Category: "financial", Severity: model.SeverityHigh},
			{Title: "Short runway", Category: "financial", Severity: model.SeverityMedium},
		}},
		{Agent: "legal_agent", Flags: []model.RedFlag{
			{Title: "Pending lawsuit", Category: "legal", Severity: model.SeverityCritical},
		}},
	}
	out := Consolidate(in, nil)
	require.Len(t, out, 3)
}

func TestConsolidate_SortsBySeverityThenConsensus(t *testing.T) {
	in := []model.AgentFlags{
		{Agent: "a1", Flags: []model.RedFlag{
			{Title: "Short runway", Category: "financial", Severity: model.SeverityMedium},
			{Title: "Pending lawsuit", Category: "legal", Severity: model.SeverityCritical},
			{Title: "Founder churn", Category: "team", Severity: model.SeverityHigh},
		}},
		{Agent: "a2", Flags: []model.RedFlag{
			{Title: "Short runway", Category: "financial", Severity: model.SeverityMedium},
		}},
	}
	out := Consolidate(in, nil)

	require.Len(t, out, 3)
	assert.Equal(t, model.SeverityCritical, out[0].Severity)
	assert.Equal(t, model.SeverityHigh, out[1].Severity)
	// Within equal severity, more detectors would rank first; here the
	// two-detector runway flag is MEDIUM and lands last regardless.
	assert.Len(t, out[2].DetectedBy, 2)
}

func TestConsolidate_SeverityNeverRegresses(t *testing.T) {
	// CRITICAL arrives first, weaker duplicates follow.
	in := []model.AgentFlags{
		{Agent: "a1", Flags: []model.RedFlag{
			{Title: "ARR mismatch", Category: "financial", Severity: model.SeverityCritical},
		}},
		{Agent: "a2", Flags: []model.RedFlag{
			{Title: "ARR mismatch", Category: "financial", Severity: model.SeverityMedium},
		}},
	}
	out := Consolidate(in, nil)
	require.Len(t, out, 1)
	assert.Equal(t, model.SeverityCritical, out[0].Severity)
}

func TestConsolidate_SameAgentDuplicateCountedOnce(t *testing.T) {
	in := []model.AgentFlags{
		{Agent: "a1", Flags: []model.RedFlag{
			{Title: "ARR mismatch", Category: "financial", Severity: model.SeverityHigh},
			{Title: "ARR inconsistency", Category: "financial", Severity: model.SeverityHigh},
		}},
	}
	out := Consolidate(in, nil)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"a1"}, out[0].DetectedBy)
	assert.Len(t, out[0].Duplicates, 2)
}

func TestConsolidate_Empty(t *testing.T) {
	assert.Empty(t, Consolidate(nil, nil))
	assert.Empty(t, Consolidate([]model.AgentFlags{{Agent: "a1"}}, nil))
}
