package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-ledger/internal/model"
)

func res(key string, sev model.Severity, status model.ResolutionStatus) model.AlertResolution {
	return model.AlertResolution{AlertKey: key, AlertSeverity: sev, Status: status}
}

func TestComputeAdjustedScore_NoResolutions(t *testing.T) {
	got := ComputeAdjustedScore(62, nil, DefaultCredits())
	assert.Equal(t, 62.0, got.AdjustedScore)
	assert.Equal(t, 0.0, got.Delta)
	assert.Equal(t, "no adjustment", got.Explanation)
	assert.Empty(t, got.Adjustments)
}

func TestComputeAdjustedScore_CreditsPerTier(t *testing.T) {
	got := ComputeAdjustedScore(50, []model.AlertResolution{
		res("k1", model.SeverityCritical, model.StatusResolved),
		res("k2", model.SeverityHigh, model.StatusAccepted),
		res("k3", model.SeverityMedium, model.StatusResolved),
	}, DefaultCredits())

	assert.Equal(t, 80.0, got.AdjustedScore)
	assert.Equal(t, 30.0, got.Delta)
	require.Len(t, got.Adjustments, 3)
	assert.Equal(t, 15.0, got.Adjustments[0].Points, "adjustments sorted by points descending")
	assert.Equal(t, "recovered 30 points across 3 resolved alerts", got.Explanation)
}

func TestComputeAdjustedScore_ClampedAt100(t *testing.T) {
	got := ComputeAdjustedScore(95, []model.AlertResolution{
		res("k1", model.SeverityCritical, model.StatusResolved),
	}, DefaultCredits())
	assert.Equal(t, 100.0, got.AdjustedScore)
	assert.Equal(t, 5.0, got.Delta)
}

func TestComputeAdjustedScore_OrderIndependent(t *testing.T) {
	a := []model.AlertResolution{
		res("k1", model.SeverityHigh, model.StatusResolved),
		res("k2", model.SeverityCritical, model.StatusResolved),
	}
	b := []model.AlertResolution{a[1], a[0]}

	x := ComputeAdjustedScore(40, a, DefaultCredits())
	y := ComputeAdjustedScore(40, b, DefaultCredits())
	assert.Equal(t, x.AdjustedScore, y.AdjustedScore)
	assert.Equal(t, x.Adjustments, y.Adjustments)
}

func TestComputeAdjustedScore_UnknownSeveritySkipped(t *testing.T) {
	got := ComputeAdjustedScore(50, []model.AlertResolution{
		res("k1", "", model.StatusResolved),
	}, DefaultCredits())
	assert.Equal(t, 0.0, got.Delta)
}

func TestComputeAdjustedScore_DeletedResolutionDropsCredit(t *testing.T) {
	// Unresolving an alert means its row no longer exists; recomputation from
	// the remaining set drops the credit without any stored adjusted score.
	withCredit := ComputeAdjustedScore(60, []model.AlertResolution{
		res("k1", model.SeverityHigh, model.StatusResolved),
	}, DefaultCredits())
	assert.Equal(t, 70.0, withCredit.AdjustedScore)

	after := ComputeAdjustedScore(60, nil, DefaultCredits())
	assert.Equal(t, 60.0, after.AdjustedScore)
	assert.Equal(t, 0.0, after.Delta)
}

func TestComputeAdjustedScore_CustomCredits(t *testing.T) {
	credits := CreditConfig{Critical: 20, High: 8, Medium: 2}
	got := ComputeAdjustedScore(10, []model.AlertResolution{
		res("k1", model.SeverityCritical, model.StatusResolved),
		res("k2", model.SeverityMedium, model.StatusAccepted),
	}, credits)
	assert.Equal(t, 32.0, got.AdjustedScore)
}
