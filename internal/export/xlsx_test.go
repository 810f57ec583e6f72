package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/diligence-ledger/internal/model"
)

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deal.xlsx")
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	deal := model.Deal{ID: "deal-1", Name: "Project Nimbus"}
	facts := []model.CurrentFact{{
		FactKey:             "financial.arr",
		Category:            model.CategoryFinancial,
		CurrentDisplayValue: "1,200,000",
		CurrentSource:       "financial_agent",
		CurrentConfidence:   85,
		IsDisputed:          true,
		LastUpdatedAt:       at,
	}}
	reviews := []model.PendingReview{{
		FactKey:              "financial.arr",
		ExistingDisplayValue: "1,200,000",
		ExistingSource:       "financial_agent",
		NewDisplayValue:      "950,000",
		NewSource:            "market_agent",
		ContradictionReason:  "market_agent reports a conflicting value",
	}}
	resolutions := []model.AlertResolution{{
		AlertKey:      "abc123",
		AlertTitle:    "ARR mismatch",
		AlertSeverity: model.SeverityHigh,
		Status:        model.StatusResolved,
		Justification: "reconciled against bank statements",
		CreatedBy:     "analyst-1",
		CreatedAt:     at,
	}}

	require.NoError(t, WriteWorkbook(path, deal, facts, reviews, resolutions))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	assert.Equal(t, "Facts", f.Sheets[0].Name)
	assert.Equal(t, "Open Reviews", f.Sheets[1].Name)
	assert.Equal(t, "Alert Resolutions", f.Sheets[2].Name)

	// Header plus one data row per sheet.
	require.Len(t, f.Sheets[0].Rows, 2)
	factRow := f.Sheets[0].Rows[1]
	assert.Equal(t, "financial.arr", factRow.Cells[0].String())
	assert.Equal(t, "1,200,000", factRow.Cells[2].String())
	assert.Equal(t, "YES", factRow.Cells[5].String())

	resRow := f.Sheets[2].Rows[1]
	assert.Equal(t, "ARR mismatch", resRow.Cells[0].String())
	assert.Equal(t, "RESOLVED", resRow.Cells[2].String())
}

func TestWriteWorkbook_EmptyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteWorkbook(path, model.Deal{ID: "deal-1"}, nil, nil, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	assert.Len(t, f.Sheets[0].Rows, 1, "header only")
}

func TestWriteWorkbook_FallsBackToAlertKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deal.xlsx")
	resolutions := []model.AlertResolution{{
		AlertKey: "abc123", Status: model.StatusAccepted, Justification: "accepted",
		CreatedAt: time.Now(),
	}}
	require.NoError(t, WriteWorkbook(path, model.Deal{ID: "deal-1"}, nil, nil, resolutions))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", f.Sheets[2].Rows[1].Cells[0].String())
}
