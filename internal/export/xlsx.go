// Package export writes a due-diligence workbook from the projected ledger
// state: current facts, open reviews, and alert resolutions, one sheet each.
package export

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/diligence-ledger/internal/model"
)

// WriteWorkbook renders the deal's projected state to an XLSX file at path.
func WriteWorkbook(path string, deal model.Deal, facts []model.CurrentFact, reviews []model.PendingReview, resolutions []model.AlertResolution) error {
	f := xlsx.NewFile()

	if err := addFactsSheet(f, facts); err != nil {
		return err
	}
	if err := addReviewsSheet(f, reviews); err != nil {
		return err
	}
	if err := addResolutionsSheet(f, resolutions); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook for deal %s", deal.ID)
	}
	return nil
}

func addFactsSheet(f *xlsx.File, facts []model.CurrentFact) error {
	sheet, err := f.AddSheet("Facts")
	if err != nil {
		return eris.Wrap(err, "export: add facts sheet")
	}
	addRow(sheet, "Fact Key", "Category", "Value", "Source", "Confidence", "Disputed", "Last Updated")
	for _, fact := range facts {
		disputed := ""
		if fact.IsDisputed {
			disputed = "YES"
		}
		addRow(sheet,
			fact.FactKey,
			string(fact.Category),
			fact.CurrentDisplayValue,
			fact.CurrentSource,
			fmt.Sprintf("%d", fact.CurrentConfidence),
			disputed,
			fact.LastUpdatedAt.Format("2006-01-02"),
		)
	}
	return nil
}

func addReviewsSheet(f *xlsx.File, reviews []model.PendingReview) error {
	sheet, err := f.AddSheet("Open Reviews")
	if err != nil {
		return eris.Wrap(err, "export: add reviews sheet")
	}
	addRow(sheet, "Fact Key", "Existing Value", "Existing Source", "Candidate Value", "Candidate Source", "Reason")
	for _, r := range reviews {
		addRow(sheet,
			r.FactKey,
			r.ExistingDisplayValue,
			r.ExistingSource,
			r.NewDisplayValue,
			r.NewSource,
			r.ContradictionReason,
		)
	}
	return nil
}

func addResolutionsSheet(f *xlsx.File, resolutions []model.AlertResolution) error {
	sheet, err := f.AddSheet("Alert Resolutions")
	if err != nil {
		return eris.Wrap(err, "export: add resolutions sheet")
	}
	addRow(sheet, "Alert", "Severity", "Status", "Justification", "Resolved By", "Resolved At")
	for _, r := range resolutions {
		title := r.AlertTitle
		if title == "" {
			title = r.AlertKey
		}
		addRow(sheet,
			title,
			string(r.AlertSeverity),
			string(r.Status),
			r.Justification,
			r.CreatedBy,
			r.CreatedAt.Format("2006-01-02"),
		)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
