package priority

import (
	"fmt"
	"io"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Candidates"

var exportHeaders = []any{
	"Rank", "Family ID", "Scheme", "Status", "Eligibility Score", "Priority Score",
	"Vulnerability", "Under-covered", "Promoted", "Snapshot ID", "Evaluated At",
}

// ExportXLSX writes a candidate list as a spreadsheet.
func ExportXLSX(list *domain.CandidateList, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, e := range list.Entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			e.Rank, e.FamilyID, e.SchemeCode, string(e.Status), e.EligibilityScore, e.PriorityScore,
			e.VulnerabilityLevel, e.UnderCoverage, e.Promoted, e.SnapshotID, e.EvaluatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
