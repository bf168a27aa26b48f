// Package report renders a completed analysis as an XLSX workbook, the
// hand-off format used by the appraisal teams that consume these results.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/dpr-analyzer/internal/pipeline"
)

// Service produces XLSX bytes for completed jobs.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BuildJobReportXLSX renders one succeeded job. Callers must pass a snapshot
// with a result; anything else is rejected.
func (s *Service) BuildJobReportXLSX(snap pipeline.Snapshot) ([]byte, error) {
	start := time.Now()
	if snap.Result == nil {
		return nil, fmt.Errorf("job %s has no result to report", snap.ID)
	}
	res := snap.Result

	f := excelize.NewFile()
	const sheet = "Analysis"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	row := 1
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	pair := func(label string, v any) {
		write(1, label)
		write(2, v)
		row++
	}

	pair("Document", res.Filename)
	pair("Received", res.ReceivedAt.Format("2006-01-02 15:04:05 MST"))
	pair("Size (bytes)", res.SizeBytes)
	pair("Status", string(snap.Status))
	pair("Text Artifact", res.TxtFilename)
	pair("Structured Artifact", res.JSONFilename)
	row++

	if p := res.Prediction; p.Available {
		pair("Feasibility", p.Feasibility)
		pair("Confidence", p.Confidence)
		if p.Probabilities != nil {
			pair("P(Feasible)", p.Probabilities.Feasible)
			pair("P(Risky)", p.Probabilities.Risky)
		}
		if p.Signals != nil {
			pair("Budget (crores)", p.Signals.BudgetCrores)
			pair("Timeline (months)", p.Signals.TimelineMonths)
		}

		if len(p.TopFeatures) > 0 {
			row++
			write(1, "Feature")
			write(2, "Importance")
			write(3, "Kind")
			row++
			for _, feat := range p.TopFeatures {
				write(1, feat.Name)
				write(2, feat.Importance)
				write(3, feat.Kind)
				row++
			}
		}
	} else {
		pair("Feasibility Analysis", "unavailable")
		pair("Reason", p.Reason)
	}

	_ = f.SetColWidth(sheet, "A", "A", 26)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	_ = f.SetColWidth(sheet, "C", "C", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("report.xlsx.ok",
		"job_id", snap.ID.String(),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
