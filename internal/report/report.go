// Package report renders attempt results and roadmaps as Excel workbooks.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mirkovic-academy/quantframe/internal/exam"
	"github.com/mirkovic-academy/quantframe/internal/progress"
	"github.com/mirkovic-academy/quantframe/internal/roadmap"
)

// ContentType is the MIME type of the written workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names.
const (
	SheetSummary   = "Summary"
	SheetQuestions = "Questions"
	SheetHistory   = "History"
	SheetRoadmap   = "Roadmap"
)

// Attempt is the input to an attempt workbook.
type Attempt struct {
	Title     string
	Key       progress.Key
	Questions []exam.Question
	Result    exam.Result
	// History lists earlier attempts; the sheet is omitted when empty.
	History []progress.AttemptRecord
}

// WriteAttempt writes the workbook for a graded attempt. Disqualified
// answers are listed as such, separate from incorrect ones.
func WriteAttempt(w io.Writer, a Attempt) error {
	f := excelize.NewFile()
	defer f.Close()

	res := a.Result
	summary := [][]any{
		{"Title", a.Title},
		{"User", a.Key.UserID},
		{"Instance", a.Key.InstanceID},
		{"Attempt", res.AttemptNumber},
		{"Score", fmt.Sprintf("%d/%d", res.Score, res.Total)},
		{"Passing percent", res.PassingPercent},
		{"Passed", yesNo(res.Passed)},
		{"Unanswered", res.Unanswered()},
	}
	if err := writeSheet(f, SheetSummary, nil, summary); err != nil {
		return err
	}

	prompts := make(map[string]string, len(a.Questions))
	for _, q := range a.Questions {
		prompts[q.ID] = q.Prompt
	}
	rows := make([][]any, 0, len(res.Questions))
	for i, qr := range res.Questions {
		rows = append(rows, []any{i + 1, qr.QuestionID, prompts[qr.QuestionID], qr.Answer, string(qr.Outcome), yesNo(qr.SolutionViewed)})
	}
	header := []any{"#", "Question ID", "Prompt", "Answer", "Outcome", "Solution viewed"}
	if err := writeSheet(f, SheetQuestions, header, rows); err != nil {
		return err
	}

	if len(a.History) > 0 {
		rows = rows[:0]
		for _, h := range a.History {
			rows = append(rows, []any{h.AttemptNumber, h.Score, h.Total, yesNo(h.Passed), h.SubmittedAt.UTC().Format(time.RFC3339)})
		}
		header = []any{"Attempt", "Score", "Total", "Passed", "Submitted at"}
		if err := writeSheet(f, SheetHistory, header, rows); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(SheetQuestions, "C", "C", 60); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	return write(f, w)
}

// WriteRoadmap writes a roadmap workbook with one row per node.
func WriteRoadmap(w io.Writer, rm roadmap.Roadmap) error {
	f := excelize.NewFile()
	defer f.Close()

	summary := [][]any{
		{"Goal", string(rm.Goal)},
		{"Catalog version", rm.CatalogVersion},
		{"Nodes", rm.NodeCount()},
		{"Total hours", rm.TotalHours()},
	}
	for _, ph := range rm.Phases {
		summary = append(summary, []any{fmt.Sprintf("Phase %d: %s", ph.Number, ph.Title), ph.Hours()})
	}
	if err := writeSheet(f, SheetSummary, nil, summary); err != nil {
		return err
	}

	var rows [][]any
	for _, ph := range rm.Phases {
		for _, n := range ph.Nodes {
			rows = append(rows, []any{
				ph.Number, ph.Title, n.Title, string(n.Subject), string(n.Kind), n.Hours,
				strings.Join(n.Prerequisites, ", "),
				strings.Join(n.CoveredByBackground, ", "),
				n.WhyIncluded,
			})
		}
	}
	header := []any{"Phase", "Phase title", "Title", "Subject", "Kind", "Hours", "Prerequisites", "Covered by background", "Why included"}
	if err := writeSheet(f, SheetRoadmap, header, rows); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetRoadmap, "I", "I", 80); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	return write(f, w)
}

// writeSheet fills a sheet, creating it unless it is the first one. The
// header row is bold.
func writeSheet(f *excelize.File, name string, header []any, rows [][]any) error {
	if list := f.GetSheetList(); len(list) == 1 && list[0] == "Sheet1" {
		if err := f.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("naming sheet %s: %w", name, err)
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("creating sheet %s: %w", name, err)
	}

	row := 1
	if header != nil {
		if err := setRow(f, name, row, header); err != nil {
			return err
		}
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("creating header style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(len(header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(name, "A1", last, style); err != nil {
			return fmt.Errorf("styling header: %w", err)
		}
		row++
	}
	for _, r := range rows {
		if err := setRow(f, name, row, r); err != nil {
			return err
		}
		row++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

func write(f *excelize.File, w io.Writer) error {
	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
