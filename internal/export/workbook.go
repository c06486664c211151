// Package export writes reports as summary workbooks.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
)

const (
	ContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	FileExtension = ".xlsx"

	summarySheet  = "Summary"
	maxSheetName  = 31
	headerColor   = "1F4E78"
	amountFormat  = "#,##0.00"
	percentFormat = "0.00"
)

var panelHeaders = []any{"Key", "Total", "Total (formatted)", "Percentage", "Quantity", "Rows", "PO Numbers"}

// WriteReport writes a Summary sheet followed by one sheet per panel.
func WriteReport(report *models.Report, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	if err := writeSummary(f, report, styles); err != nil {
		return err
	}

	used := map[string]bool{summarySheet: true}
	for _, p := range report.Panels {
		name := sheetName(p.Name, used)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writePanel(f, name, p, styles); err != nil {
			return fmt.Errorf("write panel %s: %w", p.Name, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

type styles struct {
	title   int
	header  int
	amount  int
	percent int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error

	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return s, fmt.Errorf("title style: %w", err)
	}
	s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerColor}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return s, fmt.Errorf("header style: %w", err)
	}
	amount := amountFormat
	if s.amount, err = f.NewStyle(&excelize.Style{CustomNumFmt: &amount}); err != nil {
		return s, fmt.Errorf("amount style: %w", err)
	}
	percent := percentFormat
	if s.percent, err = f.NewStyle(&excelize.Style{CustomNumFmt: &percent}); err != nil {
		return s, fmt.Errorf("percent style: %w", err)
	}
	return s, nil
}

func writeSummary(f *excelize.File, report *models.Report, st styles) error {
	rows := [][]any{
		{report.Title},
		{},
		{"Dataset", report.DatasetID},
		{"Profile", report.Profile},
		{"Generated", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST")},
		{"Rows", report.Rows},
		{"Total Sales", services.FormatTableCurrency(report.TotalSales)},
		{},
		{"Panel", "Title", "Groups", "Total"},
	}
	for _, p := range report.Panels {
		rows = append(rows, []any{p.Name, p.Title, len(p.Result.Groups), p.Result.FormattedGrandTotal})
	}
	for _, warn := range report.Warnings {
		rows = append(rows, []any{"Warning", warn.Code, warn.Message})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}

	if err := f.SetCellStyle(summarySheet, "A1", "A1", st.title); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A9", "D9", st.header); err != nil {
		return err
	}
	return f.SetColWidth(summarySheet, "A", "B", 24)
}

func writePanel(f *excelize.File, sheet string, p models.PanelResult, st styles) error {
	if err := f.SetSheetRow(sheet, "A1", &panelHeaders); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(panelHeaders), 1)
	if err := f.SetCellStyle(sheet, "A1", last, st.header); err != nil {
		return err
	}

	groups := p.Result.Groups
	if p.Result.Others != nil {
		groups = append(groups[:len(groups):len(groups)], *p.Result.Others)
	}

	for i, g := range groups {
		row := []any{
			g.Key,
			g.Total.InexactFloat64(),
			g.FormattedTotal,
			g.Percentage.Round(2).InexactFloat64(),
			g.Quantity,
			g.Rows,
			strings.Join(g.PONumbers, ", "),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if len(groups) > 0 {
		end := len(groups) + 1
		if err := f.SetCellStyle(sheet, "B2", fmt.Sprintf("B%d", end), st.amount); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "D2", fmt.Sprintf("D%d", end), st.percent); err != nil {
			return err
		}
	}

	totalRow := []any{"Total", p.Result.GrandTotal.InexactFloat64(), p.Result.FormattedGrandTotal, nil, p.Result.GrandQuantity, p.Result.Rows}
	cell, _ := excelize.CoordinatesToCellName(1, len(groups)+2)
	if err := f.SetSheetRow(sheet, cell, &totalRow); err != nil {
		return err
	}

	if err := f.SetColWidth(sheet, "A", "A", 36); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// sheetName makes name a unique, valid worksheet name.
func sheetName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, name)
	if len(clean) > maxSheetName {
		clean = clean[:maxSheetName]
	}
	if clean == "" {
		clean = "Panel"
	}

	candidate := clean
	for i := 2; used[candidate]; i++ {
		suffix := fmt.Sprintf("~%d", i)
		base := clean
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		candidate = base + suffix
	}
	used[candidate] = true
	return candidate
}
