// Package testutil builds in-memory workbooks for tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/xuri/excelize/v2"

	"sales-dashboard/internal/rules"
)

// Row maps a column letter to a cell value.
type Row map[string]any

// Workbook writes layout's headers on its header row and rows beneath it,
// with a title on row 1 like the exported sales report.
func Workbook(t testing.TB, layout rules.Layout, rows []Row) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", layout.Sheet); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	if err := f.SetCellValue(layout.Sheet, "A1", "Report 1"); err != nil {
		t.Fatalf("write title: %v", err)
	}

	for _, c := range layout.Columns {
		ref := fmt.Sprintf("%s%d", c.Letter, layout.HeaderRow)
		if err := f.SetCellValue(layout.Sheet, ref, c.Header); err != nil {
			t.Fatalf("write header %s: %v", ref, err)
		}
	}

	for i, row := range rows {
		for letter, v := range row {
			ref := fmt.Sprintf("%s%d", letter, layout.HeaderRow+1+i)
			if err := f.SetCellValue(layout.Sheet, ref, v); err != nil {
				t.Fatalf("write cell %s: %v", ref, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

// SalesLayout is a compact layout covering every field.
func SalesLayout() rules.Layout {
	return rules.Layout{
		Sheet:     "Report 1",
		HeaderRow: 2,
		Columns: []rules.Column{
			{Letter: "A", Header: "Fiscal Qtr", Field: "fiscal_qtr"},
			{Letter: "B", Header: "Sales Force Id", Field: "sales_force"},
			{Letter: "C", Header: "MPG Id", Field: "product_group"},
			{Letter: "D", Header: "Sales Rep Name", Field: "sales_rep"},
			{Letter: "E", Header: "Ship To Name", Field: "ship_to"},
			{Letter: "F", Header: "Invoice Number", Field: "invoice_number"},
			{Letter: "G", Header: "Sales Order PO Number", Field: "po_number"},
			{Letter: "H", Header: "CFN Id", Field: "cfn"},
			{Letter: "I", Header: "Quantity", Field: "quantity"},
			{Letter: "J", Header: "Total", Field: "total"},
		},
	}
}
