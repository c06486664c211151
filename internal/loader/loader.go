// Package loader turns an uploaded workbook into a Dataset using a fixed
// sheet, header row and column selection.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	apperrors "sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/rules"
)

type column struct {
	index  int
	header string
	field  models.Field
}

// Checksum identifies workbook content independently of its file name.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load reads layout.Sheet from r. Any structural problem is a LOAD_ERROR and
// no partial Dataset is returned.
func Load(ctx context.Context, r io.Reader, layout rules.Layout) (*models.Dataset, error) {
	h := sha256.New()
	f, err := excelize.OpenReader(io.TeeReader(r, h))
	if err != nil {
		return nil, apperrors.LoadWrap(err, "file is not a well-formed xlsx workbook")
	}
	defer f.Close()

	if !slices.Contains(f.GetSheetList(), layout.Sheet) {
		return nil, apperrors.Load("sheet %q not found", layout.Sheet).
			WithDetails("available: " + strings.Join(f.GetSheetList(), ", "))
	}

	rows, err := f.GetRows(layout.Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.LoadWrap(err, "read sheet rows")
	}

	if len(rows) < layout.HeaderRow {
		return nil, apperrors.Load("header row %d is beyond the last row (%d) of sheet %q", layout.HeaderRow, len(rows), layout.Sheet)
	}

	cols, err := resolveColumns(rows[layout.HeaderRow-1], layout)
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(rows)-layout.HeaderRow)
	for i, row := range rows[layout.HeaderRow:] {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, blank := parseRow(row, cols)
		if blank {
			continue
		}
		records = append(records, rec)
	}

	return &models.Dataset{
		Checksum: hex.EncodeToString(h.Sum(nil)),
		Sheet:    layout.Sheet,
		Fields:   layout.Fields(),
		Records:  records,
		LoadedAt: time.Now().UTC(),
	}, nil
}

func resolveColumns(header []string, layout rules.Layout) ([]column, error) {
	cols := make([]column, 0, len(layout.Columns))
	var mismatches []string

	for _, c := range layout.Columns {
		num, err := excelize.ColumnNameToNumber(c.Letter)
		if err != nil {
			return nil, apperrors.LoadWrap(err, "invalid column letter "+c.Letter)
		}
		got := strings.TrimSpace(cell(header, num-1))
		if got != c.Header {
			mismatches = append(mismatches, fmt.Sprintf("%s%d: want %q, got %q", c.Letter, layout.HeaderRow, c.Header, got))
			continue
		}
		cols = append(cols, column{index: num - 1, header: c.Header, field: c.Field})
	}

	if len(mismatches) > 0 {
		return nil, apperrors.Load("workbook columns do not match the expected layout").
			WithDetails(strings.Join(mismatches, "; "))
	}
	return cols, nil
}

func parseRow(row []string, cols []column) (models.Record, bool) {
	var rec models.Record
	blank := true

	for _, c := range cols {
		raw := strings.TrimSpace(cell(row, c.index))
		if raw != "" {
			blank = false
		}
		switch c.field {
		case models.FieldTotal:
			rec.Total = parseAmount(raw)
		case models.FieldQuantity:
			rec.Quantity = parseQuantity(raw)
		default:
			rec = rec.With(c.field, raw)
		}
	}

	return rec, blank
}

func parseAmount(raw string) decimal.NullDecimal {
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func parseQuantity(raw string) int64 {
	if raw == "" {
		return 0
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return 0
	}
	return d.IntPart()
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
