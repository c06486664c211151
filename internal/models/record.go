package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field names one attribute of a sales line item.
type Field string

const (
	FieldSalesRep      Field = "sales_rep"
	FieldShipTo        Field = "ship_to"
	FieldFiscalQtr     Field = "fiscal_qtr"
	FieldPONumber      Field = "po_number"
	FieldInvoiceNumber Field = "invoice_number"
	FieldSalesForce    Field = "sales_force"
	FieldProductGroup  Field = "product_group"
	FieldCFN           Field = "cfn"
	FieldTotal         Field = "total"
	FieldQuantity      Field = "quantity"
)

var categoricalFields = []Field{
	FieldSalesRep,
	FieldShipTo,
	FieldFiscalQtr,
	FieldPONumber,
	FieldInvoiceNumber,
	FieldSalesForce,
	FieldProductGroup,
	FieldCFN,
}

func CategoricalFields() []Field {
	out := make([]Field, len(categoricalFields))
	copy(out, categoricalFields)
	return out
}

func (f Field) Valid() bool {
	return f.Categorical() || f.Numeric()
}

func (f Field) Categorical() bool {
	for _, c := range categoricalFields {
		if c == f {
			return true
		}
	}
	return false
}

func (f Field) Numeric() bool {
	return f == FieldTotal || f == FieldQuantity
}

// Record is a single sales line item. Total is null when the source cell
// was blank or not a number.
type Record struct {
	SalesRep      string              `json:"sales_rep,omitempty"`
	ShipTo        string              `json:"ship_to,omitempty"`
	FiscalQtr     string              `json:"fiscal_qtr,omitempty"`
	PONumber      string              `json:"po_number,omitempty"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	SalesForce    string              `json:"sales_force,omitempty"`
	ProductGroup  string              `json:"product_group,omitempty"`
	CFN           string              `json:"cfn,omitempty"`
	Total         decimal.NullDecimal `json:"total"`
	Quantity      int64               `json:"quantity"`
}

// Value returns the categorical value stored under f. Numeric fields
// return their canonical string form.
func (r Record) Value(f Field) string {
	switch f {
	case FieldSalesRep:
		return r.SalesRep
	case FieldShipTo:
		return r.ShipTo
	case FieldFiscalQtr:
		return r.FiscalQtr
	case FieldPONumber:
		return r.PONumber
	case FieldInvoiceNumber:
		return r.InvoiceNumber
	case FieldSalesForce:
		return r.SalesForce
	case FieldProductGroup:
		return r.ProductGroup
	case FieldCFN:
		return r.CFN
	case FieldTotal:
		if !r.Total.Valid {
			return ""
		}
		return r.Total.Decimal.String()
	case FieldQuantity:
		return decimal.NewFromInt(r.Quantity).String()
	}
	return ""
}

// With returns a copy of r with the categorical field f set to v.
// Numeric fields are left untouched.
func (r Record) With(f Field, v string) Record {
	switch f {
	case FieldSalesRep:
		r.SalesRep = v
	case FieldShipTo:
		r.ShipTo = v
	case FieldFiscalQtr:
		r.FiscalQtr = v
	case FieldPONumber:
		r.PONumber = v
	case FieldInvoiceNumber:
		r.InvoiceNumber = v
	case FieldSalesForce:
		r.SalesForce = v
	case FieldProductGroup:
		r.ProductGroup = v
	case FieldCFN:
		r.CFN = v
	}
	return r
}

// Amount is the record total with null treated as zero.
func (r Record) Amount() decimal.Decimal {
	if !r.Total.Valid {
		return decimal.Zero
	}
	return r.Total.Decimal
}

// Dataset is the immutable table produced from one uploaded workbook.
// Transforms build a new Dataset through Derive and never write to Records.
type Dataset struct {
	ID       string    `json:"id"`
	Checksum string    `json:"checksum"`
	Profile  string    `json:"profile"`
	Sheet    string    `json:"sheet"`
	Fields   []Field   `json:"fields"`
	Records  []Record  `json:"-"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

func (d *Dataset) Has(f Field) bool {
	for _, loaded := range d.Fields {
		if loaded == f {
			return true
		}
	}
	return false
}

// Derive returns a Dataset with the same metadata and the given records.
func (d *Dataset) Derive(records []Record) *Dataset {
	next := *d
	next.Records = records
	return &next
}
