package services

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatCurrency renders d as US dollars rounded to cents, e.g. -$1,234.50.
func FormatCurrency(d decimal.Decimal) string {
	sign, body := grouped(d)
	return sign + "$" + body
}

// FormatTableCurrency is the spaced variant used in summary tables: $ 1,234.50.
func FormatTableCurrency(d decimal.Decimal) string {
	sign, body := grouped(d)
	return sign + "$ " + body
}

func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

func FormatQuantity(n int64) string {
	return printer.Sprintf("%d", n)
}

// grouped rounds d to two places and returns its sign and digits with
// thousands separators.
func grouped(d decimal.Decimal) (string, string) {
	r := d.Round(2)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Abs()
	}

	_, frac, _ := strings.Cut(r.StringFixed(2), ".")
	return sign, printer.Sprintf("%d", r.IntPart()) + "." + frac
}
