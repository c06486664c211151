// Package rules holds the business configuration that drives the pipeline:
// workbook layouts, filter lists, category mappings and aggregation panels.
package rules

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"sales-dashboard/internal/models"
)

type StepKind string

const (
	StepInclude StepKind = "include"
	StepExclude StepKind = "exclude"
	StepMap     StepKind = "map"
	StepExtract StepKind = "extract"
)

type MatchMode string

const (
	MatchSubstring MatchMode = "substring"
	MatchRegex     MatchMode = "regex"
)

type Rules struct {
	Profiles []Profile `yaml:"profiles" validate:"required,min=1,dive"`
}

// Profile is one dashboard variant.
type Profile struct {
	Name      string     `yaml:"name" json:"name" validate:"required"`
	Title     string     `yaml:"title" json:"title"`
	Layout    Layout     `yaml:"layout" json:"layout"`
	Steps     []Step     `yaml:"steps" json:"steps" validate:"dive"`
	Selectors []Selector `yaml:"selectors" json:"selectors" validate:"dive"`
	Panels    []Panel    `yaml:"panels" json:"panels" validate:"required,min=1,dive"`
}

// Layout locates the data inside the uploaded workbook. HeaderRow is 1-based.
type Layout struct {
	Sheet     string   `yaml:"sheet" json:"sheet" validate:"required"`
	HeaderRow int      `yaml:"header_row" json:"header_row" validate:"min=1"`
	Columns   []Column `yaml:"columns" json:"columns" validate:"required,min=1,dive"`
}

type Column struct {
	Letter string       `yaml:"letter" json:"letter" validate:"required,alpha,uppercase"`
	Header string       `yaml:"header" json:"header" validate:"required"`
	Field  models.Field `yaml:"field" json:"field" validate:"field"`
}

func (l Layout) Fields() []models.Field {
	fields := make([]models.Field, 0, len(l.Columns))
	for _, c := range l.Columns {
		fields = append(fields, c.Field)
	}
	return fields
}

func (l Layout) Has(f models.Field) bool {
	for _, c := range l.Columns {
		if c.Field == f {
			return true
		}
	}
	return false
}

type Step struct {
	Kind     StepKind          `yaml:"kind" json:"kind" validate:"oneof=include exclude map extract"`
	Field    models.Field      `yaml:"field" json:"field" validate:"categorical"`
	Match    MatchMode         `yaml:"match" json:"match,omitempty" validate:"omitempty,oneof=substring regex"`
	Patterns []string          `yaml:"patterns" json:"patterns,omitempty"`
	Mapping  map[string]string `yaml:"mapping" json:"mapping,omitempty"`
	Pattern  string            `yaml:"pattern" json:"pattern,omitempty"`

	compiled []*regexp.Regexp
}

// Matches reports whether v matches any of the step's patterns.
func (s Step) Matches(v string) bool {
	if s.Match == MatchRegex {
		for _, re := range s.compiled {
			if re.MatchString(v) {
				return true
			}
		}
		return false
	}
	for _, p := range s.Patterns {
		if strings.Contains(v, p) {
			return true
		}
	}
	return false
}

// Regexp returns the extraction pattern of an extract step.
func (s Step) Regexp() *regexp.Regexp {
	if s.Kind != StepExtract || len(s.compiled) == 0 {
		return nil
	}
	return s.compiled[0]
}

func (s Step) String() string {
	return string(s.Kind) + ":" + string(s.Field)
}

const (
	SelectorDefaultAll  = "all"
	SelectorDefaultNone = "none"
)

// Selector is one dropdown. Default decides what an absent choice means and
// is "all" when unset.
type Selector struct {
	Field   models.Field `yaml:"field" json:"field" validate:"categorical"`
	Label   string       `yaml:"label" json:"label"`
	Default string       `yaml:"default" json:"default,omitempty" validate:"omitempty,oneof=all none"`
}

// Initial is the selection used when a request carries no choice for s.
func (s Selector) Initial() models.Selection {
	if s.Default == SelectorDefaultNone {
		return models.Selection{}
	}
	return models.Selection{All: true}
}

type Panel struct {
	Name             string       `yaml:"name" json:"name" validate:"required"`
	Title            string       `yaml:"title" json:"title"`
	GroupBy          models.Field `yaml:"group_by" json:"group_by" validate:"categorical"`
	TopN             int          `yaml:"top_n" json:"top_n,omitempty" validate:"min=0"`
	ThresholdPct     float64      `yaml:"threshold_pct" json:"threshold_pct,omitempty" validate:"min=0,lt=100"`
	Order            string       `yaml:"order" json:"order,omitempty" validate:"omitempty,oneof=key total"`
	Details          bool         `yaml:"details" json:"details,omitempty"`
	HideZeroQuantity bool         `yaml:"hide_zero_quantity" json:"hide_zero_quantity,omitempty"`
}

func (p Panel) Threshold() decimal.Decimal {
	return decimal.NewFromFloat(p.ThresholdPct)
}

func (r *Rules) Profile(name string) (Profile, bool) {
	for _, p := range r.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

func (r *Rules) Names() []string {
	names := make([]string, 0, len(r.Profiles))
	for _, p := range r.Profiles {
		names = append(names, p.Name)
	}
	return names
}
