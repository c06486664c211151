package rules

import (
	"bytes"
	_ "embed"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	apperrors "sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

//go:embed default.yaml
var defaultRules []byte

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("field", func(fl validator.FieldLevel) bool {
		return models.Field(fl.Field().String()).Valid()
	})
	v.RegisterValidation("categorical", func(fl validator.FieldLevel) bool {
		return models.Field(fl.Field().String()).Categorical()
	})
	return v
}

// Default returns the bundled rules.
func Default() (*Rules, error) {
	return Parse(defaultRules)
}

func LoadFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ConfigurationWrap(err, "read rules file")
	}
	return Parse(data)
}

// Parse decodes and checks a rules document. Every problem is reported as a
// CONFIGURATION_ERROR so it surfaces before any workbook is processed.
func Parse(data []byte) (*Rules, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperrors.Configuration("rules document is empty")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Rules
	if err := dec.Decode(&r); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, apperrors.ConfigurationWrap(err, "decode rules")
	}

	if err := validate.Struct(&r); err != nil {
		return nil, apperrors.ConfigurationWrap(err, "rules failed validation")
	}

	var problems []string
	seen := make(map[string]bool)
	for i := range r.Profiles {
		p := &r.Profiles[i]
		if seen[p.Name] {
			problems = append(problems, fmt.Sprintf("duplicate profile %q", p.Name))
		}
		seen[p.Name] = true
		for _, msg := range checkProfile(p) {
			problems = append(problems, p.Name+": "+msg)
		}
	}

	if len(problems) > 0 {
		return nil, apperrors.Configuration("rules are inconsistent").
			WithDetails(strings.Join(problems, "; "))
	}

	return &r, nil
}

func checkProfile(p *Profile) []string {
	var problems []string

	letters := make(map[string]bool)
	fields := make(map[models.Field]bool)
	for _, c := range p.Layout.Columns {
		if _, err := excelize.ColumnNameToNumber(c.Letter); err != nil {
			problems = append(problems, fmt.Sprintf("column %q is not a sheet column", c.Letter))
		}
		if letters[c.Letter] {
			problems = append(problems, fmt.Sprintf("column %s declared twice", c.Letter))
		}
		if fields[c.Field] {
			problems = append(problems, fmt.Sprintf("field %s loaded from two columns", c.Field))
		}
		letters[c.Letter] = true
		fields[c.Field] = true
	}

	for _, required := range []models.Field{models.FieldPONumber, models.FieldTotal} {
		if !fields[required] {
			problems = append(problems, fmt.Sprintf("layout must load %s", required))
		}
	}

	for i := range p.Steps {
		problems = append(problems, compileStep(&p.Steps[i], i, fields)...)
	}
	problems = append(problems, contradictions(p.Steps)...)

	selected := make(map[models.Field]bool)
	for _, s := range p.Selectors {
		if !fields[s.Field] {
			problems = append(problems, fmt.Sprintf("selector on %s which is not loaded", s.Field))
		}
		if selected[s.Field] {
			problems = append(problems, fmt.Sprintf("selector on %s declared twice", s.Field))
		}
		selected[s.Field] = true
	}

	panels := make(map[string]bool)
	for _, panel := range p.Panels {
		if panels[panel.Name] {
			problems = append(problems, fmt.Sprintf("duplicate panel %q", panel.Name))
		}
		panels[panel.Name] = true
		if !fields[panel.GroupBy] {
			problems = append(problems, fmt.Sprintf("panel %s groups by %s which is not loaded", panel.Name, panel.GroupBy))
		}
		if panel.HideZeroQuantity && !fields[models.FieldQuantity] {
			problems = append(problems, fmt.Sprintf("panel %s hides zero quantity but quantity is not loaded", panel.Name))
		}
	}

	return problems
}

func compileStep(s *Step, idx int, loaded map[models.Field]bool) []string {
	var problems []string
	where := fmt.Sprintf("step %d (%s)", idx+1, s)

	if !loaded[s.Field] {
		problems = append(problems, where+": field is not loaded")
	}

	switch s.Kind {
	case StepInclude, StepExclude:
		if len(s.Patterns) == 0 {
			problems = append(problems, where+": needs at least one pattern")
		}
		if slices.Contains(s.Patterns, "") {
			problems = append(problems, where+": empty pattern matches every row")
		}
		if s.Match == MatchRegex {
			for _, pat := range s.Patterns {
				re, err := regexp.Compile(pat)
				if err != nil {
					problems = append(problems, fmt.Sprintf("%s: %v", where, err))
					continue
				}
				s.compiled = append(s.compiled, re)
			}
		}
	case StepMap:
		if len(s.Mapping) == 0 {
			problems = append(problems, where+": mapping is empty")
		}
		for from, to := range s.Mapping {
			if from == to {
				continue
			}
			if next, chained := s.Mapping[to]; chained && next != to {
				problems = append(problems, fmt.Sprintf("%s: %q maps to %q which is itself mapped, so the mapping is not idempotent", where, from, to))
			}
		}
	case StepExtract:
		re, err := regexp.Compile(s.Pattern)
		if err != nil || s.Pattern == "" {
			problems = append(problems, fmt.Sprintf("%s: invalid extract pattern %q", where, s.Pattern))
			break
		}
		s.compiled = []*regexp.Regexp{re}
	}

	return problems
}

// contradictions flags a pattern that both includes and excludes on the same
// field, which would always yield an empty dataset.
func contradictions(steps []Step) []string {
	included := make(map[models.Field][]string)
	for _, s := range steps {
		if s.Kind == StepInclude {
			included[s.Field] = append(included[s.Field], s.Patterns...)
		}
	}

	var problems []string
	for _, s := range steps {
		if s.Kind != StepExclude {
			continue
		}
		for _, pat := range s.Patterns {
			if slices.Contains(included[s.Field], pat) {
				problems = append(problems, fmt.Sprintf("%s pattern %q is both included and excluded", s.Field, pat))
			}
		}
	}
	return problems
}
