package rules

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

const minimalRules = `
profiles:
  - name: basic
    layout:
      sheet: Report 1
      header_row: 2
      columns:
        - { letter: A, header: Sales Rep Name, field: sales_rep }
        - { letter: B, header: PO, field: po_number }
        - { letter: C, header: Total, field: total }
    steps:
      - kind: include
        field: sales_rep
        patterns: [A]
    panels:
      - { name: by-rep, group_by: sales_rep }
`

func TestDefaultRules(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"eastern-province", "key-accounts"}, r.Names())

	p, ok := r.Profile("eastern-province")
	require.True(t, ok)
	assert.Equal(t, "Report 1", p.Layout.Sheet)
	assert.Equal(t, 2, p.Layout.HeaderRow)
	assert.Len(t, p.Layout.Columns, 10)
	assert.True(t, p.Layout.Has(models.FieldQuantity))

	ka, ok := r.Profile("key-accounts")
	require.True(t, ok)
	require.Len(t, ka.Steps, 3)
	assert.Equal(t, StepExtract, ka.Steps[2].Kind)
	require.NotNil(t, ka.Steps[2].Regexp())
	assert.Equal(t, "4300000911", ka.Steps[2].Regexp().FindStringSubmatch("4300000911-2021")[1])

	require.Len(t, ka.Panels, 2)
	assert.Equal(t, models.FieldFiscalQtr, ka.Panels[1].GroupBy)
	assert.True(t, ka.Panels[1].Threshold().IsZero(), "every quarter gets its own slice")
}

func TestStep_Matches(t *testing.T) {
	substring := Step{Kind: StepInclude, Patterns: []string{"Dammam", "Qateef"}}
	assert.True(t, substring.Matches("Qateef Central Hospital"))
	assert.True(t, substring.Matches("Ministry of Health Dammam"))
	assert.False(t, substring.Matches("ministry of health dammam"), "matching is case-sensitive")
	assert.False(t, substring.Matches(""))

	r, err := Parse([]byte(strings.Replace(minimalRules, "patterns: [A]", "match: regex\n        patterns: ['^RADI', 'UNASSIGNED$']", 1)))
	require.NoError(t, err)
	step := r.Profiles[0].Steps[0]
	assert.True(t, step.Matches("RADI, UMMAIR"))
	assert.True(t, step.Matches("X UNASSIGNED"))
	assert.False(t, step.Matches("UNASSIGNED X"))
}

func TestParse_Minimal(t *testing.T) {
	r, err := Parse([]byte(minimalRules))
	require.NoError(t, err)
	require.Len(t, r.Profiles, 1)
	assert.Equal(t, []models.Field{models.FieldSalesRep, models.FieldPONumber, models.FieldTotal}, r.Profiles[0].Layout.Fields())
}

func TestParse_MappingTargetMappedToItself(t *testing.T) {
	doc := strings.Replace(minimalRules, "patterns: [A]", "patterns: [A]\n      - kind: map\n        field: sales_rep\n        mapping: { A: B, B: B }", 1)

	r, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "B", "B": "B"}, r.Profiles[0].Steps[1].Mapping)
}

func TestParse_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		details string
	}{
		{
			name:   "empty document",
			mutate: func(string) string { return "  \n" },
		},
		{
			name:   "unknown key",
			mutate: func(s string) string { return strings.Replace(s, "header_row: 2", "header_row: 2\n      colour: red", 1) },
		},
		{
			name:   "unknown field",
			mutate: func(s string) string { return strings.Replace(s, "field: sales_rep }", "field: salesman }", 1) },
		},
		{
			name:    "missing total column",
			mutate:  func(s string) string { return strings.Replace(s, "        - { letter: C, header: Total, field: total }\n", "", 1) },
			details: "layout must load total",
		},
		{
			name:    "duplicate column letter",
			mutate:  func(s string) string { return strings.Replace(s, "letter: C", "letter: B", 1) },
			details: "column B declared twice",
		},
		{
			name:    "step on unloaded field",
			mutate:  func(s string) string { return strings.Replace(s, "field: sales_rep\n        patterns", "field: ship_to\n        patterns", 1) },
			details: "field is not loaded",
		},
		{
			name:    "bad regex",
			mutate:  func(s string) string { return strings.Replace(s, "patterns: [A]", "match: regex\n        patterns: ['(']", 1) },
			details: "step 1",
		},
		{
			name: "chained mapping",
			mutate: func(s string) string {
				return strings.Replace(s, "patterns: [A]", "patterns: [A]\n      - kind: map\n        field: sales_rep\n        mapping: { A: B, B: C }", 1)
			},
			details: "not idempotent",
		},
		{
			name: "include and exclude same pattern",
			mutate: func(s string) string {
				return strings.Replace(s, "patterns: [A]", "patterns: [A]\n      - kind: exclude\n        field: sales_rep\n        patterns: [A]", 1)
			},
			details: "both included and excluded",
		},
		{
			name:    "panel on unloaded field",
			mutate:  func(s string) string { return strings.Replace(s, "group_by: sales_rep", "group_by: cfn", 1) },
			details: "not loaded",
		},
		{
			name:   "threshold out of range",
			mutate: func(s string) string { return strings.Replace(s, "group_by: sales_rep }", "group_by: sales_rep, threshold_pct: 120 }", 1) },
		},
		{
			name:    "zero quantity without quantity column",
			mutate:  func(s string) string { return strings.Replace(s, "group_by: sales_rep }", "group_by: sales_rep, hide_zero_quantity: true }", 1) },
			details: "quantity is not loaded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(minimalRules)))
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration), "got %v", err)
			if tt.details != "" {
				assert.Contains(t, err.Error(), tt.details)
			}
		})
	}
}

func TestStore_ProfileNotFound(t *testing.T) {
	r, err := Parse([]byte(minimalRules))
	require.NoError(t, err)

	s := NewStaticStore(r)
	_, err = s.Profile("missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	p, err := s.Profile("basic")
	require.NoError(t, err)
	assert.Equal(t, "basic", p.Name)
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalRules), 0o644))

	s, err := NewStore(path, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	require.NoError(t, err)

	reloads := 0
	s.OnReload(func(*Rules) { reloads++ })

	require.NoError(t, os.WriteFile(path, []byte("profiles: ["), 0o644))
	assert.Error(t, s.Reload())
	assert.Equal(t, []string{"basic"}, s.Rules().Names())
	assert.Equal(t, 0, reloads)

	renamed := strings.Replace(minimalRules, "name: basic", "name: renamed", 1)
	require.NoError(t, os.WriteFile(path, []byte(renamed), 0o644))
	require.NoError(t, s.Reload())
	assert.Equal(t, []string{"renamed"}, s.Rules().Names())
	assert.Equal(t, 1, reloads)
}

func TestStore_WatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalRules), 0o644))

	s, err := NewStore(path, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	renamed := strings.Replace(minimalRules, "name: basic", "name: watched", 1)
	require.NoError(t, os.WriteFile(path, []byte(renamed), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := s.Rules().Profile("watched")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}
