package services

import (
	"fmt"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/rules"
)

// StepStats records how many rows a preparation step removed.
type StepStats struct {
	Step    string `json:"step"`
	Before  int    `json:"before"`
	After   int    `json:"after"`
	Dropped int    `json:"dropped"`
}

const stepDropIncomplete = "drop_incomplete"

// Prepare runs a profile's steps in declared order and then drops incomplete
// rows, so every returned record has a PO number and a non-zero total.
func Prepare(ds *models.Dataset, steps []rules.Step) (*models.Dataset, []StepStats, error) {
	stats := make([]StepStats, 0, len(steps)+1)

	for _, s := range steps {
		before := ds.Len()
		switch s.Kind {
		case rules.StepInclude:
			ds = Include(ds, s.Field, s.Matches)
		case rules.StepExclude:
			ds = Exclude(ds, s.Field, s.Matches)
		case rules.StepMap:
			ds = MapValues(ds, s.Field, s.Mapping)
		case rules.StepExtract:
			re := s.Regexp()
			if re == nil {
				return nil, nil, fmt.Errorf("extract step on %s has no compiled pattern", s.Field)
			}
			ds = Extract(ds, s.Field, re)
		default:
			return nil, nil, fmt.Errorf("unknown step kind %q", s.Kind)
		}
		stats = append(stats, newStepStats(s.String(), before, ds.Len()))
	}

	before := ds.Len()
	ds = DropIncomplete(ds)
	stats = append(stats, newStepStats(stepDropIncomplete, before, ds.Len()))

	return ds, stats, nil
}

func newStepStats(step string, before, after int) StepStats {
	return StepStats{Step: step, Before: before, After: after, Dropped: before - after}
}
