package services

import (
	"regexp"

	"sales-dashboard/internal/models"
)

// MapValues rewrites field through mapping. Values without an entry pass
// through unchanged.
func MapValues(ds *models.Dataset, field models.Field, mapping map[string]string) *models.Dataset {
	out := make([]models.Record, len(ds.Records))
	for i, r := range ds.Records {
		if to, ok := mapping[r.Value(field)]; ok {
			r = r.With(field, to)
		}
		out[i] = r
	}
	return ds.Derive(out)
}

// Extract keeps the first capture group of re (or the whole match when re has
// no groups). Values that do not match become blank.
func Extract(ds *models.Dataset, field models.Field, re *regexp.Regexp) *models.Dataset {
	out := make([]models.Record, len(ds.Records))
	for i, r := range ds.Records {
		out[i] = r.With(field, extract(re, r.Value(field)))
	}
	return ds.Derive(out)
}

func extract(re *regexp.Regexp, v string) string {
	m := re.FindStringSubmatch(v)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}
