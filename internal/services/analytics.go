package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	apperrors "sales-dashboard/internal/errors"
	"sales-dashboard/internal/loader"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/rules"
)

const (
	maxWorkers = 4
	idLength   = 12
)

// ProfileSource resolves profile names to their current rules.
type ProfileSource interface {
	Profile(name string) (rules.Profile, error)
}

// Analytics loads workbooks into prepared datasets and builds reports from
// them.
type Analytics struct {
	profiles ProfileSource
	cache    *DatasetCache
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time

	ingested atomic.Int64
	reports  atomic.Int64
}

// Stats summarises service activity for the admin endpoint.
type Stats struct {
	Ingested int64      `json:"ingested"`
	Reports  int64      `json:"reports"`
	Cache    CacheStats `json:"cache"`
}

func NewAnalytics(profiles ProfileSource, cache *DatasetCache, metrics *observability.Metrics, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Analytics{
		profiles: profiles,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// DatasetID derives the cache key of a workbook prepared with a profile.
func DatasetID(profile, checksum string) string {
	if len(checksum) > idLength {
		checksum = checksum[:idLength]
	}
	return profile + "-" + checksum
}

// Ingest loads data with the named profile and runs its preparation steps.
// Re-uploading the same bytes under the same profile returns the cached
// dataset with cached set.
func (a *Analytics) Ingest(ctx context.Context, profileName string, data []byte) (*models.Dataset, bool, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.ingest",
		attribute.String("profile", profileName),
		attribute.Int("bytes", len(data)),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	profile, err := a.profiles.Profile(profileName)
	if err != nil {
		return nil, false, err
	}

	checksum := loader.Checksum(data)
	id := DatasetID(profile.Name, checksum)
	span.SetAttributes(attribute.String("dataset.id", id))

	ds, cached, err := a.cache.GetOrLoad(id, func() (*models.Dataset, error) {
		return a.prepare(ctx, profile, id, data)
	})
	if err != nil {
		return nil, false, err
	}

	if cached {
		a.metrics.CacheHits.Inc()
	} else {
		a.metrics.CacheMisses.Inc()
	}
	a.ingested.Add(1)
	return ds, cached, nil
}

func (a *Analytics) prepare(ctx context.Context, profile rules.Profile, id string, data []byte) (*models.Dataset, error) {
	start := a.now()

	raw, err := loader.Load(ctx, bytes.NewReader(data), profile.Layout)
	if err != nil {
		a.metrics.LoadFailures.WithLabelValues(profile.Name).Inc()
		observability.Logger(ctx, a.logger).Warn("workbook rejected",
			"profile", profile.Name,
			"error", err,
		)
		return nil, err
	}
	a.metrics.PipelineDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())

	raw.ID = id
	raw.Profile = profile.Name

	prepStart := time.Now()
	ds, stats, err := Prepare(raw, profile.Steps)
	if err != nil {
		return nil, apperrors.ConfigurationWrap(err, "prepare dataset")
	}
	a.metrics.PipelineDuration.WithLabelValues("prepare").Observe(time.Since(prepStart).Seconds())

	for _, s := range stats {
		if s.Dropped > 0 {
			a.metrics.RowsDropped.WithLabelValues(profile.Name, s.Step).Add(float64(s.Dropped))
		}
	}
	a.metrics.DatasetsLoaded.WithLabelValues(profile.Name).Inc()

	observability.Logger(ctx, a.logger).Info("dataset prepared",
		"id", id,
		"profile", profile.Name,
		"rows_loaded", raw.Len(),
		"rows_kept", ds.Len(),
		"duration", time.Since(start),
	)
	return ds, nil
}

// Dataset returns a previously ingested dataset.
func (a *Analytics) Dataset(id string) (*models.Dataset, error) {
	ds, ok := a.cache.Get(id)
	if !ok {
		return nil, apperrors.NotFound("dataset not found").WithDetails(id)
	}
	return ds, nil
}

// SetData stores an already prepared dataset under its ID.
func (a *Analytics) SetData(ds *models.Dataset) {
	a.cache.Put(ds.ID, ds)
}

// Aggregate runs one ad-hoc aggregation over the selected rows of a dataset.
func (a *Analytics) Aggregate(ctx context.Context, id string, spec models.FilterSpec, group GroupSpec) (models.AggregateResult, error) {
	_, span := observability.StartSpan(ctx, "analytics.aggregate",
		attribute.String("dataset.id", id),
		attribute.String("group_by", string(group.By)),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if !group.By.Categorical() {
		err = apperrors.Validation("cannot group by field").WithDetails(string(group.By))
		return models.AggregateResult{}, err
	}

	ds, profile, err := a.load(id)
	if err != nil {
		return models.AggregateResult{}, err
	}
	if !ds.Has(group.By) {
		err = apperrors.Validation("field not loaded by profile").WithDetails(string(group.By))
		return models.AggregateResult{}, err
	}

	selected, _, _ := ApplySelections(ds, profile.Selectors, spec)
	return Aggregate(selected, group), nil
}

// Build applies the user's selections and computes every panel of the
// dataset's profile.
func (a *Analytics) Build(ctx context.Context, id string, spec models.FilterSpec) (*models.Report, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.build",
		attribute.String("dataset.id", id),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()

	ds, profile, err := a.load(id)
	if err != nil {
		return nil, err
	}

	selected, states, warnings := ApplySelections(ds, profile.Selectors, spec)
	if ds.Len() == 0 {
		warnings = append([]models.Warning{{
			Code:    models.WarningEmptyResult,
			Message: "no rows left after the profile filters",
		}}, warnings...)
	}

	panels := make([]models.PanelResult, len(profile.Panels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for i, p := range profile.Panels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			panels[i] = models.PanelResult{
				Name:   p.Name,
				Title:  p.Title,
				Result: Aggregate(selected, GroupSpecFromPanel(p)),
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, fmt.Errorf("build panels: %w", err)
	}

	total := GrandTotal(selected)
	report := &models.Report{
		DatasetID:           ds.ID,
		Profile:             profile.Name,
		Title:               profile.Title,
		Rows:                selected.Len(),
		TotalSales:          total,
		FormattedTotalSales: FormatCurrency(total),
		Selectors:           states,
		Panels:              panels,
		Warnings:            warnings,
		GeneratedAt:         a.now(),
	}

	a.reports.Add(1)
	a.metrics.PipelineDuration.WithLabelValues("report").Observe(time.Since(start).Seconds())
	return report, nil
}

func (a *Analytics) Stats() Stats {
	return Stats{
		Ingested: a.ingested.Load(),
		Reports:  a.reports.Load(),
		Cache:    a.cache.Stats(),
	}
}

// Purge drops every cached dataset.
func (a *Analytics) Purge() int {
	n := a.cache.Purge()
	if n > 0 {
		a.metrics.CacheEvictions.Add(float64(n))
	}
	return n
}

// Sweep drops expired datasets.
func (a *Analytics) Sweep() int {
	n := a.cache.Sweep()
	if n > 0 {
		a.metrics.CacheEvictions.Add(float64(n))
		a.logger.Debug("expired datasets removed", "count", n)
	}
	return n
}

// RunJanitor sweeps expired datasets every interval until ctx is done.
func (a *Analytics) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Sweep()
		}
	}
}

func (a *Analytics) load(id string) (*models.Dataset, rules.Profile, error) {
	ds, err := a.Dataset(id)
	if err != nil {
		return nil, rules.Profile{}, err
	}
	profile, err := a.profiles.Profile(ds.Profile)
	if err != nil {
		return nil, rules.Profile{}, err
	}
	return ds, profile, nil
}
