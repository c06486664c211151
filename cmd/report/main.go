// Command report runs a profile over a sales workbook and writes the
// dashboard panels as a summary workbook, once or on a cron schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/export"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/rules"
	"sales-dashboard/internal/services"
)

const runTimeout = 5 * time.Minute

type options struct {
	file     string
	profile  string
	out      string
	rules    string
	schedule string
	filters  models.FilterSpec
}

func parseFlags(args []string) (options, error) {
	opts := options{filters: models.FilterSpec{}}

	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.StringVar(&opts.file, "file", "", "sales workbook to read (required)")
	fs.StringVar(&opts.profile, "profile", "eastern-province", "rules profile to apply")
	fs.StringVar(&opts.out, "out", "report.xlsx", "summary workbook to write")
	fs.StringVar(&opts.rules, "rules", "", "rules file; empty uses the bundled rules")
	fs.StringVar(&opts.schedule, "schedule", "", "cron expression; when set the report is regenerated on that schedule")
	fs.Func("filter", "field=value selection, repeatable", func(v string) error {
		field, value, ok := strings.Cut(v, "=")
		if !ok || !models.Field(field).Categorical() {
			return fmt.Errorf("want field=value with a categorical field, got %q", v)
		}
		sel := opts.filters[models.Field(field)]
		if value == models.SelectAll {
			sel.All = true
		}
		sel.Values = append(sel.Values, value)
		opts.filters[models.Field(field)] = sel
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.file == "" {
		return opts, fmt.Errorf("-file is required")
	}
	return opts, nil
}

// generate builds one report and writes it to path.
func generate(ctx context.Context, opts options, path string, logger *slog.Logger) (*models.Report, error) {
	store, err := rules.NewStore(opts.rules, logger)
	if err != nil {
		return nil, err
	}
	analytics := services.NewAnalytics(store, services.NewDatasetCache(time.Hour), nil, logger)

	data, err := os.ReadFile(opts.file)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}

	ds, _, err := analytics.Ingest(ctx, opts.profile, data)
	if err != nil {
		return nil, err
	}

	report, err := analytics.Build(ctx, ds.ID, opts.filters)
	if err != nil {
		return nil, err
	}

	if err := writeFile(path, report); err != nil {
		return nil, err
	}
	return report, nil
}

// writeFile writes the workbook next to path and renames it into place so
// readers never see a partial file.
func writeFile(path string, report *models.Report) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*"+export.FileExtension)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := export.WriteReport(report, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// scheduledPath stamps path with the run time so scheduled runs keep history.
func scheduledPath(path string, at time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + at.Format("20060102-150405") + ext
}

func runOnce(ctx context.Context, opts options, path string, logger *slog.Logger) error {
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	report, err := generate(ctx, opts, path, logger)
	if err != nil {
		logger.Error("report failed", "error", err)
		return err
	}

	logger.Info("report written",
		"path", path,
		"dataset", report.DatasetID,
		"rows", report.Rows,
		"total", report.FormattedTotalSales,
		"warnings", len(report.Warnings),
		"duration", time.Since(start),
	)
	return nil
}

func schedule(ctx context.Context, opts options, logger *slog.Logger) error {
	c := cron.New()
	_, err := c.AddFunc(opts.schedule, func() {
		_ = runOnce(ctx, opts, scheduledPath(opts.out, time.Now()), logger)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", opts.schedule, err)
	}

	c.Start()
	logger.Info("report scheduled", "schedule", opts.schedule, "next", c.Entries()[0].Next)

	<-ctx.Done()
	logger.Info("stopping scheduler")
	<-c.Stop().Done()
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Logger)

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		os.Exit(2)
	}
	if opts.rules == "" {
		opts.rules = cfg.Rules.File
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.schedule != "" {
		err = schedule(ctx, opts, logger)
	} else {
		err = runOnce(ctx, opts, opts.out, logger)
	}
	if err != nil {
		os.Exit(1)
	}
}
