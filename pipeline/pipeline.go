// Package pipeline wires one batch run: resolve the data dictionary, stream
// the flat file through the transformer and publish the result.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jalad-shrimali/ffiec-income/config"
	"github.com/jalad-shrimali/ffiec-income/dictionary"
	"github.com/jalad-shrimali/ffiec-income/fetch"
	"github.com/jalad-shrimali/ffiec-income/flatfile"
	"github.com/jalad-shrimali/ffiec-income/metrics"
	"github.com/jalad-shrimali/ffiec-income/output"
	"github.com/jalad-shrimali/ffiec-income/record"
	"github.com/jalad-shrimali/ffiec-income/report"
	"github.com/jalad-shrimali/ffiec-income/store"
	"github.com/jalad-shrimali/ffiec-income/transform"
)

const reasonDevFilter = "dev_filter"

// Options are the per-invocation switches; everything else comes from
// config.Config.
type Options struct {
	Mode        output.Mode
	SQLitePath  string
	SummaryPath string
	Pushgateway string
	// WorkDir holds downloaded documents; defaults to os.TempDir().
	WorkDir string
}

type Result struct {
	RunID    string
	Output   string
	Stats    transform.Stats
	Filtered int
	Written  int
	Duration time.Duration
}

// Run executes one batch. On error no output file or summary workbook is left
// at its destination and the SQLite transaction is rolled back.
func Run(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Mode == "" {
		opts.Mode = output.Prod
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}

	started := time.Now()
	res := &Result{RunID: uuid.NewString()}
	logger = logger.With(zap.String("run_id", res.RunID), zap.String("mode", string(opts.Mode)))
	logger.Info("starting ffiec income run")

	mc := metrics.NewCollector(string(opts.Mode))
	err := run(ctx, cfg, opts, logger, mc, res, started)
	res.Duration = time.Since(started)
	mc.Finish(res.Duration, err == nil)

	if opts.Pushgateway != "" {
		if perr := mc.Push(ctx, opts.Pushgateway); perr != nil {
			logger.Warn("metrics push failed", zap.Error(perr))
		}
	}
	if err != nil {
		logger.Error("run failed", zap.Error(err), zap.Duration("elapsed", res.Duration))
		return nil, err
	}

	logger.Info("run complete",
		zap.String("output", res.Output),
		zap.Int("rows_read", res.Stats.Read),
		zap.Int("dropped_missing", res.Stats.DroppedMissing),
		zap.Int("dropped_invalid_tract", res.Stats.DroppedTract),
		zap.Int("dropped_dev_filter", res.Filtered),
		zap.Int("written", res.Written),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

func run(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger,
	mc *metrics.Collector, res *Result, started time.Time) error {

	fetcher := fetch.New(cfg.HTTP.UserAgent, cfg.HTTP.Timeout, logger)

	/* ─── 1) schema ─── */
	dictPath, dictTmp, err := fetcher.Download(ctx, cfg.Dictionary.URL, opts.WorkDir)
	if err != nil {
		return fmt.Errorf("data dictionary: %w", err)
	}
	if dictTmp {
		defer os.Remove(dictPath)
	}
	resolver := dictionary.NewResolver(dictionary.Layout{
		Sheet:             cfg.Dictionary.Sheet,
		IndexColumn:       cfg.Dictionary.IndexColumn,
		DescriptionColumn: cfg.Dictionary.DescriptionColumn,
	}, cfg.Names(), logger)
	schema, err := resolver.ResolveFile(dictPath)
	if err != nil {
		return err
	}
	parts, err := schema.GeoidParts(cfg.Geoid.Parts)
	if err != nil {
		return err
	}
	for _, p := range parts {
		logger.Debug("geoid part", zap.String("name", p.Name), zap.Int("position", p.Position))
	}

	/* ─── 2) sinks ─── */
	tr, err := transform.New(transform.Options{
		GeoidName:        cfg.Geoid.Name,
		GeoidParts:       cfg.Geoid.Parts,
		InvalidTract:     cfg.InvalidTract,
		LowIncomeIndices: cfg.LowIncome.Indicators,
		PovertyThreshold: cfg.LowIncome.PovertyThreshold,
	})
	if err != nil {
		return err
	}
	filter := output.Filter{Mode: opts.Mode, GeoidName: cfg.Geoid.Name, DevState: cfg.Output.DevState}
	columns := OutputColumns(schema, cfg)

	dst := filepath.Join(cfg.Output.Dir, output.FileName(opts.Mode, cfg.Output.Name, cfg.Output.DevPrefix))
	w, err := output.Create(dst, columns)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer w.Abort()

	var db *store.Store
	if opts.SQLitePath != "" {
		db, err = store.Open(ctx, opts.SQLitePath, cfg.Geoid.Name,
			columns, []string{transform.LowIncomeCommunity})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Begin(ctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}

	var summary *report.Summary
	if opts.SummaryPath != "" {
		summary = report.NewSummary(cfg.Geoid.Name)
	}

	/* ─── 3) stream ─── */
	flatPath, flatTmp, err := fetcher.Download(ctx, cfg.FlatFile.URL, opts.WorkDir)
	if err != nil {
		return fmt.Errorf("flat file: %w", err)
	}
	if flatTmp {
		defer os.Remove(flatPath)
	}

	ex := flatfile.NewExtractor(schema, logger)
	_, err = ex.EachInZip(flatPath, cfg.FlatFile.Entry, func(r record.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mc.RowRead()
		reason, err := tr.Apply(r)
		if err != nil {
			return err
		}
		if reason != transform.Kept {
			mc.RowDropped(string(reason))
			return nil
		}
		if !filter.Keep(r) {
			res.Filtered++
			mc.RowDropped(reasonDevFilter)
			return nil
		}

		if err := w.Write(r); err != nil {
			return err
		}
		if db != nil {
			if err := db.Write(ctx, r); err != nil {
				return err
			}
		}
		if summary != nil {
			summary.Add(r)
		}
		mc.RowWritten()
		return nil
	})
	res.Stats = tr.Stats()
	if err != nil {
		return err
	}

	/* ─── 4) publish ─── */
	res.Written = w.Count()
	res.Output = w.Path()

	// The summary is staged first so a failed NDJSON rename publishes no sink.
	var staged string
	if summary != nil {
		staged, err = summary.Stage(opts.SummaryPath, report.Run{
			ID:       res.RunID,
			Mode:     string(opts.Mode),
			Started:  started,
			Finished: time.Now(),
			Read:     res.Stats.Read,
			Dropped: map[string]int{
				string(transform.MissingValue): res.Stats.DroppedMissing,
				string(transform.InvalidTract): res.Stats.DroppedTract,
				reasonDevFilter:                res.Filtered,
			},
			Written: res.Written,
			Output:  filepath.Base(res.Output),
		})
		if err != nil {
			return err
		}
		defer os.Remove(staged)
	}

	if err := w.Commit(); err != nil {
		return err
	}
	if db != nil {
		if err := db.Commit(); err != nil {
			os.Remove(res.Output)
			return fmt.Errorf("sqlite commit: %w", err)
		}
		logger.Info("sqlite table written", zap.String("path", opts.SQLitePath), zap.Int("rows", db.Count()))
	}
	if summary != nil {
		if err := os.Rename(staged, opts.SummaryPath); err != nil {
			return fmt.Errorf("publish summary workbook: %w", err)
		}
		logger.Info("summary workbook written", zap.String("path", opts.SummaryPath))
	}
	return nil
}

// OutputColumns lists the published columns in record order: the resolved
// fields that are not geoid parts, then the geoid, then the derived flag.
func OutputColumns(schema *dictionary.Schema, cfg *config.Config) []string {
	isPart := map[string]bool{}
	for _, p := range cfg.Geoid.Parts {
		isPart[p] = true
	}
	var cols []string
	for _, f := range schema.Fields {
		if !isPart[f.Name] {
			cols = append(cols, f.Name)
		}
	}
	return append(cols, cfg.Geoid.Name, transform.LowIncomeCommunity)
}
