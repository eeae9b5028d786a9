// Package runner evaluates a model over the test subsets of every dataset.
package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/nzoschke/beateval/pkg/config"
	"github.com/nzoschke/beateval/pkg/dataset"
	"github.com/nzoschke/beateval/pkg/eval"
	"github.com/nzoschke/beateval/pkg/model"
	"go.uber.org/zap"
)

// SourceFunc opens the examples of one dataset.
type SourceFunc func(ctx context.Context, name string) (dataset.Source, error)

// Runner evaluates one model.
type Runner struct {
	Model    model.Model
	Hparams  *config.Hparams
	Settings *config.Settings
	Logger   *zap.Logger
	Out      io.Writer

	// Datasets defaults to dataset.Names().
	Datasets []string
	// Open defaults to the test subset on disk.
	Open SourceFunc
}

// Run evaluates every dataset in order and returns the collected scores.
func (r *Runner) Run(ctx context.Context) (eval.Results, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	names := r.Datasets
	if len(names) == 0 {
		names = dataset.Names()
	}
	open := r.Open
	if open == nil {
		open = r.openTestSubset
	}

	results := eval.NewResults()
	for _, name := range names {
		src, err := open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}

		if err := r.runDataset(ctx, name, src, results, logger); err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", name, err)
		}

		beat, downbeat := results.Means(name)
		r.printf("\n%s: avg. F1 beat: %s   avg. F1 downbeat: %s\n\n",
			color.CyanString(name),
			color.GreenString("%v", beat),
			color.GreenString("%v", downbeat),
		)
	}

	return results, nil
}

func (r *Runner) runDataset(ctx context.Context, name string, src dataset.Source, results eval.Results, logger *zap.Logger) error {
	results.Add(name)
	rate := r.Hparams.TargetRate()
	total := src.Len()
	done := 0
	start := time.Now()

	workers := 0
	if r.Settings != nil {
		workers = r.Settings.NumWorkers
	}

	return dataset.Iterate(ctx, src, workers, func(ex *dataset.Example) error {
		pred, err := r.Model.Predict(ex.Audio)
		if err != nil {
			return fmt.Errorf("predict %s: %w", ex.Metadata.Name, err)
		}

		beat, downbeat := eval.Evaluate(pred.Rows(), ex.Target, rate)
		results.Append(name, beat, downbeat)

		done++
		logger.Debug("example",
			zap.String("dataset", name),
			zap.String("name", ex.Metadata.Name),
			zap.Int("done", done),
			zap.Int("total", total),
			zap.Float64("beat_f", beat.FMeasure),
			zap.Float64("downbeat_f", downbeat.FMeasure),
			zap.Float64("beat_cemgil", beat.Cemgil),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	})
}

func (r *Runner) openTestSubset(ctx context.Context, name string) (dataset.Source, error) {
	if r.Settings == nil {
		return nil, fmt.Errorf("no settings")
	}
	dirs, err := r.Settings.Dirs(name)
	if err != nil {
		return nil, err
	}

	ds, err := dataset.New(ctx, name, dirs, dataset.Options{
		AudioSampleRate: r.Hparams.AudioSampleRate,
		TargetFactor:    r.Hparams.TargetFactor,
		TargetRate:      r.Hparams.TargetRate(),
		Subset:          dataset.SubsetTest,
		Half:            r.Hparams.Half(),
		Preload:         r.Settings.Preload,
		Workers:         r.Settings.NumWorkers,
		Seed:            dataset.DefaultSeed,
		Logger:          r.Logger,
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (r *Runner) printf(format string, args ...any) {
	if r.Out != nil {
		fmt.Fprintf(r.Out, format, args...)
	}
}

// Save writes results to path and reports where they went.
func (r *Runner) Save(results eval.Results, path string) error {
	if err := results.WriteJSON(path); err != nil {
		return err
	}
	r.printf("Saved results to %s\n", path)
	return nil
}
