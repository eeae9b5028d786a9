// Package dataset discovers annotated beat tracking datasets on disk, splits
// them into subsets, and loads examples as model-ready audio and targets.
package dataset

import (
	"context"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nzoschke/beateval/pkg/audio"
	"github.com/nzoschke/beateval/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dataset names, in evaluation order.
const (
	Beatles    = "beatles"
	Ballroom   = "ballroom"
	Hainsworth = "hainsworth"
	RWCPopular = "rwc_popular"
)

// Names returns the evaluated datasets in order.
func Names() []string {
	return []string{Beatles, Ballroom, Hainsworth, RWCPopular}
}

// Subsets of a dataset.
const (
	SubsetTrain = "train"
	SubsetVal   = "val"
	SubsetTest  = "test"
	SubsetFull  = "full"
)

// DefaultSeed seeds the subset split.
const DefaultSeed = 42

// Split fractions; the test subset takes the remainder.
const (
	trainFraction = 0.8
	valFraction   = 0.1
)

// Options control how examples are selected and loaded.
type Options struct {
	AudioSampleRate int
	TargetFactor    int
	// TargetRate defaults to AudioSampleRate / TargetFactor.
	TargetRate float64
	Subset     string
	// Half rounds audio to 16-bit float precision.
	Half    bool
	Preload bool
	Workers int
	Seed    uint64
	Logger  *zap.Logger
}

// Metadata describes where an example came from.
type Metadata struct {
	Name      string
	Dataset   string
	AudioPath string
	AnnotPath string
	Duration  float64
}

// Example is one track ready for evaluation.
type Example struct {
	Audio    []float32
	Target   [2][]float32
	Metadata Metadata
}

// Source is a sequence of examples addressable by index.
type Source interface {
	Len() int
	Get(i int) (*Example, error)
}

type pair struct {
	stem  string
	audio string
	annot string
}

// Dataset is one subset of a dataset.
type Dataset struct {
	name   string
	opts   Options
	pairs  []pair
	cache  []*Example
	logger *zap.Logger
}

// New discovers the examples of dataset name and selects opts.Subset.
func New(ctx context.Context, name string, dirs config.DatasetDirs, opts Options) (*Dataset, error) {
	if _, ok := annotSuffix[name]; !ok {
		return nil, fmt.Errorf("unknown dataset %q", name)
	}
	if opts.AudioSampleRate <= 0 || opts.TargetFactor <= 0 {
		return nil, fmt.Errorf("audio sample rate and target factor must be positive")
	}
	if opts.TargetRate <= 0 {
		opts.TargetRate = float64(opts.AudioSampleRate) / float64(opts.TargetFactor)
	}
	if opts.Subset == "" {
		opts.Subset = SubsetTest
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	logger := opts.Logger.With(zap.String("dataset", name))

	pairs, err := discover(name, dirs, logger)
	if err != nil {
		return nil, err
	}

	subset, err := split(pairs, opts.Subset, opts.Seed)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		name:   name,
		opts:   opts,
		pairs:  subset,
		logger: logger,
	}

	logger.Info("dataset ready",
		zap.String("subset", opts.Subset),
		zap.Int("examples", len(subset)),
		zap.Int("total", len(pairs)),
	)

	if opts.Preload {
		if err := d.preload(ctx); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string {
	return d.name
}

// Len returns the number of examples in the subset.
func (d *Dataset) Len() int {
	return len(d.pairs)
}

// Get loads example i, or returns it from memory when preloaded.
func (d *Dataset) Get(i int) (*Example, error) {
	if i < 0 || i >= len(d.pairs) {
		return nil, fmt.Errorf("example %d out of range [0, %d)", i, len(d.pairs))
	}
	if d.cache != nil && d.cache[i] != nil {
		return d.cache[i], nil
	}
	return d.load(d.pairs[i])
}

func (d *Dataset) load(p pair) (*Example, error) {
	samples, rate, err := audio.LoadMono(p.audio)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p.audio, err)
	}
	duration := float64(len(samples)) / float64(rate)

	samples = audio.Resample(samples, rate, d.opts.AudioSampleRate)
	if d.opts.Half {
		samples = audio.Quantize16(samples)
	}

	beats, err := LoadAnnotations(d.name, p.annot)
	if err != nil {
		return nil, err
	}

	return &Example{
		Audio:  samples,
		Target: MakeTarget(beats, len(samples), d.opts.TargetFactor, d.opts.TargetRate),
		Metadata: Metadata{
			Name:      p.stem,
			Dataset:   d.name,
			AudioPath: p.audio,
			AnnotPath: p.annot,
			Duration:  duration,
		},
	}, nil
}

func (d *Dataset) preload(ctx context.Context) error {
	cache := make([]*Example, len(d.pairs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.opts.Workers, 1))
	for i, p := range d.pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ex, err := d.load(p)
			if err != nil {
				return err
			}
			cache[i] = ex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("preload %s: %w", d.name, err)
	}

	d.cache = cache
	d.logger.Debug("preloaded", zap.Int("examples", len(cache)))
	return nil
}

// discover pairs audio files with annotation files by lower-cased stem.
func discover(name string, dirs config.DatasetDirs, logger *zap.Logger) ([]pair, error) {
	suffix := annotSuffix[name]

	annots := map[string]string{}
	err := filepath.WalkDir(dirs.Annot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := strings.ToLower(d.Name())
		if !strings.HasSuffix(base, suffix) {
			return nil
		}
		stem := strings.TrimSuffix(base, suffix)
		if _, ok := annots[stem]; !ok {
			annots[stem] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk annotations: %w", err)
	}

	var pairs []pair
	seen := map[string]bool{}
	err = filepath.WalkDir(dirs.Audio, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(d.Name())
		if !audio.IsSupported(ext) {
			return nil
		}
		stem := strings.ToLower(strings.TrimSuffix(d.Name(), ext))
		if seen[stem] {
			logger.Debug("duplicate audio", zap.String("path", path))
			return nil
		}
		annot, ok := annots[stem]
		if !ok {
			logger.Debug("no annotations", zap.String("path", path))
			return nil
		}
		seen[stem] = true
		pairs = append(pairs, pair{stem: stem, audio: path, annot: annot})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk audio: %w", err)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].stem < pairs[j].stem })
	return pairs, nil
}

// split shuffles pairs with seed and returns the requested subset.
func split(pairs []pair, subset string, seed uint64) ([]pair, error) {
	if subset == SubsetFull {
		return pairs, nil
	}

	shuffled := make([]pair, len(pairs))
	copy(shuffled, pairs)
	rng := rand.New(rand.NewPCG(seed, seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTrain := int(float64(len(shuffled)) * trainFraction)
	nVal := int(float64(len(shuffled)) * valFraction)

	switch subset {
	case SubsetTrain:
		return shuffled[:nTrain], nil
	case SubsetVal:
		return shuffled[nTrain : nTrain+nVal], nil
	case SubsetTest:
		return shuffled[nTrain+nVal:], nil
	default:
		return nil, fmt.Errorf("unknown subset %q", subset)
	}
}
