// Package analysis runs a loaded tracker over a music library and writes
// beat grid sidecars next to each audio file.
package analysis

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nzoschke/beateval/pkg/audio"
	"github.com/nzoschke/beateval/pkg/config"
	"github.com/nzoschke/beateval/pkg/eval"
	"github.com/nzoschke/beateval/pkg/model"
	"go.uber.org/zap"
)

// TrackAnalysis is the JSON sidecar written for one track.
type TrackAnalysis struct {
	File       string    `json:"file"`
	Duration   float64   `json:"duration"`
	SampleRate int       `json:"sample_rate"`
	Model      string    `json:"model"`
	BPM        float64   `json:"bpm"`
	Beats      []float64 `json:"beats"`
	Downbeats  []int     `json:"downbeats"` // indices into Beats
}

// downbeatTolerance is how far a downbeat may sit from its beat, in seconds.
const downbeatTolerance = 0.05

// Analyzer turns model activations into beat grids.
type Analyzer struct {
	model   model.Model
	hparams *config.Hparams
	logger  *zap.Logger
}

// New creates an Analyzer for a loaded model.
func New(m model.Model, hp *config.Hparams, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{model: m, hparams: hp, logger: logger}
}

// AnalyzeFile predicts the beat grid of one audio file.
func (a *Analyzer) AnalyzeFile(audioPath string) (*TrackAnalysis, error) {
	samples, sampleRate, err := audio.LoadMono(audioPath)
	if err != nil {
		return nil, fmt.Errorf("load audio: %w", err)
	}
	duration := float64(len(samples)) / float64(sampleRate)

	samples = audio.Resample(samples, sampleRate, a.hparams.AudioSampleRate)
	if a.hparams.Half() {
		samples = audio.Quantize16(samples)
	}

	act, err := a.model.Predict(samples)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	beats, downbeats := a.beatGrid(act)

	return &TrackAnalysis{
		File:       filepath.Base(audioPath),
		Duration:   duration,
		SampleRate: sampleRate,
		Model:      a.hparams.ModelType,
		BPM:        calculateBPM(beats),
		Beats:      beats,
		Downbeats:  downbeats,
	}, nil
}

// beatGrid picks beats and downbeats from activations.
func (a *Analyzer) beatGrid(act *model.Activations) ([]float64, []int) {
	rate := a.hparams.TargetRate()
	distance := int(math.Round(eval.PeakDistance * rate))

	beats := eval.FramesToTimes(eval.PeakPick(act.Beat, eval.PeakThreshold, distance), rate)
	downbeatTimes := eval.FramesToTimes(eval.PeakPick(act.Downbeat, eval.PeakThreshold, distance), rate)

	if beats == nil {
		beats = []float64{}
	}
	return beats, matchDownbeatsToBeats(beats, downbeatTimes)
}

// AnalyzeDir recursively analyzes all audio files in a directory.
// For each audio file, it creates a corresponding .json sidecar file.
// If force is true, existing JSON files are overwritten.
func (a *Analyzer) AnalyzeDir(dir string, force bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if !audio.IsSupported(ext) {
			return nil
		}

		jsonPath := strings.TrimSuffix(path, ext) + ".json"
		if !force {
			if _, err := os.Stat(jsonPath); err == nil {
				a.logger.Info("skipping, already analyzed", zap.String("file", filepath.Base(path)))
				return nil
			}
		}

		a.logger.Info("analyzing", zap.String("file", filepath.Base(path)))

		result, err := a.AnalyzeFile(path)
		if err != nil {
			a.logger.Warn("analysis failed", zap.String("file", path), zap.Error(err))
			return nil // Continue with other files
		}

		if err := result.WriteJSON(jsonPath); err != nil {
			return err
		}

		a.logger.Info("analyzed",
			zap.String("file", result.File),
			zap.Float64("duration", result.Duration),
			zap.Float64("bpm", result.BPM),
			zap.Int("beats", len(result.Beats)),
			zap.Int("downbeats", len(result.Downbeats)),
		)
		return nil
	})
}

// WriteJSON writes the analysis to a JSON file.
func (ta *TrackAnalysis) WriteJSON(path string) error {
	data, err := json.MarshalIndent(ta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

// matchDownbeatsToBeats finds which beats are downbeats.
func matchDownbeatsToBeats(beats []float64, downbeatTimes []float64) []int {
	indices := []int{}
	seen := map[int]bool{}

	for _, dt := range downbeatTimes {
		bestIdx := -1
		bestDist := math.MaxFloat64

		for i, bt := range beats {
			if dist := math.Abs(bt - dt); dist < bestDist {
				bestDist = dist
				bestIdx = i
			}
		}

		if bestIdx >= 0 && bestDist < downbeatTolerance && !seen[bestIdx] {
			seen[bestIdx] = true
			indices = append(indices, bestIdx)
		}
	}

	sort.Ints(indices)
	return indices
}

// calculateBPM estimates BPM from the median beat interval, folded into 60-180.
func calculateBPM(beats []float64) float64 {
	if len(beats) < 2 {
		return 0
	}

	var intervals []float64
	for i := 1; i < len(beats); i++ {
		interval := beats[i] - beats[i-1]
		if interval > 0.2 && interval < 2.0 {
			intervals = append(intervals, interval)
		}
	}

	if len(intervals) == 0 {
		return 0
	}

	bpm := 60.0 / median(intervals)

	for bpm < 60 {
		bpm *= 2
	}
	for bpm > 180 {
		bpm /= 2
	}

	return math.Round(bpm*100) / 100
}

// median returns the median of values without modifying them.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
