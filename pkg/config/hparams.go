// Package config loads the model hyperparameters written next to a checkpoint
// and the program settings used by the evaluation commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNoHparams is returned when a log directory has no hparams.yaml.
var ErrNoHparams = errors.New("no hparams.yaml file found")

// ErrNoCheckpoint is returned when a log directory has no usable checkpoint.
var ErrNoCheckpoint = errors.New("no checkpoints found")

// Hparams are the hyperparameters saved alongside a trained model.
type Hparams struct {
	ModelType        string  `yaml:"model_type"`
	AudioSampleRate  int     `yaml:"audio_sample_rate"`
	TargetFactor     int     `yaml:"target_factor"`
	TargetSampleRate float64 `yaml:"target_sample_rate"`
	Precision        int     `yaml:"precision"`
	OutputLogits     bool    `yaml:"output_logits"`
	NBlocks          int     `yaml:"nblocks"`

	// Extra holds every key not mapped above.
	Extra map[string]any `yaml:",inline"`
}

// LoadHparams reads <logdir>/hparams.yaml.
func LoadHparams(logdir string) (*Hparams, error) {
	path := filepath.Join(logdir, "hparams.yaml")

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w in %s", ErrNoHparams, logdir)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hparams: %w", err)
	}

	return ParseHparams(data)
}

// ParseHparams decodes hparams YAML and validates it.
func ParseHparams(data []byte) (*Hparams, error) {
	hp := &Hparams{}
	if err := yaml.Unmarshal(data, hp); err != nil {
		return nil, fmt.Errorf("parse hparams: %w", err)
	}
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	return hp, nil
}

// Validate checks the fields the evaluation loop depends on.
func (hp *Hparams) Validate() error {
	if hp.ModelType == "" {
		return fmt.Errorf("hparams: model_type is required")
	}
	if hp.AudioSampleRate <= 0 {
		return fmt.Errorf("hparams: audio_sample_rate must be positive, got %d", hp.AudioSampleRate)
	}
	if hp.TargetFactor <= 0 {
		return fmt.Errorf("hparams: target_factor must be positive, got %d", hp.TargetFactor)
	}
	if hp.TargetSampleRate < 0 {
		return fmt.Errorf("hparams: target_sample_rate must not be negative, got %g", hp.TargetSampleRate)
	}
	return nil
}

// TargetRate returns the frame rate of targets and predictions in Hz.
func (hp *Hparams) TargetRate() float64 {
	if hp.TargetSampleRate > 0 {
		return hp.TargetSampleRate
	}
	return float64(hp.AudioSampleRate) / float64(hp.TargetFactor)
}

// Half reports whether the model was trained with 16-bit precision.
func (hp *Hparams) Half() bool {
	return hp.Precision == 16
}

// FindCheckpoint returns the checkpoint to evaluate from <logdir>/checkpoints.
// Candidates are ONNX files and TensorFlow SavedModel directories; the last
// one in lexical order wins.
func FindCheckpoint(logdir string) (string, error) {
	dir := filepath.Join(logdir, "checkpoints")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w in %s", ErrNoCheckpoint, logdir)
	}

	var candidates []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if _, err := os.Stat(filepath.Join(path, "saved_model.pb")); err == nil {
				candidates = append(candidates, path)
			}
			continue
		}
		if filepath.Ext(e.Name()) == ".onnx" {
			candidates = append(candidates, path)
		}
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoCheckpoint, logdir)
	}

	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}
