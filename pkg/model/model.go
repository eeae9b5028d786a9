// Package model loads trained beat and downbeat trackers and runs them over
// mono audio, producing frame-wise activations at the target rate.
package model

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/nzoschke/beateval/pkg/config"
)

// Type names a model architecture.
type Type string

const (
	TypeTCN      Type = "tcn"      // temporal convolutional network
	TypeLSTM     Type = "lstm"     // recurrent baseline
	TypeWaveUNet Type = "waveunet" // Wave-U-Net, input padded to 2^nblocks
	TypeDSTCN    Type = "dstcn"    // downsampling TCN
	TypeBaseline Type = "baseline" // spectral flux, no checkpoint
)

// ParseType validates a model_type hyperparameter.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeTCN, TypeLSTM, TypeWaveUNet, TypeDSTCN, TypeBaseline:
		return t, nil
	default:
		return "", fmt.Errorf("unknown model type %q", s)
	}
}

// Activations are the beat and downbeat probabilities of one track,
// one value per target frame.
type Activations struct {
	Beat     []float32
	Downbeat []float32
}

// Rows returns the activations as a [beat, downbeat] pair.
func (a *Activations) Rows() [2][]float32 {
	return [2][]float32{a.Beat, a.Downbeat}
}

// Model predicts activations for mono audio at the model's sample rate.
type Model interface {
	Predict(audio []float32) (*Activations, error)
	Close() error
}

// Options control how a checkpoint is loaded.
type Options struct {
	// CUDA runs inference on GPU 0 when the backend supports it.
	CUDA bool
}

// Open loads the checkpoint for the architecture named in hp.
func Open(hp *config.Hparams, checkpoint string, opts Options) (Model, error) {
	t, err := ParseType(hp.ModelType)
	if err != nil {
		return nil, err
	}

	if t == TypeBaseline {
		return NewBaseline(hp), nil
	}

	if strings.EqualFold(filepath.Ext(checkpoint), ".onnx") {
		m, err := NewONNX(checkpoint, t, hp, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	if _, err := os.Stat(filepath.Join(checkpoint, "saved_model.pb")); err == nil {
		m, err := NewSavedModel(checkpoint, t, hp)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	return nil, fmt.Errorf("unsupported checkpoint %s: export it to ONNX", checkpoint)
}

// numFrames is the number of target frames for n samples.
func numFrames(n, targetFactor int) int {
	if targetFactor <= 0 {
		return n
	}
	return (n + targetFactor - 1) / targetFactor
}

// padTo zero-pads audio to a multiple of m.
func padTo(audio []float32, m int) []float32 {
	if m <= 1 || len(audio)%m == 0 {
		return audio
	}
	padded := make([]float32, (len(audio)/m+1)*m)
	copy(padded, audio)
	return padded
}

// fit trims or zero-extends activations to n frames.
func fit(act []float32, n int) []float32 {
	if len(act) == n {
		return act
	}
	out := make([]float32, n)
	copy(out, act)
	return out
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

func sigmoidAll(xs []float32) {
	for i, x := range xs {
		xs[i] = sigmoid(x)
	}
}
