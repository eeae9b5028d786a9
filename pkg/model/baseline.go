package model

import (
	"fmt"
	"math"

	"github.com/nzoschke/beateval/pkg/audio"
	"github.com/nzoschke/beateval/pkg/config"
	"github.com/nzoschke/beateval/pkg/eval"
	"gonum.org/v1/gonum/floats"
)

const (
	baselineFFTSize     = 2048
	baselineCompression = 100
	beatsPerBar         = 4
)

// Baseline is a training-free tracker. Its beat activation is the normalized
// log spectral flux; every fourth picked beat, in the phase with the most
// energy, becomes a downbeat.
type Baseline struct {
	hop      int
	distance int
}

// NewBaseline creates a baseline producing one frame per target_factor samples.
func NewBaseline(hp *config.Hparams) *Baseline {
	hop := hp.TargetFactor
	if hop <= 0 {
		hop = 256
	}
	return &Baseline{
		hop:      hop,
		distance: int(math.Round(eval.PeakDistance * hp.TargetRate())),
	}
}

// Close is a no-op.
func (b *Baseline) Close() error {
	return nil
}

// Predict computes beat and downbeat activations for one track.
func (b *Baseline) Predict(samples []float32) (*Activations, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty audio")
	}
	frames := numFrames(len(samples), b.hop)

	// Centre frame i on sample i*hop
	padded := make([]float32, len(samples)+baselineFFTSize)
	copy(padded[baselineFFTSize/2:], samples)

	spec := audio.STFT(padded, audio.STFTConfig{
		FFTSize:    baselineFFTSize,
		HopSize:    b.hop,
		WindowSize: baselineFFTSize,
	})

	flux := make([]float64, len(spec))
	for i := 1; i < len(spec); i++ {
		for j := range spec[i] {
			d := math.Log1p(baselineCompression*spec[i][j]) - math.Log1p(baselineCompression*spec[i-1][j])
			if d > 0 {
				flux[i] += d
			}
		}
	}

	if len(flux) > 0 {
		if peak := floats.Max(flux); peak > 0 {
			floats.Scale(1/peak, flux)
		}
	}

	beat := make([]float32, len(flux))
	for i, v := range flux {
		beat[i] = float32(v)
	}
	beat = fit(beat, frames)

	return &Activations{
		Beat:     beat,
		Downbeat: b.downbeats(beat),
	}, nil
}

// downbeats keeps every fourth beat peak in the strongest phase.
func (b *Baseline) downbeats(beat []float32) []float32 {
	out := make([]float32, len(beat))

	peaks := eval.PeakPick(beat, eval.PeakThreshold, b.distance)
	if len(peaks) == 0 {
		return out
	}

	var energy [beatsPerBar]float32
	for k, p := range peaks {
		energy[k%beatsPerBar] += beat[p]
	}
	phase := 0
	for i := 1; i < beatsPerBar; i++ {
		if energy[i] > energy[phase] {
			phase = i
		}
	}

	for k := phase; k < len(peaks); k += beatsPerBar {
		out[peaks[k]] = beat[peaks[k]]
	}
	return out
}
