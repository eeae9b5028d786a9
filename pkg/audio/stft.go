package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// STFTConfig describes parameters for STFT computation.
type STFTConfig struct {
	FFTSize    int // FFT size, zero-padded past WindowSize
	HopSize    int // Hop between frames in samples
	WindowSize int // Analysis window size, usually FFTSize
}

// NumFrames returns how many full frames STFT produces for n samples.
func (cfg STFTConfig) NumFrames(n int) int {
	if cfg.HopSize <= 0 || n < cfg.WindowSize {
		return 0
	}
	return (n-cfg.WindowSize)/cfg.HopSize + 1
}

// STFT computes a Hann-windowed magnitude spectrogram.
// Returns [frames][bins] with FFTSize/2+1 bins per frame.
func STFT(samples []float32, cfg STFTConfig) [][]float64 {
	numFrames := cfg.NumFrames(len(samples))
	if numFrames <= 0 {
		return nil
	}

	window := hannWindow(cfg.WindowSize)
	fft := fourier.NewFFT(cfg.FFTSize)
	numBins := cfg.FFTSize/2 + 1

	result := make([][]float64, numFrames)
	frame := make([]float64, cfg.FFTSize)
	var coeffs []complex128

	for i := 0; i < numFrames; i++ {
		start := i * cfg.HopSize

		for j := range frame {
			frame[j] = 0
		}
		for j := 0; j < cfg.WindowSize && start+j < len(samples); j++ {
			frame[j] = float64(samples[start+j]) * window[j]
		}

		coeffs = fft.Coefficients(coeffs, frame)

		// One-sided spectrum: 2/N except DC and Nyquist
		scale := 2.0 / float64(cfg.FFTSize)
		result[i] = make([]float64, numBins)
		for j := 0; j < numBins; j++ {
			s := scale
			if j == 0 || j == numBins-1 {
				s = 1.0 / float64(cfg.FFTSize)
			}
			re := real(coeffs[j])
			im := imag(coeffs[j])
			result[i][j] = math.Sqrt(re*re+im*im) * s
		}
	}

	return result
}

// hannWindow generates a Hann window of given size.
func hannWindow(size int) []float64 {
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}
