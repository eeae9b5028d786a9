package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, path string, sampleRate, channels int, data []int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestLoadMonoWAVStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	// Two frames: (16384, 0) and (-32768, -32768)
	writeWAV(t, path, 8000, 2, []int{16384, 0, -32768, -32768})

	samples, rate, err := LoadMono(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, rate)
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.25, samples[0], 1e-6)
	assert.InDelta(t, -1.0, samples[1], 1e-6)
}

func TestLoadMonoUnsupported(t *testing.T) {
	_, _, err := LoadMono("track.flac")
	assert.ErrorContains(t, err, "unsupported audio format")
}

func TestLoadMonoInvalidWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a riff file"), 0644))

	_, _, err := LoadMono(path)
	assert.Error(t, err)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported(".WAV"))
	assert.True(t, IsSupported(".mp3"))
	assert.False(t, IsSupported(".aiff"))
}

func TestParseLAMEDelay(t *testing.T) {
	buf := make([]byte, 256)
	copy(buf[10:], "LAME")
	// 0x240 = 576 in the upper 12 bits of the 24-bit field
	buf[10+21] = 0x24
	buf[10+22] = 0x00
	assert.Equal(t, 576, parseLAMEDelay(buf))

	buf[10+21] = 0x48 // 0x480 = 1152
	assert.Equal(t, 1152, parseLAMEDelay(buf))

	assert.Equal(t, defaultEncoderDelay, parseLAMEDelay(make([]byte, 256)))
}

func TestResample(t *testing.T) {
	in := []float32{0, 1, 2, 3, 4, 5, 6, 7}

	down := Resample(in, 44100, 22050)
	assert.Equal(t, []float32{0, 2, 4, 6}, down)

	up := Resample([]float32{0, 1}, 1, 2)
	assert.Equal(t, []float32{0, 0.5, 1, 1}, up)

	assert.Equal(t, in, Resample(in, 22050, 22050))
}

func TestQuantize16(t *testing.T) {
	in := []float32{0.5, 0.1, -1}
	out := Quantize16(in)

	assert.Equal(t, float32(0.5), out[0])
	assert.Equal(t, float32(-1), out[2])
	assert.NotEqual(t, in[1], out[1])
	assert.InDelta(t, 0.1, out[1], 1e-4)
}

func TestSTFTShape(t *testing.T) {
	samples := make([]float32, 4096)
	cfg := STFTConfig{FFTSize: 1024, HopSize: 256, WindowSize: 1024}

	spec := STFT(samples, cfg)
	require.Len(t, spec, cfg.NumFrames(len(samples)))
	assert.Len(t, spec, 13)
	assert.Len(t, spec[0], 513)

	assert.Nil(t, STFT(samples[:100], cfg))
}

func TestSTFTSinePeak(t *testing.T) {
	const rate = 8192
	const bin = 64
	cfg := STFTConfig{FFTSize: 1024, HopSize: 512, WindowSize: 1024}

	// Sine centred exactly on bin 64
	freq := float64(bin) * rate / float64(cfg.FFTSize)
	samples := make([]float32, rate)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
	}

	spec := STFT(samples, cfg)
	require.NotEmpty(t, spec)

	best := 0
	for j, v := range spec[1] {
		if v > spec[1][best] {
			best = j
		}
	}
	assert.Equal(t, bin, best)
}
