package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/nzoschke/beateval/pkg/config"
	"github.com/nzoschke/beateval/pkg/dataset"
	"github.com/nzoschke/beateval/pkg/eval"
	"github.com/nzoschke/beateval/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	color.NoColor = true
}

// echoModel predicts the input audio as the beat activation and no downbeats.
type echoModel struct {
	err error
}

func (m *echoModel) Predict(audio []float32) (*model.Activations, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.Activations{Beat: audio, Downbeat: make([]float32, len(audio))}, nil
}

func (m *echoModel) Close() error { return nil }

type sliceSource []*dataset.Example

func (s sliceSource) Len() int                            { return len(s) }
func (s sliceSource) Get(i int) (*dataset.Example, error) { return s[i], nil }

func pulses(n, period int) []float32 {
	out := make([]float32, n)
	for i := period / 2; i < n; i += period {
		out[i] = 1
	}
	return out
}

func example(name string, audio, beats, downbeats []float32) *dataset.Example {
	return &dataset.Example{
		Audio:    audio,
		Target:   [2][]float32{beats, downbeats},
		Metadata: dataset.Metadata{Name: name},
	}
}

func TestRun(t *testing.T) {
	hp := &config.Hparams{ModelType: "tcn", AudioSampleRate: 100, TargetFactor: 1}
	beats := pulses(1500, 50)
	downbeats := pulses(1500, 200)

	sources := map[string]dataset.Source{
		"beatles": sliceSource{
			example("perfect", beats, beats, downbeats),
			example("silent", make([]float32, 1500), beats, downbeats),
		},
		"ballroom": sliceSource{},
	}

	var out bytes.Buffer
	r := &Runner{
		Model:    &echoModel{},
		Hparams:  hp,
		Settings: &config.Settings{NumWorkers: 2},
		Logger:   zaptest.NewLogger(t),
		Out:      &out,
		Datasets: []string{"beatles", "ballroom"},
		Open: func(ctx context.Context, name string) (dataset.Source, error) {
			return sources[name], nil
		},
	}

	results, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 0}, results["beatles"].FMeasure.Beat)
	assert.Equal(t, []float64{0, 0}, results["beatles"].FMeasure.Downbeat)
	assert.Empty(t, results["ballroom"].FMeasure.Beat)

	assert.Contains(t, out.String(), "beatles: avg. F1 beat: 0.5   avg. F1 downbeat: 0\n")
	assert.Contains(t, out.String(), "ballroom: avg. F1 beat: NaN")

	path := filepath.Join(t.TempDir(), "results", "test.json")
	require.NoError(t, r.Save(results, path))
	assert.Contains(t, out.String(), "Saved results to "+path)

	loaded, err := eval.ReadResults(path)
	require.NoError(t, err)
	assert.Equal(t, results["beatles"].FMeasure, loaded["beatles"].FMeasure)
}

func TestRunPredictError(t *testing.T) {
	boom := errors.New("boom")
	r := &Runner{
		Model:    &echoModel{err: boom},
		Hparams:  &config.Hparams{AudioSampleRate: 100, TargetFactor: 1},
		Datasets: []string{"hainsworth"},
		Open: func(ctx context.Context, name string) (dataset.Source, error) {
			return sliceSource{example("a", make([]float32, 10), make([]float32, 10), make([]float32, 10))}, nil
		},
	}

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "evaluate hainsworth")
}

func TestRunOpenError(t *testing.T) {
	r := &Runner{
		Model:    &echoModel{},
		Hparams:  &config.Hparams{AudioSampleRate: 100, TargetFactor: 1},
		Datasets: []string{"rwc_popular"},
		Open: func(ctx context.Context, name string) (dataset.Source, error) {
			return nil, fmt.Errorf("missing")
		},
	}

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "open rwc_popular")
}

func writeWAV(t *testing.T, path string, sampleRate int, data []int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestRunOnDiskBaseline(t *testing.T) {
	root := t.TempDir()
	settings := &config.Settings{
		BallroomAudioDir: filepath.Join(root, "ballroom", "audio"),
		BallroomAnnotDir: filepath.Join(root, "ballroom", "annot"),
		NumWorkers:       1,
	}

	const rate = 8000
	for i := range 10 {
		data := make([]int, rate*8)
		for k := 0; k < len(data); k += rate / 2 {
			for j := 0; j < 80 && k+j < len(data); j++ {
				data[k+j] = 12000 * (1 - 2*(j%2))
			}
		}
		name := fmt.Sprintf("track%02d", i)
		writeWAV(t, filepath.Join(settings.BallroomAudioDir, name+".wav"), rate, data)

		var annot bytes.Buffer
		for k := 0; k < 16; k++ {
			fmt.Fprintf(&annot, "%.3f %d\n", float64(k)*0.5, k%4+1)
		}
		require.NoError(t, os.MkdirAll(settings.BallroomAnnotDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(settings.BallroomAnnotDir, name+".beats"), annot.Bytes(), 0644))
	}

	hp := &config.Hparams{ModelType: "baseline", AudioSampleRate: rate, TargetFactor: 80}
	m, err := model.Open(hp, "", model.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	r := &Runner{
		Model:    m,
		Hparams:  hp,
		Settings: settings,
		Logger:   zaptest.NewLogger(t),
		Out:      &out,
		Datasets: []string{"ballroom"},
	}

	results, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, results["ballroom"].FMeasure.Beat, 1)
	f := results["ballroom"].FMeasure.Beat[0]
	assert.GreaterOrEqual(t, f, 0.0)
	assert.LessOrEqual(t, f, 1.0)
	assert.Contains(t, out.String(), "ballroom: avg. F1 beat:")
}
