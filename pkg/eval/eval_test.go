package eval

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeakPick(t *testing.T) {
	act := []float32{0, 0.6, 0.2, 0.9, 0.1, 0.4, 0.3, 0}
	assert.Equal(t, []int{1, 3}, PeakPick(act, 0.5, 0))
	assert.Equal(t, []int{1, 3, 5}, PeakPick(act, 0.3, 1))
}

func TestPeakPickPlateau(t *testing.T) {
	act := []float32{0, 1, 1, 1, 0, 1, 1, 0}
	assert.Equal(t, []int{2, 5}, PeakPick(act, 0.5, 0))

	// Edges are never peaks
	assert.Empty(t, PeakPick([]float32{1, 0, 0, 1}, 0.5, 0))
}

func TestPeakPickDistance(t *testing.T) {
	act := []float32{0, 0.7, 0, 0.9, 0, 0, 0, 0, 0.6, 0}
	// 0.9 at frame 3 suppresses 0.7 at frame 1 but not 0.6 at frame 8
	assert.Equal(t, []int{3, 8}, PeakPick(act, 0.5, 3))
}

func TestTrimBeats(t *testing.T) {
	assert.Equal(t, []float64{5, 6.5}, TrimBeats([]float64{1, 4.99, 5, 6.5}))
	assert.Nil(t, TrimBeats([]float64{1, 2}))
}

func TestFMeasure(t *testing.T) {
	ref := []float64{5, 6, 7, 8}

	f, p, r := FMeasure(ref, ref, FMeasureWindow)
	assert.Equal(t, 1.0, f)
	assert.Equal(t, 1.0, p)
	assert.Equal(t, 1.0, r)

	// Two hits inside the window, one miss, one extra
	est := []float64{5.05, 6.06, 7.2}
	f, p, r = FMeasure(ref, est, FMeasureWindow)
	assert.InDelta(t, 2.0/3.0, p, 1e-9)
	assert.InDelta(t, 0.5, r, 1e-9)
	assert.InDelta(t, 2*(2.0/3.0)*0.5/(2.0/3.0+0.5), f, 1e-9)

	f, _, _ = FMeasure(ref, nil, FMeasureWindow)
	assert.Equal(t, 0.0, f)
	f, _, _ = FMeasure(nil, est, FMeasureWindow)
	assert.Equal(t, 0.0, f)
}

func TestMatchEventsOneToOne(t *testing.T) {
	// A greedy match of ref[0] to est[1] would leave ref[1] unmatched
	ref := []float64{1.00, 1.10}
	est := []float64{0.95, 1.05}

	pairs := MatchEvents(ref, est, 0.07)
	assert.Equal(t, [][2]int{{0, 0}, {1, 1}}, pairs)

	// Two estimates near one reference count once
	pairs = MatchEvents([]float64{1.0}, []float64{0.99, 1.01}, 0.07)
	assert.Len(t, pairs, 1)
}

func TestCemgil(t *testing.T) {
	ref := []float64{5, 6, 7}
	assert.InDelta(t, 1.0, Cemgil(ref, ref, CemgilSigma), 1e-9)

	shifted := []float64{5.04, 6.04, 7.04}
	assert.InDelta(t, math.Exp(-0.5), Cemgil(ref, shifted, CemgilSigma), 1e-9)

	assert.Equal(t, 0.0, Cemgil(ref, nil, CemgilSigma))
}

// pulses builds a binary target with ones every period frames.
func pulses(n, period, offset int) []float32 {
	out := make([]float32, n)
	for i := offset; i < n; i += period {
		out[i] = 1
	}
	return out
}

func TestEvaluatePerfect(t *testing.T) {
	const rate = 100.0
	target := [2][]float32{pulses(2000, 50, 10), pulses(2000, 200, 10)}

	beat, downbeat := Evaluate(target, target, rate)
	assert.Equal(t, 1.0, beat.FMeasure)
	assert.Equal(t, 1.0, downbeat.FMeasure)
	assert.InDelta(t, 1.0, beat.Cemgil, 1e-9)
}

func TestEvaluateHalfTempo(t *testing.T) {
	const rate = 100.0
	target := [2][]float32{pulses(2000, 50, 10), pulses(2000, 200, 10)}
	pred := [2][]float32{pulses(2000, 100, 10), make([]float32, 2000)}

	beat, downbeat := Evaluate(pred, target, rate)
	assert.InDelta(t, 1.0, beat.Precision, 1e-9)
	assert.InDelta(t, 0.5, beat.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, beat.FMeasure, 1e-9)
	assert.Equal(t, 0.0, downbeat.FMeasure)
}

func TestResultsJSON(t *testing.T) {
	r := NewResults()
	r.Add("ballroom")
	r.Append("beatles", Scores{FMeasure: 0.5}, Scores{FMeasure: 0.25})
	r.Append("beatles", Scores{FMeasure: 1}, Scores{FMeasure: 0.75})

	beat, downbeat := r.Means("beatles")
	assert.InDelta(t, 0.75, beat, 1e-9)
	assert.InDelta(t, 0.5, downbeat, 1e-9)

	beat, _ = r.Means("ballroom")
	assert.True(t, math.IsNaN(beat))

	path := filepath.Join(t.TempDir(), "results", "test.json")
	require.NoError(t, r.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.Index(text, `"ballroom"`) < strings.Index(text, `"beatles"`))
	assert.Contains(t, text, "\n    \"ballroom\": {\n        \"F-measure\": {\n            \"beat\": [],")
	assert.Contains(t, text, `"downbeat": [`)

	loaded, err := ReadResults(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1}, loaded["beatles"].FMeasure.Beat)
	assert.Empty(t, loaded["ballroom"].FMeasure.Downbeat)
}
