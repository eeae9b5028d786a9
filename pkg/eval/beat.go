package eval

import (
	"math"
)

const (
	// MinBeatTime is the time before which beats are ignored, in seconds.
	MinBeatTime = 5.0
	// FMeasureWindow is the hit tolerance for F-measure, in seconds.
	FMeasureWindow = 0.07
	// CemgilSigma is the Gaussian error width for Cemgil accuracy, in seconds.
	CemgilSigma = 0.04

	// PeakThreshold is the activation an estimated beat must reach.
	PeakThreshold = 0.5
	// PeakDistance is the minimum spacing of estimated beats, in seconds.
	PeakDistance = 0.1
)

// Scores are the metrics for one sequence of beats or downbeats.
type Scores struct {
	FMeasure  float64
	Precision float64
	Recall    float64
	Cemgil    float64
}

// Evaluate scores predicted activations against a binary target. Both are
// [beat, downbeat] rows at targetRate frames per second.
func Evaluate(pred, target [2][]float32, targetRate float64) (beat, downbeat Scores) {
	distance := int(math.Round(PeakDistance * targetRate))

	var scores [2]Scores
	for row := range 2 {
		ref := TrimBeats(TargetTimes(target[row], targetRate))
		est := TrimBeats(FramesToTimes(PeakPick(pred[row], PeakThreshold, distance), targetRate))

		f, p, r := FMeasure(ref, est, FMeasureWindow)
		scores[row] = Scores{
			FMeasure:  f,
			Precision: p,
			Recall:    r,
			Cemgil:    Cemgil(ref, est, CemgilSigma),
		}
	}
	return scores[0], scores[1]
}

// TargetTimes returns the times of frames marked in a binary target.
func TargetTimes(target []float32, rate float64) []float64 {
	var times []float64
	for i, v := range target {
		if v > 0.5 {
			times = append(times, float64(i)/rate)
		}
	}
	return times
}

// FramesToTimes converts frame indices to seconds.
func FramesToTimes(frames []int, rate float64) []float64 {
	times := make([]float64, len(frames))
	for i, f := range frames {
		times[i] = float64(f) / rate
	}
	return times
}

// TrimBeats drops beats before MinBeatTime.
func TrimBeats(beats []float64) []float64 {
	var trimmed []float64
	for _, b := range beats {
		if b >= MinBeatTime {
			trimmed = append(trimmed, b)
		}
	}
	return trimmed
}

// FMeasure matches estimated to reference beats one-to-one within window
// seconds and returns F-measure, precision and recall. All are zero when
// either sequence is empty.
func FMeasure(ref, est []float64, window float64) (f, precision, recall float64) {
	if len(ref) == 0 || len(est) == 0 {
		return 0, 0, 0
	}

	matched := len(MatchEvents(ref, est, window))
	precision = float64(matched) / float64(len(est))
	recall = float64(matched) / float64(len(ref))
	if precision+recall == 0 {
		return 0, precision, recall
	}
	return 2 * precision * recall / (precision + recall), precision, recall
}

// Cemgil returns the Gaussian-weighted beat accuracy with error width sigma.
func Cemgil(ref, est []float64, sigma float64) float64 {
	if len(ref) == 0 || len(est) == 0 {
		return 0
	}

	var accuracy float64
	for _, r := range ref {
		best := 0.0
		for _, e := range est {
			d := r - e
			if v := math.Exp(-d * d / (2 * sigma * sigma)); v > best {
				best = v
			}
		}
		accuracy += best
	}
	return accuracy / (0.5 * float64(len(ref)+len(est)))
}

// MatchEvents returns a maximum one-to-one matching of ref to est events no
// further apart than window, as [ref, est] index pairs sorted by ref.
func MatchEvents(ref, est []float64, window float64) [][2]int {
	// Candidate est indices per ref event
	hits := make([][]int, len(ref))
	for i, r := range ref {
		for j, e := range est {
			if math.Abs(r-e) <= window {
				hits[i] = append(hits[i], j)
			}
		}
	}

	estMatch := make([]int, len(est))
	for j := range estMatch {
		estMatch[j] = -1
	}

	var augment func(i int, seen []bool) bool
	augment = func(i int, seen []bool) bool {
		for _, j := range hits[i] {
			if seen[j] {
				continue
			}
			seen[j] = true
			if estMatch[j] == -1 || augment(estMatch[j], seen) {
				estMatch[j] = i
				return true
			}
		}
		return false
	}

	for i := range ref {
		if len(hits[i]) == 0 {
			continue
		}
		augment(i, make([]bool, len(est)))
	}

	refMatch := make([]int, len(ref))
	for i := range refMatch {
		refMatch[i] = -1
	}
	for j, i := range estMatch {
		if i >= 0 {
			refMatch[i] = j
		}
	}

	var pairs [][2]int
	for i, j := range refMatch {
		if j >= 0 {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}
