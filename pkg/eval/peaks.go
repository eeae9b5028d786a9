// Package eval scores beat and downbeat predictions against reference
// annotations and collects the scores of a full evaluation run.
package eval

import "sort"

// PeakPick returns the frame indices of local maxima in act that reach
// threshold. A flat peak yields its middle frame. When distance > 1, peaks
// closer than distance frames to a higher peak are dropped.
func PeakPick(act []float32, threshold float32, distance int) []int {
	var peaks []int

	n := len(act)
	for i := 1; i < n-1; i++ {
		if act[i-1] >= act[i] {
			continue
		}

		// Walk across a plateau
		ahead := i + 1
		for ahead < n-1 && act[ahead] == act[i] {
			ahead++
		}

		if act[ahead] < act[i] {
			mid := (i + ahead - 1) / 2
			if act[mid] >= threshold {
				peaks = append(peaks, mid)
			}
			i = ahead
		}
	}

	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}
	return selectByDistance(act, peaks, distance)
}

// selectByDistance keeps the highest peaks first, removing neighbours within
// distance frames.
func selectByDistance(act []float32, peaks []int, distance int) []int {
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return act[peaks[order[a]]] < act[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	kept := peaks[:0]
	for i, p := range peaks {
		if keep[i] {
			kept = append(kept, p)
		}
	}
	return kept
}
