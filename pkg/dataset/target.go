package dataset

import "math"

// MakeTarget builds the [beat, downbeat] target for audio of numSamples
// samples. Each row has one frame per factor samples; frames holding a beat
// are set to 1.
func MakeTarget(beats []Beat, numSamples, factor int, rate float64) [2][]float32 {
	n := (numSamples + factor - 1) / factor

	target := [2][]float32{make([]float32, n), make([]float32, n)}
	for _, b := range beats {
		idx := int(math.Round(b.Time * rate))
		if idx < 0 || idx >= n {
			continue
		}
		target[0][idx] = 1
		if b.IsDownbeat() {
			target[1][idx] = 1
		}
	}
	return target
}
