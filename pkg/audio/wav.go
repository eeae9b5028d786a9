package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// loadWAVMono decodes a PCM WAV file of any bit depth and channel count.
func loadWAVMono(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode WAV: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, 0, fmt.Errorf("unsupported WAV bit depth: %d", bitDepth)
	}

	// 8-bit WAV is unsigned, everything else signed
	scale := float32(int64(1) << (bitDepth - 1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	numFrames := len(buf.Data) / channels
	samples := make([]float32, numFrames)
	for i := range numFrames {
		var sum float32
		for c := range channels {
			sum += float32(buf.Data[i*channels+c]-offset) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return samples, int(decoder.SampleRate), nil
}
