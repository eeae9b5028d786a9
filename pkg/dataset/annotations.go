package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Beat is one annotated beat. Position is the beat's place in its bar,
// 1 for a downbeat and 0 when unknown.
type Beat struct {
	Time     float64
	Position int
}

// IsDownbeat reports whether the beat starts a bar.
func (b Beat) IsDownbeat() bool {
	return b.Position == 1
}

// rwcDownbeatMetric marks the first beat of a bar in RWC annotations.
const rwcDownbeatMetric = 384

// annotSuffix is the annotation file suffix of each dataset.
var annotSuffix = map[string]string{
	Beatles:    ".txt",
	Ballroom:   ".beats",
	Hainsworth: ".txt",
	RWCPopular: ".beat.txt",
}

// LoadAnnotations reads the beat annotation file of a dataset example.
func LoadAnnotations(dataset, path string) ([]Beat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotations: %w", err)
	}
	defer f.Close()

	beats, err := ParseAnnotations(dataset, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return beats, nil
}

// ParseAnnotations parses beat annotations in the format of dataset.
//
// beatles, ballroom and hainsworth lines are "time [...] position" with time
// in seconds. rwc_popular lines are "start end metric" with times in units of
// 10ms and metric 384 on downbeats.
func ParseAnnotations(dataset string, r io.Reader) ([]Beat, error) {
	var beats []Beat

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)

		var b Beat
		var err error
		switch dataset {
		case RWCPopular:
			b, err = parseRWCLine(fields)
		case Beatles, Ballroom, Hainsworth:
			b, err = parseTimePositionLine(fields)
		default:
			return nil, fmt.Errorf("unknown dataset %q", dataset)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if b.Time < 0 {
			continue
		}
		beats = append(beats, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}

	return beats, nil
}

func parseTimePositionLine(fields []string) (Beat, error) {
	t, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Beat{}, fmt.Errorf("invalid beat time %q", fields[0])
	}
	if len(fields) == 1 {
		return Beat{Time: t}, nil
	}

	last := fields[len(fields)-1]
	pos, err := strconv.ParseFloat(last, 64)
	if err != nil {
		return Beat{}, fmt.Errorf("invalid beat position %q", last)
	}
	return Beat{Time: t, Position: int(pos)}, nil
}

func parseRWCLine(fields []string) (Beat, error) {
	if len(fields) < 3 {
		return Beat{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	start, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Beat{}, fmt.Errorf("invalid start %q", fields[0])
	}
	metric, err := strconv.Atoi(fields[2])
	if err != nil {
		return Beat{}, fmt.Errorf("invalid metric %q", fields[2])
	}

	b := Beat{Time: start / 100, Position: 2}
	if metric == rwcDownbeatMetric {
		b.Position = 1
	}
	return b, nil
}
