package eval

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"
)

// ScoreLists hold one score per example. Fields are in key order.
type ScoreLists struct {
	Beat     []float64 `json:"beat"`
	Downbeat []float64 `json:"downbeat"`
}

// DatasetResult holds the per-example scores of one dataset.
type DatasetResult struct {
	FMeasure ScoreLists `json:"F-measure"`
}

// Results maps a dataset name to its scores.
type Results map[string]*DatasetResult

// NewResults returns empty results.
func NewResults() Results {
	return Results{}
}

// Add registers a dataset with empty score lists and returns it.
func (r Results) Add(dataset string) *DatasetResult {
	if d, ok := r[dataset]; ok {
		return d
	}
	d := &DatasetResult{
		FMeasure: ScoreLists{
			Beat:     []float64{},
			Downbeat: []float64{},
		},
	}
	r[dataset] = d
	return d
}

// Append records the scores of one example.
func (r Results) Append(dataset string, beat, downbeat Scores) {
	d := r.Add(dataset)
	d.FMeasure.Beat = append(d.FMeasure.Beat, beat.FMeasure)
	d.FMeasure.Downbeat = append(d.FMeasure.Downbeat, downbeat.FMeasure)
}

// Means returns the average beat and downbeat F-measure of a dataset.
// Both are NaN when the dataset has no examples.
func (r Results) Means(dataset string) (beat, downbeat float64) {
	d, ok := r[dataset]
	if !ok {
		return mean(nil), mean(nil)
	}
	return mean(d.FMeasure.Beat), mean(d.FMeasure.Downbeat)
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// WriteJSON writes the results with sorted keys and four-space indentation,
// creating the parent directory if needed.
func (r Results) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

// ReadResults loads results written by WriteJSON.
func ReadResults(path string) (Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return r, nil
}
