//go:build tensorflow

package model

import (
	"fmt"

	"github.com/nzoschke/beateval/pkg/config"
	tf "github.com/wamuir/graft/tensorflow"
)

// Signature names of a tracker exported with tf.saved_model.save.
const (
	savedModelInputOp  = "serving_default_audio"
	savedModelOutputOp = "StatefulPartitionedCall"
)

// SavedModel runs a tracker exported as a TensorFlow SavedModel.
type SavedModel struct {
	model        *tf.SavedModel
	modelType    Type
	targetFactor int
	logits       bool
}

// NewSavedModel loads the SavedModel directory at path.
func NewSavedModel(path string, t Type, hp *config.Hparams) (*SavedModel, error) {
	model, err := tf.LoadSavedModel(path, []string{"serve"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load SavedModel: %w", err)
	}

	return &SavedModel{
		model:        model,
		modelType:    t,
		targetFactor: hp.TargetFactor,
		logits:       hp.OutputLogits,
	}, nil
}

// Close releases the TensorFlow model resources.
func (m *SavedModel) Close() error {
	if m.model != nil && m.model.Session != nil {
		return m.model.Session.Close()
	}
	return nil
}

// Predict runs the tracker on one track.
func (m *SavedModel) Predict(audio []float32) (*Activations, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio")
	}

	// Shape (batch, channels, samples)
	inputTensor, err := tf.NewTensor([][][]float32{{audio}})
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	inputOp := m.model.Graph.Operation(savedModelInputOp)
	if inputOp == nil {
		return nil, fmt.Errorf("input operation %q not found", savedModelInputOp)
	}
	outputOp := m.model.Graph.Operation(savedModelOutputOp)
	if outputOp == nil {
		return nil, fmt.Errorf("output operation %q not found", savedModelOutputOp)
	}

	outputs, err := m.model.Session.Run(
		map[tf.Output]*tf.Tensor{inputOp.Output(0): inputTensor},
		[]tf.Output{outputOp.Output(0)},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// Shape (batch, 2, frames)
	rows, ok := outputs[0].Value().([][][]float32)
	if !ok || len(rows) != 1 || len(rows[0]) != 2 {
		return nil, fmt.Errorf("unexpected output type: %T", outputs[0].Value())
	}
	beat, downbeat := rows[0][0], rows[0][1]

	if m.logits {
		sigmoidAll(beat)
		sigmoidAll(downbeat)
	}

	frames := numFrames(len(audio), m.targetFactor)
	return &Activations{
		Beat:     fit(beat, frames),
		Downbeat: fit(downbeat, frames),
	}, nil
}
