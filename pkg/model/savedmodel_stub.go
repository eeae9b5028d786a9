//go:build !tensorflow

package model

import (
	"fmt"

	"github.com/nzoschke/beateval/pkg/config"
)

// SavedModel is a stub when TensorFlow is not available.
type SavedModel struct{}

// NewSavedModel returns an error when TensorFlow is not available.
func NewSavedModel(path string, t Type, hp *config.Hparams) (*SavedModel, error) {
	return nil, fmt.Errorf("TensorFlow support not compiled (build with -tags=tensorflow)")
}

// Close is a no-op for the stub.
func (m *SavedModel) Close() error {
	return nil
}

// Predict returns an error when TensorFlow is not available.
func (m *SavedModel) Predict(audio []float32) (*Activations, error) {
	return nil, fmt.Errorf("TensorFlow support not compiled (build with -tags=tensorflow)")
}
