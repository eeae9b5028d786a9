package model

import (
	"fmt"
	"os"
	"sync"

	"github.com/nzoschke/beateval/pkg/config"
	ort "github.com/yalue/onnxruntime_go"
)

// ortInitOnce ensures ONNX Runtime is initialized only once
var ortInitOnce sync.Once
var ortInitErr error

// defaultWaveUNetBlocks is used when hparams do not record nblocks.
const defaultWaveUNetBlocks = 10

// ONNXModel runs an exported tracker through ONNX Runtime.
type ONNXModel struct {
	session      *ort.DynamicAdvancedSession
	modelType    Type
	targetFactor int
	padMultiple  int
	logits       bool
	numOutputs   int
}

// NewONNX creates an ONNX Runtime session for the checkpoint.
func NewONNX(path string, t Type, hp *config.Hparams, opts Options) (*ONNXModel, error) {
	if err := initONNXRuntime(); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model info: %w", err)
	}
	if len(inputInfo) != 1 {
		return nil, fmt.Errorf("model should have 1 input, got %d", len(inputInfo))
	}
	if len(outputInfo) < 1 || len(outputInfo) > 2 {
		return nil, fmt.Errorf("model should have 1 or 2 outputs, got %d", len(outputInfo))
	}

	outputNames := make([]string, len(outputInfo))
	for i, info := range outputInfo {
		outputNames[i] = info.Name
	}

	options, err := sessionOptions(opts)
	if err != nil {
		return nil, err
	}
	if options != nil {
		defer options.Destroy()
	}

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{inputInfo[0].Name},
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m := &ONNXModel{
		session:      session,
		modelType:    t,
		targetFactor: hp.TargetFactor,
		padMultiple:  1,
		logits:       hp.OutputLogits,
		numOutputs:   len(outputNames),
	}
	if t == TypeWaveUNet {
		blocks := hp.NBlocks
		if blocks <= 0 {
			blocks = defaultWaveUNetBlocks
		}
		m.padMultiple = 1 << blocks
	}
	return m, nil
}

func initONNXRuntime() error {
	ortInitOnce.Do(func() {
		ort.SetSharedLibraryPath(getONNXLibPath())
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", ortInitErr)
	}
	return nil
}

// sessionOptions returns nil when the defaults suffice.
func sessionOptions(opts Options) (*ort.SessionOptions, error) {
	if !opts.CUDA {
		return nil, nil
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to create CUDA options: %w", err)
	}
	defer cuda.Destroy()

	if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set CUDA device: %w", err)
	}
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to enable CUDA: %w", err)
	}
	return options, nil
}

// getONNXLibPath returns the path to the ONNX Runtime shared library.
func getONNXLibPath() string {
	if path := os.Getenv("ONNXRUNTIME_LIB_PATH"); path != "" {
		return path
	}

	// macOS: brew install onnxruntime
	// Linux: apt install libonnxruntime
	candidates := []string{
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"C:\\Program Files\\onnxruntime\\onnxruntime.dll",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Let the library try to find it
	return "onnxruntime"
}

// Close releases ONNX Runtime resources.
func (m *ONNXModel) Close() error {
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}

// Predict runs the tracker on one track, batch size 1.
func (m *ONNXModel) Predict(audio []float32) (*Activations, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio")
	}
	frames := numFrames(len(audio), m.targetFactor)
	input := padTo(audio, m.padMultiple)

	// Shape (batch, channels, samples)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 1, int64(len(input))), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, m.numOutputs)
	if err := m.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("model inference failed: %w", err)
	}
	for i, out := range outputs {
		if out == nil {
			return nil, fmt.Errorf("model output %d was nil", i)
		}
		defer out.Destroy()
	}

	var beat, downbeat []float32
	if m.numOutputs == 1 {
		beat, downbeat, err = splitStacked(outputs[0])
	} else {
		beat, err = copyRow(outputs[0])
		if err == nil {
			downbeat, err = copyRow(outputs[1])
		}
	}
	if err != nil {
		return nil, err
	}

	if m.logits {
		sigmoidAll(beat)
		sigmoidAll(downbeat)
	}

	return &Activations{
		Beat:     fit(beat, frames),
		Downbeat: fit(downbeat, frames),
	}, nil
}

// splitStacked reads a (1, 2, T) output into its beat and downbeat rows.
func splitStacked(v ort.Value) ([]float32, []float32, error) {
	shape := v.GetShape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] != 2 {
		return nil, nil, fmt.Errorf("unexpected output shape: %v", shape)
	}
	tensor, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected output tensor type")
	}

	data := tensor.GetData()
	t := int(shape[2])
	beat := make([]float32, t)
	downbeat := make([]float32, t)
	copy(beat, data[:t])
	copy(downbeat, data[t:2*t])
	return beat, downbeat, nil
}

// copyRow reads a (1, T) output. The data is copied since the tensor is destroyed.
func copyRow(v ort.Value) ([]float32, error) {
	shape := v.GetShape()
	if len(shape) != 2 || shape[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}
	tensor, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	data := tensor.GetData()
	row := make([]float32, len(data))
	copy(row, data)
	return row, nil
}
