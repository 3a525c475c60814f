package model

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/example/ai-detect/internal/imageprocessor"
)

// ONNXOptions configures an ONNX Runtime backed model.
type ONNXOptions struct {
	// LibraryPath points at libonnxruntime; empty uses the runtime default.
	LibraryPath string
	InputName   string
	OutputName  string
	InputSize   int
}

func (o ONNXOptions) normalize() ONNXOptions {
	if o.InputName == "" {
		o.InputName = "input"
	}
	if o.OutputName == "" {
		o.OutputName = "output"
	}
	if o.InputSize <= 0 {
		o.InputSize = DefaultInputSize
	}
	return o
}

// ONNXModel runs an exported copy of the network through ONNX Runtime. The
// graph takes NHWC float32 input of shape [1, size, size, 3] and returns
// [1, 2] ordered (real, ai).
type ONNXModel struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
	inputSize int
}

// NewONNXModel loads the model at path.
func NewONNXModel(path string, opts ONNXOptions) (*ONNXModel, error) {
	opts = opts.normalize()
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	size := int64(opts.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, size, size, imageprocessor.Channels))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, numClasses))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXModel{
		session:   session,
		input:     input,
		output:    output,
		inputSize: opts.InputSize,
	}, nil
}

// Predict copies t into the bound input tensor and runs the session. Calls are
// serialized because the session owns a single pair of tensors.
func (m *ONNXModel) Predict(t *imageprocessor.Tensor) (Distribution, error) {
	t.CheckShape(m.inputSize, m.inputSize)

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), t.Data)
	if err := m.session.Run(); err != nil {
		return Distribution{}, fmt.Errorf("onnx inference: %w", err)
	}
	out := m.output.GetData()
	return toDistribution(float64(out[IndexReal]), float64(out[IndexAI])), nil
}

// toDistribution accepts either probabilities or raw logits from an exported graph.
func toDistribution(pReal, pAI float64) Distribution {
	if pReal >= 0 && pAI >= 0 && math.Abs(pReal+pAI-1) < 1e-3 {
		sum := pReal + pAI
		return Distribution{Real: pReal / sum, AI: pAI / sum}
	}
	return softmax2(pReal, pAI)
}

func (m *ONNXModel) InputSize() int { return m.inputSize }

func (m *ONNXModel) Trained() bool { return true }

// Close releases the session and tensors. The shared runtime environment is
// left initialized for the rest of the process.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.session != nil {
		firstErr = m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		if err := m.input.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.input = nil
	}
	if m.output != nil {
		if err := m.output.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.output = nil
	}
	return firstErr
}
