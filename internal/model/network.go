package model

import (
	"fmt"
	"math/rand"

	"github.com/example/ai-detect/internal/imageprocessor"
)

// Architecture of the local classifier.
var blockWidths = [4]int{32, 64, 128, 256}

const (
	hiddenUnits1 = 512
	hiddenUnits2 = 256
	numClasses   = 2
	// minInputSize keeps every pooling stage non-empty.
	minInputSize = 16
)

type convBlock struct {
	conv conv2D
	norm batchNorm
}

// Network is a pure Go implementation of the four-block CNN:
// (conv3x3 → batch norm → ReLU → maxpool 2x2) ×4 with widths 32/64/128/256,
// global average pooling, dense 512 and 256 with ReLU, and a softmax head.
// Training applies dropout 0.5 and 0.3 after the dense layers; inference does
// not. Weights are read-only after construction.
type Network struct {
	inputSize int
	blocks    [len(blockWidths)]convBlock
	fc1       dense
	fc2       dense
	head      dense
}

// NewNetwork builds a network with He-initialized random parameters. Its
// predictions are structurally valid but carry no information.
func NewNetwork(inputSize int, rng *rand.Rand) (*Network, error) {
	if inputSize < minInputSize {
		return nil, fmt.Errorf("model: input size %d below minimum %d", inputSize, minInputSize)
	}
	n := &Network{inputSize: inputSize}
	in := imageprocessor.Channels
	for i, width := range blockWidths {
		n.blocks[i] = convBlock{conv: newConv2D(in, width, rng), norm: newBatchNorm(width)}
		in = width
	}
	n.fc1 = newDense(in, hiddenUnits1, rng)
	n.fc2 = newDense(hiddenUnits1, hiddenUnits2, rng)
	n.head = newDense(hiddenUnits2, numClasses, rng)
	return n, nil
}

// Predict runs a forward pass. t must be InputSize×InputSize×3.
func (n *Network) Predict(t *imageprocessor.Tensor) (Distribution, error) {
	t.CheckShape(n.inputSize, n.inputSize)

	act := t.Data
	h, w := t.Height, t.Width
	for _, block := range n.blocks {
		act = block.conv.forward(act, h, w)
		block.norm.forwardReLU(act)
		act, h, w = maxPool2(act, h, w, block.conv.out)
	}
	pooled := globalAveragePool(act, h, w, blockWidths[len(blockWidths)-1])

	hidden := n.fc1.forward(pooled, true)
	hidden = n.fc2.forward(hidden, true)
	logits := n.head.forward(hidden, false)
	return softmax2(float64(logits[IndexReal]), float64(logits[IndexAI])), nil
}

func (n *Network) InputSize() int { return n.inputSize }

// Trained is always false: the pure Go network has no weight-loading path.
func (n *Network) Trained() bool { return false }

func (n *Network) Close() error { return nil }
