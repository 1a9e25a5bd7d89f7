// Package policy implements the scoring network: a small feed-forward
// function mapping one candidate-edge feature vector plus the junction's
// global context vector to a scalar desirability score. One parameter set
// scores any edge, so the network is independent of junction arity.
package policy

import (
	"fmt"
	"math"
	"math/rand"
)

// DefaultHidden is the width of both hidden layers.
const DefaultHidden = 64

// Canonical tensor names, in parameter order.
var tensorNames = []string{
	"fc1.weight", "fc1.bias",
	"fc2.weight", "fc2.bias",
	"fc3.weight", "fc3.bias",
}

// TensorNames returns the canonical tensor names in parameter order.
func TensorNames() []string {
	return append([]string(nil), tensorNames...)
}

// #region network

// Network is a 2-hidden-layer ReLU scorer with a single unbounded output.
// It has no mutable state beyond its weights.
type Network struct {
	inputDim int
	hidden   int
	params   map[string]Tensor
}

// NewNetwork builds a network with He-initialized weights and zero biases.
func NewNetwork(inputDim, hidden int, rng *rand.Rand) *Network {
	n := &Network{
		inputDim: inputDim,
		hidden:   hidden,
		params:   make(map[string]Tensor, len(tensorNames)),
	}
	n.params["fc1.weight"] = heInit(hidden, inputDim, rng)
	n.params["fc1.bias"] = zeros(1, hidden)
	n.params["fc2.weight"] = heInit(hidden, hidden, rng)
	n.params["fc2.bias"] = zeros(1, hidden)
	n.params["fc3.weight"] = heInit(1, hidden, rng)
	n.params["fc3.bias"] = zeros(1, 1)
	return n
}

// InputDim returns the network's input width.
func (n *Network) InputDim() int { return n.inputDim }

func heInit(rows, cols int, rng *rand.Rand) Tensor {
	t := Tensor{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
	scale := float32(math.Sqrt(2.0 / float64(cols)))
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64()) * scale
	}
	return t
}

func zeros(rows, cols int) Tensor {
	return Tensor{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// #endregion network

// #region forward

// activations caches the intermediate layer outputs of one forward pass for
// use by the backward pass.
type activations struct {
	input []float32
	z1    []float32 // pre-activation of hidden 1
	a1    []float32 // ReLU(z1)
	z2    []float32
	a2    []float32
	out   float32
}

// Score runs a forward pass and returns the scalar score.
func (n *Network) Score(input []float32) float32 {
	return n.forward(input).out
}

func (n *Network) forward(input []float32) *activations {
	act := &activations{input: input}
	act.z1 = affine(n.params["fc1.weight"], n.params["fc1.bias"], input)
	act.a1 = relu(act.z1)
	act.z2 = affine(n.params["fc2.weight"], n.params["fc2.bias"], act.a1)
	act.a2 = relu(act.z2)
	out := affine(n.params["fc3.weight"], n.params["fc3.bias"], act.a2)
	act.out = out[0]
	return act
}

// affine computes w*x + b for a row-major weight matrix.
func affine(w, b Tensor, x []float32) []float32 {
	out := make([]float32, w.Rows)
	for r := 0; r < w.Rows; r++ {
		sum := b.Data[r]
		row := w.Data[r*w.Cols : (r+1)*w.Cols]
		for c, v := range x {
			sum += row[c] * v
		}
		out[r] = sum
	}
	return out
}

func relu(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

// #endregion forward

// #region backward

// gradients accumulates per-tensor gradient buffers, parallel to params.
type gradients map[string][]float32

func (n *Network) newGradients() gradients {
	g := make(gradients, len(tensorNames))
	for _, name := range tensorNames {
		g[name] = make([]float32, len(n.params[name].Data))
	}
	return g
}

// backward accumulates gradients for one sample given dLoss/dOut.
func (n *Network) backward(act *activations, dOut float32, g gradients) {
	w3 := n.params["fc3.weight"]
	w2 := n.params["fc2.weight"]

	// output layer
	g3w := g["fc3.weight"]
	for c, v := range act.a2 {
		g3w[c] += dOut * v
	}
	g["fc3.bias"][0] += dOut

	// hidden 2
	d2 := make([]float32, n.hidden)
	for c := range d2 {
		if act.z2[c] > 0 {
			d2[c] = dOut * w3.Data[c]
		}
	}
	g2w := g["fc2.weight"]
	g2b := g["fc2.bias"]
	for r, dr := range d2 {
		if dr == 0 {
			continue
		}
		row := g2w[r*n.hidden : (r+1)*n.hidden]
		for c, v := range act.a1 {
			row[c] += dr * v
		}
		g2b[r] += dr
	}

	// hidden 1
	d1 := make([]float32, n.hidden)
	for c := range d1 {
		if act.z1[c] <= 0 {
			continue
		}
		var sum float32
		for r, dr := range d2 {
			sum += dr * w2.Data[r*n.hidden+c]
		}
		d1[c] = sum
	}
	g1w := g["fc1.weight"]
	g1b := g["fc1.bias"]
	for r, dr := range d1 {
		if dr == 0 {
			continue
		}
		row := g1w[r*n.inputDim : (r+1)*n.inputDim]
		for c, v := range act.input {
			row[c] += dr * v
		}
		g1b[r] += dr
	}
}

// clipByGlobalNorm rescales all gradients so their combined L2 norm does not
// exceed maxNorm.
func clipByGlobalNorm(g gradients, maxNorm float32) {
	var sumSq float64
	for _, buf := range g {
		for _, v := range buf {
			sumSq += float64(v) * float64(v)
		}
	}
	norm := float32(math.Sqrt(sumSq))
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for _, buf := range g {
		for i := range buf {
			buf[i] *= scale
		}
	}
}

// #endregion backward

// #region train

// TrainBatch performs one gradient step: mean squared error of the scalar
// outputs against targets, gradient-norm clipping, then an Adam update.
// Returns the batch loss.
func (n *Network) TrainBatch(inputs [][]float32, targets []float32, opt *Adam, clipNorm float32) float32 {
	if len(inputs) == 0 || len(inputs) != len(targets) {
		return 0
	}
	g := n.newGradients()
	var loss float32
	batch := float32(len(inputs))

	for i, input := range inputs {
		act := n.forward(input)
		diff := act.out - targets[i]
		loss += diff * diff / batch
		// d(mean (out-target)^2)/d out
		n.backward(act, 2*diff/batch, g)
	}

	if clipNorm > 0 {
		clipByGlobalNorm(g, clipNorm)
	}
	opt.step(n, g)
	return loss
}

// #endregion train

// #region weights-io

// Weights returns a deep copy of the parameter set.
func (n *Network) Weights() Weights {
	out := make(Weights, len(n.params))
	for name, t := range n.params {
		out[name] = t.Clone()
	}
	return out
}

// SetWeights replaces the parameter set with a deep copy of w. Shapes must
// match the network's own.
func (n *Network) SetWeights(w Weights) error {
	for _, name := range tensorNames {
		t, ok := w[name]
		if !ok {
			return fmt.Errorf("set weights: missing tensor %q", name)
		}
		own := n.params[name]
		if t.Rows != own.Rows || t.Cols != own.Cols {
			return fmt.Errorf("set weights: tensor %q shape %dx%d, want %dx%d",
				name, t.Rows, t.Cols, own.Rows, own.Cols)
		}
	}
	for _, name := range tensorNames {
		n.params[name] = w[name].Clone()
	}
	return nil
}

// Clone returns an independent copy of the network, used for the target
// network.
func (n *Network) Clone() *Network {
	c := &Network{
		inputDim: n.inputDim,
		hidden:   n.hidden,
		params:   make(map[string]Tensor, len(n.params)),
	}
	for name, t := range n.params {
		c.params[name] = t.Clone()
	}
	return c
}

// #endregion weights-io
