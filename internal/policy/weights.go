package policy

import "fmt"

// #region tensor

// Tensor is one named parameter matrix in row-major order. Bias vectors use
// Rows=1.
type Tensor struct {
	Rows int
	Cols int
	Data []float32
}

// Clone returns a deep copy of the tensor.
func (t Tensor) Clone() Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return Tensor{Rows: t.Rows, Cols: t.Cols, Data: data}
}

// #endregion tensor

// #region weights

// Weights is an opaque name → tensor mapping of a network's parameter set.
// It is always propagated by value (deep-copied), never shared by reference,
// so no holder can observe a partially-updated set.
type Weights map[string]Tensor

// Clone returns a deep copy of the weight set.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for name, t := range w {
		out[name] = t.Clone()
	}
	return out
}

// Blend returns alpha*local + (1-alpha)*global elementwise, a convex blend
// rather than a hard overwrite. alpha=1 keeps local unchanged, alpha=0
// adopts global.
func Blend(local, global Weights, alpha float32) (Weights, error) {
	out := make(Weights, len(local))
	for name, lt := range local {
		gt, ok := global[name]
		if !ok {
			return nil, fmt.Errorf("blend: tensor %q missing from global set", name)
		}
		if len(gt.Data) != len(lt.Data) {
			return nil, fmt.Errorf("blend: tensor %q shape mismatch: %d vs %d elements",
				name, len(lt.Data), len(gt.Data))
		}
		merged := lt.Clone()
		for i := range merged.Data {
			merged.Data[i] = alpha*lt.Data[i] + (1-alpha)*gt.Data[i]
		}
		out[name] = merged
	}
	return out, nil
}

// #endregion weights
