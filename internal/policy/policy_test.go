package policy

import (
	"math"
	"math/rand"
	"testing"
)

func testNetwork(t *testing.T, seed int64) *Network {
	t.Helper()
	return NewNetwork(20, 16, rand.New(rand.NewSource(seed)))
}

func testInput(dim int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	in := make([]float32, dim)
	for i := range in {
		in[i] = rng.Float32()
	}
	return in
}

func TestScoreDeterministic(t *testing.T) {
	n := testNetwork(t, 1)
	in := testInput(20, 7)

	a := n.Score(in)
	b := n.Score(in)
	if a != b {
		t.Fatalf("same input scored differently: %f vs %f", a, b)
	}
}

func TestSameSeedSameNetwork(t *testing.T) {
	a := testNetwork(t, 42)
	b := testNetwork(t, 42)
	in := testInput(20, 3)
	if a.Score(in) != b.Score(in) {
		t.Fatal("identically seeded networks disagree")
	}
}

func TestTrainBatchReducesLoss(t *testing.T) {
	n := testNetwork(t, 1)
	opt := NewAdam(0.01)

	inputs := make([][]float32, 8)
	targets := make([]float32, 8)
	for i := range inputs {
		inputs[i] = testInput(20, int64(i))
		targets[i] = float32(i%2)*2 - 1
	}

	first := n.TrainBatch(inputs, targets, opt, 0)
	var last float32
	for i := 0; i < 200; i++ {
		last = n.TrainBatch(inputs, targets, opt, 0)
	}
	if last >= first {
		t.Fatalf("loss did not decrease: first=%f last=%f", first, last)
	}
}

func TestTrainBatchWithClipping(t *testing.T) {
	n := testNetwork(t, 1)
	opt := NewAdam(0.001)

	inputs := [][]float32{testInput(20, 1), testInput(20, 2)}
	targets := []float32{100, -100} // large targets force large gradients

	loss := n.TrainBatch(inputs, targets, opt, 1.0)
	if loss <= 0 {
		t.Fatalf("expected positive loss, got %f", loss)
	}
	for name, tensor := range n.Weights() {
		for i, v := range tensor.Data {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("tensor %s[%d] not finite after clipped step: %f", name, i, v)
			}
		}
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	a := testNetwork(t, 1)
	b := testNetwork(t, 2)
	in := testInput(20, 5)

	if a.Score(in) == b.Score(in) {
		t.Fatal("differently seeded networks should disagree")
	}
	if err := b.SetWeights(a.Weights()); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	if a.Score(in) != b.Score(in) {
		t.Fatal("networks disagree after weight copy")
	}
}

func TestWeightsAreDeepCopies(t *testing.T) {
	n := testNetwork(t, 1)
	in := testInput(20, 5)
	before := n.Score(in)

	w := n.Weights()
	for _, tensor := range w {
		for i := range tensor.Data {
			tensor.Data[i] = 0
		}
	}
	if n.Score(in) != before {
		t.Fatal("mutating exported weights changed the network")
	}
}

func TestSetWeightsShapeMismatch(t *testing.T) {
	n := testNetwork(t, 1)
	w := n.Weights()
	w["fc1.weight"] = Tensor{Rows: 1, Cols: 1, Data: []float32{1}}
	if err := n.SetWeights(w); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestSetWeightsMissingTensor(t *testing.T) {
	n := testNetwork(t, 1)
	w := n.Weights()
	delete(w, "fc3.bias")
	if err := n.SetWeights(w); err == nil {
		t.Fatal("expected missing tensor error")
	}
}

func TestBlendBoundaries(t *testing.T) {
	local := testNetwork(t, 1).Weights()
	global := testNetwork(t, 2).Weights()

	allLocal, err := Blend(local, global, 1)
	if err != nil {
		t.Fatalf("Blend: %v", err)
	}
	allGlobal, err := Blend(local, global, 0)
	if err != nil {
		t.Fatalf("Blend: %v", err)
	}

	for name := range local {
		for i := range local[name].Data {
			if allLocal[name].Data[i] != local[name].Data[i] {
				t.Fatalf("alpha=1 changed %s[%d]", name, i)
			}
			if allGlobal[name].Data[i] != global[name].Data[i] {
				t.Fatalf("alpha=0 kept local %s[%d]", name, i)
			}
		}
	}
}

func TestBlendMidpoint(t *testing.T) {
	local := Weights{"w": {Rows: 1, Cols: 2, Data: []float32{0, 2}}}
	global := Weights{"w": {Rows: 1, Cols: 2, Data: []float32{2, 0}}}

	half, err := Blend(local, global, 0.5)
	if err != nil {
		t.Fatalf("Blend: %v", err)
	}
	if half["w"].Data[0] != 1 || half["w"].Data[1] != 1 {
		t.Fatalf("expected [1 1], got %v", half["w"].Data)
	}
}

func TestBlendShapeMismatch(t *testing.T) {
	local := Weights{"w": {Rows: 1, Cols: 2, Data: []float32{0, 2}}}
	global := Weights{"w": {Rows: 1, Cols: 1, Data: []float32{2}}}
	if _, err := Blend(local, global, 0.5); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestCloneIndependence(t *testing.T) {
	n := testNetwork(t, 1)
	in := testInput(20, 5)
	clone := n.Clone()
	before := clone.Score(in)

	opt := NewAdam(0.1)
	for i := 0; i < 10; i++ {
		n.TrainBatch([][]float32{in}, []float32{5}, opt, 0)
	}
	if clone.Score(in) != before {
		t.Fatal("training the original changed the clone")
	}
}
