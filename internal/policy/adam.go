package policy

import "math"

// #region adam

// Adam holds first and second moment estimates per parameter tensor.
type Adam struct {
	lr    float32
	beta1 float32
	beta2 float32
	eps   float32
	t     int
	m     map[string][]float32
	v     map[string][]float32
}

// NewAdam creates an optimizer with the usual beta/epsilon defaults.
func NewAdam(lr float32) *Adam {
	return &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make(map[string][]float32),
		v:     make(map[string][]float32),
	}
}

// step applies one bias-corrected Adam update to the network parameters.
func (o *Adam) step(n *Network, g gradients) {
	o.t++
	c1 := 1 - float32(math.Pow(float64(o.beta1), float64(o.t)))
	c2 := 1 - float32(math.Pow(float64(o.beta2), float64(o.t)))

	for name, grad := range g {
		p := n.params[name]
		m, ok := o.m[name]
		if !ok {
			m = make([]float32, len(grad))
			o.m[name] = m
		}
		v, ok := o.v[name]
		if !ok {
			v = make([]float32, len(grad))
			o.v[name] = v
		}
		for i, gi := range grad {
			m[i] = o.beta1*m[i] + (1-o.beta1)*gi
			v[i] = o.beta2*v[i] + (1-o.beta2)*gi*gi
			mHat := m[i] / c1
			vHat := v[i] / c2
			p.Data[i] -= o.lr * mHat / (float32(math.Sqrt(float64(vHat))) + o.eps)
		}
	}
}

// #endregion adam
