package kernels

import "fmt"

// Scale wraps a kernel with a squared amplitude: a^2 * k(x1, x2).
// The amplitude is stored unsquared so it can share the positive-parameter
// treatment of every other kernel parameter.
type Scale struct {
	amplitude float64
	inner     Kernel
}

// NewScale creates an amplitude-scaled kernel.
func NewScale(amplitude float64, inner Kernel) *Scale {
	if amplitude <= 0 {
		panic(fmt.Sprintf("amplitude must be positive, got %v", amplitude))
	}
	return &Scale{amplitude: amplitude, inner: inner}
}

// Eval computes a^2 * inner(x1, x2).
func (k *Scale) Eval(x1, x2 float64) float64 {
	return k.amplitude * k.amplitude * k.inner.Eval(x1, x2)
}

// NumParams returns the number of tunable parameters.
func (k *Scale) NumParams() int { return 1 + k.inner.NumParams() }

// Params appends [amplitude, inner params...] to dst.
func (k *Scale) Params(dst []float64) []float64 {
	dst = append(dst, k.amplitude)
	return k.inner.Params(dst)
}

// SetParams sets the amplitude and the inner kernel's parameters.
func (k *Scale) SetParams(params []float64) error {
	if len(params) != k.NumParams() {
		return fmt.Errorf("expected %d parameters, got %d", k.NumParams(), len(params))
	}
	if params[0] <= 0 {
		return fmt.Errorf("parameters must be positive, got %v", params)
	}
	if err := k.inner.SetParams(params[1:]); err != nil {
		return err
	}
	k.amplitude = params[0]
	return nil
}

// EvalGrad computes the value and the partials: the amplitude partial
// 2*a*inner followed by the inner partials scaled by a^2.
func (k *Scale) EvalGrad(x1, x2 float64, grad []float64) float64 {
	a2 := k.amplitude * k.amplitude
	inner := k.inner.EvalGrad(x1, x2, grad[1:])
	grad[0] = 2.0 * k.amplitude * inner
	for i := 1; i < len(grad); i++ {
		grad[i] *= a2
	}
	return a2 * inner
}

// Sum is the additive composition of kernels. A sum of PSD kernels is PSD,
// so each term models an independent structural component.
type Sum struct {
	terms []Kernel
}

// NewSum creates an additive composite kernel.
func NewSum(terms ...Kernel) *Sum {
	if len(terms) == 0 {
		panic("sum kernel requires at least one term")
	}
	return &Sum{terms: terms}
}

// Eval computes the sum of the term values.
func (k *Sum) Eval(x1, x2 float64) float64 {
	total := 0.0
	for _, t := range k.terms {
		total += t.Eval(x1, x2)
	}
	return total
}

// NumParams returns the number of tunable parameters.
func (k *Sum) NumParams() int {
	n := 0
	for _, t := range k.terms {
		n += t.NumParams()
	}
	return n
}

// Params appends each term's parameters to dst in term order.
func (k *Sum) Params(dst []float64) []float64 {
	for _, t := range k.terms {
		dst = t.Params(dst)
	}
	return dst
}

// SetParams distributes the flat parameter slice across the terms.
func (k *Sum) SetParams(params []float64) error {
	if len(params) != k.NumParams() {
		return fmt.Errorf("expected %d parameters, got %d", k.NumParams(), len(params))
	}
	off := 0
	for _, t := range k.terms {
		n := t.NumParams()
		if err := t.SetParams(params[off : off+n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// EvalGrad computes the value and concatenated term partials.
func (k *Sum) EvalGrad(x1, x2 float64, grad []float64) float64 {
	total := 0.0
	off := 0
	for _, t := range k.terms {
		n := t.NumParams()
		total += t.EvalGrad(x1, x2, grad[off:off+n])
		off += n
	}
	return total
}

// Product is the multiplicative composition of kernels. A product of PSD
// kernels is PSD (Schur product theorem); a smooth envelope times a
// periodic kernel yields quasi-periodic decay.
type Product struct {
	factors []Kernel
}

// NewProduct creates a multiplicative composite kernel.
func NewProduct(factors ...Kernel) *Product {
	if len(factors) < 2 {
		panic("product kernel requires at least two factors")
	}
	return &Product{factors: factors}
}

// Eval computes the product of the factor values.
func (k *Product) Eval(x1, x2 float64) float64 {
	total := 1.0
	for _, f := range k.factors {
		total *= f.Eval(x1, x2)
	}
	return total
}

// NumParams returns the number of tunable parameters.
func (k *Product) NumParams() int {
	n := 0
	for _, f := range k.factors {
		n += f.NumParams()
	}
	return n
}

// Params appends each factor's parameters to dst in factor order.
func (k *Product) Params(dst []float64) []float64 {
	for _, f := range k.factors {
		dst = f.Params(dst)
	}
	return dst
}

// SetParams distributes the flat parameter slice across the factors.
func (k *Product) SetParams(params []float64) error {
	if len(params) != k.NumParams() {
		return fmt.Errorf("expected %d parameters, got %d", k.NumParams(), len(params))
	}
	off := 0
	for _, f := range k.factors {
		n := f.NumParams()
		if err := f.SetParams(params[off : off+n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// EvalGrad computes the value and the product-rule partials: the partial for
// a parameter of factor i is its own partial times the values of every other
// factor.
func (k *Product) EvalGrad(x1, x2 float64, grad []float64) float64 {
	values := make([]float64, len(k.factors))
	total := 1.0
	off := 0
	for i, f := range k.factors {
		n := f.NumParams()
		values[i] = f.EvalGrad(x1, x2, grad[off:off+n])
		total *= values[i]
		off += n
	}

	// Products of the other factors, via prefix/suffix accumulation so a
	// zero factor value does not require division.
	prefix := 1.0
	off = 0
	suffixes := make([]float64, len(k.factors))
	s := 1.0
	for i := len(k.factors) - 1; i >= 0; i-- {
		suffixes[i] = s
		s *= values[i]
	}
	for i, f := range k.factors {
		n := f.NumParams()
		others := prefix * suffixes[i]
		for j := off; j < off+n; j++ {
			grad[j] *= others
		}
		prefix *= values[i]
		off += n
	}
	return total
}
