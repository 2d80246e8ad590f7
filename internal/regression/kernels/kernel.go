package kernels

import (
	"fmt"
	"math"
)

// Kernel represents a stationary covariance function over 1-D inputs.
// Implementations must be positive semi-definite over any finite point set;
// composing them with Sum, Product and Scale preserves that property.
type Kernel interface {
	// Eval computes the kernel value between two input locations.
	Eval(x1, x2 float64) float64

	// NumParams returns the number of tunable parameters.
	NumParams() int

	// Params appends the current parameters (natural space) to dst.
	Params(dst []float64) []float64

	// SetParams sets the kernel's parameters from a natural-space slice of
	// length NumParams.
	SetParams(params []float64) error

	// EvalGrad computes the kernel value and writes the partial derivative
	// of the value with respect to each parameter (natural space) into
	// grad, which must have length NumParams.
	EvalGrad(x1, x2 float64, grad []float64) float64
}

// SquaredExp implements the squared-exponential (RBF) kernel
// k(r) = exp(-r^2 / (2*l^2)).
type SquaredExp struct {
	// Length scale parameter (larger = smoother function)
	lengthScale float64
}

// NewSquaredExp creates a new squared-exponential kernel.
func NewSquaredExp(lengthScale float64) *SquaredExp {
	if lengthScale <= 0 {
		panic(fmt.Sprintf("lengthScale must be positive, got %v", lengthScale))
	}
	return &SquaredExp{lengthScale: lengthScale}
}

// Eval computes the squared-exponential kernel value between x1 and x2.
func (k *SquaredExp) Eval(x1, x2 float64) float64 {
	r := x1 - x2
	return math.Exp(-r * r / (2.0 * k.lengthScale * k.lengthScale))
}

// NumParams returns the number of tunable parameters.
func (k *SquaredExp) NumParams() int { return 1 }

// Params appends [lengthScale] to dst.
func (k *SquaredExp) Params(dst []float64) []float64 {
	return append(dst, k.lengthScale)
}

// SetParams sets the kernel's parameters.
func (k *SquaredExp) SetParams(params []float64) error {
	if len(params) != 1 {
		return fmt.Errorf("expected 1 parameter, got %d", len(params))
	}
	if params[0] <= 0 {
		return fmt.Errorf("parameters must be positive, got %v", params)
	}
	k.lengthScale = params[0]
	return nil
}

// EvalGrad computes the value and d k / d lengthScale.
func (k *SquaredExp) EvalGrad(x1, x2 float64, grad []float64) float64 {
	r := x1 - x2
	l := k.lengthScale
	v := math.Exp(-r * r / (2.0 * l * l))
	grad[0] = v * r * r / (l * l * l)
	return v
}

// ExpSineSquared implements the periodic kernel
// k(r) = exp(-gamma * sin^2(pi*r / period)), strictly periodic in r with
// the given period; gamma controls the sharpness of the correlation.
type ExpSineSquared struct {
	period float64
	gamma  float64
}

// NewExpSineSquared creates a new periodic kernel.
func NewExpSineSquared(period, gamma float64) *ExpSineSquared {
	if period <= 0 {
		panic(fmt.Sprintf("period must be positive, got %v", period))
	}
	if gamma <= 0 {
		panic(fmt.Sprintf("gamma must be positive, got %v", gamma))
	}
	return &ExpSineSquared{period: period, gamma: gamma}
}

// Eval computes the periodic kernel value between x1 and x2.
func (k *ExpSineSquared) Eval(x1, x2 float64) float64 {
	s := math.Sin(math.Pi * (x1 - x2) / k.period)
	return math.Exp(-k.gamma * s * s)
}

// NumParams returns the number of tunable parameters.
func (k *ExpSineSquared) NumParams() int { return 2 }

// Params appends [period, gamma] to dst.
func (k *ExpSineSquared) Params(dst []float64) []float64 {
	return append(dst, k.period, k.gamma)
}

// SetParams sets the kernel's parameters.
func (k *ExpSineSquared) SetParams(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 parameters, got %d", len(params))
	}
	if params[0] <= 0 || params[1] <= 0 {
		return fmt.Errorf("parameters must be positive, got %v", params)
	}
	k.period = params[0]
	k.gamma = params[1]
	return nil
}

// EvalGrad computes the value and the partials with respect to
// [period, gamma].
func (k *ExpSineSquared) EvalGrad(x1, x2 float64, grad []float64) float64 {
	r := x1 - x2
	u := math.Pi * r / k.period
	s := math.Sin(u)
	v := math.Exp(-k.gamma * s * s)

	// d/dp [-gamma*sin^2(pi*r/p)] = gamma*sin(2u)*pi*r/p^2
	grad[0] = v * k.gamma * math.Sin(2*u) * math.Pi * r / (k.period * k.period)
	grad[1] = -v * s * s
	return v
}

// RationalQuadratic implements the rational-quadratic kernel
// k(r) = (1 + r^2 / (2*alpha*l^2))^(-alpha), an infinite scale mixture of
// squared-exponential kernels with heavier tails.
type RationalQuadratic struct {
	mixture     float64 // alpha
	lengthScale float64
}

// NewRationalQuadratic creates a new rational-quadratic kernel.
func NewRationalQuadratic(mixture, lengthScale float64) *RationalQuadratic {
	if mixture <= 0 {
		panic(fmt.Sprintf("mixture must be positive, got %v", mixture))
	}
	if lengthScale <= 0 {
		panic(fmt.Sprintf("lengthScale must be positive, got %v", lengthScale))
	}
	return &RationalQuadratic{mixture: mixture, lengthScale: lengthScale}
}

// Eval computes the rational-quadratic kernel value between x1 and x2.
func (k *RationalQuadratic) Eval(x1, x2 float64) float64 {
	r := x1 - x2
	u := r * r / (2.0 * k.mixture * k.lengthScale * k.lengthScale)
	return math.Pow(1.0+u, -k.mixture)
}

// NumParams returns the number of tunable parameters.
func (k *RationalQuadratic) NumParams() int { return 2 }

// Params appends [mixture, lengthScale] to dst.
func (k *RationalQuadratic) Params(dst []float64) []float64 {
	return append(dst, k.mixture, k.lengthScale)
}

// SetParams sets the kernel's parameters.
func (k *RationalQuadratic) SetParams(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 parameters, got %d", len(params))
	}
	if params[0] <= 0 || params[1] <= 0 {
		return fmt.Errorf("parameters must be positive, got %v", params)
	}
	k.mixture = params[0]
	k.lengthScale = params[1]
	return nil
}

// EvalGrad computes the value and the partials with respect to
// [mixture, lengthScale].
func (k *RationalQuadratic) EvalGrad(x1, x2 float64, grad []float64) float64 {
	r := x1 - x2
	a := k.mixture
	l := k.lengthScale
	u := r * r / (2.0 * a * l * l)
	b := 1.0 + u
	v := math.Pow(b, -a)

	// d log k / d alpha = u/b - log(b)
	grad[0] = v * (u/b - math.Log(b))
	grad[1] = v * r * r / (l * l * l * b)
	return v
}
