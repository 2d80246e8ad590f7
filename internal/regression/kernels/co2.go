package kernels

import (
	"fmt"
	"math"
)

// NumCO2Params is the length of the flat hyperparameter vector: 11 kernel
// parameters, the observation-noise standard deviation, and the mean offset.
const NumCO2Params = 13

// CO2Params holds the natural-space hyperparameters of the composite
// atmospheric-CO2 kernel
//
//	k = a0^2*SE(l0) + a1^2*SE(l1)*Per(p,gamma) + a2^2*RQ(alpha,l2) + a3^2*SE(l3)
//
// plus an independent noise term on the training diagonal and a constant
// mean offset. All fields except MeanOffset must be positive.
type CO2Params struct {
	// Long-term rising trend: a0^2 * SE(l0)
	TrendAmp   float64
	TrendScale float64

	// Quasi-periodic seasonal component: a1^2 * SE(l1) * Per(p, gamma).
	// The smooth envelope lets the seasonal shape drift over decades.
	SeasonalAmp   float64
	SeasonalScale float64
	Period        float64
	Sharpness     float64

	// Medium-term irregularities: a2^2 * RQ(alpha, l2)
	MediumAmp   float64
	Mixture     float64
	MediumScale float64

	// Short-term noise correlations: a3^2 * SE(l3)
	ShortAmp   float64
	ShortScale float64

	// Independent per-observation noise standard deviation.
	NoiseStd float64

	// Constant mean offset in ppm; unconstrained.
	MeanOffset float64
}

// ReferenceParams returns the published Mauna Loa starting hyperparameters
// (times in fractional years, concentrations in ppm). The sharpness value is
// the 2/1.3^2 of the reference fit expressed in the
// exp(-gamma*sin^2(pi*r/p)) convention. The mean offset is data dependent
// and is usually initialized to the empirical mean of the observations.
func ReferenceParams(meanOffset float64) CO2Params {
	return CO2Params{
		TrendAmp:      66.0,
		TrendScale:    67.0,
		SeasonalAmp:   2.4,
		SeasonalScale: 90.0,
		Period:        1.0,
		Sharpness:     2.0 / (1.3 * 1.3),
		MediumAmp:     0.66,
		Mixture:       0.78,
		MediumScale:   1.2,
		ShortAmp:      0.18,
		ShortScale:    1.6,
		NoiseStd:      0.19,
		MeanOffset:    meanOffset,
	}
}

// Validate checks that every constrained field is strictly positive.
func (p CO2Params) Validate() error {
	positives := p.positives()
	names := positiveNames()
	for i, v := range positives {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("hyperparameter %s must be positive and finite, got %v", names[i], v)
		}
	}
	return nil
}

// Kernel builds the composite covariance function. The flat parameter
// ordering of the returned kernel matches the first 11 entries of Vector.
func (p CO2Params) Kernel() Kernel {
	return NewSum(
		NewScale(p.TrendAmp, NewSquaredExp(p.TrendScale)),
		NewProduct(
			NewScale(p.SeasonalAmp, NewSquaredExp(p.SeasonalScale)),
			NewExpSineSquared(p.Period, p.Sharpness),
		),
		NewScale(p.MediumAmp, NewRationalQuadratic(p.Mixture, p.MediumScale)),
		NewScale(p.ShortAmp, NewSquaredExp(p.ShortScale)),
	)
}

// PriorVariance is the prior marginal variance of the composite kernel at a
// single point, the sum of the squared component amplitudes. The posterior
// variance far from all training data approaches this value.
func (p CO2Params) PriorVariance() float64 {
	return p.TrendAmp*p.TrendAmp +
		p.SeasonalAmp*p.SeasonalAmp +
		p.MediumAmp*p.MediumAmp +
		p.ShortAmp*p.ShortAmp
}

// positives returns the 12 positive-constrained fields in vector order.
func (p CO2Params) positives() []float64 {
	return []float64{
		p.TrendAmp, p.TrendScale,
		p.SeasonalAmp, p.SeasonalScale, p.Period, p.Sharpness,
		p.MediumAmp, p.Mixture, p.MediumScale,
		p.ShortAmp, p.ShortScale,
		p.NoiseStd,
	}
}

func positiveNames() []string {
	return []string{
		"trend_amp", "trend_scale",
		"seasonal_amp", "seasonal_scale", "period", "sharpness",
		"medium_amp", "mixture", "medium_scale",
		"short_amp", "short_scale",
		"noise_std",
	}
}

// Vector flattens the hyperparameters into the unconstrained optimization
// vector: log of the 12 positive parameters followed by the raw mean offset.
func (p CO2Params) Vector() []float64 {
	theta := make([]float64, 0, NumCO2Params)
	for _, v := range p.positives() {
		theta = append(theta, math.Log(v))
	}
	return append(theta, p.MeanOffset)
}

// CO2ParamsFromVector is the inverse of Vector. Exponentiating the positive
// block guarantees positivity regardless of the raw values, so any finite
// theta maps to valid hyperparameters.
func CO2ParamsFromVector(theta []float64) (CO2Params, error) {
	if len(theta) != NumCO2Params {
		return CO2Params{}, fmt.Errorf("expected %d hyperparameters, got %d", NumCO2Params, len(theta))
	}
	for i, v := range theta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return CO2Params{}, fmt.Errorf("hyperparameter %d is not finite: %v", i, v)
		}
	}
	e := func(i int) float64 { return math.Exp(theta[i]) }
	return CO2Params{
		TrendAmp:      e(0),
		TrendScale:    e(1),
		SeasonalAmp:   e(2),
		SeasonalScale: e(3),
		Period:        e(4),
		Sharpness:     e(5),
		MediumAmp:     e(6),
		Mixture:       e(7),
		MediumScale:   e(8),
		ShortAmp:      e(9),
		ShortScale:    e(10),
		NoiseStd:      e(11),
		MeanOffset:    theta[12],
	}, nil
}

// Parameterization maps an unconstrained optimization vector to structured
// parameters: entries 0..Size-2 are log-values of positive parameters and
// the last entry is a raw (unconstrained) mean offset. It is immutable and
// centralizes the positivity constraint.
type Parameterization struct {
	size int
}

// NewParameterization creates a parameterization of the given vector length.
func NewParameterization(size int) Parameterization {
	if size < 2 {
		panic(fmt.Sprintf("parameterization needs at least 2 entries, got %d", size))
	}
	return Parameterization{size: size}
}

// Size returns the raw vector length.
func (p Parameterization) Size() int { return p.size }

// NumPositive returns the number of log-transformed entries.
func (p Parameterization) NumPositive() int { return p.size - 1 }

// Natural maps the raw vector to (positive natural parameters, mean offset).
func (p Parameterization) Natural(theta []float64) ([]float64, float64, error) {
	if len(theta) != p.size {
		return nil, 0, fmt.Errorf("expected vector of length %d, got %d", p.size, len(theta))
	}
	natural := make([]float64, p.size-1)
	for i := range natural {
		natural[i] = math.Exp(theta[i])
	}
	return natural, theta[p.size-1], nil
}

// Raw maps natural positive parameters and a mean offset back to the
// unconstrained vector. Panics on non-positive inputs; the caller contract
// is that natural parameters come from a validated source.
func (p Parameterization) Raw(natural []float64, mean float64) []float64 {
	if len(natural) != p.size-1 {
		panic(fmt.Sprintf("expected %d natural parameters, got %d", p.size-1, len(natural)))
	}
	theta := make([]float64, p.size)
	for i, v := range natural {
		if v <= 0 {
			panic(fmt.Sprintf("natural parameter %d must be positive, got %v", i, v))
		}
		theta[i] = math.Log(v)
	}
	theta[p.size-1] = mean
	return theta
}

// ChainGrad converts the natural-space gradient over the positive block into
// the log-space gradient in place: d/d(log v) = v * d/dv.
func (p Parameterization) ChainGrad(natural, grad []float64) {
	for i := range natural {
		grad[i] *= natural[i]
	}
}
