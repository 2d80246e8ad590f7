package kernels

import (
	"math"
	"testing"
)

func TestCO2ParamsVectorRoundTrip(t *testing.T) {
	p := ReferenceParams(338.5)

	theta := p.Vector()
	if len(theta) != NumCO2Params {
		t.Fatalf("expected vector of length %d, got %d", NumCO2Params, len(theta))
	}

	back, err := CO2ParamsFromVector(theta)
	if err != nil {
		t.Fatalf("CO2ParamsFromVector: %v", err)
	}

	pairs := [][2]float64{
		{p.TrendAmp, back.TrendAmp},
		{p.TrendScale, back.TrendScale},
		{p.SeasonalAmp, back.SeasonalAmp},
		{p.SeasonalScale, back.SeasonalScale},
		{p.Period, back.Period},
		{p.Sharpness, back.Sharpness},
		{p.MediumAmp, back.MediumAmp},
		{p.Mixture, back.Mixture},
		{p.MediumScale, back.MediumScale},
		{p.ShortAmp, back.ShortAmp},
		{p.ShortScale, back.ShortScale},
		{p.NoiseStd, back.NoiseStd},
		{p.MeanOffset, back.MeanOffset},
	}
	for i, pair := range pairs {
		if math.Abs(pair[0]-pair[1]) > 1e-12*math.Max(1, math.Abs(pair[0])) {
			t.Errorf("field %d: expected %v, got %v", i, pair[0], pair[1])
		}
	}
}

func TestCO2ParamsFromVectorErrors(t *testing.T) {
	tests := []struct {
		name  string
		theta []float64
	}{
		{"too short", make([]float64, NumCO2Params-1)},
		{"too long", make([]float64, NumCO2Params+1)},
		{
			"NaN entry",
			func() []float64 {
				v := make([]float64, NumCO2Params)
				v[4] = math.NaN()
				return v
			}(),
		},
		{
			"infinite entry",
			func() []float64 {
				v := make([]float64, NumCO2Params)
				v[0] = math.Inf(1)
				return v
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CO2ParamsFromVector(tt.theta); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestCO2ParamsAnyFiniteVectorIsValid(t *testing.T) {
	// Exponentiation of the positive block means even wildly negative raw
	// values map to valid (tiny but positive) hyperparameters.
	theta := make([]float64, NumCO2Params)
	for i := range theta {
		theta[i] = -30.0 + 5.0*float64(i)
	}
	p, err := CO2ParamsFromVector(theta)
	if err != nil {
		t.Fatalf("CO2ParamsFromVector: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestCO2ParamsValidate(t *testing.T) {
	p := ReferenceParams(340.0)
	if err := p.Validate(); err != nil {
		t.Fatalf("reference parameters should validate: %v", err)
	}

	bad := p
	bad.Period = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero period")
	}

	bad = p
	bad.NoiseStd = -0.1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative noise")
	}

	// The mean offset is unconstrained.
	neg := p
	neg.MeanOffset = -500.0
	if err := neg.Validate(); err != nil {
		t.Errorf("negative mean offset should validate: %v", err)
	}
}

func TestCO2KernelParamOrderMatchesVector(t *testing.T) {
	p := ReferenceParams(340.0)
	kernelParams := p.Kernel().Params(nil)
	positives := p.positives()

	if len(kernelParams) != len(positives)-1 {
		t.Fatalf("expected %d kernel parameters, got %d", len(positives)-1, len(kernelParams))
	}
	for i, v := range kernelParams {
		if math.Abs(v-positives[i]) > 1e-12 {
			t.Errorf("parameter %d: kernel has %v, vector order has %v", i, v, positives[i])
		}
	}
}

func TestCO2PriorVariance(t *testing.T) {
	p := ReferenceParams(340.0)
	k := p.Kernel()

	// At zero separation every stationary component evaluates to its squared
	// amplitude.
	if math.Abs(k.Eval(5.0, 5.0)-p.PriorVariance()) > 1e-9 {
		t.Errorf("k(x,x)=%v, prior variance=%v", k.Eval(5.0, 5.0), p.PriorVariance())
	}
}

func TestParameterization(t *testing.T) {
	param := NewParameterization(4)

	if param.Size() != 4 {
		t.Errorf("expected size 4, got %d", param.Size())
	}
	if param.NumPositive() != 3 {
		t.Errorf("expected 3 positive entries, got %d", param.NumPositive())
	}

	natural := []float64{2.0, 0.5, 10.0}
	theta := param.Raw(natural, -1.5)
	back, mean, err := param.Natural(theta)
	if err != nil {
		t.Fatalf("Natural: %v", err)
	}
	if mean != -1.5 {
		t.Errorf("expected mean -1.5, got %v", mean)
	}
	for i := range natural {
		if math.Abs(back[i]-natural[i]) > 1e-12 {
			t.Errorf("entry %d: expected %v, got %v", i, natural[i], back[i])
		}
	}

	if _, _, err := param.Natural([]float64{1, 2}); err == nil {
		t.Error("expected error for wrong vector length")
	}

	// Chain rule: d/d(log v) = v * d/dv.
	grad := []float64{1.0, 2.0, 3.0}
	param.ChainGrad(natural, grad)
	expected := []float64{2.0, 1.0, 30.0}
	for i := range grad {
		if math.Abs(grad[i]-expected[i]) > 1e-12 {
			t.Errorf("gradient entry %d: expected %v, got %v", i, expected[i], grad[i])
		}
	}
}
