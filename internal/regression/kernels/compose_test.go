package kernels

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestScale(t *testing.T) {
	se := NewSquaredExp(1.5)
	scaled := NewScale(3.0, NewSquaredExp(1.5))

	for _, r := range []float64{0.0, 0.5, 2.0} {
		expected := 9.0 * se.Eval(0, r)
		got := scaled.Eval(0, r)
		if math.Abs(got-expected) > 1e-12 {
			t.Errorf("at r=%v: expected %v, got %v", r, expected, got)
		}
	}

	if scaled.NumParams() != 2 {
		t.Errorf("expected 2 parameters, got %d", scaled.NumParams())
	}
	params := scaled.Params(nil)
	if params[0] != 3.0 || params[1] != 1.5 {
		t.Errorf("unexpected parameters: %v", params)
	}
}

func TestSum(t *testing.T) {
	sum := NewSum(NewSquaredExp(1.0), NewRationalQuadratic(1.0, 2.0))

	se := NewSquaredExp(1.0)
	rq := NewRationalQuadratic(1.0, 2.0)
	for _, r := range []float64{0.0, 1.0, 3.0} {
		expected := se.Eval(0, r) + rq.Eval(0, r)
		got := sum.Eval(0, r)
		if math.Abs(got-expected) > 1e-12 {
			t.Errorf("at r=%v: expected %v, got %v", r, expected, got)
		}
	}

	if sum.NumParams() != 3 {
		t.Errorf("expected 3 parameters, got %d", sum.NumParams())
	}
}

func TestProduct(t *testing.T) {
	prod := NewProduct(NewSquaredExp(2.0), NewExpSineSquared(1.0, 1.5))

	se := NewSquaredExp(2.0)
	per := NewExpSineSquared(1.0, 1.5)
	for _, r := range []float64{0.0, 0.3, 1.7} {
		expected := se.Eval(0, r) * per.Eval(0, r)
		got := prod.Eval(0, r)
		if math.Abs(got-expected) > 1e-12 {
			t.Errorf("at r=%v: expected %v, got %v", r, expected, got)
		}
	}
}

func TestCompositeParamRoundTrip(t *testing.T) {
	k := ReferenceParams(340.0).Kernel()

	params := k.Params(nil)
	if len(params) != 11 {
		t.Fatalf("expected 11 parameters, got %d", len(params))
	}

	// Perturb, set, read back.
	perturbed := make([]float64, len(params))
	for i, p := range params {
		perturbed[i] = p * 1.1
	}
	if err := k.SetParams(perturbed); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	got := k.Params(nil)
	for i := range got {
		if math.Abs(got[i]-perturbed[i]) > 1e-12 {
			t.Errorf("parameter %d: expected %v, got %v", i, perturbed[i], got[i])
		}
	}

	// A wrong-length slice must not partially apply.
	if err := k.SetParams(perturbed[:5]); err == nil {
		t.Error("expected error for wrong parameter count")
	}
}

func TestCompositeGradients(t *testing.T) {
	// Modest amplitudes keep the finite differences well conditioned.
	p := CO2Params{
		TrendAmp:      2.0,
		TrendScale:    10.0,
		SeasonalAmp:   1.5,
		SeasonalScale: 20.0,
		Period:        1.0,
		Sharpness:     1.2,
		MediumAmp:     0.7,
		Mixture:       0.8,
		MediumScale:   1.2,
		ShortAmp:      0.2,
		ShortScale:    1.6,
		NoiseStd:      0.2,
		MeanOffset:    0.0,
	}
	k := p.Kernel()

	points := [][2]float64{{0.0, 0.0}, {1958.0, 1958.3}, {1960.0, 1967.5}, {1975.25, 1975.25}}
	for _, pt := range points {
		checkGrad(t, k, pt[0], pt[1])
	}
}

func TestCompositeGramMatrixIsPSD(t *testing.T) {
	k := ReferenceParams(340.0).Kernel()

	// Fractional-year grid resembling monthly observations.
	n := 24
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = 1958.0 + float64(i)/12.0
	}

	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			gram.SetSym(i, j, k.Eval(xs[i], xs[j]))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(gram, false) {
		t.Fatal("eigendecomposition failed")
	}
	values := eig.Values(nil)
	// Allow for floating-point noise relative to the kernel's scale.
	tol := -1e-8 * gram.At(0, 0)
	for i, v := range values {
		if v < tol {
			t.Errorf("eigenvalue %d is negative: %v", i, v)
		}
	}
}
