package kernels

import (
	"math"
	"testing"
)

func TestSquaredExp(t *testing.T) {
	tests := []struct {
		name     string
		x1       float64
		x2       float64
		ls       float64
		expected float64
	}{
		{
			name:     "same point",
			x1:       2.0,
			x2:       2.0,
			ls:       1.0,
			expected: 1.0,
		},
		{
			name:     "unit distance",
			x1:       0.0,
			x2:       1.0,
			ls:       1.0,
			expected: math.Exp(-0.5),
		},
		{
			name:     "distance scales with length scale",
			x1:       0.0,
			x2:       2.0,
			ls:       2.0,
			expected: math.Exp(-0.5), // exp(-2^2 / (2*2^2))
		},
		{
			name:     "decays towards zero",
			x1:       0.0,
			x2:       10.0,
			ls:       1.0,
			expected: math.Exp(-50.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kernel := NewSquaredExp(tt.ls)
			result := kernel.Eval(tt.x1, tt.x2)

			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}

			// Test symmetry
			result2 := kernel.Eval(tt.x2, tt.x1)
			if math.Abs(result-result2) > 1e-12 {
				t.Error("kernel is not symmetric")
			}
		})
	}
}

func TestExpSineSquared(t *testing.T) {
	tests := []struct {
		name     string
		x1, x2   float64
		period   float64
		gamma    float64
		expected float64
	}{
		{
			name:     "same point",
			x1:       1.5,
			x2:       1.5,
			period:   1.0,
			gamma:    2.0,
			expected: 1.0,
		},
		{
			name:     "half period is the trough",
			x1:       0.0,
			x2:       0.5,
			period:   1.0,
			gamma:    2.0,
			expected: math.Exp(-2.0),
		},
		{
			name:     "full period returns to one",
			x1:       0.0,
			x2:       1.0,
			period:   1.0,
			gamma:    2.0,
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kernel := NewExpSineSquared(tt.period, tt.gamma)
			result := kernel.Eval(tt.x1, tt.x2)

			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}

			result2 := kernel.Eval(tt.x2, tt.x1)
			if math.Abs(result-result2) > 1e-12 {
				t.Error("kernel is not symmetric")
			}
		})
	}
}

func TestExpSineSquaredPeriodicity(t *testing.T) {
	kernel := NewExpSineSquared(1.0, 2.0/(1.3*1.3))
	for _, r := range []float64{0.1, 0.37, 0.5, 0.93} {
		v := kernel.Eval(0, r)
		for shift := 1; shift <= 3; shift++ {
			shifted := kernel.Eval(0, r+float64(shift))
			if math.Abs(v-shifted) > 1e-12 {
				t.Errorf("k(0,%v)=%v but k(0,%v)=%v; kernel should be 1-periodic",
					r, v, r+float64(shift), shifted)
			}
		}
	}
}

func TestRationalQuadratic(t *testing.T) {
	tests := []struct {
		name     string
		x1, x2   float64
		mixture  float64
		ls       float64
		expected float64
	}{
		{
			name:     "same point",
			x1:       3.0,
			x2:       3.0,
			mixture:  0.78,
			ls:       1.2,
			expected: 1.0,
		},
		{
			name:     "unit distance",
			x1:       0.0,
			x2:       1.0,
			mixture:  1.0,
			ls:       1.0,
			expected: 1.0 / 1.5, // (1 + 1/2)^-1
		},
		{
			name:     "heavier tail than squared exponential",
			x1:       0.0,
			x2:       4.0,
			mixture:  1.0,
			ls:       1.0,
			expected: 1.0 / 9.0, // (1 + 16/2)^-1
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kernel := NewRationalQuadratic(tt.mixture, tt.ls)
			result := kernel.Eval(tt.x1, tt.x2)

			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}

			result2 := kernel.Eval(tt.x2, tt.x1)
			if math.Abs(result-result2) > 1e-12 {
				t.Error("kernel is not symmetric")
			}
		})
	}

	// The RQ kernel approaches the squared-exponential as mixture grows.
	t.Run("large mixture approaches squared exponential", func(t *testing.T) {
		rq := NewRationalQuadratic(1e7, 1.0)
		se := NewSquaredExp(1.0)
		for _, r := range []float64{0.5, 1.0, 2.0} {
			if math.Abs(rq.Eval(0, r)-se.Eval(0, r)) > 1e-6 {
				t.Errorf("at r=%v: RQ=%v, SE=%v", r, rq.Eval(0, r), se.Eval(0, r))
			}
		}
	})
}

func TestKernelSetParams(t *testing.T) {
	tests := []struct {
		name     string
		kernel   Kernel
		params   []float64
		wantErr  bool
		errorMsg string
	}{
		{
			name:    "squared exp valid",
			kernel:  NewSquaredExp(1.0),
			params:  []float64{2.5},
			wantErr: false,
		},
		{
			name:     "squared exp wrong count",
			kernel:   NewSquaredExp(1.0),
			params:   []float64{1.0, 2.0},
			wantErr:  true,
			errorMsg: "expected 1 parameter, got 2",
		},
		{
			name:     "squared exp non-positive",
			kernel:   NewSquaredExp(1.0),
			params:   []float64{-1.0},
			wantErr:  true,
			errorMsg: "parameters must be positive, got [-1]",
		},
		{
			name:    "periodic valid",
			kernel:  NewExpSineSquared(1.0, 1.0),
			params:  []float64{2.0, 3.0},
			wantErr: false,
		},
		{
			name:     "periodic non-positive",
			kernel:   NewExpSineSquared(1.0, 1.0),
			params:   []float64{1.0, 0.0},
			wantErr:  true,
			errorMsg: "parameters must be positive, got [1 0]",
		},
		{
			name:    "rational quadratic valid",
			kernel:  NewRationalQuadratic(1.0, 1.0),
			params:  []float64{0.5, 2.0},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.kernel.SetParams(tt.params)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("expected error message '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				// Verify parameters were set correctly
				params := tt.kernel.Params(nil)
				if len(params) != len(tt.params) {
					t.Fatalf("expected %d parameters, got %d", len(tt.params), len(params))
				}
				for i, p := range params {
					if p != tt.params[i] {
						t.Errorf("parameter %d: expected %v, got %v", i, tt.params[i], p)
					}
				}
			}
		})
	}
}

// checkGrad compares EvalGrad against central finite differences of Eval.
func checkGrad(t *testing.T, k Kernel, x1, x2 float64) {
	t.Helper()

	n := k.NumParams()
	grad := make([]float64, n)
	v := k.EvalGrad(x1, x2, grad)

	if math.Abs(v-k.Eval(x1, x2)) > 1e-12 {
		t.Fatalf("EvalGrad value %v disagrees with Eval %v", v, k.Eval(x1, x2))
	}

	base := k.Params(nil)
	const h = 1e-6
	for i := 0; i < n; i++ {
		bumped := append([]float64(nil), base...)
		bumped[i] = base[i] + h
		if err := k.SetParams(bumped); err != nil {
			t.Fatalf("SetParams: %v", err)
		}
		plus := k.Eval(x1, x2)

		bumped[i] = base[i] - h
		if err := k.SetParams(bumped); err != nil {
			t.Fatalf("SetParams: %v", err)
		}
		minus := k.Eval(x1, x2)

		if err := k.SetParams(base); err != nil {
			t.Fatalf("SetParams: %v", err)
		}

		fd := (plus - minus) / (2 * h)
		tol := 1e-5 * math.Max(1.0, math.Abs(fd))
		if math.Abs(grad[i]-fd) > tol {
			t.Errorf("parameter %d: analytic gradient %v, finite difference %v", i, grad[i], fd)
		}
	}
}

func TestPrimitiveGradients(t *testing.T) {
	points := [][2]float64{{0.0, 0.0}, {0.0, 0.3}, {1.0, 2.7}, {-1.5, 4.0}}

	kernelsUnderTest := []struct {
		name string
		k    Kernel
	}{
		{"squared_exp", NewSquaredExp(1.3)},
		{"periodic", NewExpSineSquared(1.0, 1.2)},
		{"rational_quadratic", NewRationalQuadratic(0.78, 1.2)},
	}

	for _, tt := range kernelsUnderTest {
		t.Run(tt.name, func(t *testing.T) {
			for _, p := range points {
				checkGrad(t, tt.k, p[0], p[1])
			}
		})
	}
}

func TestConstructorPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"squared exp zero length scale", func() { NewSquaredExp(0) }},
		{"periodic negative period", func() { NewExpSineSquared(-1, 1) }},
		{"periodic zero gamma", func() { NewExpSineSquared(1, 0) }},
		{"rational quadratic zero mixture", func() { NewRationalQuadratic(0, 1) }},
		{"scale zero amplitude", func() { NewScale(0, NewSquaredExp(1)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}
