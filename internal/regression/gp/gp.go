// Package gp implements Gaussian Process regression over 1-D inputs:
// marginal log-likelihood of observed targets and posterior conditioning at
// new locations. Factorization cost is O(N^3) and conditioning O(N*M), which
// is acceptable for the hundreds of points this service fits after
// subsampling but is a documented limitation for large N.
package gp

import (
	"errors"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/MAUNA/internal/regression"
	"github.com/copyleftdev/MAUNA/internal/regression/kernels"
)

// MeanFunc is a mean function evaluated per input location.
type MeanFunc func(x float64) float64

// ConstMean returns a constant mean function.
func ConstMean(c float64) MeanFunc {
	return func(float64) float64 { return c }
}

// ZeroMean is the default mean function.
func ZeroMean(float64) float64 { return 0.0 }

// Model represents the multivariate-normal belief N(mean, K(X,X) + diag)
// over function values at fixed input locations. It is value-like after
// construction; factorization state is cached per observation vector.
type Model struct {
	kernel   kernels.Kernel
	mean     MeanFunc
	noiseVar []float64 // per-point noise variance, length len(x)
	x        []float64

	logger *zap.Logger

	// Factorization state for the most recent observation vector.
	y      []float64
	resid  *mat.VecDense
	chol   *mat.Cholesky
	alpha  *mat.VecDense
	jitter float64
}

// Option configures a Model.
type Option func(*Model)

// WithMean sets the mean function.
func WithMean(mean MeanFunc) Option {
	return func(m *Model) { m.mean = mean }
}

// WithNoiseVector sets a per-point noise variance vector. Its length must
// match the input locations.
func WithNoiseVector(noiseVar []float64) Option {
	return func(m *Model) { m.noiseVar = noiseVar }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// New creates a Gaussian Process model over the given input locations with a
// scalar observation-noise variance broadcast across the diagonal.
func New(kernel kernels.Kernel, x []float64, noiseVar float64, opts ...Option) (*Model, error) {
	const op = "gp.New"

	if kernel == nil {
		return nil, regression.NewError("kernel must not be nil").WithOperation(op)
	}
	if len(x) == 0 {
		return nil, regression.NewError("input locations must not be empty").WithOperation(op)
	}
	if noiseVar < 0 || math.IsNaN(noiseVar) {
		return nil, regression.NewErrorf("noise variance must be non-negative, got %v", noiseVar).WithOperation(op)
	}

	m := &Model{
		kernel: kernel,
		mean:   ZeroMean,
		x:      append([]float64(nil), x...),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	if m.noiseVar == nil {
		m.noiseVar = make([]float64, len(x))
		for i := range m.noiseVar {
			m.noiseVar[i] = noiseVar
		}
	} else if len(m.noiseVar) != len(x) {
		return nil, regression.DimensionError(op, len(x), len(m.noiseVar))
	}

	return m, nil
}

// Inputs returns the training input locations.
func (m *Model) Inputs() []float64 { return m.x }

// Mean evaluates the mean function at x.
func (m *Model) Mean(x float64) float64 { return m.mean(x) }

// CovarianceMatrix builds the training covariance K(X,X) + diag(noise).
func (m *Model) CovarianceMatrix() *mat.SymDense {
	n := len(m.x)
	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		sigma.SetSym(i, i, m.kernel.Eval(m.x[i], m.x[i])+m.noiseVar[i])
		for j := i + 1; j < n; j++ {
			sigma.SetSym(i, j, m.kernel.Eval(m.x[i], m.x[j]))
		}
	}
	return sigma
}

// factorize builds and Cholesky-factorizes the covariance for the given
// observations, escalating a diagonal jitter when the factorization fails.
// On success the residual, factor and alpha = Sigma^-1 * (y - mean) are
// cached for Condition and gradient computations.
func (m *Model) factorize(y []float64) error {
	const op = "Model.factorize"

	n := len(m.x)
	if len(y) != n {
		return regression.DimensionError(op, n, len(y))
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return regression.NewErrorf("observation %d is not finite: %v", i, v).WithOperation(op)
		}
	}

	resid := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		resid.SetVec(i, y[i]-m.mean(m.x[i]))
	}

	sigma := m.CovarianceMatrix()

	// Try increasing jitter until the factorization succeeds. Degenerate
	// hyperparameters can still defeat this; that surfaces as an error the
	// caller converts to a rejected optimization step.
	const maxAttempts = 6
	jitter := 0.0
	var chol mat.Cholesky
	ok := false
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if jitter > 0 {
			for i := 0; i < n; i++ {
				sigma.SetSym(i, i, sigma.At(i, i)+jitter)
			}
			m.logger.Debug("retrying Cholesky with jitter",
				zap.Int("attempt", attempt),
				zap.Float64("jitter", jitter),
			)
		}
		if chol.Factorize(sigma) {
			ok = true
			break
		}
		if jitter == 0 {
			jitter = 1e-10
		} else {
			jitter *= 100
		}
	}
	if !ok {
		return regression.NotPositiveDefiniteError(op, n)
	}

	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, resid); err != nil {
		return regression.WrapError(err, "failed to solve for alpha").WithOperation(op)
	}

	m.y = append(m.y[:0], y...)
	m.resid = resid
	m.chol = &chol
	m.alpha = alpha
	m.jitter = jitter
	return nil
}

// ensureFactorized reuses the cached factorization when the observation
// vector is unchanged. Caching never crosses hyperparameter changes because
// a Model is bound to one kernel instance.
func (m *Model) ensureFactorized(y []float64) error {
	if m.chol != nil && len(m.y) == len(y) {
		same := true
		for i := range y {
			if y[i] != m.y[i] {
				same = false
				break
			}
		}
		if same {
			return nil
		}
	}
	return m.factorize(y)
}

// LogProbability returns the marginal log-likelihood of the observations
// under N(mean, K(X,X) + diag(noise)):
//
//	-1/2 * r' Sigma^-1 r - 1/2 * log|Sigma| - n/2 * log(2*pi)
//
// computed via the Cholesky factor. A covariance that cannot be factorized
// even with jitter surfaces as an error rather than a silent value.
func (m *Model) LogProbability(y []float64) (float64, error) {
	const op = "Model.LogProbability"

	if err := m.ensureFactorized(y); err != nil {
		return 0, err
	}

	n := float64(len(m.x))
	quad := mat.Dot(m.resid, m.alpha)
	logDet := m.chol.LogDet()
	ll := -0.5*quad - 0.5*logDet - 0.5*n*math.Log(2.0*math.Pi)

	if math.IsNaN(ll) {
		return 0, regression.NewError("log-likelihood is NaN").WithOperation(op)
	}
	return ll, nil
}

// Condition computes the posterior predictive mean and variance at new
// locations, conditioning on the observations:
//
//	mu*  = mean(X*) + K(X*,X) Sigma^-1 (y - mean(X))
//	var* = diag(K(X*,X*) - K(X*,X) Sigma^-1 K(X,X*))
//
// reusing the factorization from LogProbability. Variances are clamped to be
// non-negative.
func (m *Model) Condition(y []float64, xNew []float64) (*regression.Prediction, error) {
	const op = "Model.Condition"

	if len(xNew) == 0 {
		return nil, regression.NewError("query locations must not be empty").WithOperation(op)
	}
	if err := m.ensureFactorized(y); err != nil {
		return nil, err
	}

	n := len(m.x)
	q := len(xNew)

	kstar := mat.NewDense(q, n, nil)
	for i := 0; i < q; i++ {
		for j := 0; j < n; j++ {
			kstar.Set(i, j, m.kernel.Eval(xNew[i], m.x[j]))
		}
	}

	// Posterior mean.
	mu := mat.NewVecDense(q, nil)
	mu.MulVec(kstar, m.alpha)

	// Solve Sigma * V = K(X, X*) for the variance reduction term.
	v := mat.NewDense(n, q, nil)
	if err := m.chol.SolveTo(v, kstar.T()); err != nil {
		return nil, regression.WrapError(err, "failed to solve for posterior covariance").WithOperation(op)
	}

	pred := &regression.Prediction{
		X:        append([]float64(nil), xNew...),
		Mean:     make([]float64, q),
		Variance: make([]float64, q),
	}
	for i := 0; i < q; i++ {
		pred.Mean[i] = m.mean(xNew[i]) + mu.AtVec(i)

		reduction := 0.0
		for j := 0; j < n; j++ {
			reduction += kstar.At(i, j) * v.At(j, i)
		}
		variance := m.kernel.Eval(xNew[i], xNew[i]) - reduction
		if variance < 0 {
			if variance < -1e-6 {
				m.logger.Warn("negative posterior variance, clamping to zero",
					zap.Int("query_point", i),
					zap.Float64("variance", variance),
				)
			}
			variance = 0
		}
		pred.Variance[i] = variance
	}

	return pred, nil
}

// precisionMatrixTo writes Sigma^-1 from the cached factorization into dst.
// Used by the trainer for the likelihood gradient.
func (m *Model) precisionMatrixTo(dst *mat.SymDense) error {
	if m.chol == nil {
		return errors.New("model is not factorized")
	}
	return m.chol.InverseTo(dst)
}
