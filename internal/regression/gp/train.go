package gp

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/MAUNA/internal/regression"
	"github.com/copyleftdev/MAUNA/internal/regression/kernels"
)

// CO2Objective is the negative marginal log-likelihood of a fixed dataset
// as a function of the unconstrained hyperparameter vector of the composite
// CO2 kernel. Each evaluation is a pure function of theta: the kernel and
// model are rebuilt from scratch and nothing is cached across evaluations.
type CO2Objective struct {
	x, y   []float64
	param  kernels.Parameterization
	ws     *Workspace
	logger *zap.Logger
}

// NewCO2Objective creates an objective over the given training data.
func NewCO2Objective(x, y []float64, logger *zap.Logger) (*CO2Objective, error) {
	const op = "gp.NewCO2Objective"

	if len(x) == 0 {
		return nil, regression.NewError("training data must not be empty").WithOperation(op)
	}
	if len(x) != len(y) {
		return nil, regression.DimensionError(op, len(x), len(y))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CO2Objective{
		x:      append([]float64(nil), x...),
		y:      append([]float64(nil), y...),
		param:  kernels.NewParameterization(kernels.NumCO2Params),
		ws:     NewWorkspace(),
		logger: logger,
	}, nil
}

// Dim returns the hyperparameter vector length.
func (o *CO2Objective) Dim() int { return o.param.Size() }

// build rebuilds the model at theta. Invalid or degenerate theta is
// reported as an error, never as a silently wrong model.
func (o *CO2Objective) build(theta []float64) (*Model, kernels.CO2Params, error) {
	params, err := kernels.CO2ParamsFromVector(theta)
	if err != nil {
		return nil, params, err
	}
	model, err := New(params.Kernel(), o.x, params.NoiseStd*params.NoiseStd,
		WithMean(ConstMean(params.MeanOffset)),
		WithLogger(o.logger),
	)
	if err != nil {
		return nil, params, err
	}
	return model, params, nil
}

// Func returns the negative log-likelihood at theta. A theta where the
// covariance cannot be factorized returns +Inf so the line search backs off
// instead of crashing the fit.
func (o *CO2Objective) Func(theta []float64) float64 {
	model, _, err := o.build(theta)
	if err != nil {
		return math.Inf(1)
	}
	ll, err := model.LogProbability(o.y)
	if err != nil {
		o.logger.Debug("objective evaluation rejected",
			zap.Error(err),
			zap.Float64s("theta", theta),
		)
		return math.Inf(1)
	}
	return -ll
}

// Grad writes the analytic gradient of the negative log-likelihood with
// respect to theta into grad. For a kernel or noise parameter v,
//
//	dNLL/dv = 1/2 * tr((Sigma^-1 - alpha*alpha') * dSigma/dv)
//
// with the log-space chain rule applied for the positive block; the mean
// offset gradient is -sum(alpha). At a theta where the factorization fails
// the gradient is zeroed; Func already reports +Inf there.
func (o *CO2Objective) Grad(grad, theta []float64) {
	for i := range grad {
		grad[i] = 0
	}

	model, params, err := o.build(theta)
	if err != nil {
		return
	}
	if err := model.factorize(o.y); err != nil {
		return
	}

	n := len(o.x)
	kinv := o.ws.GetSym(n)
	defer o.ws.PutSym(kinv)
	if err := model.precisionMatrixTo(kinv); err != nil {
		return
	}

	kern := model.kernel
	alpha := model.alpha
	nk := kern.NumParams()

	// Natural-space gradient over [kernel params..., noise std].
	nat := make([]float64, nk+1)
	buf := make([]float64, nk)
	for i := 0; i < n; i++ {
		ai := alpha.AtVec(i)
		for j := i; j < n; j++ {
			w := kinv.At(i, j) - ai*alpha.AtVec(j)
			// Off-diagonal entries appear twice in the trace.
			scale := w
			if i != j {
				scale = 2 * w
			}
			kern.EvalGrad(o.x[i], o.x[j], buf)
			for p := 0; p < nk; p++ {
				nat[p] += 0.5 * scale * buf[p]
			}
			if i == j {
				// dSigma_ii/dNoiseStd = 2*sigma
				nat[nk] += 0.5 * w * 2.0 * params.NoiseStd
			}
		}
	}

	natural := kern.Params(make([]float64, 0, nk+1))
	natural = append(natural, params.NoiseStd)
	o.param.ChainGrad(natural, nat)
	copy(grad, nat)

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += alpha.AtVec(i)
	}
	grad[nk+1] = -sum
}

// FitConfig configures the hyperparameter optimization run.
type FitConfig struct {
	// InitialTheta is the unconstrained starting vector. The fit is a local
	// optimization and is sensitive to this choice.
	InitialTheta []float64

	// MaxIterations caps the number of major optimizer iterations.
	MaxIterations int

	// GradientTolerance is the infinity-norm gradient threshold for
	// convergence.
	GradientTolerance float64
}

// FitHyperparameters minimizes the objective with L-BFGS from the given
// starting vector. Non-convergence is not an error: the result carries the
// best theta seen together with the optimizer's termination status.
func FitHyperparameters(ctx context.Context, obj regression.Objective, cfg FitConfig, logger *zap.Logger) (*regression.FitResult, error) {
	const op = "gp.FitHyperparameters"

	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.InitialTheta) != obj.Dim() {
		return nil, regression.DimensionError(op, obj.Dim(), len(cfg.InitialTheta))
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 200
	}
	if cfg.GradientTolerance <= 0 {
		cfg.GradientTolerance = 1e-5
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	initial := obj.Func(cfg.InitialTheta)
	if math.IsInf(initial, 1) || math.IsNaN(initial) {
		return nil, regression.NewErrorf("objective is not finite at the initial hyperparameters: %v",
			cfg.InitialTheta).WithOperation(op)
	}

	logger.Info("starting hyperparameter fit",
		zap.Int("dim", obj.Dim()),
		zap.Int("max_iterations", cfg.MaxIterations),
		zap.Float64("initial_nll", initial),
	)

	problem := optimize.Problem{
		Func: obj.Func,
		Grad: obj.Grad,
	}
	settings := &optimize.Settings{
		MajorIterations:   cfg.MaxIterations,
		GradientThreshold: cfg.GradientTolerance,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Relative:   1e-9,
			Iterations: 20,
		},
	}

	theta0 := append([]float64(nil), cfg.InitialTheta...)
	result, err := optimize.Minimize(problem, theta0, settings, &optimize.LBFGS{})
	if result == nil {
		return nil, regression.WrapError(err, "optimizer failed").WithOperation(op)
	}
	if err != nil {
		// A line-search failure near a flat optimum still leaves a usable
		// best point; surface it with the status instead of aborting.
		logger.Warn("optimizer stopped early",
			zap.Error(err),
			zap.String("status", result.Status.String()),
		)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	converged := result.Status == optimize.GradientThreshold ||
		result.Status == optimize.FunctionConvergence ||
		result.Status == optimize.StepConvergence

	fit := &regression.FitResult{
		Theta:            append([]float64(nil), result.X...),
		NegLogLik:        result.F,
		InitialNegLogLik: initial,
		Status:           result.Status,
		Converged:        converged,
		FuncEvaluations:  result.Stats.FuncEvaluations,
		GradEvaluations:  result.Stats.GradEvaluations,
	}

	// The optimizer must never return something worse than its start.
	if fit.NegLogLik > initial {
		logger.Warn("optimizer ended above the initial objective, keeping the initial vector",
			zap.Float64("final_nll", fit.NegLogLik),
			zap.Float64("initial_nll", initial),
		)
		fit.Theta = append([]float64(nil), cfg.InitialTheta...)
		fit.NegLogLik = initial
		fit.Converged = false
	}

	logger.Info("hyperparameter fit finished",
		zap.Float64("nll", fit.NegLogLik),
		zap.Bool("converged", fit.Converged),
		zap.String("status", fit.Status.String()),
		zap.Int("func_evaluations", fit.FuncEvaluations),
	)
	return fit, nil
}
