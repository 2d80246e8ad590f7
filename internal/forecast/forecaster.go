// Package forecast orchestrates the CO2 regression fit: it prepares the
// training window, optimizes the kernel hyperparameters from the published
// reference values, and conditions the fitted model on a prediction grid.
package forecast

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/MAUNA/internal/dataset"
	"github.com/copyleftdev/MAUNA/internal/regression"
	"github.com/copyleftdev/MAUNA/internal/regression/gp"
	"github.com/copyleftdev/MAUNA/internal/regression/kernels"
)

// minTrainingPoints is the smallest window the fit will accept; below this
// the 13-parameter kernel is hopelessly underdetermined.
const minTrainingPoints = 16

// Config controls the training window and the fit.
type Config struct {
	// CutoffYear drops observations at or after this fractional year before
	// fitting. Zero disables the cutoff.
	CutoffYear float64

	// Stride keeps every n-th observation of the training window.
	Stride int

	// MaxIterations caps optimizer iterations.
	MaxIterations int

	// GradientTolerance is the optimizer's gradient convergence threshold.
	GradientTolerance float64

	// Confidence is the two-sided coverage of the uncertainty band,
	// e.g. 0.95.
	Confidence float64
}

// DefaultConfig returns the reference configuration: the historical
// 1996 cutoff and stride-4 subsampling of the published fit.
func DefaultConfig() Config {
	return Config{
		CutoffYear:        1996,
		Stride:            4,
		MaxIterations:     200,
		GradientTolerance: 1e-5,
		Confidence:        0.95,
	}
}

// Forecaster fits GP models to CO2 series.
type Forecaster struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Forecaster.
func New(cfg Config, logger *zap.Logger) *Forecaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stride < 1 {
		cfg.Stride = 1
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		cfg.Confidence = 0.95
	}
	return &Forecaster{cfg: cfg, logger: logger}
}

// Fit holds a fitted model together with the data it was conditioned on.
type Fit struct {
	// Params are the optimized hyperparameters.
	Params kernels.CO2Params

	// Result is the optimizer outcome, including convergence status.
	Result *regression.FitResult

	cfg    Config
	train  *dataset.Series
	model  *gp.Model
	logger *zap.Logger
}

// Training returns the subsampled series the model was fitted to.
func (f *Fit) Training() *dataset.Series { return f.train }

// Fit prepares the training window, runs the hyperparameter optimization
// from the reference starting values, and returns the fitted model. The fit
// finds a local optimum and is sensitive to the starting values.
func (f *Forecaster) Fit(ctx context.Context, s *dataset.Series) (*Fit, error) {
	const op = "forecast.Fit"

	train := s
	if f.cfg.CutoffYear > 0 {
		train = train.Before(f.cfg.CutoffYear)
	}
	train = train.Stride(f.cfg.Stride)
	if train.Len() < minTrainingPoints {
		return nil, regression.NewErrorf("training window has %d points, need at least %d",
			train.Len(), minTrainingPoints).WithOperation(op)
	}

	f.logger.Info("fitting CO2 model",
		zap.Int("observations", s.Len()),
		zap.Int("training_points", train.Len()),
		zap.Float64("cutoff_year", f.cfg.CutoffYear),
		zap.Int("stride", f.cfg.Stride),
	)

	init := kernels.ReferenceParams(train.Mean())
	obj, err := gp.NewCO2Objective(train.T, train.Y, f.logger)
	if err != nil {
		return nil, regression.WrapError(err, "failed to build objective").WithOperation(op)
	}

	result, err := gp.FitHyperparameters(ctx, obj, gp.FitConfig{
		InitialTheta:      init.Vector(),
		MaxIterations:     f.cfg.MaxIterations,
		GradientTolerance: f.cfg.GradientTolerance,
	}, f.logger)
	if err != nil {
		return nil, regression.WrapError(err, "hyperparameter fit failed").WithOperation(op)
	}

	params, err := kernels.CO2ParamsFromVector(result.Theta)
	if err != nil {
		return nil, regression.WrapError(err, "optimizer returned an invalid vector").WithOperation(op)
	}

	model, err := gp.New(params.Kernel(), train.T, params.NoiseStd*params.NoiseStd,
		gp.WithMean(gp.ConstMean(params.MeanOffset)),
		gp.WithLogger(f.logger),
	)
	if err != nil {
		return nil, regression.WrapError(err, "failed to build fitted model").WithOperation(op)
	}
	// Warm the factorization so every Forecast call reuses it.
	if _, err := model.LogProbability(train.Y); err != nil {
		return nil, regression.WrapError(err, "fitted model rejected the training data").WithOperation(op)
	}

	return &Fit{
		Params: params,
		Result: result,
		cfg:    f.cfg,
		train:  train,
		model:  model,
		logger: f.logger,
	}, nil
}

// Results are the sequences a rendering collaborator consumes: the query
// grid with posterior mean, standard deviation and confidence band, plus
// the training points the model was conditioned on. All grid-indexed slices
// have the same length.
type Results struct {
	T     []float64 `json:"time"`
	Mean  []float64 `json:"mean"`
	Std   []float64 `json:"std"`
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`

	TrainT []float64 `json:"train_time"`
	TrainY []float64 `json:"train_values"`
}

// Forecast conditions the fitted model on the grid and returns the
// posterior mean with a central confidence band.
func (f *Fit) Forecast(grid []float64) (*Results, error) {
	const op = "forecast.Forecast"

	pred, err := f.model.Condition(f.train.Y, grid)
	if err != nil {
		return nil, regression.WrapError(err, "conditioning failed").WithOperation(op)
	}

	z := distuv.UnitNormal.Quantile(0.5 + f.cfg.Confidence/2)
	res := &Results{
		T:      pred.X,
		Mean:   pred.Mean,
		Std:    make([]float64, len(grid)),
		Lower:  make([]float64, len(grid)),
		Upper:  make([]float64, len(grid)),
		TrainT: f.train.T,
		TrainY: f.train.Y,
	}
	for i := range grid {
		res.Std[i] = math.Sqrt(pred.Variance[i])
		res.Lower[i] = pred.Mean[i] - z*res.Std[i]
		res.Upper[i] = pred.Mean[i] + z*res.Std[i]
	}
	return res, nil
}

// Grid returns n evenly spaced query locations spanning [from, to].
func Grid(from, to float64, n int) []float64 {
	if n <= 1 {
		return []float64{from}
	}
	grid := make([]float64, n)
	step := (to - from) / float64(n-1)
	for i := range grid {
		grid[i] = from + float64(i)*step
	}
	return grid
}
