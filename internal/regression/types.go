package regression

import "gonum.org/v1/gonum/optimize"

// Objective is a value-and-gradient objective over an unconstrained
// hyperparameter vector. Grad writes the gradient at theta into grad, which
// has the same length as theta.
type Objective interface {
	Func(theta []float64) float64
	Grad(grad, theta []float64)
	Dim() int
}

// FitResult contains the outcome of a hyperparameter optimization run.
type FitResult struct {
	// Theta is the best unconstrained hyperparameter vector found.
	Theta []float64

	// NegLogLik is the negative marginal log-likelihood at Theta.
	NegLogLik float64

	// InitialNegLogLik is the objective value at the starting vector,
	// kept for inspecting how much the fit improved.
	InitialNegLogLik float64

	// Status is the optimizer's termination status.
	Status optimize.Status

	// Converged reports whether the run met a convergence criterion rather
	// than hitting the iteration cap or failing. Non-convergence is not
	// fatal: Theta is still the best point seen.
	Converged bool

	// FuncEvaluations counts objective evaluations.
	FuncEvaluations int

	// GradEvaluations counts gradient evaluations.
	GradEvaluations int
}

// Prediction is the posterior predictive distribution at a set of query
// locations, paired by index.
type Prediction struct {
	// X holds the query locations.
	X []float64

	// Mean is the posterior mean at each location.
	Mean []float64

	// Variance is the posterior variance at each location, clamped to be
	// non-negative.
	Variance []float64
}
