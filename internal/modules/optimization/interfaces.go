package optimization

import (
	"fmt"

	"gonum.org/v1/gonum/optimize"
)

// SolverProblem is a smooth scalar minimization problem.
type SolverProblem struct {
	Func func(x []float64) float64
	Grad func(grad, x []float64)
}

// SolverResult is the outcome of one minimization.
type SolverResult struct {
	X         []float64
	F         float64
	Converged bool
	Status    string
}

// Solver minimizes a scalar objective from a start point. Treating the
// numerical library as a pluggable capability keeps the objective,
// constraints and shrinkage testable without it.
type Solver interface {
	Minimize(problem SolverProblem, initial []float64, settings SolverSettings) (SolverResult, error)
}

// GonumSolver solves with gonum/optimize: BFGS first, Nelder-Mead as a
// derivative-free fallback when BFGS fails to converge.
type GonumSolver struct{}

// NewGonumSolver creates the default solver.
func NewGonumSolver() *GonumSolver {
	return &GonumSolver{}
}

// acceptedStatuses are the gonum termination statuses treated as convergence.
var acceptedStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
}

// Minimize implements Solver.
func (s *GonumSolver) Minimize(problem SolverProblem, initial []float64, settings SolverSettings) (SolverResult, error) {
	settings = settings.withDefaults()

	p := optimize.Problem{
		Func: problem.Func,
		Grad: problem.Grad,
	}
	gonumSettings := &optimize.Settings{
		MajorIterations:   settings.MaxIterations,
		GradientThreshold: settings.Tolerance,
	}

	result, err := optimize.Minimize(p, initial, gonumSettings, &optimize.BFGS{})
	if err == nil && acceptedStatuses[result.Status] {
		return SolverResult{
			X:         result.X,
			F:         result.F,
			Converged: true,
			Status:    result.Status.String(),
		}, nil
	}

	// Retry with a derivative-free method; penalty objectives occasionally
	// defeat the line search.
	result, err = optimize.Minimize(p, initial, gonumSettings, &optimize.NelderMead{})
	if err != nil {
		if result == nil {
			return SolverResult{}, fmt.Errorf("solver failed: %w", err)
		}
		return SolverResult{
			X:      result.X,
			F:      result.F,
			Status: result.Status.String(),
		}, nil
	}

	return SolverResult{
		X:         result.X,
		F:         result.F,
		Converged: acceptedStatuses[result.Status],
		Status:    result.Status.String(),
	}, nil
}
