package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

const (
	// penaltyWeight is the starting weight of the quadratic penalties that
	// stand in for the equality and sector constraints.
	penaltyWeight = 1000.0

	// penaltyGrowth multiplies the penalty weight between continuation
	// rounds. A binding constraint leaves a residual violation proportional
	// to 1/weight, so each round shrinks it by this factor.
	penaltyGrowth = 100.0

	// maxPenaltyRounds bounds the continuation.
	maxPenaltyRounds = 5

	// varianceEpsilon marks the numerically-degenerate volatility region.
	varianceEpsilon = 1e-10

	// degeneratePenalty is the large finite objective returned inside the
	// degenerate region, pushing the solver away instead of crashing it.
	degeneratePenalty = 1e6

	// feasibilityTolerance bounds acceptable constraint violation of any
	// returned weight vector, converged or not.
	feasibilityTolerance = 1e-6
)

// SharpeOptimizer maximizes the Sharpe ratio over the constrained weight
// simplex by minimizing its negative with quadratic constraint penalties.
type SharpeOptimizer struct {
	solver         Solver
	periodsPerYear float64
	log            zerolog.Logger
}

// NewSharpeOptimizer creates a new Sharpe-ratio optimizer.
func NewSharpeOptimizer(solver Solver, periodsPerYear int, log zerolog.Logger) *SharpeOptimizer {
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}
	return &SharpeOptimizer{
		solver:         solver,
		periodsPerYear: float64(periodsPerYear),
		log:            log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize finds the weight vector maximizing (μ'w − r_f) / sqrt(w'Σw)
// subject to the constraint set. mu is annualized, cov periodic. The start
// point is equal weights 1/m. When a constraint binds against the objective
// the penalty weight is escalated until the finalized iterate is feasible
// within feasibilityTolerance; no result, converged or not, is returned with
// a larger violation. A non-convergent but feasible iterate is returned with
// converged=false; an infeasible outcome is ErrNonConvergent.
func (o *SharpeOptimizer) Optimize(
	mu []float64,
	cov [][]float64,
	constraints Constraints,
	riskFreeRate float64,
	settings SolverSettings,
) (map[string]float64, bool, error) {
	n := len(constraints.Symbols)
	if n == 0 {
		return nil, false, fmt.Errorf("no symbols in constraint set")
	}
	if len(mu) != n || len(cov) != n {
		return nil, false, fmt.Errorf("dimension mismatch: %d symbols, %d returns, %d covariance rows", n, len(mu), len(cov))
	}

	// Annualize the covariance once, up front.
	aCov := make([][]float64, n)
	for i := range cov {
		aCov[i] = make([]float64, n)
		for j := range cov[i] {
			aCov[i][j] = cov[i][j] * o.periodsPerYear
		}
	}

	lower := make([]float64, n)
	upper := make([]float64, n)
	for i, symbol := range constraints.Symbols {
		lower[i] = constraints.MinWeights[symbol]
		upper[i] = constraints.MaxWeights[symbol]
	}

	start := make([]float64, n)
	for i := range start {
		start[i] = 1.0 / float64(n)
	}

	var (
		result  SolverResult
		weights map[string]float64
		xFinal  []float64
	)

	pw := penaltyWeight
	for round := 0; round < maxPenaltyRounds; round++ {
		problem := o.penalizedProblem(mu, aCov, constraints, lower, upper, riskFreeRate, pw)

		var err error
		result, err = o.solver.Minimize(problem, start, settings)
		if err != nil {
			return nil, false, fmt.Errorf("optimization failed: %w", err)
		}

		weights, xFinal = o.finalizeWeights(result.X, constraints, lower, upper)
		if MaxViolation(constraints, xFinal) <= feasibilityTolerance {
			break
		}

		// Warm-start the next round from the current iterate.
		start = projectToBounds(result.X, lower, upper)
		pw *= penaltyGrowth
	}

	violation := MaxViolation(constraints, xFinal)
	if violation > feasibilityTolerance {
		o.log.Warn().
			Str("status", result.Status).
			Bool("solver_converged", result.Converged).
			Float64("violation", violation).
			Msg("Final iterate is infeasible after penalty escalation")
		return nil, false, fmt.Errorf("%w: status=%s, constraint violation %g",
			ErrNonConvergent, result.Status, violation)
	}

	if !result.Converged {
		o.log.Warn().
			Str("status", result.Status).
			Msg("Solver did not converge; returning last feasible iterate")
		return weights, false, nil
	}

	return weights, true, nil
}

// penalizedProblem builds the penalty-method objective and gradient for one
// continuation round.
func (o *SharpeOptimizer) penalizedProblem(
	mu []float64,
	aCov [][]float64,
	constraints Constraints,
	lower, upper []float64,
	riskFreeRate, pw float64,
) SolverProblem {
	n := len(mu)
	return SolverProblem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, lower, upper)

			var returnVal, variance float64
			for i := 0; i < n; i++ {
				returnVal += mu[i] * xProj[i]
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * aCov[i][j]
				}
			}

			var obj float64
			if variance < varianceEpsilon {
				// Degenerate region: large finite penalty, never an error.
				sumAbs := 0.0
				for i := 0; i < n; i++ {
					sumAbs += math.Abs(xProj[i])
				}
				obj = degeneratePenalty * (1 + sumAbs)
			} else {
				obj = -(returnVal - riskFreeRate) / math.Sqrt(variance)
			}

			for _, lc := range constraints.Linear {
				v := lc.Violation(xProj)
				obj += pw * v * v
			}

			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, lower, upper)

			var returnVal, variance float64
			for i := 0; i < n; i++ {
				returnVal += mu[i] * xProj[i]
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * aCov[i][j]
				}
			}

			if variance < varianceEpsilon {
				for i := 0; i < n; i++ {
					grad[i] = degeneratePenalty * sign(xProj[i])
				}
			} else {
				stdDev := math.Sqrt(variance)
				excess := returnVal - riskFreeRate
				for i := 0; i < n; i++ {
					var dVariance float64
					for j := 0; j < n; j++ {
						dVariance += 2 * aCov[i][j] * xProj[j]
					}
					grad[i] = -mu[i]/stdDev + excess*dVariance/(2*stdDev*stdDev*stdDev)
				}
			}

			addConstraintPenaltyGradient(grad, xProj, constraints.Linear, pw)
		},
	}
}

// finalizeWeights projects the raw iterate to bounds, clips negatives,
// renormalizes to sum 1, and moves any excess the renormalization pushed past
// a box maximum back to assets with headroom.
func (o *SharpeOptimizer) finalizeWeights(
	x []float64,
	constraints Constraints,
	lower, upper []float64,
) (map[string]float64, []float64) {
	n := len(constraints.Symbols)
	xProj := projectToBounds(x, lower, upper)

	sum := 0.0
	for i := range xProj {
		sum += xProj[i]
	}

	scaled := make([]float64, n)
	for i := range xProj {
		scaled[i] = math.Max(0.0, xProj[i]/math.Max(sum, 1e-10))
	}

	// Normalize again after clipping.
	sum = 0.0
	for i := range scaled {
		sum += scaled[i]
	}
	if sum > 0 {
		for i := range scaled {
			scaled[i] /= sum
		}
	}

	// Renormalizing can push a weight past its box maximum when the
	// projected sum was below 1. Clamp and hand the excess to assets with
	// headroom, proportionally; Σupper >= 1 is validated by the builder so
	// the headroom always absorbs it.
	for iter := 0; iter < n; iter++ {
		excess, headroom := 0.0, 0.0
		for i := range scaled {
			if scaled[i] > upper[i] {
				excess += scaled[i] - upper[i]
				scaled[i] = upper[i]
			} else {
				headroom += upper[i] - scaled[i]
			}
		}
		if excess <= 0 || headroom <= 0 {
			break
		}
		for i := range scaled {
			if scaled[i] < upper[i] {
				scaled[i] += excess * (upper[i] - scaled[i]) / headroom
			}
		}
	}

	weights := make(map[string]float64, n)
	for i, symbol := range constraints.Symbols {
		weights[symbol] = scaled[i]
	}
	return weights, scaled
}

// projectToBounds projects weights into their box bounds.
func projectToBounds(x, lower, upper []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
	return proj
}

// addConstraintPenaltyGradient adds the gradient of the quadratic penalty of
// each violated linear descriptor.
func addConstraintPenaltyGradient(grad, x []float64, linear []LinearConstraint, pw float64) {
	for _, lc := range linear {
		sum := 0.0
		if lc.Indices == nil {
			for _, v := range x {
				sum += v
			}
		} else {
			for _, i := range lc.Indices {
				sum += x[i]
			}
		}

		switch lc.Kind {
		case ConstraintSumToOne:
			g := 2 * pw * (sum - lc.Bound)
			for i := range grad {
				grad[i] += g
			}
		case ConstraintSectorMin:
			if sum < lc.Bound {
				g := 2 * pw * (lc.Bound - sum)
				for _, i := range lc.Indices {
					grad[i] -= g
				}
			}
		case ConstraintSectorMax:
			if sum > lc.Bound {
				g := 2 * pw * (sum - lc.Bound)
				for _, i := range lc.Indices {
					grad[i] += g
				}
			}
		}
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
