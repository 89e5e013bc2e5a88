package optimization

import "errors"

// Error kinds surfaced by the engine. Each is raised synchronously at the
// boundary of the component owning the invariant; callers test with errors.Is.
var (
	// ErrInsufficientData - fewer than two return periods supplied.
	ErrInsufficientData = errors.New("insufficient return history")

	// ErrInfeasibleConstraints - the bound algebra is impossible before any
	// solver call (sector minimums sum above 1, maximums sum below 1, or a
	// min above its max).
	ErrInfeasibleConstraints = errors.New("infeasible constraint specification")

	// ErrUnknownSector - a sector bound references a sector no asset maps to.
	ErrUnknownSector = errors.New("unknown sector")

	// ErrNonConvergent - the solver exhausted its iteration budget without
	// meeting tolerance and the final iterate is not feasible.
	ErrNonConvergent = errors.New("optimization did not converge")

	// ErrDegenerateVolatility - a portfolio volatility of numerically zero
	// where a Sharpe ratio was requested.
	ErrDegenerateVolatility = errors.New("degenerate portfolio volatility")
)
