package optimization

import "time"

// Input types

// Asset is one member of the optimization universe. Each asset belongs to
// exactly one sector.
type Asset struct {
	Symbol string `json:"symbol"`
	Sector string `json:"sector"`
}

// SectorBounds limits the aggregate weight of one sector's assets.
type SectorBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// WeightBounds is a per-asset box bound.
type WeightBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TimeSeriesData holds an aligned price (or return) series per symbol.
type TimeSeriesData struct {
	Dates []string             `json:"dates"`
	Data  map[string][]float64 `json:"data"`
}

// SolverSettings bound the solver's work per run.
type SolverSettings struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
}

// DefaultSolverSettings are used when a request leaves settings zero-valued.
func DefaultSolverSettings() SolverSettings {
	return SolverSettings{
		MaxIterations: 1000,
		Tolerance:     1e-9,
	}
}

// withDefaults fills only the unset fields, keeping whatever the caller did
// set.
func (s SolverSettings) withDefaults() SolverSettings {
	defaults := DefaultSolverSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = defaults.MaxIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = defaults.Tolerance
	}
	return s
}

// Request describes one optimization run. A run is a pure function of this
// struct: identical requests yield identical weights.
type Request struct {
	Assets       []Asset                 `json:"assets"`
	Returns      map[string][]float64    `json:"returns"` // periodic returns per symbol, aligned
	SectorBounds map[string]SectorBounds `json:"sector_bounds,omitempty"`
	AssetBounds  map[string]WeightBounds `json:"asset_bounds,omitempty"` // default [0,1] long-only
	RiskFreeRate float64                 `json:"risk_free_rate"`         // annualized
	Solver       SolverSettings          `json:"solver,omitempty"`
}

// Symbols returns the ordered symbol index used by every downstream structure.
func (r Request) Symbols() []string {
	symbols := make([]string, len(r.Assets))
	for i, a := range r.Assets {
		symbols[i] = a.Symbol
	}
	return symbols
}

// Constraint descriptors

// ConstraintKind tags a linear constraint descriptor.
type ConstraintKind int

const (
	// ConstraintSumToOne is the full-investment equality Σw = 1.
	ConstraintSumToOne ConstraintKind = iota
	// ConstraintSectorMin requires Σ(w over Indices) >= Bound.
	ConstraintSectorMin
	// ConstraintSectorMax requires Σ(w over Indices) <= Bound.
	ConstraintSectorMax
)

// LinearConstraint is a tagged descriptor over weight indices, evaluated by a
// single interpreter routine rather than one closure per sector.
type LinearConstraint struct {
	Kind    ConstraintKind
	Sector  string // empty for the sum-to-one equality
	Indices []int  // indices into the ordered symbol list; nil means all
	Bound   float64
}

// Violation returns how far x is outside the constraint (0 when satisfied).
func (c LinearConstraint) Violation(x []float64) float64 {
	sum := 0.0
	if c.Indices == nil {
		for _, v := range x {
			sum += v
		}
	} else {
		for _, i := range c.Indices {
			sum += x[i]
		}
	}

	switch c.Kind {
	case ConstraintSumToOne:
		diff := sum - c.Bound
		if diff < 0 {
			return -diff
		}
		return diff
	case ConstraintSectorMin:
		if sum < c.Bound {
			return c.Bound - sum
		}
	case ConstraintSectorMax:
		if sum > c.Bound {
			return sum - c.Bound
		}
	}
	return 0
}

// Constraints is the full constraint set consumed by the optimizer: box
// bounds per asset (handled by projection, not as generic constraints) plus
// the linear descriptor list.
type Constraints struct {
	Symbols    []string
	MinWeights map[string]float64
	MaxWeights map[string]float64
	Linear     []LinearConstraint
}

// Result types

// CorrelationPair represents a pair of highly correlated assets.
type CorrelationPair struct {
	Symbol1     string  `json:"symbol1"`
	Symbol2     string  `json:"symbol2"`
	Correlation float64 `json:"correlation"`
}

// Result contains the complete optimization result. Weights are present only
// on success; they are keyed by symbol and aligned with the request's asset
// order via the Symbols index.
type Result struct {
	RunID              string             `json:"run_id"`
	Timestamp          time.Time          `json:"timestamp"`
	Success            bool               `json:"success"`
	Converged          bool               `json:"converged"`
	Weights            map[string]float64 `json:"weights,omitempty"`
	SectorWeights      map[string]float64 `json:"sector_weights,omitempty"`
	ExpectedReturn     float64            `json:"expected_return"`
	Volatility         float64            `json:"volatility"`
	SharpeRatio        float64            `json:"sharpe_ratio"`
	RiskFreeRate       float64            `json:"risk_free_rate"`
	ShrinkageIntensity float64            `json:"shrinkage_intensity"`
	HighCorrelations   []CorrelationPair  `json:"high_correlations,omitempty"`
	Error              *string            `json:"error,omitempty"`
}
