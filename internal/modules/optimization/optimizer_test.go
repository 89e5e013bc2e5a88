package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestOptimizer uses periodsPerYear=1 so the covariance passed in is
// treated as already annualized.
func newTestOptimizer() *SharpeOptimizer {
	return NewSharpeOptimizer(NewGonumSolver(), 1, zerolog.Nop())
}

func buildConstraints(t *testing.T, assets []Asset, sectorBounds map[string]SectorBounds, assetBounds map[string]WeightBounds) Constraints {
	t.Helper()
	cm := NewConstraintsManager(zerolog.Nop())
	c, err := cm.Build(assets, sectorBounds, assetBounds)
	require.NoError(t, err)
	return c
}

func assertFullyInvested(t *testing.T, weights map[string]float64) {
	t.Helper()
	sum := 0.0
	for _, w := range weights {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6, "weights should sum to 1")
}

func TestOptimize_TwoAssetsUnconstrained(t *testing.T) {
	assets := []Asset{
		{Symbol: "A", Sector: "X"},
		{Symbol: "B", Sector: "X"},
	}
	mu := []float64{0.10, 0.05}
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.09},
	}
	c := buildConstraints(t, assets, nil, nil)

	opt := newTestOptimizer()
	weights, _, err := opt.Optimize(mu, cov, c, 0.02, DefaultSolverSettings())
	require.NoError(t, err)
	require.Len(t, weights, 2)

	assertFullyInvested(t, weights)

	// A dominates B: higher return, lower variance.
	assert.Greater(t, weights["A"], weights["B"])
}

func TestOptimize_SectorBoundsRespected(t *testing.T) {
	assets := []Asset{
		{Symbol: "A1", Sector: "A"},
		{Symbol: "A2", Sector: "A"},
		{Symbol: "B1", Sector: "B"},
	}
	mu := []float64{0.10, 0.10, 0.08}
	cov := [][]float64{
		{0.04, 0.012, 0.006},
		{0.012, 0.04, 0.006},
		{0.006, 0.006, 0.05},
	}
	sectorBounds := map[string]SectorBounds{
		"A": {Min: 0.2, Max: 0.8},
		"B": {Min: 0.1, Max: 0.5},
	}
	c := buildConstraints(t, assets, sectorBounds, nil)

	opt := newTestOptimizer()
	weights, _, err := opt.Optimize(mu, cov, c, 0.03, DefaultSolverSettings())
	require.NoError(t, err)

	assertFullyInvested(t, weights)

	sumA := weights["A1"] + weights["A2"]
	sumB := weights["B1"]
	assert.GreaterOrEqual(t, sumA, 0.2-feasibilityTolerance)
	assert.LessOrEqual(t, sumA, 0.8+feasibilityTolerance)
	assert.GreaterOrEqual(t, sumB, 0.1-feasibilityTolerance)
	assert.LessOrEqual(t, sumB, 0.5+feasibilityTolerance)

	// A1 and A2 are statistically identical, so the optimum splits their
	// sector weight evenly.
	assert.InDelta(t, weights["A1"], weights["A2"], 5e-3)
}

func TestOptimize_BoxBoundsRespected(t *testing.T) {
	assets := []Asset{
		{Symbol: "A", Sector: "X"},
		{Symbol: "B", Sector: "X"},
	}
	// Unconstrained, nearly everything would go to A.
	mu := []float64{0.15, 0.04}
	cov := [][]float64{
		{0.03, 0.005},
		{0.005, 0.06},
	}
	assetBounds := map[string]WeightBounds{
		"A": {Min: 0.0, Max: 0.6},
		"B": {Min: 0.0, Max: 1.0},
	}
	c := buildConstraints(t, assets, nil, assetBounds)

	opt := newTestOptimizer()
	weights, _, err := opt.Optimize(mu, cov, c, 0.02, DefaultSolverSettings())
	require.NoError(t, err)

	assertFullyInvested(t, weights)
	assert.LessOrEqual(t, weights["A"], 0.6+feasibilityTolerance)
}

func TestOptimize_BindingSectorMinimumHeldAtTolerance(t *testing.T) {
	// The only asset in the Hedge sector has a sharply negative expected
	// return, so maximizing Sharpe pulls hard against the sector floor. The
	// penalty escalation must still deliver the floor within
	// feasibilityTolerance rather than reporting success just shy of it.
	assets := []Asset{
		{Symbol: "GROW", Sector: "Growth"},
		{Symbol: "HEDGE", Sector: "Hedge"},
	}
	mu := []float64{0.10, -1.5}
	cov := [][]float64{
		{0.04, 0.0},
		{0.0, 0.04},
	}
	sectorBounds := map[string]SectorBounds{
		"Hedge": {Min: 0.5, Max: 1.0},
	}
	c := buildConstraints(t, assets, sectorBounds, nil)

	opt := newTestOptimizer()
	weights, _, err := opt.Optimize(mu, cov, c, 0.02, DefaultSolverSettings())
	require.NoError(t, err)

	assertFullyInvested(t, weights)
	assert.GreaterOrEqual(t, weights["HEDGE"], 0.5-feasibilityTolerance)
}

func TestOptimize_Idempotent(t *testing.T) {
	assets := []Asset{
		{Symbol: "A", Sector: "X"},
		{Symbol: "B", Sector: "Y"},
		{Symbol: "C", Sector: "Y"},
	}
	mu := []float64{0.12, 0.09, 0.07}
	cov := [][]float64{
		{0.05, 0.01, 0.008},
		{0.01, 0.04, 0.012},
		{0.008, 0.012, 0.03},
	}
	c := buildConstraints(t, assets, nil, nil)

	opt := newTestOptimizer()
	first, firstConverged, err := opt.Optimize(mu, cov, c, 0.02, DefaultSolverSettings())
	require.NoError(t, err)
	second, secondConverged, err := opt.Optimize(mu, cov, c, 0.02, DefaultSolverSettings())
	require.NoError(t, err)

	// Deterministic start, no randomness anywhere in the pipeline.
	assert.Equal(t, first, second)
	assert.Equal(t, firstConverged, secondConverged)
}

func TestOptimize_ZeroVarianceAssetWithSectorMinimum(t *testing.T) {
	// A riskless asset inside a sector with a minimum. The degenerate
	// variance region is handled by a finite penalty, so the run must
	// complete and honor the sector floor instead of erroring out.
	assets := []Asset{
		{Symbol: "EQ1", Sector: "Equity"},
		{Symbol: "EQ2", Sector: "Equity"},
		{Symbol: "CASH", Sector: "Cash"},
	}
	mu := []float64{0.11, 0.09, 0.0}
	cov := [][]float64{
		{0.04, 0.01, 0.0},
		{0.01, 0.05, 0.0},
		{0.0, 0.0, 0.0},
	}
	sectorBounds := map[string]SectorBounds{
		"Cash": {Min: 0.1, Max: 1.0},
	}
	c := buildConstraints(t, assets, sectorBounds, nil)

	opt := newTestOptimizer()
	weights, _, err := opt.Optimize(mu, cov, c, 0.02, DefaultSolverSettings())
	require.NoError(t, err)

	assertFullyInvested(t, weights)
	assert.GreaterOrEqual(t, weights["CASH"], 0.1-feasibilityTolerance)
}

func TestFinalizeWeights_RespectsUpperBoundsAfterNormalization(t *testing.T) {
	// The projected iterate sums to 0.75, so renormalizing alone would lift
	// A to 0.8, past its 0.6 cap. The excess has to land on B instead.
	assets := []Asset{
		{Symbol: "A", Sector: "X"},
		{Symbol: "B", Sector: "X"},
	}
	c := buildConstraints(t, assets, nil, map[string]WeightBounds{
		"A": {Min: 0.0, Max: 0.6},
		"B": {Min: 0.0, Max: 1.0},
	})
	lower := []float64{0.0, 0.0}
	upper := []float64{0.6, 1.0}

	opt := newTestOptimizer()
	weights, x := opt.finalizeWeights([]float64{0.8, 0.15}, c, lower, upper)

	assert.InDelta(t, 0.6, weights["A"], 1e-12)
	assert.InDelta(t, 0.4, weights["B"], 1e-12)
	assert.InDelta(t, 1.0, x[0]+x[1], 1e-12)
	assert.LessOrEqual(t, MaxViolation(c, x), feasibilityTolerance)
}

func TestSolverSettings_WithDefaultsKeepsSetFields(t *testing.T) {
	defaults := DefaultSolverSettings()

	partial := SolverSettings{Tolerance: 1e-6}.withDefaults()
	assert.Equal(t, defaults.MaxIterations, partial.MaxIterations)
	assert.Equal(t, 1e-6, partial.Tolerance)

	partial = SolverSettings{MaxIterations: 50}.withDefaults()
	assert.Equal(t, 50, partial.MaxIterations)
	assert.Equal(t, defaults.Tolerance, partial.Tolerance)

	assert.Equal(t, defaults, SolverSettings{}.withDefaults())
}

// stubSolver returns a canned result, for exercising the convergence policy
// without numerics.
type stubSolver struct {
	result SolverResult
}

func (s *stubSolver) Minimize(SolverProblem, []float64, SolverSettings) (SolverResult, error) {
	return s.result, nil
}

func TestOptimize_NonConvergedFeasibleIterateIsReturned(t *testing.T) {
	assets := []Asset{
		{Symbol: "A", Sector: "X"},
		{Symbol: "B", Sector: "X"},
	}
	c := buildConstraints(t, assets, nil, nil)
	mu := []float64{0.1, 0.08}
	cov := [][]float64{{0.04, 0.0}, {0.0, 0.05}}

	solver := &stubSolver{result: SolverResult{
		X:         []float64{0.5, 0.5},
		Converged: false,
		Status:    "IterationLimit",
	}}
	opt := NewSharpeOptimizer(solver, 1, zerolog.Nop())

	weights, converged, err := opt.Optimize(mu, cov, c, 0.02, DefaultSolverSettings())
	require.NoError(t, err)
	assert.False(t, converged)
	assertFullyInvested(t, weights)
}

func TestOptimize_NonConvergedInfeasibleIterateErrors(t *testing.T) {
	assets := []Asset{
		{Symbol: "A", Sector: "S1"},
		{Symbol: "B", Sector: "S2"},
	}
	c := buildConstraints(t, assets, map[string]SectorBounds{
		"S1": {Min: 0.9, Max: 1.0},
	}, nil)
	mu := []float64{0.1, 0.08}
	cov := [][]float64{{0.04, 0.0}, {0.0, 0.05}}

	// The iterate puts only half the portfolio in S1, far off its 0.9 floor.
	solver := &stubSolver{result: SolverResult{
		X:         []float64{0.5, 0.5},
		Converged: false,
		Status:    "IterationLimit",
	}}
	opt := NewSharpeOptimizer(solver, 1, zerolog.Nop())

	_, _, err := opt.Optimize(mu, cov, c, 0.02, DefaultSolverSettings())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonConvergent)
}

func TestOptimize_DimensionMismatch(t *testing.T) {
	assets := []Asset{
		{Symbol: "A", Sector: "X"},
		{Symbol: "B", Sector: "X"},
	}
	c := buildConstraints(t, assets, nil, nil)

	opt := newTestOptimizer()
	_, _, err := opt.Optimize([]float64{0.1}, [][]float64{{0.04}}, c, 0.02, DefaultSolverSettings())
	require.Error(t, err)
}
