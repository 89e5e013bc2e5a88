// Package optimization provides portfolio optimization functionality.
package optimization

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// ConstraintsManager translates sector structure and user bounds into the
// constraint set consumed by the optimizer.
type ConstraintsManager struct {
	log zerolog.Logger
}

// NewConstraintsManager creates a new constraints manager.
func NewConstraintsManager(log zerolog.Logger) *ConstraintsManager {
	return &ConstraintsManager{
		log: log.With().Str("component", "constraints").Logger(),
	}
}

// Build produces the full constraint set: per-asset box bounds (default
// [0,1], long-only), the full-investment equality, and one descriptor per
// non-default sector bound. Infeasible bound algebra is rejected here,
// before any solver call.
func (cm *ConstraintsManager) Build(
	assets []Asset,
	sectorBounds map[string]SectorBounds,
	assetBounds map[string]WeightBounds,
) (Constraints, error) {
	if len(assets) == 0 {
		return Constraints{}, fmt.Errorf("no assets provided")
	}

	symbols := make([]string, len(assets))
	sectorIndices := make(map[string][]int)
	for i, a := range assets {
		symbols[i] = a.Symbol
		sectorIndices[a.Sector] = append(sectorIndices[a.Sector], i)
	}

	// Every bounded sector must exist in the asset map.
	for sector := range sectorBounds {
		if _, ok := sectorIndices[sector]; !ok {
			return Constraints{}, fmt.Errorf("%w: bound references sector %q with no assets", ErrUnknownSector, sector)
		}
	}

	// Per-asset box bounds.
	minWeights := make(map[string]float64, len(assets))
	maxWeights := make(map[string]float64, len(assets))
	var assetMinSum, assetMaxSum float64
	for _, a := range assets {
		lower, upper := 0.0, 1.0
		if b, ok := assetBounds[a.Symbol]; ok {
			lower, upper = b.Min, b.Max
		}
		if lower > upper {
			return Constraints{}, fmt.Errorf("%w: asset %s has lower=%.4f > upper=%.4f",
				ErrInfeasibleConstraints, a.Symbol, lower, upper)
		}
		minWeights[a.Symbol] = lower
		maxWeights[a.Symbol] = upper
		assetMinSum += lower
		assetMaxSum += upper
	}

	const tol = 1e-9
	if assetMinSum > 1.0+tol {
		return Constraints{}, fmt.Errorf("%w: asset minimum weights sum to %.4f, above 1",
			ErrInfeasibleConstraints, assetMinSum)
	}
	if assetMaxSum < 1.0-tol {
		return Constraints{}, fmt.Errorf("%w: asset maximum weights sum to %.4f, below 1",
			ErrInfeasibleConstraints, assetMaxSum)
	}

	// Sector bound algebra: sectors without explicit bounds count as [0,1].
	var sectorMinSum, sectorMaxSum float64
	for sector := range sectorIndices {
		bounds := SectorBounds{Min: 0, Max: 1}
		if b, ok := sectorBounds[sector]; ok {
			bounds = b
		}
		if bounds.Min > bounds.Max {
			return Constraints{}, fmt.Errorf("%w: sector %q has min=%.4f > max=%.4f",
				ErrInfeasibleConstraints, sector, bounds.Min, bounds.Max)
		}
		sectorMinSum += bounds.Min
		sectorMaxSum += bounds.Max
	}
	if sectorMinSum > 1.0+tol {
		return Constraints{}, fmt.Errorf("%w: sector minimums sum to %.4f, above 1",
			ErrInfeasibleConstraints, sectorMinSum)
	}
	if sectorMaxSum < 1.0-tol {
		return Constraints{}, fmt.Errorf("%w: sector maximums sum to %.4f, below 1",
			ErrInfeasibleConstraints, sectorMaxSum)
	}

	// Descriptor list: full-investment equality plus one descriptor per
	// non-default sector bound, in sorted sector order for determinism.
	linear := []LinearConstraint{
		{Kind: ConstraintSumToOne, Bound: 1.0},
	}

	sectors := make([]string, 0, len(sectorBounds))
	for sector := range sectorBounds {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	for _, sector := range sectors {
		bounds := sectorBounds[sector]
		indices := sectorIndices[sector]
		if bounds.Min > 0 {
			linear = append(linear, LinearConstraint{
				Kind:    ConstraintSectorMin,
				Sector:  sector,
				Indices: indices,
				Bound:   bounds.Min,
			})
		}
		if bounds.Max < 1 {
			linear = append(linear, LinearConstraint{
				Kind:    ConstraintSectorMax,
				Sector:  sector,
				Indices: indices,
				Bound:   bounds.Max,
			})
		}
	}

	cm.log.Debug().
		Int("num_assets", len(assets)).
		Int("num_sectors", len(sectorIndices)).
		Int("linear_constraints", len(linear)).
		Msg("Built constraint set")

	return Constraints{
		Symbols:    symbols,
		MinWeights: minWeights,
		MaxWeights: maxWeights,
		Linear:     linear,
	}, nil
}

// MaxViolation returns the largest violation of any linear constraint or box
// bound at x, in symbol order.
func MaxViolation(c Constraints, x []float64) float64 {
	var worst float64
	for _, lc := range c.Linear {
		if v := lc.Violation(x); v > worst {
			worst = v
		}
	}
	for i, symbol := range c.Symbols {
		if v := c.MinWeights[symbol] - x[i]; v > worst {
			worst = v
		}
		if v := x[i] - c.MaxWeights[symbol]; v > worst {
			worst = v
		}
	}
	return worst
}
