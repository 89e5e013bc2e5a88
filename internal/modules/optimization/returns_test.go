package optimization

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMissingData_ForwardAndBackFill(t *testing.T) {
	rc := NewReturnsCalculator(252, zerolog.Nop())

	data := TimeSeriesData{
		Dates: []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"},
		Data: map[string][]float64{
			// Interior gap forward-fills, leading gap back-fills.
			"A": {100, math.NaN(), 102, 103},
			"B": {math.NaN(), 50, 51, 52},
		},
	}

	filled := rc.HandleMissingData(data)
	assert.Equal(t, []float64{100, 100, 102, 103}, filled.Data["A"])
	assert.Equal(t, []float64{50, 50, 51, 52}, filled.Data["B"])
}

func TestCalculateReturns_PercentChange(t *testing.T) {
	rc := NewReturnsCalculator(252, zerolog.Nop())

	data := TimeSeriesData{
		Dates: []string{"d1", "d2", "d3"},
		Data: map[string][]float64{
			"A": {100, 110, 99},
		},
	}

	returns := rc.CalculateReturns(data)
	require.Len(t, returns["A"], 2)
	assert.InDelta(t, 0.10, returns["A"][0], 1e-12)
	assert.InDelta(t, -0.10, returns["A"][1], 1e-12)
}

func TestMeanAnnualReturns(t *testing.T) {
	rc := NewReturnsCalculator(252, zerolog.Nop())

	returns := map[string][]float64{
		"A": {0.01, 0.02, 0.03},
		"B": {0.00, -0.01, 0.01},
	}

	mu, err := rc.MeanAnnualReturns(returns, []string{"A", "B"})
	require.NoError(t, err)
	assert.InDelta(t, 0.02*252, mu[0], 1e-12)
	assert.InDelta(t, 0.0, mu[1], 1e-9)
}

func TestMeanAnnualReturns_InsufficientData(t *testing.T) {
	rc := NewReturnsCalculator(252, zerolog.Nop())

	_, err := rc.MeanAnnualReturns(map[string][]float64{"A": {0.01}}, []string{"A"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMeanAnnualReturns_MissingSymbol(t *testing.T) {
	rc := NewReturnsCalculator(252, zerolog.Nop())

	_, err := rc.MeanAnnualReturns(map[string][]float64{"A": {0.01, 0.02}}, []string{"A", "B"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
