package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// MinReturnPeriods is the minimum number of return observations the engine
// accepts; covariance needs at least two.
const MinReturnPeriods = 2

// ReturnsCalculator converts aligned price series into periodic returns and
// annualized mean-return vectors.
type ReturnsCalculator struct {
	periodsPerYear float64
	log            zerolog.Logger
}

// NewReturnsCalculator creates a new returns calculator.
// periodsPerYear is the annualization factor (252 for daily series).
func NewReturnsCalculator(periodsPerYear int, log zerolog.Logger) *ReturnsCalculator {
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}
	return &ReturnsCalculator{
		periodsPerYear: float64(periodsPerYear),
		log:            log.With().Str("component", "returns").Logger(),
	}
}

// PeriodsPerYear returns the annualization factor.
func (rc *ReturnsCalculator) PeriodsPerYear() float64 {
	return rc.periodsPerYear
}

// HandleMissingData fills missing prices using forward-fill then back-fill.
// The provider contract promises a gap-free index, but partially listed assets
// still produce leading NaNs after alignment.
func (rc *ReturnsCalculator) HandleMissingData(data TimeSeriesData) TimeSeriesData {
	filledData := TimeSeriesData{
		Dates: data.Dates,
		Data:  make(map[string][]float64, len(data.Data)),
	}

	missingCount := 0
	filledCount := 0

	for symbol, prices := range data.Data {
		filled := make([]float64, len(prices))
		copy(filled, prices)

		// Forward-fill
		var lastValid float64
		hasLastValid := false
		for i := 0; i < len(filled); i++ {
			if math.IsNaN(filled[i]) {
				missingCount++
				if hasLastValid {
					filled[i] = lastValid
					filledCount++
				}
			} else {
				lastValid = filled[i]
				hasLastValid = true
			}
		}

		// Back-fill leading NaNs
		var nextValid float64
		hasNextValid := false
		for i := len(filled) - 1; i >= 0; i-- {
			if math.IsNaN(filled[i]) {
				if hasNextValid {
					filled[i] = nextValid
					filledCount++
				}
			} else {
				nextValid = filled[i]
				hasNextValid = true
			}
		}

		filledData.Data[symbol] = filled
	}

	if missingCount > 0 {
		rc.log.Warn().
			Int("missing_data_points", missingCount).
			Int("filled_data_points", filledCount).
			Msg("Filled missing price data")
	}

	return filledData
}

// CalculateReturns calculates periodic returns from prices.
func (rc *ReturnsCalculator) CalculateReturns(data TimeSeriesData) map[string][]float64 {
	returns := make(map[string][]float64, len(data.Data))

	for symbol, prices := range data.Data {
		if len(prices) < 2 {
			returns[symbol] = []float64{}
			continue
		}

		periodic := make([]float64, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			if prices[i-1] > 0 && !math.IsNaN(prices[i]) && !math.IsNaN(prices[i-1]) {
				periodic[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
			} else {
				periodic[i-1] = 0.0
			}
		}
		returns[symbol] = periodic
	}

	return returns
}

// MeanAnnualReturns computes the annualized mean-return vector in symbol
// order: periodic mean × periods per year.
func (rc *ReturnsCalculator) MeanAnnualReturns(returns map[string][]float64, symbols []string) ([]float64, error) {
	mu := make([]float64, len(symbols))
	for i, symbol := range symbols {
		series, ok := returns[symbol]
		if !ok || len(series) < MinReturnPeriods {
			return nil, fmt.Errorf("%w: %s has %d return periods, need at least %d",
				ErrInsufficientData, symbol, len(series), MinReturnPeriods)
		}
		mu[i] = stat.Mean(series, nil) * rc.periodsPerYear
	}
	return mu, nil
}
