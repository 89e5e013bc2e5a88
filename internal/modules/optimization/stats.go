package optimization

import (
	"fmt"
	"math"
)

// volatilityEpsilon is the threshold below which a portfolio volatility is
// treated as numerically zero.
const volatilityEpsilon = 1e-12

// PortfolioReturn computes the expected annual return w·mu.
// mu must already be annualized.
func PortfolioReturn(weights, mu []float64) float64 {
	var ret float64
	for i := range weights {
		ret += weights[i] * mu[i]
	}
	return ret
}

// PortfolioVariance computes wᵀΣw on the periodic (non-annualized) covariance.
func PortfolioVariance(weights []float64, cov [][]float64) float64 {
	var variance float64
	for i := range weights {
		for j := range weights {
			variance += weights[i] * weights[j] * cov[i][j]
		}
	}
	return variance
}

// PortfolioVolatility computes the annualized volatility
// sqrt(wᵀ·(Σ×P)·w) where Σ is the periodic covariance and P the number of
// periods per year. Annualization of the covariance happens here, exactly
// once.
func PortfolioVolatility(weights []float64, cov [][]float64, periodsPerYear float64) float64 {
	variance := PortfolioVariance(weights, cov) * periodsPerYear
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// SharpeRatio computes (ret − riskFree) / vol. All inputs annualized.
func SharpeRatio(expectedReturn, volatility, riskFreeRate float64) (float64, error) {
	if volatility < volatilityEpsilon {
		return 0, fmt.Errorf("%w: volatility %g", ErrDegenerateVolatility, volatility)
	}
	return (expectedReturn - riskFreeRate) / volatility, nil
}
