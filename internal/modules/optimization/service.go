package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/modules/calculations"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/modules/universe"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/utils"
)

// Service wires the estimation pipeline to the constrained solver. A run is a
// pure function of its request; the service holds no per-run state, so one
// instance serves concurrent callers.
type Service struct {
	returns     *ReturnsCalculator
	risk        *RiskModelBuilder
	constraints *ConstraintsManager
	optimizer   *SharpeOptimizer
	history     *universe.HistoryDB
	log         zerolog.Logger
}

// NewService creates the optimization service with its default pipeline.
func NewService(periodsPerYear int, history *universe.HistoryDB, cache *calculations.Cache, log zerolog.Logger) *Service {
	risk := NewRiskModelBuilder(log)
	if cache != nil {
		risk.SetCache(cache)
	}
	return &Service{
		returns:     NewReturnsCalculator(periodsPerYear, log),
		risk:        risk,
		constraints: NewConstraintsManager(log),
		optimizer:   NewSharpeOptimizer(NewGonumSolver(), periodsPerYear, log),
		history:     history,
		log:         log.With().Str("component", "optimization").Logger(),
	}
}

// Run executes one optimization for the given request.
func (s *Service) Run(req Request) (Result, error) {
	timer := utils.NewTimer("optimization_run", s.log)
	defer timer.Stop()

	result := Result{
		RunID:        uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		RiskFreeRate: req.RiskFreeRate,
	}

	symbols := req.Symbols()
	if len(symbols) == 0 {
		return fail(result, fmt.Errorf("%w: request has no assets", ErrInsufficientData))
	}
	for _, symbol := range symbols {
		if len(req.Returns[symbol]) < MinReturnPeriods {
			return fail(result, fmt.Errorf("%w: %s has %d return periods, need at least %d",
				ErrInsufficientData, symbol, len(req.Returns[symbol]), MinReturnPeriods))
		}
	}

	cov, shrinkage, highCorr, err := s.risk.BuildCovarianceMatrix(req.Returns, symbols)
	if err != nil {
		return fail(result, err)
	}
	result.ShrinkageIntensity = shrinkage
	result.HighCorrelations = highCorr

	mu, err := s.returns.MeanAnnualReturns(req.Returns, symbols)
	if err != nil {
		return fail(result, err)
	}

	constraints, err := s.constraints.Build(req.Assets, req.SectorBounds, req.AssetBounds)
	if err != nil {
		return fail(result, err)
	}

	settings := req.Solver.withDefaults()

	weights, converged, err := s.optimizer.Optimize(mu, cov, constraints, req.RiskFreeRate, settings)
	if err != nil {
		return fail(result, err)
	}

	w := make([]float64, len(symbols))
	for i, symbol := range symbols {
		w[i] = weights[symbol]
	}

	expectedReturn := PortfolioReturn(w, mu)
	volatility := PortfolioVolatility(w, cov, s.returns.PeriodsPerYear())
	sharpe, err := SharpeRatio(expectedReturn, volatility, req.RiskFreeRate)
	if err != nil {
		return fail(result, err)
	}

	result.Success = true
	result.Converged = converged
	result.Weights = weights
	result.SectorWeights = sectorWeights(req.Assets, weights)
	result.ExpectedReturn = expectedReturn
	result.Volatility = volatility
	result.SharpeRatio = sharpe

	s.log.Info().
		Str("run_id", result.RunID).
		Int("assets", len(symbols)).
		Bool("converged", converged).
		Float64("sharpe_ratio", sharpe).
		Float64("shrinkage_intensity", shrinkage).
		Msg("Optimization run complete")

	return result, nil
}

// Sweep runs one optimization per risk-free rate concurrently and returns the
// results in rate order. Runs share no state, so they parallelize cleanly; the
// first failure cancels the rest.
func (s *Service) Sweep(ctx context.Context, req Request, riskFreeRates []float64) ([]Result, error) {
	if len(riskFreeRates) == 0 {
		return nil, fmt.Errorf("sweep requires at least one risk-free rate")
	}

	timer := utils.NewTimer("optimization_sweep", s.log)
	defer timer.Stop()

	results := make([]Result, len(riskFreeRates))
	g, ctx := errgroup.WithContext(ctx)

	for i, rate := range riskFreeRates {
		i, rate := i, rate
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			runReq := req
			runReq.RiskFreeRate = rate
			result, err := s.Run(runReq)
			if err != nil {
				return fmt.Errorf("rate %g: %w", rate, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunFromHistory loads price history for the requested assets, converts it to
// returns and runs the optimization. lookbackDays bounds the series length.
func (s *Service) RunFromHistory(req Request, lookbackDays int) (Result, error) {
	if s.history == nil {
		return Result{}, fmt.Errorf("no price history database configured")
	}

	symbols := req.Symbols()
	dates, prices, err := s.history.GetPriceSeries(symbols, lookbackDays)
	if err != nil {
		return Result{}, fmt.Errorf("loading price history: %w", err)
	}
	if len(dates) < MinReturnPeriods+1 {
		return Result{}, fmt.Errorf("%w: %d price dates, need at least %d",
			ErrInsufficientData, len(dates), MinReturnPeriods+1)
	}

	series := s.returns.HandleMissingData(TimeSeriesData{Dates: dates, Data: prices})
	req.Returns = s.returns.CalculateReturns(series)
	return s.Run(req)
}

// sectorWeights aggregates asset weights by sector.
func sectorWeights(assets []Asset, weights map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, a := range assets {
		out[a.Sector] += weights[a.Symbol]
	}
	return out
}

// fail stamps the error on the result and returns both; callers inspect the
// error's kind, the HTTP layer serializes the result.
func fail(result Result, err error) (Result, error) {
	msg := err.Error()
	result.Error = &msg
	return result, err
}
