package optimization

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/database"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/modules/universe"
)

func testRequest() Request {
	n := 60
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = 0.0010 + 0.010*math.Sin(float64(i))
		b[i] = 0.0012 + 0.009*math.Cos(float64(i)*1.3)
		c[i] = 0.0008 + 0.011*math.Sin(float64(i)*0.7+1.1)
	}
	return Request{
		Assets: []Asset{
			{Symbol: "RELIANCE", Sector: "Energy"},
			{Symbol: "HDFCBANK", Sector: "Financials"},
			{Symbol: "INFY", Sector: "IT"},
		},
		Returns: map[string][]float64{
			"RELIANCE": a,
			"HDFCBANK": b,
			"INFY":     c,
		},
		RiskFreeRate: 0.06,
	}
}

func TestServiceRun_EndToEnd(t *testing.T) {
	svc := NewService(252, nil, nil, zerolog.Nop())

	result, err := svc.Run(testRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 0.06, result.RiskFreeRate)
	assert.GreaterOrEqual(t, result.ShrinkageIntensity, 0.0)
	assert.LessOrEqual(t, result.ShrinkageIntensity, 1.0)
	assert.Greater(t, result.Volatility, 0.0)

	sum := 0.0
	for _, w := range result.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	sectorSum := 0.0
	for _, w := range result.SectorWeights {
		sectorSum += w
	}
	assert.InDelta(t, 1.0, sectorSum, 1e-6)
}

func TestServiceRun_SectorBounds(t *testing.T) {
	svc := NewService(252, nil, nil, zerolog.Nop())

	req := testRequest()
	req.SectorBounds = map[string]SectorBounds{
		"Energy": {Min: 0.1, Max: 0.5},
		"IT":     {Min: 0.1, Max: 0.6},
	}

	result, err := svc.Run(req)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.GreaterOrEqual(t, result.SectorWeights["Energy"], 0.1-feasibilityTolerance)
	assert.LessOrEqual(t, result.SectorWeights["Energy"], 0.5+feasibilityTolerance)
	assert.GreaterOrEqual(t, result.SectorWeights["IT"], 0.1-feasibilityTolerance)
	assert.LessOrEqual(t, result.SectorWeights["IT"], 0.6+feasibilityTolerance)
}

func TestServiceRun_InsufficientData(t *testing.T) {
	svc := NewService(252, nil, nil, zerolog.Nop())

	req := Request{
		Assets:  []Asset{{Symbol: "A", Sector: "X"}},
		Returns: map[string][]float64{"A": {0.01}},
	}

	result, err := svc.Run(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
}

func TestServiceRun_InfeasibleConstraints(t *testing.T) {
	svc := NewService(252, nil, nil, zerolog.Nop())

	req := testRequest()
	req.SectorBounds = map[string]SectorBounds{
		"Energy":     {Min: 0.6, Max: 1.0},
		"Financials": {Min: 0.6, Max: 1.0},
	}

	_, err := svc.Run(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInfeasibleConstraints)
}

func TestServiceSweep(t *testing.T) {
	svc := NewService(252, nil, nil, zerolog.Nop())

	rates := []float64{0.02, 0.06, 0.10}
	results, err := svc.Sweep(context.Background(), testRequest(), rates)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Results arrive in rate order regardless of completion order.
	for i, rate := range rates {
		assert.Equal(t, rate, results[i].RiskFreeRate)
		assert.True(t, results[i].Success)
	}
}

func TestServiceSweep_NoRates(t *testing.T) {
	svc := NewService(252, nil, nil, zerolog.Nop())

	_, err := svc.Sweep(context.Background(), testRequest(), nil)
	require.Error(t, err)
}

func TestServiceRunFromHistory(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	history := universe.NewHistoryDB(db.Conn(), zerolog.Nop())

	// 40 trading days of synthetic closes for three symbols.
	var prices []universe.DailyPrice
	symbols := []string{"RELIANCE", "HDFCBANK", "INFY"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		for j, symbol := range symbols {
			base := 100.0 * float64(j+1)
			close := base * (1 + 0.002*float64(i) + 0.01*math.Sin(float64(i)+float64(j)))
			prices = append(prices, universe.DailyPrice{Symbol: symbol, Date: date, Close: close})
		}
	}
	require.NoError(t, history.SaveDailyPrices(prices))

	svc := NewService(252, history, nil, zerolog.Nop())

	req := Request{
		Assets: []Asset{
			{Symbol: "RELIANCE", Sector: "Energy"},
			{Symbol: "HDFCBANK", Sector: "Financials"},
			{Symbol: "INFY", Sector: "IT"},
		},
		RiskFreeRate: 0.06,
	}

	result, err := svc.RunFromHistory(req, 0)
	require.NoError(t, err)
	assert.True(t, result.Success)

	sum := 0.0
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestServiceRunFromHistory_NoDatabase(t *testing.T) {
	svc := NewService(252, nil, nil, zerolog.Nop())

	_, err := svc.RunFromHistory(testRequest(), 0)
	require.Error(t, err)
}
