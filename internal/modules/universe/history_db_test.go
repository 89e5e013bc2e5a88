package universe

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/database"
)

func newTestHistoryDB(t *testing.T) *HistoryDB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewHistoryDB(db.Conn(), zerolog.Nop())
}

func TestSaveAndGetDailyPrices(t *testing.T) {
	h := newTestHistoryDB(t)

	err := h.SaveDailyPrices([]DailyPrice{
		{Symbol: "RELIANCE", Date: "2024-01-03", Close: 2610.5},
		{Symbol: "RELIANCE", Date: "2024-01-01", Close: 2580.0},
		{Symbol: "RELIANCE", Date: "2024-01-02", Close: 2595.25},
		{Symbol: "INFY", Date: "2024-01-01", Close: 1530.0},
	})
	require.NoError(t, err)

	prices, err := h.GetDailyPrices("RELIANCE", 0)
	require.NoError(t, err)
	require.Len(t, prices, 3)

	// Oldest first regardless of insertion order
	assert.Equal(t, "2024-01-01", prices[0].Date)
	assert.Equal(t, "2024-01-03", prices[2].Date)
	assert.Equal(t, 2580.0, prices[0].Close)
}

func TestSaveDailyPrices_UpsertsOnConflict(t *testing.T) {
	h := newTestHistoryDB(t)

	require.NoError(t, h.SaveDailyPrices([]DailyPrice{
		{Symbol: "INFY", Date: "2024-01-01", Close: 1500.0},
	}))
	require.NoError(t, h.SaveDailyPrices([]DailyPrice{
		{Symbol: "INFY", Date: "2024-01-01", Close: 1510.0},
	}))

	prices, err := h.GetDailyPrices("INFY", 0)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, 1510.0, prices[0].Close)
}

func TestGetDailyPrices_Limit(t *testing.T) {
	h := newTestHistoryDB(t)

	require.NoError(t, h.SaveDailyPrices([]DailyPrice{
		{Symbol: "TCS", Date: "2024-01-01", Close: 3700},
		{Symbol: "TCS", Date: "2024-01-02", Close: 3710},
		{Symbol: "TCS", Date: "2024-01-03", Close: 3720},
	}))

	prices, err := h.GetDailyPrices("TCS", 2)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "2024-01-01", prices[0].Date)
}

func TestGetPriceSeries_AlignsOnUnionOfDates(t *testing.T) {
	h := newTestHistoryDB(t)

	require.NoError(t, h.SaveDailyPrices([]DailyPrice{
		{Symbol: "A", Date: "2024-01-01", Close: 100},
		{Symbol: "A", Date: "2024-01-02", Close: 101},
		{Symbol: "A", Date: "2024-01-03", Close: 102},
		// B is missing 2024-01-02
		{Symbol: "B", Date: "2024-01-01", Close: 50},
		{Symbol: "B", Date: "2024-01-03", Close: 52},
	}))

	dates, data, err := h.GetPriceSeries([]string{"A", "B"}, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, dates)
	assert.Equal(t, []float64{100, 101, 102}, data["A"])

	require.Len(t, data["B"], 3)
	assert.Equal(t, 50.0, data["B"][0])
	assert.True(t, math.IsNaN(data["B"][1]), "missing date should carry NaN")
	assert.Equal(t, 52.0, data["B"][2])
}

func TestGetPriceSeries_NoSymbols(t *testing.T) {
	h := newTestHistoryDB(t)

	_, _, err := h.GetPriceSeries(nil, 0)
	require.Error(t, err)
}
