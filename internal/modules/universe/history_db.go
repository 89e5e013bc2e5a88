// Package universe provides access to the asset universe's historical prices.
// It is the return-series provider consumed by the optimization engine: prices
// go in through SaveDailyPrices, and the engine pulls aligned close series out
// through GetPriceSeries.
package universe

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// DailyPrice represents a daily closing price point
type DailyPrice struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Close  float64 `json:"close"`
}

// SaveDailyPrices upserts a batch of daily prices.
func (h *HistoryDB) SaveDailyPrices(prices []DailyPrice) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (symbol, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.Exec(p.Symbol, p.Date, p.Close); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert price %s/%s: %w", p.Symbol, p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit daily prices: %w", err)
	}

	h.log.Debug().Int("num_prices", len(prices)).Msg("Saved daily prices")
	return nil
}

// GetDailyPrices fetches daily price data for a symbol, oldest first.
// limit <= 0 means no limit.
func (h *HistoryDB) GetDailyPrices(symbol string, limit int) ([]DailyPrice, error) {
	query := `
		SELECT symbol, date, close
		FROM daily_prices
		WHERE symbol = ?
		ORDER BY date ASC
	`
	args := []interface{}{symbol}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// GetPriceSeries builds an aligned close-price series for the given symbols
// over the lookback window. The date index is the union of dates across
// symbols; a symbol with no price on a date carries NaN so the caller can
// fill. Dates are sorted ascending.
func (h *HistoryDB) GetPriceSeries(symbols []string, lookbackDays int) ([]string, map[string][]float64, error) {
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("no symbols provided")
	}

	startDate := ""
	if lookbackDays > 0 {
		startTime := time.Now().UTC().AddDate(0, 0, -lookbackDays)
		startDate = startTime.Format("2006-01-02")
	}

	pricesBySymbol := make(map[string]map[string]float64, len(symbols))
	dateSet := make(map[string]bool)

	for _, symbol := range symbols {
		prices, err := h.GetDailyPrices(symbol, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get prices for %s: %w", symbol, err)
		}

		bySymbol := make(map[string]float64, len(prices))
		for _, p := range prices {
			if startDate != "" && p.Date < startDate {
				continue
			}
			bySymbol[p.Date] = p.Close
			dateSet[p.Date] = true
		}
		pricesBySymbol[symbol] = bySymbol
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	data := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		series := make([]float64, len(dates))
		for i, date := range dates {
			if price, found := pricesBySymbol[symbol][date]; found {
				series[i] = price
			} else {
				series[i] = math.NaN()
			}
		}
		data[symbol] = series
	}

	h.log.Debug().
		Int("num_dates", len(dates)).
		Int("num_symbols", len(symbols)).
		Msg("Built price time series")

	return dates, data, nil
}
