package universe

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles HTTP requests for the universe module.
type Handler struct {
	history *HistoryDB
	log     zerolog.Logger
}

// NewHandler creates a new universe handler.
func NewHandler(history *HistoryDB, log zerolog.Logger) *Handler {
	return &Handler{
		history: history,
		log:     log.With().Str("component", "universe_handler").Logger(),
	}
}

// HandleSavePrices handles POST /api/prices - upserts daily close prices.
func (h *Handler) HandleSavePrices(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prices []DailyPrice `json:"prices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(body.Prices) == 0 {
		h.writeError(w, http.StatusBadRequest, "prices is required")
		return
	}
	for _, p := range body.Prices {
		if p.Symbol == "" || p.Date == "" {
			h.writeError(w, http.StatusBadRequest, "every price needs a symbol and a date")
			return
		}
	}

	if err := h.history.SaveDailyPrices(body.Prices); err != nil {
		h.log.Error().Err(err).Int("count", len(body.Prices)).Msg("Failed to save daily prices")
		h.writeError(w, http.StatusInternalServerError, "Failed to save prices")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"saved": len(body.Prices),
	})
}

// HandleGetPrices handles GET /api/prices/{symbol}?limit=N - returns stored
// closes for one symbol, oldest first.
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	prices, err := h.history.GetDailyPrices(symbol, limit)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load daily prices")
		h.writeError(w, http.StatusInternalServerError, "Failed to load prices")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"prices": prices,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}
