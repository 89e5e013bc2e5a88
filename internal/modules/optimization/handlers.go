package optimization

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// Handler handles HTTP requests for the optimization module.
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler.
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("component", "optimization_handler").Logger(),
	}
}

// runRequest is the body of POST /api/optimize. Returns may be supplied
// inline; when absent, prices are resolved from the history store over
// LookbackDays.
type runRequest struct {
	Request
	LookbackDays int `json:"lookback_days,omitempty"`
}

// HandleRun handles POST /api/optimize - runs one optimization from inline
// returns or from stored price history.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.LookbackDays < 0 {
		h.writeError(w, http.StatusBadRequest, "lookback_days must be non-negative")
		return
	}

	var result Result
	var err error
	if len(req.Returns) > 0 {
		result, err = h.service.Run(req.Request)
	} else {
		result, err = h.service.RunFromHistory(req.Request, req.LookbackDays)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Optimization run failed")
		h.writeJSON(w, statusForError(err), result)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// sweepRequest is the body of POST /api/optimize/sweep.
type sweepRequest struct {
	Request
	RiskFreeRates []float64 `json:"risk_free_rates"`
}

// HandleSweep handles POST /api/optimize/sweep - runs the same request once
// per risk-free rate and returns all results.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.RiskFreeRates) == 0 {
		h.writeError(w, http.StatusBadRequest, "risk_free_rates is required")
		return
	}

	results, err := h.service.Sweep(r.Context(), req.Request, req.RiskFreeRates)
	if err != nil {
		h.log.Error().Err(err).Msg("Optimization sweep failed")
		h.writeError(w, statusForError(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// statusForError maps engine error kinds to HTTP statuses: bad inputs are the
// caller's fault, non-convergence is a processable-but-unsolvable request.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInsufficientData),
		errors.Is(err, ErrInfeasibleConstraints),
		errors.Is(err, ErrUnknownSector):
		return http.StatusBadRequest
	case errors.Is(err, ErrNonConvergent),
		errors.Is(err, ErrDegenerateVolatility):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
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
