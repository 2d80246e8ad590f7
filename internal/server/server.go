package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/MAUNA/internal/config"
	"github.com/copyleftdev/MAUNA/internal/dataset"
	"github.com/copyleftdev/MAUNA/internal/forecast"
	"github.com/copyleftdev/MAUNA/internal/logging"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// ForecastState tracks a forecast job: a hyperparameter fit followed by
// conditioning on the requested grid. The state is thread-safe and can be
// polled while the fit runs.
type ForecastState struct {
	ID          string
	Status      string // "pending", "running", "completed", "failed", "cancelled"
	StartTime   time.Time
	EndTime     *time.Time
	Error       string
	Results     *forecast.Results
	Converged   bool
	NegLogLik   float64
	Theta       []float64
	CancelFunc  context.CancelFunc
	LastUpdated time.Time
}

// Server implements the HTTP server for the forecasting service. It manages
// forecast jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg    *config.Config
	logger Logger

	// Forecast job state management
	forecasts   map[string]*ForecastState
	forecastsMu sync.RWMutex // Protects the forecasts map
}

// NewServer creates a new server instance with the given config and logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(cfg *config.Config, logger Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		forecasts: make(map[string]*ForecastState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/forecast", s.handleForecast)
		r.Get("/forecast/{id}", s.handleStatus)
		r.Delete("/forecast/{id}", s.handleCancel)
	})
}

// forecastRequest is the JSON body of POST /api/v1/forecast. Times are
// fractional years, values are ppm; the sequences are paired by index.
type forecastRequest struct {
	Times  []float64 `json:"times"`
	Values []float64 `json:"values"`

	// Prediction grid. When GridPoints is zero a monthly grid over
	// [first time, last time + HorizonYears] is used.
	HorizonYears float64 `json:"horizon_years"`
	GridPoints   int     `json:"grid_points"`

	// Optional overrides of the configured training window.
	CutoffYear *float64 `json:"cutoff_year,omitempty"`
	Stride     *int     `json:"stride,omitempty"`
}

// handleForecast starts a new forecast job and returns its ID. The series
// arrives either as JSON or, with a text/csv content type, as the raw
// two-column CSV record.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	var series *dataset.Series
	var err error

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		series, err = dataset.FromCSV(r.Body)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid CSV body: %v", err))
			return
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		series, err = dataset.New(req.Times, req.Values)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	fcfg := forecast.Config{
		CutoffYear:        s.cfg.Data.CutoffYear,
		Stride:            s.cfg.Data.Stride,
		MaxIterations:     s.cfg.Fit.MaxIterations,
		GradientTolerance: s.cfg.Fit.GradientTolerance,
		Confidence:        s.cfg.Fit.Confidence,
	}
	if req.CutoffYear != nil {
		fcfg.CutoffYear = *req.CutoffYear
	}
	if req.Stride != nil {
		fcfg.Stride = *req.Stride
	}

	if req.HorizonYears <= 0 {
		req.HorizonYears = 20
	}
	if req.GridPoints <= 0 {
		req.GridPoints = int((series.T[series.Len()-1] + req.HorizonYears - series.T[0]) * 12)
	}
	grid := forecast.Grid(series.T[0], series.T[series.Len()-1]+req.HorizonYears, req.GridPoints)

	id := fmt.Sprintf("fc_%d", time.Now().UnixNano())
	ctx, cancel := context.WithCancel(context.Background())

	state := &ForecastState{
		ID:          id,
		Status:      "pending",
		StartTime:   time.Now(),
		CancelFunc:  cancel,
		LastUpdated: time.Now(),
	}

	s.forecastsMu.Lock()
	s.forecasts[id] = state
	s.forecastsMu.Unlock()

	go s.runForecast(ctx, id, series, grid, fcfg, state)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"forecast_id": id,
		"status":      "pending",
	})
}

// runForecast executes the fit and conditioning in a goroutine.
func (s *Server) runForecast(ctx context.Context, id string, series *dataset.Series, grid []float64, fcfg forecast.Config, state *ForecastState) {
	s.forecastsMu.Lock()
	state.Status = "running"
	state.LastUpdated = time.Now()
	s.forecastsMu.Unlock()

	zlogger := logging.NewZapLogger(s.logger.WithFields(map[string]interface{}{
		"forecast_id": id,
	}))
	forecaster := forecast.New(fcfg, zlogger)

	fit, err := forecaster.Fit(ctx, series)
	var results *forecast.Results
	if err == nil {
		results, err = fit.Forecast(grid)
	}

	s.forecastsMu.Lock()
	defer s.forecastsMu.Unlock()

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	if ctx.Err() != nil {
		state.Status = "cancelled"
		return
	}
	if err != nil {
		s.logger.Error("Forecast failed", map[string]interface{}{
			"forecast_id": id,
			"error":       err.Error(),
		})
		state.Status = "failed"
		state.Error = err.Error()
		return
	}

	state.Status = "completed"
	state.Results = results
	state.Converged = fit.Result.Converged
	state.NegLogLik = fit.Result.NegLogLik
	state.Theta = fit.Result.Theta
}

// handleStatus reports the state of a forecast job, including the result
// sequences once the job completes.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.respondWithError(w, http.StatusBadRequest, "missing forecast ID")
		return
	}

	// Hold the read lock until the response is built: runForecast and
	// handleCancel mutate job state under the write lock.
	s.forecastsMu.RLock()
	defer s.forecastsMu.RUnlock()

	state, exists := s.forecasts[id]
	if !exists {
		s.respondWithError(w, http.StatusNotFound, "forecast not found")
		return
	}

	response := map[string]interface{}{
		"status":      state.Status,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Error != "" {
		response["error"] = state.Error
	}
	if state.Status == "completed" {
		response["results"] = state.Results
		response["converged"] = state.Converged
		response["neg_log_likelihood"] = state.NegLogLik
		response["hyperparameters"] = state.Theta
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleCancel cancels a running forecast job.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.respondWithError(w, http.StatusBadRequest, "missing forecast ID")
		return
	}

	s.forecastsMu.Lock()
	defer s.forecastsMu.Unlock()

	state, exists := s.forecasts[id]
	if !exists {
		s.respondWithError(w, http.StatusNotFound, "forecast not found")
		return
	}

	switch state.Status {
	case "completed", "failed", "cancelled":
		// Already in a terminal state
		s.respondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("cannot cancel forecast with status: %s", state.Status))
		return
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}

	state.Status = "cancelled"
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Forecast cancelled", map[string]interface{}{
		"forecast_id": id,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "cancellation requested",
	})
}

// respondWithError sends a JSON error response
func (s *Server) respondWithError(w http.ResponseWriter, status int, message string) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  status,
		"message": message,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}

// Close cleans up resources
func (s *Server) Close() error {
	// Cancel all running forecasts
	s.forecastsMu.Lock()
	defer s.forecastsMu.Unlock()

	for _, fc := range s.forecasts {
		if fc.CancelFunc != nil {
			fc.CancelFunc()
		}
	}
	return nil
}
