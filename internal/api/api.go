package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
	"github.com/thatsimonsguy/general-thermostat/internal/preset"
	"github.com/thatsimonsguy/general-thermostat/internal/thermostat"
)

// Thermostat is the command surface the API drives. *thermostat.Runner
// satisfies it.
type Thermostat interface {
	State() thermostat.View
	SetHVACMode(ctx context.Context, mode string) error
	SetTemperature(ctx context.Context, temp float64) error
	SetPresetMode(ctx context.Context, name string) error
	SetPresetTemperature(ctx context.Context, name string, temp float64) error
	ResetPresetTemperature(ctx context.Context, name string) error
	SetTolerance(ctx context.Context, cold, hot *float64) error
}

type Server struct {
	thermostat  Thermostat
	corsOrigins []string
}

type HVACModeRequest struct {
	Mode string `json:"mode"`
}

type TemperatureRequest struct {
	Temperature *float64 `json:"temperature"`
}

type PresetModeRequest struct {
	Preset string `json:"preset"`
}

type ToleranceRequest struct {
	ColdTolerance *float64 `json:"cold_tolerance"`
	HotTolerance  *float64 `json:"hot_tolerance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(t Thermostat, corsOrigins []string) *Server {
	return &Server{thermostat: t, corsOrigins: corsOrigins}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	r.HandleFunc("/api/thermostat", s.getState).Methods(http.MethodGet)
	r.HandleFunc("/api/thermostat/hvac_mode", s.setHVACMode).Methods(http.MethodPut)
	r.HandleFunc("/api/thermostat/temperature", s.setTemperature).Methods(http.MethodPut)
	r.HandleFunc("/api/thermostat/preset_mode", s.setPresetMode).Methods(http.MethodPut)
	r.HandleFunc("/api/thermostat/presets/reset", s.resetAllPresets).Methods(http.MethodPost)
	r.HandleFunc("/api/thermostat/presets/{preset}/temperature", s.setPresetTemperature).Methods(http.MethodPut)
	r.HandleFunc("/api/thermostat/presets/{preset}/temperature", s.resetPresetTemperature).Methods(http.MethodDelete)
	r.HandleFunc("/api/thermostat/tolerance", s.setTolerance).Methods(http.MethodPut)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.thermostat.State())
}

func (s *Server) setHVACMode(w http.ResponseWriter, r *http.Request) {
	var req HVACModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if !model.IsKnownMode(model.HVACMode(req.Mode)) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid hvac mode %q", req.Mode))
		return
	}

	if err := s.thermostat.SetHVACMode(r.Context(), req.Mode); err != nil {
		s.fail(w, err, false)
		return
	}
	log.Info().Str("hvac_mode", req.Mode).Msg("HVAC mode updated via API")
	s.getState(w, r)
}

func (s *Server) setTemperature(w http.ResponseWriter, r *http.Request) {
	var req TemperatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Temperature == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	state := s.thermostat.State()
	if *req.Temperature < state.MinTemp || *req.Temperature > state.MaxTemp {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid temperature. Must be between %.1f and %.1f", state.MinTemp, state.MaxTemp))
		return
	}

	if err := s.thermostat.SetTemperature(r.Context(), *req.Temperature); err != nil {
		s.fail(w, err, false)
		return
	}
	log.Info().Float64("target", *req.Temperature).Msg("Target temperature updated via API")
	s.getState(w, r)
}

func (s *Server) setPresetMode(w http.ResponseWriter, r *http.Request) {
	var req PresetModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.thermostat.SetPresetMode(r.Context(), req.Preset); err != nil {
		s.fail(w, err, false)
		return
	}
	log.Info().Str("preset", req.Preset).Msg("Preset mode updated via API")
	s.getState(w, r)
}

func (s *Server) setPresetTemperature(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["preset"]

	var req TemperatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Temperature == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.thermostat.SetPresetTemperature(r.Context(), name, *req.Temperature); err != nil {
		s.fail(w, err, true)
		return
	}
	log.Info().Str("preset", name).Float64("temperature", *req.Temperature).Msg("Preset temperature updated via API")
	s.getState(w, r)
}

func (s *Server) resetPresetTemperature(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["preset"]

	if err := s.thermostat.ResetPresetTemperature(r.Context(), name); err != nil {
		s.fail(w, err, true)
		return
	}
	log.Info().Str("preset", name).Msg("Preset temperature reset via API")
	s.getState(w, r)
}

func (s *Server) resetAllPresets(w http.ResponseWriter, r *http.Request) {
	if err := s.thermostat.ResetPresetTemperature(r.Context(), ""); err != nil {
		s.fail(w, err, true)
		return
	}
	log.Info().Msg("All preset temperatures reset via API")
	s.getState(w, r)
}

func (s *Server) setTolerance(w http.ResponseWriter, r *http.Request) {
	var req ToleranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.thermostat.SetTolerance(r.Context(), req.ColdTolerance, req.HotTolerance); err != nil {
		s.fail(w, err, false)
		return
	}
	log.Info().Msg("Tolerances updated via API")
	s.getState(w, r)
}

// fail maps controller errors to status codes. Unknown presets are a 404 only
// on routes that name the preset in the path.
func (s *Server) fail(w http.ResponseWriter, err error, presetRoute bool) {
	switch {
	case errors.Is(err, preset.ErrUnknownPreset) && presetRoute:
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, preset.ErrUnknownPreset),
		errors.Is(err, preset.ErrOutOfRange),
		errors.Is(err, thermostat.ErrUnsupportedMode):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Thermostat command failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
