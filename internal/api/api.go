package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vinste/airzone-local/db"
	"github.com/vinste/airzone-local/internal/airzone"
	"github.com/vinste/airzone-local/internal/climate"
	"github.com/vinste/airzone-local/internal/datadog"
	"github.com/vinste/airzone-local/internal/model"
)

// Server exposes the climate devices over a local REST API plus a websocket
// state stream.
type Server struct {
	devices  []*climate.Device
	system   *climate.System
	database *sql.DB // nil disables history endpoints
	hub      *Hub
}

type ZoneResponse struct {
	Index       int      `json:"index"`
	Name        string   `json:"name"`
	UniqueID    string   `json:"unique_id"`
	Unit        string   `json:"unit"`
	CurrentTemp float64  `json:"current_temp"`
	TargetTemp  float64  `json:"target_temp"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Mode        string   `json:"mode"`
	Modes       []string `json:"modes"`
	MinTemp     float64  `json:"min_temp"`
	MaxTemp     float64  `json:"max_temp"`
	Step        float64  `json:"step"`
	On          bool     `json:"on"`
	Faults      []string `json:"faults,omitempty"`
}

type SystemModeResponse struct {
	Mode  string   `json:"mode"`
	Modes []string `json:"modes"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type SetpointRequest struct {
	Setpoint float64 `json:"setpoint"`
}

type PowerRequest struct {
	On bool `json:"on"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(devices []*climate.Device, system *climate.System, database *sql.DB) *Server {
	return &Server{
		devices:  devices,
		system:   system,
		database: database,
		hub:      NewHub(),
	}
}

func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/zones", s.handleZones)
	mux.HandleFunc("/api/zones/", s.handleZoneOperations)
	mux.HandleFunc("/api/system/mode", s.handleSystemMode)
	mux.HandleFunc("/api/stream", s.hub.handleStream)

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, corsHandler)
}

// StreamState pushes the current zone state to websocket subscribers. Wired
// as the poller's broadcast hook.
func (s *Server) StreamState(zones []airzone.Zone) {
	responses := make([]ZoneResponse, 0, len(s.devices))
	for _, d := range s.devices {
		resp, err := s.zoneResponse(d)
		if err != nil {
			continue
		}
		responses = append(responses, resp)
	}
	s.hub.Broadcast(responses)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/api/zones" {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var response []ZoneResponse
	for _, d := range s.devices {
		resp, err := s.zoneResponse(d)
		if err != nil {
			log.Error().Err(err).Str("zone", d.Name()).Msg("Failed to read zone state")
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		response = append(response, resp)
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleZoneOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/zones/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Zone index required")
		return
	}

	idx, err := strconv.Atoi(parts[0])
	if err != nil || idx < 0 || idx >= len(s.devices) {
		s.writeError(w, http.StatusNotFound, "Zone not found")
		return
	}
	device := s.devices[idx]

	if len(parts) == 1 {
		// /api/zones/{idx}
		if r.Method == http.MethodGet {
			s.getZone(w, device)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(parts) == 2 {
		operation := parts[1]
		switch {
		case operation == "history" && r.Method == http.MethodGet:
			s.getZoneHistory(w, r, idx)
		case operation == "mode" && r.Method == http.MethodPut:
			s.setZoneMode(w, r, device)
		case operation == "setpoint" && r.Method == http.MethodPut:
			s.setZoneSetpoint(w, r, device)
		case operation == "power" && r.Method == http.MethodPut:
			s.setZonePower(w, r, device)
		default:
			s.writeError(w, http.StatusNotFound, "Unknown operation")
		}
		return
	}

	s.writeError(w, http.StatusNotFound, "Invalid path")
}

func (s *Server) handleSystemMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, SystemModeResponse{
			Mode:  string(s.system.HVACMode()),
			Modes: modeStrings(s.system.HVACModes()),
		})
	case http.MethodPut:
		var req ModeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		mode := model.HVACMode(req.Mode)
		if !model.ValidMode(mode) {
			s.writeError(w, http.StatusBadRequest, "Invalid mode. Valid modes: off, heat, cool, dry, fan_only")
			return
		}
		if err := s.system.SetHVACMode(r.Context(), mode); err != nil {
			log.Error().Err(err).Str("mode", req.Mode).Msg("Failed to set system mode")
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		datadog.Count("command.system_mode", 1)
		w.WriteHeader(http.StatusOK)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) getZone(w http.ResponseWriter, device *climate.Device) {
	resp, err := s.zoneResponse(device)
	if err != nil {
		if errors.Is(err, airzone.ErrInvalidZone) {
			s.writeError(w, http.StatusNotFound, "Zone not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getZoneHistory(w http.ResponseWriter, r *http.Request, idx int) {
	if s.database == nil {
		s.writeError(w, http.StatusServiceUnavailable, "History recording disabled")
		return
	}

	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "Invalid hours parameter")
			return
		}
		hours = parsed
	}

	readings, err := db.ZoneHistory(s.database, idx, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		log.Error().Err(err).Int("zone_idx", idx).Msg("Failed to query zone history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if readings == nil {
		readings = []db.Reading{}
	}
	s.writeJSON(w, http.StatusOK, readings)
}

func (s *Server) setZoneMode(w http.ResponseWriter, r *http.Request, device *climate.Device) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	mode := model.HVACMode(req.Mode)
	if !model.ValidMode(mode) {
		s.writeError(w, http.StatusBadRequest, "Invalid mode. Valid modes: off, heat, cool, dry, fan_only")
		return
	}

	if err := device.SetHVACMode(r.Context(), mode); err != nil {
		log.Error().Err(err).Str("zone", device.Name()).Str("mode", req.Mode).Msg("Failed to set zone mode")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	datadog.Count("command.mode", 1)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setZoneSetpoint(w http.ResponseWriter, r *http.Request, device *climate.Device) {
	var req SetpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := device.SetTargetTemperature(r.Context(), req.Setpoint); err != nil {
		if errors.Is(err, airzone.ErrTransport) || errors.Is(err, airzone.ErrProtocol) {
			log.Error().Err(err).Str("zone", device.Name()).Msg("Failed to set zone setpoint")
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	datadog.Count("command.setpoint", 1)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setZonePower(w http.ResponseWriter, r *http.Request, device *climate.Device) {
	var req PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var err error
	if req.On {
		err = device.TurnOn(r.Context())
	} else {
		err = device.TurnOff(r.Context())
	}
	if err != nil {
		log.Error().Err(err).Str("zone", device.Name()).Bool("on", req.On).Msg("Failed to set zone power")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	datadog.Count("command.power", 1)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) zoneResponse(d *climate.Device) (ZoneResponse, error) {
	current, err := d.CurrentTemperature()
	if err != nil {
		return ZoneResponse{}, err
	}
	target, err := d.TargetTemperature()
	if err != nil {
		return ZoneResponse{}, err
	}
	humidity, err := d.CurrentHumidity()
	if err != nil {
		return ZoneResponse{}, err
	}
	minTemp, err := d.MinTemp()
	if err != nil {
		return ZoneResponse{}, err
	}
	maxTemp, err := d.MaxTemp()
	if err != nil {
		return ZoneResponse{}, err
	}
	on, err := d.IsOn()
	if err != nil {
		return ZoneResponse{}, err
	}

	return ZoneResponse{
		Index:       d.ZoneIndex(),
		Name:        d.Name(),
		UniqueID:    d.UniqueID(),
		Unit:        string(d.TemperatureUnit()),
		CurrentTemp: current,
		TargetTemp:  target,
		Humidity:    humidity,
		Mode:        string(d.HVACMode()),
		Modes:       modeStrings(d.HVACModes()),
		MinTemp:     minTemp,
		MaxTemp:     maxTemp,
		Step:        climate.TargetTemperatureStep,
		On:          on,
		Faults:      d.Faults(),
	}, nil
}

func modeStrings(modes []model.HVACMode) []string {
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
