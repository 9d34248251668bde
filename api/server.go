package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/inconshreveable/log15/v3"

	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/engine"
	"github.com/wricardo/robot-simulator/sim/logging"
	"github.com/wricardo/robot-simulator/sim/records"
	"github.com/wricardo/robot-simulator/sim/service"
	"github.com/wricardo/robot-simulator/transport/websocket"
)

// UserHeader carries the caller identity for persistence endpoints.
const UserHeader = "X-User-ID"

// Server represents the REST API server
type Server struct {
	service service.SimulatorService
	hub     *websocket.Hub
	router  *mux.Router
	logger  log15.Logger
}

// NewServer creates a new API server. hub may be nil.
func NewServer(simulator service.SimulatorService, hub *websocket.Hub) *Server {
	s := &Server{
		service: simulator,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logging.New("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Interactive driving
	api.HandleFunc("/sessions/{id}/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/sessions/{id}/keys", s.handleKeys).Methods("POST")
	api.HandleFunc("/sessions/{id}/commands", s.handleCommands).Methods("POST")
	api.HandleFunc("/sessions/{id}/edit", s.handleEditMode).Methods("POST")
	api.HandleFunc("/sessions/{id}/obstacles/toggle", s.handleToggleObstacle).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/sessions/{id}/trace", s.handleGetTrace).Methods("GET")

	// Persistence and narration
	api.HandleFunc("/sessions/{id}/save", s.handleSaveSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/narrate", s.handleNarrate).Methods("POST")
	api.HandleFunc("/sessions/{id}/narration", s.handleNarrationContext).Methods("GET")

	// Batch
	api.HandleFunc("/simulate", s.handleSimulate).Methods("POST")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")

	// Presets
	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")
	api.HandleFunc("/presets", s.handleCreatePreset).Methods("POST")
	api.HandleFunc("/presets/{name}", s.handleGetPreset).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Static files (if needed)
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir("./static/")))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service and domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, config.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, records.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrEditMode):
		return http.StatusConflict
	case errors.Is(err, service.ErrResultMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, config.ErrInvalidPreset),
		errors.Is(err, engine.ErrCommandsTooLong),
		errors.Is(err, engine.ErrObstacleOutOfBounds),
		errors.Is(err, engine.ErrObstacleAtStart),
		errors.Is(err, engine.ErrDuplicateObstacle),
		errors.Is(err, engine.ErrTooManyObstacles):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) broadcast(sessionID string, state *service.StateView) {
	if s.hub != nil && state != nil {
		s.hub.BroadcastState(sessionID, state)
	}
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preset string `json:"preset,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.service.CreateSession(r.Context(), req.Preset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Interactive Handlers

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Key  string   `json:"key,omitempty"`
		Keys []string `json:"keys,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch {
	case req.Key != "" && len(req.Keys) > 0:
		respondError(w, http.StatusBadRequest, "Send either key or keys, not both")

	case req.Key != "":
		result, err := s.service.PressKey(r.Context(), sessionID, req.Key)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if result.Handled {
			s.broadcast(sessionID, result.State)
			s.logger.Debug("key", "session", sessionID, "key", req.Key, "outcome", result.Step.Outcome)
		}
		respondJSON(w, http.StatusOK, result)

	case len(req.Keys) > 0:
		result, err := s.service.PressKeys(r.Context(), sessionID, req.Keys)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if result.Executed > 0 {
			s.broadcast(sessionID, result.State)
		}
		s.logger.Debug("keys", "session", sessionID, "executed", result.Executed, "ignored", len(result.Ignored), "end", result.EndState)
		respondJSON(w, http.StatusOK, result)

	default:
		respondError(w, http.StatusBadRequest, "key or keys is required")
	}
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Commands string `json:"commands"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.ApplyCommands(r.Context(), sessionID, req.Commands)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if result.Executed > 0 {
		s.broadcast(sessionID, result.State)
	}
	s.logger.Debug("commands", "session", sessionID, "executed", result.Executed,
		"ok", result.Successes, "failed", result.Failures, "end", result.EndState)

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleEditMode(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	state, err := s.service.SetEditMode(r.Context(), sessionID, *req.Enabled)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleToggleObstacle(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		X *int `json:"x"`
		Y *int `json:"y"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.X == nil || req.Y == nil {
		respondError(w, http.StatusBadRequest, "x and y are required")
		return
	}

	result, err := s.service.ToggleObstacle(r.Context(), sessionID, engine.Position{X: *req.X, Y: *req.Y})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if result.Applied {
		s.broadcast(sessionID, result.State)
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.Reset(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Robot reset successfully",
		"state":   state,
	})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	opts := service.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			opts.Page = p
		}
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}
	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	trace, err := s.service.GetTrace(r.Context(), sessionID, opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, trace)
}

// Persistence Handlers

// respondSave writes a save outcome. The run result is included even when
// saving failed, so an unauthenticated caller still sees it.
func respondSave(w http.ResponseWriter, saved *service.SaveResult, err error) {
	if err == nil {
		respondJSON(w, http.StatusCreated, saved)
		return
	}
	if saved == nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, statusFor(err), map[string]interface{}{
		"error":  err.Error(),
		"saved":  false,
		"result": saved.Result,
	})
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	userID := r.Header.Get(UserHeader)

	saved, err := s.service.SaveSimulation(r.Context(), userID, sessionID)
	if err != nil && !errors.Is(err, records.ErrUnauthenticated) {
		s.logger.Warn("save failed", "session", sessionID, "err", err)
	}
	respondSave(w, saved, err)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req service.SimulateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.Simulate(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		saved, err := s.service.SaveResult(r.Context(), r.Header.Get(UserHeader), *result)
		respondSave(w, saved, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = l
	}

	history, err := s.service.History(r.Context(), r.Header.Get(UserHeader), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(history),
		"records": history,
	})
}

// Narration Handlers

func (s *Server) handleNarrate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answer, err := s.service.Narrate(r.Context(), mux.Vars(r)["id"], req.Question)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleNarrationContext(w http.ResponseWriter, r *http.Request) {
	nc, err := s.service.NarrationContext(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, nc)
}

// Preset Handlers

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.service.ListPresets(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, presets)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		name = strings.TrimSuffix(name, ext)
	}

	preset, err := s.service.LoadPreset(r.Context(), name)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, preset)
}

func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var preset config.Preset
	if err := json.NewDecoder(r.Body).Decode(&preset); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if preset.Name == "" {
		respondError(w, http.StatusBadRequest, "Preset name is required")
		return
	}

	// ?name= picks the file name, e.g. "maze.yaml"; the display name is the default
	name := r.URL.Query().Get("name")
	if name == "" {
		name = preset.Name
	}

	if err := s.service.SavePreset(r.Context(), name, &preset); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Preset saved successfully",
		"preset_id": name,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if s.hub == nil {
		http.Error(w, "websocket updates are disabled", http.StatusServiceUnavailable)
		return
	}

	// Verify session exists
	state, err := s.service.GetState(context.Background(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, sessionID)

	// Registration is processed before this queued message
	s.broadcast(sessionID, state)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
