package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shifttrack/internal/clock"
	"shifttrack/internal/config"
	"shifttrack/internal/history"
	"shifttrack/internal/model"
	"shifttrack/internal/notify"
	"shifttrack/internal/perimeter"
)

// DetectorControl is the slice of the crossing detector the API needs.
type DetectorControl interface {
	Reset()
}

type Server struct {
	cfg       *config.Manager
	registry  *perimeter.Registry
	ledger    *clock.Ledger
	history   *history.Store
	crossings *notify.Store
	detector  DetectorControl
	logger    *slog.Logger
	version   string
}

type statusResponse struct {
	Status       string           `json:"status"`
	Time         string           `json:"time"`
	Version      string           `json:"version"`
	ConfigPath   string           `json:"config_path"`
	Gate         config.GateConfig `json:"gate"`
	Perimeters   []string         `json:"perimeters"`
	ActiveShifts int              `json:"active_shifts"`
	Ingest       ingestStatus     `json:"ingest"`
	API          apiStatus        `json:"api"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	TCPStream bool `json:"tcp_stream"`
	FileTail  bool `json:"file_tail"`
	Kafka     bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func Start(ctx context.Context, cfg *config.Manager, registry *perimeter.Registry, ledger *clock.Ledger, historyStore *history.Store, crossingsStore *notify.Store, detector DetectorControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:       cfg,
		registry:  registry,
		ledger:    ledger,
		history:   historyStore,
		crossings: crossingsStore,
		detector:  detector,
		logger:    logger,
		version:   version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/clock/in", server.handleClockIn)
	mux.HandleFunc("/clock/out", server.handleClockOut)
	mux.HandleFunc("/clock/force-out", server.handleForceClockOut)
	mux.HandleFunc("/shifts/active", server.handleActiveShifts)
	mux.HandleFunc("/shifts/active/", server.handleActiveShifts)
	mux.HandleFunc("/shifts/history", server.handleShiftHistory)
	mux.HandleFunc("/shifts/history/", server.handleShiftHistory)
	mux.HandleFunc("/crossings", server.handleCrossings)
	mux.HandleFunc("/config/perimeters", server.handlePerimeters)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/admin/restart", server.handleRestart)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	perimeters := s.registry.Perimeters()
	ids := make([]string, 0, len(perimeters))
	for _, p := range perimeters {
		ids = append(ids, p.ID)
	}
	resp := statusResponse{
		Status:       "ok",
		Time:         time.Now().UTC().Format(time.RFC3339Nano),
		Version:      s.version,
		ConfigPath:   s.cfg.Path(),
		Gate:         cfg.Gate,
		Perimeters:   ids,
		ActiveShifts: len(s.ledger.AllActiveShifts()),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
	}
	writeJSON(w, http.StatusOK, resp)
}

type clockRequest struct {
	UserID         string   `json:"user_id"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
	Note           string   `json:"note,omitempty"`
}

func (req clockRequest) point() model.GeoPoint {
	return model.GeoPoint{
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		ObservedAt:     time.Now().UTC(),
	}
}

func (s *Server) handleClockIn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeClockRequest(w, r)
	if !ok {
		return
	}
	result := s.ledger.ClockIn(req.UserID, req.point(), req.Note)
	writeJSON(w, statusForResult(result), result)
}

func (s *Server) handleClockOut(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeClockRequest(w, r)
	if !ok {
		return
	}
	result := s.ledger.ClockOut(req.UserID, req.point(), req.Note)
	writeJSON(w, statusForResult(result), result)
}

type forceClockOutRequest struct {
	UserID    string   `json:"user_id"`
	ManagerID string   `json:"manager_id"`
	Reason    string   `json:"reason,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (s *Server) handleForceClockOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req forceClockOutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ManagerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var lastKnown *model.GeoPoint
	if req.Latitude != nil && req.Longitude != nil {
		lastKnown = &model.GeoPoint{
			Latitude:   *req.Latitude,
			Longitude:  *req.Longitude,
			ObservedAt: time.Now().UTC(),
		}
	}
	result := s.ledger.ForceClockOut(req.UserID, req.ManagerID, req.Reason, lastKnown)
	writeJSON(w, statusForResult(result), result)
}

func (s *Server) handleActiveShifts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/shifts/active"), "/")
	if userID != "" {
		shift, ok := s.ledger.ActiveShift(userID)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		duration, _ := s.ledger.CurrentDuration(userID)
		writeJSON(w, http.StatusOK, map[string]any{
			"shift":    shift,
			"duration": duration,
		})
		return
	}
	shifts := s.ledger.AllActiveShifts()
	writeJSON(w, http.StatusOK, map[string]any{
		"shifts": shifts,
		"count":  len(shifts),
	})
}

func (s *Server) handleShiftHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	userID := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/shifts/history"), "/")
	if userID != "" {
		shifts := s.history.UserShifts(userID, limit)
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":     userID,
			"shifts":      shifts,
			"count":       len(shifts),
			"total_hours": s.history.TotalHours(userID),
		})
		return
	}
	shifts := s.history.Shifts(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"shifts": shifts,
		"count":  len(shifts),
	})
}

func (s *Server) handleCrossings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.CrossingEvent
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.crossings.Since(ts)
	} else {
		list = s.crossings.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"crossings": list,
		"count":     len(list),
	})
}

func (s *Server) handlePerimeters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"perimeters": s.registry.Perimeters(),
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			Perimeters []config.PerimeterConfig `json:"perimeters"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		next := *current
		next.Perimeters = req.Perimeters
		if err := s.cfg.Update(&next); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		s.registry.SetPerimeters(next.PerimeterSet())
		if s.logger != nil {
			s.logger.Info("perimeters replaced", "count", len(req.Perimeters))
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.history != nil {
			s.history.Clear()
		}
		if s.crossings != nil {
			s.crossings.Clear()
		}
	case "history":
		if s.history != nil {
			s.history.Clear()
		}
	case "crossings":
		if s.crossings != nil {
			s.crossings.Clear()
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleRestart reseeds the monitoring path. The ledger is authoritative
// clock state and is deliberately not resettable here.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.detector != nil {
		s.detector.Reset()
	}
	if s.crossings != nil {
		s.crossings.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func decodeClockRequest(w http.ResponseWriter, r *http.Request) (clockRequest, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return clockRequest{}, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return clockRequest{}, false
	}
	var req clockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return clockRequest{}, false
	}
	if req.UserID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return clockRequest{}, false
	}
	return req, true
}

func statusForResult(result clock.Result) int {
	if result.OK {
		return http.StatusOK
	}
	switch result.Kind {
	case clock.ErrLocationInvalid:
		return http.StatusUnprocessableEntity
	case clock.ErrAlreadyClockedIn, clock.ErrNotClockedIn:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
