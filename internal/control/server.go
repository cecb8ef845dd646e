// Package control exposes the monitoring snapshot over HTTP. The boundary
// is read-only apart from the refresh-window parameters and the force
// trigger; steady-state errors travel as JSON fields, never HTTP statuses.
package control

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"mtprotowatch/internal/checker"
	"mtprotowatch/internal/logging"
)

type Server struct {
	service *checker.Service
	logs    *logging.RingBuffer
}

func NewServer(service *checker.Service, logs *logging.RingBuffer) *Server {
	return &Server{service: service, logs: logs}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(s.snapshot))
	mux.Handle("/logs", http.HandlerFunc(s.logsHandler))
	mux.Handle("/healthz", http.HandlerFunc(s.healthz))
	return mux
}

// snapshot serves the latest check results. Query parameters adjust the
// refresh window (refresh, refresh_min, refresh_max) and force=1 wakes the
// refresher; malformed numbers are silently ignored.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("refresh")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			s.service.SetRefreshCap(n)
		}
	}
	if raw := strings.TrimSpace(q.Get("refresh_min")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			s.service.SetRefreshMin(n)
		}
	}
	if raw := strings.TrimSpace(q.Get("refresh_max")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			s.service.SetRefreshMax(n)
		}
	}
	if q.Get("force") == "1" {
		s.service.ForceRefresh()
	}

	snap := s.service.GetSnapshot()
	snap.Meta.RefreshMinS, snap.Meta.RefreshMaxS = s.service.Window()
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, limit := 0, 100
	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			start = n
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries, total := s.logs.Query(q.Get("level"), strings.ToLower(q.Get("search")), start, limit)
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries, "total": total})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	snap := s.service.GetSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"last_cycle": snap.Timestamp,
		"proxies":    snap.Meta.Total,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
