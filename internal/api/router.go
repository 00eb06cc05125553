package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/kettle-bridge/internal/bridges/kettlebridge"
	"github.com/nerrad567/kettle-bridge/internal/fsr"
	"github.com/nerrad567/kettle-bridge/internal/process"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/kettle", s.handleKettle)
		r.Get("/fsr", s.handleFSR)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if len(s.loops) > 0 {
		loops := make([]process.Stats, 0, len(s.loops))
		for _, l := range s.loops {
			loops = append(loops, l.Stats())
		}
		resp["loops"] = loops
	}
	writeJSON(w, http.StatusOK, resp)
}

// sessionStatus is the JSON form of kettle.Stats.
type sessionStatus struct {
	Connected       bool       `json:"connected"`
	Connects        uint64     `json:"connects"`
	Failures        uint64     `json:"failures"`
	LastConnectedAt *time.Time `json:"last_connected_at"`
	LastError       string     `json:"last_error,omitempty"`
}

// kettleResponse is the body of GET /api/v1/kettle.
type kettleResponse struct {
	kettlebridge.Telemetry
	Bridge  kettlebridge.Stats `json:"bridge"`
	Session *sessionStatus     `json:"session,omitempty"`
}

// handleKettle returns the last published telemetry.
func (s *Server) handleKettle(w http.ResponseWriter, _ *http.Request) {
	t, ok := s.bridge.LastTelemetry()
	if !ok {
		writeNotFound(w, "no telemetry published yet")
		return
	}

	resp := kettleResponse{
		Telemetry: t,
		Bridge:    s.bridge.Stats(),
	}
	if s.session != nil {
		st := s.session.Stats()
		resp.Session = &sessionStatus{
			Connected: st.Connected,
			Connects:  st.Connects,
			Failures:  st.Failures,
			LastError: st.LastError,
		}
		if !st.LastConnectedAt.IsZero() {
			at := st.LastConnectedAt
			resp.Session.LastConnectedAt = &at
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// fsrResponse is the body of GET /api/v1/fsr.
type fsrResponse struct {
	State         string   `json:"state"`
	Count         int      `json:"count"`
	Ticks         []uint32 `json:"ticks"`
	Average       *float64 `json:"average"`
	Edges         uint64   `json:"edges"`
	PendingRearms uint64   `json:"pending_rearms"`
}

// handleFSR returns the sampler window.
func (s *Server) handleFSR(w http.ResponseWriter, _ *http.Request) {
	if s.sampler == nil {
		writeNotFound(w, "fill level sensor is disabled")
		return
	}

	writeJSON(w, http.StatusOK, newFSRResponse(s.sampler.Snapshot()))
}

func newFSRResponse(snap fsr.Snapshot) fsrResponse {
	ticks := make([]uint32, len(snap.Ticks))
	for i, t := range snap.Ticks {
		ticks[i] = uint32(t)
	}
	return fsrResponse{
		State:         snap.State.String(),
		Count:         len(snap.Ticks),
		Ticks:         ticks,
		Average:       snap.Average,
		Edges:         snap.Edges,
		PendingRearms: snap.PendingRearms,
	}
}
