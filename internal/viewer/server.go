package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"trafficview/internal/control"
	"trafficview/internal/render"
	"trafficview/pkg/interfaces"
	"trafficview/pkg/model"
)

// Session is the slice of the orchestrator the viewer surface needs. Local
// interface keeps the HTTP layer decoupled from the session implementation.
type Session interface {
	Snapshot() *model.Snapshot
	Metrics() model.Metrics
	History() model.HistoricalMetrics
	SimulationID() string
	Running() bool
	Connected() bool
	Advance(ctx context.Context) error
	SetRunning(running bool) error
	Restart(ctx context.Context, cfg model.SimulationConfig) error
}

// Config holds the viewer surface settings.
type Config struct {
	// FrameRate is the repaint cadence of the motion stream, frames/second.
	FrameRate int
}

// DefaultConfig returns the production frame rate.
func DefaultConfig() Config {
	return Config{FrameRate: 10}
}

// Server exposes the viewer surface over HTTP: rendered frames, a motion
// stream with its own repaint timer, session controls, metric trends and
// the click-to-grid mapping. Pure interface layer; no simulation logic.
type Server struct {
	session  Session
	controls interfaces.ControlAPI
	renderer *render.Renderer
	cfg      Config
	router   chi.Router
}

// NewServer wires the viewer routes.
func NewServer(session Session, controls interfaces.ControlAPI, renderer *render.Renderer, cfg Config) *Server {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultConfig().FrameRate
	}
	s := &Server{
		session:  session,
		controls: controls,
		renderer: renderer,
		cfg:      cfg,
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/frame.png", s.handleFrame)
	s.router.Get("/stream.mjpeg", s.handleStream)
	s.router.Get("/charts", s.handleCharts)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/algorithms", s.handleAlgorithms)
		r.Get("/simulations", s.handleSimulations)
		r.Post("/advance", s.handleAdvance)
		r.Post("/running", s.handleRunning)
		r.Post("/restart", s.handleRestart)
		r.Post("/click", s.handleClick)
		r.Post("/algorithm", s.handleAlgorithm)
		r.Post("/config", s.handleConfig)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"connected": s.session.Connected(),
	})
}

// handleFrame renders the latest snapshot once, with the blink phase taken
// from the request's wall-clock time.
func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	img := s.renderer.Render(s.session.Snapshot(), s.session.Running(), time.Now())
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.renderer.EncodePNG(w, img); err != nil {
		log.Printf("viewer: frame encode failed: %v", err)
	}
}

// handleStream serves a motion-JPEG stream repainted on a fixed-rate tick.
// This timer is what keeps the yellow-blink animation moving while no
// snapshots arrive; it dies with the request.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	const boundary = "trafficviewframe"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-store")

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FrameRate))
	defer ticker.Stop()

	var buf bytes.Buffer
	for {
		select {
		case <-r.Context().Done():
			return
		case now := <-ticker.C:
			img := s.renderer.Render(s.session.Snapshot(), s.session.Running(), now)
			buf.Reset()
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
				log.Printf("viewer: stream frame encode failed: %v", err)
				return
			}
			fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, buf.Len())
			if _, err := w.Write(buf.Bytes()); err != nil {
				return
			}
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	step := 0
	if snap := s.session.Snapshot(); snap != nil {
		step = snap.Steps
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"simulation_id": s.session.SimulationID(),
		"connected":     s.session.Connected(),
		"running":       s.session.Running(),
		"step":          step,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	if snap == nil {
		s.sendError(w, http.StatusNotFound, "no snapshot received yet")
		return
	}
	s.sendJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"current":    s.session.Metrics(),
		"historical": s.session.History(),
	})
}

func (s *Server) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	algos, err := s.controls.Algorithms(r.Context())
	if err != nil {
		s.sendControlError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"algorithms": algos})
}

func (s *Server) handleSimulations(w http.ResponseWriter, r *http.Request) {
	sims, err := s.controls.ListSimulations(r.Context())
	if err != nil {
		s.sendControlError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"simulations": sims})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Advance(r.Context()); err != nil {
		s.sendControlError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"advanced": true})
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Running bool `json:"running"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.session.SetRunning(req.Running); err != nil {
		s.sendControlError(w, err)
		return
	}

	// Keep the engine's own loop in sync, best-effort; the client-side flag
	// already took effect either way.
	simID := s.session.SimulationID()
	if req.Running {
		speed := 1.0
		if snap := s.session.Snapshot(); snap != nil && snap.Config.SimulationSpeed > 0 {
			speed = snap.Config.SimulationSpeed
		}
		if err := s.controls.Resume(r.Context(), simID, speed); err != nil {
			log.Printf("viewer: engine resume failed: %v", err)
		}
	} else {
		if err := s.controls.Pause(r.Context(), simID); err != nil {
			log.Printf("viewer: engine pause failed: %v", err)
		}
	}

	s.sendJSON(w, http.StatusOK, map[string]any{"running": req.Running})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	cfg := model.DefaultSimulationConfig()
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid simulation config")
			return
		}
	}
	if err := cfg.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.Restart(r.Context(), cfg); err != nil {
		s.sendControlError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"simulation_id": s.session.SimulationID()})
}

// handleClick converts a surface click into grid coordinates. No
// hit-testing; the caller decides what the coordinate means.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap := s.session.Snapshot()
	if snap == nil {
		s.sendError(w, http.StatusNotFound, "no snapshot received yet")
		return
	}
	gx, gy := s.renderer.SurfaceToGrid(req.X, req.Y, snap.Config)
	s.sendJSON(w, http.StatusOK, map[string]any{"grid_x": gx, "grid_y": gy})
}

func (s *Server) handleAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Algorithm string         `json:"algorithm"`
		Config    map[string]any `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	simID := s.session.SimulationID()
	if simID == "" {
		s.sendError(w, http.StatusConflict, "no active simulation")
		return
	}
	if err := s.controls.ChangeAlgorithm(r.Context(), simID, req.Algorithm, req.Config); err != nil {
		s.sendControlError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"algorithm": req.Algorithm})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	simID := s.session.SimulationID()
	if simID == "" {
		s.sendError(w, http.StatusConflict, "no active simulation")
		return
	}
	if err := s.controls.UpdateConfig(r.Context(), simID, patch); err != nil {
		s.sendControlError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("viewer: response encode failed: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, map[string]any{"error": msg})
}

// sendControlError maps failures to responses, naming the failed control
// operation when one is known so the user can retry the right thing.
func (s *Server) sendControlError(w http.ResponseWriter, err error) {
	var opErr *control.OpError
	if errors.As(err, &opErr) {
		s.sendJSON(w, http.StatusBadGateway, map[string]any{
			"error":     opErr.Err.Error(),
			"operation": opErr.Op,
		})
		return
	}
	s.sendError(w, http.StatusConflict, err.Error())
}
