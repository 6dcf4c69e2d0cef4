package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"trafficview/internal/config"
	"trafficview/internal/control"
	"trafficview/internal/record"
	"trafficview/internal/render"
	"trafficview/internal/session"
	"trafficview/internal/stream"
	"trafficview/internal/viewer"
	"trafficview/pkg/interfaces"
)

// Application coordinates the viewer's components. Initialization order:
// recorder → control client → stream manager → renderer → session →
// viewer surface → HTTP server; teardown runs in reverse.
type Application struct {
	cfg        *config.Config
	recorder   *record.Recorder // nil when recording is disabled
	controls   *control.Client
	stream     *stream.Manager
	renderer   *render.Renderer
	session    *session.Orchestrator
	viewer     *viewer.Server
	httpServer *http.Server
}

// NewApplication builds the component graph from cfg.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var recorder *record.Recorder
	if cfg.Recorder != nil && cfg.Recorder.Path != "" {
		var err error
		recorder, err = record.Open(cfg.Recorder.Path)
		if err != nil {
			return nil, fmt.Errorf("open flight recorder: %w", err)
		}
	}

	controls := control.NewClient(cfg.Engine.BaseURL, cfg.Engine.RequestTimeout)

	streamManager := stream.NewManager(stream.Config{
		EngineURL:        cfg.WebSocketURL(),
		ReconnectDelay:   cfg.Stream.ReconnectDelay,
		AdvanceInterval:  cfg.Stream.AdvanceInterval,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
	})

	renderer := render.New(render.Config{
		Width:       cfg.Canvas.Width,
		Height:      cfg.Canvas.Height,
		BlinkPeriod: cfg.Canvas.BlinkPeriod,
	})

	var flightRecorder interfaces.FlightRecorder
	if recorder != nil {
		flightRecorder = recorder
	}
	orchestrator := session.New(controls, streamManager, flightRecorder, session.Config{
		PollInterval:   cfg.Stream.PollInterval,
		PollSteps:      cfg.Stream.PollSteps,
		RequestTimeout: cfg.Engine.RequestTimeout,
	})

	viewerServer := viewer.NewServer(orchestrator, controls, renderer, viewer.Config{
		FrameRate: cfg.Canvas.FrameRate,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Viewer.Host, cfg.Viewer.Port),
		Handler:      viewerServer,
		ReadTimeout:  cfg.Viewer.ReadTimeout,
		WriteTimeout: cfg.Viewer.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		recorder:   recorder,
		controls:   controls,
		stream:     streamManager,
		renderer:   renderer,
		session:    orchestrator,
		viewer:     viewerServer,
		httpServer: httpServer,
	}, nil
}

// Start creates the initial simulation, opens its streaming channel and
// brings the viewer surface up. A failed create is fatal here: without an
// identifier there is nothing to view or reconnect to.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting trafficview against engine %s", app.cfg.Engine.BaseURL)

	if err := app.session.Start(ctx, app.cfg.Simulation); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("viewer server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.session.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Viewer surface listening on %s", app.httpServer.Addr)
		return nil
	case <-ctx.Done():
		app.session.Stop()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order: viewer
// HTTP server, then the session (which closes the channel and cancels all
// timers), then the recorder.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down trafficview")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("Viewer server shutdown error: %v", err)
	}

	app.session.Stop()

	if app.recorder != nil {
		if err := app.recorder.Close(); err != nil {
			log.Printf("Flight recorder shutdown error: %v", err)
		}
	}

	log.Printf("trafficview shutdown complete")
	return nil
}

// Addr returns the viewer surface address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
