package session

import (
	"context"
	"log"
	"sync"
	"time"

	"trafficview/pkg/interfaces"
	"trafficview/pkg/model"
)

// Config holds the orchestrator's polling-fallback knobs.
type Config struct {
	// PollInterval paces the discrete-step fallback while running without
	// a streaming channel.
	PollInterval time.Duration
	// PollSteps is the batch size of one fallback advance call.
	PollSteps int
	// RequestTimeout bounds each fallback control call.
	RequestTimeout time.Duration
}

// DefaultConfig returns the production fallback cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval:   500 * time.Millisecond,
		PollSteps:      1,
		RequestTimeout: 5 * time.Second,
	}
}

// Orchestrator owns the active simulation identifier and the running flag,
// and decides the advance strategy: while the streaming channel is
// connected, advances ride the stream manager's paced signal; otherwise a
// poll loop falls back to discrete step calls through the control surface
// followed by a one-shot snapshot fetch. Incoming snapshots from either
// path are merged last-snapshot-wins into the session state.
type Orchestrator struct {
	control  interfaces.ControlAPI
	stream   interfaces.StreamManager
	recorder interfaces.FlightRecorder // nil disables recording
	cfg      Config

	mu          sync.RWMutex
	simID       string
	runID       string
	running     bool
	latest      *model.Snapshot
	subscribers []interfaces.SnapshotHandler

	pollStop chan struct{}
	pollOnce sync.Once
	stopOnce sync.Once
	stopped  bool
}

// New creates an orchestrator. recorder may be nil.
func New(control interfaces.ControlAPI, stream interfaces.StreamManager, recorder interfaces.FlightRecorder, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollSteps <= 0 {
		cfg.PollSteps = def.PollSteps
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	return &Orchestrator{
		control:  control,
		stream:   stream,
		recorder: recorder,
		cfg:      cfg,
		pollStop: make(chan struct{}),
	}
}

// Start creates a simulation from simCfg and brings up the streaming
// channel for it. Creation failures propagate (as *control.OpError) so the
// caller can show a message and retry; channel failures do not, they fall
// into the stream manager's automatic reconnect.
func (o *Orchestrator) Start(ctx context.Context, simCfg model.SimulationConfig) error {
	simID, err := o.control.CreateSimulation(ctx, simCfg)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrStopped
	}
	o.simID = simID
	o.runID = ""
	o.latest = nil
	o.mu.Unlock()

	if o.recorder != nil {
		runID, err := o.recorder.BeginRun(ctx, simID, simCfg)
		if err != nil {
			log.Printf("session: flight recording disabled for %s: %v", simID, err)
		} else {
			o.mu.Lock()
			o.runID = runID
			o.mu.Unlock()
		}
	}

	o.stream.Open(simID, o.handleSnapshot)
	o.pollOnce.Do(func() { go o.pollLoop() })

	// Seed the view before the first streamed snapshot lands.
	if snap, err := o.control.State(ctx, simID); err == nil {
		o.handleSnapshot(snap)
	} else {
		log.Printf("session: initial snapshot fetch failed: %v", err)
	}

	log.Printf("session: started simulation %s", simID)
	return nil
}

// Restart replaces the active simulation: the running flag is cleared, the
// previous channel discarded, and a fresh identifier obtained before the
// new channel opens. The stale identifier is never reused.
func (o *Orchestrator) Restart(ctx context.Context, simCfg model.SimulationConfig) error {
	o.mu.Lock()
	oldID := o.simID
	o.running = false
	o.mu.Unlock()

	o.stream.SetRunning(false)
	o.stream.Close()

	if oldID != "" {
		if err := o.control.DeleteSimulation(ctx, oldID); err != nil {
			log.Printf("session: delete of stale simulation %s failed: %v", oldID, err)
		}
	}

	return o.Start(ctx, simCfg)
}

// SetRunning toggles continuous play. While connected this drives the
// stream manager's paced advance; while disconnected the poll loop picks
// the flag up on its next tick.
func (o *Orchestrator) SetRunning(running bool) error {
	o.mu.Lock()
	if o.simID == "" {
		o.mu.Unlock()
		return ErrNoSimulation
	}
	o.running = running
	o.mu.Unlock()

	o.stream.SetRunning(running)
	return nil
}

// Advance triggers one manual advance using the current strategy: a stream
// signal when connected, otherwise a discrete step batch plus a one-shot
// snapshot fetch.
func (o *Orchestrator) Advance(ctx context.Context) error {
	o.mu.RLock()
	simID := o.simID
	o.mu.RUnlock()
	if simID == "" {
		return ErrNoSimulation
	}

	if o.stream.Connected() {
		o.stream.RequestAdvance()
		return nil
	}
	return o.pollAdvance(ctx, simID)
}

// Subscribe registers a handler invoked for every accepted snapshot.
func (o *Orchestrator) Subscribe(handler interfaces.SnapshotHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, handler)
}

// Snapshot returns the latest snapshot, nil before the first arrival.
func (o *Orchestrator) Snapshot() *model.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

// Metrics returns the latest point-in-time aggregates.
func (o *Orchestrator) Metrics() model.Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.latest == nil {
		return model.Metrics{}
	}
	return o.latest.Metrics
}

// History returns the latest trailing metric windows.
func (o *Orchestrator) History() model.HistoricalMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.latest == nil {
		return model.HistoricalMetrics{}
	}
	return o.latest.HistoricalMetrics
}

// SimulationID returns the active identifier, empty before Start.
func (o *Orchestrator) SimulationID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.simID
}

// Running reports the user-controlled play flag.
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// Connected reports streaming-channel connectivity.
func (o *Orchestrator) Connected() bool {
	return o.stream.Connected()
}

// Stop tears the session down deterministically: the poll loop and the
// streaming channel stop, and no timer owned by the session fires after
// Stop returns. Idempotent.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		o.stopped = true
		o.running = false
		o.mu.Unlock()

		close(o.pollStop)
		o.stream.Close()
		log.Printf("session: stopped")
	})
}

// handleSnapshot merges one inbound snapshot into session state,
// last-snapshot-wins, then fans it out to the recorder and subscribers.
func (o *Orchestrator) handleSnapshot(snap *model.Snapshot) {
	if snap == nil {
		return
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.latest = snap
	runID := o.runID
	subs := make([]interfaces.SnapshotHandler, len(o.subscribers))
	copy(subs, o.subscribers)
	o.mu.Unlock()

	if o.recorder != nil && runID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RequestTimeout)
		if err := o.recorder.RecordSample(ctx, runID, snap); err != nil {
			log.Printf("session: sample not recorded: %v", err)
		}
		cancel()
	}

	for _, sub := range subs {
		sub(snap)
	}
}

// pollLoop is the discrete fallback: while running without a connected
// channel, advance via the control surface on a fixed cadence. Exits on
// Stop.
func (o *Orchestrator) pollLoop() {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.pollStop:
			return
		case <-ticker.C:
			o.mu.RLock()
			simID := o.simID
			active := o.running && !o.stopped
			o.mu.RUnlock()

			if !active || simID == "" || o.stream.Connected() {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RequestTimeout)
			if err := o.pollAdvance(ctx, simID); err != nil {
				log.Printf("session: poll advance failed: %v", err)
			}
			cancel()
		}
	}
}

// pollAdvance performs one discrete advance batch and refreshes the
// snapshot through the control surface.
func (o *Orchestrator) pollAdvance(ctx context.Context, simID string) error {
	if _, err := o.control.Step(ctx, simID, o.cfg.PollSteps); err != nil {
		return err
	}
	snap, err := o.control.State(ctx, simID)
	if err != nil {
		return err
	}
	o.handleSnapshot(snap)
	return nil
}
