package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"trafficview/pkg/interfaces"
	"trafficview/pkg/model"
)

// State is the connectivity state of the streaming channel. Owned
// exclusively by the Manager; everything else reads it through Connected().
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Outbound control messages.
var (
	stepMessage = []byte(`{"type":"step"}`)
	pongMessage = []byte(`{"type":"pong"}`)
)

// envelope distinguishes control frames from snapshot payloads. Snapshot
// messages carry no "type" field.
type envelope struct {
	Type string `json:"type"`
}

// Config holds the manager's timing knobs.
type Config struct {
	// EngineURL is the engine's WebSocket base, e.g. "ws://localhost:8000".
	EngineURL string
	// ReconnectDelay is the fixed wait before the single scheduled retry
	// after an unexpected closure.
	ReconnectDelay time.Duration
	// AdvanceInterval is the pacing period of the advance loop while the
	// running flag is set.
	AdvanceInterval time.Duration
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the production timing values.
func DefaultConfig(engineURL string) Config {
	return Config{
		EngineURL:        engineURL,
		ReconnectDelay:   2 * time.Second,
		AdvanceInterval:  100 * time.Millisecond,
		HandshakeTimeout: 10 * time.Second,
	}
}

// dialFunc opens the transport for one channel. Injectable for tests.
type dialFunc func(rawURL string) (wire, error)

// Manager owns one logical streaming channel per active simulation.
// On unexpected closure it schedules exactly one reconnect attempt after
// ReconnectDelay and retries indefinitely until Close or a superseding Open;
// a viewer should never permanently give up mid-session. Failures are
// observable only through the connectivity state, never thrown to callers.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	dial    dialFunc
	state   State
	simID   string
	handler interfaces.SnapshotHandler
	ch      *channel
	running bool

	// gen invalidates callbacks from superseded sessions: Open and Close
	// bump it, and every async path re-checks it under the lock.
	gen        int
	retryTimer *time.Timer
	pacerStop  chan struct{}
}

var _ interfaces.StreamManager = (*Manager)(nil)

// NewManager creates a disconnected manager. Timing fields left zero fall
// back to the production defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig(cfg.EngineURL)
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.AdvanceInterval <= 0 {
		cfg.AdvanceInterval = def.AdvanceInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}

	m := &Manager{cfg: cfg, state: StateDisconnected}
	m.dial = m.dialWebSocket
	return m
}

func (m *Manager) dialWebSocket(rawURL string) (wire, error) {
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaWire{conn: conn}, nil
}

// Open establishes the channel for simID, delivering every application
// snapshot to handler. Any channel already owned by this manager is torn
// down first, so at most one channel is ever alive per manager. Dial
// failures do not surface here; they fall into the automatic retry.
func (m *Manager) Open(simID string, handler interfaces.SnapshotHandler) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.teardownLocked()
	m.simID = simID
	m.handler = handler
	m.state = StateConnecting
	m.mu.Unlock()

	go m.connect(gen)
}

// Close tears the channel down, cancels the pending retry and the pacing
// loop, and leaves the manager Disconnected. Idempotent; no timer fires
// after Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.teardownLocked()
	m.state = StateDisconnected
}

// RequestAdvance sends a single advance signal if and only if the channel
// is connected. A no-op otherwise: signals are never queued for later.
func (m *Manager) RequestAdvance() {
	m.mu.Lock()
	ch := m.ch
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || ch == nil {
		return
	}
	if err := ch.Write(stepMessage); err != nil {
		log.Printf("stream: advance signal dropped: %v", err)
	}
}

// SetRunning toggles the paced advance loop. Starting requires a connected
// channel; the loop also starts automatically once a (re)connect succeeds
// while the flag is still set. Stopping takes effect immediately: no signal
// fires after the flag flips, even one already scheduled.
func (m *Manager) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
	if running && m.state == StateConnected {
		m.startPacerLocked()
	}
	if !running {
		m.stopPacerLocked()
	}
}

// Connected reports whether the streaming channel is currently established.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State returns the current connectivity state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// channelURL builds the per-simulation WebSocket address.
func (m *Manager) channelURL(simID string) string {
	return fmt.Sprintf("%s/ws/simulation/%s", m.cfg.EngineURL, url.PathEscape(simID))
}

// connect dials the channel for the session identified by gen. Runs off
// the caller's goroutine; all state transitions re-check gen.
func (m *Manager) connect(gen int) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	rawURL := m.channelURL(m.simID)
	m.mu.Unlock()

	w, err := m.dial(rawURL)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		if w != nil {
			w.Close()
		}
		return
	}
	if err != nil {
		log.Printf("stream: dial %s failed: %v", rawURL, err)
		m.state = StateDisconnected
		m.scheduleReconnectLocked(gen)
		m.mu.Unlock()
		return
	}

	ch := newChannel(w)
	m.ch = ch
	m.state = StateConnected
	if m.running {
		m.startPacerLocked()
	}
	handler := m.handler
	m.mu.Unlock()

	log.Printf("stream: channel established for %s", rawURL)
	go m.readLoop(gen, ch, handler)
}

// readLoop delivers inbound messages until the channel dies. Control frames
// (ping/pong) are filtered and never reach the snapshot handler; malformed
// payloads are logged and skipped without dropping the channel.
func (m *Manager) readLoop(gen int, ch *channel, handler interfaces.SnapshotHandler) {
	for {
		data, err := ch.Read()
		if err != nil {
			m.handleDisconnect(gen, ch)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("stream: discarding malformed message: %v", err)
			continue
		}
		switch env.Type {
		case "ping":
			if err := ch.Write(pongMessage); err != nil {
				log.Printf("stream: pong dropped: %v", err)
			}
			continue
		case "pong":
			continue
		}

		var snap model.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Printf("stream: discarding malformed snapshot: %v", err)
			continue
		}
		if handler != nil {
			handler(&snap)
		}
	}
}

// handleDisconnect reacts to an unexpected channel closure: suppress the
// advance loop, flip to Disconnected and schedule the single retry. A
// closure caused by explicit Close or a superseding Open is recognized by
// the stale gen and ignored.
func (m *Manager) handleDisconnect(gen int, ch *channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.ch != ch {
		return
	}

	log.Printf("stream: channel lost for simulation %s, reconnecting in %v", m.simID, m.cfg.ReconnectDelay)
	ch.Close()
	m.ch = nil
	m.state = StateDisconnected
	m.stopPacerLocked()
	m.scheduleReconnectLocked(gen)
}

// scheduleReconnectLocked arms exactly one retry timer, cancelling any
// previous one first so concurrent failure paths cannot stack attempts.
func (m *Manager) scheduleReconnectLocked(gen int) {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.retryFire(gen)
	})
}

// retryFire runs when the reconnect timer elapses.
func (m *Manager) retryFire(gen int) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.state = StateConnecting
	m.mu.Unlock()

	m.connect(gen)
}

// startPacerLocked launches the advance-pacing loop if not already running.
func (m *Manager) startPacerLocked() {
	if m.pacerStop != nil {
		return
	}
	stop := make(chan struct{})
	m.pacerStop = stop

	go func() {
		ticker := time.NewTicker(m.cfg.AdvanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// Re-check the flag under the lock on every tick so a
				// flipped flag silences a tick that was already scheduled.
				m.mu.Lock()
				ok := m.running && m.state == StateConnected && m.pacerStop == stop
				ch := m.ch
				m.mu.Unlock()
				if !ok {
					return
				}
				if ch != nil {
					if err := ch.Write(stepMessage); err != nil {
						log.Printf("stream: paced advance dropped: %v", err)
					}
				}
			}
		}
	}()
}

// stopPacerLocked stops the advance-pacing loop if it is running.
func (m *Manager) stopPacerLocked() {
	if m.pacerStop != nil {
		close(m.pacerStop)
		m.pacerStop = nil
	}
}

// teardownLocked cancels all timers and closes the current channel.
func (m *Manager) teardownLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.stopPacerLocked()
	if m.ch != nil {
		m.ch.Close()
		m.ch = nil
	}
}
