package interfaces

import "trafficview/pkg/model"

// SnapshotHandler receives each application snapshot delivered on the
// streaming channel. Control frames (ping/pong) never reach the handler.
type SnapshotHandler func(*model.Snapshot)

// StreamManager owns the lifetime of one streaming channel per active
// simulation identifier. Connectivity is observable, never thrown: channel
// failures surface only as state changes followed by automatic reconnects.
type StreamManager interface {
	// Open establishes the channel for simID, superseding any prior channel
	// owned by this manager. Dial failures schedule a retry instead of
	// returning an error.
	Open(simID string, handler SnapshotHandler)

	// Close tears the channel down and cancels every pending timer.
	// Idempotent.
	Close()

	// RequestAdvance sends one advance signal if connected, else no-op.
	RequestAdvance()

	// SetRunning starts the paced advance loop while connected (true) or
	// stops it immediately (false).
	SetRunning(running bool)

	// Connected reports whether the channel is currently established.
	Connected() bool
}
