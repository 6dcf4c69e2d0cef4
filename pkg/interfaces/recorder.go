package interfaces

import (
	"context"

	"trafficview/pkg/model"
)

// FlightRecorder captures per-step metric samples on the viewer side for
// post-run inspection. Recording is best-effort: a failed write must never
// disturb snapshot delivery.
type FlightRecorder interface {
	// BeginRun opens a new recording run for a simulation and returns the
	// local run identifier.
	BeginRun(ctx context.Context, simID string, cfg model.SimulationConfig) (string, error)

	// RecordSample stores the metrics of one snapshot under a run.
	RecordSample(ctx context.Context, runID string, snap *model.Snapshot) error

	// Close flushes and releases the underlying store.
	Close() error
}
