package interfaces

import (
	"context"

	"trafficview/pkg/model"
)

// ControlAPI is the engine's request/response surface. Each method maps to
// exactly one HTTP call; implementations never retry or cache, and failures
// carry the attempted operation so callers can surface a precise message.
type ControlAPI interface {
	// CreateSimulation creates a new simulation and returns its identifier.
	CreateSimulation(ctx context.Context, cfg model.SimulationConfig) (string, error)

	// State fetches the full current snapshot, including historical metrics.
	State(ctx context.Context, simID string) (*model.Snapshot, error)

	// Metrics fetches the point-in-time scalar aggregates only.
	Metrics(ctx context.Context, simID string) (*model.Metrics, error)

	// Step advances the simulation by n discrete steps and returns the
	// engine's step counter after the advance.
	Step(ctx context.Context, simID string, n int) (int, error)

	// UpdateConfig applies a partial configuration update server-side.
	UpdateConfig(ctx context.Context, simID string, patch map[string]any) error

	// ChangeAlgorithm switches the active control algorithm.
	ChangeAlgorithm(ctx context.Context, simID, algorithm string, cfg map[string]any) error

	// Algorithms lists the available control algorithms with metadata.
	Algorithms(ctx context.Context) ([]model.AlgorithmInfo, error)

	// Pause sets the engine's simulation speed to zero.
	Pause(ctx context.Context, simID string) error

	// Resume restores the engine's simulation speed.
	Resume(ctx context.Context, simID string, speed float64) error

	// DeleteSimulation removes the simulation server-side.
	DeleteSimulation(ctx context.Context, simID string) error

	// ListSimulations returns summaries of every active simulation.
	ListSimulations(ctx context.Context) ([]model.SimulationSummary, error)
}
