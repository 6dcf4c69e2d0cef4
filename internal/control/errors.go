package control

import (
	"errors"
	"fmt"
)

// Engine-level failures surfaced through the control surface.
var (
	ErrSimulationNotFound = errors.New("simulation not found")
	ErrEngineRejected     = errors.New("engine rejected request")
)

// Operation names carried by OpError so the orchestrator can tell the user
// exactly which control call failed.
const (
	OpCreate          = "create"
	OpState           = "state"
	OpMetrics         = "metrics"
	OpStep            = "step"
	OpUpdateConfig    = "update_config"
	OpChangeAlgorithm = "change_algorithm"
	OpAlgorithms      = "algorithms"
	OpPause           = "pause"
	OpResume          = "resume"
	OpDelete          = "delete"
	OpList            = "list"
)

// OpError wraps a control-surface failure with the attempted operation.
// Control calls are never retried by the client; callers decide whether to
// surface the failure or try again manually.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("control %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
