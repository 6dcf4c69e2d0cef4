package session

import "errors"

var (
	ErrNoSimulation = errors.New("no active simulation")
	ErrStopped      = errors.New("session stopped")
)
