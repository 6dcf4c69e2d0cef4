package model

import "errors"

// Validation errors for simulation configuration and snapshot fields.
var (
	ErrInvalidGridSize    = errors.New("grid dimensions must be positive")
	ErrInvalidVehicles    = errors.New("vehicle count cannot be negative")
	ErrInvalidAlgorithm   = errors.New("unknown control algorithm")
	ErrInvalidRoadConfig  = errors.New("unknown road layout")
	ErrInvalidSpawnRate   = errors.New("spawn rate must be within [0, 1]")
	ErrInvalidSpeedFactor = errors.New("simulation speed cannot be negative")
)
