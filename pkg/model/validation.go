package model

// Validate ensures the configuration can be submitted to the engine.
// Zero-valued optional fields are filled from the engine defaults rather
// than rejected, matching the engine's own merge behavior.
func (c *SimulationConfig) Validate() error {
	if c.GridWidth <= 0 || c.GridHeight <= 0 {
		return ErrInvalidGridSize
	}
	if c.NumVehicles < 0 {
		return ErrInvalidVehicles
	}
	if c.Algorithm != "" && !IsValidAlgorithm(c.Algorithm) {
		return ErrInvalidAlgorithm
	}
	if c.RoadConfig != "" && !IsValidRoadConfig(c.RoadConfig) {
		return ErrInvalidRoadConfig
	}
	if c.SpawnRate < 0 || c.SpawnRate > 1 {
		return ErrInvalidSpawnRate
	}
	if c.SimulationSpeed < 0 {
		return ErrInvalidSpeedFactor
	}
	return nil
}

// IsValidAlgorithm checks the algorithm id against the engine's catalog.
func IsValidAlgorithm(algorithm string) bool {
	switch algorithm {
	case AlgorithmStatic, AlgorithmAdaptive, AlgorithmCoordinated:
		return true
	default:
		return false
	}
}

// IsValidRoadConfig checks the road layout id against the engine's catalog.
func IsValidRoadConfig(layout string) bool {
	switch layout {
	case RoadCrossroad, RoadTInteraction, RoadGrid:
		return true
	default:
		return false
	}
}

// IsValidLightState reports whether the engine state string is one the
// renderer has a color for. Unknown states render gray rather than failing.
func IsValidLightState(state string) bool {
	switch state {
	case LightRed, LightYellow, LightGreen:
		return true
	default:
		return false
	}
}

// IsValidDirection reports whether the signal orientation is known.
func IsValidDirection(direction string) bool {
	return direction == DirectionHorizontal || direction == DirectionVertical
}
