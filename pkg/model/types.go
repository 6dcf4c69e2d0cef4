package model

// Traffic light states as emitted by the engine.
const (
	LightRed    = "RED"
	LightYellow = "YELLOW"
	LightGreen  = "GREEN"
)

// Traffic light orientations.
const (
	DirectionHorizontal = "horizontal"
	DirectionVertical   = "vertical"
)

// Control algorithms the engine knows about.
const (
	AlgorithmStatic      = "static"
	AlgorithmAdaptive    = "adaptive"
	AlgorithmCoordinated = "coordinated"
)

// Road layouts the engine can generate.
const (
	RoadCrossroad    = "crossroad"
	RoadTInteraction = "t_intersection"
	RoadGrid         = "grid"
)

// HistoryWindow is the trailing sample window the engine keeps per metric series.
const HistoryWindow = 100

// SimulationConfig is the configuration object accepted by the engine's
// create and update-config operations. Field names follow the engine's JSON
// contract exactly.
type SimulationConfig struct {
	GridWidth       int            `json:"grid_width" yaml:"grid_width"`
	GridHeight      int            `json:"grid_height" yaml:"grid_height"`
	NumVehicles     int            `json:"num_vehicles" yaml:"num_vehicles"`
	Algorithm       string         `json:"algorithm" yaml:"algorithm"`
	AlgorithmConfig map[string]any `json:"algorithm_config,omitempty" yaml:"algorithm_config,omitempty"`
	SpawnRate       float64        `json:"spawn_rate" yaml:"spawn_rate"`
	SimulationSpeed float64        `json:"simulation_speed" yaml:"simulation_speed"`
	RoadConfig      string         `json:"road_config" yaml:"road_config"`
}

// DefaultSimulationConfig mirrors the engine's own defaults so a zero-config
// viewer creates the same simulation the engine would.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		GridWidth:       50,
		GridHeight:      50,
		NumVehicles:     20,
		Algorithm:       AlgorithmStatic,
		SpawnRate:       0.1,
		SimulationSpeed: 1.0,
		RoadConfig:      RoadCrossroad,
	}
}

// Vehicle is one mobile entity inside a snapshot. Vehicles carry no stable
// identity across snapshots; the renderer treats every snapshot as a full
// replacement.
type Vehicle struct {
	ID             int     `json:"id"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Color          string  `json:"color"`
	Speed          float64 `json:"speed"`
	WaitingTime    float64 `json:"waiting_time"`
	CurrentSegment int     `json:"current_segment"`
}

// Waiting reports whether the vehicle is currently held at a signal.
func (v *Vehicle) Waiting() bool {
	return v.WaitingTime > 0
}

// TrafficLight is one signal inside a snapshot.
type TrafficLight struct {
	ID            int     `json:"id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	State         string  `json:"state"`
	QueueLength   int     `json:"queue_length"`
	Direction     string  `json:"direction"`
	GreenDuration int     `json:"green_duration"`
	MaxQueue      int     `json:"max_queue"`
	TotalPassed   int     `json:"total_passed"`
}

// Metrics holds the point-in-time scalar aggregates reported with every
// snapshot. Overwritten wholesale on each arrival.
type Metrics struct {
	TotalVehicles     int     `json:"total_vehicles"`
	AvgWaitingTime    float64 `json:"avg_waiting_time"`
	TotalDelay        float64 `json:"total_delay"`
	Throughput        int     `json:"throughput"`
	AvgSpeed          float64 `json:"avg_speed"`
	CompletedVehicles int     `json:"completed_vehicles"`
	SpawnedVehicles   int     `json:"spawned_vehicles"`
	CurrentStep       int     `json:"current_step"`
}

// HistoricalMetrics holds the engine's trailing metric windows, one sample
// per recorded step, bounded to HistoryWindow entries server-side.
type HistoricalMetrics struct {
	WaitingTimeHistory  []float64 `json:"waiting_time_history"`
	DelayHistory        []float64 `json:"delay_history"`
	ThroughputHistory   []float64 `json:"throughput_history"`
	SpeedHistory        []float64 `json:"speed_history"`
	VehicleCountHistory []float64 `json:"vehicle_count_history"`
}

// Snapshot is one complete, immutable description of simulation state at a
// given step. The client never mutates a snapshot, only replaces its held
// reference when a new one arrives.
type Snapshot struct {
	SimulationID      string            `json:"simulation_id"`
	Steps             int               `json:"steps"`
	Vehicles          []Vehicle         `json:"vehicles"`
	TrafficLights     []TrafficLight    `json:"traffic_lights"`
	Metrics           Metrics           `json:"metrics"`
	HistoricalMetrics HistoricalMetrics `json:"historical_metrics"`
	Config            SimulationConfig  `json:"config"`
	Timestamp         int               `json:"timestamp"`
}

// AlgorithmParameter describes one tunable of a control algorithm.
type AlgorithmParameter struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// AlgorithmInfo is the human-readable catalog entry for one control algorithm.
type AlgorithmInfo struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  []AlgorithmParameter `json:"parameters,omitempty"`
}

// SimulationSummary is one entry in the engine's active-simulation listing.
type SimulationSummary struct {
	ID      string         `json:"id"`
	Steps   int            `json:"steps"`
	Config  map[string]any `json:"config"`
	Metrics map[string]any `json:"metrics"`
}
