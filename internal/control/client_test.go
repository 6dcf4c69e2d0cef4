package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trafficview/pkg/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestClient_CreateSimulation(t *testing.T) {
	var gotBody model.SimulationConfig
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/simulation/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"simulation_id": "sim_7",
			"message":       "Simulation created successfully",
		})
	})

	cfg := model.DefaultSimulationConfig()
	cfg.GridWidth = 80
	id, err := client.CreateSimulation(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "sim_7", id)
	assert.Equal(t, 80, gotBody.GridWidth)
	assert.Equal(t, model.AlgorithmStatic, gotBody.Algorithm)
}

func TestClient_CreateSimulation_InvalidConfig(t *testing.T) {
	client := NewClient("http://unused", time.Second)
	cfg := model.DefaultSimulationConfig()
	cfg.GridWidth = 0

	_, err := client.CreateSimulation(context.Background(), cfg)
	require.Error(t, err)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpCreate, opErr.Op)
	assert.ErrorIs(t, err, model.ErrInvalidGridSize)
}

func TestClient_State(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/simulation/sim_1/state", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"simulation_id": "sim_1",
			"steps":         9,
			"vehicles":      []any{map[string]any{"id": 1, "x": 5.0, "y": 6.0, "color": "#45B7D1", "speed": 2.0}},
			"config":        map[string]any{"grid_width": 50, "grid_height": 50},
		})
	})

	snap, err := client.State(context.Background(), "sim_1")
	require.NoError(t, err)
	assert.Equal(t, 9, snap.Steps)
	require.Len(t, snap.Vehicles, 1)
	assert.Equal(t, 5.0, snap.Vehicles[0].X)
}

func TestClient_State_NotFound(t *testing.T) {
	// The engine reports lookup failures in-band with a 200 status.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "Simulation not found"})
	})

	_, err := client.State(context.Background(), "gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSimulationNotFound)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpState, opErr.Op)
}

func TestClient_Step(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/simulation/sim_1/step", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("steps"))
		json.NewEncoder(w).Encode(map[string]any{"message": "Executed 5 steps", "current_step": 25})
	})

	step, err := client.Step(context.Background(), "sim_1", 5)
	require.NoError(t, err)
	assert.Equal(t, 25, step)
}

func TestClient_Step_DefaultsToOne(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("steps"))
		json.NewEncoder(w).Encode(map[string]any{"current_step": 1})
	})

	_, err := client.Step(context.Background(), "sim_1", 0)
	require.NoError(t, err)
}

func TestClient_ChangeAlgorithm(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/simulation/sim_1/algorithm/change", r.URL.Path)
		assert.Equal(t, "adaptive", r.URL.Query().Get("algorithm"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(40), body["base_green_time"])
		json.NewEncoder(w).Encode(map[string]any{"message": "Algorithm changed to adaptive"})
	})

	err := client.ChangeAlgorithm(context.Background(), "sim_1", "adaptive", map[string]any{"base_green_time": 40})
	require.NoError(t, err)
}

func TestClient_ChangeAlgorithm_Unknown(t *testing.T) {
	client := NewClient("http://unused", time.Second)
	err := client.ChangeAlgorithm(context.Background(), "sim_1", "psychic", nil)
	assert.ErrorIs(t, err, model.ErrInvalidAlgorithm)
}

func TestClient_Algorithms(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/algorithms", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"algorithms": []any{
				map[string]any{"id": "static", "name": "Static Algorithm", "description": "Fixed time cycles without adaptation"},
				map[string]any{"id": "adaptive", "name": "Adaptive Algorithm", "description": "Adjusts green time based on queue length"},
			},
		})
	})

	algos, err := client.Algorithms(context.Background())
	require.NoError(t, err)
	require.Len(t, algos, 2)
	assert.Equal(t, "static", algos[0].ID)
	assert.NotEmpty(t, algos[1].Description)
}

func TestClient_ListSimulations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/simulations", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"total_simulations": 1,
			"simulations":       []any{map[string]any{"id": "sim_0", "steps": 40}},
		})
	})

	sims, err := client.ListSimulations(context.Background())
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, "sim_0", sims[0].ID)
	assert.Equal(t, 40, sims[0].Steps)
}

func TestClient_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Metrics(context.Background(), "sim_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineRejected)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpMetrics, opErr.Op)
}

func TestClient_NoRetry(t *testing.T) {
	// One operation maps to exactly one request, even on failure.
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := client.State(context.Background(), "sim_1")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOpError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := opErr(OpStep, inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "step")
	assert.Nil(t, opErr(OpStep, nil))
}
