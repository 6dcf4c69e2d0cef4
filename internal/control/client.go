package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trafficview/pkg/model"
)

// Client is the stateless request/response wrapper around the engine's
// control surface. One HTTP call per operation, no retries, no caching;
// every failure comes back as an *OpError naming the attempted operation.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a control client for the engine at baseURL
// (e.g. "http://localhost:8000"). A zero timeout disables the deadline.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// createResponse is the engine's reply to a create call.
type createResponse struct {
	SimulationID string `json:"simulation_id"`
	Message      string `json:"message"`
}

// stepResponse is the engine's reply to a step call.
type stepResponse struct {
	Message     string `json:"message"`
	CurrentStep int    `json:"current_step"`
}

// algorithmsResponse wraps the engine's algorithm catalog.
type algorithmsResponse struct {
	Algorithms []model.AlgorithmInfo `json:"algorithms"`
}

// listResponse wraps the engine's active-simulation listing.
type listResponse struct {
	TotalSimulations int                       `json:"total_simulations"`
	Simulations      []model.SimulationSummary `json:"simulations"`
}

// engineError captures the engine's in-band error convention: failed
// lookups come back as 200 responses with an "error" field set.
type engineError struct {
	Error string `json:"error"`
}

// CreateSimulation creates a new simulation from cfg and returns the
// engine-issued identifier.
func (c *Client) CreateSimulation(ctx context.Context, cfg model.SimulationConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", opErr(OpCreate, err)
	}

	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/api/simulation/create", cfg, &resp); err != nil {
		return "", opErr(OpCreate, err)
	}
	if resp.SimulationID == "" {
		return "", opErr(OpCreate, fmt.Errorf("%w: empty simulation id", ErrEngineRejected))
	}
	return resp.SimulationID, nil
}

// State fetches the full current snapshot for simID.
func (c *Client) State(ctx context.Context, simID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	path := fmt.Sprintf("/api/simulation/%s/state", url.PathEscape(simID))
	if err := c.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, opErr(OpState, err)
	}
	return &snap, nil
}

// Metrics fetches the point-in-time scalar aggregates for simID.
func (c *Client) Metrics(ctx context.Context, simID string) (*model.Metrics, error) {
	var m model.Metrics
	path := fmt.Sprintf("/api/simulation/%s/metrics", url.PathEscape(simID))
	if err := c.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, opErr(OpMetrics, err)
	}
	return &m, nil
}

// Step advances the simulation by n discrete steps and returns the engine's
// step counter after the advance.
func (c *Client) Step(ctx context.Context, simID string, n int) (int, error) {
	if n <= 0 {
		n = 1
	}
	var resp stepResponse
	path := fmt.Sprintf("/api/simulation/%s/step?steps=%d", url.PathEscape(simID), n)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return 0, opErr(OpStep, err)
	}
	return resp.CurrentStep, nil
}

// UpdateConfig applies a partial configuration update server-side. Only the
// keys present in patch are touched.
func (c *Client) UpdateConfig(ctx context.Context, simID string, patch map[string]any) error {
	path := fmt.Sprintf("/api/simulation/%s/config", url.PathEscape(simID))
	return opErr(OpUpdateConfig, c.do(ctx, http.MethodPost, path, patch, nil))
}

// ChangeAlgorithm switches the active control algorithm. The algorithm id
// travels as a query parameter and the algorithm parameters as the body,
// matching the engine's route signature.
func (c *Client) ChangeAlgorithm(ctx context.Context, simID, algorithm string, cfg map[string]any) error {
	if !model.IsValidAlgorithm(algorithm) {
		return opErr(OpChangeAlgorithm, model.ErrInvalidAlgorithm)
	}
	path := fmt.Sprintf("/api/simulation/%s/algorithm/change?algorithm=%s",
		url.PathEscape(simID), url.QueryEscape(algorithm))
	if cfg == nil {
		cfg = map[string]any{}
	}
	return opErr(OpChangeAlgorithm, c.do(ctx, http.MethodPost, path, cfg, nil))
}

// Algorithms lists the available control algorithms with metadata.
func (c *Client) Algorithms(ctx context.Context) ([]model.AlgorithmInfo, error) {
	var resp algorithmsResponse
	if err := c.do(ctx, http.MethodGet, "/api/algorithms", nil, &resp); err != nil {
		return nil, opErr(OpAlgorithms, err)
	}
	return resp.Algorithms, nil
}

// Pause sets the engine's simulation speed to zero.
func (c *Client) Pause(ctx context.Context, simID string) error {
	path := fmt.Sprintf("/api/simulation/%s/pause", url.PathEscape(simID))
	return opErr(OpPause, c.do(ctx, http.MethodPost, path, nil, nil))
}

// Resume restores the engine's simulation speed. speed <= 0 falls back to
// the engine default of 1.0.
func (c *Client) Resume(ctx context.Context, simID string, speed float64) error {
	if speed <= 0 {
		speed = 1.0
	}
	path := fmt.Sprintf("/api/simulation/%s/resume?speed=%s",
		url.PathEscape(simID), strconv.FormatFloat(speed, 'f', -1, 64))
	return opErr(OpResume, c.do(ctx, http.MethodPost, path, nil, nil))
}

// DeleteSimulation removes the simulation server-side.
func (c *Client) DeleteSimulation(ctx context.Context, simID string) error {
	path := fmt.Sprintf("/api/simulation/%s", url.PathEscape(simID))
	return opErr(OpDelete, c.do(ctx, http.MethodDelete, path, nil, nil))
}

// ListSimulations returns summaries of every active simulation.
func (c *Client) ListSimulations(ctx context.Context) ([]model.SimulationSummary, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/api/simulations", nil, &resp); err != nil {
		return nil, opErr(OpList, err)
	}
	return resp.Simulations, nil
}

// do issues one request and decodes the response into out (if non-nil).
// The engine reports lookup failures in-band with a 200 status and an
// "error" field, so the body is checked for that convention first.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrEngineRejected, resp.StatusCode)
	}

	var engineErr engineError
	if err := json.Unmarshal(data, &engineErr); err == nil && engineErr.Error != "" {
		if strings.Contains(strings.ToLower(engineErr.Error), "not found") {
			return ErrSimulationNotFound
		}
		return fmt.Errorf("%w: %s", ErrEngineRejected, engineErr.Error)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
