package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"trafficview/pkg/interfaces"
	"trafficview/pkg/model"
)

// mockControl implements interfaces.ControlAPI with canned responses.
type mockControl struct {
	mu          sync.Mutex
	createCount int
	createErr   error
	stepCount   int
	stepErr     error
	stateCount  int
	stateSnap   *model.Snapshot
	stateErr    error
	deleted     []string
	deleteErr   error
}

func (m *mockControl) CreateSimulation(ctx context.Context, cfg model.SimulationConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.createCount++
	return fmt.Sprintf("sim_%d", m.createCount-1), nil
}

func (m *mockControl) State(ctx context.Context, simID string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCount++
	if m.stateErr != nil {
		return nil, m.stateErr
	}
	if m.stateSnap != nil {
		return m.stateSnap, nil
	}
	cfg := model.DefaultSimulationConfig()
	return &model.Snapshot{SimulationID: simID, Steps: m.stateCount, Config: cfg}, nil
}

func (m *mockControl) Metrics(ctx context.Context, simID string) (*model.Metrics, error) {
	return &model.Metrics{}, nil
}

func (m *mockControl) Step(ctx context.Context, simID string, n int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stepErr != nil {
		return 0, m.stepErr
	}
	m.stepCount += n
	return m.stepCount, nil
}

func (m *mockControl) UpdateConfig(ctx context.Context, simID string, patch map[string]any) error {
	return nil
}

func (m *mockControl) ChangeAlgorithm(ctx context.Context, simID, algorithm string, cfg map[string]any) error {
	return nil
}

func (m *mockControl) Algorithms(ctx context.Context) ([]model.AlgorithmInfo, error) {
	return nil, nil
}

func (m *mockControl) Pause(ctx context.Context, simID string) error { return nil }

func (m *mockControl) Resume(ctx context.Context, simID string, speed float64) error { return nil }

func (m *mockControl) DeleteSimulation(ctx context.Context, simID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, simID)
	return m.deleteErr
}

func (m *mockControl) ListSimulations(ctx context.Context) ([]model.SimulationSummary, error) {
	return nil, nil
}

func (m *mockControl) steps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepCount
}

func (m *mockControl) deletedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// mockStream implements interfaces.StreamManager with an observable flag.
type mockStream struct {
	mu        sync.Mutex
	connected bool
	openIDs   []string
	handler   interfaces.SnapshotHandler
	closes    int
	advances  int
	running   bool
}

func (m *mockStream) Open(simID string, handler interfaces.SnapshotHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openIDs = append(m.openIDs, simID)
	m.handler = handler
}

func (m *mockStream) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.connected = false
}

func (m *mockStream) RequestAdvance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advances++
}

func (m *mockStream) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

func (m *mockStream) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockStream) setConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

func (m *mockStream) advanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advances
}

func (m *mockStream) openedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.openIDs))
	copy(out, m.openIDs)
	return out
}

func (m *mockStream) deliver(snap *model.Snapshot) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(snap)
	}
}

// mockRecorder implements interfaces.FlightRecorder.
type mockRecorder struct {
	mu       sync.Mutex
	beginErr error
	runs     []string
	samples  []string
}

func (m *mockRecorder) BeginRun(ctx context.Context, simID string, cfg model.SimulationConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return "", m.beginErr
	}
	runID := "run-" + simID
	m.runs = append(m.runs, runID)
	return runID, nil
}

func (m *mockRecorder) RecordSample(ctx context.Context, runID string, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, runID)
	return nil
}

func (m *mockRecorder) Close() error { return nil }

func (m *mockRecorder) sampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

func newTestOrchestrator(control *mockControl, stream *mockStream, recorder interfaces.FlightRecorder) *Orchestrator {
	return New(control, stream, recorder, Config{
		PollInterval:   20 * time.Millisecond,
		PollSteps:      1,
		RequestTimeout: time.Second,
	})
}

func TestOrchestrator_Start(t *testing.T) {
	control := &mockControl{}
	stream := &mockStream{}
	o := newTestOrchestrator(control, stream, nil)
	defer o.Stop()

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := o.SimulationID(); got != "sim_0" {
		t.Errorf("SimulationID() = %q, want sim_0", got)
	}
	if ids := stream.openedIDs(); len(ids) != 1 || ids[0] != "sim_0" {
		t.Errorf("stream opened for %v, want [sim_0]", ids)
	}
	if o.Snapshot() == nil {
		t.Error("view not seeded with an initial snapshot")
	}
	if o.Running() {
		t.Error("new session should start paused")
	}
}

func TestOrchestrator_StartFailurePropagates(t *testing.T) {
	control := &mockControl{createErr: errors.New("engine offline")}
	stream := &mockStream{}
	o := newTestOrchestrator(control, stream, nil)
	defer o.Stop()

	err := o.Start(context.Background(), model.DefaultSimulationConfig())
	if err == nil {
		t.Fatal("Start() should fail when simulation creation fails")
	}
	if o.SimulationID() != "" {
		t.Error("no identifier should be retained after a failed create")
	}
	if len(stream.openedIDs()) != 0 {
		t.Error("no channel should open without an identifier")
	}
}

func TestOrchestrator_SetRunningWithoutSimulation(t *testing.T) {
	o := newTestOrchestrator(&mockControl{}, &mockStream{}, nil)
	defer o.Stop()

	if err := o.SetRunning(true); !errors.Is(err, ErrNoSimulation) {
		t.Errorf("SetRunning() error = %v, want ErrNoSimulation", err)
	}
}

func TestOrchestrator_AdvanceRoutesByConnectivity(t *testing.T) {
	control := &mockControl{}
	stream := &mockStream{}
	o := newTestOrchestrator(control, stream, nil)
	defer o.Stop()

	if err := o.Advance(context.Background()); !errors.Is(err, ErrNoSimulation) {
		t.Fatalf("Advance() before Start error = %v, want ErrNoSimulation", err)
	}

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatal(err)
	}

	// Connected: the advance rides the streaming channel.
	stream.setConnected(true)
	if err := o.Advance(context.Background()); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if got := stream.advanceCount(); got != 1 {
		t.Errorf("stream advances = %d, want 1", got)
	}
	if got := control.steps(); got != 0 {
		t.Errorf("control steps while connected = %d, want 0", got)
	}

	// Disconnected: the advance falls back to a discrete step plus fetch.
	stream.setConnected(false)
	before := o.Snapshot().Steps
	if err := o.Advance(context.Background()); err != nil {
		t.Fatalf("Advance() fallback error = %v", err)
	}
	if got := control.steps(); got != 1 {
		t.Errorf("control steps while disconnected = %d, want 1", got)
	}
	if got := o.Snapshot().Steps; got == before {
		t.Error("fallback advance should refresh the snapshot")
	}
	if got := stream.advanceCount(); got != 1 {
		t.Errorf("stream advances after fallback = %d, want still 1", got)
	}
}

func TestOrchestrator_PollFallbackWhileRunning(t *testing.T) {
	control := &mockControl{}
	stream := &mockStream{} // never connected
	o := newTestOrchestrator(control, stream, nil)
	defer o.Stop()

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatal(err)
	}
	if err := o.SetRunning(true); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && control.steps() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := control.steps(); got < 3 {
		t.Fatalf("poll fallback advanced %d steps, want >= 3", got)
	}

	// Pausing halts the fallback.
	if err := o.SetRunning(false); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	at := control.steps()
	time.Sleep(100 * time.Millisecond)
	if got := control.steps(); got != at {
		t.Errorf("steps advanced while paused: %d -> %d", at, got)
	}
}

func TestOrchestrator_PollSkippedWhileConnected(t *testing.T) {
	control := &mockControl{}
	stream := &mockStream{}
	o := newTestOrchestrator(control, stream, nil)
	defer o.Stop()

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatal(err)
	}
	stream.setConnected(true)
	if err := o.SetRunning(true); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := control.steps(); got != 0 {
		t.Errorf("poll loop stepped %d times while the channel was connected", got)
	}
}

func TestOrchestrator_Restart(t *testing.T) {
	control := &mockControl{}
	stream := &mockStream{}
	o := newTestOrchestrator(control, stream, nil)
	defer o.Stop()

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatal(err)
	}
	if err := o.SetRunning(true); err != nil {
		t.Fatal(err)
	}

	if err := o.Restart(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	if got := o.SimulationID(); got != "sim_1" {
		t.Errorf("SimulationID() after restart = %q, want sim_1", got)
	}
	if o.Running() {
		t.Error("restart should clear the running flag")
	}
	if ids := control.deletedIDs(); len(ids) != 1 || ids[0] != "sim_0" {
		t.Errorf("deleted %v, want [sim_0]", ids)
	}
	if ids := stream.openedIDs(); len(ids) != 2 || ids[1] != "sim_1" {
		t.Errorf("stream opens = %v, want second open for sim_1", ids)
	}
}

func TestOrchestrator_RestartSurvivesDeleteFailure(t *testing.T) {
	control := &mockControl{deleteErr: errors.New("engine busy")}
	stream := &mockStream{}
	o := newTestOrchestrator(control, stream, nil)
	defer o.Stop()

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatal(err)
	}
	if err := o.Restart(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatalf("Restart() error = %v, want nil despite delete failure", err)
	}
	if got := o.SimulationID(); got != "sim_1" {
		t.Errorf("SimulationID() = %q, want sim_1", got)
	}
}

func TestOrchestrator_SnapshotFanOut(t *testing.T) {
	control := &mockControl{}
	stream := &mockStream{}
	recorder := &mockRecorder{}
	o := newTestOrchestrator(control, stream, recorder)
	defer o.Stop()

	var mu sync.Mutex
	var received []int
	o.Subscribe(func(snap *model.Snapshot) {
		mu.Lock()
		received = append(received, snap.Steps)
		mu.Unlock()
	})

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatal(err)
	}
	seeded := recorder.sampleCount()

	stream.deliver(&model.Snapshot{Steps: 10})
	stream.deliver(&model.Snapshot{Steps: 11})
	stream.deliver(nil) // ignored

	if got := o.Snapshot().Steps; got != 11 {
		t.Errorf("latest snapshot steps = %d, want 11 (last wins)", got)
	}
	mu.Lock()
	tail := append([]int(nil), received...)
	mu.Unlock()
	if len(tail) < 2 || tail[len(tail)-1] != 11 {
		t.Errorf("subscriber received %v, want trailing 11", tail)
	}
	if got := recorder.sampleCount(); got != seeded+2 {
		t.Errorf("recorded samples = %d, want %d", got, seeded+2)
	}
}

func TestOrchestrator_RecorderFailureIsBestEffort(t *testing.T) {
	control := &mockControl{}
	stream := &mockStream{}
	recorder := &mockRecorder{beginErr: errors.New("disk full")}
	o := newTestOrchestrator(control, stream, recorder)
	defer o.Stop()

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatalf("Start() error = %v, recording failures must not block the session", err)
	}

	stream.deliver(&model.Snapshot{Steps: 5})
	if got := o.Snapshot().Steps; got != 5 {
		t.Errorf("snapshot delivery disturbed by recorder failure: steps = %d", got)
	}
	if got := recorder.sampleCount(); got != 0 {
		t.Errorf("samples recorded without an open run: %d", got)
	}
}

func TestOrchestrator_StopIdempotent(t *testing.T) {
	control := &mockControl{}
	stream := &mockStream{}
	o := newTestOrchestrator(control, stream, nil)

	if err := o.Start(context.Background(), model.DefaultSimulationConfig()); err != nil {
		t.Fatal(err)
	}

	o.Stop()
	o.Stop()

	// Snapshots arriving after Stop are dropped.
	before := o.Snapshot()
	stream.deliver(&model.Snapshot{Steps: 99})
	if got := o.Snapshot(); got != before {
		t.Error("snapshot accepted after Stop")
	}
	if o.Running() {
		t.Error("running flag survived Stop")
	}
}
