package record

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"trafficview/pkg/interfaces"
	"trafficview/pkg/model"
)

// Sample is one recorded metric row.
type Sample struct {
	RunID          string    `json:"run_id"`
	Step           int       `json:"step"`
	AvgWaitingTime float64   `json:"avg_waiting_time"`
	TotalDelay     float64   `json:"total_delay"`
	Throughput     int       `json:"throughput"`
	AvgSpeed       float64   `json:"avg_speed"`
	VehicleCount   int       `json:"vehicle_count"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Recorder captures per-step metric samples into a local SQLite store.
// All writes funnel through a single goroutine; SQLite tolerates concurrent
// reads but serialized writes keep WAL contention out of the snapshot path.
type Recorder struct {
	db       *sql.DB
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

var _ interfaces.FlightRecorder = (*Recorder)(nil)

// Open creates or opens the recorder store at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open recorder store: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &Recorder{
		db:       db,
		writeCh:  make(chan writeOp, 64),
		shutdown: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writeLoop()
	return r, nil
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()
	for {
		select {
		case op := <-r.writeCh:
			op.result <- op.fn(r.db)
		case <-r.shutdown:
			return
		}
	}
}

func (r *Recorder) executeWrite(ctx context.Context, fn func(*sql.DB) error) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRecorderClosed
	}
	r.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case r.writeCh <- writeOp{fn: fn, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.shutdown:
		return ErrRecorderClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BeginRun opens a new recording run and returns its local identifier.
func (r *Recorder) BeginRun(ctx context.Context, simID string, cfg model.SimulationConfig) (string, error) {
	runID := uuid.New().String()
	err := r.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO runs (id, simulation_id, algorithm, grid_width, grid_height, started_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, simID, cfg.Algorithm, cfg.GridWidth, cfg.GridHeight, time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	log.Printf("record: started run %s for simulation %s", runID, simID)
	return runID, nil
}

// RecordSample stores one snapshot's metrics under a run. Snapshots can
// repeat a step when the engine re-sends state, so the write is an upsert.
func (r *Recorder) RecordSample(ctx context.Context, runID string, snap *model.Snapshot) error {
	if snap == nil {
		return nil
	}
	return r.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT OR REPLACE INTO metric_samples
			 (run_id, step, avg_waiting_time, total_delay, throughput, avg_speed, vehicle_count, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, snap.Steps,
			snap.Metrics.AvgWaitingTime, snap.Metrics.TotalDelay,
			snap.Metrics.Throughput, snap.Metrics.AvgSpeed,
			snap.Metrics.TotalVehicles, time.Now().UTC(),
		)
		return err
	})
}

// RunSamples returns up to limit most recent samples of a run in step order.
func (r *Recorder) RunSamples(ctx context.Context, runID string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = model.HistoryWindow
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, step, avg_waiting_time, total_delay, throughput, avg_speed, vehicle_count, recorded_at
		 FROM (SELECT * FROM metric_samples WHERE run_id = ? ORDER BY step DESC LIMIT ?)
		 ORDER BY step ASC`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.RunID, &s.Step, &s.AvgWaitingTime, &s.TotalDelay,
			&s.Throughput, &s.AvgSpeed, &s.VehicleCount, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Close stops the writer and releases the store. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdown)
	r.wg.Wait()
	return r.db.Close()
}
