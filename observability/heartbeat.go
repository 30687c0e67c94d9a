package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// RuntimeMetrics is a point-in-time snapshot of process health.
type RuntimeMetrics struct {
	GoroutinesCount int
	MemoryAllocMB   float64
	MemorySysMB     float64
	GCCount         uint32
}

// CollectRuntimeMetrics samples the Go runtime.
func CollectRuntimeMetrics() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	const mb = 1 << 20
	return RuntimeMetrics{
		GoroutinesCount: runtime.NumGoroutine(),
		MemoryAllocMB:   float64(ms.Alloc) / mb,
		MemorySysMB:     float64(ms.Sys) / mb,
		GCCount:         ms.NumGC,
	}
}

// HeartbeatWriter periodically records a liveness row in worker_heartbeats
// so an external monitor can tell a wedged process from a dead one.
type HeartbeatWriter struct {
	db       *sql.DB
	worker   string
	host     string
	pid      int
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatWriter creates a writer for the named worker. 15s is a
// reasonable interval.
func NewHeartbeatWriter(db *sql.DB, worker string, interval time.Duration) *HeartbeatWriter {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &HeartbeatWriter{
		db:       db,
		worker:   worker,
		host:     host,
		pid:      os.Getpid(),
		interval: interval,
	}
}

// Start writes one heartbeat immediately, then keeps beating until Stop is
// called or ctx is cancelled.
func (hw *HeartbeatWriter) Start(ctx context.Context) {
	ctx, hw.cancel = context.WithCancel(ctx)
	hw.wg.Add(1)
	go func() {
		defer hw.wg.Done()
		hw.beat()
		ticker := time.NewTicker(hw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hw.beat()
			}
		}
	}()
}

// Stop halts the beat loop and waits for it to finish.
func (hw *HeartbeatWriter) Stop() {
	if hw.cancel != nil {
		hw.cancel()
	}
	hw.wg.Wait()
}

func (hw *HeartbeatWriter) beat() {
	if err := hw.WriteHeartbeat(); err != nil {
		slog.Error("heartbeat write failed", "worker", hw.worker, "error", err)
	}
}

// WriteHeartbeat inserts a single heartbeat row with fresh runtime metrics.
func (hw *HeartbeatWriter) WriteHeartbeat() error {
	m := CollectRuntimeMetrics()
	_, err := hw.db.Exec(`
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
		) VALUES (?,?,?,?,?,?,?,?)`,
		hw.worker, hw.host, hw.pid, time.Now().Unix(),
		m.GoroutinesCount, m.MemoryAllocMB, m.MemorySysMB, m.GCCount)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// HeartbeatStatus is the newest heartbeat for a worker plus a staleness
// verdict, so callers never compare timestamps themselves.
type HeartbeatStatus struct {
	WorkerName      string         `json:"worker_name"`
	Hostname        string         `json:"hostname"`
	PID             int            `json:"pid"`
	Timestamp       time.Time      `json:"timestamp"`
	GoroutinesCount int            `json:"goroutines_count"`
	MemoryAllocMB   float64        `json:"memory_alloc_mb"`
	MemorySysMB     float64        `json:"memory_sys_mb"`
	GCCount         int            `json:"gc_count"`
	Alive           bool           `json:"alive"`
	StaleSince      *time.Duration `json:"stale_since,omitempty"`
}

// LatestHeartbeat fetches the newest heartbeat for worker and marks it alive
// when the last beat is within threshold (use around 3x the beat interval).
// Returns nil, nil when the worker has never beaten.
func LatestHeartbeat(ctx context.Context, db *sql.DB, worker string, threshold time.Duration) (*HeartbeatStatus, error) {
	var (
		hs HeartbeatStatus
		ts int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT worker_name, hostname, worker_pid, timestamp,
		       goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
		FROM worker_heartbeats
		WHERE worker_name = ?
		ORDER BY timestamp DESC LIMIT 1`, worker).
		Scan(&hs.WorkerName, &hs.Hostname, &hs.PID, &ts,
			&hs.GoroutinesCount, &hs.MemoryAllocMB, &hs.MemorySysMB, &hs.GCCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}

	hs.Timestamp = time.Unix(ts, 0)
	if lag := time.Since(hs.Timestamp); lag > threshold {
		stale := lag - threshold
		hs.StaleSince = &stale
	} else {
		hs.Alive = true
	}
	return &hs, nil
}
