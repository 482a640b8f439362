package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Heartbeat writes periodic liveness rows for a serving process.
type Heartbeat struct {
	db       *sql.DB
	name     string
	hostname string
	pid      int
	interval time.Duration
	frames   func() int
	done     chan struct{}
}

// NewHeartbeat creates a writer. frames reports the number of live frames;
// it may be nil.
func NewHeartbeat(db *sql.DB, name string, interval time.Duration, frames func() int) *Heartbeat {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Heartbeat{
		db:       db,
		name:     name,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		frames:   frames,
		done:     make(chan struct{}),
	}
}

// Run writes one heartbeat immediately, then one per interval until ctx
// is done.
func (h *Heartbeat) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		if err := h.Write(ctx); err != nil {
			slog.Error("heartbeat write failed", "error", err, "worker", h.name)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Done is closed when Run returns.
func (h *Heartbeat) Done() <-chan struct{} { return h.done }

// Write inserts one heartbeat with current runtime stats.
func (h *Heartbeat) Write(ctx context.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	frames := 0
	if h.frames != nil {
		frames = h.frames()
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count, frames_count
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		h.name, h.hostname, h.pid, time.Now().UnixMilli(),
		runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024, float64(mem.Sys)/1024/1024,
		mem.NumGC, frames)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// HeartbeatStatus is the latest heartbeat of a process.
type HeartbeatStatus struct {
	WorkerName string    `json:"worker_name"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	Timestamp  time.Time `json:"timestamp"`
	Goroutines int       `json:"goroutines"`
	Frames     int       `json:"frames"`
	Alive      bool      `json:"alive"`
}

// LatestHeartbeat returns the newest heartbeat of name, or nil when none
// was written. Alive is false once the beat is older than staleAfter.
func LatestHeartbeat(ctx context.Context, db *sql.DB, name string, staleAfter time.Duration) (*HeartbeatStatus, error) {
	var (
		hs     HeartbeatStatus
		ts     int64
		frames sql.NullInt64
	)
	err := db.QueryRowContext(ctx, `
		SELECT worker_name, hostname, worker_pid, timestamp, goroutines_count, frames_count
		FROM worker_heartbeats WHERE worker_name = ?
		ORDER BY timestamp DESC LIMIT 1`, name).
		Scan(&hs.WorkerName, &hs.Hostname, &hs.PID, &ts, &hs.Goroutines, &frames)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}
	hs.Timestamp = time.UnixMilli(ts)
	hs.Frames = int(frames.Int64)
	hs.Alive = time.Since(hs.Timestamp) <= staleAfter
	return &hs, nil
}

// Retention is how long each table keeps rows. Zero keeps forever.
type Retention struct {
	Commands   time.Duration `yaml:"commands"`
	Updates    time.Duration `yaml:"updates"`
	Metrics    time.Duration `yaml:"metrics"`
	Heartbeats time.Duration `yaml:"heartbeats"`
}

// Cleanup applies r to every table and returns the number of rows removed.
func Cleanup(ctx context.Context, db *sql.DB, r Retention) (int64, error) {
	var total int64
	for _, t := range []struct {
		table string
		keep  time.Duration
	}{
		{"find_commands", r.Commands},
		{"find_updates", r.Updates},
		{"metrics_timeseries", r.Metrics},
		{"worker_heartbeats", r.Heartbeats},
	} {
		if t.keep <= 0 {
			continue
		}
		res, err := db.ExecContext(ctx, "DELETE FROM "+t.table+" WHERE timestamp < ?",
			time.Now().Add(-t.keep).UnixMilli())
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", t.table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
