// Package observability stores what the find engine does in SQLite: host
// commands, published updates, procedure call timings and process
// heartbeats. It lives in its own database file, separate from anything
// the page loaders touch.
//
// Writes are batched and asynchronous where the caller is on a hot path. A
// full buffer drops datapoints rather than blocking a frame loop.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Metric names.
const (
	MetricProcedureDurationMs = "procedure_duration_ms"
	MetricCommandDurationMs   = "command_duration_ms"
	MetricMatchesTotal        = "matches_total"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string
}

// Metrics buffers datapoints and flushes them in batches. It implements
// connectivity.CallRecorder.
type Metrics struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []*Metric
	closed bool

	stop chan struct{}
	done chan struct{}
}

// NewMetrics starts the flush loop. Recommended: bufferSize=100,
// flushInterval=5s.
func NewMetrics(db *sql.DB, bufferSize int, flushInterval time.Duration) *Metrics {
	m := &Metrics{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Record queues a datapoint.
func (m *Metrics) Record(p *Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	m.buffer = append(m.buffer, p)
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// RecordCall records the duration of one frame procedure call.
func (m *Metrics) RecordCall(_ context.Context, procedure string, dur time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Record(&Metric{
		Name:   MetricProcedureDurationMs,
		Value:  float64(dur.Microseconds()) / 1000,
		Labels: map[string]string{"procedure": procedure, "status": status},
		Unit:   "milliseconds",
	})
}

// Query returns datapoints newest first. An empty name matches all; a zero
// since is unbounded.
func (m *Metrics) Query(ctx context.Context, name string, since time.Time, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	var args []any
	if name != "" {
		q += " AND metric_name = ?"
		args = append(args, name)
	}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.UnixMilli())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			p      Metric
			ts     int64
			labels sql.NullString
			unit   sql.NullString
		)
		if err := rows.Scan(&p.Name, &ts, &p.Value, &labels, &unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		p.Timestamp, p.Unit = time.UnixMilli(ts), unit.String
		if labels.Valid {
			json.Unmarshal([]byte(labels.String), &p.Labels)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Flush writes the buffer now.
func (m *Metrics) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushLocked()
}

// Close flushes the buffer and stops the loop.
func (m *Metrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	close(m.stop)
	<-m.done
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := runTx(ctx, m.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, p := range m.buffer {
			var labels sql.NullString
			if len(p.Labels) > 0 {
				if b, err := json.Marshal(p.Labels); err == nil {
					labels = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, p.Name, p.Timestamp.UnixMilli(), p.Value, labels, p.Unit); err != nil {
				return fmt.Errorf("insert %s: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("observability metrics: flush", "error", err, "points", len(m.buffer))
	}
	m.buffer = m.buffer[:0]
}
