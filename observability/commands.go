// CLAUDE:SUMMARY Batched SQLite log of host commands and their outcomes.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pagefind/idgen"
)

// Command statuses.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// CommandEntry is one host command and its outcome. The session secret is
// never recorded.
type CommandEntry struct {
	EntryID      string
	Timestamp    time.Time
	FrameID      string
	InstanceID   string
	Action       string
	SearchTerm   string
	Status       string
	ErrorMessage string
	DurationMs   int64
}

// NewCommandEntry fills id and timestamp.
func NewCommandEntry(frameID, instanceID, action string) *CommandEntry {
	return &CommandEntry{
		EntryID:    newEntryID(),
		Timestamp:  time.Now(),
		FrameID:    frameID,
		InstanceID: instanceID,
		Action:     action,
		Status:     StatusOK,
	}
}

var newEntryID = idgen.Prefixed("cmd_", idgen.NanoID(16))

// CommandLog writes command entries in batches from a background goroutine.
type CommandLog struct {
	db        *sql.DB
	ch        chan *CommandEntry
	batchSize int
	interval  time.Duration
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewCommandLog starts the batch writer. Recommended: batchSize=50,
// interval=2s.
func NewCommandLog(db *sql.DB, batchSize int, interval time.Duration) *CommandLog {
	l := &CommandLog{
		db:        db,
		ch:        make(chan *CommandEntry, batchSize*4),
		batchSize: batchSize,
		interval:  interval,
	}
	l.wg.Add(1)
	go l.loop()
	return l
}

// Log writes e synchronously.
func (l *CommandLog) Log(ctx context.Context, e *CommandEntry) error {
	return runTx(ctx, l.db, func(tx *sql.Tx) error { return insertCommand(ctx, tx, e) })
}

// LogAsync queues e. A full queue drops the entry.
func (l *CommandLog) LogAsync(e *CommandEntry) {
	select {
	case l.ch <- e:
	default:
		slog.Warn("command log queue full, dropping entry", "action", e.Action, "instance", e.InstanceID)
	}
}

// CommandFilter narrows Query. Zero fields match everything.
type CommandFilter struct {
	InstanceID string
	Action     string
	Status     string
	Since      time.Time
	Limit      int
}

// Query returns entries newest first.
func (l *CommandLog) Query(ctx context.Context, f CommandFilter) ([]*CommandEntry, error) {
	q := `SELECT entry_id, timestamp, frame_id, instance_id, action, search_term,
	             status, error_message, duration_ms
	      FROM find_commands WHERE 1=1`
	var args []any
	if f.InstanceID != "" {
		q += " AND instance_id = ?"
		args = append(args, f.InstanceID)
	}
	if f.Action != "" {
		q += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	q += " ORDER BY timestamp DESC, rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var out []*CommandEntry
	for rows.Next() {
		var (
			e        CommandEntry
			ts       int64
			term, em sql.NullString
			dur      sql.NullInt64
		)
		if err := rows.Scan(&e.EntryID, &ts, &e.FrameID, &e.InstanceID, &e.Action, &term,
			&e.Status, &em, &dur); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.SearchTerm, e.ErrorMessage, e.DurationMs = term.String, em.String, dur.Int64
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close drains the queue and stops the writer.
func (l *CommandLog) Close() error {
	l.closeOnce.Do(func() { close(l.ch) })
	l.wg.Wait()
	return nil
}

func (l *CommandLog) loop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	batch := make([]*CommandEntry, 0, l.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := runTx(ctx, l.db, func(tx *sql.Tx) error {
			for _, e := range batch {
				if err := insertCommand(ctx, tx, e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			slog.Error("command log flush", "error", err, "entries", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= l.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func insertCommand(ctx context.Context, tx *sql.Tx, e *CommandEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO find_commands (entry_id, timestamp, frame_id, instance_id, action,
		                           search_term, status, error_message, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp.UnixMilli(), e.FrameID, e.InstanceID, e.Action,
		nullString(e.SearchTerm), e.Status, nullString(e.ErrorMessage), e.DurationMs)
	if err != nil {
		return fmt.Errorf("insert command %s: %w", e.EntryID, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
