package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/pagefind/find"
)

// UpdateLog persists every update published by the find engine. It is a
// find.Sink.
type UpdateLog struct {
	db *sql.DB
}

// NewUpdateLog returns a sink writing into db.
func NewUpdateLog(db *sql.DB) *UpdateLog {
	return &UpdateLog{db: db}
}

// Publish stores u.
func (l *UpdateLog) Publish(ctx context.Context, u find.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	return runTx(ctx, l.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO find_updates (timestamp, instance_id, action, op_token, search_term,
			                          total_matches, current_match, payload)
			VALUES (?,?,?,?,?,?,?,?)`,
			time.Now().UnixMilli(), u.InstanceID, u.Action, u.OpToken, nullString(u.SearchTerm),
			u.TotalMatches, u.CurrentMatch, string(payload))
		if err != nil {
			return fmt.Errorf("insert update: %w", err)
		}
		return nil
	})
}

// StoredUpdate is an update with its log sequence number.
type StoredUpdate struct {
	Seq       int64       `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Update    find.Update `json:"update"`
}

// Since returns up to limit updates with a sequence number above after,
// oldest first. An empty instanceID matches every instance.
func (l *UpdateLog) Since(ctx context.Context, instanceID string, after int64, limit int) ([]StoredUpdate, error) {
	q := "SELECT update_id, timestamp, payload FROM find_updates WHERE update_id > ?"
	args := []any{after}
	if instanceID != "" {
		q += " AND instance_id = ?"
		args = append(args, instanceID)
	}
	q += " ORDER BY update_id ASC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	var out []StoredUpdate
	for rows.Next() {
		var (
			s       StoredUpdate
			ts      int64
			payload string
		)
		if err := rows.Scan(&s.Seq, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &s.Update); err != nil {
			return nil, fmt.Errorf("decode update %d: %w", s.Seq, err)
		}
		s.Timestamp = time.UnixMilli(ts)
		out = append(out, s)
	}
	return out, rows.Err()
}
