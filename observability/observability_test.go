package observability

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagefind/connectivity"
	"github.com/hazyhaar/pagefind/find"
)

var (
	_ connectivity.CallRecorder = (*Metrics)(nil)
	_ find.Sink                 = (*UpdateLog)(nil)
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesAllTables(t *testing.T) {
	db := setupObsDB(t)
	for _, table := range []string{"find_commands", "find_updates", "metrics_timeseries", "worker_heartbeats"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) {
		t.Fatal("nil is not busy")
	}
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("locked database should be busy")
	}
	if IsBusy(errors.New("no such table")) {
		t.Fatal("schema error is not busy")
	}
}

// --- Metrics ---

func TestMetrics_RecordCall(t *testing.T) {
	db := setupObsDB(t)
	m := NewMetrics(db, 100, time.Hour)
	defer m.Close()

	m.RecordCall(context.Background(), "find.search", 1500*time.Microsecond, nil)
	m.RecordCall(context.Background(), "find.bounds", time.Millisecond, errors.New("boom"))
	m.Flush()

	got, err := m.Query(context.Background(), MetricProcedureDurationMs, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("points: got %d, want 2", len(got))
	}
	byProc := map[string]*Metric{}
	for _, p := range got {
		byProc[p.Labels["procedure"]] = p
	}
	if p := byProc["find.search"]; p == nil || p.Value != 1.5 || p.Labels["status"] != "ok" {
		t.Fatalf("search point: %+v", p)
	}
	if p := byProc["find.bounds"]; p == nil || p.Labels["status"] != "error" {
		t.Fatalf("bounds point: %+v", p)
	}
}

func TestMetrics_BufferFlushesWhenFull(t *testing.T) {
	db := setupObsDB(t)
	m := NewMetrics(db, 2, time.Hour)
	defer m.Close()

	m.Record(&Metric{Name: MetricMatchesTotal, Value: 3, Unit: "count"})
	m.Record(&Metric{Name: MetricMatchesTotal, Value: 4, Unit: "count"})

	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 2 {
		t.Fatalf("flushed rows: got %d, want 2", n)
	}
}

func TestMetrics_CloseFlushesAndIgnoresLateRecords(t *testing.T) {
	db := setupObsDB(t)
	m := NewMetrics(db, 100, time.Hour)
	m.Record(&Metric{Name: "a", Value: 1})
	m.Close()
	m.Record(&Metric{Name: "b", Value: 2})
	m.Close()

	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 1 {
		t.Fatalf("rows: got %d, want 1", n)
	}
}

// --- CommandLog ---

func TestCommandLog_SyncAndQuery(t *testing.T) {
	db := setupObsDB(t)
	l := NewCommandLog(db, 50, time.Hour)
	defer l.Close()
	ctx := context.Background()

	ok := NewCommandEntry("root", "tab-1", find.ActionStartFind)
	ok.SearchTerm = "needle"
	ok.DurationMs = 12
	if err := l.Log(ctx, ok); err != nil {
		t.Fatal(err)
	}
	bad := NewCommandEntry("root", "tab-2", find.ActionFindNext)
	bad.Status, bad.ErrorMessage = StatusRejected, find.ErrBadSecret.Error()
	if err := l.Log(ctx, bad); err != nil {
		t.Fatal(err)
	}

	got, err := l.Query(ctx, CommandFilter{InstanceID: "tab-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SearchTerm != "needle" || got[0].DurationMs != 12 {
		t.Fatalf("tab-1 entries: %+v", got)
	}
	rejected, err := l.Query(ctx, CommandFilter{Status: StatusRejected})
	if err != nil {
		t.Fatal(err)
	}
	if len(rejected) != 1 || rejected[0].ErrorMessage != find.ErrBadSecret.Error() {
		t.Fatalf("rejected entries: %+v", rejected)
	}
	if len(ok.EntryID) != len("cmd_")+16 {
		t.Fatalf("entry id %q", ok.EntryID)
	}
}

func TestCommandLog_AsyncDrainsOnClose(t *testing.T) {
	db := setupObsDB(t)
	l := NewCommandLog(db, 50, time.Hour)
	for range 5 {
		l.LogAsync(NewCommandEntry("root", "tab", find.ActionFindNext))
	}
	l.Close()

	var n int
	db.QueryRow("SELECT COUNT(*) FROM find_commands").Scan(&n)
	if n != 5 {
		t.Fatalf("rows: got %d, want 5", n)
	}
}

// --- UpdateLog ---

func TestUpdateLog_PublishAndSince(t *testing.T) {
	db := setupObsDB(t)
	l := NewUpdateLog(db)
	ctx := context.Background()

	full := find.Update{
		Action: find.ActionResultsUpdated, InstanceID: "tab-1", SearchTerm: "x",
		TotalMatches: 2, CurrentMatch: 1, OpToken: "t1",
		Contexts: []find.MatchContext{{ContextBefore: "a", ContextAfter: "b"}, {}},
	}
	if err := l.Publish(ctx, full); err != nil {
		t.Fatal(err)
	}
	if err := l.Publish(ctx, find.Update{Action: find.ActionCurrentChanged, InstanceID: "tab-2", OpToken: "t2"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Publish(ctx, find.Update{Action: find.ActionCurrentChanged, InstanceID: "tab-1", CurrentMatch: 2, OpToken: "t1"}); err != nil {
		t.Fatal(err)
	}

	got, err := l.Since(ctx, "tab-1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("tab-1 updates: got %d", len(got))
	}
	if got[0].Update.Action != find.ActionResultsUpdated || len(got[0].Update.Contexts) != 2 {
		t.Fatalf("first update: %+v", got[0].Update)
	}
	if got[1].Update.CurrentMatch != 2 {
		t.Fatalf("second update: %+v", got[1].Update)
	}

	rest, err := l.Since(ctx, "", got[0].Seq, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 || rest[0].Update.InstanceID != "tab-2" {
		t.Fatalf("updates after %d: %+v", got[0].Seq, rest)
	}
}

// --- Heartbeat ---

func TestHeartbeat_WriteAndLatest(t *testing.T) {
	db := setupObsDB(t)
	h := NewHeartbeat(db, "pagefind", time.Hour, func() int { return 3 })
	if err := h.Write(context.Background()); err != nil {
		t.Fatal(err)
	}
	hs, err := LatestHeartbeat(context.Background(), db, "pagefind", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if hs == nil || !hs.Alive || hs.Frames != 3 || hs.Goroutines <= 0 {
		t.Fatalf("status: %+v", hs)
	}
	none, err := LatestHeartbeat(context.Background(), db, "other", time.Minute)
	if err != nil || none != nil {
		t.Fatalf("unknown worker: %+v, %v", none, err)
	}
}

func TestHeartbeat_RunStopsWithContext(t *testing.T) {
	db := setupObsDB(t)
	h := NewHeartbeat(db, "pagefind", time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM worker_heartbeats").Scan(&n)
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no heartbeat written")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

// --- Retention ---

func TestCleanup_Retention(t *testing.T) {
	db := setupObsDB(t)
	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	db.Exec(`INSERT INTO find_updates (timestamp, instance_id, action, op_token, total_matches, current_match, payload)
	         VALUES (?, 'a', 'currentChanged', 't', 0, 0, '{}')`, old)
	db.Exec(`INSERT INTO find_updates (timestamp, instance_id, action, op_token, total_matches, current_match, payload)
	         VALUES (?, 'a', 'currentChanged', 't', 0, 0, '{}')`, time.Now().UnixMilli())
	db.Exec(`INSERT INTO metrics_timeseries (metric_name, timestamp, value) VALUES ('m', ?, 1)`, old)

	n, err := Cleanup(context.Background(), db, Retention{Updates: 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted: got %d, want 1", n)
	}
	var metrics int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&metrics)
	if metrics != 1 {
		t.Fatal("zero retention must keep rows")
	}
}
