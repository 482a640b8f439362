package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/pagefind/find"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	s.Publish(context.Background(), find.Update{Action: find.ActionResultsUpdated, InstanceID: "a", TotalMatches: 2})
	s.Publish(context.Background(), find.Update{Action: find.ActionCurrentChanged, InstanceID: "a", CurrentMatch: 2})

	dec := json.NewDecoder(&buf)
	var got []find.Update
	for dec.More() {
		var u find.Update
		if err := dec.Decode(&u); err != nil {
			t.Fatal(err)
		}
		got = append(got, u)
	}
	if len(got) != 2 || got[0].TotalMatches != 2 || got[1].CurrentMatch != 2 {
		t.Fatalf("decoded: %+v", got)
	}
}

func TestRouter_FanOutKeepsGoing(t *testing.T) {
	boom := errors.New("boom")
	var n atomic.Int32
	count := find.SinkFunc(func(context.Context, find.Update) error { n.Add(1); return nil })
	fail := find.SinkFunc(func(context.Context, find.Update) error { return boom })

	r := NewRouter(quiet(), fail, nil, count, count)
	if r.Len() != 3 {
		t.Fatalf("len: got %d", r.Len())
	}
	if err := r.Publish(context.Background(), find.Update{}); !errors.Is(err, boom) {
		t.Fatalf("err: got %v", err)
	}
	if n.Load() != 2 {
		t.Fatalf("delivered: got %d, want 2", n.Load())
	}
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type %q", r.Header.Get("Content-Type"))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var u find.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil || u.InstanceID != "tab" {
			t.Errorf("body: %+v, %v", u, err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	if err := w.Publish(context.Background(), find.Update{InstanceID: "tab"}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: got %d, want 3", calls.Load())
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	if err := w.Publish(context.Background(), find.Update{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls: got %d, want 1", calls.Load())
	}
}

func TestSanitize(t *testing.T) {
	var got find.Update
	s := Sanitize(find.SinkFunc(func(_ context.Context, u find.Update) error { got = u; return nil }))

	in := find.Update{
		SearchTerm: "<b>needle</b>",
		Contexts:   []find.MatchContext{{ContextBefore: "<script>alert(1)</script>a < b", ContextAfter: "<img src=x onerror=y>tail"}},
		Selection:  &find.Selection{Label: "1", Text: "<i>x</i>", Action: find.SelectionCopy},
	}
	if err := s.Publish(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if got.SearchTerm != "needle" {
		t.Fatalf("term: %q", got.SearchTerm)
	}
	if c := got.Contexts[0]; c.ContextBefore != "a < b" || c.ContextAfter != "tail" {
		t.Fatalf("context: %+v", c)
	}
	if got.Selection.Text != "x" || got.Selection.Label != "1" {
		t.Fatalf("selection: %+v", got.Selection)
	}
	if in.Contexts[0].ContextAfter != "<img src=x onerror=y>tail" || in.Selection.Text != "<i>x</i>" {
		t.Fatal("input update was mutated")
	}
}
