// Package sink delivers find updates to the host: JSON lines on a writer,
// webhook POSTs, or several of those at once.
package sink

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/hazyhaar/pagefind/find"
)

// Stdout writes one JSON object per update to an io.Writer.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

// Publish writes u.
func (s *Stdout) Publish(_ context.Context, u find.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(u)
}

// Router fans updates out to every sink. One failing sink does not block
// the others; the first error is returned.
type Router struct {
	sinks  []find.Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router. nil sinks are skipped.
func NewRouter(logger *slog.Logger, sinks ...find.Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{logger: logger}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Publish delivers u to every sink.
func (r *Router) Publish(ctx context.Context, u find.Update) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Publish(ctx, u); err != nil {
			r.logger.Warn("sink: publish failed", "action", u.Action, "instance", u.InstanceID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }
