// Package connectivity dispatches named procedures inside one frame.
//
// Every frame owns a Router. Cross-frame RPC resolves an EVAL_REQUEST to a
// procedure name and a JSON payload, and the Router runs the registered
// Handler through the frame's middleware chain:
//
//	router := connectivity.New(connectivity.WithMiddleware(
//		connectivity.Recovery(logger),
//		connectivity.Timeout(3*time.Second),
//	))
//	router.RegisterLocal("searchInFrame", engine.searchInFrame)
//	resp, err := router.Call(ctx, "searchInFrame", payload)
//
// Callers never need to know which frame registered the handler; the frame
// bus carries the call to the right one.
package connectivity

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a procedure: JSON bytes in, JSON bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Router maps procedure names to handlers. Safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	chain    HandlerMiddleware
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every registered handler with mws, outermost first.
func WithMiddleware(mws ...HandlerMiddleware) Option {
	return func(r *Router) { r.chain = Chain(mws...) }
}

// New creates a Router with no procedures.
func New(opts ...Option) *Router {
	r := &Router{
		handlers: make(map[string]Handler),
		chain:    Chain(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers h under name, replacing any previous handler.
func (r *Router) RegisterLocal(name string, h Handler) {
	wrapped := r.chain(h)
	r.mu.Lock()
	r.handlers[name] = wrapped
	r.mu.Unlock()
}

// Unregister removes a procedure. Unknown names are ignored.
func (r *Router) Unregister(name string) {
	r.mu.Lock()
	delete(r.handlers, name)
	r.mu.Unlock()
}

// Has reports whether name is registered.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	_, ok := r.handlers[name]
	r.mu.RUnlock()
	return ok
}

// Procedures returns the registered names, sorted.
func (r *Router) Procedures() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Call runs the named procedure. It returns *ErrProcedureNotFound when no
// handler is registered.
func (r *Router) Call(ctx context.Context, name string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	h := r.handlers[name]
	r.mu.RUnlock()

	if h == nil {
		r.logger.DebugContext(ctx, "procedure not found", "procedure", name)
		return nil, &ErrProcedureNotFound{Procedure: name}
	}
	return h(withProcedure(ctx, name), payload)
}

type procedureKey struct{}

func withProcedure(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, procedureKey{}, name)
}

// ProcedureFromContext returns the procedure name a handler was invoked as.
func ProcedureFromContext(ctx context.Context) string {
	s, _ := ctx.Value(procedureKey{}).(string)
	return s
}
