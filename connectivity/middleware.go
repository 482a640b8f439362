package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"
)

// HandlerMiddleware wraps a Handler, adding cross-cutting behaviour
// (logging, timeout, recovery, metrics) without changing the signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging returns a middleware that logs every call with its duration.
func Logging(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			dur := time.Since(start)

			proc := ProcedureFromContext(ctx)
			if err != nil {
				logger.WarnContext(ctx, "procedure failed",
					"procedure", proc,
					"duration_ms", dur.Milliseconds(),
					"payload_bytes", len(payload),
					"error", err)
			} else {
				logger.DebugContext(ctx, "procedure ok",
					"procedure", proc,
					"duration_ms", dur.Milliseconds(),
					"payload_bytes", len(payload),
					"response_bytes", len(resp))
			}
			return resp, err
		}
	}
}

// Timeout returns a middleware that bounds a call to d. A handler that
// returns after the deadline with a context error is reported as
// *ErrCallTimeout.
func Timeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			resp, err := next(ctx, payload)
			if err != nil && errors.Is(err, context.DeadlineExceeded) {
				return nil, &ErrCallTimeout{Procedure: ProcedureFromContext(ctx)}
			}
			return resp, err
		}
	}
}

// Recovery returns a middleware that converts panics in downstream handlers
// into *ErrPanic.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "procedure panic recovered",
						"procedure", ProcedureFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()))
					resp = nil
					err = &ErrPanic{Procedure: ProcedureFromContext(ctx), Value: r}
				}
			}()
			return next(ctx, payload)
		}
	}
}

// CallRecorder receives one observation per procedure call.
type CallRecorder interface {
	RecordCall(ctx context.Context, procedure string, dur time.Duration, err error)
}

// Observe returns a middleware that reports every call to rec.
func Observe(rec CallRecorder) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			rec.RecordCall(ctx, ProcedureFromContext(ctx), time.Since(start), err)
			return resp, err
		}
	}
}
