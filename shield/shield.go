// Package shield provides the HTTP hardening middleware of the host API:
// response headers that keep the JSON surface out of browsers and frames,
// and per-client rate limiting of the command routes.
//
//	rl := shield.NewRateLimiter(shield.Rule{Requests: 600, Window: time.Minute}, logger, "/health")
//	go rl.Run(ctx)
//	for _, mw := range shield.APIStack(rl) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// APIStack returns the middleware for a JSON API: security headers, then
// rate limiting when rl is non-nil.
func APIStack(rl *RateLimiter) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{SecurityHeaders(APIHeaders())}
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	return stack
}
