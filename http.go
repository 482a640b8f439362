package pagefind

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/pagefind/find"
	"github.com/hazyhaar/pagefind/horosafe"
	"github.com/hazyhaar/pagefind/kit"
	"github.com/hazyhaar/pagefind/match"
	"github.com/hazyhaar/pagefind/shield"
)

// SecretHeader carries the session secret on requests without a body.
const SecretHeader = "X-Session-Secret"

const maxBody = 64 << 10

// Handler returns the host HTTP API:
//
//	POST /command   find.Command           -> CommandResult
//	GET  /bounds    ?instanceId&index&coords=0,5&text  -> layout.Rect
//	POST /key       KeyRequest             -> {"consumed": bool}
//	POST /click     ClickRequest           -> {"ok": true}
//	GET  /graph                            -> framebus.GraphNode
//	GET  /outline                          -> []FrameOutline
//	GET  /events    ?instanceId&after&limit -> []StoredUpdate
//
// Routes without a secret in their body require SecretHeader.
func (s *Service) Handler() http.Handler {
	ep := s.endpoints()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.APIStack(s.limiter) {
		r.Use(mw)
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := kit.WithTransport(req.Context(), "http")
			ctx = kit.WithRequestID(ctx, middleware.GetReqID(req.Context()))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "frames": len(s.page.Frames())})
	})

	r.Post("/command", func(w http.ResponseWriter, req *http.Request) {
		var cmd find.Command
		if !decodeBody(w, req, &cmd) {
			return
		}
		serve(req.Context(), w, ep.command, &cmd)
	})
	r.Post("/key", func(w http.ResponseWriter, req *http.Request) {
		var k KeyRequest
		if !decodeBody(w, req, &k) {
			return
		}
		serve(req.Context(), w, ep.key, &k)
	})
	r.Get("/bounds", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		br := BoundsRequest{
			InstanceID:    q.Get("instanceId"),
			SessionSecret: req.Header.Get(SecretHeader),
			Identifier:    match.Identifier{Text: q.Get("text")},
		}
		var err error
		if br.Identifier.Index, err = strconv.Atoi(q.Get("index")); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("index must be an integer"))
			return
		}
		if br.Identifier.Coordinates, err = parseCoords(q.Get("coords")); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		serve(req.Context(), w, ep.bounds, &br)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post("/click", func(w http.ResponseWriter, req *http.Request) {
			var c ClickRequest
			if !decodeBody(w, req, &c) {
				return
			}
			serve(req.Context(), w, ep.click, &c)
		})
		r.Get("/graph", func(w http.ResponseWriter, req *http.Request) {
			serve(req.Context(), w, ep.graph, nil)
		})
		r.Get("/outline", func(w http.ResponseWriter, req *http.Request) {
			serve(req.Context(), w, ep.outline, nil)
		})
		r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			er := EventsRequest{InstanceID: q.Get("instanceId")}
			er.After, _ = strconv.ParseInt(q.Get("after"), 10, 64)
			er.Limit, _ = strconv.Atoi(q.Get("limit"))
			serve(req.Context(), w, ep.events, &er)
		})
	})
	return r
}

func (s *Service) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !horosafe.SecretEqual(s.secret, req.Header.Get(SecretHeader)) {
			writeError(w, http.StatusForbidden, find.ErrBadSecret)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func serve(ctx context.Context, w http.ResponseWriter, ep kit.Endpoint, req any) {
	resp, err := ep(ctx, req)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, find.ErrBadSecret):
		return http.StatusForbidden
	case errors.Is(err, find.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, find.ErrTooManyInstances):
		return http.StatusTooManyRequests
	case errors.Is(err, find.ErrNoMatch), errors.Is(err, find.ErrNoInstance):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func parseCoords(s string) ([]int, error) {
	if s == "" {
		return nil, errors.New("coords is required")
	}
	parts := strings.Split(s, ",")
	if len(parts) > find.MaxCoordinates {
		return nil, errors.New("too many coordinates")
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.New("coords must be comma-separated integers")
		}
		out[i] = v
	}
	return out, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
