package pagefind

import (
	"context"

	"github.com/hazyhaar/pagefind/find"
	"github.com/hazyhaar/pagefind/horosafe"
	"github.com/hazyhaar/pagefind/kit"
	"github.com/hazyhaar/pagefind/match"
	"github.com/hazyhaar/pagefind/observability"
)

// CommandResult is the answer to a host command: the newest update of the
// instance once the command has run.
type CommandResult struct {
	OK     bool         `json:"ok"`
	Update *find.Update `json:"update,omitempty"`
}

// BoundsRequest asks for the viewport rect of one match.
type BoundsRequest struct {
	InstanceID    string           `json:"instanceId"`
	SessionSecret string           `json:"sessionSecret"`
	Identifier    match.Identifier `json:"identifier"`
}

// KeyRequest is one key press for the navigation shortcuts.
type KeyRequest struct {
	InstanceID    string `json:"instanceId"`
	SessionSecret string `json:"sessionSecret"`
	Key           string `json:"key"`
}

// ClickRequest is a pointer-down at a viewport point of a frame.
type ClickRequest struct {
	FrameID string  `json:"frameId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// EventsRequest pages through published updates.
type EventsRequest struct {
	InstanceID string `json:"instanceId"`
	After      int64  `json:"after"`
	Limit      int    `json:"limit"`
}

const maxEvents = 500

// endpoints is the transport-neutral surface shared by HTTP and MCP.
type endpoints struct {
	command kit.Endpoint
	bounds  kit.Endpoint
	key     kit.Endpoint
	click   kit.Endpoint
	graph   kit.Endpoint
	outline kit.Endpoint
	events  kit.Endpoint
}

func (s *Service) endpoints() endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(s.logger, name))(ep)
	}
	return endpoints{
		command: wrap("command", func(ctx context.Context, req any) (any, error) {
			cmd := req.(*find.Command)
			if err := s.Command(ctx, *cmd); err != nil {
				return nil, err
			}
			res := CommandResult{OK: true}
			id := horosafe.SanitizeIdentifier(cmd.InstanceID, find.MaxInstanceIDLen, find.DefaultInstance)
			if u, ok := s.recent.last(id); ok {
				res.Update = &u
			}
			return res, nil
		}),
		bounds: wrap("bounds", func(ctx context.Context, req any) (any, error) {
			r := req.(*BoundsRequest)
			return s.Bounds(ctx, r.InstanceID, r.SessionSecret, r.Identifier)
		}),
		key: wrap("key", func(ctx context.Context, req any) (any, error) {
			r := req.(*KeyRequest)
			consumed, err := s.Key(ctx, r.InstanceID, r.SessionSecret, r.Key)
			if err != nil {
				return nil, err
			}
			return map[string]bool{"consumed": consumed}, nil
		}),
		click: wrap("click", func(ctx context.Context, req any) (any, error) {
			r := req.(*ClickRequest)
			if r.FrameID == "" {
				r.FrameID = s.page.Root().ID()
			}
			if err := s.Click(ctx, r.FrameID, r.X, r.Y); err != nil {
				return nil, err
			}
			return map[string]bool{"ok": true}, nil
		}),
		graph: wrap("graph", func(ctx context.Context, _ any) (any, error) {
			return s.Graph(ctx)
		}),
		outline: wrap("outline", func(ctx context.Context, _ any) (any, error) {
			return s.Outline(ctx)
		}),
		events: wrap("events", func(ctx context.Context, req any) (any, error) {
			r := req.(*EventsRequest)
			limit := horosafe.ClampInt(r.Limit, 1, maxEvents)
			if r.Limit <= 0 {
				limit = 100
			}
			evs, err := s.Updates(ctx, r.InstanceID, r.After, limit)
			if err != nil {
				return nil, err
			}
			if evs == nil {
				evs = []observability.StoredUpdate{}
			}
			return evs, nil
		}),
	}
}
