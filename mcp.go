package pagefind

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagefind/find"
	"github.com/hazyhaar/pagefind/kit"
	"github.com/hazyhaar/pagefind/match"
)

// RegisterMCP registers the find tools on srv. MCP clients are trusted
// with the session: the service fills in its own secret.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	ep := s.endpoints()

	s.registerCommandTool(srv, ep, "find_start",
		"Search every frame of the page for a term and highlight the matches. Returns the result list with contexts.",
		find.ActionStartFind, true)
	s.registerCommandTool(srv, ep, "find_next", "Move to the next match, wrapping at the end.", find.ActionFindNext, false)
	s.registerCommandTool(srv, ep, "find_previous", "Move to the previous match, wrapping at the start.", find.ActionFindPrevious, false)
	s.registerCommandTool(srv, ep, "find_clear", "Remove every highlight of the search and reset it.", find.ActionClearFind, false)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "find_reveal",
		Description: "Make one match current and scroll it into view, opening collapsed sections that hide it.",
		InputSchema: inputSchema(map[string]any{
			"instanceId": instanceProp,
			"identifier": identifierProp,
		}, []string{"identifier"}),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*identifierArgs)
		return ep.command(ctx, &find.Command{
			Action:        find.ActionReveal,
			InstanceID:    r.InstanceID,
			SessionSecret: s.secret,
			Identifier:    &r.Identifier,
		})
	}, kit.DecodeArgs[identifierArgs]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "find_bounds",
		Description: "Viewport rectangle of one match, in top-level page coordinates.",
		InputSchema: inputSchema(map[string]any{
			"instanceId": instanceProp,
			"identifier": identifierProp,
		}, []string{"identifier"}),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*identifierArgs)
		return ep.bounds(ctx, &BoundsRequest{InstanceID: r.InstanceID, SessionSecret: s.secret, Identifier: r.Identifier})
	}, kit.DecodeArgs[identifierArgs]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "frame_graph",
		Description: "Tree of frames embedded in the page. Unreachable frames carry an error marker.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.graph, kit.DecodeArgs[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "frame_outline",
		Description: "Markdown rendering of every frame's document, in frame tree order.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.outline, kit.DecodeArgs[struct{}]())
}

var (
	instanceProp = map[string]any{
		"type":        "string",
		"description": "Find session id, [A-Za-z0-9_-]{1,50}. Default: \"default\".",
	}
	identifierProp = map[string]any{
		"type":        "object",
		"description": "A match identifier as returned in matchIdentifiers.",
		"properties": map[string]any{
			"index":       map[string]any{"type": "integer"},
			"coordinates": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
			"text":        map[string]any{"type": "string"},
		},
		"required": []string{"coordinates"},
	}
)

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type commandArgs struct {
	InstanceID    string `json:"instanceId"`
	SearchTerm    string `json:"searchTerm"`
	SearchMode    string `json:"searchMode"`
	ContextLength *int   `json:"contextLength"`
}

type identifierArgs struct {
	InstanceID string           `json:"instanceId"`
	Identifier match.Identifier `json:"identifier"`
}

func (s *Service) registerCommandTool(srv *mcp.Server, ep endpoints, name, desc, action string, search bool) {
	props := map[string]any{"instanceId": instanceProp}
	var required []string
	if search {
		props["searchTerm"] = map[string]any{"type": "string", "description": "Text or pattern to find."}
		props["searchMode"] = map[string]any{
			"type": "string",
			"enum": []string{"caseSensitive", "caseInsensitive", "caseSensitiveRegex", "caseInsensitiveRegex"},
		}
		props["contextLength"] = map[string]any{"type": "integer", "minimum": 0, "maximum": match.MaxContextLength}
		required = []string{"searchTerm"}
	}
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        name,
		Description: desc,
		InputSchema: inputSchema(props, required),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*commandArgs)
		cmd := &find.Command{Action: action, InstanceID: r.InstanceID, SessionSecret: s.secret}
		if search {
			cmd.SearchTerm, cmd.SearchMode, cmd.ContextLength = r.SearchTerm, r.SearchMode, r.ContextLength
		}
		return ep.command(ctx, cmd)
	}, kit.DecodeArgs[commandArgs]())
}
