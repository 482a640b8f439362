package pagefind

import (
	"context"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/hazyhaar/pagefind/framebus"
	"golang.org/x/net/html"
)

// FrameOutline is the markdown rendering of one frame's document.
type FrameOutline struct {
	FrameID  string `json:"frameId"`
	Depth    int    `json:"depth"`
	Markdown string `json:"markdown"`
	Error    string `json:"error,omitempty"`
}

func newConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// Outline renders every reachable frame as markdown, in frame tree order.
// Iframes appear as their own entries, not inline.
func (s *Service) Outline(ctx context.Context) ([]FrameOutline, error) {
	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	conv := newConverter()
	var out []FrameOutline

	type item struct {
		id    string
		depth int
		err   string
	}
	var items []item
	var visit func(n *framebus.GraphNode, depth int)
	visit = func(n *framebus.GraphNode, depth int) {
		items = append(items, item{id: n.FrameID, depth: depth, err: n.Error})
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(g, 0)

	for _, it := range items {
		o := FrameOutline{FrameID: it.id, Depth: it.depth, Error: it.err}
		if it.err != "" {
			out = append(out, o)
			continue
		}
		f := s.page.FrameByID(it.id)
		if f == nil {
			o.Error = "unknown frame"
			out = append(out, o)
			continue
		}
		var b strings.Builder
		if err := f.Exec(ctx, func() { html.Render(&b, f.Doc()) }); err != nil {
			o.Error = err.Error()
			out = append(out, o)
			continue
		}
		md, err := conv.ConvertString(b.String())
		if err != nil {
			o.Error = err.Error()
		}
		o.Markdown = strings.TrimSpace(md)
		out = append(out, o)
	}
	return out, nil
}
