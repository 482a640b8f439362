// CLAUDE:SUMMARY Wraps matches in highlight spans, marks the current one and restores the document on clear.
// Package highlight marks matches in a frame's document and tracks the
// disclosure state it changes to make them visible.
//
// A Highlighter belongs to one frame and one find instance; every method
// must run on the frame's loop.
package highlight

import (
	"log/slog"
	"slices"

	"github.com/hazyhaar/pagefind/dom"
	"github.com/hazyhaar/pagefind/layout"
	"github.com/hazyhaar/pagefind/match"
	"github.com/hazyhaar/pagefind/segment"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Highlight markup.
const (
	ClassHighlight = "iterm-find-highlight"
	ClassCurrent   = "iterm-find-highlight-current"
	ClassRemoved   = "iterm-find-removed"
	AttrInstance   = "data-iterm-id"

	colorRegular = "#FFFF00"
	colorCurrent = "#FF9632"
)

// Highlighter wraps matches of one instance in one document.
type Highlighter struct {
	doc        *html.Node
	instanceID string
	logger     *slog.Logger

	opened   []*html.Node
	restores []restore
}

// New creates a highlighter for doc.
func New(doc *html.Node, instanceID string, logger *slog.Logger) *Highlighter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Highlighter{
		doc:        doc,
		instanceID: instanceID,
		logger:     logger.With("component", "highlight", "instance", instanceID),
	}
}

func (h *Highlighter) span() *html.Node {
	el := dom.NewElement("span", "class", ClassHighlight, AttrInstance, h.instanceID)
	styleAs(el, colorRegular)
	return el
}

func styleAs(el *html.Node, bg string) {
	dom.SetStyle(el, "background-color", bg+" !important")
	dom.SetStyle(el, "color", "#000000 !important")
	dom.SetStyle(el, "border-radius", "2px !important")
}

// Apply wraps every match of ms in segs. Within a segment, matches are
// wrapped from the highest offset down so earlier offsets stay valid; the
// segment is rebuilt once afterwards. It returns the number of matches that
// got at least one wrapper.
func (h *Highlighter) Apply(segs []*segment.Segment, ms []*match.Match) int {
	bySeg := make(map[int][]*match.Match)
	for _, m := range ms {
		if m.Kind != match.Local || len(m.Coordinates) != 2 {
			continue
		}
		bySeg[m.Coordinates[0]] = append(bySeg[m.Coordinates[0]], m)
	}
	keys := make([]int, 0, len(bySeg))
	for k := range bySeg {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	done := 0
	for _, idx := range keys {
		if idx < 0 || idx >= len(segs) || segs[idx].Kind != segment.Text {
			h.logger.Debug("matches point at no text segment", "segment", idx)
			continue
		}
		s := segs[idx]
		group := bySeg[idx]
		slices.SortFunc(group, func(a, b *match.Match) int { return b.Start - a.Start })
		for _, m := range group {
			m.Revealers = s.Revealers(m.Start, m.End-m.Start)
			m.Highlights = h.wrap(s, m)
			if len(m.Highlights) > 0 {
				done++
			}
		}
		s.Rebuild(h.doc)
	}
	h.logger.Debug("highlighted", "matches", done, "of", len(ms))
	return done
}

// wrap surrounds one match, falling back to one wrapper per character when
// the range crosses element boundaries.
func (h *Highlighter) wrap(s *segment.Segment, m *match.Match) []*html.Node {
	n := m.End - m.Start
	start, so, end, eo, ok := s.Locate(m.Start, n)
	if !ok || !dom.Connected(start, h.doc) || !dom.Connected(end, h.doc) {
		h.logger.Debug("match nodes not found", "coordinates", m.Coordinates)
		return nil
	}
	el := h.span()
	if err := dom.Surround(start, so, end, eo, el); err == nil {
		return []*html.Node{el}
	}

	// Last character first, as in Apply.
	var els []*html.Node
	for i := n - 1; i >= 0; i-- {
		cs, cso, ce, ceo, ok := s.Locate(m.Start+i, 1)
		if !ok {
			continue
		}
		el := h.span()
		if err := dom.Surround(cs, cso, ce, ceo, el); err != nil {
			h.logger.Debug("character wrap failed", "coordinates", m.Coordinates, "char", i, "error", err)
			continue
		}
		els = append(els, el)
	}
	slices.Reverse(els)
	return els
}

// Live returns the wrappers of m still attached to the document.
func (h *Highlighter) Live(m *match.Match) []*html.Node {
	var out []*html.Node
	for _, el := range m.Highlights {
		if dom.Connected(el, h.doc) {
			out = append(out, el)
		}
	}
	return out
}

// SetCurrent styles m as the current match, reveals it and scrolls it into
// view. It reports false when m has no live wrapper.
func (h *Highlighter) SetCurrent(m *match.Match, lay layout.Layout) bool {
	live := h.Live(m)
	if len(live) == 0 {
		return false
	}
	h.EnsureVisible(m)
	for _, el := range live {
		dom.RemoveClass(el, ClassHighlight)
		dom.AddClass(el, ClassCurrent)
		dom.SetAttr(el, AttrInstance, h.instanceID)
		styleAs(el, colorCurrent)
	}
	if lay != nil {
		lay.ScrollIntoView(live[0])
	}
	return true
}

// Uncurrent restores the regular style on m's wrappers.
func (h *Highlighter) Uncurrent(m *match.Match) {
	for _, el := range m.Highlights {
		if dom.HasClass(el, ClassCurrent) {
			dom.RemoveClass(el, ClassCurrent)
			dom.AddClass(el, ClassHighlight)
			styleAs(el, colorRegular)
		}
	}
}

// UncurrentAll restores the regular style on every match of ms.
func (h *Highlighter) UncurrentAll(ms []*match.Match) {
	for _, m := range ms {
		h.Uncurrent(m)
	}
}

// Bounds returns the union of m's live wrapper boxes in viewport
// coordinates.
func (h *Highlighter) Bounds(m *match.Match, lay layout.Layout) layout.Rect {
	var r layout.Rect
	for _, el := range h.Live(m) {
		r = r.Union(lay.Rect(el))
	}
	return r
}

// Spans returns every wrapper of this instance in the document.
func (h *Highlighter) Spans() []*html.Node {
	var out []*html.Node
	dom.Walk(h.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Span &&
			dom.Attr(n, AttrInstance) == h.instanceID &&
			(dom.HasClass(n, ClassHighlight) || dom.HasClass(n, ClassCurrent)) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// SetRemoved hides or shows every wrapper without discarding it.
func (h *Highlighter) SetRemoved(removed bool) {
	for _, el := range h.Spans() {
		if removed {
			dom.AddClass(el, ClassRemoved)
		} else {
			dom.RemoveClass(el, ClassRemoved)
		}
	}
}

// Clear unwraps every wrapper of the instance, merges the split text back
// and undoes every reveal. It returns the number of wrappers removed.
func (h *Highlighter) Clear() int {
	spans := h.Spans()
	parents := make(map[*html.Node]bool)
	for _, el := range spans {
		p := el.Parent
		if p == nil {
			continue
		}
		dom.Unwrap(el)
		parents[p] = true
	}
	for p := range parents {
		dom.Normalize(p)
	}
	h.restore()
	return len(spans)
}
