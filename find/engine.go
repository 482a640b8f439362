package find

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/pagefind/dom"
	"github.com/hazyhaar/pagefind/highlight"
	"github.com/hazyhaar/pagefind/layout"
	"github.com/hazyhaar/pagefind/match"
	"github.com/hazyhaar/pagefind/segment"
	"golang.org/x/net/html"
)

// engine is the per-frame state of one find instance. It is owned by the
// frame loop: every method runs inside Frame.Exec.
type engine struct {
	id     string
	agent  *Agent
	segs   []*segment.Segment
	local  []*match.Match
	hidden int
	hl     *highlight.Highlighter
	bubble []*html.Node
}

func newEngine(a *Agent, id string) *engine {
	return &engine{
		id:    id,
		agent: a,
		hl:    highlight.New(a.frame.Doc(), id, a.logger),
	}
}

// build rebuilds the segment list of the frame.
func (e *engine) build() {
	e.segs, e.hidden = segment.Build(e.agent.frame.Doc(), e.agent.frame.ChildFrameID)
}

// search replaces the local matches with those of term.
func (e *engine) search(term string, mode match.Mode, contextLen int) searchResult {
	e.build()
	e.local = nil
	res := searchResult{ChildSegments: segment.ChildSegments(e.segs), HiddenSkipped: e.hidden}
	if term == "" {
		return res
	}
	re, err := match.Compile(term, mode)
	if err != nil {
		e.agent.logger.Warn("pattern rejected, searching literally", "instance", e.id, "error", err)
	}
	e.local = match.Find(re, e.segs, e.agent.frame.ID(), contextLen)
	// The answer is encoded off the loop; hand out copies.
	res.Matches = make([]*match.Match, len(e.local))
	for k, m := range e.local {
		c := *m
		res.Matches[k] = &c
	}
	return res
}

func (e *engine) highlight() int {
	return e.hl.Apply(e.segs, e.local)
}

// clear unwraps every highlight and forgets the matches.
func (e *engine) clear() int {
	e.clearBubbles()
	n := e.hl.Clear()
	e.local, e.segs, e.hidden = nil, nil, 0
	return n
}

func (e *engine) at(i int) (*match.Match, bool) {
	if i < 0 || i >= len(e.local) {
		return nil, false
	}
	return e.local[i], true
}

// setCurrent makes local match i current. It reports false when the match
// has no live highlight.
func (e *engine) setCurrent(i int) bool {
	m, ok := e.at(i)
	if !ok {
		return false
	}
	e.hl.UncurrentAll(e.local)
	return e.hl.SetCurrent(m, e.agent.frame.Layout())
}

func (e *engine) clearCurrent() {
	e.hl.UncurrentAll(e.local)
}

// bounds returns the viewport rect of local match i.
func (e *engine) bounds(i int) (layout.Rect, bool) {
	m, ok := e.at(i)
	if !ok {
		return layout.Rect{}, false
	}
	r := e.hl.Bounds(m, e.agent.frame.Layout())
	return r, !r.Empty()
}

// delegation is a click that fell on an embedded frame.
type delegation struct {
	seg     int
	frameID string
	x, y    float64
}

// locate resolves a viewport point against the frame's segments. It returns
// local coordinates, or a delegation when the point is inside an iframe.
func (e *engine) locate(x, y float64) ([]int, *delegation) {
	if e.segs == nil {
		e.build()
	}
	lay := e.agent.frame.Layout()
	for _, s := range segment.FrameSegments(e.segs) {
		r := lay.Rect(s.Iframe)
		if !r.Contains(x, y) {
			continue
		}
		return nil, &delegation{seg: s.Index, frameID: s.FrameID, x: x - r.X, y: y - r.Y}
	}
	node, off, ok := lay.CaretAt(x, y)
	if !ok {
		return nil, nil
	}
	s, ok := segment.ByNode(e.segs, node)
	if !ok {
		return nil, nil
	}
	pos, _ := s.Position(node, off)
	return []int{s.Index, pos}, nil
}

const (
	bubbleClass       = "find-nav-bubble"
	bubbleHighlighted = "highlighted"
)

// addBubble places a navigation label above local match i.
func (e *engine) addBubble(i int, label string) bool {
	r, ok := e.bounds(i)
	if !ok {
		return false
	}
	body := dom.Body(e.agent.frame.Doc())
	if body == nil {
		return false
	}
	_, sy := e.agent.frame.Layout().Scroll()
	el := dom.NewElement("div", "class", bubbleClass, segment.BubbleAttr, "true", "data-label", label)
	dom.SetStyle(el, "position", "absolute")
	dom.SetStyle(el, "left", fmt.Sprintf("%gpx", r.X+r.Width/2-12))
	dom.SetStyle(el, "top", fmt.Sprintf("%gpx", r.Y-30+sy))
	dom.SetStyle(el, "z-index", "2147483647")
	el.AppendChild(dom.NewText(label))
	body.AppendChild(el)
	e.bubble = append(e.bubble, el)
	return true
}

// markPrefix highlights the bubbles whose label starts with prefix.
func (e *engine) markPrefix(prefix string) {
	for _, el := range e.bubble {
		if prefix != "" && strings.HasPrefix(dom.Attr(el, "data-label"), prefix) {
			dom.AddClass(el, bubbleHighlighted)
		} else {
			dom.RemoveClass(el, bubbleHighlighted)
		}
	}
}

func (e *engine) clearBubbles() {
	for _, el := range e.bubble {
		dom.Remove(el)
	}
	e.bubble = nil
}
