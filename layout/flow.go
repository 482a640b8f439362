// CLAUDE:SUMMARY Deterministic block-flow layout giving text ranges viewport rectangles without a browser.
package layout

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hazyhaar/pagefind/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// CellWidth and LineHeight size one character in Flow.
	CellWidth  = 8.0
	LineHeight = 16.0

	// DefaultIframeWidth and DefaultIframeHeight size an iframe box when
	// its width/height attributes are missing.
	DefaultIframeWidth  = 300.0
	DefaultIframeHeight = 150.0
)

var blockTags = map[atom.Atom]bool{
	atom.Html: true, atom.Body: true, atom.Div: true, atom.P: true,
	atom.Section: true, atom.Article: true, atom.Main: true, atom.Header: true,
	atom.Footer: true, atom.Nav: true, atom.Aside: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Table: true, atom.Tr: true,
	atom.Details: true, atom.Summary: true, atom.Blockquote: true, atom.Pre: true,
	atom.Form: true, atom.Fieldset: true, atom.Figure: true, atom.Dl: true,
	atom.Dt: true, atom.Dd: true, atom.Hr: true,
}

type textRun struct {
	node  *html.Node
	start int // first rune of the run within node
	n     int // runes in the run
	x, y  float64
}

type computed struct {
	boxes  map[*html.Node]Rect // document coordinates
	runs   []textRun
	height float64
}

// Flow lays out a document as monospace text: block elements start new
// lines, inline content wraps at the viewport width, iframes are inline
// boxes sized from their attributes, hidden content takes no space.
//
// Geometry is recomputed on every query, so DOM mutations are picked up
// without invalidation. Queries read the document and must run on the
// goroutine that owns it.
type Flow struct {
	doc    *html.Node
	width  float64
	height float64

	mu     sync.Mutex
	sx, sy float64
}

// NewFlow creates a Flow for doc with a viewport of width × height pixels.
func NewFlow(doc *html.Node, width, height float64) *Flow {
	return &Flow{doc: doc, width: width, height: height}
}

// Viewport implements Layout.
func (f *Flow) Viewport() Rect {
	return Rect{Width: f.width, Height: f.height}
}

// Scroll implements Layout.
func (f *Flow) Scroll() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sx, f.sy
}

// ScrollTo implements Layout. Flow content never overflows horizontally,
// so the x offset stays 0.
func (f *Flow) ScrollTo(_, y float64) {
	c := f.compute()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sy = clamp(y, 0, math.Max(0, c.height-f.height))
}

// Rect implements Layout.
func (f *Flow) Rect(n *html.Node) Rect {
	c := f.compute()
	r, ok := c.boxes[n]
	if !ok {
		return Rect{}
	}
	sx, sy := f.Scroll()
	return r.Offset(-sx, -sy)
}

// ScrollIntoView implements Layout.
func (f *Flow) ScrollIntoView(n *html.Node) {
	c := f.compute()
	r, ok := c.boxes[n]
	if !ok {
		return
	}
	f.ScrollTo(0, r.Y+r.Height/2-f.height/2)
}

// CaretAt implements Layout.
func (f *Flow) CaretAt(x, y float64) (*html.Node, int, bool) {
	c := f.compute()
	sx, sy := f.Scroll()
	dx, dy := x+sx, y+sy
	var best *textRun
	for i := range c.runs {
		run := &c.runs[i]
		if dy < run.y || dy >= run.y+LineHeight {
			continue
		}
		end := run.x + float64(run.n)*CellWidth
		if dx >= run.x && dx <= end {
			best = run
			break
		}
		// Nearest run on the line, preferring the one ending before x.
		if dx > end && (best == nil || end > best.x+float64(best.n)*CellWidth) {
			best = run
		}
	}
	if best == nil {
		return nil, 0, false
	}
	off := int(math.Round((dx - best.x) / CellWidth))
	off = int(clamp(float64(off), 0, float64(best.n)))
	return best.node, best.start + off, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

type flowState struct {
	c     *computed
	width float64
	x, y  float64
	lineH float64
}

func (s *flowState) newline() {
	if s.x == 0 {
		return
	}
	s.y += s.lineH
	s.x = 0
	s.lineH = LineHeight
}

func (f *Flow) compute() *computed {
	c := &computed{boxes: make(map[*html.Node]Rect)}
	s := &flowState{c: c, width: f.width, lineH: LineHeight}
	s.layout(f.doc, false)
	s.newline()
	c.height = s.y
	return c
}

// layout places n and returns its box. hidden marks the content of a closed
// <details>, which takes no space.
func (s *flowState) layout(n *html.Node, hidden bool) Rect {
	switch n.Type {
	case html.DocumentNode:
		var r Rect
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			r = r.Union(s.layout(ch, hidden))
		}
		s.c.boxes[n] = r
		return r
	case html.TextNode:
		return s.text(n, hidden)
	case html.ElementNode:
	default:
		return Rect{}
	}

	if dom.NonContent(n) || hidden || renderless(n) {
		return Rect{}
	}

	if positioned(n) {
		r := Rect{
			X:      stylePx(n, "left"),
			Y:      stylePx(n, "top"),
			Width:  float64(utf8.RuneCountInString(dom.TextContent(n))) * CellWidth,
			Height: LineHeight,
		}
		s.c.boxes[n] = r
		return r
	}

	if n.DataAtom == atom.Iframe {
		w, h := IframeSize(n)
		if s.x > 0 && s.x+w > s.width {
			s.newline()
		}
		r := Rect{X: s.x, Y: s.y, Width: w, Height: h}
		s.x += w
		s.lineH = math.Max(s.lineH, h)
		s.c.boxes[n] = r
		return r
	}
	if n.DataAtom == atom.Br {
		s.x = 1 // force the line break even on an empty line
		s.newline()
		return Rect{}
	}

	block := blockTags[n.DataAtom]
	if block {
		s.newline()
	}
	startY := s.y
	var r Rect
	closed := n.DataAtom == atom.Details && !dom.HasAttr(n, "open")
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		childHidden := closed && !dom.IsElement(ch, atom.Summary)
		r = r.Union(s.layout(ch, childHidden))
	}
	if block {
		s.newline()
		h := s.y - startY
		if h > 0 {
			r = Rect{X: 0, Y: startY, Width: s.width, Height: h}
		}
	}
	s.c.boxes[n] = r
	return r
}

// positioned reports out-of-flow elements (inline position absolute or
// fixed). They are placed at their left/top offsets in document
// coordinates and take no space in the flow.
func positioned(n *html.Node) bool {
	switch dom.Style(n, "position") {
	case "absolute", "fixed":
		return true
	}
	return false
}

func stylePx(n *html.Node, prop string) float64 {
	v := strings.TrimSuffix(strings.TrimSpace(dom.Style(n, prop)), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func renderless(n *html.Node) bool {
	return dom.HasAttr(n, "hidden") || dom.Style(n, "display") == "none"
}

func (s *flowState) text(n *html.Node, hidden bool) Rect {
	if hidden || (s.x == 0 && strings.TrimSpace(n.Data) == "") {
		return Rect{}
	}
	total := utf8.RuneCountInString(n.Data)
	if total == 0 {
		return Rect{}
	}
	var r Rect
	start := 0
	for start < total {
		if s.x > 0 && s.x+CellWidth > s.width {
			s.newline()
		}
		fit := int((s.width - s.x) / CellWidth)
		if fit < 1 {
			fit = 1
		}
		k := min(fit, total-start)
		run := textRun{node: n, start: start, n: k, x: s.x, y: s.y}
		s.c.runs = append(s.c.runs, run)
		r = r.Union(Rect{X: run.x, Y: run.y, Width: float64(k) * CellWidth, Height: LineHeight})
		s.x += float64(k) * CellWidth
		start += k
	}
	s.c.boxes[n] = r
	return r
}

// IframeSize returns the box of an iframe from its width/height attributes
// (plain numbers or "px" values), falling back to 300×150.
func IframeSize(n *html.Node) (float64, float64) {
	return attrPx(n, "width", DefaultIframeWidth), attrPx(n, "height", DefaultIframeHeight)
}

func attrPx(n *html.Node, key string, def float64) float64 {
	v := strings.TrimSuffix(strings.TrimSpace(dom.Attr(n, key)), "px")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}
