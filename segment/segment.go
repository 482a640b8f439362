// CLAUDE:SUMMARY Splits a frame document into text and iframe segments, tracking hidden and revealable text.
// Package segment decomposes a frame's visible content into an ordered list
// of addressable units: runs of text and embedded-frame boundaries.
//
// A text run is never interrupted by an iframe; it may span any number of
// inline and block elements. Offsets are in characters (runes) of the
// concatenated run text.
package segment

import (
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/pagefind/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind distinguishes text runs from embedded frames.
type Kind int

const (
	Text Kind = iota
	Frame
)

func (k Kind) String() string {
	if k == Frame {
		return "iframe"
	}
	return "text"
}

// BubbleAttr marks navigation overlays, which are never searchable content.
const BubbleAttr = "data-find-nav-bubble"

// Segment is one unit of a frame's content. Index is its position in the
// frame's own list.
type Segment struct {
	Kind  Kind
	Index int

	// Text segments.
	Container *html.Node
	Text      string

	nodes     []*html.Node
	starts    []int
	revealers []*html.Node
	runes     int

	// Frame segments. FrameID is empty until resolved against a graph.
	Iframe  *html.Node
	FrameID string
}

// Resolver maps an iframe element to the frame id discovered behind it.
type Resolver func(iframe *html.Node) string

// Build segments doc in document order. It returns the segments and the
// number of hidden text nodes that were skipped because nothing can reveal
// them. Whitespace-only runs produce no segment.
func Build(doc *html.Node, resolve Resolver) ([]*Segment, int) {
	root := dom.Body(doc)
	var (
		segs    []*Segment
		nodes   []*html.Node
		revs    []*html.Node
		skipped int
	)
	flush := func() {
		if len(nodes) == 0 {
			return
		}
		s := &Segment{Kind: Text}
		s.set(nodes, revs)
		if strings.TrimSpace(s.Text) != "" {
			s.Index = len(segs)
			segs = append(segs, s)
		}
		nodes, revs = nil, nil
	}

	for n := root.FirstChild; n != nil; {
		k, rev, skip := classify(n)
		switch k {
		case itemIframe:
			flush()
			s := &Segment{Kind: Frame, Index: len(segs), Iframe: n}
			if resolve != nil {
				s.FrameID = resolve(n)
			}
			segs = append(segs, s)
		case itemText:
			nodes = append(nodes, n)
			revs = append(revs, rev)
		case itemHidden:
			if strings.TrimSpace(n.Data) != "" {
				skipped++
			}
		}
		n = dom.Next(n, root, skip)
	}
	flush()
	return segs, skipped
}

type item int

const (
	itemNone item = iota
	itemText
	itemHidden
	itemIframe
)

// classify decides how the walk treats n. rev is the revealable ancestor of
// hidden text that is kept.
func classify(n *html.Node) (k item, rev *html.Node, skipChildren bool) {
	switch n.Type {
	case html.ElementNode:
		if n.DataAtom == atom.Iframe {
			return itemIframe, nil, true
		}
		if dom.NonContent(n) || dom.HasAttr(n, BubbleAttr) {
			return itemNone, nil, true
		}
		return itemNone, nil, false
	case html.TextNode:
		if n.Parent == nil {
			return itemNone, nil, false
		}
		if !dom.Hidden(n) {
			return itemText, nil, false
		}
		if rev := dom.Revealer(n.Parent); rev != nil {
			return itemText, rev, false
		}
		return itemHidden, nil, false
	}
	return itemNone, nil, false
}

func (s *Segment) set(nodes, revs []*html.Node) {
	s.nodes, s.revealers = nodes, revs
	s.starts = make([]int, len(nodes))
	var b strings.Builder
	off := 0
	for i, n := range nodes {
		s.starts[i] = off
		off += utf8.RuneCountInString(n.Data)
		b.WriteString(n.Data)
	}
	s.Text = b.String()
	s.runes = off
	s.Container = commonAncestor(nodes)
}

func commonAncestor(nodes []*html.Node) *html.Node {
	if len(nodes) == 0 {
		return nil
	}
	anc := nodes[0].Parent
	for _, n := range nodes[1:] {
		for anc != nil && !dom.Connected(n, anc) {
			anc = anc.Parent
		}
	}
	return anc
}

// Rebuild recollects the text nodes of s after the DOM under it changed
// shape (highlight wrappers split nodes). The run restarts at its first node
// and ends at the next iframe, as in Build. A detached first node empties
// the segment.
func (s *Segment) Rebuild(doc *html.Node) {
	if s.Kind != Text || len(s.nodes) == 0 {
		return
	}
	first := s.nodes[0]
	if !dom.Connected(first, doc) {
		s.set(nil, nil)
		return
	}
	root := dom.Body(doc)
	var nodes, revs []*html.Node
	for n := first; n != nil; {
		k, rev, skip := classify(n)
		if k == itemIframe {
			break
		}
		if k == itemText {
			nodes = append(nodes, n)
			revs = append(revs, rev)
		}
		n = dom.Next(n, root, skip)
	}
	s.set(nodes, revs)
}

// Len returns the run length in characters.
func (s *Segment) Len() int { return s.runes }

// Nodes returns the text nodes of the run in order.
func (s *Segment) Nodes() []*html.Node { return s.nodes }

// Locate maps the range [off, off+n) of the run to DOM boundary points. A
// start offset that falls on a node boundary resolves into the following
// node.
func (s *Segment) Locate(off, n int) (start *html.Node, startOff int, end *html.Node, endOff int, ok bool) {
	if off < 0 || n < 0 || off+n > s.runes {
		return nil, 0, nil, 0, false
	}
	target := off + n
	for i, node := range s.nodes {
		l := utf8.RuneCountInString(node.Data)
		begin := s.starts[i]
		if start == nil && begin+l > off {
			start, startOff = node, off-begin
		}
		if start != nil && begin+l >= target {
			return start, startOff, node, target - begin, true
		}
	}
	return nil, 0, nil, 0, false
}

// Position maps a caret in text node node to an offset of the run.
func (s *Segment) Position(node *html.Node, off int) (int, bool) {
	for i, n := range s.nodes {
		if n == node {
			return s.starts[i] + off, true
		}
	}
	return 0, false
}

// Revealers returns the distinct revealable ancestors of the text covering
// [off, off+n), in run order.
func (s *Segment) Revealers(off, n int) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]bool)
	for i, node := range s.nodes {
		begin := s.starts[i]
		end := begin + utf8.RuneCountInString(node.Data)
		if end <= off || begin >= off+n {
			continue
		}
		if r := s.revealers[i]; r != nil && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Slice returns characters [from, to) of the run, clamped to its bounds.
func (s *Segment) Slice(from, to int) string {
	from = max(0, from)
	to = min(s.runes, to)
	if from >= to {
		return ""
	}
	i, start, end := 0, len(s.Text), len(s.Text)
	for b := range s.Text {
		if i == from {
			start = b
		}
		if i == to {
			end = b
			break
		}
		i++
	}
	return s.Text[start:end]
}

// FrameSegments returns the embedded-frame segments in order.
func FrameSegments(segs []*Segment) []*Segment {
	var out []*Segment
	for _, s := range segs {
		if s.Kind == Frame {
			out = append(out, s)
		}
	}
	return out
}

// ChildSegments maps each resolved child frame id to its segment index.
func ChildSegments(segs []*Segment) map[string]int {
	out := make(map[string]int)
	for _, s := range segs {
		if s.Kind == Frame && s.FrameID != "" {
			out[s.FrameID] = s.Index
		}
	}
	return out
}

// ByNode returns the text segment holding text node n.
func ByNode(segs []*Segment, n *html.Node) (*Segment, bool) {
	for _, s := range segs {
		if s.Kind != Text {
			continue
		}
		if _, ok := s.Position(n, 0); ok {
			return s, true
		}
	}
	return nil, false
}
