// CLAUDE:SUMMARY Minimal CSS selector matcher: tag, .class, #id, [attr], [attr=val], :not(), descendant combinator, selector lists.
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Selector is a compiled selector list. Supported syntax:
//   - tag: "details", "iframe"
//   - .class (repeatable): ".mw-collapsible.collapsed"
//   - #id
//   - [attr], [attr=val], [attr="val"]
//   - :not(compound): "details:not([open])"
//   - descendant combinator (space) and selector lists (comma)
type Selector struct {
	alts [][]compound // each alternative is a chain of descendant steps
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrTest
	not     []compound
}

type attrTest struct {
	key    string
	val    string
	hasVal bool
}

// MustCompile compiles a selector list. It never fails: unknown syntax is
// matched literally and simply never matches.
func MustCompile(sel string) *Selector {
	s := &Selector{}
	for _, alt := range strings.Split(sel, ",") {
		parts := strings.Fields(alt)
		if len(parts) == 0 {
			continue
		}
		chain := make([]compound, 0, len(parts))
		for _, p := range parts {
			chain = append(chain, parseCompound(p))
		}
		s.alts = append(s.alts, chain)
	}
	return s
}

func parseCompound(sel string) compound {
	var c compound
	for sel != "" {
		switch {
		case strings.HasPrefix(sel, ":not("):
			end := strings.IndexByte(sel, ')')
			if end < 0 {
				end = len(sel) - 1
			}
			c.not = append(c.not, parseCompound(sel[5:end]))
			sel = sel[end+1:]
		case sel[0] == '[':
			end := strings.IndexByte(sel, ']')
			if end < 0 {
				end = len(sel)
			}
			body := sel[1:end]
			if k, v, ok := strings.Cut(body, "="); ok {
				c.attrs = append(c.attrs, attrTest{key: k, val: strings.Trim(v, `"'`), hasVal: true})
			} else {
				c.attrs = append(c.attrs, attrTest{key: body})
			}
			if end >= len(sel) {
				sel = ""
			} else {
				sel = sel[end+1:]
			}
		case sel[0] == '.' || sel[0] == '#':
			end := 1 + strings.IndexAny(sel[1:], ".#[:")
			if end == 0 {
				end = len(sel)
			}
			if sel[0] == '.' {
				c.classes = append(c.classes, sel[1:end])
			} else {
				c.id = sel[1:end]
			}
			sel = sel[end:]
		default:
			end := strings.IndexAny(sel, ".#[:")
			if end < 0 {
				end = len(sel)
			}
			if end == 0 {
				// Unsupported pseudo-class: make the compound unmatchable.
				c.tag = sel
				return c
			}
			c.tag = strings.ToLower(sel[:end])
			sel = sel[end:]
		}
	}
	return c
}

func (c compound) matches(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && Attr(n, "id") != c.id {
		return false
	}
	for _, cl := range c.classes {
		if !HasClass(n, cl) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := LookupAttr(n, a.key)
		if !ok || (a.hasVal && v != a.val) {
			return false
		}
	}
	for _, nc := range c.not {
		if nc.matches(n) {
			return false
		}
	}
	return true
}

// Match reports whether element n matches any alternative of the list.
func (s *Selector) Match(n *html.Node) bool {
	for _, chain := range s.alts {
		if matchChain(n, chain) {
			return true
		}
	}
	return false
}

func matchChain(n *html.Node, chain []compound) bool {
	last := len(chain) - 1
	if !chain[last].matches(n) {
		return false
	}
	i := last - 1
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if chain[i].matches(p) {
			i--
		}
	}
	return i < 0
}

// QueryAll returns every descendant of root (root included) matching s, in
// document order.
func (s *Selector) QueryAll(root *html.Node) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if s.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// QueryAll compiles sel and returns its matches under root.
func QueryAll(root *html.Node, sel string) []*html.Node {
	return MustCompile(sel).QueryAll(root)
}
