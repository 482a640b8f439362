package dom

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// Ancestors returns n and its ancestors, innermost first.
func Ancestors(n *html.Node) []*html.Node {
	var out []*html.Node
	for e := n; e != nil; e = e.Parent {
		out = append(out, e)
	}
	return out
}

// Closest returns the nearest ancestor-or-self element matching s.
func Closest(n *html.Node, s *Selector) *html.Node {
	for e := n; e != nil; e = e.Parent {
		if e.Type == html.ElementNode && s.Match(e) {
			return e
		}
	}
	return nil
}

// Connected reports whether n is still attached under doc.
func Connected(n, doc *html.Node) bool {
	for e := n; e != nil; e = e.Parent {
		if e == doc {
			return true
		}
	}
	return false
}

// ByTag returns all elements with tag a under root, in document order.
func ByTag(root *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Body returns the <body> element of doc, or doc itself when absent.
func Body(doc *html.Node) *html.Node {
	if b := ByTag(doc, atom.Body); len(b) > 0 {
		return b[0]
	}
	return doc
}

// DocumentOrder reports whether a precedes b in a preorder walk of root.
func DocumentOrder(root, a, b *html.Node) bool {
	seenA := false
	done := false
	Walk(root, func(n *html.Node) bool {
		if done {
			return false
		}
		switch n {
		case a:
			seenA = true
			done = true
		case b:
			done = true
		}
		return true
	})
	return seenA
}

// Next returns the node after n in a preorder walk bounded by root. With
// skipChildren set, n's descendants are skipped. It returns nil at the end.
func Next(n, root *html.Node, skipChildren bool) *html.Node {
	if !skipChildren && n.FirstChild != nil {
		return n.FirstChild
	}
	for e := n; e != nil && e != root; e = e.Parent {
		if e.NextSibling != nil {
			return e.NextSibling
		}
	}
	return nil
}
