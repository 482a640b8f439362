// Package dom holds the small set of DOM primitives the find engine needs on
// top of golang.org/x/net/html: attribute, class and inline-style access, a
// selector matcher, tree walking, and range operations (split, surround,
// unwrap, normalize).
//
// Every function operates on *html.Node trees as produced by html.Parse and
// never reads global state, so a frame can capture the set once and keep
// using it regardless of what the page does to its own document.
package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attr returns the value of attribute key, or "" when absent.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether attribute key is present.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// LookupAttr returns the value of key and whether it is present.
func LookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute key to val, adding it if absent.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute key.
func RemoveAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// Classes returns the element's class list.
func Classes(n *html.Node) []string {
	return strings.Fields(Attr(n, "class"))
}

// HasClass reports whether the element carries class c.
func HasClass(n *html.Node, c string) bool {
	for _, x := range Classes(n) {
		if x == c {
			return true
		}
	}
	return false
}

// AddClass appends c to the class list if missing.
func AddClass(n *html.Node, c string) {
	if HasClass(n, c) {
		return
	}
	cl := Classes(n)
	SetAttr(n, "class", strings.Join(append(cl, c), " "))
}

// RemoveClass drops c from the class list.
func RemoveClass(n *html.Node, c string) {
	cl := Classes(n)
	out := cl[:0]
	for _, x := range cl {
		if x != c {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(out, " "))
}

// NewElement creates a detached element with the given tag and attributes
// given as key, value pairs.
func NewElement(tag string, kv ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

// NewText creates a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// IsElement reports whether n is an element with tag a.
func IsElement(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a
}

// TextContent concatenates all descendant text.
func TextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
