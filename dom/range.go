package dom

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ErrBadBoundary is returned when a range cannot be wrapped without
// splitting a non-text node.
var ErrBadBoundary = errors.New("dom: range boundaries are not wrappable")

// ErrDetached is returned when a range endpoint has no parent.
var ErrDetached = errors.New("dom: range endpoint is detached")

// RuneLen is the length of a text node in characters.
func RuneLen(n *html.Node) int {
	return utf8.RuneCountInString(n.Data)
}

// byteOffset converts a character offset within s to a byte offset.
func byteOffset(s string, runes int) int {
	if runes <= 0 {
		return 0
	}
	i := 0
	for j := range s {
		if i == runes {
			return j
		}
		i++
	}
	return len(s)
}

// SplitText splits text node n at character offset off. n keeps the head and
// the returned node, inserted right after n, holds the tail.
func SplitText(n *html.Node, off int) *html.Node {
	b := byteOffset(n.Data, off)
	tail := NewText(n.Data[b:])
	n.Data = n.Data[:b]
	if n.Parent != nil {
		n.Parent.InsertBefore(tail, n.NextSibling)
	}
	return tail
}

// Surround wraps the characters from (start, startOff) to (end, endOff) in
// wrapper. Both endpoints must be text nodes and either the same node or
// siblings under one parent with start first; any other shape returns
// ErrBadBoundary and leaves the tree untouched.
func Surround(start *html.Node, startOff int, end *html.Node, endOff int, wrapper *html.Node) error {
	if start == nil || end == nil || start.Type != html.TextNode || end.Type != html.TextNode {
		return ErrBadBoundary
	}
	if start.Parent == nil || end.Parent == nil {
		return ErrDetached
	}
	if start.Parent != end.Parent {
		return ErrBadBoundary
	}
	if start == end {
		if startOff < 0 || endOff > RuneLen(start) || startOff > endOff {
			return ErrBadBoundary
		}
	} else {
		ordered := false
		for s := start.NextSibling; s != nil; s = s.NextSibling {
			if s == end {
				ordered = true
				break
			}
		}
		if !ordered || startOff < 0 || startOff > RuneLen(start) || endOff < 0 || endOff > RuneLen(end) {
			return ErrBadBoundary
		}
	}

	parent := start.Parent
	if start == end {
		mid := SplitText(start, startOff)
		SplitText(mid, endOff-startOff)
		parent.InsertBefore(wrapper, mid)
		parent.RemoveChild(mid)
		wrapper.AppendChild(mid)
		return nil
	}

	first := SplitText(start, startOff)
	SplitText(end, endOff)
	parent.InsertBefore(wrapper, first)
	for c := first; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		wrapper.AppendChild(c)
		if c == end {
			break
		}
		c = next
	}
	return nil
}

// Unwrap replaces el with its children.
func Unwrap(el *html.Node) {
	parent := el.Parent
	if parent == nil {
		return
	}
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		parent.InsertBefore(c, el)
		c = next
	}
	parent.RemoveChild(el)
}

// Remove detaches n from its parent, if any.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Normalize merges adjacent text nodes and drops empty ones under n.
func Normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.TextNode:
			for next != nil && next.Type == html.TextNode {
				c.Data += next.Data
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
			if c.Data == "" {
				n.RemoveChild(c)
			}
		case html.ElementNode:
			Normalize(c)
		}
		c = next
	}
}
