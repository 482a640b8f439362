// Package layout supplies the geometry the find engine needs from a
// renderer: element boxes, caret-at-point, scrolling.
//
// The engine depends only on the Layout interface. Flow is a deterministic
// monospace block/inline flow used for headless pages and tests.
package layout

import "golang.org/x/net/html"

// Rect is an axis-aligned box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether the point lies inside r.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Offset translates r by (dx, dy).
func (r Rect) Offset(dx, dy float64) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// Union returns the smallest rect covering r and o; empty inputs are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1, y1 := max(r.X+r.Width, o.X+o.Width), max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Layout is the rendering surface of one frame. Rects are relative to the
// frame's viewport (document position minus scroll).
type Layout interface {
	// Rect returns the border box of n. Hidden or detached nodes yield an
	// empty rect.
	Rect(n *html.Node) Rect
	// CaretAt maps a viewport point to a text node and character offset.
	CaretAt(x, y float64) (node *html.Node, offset int, ok bool)
	// Scroll returns the current scroll offset.
	Scroll() (x, y float64)
	// ScrollTo sets the scroll offset, clamped to the document.
	ScrollTo(x, y float64)
	// ScrollIntoView centers n in the viewport.
	ScrollIntoView(n *html.Node)
	// Viewport returns the viewport size at origin (0, 0).
	Viewport() Rect
}
