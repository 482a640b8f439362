package dom

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RevealSelectors lists the disclosure controls the engine may open
// programmatically to expose hidden matches.
const RevealSelectors = `details:not([open]), .mw-collapsible, .accordion, [aria-expanded="false"], [data-collapsed="true"]`

var revealSel = MustCompile(RevealSelectors)

// NonContent reports whether el never renders text (script, style, ...).
func NonContent(el *html.Node) bool {
	if el.Type != html.ElementNode {
		return false
	}
	switch el.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head, atom.Title:
		return true
	}
	return false
}

// HiddenSelf reports whether el itself is hidden by the hidden attribute,
// aria-hidden, or inline style. A zero font-size hides text. A zero width or
// height hides it only when overflow clips it.
func HiddenSelf(el *html.Node) bool {
	if el.Type != html.ElementNode {
		return false
	}
	if HasAttr(el, "hidden") || Attr(el, "aria-hidden") == "true" {
		return true
	}
	if Style(el, "display") == "none" {
		return true
	}
	switch Style(el, "visibility") {
	case "hidden", "collapse":
		return true
	}
	if ZeroLength(Style(el, "font-size")) {
		return true
	}
	if ZeroLength(Style(el, "width")) || ZeroLength(Style(el, "height")) {
		switch Style(el, "overflow") {
		case "hidden", "clip":
			return true
		}
	}
	return false
}

// ZeroLength reports whether v is a CSS length of zero, with or without unit.
func ZeroLength(v string) bool {
	if v == "" {
		return false
	}
	num := strings.TrimRightFunc(v, unicode.IsLetter)
	num = strings.TrimSuffix(num, "%")
	f, err := strconv.ParseFloat(num, 64)
	return err == nil && f == 0
}

// ClosedDetails returns the nearest closed <details> that hides n, i.e. n is
// inside it but not inside its <summary>.
func ClosedDetails(n *html.Node) *html.Node {
	inSummary := false
	for e := n; e != nil; e = e.Parent {
		if IsElement(e, atom.Summary) {
			inSummary = true
			continue
		}
		if IsElement(e, atom.Details) {
			if !HasAttr(e, "open") && !inSummary {
				return e
			}
			inSummary = false
		}
	}
	return nil
}

// Hidden reports whether n (any node type) is hidden by itself or an
// ancestor.
func Hidden(n *html.Node) bool {
	for e := n; e != nil; e = e.Parent {
		if HiddenSelf(e) {
			return true
		}
	}
	return ClosedDetails(n) != nil
}

// Revealer returns the nearest ancestor-or-self of n matching
// RevealSelectors, or nil.
func Revealer(n *html.Node) *html.Node {
	return Closest(n, revealSel)
}
