package highlight

import (
	"github.com/hazyhaar/pagefind/dom"
	"github.com/hazyhaar/pagefind/match"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type restoreKind int

const (
	restoreAttr restoreKind = iota
	restoreStyle
	restoreClass
)

// restore undoes one change made to force an element visible.
type restore struct {
	el   *html.Node
	kind restoreKind
	name string // attribute, style property or class
	old  string
	had  bool
}

// EnsureVisible opens closed <details> around m and forces its revealable
// and hidden ancestors visible. Every change is recorded for Clear.
func (h *Highlighter) EnsureVisible(m *match.Match) {
	live := h.Live(m)
	if len(live) == 0 {
		return
	}
	first := live[0]
	for _, a := range dom.Ancestors(first) {
		if dom.IsElement(a, atom.Details) && !dom.HasAttr(a, "open") {
			h.open(a)
		}
	}
	for _, r := range m.Revealers {
		h.forceVisible(r)
		for _, a := range dom.Ancestors(r) {
			if dom.HiddenSelf(a) {
				h.forceVisible(a)
			}
		}
	}
	for _, a := range dom.Ancestors(first) {
		if dom.HiddenSelf(a) {
			h.forceVisible(a)
		}
	}
}

func (h *Highlighter) open(details *html.Node) {
	dom.SetAttr(details, "open", "")
	h.opened = append(h.opened, details)
}

func (h *Highlighter) saveAttr(el *html.Node, name string) {
	old, had := dom.LookupAttr(el, name)
	h.restores = append(h.restores, restore{el: el, kind: restoreAttr, name: name, old: old, had: had})
}

func (h *Highlighter) setAttr(el *html.Node, name, val string) {
	h.saveAttr(el, name)
	dom.SetAttr(el, name, val)
}

func (h *Highlighter) setStyle(el *html.Node, prop, val string) {
	h.restores = append(h.restores, restore{el: el, kind: restoreStyle, name: prop, old: dom.Style(el, prop)})
	dom.SetStyle(el, prop, val)
}

func (h *Highlighter) forceVisible(el *html.Node) {
	if el.Type != html.ElementNode {
		return
	}
	if dom.IsElement(el, atom.Details) && !dom.HasAttr(el, "open") {
		h.open(el)
		return
	}
	if dom.HasAttr(el, "hidden") {
		h.saveAttr(el, "hidden")
		dom.RemoveAttr(el, "hidden")
	}
	if dom.Attr(el, "aria-hidden") == "true" {
		h.setAttr(el, "aria-hidden", "false")
	}
	if dom.Style(el, "display") == "none" {
		h.setStyle(el, "display", "block")
	}
	switch dom.Style(el, "visibility") {
	case "hidden", "collapse":
		h.setStyle(el, "visibility", "visible")
	}
	if dom.ZeroLength(dom.Style(el, "font-size")) {
		h.setStyle(el, "font-size", "inherit")
	}
	if dom.HiddenSelf(el) {
		// Only clipping by a zero box is left.
		h.setStyle(el, "overflow", "visible")
	}
	if dom.HasClass(el, "mw-collapsible") && dom.HasClass(el, "collapsed") {
		h.restores = append(h.restores, restore{el: el, kind: restoreClass, name: "collapsed"})
		dom.RemoveClass(el, "collapsed")
	}
	if dom.Attr(el, "aria-expanded") == "false" {
		h.setAttr(el, "aria-expanded", "true")
	}
	if dom.Attr(el, "data-collapsed") == "true" {
		h.setAttr(el, "data-collapsed", "false")
	}
}

// restore replays recorded changes newest first and closes auto-opened
// details.
func (h *Highlighter) restore() {
	for _, d := range h.opened {
		dom.RemoveAttr(d, "open")
	}
	h.opened = nil
	for i := len(h.restores) - 1; i >= 0; i-- {
		r := h.restores[i]
		switch r.kind {
		case restoreAttr:
			if r.had {
				dom.SetAttr(r.el, r.name, r.old)
			} else {
				dom.RemoveAttr(r.el, r.name)
			}
		case restoreStyle:
			dom.SetStyle(r.el, r.name, r.old)
		case restoreClass:
			dom.AddClass(r.el, r.name)
		}
	}
	h.restores = nil
}
