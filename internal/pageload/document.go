// Package pageload turns a page and its embedded documents into a
// framebus.Page. Three acquisition paths share one Document tree: static
// files on disk, plain HTTP fetches, and a headless browser snapshot.
package pageload

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/hazyhaar/pagefind/dom"
	"github.com/hazyhaar/pagefind/framebus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxDepth bounds iframe recursion while loading.
const MaxDepth = 16

// MaxDocumentSize caps one fetched document.
const MaxDocumentSize = 10 << 20

// Document is one frame's HTML and the documents of its iframes.
type Document struct {
	URL    string
	Origin string
	HTML   []byte
	// Children holds one entry per <iframe> of HTML in document order. A
	// nil entry is an iframe whose document could not be loaded; it stays
	// in the page without a content window.
	Children []*Document
}

// Count returns the number of documents in the tree.
func (d *Document) Count() int {
	if d == nil {
		return 0
	}
	n := 1
	for _, c := range d.Children {
		n += c.Count()
	}
	return n
}

// Page parses every document and hosts each child frame in its iframe.
// opts apply to every frame; the origin of each frame is its document's.
func (d *Document) Page(opts ...framebus.Option) (*framebus.Page, error) {
	root, err := d.frame(opts)
	if err != nil {
		return nil, err
	}
	page := framebus.NewPage(root)
	if err := d.attach(page, root, opts); err != nil {
		return nil, err
	}
	return page, nil
}

func (d *Document) frame(opts []framebus.Option) (*framebus.Frame, error) {
	doc, err := html.Parse(bytes.NewReader(d.HTML))
	if err != nil {
		return nil, fmt.Errorf("pageload: parse %s: %w", d.URL, err)
	}
	return framebus.NewFrame(doc, append(append([]framebus.Option(nil), opts...), framebus.WithOrigin(d.Origin))...), nil
}

func (d *Document) attach(page *framebus.Page, parent *framebus.Frame, opts []framebus.Option) error {
	iframes := dom.ByTag(parent.Doc(), atom.Iframe)
	for i, c := range d.Children {
		if c == nil || i >= len(iframes) {
			continue
		}
		child, err := c.frame(opts)
		if err != nil {
			return err
		}
		page.Add(parent, iframes[i], child)
		if err := c.attach(page, child, opts); err != nil {
			return err
		}
	}
	return nil
}

// iframeRef is what an <iframe> element points at.
type iframeRef struct {
	src    string
	srcdoc string
	inline bool
}

// iframes lists the iframe references of raw, in document order.
func iframes(raw []byte) ([]iframeRef, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	var out []iframeRef
	for _, el := range dom.ByTag(doc, atom.Iframe) {
		if v, ok := dom.LookupAttr(el, "srcdoc"); ok {
			out = append(out, iframeRef{srcdoc: v, inline: true})
			continue
		}
		out = append(out, iframeRef{src: dom.Attr(el, "src")})
	}
	return out, nil
}

// originOf returns scheme://host of rawURL, or "" when it has none.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
