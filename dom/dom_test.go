package dom

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			t.Fatalf("render: %v", err)
		}
	}
	return b.String()
}

func TestSelector(t *testing.T) {
	doc := parse(t, `<body>
		<details id="a"><summary>s</summary><p class="x y">one</p></details>
		<details open id="b"><p>two</p></details>
		<div aria-expanded="false" class="mw-collapsible collapsed">three</div>
		<section data-collapsed="true"><span>four</span></section>
	</body>`)

	tests := []struct {
		sel  string
		want []string // ids or text of matches
	}{
		{"details:not([open])", []string{"a"}},
		{"details", []string{"a", "b"}},
		{"#b", []string{"b"}},
		{"p.x.y", []string{"one"}},
		{"details p", []string{"one", "two"}},
		{`[aria-expanded="false"]`, []string{"three"}},
		{".mw-collapsible, [data-collapsed=true]", []string{"three", "four"}},
		{"::before", nil},
	}
	for _, tt := range tests {
		got := QueryAll(doc, tt.sel)
		if len(got) != len(tt.want) {
			t.Errorf("%q: got %d matches, want %d", tt.sel, len(got), len(tt.want))
			continue
		}
		for i, n := range got {
			id := Attr(n, "id")
			if id == "" {
				id = strings.TrimSpace(TextContent(n))
			}
			if id != tt.want[i] {
				t.Errorf("%q[%d] = %q, want %q", tt.sel, i, id, tt.want[i])
			}
		}
	}
}

func TestClassesAndStyle(t *testing.T) {
	n := NewElement("span", "class", "a b", "style", "display: none; color:red")
	AddClass(n, "c")
	AddClass(n, "a")
	RemoveClass(n, "b")
	if got := Attr(n, "class"); got != "a c" {
		t.Fatalf("class = %q", got)
	}
	if Style(n, "display") != "none" || Style(n, "color") != "red" {
		t.Fatalf("style parse: %q", Attr(n, "style"))
	}
	SetStyle(n, "display", "block")
	SetStyle(n, "background-color", "#FFFF00")
	if got := Attr(n, "style"); got != "display: block; color:red; background-color: #FFFF00" {
		t.Fatalf("style = %q", got)
	}
	SetStyle(n, "display", "")
	SetStyle(n, "color", "")
	SetStyle(n, "background-color", "")
	if HasAttr(n, "style") {
		t.Fatalf("empty style kept: %q", Attr(n, "style"))
	}
}

func TestSurround_SameNode(t *testing.T) {
	doc := parse(t, `<body><p>hello wörld</p></body>`)
	p := ByTag(doc, atom.P)[0]
	span := NewElement("span", "class", "h")
	if err := Surround(p.FirstChild, 6, p.FirstChild, 11, span); err != nil {
		t.Fatalf("Surround: %v", err)
	}
	if got := render(t, p); got != `hello <span class="h">wörld</span>` {
		t.Fatalf("got %s", got)
	}
	Unwrap(span)
	Normalize(p)
	if p.FirstChild != p.LastChild || p.FirstChild.Data != "hello wörld" {
		t.Fatalf("normalize failed: %s", render(t, p))
	}
}

func TestSurround_SiblingTextNodes(t *testing.T) {
	p := NewElement("p")
	a, b, c := NewText("abc"), NewText("def"), NewText("ghi")
	p.AppendChild(a)
	p.AppendChild(b)
	p.AppendChild(c)
	span := NewElement("span")
	if err := Surround(a, 1, c, 2, span); err != nil {
		t.Fatalf("Surround: %v", err)
	}
	if got := TextContent(span); got != "bcdefgh" {
		t.Fatalf("wrapped = %q", got)
	}
	if got := TextContent(p); got != "abcdefghi" {
		t.Fatalf("text changed: %q", got)
	}
}

func TestSurround_RejectsCrossElement(t *testing.T) {
	doc := parse(t, `<body><p>ab<b>cd</b>ef</p></body>`)
	p := ByTag(doc, atom.P)[0]
	before := render(t, p)
	err := Surround(p.FirstChild, 1, ByTag(doc, atom.B)[0].FirstChild, 1, NewElement("span"))
	if err != ErrBadBoundary {
		t.Fatalf("err = %v, want ErrBadBoundary", err)
	}
	if render(t, p) != before {
		t.Fatal("tree mutated on failure")
	}
}

func TestSurround_Detached(t *testing.T) {
	n := NewText("orphan")
	if err := Surround(n, 0, n, 2, NewElement("span")); err != ErrDetached {
		t.Fatalf("err = %v, want ErrDetached", err)
	}
}

func TestConnectedAndOrder(t *testing.T) {
	doc := parse(t, `<body><i>1</i><b>2</b></body>`)
	i, b := ByTag(doc, atom.I)[0], ByTag(doc, atom.B)[0]
	if !DocumentOrder(doc, i, b) || DocumentOrder(doc, b, i) {
		t.Fatal("document order wrong")
	}
	Remove(b)
	if Connected(b, doc) || !Connected(i, doc) {
		t.Fatal("connectivity wrong after remove")
	}
}

func TestVisibility(t *testing.T) {
	doc := parse(t, `<body>
		<p id="v">visible</p>
		<p id="h" hidden>hidden</p>
		<div style="display:none"><p id="dn">gone</p></div>
		<details><summary id="sum">title</summary><p id="closed">inner</p></details>
		<details open><p id="open">inner</p></details>
		<div class="accordion"><p id="acc" aria-hidden="true">panel</p></div>
		<p id="fs" style="font-size: 0px">tiny</p>
		<p id="fs1" style="font-size:1px">small</p>
		<div style="width:0;overflow:hidden"><p id="w0">clipped</p></div>
		<div style="height: 0.0em; overflow: clip"><p id="h0">clipped</p></div>
		<div style="height:0"><p id="spill">overflows</p></div>
	</body>`)
	byID := func(id string) *html.Node {
		for _, n := range QueryAll(doc, "#"+id) {
			return n
		}
		t.Fatalf("no #%s", id)
		return nil
	}

	for _, tt := range []struct {
		id     string
		hidden bool
	}{
		{"v", false}, {"h", true}, {"dn", true}, {"sum", false},
		{"closed", true}, {"open", false}, {"acc", true},
		{"fs", true}, {"fs1", false}, {"w0", true}, {"h0", true}, {"spill", false},
	} {
		if got := Hidden(byID(tt.id).FirstChild); got != tt.hidden {
			t.Errorf("Hidden(#%s) = %v, want %v", tt.id, got, tt.hidden)
		}
	}

	if r := Revealer(byID("closed")); r == nil || r.DataAtom != atom.Details {
		t.Errorf("closed details revealer = %v", r)
	}
	if r := Revealer(byID("acc")); r == nil || !HasClass(r, "accordion") {
		t.Errorf("accordion revealer = %v", r)
	}
	if r := Revealer(byID("dn")); r != nil {
		t.Errorf("display:none without disclosure has revealer %v", r)
	}
	if NonContent(ByTag(doc, atom.Body)[0]) {
		t.Error("body flagged as non-content")
	}
}

func TestZeroLength(t *testing.T) {
	for v, want := range map[string]bool{
		"0": true, "0px": true, "0.0em": true, "0%": true, "-0rem": true,
		"": false, "1px": false, "auto": false, "0.5em": false,
	} {
		if got := ZeroLength(v); got != want {
			t.Errorf("ZeroLength(%q) = %v, want %v", v, got, want)
		}
	}
}

func TestNext_Preorder(t *testing.T) {
	doc := parse(t, `<body><div><b>x</b>y</div><p>z</p></body>`)
	body := Body(doc)
	var got []string
	for n := body.FirstChild; n != nil; n = Next(n, body, false) {
		if n.Type == html.TextNode {
			got = append(got, n.Data)
		}
	}
	if strings.Join(got, "") != "xyz" {
		t.Fatalf("preorder text = %v", got)
	}
	div := ByTag(doc, atom.Div)[0]
	if n := Next(div, body, true); !IsElement(n, atom.P) {
		t.Fatalf("skipping children landed on %v", n)
	}
}
