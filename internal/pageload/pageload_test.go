package pageload

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/pagefind/dom"
	"github.com/hazyhaar/pagefind/framebus"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFile_ResolvesIframes(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	write(t, outside, "secret.html", "<p>secret</p>")
	write(t, dir, "frames/a.html", `<p>a</p><iframe src="b.html"></iframe>`)
	write(t, dir, "frames/b.html", `<p>b</p>`)
	root := write(t, dir, "index.html", `<p>root</p>
		<iframe src="frames/a.html"></iframe>
		<iframe srcdoc="<p>inline</p>"></iframe>
		<iframe src="missing.html"></iframe>
		<iframe src="../`+filepath.Base(outside)+`/secret.html"></iframe>
		<iframe src="https://example.com/"></iframe>`)

	d, err := LoadFile(root, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Children) != 5 {
		t.Fatalf("children: got %d, want 5", len(d.Children))
	}
	a := d.Children[0]
	if a == nil || !strings.Contains(string(a.HTML), "<p>a</p>") {
		t.Fatalf("frame a: %+v", a)
	}
	if len(a.Children) != 1 || a.Children[0] == nil || string(a.Children[0].HTML) != "<p>b</p>" {
		t.Fatalf("frames/b.html resolves against frames/: %+v", a.Children)
	}
	if d.Children[1] == nil || string(d.Children[1].HTML) != "<p>inline</p>" {
		t.Fatalf("srcdoc frame: %+v", d.Children[1])
	}
	for i := 2; i < 5; i++ {
		if d.Children[i] != nil {
			t.Fatalf("child %d should be unloaded", i)
		}
	}
	if d.Count() != 4 {
		t.Fatalf("count: got %d, want 4", d.Count())
	}
}

func TestDocument_Page(t *testing.T) {
	d, err := FromHTML([]byte(`<p>root</p><iframe srcdoc="<p>one</p><iframe srcdoc='<p>two</p>'></iframe>"></iframe><iframe src="x.html"></iframe>`))
	if err != nil {
		t.Fatal(err)
	}
	page, err := d.Page(framebus.WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	page.Start(ctx)
	defer page.Close()

	if got := len(page.Frames()); got != 3 {
		t.Fatalf("frames: got %d, want 3", got)
	}
	g, err := page.Root().Graph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Children) != 2 {
		t.Fatalf("root children: got %d, want 2", len(g.Children))
	}
	if g.Children[1].Error != "unreachable" {
		t.Fatalf("unloaded iframe: %+v", g.Children[1])
	}
	if len(g.Children[0].Children) != 1 {
		t.Fatalf("nested frame missing: %+v", g.Children[0])
	}
	inner := page.Frames()[2]
	var text string
	inner.Exec(ctx, func() { text = dom.TextContent(dom.Body(inner.Doc())) })
	if text != "two" {
		t.Fatalf("inner text: %q", text)
	}
}

func TestFetcher_FetchTree(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<p>root</p><iframe src="/a"></iframe><iframe src="/gone"></iframe><iframe srcdoc="<p>s</p>"></iframe>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<p>a</p><iframe src="b"></iframe>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<p>b</p>`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(WithURLCheck(nil), WithLogger(quiet()))
	d, err := f.Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if d.Origin != srv.URL {
		t.Fatalf("origin: got %q, want %q", d.Origin, srv.URL)
	}
	if len(d.Children) != 3 {
		t.Fatalf("children: got %d", len(d.Children))
	}
	a := d.Children[0]
	if a == nil || len(a.Children) != 1 || a.Children[0] == nil || string(a.Children[0].HTML) != "<p>b</p>" {
		t.Fatalf("frame a: %+v", a)
	}
	if d.Children[1] != nil {
		t.Fatal("404 iframe should be unloaded")
	}
	if s := d.Children[2]; s == nil || s.Origin != srv.URL || s.URL != "about:srcdoc" {
		t.Fatalf("srcdoc frame: %+v", s)
	}
}

func TestFetcher_RootFailureAndGuard(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewFetcher(WithURLCheck(nil), WithLogger(quiet()))
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("404 root should fail")
	}
	guarded := NewFetcher(WithLogger(quiet()))
	if _, err := guarded.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("loopback URL should be refused by the default guard")
	}
}
