package find

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hazyhaar/pagefind/dom"
	"github.com/hazyhaar/pagefind/framebus"
	"github.com/hazyhaar/pagefind/highlight"
	"github.com/hazyhaar/pagefind/layout"
	"github.com/hazyhaar/pagefind/match"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) Publish(_ context.Context, u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.updates)
}

func (r *recorder) last(t *testing.T) Update {
	t.Helper()
	all := r.all()
	if len(all) == 0 {
		t.Fatal("no update published")
	}
	return all[len(all)-1]
}

type fixture struct {
	page   *framebus.Page
	frames []*framebus.Frame
	agents map[string]*Agent
	root   *Agent
	rec    *recorder
}

func newFrame(t *testing.T, src string) *framebus.Frame {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return framebus.NewFrame(doc,
		framebus.WithLogger(quiet()),
		framebus.WithConfig(framebus.Config{DiscoveryTimeout: 500 * time.Millisecond, EvalTimeout: time.Second}),
	)
}

// setup builds a page whose root hosts one child per entry of children, in
// iframe order, and installs agents everywhere.
func setup(t *testing.T, rootSrc string, children []string, opts ...Option) *fixture {
	t.Helper()
	root := newFrame(t, rootSrc)
	page := framebus.NewPage(root)
	f := &fixture{page: page, frames: []*framebus.Frame{root}, rec: &recorder{}}
	els := dom.ByTag(root.Doc(), atom.Iframe)
	for i, src := range children {
		child := newFrame(t, src)
		page.Add(root, els[i], child)
		f.frames = append(f.frames, child)
	}
	opts = append([]Option{WithLogger(quiet()), WithSink(f.rec)}, opts...)
	f.agents = Install(page, testSecret, opts...)
	f.root = f.agents[root.ID()]

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		for _, a := range f.agents {
			a.Close()
		}
		cancel()
		page.Close()
	})
	page.Start(ctx)
	return f
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (f *fixture) do(t *testing.T, action string, mods ...func(*Command)) {
	t.Helper()
	cmd := Command{Action: action, InstanceID: "t", SessionSecret: testSecret}
	for _, m := range mods {
		m(&cmd)
	}
	if err := f.root.HandleCommand(testCtx(t), cmd); err != nil {
		t.Fatalf("%s: %v", action, err)
	}
}

func (f *fixture) find(t *testing.T, term string) Update {
	t.Helper()
	f.do(t, ActionStartFind, func(c *Command) { c.SearchTerm = term })
	return f.rec.last(t)
}

func count(t *testing.T, fr *framebus.Frame, sel string) int {
	t.Helper()
	var n int
	if err := fr.Exec(testCtx(t), func() { n = len(dom.QueryAll(fr.Doc(), sel)) }); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	return n
}

func coords(u Update) [][]int {
	out := make([][]int, len(u.MatchIdentifiers))
	for i, id := range u.MatchIdentifiers {
		out[i] = id.Coordinates
	}
	return out
}

func sameCoords(a, b [][]int) bool {
	return slices.EqualFunc(a, b, func(x, y []int) bool { return slices.Equal(x, y) })
}

var (
	selHighlight = "." + highlight.ClassHighlight
	selCurrent   = "." + highlight.ClassCurrent
)

func TestScenarioA_NavigationWraps(t *testing.T) {
	f := setup(t, `<body><p>xxxxxneedle xxxxxxx needle</p><iframe></iframe><p>needle</p></body>`,
		[]string{`<body><p>nothing here</p></body>`})

	u := f.find(t, "needle")
	if u.Action != ActionResultsUpdated || u.TotalMatches != 3 || u.CurrentMatch != 1 || u.OpToken == "" {
		t.Fatalf("startFind update = %+v", u)
	}
	if want := [][]int{{0, 5}, {0, 20}, {2, 0}}; !sameCoords(coords(u), want) {
		t.Fatalf("coordinates = %v, want %v", coords(u), want)
	}
	if len(u.Contexts) != 3 || u.Contexts[0].ContextBefore != "xxxxx" {
		t.Fatalf("contexts = %+v", u.Contexts)
	}
	if n := count(t, f.frames[0], selCurrent); n != 1 {
		t.Fatalf("current spans = %d", n)
	}
	if n := count(t, f.frames[0], selHighlight); n != 2 {
		t.Fatalf("regular spans = %d", n)
	}

	for _, step := range []struct {
		action string
		want   int
	}{
		{ActionFindNext, 2},
		{ActionFindNext, 3},
		{ActionFindNext, 1},
		{ActionFindPrevious, 3},
		{ActionFindPrevious, 2},
	} {
		f.do(t, step.action)
		u := f.rec.last(t)
		if u.Action != ActionCurrentChanged || u.CurrentMatch != step.want || u.MatchIdentifiers != nil {
			t.Fatalf("%s: update = %+v, want current %d", step.action, u, step.want)
		}
	}
	if n := count(t, f.frames[0], selCurrent); n != 1 {
		t.Fatalf("current spans after stepping = %d", n)
	}
}

func TestScenarioB_EmbeddedFrameOrdering(t *testing.T) {
	f := setup(t, `<body><p>needle</p><iframe></iframe><iframe></iframe><p>needle</p></body>`, []string{
		`<body><p>empty</p></body>`,
		`<body><p>abcneedle</p><iframe></iframe><p>needle</p></body>`,
	})

	u := f.find(t, "needle")
	want := [][]int{{0, 0}, {2, 0, 3}, {2, 2, 0}, {3, 0}}
	if !sameCoords(coords(u), want) {
		t.Fatalf("coordinates = %v, want %v", coords(u), want)
	}
	if n := count(t, f.frames[2], selHighlight); n != 2 {
		t.Fatalf("child highlights = %d", n)
	}

	f.do(t, ActionFindNext)
	if u := f.rec.last(t); u.CurrentMatch != 2 {
		t.Fatalf("current = %d", u.CurrentMatch)
	}
	if n := count(t, f.frames[2], selCurrent); n != 1 {
		t.Fatalf("child current spans = %d", n)
	}
	if n := count(t, f.frames[0], selCurrent); n != 0 {
		t.Fatalf("root kept a current span")
	}

	snap, err := f.root.Snapshot(testCtx(t), "t")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if m := snap.Matches[1]; m.Kind != match.Remote || m.FrameID != f.frames[2].ID() || m.Index != 0 {
		t.Fatalf("remote match = %+v", m)
	}
	if m := snap.Matches[0]; m.Kind != match.Local || m.FrameID != f.frames[0].ID() {
		t.Fatalf("local match = %+v", m)
	}
}

func TestClearThenEmptySearch(t *testing.T) {
	f := setup(t, `<body><p>needle</p><iframe></iframe><p>needle</p></body>`,
		[]string{`<body><p>needle <b>needle</b></p></body>`})

	if u := f.find(t, "needle"); u.TotalMatches != 4 {
		t.Fatalf("total = %d", u.TotalMatches)
	}
	f.do(t, ActionClearFind)
	if u := f.rec.last(t); u.TotalMatches != 0 || u.CurrentMatch != 0 {
		t.Fatalf("clear update = %+v", u)
	}
	u := f.find(t, "")
	if u.TotalMatches != 0 || u.CurrentMatch != 0 || len(u.MatchIdentifiers) != 0 {
		t.Fatalf("empty search update = %+v", u)
	}
	snap, err := f.root.Snapshot(testCtx(t), "t")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Active {
		t.Fatal("empty search left the instance active")
	}
	for _, fr := range f.frames {
		if n := count(t, fr, "span["+highlight.AttrInstance+"]"); n != 0 {
			t.Fatalf("frame %s kept %d highlight spans", fr.ID(), n)
		}
	}
	var text string
	f.frames[1].Exec(testCtx(t), func() { text = dom.TextContent(dom.ByTag(f.frames[1].Doc(), atom.P)[0]) })
	if text != "needle needle" {
		t.Fatalf("child text after clear = %q", text)
	}
}

func TestSetCurrent_SkipsDetachedMatches(t *testing.T) {
	f := setup(t, `<body><p>needle</p><p>needle</p><p>needle</p></body>`, nil)
	if u := f.find(t, "needle"); u.TotalMatches != 3 || u.CurrentMatch != 1 {
		t.Fatalf("startFind = %+v", u)
	}
	ctx := testCtx(t)
	remove := func(i int) {
		f.frames[0].Mutate(ctx, func(doc *html.Node) {
			dom.Remove(dom.ByTag(doc, atom.P)[i])
		})
	}
	remove(1)
	f.do(t, ActionFindNext)
	if u := f.rec.last(t); u.CurrentMatch != 3 {
		t.Fatalf("current after detaching match 2 = %d, want 3", u.CurrentMatch)
	}

	remove(0)
	remove(0)
	f.do(t, ActionFindNext)
	if u := f.rec.last(t); u.TotalMatches != 3 || u.Action != ActionCurrentChanged || u.CurrentMatch != 0 {
		t.Fatalf("update after detaching everything = %+v", u)
	}
	if s, err := f.root.Snapshot(ctx, "t"); err != nil || s.Current != -1 {
		t.Fatalf("snapshot after detaching everything = %+v, %v", s, err)
	}
	f.do(t, ActionFindPrevious)
	if u := f.rec.last(t); u.CurrentMatch != 0 {
		t.Fatalf("previous with no live match = %+v", u)
	}
}

func TestHandleCommand_BadSecret(t *testing.T) {
	f := setup(t, `<body><p>needle</p></body>`, nil)
	err := f.root.HandleCommand(testCtx(t), Command{Action: ActionStartFind, InstanceID: "t", SessionSecret: "wrong", SearchTerm: "needle"})
	if !errors.Is(err, ErrBadSecret) {
		t.Fatalf("err = %v", err)
	}
	if len(f.rec.all()) != 0 || len(f.root.Instances()) != 0 {
		t.Fatal("rejected command changed state")
	}
	if n := count(t, f.frames[0], selHighlight); n != 0 {
		t.Fatalf("rejected command highlighted %d spans", n)
	}
	_, err = f.frames[0].EvaluateInFrame(testCtx(t), f.frames[0].ID(), procSearch, params{Secret: "wrong", SearchTerm: "needle"})
	if err == nil {
		t.Fatal("procedure accepted a bad secret")
	}
	if err := f.root.HandleCommand(testCtx(t), Command{Action: "explode", SessionSecret: testSecret}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("unknown action err = %v", err)
	}
}

func TestInstances_CapAndDestroy(t *testing.T) {
	f := setup(t, `<body><p>needle</p></body>`, nil, WithConfig(Config{MaxInstances: 2}))
	ctx := testCtx(t)
	cmd := func(id string) error {
		return f.root.HandleCommand(ctx, Command{Action: ActionStartFind, InstanceID: id, SessionSecret: testSecret, SearchTerm: "needle"})
	}
	if err := cmd("a"); err != nil {
		t.Fatal(err)
	}
	if err := cmd("b"); err != nil {
		t.Fatal(err)
	}
	if err := cmd("c"); !errors.Is(err, ErrTooManyInstances) {
		t.Fatalf("third instance err = %v", err)
	}
	if n := count(t, f.frames[0], "span["+highlight.AttrInstance+"]"); n != 2 {
		t.Fatalf("two instances should each wrap the match, got %d spans", n)
	}
	if err := f.root.Destroy(ctx, "a"); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if got := f.root.Instances(); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("instances = %v", got)
	}
	if err := cmd("c"); err != nil {
		t.Fatalf("after destroy: %v", err)
	}
	if err := f.root.Destroy(ctx, "a"); !errors.Is(err, ErrNoInstance) {
		t.Fatalf("second destroy err = %v", err)
	}

	err := f.root.HandleCommand(ctx, Command{Action: ActionClearFind, InstanceID: "not valid!", SessionSecret: testSecret})
	if !errors.Is(err, ErrTooManyInstances) {
		t.Fatalf("sanitized id should map to a new default instance over the cap, err = %v", err)
	}
}

func TestStartFind_SupersededGeneration(t *testing.T) {
	f := setup(t, `<body><p>needle</p></body>`, nil)
	ctx := testCtx(t)
	inst, err := f.root.instance("t", true)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := f.root.validate(Command{Action: ActionStartFind, SessionSecret: testSecret, SearchTerm: "needle"})
	err = inst.do(ctx, func(ctx context.Context) error {
		gen := inst.gen.Add(1)
		inst.gen.Add(1) // a newer startFind was enqueued
		return inst.startFind(ctx, gen, r)
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range f.rec.all() {
		if u.Action == ActionResultsUpdated && u.TotalMatches != 0 {
			t.Fatalf("superseded search published %+v", u)
		}
	}
	if n := count(t, f.frames[0], selHighlight); n != 0 {
		t.Fatalf("superseded search highlighted %d spans", n)
	}
}

func waitClick(t *testing.T, a *Agent, seq uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, got := a.lastClick(); got >= seq {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("click %d never reached the root", seq)
}

const clickPage = `<body><p>needle A</p><iframe></iframe><p>needle D</p></body>`
const clickChild = `<body><p>needle B needle C</p></body>`

func TestClick_ResumesAcrossFrames(t *testing.T) {
	f := setup(t, clickPage, []string{clickChild})
	ctx := testCtx(t)

	// "needle C" starts at x=72 of the child viewport.
	child := f.agents[f.frames[1].ID()]
	if err := child.Click(ctx, 72, 8); err != nil {
		t.Fatal(err)
	}
	waitClick(t, f.root, 1)
	if pt, _ := f.root.lastClick(); pt.x != 72 || pt.y != 24 {
		t.Fatalf("root click = %+v, want iframe offset applied", *pt)
	}

	u := f.find(t, "needle")
	want := [][]int{{0, 0}, {1, 0, 0}, {1, 0, 9}, {2, 0}}
	if !sameCoords(coords(u), want) {
		t.Fatalf("coordinates = %v, want %v", coords(u), want)
	}
	if u.CurrentMatch != 3 {
		t.Fatalf("search started at %d, want the clicked match 3", u.CurrentMatch)
	}

	f.do(t, ActionFindNext)
	if u := f.rec.last(t); u.CurrentMatch != 4 {
		t.Fatalf("plain next = %d", u.CurrentMatch)
	}

	if err := f.root.Click(ctx, 0, 4); err != nil {
		t.Fatal(err)
	}
	f.do(t, ActionFindNext)
	if u := f.rec.last(t); u.CurrentMatch != 1 {
		t.Fatalf("next after root click = %d, want 1", u.CurrentMatch)
	}
}

func TestClick_OutsideEmbeddedTextFallsBack(t *testing.T) {
	f := setup(t, clickPage, []string{clickChild})
	if u := f.find(t, "needle"); u.TotalMatches != 4 {
		t.Fatalf("total = %d", u.TotalMatches)
	}
	// Inside the iframe box, below the child's only line.
	coords, err := f.root.resolveAt(testCtx(t), "t", 10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(coords, []int{1, 0}) {
		t.Fatalf("coords = %v, want [1 0]", coords)
	}
}

func TestMatchBounds_ThroughFrames(t *testing.T) {
	f := setup(t, clickPage, []string{clickChild})
	u := f.find(t, "needle")
	ctx := testCtx(t)

	r, err := f.root.MatchBounds(ctx, "t", testSecret, u.MatchIdentifiers[2])
	if err != nil {
		t.Fatalf("MatchBounds: %v", err)
	}
	if want := (layout.Rect{X: 72, Y: 16, Width: 48, Height: 16}); r != want {
		t.Fatalf("remote bounds = %+v, want %+v", r, want)
	}
	r, err = f.root.MatchBounds(ctx, "t", testSecret, u.MatchIdentifiers[0])
	if err != nil {
		t.Fatal(err)
	}
	if want := (layout.Rect{X: 0, Y: 0, Width: 48, Height: 16}); r != want {
		t.Fatalf("local bounds = %+v, want %+v", r, want)
	}

	if _, err := f.root.MatchBounds(ctx, "t", testSecret, match.Identifier{Coordinates: []int{9, 9}, Text: "needle"}); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("unknown identifier err = %v", err)
	}
	if _, err := f.root.MatchBounds(ctx, "t", "wrong", u.MatchIdentifiers[0]); !errors.Is(err, ErrBadSecret) {
		t.Fatalf("bad secret err = %v", err)
	}
}

func TestReveal(t *testing.T) {
	f := setup(t, clickPage, []string{clickChild})
	u := f.find(t, "needle")
	id := u.MatchIdentifiers[2]
	id.Index = 0 // not trusted
	f.do(t, ActionReveal, func(c *Command) { c.Identifier = &id })
	if got := f.rec.last(t); got.CurrentMatch != 3 || got.Action != ActionCurrentChanged {
		t.Fatalf("reveal update = %+v", got)
	}
	if n := count(t, f.frames[1], selCurrent); n != 1 {
		t.Fatalf("child current spans = %d", n)
	}
}

func TestHideAndShowResults(t *testing.T) {
	f := setup(t, clickPage, []string{clickChild})
	f.find(t, "needle")
	removed := "." + highlight.ClassRemoved
	f.do(t, ActionHideResults)
	if a, b := count(t, f.frames[0], removed), count(t, f.frames[1], removed); a != 2 || b != 2 {
		t.Fatalf("removed spans = %d, %d", a, b)
	}
	f.do(t, ActionShowResults)
	if a, b := count(t, f.frames[0], removed), count(t, f.frames[1], removed); a != 0 || b != 0 {
		t.Fatalf("removed spans after show = %d, %d", a, b)
	}
	if n := count(t, f.frames[1], selHighlight) + count(t, f.frames[1], selCurrent); n != 2 {
		t.Fatalf("show lost highlights: %d", n)
	}
}

func TestNavigationShortcuts(t *testing.T) {
	f := setup(t, clickPage, []string{clickChild})
	f.find(t, "needle")
	ctx := testCtx(t)
	bubbles := "." + bubbleClass

	f.do(t, ActionStartNavigationShortcuts, func(c *Command) { c.SelectionAction = SelectionCopy })
	if a, b := count(t, f.frames[0], bubbles), count(t, f.frames[1], bubbles); a != 2 || b != 2 {
		t.Fatalf("bubbles = %d, %d", a, b)
	}
	var label string
	f.frames[1].Exec(ctx, func() { label = dom.TextContent(dom.QueryAll(f.frames[1].Doc(), bubbles)[0]) })
	if label != "2" {
		t.Fatalf("first child bubble = %q, want 2", label)
	}

	ok, err := f.root.Key(ctx, "t", testSecret, "3")
	if err != nil || !ok {
		t.Fatalf("Key = %v, %v", ok, err)
	}
	u := f.rec.last(t)
	if u.Action != ActionNavigationSelected || u.Selection == nil ||
		*u.Selection != (Selection{Label: "3", Text: "needle", Action: SelectionCopy}) {
		t.Fatalf("selection update = %+v", u)
	}
	for _, fr := range f.frames {
		if n := count(t, fr, bubbles); n != 0 {
			t.Fatalf("bubbles left after selection: %d", n)
		}
	}
	if ok, _ := f.root.Key(ctx, "t", testSecret, "1"); ok {
		t.Fatal("key consumed outside navigation mode")
	}

	f.do(t, ActionStartNavigationShortcuts)
	if ok, _ := f.root.Key(ctx, "t", testSecret, KeyEscape); !ok {
		t.Fatal("Escape not consumed")
	}
	if n := count(t, f.frames[0], bubbles); n != 0 {
		t.Fatalf("Escape left %d bubbles", n)
	}
	if _, err := f.root.Key(ctx, "t", "wrong", "1"); !errors.Is(err, ErrBadSecret) {
		t.Fatalf("bad secret err = %v", err)
	}
}

func TestNavigationShortcuts_Prefix(t *testing.T) {
	f := setup(t, `<body><p>`+strings.Repeat("ab ", 40)+`</p></body>`, nil)
	if u := f.find(t, "ab"); u.TotalMatches != 40 {
		t.Fatalf("total = %d", u.TotalMatches)
	}
	ctx := testCtx(t)
	f.do(t, ActionStartNavigationShortcuts)

	ok, _ := f.root.Key(ctx, "t", testSecret, "a")
	if !ok {
		t.Fatal("prefix not consumed")
	}
	if n := count(t, f.frames[0], "."+bubbleHighlighted); n != 26 {
		t.Fatalf("highlighted bubbles = %d, want 26", n)
	}
	if ok, _ := f.root.Key(ctx, "t", testSecret, "!"); ok {
		t.Fatal("dead-end key consumed")
	}
	ok, _ = f.root.Key(ctx, "t", testSecret, "b")
	if !ok {
		t.Fatal("completion not consumed")
	}
	if u := f.rec.last(t); u.Selection == nil || u.Selection.Label != "AB" || u.Selection.Action != SelectionOpen {
		t.Fatalf("selection = %+v", u.Selection)
	}
}

func TestLabels(t *testing.T) {
	tests := []struct {
		n     int
		first string
		last  string
	}{
		{0, "", ""},
		{3, "1", "3"},
		{9, "1", "9"},
		{10, "1", "A"},
		{35, "1", "Z"},
		{36, "1", "BA"},
		{9 + 26*26 + 1, "1", "BAA"},
	}
	for _, tt := range tests {
		got := Labels(tt.n)
		if len(got) != tt.n {
			t.Fatalf("Labels(%d) has %d labels", tt.n, len(got))
		}
		if tt.n == 0 {
			continue
		}
		if got[0] != tt.first || got[len(got)-1] != tt.last {
			t.Errorf("Labels(%d) = %s..%s, want %s..%s", tt.n, got[0], got[len(got)-1], tt.first, tt.last)
		}
		for i, a := range got {
			for j, b := range got {
				if i != j && strings.HasPrefix(b, a) {
					t.Fatalf("Labels(%d): %q is a prefix of %q", tt.n, a, b)
				}
			}
		}
	}
}

func TestValidate(t *testing.T) {
	a := &Agent{secret: testSecret}
	a.cfg.defaults()
	neg, big := -5, 500
	long := make([]int, 15)
	r, err := a.validate(Command{
		Action:        ActionReveal,
		SessionSecret: testSecret,
		InstanceID:    "tab 1",
		SearchTerm:    "a\x00b" + strings.Repeat("x", 2000),
		ContextLength: &neg,
		Identifier:    &match.Identifier{Index: -1, Coordinates: append(long, -3), Text: strings.Repeat("t", 300)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.instanceID != DefaultInstance || r.contextLen != 0 || r.selectionAction != SelectionOpen {
		t.Fatalf("request = %+v", r)
	}
	if !strings.HasPrefix(r.term, "abx") || len([]rune(r.term)) != MaxSearchTermLen {
		t.Fatalf("term = %q (%d)", r.term[:10], len([]rune(r.term)))
	}
	if len(r.id.Coordinates) != MaxCoordinates || len(r.id.Text) != MaxIdentifierLen || r.id.Index != 0 {
		t.Fatalf("identifier = %+v", r.id)
	}

	r, _ = a.validate(Command{Action: ActionStartFind, SessionSecret: testSecret, ContextLength: &big, SearchMode: "caseSensitiveRegex"})
	if r.contextLen != match.MaxContextLength || r.mode != match.CaseSensitiveRegex {
		t.Fatalf("request = %+v", r)
	}
	r, _ = a.validate(Command{Action: ActionStartFind, SessionSecret: testSecret})
	if r.contextLen != match.DefaultContextLength || r.mode != match.CaseInsensitive {
		t.Fatalf("defaults = %+v", r)
	}
}

func TestSecrets(t *testing.T) {
	s, err := NewSecret()
	if err != nil || len(s) != 64 {
		t.Fatalf("NewSecret = %q, %v", s, err)
	}
	master := []byte(strings.Repeat("m", 32))
	a, err := DeriveSecret(master, "one")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := DeriveSecret(master, "one")
	c, _ := DeriveSecret(master, "two")
	if a != b || a == c || len(a) != 64 {
		t.Fatalf("derived %q %q %q", a, b, c)
	}
	if _, err := DeriveSecret([]byte("short"), "one"); err == nil {
		t.Fatal("short master accepted")
	}
}

func TestStartFind_ReusesCachedGraph(t *testing.T) {
	f := setup(t, `<body><p>needle</p><iframe></iframe></body>`, nil)
	silent := newFrame(t, `<body><p>needle</p></body>`)
	f.frames[0].Attach(dom.ByTag(f.frames[0].Doc(), atom.Iframe)[0], silent)

	first := f.find(t, "needle")
	if first.TotalMatches != 1 {
		t.Fatalf("first search = %+v", first)
	}
	start := time.Now()
	second := f.find(t, "needle")
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Fatalf("repeat search took %v, discovery was rerun", elapsed)
	}
	if second.TotalMatches != 1 {
		t.Fatalf("second search = %+v", second)
	}
	for _, u := range []Update{first, second} {
		id, err := uuid.Parse(u.OpToken)
		if err != nil || id.Version() != 7 {
			t.Fatalf("op token %q is not a UUIDv7 (%v)", u.OpToken, err)
		}
	}
	if first.OpToken == second.OpToken {
		t.Fatal("op token reused across searches")
	}
}

func TestStartFind_FrameAddedLater(t *testing.T) {
	f := setup(t, `<body><p>needle</p><iframe></iframe></body>`, nil)
	if u := f.find(t, "needle"); u.TotalMatches != 1 {
		t.Fatalf("before add = %+v", u)
	}
	late := newFrame(t, `<body><p>needle</p><p>needle</p></body>`)
	f.page.Add(f.frames[0], dom.ByTag(f.frames[0].Doc(), atom.Iframe)[0], late)

	if u := f.find(t, "needle"); u.TotalMatches != 3 {
		t.Fatalf("after add = %+v", u)
	}
	if n := count(t, late, "span["+highlight.AttrInstance+"]"); n != 2 {
		t.Fatalf("late frame highlights = %d, want 2", n)
	}
}
