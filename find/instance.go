// CLAUDE:SUMMARY Per-instance search state: startFind across frames, current match selection, snapshots.
package find

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/pagefind/framebus"
	"github.com/hazyhaar/pagefind/horosafe"
	"github.com/hazyhaar/pagefind/idgen"
	"github.com/hazyhaar/pagefind/layout"
	"github.com/hazyhaar/pagefind/match"
)

// instance orchestrates one find session across the frame tree. Its state
// is owned by the dispatcher goroutine; commands reach it through do.
type instance struct {
	id    string
	agent *Agent

	gen      atomic.Uint64
	jobs     chan job
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// Dispatcher-owned.
	term       string
	mode       match.Mode
	contextLen int
	matches    []*match.Match
	current    int
	hidden     int
	active     bool
	token      string
	click      []int
	clickSeq   uint64
	nav        *navState
}

type job struct {
	fn   func(ctx context.Context) error
	done chan error
}

func newInstance(a *Agent, id string) *instance {
	return &instance{
		id:      id,
		agent:   a,
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		current: -1,
	}
}

func (i *instance) loop() {
	defer close(i.done)
	for {
		select {
		case j := <-i.jobs:
			j.done <- i.safe(j.fn)
		case <-i.quit:
			return
		}
	}
}

func (i *instance) safe(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			i.agent.logger.Error("find command panicked", "instance", i.id, "panic", r)
			err = fmt.Errorf("find: command panicked: %v", r)
		}
	}()
	return fn(context.Background())
}

// do runs fn on the dispatcher and waits for it. fn gets a context that is
// not cancelled with ctx: a started command always completes, the caller
// may just stop waiting.
func (i *instance) do(ctx context.Context, fn func(ctx context.Context) error) error {
	detached := context.WithoutCancel(ctx)
	j := job{fn: func(context.Context) error { return fn(detached) }, done: make(chan error, 1)}
	select {
	case i.jobs <- j:
	case <-i.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *instance) stop() {
	i.stopOnce.Do(func() { close(i.quit) })
	<-i.done
}

func (i *instance) stale(gen uint64) bool { return i.gen.Load() != gen }

func (i *instance) params() params {
	return params{
		Secret:        i.agent.secret,
		InstanceID:    i.id,
		SearchTerm:    i.term,
		SearchMode:    string(i.mode),
		ContextLength: i.contextLen,
	}
}

func (i *instance) run(ctx context.Context, gen uint64, r request) error {
	switch r.action {
	case ActionStartFind:
		return i.startFind(ctx, gen, r)
	case ActionFindNext:
		i.step(ctx, 1)
	case ActionFindPrevious:
		i.step(ctx, -1)
	case ActionClearFind:
		i.clearFind(ctx)
	case ActionReveal:
		i.reveal(ctx, r.id)
	case ActionHideResults:
		i.setRemoved(ctx, true)
	case ActionShowResults:
		i.setRemoved(ctx, false)
	case ActionStartNavigationShortcuts:
		i.startNav(ctx, r.selectionAction)
	case ActionClearNavigationShortcuts:
		i.clearNav(ctx)
	}
	return nil
}

func (i *instance) reset() {
	i.matches = nil
	i.current = -1
	i.hidden = 0
	i.active = false
	i.nav = nil
}

// startFind clears every frame, searches them all and merges the results.
// It abandons silently once a newer startFind is enqueued.
func (i *instance) startFind(ctx context.Context, gen uint64, r request) error {
	a := i.agent
	a.frame.EvaluateInAll(ctx, procClear, i.params())
	i.reset()
	i.term, i.mode, i.contextLen = r.term, r.mode, r.contextLen
	i.token = idgen.OpToken()
	if strings.TrimSpace(i.term) == "" {
		i.report(ctx, true)
		return nil
	}

	graph, err := a.frame.Graph(ctx)
	if err != nil {
		a.logger.Warn("frame graph unavailable, searching this frame only", "instance", i.id, "error", err)
	}
	if i.stale(gen) {
		return nil
	}
	raw := a.frame.EvaluateInAll(ctx, procSearch, i.params())
	if i.stale(gen) {
		return nil
	}
	merged, hidden := i.merge(graph, raw)
	match.Sort(merged)

	a.frame.EvaluateInAll(ctx, procHighlight, i.params())
	if i.stale(gen) {
		return nil
	}
	i.matches, i.hidden, i.active = merged, hidden, true
	a.logger.Info("find", "instance", i.id, "matches", len(merged), "frames", len(raw), "hidden_skipped", hidden)

	if len(merged) > 0 {
		i.pendingClick(ctx)
		start := 0
		if i.click != nil {
			start = match.StartIndex(i.matches, i.click)
		}
		i.setCurrent(ctx, start, false)
	}
	if i.stale(gen) {
		return nil
	}
	i.report(ctx, true)
	return nil
}

// merge decodes every frame's answer and reprojects its matches onto root
// coordinates. The self frame goes first so that equal coordinates keep
// local before remote.
func (i *instance) merge(graph *framebus.GraphNode, raw map[string]json.RawMessage) ([]*match.Match, int) {
	a := i.agent
	self := a.frame.ID()
	results := make(map[string]*searchResult, len(raw))
	for id, msg := range raw {
		if msg == nil {
			continue
		}
		var res searchResult
		if err := json.Unmarshal(msg, &res); err != nil {
			a.logger.Warn("bad search result", "frame", id, "error", err)
			continue
		}
		results[id] = &res
	}

	ids := graph.Flatten()
	if len(ids) == 0 {
		ids = []string{self}
	}
	var (
		merged []*match.Match
		hidden int
	)
	for _, id := range ids {
		res, ok := results[id]
		if !ok {
			continue
		}
		hidden += res.HiddenSkipped
		path, ok := rootPath(graph, results, self, id)
		if !ok {
			a.logger.Warn("dropping matches of unresolved frame", "frame", id, "matches", len(res.Matches))
			continue
		}
		for _, m := range res.Matches {
			m.Coordinates = match.Reproject(path, m.Coordinates)
			m.FrameID = id
			m.Kind = match.Local
			if id != self {
				m.Kind = match.Remote
			}
			merged = append(merged, m)
		}
	}
	return merged, hidden
}

// rootPath composes the segment indices leading from self to frame id,
// using each ancestor's own childSegments mapping.
func rootPath(graph *framebus.GraphNode, results map[string]*searchResult, self, id string) ([]int, bool) {
	if id == self {
		return []int{}, true
	}
	chain := graph.Chain(id)
	if len(chain) == 0 {
		return nil, false
	}
	path := make([]int, 0, len(chain)-1)
	for k := 1; k < len(chain); k++ {
		parent, ok := results[chain[k-1]]
		if !ok {
			return nil, false
		}
		seg, ok := parent.ChildSegments[chain[k]]
		if !ok {
			return nil, false
		}
		path = append(path, seg)
	}
	return path, true
}

// setCurrent makes match idx current, skipping matches without a live
// highlight. It gives up after one full pass.
func (i *instance) setCurrent(ctx context.Context, idx int, report bool) {
	n := len(i.matches)
	if n == 0 {
		return
	}
	idx = ((idx % n) + n) % n
	tried := make(map[int]bool, n)
	shown := false
	for !tried[idx] {
		tried[idx] = true
		i.uncurrent(ctx)
		i.current = idx
		if shown = i.show(ctx, i.matches[idx]); shown {
			break
		}
		i.agent.logger.Debug("skipping match without highlight", "instance", i.id, "index", idx, "coordinates", i.matches[idx].Coordinates)
		idx = (idx + 1) % n
	}
	if !shown {
		i.current = -1
		i.agent.logger.Warn("no match can be made current", "instance", i.id, "matches", n)
	}
	if report {
		i.report(ctx, false)
	}
}

func (i *instance) uncurrent(ctx context.Context) {
	if i.current < 0 || i.current >= len(i.matches) {
		return
	}
	prev := i.matches[i.current]
	if _, err := i.agent.frame.EvaluateInFrame(ctx, prev.FrameID, procClearCurrent, i.params()); err != nil {
		i.agent.logger.Debug("clear current", "frame", prev.FrameID, "error", err)
	}
}

// show styles m as current in its owning frame. A remote match first has
// the hosting iframe scrolled into view here.
func (i *instance) show(ctx context.Context, m *match.Match) bool {
	a := i.agent
	if m.FrameID != a.frame.ID() {
		i.scrollToFrame(ctx, m.FrameID)
	}
	p := i.params()
	p.Index = m.Index
	raw, err := a.frame.EvaluateInFrame(ctx, m.FrameID, procSetCurrent, p)
	if err != nil {
		a.logger.Debug("set current", "frame", m.FrameID, "error", err)
		return false
	}
	var res okResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return false
	}
	return res.OK
}

func (i *instance) scrollToFrame(ctx context.Context, frameID string) {
	a := i.agent
	g, err := a.frame.Graph(ctx)
	if err != nil {
		return
	}
	chain := g.Chain(frameID)
	if len(chain) < 2 {
		return
	}
	_ = a.frame.Exec(ctx, func() {
		if el := a.frame.FrameElement(chain[1]); el != nil {
			a.frame.Layout().ScrollIntoView(el)
		}
	})
}

// step moves the current match by delta, or jumps to a click made since the
// last step.
func (i *instance) step(ctx context.Context, delta int) {
	if len(i.matches) == 0 {
		return
	}
	if i.pendingClick(ctx) && i.click != nil {
		idx := match.StartIndex(i.matches, i.click)
		if delta < 0 {
			idx--
		}
		i.setCurrent(ctx, idx, true)
		return
	}
	idx := i.current + delta
	if i.current < 0 {
		// No current match: next starts at the first, previous at the last.
		idx = min(delta, 0)
	}
	i.setCurrent(ctx, idx, true)
}

func (i *instance) clearFind(ctx context.Context) {
	i.agent.frame.EvaluateInAll(ctx, procClear, i.params())
	i.reset()
	i.term = ""
	i.report(ctx, true)
}

func (i *instance) reveal(ctx context.Context, id *match.Identifier) {
	if id == nil {
		return
	}
	idx := match.Lookup(i.matches, *id)
	if idx < 0 {
		i.agent.logger.Debug("reveal: unknown match", "instance", i.id, "coordinates", id.Coordinates)
		return
	}
	i.setCurrent(ctx, idx, true)
}

func (i *instance) setRemoved(ctx context.Context, removed bool) {
	p := i.params()
	p.Removed = removed
	i.agent.frame.EvaluateInAll(ctx, procSetRemoved, p)
}

// bounds returns the rect of match id in this frame's document coordinates.
func (i *instance) bounds(ctx context.Context, id match.Identifier) (layout.Rect, error) {
	a := i.agent
	idx := match.Lookup(i.matches, id)
	if idx < 0 {
		return layout.Rect{}, ErrNoMatch
	}
	m := i.matches[idx]
	p := i.params()
	p.Index = m.Index
	raw, err := a.frame.EvaluateInFrame(ctx, m.FrameID, procBounds, p)
	if err != nil {
		return layout.Rect{}, fmt.Errorf("find: bounds: %w", err)
	}
	var r *layout.Rect
	if err := json.Unmarshal(raw, &r); err != nil {
		return layout.Rect{}, fmt.Errorf("find: bounds: %w", err)
	}
	if r == nil {
		return layout.Rect{}, ErrNoMatch
	}
	rect := *r

	g, err := a.frame.Graph(ctx)
	if err != nil {
		return layout.Rect{}, fmt.Errorf("find: bounds: %w", err)
	}
	chain := g.Chain(m.FrameID)
	for k := len(chain) - 1; k >= 1; k-- {
		p := i.params()
		p.ChildFrameID = chain[k]
		raw, err := a.frame.EvaluateInFrame(ctx, chain[k-1], procFrameRect, p)
		if err != nil {
			return layout.Rect{}, fmt.Errorf("find: bounds: frame rect: %w", err)
		}
		var host layout.Rect
		if err := json.Unmarshal(raw, &host); err != nil {
			return layout.Rect{}, fmt.Errorf("find: bounds: %w", err)
		}
		rect = rect.Offset(host.X, host.Y)
	}
	var sx, sy float64
	if err := a.frame.Exec(ctx, func() { sx, sy = a.frame.Layout().Scroll() }); err != nil {
		return layout.Rect{}, err
	}
	return rect.Offset(sx, sy), nil
}

func (i *instance) report(ctx context.Context, full bool) {
	u := Update{
		Action:        ActionCurrentChanged,
		InstanceID:    i.id,
		SearchTerm:    i.term,
		TotalMatches:  len(i.matches),
		HiddenSkipped: i.hidden,
		OpToken:       i.token,
	}
	if i.current >= 0 && i.current < len(i.matches) {
		u.CurrentMatch = i.current + 1
	}
	if full {
		u.Action = ActionResultsUpdated
		u.MatchIdentifiers = make([]match.Identifier, len(i.matches))
		u.Contexts = make([]MatchContext, len(i.matches))
		for k, m := range i.matches {
			u.MatchIdentifiers[k] = m.ID(k)
			u.Contexts[k] = MatchContext{ContextBefore: m.ContextBefore, ContextAfter: m.ContextAfter}
		}
	}
	i.agent.publish(ctx, u)
}

// Snapshot is the state of one instance as seen by its orchestrator.
type Snapshot struct {
	InstanceID    string         `json:"instanceId"`
	SearchTerm    string         `json:"searchTerm"`
	Active        bool           `json:"active"`
	Current       int            `json:"current"`
	HiddenSkipped int            `json:"hiddenSkipped"`
	OpToken       string         `json:"opToken"`
	Matches       []*match.Match `json:"matches"`
}

// Snapshot returns the merged match list and position of instance id.
func (a *Agent) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	inst, err := a.instance(id, false)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	err = inst.do(ctx, func(context.Context) error {
		s = Snapshot{
			InstanceID:    inst.id,
			SearchTerm:    inst.term,
			Active:        inst.active,
			Current:       inst.current,
			HiddenSkipped: inst.hidden,
			OpToken:       inst.token,
			Matches:       make([]*match.Match, len(inst.matches)),
		}
		for k, m := range inst.matches {
			c := *m
			s.Matches[k] = &c
		}
		return nil
	})
	return s, err
}

// MatchBounds returns the bounds of the match named by id in root document
// coordinates.
func (a *Agent) MatchBounds(ctx context.Context, instanceID, secret string, id match.Identifier) (layout.Rect, error) {
	if !horosafe.SecretEqual(a.secret, secret) {
		return layout.Rect{}, ErrBadSecret
	}
	inst, err := a.instance(horosafe.SanitizeIdentifier(instanceID, MaxInstanceIDLen, DefaultInstance), false)
	if err != nil {
		return layout.Rect{}, err
	}
	var r layout.Rect
	err = inst.do(ctx, func(ctx context.Context) error {
		var err error
		r, err = inst.bounds(ctx, id)
		return err
	})
	return r, err
}
