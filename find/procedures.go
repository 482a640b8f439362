package find

import (
	"context"
	"fmt"

	"github.com/hazyhaar/pagefind/layout"
	"github.com/hazyhaar/pagefind/match"
)

// Procedures every agent answers. All of them carry the session secret and
// the instance id.
const (
	procSearch       = "find.search"
	procHighlight    = "find.highlight"
	procClear        = "find.clear"
	procSetCurrent   = "find.setCurrent"
	procClearCurrent = "find.clearCurrent"
	procBounds       = "find.bounds"
	procFrameRect    = "find.frameRect"
	procClick        = "find.click"
	procSetRemoved   = "find.setRemoved"
	procBubble       = "find.bubble"
	procBubblePrefix = "find.bubblePrefix"
	procBubbleClear  = "find.bubbleClear"
	procDestroy      = "find.destroy"
)

// searchResult is one frame's answer to find.search. Coordinates are local
// to that frame.
type searchResult struct {
	Matches       []*match.Match `json:"matches"`
	ChildSegments map[string]int `json:"childSegments"`
	HiddenSkipped int            `json:"hiddenSkipped"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type countResult struct {
	Count int `json:"count"`
}

func (a *Agent) registerProcedures() {
	a.register(procSearch, func(ctx context.Context, p params) (any, error) {
		var res searchResult
		_, err := a.withEngine(ctx, p.InstanceID, true, func(e *engine) {
			res = e.search(p.SearchTerm, match.ParseMode(p.SearchMode), p.ContextLength)
		})
		if err != nil {
			return nil, err
		}
		return res, nil
	})

	a.register(procHighlight, func(ctx context.Context, p params) (any, error) {
		var n int
		_, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { n = e.highlight() })
		return countResult{Count: n}, err
	})

	a.register(procClear, func(ctx context.Context, p params) (any, error) {
		var n int
		_, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { n = e.clear() })
		return countResult{Count: n}, err
	})

	a.register(procSetCurrent, func(ctx context.Context, p params) (any, error) {
		var ok bool
		_, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { ok = e.setCurrent(p.Index) })
		return okResult{OK: ok}, err
	})

	a.register(procClearCurrent, func(ctx context.Context, p params) (any, error) {
		_, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { e.clearCurrent() })
		return okResult{OK: err == nil}, err
	})

	a.register(procBounds, func(ctx context.Context, p params) (any, error) {
		var (
			r  layout.Rect
			ok bool
		)
		if _, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { r, ok = e.bounds(p.Index) }); err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return r, nil
	})

	a.register(procFrameRect, func(ctx context.Context, p params) (any, error) {
		var (
			r     layout.Rect
			found bool
		)
		err := a.frame.Exec(ctx, func() {
			if el := a.frame.FrameElement(p.ChildFrameID); el != nil {
				r, found = a.frame.Layout().Rect(el), true
			}
		})
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("find: no iframe hosts frame %s", p.ChildFrameID)
		}
		return r, nil
	})

	a.register(procClick, func(ctx context.Context, p params) (any, error) {
		return a.resolveAt(ctx, p.InstanceID, p.X, p.Y)
	})

	a.register(procSetRemoved, func(ctx context.Context, p params) (any, error) {
		_, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { e.hl.SetRemoved(p.Removed) })
		return okResult{OK: err == nil}, err
	})

	a.register(procBubble, func(ctx context.Context, p params) (any, error) {
		var ok bool
		_, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { ok = e.addBubble(p.Index, p.Label) })
		return okResult{OK: ok}, err
	})

	a.register(procBubblePrefix, func(ctx context.Context, p params) (any, error) {
		_, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { e.markPrefix(p.Prefix) })
		return okResult{OK: err == nil}, err
	})

	a.register(procBubbleClear, func(ctx context.Context, p params) (any, error) {
		_, err := a.withEngine(ctx, p.InstanceID, false, func(e *engine) { e.clearBubbles() })
		return okResult{OK: err == nil}, err
	})

	a.register(procDestroy, func(ctx context.Context, p params) (any, error) {
		var n int
		err := a.frame.Exec(ctx, func() {
			if e := a.engine(p.InstanceID, false); e != nil {
				n = e.clear()
				delete(a.engines, p.InstanceID)
			}
		})
		return countResult{Count: n}, err
	})
}
