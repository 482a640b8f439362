package find

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/pagefind/dom"
	"github.com/hazyhaar/pagefind/framebus"
	"github.com/hazyhaar/pagefind/match"
	"golang.org/x/net/html/atom"
)

// Clicks travel up the frame tree in their own namespace, each hop adding
// the rect of the iframe the click came through.
const (
	clickNamespace = "FIND_CLICK"
	typeClick      = "CLICK"
)

type clickPayload struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	FrameID string  `json:"frameId"`
}

// Click records a pointer-down at viewport point (x, y) of this frame. The
// click is forwarded to the root and resolved lazily by the next search or
// step of any instance.
func (a *Agent) Click(ctx context.Context, x, y float64) error {
	return a.frame.Exec(ctx, func() { a.onClick(x, y) })
}

// onClick forwards a click to the parent, or records it at the root in
// document coordinates. Loop only.
func (a *Agent) onClick(x, y float64) {
	if parent := a.frame.Parent(); parent != nil {
		data := framebus.Encode(clickNamespace, typeClick, "", clickPayload{X: x, Y: y, FrameID: a.frame.ID()})
		if !parent.Post(data, a.frame.Window()) {
			a.logger.Debug("click forward dropped")
		}
		return
	}
	sx, sy := a.frame.Layout().Scroll()
	a.mu.Lock()
	a.click = &point{x: x + sx, y: y + sy}
	a.clickSeq++
	a.mu.Unlock()
}

// handleClick receives a click forwarded by a child frame and translates
// it into this frame's viewport.
func (a *Agent) handleClick(msg framebus.Message, env framebus.Envelope) {
	var p clickPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	host := a.frame.FrameElement(p.FrameID)
	for _, el := range dom.ByTag(a.frame.Doc(), atom.Iframe) {
		if msg.From(a.frame.ContentWindow(el)) {
			host = el
			break
		}
	}
	if host == nil {
		a.logger.Debug("click from unknown frame", "frame", p.FrameID)
		return
	}
	r := a.frame.Layout().Rect(host)
	a.onClick(p.X+r.X, p.Y+r.Y)
}

// lastClick returns the recorded click and its sequence number.
func (a *Agent) lastClick() (*point, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.click, a.clickSeq
}

// pendingClick resolves a click recorded since the instance last looked.
// It reports whether there was one; i.click holds its coordinates, or nil
// when it fell outside any segment.
func (i *instance) pendingClick(ctx context.Context) bool {
	a := i.agent
	pt, seq := a.lastClick()
	if pt == nil || seq == i.clickSeq {
		return false
	}
	i.clickSeq = seq
	var vx, vy float64
	if err := a.frame.Exec(ctx, func() {
		sx, sy := a.frame.Layout().Scroll()
		vx, vy = pt.x-sx, pt.y-sy
	}); err != nil {
		return false
	}
	coords, err := a.resolveAt(ctx, i.id, vx, vy)
	if err != nil {
		a.logger.Debug("click resolution failed", "instance", i.id, "error", err)
	}
	i.click = coords
	return true
}

// resolveAt maps a viewport point of this frame to coordinates, delegating
// into embedded frames. An embedded frame that cannot resolve the point
// yields the start of its segment.
func (a *Agent) resolveAt(ctx context.Context, instanceID string, x, y float64) ([]int, error) {
	var (
		coords []int
		del    *delegation
	)
	if _, err := a.withEngine(ctx, instanceID, true, func(e *engine) { coords, del = e.locate(x, y) }); err != nil {
		return nil, err
	}
	if del == nil {
		return coords, nil
	}
	fallback := []int{del.seg, 0}
	if del.frameID == "" {
		return fallback, nil
	}
	p := params{Secret: a.secret, InstanceID: instanceID, X: del.x, Y: del.y}
	raw, err := a.frame.EvaluateInFrame(ctx, del.frameID, procClick, p)
	if err != nil {
		a.logger.Debug("embedded click unresolved", "frame", del.frameID, "error", err)
		return fallback, nil
	}
	var sub []int
	if err := json.Unmarshal(raw, &sub); err != nil || sub == nil {
		return fallback, nil
	}
	return match.Reproject([]int{del.seg}, sub), nil
}
