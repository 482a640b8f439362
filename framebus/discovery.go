// CLAUDE:SUMMARY Frame graph discovery: INIT/CHILD_RESPONSE rounds with error stubs, cached subtree and debounced rediscovery at the root.
package framebus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/pagefind/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// round is one in-flight discovery pass in a frame.
type round struct {
	requestID string
	children  []*childSlot // iframe document order
	remaining int
	waiters   []func(*GraphNode)
	timer     *time.Timer
	topoGen   uint64
}

type childSlot struct {
	iframe     *html.Node
	win        *Window
	trackingID string
	node       *GraphNode
}

// Discover runs a discovery pass (or joins the one in flight) and returns
// the frame's subtree. It never fails because of unresponsive children:
// they appear as error stubs.
func (f *Frame) Discover(ctx context.Context) (*GraphNode, error) {
	ch := make(chan *GraphNode, 1)
	if !f.Post(func() {
		f.discover(f.cfg.DiscoveryTimeout, func(n *GraphNode) { ch <- n })
	}) {
		return nil, ErrClosed
	}
	select {
	case g := <-ch:
		return g, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return nil, ErrClosed
	}
}

// Graph returns the cached subtree. It discovers first when none exists or
// a topology change arrived after the cached pass started.
func (f *Frame) Graph(ctx context.Context) (*GraphNode, error) {
	var g *GraphNode
	if err := f.Exec(ctx, func() {
		if f.graphGen == f.topoGen {
			g = f.subtree.Clone()
		}
	}); err != nil {
		return nil, err
	}
	if g != nil {
		return g, nil
	}
	return f.Discover(ctx)
}

// Subtree returns the last discovered subtree, or nil. Loop only.
func (f *Frame) Subtree() *GraphNode { return f.subtree }

// FrameElement returns the iframe element hosting child frameID as of the
// last discovery, or nil. Loop only.
func (f *Frame) FrameElement(frameID string) *html.Node { return f.frameEls[frameID] }

// ChildFrameID returns the frame id discovered behind iframe el. Loop only.
func (f *Frame) ChildFrameID(el *html.Node) string {
	for id, e := range f.frameEls {
		if e == el {
			return id
		}
	}
	return ""
}

// childBudget is the time a child gets for its own subtree: the parent's
// timeout minus a hop margin so the child answers before the parent gives up.
func childBudget(timeout time.Duration) time.Duration {
	b := timeout - timeout/10
	if b < 10*time.Millisecond {
		b = 10 * time.Millisecond
	}
	return b
}

func (f *Frame) stub(kind string) *GraphNode {
	f.stubSeq++
	return &GraphNode{
		FrameID:  fmt.Sprintf("%s-%s-%d", kind, short(f.id), f.stubSeq),
		Children: []*GraphNode{},
		Error:    kind,
	}
}

// discover starts a pass with the given timeout, or attaches waiter to the
// pass in flight. Loop only.
func (f *Frame) discover(timeout time.Duration, waiter func(*GraphNode)) {
	if f.disc != nil {
		f.disc.waiters = append(f.disc.waiters, waiter)
		return
	}
	r := &round{requestID: f.reqID(), waiters: []func(*GraphNode){waiter}, topoGen: f.topoGen}
	f.disc = r

	budget := childBudget(timeout)
	now := time.Now().UnixMilli()
	for i, el := range dom.ByTag(f.doc, atom.Iframe) {
		slot := &childSlot{iframe: el}
		r.children = append(r.children, slot)
		if f.depth+1 > f.cfg.MaxDepth {
			slot.node = f.stub(StubDepth)
			continue
		}
		win := f.ContentWindow(el)
		if win == nil {
			slot.node = f.stub(StubUnreachable)
			continue
		}
		slot.win = win
		slot.trackingID = fmt.Sprintf("%s-child-%d-%d", f.id, i, now)
		r.remaining++
		win.Post(encode(Namespace, TypeInit, r.requestID, InitPayload{
			ParentFrameID: f.id,
			TrackingID:    slot.trackingID,
			TimeoutMs:     budget.Milliseconds(),
			Depth:         f.depth + 1,
		}), f.window)
	}

	f.logger.Debug("discovery started", "request", r.requestID, "children", len(r.children), "awaiting", r.remaining)
	if r.remaining == 0 {
		f.finishRound(r)
		return
	}
	r.timer = time.AfterFunc(timeout, func() {
		f.Post(func() { f.finishRound(r) })
	})
}

// finishRound assembles the subtree, stubbing silent children. Loop only.
func (f *Frame) finishRound(r *round) {
	if f.disc != r {
		return
	}
	f.disc = nil
	if r.timer != nil {
		r.timer.Stop()
	}

	node := &GraphNode{FrameID: f.id, Children: make([]*GraphNode, 0, len(r.children))}
	els := make(map[string]*html.Node, len(r.children))
	timedOut := 0
	for _, s := range r.children {
		c := s.node
		if c == nil {
			c = f.stub(StubTimeout)
			timedOut++
		}
		node.Children = append(node.Children, c)
		els[c.FrameID] = s.iframe
	}
	f.subtree = node
	f.frameEls = els
	f.graphGen = r.topoGen
	f.lastDiscovery = time.Now()

	if timedOut > 0 {
		f.logger.Warn("discovery incomplete", "request", r.requestID, "timed_out", timedOut)
	}
	f.logger.Debug("discovery finished", "request", r.requestID, "nodes", node.Count())

	if f.IsRoot() && f.onGraph != nil {
		f.onGraph(node.Clone())
	}
	for _, w := range r.waiters {
		w(node.Clone())
	}
}

func (f *Frame) handleInit(msg Message, env Envelope) {
	var p InitPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		f.logger.Debug("bad init payload", "error", err)
		return
	}
	f.depth = p.Depth
	timeout := time.Duration(p.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = f.cfg.DiscoveryTimeout
	}
	reply := msg.Source
	if reply == nil {
		reply = f.Parent()
	}
	requestID := env.RequestID
	f.discover(timeout, func(n *GraphNode) {
		n.TrackingID = p.TrackingID
		reply.Post(encode(Namespace, TypeChildResponse, requestID, n), f.window)
	})
}

func (f *Frame) handleChildResponse(msg Message, env Envelope) {
	r := f.disc
	if r == nil || env.RequestID != r.requestID {
		f.logger.Debug("stale child response", "request", env.RequestID)
		return
	}
	var n GraphNode
	if err := json.Unmarshal(env.Payload, &n); err != nil {
		f.logger.Debug("bad child response", "error", err)
		return
	}

	var slot *childSlot
	for _, s := range r.children {
		if s.node == nil && msg.From(s.win) {
			slot = s
			break
		}
	}
	if slot == nil && n.TrackingID != "" {
		for _, s := range r.children {
			if s.node == nil && s.trackingID == n.TrackingID {
				slot = s
				break
			}
		}
	}
	if slot == nil {
		f.logger.Debug("unmatched child response", "child", n.FrameID)
		return
	}

	n.TrackingID = ""
	if n.Children == nil {
		n.Children = []*GraphNode{}
	}
	slot.node = &n
	r.remaining--
	if r.remaining == 0 {
		f.finishRound(r)
	}
}

// topologyChanged reports an iframe insertion or removal. Loop only.
func (f *Frame) topologyChanged(originalFrameID string) {
	f.topoGen++
	if parent := f.Parent(); parent != nil {
		parent.Post(encode(Namespace, TypeDOMChanged, "", DOMChangedPayload{
			FrameID:         f.id,
			OriginalFrameID: originalFrameID,
		}), f.window)
		return
	}
	f.scheduleRediscovery()
}

func (f *Frame) handleDOMChanged(env Envelope) {
	var p DOMChangedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	f.logger.Debug("topology changed", "from", short(p.OriginalFrameID))
	f.topologyChanged(p.OriginalFrameID)
}

// scheduleRediscovery reruns discovery at the root, at least
// MinRediscoverInterval after the previous pass. Loop only.
func (f *Frame) scheduleRediscovery() {
	if f.rediscovering {
		return
	}
	f.rediscovering = true
	wait := f.cfg.MinRediscoverInterval - time.Since(f.lastDiscovery)
	if wait < 0 {
		wait = 0
	}
	time.AfterFunc(wait, func() {
		f.Post(func() {
			f.rediscovering = false
			f.discover(f.cfg.DiscoveryTimeout, func(*GraphNode) {})
		})
	})
}
