// CLAUDE:SUMMARY Page registry of frames and their hosting iframes; starts late frames and reports topology changes.
package framebus

import (
	"context"
	"sync"

	"golang.org/x/net/html"
)

// Page owns a root frame and every frame nested under it.
type Page struct {
	mu     sync.Mutex
	root   *Frame
	frames []*Frame
	hosts  map[*Frame]host
	ctx    context.Context
	onAdd  []func(*Frame)
}

type host struct {
	parent *Frame
	iframe *html.Node
}

// NewPage creates a page around its root frame.
func NewPage(root *Frame) *Page {
	return &Page{root: root, frames: []*Frame{root}, hosts: make(map[*Frame]host)}
}

// Root returns the top-level frame.
func (p *Page) Root() *Frame { return p.root }

// Frames returns every frame, root first, in insertion order.
func (p *Page) Frames() []*Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Frame(nil), p.frames...)
}

// OnAdd registers fn to run for every frame added from now on, before the
// frame starts.
func (p *Page) OnAdd(fn func(*Frame)) {
	p.mu.Lock()
	p.onAdd = append(p.onAdd, fn)
	p.mu.Unlock()
}

// Add hosts child in iframe el of parent. A page already started starts
// the child immediately and reports the topology change from parent, so
// the next graph read rediscovers.
func (p *Page) Add(parent *Frame, el *html.Node, child *Frame) {
	parent.Attach(el, child)
	p.mu.Lock()
	p.frames = append(p.frames, child)
	p.hosts[child] = host{parent: parent, iframe: el}
	ctx := p.ctx
	hooks := append(([]func(*Frame))(nil), p.onAdd...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(child)
	}
	if ctx != nil {
		child.Start(ctx)
		parent.Post(func() { parent.topologyChanged(parent.id) })
	}
}

// Remove closes child and every frame nested in it, and reports the
// topology change from its parent.
func (p *Page) Remove(child *Frame) {
	p.mu.Lock()
	owner := p.hosts[child].parent
	var doomed []*Frame
	var collect func(*Frame)
	collect = func(f *Frame) {
		doomed = append(doomed, f)
		for c, h := range p.hosts {
			if h.parent == f {
				collect(c)
			}
		}
	}
	collect(child)
	for _, f := range doomed {
		if h, ok := p.hosts[f]; ok {
			h.parent.Detach(h.iframe)
			delete(p.hosts, f)
		}
	}
	kept := p.frames[:0]
	for _, f := range p.frames {
		drop := false
		for _, d := range doomed {
			if d == f {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, f)
		}
	}
	p.frames = kept
	started := p.ctx != nil
	p.mu.Unlock()
	for _, f := range doomed {
		f.Close()
	}
	if owner != nil && started {
		owner.Post(func() { owner.topologyChanged(owner.id) })
	}
}

// FrameByID returns the frame with the given identity, or nil.
func (p *Page) FrameByID(id string) *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.frames {
		if f.id == id {
			return f
		}
	}
	return nil
}

// Start starts every frame.
func (p *Page) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	frames := append([]*Frame(nil), p.frames...)
	p.mu.Unlock()
	for _, f := range frames {
		f.Start(ctx)
	}
}

// Close stops every frame.
func (p *Page) Close() {
	for _, f := range p.Frames() {
		f.Close()
	}
}
