// CLAUDE:SUMMARY Frame actor: one loop goroutine per frame owning its DOM, window inbox, task queue and topology observer.
// Package framebus models a page as a tree of isolated frames that only
// talk through asynchronous messages.
//
// Each Frame owns a parsed document and runs a single loop goroutine that
// processes its inbox and posted tasks; nothing else touches the document.
// On top of that loop the package implements recursive frame graph
// discovery and cross-frame procedure calls (EvaluateInFrame,
// EvaluateInAll) with timeouts and request correlation.
package framebus

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hazyhaar/pagefind/connectivity"
	"github.com/hazyhaar/pagefind/idgen"
	"github.com/hazyhaar/pagefind/layout"
	"golang.org/x/net/html"
)

// ErrClosed is returned when a frame's loop has stopped.
var ErrClosed = errors.New("framebus: frame closed")

// Config holds the timing and size limits of the bus.
type Config struct {
	// DiscoveryTimeout bounds one discovery pass. Default: 2s.
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	// EvalTimeout bounds one procedure fan-out. Default: 3s.
	EvalTimeout time.Duration `yaml:"eval_timeout"`
	// MaxDepth is the deepest frame nesting that is discovered. Default: 16.
	MaxDepth int `yaml:"max_depth"`
	// Debounce is the topology observer window. Default: 100ms.
	Debounce time.Duration `yaml:"debounce"`
	// MinRediscoverInterval spaces mutation-triggered passes. Default: 500ms.
	MinRediscoverInterval time.Duration `yaml:"min_rediscover_interval"`
}

func (c *Config) defaults() {
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = 2 * time.Second
	}
	if c.EvalTimeout <= 0 {
		c.EvalTimeout = 3 * time.Second
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 16
	}
	if c.Debounce <= 0 {
		c.Debounce = 100 * time.Millisecond
	}
	if c.MinRediscoverInterval <= 0 {
		c.MinRediscoverInterval = 500 * time.Millisecond
	}
}

// MessageHandler receives envelopes of a registered namespace on the frame
// loop.
type MessageHandler func(msg Message, env Envelope)

// Frame is one isolated document and its event loop.
type Frame struct {
	id     string
	window *Window
	doc    *html.Node
	layout layout.Layout
	router *connectivity.Router
	logger *slog.Logger
	cfg    Config
	reqID  idgen.Generator

	onGraph  func(*GraphNode)
	recorder connectivity.CallRecorder

	mu       sync.Mutex
	parent   *Window
	content  map[*html.Node]*Window
	handlers map[string]MessageHandler

	tasks     taskQueue
	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	// Loop-owned state.
	depth         int
	disc          *round
	subtree       *GraphNode
	frameEls      map[string]*html.Node
	topoGen       uint64 // bumped by every topology change
	graphGen      uint64 // topoGen the cached subtree was discovered under
	lastDiscovery time.Time
	rediscovering bool
	stubSeq       int
	obs           *observer

	pmu     sync.Mutex
	pending map[string]*pendingCall
}

// Option configures a Frame.
type Option func(*Frame)

// WithOrigin sets the document origin. Frames of different origins see
// each other's messages as opaque.
func WithOrigin(origin string) Option {
	return func(f *Frame) { f.window = NewWindow(origin) }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Frame) { f.logger = l }
}

// WithLayout sets the rendering surface. Default: a 800×600 layout.Flow.
func WithLayout(l layout.Layout) Option {
	return func(f *Frame) { f.layout = l }
}

// WithConfig sets bus limits; zero fields take defaults.
func WithConfig(c Config) Option {
	return func(f *Frame) { f.cfg = c }
}

// WithID forces the frame identity. Default: 128 random bits.
func WithID(id string) Option {
	return func(f *Frame) { f.id = id }
}

// WithGraphListener is called on the loop with every graph the frame
// assembles as root.
func WithGraphListener(fn func(*GraphNode)) Option {
	return func(f *Frame) { f.onGraph = fn }
}

// WithCallRecorder observes every procedure executed in the frame.
func WithCallRecorder(rec connectivity.CallRecorder) Option {
	return func(f *Frame) { f.recorder = rec }
}

// NewFrame creates a frame for doc. The loop starts with Start.
func NewFrame(doc *html.Node, opts ...Option) *Frame {
	f := &Frame{
		doc:      doc,
		logger:   slog.Default(),
		reqID:    idgen.RequestID,
		content:  make(map[*html.Node]*Window),
		handlers: make(map[string]MessageHandler),
		frameEls: make(map[string]*html.Node),
		pending:  make(map[string]*pendingCall),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	f.tasks.signal = make(chan struct{}, 1)
	for _, o := range opts {
		o(f)
	}
	f.cfg.defaults()
	if f.id == "" {
		f.id = idgen.FrameID()
	}
	if f.window == nil {
		f.window = NewWindow("")
	}
	if f.layout == nil {
		f.layout = layout.NewFlow(doc, 800, 600)
	}
	f.logger = f.logger.With("component", "framebus", "frame", short(f.id))
	mws := []connectivity.HandlerMiddleware{
		connectivity.Recovery(f.logger),
		connectivity.Logging(f.logger),
	}
	if f.recorder != nil {
		mws = append([]connectivity.HandlerMiddleware{connectivity.Observe(f.recorder)}, mws...)
	}
	f.router = connectivity.New(
		connectivity.WithLogger(f.logger),
		connectivity.WithMiddleware(mws...),
	)
	f.obs = newObserver(f.cfg.Debounce, func() { f.topologyChanged(f.id) })
	return f
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ID returns the frame identity.
func (f *Frame) ID() string { return f.id }

// Window returns the frame's mailbox.
func (f *Frame) Window() *Window { return f.window }

// Logger returns the frame logger.
func (f *Frame) Logger() *slog.Logger { return f.logger }

// Config returns the effective bus limits.
func (f *Frame) Config() Config { return f.cfg }

// Layout returns the rendering surface. Queries must run on the loop.
func (f *Frame) Layout() layout.Layout { return f.layout }

// Doc returns the document. It must only be used on the loop.
func (f *Frame) Doc() *html.Node { return f.doc }

// Register exposes a procedure to EvaluateInFrame/EvaluateInAll callers.
func (f *Frame) Register(name string, h connectivity.Handler) {
	f.router.RegisterLocal(name, h)
}

// Handle routes envelopes of namespace ns to fn.
func (f *Frame) Handle(ns string, fn MessageHandler) {
	f.mu.Lock()
	f.handlers[ns] = fn
	f.mu.Unlock()
}

// Parent returns the parent window, or nil for the root.
func (f *Frame) Parent() *Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parent
}

// IsRoot reports whether the frame has no parent.
func (f *Frame) IsRoot() bool { return f.Parent() == nil }

// Attach makes child the content of the iframe element el in f.
func (f *Frame) Attach(el *html.Node, child *Frame) {
	f.mu.Lock()
	f.content[el] = child.window
	f.mu.Unlock()
	child.mu.Lock()
	child.parent = f.window
	child.mu.Unlock()
}

// Detach forgets the content window of el.
func (f *Frame) Detach(el *html.Node) {
	f.mu.Lock()
	delete(f.content, el)
	f.mu.Unlock()
}

// ContentWindow returns the window hosted by iframe el, or nil.
func (f *Frame) ContentWindow(el *html.Node) *Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content[el]
}

// Start runs the frame loop until ctx is done or Close is called.
func (f *Frame) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		f.obs.scan(f.doc)
		go f.run(ctx)
	})
}

// Close stops the loop and closes the window.
func (f *Frame) Close() {
	f.closeOnce.Do(func() {
		f.window.Close()
		close(f.stop)
	})
}

// Done is closed once the loop has exited.
func (f *Frame) Done() <-chan struct{} { return f.done }

func (f *Frame) run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			f.window.Close()
			return
		case <-f.stop:
			return
		case msg := <-f.window.inbox:
			f.runTask(func() { f.handleMessage(msg) })
		case <-f.tasks.signal:
			for _, fn := range f.tasks.drain() {
				f.runTask(fn)
			}
		case <-f.obs.timerC():
			f.obs.flush()
		}
	}
}

func (f *Frame) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("frame task panic recovered", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Post queues fn on the loop. It returns false once the frame is closed.
func (f *Frame) Post(fn func()) bool {
	select {
	case <-f.stop:
		return false
	case <-f.done:
		return false
	default:
	}
	f.tasks.push(fn)
	return true
}

// Exec runs fn on the loop and waits for it. It must not be called from
// the loop itself.
func (f *Frame) Exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !f.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return ErrClosed
	}
}

// Mutate runs fn against the document on the loop, then lets the topology
// observer see the result.
func (f *Frame) Mutate(ctx context.Context, fn func(doc *html.Node)) error {
	return f.Exec(ctx, func() {
		fn(f.doc)
		f.obs.scan(f.doc)
	})
}

func (f *Frame) handleMessage(msg Message) {
	env, ok := decodeEnvelope(msg.Data)
	if !ok {
		return
	}
	if env.Namespace != Namespace {
		f.mu.Lock()
		h := f.handlers[env.Namespace]
		f.mu.Unlock()
		if h != nil {
			h(msg, env)
		}
		return
	}
	switch env.Type {
	case TypeInit:
		f.handleInit(msg, env)
	case TypeChildResponse:
		f.handleChildResponse(msg, env)
	case TypeDOMChanged:
		f.handleDOMChanged(env)
	case TypeEvalRequest:
		f.handleEvalRequest(msg, env)
	case TypeEvalResponse:
		f.handleEvalResponse(msg, env)
	default:
		f.logger.Debug("unknown message type", "type", env.Type)
	}
}

type taskQueue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func (q *taskQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *taskQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
