package framebus

import "sync"

// DefaultInboxSize bounds a window's pending messages.
const DefaultInboxSize = 1024

// Message is one delivered post.
type Message struct {
	Data   []byte
	Origin string
	Source *Window

	opaque bool
}

// From reports whether the message was posted by w and the sender is
// introspectable. Cross-origin senders are opaque and never compare equal;
// callers must correlate them by an id carried in the payload.
func (m Message) From(w *Window) bool {
	return !m.opaque && w != nil && m.Source == w
}

// Window is the mailbox of one frame: the only handle other frames get.
type Window struct {
	origin string
	inbox  chan Message

	mu     sync.Mutex
	closed bool
}

// NewWindow creates a window for a document of the given origin.
func NewWindow(origin string) *Window {
	return &Window{origin: origin, inbox: make(chan Message, DefaultInboxSize)}
}

// Origin returns the window's origin.
func (w *Window) Origin() string { return w.origin }

// Post delivers data from sender without blocking. Delivery is best effort:
// a closed window or a full inbox drops the message and Post returns false.
func (w *Window) Post(data []byte, from *Window) bool {
	if w == nil {
		return false
	}
	msg := Message{Data: data}
	if from != nil {
		msg.Origin = from.origin
		msg.Source = from
		msg.opaque = from.origin != w.origin
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.inbox <- msg:
		return true
	default:
		return false
	}
}

// Close stops delivery. Pending messages stay readable.
func (w *Window) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
