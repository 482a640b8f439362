// CLAUDE:SUMMARY Find engine entry points: Agent installation per frame, options, update and command types.
// Package find is the find-on-page engine that runs on top of the frame bus.
//
// Every frame of a page carries an Agent. The agent of the frame that
// receives host commands orchestrates: it discovers the frame tree, fans the
// search out to every frame through framebus.EvaluateInAll, merges the
// frame-relative matches into one ordered list and drives navigation. Each
// frame only ever touches its own document; everything else goes through
// registered procedures.
//
//	agents := find.Install(page, secret, find.WithSink(sink))
//	root := agents[page.Root().ID()]
//	err := root.HandleCommand(ctx, find.Command{
//		Action:        find.ActionStartFind,
//		InstanceID:    "tab-1",
//		SessionSecret: secret,
//		SearchTerm:    "needle",
//	})
package find

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/pagefind/framebus"
	"github.com/hazyhaar/pagefind/match"
)

var (
	// ErrBadSecret rejects a command or procedure carrying the wrong session
	// secret. Nothing is mutated.
	ErrBadSecret = errors.New("find: invalid session secret")
	// ErrTooManyInstances rejects a command that would create an instance
	// beyond Config.MaxInstances.
	ErrTooManyInstances = errors.New("find: too many instances")
	// ErrUnknownAction rejects a command whose action is not in the whitelist.
	ErrUnknownAction = errors.New("find: unknown action")
	// ErrNoMatch is returned by MatchBounds for an identifier that names no
	// match of the current result list.
	ErrNoMatch = errors.New("find: no such match")
	// ErrNoInstance is returned for operations on an instance that was
	// never created or was destroyed.
	ErrNoInstance = errors.New("find: no such instance")
	// ErrClosed is returned once the agent is closed.
	ErrClosed = errors.New("find: agent closed")
)

// Update actions.
const (
	ActionResultsUpdated     = "resultsUpdated"
	ActionCurrentChanged     = "currentChanged"
	ActionNavigationSelected = "navigationSelected"
)

// MatchContext is the text around one match.
type MatchContext struct {
	ContextBefore string `json:"contextBefore"`
	ContextAfter  string `json:"contextAfter"`
}

// Selection is the payload of a navigationSelected update.
type Selection struct {
	Label  string `json:"label"`
	Text   string `json:"text"`
	Action string `json:"action"`
}

// Update is one result notification to the host. MatchIdentifiers and
// Contexts are only set on full (resultsUpdated) updates.
type Update struct {
	Action           string             `json:"action"`
	InstanceID       string             `json:"instanceId"`
	SearchTerm       string             `json:"searchTerm"`
	TotalMatches     int                `json:"totalMatches"`
	CurrentMatch     int                `json:"currentMatch"`
	HiddenSkipped    int                `json:"hiddenSkipped"`
	OpToken          string             `json:"opToken"`
	MatchIdentifiers []match.Identifier `json:"matchIdentifiers,omitempty"`
	Contexts         []MatchContext     `json:"contexts,omitempty"`
	Selection        *Selection         `json:"selection,omitempty"`
}

// Sink consumes updates. Publish errors are logged and otherwise ignored.
type Sink interface {
	Publish(ctx context.Context, u Update) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, u Update) error

// Publish calls fn.
func (fn SinkFunc) Publish(ctx context.Context, u Update) error { return fn(ctx, u) }

// Config holds engine limits.
type Config struct {
	// MaxInstances caps concurrent find instances per agent. Default: 16.
	MaxInstances int `yaml:"max_instances"`
	// ContextLength is used when a command carries none. Default: 30.
	ContextLength int `yaml:"context_length"`
}

func (c *Config) defaults() {
	if c.MaxInstances <= 0 {
		c.MaxInstances = 16
	}
	if c.ContextLength <= 0 {
		c.ContextLength = match.DefaultContextLength
	}
	c.ContextLength = min(c.ContextLength, match.MaxContextLength)
}

// Option configures an Agent.
type Option func(*Agent)

// WithSink sets the destination of updates.
func WithSink(s Sink) Option {
	return func(a *Agent) { a.sink = s }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithConfig sets the engine limits.
func WithConfig(c Config) Option {
	return func(a *Agent) { a.cfg = c }
}

// Install creates an Agent in every frame of page, and in every frame
// added to the page later. All agents share secret and opts. The result
// holds the agents of the frames present now, keyed by frame id.
func Install(page *framebus.Page, secret string, opts ...Option) map[string]*Agent {
	return InstallFunc(page, secret, nil, opts...)
}

// InstallFunc is Install that also hands every agent it creates, present
// frames first and late frames as they are added, to added.
func InstallFunc(page *framebus.Page, secret string, added func(*Agent), opts ...Option) map[string]*Agent {
	out := make(map[string]*Agent)
	for _, f := range page.Frames() {
		a := NewAgent(f, secret, opts...)
		out[f.ID()] = a
		if added != nil {
			added(a)
		}
	}
	page.OnAdd(func(f *framebus.Frame) {
		a := NewAgent(f, secret, opts...)
		if added != nil {
			added(a)
		}
	})
	return out
}
