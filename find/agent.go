package find

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hazyhaar/pagefind/framebus"
	"github.com/hazyhaar/pagefind/horosafe"
)

// Agent is the find engine of one frame. Any agent can orchestrate; in
// practice the host sends commands to the root frame's agent and the others
// only answer procedures.
type Agent struct {
	frame  *framebus.Frame
	secret string
	cfg    Config
	sink   Sink
	logger *slog.Logger

	// Loop-owned.
	engines map[string]*engine

	mu        sync.Mutex
	instances map[string]*instance
	click     *point
	clickSeq  uint64
	closed    bool
}

type point struct{ x, y float64 }

// NewAgent installs the find procedures on f. Procedures and commands are
// only honored when they carry secret.
func NewAgent(f *framebus.Frame, secret string, opts ...Option) *Agent {
	a := &Agent{
		frame:     f,
		secret:    secret,
		engines:   make(map[string]*engine),
		instances: make(map[string]*instance),
	}
	for _, o := range opts {
		o(a)
	}
	a.cfg.defaults()
	if a.logger == nil {
		a.logger = f.Logger()
	}
	a.logger = a.logger.With("component", "find")
	a.registerProcedures()
	f.Handle(clickNamespace, a.handleClick)
	return a
}

// Frame returns the frame the agent runs in.
func (a *Agent) Frame() *framebus.Frame { return a.frame }

// engine returns the engine of instance id. It creates one when create is
// set and the per-frame cap allows it. Loop only.
func (a *Agent) engine(id string, create bool) *engine {
	if e, ok := a.engines[id]; ok {
		return e
	}
	if !create || len(a.engines) >= a.cfg.MaxInstances {
		return nil
	}
	e := newEngine(a, id)
	a.engines[id] = e
	return e
}

// withEngine runs fn on the frame loop with the engine of id. It reports
// false when there is no engine.
func (a *Agent) withEngine(ctx context.Context, id string, create bool, fn func(e *engine)) (bool, error) {
	found := false
	err := a.frame.Exec(ctx, func() {
		e := a.engine(id, create)
		if e == nil {
			return
		}
		found = true
		fn(e)
	})
	return found, err
}

// params is the payload of every find procedure.
type params struct {
	Secret        string  `json:"sessionSecret"`
	InstanceID    string  `json:"instanceId"`
	SearchTerm    string  `json:"searchTerm,omitempty"`
	SearchMode    string  `json:"searchMode,omitempty"`
	ContextLength int     `json:"contextLength,omitempty"`
	Index         int     `json:"index,omitempty"`
	Removed       bool    `json:"removed,omitempty"`
	X             float64 `json:"x,omitempty"`
	Y             float64 `json:"y,omitempty"`
	ChildFrameID  string  `json:"childFrameId,omitempty"`
	Label         string  `json:"label,omitempty"`
	Prefix        string  `json:"prefix,omitempty"`
}

type procFunc func(ctx context.Context, p params) (any, error)

// register wraps fn with decoding, secret checking and encoding.
func (a *Agent) register(name string, fn procFunc) {
	a.frame.Register(name, func(ctx context.Context, payload []byte) ([]byte, error) {
		var p params
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("find: %s: %w", name, err)
			}
		}
		if !horosafe.SecretEqual(a.secret, p.Secret) {
			a.logger.Warn("procedure rejected", "procedure", name, "error", ErrBadSecret)
			return nil, ErrBadSecret
		}
		p.InstanceID = horosafe.SanitizeIdentifier(p.InstanceID, MaxInstanceIDLen, DefaultInstance)
		out, err := fn(ctx, p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	})
}

// instance returns the orchestrator of id, creating it within the cap.
func (a *Agent) instance(id string, create bool) (*instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if inst, ok := a.instances[id]; ok {
		return inst, nil
	}
	if !create {
		return nil, ErrNoInstance
	}
	if len(a.instances) >= a.cfg.MaxInstances {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManyInstances, a.cfg.MaxInstances)
	}
	inst := newInstance(a, id)
	a.instances[id] = inst
	go inst.loop()
	return inst, nil
}

// Instances returns the ids of the live instances, sorted.
func (a *Agent) Instances() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.instances))
	for id := range a.instances {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// HandleCommand validates cmd and runs it on the instance's dispatcher. A
// bad secret or unknown action is rejected before any state is touched.
// Cross-frame failures never surface here; they degrade to partial results.
func (a *Agent) HandleCommand(ctx context.Context, cmd Command) error {
	r, err := a.validate(cmd)
	if err != nil {
		a.logger.Warn("command rejected", "action", cmd.Action, "error", err)
		return err
	}
	inst, err := a.instance(r.instanceID, true)
	if err != nil {
		a.logger.Warn("command rejected", "action", r.action, "instance", r.instanceID, "error", err)
		return err
	}
	gen := inst.gen.Load()
	if r.action == ActionStartFind {
		gen = inst.gen.Add(1)
	}
	return inst.do(ctx, func(ctx context.Context) error { return inst.run(ctx, gen, r) })
}

// Destroy clears instance id in every frame and stops its dispatcher.
func (a *Agent) Destroy(ctx context.Context, id string) error {
	id = horosafe.SanitizeIdentifier(id, MaxInstanceIDLen, DefaultInstance)
	inst, err := a.instance(id, false)
	if err != nil {
		return err
	}
	err = inst.do(ctx, func(ctx context.Context) error {
		a.frame.EvaluateInAll(ctx, procDestroy, inst.params())
		return nil
	})
	a.mu.Lock()
	delete(a.instances, id)
	a.mu.Unlock()
	inst.stop()
	return err
}

// Close stops every dispatcher. Highlights are left in place.
func (a *Agent) Close() {
	a.mu.Lock()
	a.closed = true
	insts := make([]*instance, 0, len(a.instances))
	for _, inst := range a.instances {
		insts = append(insts, inst)
	}
	a.instances = make(map[string]*instance)
	a.mu.Unlock()
	for _, inst := range insts {
		inst.stop()
	}
}

func (a *Agent) publish(ctx context.Context, u Update) {
	if a.sink == nil {
		return
	}
	if err := a.sink.Publish(ctx, u); err != nil {
		a.logger.Warn("publish update", "instance", u.InstanceID, "action", u.Action, "error", err)
	}
}
