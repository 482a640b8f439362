// CLAUDE:SUMMARY Cross-frame procedure calls: evaluate in every reachable frame or in one frame, routed along the discovered graph.
package framebus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hazyhaar/pagefind/connectivity"
	"github.com/hazyhaar/pagefind/dom"
	"golang.org/x/net/html/atom"
)

// pendingCall correlates one fan-out with its responses.
type pendingCall struct {
	expected map[string]bool
	results  map[string]json.RawMessage
	errs     map[string]*EvalError
	done     chan struct{}
}

func (p *pendingCall) complete() bool {
	return len(p.results)+len(p.errs) >= len(p.expected)
}

func (f *Frame) newCall(ids []string) (string, *pendingCall) {
	call := &pendingCall{
		expected: make(map[string]bool, len(ids)),
		results:  make(map[string]json.RawMessage),
		errs:     make(map[string]*EvalError),
		done:     make(chan struct{}),
	}
	for _, id := range ids {
		call.expected[id] = true
	}
	id := f.reqID()
	f.pmu.Lock()
	f.pending[id] = call
	f.pmu.Unlock()
	return id, call
}

func (f *Frame) dropCall(id string) {
	f.pmu.Lock()
	delete(f.pending, id)
	f.pmu.Unlock()
}

// deliver records a response for a call this frame owns. It returns false
// when requestID belongs to someone else.
func (f *Frame) deliver(requestID string, p EvalResponsePayload) bool {
	f.pmu.Lock()
	defer f.pmu.Unlock()
	call := f.pending[requestID]
	if call == nil {
		return false
	}
	if !call.expected[p.FrameID] || call.complete() {
		return true
	}
	if _, dup := call.results[p.FrameID]; dup {
		return true
	}
	if _, dup := call.errs[p.FrameID]; dup {
		return true
	}
	if p.Error != nil {
		call.errs[p.FrameID] = p.Error
	} else {
		call.results[p.FrameID] = p.Result
	}
	if call.complete() {
		close(call.done)
	}
	return true
}

func (f *Frame) snapshot(requestID string) (map[string]json.RawMessage, map[string]*EvalError) {
	f.pmu.Lock()
	defer f.pmu.Unlock()
	call := f.pending[requestID]
	res := make(map[string]json.RawMessage, len(call.results)+len(call.errs))
	errs := make(map[string]*EvalError, len(call.errs))
	for k, v := range call.results {
		res[k] = v
	}
	for k, v := range call.errs {
		res[k] = nil
		errs[k] = v
	}
	return res, errs
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	}
	return json.Marshal(params)
}

// EvaluateInAll runs procedure in every reachable frame of the cached graph
// (this one included) and returns one entry per frame that answered before
// the timeout. Frames whose procedure failed map to nil; frames that never
// answered are absent.
func (f *Frame) EvaluateInAll(ctx context.Context, procedure string, params any) map[string]json.RawMessage {
	raw, err := marshalParams(params)
	if err != nil {
		f.logger.Warn("evaluate in all: bad params", "procedure", procedure, "error", err)
		return map[string]json.RawMessage{}
	}
	ids := []string{f.id}
	if g, err := f.Graph(ctx); err == nil && g != nil {
		ids = g.Flatten()
	}

	reqID, call := f.newCall(ids)
	defer f.dropCall(reqID)

	for _, id := range ids {
		if id == f.id {
			f.execute(procedure, raw, func(p EvalResponsePayload) { f.deliver(reqID, p) })
			continue
		}
		req := EvalRequestPayload{Procedure: procedure, Params: raw, TargetFrameID: id}
		f.Post(func() { f.forward(req, reqID) })
	}

	tctx, cancel := context.WithTimeout(ctx, f.cfg.EvalTimeout)
	defer cancel()
	select {
	case <-call.done:
	case <-tctx.Done():
		f.logger.Debug("evaluate in all: partial", "procedure", procedure, "expected", len(ids))
	}
	res, errs := f.snapshot(reqID)
	for id, e := range errs {
		f.logger.Warn("procedure failed in frame", "procedure", procedure, "target", short(id), "type", e.Type, "error", e.Message)
	}
	return res
}

// EvaluateInFrame runs procedure in frame frameID, which must be this frame
// or one of its descendants. A frame that does not answer in time yields an
// *EvalError of type TIMEOUT.
func (f *Frame) EvaluateInFrame(ctx context.Context, frameID, procedure string, params any) (json.RawMessage, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	reqID, call := f.newCall([]string{frameID})
	defer f.dropCall(reqID)

	if frameID == f.id {
		f.execute(procedure, raw, func(p EvalResponsePayload) { f.deliver(reqID, p) })
	} else {
		req := EvalRequestPayload{Procedure: procedure, Params: raw, TargetFrameID: frameID}
		if !f.Post(func() { f.forward(req, reqID) }) {
			return nil, ErrClosed
		}
	}

	tctx, cancel := context.WithTimeout(ctx, f.cfg.EvalTimeout)
	defer cancel()
	select {
	case <-call.done:
	case <-tctx.Done():
		return nil, &EvalError{Type: ErrTypeTimeout, FrameID: frameID}
	}
	res, errs := f.snapshot(reqID)
	if e := errs[frameID]; e != nil {
		return nil, e
	}
	return res[frameID], nil
}

// execute runs a procedure on its own goroutine so handlers may enter the
// loop through Exec and issue nested calls.
func (f *Frame) execute(procedure string, params json.RawMessage, reply func(EvalResponsePayload)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.EvalTimeout)
		defer cancel()
		resp := EvalResponsePayload{FrameID: f.id}
		out, err := f.router.Call(ctx, procedure, params)
		switch {
		case err != nil:
			resp.Error = f.evalError(err)
		case len(out) == 0:
			resp.Result = json.RawMessage("null")
		default:
			resp.Result = out
		}
		reply(resp)
	}()
}

func (f *Frame) evalError(err error) *EvalError {
	var nf *connectivity.ErrProcedureNotFound
	var to *connectivity.ErrCallTimeout
	switch {
	case errors.As(err, &nf):
		return &EvalError{Type: ErrTypeNotFound, Message: err.Error(), FrameID: f.id}
	case errors.As(err, &to), errors.Is(err, context.DeadlineExceeded):
		return &EvalError{Type: ErrTypeTimeout, Message: err.Error(), FrameID: f.id}
	}
	return &EvalError{Type: ErrTypeExecution, Message: err.Error(), FrameID: f.id}
}

// forward sends an EVAL_REQUEST toward its target: to the child subtree
// known to contain it, else to every child window. Loop only.
func (f *Frame) forward(req EvalRequestPayload, requestID string) {
	data := encode(Namespace, TypeEvalRequest, requestID, req)
	if f.subtree != nil {
		for _, c := range f.subtree.Children {
			if c.Error != "" || c.Find(req.TargetFrameID) == nil {
				continue
			}
			if win := f.ContentWindow(f.frameEls[c.FrameID]); win != nil {
				win.Post(data, f.window)
				return
			}
		}
	}
	for _, el := range dom.ByTag(f.doc, atom.Iframe) {
		if win := f.ContentWindow(el); win != nil {
			win.Post(data, f.window)
		}
	}
}

func (f *Frame) handleEvalRequest(msg Message, env Envelope) {
	var p EvalRequestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	if p.TargetFrameID != f.id {
		f.forward(p, env.RequestID)
		return
	}
	reply := msg.Source
	if reply == nil {
		reply = f.Parent()
	}
	requestID := env.RequestID
	f.execute(p.Procedure, p.Params, func(r EvalResponsePayload) {
		reply.Post(encode(Namespace, TypeEvalResponse, requestID, r), f.window)
	})
}

func (f *Frame) handleEvalResponse(msg Message, env Envelope) {
	var p EvalResponsePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	if f.deliver(env.RequestID, p) {
		return
	}
	if parent := f.Parent(); parent != nil {
		parent.Post(msg.Data, f.window)
		return
	}
	f.logger.Debug("stale eval response", "request", env.RequestID, "from", short(p.FrameID))
}
