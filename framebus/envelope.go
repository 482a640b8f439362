// CLAUDE:SUMMARY Wire envelope and payload types exchanged between frames (discovery, RPC, topology change).
package framebus

import (
	"encoding/json"
	"fmt"
)

// Namespace tags every envelope owned by the frame bus. Messages in other
// namespaces are routed to handlers registered with Frame.Handle.
const Namespace = "IFRAME_GRAPH_DISCOVERY"

// Message types.
const (
	TypeInit          = "DISCOVERY_INIT"
	TypeChildResponse = "CHILD_RESPONSE"
	TypeDOMChanged    = "DOM_CHANGED"
	TypeEvalRequest   = "EVAL_REQUEST"
	TypeEvalResponse  = "EVAL_RESPONSE"
)

// Envelope is the wire format of every inter-frame message.
type Envelope struct {
	Namespace string          `json:"namespace"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// InitPayload asks a child frame to discover its subtree.
type InitPayload struct {
	ParentFrameID string `json:"parentFrameId"`
	TrackingID    string `json:"trackingId"`
	TimeoutMs     int64  `json:"timeoutMs"`
	Depth         int    `json:"depth"`
}

// DOMChangedPayload reports an iframe insertion or removal. FrameID is the
// forwarding frame, OriginalFrameID the frame whose document changed.
type DOMChangedPayload struct {
	FrameID         string `json:"frameId"`
	OriginalFrameID string `json:"originalFrameId"`
}

// EvalRequestPayload asks TargetFrameID to run Procedure with Params.
type EvalRequestPayload struct {
	Procedure     string          `json:"procedure"`
	Params        json.RawMessage `json:"params,omitempty"`
	TargetFrameID string          `json:"targetFrameId"`
}

// Evaluation error types.
const (
	ErrTypeExecution = "EXECUTION_ERROR"
	ErrTypeNotFound  = "NOT_FOUND"
	ErrTypeTimeout   = "TIMEOUT"
)

// EvalError is a procedure failure encoded for transport. It never crosses
// a frame boundary as a panic.
type EvalError struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	FrameID string `json:"frameId"`
}

func (e *EvalError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("framebus: %s in frame %s", e.Type, e.FrameID)
	}
	return fmt.Sprintf("framebus: %s in frame %s: %s", e.Type, e.FrameID, e.Message)
}

// EvalResponsePayload carries a procedure result back toward the caller.
type EvalResponsePayload struct {
	FrameID string          `json:"frameId"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *EvalError      `json:"error,omitempty"`
}

// encode builds a serialized envelope. Payload marshal failures are
// programming errors on fixed struct types and panic.
func encode(ns, typ, requestID string, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic("framebus: marshal payload: " + err.Error())
		}
		raw = b
	}
	data, err := json.Marshal(Envelope{Namespace: ns, Type: typ, Payload: raw, RequestID: requestID})
	if err != nil {
		panic("framebus: marshal envelope: " + err.Error())
	}
	return data
}

// Encode builds a serialized envelope in namespace ns, for extensions that
// exchange their own messages over Window.Post.
func Encode(ns, typ, requestID string, payload any) []byte {
	return encode(ns, typ, requestID, payload)
}

// decodeEnvelope parses data; ok is false for anything that is not an
// envelope.
func decodeEnvelope(data []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Namespace == "" || env.Type == "" {
		return Envelope{}, false
	}
	return env, true
}
