package mux

import "fmt"

// State is the lifecycle of one stream id.
type State uint8

const (
	// StateNew: id allocated, request frame not yet answered.
	StateNew State = iota
	// StateActive: at least one payload frame exchanged.
	StateActive
	// StateComplete: every direction the stream uses has completed.
	StateComplete
	// StateCancelled: either side sent CANCEL; further frames are dropped.
	StateCancelled
	// StateErrored: an ERROR frame ended the stream.
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateActive:
		return "ACTIVE"
	case StateComplete:
		return "COMPLETE"
	case StateCancelled:
		return "CANCELLED"
	case StateErrored:
		return "ERRORED"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether s is final. Terminal ids are not reusable until
// explicitly released.
func (s State) Terminal() bool {
	return s >= StateComplete
}

// EventKind tags an event delivered to a stream handler.
type EventKind uint8

const (
	// EventPayload carries one element of stream data.
	EventPayload EventKind = iota
	// EventComplete marks the end of the inbound direction.
	EventComplete
	// EventError carries a stream-level error. The stream is terminal.
	EventError
	// EventCancel reports peer cancellation. The stream is terminal.
	EventCancel
)

// Event is one occurrence on a stream, delivered synchronously during a
// read pass.
type Event struct {
	Kind EventKind
	Data []byte

	// ErrorCode and ErrorMessage are set for EventError.
	ErrorCode    uint32
	ErrorMessage string
}

// Handler consumes events for one stream.
type Handler func(Event)

type direction uint8

const (
	dirRequester direction = iota
	dirResponder
)

// entry is the per-stream record in the endpoint's table.
type entry struct {
	id        uint32
	kind      frameKind
	state     State
	dir       direction
	handler   Handler
	server    *ServerStream
	opIndex   uint32
	inDone    bool
	outDone   bool
	budget    uint32
	pending   []pendingSend
	completeQ bool
}

type pendingSend struct {
	data     []byte
	complete bool
}

// frameKind is the interaction shape of the stream, from its opening frame.
type frameKind uint8

const (
	kindRequestResponse frameKind = iota
	kindRequestStream
	kindRequestChannel
)

// usesOutbound reports whether this side ever sends payload frames on the
// stream.
func (e *entry) usesOutbound() bool {
	if e.kind == kindRequestChannel {
		return true
	}
	return e.dir == dirResponder
}

// usesInbound reports whether this side ever receives payload frames.
func (e *entry) usesInbound() bool {
	if e.kind == kindRequestChannel {
		return true
	}
	return e.dir == dirRequester
}

// settle moves the entry to COMPLETE once every direction it uses is done.
func (e *entry) settle() {
	if e.state.Terminal() {
		return
	}
	inOK := !e.usesInbound() || e.inDone
	outOK := !e.usesOutbound() || e.outDone
	if inOK && outOK {
		e.state = StateComplete
	}
}
