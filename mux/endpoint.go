package mux

import (
	"strconv"

	"go.uber.org/zap"

	iotaruntime "github.com/wippyai/iota-runtime"
	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/frame"
)

// Sink consumes outbound frames. The engine implements it by encoding into
// the shared buffer and signalling the peer; tests wire two endpoints
// directly together.
type Sink interface {
	SendFrame(f frame.Frame) error
}

// Role determines stream id parity: host-initiated streams use odd ids,
// guest-initiated streams even ids, so both sides allocate locally-unique
// ids without coordination.
type Role uint8

const (
	RoleHost Role = iota
	RoleGuest
)

// Request describes an inbound interaction opening.
type Request struct {
	Operation uint32
	Data      []byte
}

// Endpoint is one side's demultiplexing router: it allocates stream ids,
// tracks per-stream state, and routes decoded frames to the owning stream's
// handler synchronously during a read pass.
//
// An Endpoint is not safe for concurrent use; each side of the transport
// runs a single cooperative loop.
type Endpoint struct {
	role    Role
	sink    Sink
	streams map[uint32]*entry
	nextID  uint32
	failed  error

	// OnRequest serves inbound request-response, stream and channel
	// openings. A nil handler rejects every request.
	OnRequest func(s *ServerStream, req Request)

	// OnFireAndForget serves inbound fire-and-forget requests. No stream
	// exists and no reply is possible.
	OnFireAndForget func(operation uint32, data []byte)
}

// NewEndpoint creates an endpoint for one side of a transport session.
func NewEndpoint(role Role, sink Sink) *Endpoint {
	ep := &Endpoint{
		role:    role,
		sink:    sink,
		streams: make(map[uint32]*entry),
	}
	if role == RoleHost {
		ep.nextID = 1
	} else {
		ep.nextID = 2
	}
	return ep
}

// Failed returns the transport-fatal error that terminated this endpoint,
// or nil while it is healthy.
func (ep *Endpoint) Failed() error {
	return ep.failed
}

// StreamState reports the state of a stream id.
func (ep *Endpoint) StreamState(id uint32) (State, bool) {
	e, ok := ep.streams[id]
	if !ok {
		return 0, false
	}
	return e.state, true
}

func (ep *Endpoint) ownsID(id uint32) bool {
	if ep.role == RoleHost {
		return id%2 == 1
	}
	return id%2 == 0
}

func (ep *Endpoint) allocID() (uint32, error) {
	for {
		id := ep.nextID
		if id > iotaruntime.MaxStreamID {
			return 0, errors.New(errors.PhaseMux, errors.KindOverflow).
				Detail("stream id space exhausted").
				Build()
		}
		ep.nextID += 2
		if _, live := ep.streams[id]; !live {
			return id, nil
		}
	}
}

func (ep *Endpoint) send(f frame.Frame) error {
	return ep.sink.SendFrame(f)
}

// OpenRequestResponse opens a request-response interaction for an operation.
// The handler receives exactly one payload or error event.
func (ep *Endpoint) OpenRequestResponse(opIndex uint32, data []byte, h Handler) (uint32, error) {
	return ep.open(kindRequestResponse, frame.TypeRequestResponse, opIndex, data, 0, h)
}

// OpenStream opens a request-stream interaction. initialN is the number of
// elements the peer may send before waiting for RequestMore.
func (ep *Endpoint) OpenStream(opIndex uint32, data []byte, initialN uint32, h Handler) (uint32, error) {
	return ep.open(kindRequestStream, frame.TypeRequestStream, opIndex, data, initialN, h)
}

// OpenChannel opens a bidirectional channel. Outbound elements go through
// SendPayload; they queue until the peer grants budget with REQUEST_N.
func (ep *Endpoint) OpenChannel(opIndex uint32, initialN uint32, h Handler) (uint32, error) {
	return ep.open(kindRequestChannel, frame.TypeRequestChannel, opIndex, nil, initialN, h)
}

func (ep *Endpoint) open(kind frameKind, ft frame.Type, opIndex uint32, data []byte, initialN uint32, h Handler) (uint32, error) {
	if ep.failed != nil {
		return 0, ep.failed
	}
	id, err := ep.allocID()
	if err != nil {
		return 0, err
	}

	e := &entry{
		id:      id,
		kind:    kind,
		state:   StateNew,
		dir:     dirRequester,
		handler: h,
		opIndex: opIndex,
	}
	if kind != kindRequestChannel {
		// Request-response and request-stream carry all requester data in
		// the opening frame.
		e.outDone = true
	}
	ep.streams[id] = e

	if err := ep.send(frame.Request(ft, id, opIndex, initialN, data)); err != nil {
		delete(ep.streams, id)
		return 0, err
	}
	logger().Debug("stream opened",
		zap.Uint32("stream", id),
		zap.Uint32("operation", opIndex),
		zap.Stringer("type", ft))
	return id, nil
}

// FireAndForget sends a request expecting no reply. No stream is created.
func (ep *Endpoint) FireAndForget(opIndex uint32, data []byte) error {
	if ep.failed != nil {
		return ep.failed
	}
	id, err := ep.allocID()
	if err != nil {
		return err
	}
	// The id satisfies frame addressing but is never tracked: fire-and-
	// forget produces no stream.
	return ep.send(frame.Request(frame.TypeRequestFNF, id, opIndex, 0, data))
}

// SendPayload emits one outbound element on a channel (requester side) or
// any stream this side responds to. Elements beyond the peer's granted
// budget are queued and flushed when REQUEST_N arrives.
func (ep *Endpoint) SendPayload(id uint32, data []byte, complete bool) error {
	if ep.failed != nil {
		return ep.failed
	}
	e, ok := ep.streams[id]
	if !ok {
		return errors.NotFound(errors.PhaseMux, "stream", streamName(id))
	}
	if e.state == StateCancelled {
		// Buffered-but-undelivered output is discarded after cancel.
		return nil
	}
	if e.state.Terminal() {
		return errors.ProtocolViolation(errors.PhaseMux, "send on terminal stream")
	}
	if !e.usesOutbound() {
		return errors.ProtocolViolation(errors.PhaseMux, "send on inbound-only stream")
	}

	needsBudget := e.kind != kindRequestResponse
	if needsBudget && e.budget == 0 {
		e.pending = append(e.pending, pendingSend{data: data, complete: complete})
		return nil
	}
	return ep.emitPayload(e, data, complete)
}

// CompleteOutbound signals the end of this side's payload direction.
func (ep *Endpoint) CompleteOutbound(id uint32) error {
	if ep.failed != nil {
		return ep.failed
	}
	e, ok := ep.streams[id]
	if !ok {
		return errors.NotFound(errors.PhaseMux, "stream", streamName(id))
	}
	if e.state == StateCancelled {
		return nil
	}
	if e.state.Terminal() {
		return errors.ProtocolViolation(errors.PhaseMux, "complete on terminal stream")
	}
	if len(e.pending) > 0 {
		e.completeQ = true
		return nil
	}
	if err := ep.send(frame.Complete(id)); err != nil {
		return err
	}
	e.outDone = true
	e.settle()
	return nil
}

// SendError terminates a stream with an ERROR frame.
func (ep *Endpoint) SendError(id uint32, code uint32, message string) error {
	if ep.failed != nil {
		return ep.failed
	}
	e, ok := ep.streams[id]
	if !ok {
		return errors.NotFound(errors.PhaseMux, "stream", streamName(id))
	}
	if e.state.Terminal() {
		return nil
	}
	if err := ep.send(frame.Error(id, code, message)); err != nil {
		return err
	}
	e.state = StateErrored
	e.pending = nil
	return nil
}

// Cancel stops a stream early. Cancelling a stream already in a terminal
// state is a no-op, never an error.
func (ep *Endpoint) Cancel(id uint32) error {
	e, ok := ep.streams[id]
	if !ok || e.state.Terminal() {
		return nil
	}
	if err := ep.send(frame.Cancel(id)); err != nil {
		return err
	}
	e.state = StateCancelled
	e.pending = nil
	return nil
}

// RequestMore grants the peer n additional elements on a stream or channel.
func (ep *Endpoint) RequestMore(id uint32, n uint32) error {
	if ep.failed != nil {
		return ep.failed
	}
	e, ok := ep.streams[id]
	if !ok {
		return errors.NotFound(errors.PhaseMux, "stream", streamName(id))
	}
	if e.state.Terminal() {
		return nil
	}
	return ep.send(frame.RequestN(id, n))
}

// Release frees a terminal stream id for reuse. Releasing a live stream is
// a protocol violation.
func (ep *Endpoint) Release(id uint32) error {
	e, ok := ep.streams[id]
	if !ok {
		return nil
	}
	if !e.state.Terminal() {
		return errors.ProtocolViolation(errors.PhaseMux, "release of live stream "+streamName(id))
	}
	delete(ep.streams, id)
	return nil
}

// Fail terminates the endpoint with a transport-fatal error. Every live
// stream is errored and the failure is reported to its handler.
func (ep *Endpoint) Fail(err error) {
	if ep.failed != nil {
		return
	}
	ep.failed = err
	logger().Error("transport failed", zap.Error(err))
	for _, e := range ep.streams {
		if e.state.Terminal() {
			continue
		}
		e.state = StateErrored
		e.pending = nil
		ep.deliver(e, Event{
			Kind:         EventError,
			ErrorCode:    frame.ErrCodeConnectionErr,
			ErrorMessage: err.Error(),
		})
	}
}

func (ep *Endpoint) emitPayload(e *entry, data []byte, complete bool) error {
	if err := ep.send(frame.Payload(e.id, data, complete)); err != nil {
		return err
	}
	if e.kind != kindRequestResponse && e.budget > 0 {
		e.budget--
	}
	if e.state == StateNew {
		e.state = StateActive
	}
	if complete {
		e.outDone = true
		e.settle()
	}
	return nil
}

func (ep *Endpoint) flushPending(e *entry) error {
	for len(e.pending) > 0 && e.budget > 0 {
		p := e.pending[0]
		e.pending = e.pending[1:]
		if err := ep.emitPayload(e, p.data, p.complete); err != nil {
			return err
		}
	}
	if len(e.pending) == 0 && e.completeQ && !e.outDone && !e.state.Terminal() {
		e.completeQ = false
		if err := ep.send(frame.Complete(e.id)); err != nil {
			return err
		}
		e.outDone = true
		e.settle()
	}
	return nil
}

func (ep *Endpoint) deliver(e *entry, ev Event) {
	if e.dir == dirResponder && e.server != nil && e.server.onEvent != nil {
		e.server.onEvent(ev)
		return
	}
	if e.handler != nil {
		e.handler(ev)
	}
}

func streamName(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
