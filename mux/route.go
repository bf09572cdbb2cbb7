package mux

import (
	"go.uber.org/zap"

	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/frame"
)

// HandleFrame routes one decoded inbound frame to its stream. It is called
// synchronously for each frame of a read pass; handlers run to completion
// before the next frame is read.
//
// A returned error is transport-fatal: the endpoint has already failed and
// terminated its live streams.
func (ep *Endpoint) HandleFrame(f frame.Frame) error {
	if ep.failed != nil {
		return ep.failed
	}

	switch f.Type {
	case frame.TypeSetup:
		// Connection-scoped; negotiation happens through the engine's
		// exported entry points, so a stray SETUP is ignored.
		return nil

	case frame.TypeRequestResponse, frame.TypeRequestStream, frame.TypeRequestChannel:
		return ep.handleRequest(f)

	case frame.TypeRequestFNF:
		return ep.handleFireAndForget(f)

	case frame.TypeRequestN:
		return ep.handleRequestN(f)

	case frame.TypeCancel:
		return ep.handleCancel(f)

	case frame.TypePayload:
		return ep.handlePayload(f)

	case frame.TypeError:
		return ep.handleError(f)
	}

	return ep.fatal(errors.Malformed(errors.PhaseMux, "unroutable frame type "+f.Type.String()))
}

func (ep *Endpoint) fatal(err error) error {
	ep.Fail(err)
	return err
}

func (ep *Endpoint) handleRequest(f frame.Frame) error {
	if f.Flags.Has(frame.FlagFollows) {
		return ep.fatal(errors.Unsupported(errors.PhaseMux, "frame fragmentation (FOLLOWS)"))
	}
	if ep.ownsID(f.StreamID) {
		return ep.fatal(errors.ProtocolViolation(errors.PhaseMux,
			"peer opened stream with local-parity id "+streamName(f.StreamID)))
	}
	if _, live := ep.streams[f.StreamID]; live {
		// Live or terminal-but-unreleased: either way the id is taken.
		return ep.fatal(errors.IDCollision(f.StreamID))
	}
	opIndex, ok := f.OperationIndex()
	if !ok {
		return ep.fatal(errors.Malformed(errors.PhaseMux, "request frame without operation index"))
	}

	var kind frameKind
	switch f.Type {
	case frame.TypeRequestResponse:
		kind = kindRequestResponse
	case frame.TypeRequestStream:
		kind = kindRequestStream
	case frame.TypeRequestChannel:
		kind = kindRequestChannel
	}

	e := &entry{
		id:      f.StreamID,
		kind:    kind,
		state:   StateNew,
		dir:     dirResponder,
		opIndex: opIndex,
		budget:  f.InitialN,
	}
	if kind != kindRequestChannel {
		// The opening frame is the requester's entire contribution.
		e.inDone = true
	}
	ep.streams[f.StreamID] = e
	e.server = &ServerStream{ep: ep, id: f.StreamID, op: opIndex}

	logger().Debug("inbound request",
		zap.Uint32("stream", f.StreamID),
		zap.Uint32("operation", opIndex),
		zap.Stringer("type", f.Type))

	if ep.OnRequest == nil {
		return ep.SendError(f.StreamID, frame.ErrCodeRejected, "no request handler")
	}
	ep.OnRequest(e.server, Request{Operation: opIndex, Data: f.Data})
	return nil
}

func (ep *Endpoint) handleFireAndForget(f frame.Frame) error {
	if f.Flags.Has(frame.FlagFollows) {
		return ep.fatal(errors.Unsupported(errors.PhaseMux, "frame fragmentation (FOLLOWS)"))
	}
	opIndex, ok := f.OperationIndex()
	if !ok {
		return ep.fatal(errors.Malformed(errors.PhaseMux, "request frame without operation index"))
	}
	if ep.OnFireAndForget != nil {
		ep.OnFireAndForget(opIndex, f.Data)
	}
	return nil
}

func (ep *Endpoint) handleRequestN(f frame.Frame) error {
	e, ok := ep.streams[f.StreamID]
	if !ok {
		return ep.fatal(errors.ProtocolViolation(errors.PhaseMux,
			"REQUEST_N for unknown stream "+streamName(f.StreamID)))
	}
	if e.state == StateCancelled {
		return nil
	}
	if e.state.Terminal() {
		return ep.fatal(errors.ProtocolViolation(errors.PhaseMux,
			"REQUEST_N for terminal stream "+streamName(f.StreamID)))
	}
	e.budget += f.InitialN
	return ep.flushPending(e)
}

func (ep *Endpoint) handleCancel(f frame.Frame) error {
	e, ok := ep.streams[f.StreamID]
	if !ok || e.state.Terminal() {
		// Idempotent: cancel of an unknown or settled stream is a no-op.
		return nil
	}
	e.state = StateCancelled
	e.pending = nil
	ep.deliver(e, Event{Kind: EventCancel})
	return nil
}

func (ep *Endpoint) handlePayload(f frame.Frame) error {
	// Fragmented payloads are not reassembled; honoring the flag silently
	// would corrupt elements, so it fails the transport instead.
	if f.Flags.Has(frame.FlagFollows) {
		return ep.fatal(errors.Unsupported(errors.PhaseMux, "frame fragmentation (FOLLOWS)"))
	}
	e, ok := ep.streams[f.StreamID]
	if !ok {
		return ep.fatal(errors.ProtocolViolation(errors.PhaseMux,
			"payload for unknown stream "+streamName(f.StreamID)))
	}
	if e.state == StateCancelled {
		// Frames racing a cancel are dropped, not failed.
		return nil
	}
	if e.state.Terminal() {
		return ep.fatal(errors.ProtocolViolation(errors.PhaseMux,
			"payload for terminal stream "+streamName(f.StreamID)))
	}
	if !e.usesInbound() {
		return ep.fatal(errors.ProtocolViolation(errors.PhaseMux,
			"payload on outbound-only direction of stream "+streamName(f.StreamID)))
	}

	if e.state == StateNew {
		e.state = StateActive
	}
	if f.Flags.Has(frame.FlagNext) {
		ep.deliver(e, Event{Kind: EventPayload, Data: f.Data})
	}
	if f.Flags.Has(frame.FlagComplete) {
		e.inDone = true
		e.settle()
		ep.deliver(e, Event{Kind: EventComplete})
	}
	return nil
}

func (ep *Endpoint) handleError(f frame.Frame) error {
	e, ok := ep.streams[f.StreamID]
	if !ok {
		return ep.fatal(errors.ProtocolViolation(errors.PhaseMux,
			"error frame for unknown stream "+streamName(f.StreamID)))
	}
	if e.state == StateCancelled {
		return nil
	}
	if e.state.Terminal() {
		return ep.fatal(errors.ProtocolViolation(errors.PhaseMux,
			"error frame for terminal stream "+streamName(f.StreamID)))
	}

	// A stream-level error is data for this stream's consumer, not a
	// transport fault; sibling streams continue untouched.
	e.state = StateErrored
	e.pending = nil
	ep.deliver(e, Event{
		Kind:         EventError,
		ErrorCode:    f.ErrorCode,
		ErrorMessage: string(f.Data),
	})
	return nil
}
