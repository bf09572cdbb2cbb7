package mux

// ServerStream is the responder's view of one inbound stream. Handlers use
// it to emit payloads, complete, or fail the interaction; channel handlers
// additionally subscribe to inbound elements and grant budget.
type ServerStream struct {
	ep      *Endpoint
	id      uint32
	op      uint32
	onEvent Handler
}

// ID returns the stream id.
func (s *ServerStream) ID() uint32 {
	return s.id
}

// Operation returns the operation index the stream was opened for.
func (s *ServerStream) Operation() uint32 {
	return s.op
}

// Send emits one payload element. For request-response, send the single
// response with complete=true.
func (s *ServerStream) Send(data []byte, complete bool) error {
	return s.ep.SendPayload(s.id, data, complete)
}

// Complete ends the outbound direction without a payload.
func (s *ServerStream) Complete() error {
	return s.ep.CompleteOutbound(s.id)
}

// Error terminates the stream with an ERROR frame.
func (s *ServerStream) Error(code uint32, message string) error {
	return s.ep.SendError(s.id, code, message)
}

// OnEvent subscribes to inbound events. Only channels receive payload
// events on the responder side; every shape can observe cancellation.
func (s *ServerStream) OnEvent(h Handler) {
	s.onEvent = h
}

// RequestMore grants the requester n more inbound elements (channels).
func (s *ServerStream) RequestMore(n uint32) error {
	return s.ep.RequestMore(s.id, n)
}
