package flow

import (
	"context"

	"github.com/wippyai/iota-runtime/payload"
)

// Shape is the interaction shape of an action. Actions are a tagged union
// over the four shapes, never a type hierarchy: the engine dispatches by
// matching on the tag.
type Shape uint8

const (
	ShapeFireAndForget Shape = iota
	ShapeRequestResponse
	ShapeRequestStream
	ShapeChannel
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeFireAndForget:
		return "fire-and-forget"
	case ShapeRequestResponse:
		return "request-response"
	case ShapeRequestStream:
		return "request-stream"
	case ShapeChannel:
		return "channel"
	}
	return "unknown"
}

// UnaryFunc consumes one Result and produces one Result.
type UnaryFunc func(ctx context.Context, in payload.Result) payload.Result

// FireFunc consumes one Result and produces nothing; no reply is expected.
type FireFunc func(ctx context.Context, in payload.Result)

// StreamFunc consumes one Result and produces a stream of Results. The
// returned channel must be closed when the stream completes.
type StreamFunc func(ctx context.Context, in payload.Result) <-chan payload.Result

// ChannelFunc consumes a stream of Results and produces a stream of
// Results. Channel actions always see the raw Result stream, error elements
// included, since they own both directions of the exchange.
type ChannelFunc func(ctx context.Context, in <-chan payload.Result) <-chan payload.Result

// Action is one composable unit of work. Build actions with the shape
// constructors; the zero Action is not usable.
type Action struct {
	name          string
	shape         Shape
	acceptsResult bool

	unary   UnaryFunc
	fire    FireFunc
	stream  StreamFunc
	channel ChannelFunc
}

// Name returns the action's operation name.
func (a Action) Name() string {
	return a.name
}

// Shape returns the action's interaction shape.
func (a Action) Shape() Shape {
	return a.shape
}

// AcceptResult marks the action's input as a raw Result: incoming errors
// are handed to the action instead of skipping it, so it may recover,
// transform, or re-raise them.
func (a Action) AcceptResult() Action {
	a.acceptsResult = true
	return a
}

// FireAndForget builds an action that is invoked for effect only. The
// pipeline forwards its input unchanged past a fire-and-forget stage.
func FireAndForget(name string, fn FireFunc) Action {
	return Action{name: name, shape: ShapeFireAndForget, fire: fn}
}

// RequestResponse builds a single-in, single-out action.
func RequestResponse(name string, fn UnaryFunc) Action {
	return Action{name: name, shape: ShapeRequestResponse, unary: fn}
}

// RequestStream builds a single-in, stream-out action.
func RequestStream(name string, fn StreamFunc) Action {
	return Action{name: name, shape: ShapeRequestStream, stream: fn}
}

// Channel builds a stream-in, stream-out action.
func Channel(name string, fn ChannelFunc) Action {
	return Action{name: name, shape: ShapeChannel, channel: fn}
}

// Invoke runs a request-response action directly, outside a pipeline.
// Transports serving actions use it to dispatch inbound requests.
func (a Action) Invoke(ctx context.Context, in payload.Result) payload.Result {
	if a.shape != ShapeRequestResponse || a.unary == nil {
		return payload.Err("action "+a.name+" is not request-response", nil)
	}
	return a.unary(ctx, in)
}

// InvokeFire runs a fire-and-forget action directly.
func (a Action) InvokeFire(ctx context.Context, in payload.Result) {
	if a.shape != ShapeFireAndForget || a.fire == nil {
		return
	}
	a.fire(ctx, in)
}

// InvokeStream runs a request-stream action directly.
func (a Action) InvokeStream(ctx context.Context, in payload.Result) <-chan payload.Result {
	if a.shape != ShapeRequestStream || a.stream == nil {
		out := make(chan payload.Result, 1)
		out <- payload.Err("action "+a.name+" is not request-stream", nil)
		close(out)
		return out
	}
	return a.stream(ctx, in)
}

// InvokeChannel runs a channel action directly.
func (a Action) InvokeChannel(ctx context.Context, in <-chan payload.Result) <-chan payload.Result {
	if a.shape != ShapeChannel || a.channel == nil {
		out := make(chan payload.Result, 1)
		out <- payload.Err("action "+a.name+" is not a channel", nil)
		close(out)
		return out
	}
	return a.channel(ctx, in)
}

// Source builds a request-response action that ignores its input. It can
// head a pipeline run with no initial value; its result is produced once
// per run.
func Source(name string, fn func(ctx context.Context) payload.Result) Action {
	return Action{
		name:  name,
		shape: ShapeRequestResponse,
		unary: func(ctx context.Context, _ payload.Result) payload.Result {
			return fn(ctx)
		},
	}
}
