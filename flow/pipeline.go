package flow

import (
	"context"

	"github.com/wippyai/iota-runtime/payload"
)

// Pipeline sequences actions. Between stages, the engine applies the
// propagation rules:
//
//   - an error Result skips a stage and is forwarded unchanged, unless the
//     stage accepts raw Results (AcceptResult), which receives the error and
//     may recover it;
//   - a non-stream stage after a stream-producing stage is mapped over every
//     element, errors propagating per element without aborting siblings
//     (unless the pipeline fails fast);
//   - a channel stage after a single-value stage receives that eventual
//     value as a one-element stream.
type Pipeline struct {
	stages   []Action
	failFast bool
}

// Option configures a pipeline.
type Option func(*Pipeline)

// WithFailFast stops stream mapping at the first error element instead of
// propagating it positionally alongside siblings.
func WithFailFast() Option {
	return func(p *Pipeline) {
		p.failFast = true
	}
}

// NewPipeline builds a pipeline over the given stages, in order.
func NewPipeline(stages []Action, opts ...Option) *Pipeline {
	p := &Pipeline{stages: stages}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Output is the terminal observation point of one pipeline run.
type Output struct {
	single   payload.Result
	stream   <-chan payload.Result
	isStream bool
}

// IsStream reports whether the run produced a stream.
func (o Output) IsStream() bool {
	return o.isStream
}

// Stream returns the run's elements. A single-value run yields a
// one-element stream.
func (o Output) Stream() <-chan payload.Result {
	if !o.isStream {
		ch := make(chan payload.Result, 1)
		ch <- o.single
		close(ch)
		return ch
	}
	return o.stream
}

// Result drains the output and returns the terminal Result: for a stream,
// the first unrecovered error element, or the last success if none errored.
func (o Output) Result() payload.Result {
	if !o.isStream {
		return o.single
	}
	var last payload.Result
	for r := range o.stream {
		if r.IsError() {
			// Drain the remainder so upstream goroutines finish.
			for range o.stream {
			}
			return r
		}
		last = r
	}
	return last
}

// Run executes the pipeline with no initial input. Use it when the first
// stage is a Source or takes no meaningful input.
func (p *Pipeline) Run(ctx context.Context) Output {
	return p.RunWith(ctx, payload.Result{})
}

// RunWith executes the pipeline feeding in to the first stage. Each run is
// independent: sourceless stages execute exactly once per run.
func (p *Pipeline) RunWith(ctx context.Context, in payload.Result) Output {
	v := value{single: in}
	for _, stage := range p.stages {
		v = p.apply(ctx, v, stage)
	}
	return Output{single: v.single, stream: v.stream, isStream: v.isStream}
}

type value struct {
	single   payload.Result
	stream   <-chan payload.Result
	isStream bool
}

func (p *Pipeline) apply(ctx context.Context, v value, a Action) value {
	if v.isStream {
		switch a.shape {
		case ShapeChannel:
			return value{stream: a.channel(ctx, v.stream), isStream: true}
		case ShapeRequestStream:
			return value{stream: p.flatMap(ctx, v.stream, a), isStream: true}
		default:
			return value{stream: p.mapElements(ctx, v.stream, a), isStream: true}
		}
	}

	skip := v.single.IsError() && !a.acceptsResult && a.shape != ShapeChannel
	switch a.shape {
	case ShapeFireAndForget:
		if !skip {
			a.fire(ctx, v.single)
		}
		// Fire-and-forget produces no value; the input flows on.
		return v

	case ShapeRequestResponse:
		if skip {
			return v
		}
		return value{single: a.unary(ctx, v.single)}

	case ShapeRequestStream:
		if skip {
			return v
		}
		return value{stream: a.stream(ctx, v.single), isStream: true}

	case ShapeChannel:
		// The eventual single value becomes a one-element stream feeding
		// the channel's input.
		one := make(chan payload.Result, 1)
		one <- v.single
		close(one)
		return value{stream: a.channel(ctx, one), isStream: true}
	}
	return v
}

// mapElements applies a single-in action across every element of a stream.
func (p *Pipeline) mapElements(ctx context.Context, in <-chan payload.Result, a Action) <-chan payload.Result {
	out := make(chan payload.Result)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-in:
				if !ok {
					return
				}
				res, invoked := p.applyElement(ctx, r, a)
				if !invoked && p.failFast {
					// The error element terminates the run.
					emit(ctx, out, res)
					return
				}
				if a.shape == ShapeFireAndForget {
					if !emit(ctx, out, r) {
						return
					}
					continue
				}
				if !emit(ctx, out, res) {
					return
				}
				if p.failFast && res.IsError() {
					return
				}
			}
		}
	}()
	return out
}

// applyElement runs a on one element, honoring the skip rule. invoked is
// false when the element bypassed the action.
func (p *Pipeline) applyElement(ctx context.Context, r payload.Result, a Action) (payload.Result, bool) {
	if r.IsError() && !a.acceptsResult {
		return r, false
	}
	if a.shape == ShapeFireAndForget {
		a.fire(ctx, r)
		return r, true
	}
	return a.unary(ctx, r), true
}

// flatMap applies a stream-producing action to each element, concatenating
// the sub-streams in element order.
func (p *Pipeline) flatMap(ctx context.Context, in <-chan payload.Result, a Action) <-chan payload.Result {
	out := make(chan payload.Result)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-in:
				if !ok {
					return
				}
				if r.IsError() && !a.acceptsResult {
					if !emit(ctx, out, r) {
						return
					}
					if p.failFast {
						return
					}
					continue
				}
				for sub := range a.stream(ctx, r) {
					if !emit(ctx, out, sub) {
						return
					}
					if p.failFast && sub.IsError() {
						return
					}
				}
			}
		}
	}()
	return out
}

func emit(ctx context.Context, out chan<- payload.Result, r payload.Result) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}
