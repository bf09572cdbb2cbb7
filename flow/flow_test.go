package flow_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/iota-runtime/flow"
	"github.com/wippyai/iota-runtime/payload"
)

func ok(t *testing.T, v any) payload.Result {
	t.Helper()
	r, err := payload.Ok(v)
	require.NoError(t, err)
	return r
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func upper(ctx context.Context, in payload.Result) payload.Result {
	s, err := in.String()
	if err != nil {
		return payload.ErrFrom(err)
	}
	r, _ := payload.Ok(strings.ToUpper(s))
	return r
}

func TestGreet(t *testing.T) {
	greet := flow.RequestResponse("greet", func(ctx context.Context, in payload.Result) payload.Result {
		name, err := in.String()
		if err != nil {
			return payload.ErrFrom(err)
		}
		r, _ := payload.Ok("Hello, " + name + "!")
		return r
	})

	p := flow.NewPipeline([]flow.Action{greet})
	out := p.RunWith(context.Background(), ok(t, "World")).Result()
	require.False(t, out.IsError())

	got, err := out.String()
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", got)
}

func TestErrorShortCircuit(t *testing.T) {
	var bCalls, cCalls atomic.Int32

	a := flow.RequestResponse("a", func(ctx context.Context, in payload.Result) payload.Result {
		return payload.Err("a failed", nil)
	})
	b := flow.RequestResponse("b", func(ctx context.Context, in payload.Result) payload.Result {
		bCalls.Add(1)
		return upper(ctx, in)
	})
	c := flow.RequestResponse("c", func(ctx context.Context, in payload.Result) payload.Result {
		cCalls.Add(1)
		return upper(ctx, in)
	})

	p := flow.NewPipeline([]flow.Action{a, b, c})
	out := p.Run(context.Background()).Result()

	require.True(t, out.IsError())
	assert.Equal(t, "a failed", out.ErrorDetail().Message)
	assert.Zero(t, bCalls.Load(), "error input must skip b")
	assert.Zero(t, cCalls.Load(), "error input must skip c")
}

func TestResultAwareRecovery(t *testing.T) {
	a := flow.RequestResponse("a", func(ctx context.Context, in payload.Result) payload.Result {
		return payload.Err("a failed", nil)
	})
	b := flow.RequestResponse("b", func(ctx context.Context, in payload.Result) payload.Result {
		if in.IsError() {
			r, _ := payload.Ok("recovered: " + in.ErrorDetail().Message)
			return r
		}
		return in
	}).AcceptResult()
	c := flow.RequestResponse("c", upper)

	p := flow.NewPipeline([]flow.Action{a, b, c})
	out := p.Run(context.Background()).Result()

	require.False(t, out.IsError())
	got, err := out.String()
	require.NoError(t, err)
	assert.Equal(t, "RECOVERED: A FAILED", got)
}

func TestStreamMapping(t *testing.T) {
	src := flow.RequestStream("src", func(ctx context.Context, _ payload.Result) <-chan payload.Result {
		out := make(chan payload.Result, 2)
		for _, s := range []string{"abc", "de"} {
			r, _ := payload.Ok(s)
			out <- r
		}
		close(out)
		return out
	})
	rev := flow.RequestResponse("reverse", func(ctx context.Context, in payload.Result) payload.Result {
		s, err := in.String()
		if err != nil {
			return payload.ErrFrom(err)
		}
		r, _ := payload.Ok(reverse(s))
		return r
	})

	p := flow.NewPipeline([]flow.Action{src, rev})
	out := p.Run(context.Background())
	require.True(t, out.IsStream())

	var got []string
	for r := range out.Stream() {
		s, err := r.String()
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []string{"cba", "ed"}, got)
}

func TestStreamElementErrorsArePositional(t *testing.T) {
	src := flow.RequestStream("src", func(ctx context.Context, _ payload.Result) <-chan payload.Result {
		out := make(chan payload.Result, 3)
		for _, s := range []string{"one", "boom", "three"} {
			r, _ := payload.Ok(s)
			out <- r
		}
		close(out)
		return out
	})
	var calls atomic.Int32
	stage := flow.RequestResponse("stage", func(ctx context.Context, in payload.Result) payload.Result {
		calls.Add(1)
		s, _ := in.String()
		if s == "boom" {
			return payload.Err("boom", nil)
		}
		return upper(ctx, in)
	})
	var after atomic.Int32
	next := flow.RequestResponse("next", func(ctx context.Context, in payload.Result) payload.Result {
		after.Add(1)
		return in
	})

	p := flow.NewPipeline([]flow.Action{src, stage, next})
	out := p.Run(context.Background())

	var elems []payload.Result
	for r := range out.Stream() {
		elems = append(elems, r)
	}
	require.Len(t, elems, 3)
	assert.False(t, elems[0].IsError())
	assert.True(t, elems[1].IsError())
	assert.False(t, elems[2].IsError())
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), after.Load(), "next must be skipped only for the error element")
}

func TestFailFastStopsStream(t *testing.T) {
	src := flow.RequestStream("src", func(ctx context.Context, _ payload.Result) <-chan payload.Result {
		out := make(chan payload.Result, 3)
		for _, s := range []string{"one", "boom", "three"} {
			r, _ := payload.Ok(s)
			out <- r
		}
		close(out)
		return out
	})
	stage := flow.RequestResponse("stage", func(ctx context.Context, in payload.Result) payload.Result {
		s, _ := in.String()
		if s == "boom" {
			return payload.Err("boom", nil)
		}
		return in
	})

	p := flow.NewPipeline([]flow.Action{src, stage}, flow.WithFailFast())
	var elems []payload.Result
	for r := range p.Run(context.Background()).Stream() {
		elems = append(elems, r)
	}

	require.Len(t, elems, 2, "fail fast must stop after the error element")
	assert.True(t, elems[1].IsError())
}

func TestChannelReverse(t *testing.T) {
	src := flow.RequestStream("src", func(ctx context.Context, _ payload.Result) <-chan payload.Result {
		out := make(chan payload.Result, 2)
		for _, s := range []string{"abc", "de"} {
			r, _ := payload.Ok(s)
			out <- r
		}
		close(out)
		return out
	})
	rev := flow.Channel("reverse", func(ctx context.Context, in <-chan payload.Result) <-chan payload.Result {
		out := make(chan payload.Result)
		go func() {
			defer close(out)
			for r := range in {
				s, err := r.String()
				if err != nil {
					out <- payload.ErrFrom(err)
					continue
				}
				rr, _ := payload.Ok(reverse(s))
				out <- rr
			}
		}()
		return out
	})

	p := flow.NewPipeline([]flow.Action{src, rev})
	var got []string
	for r := range p.Run(context.Background()).Stream() {
		s, err := r.String()
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []string{"cba", "ed"}, got)
}

func TestChannelAfterSingle(t *testing.T) {
	echo := flow.Channel("echo", func(ctx context.Context, in <-chan payload.Result) <-chan payload.Result {
		out := make(chan payload.Result)
		go func() {
			defer close(out)
			for r := range in {
				out <- r
			}
		}()
		return out
	})

	p := flow.NewPipeline([]flow.Action{echo})
	var elems []payload.Result
	for r := range p.RunWith(context.Background(), ok(t, "solo")).Stream() {
		elems = append(elems, r)
	}

	require.Len(t, elems, 1, "single value feeds the channel as a one-element stream")
	s, err := elems[0].String()
	require.NoError(t, err)
	assert.Equal(t, "solo", s)
}

func TestFlatMapConcatenatesInOrder(t *testing.T) {
	src := flow.RequestStream("src", func(ctx context.Context, _ payload.Result) <-chan payload.Result {
		out := make(chan payload.Result, 2)
		for _, s := range []string{"ab", "cd"} {
			r, _ := payload.Ok(s)
			out <- r
		}
		close(out)
		return out
	})
	split := flow.RequestStream("split", func(ctx context.Context, in payload.Result) <-chan payload.Result {
		out := make(chan payload.Result)
		go func() {
			defer close(out)
			s, _ := in.String()
			for _, c := range s {
				r, _ := payload.Ok(string(c))
				out <- r
			}
		}()
		return out
	})

	p := flow.NewPipeline([]flow.Action{src, split})
	var got []string
	for r := range p.Run(context.Background()).Stream() {
		s, err := r.String()
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestFireAndForgetForwardsInput(t *testing.T) {
	var fired atomic.Int32
	audit := flow.FireAndForget("audit", func(ctx context.Context, in payload.Result) {
		fired.Add(1)
	})

	p := flow.NewPipeline([]flow.Action{audit, flow.RequestResponse("up", upper)})
	out := p.RunWith(context.Background(), ok(t, "hi")).Result()

	require.False(t, out.IsError())
	got, err := out.String()
	require.NoError(t, err)
	assert.Equal(t, "HI", got)
	assert.Equal(t, int32(1), fired.Load())
}

func TestSourceRunsOncePerRun(t *testing.T) {
	var runs atomic.Int32
	src := flow.Source("src", func(ctx context.Context) payload.Result {
		runs.Add(1)
		r, _ := payload.Ok("value")
		return r
	})

	p := flow.NewPipeline([]flow.Action{src, flow.RequestResponse("up", upper)})
	for i := 0; i < 3; i++ {
		out := p.Run(context.Background()).Result()
		require.False(t, out.IsError())
	}
	assert.Equal(t, int32(3), runs.Load(), "source executes exactly once per run")
}

func TestResultDrainsToFirstError(t *testing.T) {
	src := flow.RequestStream("src", func(ctx context.Context, _ payload.Result) <-chan payload.Result {
		out := make(chan payload.Result, 3)
		r, _ := payload.Ok("ok")
		out <- r
		out <- payload.Err("bad element", nil)
		out <- r
		close(out)
		return out
	})

	p := flow.NewPipeline([]flow.Action{src})
	out := p.Run(context.Background()).Result()

	require.True(t, out.IsError())
	assert.Equal(t, "bad element", out.ErrorDetail().Message)
}

func TestCancelledContextStopsStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := flow.RequestStream("src", func(ctx context.Context, _ payload.Result) <-chan payload.Result {
		out := make(chan payload.Result)
		go func() {
			defer close(out)
			for {
				r, _ := payload.Ok("tick")
				select {
				case <-ctx.Done():
					return
				case out <- r:
				}
			}
		}()
		return out
	})
	stage := flow.RequestResponse("stage", func(ctx context.Context, in payload.Result) payload.Result {
		return in
	})

	p := flow.NewPipeline([]flow.Action{src, stage})
	stream := p.Run(ctx).Stream()

	<-stream
	cancel()
	for range stream {
	}
}
