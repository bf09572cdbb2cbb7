package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/frame"
	"github.com/wippyai/iota-runtime/mux"
	"github.com/wippyai/iota-runtime/ops"
	"github.com/wippyai/iota-runtime/payload"
)

// serveImport dispatches a guest-initiated request to the action bound for
// the imported operation. Runs synchronously inside the transport's read
// pass.
func (i *Instance) serveImport(s *mux.ServerStream, req mux.Request) {
	op, ok := i.registry.ByIndex(ops.DirectionImport, req.Operation)
	if !ok {
		s.Error(frame.ErrCodeRejected, "unknown import operation")
		return
	}
	act, ok := i.imports[opKey{op.Namespace, op.Name}]
	if !ok {
		s.Error(frame.ErrCodeRejected, "unbound import "+op.Namespace+"/"+op.Name)
		return
	}

	ctx := context.Background()
	input := payload.OkRaw(req.Data)

	switch op.Shape {
	case ops.ShapeRequestResponse:
		i.reply(s, act.Invoke(ctx, input), true)

	case ops.ShapeRequestStream:
		for el := range act.InvokeStream(ctx, input) {
			i.reply(s, el, false)
		}
		if err := s.Complete(); err != nil {
			logger().Debug("complete failed", zap.Error(err))
		}

	case ops.ShapeRequestChannel:
		// Input elements accumulate until the guest completes its
		// direction; the channel action then runs over the whole input.
		var elems []payload.Result
		s.OnEvent(func(ev mux.Event) {
			switch ev.Kind {
			case mux.EventPayload:
				elems = append(elems, decodeResult(ev.Data))
				if err := s.RequestMore(1); err != nil {
					logger().Debug("request-n failed", zap.Error(err))
				}
			case mux.EventComplete:
				in := make(chan payload.Result, len(elems))
				for _, el := range elems {
					in <- el
				}
				close(in)
				for el := range act.InvokeChannel(ctx, in) {
					i.reply(s, el, false)
				}
				if err := s.Complete(); err != nil {
					logger().Debug("complete failed", zap.Error(err))
				}
			}
		})
		if err := s.RequestMore(streamWindow); err != nil {
			logger().Debug("request-n failed", zap.Error(err))
		}

	default:
		s.Error(frame.ErrCodeRejected, "operation shape cannot open a stream")
	}
}

// serveImportFire dispatches a guest fire-and-forget request. No stream
// exists, so failures are logged and dropped.
func (i *Instance) serveImportFire(operation uint32, data []byte) {
	op, ok := i.registry.ByIndex(ops.DirectionImport, operation)
	if !ok {
		logger().Warn("unknown fire-and-forget import", zap.Uint32("operation", operation))
		return
	}
	act, ok := i.imports[opKey{op.Namespace, op.Name}]
	if !ok {
		logger().Warn("unbound fire-and-forget import", zap.Stringer("operation", op))
		return
	}
	act.InvokeFire(context.Background(), payload.OkRaw(data))
}

func (i *Instance) reply(s *mux.ServerStream, res payload.Result, complete bool) {
	enc, err := res.Encode()
	if err != nil {
		s.Error(frame.ErrCodeApplication, err.Error())
		return
	}
	if err := s.Send(enc, complete); err != nil {
		// The engine queues frames raised during a read pass, so a send
		// failure here means the transport is broken, not busy.
		logger().Error("reply failed", zap.Uint32("stream", s.ID()), zap.Error(err))
		if errors.Fatal(err) {
			i.endpoint.Fail(err)
		}
	}
}
