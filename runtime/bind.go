package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/flow"
	"github.com/wippyai/iota-runtime/ops"
	"github.com/wippyai/iota-runtime/payload"
)

// Action binds a guest export to a composable action. The action's shape
// follows the operation's declared shape, so bound actions slot into flow
// pipelines like any local stage.
func (i *Instance) Action(namespace, name string) (flow.Action, error) {
	op, ok := i.registry.ByName(ops.DirectionExport, namespace, name)
	if !ok {
		return flow.Action{}, errors.NotFound(errors.PhaseRuntime, "operation", namespace+"/"+name)
	}
	label := namespace + "/" + name

	switch op.Shape {
	case ops.ShapeRequestResponse:
		return flow.RequestResponse(label, func(ctx context.Context, in payload.Result) payload.Result {
			res, err := i.requestResponseRaw(ctx, op, in.Raw())
			if err != nil {
				return payload.ErrFrom(err)
			}
			return res
		}), nil

	case ops.ShapeFireAndForget:
		return flow.FireAndForget(label, func(ctx context.Context, in payload.Result) {
			release := i.eng.BindContext(ctx)
			defer release()
			if err := i.endpoint.FireAndForget(op.Index, in.Raw()); err != nil {
				logger().Debug("fire-and-forget failed", zap.Error(err))
			}
		}), nil

	case ops.ShapeRequestStream:
		return flow.RequestStream(label, func(ctx context.Context, in payload.Result) <-chan payload.Result {
			out, err := i.requestStreamRaw(ctx, op, in.Raw())
			if err != nil {
				return collected([]payload.Result{payload.ErrFrom(err)})
			}
			return out
		}), nil

	case ops.ShapeRequestChannel:
		return flow.Channel(label, func(ctx context.Context, in <-chan payload.Result) <-chan payload.Result {
			out, err := i.channelRaw(ctx, op, in)
			if err != nil {
				return collected([]payload.Result{payload.ErrFrom(err)})
			}
			return out
		}), nil
	}

	return flow.Action{}, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Detail("operation %s has unknown shape", op).
		Build()
}
