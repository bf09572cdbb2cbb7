package runtime

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/iota-runtime/engine"
	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/flow"
	"github.com/wippyai/iota-runtime/frame"
	"github.com/wippyai/iota-runtime/mux"
	"github.com/wippyai/iota-runtime/ops"
	"github.com/wippyai/iota-runtime/payload"
)

// streamWindow is the request budget granted per REQUEST_N batch.
const streamWindow = 16

// InstanceOptions configures instantiation.
type InstanceOptions struct {
	Name            string
	GuestBufferSize uint32
	HostBufferSize  uint32
	MaxFrameLen     uint32
}

// conn is the engine surface an instance drives after initialization.
type conn interface {
	mux.Sink
	BindContext(ctx context.Context) (release func())
	Close(ctx context.Context) error
}

// Instance is one running guest. Callers hold the Instance they created;
// instances are never resolved by name at call time.
//
// An Instance is not safe for concurrent use: the transport is one
// cooperative loop per instance.
type Instance struct {
	id       uuid.UUID
	runtime  *Runtime
	eng      conn
	endpoint *mux.Endpoint
	registry *ops.Registry
	imports  map[opKey]flow.Action
}

// Instantiate creates, initializes and registers a guest instance: the
// engine negotiates buffers, the operation list is exchanged and decoded,
// and the reserved health operation is verified at export index 0.
func (m *Module) Instantiate(ctx context.Context, opts *InstanceOptions) (*Instance, error) {
	if opts == nil {
		opts = &InstanceOptions{}
	}

	inst := &Instance{
		id:      uuid.New(),
		runtime: m.runtime,
		imports: make(map[opKey]flow.Action, len(m.runtime.imports)),
	}
	for k, a := range m.runtime.imports {
		inst.imports[k] = a
	}

	engInst, err := m.engMod.Instantiate(ctx, &engine.InstanceConfig{
		Name:            opts.Name,
		GuestBufferSize: opts.GuestBufferSize,
		HostBufferSize:  opts.HostBufferSize,
		MaxFrameLen:     opts.MaxFrameLen,
		Handler:         inst,
	})
	if err != nil {
		return nil, err
	}
	inst.eng = engInst

	ep := mux.NewEndpoint(mux.RoleHost, engInst)
	ep.OnRequest = inst.serveImport
	ep.OnFireAndForget = inst.serveImportFire
	inst.endpoint = ep

	if err := engInst.Initialize(ctx); err != nil {
		engInst.Close(ctx)
		return nil, err
	}

	raw, err := engInst.RequestOperations(ctx)
	if err != nil {
		engInst.Close(ctx)
		return nil, err
	}
	registry, err := ops.Decode(raw)
	if err != nil {
		engInst.Close(ctx)
		return nil, err
	}
	if health, ok := registry.ByIndex(ops.DirectionExport, ops.HealthIndex); !ok ||
		health.Namespace != ops.HealthNamespace || health.Name != ops.HealthName {
		engInst.Close(ctx)
		return nil, errors.ProtocolViolation(errors.PhaseRuntime,
			"operation list missing reserved health operation at export index 0")
	}
	inst.registry = registry

	logger().Debug("instance ready",
		zap.String("instance", inst.id.String()),
		zap.Int("operations", registry.Len()))
	return inst, nil
}

// ID returns the instance identifier.
func (i *Instance) ID() uuid.UUID {
	return i.id
}

// Registry returns the instance's operation registry.
func (i *Instance) Registry() *ops.Registry {
	return i.registry
}

// Close tears down the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.eng.Close(ctx)
}

// HandleFrame routes a guest frame into the multiplexer. Transport-fatal
// errors fail the endpoint, erroring every live stream.
func (i *Instance) HandleFrame(f frame.Frame) error {
	if err := i.endpoint.HandleFrame(f); err != nil {
		if errors.Fatal(err) {
			i.endpoint.Fail(err)
		}
		return err
	}
	return nil
}

// RequestResponse invokes a request-response export with named arguments.
func (i *Instance) RequestResponse(ctx context.Context, namespace, name string, args payload.Args) (payload.Result, error) {
	op, err := i.export(namespace, name, ops.ShapeRequestResponse)
	if err != nil {
		return payload.Result{}, err
	}
	data, err := args.Encode()
	if err != nil {
		return payload.Result{}, err
	}
	return i.requestResponseRaw(ctx, op, data)
}

func (i *Instance) requestResponseRaw(ctx context.Context, op ops.Operation, data []byte) (payload.Result, error) {
	if err := ctx.Err(); err != nil {
		return payload.Result{}, errors.Wrap(errors.PhaseRuntime, errors.KindCancelled, err, "context done")
	}
	release := i.eng.BindContext(ctx)
	defer release()

	var res payload.Result
	done := false
	id, err := i.endpoint.OpenRequestResponse(op.Index, data, func(ev mux.Event) {
		switch ev.Kind {
		case mux.EventPayload:
			res, done = decodeResult(ev.Data), true
		case mux.EventError:
			res, done = payload.Err(ev.ErrorMessage, nil), true
		case mux.EventCancel:
			res, done = payload.Err("cancelled by guest", nil), true
		case mux.EventComplete:
			// Completion without payload yields an empty success.
			done = true
		}
	})
	if err != nil {
		return payload.Result{}, err
	}
	if !done {
		return payload.Result{}, i.abandon(ctx, id)
	}
	i.endpoint.Release(id)
	return res, nil
}

// RequestStream invokes a request-stream export. Elements arrive on the
// returned channel; an error element terminates the stream.
func (i *Instance) RequestStream(ctx context.Context, namespace, name string, args payload.Args) (<-chan payload.Result, error) {
	op, err := i.export(namespace, name, ops.ShapeRequestStream)
	if err != nil {
		return nil, err
	}
	data, err := args.Encode()
	if err != nil {
		return nil, err
	}
	return i.requestStreamRaw(ctx, op, data)
}

func (i *Instance) requestStreamRaw(ctx context.Context, op ops.Operation, data []byte) (<-chan payload.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindCancelled, err, "context done")
	}
	release := i.eng.BindContext(ctx)
	defer release()

	var elems []payload.Result
	done := false
	handler := func(ev mux.Event) {
		switch ev.Kind {
		case mux.EventPayload:
			elems = append(elems, decodeResult(ev.Data))
		case mux.EventComplete:
			done = true
		case mux.EventError:
			elems, done = append(elems, payload.Err(ev.ErrorMessage, nil)), true
		case mux.EventCancel:
			done = true
		}
	}

	id, err := i.endpoint.OpenStream(op.Index, data, streamWindow, handler)
	if err != nil {
		return nil, err
	}
	for !done {
		if ctx.Err() != nil {
			i.endpoint.Cancel(id)
			i.endpoint.Release(id)
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindCancelled, ctx.Err(), "context done")
		}
		before := len(elems)
		if err := i.endpoint.RequestMore(id, streamWindow); err != nil {
			i.endpoint.Cancel(id)
			i.endpoint.Release(id)
			return nil, err
		}
		if !done && len(elems) == before {
			return nil, i.abandon(ctx, id)
		}
	}
	i.endpoint.Release(id)
	return collected(elems), nil
}

// Channel invokes a channel export. Input elements are drained from in and
// sent upstream; the guest's output arrives on the returned channel.
func (i *Instance) Channel(ctx context.Context, namespace, name string, in <-chan payload.Result) (<-chan payload.Result, error) {
	op, err := i.export(namespace, name, ops.ShapeRequestChannel)
	if err != nil {
		return nil, err
	}
	return i.channelRaw(ctx, op, in)
}

func (i *Instance) channelRaw(ctx context.Context, op ops.Operation, in <-chan payload.Result) (<-chan payload.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindCancelled, err, "context done")
	}
	release := i.eng.BindContext(ctx)
	defer release()

	var elems []payload.Result
	done := false
	handler := func(ev mux.Event) {
		switch ev.Kind {
		case mux.EventPayload:
			elems = append(elems, decodeResult(ev.Data))
		case mux.EventComplete:
			done = true
		case mux.EventError:
			elems, done = append(elems, payload.Err(ev.ErrorMessage, nil)), true
		case mux.EventCancel:
			done = true
		}
	}

	id, err := i.endpoint.OpenChannel(op.Index, streamWindow, handler)
	if err != nil {
		return nil, err
	}

	for el := range in {
		if ctx.Err() != nil {
			i.endpoint.Cancel(id)
			i.endpoint.Release(id)
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindCancelled, ctx.Err(), "context done")
		}
		enc, err := el.Encode()
		if err != nil {
			i.endpoint.Cancel(id)
			i.endpoint.Release(id)
			return nil, err
		}
		if err := i.endpoint.SendPayload(id, enc, false); err != nil {
			i.endpoint.Cancel(id)
			i.endpoint.Release(id)
			return nil, err
		}
	}
	if err := i.endpoint.CompleteOutbound(id); err != nil {
		return nil, err
	}

	for !done {
		if ctx.Err() != nil {
			i.endpoint.Cancel(id)
			i.endpoint.Release(id)
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindCancelled, ctx.Err(), "context done")
		}
		before := len(elems)
		if err := i.endpoint.RequestMore(id, streamWindow); err != nil {
			i.endpoint.Cancel(id)
			i.endpoint.Release(id)
			return nil, err
		}
		if !done && len(elems) == before {
			return nil, i.abandon(ctx, id)
		}
	}
	i.endpoint.Release(id)
	return collected(elems), nil
}

// FireAndForget invokes a fire-and-forget export. No reply ever arrives.
func (i *Instance) FireAndForget(ctx context.Context, namespace, name string, args payload.Args) error {
	op, err := i.export(namespace, name, ops.ShapeFireAndForget)
	if err != nil {
		return err
	}
	data, err := args.Encode()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindCancelled, err, "context done")
	}
	release := i.eng.BindContext(ctx)
	defer release()
	return i.endpoint.FireAndForget(op.Index, data)
}

// Health probes the reserved health operation. It can run at any time and
// touches no other stream.
func (i *Instance) Health(ctx context.Context) error {
	op, ok := i.registry.ByIndex(ops.DirectionExport, ops.HealthIndex)
	if !ok {
		return errors.NotFound(errors.PhaseRuntime, "operation", ops.HealthName)
	}
	res, err := i.requestResponseRaw(ctx, op, nil)
	if err != nil {
		return err
	}
	if res.IsError() {
		return errors.New(errors.PhaseRuntime, errors.KindValidation).
			Detail("health probe failed: %s", res.ErrorDetail().Message).
			Build()
	}
	return nil
}

func (i *Instance) export(namespace, name string, shape ops.Shape) (ops.Operation, error) {
	op, ok := i.registry.ByName(ops.DirectionExport, namespace, name)
	if !ok {
		return ops.Operation{}, errors.NotFound(errors.PhaseRuntime, "operation", namespace+"/"+name)
	}
	if op.Shape != shape {
		return ops.Operation{}, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("operation %s is %s, invoked as %s", op, op.Shape, shape).
			Build()
	}
	return op, nil
}

// abandon tears down a stream whose reply never arrived. The transport
// loop is synchronous: a guest that defers its reply past the call that
// carried the request cannot be awaited.
func (i *Instance) abandon(ctx context.Context, id uint32) error {
	i.endpoint.Cancel(id)
	i.endpoint.Release(id)
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindCancelled, err, "context done")
	}
	return errors.Unsupported(errors.PhaseRuntime, "deferred guest reply")
}

// decodeResult parses a payload envelope; undecodable bytes become an
// error Result rather than losing the element.
func decodeResult(data []byte) payload.Result {
	r, err := payload.Decode(data)
	if err != nil {
		return payload.ErrFrom(err)
	}
	return r
}

// collected wraps already-delivered elements as a closed channel.
func collected(elems []payload.Result) <-chan payload.Result {
	out := make(chan payload.Result, len(elems))
	for _, e := range elems {
		out <- e
	}
	close(out)
	return out
}
