package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	iotaruntime "github.com/wippyai/iota-runtime"
	"github.com/wippyai/iota-runtime/buffer"
	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/frame"
)

// Handler receives frames the guest wrote into its buffer.
type Handler interface {
	HandleFrame(f frame.Frame) error
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Name            string
	GuestBufferSize uint32
	HostBufferSize  uint32
	MaxFrameLen     uint32
	Handler         Handler
}

// Instance is a running guest wired to the buffer protocol.
// It is NOT safe for concurrent use from multiple goroutines.
// Each goroutine should have its own Instance, or access must be
// synchronized externally.
type Instance struct {
	engine  *Engine
	module  api.Module
	mem     iotaruntime.Memory
	manager *buffer.Manager
	handler Handler

	initFn   api.Function
	reqOpsFn api.Function
	sendFn   api.Function

	guestBufPtr uint32
	hostBufPtr  uint32
	buffersSet  bool
	initialized bool

	// pending accumulates inbound bytes across windows so a frame split by
	// a window boundary still decodes.
	pending []byte

	// outbox queues encoded outbound frames raised while a host window is
	// signalled. The guest runs only inside the host's send call, so a
	// reply to guest activity always lands here; the active flush delivers
	// it in a follow-up window after acknowledgement.
	outbox   [][]byte
	flushing bool

	opList   []byte
	opsValid bool

	// failure records the first error raised inside a host callback, where
	// no error return exists. The next public call surfaces it.
	failure error

	ctxMu   sync.Mutex
	callCtx context.Context
}

// Instantiate creates a running instance of the module and registers it
// with the engine's host module.
func (m *Module) Instantiate(ctx context.Context, cfg *InstanceConfig) (*Instance, error) {
	if cfg == nil {
		cfg = &InstanceConfig{}
	}
	guestSize := cfg.GuestBufferSize
	if guestSize == 0 {
		guestSize = iotaruntime.DefaultGuestBufferSize
	}
	hostSize := cfg.HostBufferSize
	if hostSize == 0 {
		hostSize = iotaruntime.DefaultHostBufferSize
	}
	maxFrameLen := cfg.MaxFrameLen
	if maxFrameLen == 0 {
		maxFrameLen = iotaruntime.DefaultMaxFrameLen
	}

	manager, err := buffer.New(guestSize, hostSize, maxFrameLen)
	if err != nil {
		return nil, err
	}

	if err := m.engine.initHostModule(ctx); err != nil {
		return nil, err
	}

	modConfig := wazero.NewModuleConfig()
	if cfg.Name != "" {
		modConfig = modConfig.WithName(cfg.Name)
	} else {
		modConfig = modConfig.WithName("") // anonymous for parallel instantiation
	}

	module, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &Instance{
		engine:  m.engine,
		module:  module,
		manager: manager,
		handler: cfg.Handler,
	}

	if mem := module.Memory(); mem != nil {
		inst.mem = &GuestMemory{mem: mem}
	} else {
		module.Close(ctx)
		return nil, errors.Instantiation(
			errors.InvalidInput(errors.PhaseEngine, "guest exports no memory"))
	}

	for _, export := range []struct {
		name string
		fn   *api.Function
	}{
		{guestInitialize, &inst.initFn},
		{guestRequestOps, &inst.reqOpsFn},
		{guestSend, &inst.sendFn},
	} {
		f := module.ExportedFunction(export.name)
		if f == nil {
			module.Close(ctx)
			return nil, errors.Instantiation(
				errors.NotFound(errors.PhaseEngine, "guest export", export.name))
		}
		*export.fn = f
	}

	m.engine.register(module, inst)
	return inst, nil
}

// SetHandler binds the frame handler. Must be set before Initialize when
// not supplied in the InstanceConfig.
func (i *Instance) SetHandler(h Handler) {
	i.handler = h
}

// MaxFrameLen returns the instance's per-frame body bound.
func (i *Instance) MaxFrameLen() uint32 {
	return i.manager.MaxFrameLen()
}

// Initialize negotiates the buffer protocol with the guest. The guest must
// call initBuffers during this call; refusing or skipping it fails
// initialization.
func (i *Instance) Initialize(ctx context.Context) error {
	if i.initialized {
		return nil
	}
	i.setCtx(ctx)
	defer i.clearCtx()

	res, err := i.initFn.Call(ctx,
		uint64(i.manager.Guest().Capacity()),
		uint64(i.manager.Host().Capacity()),
		uint64(i.manager.MaxFrameLen()))
	if err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "guest initialize")
	}
	if err := i.takeFailure(); err != nil {
		return err
	}
	if len(res) == 0 || res[0] == 0 {
		return errors.New(errors.PhaseEngine, errors.KindInstantiation).
			Detail("guest rejected initialization").
			Build()
	}
	if !i.buffersSet {
		return errors.ProtocolViolation(errors.PhaseEngine,
			"guest initialized without providing buffer pointers")
	}

	i.initialized = true
	logger().Debug("guest initialized",
		zap.Uint32("guest_buf", i.guestBufPtr),
		zap.Uint32("host_buf", i.hostBufPtr),
		zap.Uint32("max_frame_len", i.manager.MaxFrameLen()))
	return nil
}

// RequestOperations asks the guest for its operation list and returns the
// raw wire bytes delivered through deliverOperationList.
func (i *Instance) RequestOperations(ctx context.Context) ([]byte, error) {
	if !i.initialized {
		return nil, errors.NotInitialized(errors.PhaseEngine, "instance")
	}
	i.setCtx(ctx)
	defer i.clearCtx()

	i.opList = nil
	i.opsValid = false

	if _, err := i.reqOpsFn.Call(ctx); err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindProtocolViolation, err, "guest requestOperationList")
	}
	if err := i.takeFailure(); err != nil {
		return nil, err
	}
	if !i.opsValid {
		return nil, errors.ProtocolViolation(errors.PhaseEngine,
			"guest did not deliver an operation list")
	}
	return i.opList, nil
}

// SendFrame encodes f into the host-to-guest region and flushes it to the
// guest. It satisfies the mux sink contract.
//
// Calls made while a window is signalled (the guest replying inside the
// host's send call) queue the frame; the active flush delivers it once the
// window is acknowledged. Queued frames are never dropped.
func (i *Instance) SendFrame(f frame.Frame) error {
	if i.failure != nil {
		return i.failure
	}
	if !i.initialized {
		return errors.NotInitialized(errors.PhaseEngine, "instance")
	}

	data, err := frame.Encode(f, i.manager.MaxFrameLen())
	if err != nil {
		return err
	}
	if i.flushing {
		i.outbox = append(i.outbox, data)
		return nil
	}
	host := i.manager.Host()
	if _, err := host.Write(data); err != nil {
		return err
	}
	return i.flush()
}

// flush signals the host region, copies the window into guest memory at the
// pointer the guest provided, hands it over via the guest's send export and
// acknowledges once the guest returns. Frames queued during the handoff are
// written into the freed region and flushed again until the outbox drains.
func (i *Instance) flush() error {
	if i.flushing {
		return nil
	}
	i.flushing = true
	defer func() { i.flushing = false }()

	host := i.manager.Host()
	for {
		epoch, upTo, err := host.Signal()
		if err != nil {
			return err
		}
		if err := i.mem.Write(i.hostBufPtr, host.Window()); err != nil {
			return errors.Wrap(errors.PhaseEngine, errors.KindProtocolViolation, err, "copy window to guest")
		}
		if _, err := i.sendFn.Call(i.ctx(), uint64(upTo)); err != nil {
			return errors.Wrap(errors.PhaseEngine, errors.KindProtocolViolation, err, "guest send")
		}
		if err := i.takeFailure(); err != nil {
			return err
		}
		if err := host.Acknowledge(epoch); err != nil {
			return err
		}

		if len(i.outbox) == 0 {
			return nil
		}
		n := 0
		for _, queued := range i.outbox {
			if _, err := host.Write(queued); err != nil {
				if errors.IsKind(err, errors.KindOverflow) && n > 0 {
					// The remainder rides the next window.
					break
				}
				return err
			}
			n++
		}
		i.outbox = i.outbox[n:]
	}
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	if i.module == nil {
		return nil
	}
	i.engine.unregister(i.module)
	err := i.module.Close(ctx)
	i.module = nil
	i.mem = nil
	return err
}

// initBuffers is the guest handing over its buffer locations in linear
// memory. Called once during Initialize.
func (i *Instance) initBuffers(guestPtr, hostPtr uint32) {
	if i.buffersSet {
		i.fail(errors.ProtocolViolation(errors.PhaseEngine, "initBuffers called twice"))
		return
	}
	if guestPtr == 0 || hostPtr == 0 {
		i.fail(errors.ProtocolViolation(errors.PhaseEngine, "zero buffer pointer"))
		return
	}
	i.guestBufPtr = guestPtr
	i.hostBufPtr = hostPtr
	i.buffersSet = true
}

// drain reads the guest's signalled window, decodes every complete frame
// and dispatches them. A trailing partial frame is carried into the next
// window.
func (i *Instance) drain(size uint32) {
	if i.failure != nil {
		return
	}
	if !i.buffersSet {
		i.fail(errors.ProtocolViolation(errors.PhaseEngine, "send before initBuffers"))
		return
	}
	if size == 0 || size > uint32(i.manager.Guest().Capacity()) {
		i.fail(errors.New(errors.PhaseEngine, errors.KindProtocolViolation).
			Detail("guest window size %d out of range", size).
			Build())
		return
	}

	window, err := i.mem.Read(i.guestBufPtr, size)
	if err != nil {
		i.fail(errors.Wrap(errors.PhaseEngine, errors.KindProtocolViolation, err, "read guest window"))
		return
	}

	i.pending, err = decodeWindow(i.pending, window, i.manager.MaxFrameLen(), i.dispatch)
	if err != nil {
		i.fail(err)
	}
}

func (i *Instance) dispatch(f frame.Frame) error {
	if i.handler == nil {
		return nil
	}
	if err := i.handler.HandleFrame(f); err != nil {
		if errors.Fatal(err) {
			return err
		}
		logger().Debug("frame handler error", zap.Error(err))
	}
	return nil
}

// decodeWindow appends a signalled window to any partial frame carried from
// the previous one, dispatches every complete frame and returns the
// remainder. Fatal dispatch errors and malformed frames stop decoding.
func decodeWindow(pending, window []byte, maxFrameLen uint32, dispatch func(frame.Frame) error) ([]byte, error) {
	pending = append(pending, window...)
	for len(pending) > 0 {
		f, consumed, err := frame.Decode(pending, maxFrameLen)
		if err != nil {
			if errors.IsKind(err, errors.KindIncomplete) {
				return pending, nil
			}
			return pending, err
		}
		pending = pending[consumed:]
		if err := dispatch(f); err != nil {
			return pending, err
		}
	}
	return nil, nil
}

// deliverOperationList is the guest answering RequestOperations.
func (i *Instance) deliverOperationList(ptr, length uint32) {
	data, err := i.mem.Read(ptr, length)
	if err != nil {
		i.fail(errors.Wrap(errors.PhaseEngine, errors.KindProtocolViolation, err, "read operation list"))
		return
	}
	i.opList = append([]byte(nil), data...)
	i.opsValid = true
}

func (i *Instance) fail(err error) {
	if i.failure == nil {
		i.failure = err
		logger().Warn("instance failed", zap.Error(err))
	}
}

// takeFailure surfaces a failure raised inside a host callback. Failures
// are sticky: a failed instance stays failed.
func (i *Instance) takeFailure() error {
	return i.failure
}

// BindContext sets the context used for guest calls made outside
// Initialize and RequestOperations, such as frame sends triggered by the
// multiplexer. It returns a release function.
func (i *Instance) BindContext(ctx context.Context) (release func()) {
	i.setCtx(ctx)
	return i.clearCtx
}

func (i *Instance) setCtx(ctx context.Context) {
	i.ctxMu.Lock()
	defer i.ctxMu.Unlock()
	i.callCtx = ctx
}

func (i *Instance) clearCtx() {
	i.ctxMu.Lock()
	defer i.ctxMu.Unlock()
	i.callCtx = nil
}

func (i *Instance) ctx() context.Context {
	i.ctxMu.Lock()
	defer i.ctxMu.Unlock()
	if i.callCtx != nil {
		return i.callCtx
	}
	return context.Background()
}
