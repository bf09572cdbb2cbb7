package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// HostModuleName is the import module the guest links against.
const HostModuleName = "iota"

// Host export names, called by the guest.
const (
	hostInitBuffers = "initBuffers"
	hostSend        = "send"
	hostDeliverOps  = "deliverOperationList"
)

// Guest export names, called by the host.
const (
	guestInitialize = "initialize"
	guestRequestOps = "requestOperationList"
	guestSend       = "send"
)

// instantiateHostModule builds the iota host module once per engine. Host
// functions carry no state of their own: they resolve the calling guest
// module to its Instance, so many instances share the one host module.
func instantiateHostModule(ctx context.Context, e *Engine) error {
	builder := e.runtime.NewHostModuleBuilder(HostModuleName)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			inst := e.session(mod)
			if inst == nil {
				logger().Warn("initBuffers from unregistered module", zap.String("module", mod.Name()))
				return
			}
			inst.initBuffers(uint32(stack[0]), uint32(stack[1]))
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export(hostInitBuffers)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			inst := e.session(mod)
			if inst == nil {
				logger().Warn("send from unregistered module", zap.String("module", mod.Name()))
				return
			}
			inst.drain(uint32(stack[0]))
		}), []api.ValueType{api.ValueTypeI32}, nil).
		Export(hostSend)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			inst := e.session(mod)
			if inst == nil {
				logger().Warn("deliverOperationList from unregistered module", zap.String("module", mod.Name()))
				return
			}
			inst.deliverOperationList(uint32(stack[0]), uint32(stack[1]))
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export(hostDeliverOps)

	_, err := builder.Instantiate(ctx)
	return err
}
