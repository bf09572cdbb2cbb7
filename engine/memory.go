package engine

import (
	"github.com/tetratelabs/wazero/api"

	iotaruntime "github.com/wippyai/iota-runtime"
	"github.com/wippyai/iota-runtime/errors"
)

// GuestMemory adapts wazero linear memory to the runtime's Memory
// interface. Reads copy: the returned bytes stay valid after the guest
// grows or mutates its memory.
type GuestMemory struct {
	mem api.Memory
}

// NewGuestMemory wraps a wazero memory.
func NewGuestMemory(mem api.Memory) *GuestMemory {
	return &GuestMemory{mem: mem}
}

func (m *GuestMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
			Detail("read out of bounds: offset=%d, length=%d", offset, length).
			Build()
	}
	return append([]byte(nil), data...), nil
}

func (m *GuestMemory) Write(offset uint32, data []byte) error {
	if ok := m.mem.Write(offset, data); !ok {
		return errors.New(errors.PhaseEngine, errors.KindInvalidInput).
			Detail("write out of bounds: offset=%d, length=%d", offset, len(data)).
			Build()
	}
	return nil
}

// Size returns the current linear memory size in bytes.
func (m *GuestMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Compile-time check that GuestMemory implements iotaruntime.Memory
var _ iotaruntime.Memory = (*GuestMemory)(nil)
