package buffer

import (
	"github.com/wippyai/iota-runtime/errors"
)

// minFrameLen is the smallest usable frame body: 4-byte stream id plus the
// 2-byte type/flags word.
const minFrameLen = 6

// Manager owns the two regions of one guest instance: the guest-to-host
// region written by the guest, and the host-to-guest region written by the
// host. Both live for the lifetime of the instance.
type Manager struct {
	guest       *Region
	host        *Region
	maxFrameLen uint32
}

// New creates the two regions. Capacities are fixed for the instance
// lifetime; maxFrameLen bounds a single frame body and must fit either
// region together with the 3-byte length prefix.
func New(guestCap, hostCap, maxFrameLen uint32) (*Manager, error) {
	if guestCap == 0 || hostCap == 0 {
		return nil, errors.InvalidInput(errors.PhaseBuffer, "zero buffer capacity")
	}
	if maxFrameLen < minFrameLen {
		return nil, errors.New(errors.PhaseBuffer, errors.KindInvalidInput).
			Detail("max frame length %d below minimum %d", maxFrameLen, minFrameLen).
			Build()
	}
	smaller := guestCap
	if hostCap < smaller {
		smaller = hostCap
	}
	if maxFrameLen+3 > smaller {
		return nil, errors.New(errors.PhaseBuffer, errors.KindInvalidInput).
			Detail("max frame length %d does not fit buffer capacity %d", maxFrameLen, smaller).
			Build()
	}
	return &Manager{
		guest:       NewRegion(guestCap),
		host:        NewRegion(hostCap),
		maxFrameLen: maxFrameLen,
	}, nil
}

// Guest returns the guest-to-host region.
func (m *Manager) Guest() *Region {
	return m.guest
}

// Host returns the host-to-guest region.
func (m *Manager) Host() *Region {
	return m.host
}

// MaxFrameLen returns the negotiated per-frame body bound.
func (m *Manager) MaxFrameLen() uint32 {
	return m.maxFrameLen
}
