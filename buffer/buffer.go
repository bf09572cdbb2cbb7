package buffer

import (
	"github.com/wippyai/iota-runtime/errors"
)

// Region is one fixed-capacity byte region shared between host and guest.
// A region has a write cursor and an epoch counter. Writing appends at the
// cursor; Signal closes the current write window and hands it to the reader;
// Acknowledge returns ownership to the writer and resets the cursor.
//
// One window is in flight at a time. While a window is outstanding the
// writer must not touch the region: Write reports ErrWindowBusy, which
// callers treat as backpressure, not as a failure.
type Region struct {
	data      []byte
	cursor    int
	epoch     uint64
	signalled bool
	window    int
}

// ErrWindowBusy is reported by Write while a signalled window awaits
// acknowledgement.
var ErrWindowBusy = &errors.Error{
	Phase:  errors.PhaseBuffer,
	Kind:   errors.KindBusy,
	Detail: "write window awaiting acknowledgement",
}

// NewRegion creates a region with the given capacity.
func NewRegion(capacity uint32) *Region {
	return &Region{data: make([]byte, 0, capacity)}
}

// Capacity returns the fixed capacity in bytes.
func (r *Region) Capacity() int {
	return cap(r.data)
}

// Len returns the current write cursor.
func (r *Region) Len() int {
	return len(r.data)
}

// Remaining returns the bytes still writable before overflow.
func (r *Region) Remaining() int {
	return cap(r.data) - len(r.data)
}

// Epoch returns the current window epoch. It increments on every Signal.
func (r *Region) Epoch() uint64 {
	return r.epoch
}

// Busy reports whether a signalled window is awaiting acknowledgement.
func (r *Region) Busy() bool {
	return r.signalled
}

// Write appends p at the write cursor and returns the offset it was written
// at. Exceeding capacity is an overflow error; nothing is written. Writing
// while a window is outstanding reports ErrWindowBusy.
func (r *Region) Write(p []byte) (int, error) {
	if r.signalled {
		return 0, ErrWindowBusy
	}
	if len(r.data)+len(p) > cap(r.data) {
		return 0, errors.Overflow(errors.PhaseBuffer, len(r.data)+len(p), cap(r.data))
	}
	offset := len(r.data)
	r.data = append(r.data, p...)
	return offset, nil
}

// Signal closes the current write window. It returns the new epoch and the
// number of bytes visible to the reader (from offset 0). Signalling an empty
// region or signalling again before acknowledgement is a protocol violation.
func (r *Region) Signal() (epoch uint64, upTo int, err error) {
	if r.signalled {
		return 0, 0, errors.ProtocolViolation(errors.PhaseBuffer,
			"signal while previous window unacknowledged")
	}
	if len(r.data) == 0 {
		return 0, 0, errors.ProtocolViolation(errors.PhaseBuffer, "signal on empty region")
	}
	r.epoch++
	r.signalled = true
	r.window = len(r.data)
	return r.epoch, r.window, nil
}

// Window returns the signalled bytes for the reader. It is only valid
// between Signal and Acknowledge; outside a window it returns nil.
func (r *Region) Window() []byte {
	if !r.signalled {
		return nil
	}
	return r.data[:r.window]
}

// Acknowledge returns window ownership to the writer. The epoch must match
// the one returned by Signal; anything else is a protocol violation. The
// cursor resets to 0.
func (r *Region) Acknowledge(epoch uint64) error {
	if !r.signalled {
		return errors.ProtocolViolation(errors.PhaseBuffer, "acknowledge without signal")
	}
	if epoch != r.epoch {
		return errors.New(errors.PhaseBuffer, errors.KindProtocolViolation).
			Detail("acknowledge epoch %d, current %d", epoch, r.epoch).
			Value(epoch).
			Build()
	}
	r.signalled = false
	r.window = 0
	r.data = r.data[:0]
	return nil
}
