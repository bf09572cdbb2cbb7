package iotaruntime

// Memory abstracts the guest's linear memory for buffer transfer.
// The engine package implements it over wazero; tests implement it
// over a plain byte slice.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// Default transport parameters negotiated at guest initialization.
const (
	// DefaultGuestBufferSize is the capacity of the guest-owned
	// (guest-to-host) buffer.
	DefaultGuestBufferSize uint32 = 64 * 1024

	// DefaultHostBufferSize is the capacity of the host-owned
	// (host-to-guest) buffer.
	DefaultHostBufferSize uint32 = 64 * 1024

	// DefaultMaxFrameLen bounds a single frame body. It must fit a buffer
	// together with the 3-byte length prefix.
	DefaultMaxFrameLen uint32 = 16*1024 - 3
)

// MaxStreamID is the largest valid stream identifier (31 bits).
const MaxStreamID uint32 = 1<<31 - 1
