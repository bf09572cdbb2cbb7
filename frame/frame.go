package frame

import (
	"fmt"

	iotaruntime "github.com/wippyai/iota-runtime"
)

// Type identifies a frame on the wire. Tags follow the RSocket frame layout.
type Type uint8

const (
	TypeSetup           Type = 0x01
	TypeRequestResponse Type = 0x04
	TypeRequestFNF      Type = 0x05
	TypeRequestStream   Type = 0x06
	TypeRequestChannel  Type = 0x07
	TypeRequestN        Type = 0x08
	TypeCancel          Type = 0x09
	TypePayload         Type = 0x0A
	TypeError           Type = 0x0B
)

// String returns the frame type name.
func (t Type) String() string {
	switch t {
	case TypeSetup:
		return "SETUP"
	case TypeRequestResponse:
		return "REQUEST_RESPONSE"
	case TypeRequestFNF:
		return "REQUEST_FNF"
	case TypeRequestStream:
		return "REQUEST_STREAM"
	case TypeRequestChannel:
		return "REQUEST_CHANNEL"
	case TypeRequestN:
		return "REQUEST_N"
	case TypeCancel:
		return "CANCEL"
	case TypePayload:
		return "PAYLOAD"
	case TypeError:
		return "ERROR"
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
}

func (t Type) valid() bool {
	switch t {
	case TypeSetup, TypeRequestResponse, TypeRequestFNF, TypeRequestStream,
		TypeRequestChannel, TypeRequestN, TypeCancel, TypePayload, TypeError:
		return true
	}
	return false
}

// IsRequest reports whether t opens a new interaction.
func (t Type) IsRequest() bool {
	switch t {
	case TypeRequestResponse, TypeRequestFNF, TypeRequestStream, TypeRequestChannel:
		return true
	}
	return false
}

// Flags holds the 10 flag bits packed next to the type tag.
type Flags uint16

const (
	// FlagMetadata indicates a length-prefixed metadata section precedes
	// the data section.
	FlagMetadata Flags = 1 << 8
	// FlagFollows indicates the payload continues in a following frame.
	// Fragmentation is not reassembled; the multiplexer rejects the flag.
	FlagFollows Flags = 1 << 7
	// FlagComplete marks the final frame of a stream direction.
	FlagComplete Flags = 1 << 6
	// FlagNext marks a frame carrying a payload element.
	FlagNext Flags = 1 << 5

	flagMask Flags = 1<<10 - 1
)

// Has reports whether all bits of f are set.
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

// Frame is one decoded unit of the wire protocol. Frames are immutable once
// encoded; a decoded Frame owns its Metadata and Data slices.
type Frame struct {
	StreamID uint32
	Type     Type
	Flags    Flags

	// InitialN is the initial request budget. Present on REQUEST_STREAM,
	// REQUEST_CHANNEL and REQUEST_N frames.
	InitialN uint32

	// ErrorCode is present on ERROR frames; Data carries the message.
	ErrorCode uint32

	Metadata []byte
	Data     []byte
}

// Error codes carried by ERROR frames.
const (
	ErrCodeInvalidSetup  uint32 = 0x00000001
	ErrCodeRejected      uint32 = 0x00000202
	ErrCodeCancelled     uint32 = 0x00000203
	ErrCodeInvalid       uint32 = 0x00000204
	ErrCodeApplication   uint32 = 0x00000201
	ErrCodeConnectionErr uint32 = 0x00000101
)

// OperationIndex extracts the operation index carried in request metadata.
func (f *Frame) OperationIndex() (uint32, bool) {
	if !f.Flags.Has(FlagMetadata) || len(f.Metadata) < 4 {
		return 0, false
	}
	return uint32(f.Metadata[0])<<24 | uint32(f.Metadata[1])<<16 |
		uint32(f.Metadata[2])<<8 | uint32(f.Metadata[3]), true
}

// OperationMetadata builds the metadata section of a request frame.
func OperationMetadata(index uint32) []byte {
	return []byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)}
}

func (f *Frame) hasInitialN() bool {
	switch f.Type {
	case TypeRequestStream, TypeRequestChannel, TypeRequestN:
		return true
	}
	return false
}

func (f *Frame) validStreamID() bool {
	if f.StreamID > iotaruntime.MaxStreamID {
		return false
	}
	// SETUP is the only connection-scoped frame; everything else addresses
	// a stream.
	if f.Type == TypeSetup {
		return f.StreamID == 0
	}
	return f.StreamID != 0
}

// Request constructs a request frame of the given type for an operation.
// initialN is ignored unless the type carries a request budget.
func Request(t Type, streamID, opIndex, initialN uint32, data []byte) Frame {
	f := Frame{
		StreamID: streamID,
		Type:     t,
		Flags:    FlagMetadata,
		Metadata: OperationMetadata(opIndex),
		Data:     data,
	}
	if f.hasInitialN() {
		f.InitialN = initialN
	}
	return f
}

// Payload constructs a PAYLOAD frame carrying one element.
func Payload(streamID uint32, data []byte, complete bool) Frame {
	f := Frame{
		StreamID: streamID,
		Type:     TypePayload,
		Flags:    FlagNext,
		Data:     data,
	}
	if complete {
		f.Flags |= FlagComplete
	}
	return f
}

// Complete constructs an empty PAYLOAD frame that only completes a direction.
func Complete(streamID uint32) Frame {
	return Frame{
		StreamID: streamID,
		Type:     TypePayload,
		Flags:    FlagComplete,
	}
}

// Cancel constructs a CANCEL frame.
func Cancel(streamID uint32) Frame {
	return Frame{StreamID: streamID, Type: TypeCancel}
}

// Error constructs an ERROR frame for a stream.
func Error(streamID, code uint32, message string) Frame {
	return Frame{
		StreamID:  streamID,
		Type:      TypeError,
		ErrorCode: code,
		Data:      []byte(message),
	}
}

// RequestN constructs a REQUEST_N frame granting n more elements.
func RequestN(streamID, n uint32) Frame {
	return Frame{StreamID: streamID, Type: TypeRequestN, InitialN: n}
}
