package frame

import (
	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/internal/binary"
)

// LengthPrefixSize is the size of the frame length prefix. The prefix value
// excludes the prefix itself.
const LengthPrefixSize = 3

const maxU24 = 1<<24 - 1

// ErrIncomplete is returned by Decode when the input holds less than one
// full frame. It means "wait for more bytes", never a malformed frame.
var ErrIncomplete = &errors.Error{
	Phase:  errors.PhaseFrame,
	Kind:   errors.KindIncomplete,
	Detail: "frame incomplete",
}

// Encode serializes f with its 3-byte big-endian length prefix. maxFrameLen
// bounds the frame body; a larger frame is rejected, never split.
func Encode(f Frame, maxFrameLen uint32) ([]byte, error) {
	if !f.Type.valid() {
		return nil, errors.Malformed(errors.PhaseFrame, "unknown frame type "+f.Type.String())
	}
	if !f.validStreamID() {
		return nil, errors.New(errors.PhaseFrame, errors.KindMalformed).
			Detail("invalid stream id %d for %s", f.StreamID, f.Type).
			Build()
	}
	if f.Flags&^flagMask != 0 {
		return nil, errors.Malformed(errors.PhaseFrame, "flag bits out of range")
	}
	if len(f.Metadata) > 0 && !f.Flags.Has(FlagMetadata) {
		return nil, errors.Malformed(errors.PhaseFrame, "metadata present without METADATA flag")
	}
	if len(f.Metadata) > maxU24 {
		return nil, errors.Overflow(errors.PhaseFrame, len(f.Metadata), maxU24)
	}

	w := binary.NewWriter()
	w.WriteU32(f.StreamID)
	w.WriteU16(uint16(f.Type)<<10 | uint16(f.Flags))

	if f.hasInitialN() {
		w.WriteU32(f.InitialN)
	}
	if f.Type == TypeError {
		w.WriteU32(f.ErrorCode)
	}
	if f.Flags.Has(FlagMetadata) {
		w.WriteU24(uint32(len(f.Metadata)))
		w.WriteBytes(f.Metadata)
	}
	w.WriteBytes(f.Data)

	if uint32(w.Len()) > maxFrameLen {
		return nil, errors.Overflow(errors.PhaseFrame, w.Len(), int(maxFrameLen))
	}

	out := binary.NewWriter()
	out.WriteU24(uint32(w.Len()))
	out.WriteBytes(w.Bytes())
	return out.Bytes(), nil
}

// Decode parses one frame from the front of b. It returns the frame and the
// number of bytes consumed (prefix included). ErrIncomplete means the caller
// must supply more bytes; every other error is a protocol fault. Decode is
// pure: it never mutates b and copies what it keeps.
func Decode(b []byte, maxFrameLen uint32) (Frame, int, error) {
	if len(b) < LengthPrefixSize {
		return Frame{}, 0, ErrIncomplete
	}
	length := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	if length > maxFrameLen {
		return Frame{}, 0, errors.New(errors.PhaseFrame, errors.KindMalformed).
			Detail("frame length %d exceeds negotiated maximum %d", length, maxFrameLen).
			Build()
	}
	if uint32(len(b)-LengthPrefixSize) < length {
		return Frame{}, 0, ErrIncomplete
	}

	consumed := LengthPrefixSize + int(length)
	r := binary.NewReader(b[LengthPrefixSize:consumed])

	var f Frame
	streamID, err := r.ReadU32()
	if err != nil {
		return Frame{}, 0, errors.Malformed(errors.PhaseFrame, "truncated header")
	}
	typeFlags, err := r.ReadU16()
	if err != nil {
		return Frame{}, 0, errors.Malformed(errors.PhaseFrame, "truncated header")
	}
	f.StreamID = streamID
	f.Type = Type(typeFlags >> 10)
	f.Flags = Flags(typeFlags) & flagMask

	if !f.Type.valid() {
		return Frame{}, 0, errors.Malformed(errors.PhaseFrame, "unknown frame type "+f.Type.String())
	}
	if !f.validStreamID() {
		return Frame{}, 0, errors.New(errors.PhaseFrame, errors.KindMalformed).
			Detail("invalid stream id %d for %s", f.StreamID, f.Type).
			Build()
	}

	if f.hasInitialN() {
		if f.InitialN, err = r.ReadU32(); err != nil {
			return Frame{}, 0, errors.Malformed(errors.PhaseFrame, "truncated initial request n")
		}
	}
	if f.Type == TypeError {
		if f.ErrorCode, err = r.ReadU32(); err != nil {
			return Frame{}, 0, errors.Malformed(errors.PhaseFrame, "truncated error code")
		}
	}
	if f.Flags.Has(FlagMetadata) {
		mlen, err := r.ReadU24()
		if err != nil {
			return Frame{}, 0, errors.Malformed(errors.PhaseFrame, "truncated metadata length")
		}
		if f.Metadata, err = r.ReadBytes(int(mlen)); err != nil {
			return Frame{}, 0, errors.Malformed(errors.PhaseFrame, "metadata length exceeds frame")
		}
	}
	f.Data = r.Rest()
	if len(f.Data) == 0 {
		f.Data = nil
	}
	if len(f.Metadata) == 0 {
		f.Metadata = nil
	}

	return f, consumed, nil
}
