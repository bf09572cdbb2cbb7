package ops

import (
	"bytes"
	"unicode/utf8"

	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/internal/binary"
)

// Magic opens every operation list.
var Magic = []byte{0x00, 'w', 'r', 's'}

// Version is the operation-list wire format version this runtime speaks.
const Version uint16 = 1

const maxNameLen = 1<<16 - 1

// Encode serializes the registry's operation list:
// magic, u16 version, u32 count, then per operation
// u8 shape, u8 direction, u32 index, u16-prefixed namespace, u16-prefixed name.
func Encode(r *Registry) ([]byte, error) {
	w := binary.NewWriter()
	w.WriteBytes(Magic)
	w.WriteU16(Version)
	w.WriteU32(uint32(r.Len()))

	for _, op := range r.list {
		if len(op.Namespace) > maxNameLen || len(op.Name) > maxNameLen {
			return nil, errors.Overflow(errors.PhaseOps,
				len(op.Namespace)+len(op.Name), maxNameLen)
		}
		w.WriteU8(uint8(op.Shape))
		w.WriteU8(uint8(op.Direction))
		w.WriteU32(op.Index)
		w.WriteU16(uint16(len(op.Namespace)))
		w.WriteBytes([]byte(op.Namespace))
		w.WriteU16(uint16(len(op.Name)))
		w.WriteBytes([]byte(op.Name))
	}
	return w.Bytes(), nil
}

// Decode parses an operation list into a Registry. The magic and version are
// validated before the record count is trusted; a mismatch is fatal to
// initialization.
func Decode(b []byte) (*Registry, error) {
	r := binary.NewReader(b)

	magic, err := r.ReadBytes(len(Magic))
	if err != nil {
		return nil, errors.Malformed(errors.PhaseOps, "operation list shorter than magic")
	}
	if !bytes.Equal(magic, Magic) {
		return nil, errors.New(errors.PhaseOps, errors.KindVersionMismatch).
			Detail("bad magic % x", magic).
			Build()
	}

	version, err := r.ReadU16()
	if err != nil {
		return nil, errors.Malformed(errors.PhaseOps, "truncated version")
	}
	if version != Version {
		return nil, errors.VersionMismatch(errors.PhaseOps, version, Version)
	}

	count, err := r.ReadU32()
	if err != nil {
		return nil, errors.Malformed(errors.PhaseOps, "truncated operation count")
	}

	operations := make([]Operation, 0, count)
	for i := uint32(0); i < count; i++ {
		op, err := decodeRecord(r)
		if err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}
	if r.Remaining() != 0 {
		return nil, errors.New(errors.PhaseOps, errors.KindMalformed).
			Detail("%d trailing bytes after %d operations", r.Remaining(), count).
			Build()
	}

	return NewRegistry(operations)
}

func decodeRecord(r *binary.Reader) (Operation, error) {
	var op Operation

	shape, err := r.ReadU8()
	if err != nil {
		return op, errors.Malformed(errors.PhaseOps, "truncated operation record")
	}
	direction, err := r.ReadU8()
	if err != nil {
		return op, errors.Malformed(errors.PhaseOps, "truncated operation record")
	}
	index, err := r.ReadU32()
	if err != nil {
		return op, errors.Malformed(errors.PhaseOps, "truncated operation record")
	}
	namespace, err := readString(r)
	if err != nil {
		return op, err
	}
	name, err := readString(r)
	if err != nil {
		return op, err
	}

	op = Operation{
		Shape:     Shape(shape),
		Direction: Direction(direction),
		Index:     index,
		Namespace: namespace,
		Name:      name,
	}
	if !op.Shape.valid() {
		return op, errors.New(errors.PhaseOps, errors.KindMalformed).
			Detail("invalid shape %d for %s/%s", shape, namespace, name).
			Build()
	}
	if !op.Direction.valid() {
		return op, errors.New(errors.PhaseOps, errors.KindMalformed).
			Detail("invalid direction %d for %s/%s", direction, namespace, name).
			Build()
	}
	return op, nil
}

func readString(r *binary.Reader) (string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return "", errors.Malformed(errors.PhaseOps, "truncated string length")
	}
	raw, err := r.ReadBytes(int(n))
	if err != nil {
		return "", errors.Malformed(errors.PhaseOps, "string length exceeds record")
	}
	if !utf8.Valid(raw) {
		return "", errors.Malformed(errors.PhaseOps, "string is not valid UTF-8")
	}
	return string(raw), nil
}
