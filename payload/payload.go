package payload

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/iota-runtime/errors"
)

// ErrorDetail is the error arm of a Result: a message plus optional
// structured detail.
type ErrorDetail struct {
	Message string          `cbor:"message"`
	Detail  cbor.RawMessage `cbor:"detail,omitempty"`
}

// Result is the tagged success-or-error wrapper carried with every action
// payload. It is part of the payload itself, never a side channel.
type Result struct {
	value cbor.RawMessage
	err   *ErrorDetail
}

type envelope struct {
	OK    bool            `cbor:"ok"`
	Value cbor.RawMessage `cbor:"value,omitempty"`
	Error *ErrorDetail    `cbor:"error,omitempty"`
}

// Ok wraps v as a success Result.
func Ok(v any) (Result, error) {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return Result{}, errors.Wrap(errors.PhasePayload, errors.KindInvalidInput, err, "encode value")
	}
	return Result{value: raw}, nil
}

// OkRaw wraps already-encoded bytes as a success Result.
func OkRaw(raw []byte) Result {
	return Result{value: append(cbor.RawMessage(nil), raw...)}
}

// Err builds an error Result. detail may be nil.
func Err(message string, detail any) Result {
	e := &ErrorDetail{Message: message}
	if detail != nil {
		if raw, err := cbor.Marshal(detail); err == nil {
			e.Detail = raw
		}
	}
	return Result{err: e}
}

// ErrFrom builds an error Result from a Go error.
func ErrFrom(err error) Result {
	return Err(err.Error(), nil)
}

// IsError reports whether r carries the error arm.
func (r Result) IsError() bool {
	return r.err != nil
}

// ErrorDetail returns the error arm, or nil for a success Result.
func (r Result) ErrorDetail() *ErrorDetail {
	return r.err
}

// Raw returns the encoded success value. Nil for error Results.
func (r Result) Raw() []byte {
	return r.value
}

// Decode unmarshals the success value into out. Decoding an error Result
// returns the carried error as a Go error.
func (r Result) Decode(out any) error {
	if r.err != nil {
		return errors.New(errors.PhasePayload, errors.KindInvalidInput).
			Detail("result is an error: %s", r.err.Message).
			Build()
	}
	if err := cbor.Unmarshal(r.value, out); err != nil {
		return errors.Wrap(errors.PhasePayload, errors.KindMalformed, err, "decode value")
	}
	return nil
}

// Encode serializes the Result envelope.
func (r Result) Encode() ([]byte, error) {
	env := envelope{OK: !r.IsError(), Value: r.value, Error: r.err}
	raw, err := cbor.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(errors.PhasePayload, errors.KindInvalidInput, err, "encode envelope")
	}
	return raw, nil
}

// Decode parses a Result envelope.
func Decode(b []byte) (Result, error) {
	var env envelope
	if err := cbor.Unmarshal(b, &env); err != nil {
		return Result{}, errors.Wrap(errors.PhasePayload, errors.KindMalformed, err, "decode envelope")
	}
	if env.OK {
		return Result{value: env.Value}, nil
	}
	if env.Error == nil {
		return Result{}, errors.Malformed(errors.PhasePayload, "error envelope without error detail")
	}
	return Result{err: env.Error}, nil
}

// Args is a named (not positional) argument set. Named fields let caller and
// callee evolve independently.
type Args map[string]any

// Encode serializes the argument set.
func (a Args) Encode() ([]byte, error) {
	raw, err := cbor.Marshal(map[string]any(a))
	if err != nil {
		return nil, errors.Wrap(errors.PhasePayload, errors.KindInvalidInput, err, "encode args")
	}
	return raw, nil
}

// DecodeArgs parses a named argument set.
func DecodeArgs(b []byte) (Args, error) {
	var m map[string]any
	if err := cbor.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(errors.PhasePayload, errors.KindMalformed, err, "decode args")
	}
	return Args(m), nil
}

// String decodes the success value as a string.
func (r Result) String() (string, error) {
	var s string
	if err := r.Decode(&s); err != nil {
		return "", err
	}
	return s, nil
}
