package frame_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	rterrors "github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/frame"
)

const testMaxFrameLen = 1024

func roundTripFrames() map[string]frame.Frame {
	return map[string]frame.Frame{
		"setup": {
			StreamID: 0,
			Type:     frame.TypeSetup,
			Data:     []byte{0x00, 0x01},
		},
		"request_response": frame.Request(frame.TypeRequestResponse, 1, 3, 0, []byte(`{"name":"World"}`)),
		"request_fnf":      frame.Request(frame.TypeRequestFNF, 3, 7, 0, []byte("ping")),
		"request_stream":   frame.Request(frame.TypeRequestStream, 5, 2, 16, []byte("abc")),
		"request_channel":  frame.Request(frame.TypeRequestChannel, 7, 4, 1, nil),
		"request_n":        frame.RequestN(5, 8),
		"cancel":           frame.Cancel(9),
		"payload_next":     frame.Payload(5, []byte("element"), false),
		"payload_final":    frame.Payload(5, []byte("last"), true),
		"payload_complete": frame.Complete(5),
		"error":            frame.Error(11, frame.ErrCodeApplication, "kaput"),
	}
}

func TestRoundTrip(t *testing.T) {
	for name, want := range roundTripFrames() {
		t.Run(name, func(t *testing.T) {
			encoded, err := frame.Encode(want, testMaxFrameLen)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			got, consumed, err := frame.Decode(encoded, testMaxFrameLen)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if consumed != len(encoded) {
				t.Errorf("consumed %d of %d bytes", consumed, len(encoded))
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestLengthPrefix(t *testing.T) {
	f := frame.Payload(1, []byte("xyz"), false)
	encoded, err := frame.Encode(f, testMaxFrameLen)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Prefix is big-endian and excludes its own 3 bytes.
	bodyLen := len(encoded) - frame.LengthPrefixSize
	prefix := int(encoded[0])<<16 | int(encoded[1])<<8 | int(encoded[2])
	if prefix != bodyLen {
		t.Errorf("prefix = %d, body = %d", prefix, bodyLen)
	}
}

func TestPartialReadSafety(t *testing.T) {
	want := frame.Request(frame.TypeRequestStream, 5, 2, 10, []byte("payload bytes"))
	encoded, err := frame.Encode(want, testMaxFrameLen)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Every strict prefix yields ErrIncomplete, never malformed.
	for i := 0; i < len(encoded); i++ {
		_, consumed, err := frame.Decode(encoded[:i], testMaxFrameLen)
		if !errors.Is(err, frame.ErrIncomplete) {
			t.Fatalf("prefix %d: err = %v, want ErrIncomplete", i, err)
		}
		if consumed != 0 {
			t.Fatalf("prefix %d: consumed = %d", i, consumed)
		}
	}

	// The full input decodes to the identical frame.
	got, _, err := frame.Decode(encoded, testMaxFrameLen)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("frame after completion differs:\n got %+v\nwant %+v", got, want)
	}
}

func TestDecodeLoop(t *testing.T) {
	var buf bytes.Buffer
	frames := []frame.Frame{
		frame.Request(frame.TypeRequestResponse, 1, 0, 0, []byte("a")),
		frame.Payload(3, []byte("b"), false),
		frame.Complete(3),
	}
	for _, f := range frames {
		encoded, err := frame.Encode(f, testMaxFrameLen)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		buf.Write(encoded)
	}

	// One read pass decodes every complete frame in order.
	rest := buf.Bytes()
	var decoded []frame.Frame
	for len(rest) > 0 {
		f, n, err := frame.Decode(rest, testMaxFrameLen)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		decoded = append(decoded, f)
		rest = rest[n:]
	}
	if !reflect.DeepEqual(decoded, frames) {
		t.Errorf("batch mismatch:\n got %+v\nwant %+v", decoded, frames)
	}
}

func TestOversizeFrame(t *testing.T) {
	f := frame.Payload(1, make([]byte, 64), false)

	if _, err := frame.Encode(f, 32); err == nil {
		t.Error("encode should reject oversize frame")
	}

	encoded, err := frame.Encode(f, testMaxFrameLen)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, _, err = frame.Decode(encoded, 32)
	if err == nil || errors.Is(err, frame.ErrIncomplete) {
		t.Errorf("decode oversize: %v, want malformed", err)
	}
	if !rterrors.Fatal(err) {
		t.Error("oversize frame must be transport-fatal")
	}
}

func TestMalformed(t *testing.T) {
	tests := []struct {
		name string
		f    frame.Frame
	}{
		{"unknown type", frame.Frame{StreamID: 1, Type: 0x3F}},
		{"zero stream id on request", frame.Frame{StreamID: 0, Type: frame.TypeRequestResponse}},
		{"nonzero stream id on setup", frame.Frame{StreamID: 2, Type: frame.TypeSetup}},
		{"high bit stream id", frame.Frame{StreamID: 1 << 31, Type: frame.TypePayload}},
		{"metadata without flag", frame.Frame{StreamID: 1, Type: frame.TypePayload, Metadata: []byte{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := frame.Encode(tt.f, testMaxFrameLen); err == nil {
				t.Error("expected encode error")
			}
		})
	}

	// A malformed body on the wire: valid prefix, unknown type tag.
	raw := []byte{0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x01, 0xFC, 0x00}
	if _, _, err := frame.Decode(raw, testMaxFrameLen); err == nil ||
		errors.Is(err, frame.ErrIncomplete) {
		t.Errorf("decode unknown type: %v", err)
	}
}

func TestOperationIndex(t *testing.T) {
	f := frame.Request(frame.TypeRequestResponse, 1, 0x01020304, 0, nil)
	idx, ok := f.OperationIndex()
	if !ok || idx != 0x01020304 {
		t.Errorf("index = %#x ok = %v", idx, ok)
	}

	p := frame.Payload(1, []byte("x"), false)
	if _, ok := p.OperationIndex(); ok {
		t.Error("payload frame should carry no operation index")
	}
}
