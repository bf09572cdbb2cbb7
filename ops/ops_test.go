package ops_test

import (
	"bytes"
	"sort"
	"testing"

	"github.com/wippyai/iota-runtime/ops"
)

func sampleOperations() []ops.Operation {
	return []ops.Operation{
		ops.HealthOperation(),
		{Shape: ops.ShapeRequestResponse, Direction: ops.DirectionExport, Index: 1, Namespace: "greeting", Name: "greet"},
		{Shape: ops.ShapeRequestStream, Direction: ops.DirectionExport, Index: 2, Namespace: "strings", Name: "reverse"},
		{Shape: ops.ShapeRequestChannel, Direction: ops.DirectionExport, Index: 3, Namespace: "strings", Name: "transform"},
		{Shape: ops.ShapeFireAndForget, Direction: ops.DirectionImport, Index: 0, Namespace: "host:log", Name: "write"},
	}
}

func TestRegistryLookup(t *testing.T) {
	r, err := ops.NewRegistry(sampleOperations())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	op, ok := r.ByIndex(ops.DirectionExport, 2)
	if !ok || op.Name != "reverse" {
		t.Errorf("ByIndex(export, 2) = %v, %v", op, ok)
	}

	op, ok = r.ByName(ops.DirectionExport, "greeting", "greet")
	if !ok || op.Index != 1 {
		t.Errorf("ByName(greet) = %v, %v", op, ok)
	}

	// Export index 0 (health) and import index 0 coexist.
	if _, ok := r.ByIndex(ops.DirectionExport, 0); !ok {
		t.Error("missing export index 0")
	}
	if _, ok := r.ByIndex(ops.DirectionImport, 0); !ok {
		t.Error("missing import index 0")
	}

	if _, ok := r.ByIndex(ops.DirectionExport, 99); ok {
		t.Error("unexpected hit for unknown index")
	}
	if len(r.Exports()) != 4 || len(r.Imports()) != 1 {
		t.Errorf("exports/imports = %d/%d", len(r.Exports()), len(r.Imports()))
	}
}

func TestRegistryDuplicates(t *testing.T) {
	dupIndex := []ops.Operation{
		{Direction: ops.DirectionExport, Index: 1, Namespace: "a", Name: "x"},
		{Direction: ops.DirectionExport, Index: 1, Namespace: "b", Name: "y"},
	}
	if _, err := ops.NewRegistry(dupIndex); err == nil {
		t.Error("duplicate index accepted")
	}

	dupName := []ops.Operation{
		{Direction: ops.DirectionExport, Index: 1, Namespace: "a", Name: "x"},
		{Direction: ops.DirectionExport, Index: 2, Namespace: "a", Name: "x"},
	}
	if _, err := ops.NewRegistry(dupName); err == nil {
		t.Error("duplicate namespace/name accepted")
	}
}

type opKey struct {
	shape     ops.Shape
	direction ops.Direction
	index     uint32
	namespace string
	name      string
}

func asKeys(list []ops.Operation) []opKey {
	keys := make([]opKey, len(list))
	for i, op := range list {
		keys[i] = opKey{op.Shape, op.Direction, op.Index, op.Namespace, op.Name}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].direction != keys[j].direction {
			return keys[i].direction < keys[j].direction
		}
		return keys[i].index < keys[j].index
	})
	return keys
}

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		list []ops.Operation
	}{
		{"empty", nil},
		{"sample", sampleOperations()},
		{"unicode names", []ops.Operation{
			{Direction: ops.DirectionExport, Index: 7, Namespace: "grüße", Name: "héllo"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ops.NewRegistry(tt.list)
			if err != nil {
				t.Fatalf("new registry: %v", err)
			}
			encoded, err := ops.Encode(in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := ops.Decode(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			got, want := asKeys(out.Operations()), asKeys(in.Operations())
			if len(got) != len(want) {
				t.Fatalf("count = %d, want %d", len(got), len(want))
			}
			for i := range got {
				if got[i] != want[i] {
					t.Errorf("operation %d: got %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestDecodeRejectsBadHeader(t *testing.T) {
	r, _ := ops.NewRegistry(sampleOperations())
	good, err := ops.Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[0] = 'X'
		if _, err := ops.Decode(bad); err == nil {
			t.Error("bad magic accepted")
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[len(ops.Magic)] = 0xFF
		if _, err := ops.Decode(bad); err == nil {
			t.Error("unsupported version accepted")
		}
	})

	t.Run("count beyond payload", func(t *testing.T) {
		// Header claims one operation but no records follow. The count
		// must not be trusted before the records parse.
		w := bytes.NewBuffer(nil)
		w.Write(ops.Magic)
		w.Write([]byte{0x00, 0x01})             // version 1
		w.Write([]byte{0x00, 0x00, 0x00, 0x01}) // count 1
		if _, err := ops.Decode(w.Bytes()); err == nil {
			t.Error("truncated record accepted")
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		bad := append(append([]byte(nil), good...), 0xAA)
		if _, err := ops.Decode(bad); err == nil {
			t.Error("trailing bytes accepted")
		}
	})
}
