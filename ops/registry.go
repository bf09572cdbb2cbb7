package ops

import (
	"github.com/wippyai/iota-runtime/errors"
)

type indexKey struct {
	direction Direction
	index     uint32
}

type nameKey struct {
	direction Direction
	namespace string
	name      string
}

// Registry is the immutable operation table built once at initialization.
// Lookups are O(1) by index (the call path) and by namespace/name (the
// binding path). A Registry is safe for concurrent reads.
type Registry struct {
	list    []Operation
	byIndex map[indexKey]int
	byName  map[nameKey]int
}

// NewRegistry builds a registry from a list of operations. Duplicate indexes
// or duplicate (namespace, name) pairs within a direction are rejected.
func NewRegistry(operations []Operation) (*Registry, error) {
	r := &Registry{
		list:    make([]Operation, len(operations)),
		byIndex: make(map[indexKey]int, len(operations)),
		byName:  make(map[nameKey]int, len(operations)),
	}
	copy(r.list, operations)

	for i, op := range r.list {
		if !op.Shape.valid() {
			return nil, errors.New(errors.PhaseOps, errors.KindInvalidInput).
				Detail("operation %s: invalid shape %d", op, uint8(op.Shape)).
				Build()
		}
		if !op.Direction.valid() {
			return nil, errors.New(errors.PhaseOps, errors.KindInvalidInput).
				Detail("operation %s: invalid direction %d", op, uint8(op.Direction)).
				Build()
		}
		if op.Name == "" {
			return nil, errors.InvalidInput(errors.PhaseOps, "operation with empty name")
		}

		ik := indexKey{op.Direction, op.Index}
		if _, dup := r.byIndex[ik]; dup {
			return nil, errors.New(errors.PhaseOps, errors.KindInvalidInput).
				Detail("duplicate %s index %d", op.Direction, op.Index).
				Build()
		}
		nk := nameKey{op.Direction, op.Namespace, op.Name}
		if _, dup := r.byName[nk]; dup {
			return nil, errors.New(errors.PhaseOps, errors.KindInvalidInput).
				Detail("duplicate %s operation %s/%s", op.Direction, op.Namespace, op.Name).
				Build()
		}
		r.byIndex[ik] = i
		r.byName[nk] = i
	}
	return r, nil
}

// Len returns the number of operations.
func (r *Registry) Len() int {
	return len(r.list)
}

// Operations returns a copy of the operation list.
func (r *Registry) Operations() []Operation {
	out := make([]Operation, len(r.list))
	copy(out, r.list)
	return out
}

// ByIndex resolves an operation by direction and numeric index.
func (r *Registry) ByIndex(direction Direction, index uint32) (Operation, bool) {
	i, ok := r.byIndex[indexKey{direction, index}]
	if !ok {
		return Operation{}, false
	}
	return r.list[i], true
}

// ByName resolves an operation by direction, namespace and name.
func (r *Registry) ByName(direction Direction, namespace, name string) (Operation, bool) {
	i, ok := r.byName[nameKey{direction, namespace, name}]
	if !ok {
		return Operation{}, false
	}
	return r.list[i], true
}

// Exports returns the operations the guest serves.
func (r *Registry) Exports() []Operation {
	var out []Operation
	for _, op := range r.list {
		if op.Direction == DirectionExport {
			out = append(out, op)
		}
	}
	return out
}

// Imports returns the operations the guest expects from the host.
func (r *Registry) Imports() []Operation {
	var out []Operation
	for _, op := range r.list {
		if op.Direction == DirectionImport {
			out = append(out, op)
		}
	}
	return out
}
