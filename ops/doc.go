// Package ops implements the operation-list exchange performed at guest
// initialization.
//
// The guest answers requestOperationList with a binary list: the "\0wrs"
// magic, a u16 version, a u32 count, then one record per operation carrying
// its shape, direction, numeric index, namespace and name. The decoded
// Registry is immutable for the instance lifetime: the call path resolves
// operations by index, the binding path by (namespace, name).
package ops
