package ops

import "fmt"

// Shape is the wire-level interaction shape of an operation.
type Shape uint8

const (
	ShapeRequestResponse Shape = 0
	ShapeFireAndForget   Shape = 1
	ShapeRequestStream   Shape = 2
	ShapeRequestChannel  Shape = 3
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeRequestResponse:
		return "request-response"
	case ShapeFireAndForget:
		return "fire-and-forget"
	case ShapeRequestStream:
		return "request-stream"
	case ShapeRequestChannel:
		return "request-channel"
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

func (s Shape) valid() bool {
	return s <= ShapeRequestChannel
}

// Direction indicates which side serves the operation, seen from the guest.
type Direction uint8

const (
	// DirectionExport is an operation the guest serves.
	DirectionExport Direction = 0
	// DirectionImport is an operation the guest calls on the host.
	DirectionImport Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionExport:
		return "export"
	case DirectionImport:
		return "import"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

func (d Direction) valid() bool {
	return d <= DirectionImport
}

// Operation describes one named, indexed callable. The numeric index is the
// only identifier used at call time; namespace and name are resolved once at
// initialization.
type Operation struct {
	Shape     Shape
	Direction Direction
	Index     uint32
	Namespace string
	Name      string
}

// String formats the operation for logs.
func (o Operation) String() string {
	return fmt.Sprintf("%s/%s#%d(%s,%s)", o.Namespace, o.Name, o.Index, o.Direction, o.Shape)
}

// Reserved health-check operation, present in every registry at index 0.
const (
	HealthNamespace = "iota:core"
	HealthName      = "health"
	HealthIndex     = 0
)

// HealthOperation returns the reserved health-check descriptor.
func HealthOperation() Operation {
	return Operation{
		Shape:     ShapeRequestResponse,
		Direction: DirectionExport,
		Index:     HealthIndex,
		Namespace: HealthNamespace,
		Name:      HealthName,
	}
}
