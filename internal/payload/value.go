package payload

import (
	"fmt"
	"strconv"
)

// ValueKind is the run-time type tag of a property Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueInt
	ValueDouble
	ValueBool
	ValueString
	ValueObject
	ValueArray
)

// String returns a human-readable name for the value kind
func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueInt:
		return "int"
	case ValueDouble:
		return "double"
	case ValueBool:
		return "bool"
	case ValueString:
		return "string"
	case ValueObject:
		return "object"
	case ValueArray:
		return "array"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value is a single property value. The concrete types are Null, Int,
// Double, Bool, String, Object and *Array.
type Value interface {
	ValueKind() ValueKind
	isValue()
}

// Null is the absent value.
type Null struct{}

// Int is a signed integer value.
type Int int64

// Double is an IEEE-754 double value.
type Double float64

// Bool is a boolean value.
type Bool bool

// String is a UTF-8 text value.
type String string

// Object is a nested representation node.
type Object struct {
	Node *Node
}

func (Null) ValueKind() ValueKind   { return ValueNull }
func (Int) ValueKind() ValueKind    { return ValueInt }
func (Double) ValueKind() ValueKind { return ValueDouble }
func (Bool) ValueKind() ValueKind   { return ValueBool }
func (String) ValueKind() ValueKind { return ValueString }
func (Object) ValueKind() ValueKind { return ValueObject }

func (Null) isValue()   {}
func (Int) isValue()    {}
func (Double) isValue() {}
func (Bool) isValue()   {}
func (String) isValue() {}
func (Object) isValue() {}

func (Null) String() string     { return "null" }
func (v Int) String() string    { return strconv.FormatInt(int64(v), 10) }
func (v Double) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Bool) String() string   { return strconv.FormatBool(bool(v)) }

// MaxArrayDepth is the deepest array nesting the wire format supports.
const MaxArrayDepth = 3

// Array is a rectangular array of up to MaxArrayDepth dimensions holding a
// single element kind. Dims[n] == 0 marks dimension n as unused; only
// trailing dimensions may be unused. Elems is row-major and holds exactly
// the product of the non-zero dimensions.
type Array struct {
	Kind  ValueKind
	Dims  [MaxArrayDepth]int
	Elems []Value
}

func (*Array) ValueKind() ValueKind { return ValueArray }
func (*Array) isValue()             {}

// Depth returns the number of dimensions in use
func (a *Array) Depth() int {
	d := 0
	for d < MaxArrayDepth && a.Dims[d] != 0 {
		d++
	}
	return d
}

// Len returns the number of elements implied by the dimensions
func (a *Array) Len() int {
	if a.Depth() == 0 {
		return 0
	}
	n := 1
	for _, d := range a.Dims {
		if d != 0 {
			n *= d
		}
	}
	return n
}

// At returns the element at the given indices (one per used dimension)
func (a *Array) At(idx ...int) (Value, error) {
	if len(idx) != a.Depth() {
		return nil, fmt.Errorf("array has %d dimensions, got %d indices", a.Depth(), len(idx))
	}
	off := 0
	for i, n := range idx {
		if n < 0 || n >= a.Dims[i] {
			return nil, fmt.Errorf("index %d out of range [0,%d) in dimension %d", n, a.Dims[i], i)
		}
		off = off*a.Dims[i] + n
	}
	if off >= len(a.Elems) {
		return nil, fmt.Errorf("array storage too short: %d elements, need %d", len(a.Elems), off+1)
	}
	return a.Elems[off], nil
}

// NewArray builds a one-dimensional array of the given kind.
func NewArray(kind ValueKind, elems ...Value) *Array {
	return &Array{Kind: kind, Dims: [MaxArrayDepth]int{len(elems)}, Elems: elems}
}

// IntArray builds a one-dimensional integer array
func IntArray(vals ...int64) *Array {
	elems := make([]Value, len(vals))
	for i, v := range vals {
		elems[i] = Int(v)
	}
	return NewArray(ValueInt, elems...)
}

// DoubleArray builds a one-dimensional double array
func DoubleArray(vals ...float64) *Array {
	elems := make([]Value, len(vals))
	for i, v := range vals {
		elems[i] = Double(v)
	}
	return NewArray(ValueDouble, elems...)
}

// StringArray builds a one-dimensional string array
func StringArray(vals ...string) *Array {
	elems := make([]Value, len(vals))
	for i, v := range vals {
		elems[i] = String(v)
	}
	return NewArray(ValueString, elems...)
}

// BoolArray builds a one-dimensional boolean array
func BoolArray(vals ...bool) *Array {
	elems := make([]Value, len(vals))
	for i, v := range vals {
		elems[i] = Bool(v)
	}
	return NewArray(ValueBool, elems...)
}

// ObjectArray builds a one-dimensional array of nested nodes
func ObjectArray(nodes ...*Node) *Array {
	elems := make([]Value, len(nodes))
	for i, n := range nodes {
		elems[i] = Object{Node: n}
	}
	return NewArray(ValueObject, elems...)
}
