package codec

import (
	"errors"
	"fmt"

	"github.com/muurk/ocfstack/internal/payload"
)

// maxArrayElems bounds the storage a decoded array may claim
const maxArrayElems = 1 << 20

var (
	errArrayTooDeep   = fmt.Errorf("array nests deeper than %d dimensions", payload.MaxArrayDepth)
	errArrayMixedKind = errors.New("array mixes element types")
	errArrayMixedRank = errors.New("array mixes nested arrays and scalars")
)

// arrayShape accumulates what the first pass learns about an array
type arrayShape struct {
	dims      [payload.MaxArrayDepth]int
	kind      payload.ValueKind
	typed     bool
	leafDepth int
}

// decodeArray decodes a property array in two passes: the first walks a
// forked reader to learn the dimension sizes and the single element kind,
// the second allocates row-major storage and fills it. Arrays holding only
// nulls (or nothing) decode to Null.
func decodeArray(r *reader) (payload.Value, error) {
	shape := &arrayShape{leafDepth: -1}
	if err := scanArray(r.fork(), 0, shape); err != nil {
		return nil, err
	}
	if !shape.typed {
		return payload.Null{}, r.skip()
	}

	a := &payload.Array{Kind: shape.kind, Dims: shape.dims}
	// Trailing dimensions past the leaves are unused even if empty
	// sub-arrays were seen there.
	for d := shape.leafDepth + 1; d < payload.MaxArrayDepth; d++ {
		a.Dims[d] = 0
	}
	depth := shape.leafDepth + 1
	for d := 0; d < depth; d++ {
		if a.Dims[d] == 0 {
			return nil, fmt.Errorf("array dimension %d is empty", d)
		}
	}

	if a.Len() > maxArrayElems {
		return nil, fmt.Errorf("array dimensions %v exceed %d elements", a.Dims, maxArrayElems)
	}
	a.Elems = make([]payload.Value, a.Len())
	for i := range a.Elems {
		a.Elems[i] = zeroValue(shape.kind)
	}
	if err := fillArray(r, a, depth, 0, 0); err != nil {
		return nil, err
	}
	return a, nil
}

// scanArray is the first pass. Dimension n's size is the largest element
// count seen at nesting depth n.
func scanArray(r *reader, depth int, shape *arrayShape) error {
	var nested, scalar bool
	count := 0
	err := eachItem(r, func(int) error {
		count++
		b, err := r.peek()
		if err != nil {
			return err
		}
		if b>>5 == majorArray {
			if depth+1 >= payload.MaxArrayDepth {
				return errArrayTooDeep
			}
			if scalar {
				return errArrayMixedRank
			}
			nested = true
			return scanArray(r, depth+1, shape)
		}

		kind, err := elementKind(b)
		if err != nil {
			return err
		}
		if kind == payload.ValueNull {
			return r.skip()
		}
		if nested {
			return errArrayMixedRank
		}
		scalar = true
		if shape.leafDepth >= 0 && shape.leafDepth != depth {
			return errArrayMixedRank
		}
		shape.leafDepth = depth
		if shape.typed && shape.kind != kind {
			return fmt.Errorf("%w: %s and %s", errArrayMixedKind, shape.kind, kind)
		}
		shape.kind = kind
		shape.typed = true
		return r.skip()
	})
	if err != nil {
		return err
	}
	if count > shape.dims[depth] {
		shape.dims[depth] = count
	}
	return nil
}

// elementKind maps an initial byte to the property kind it would decode to
func elementKind(b byte) (payload.ValueKind, error) {
	switch b >> 5 {
	case majorUint, majorNegint:
		return payload.ValueInt, nil
	case majorText:
		return payload.ValueString, nil
	case majorMap:
		return payload.ValueObject, nil
	case majorSimple:
		switch b {
		case 0xf4, 0xf5:
			return payload.ValueBool, nil
		case 0xf6:
			return payload.ValueNull, nil
		case 0xf9, 0xfa, 0xfb:
			return payload.ValueDouble, nil
		}
	}
	return payload.ValueNull, fmt.Errorf("unsupported array element (initial byte 0x%02x)", b)
}

func zeroValue(kind payload.ValueKind) payload.Value {
	switch kind {
	case payload.ValueInt:
		return payload.Int(0)
	case payload.ValueDouble:
		return payload.Double(0)
	case payload.ValueBool:
		return payload.Bool(false)
	case payload.ValueString:
		return payload.String("")
	case payload.ValueObject:
		return payload.Object{Node: &payload.Node{}}
	default:
		return payload.Null{}
	}
}

// fillArray is the second pass, writing dimension dim at flat offset base.
// Nulls and short rows leave zero values in place.
func fillArray(r *reader, a *payload.Array, depth, dim, base int) error {
	stride := 1
	for d := dim + 1; d < depth; d++ {
		stride *= a.Dims[d]
	}
	return eachItem(r, func(i int) error {
		if i >= a.Dims[dim] {
			return fmt.Errorf("dimension %d overflows size %d", dim, a.Dims[dim])
		}
		b, err := r.peek()
		if err != nil {
			return err
		}
		off := base + i*stride
		isArray := b>>5 == majorArray

		if dim+1 < depth {
			switch {
			case isArray:
				return fillArray(r, a, depth, dim+1, off)
			case b == 0xf6:
				return r.skip()
			default:
				return errArrayMixedRank
			}
		}

		if isArray {
			return errArrayMixedRank
		}
		v, err := decodeValue(r)
		if err != nil {
			return err
		}
		if _, null := v.(payload.Null); null {
			return nil
		}
		if v.ValueKind() != a.Kind {
			return fmt.Errorf("%w: %s and %s", errArrayMixedKind, a.Kind, v.ValueKind())
		}
		a.Elems[off] = v
		return nil
	})
}
