package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/muurk/ocfstack/internal/payload"
)

// Representation node keys
const (
	keyKind       = "kind"
	keyNodes      = "nodes"
	keyURI        = "uri"
	keyTypes      = "rt"
	keyInterfaces = "if"
	keyProps      = "props"
)

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func mapping(pairs ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: pairs}
}

func stringSeq(ss []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for _, s := range ss {
		n.Content = append(n.Content, scalar("!!str", s))
	}
	return n
}

func representationNode(p *payload.Representation) (*yaml.Node, error) {
	nodes := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for i, n := range p.Nodes {
		if n == nil {
			return nil, fmt.Errorf("node %d is nil", i)
		}
		m := mapping()
		if n.URI != "" {
			m.Content = append(m.Content, scalar("!!str", keyURI), scalar("!!str", n.URI))
		}
		if len(n.Types) > 0 {
			m.Content = append(m.Content, scalar("!!str", keyTypes), stringSeq(n.Types))
		}
		if len(n.Interfaces) > 0 {
			m.Content = append(m.Content, scalar("!!str", keyInterfaces), stringSeq(n.Interfaces))
		}
		props, err := propsNode(n)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		if len(props.Content) > 0 {
			m.Content = append(m.Content, scalar("!!str", keyProps), props)
		}
		nodes.Content = append(nodes.Content, m)
	}

	root := mapping(
		scalar("!!str", keyKind), scalar("!!str", payload.KindRepresentation.String()),
		scalar("!!str", keyNodes), nodes,
	)
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}, nil
}

func propsNode(n *payload.Node) (*yaml.Node, error) {
	m := mapping()
	for _, p := range n.Props {
		v, err := valueNode(p.Value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", p.Name, err)
		}
		m.Content = append(m.Content, scalar("!!str", p.Name), v)
	}
	return m, nil
}

func valueNode(v payload.Value) (*yaml.Node, error) {
	switch v := v.(type) {
	case nil, payload.Null:
		return scalar("!!null", "null"), nil
	case payload.Int:
		return scalar("!!int", v.String()), nil
	case payload.Double:
		return scalar("!!float", formatFloat(float64(v))), nil
	case payload.Bool:
		return scalar("!!bool", v.String()), nil
	case payload.String:
		return scalar("!!str", string(v)), nil
	case payload.Object:
		if v.Node == nil {
			return scalar("!!null", "null"), nil
		}
		return propsNode(v.Node)
	case *payload.Array:
		return arrayNode(v)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// formatFloat keeps a decimal point or exponent so the value reads back
// as a float
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func arrayNode(a *payload.Array) (*yaml.Node, error) {
	depth := a.Depth()
	if depth == 0 {
		return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}, nil
	}
	if len(a.Elems) < a.Len() {
		return nil, fmt.Errorf("array storage has %d elements, dimensions need %d", len(a.Elems), a.Len())
	}
	var build func(dim, base int) (*yaml.Node, error)
	build = func(dim, base int) (*yaml.Node, error) {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if a.Kind != payload.ValueObject {
			seq.Style = yaml.FlowStyle
		}
		stride := 1
		for d := dim + 1; d < depth; d++ {
			stride *= a.Dims[d]
		}
		for i := 0; i < a.Dims[dim]; i++ {
			var (
				child *yaml.Node
				err   error
			)
			if dim == depth-1 {
				child, err = valueNode(a.Elems[base+i])
			} else {
				child, err = build(dim+1, base+i*stride)
			}
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, child)
		}
		return seq, nil
	}
	return build(0, 0)
}

func keyValues(m *yaml.Node) [][2]*yaml.Node {
	out := make([][2]*yaml.Node, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		out = append(out, [2]*yaml.Node{m.Content[i], resolveAlias(m.Content[i+1])})
	}
	return out
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func parseRepresentation(root *yaml.Node) (*payload.Representation, error) {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: document is not a mapping", doc.Line)
	}

	rep := &payload.Representation{}
	for _, kv := range keyValues(doc) {
		switch kv[0].Value {
		case keyKind:
		case keyNodes:
			if kv[1].Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("line %d: nodes must be a sequence", kv[1].Line)
			}
			for _, item := range kv[1].Content {
				n, err := parseNode(resolveAlias(item))
				if err != nil {
					return nil, err
				}
				rep.Nodes = append(rep.Nodes, n)
			}
		default:
			return nil, fmt.Errorf("line %d: unknown field %q", kv[0].Line, kv[0].Value)
		}
	}
	return rep, nil
}

func parseNode(m *yaml.Node) (*payload.Node, error) {
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: node must be a mapping", m.Line)
	}
	n := &payload.Node{}
	for _, kv := range keyValues(m) {
		var err error
		switch kv[0].Value {
		case keyURI:
			n.URI = kv[1].Value
		case keyTypes:
			n.Types, err = parseStrings(kv[1])
		case keyInterfaces:
			n.Interfaces, err = parseStrings(kv[1])
		case keyProps:
			err = parseProps(kv[1], n)
		default:
			err = fmt.Errorf("line %d: unknown node field %q", kv[0].Line, kv[0].Value)
		}
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// parseStrings accepts a sequence or a single space separated string
func parseStrings(v *yaml.Node) ([]string, error) {
	switch v.Kind {
	case yaml.ScalarNode:
		return strings.Fields(v.Value), nil
	case yaml.SequenceNode:
		var out []string
		for _, c := range v.Content {
			c = resolveAlias(c)
			if c.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: expected a string", c.Line)
			}
			out = append(out, c.Value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: expected a string list", v.Line)
	}
}

func parseProps(m *yaml.Node, n *payload.Node) error {
	if m.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: props must be a mapping", m.Line)
	}
	for _, kv := range keyValues(m) {
		v, err := parseValue(kv[1])
		if err != nil {
			return fmt.Errorf("property %q: %w", kv[0].Value, err)
		}
		n.Set(kv[0].Value, v)
	}
	return nil
}

func parseValue(v *yaml.Node) (payload.Value, error) {
	switch v.Kind {
	case yaml.ScalarNode:
		return parseScalar(v)
	case yaml.MappingNode:
		obj := &payload.Node{}
		if err := parseProps(v, obj); err != nil {
			return nil, err
		}
		return payload.Object{Node: obj}, nil
	case yaml.SequenceNode:
		return parseArray(v)
	default:
		return nil, fmt.Errorf("line %d: unsupported value", v.Line)
	}
}

func parseScalar(v *yaml.Node) (payload.Value, error) {
	switch v.ShortTag() {
	case "!!null":
		return payload.Null{}, nil
	case "!!int":
		var i int64
		if err := v.Decode(&i); err != nil {
			return nil, fmt.Errorf("line %d: %w", v.Line, err)
		}
		return payload.Int(i), nil
	case "!!float":
		var f float64
		if err := v.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", v.Line, err)
		}
		return payload.Double(f), nil
	case "!!bool":
		var b bool
		if err := v.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", v.Line, err)
		}
		return payload.Bool(b), nil
	default:
		return payload.String(v.Value), nil
	}
}

// parseArray flattens a rectangular sequence of up to three dimensions.
// Mixed int and float elements are widened to double.
func parseArray(v *yaml.Node) (payload.Value, error) {
	var dims [payload.MaxArrayDepth]int
	depth := 0
	for n := v; n.Kind == yaml.SequenceNode; n = resolveAlias(n.Content[0]) {
		if depth == payload.MaxArrayDepth {
			return nil, fmt.Errorf("line %d: arrays are limited to %d dimensions", v.Line, payload.MaxArrayDepth)
		}
		if len(n.Content) == 0 {
			if depth == 0 {
				return payload.Null{}, nil
			}
			return nil, fmt.Errorf("line %d: empty inner array", n.Line)
		}
		dims[depth] = len(n.Content)
		depth++
	}

	var elems []payload.Value
	var walk func(n *yaml.Node, dim int) error
	walk = func(n *yaml.Node, dim int) error {
		if dim == depth {
			if n.Kind == yaml.SequenceNode {
				return fmt.Errorf("line %d: array rows differ in depth", n.Line)
			}
			e, err := parseValue(n)
			if err != nil {
				return err
			}
			elems = append(elems, e)
			return nil
		}
		if n.Kind != yaml.SequenceNode || len(n.Content) != dims[dim] {
			return fmt.Errorf("line %d: array is not rectangular", n.Line)
		}
		for _, c := range n.Content {
			if err := walk(resolveAlias(c), dim+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(v, 0); err != nil {
		return nil, err
	}

	kind, err := arrayKind(elems)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", v.Line, err)
	}
	if kind == payload.ValueDouble {
		for i, e := range elems {
			if iv, ok := e.(payload.Int); ok {
				elems[i] = payload.Double(float64(iv))
			}
		}
	}
	return &payload.Array{Kind: kind, Dims: dims, Elems: elems}, nil
}

func arrayKind(elems []payload.Value) (payload.ValueKind, error) {
	kind := elems[0].ValueKind()
	for _, e := range elems[1:] {
		k := e.ValueKind()
		switch {
		case k == kind:
		case k == payload.ValueDouble && kind == payload.ValueInt,
			k == payload.ValueInt && kind == payload.ValueDouble:
			kind = payload.ValueDouble
		default:
			return 0, fmt.Errorf("array mixes %s and %s elements", kind, k)
		}
	}
	switch kind {
	case payload.ValueNull, payload.ValueArray:
		return 0, fmt.Errorf("arrays of %s are not supported", kind)
	}
	return kind, nil
}
