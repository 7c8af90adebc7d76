package payload

// Property is a named value inside a representation node.
type Property struct {
	Name  string
	Value Value
}

// Node is one representation node: a URI, its resource types and
// interfaces, and its named property values in insertion order.
type Node struct {
	URI        string
	Types      []string
	Interfaces []string
	Props      []Property
}

// NewNode creates a node for the given URI
func NewNode(uri string) *Node {
	return &Node{URI: uri}
}

// AddType appends a resource type
func (n *Node) AddType(rt string) *Node {
	n.Types = append(n.Types, rt)
	return n
}

// AddInterface appends an interface
func (n *Node) AddInterface(itf string) *Node {
	n.Interfaces = append(n.Interfaces, itf)
	return n
}

// Set stores a value under name, replacing any previous value of that name
// in place so names stay unique.
func (n *Node) Set(name string, v Value) *Node {
	if v == nil {
		v = Null{}
	}
	for i := range n.Props {
		if n.Props[i].Name == name {
			n.Props[i].Value = v
			return n
		}
	}
	n.Props = append(n.Props, Property{Name: name, Value: v})
	return n
}

// Get looks a value up by name
func (n *Node) Get(name string) (Value, bool) {
	for _, p := range n.Props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Remove deletes a value by name. It reports whether the name was present.
func (n *Node) Remove(name string) bool {
	for i, p := range n.Props {
		if p.Name == name {
			n.Props = append(n.Props[:i], n.Props[i+1:]...)
			return true
		}
	}
	return false
}

// Int returns the named value if it is an Int
func (n *Node) Int(name string) (int64, bool) {
	v, ok := n.Get(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(Int)
	return int64(i), ok
}

// Double returns the named value if it is a Double
func (n *Node) Double(name string) (float64, bool) {
	v, ok := n.Get(name)
	if !ok {
		return 0, false
	}
	d, ok := v.(Double)
	return float64(d), ok
}

// Bool returns the named value if it is a Bool
func (n *Node) Bool(name string) (bool, bool) {
	v, ok := n.Get(name)
	if !ok {
		return false, false
	}
	b, ok := v.(Bool)
	return bool(b), ok
}

// Text returns the named value if it is a String
func (n *Node) Text(name string) (string, bool) {
	v, ok := n.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

// IsNull reports whether the named value exists and is Null
func (n *Node) IsNull(name string) bool {
	v, ok := n.Get(name)
	if !ok {
		return false
	}
	_, null := v.(Null)
	return null
}
