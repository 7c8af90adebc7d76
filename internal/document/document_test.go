package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/d4l3k/messagediff"
	"github.com/google/uuid"

	"github.com/muurk/ocfstack/internal/payload"
)

func TestRoundTrip(t *testing.T) {
	id := uuid.MustParse("6f2c0e4a-1b3d-4c5e-8f90-a1b2c3d4e5f6")

	nested := payload.NewNode("").Set("x", payload.Int(1))
	grid := &payload.Array{
		Kind:  payload.ValueInt,
		Dims:  [payload.MaxArrayDepth]int{2, 2},
		Elems: []payload.Value{payload.Int(1), payload.Int(2), payload.Int(3), payload.Int(4)},
	}

	tests := []struct {
		name string
		p    payload.Payload
	}{
		{
			name: "representation",
			p: payload.NewRepresentation(
				payload.NewNode("/a/light").AddType("core.light").AddInterface("oic.if.baseline").
					Set("state", payload.Bool(true)).
					Set("power", payload.Int(10)).
					Set("level", payload.Double(2)).
					Set("name", payload.String("10")).
					Set("none", payload.Null{}).
					Set("child", payload.Object{Node: nested}).
					Set("grid", grid).
					Set("names", payload.StringArray("a", "b")).
					Set("kids", payload.ObjectArray(payload.NewNode("").Set("y", payload.Bool(false)))),
				payload.NewNode("/a/fan").Set("speed", payload.Double(0.5)),
			),
		},
		{
			name: "discovery resources",
			p: &payload.Discovery{Resources: []*payload.Resource{{
				DeviceID:   id,
				URI:        "/a/light",
				Types:      []string{"core.light"},
				Interfaces: []string{"oic.if.baseline"},
				Bitmap:     3,
				Secure:     true,
				Port:       5684,
			}}},
		},
		{
			name: "discovery collection",
			p: &payload.Discovery{Collections: []*payload.Collection{{
				Tags: payload.Tags{DeviceID: id, Name: "hall", TTL: 60},
				Links: []*payload.Link{
					{URI: "/a/light", Types: []string{"core.light"}, Relation: "contains", Instance: 2},
				},
			}}},
		},
		{
			name: "device",
			p:    &payload.Device{URI: "/oic/d", DeviceID: id, Name: "lamp", SpecVersion: "core.1.0.0", DataModelVersion: "res.1.0.0"},
		},
		{
			name: "platform",
			p:    &payload.Platform{URI: "/oic/p", PlatformID: "p1", Manufacturer: "acme", FirmwareVersion: "1.2"},
		},
		{
			name: "presence",
			p:    &payload.Presence{Sequence: 7, MaxAge: 60, Trigger: payload.TriggerChange, ResourceType: "core.light"},
		},
		{
			name: "security",
			p:    &payload.Security{Data: "c2VjcmV0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.p)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v\n%s", err, data)
			}
			if diff, equal := messagediff.PrettyDiff(tt.p, got); !equal {
				t.Errorf("round trip mismatch:\n%s\ndocument:\n%s", diff, data)
			}
		})
	}
}

func TestUnmarshal_PropertyOrder(t *testing.T) {
	doc := `kind: representation
nodes:
  - uri: /a/x
    props:
      zeta: 1
      alpha: 2
      mid: 3
`
	p, err := Unmarshal([]byte(doc))
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	rep := p.(*payload.Representation)
	var names []string
	for _, prop := range rep.Nodes[0].Props {
		names = append(names, prop.Name)
	}
	if got := strings.Join(names, ","); got != "zeta,alpha,mid" {
		t.Errorf("property order = %s, want zeta,alpha,mid", got)
	}
}

func TestUnmarshal_Values(t *testing.T) {
	doc := `kind: rep
nodes:
  - uri: /a/x
    rt: core.a core.b
    props:
      mixed: [1, 2.5]
      empty: []
      quoted: "true"
`
	p, err := Unmarshal([]byte(doc))
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	n := p.(*payload.Representation).Nodes[0]

	want := payload.NewNode("/a/x").AddType("core.a").AddType("core.b").
		Set("mixed", payload.DoubleArray(1, 2.5)).
		Set("empty", payload.Null{}).
		Set("quoted", payload.String("true"))
	if diff, equal := messagediff.PrettyDiff(want, n); !equal {
		t.Errorf("node mismatch:\n%s", diff)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no kind", "nodes: []\n", ""},
		{"unknown kind", "kind: bogus\n", "bogus"},
		{"jagged", "kind: rep\nnodes:\n  - props:\n      a: [[1, 2], [3]]\n", "rectangular"},
		{"mixed kinds", "kind: rep\nnodes:\n  - props:\n      a: [1, x]\n", "mixes"},
		{"too deep", "kind: rep\nnodes:\n  - props:\n      a: [[[[1]]]]\n", "dimensions"},
		{"depth mismatch", "kind: rep\nnodes:\n  - props:\n      a: [[1], 2]\n", "rectangular"},
		{"unknown node field", "kind: rep\nnodes:\n  - href: /a\n", "href"},
		{"bad device id", "kind: device\ndi: nope\n", "device id"},
		{"bad trigger", "kind: presence\nseq: 1\nmaxage: 2\ntrigger: later\n", "trigger"},
		{"mixed discovery", "kind: discovery\nresources:\n  - href: /a\ncollections:\n  - tags: {}\n    links: []\n", "mixes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc))
			if err == nil {
				t.Fatal("Unmarshal() error = nil")
			}
			if tt.want == "" {
				if !errors.Is(err, ErrNoKind) {
					t.Errorf("Unmarshal() error = %v, want ErrNoKind", err)
				}
				return
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Unmarshal() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestMarshal_Errors(t *testing.T) {
	if _, err := Marshal(nil); err == nil {
		t.Error("Marshal(nil) error = nil")
	}
	bad := payload.NewRepresentation(payload.NewNode("/a").Set("a", &payload.Array{
		Kind:  payload.ValueInt,
		Dims:  [payload.MaxArrayDepth]int{3},
		Elems: []payload.Value{payload.Int(1)},
	}))
	if _, err := Marshal(bad); err == nil {
		t.Error("Marshal() with short array storage error = nil")
	}
}

func TestMarshal_FloatKeepsType(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2, "2.0"},
		{0.5, "0.5"},
		{1e21, "1e+21"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
