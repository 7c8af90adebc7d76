package payload

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies a payload variant. The wire format is not self-describing
// at the top level, so decoders are told which Kind to expect.
type Kind int

const (
	KindInvalid Kind = iota
	KindDiscovery
	KindDevice
	KindPlatform
	KindRepresentation
	KindPresence
	KindSecurity
)

// String returns the lower-case name of the kind
func (k Kind) String() string {
	switch k {
	case KindDiscovery:
		return "discovery"
	case KindDevice:
		return "device"
	case KindPlatform:
		return "platform"
	case KindRepresentation:
		return "representation"
	case KindPresence:
		return "presence"
	case KindSecurity:
		return "security"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a kind name (as printed by Kind.String) back to a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "discovery":
		return KindDiscovery, nil
	case "device":
		return KindDevice, nil
	case "platform":
		return KindPlatform, nil
	case "representation", "rep":
		return KindRepresentation, nil
	case "presence":
		return KindPresence, nil
	case "security":
		return KindSecurity, nil
	default:
		return KindInvalid, fmt.Errorf("unknown payload kind %q", s)
	}
}

// Payload is implemented by every payload variant in this package.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Device carries device metadata. DeviceID is mandatory.
type Device struct {
	URI              string
	DeviceID         uuid.UUID
	Name             string
	SpecVersion      string
	DataModelVersion string
}

func (*Device) Kind() Kind { return KindDevice }
func (*Device) isPayload() {}

// Platform carries platform metadata. PlatformID and Manufacturer are
// mandatory, everything else is optional.
type Platform struct {
	URI               string
	PlatformID        string
	Manufacturer      string
	ManufacturerURL   string
	ModelNumber       string
	DateOfManufacture string
	PlatformVersion   string
	OSVersion         string
	HardwareVersion   string
	FirmwareVersion   string
	SupportURL        string
	SystemTime        string
}

func (*Platform) Kind() Kind { return KindPlatform }
func (*Platform) isPayload() {}

// Security is an opaque blob handed through to the security layer.
type Security struct {
	Data string
}

func (*Security) Kind() Kind { return KindSecurity }
func (*Security) isPayload() {}

// Representation is an ordered sequence of representation nodes.
type Representation struct {
	Nodes []*Node
}

func (*Representation) Kind() Kind { return KindRepresentation }
func (*Representation) isPayload() {}

// NewRepresentation builds a representation payload from the given nodes
func NewRepresentation(nodes ...*Node) *Representation {
	return &Representation{Nodes: nodes}
}
