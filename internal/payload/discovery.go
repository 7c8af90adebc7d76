package payload

import (
	"fmt"

	"github.com/google/uuid"
)

// Resource policy bitmap bits
const (
	BitmapDiscoverable uint8 = 1 << 0
	BitmapObservable   uint8 = 1 << 1
	BitmapActive       uint8 = 1 << 2
	BitmapSlow         uint8 = 1 << 3
	BitmapSecure       uint8 = 1 << 4
)

// Resource is one entry of a flat discovery response.
type Resource struct {
	DeviceID   uuid.UUID
	URI        string
	Types      []string
	Interfaces []string
	Bitmap     uint8
	Secure     bool
	Port       uint16 // only meaningful when Secure
}

// Tags is the metadata block of a discovery collection.
type Tags struct {
	DeviceID uuid.UUID
	Name     string
	Bitmap   uint8
	Secure   bool
	Port     uint16 // only meaningful when Secure
	TTL      uint32
}

// Link is one link entry of a discovery collection.
type Link struct {
	URI        string
	Types      []string
	Interfaces []string
	Relation   string
	Instance   int64
}

// Collection is a tagged group of links.
type Collection struct {
	Tags  Tags
	Links []*Link
}

// Discovery is a discovery response: either flat resources or collections,
// never both.
type Discovery struct {
	Resources   []*Resource
	Collections []*Collection
}

func (*Discovery) Kind() Kind { return KindDiscovery }
func (*Discovery) isPayload() {}

// IsCollection reports whether the payload uses the collection form
func (d *Discovery) IsCollection() bool {
	return len(d.Collections) > 0
}

// Validate checks that only one discovery form is populated
func (d *Discovery) Validate() error {
	if len(d.Resources) > 0 && len(d.Collections) > 0 {
		return fmt.Errorf("discovery payload mixes %d resources with %d collections",
			len(d.Resources), len(d.Collections))
	}
	for i, r := range d.Resources {
		if r == nil {
			return fmt.Errorf("resource %d is nil", i)
		}
	}
	for i, c := range d.Collections {
		if c == nil {
			return fmt.Errorf("collection %d is nil", i)
		}
	}
	return nil
}

// Trigger is the reason for a presence announcement.
type Trigger int

const (
	TriggerCreate Trigger = iota
	TriggerChange
	TriggerDelete
)

// String returns the wire name of the trigger
func (t Trigger) String() string {
	switch t {
	case TriggerCreate:
		return "create"
	case TriggerChange:
		return "change"
	case TriggerDelete:
		return "delete"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// ParseTrigger converts a wire trigger name to a Trigger
func ParseTrigger(s string) (Trigger, error) {
	switch s {
	case "create":
		return TriggerCreate, nil
	case "change":
		return TriggerChange, nil
	case "delete":
		return TriggerDelete, nil
	default:
		return 0, fmt.Errorf("unknown presence trigger %q", s)
	}
}

// Presence is a presence announcement. ResourceType is dropped on the wire
// when Trigger is TriggerDelete.
type Presence struct {
	Sequence     uint32
	MaxAge       uint32
	Trigger      Trigger
	ResourceType string
}

func (*Presence) Kind() Kind { return KindPresence }
func (*Presence) isPayload() {}
