// Package document converts payloads to and from an editable YAML form.
//
// A document names its payload kind at the top and mirrors the payload's
// fields below it:
//
//	kind: representation
//	nodes:
//	  - uri: /a/light
//	    rt: [core.light]
//	    props:
//	      state: true
//	      power: 10
//	      matrix: [[1, 2], [3, 4]]
//
// Representation properties keep their document order. Mappings become
// nested objects and sequences become arrays of up to three dimensions.
package document

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/muurk/ocfstack/internal/payload"
)

// ErrNoKind is returned for documents without a kind field
var ErrNoKind = errors.New("document has no kind")

type header struct {
	Kind string `yaml:"kind"`
}

type deviceDoc struct {
	Kind             string `yaml:"kind"`
	URI              string `yaml:"uri,omitempty"`
	DeviceID         string `yaml:"di,omitempty"`
	Name             string `yaml:"n,omitempty"`
	SpecVersion      string `yaml:"icv,omitempty"`
	DataModelVersion string `yaml:"dmv,omitempty"`
}

type platformDoc struct {
	Kind              string `yaml:"kind"`
	URI               string `yaml:"uri,omitempty"`
	PlatformID        string `yaml:"pi,omitempty"`
	Manufacturer      string `yaml:"mnmn,omitempty"`
	ManufacturerURL   string `yaml:"mnml,omitempty"`
	ModelNumber       string `yaml:"mnmo,omitempty"`
	DateOfManufacture string `yaml:"mndt,omitempty"`
	PlatformVersion   string `yaml:"mnpv,omitempty"`
	OSVersion         string `yaml:"mnos,omitempty"`
	HardwareVersion   string `yaml:"mnhw,omitempty"`
	FirmwareVersion   string `yaml:"mnfv,omitempty"`
	SupportURL        string `yaml:"mnsl,omitempty"`
	SystemTime        string `yaml:"st,omitempty"`
}

type presenceDoc struct {
	Kind         string `yaml:"kind"`
	Sequence     uint32 `yaml:"seq"`
	MaxAge       uint32 `yaml:"maxage"`
	Trigger      string `yaml:"trigger"`
	ResourceType string `yaml:"rt,omitempty"`
}

type securityDoc struct {
	Kind string `yaml:"kind"`
	Data string `yaml:"data"`
}

type resourceDoc struct {
	DeviceID   string   `yaml:"di,omitempty"`
	URI        string   `yaml:"href"`
	Types      []string `yaml:"rt,omitempty,flow"`
	Interfaces []string `yaml:"if,omitempty,flow"`
	Bitmap     uint8    `yaml:"bm,omitempty"`
	Secure     bool     `yaml:"secure,omitempty"`
	Port       uint16   `yaml:"port,omitempty"`
}

type tagsDoc struct {
	DeviceID string `yaml:"di,omitempty"`
	Name     string `yaml:"n,omitempty"`
	Bitmap   uint8  `yaml:"bm,omitempty"`
	Secure   bool   `yaml:"secure,omitempty"`
	Port     uint16 `yaml:"port,omitempty"`
	TTL      uint32 `yaml:"ttl,omitempty"`
}

type linkDoc struct {
	URI        string   `yaml:"href"`
	Types      []string `yaml:"rt,omitempty,flow"`
	Interfaces []string `yaml:"if,omitempty,flow"`
	Relation   string   `yaml:"rel,omitempty"`
	Instance   int64    `yaml:"ins,omitempty"`
}

type collectionDoc struct {
	Tags  tagsDoc   `yaml:"tags"`
	Links []linkDoc `yaml:"links"`
}

type discoveryDoc struct {
	Kind        string          `yaml:"kind"`
	Resources   []resourceDoc   `yaml:"resources,omitempty"`
	Collections []collectionDoc `yaml:"collections,omitempty"`
}

// Marshal renders p as a YAML document
func Marshal(p payload.Payload) ([]byte, error) {
	var doc any
	switch p := p.(type) {
	case *payload.Representation:
		n, err := representationNode(p)
		if err != nil {
			return nil, err
		}
		doc = n
	case *payload.Discovery:
		doc = discoveryToDoc(p)
	case *payload.Device:
		doc = deviceDoc{
			Kind:             payload.KindDevice.String(),
			URI:              p.URI,
			DeviceID:         uuidText(p.DeviceID),
			Name:             p.Name,
			SpecVersion:      p.SpecVersion,
			DataModelVersion: p.DataModelVersion,
		}
	case *payload.Platform:
		doc = platformDoc{
			Kind:              payload.KindPlatform.String(),
			URI:               p.URI,
			PlatformID:        p.PlatformID,
			Manufacturer:      p.Manufacturer,
			ManufacturerURL:   p.ManufacturerURL,
			ModelNumber:       p.ModelNumber,
			DateOfManufacture: p.DateOfManufacture,
			PlatformVersion:   p.PlatformVersion,
			OSVersion:         p.OSVersion,
			HardwareVersion:   p.HardwareVersion,
			FirmwareVersion:   p.FirmwareVersion,
			SupportURL:        p.SupportURL,
			SystemTime:        p.SystemTime,
		}
	case *payload.Presence:
		doc = presenceDoc{
			Kind:         payload.KindPresence.String(),
			Sequence:     p.Sequence,
			MaxAge:       p.MaxAge,
			Trigger:      p.Trigger.String(),
			ResourceType: p.ResourceType,
		}
	case *payload.Security:
		doc = securityDoc{Kind: payload.KindSecurity.String(), Data: p.Data}
	case nil:
		return nil, errors.New("nil payload")
	default:
		return nil, fmt.Errorf("unsupported payload type %T", p)
	}
	return yaml.Marshal(doc)
}

// Unmarshal parses a YAML document into the payload its kind names
func Unmarshal(data []byte) (payload.Payload, error) {
	var h header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if h.Kind == "" {
		return nil, ErrNoKind
	}
	kind, err := payload.ParseKind(h.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case payload.KindRepresentation:
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("failed to parse document: %w", err)
		}
		return parseRepresentation(&root)

	case payload.KindDiscovery:
		var d discoveryDoc
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse discovery document: %w", err)
		}
		return discoveryFromDoc(&d)

	case payload.KindDevice:
		var d deviceDoc
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse device document: %w", err)
		}
		id, err := parseUUID(d.DeviceID)
		if err != nil {
			return nil, err
		}
		return &payload.Device{
			URI:              d.URI,
			DeviceID:         id,
			Name:             d.Name,
			SpecVersion:      d.SpecVersion,
			DataModelVersion: d.DataModelVersion,
		}, nil

	case payload.KindPlatform:
		var d platformDoc
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse platform document: %w", err)
		}
		return &payload.Platform{
			URI:               d.URI,
			PlatformID:        d.PlatformID,
			Manufacturer:      d.Manufacturer,
			ManufacturerURL:   d.ManufacturerURL,
			ModelNumber:       d.ModelNumber,
			DateOfManufacture: d.DateOfManufacture,
			PlatformVersion:   d.PlatformVersion,
			OSVersion:         d.OSVersion,
			HardwareVersion:   d.HardwareVersion,
			FirmwareVersion:   d.FirmwareVersion,
			SupportURL:        d.SupportURL,
			SystemTime:        d.SystemTime,
		}, nil

	case payload.KindPresence:
		var d presenceDoc
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse presence document: %w", err)
		}
		trigger, err := payload.ParseTrigger(d.Trigger)
		if err != nil {
			return nil, err
		}
		return &payload.Presence{
			Sequence:     d.Sequence,
			MaxAge:       d.MaxAge,
			Trigger:      trigger,
			ResourceType: d.ResourceType,
		}, nil

	case payload.KindSecurity:
		var d securityDoc
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse security document: %w", err)
		}
		return &payload.Security{Data: d.Data}, nil
	}
	return nil, fmt.Errorf("unsupported payload kind %s", kind)
}

func discoveryToDoc(p *payload.Discovery) discoveryDoc {
	d := discoveryDoc{Kind: payload.KindDiscovery.String()}
	for _, r := range p.Resources {
		d.Resources = append(d.Resources, resourceDoc{
			DeviceID:   uuidText(r.DeviceID),
			URI:        r.URI,
			Types:      r.Types,
			Interfaces: r.Interfaces,
			Bitmap:     r.Bitmap,
			Secure:     r.Secure,
			Port:       r.Port,
		})
	}
	for _, c := range p.Collections {
		cd := collectionDoc{Tags: tagsDoc{
			DeviceID: uuidText(c.Tags.DeviceID),
			Name:     c.Tags.Name,
			Bitmap:   c.Tags.Bitmap,
			Secure:   c.Tags.Secure,
			Port:     c.Tags.Port,
			TTL:      c.Tags.TTL,
		}}
		for _, l := range c.Links {
			cd.Links = append(cd.Links, linkDoc{
				URI:        l.URI,
				Types:      l.Types,
				Interfaces: l.Interfaces,
				Relation:   l.Relation,
				Instance:   l.Instance,
			})
		}
		d.Collections = append(d.Collections, cd)
	}
	return d
}

func discoveryFromDoc(d *discoveryDoc) (*payload.Discovery, error) {
	p := &payload.Discovery{}
	for i, r := range d.Resources {
		id, err := parseUUID(r.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
		p.Resources = append(p.Resources, &payload.Resource{
			DeviceID:   id,
			URI:        r.URI,
			Types:      r.Types,
			Interfaces: r.Interfaces,
			Bitmap:     r.Bitmap,
			Secure:     r.Secure,
			Port:       r.Port,
		})
	}
	for i, c := range d.Collections {
		id, err := parseUUID(c.Tags.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("collection %d: %w", i, err)
		}
		col := &payload.Collection{Tags: payload.Tags{
			DeviceID: id,
			Name:     c.Tags.Name,
			Bitmap:   c.Tags.Bitmap,
			Secure:   c.Tags.Secure,
			Port:     c.Tags.Port,
			TTL:      c.Tags.TTL,
		}}
		for _, l := range c.Links {
			col.Links = append(col.Links, &payload.Link{
				URI:        l.URI,
				Types:      l.Types,
				Interfaces: l.Interfaces,
				Relation:   l.Relation,
				Instance:   l.Instance,
			})
		}
		p.Collections = append(p.Collections, col)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func uuidText(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid device id %q: %w", s, err)
	}
	return id, nil
}
