package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/muurk/ocfstack/internal/payload"
)

// Decode parses data as a payload of the given kind. The wire format is not
// self-describing at the top level, so the caller supplies the kind it
// expects for the exchange. Any structural problem yields a *DecodeError
// matching ErrMalformedResponse and a nil payload.
func Decode(data []byte, kind payload.Kind) (payload.Payload, error) {
	fail := func(off int, err error) (payload.Payload, error) {
		return nil, &DecodeError{Kind: kind, Offset: off, Err: err}
	}
	if len(data) == 0 {
		return fail(0, errTruncated)
	}
	if err := itemMode.Wellformed(data); err != nil {
		return fail(0, fmt.Errorf("not well-formed CBOR: %w", err))
	}

	r := newReader(data)
	var (
		p   payload.Payload
		err error
	)
	switch kind {
	case payload.KindRepresentation:
		p, err = decodeRepresentation(r)
	case payload.KindDiscovery:
		p, err = decodeDiscovery(r)
	case payload.KindDevice:
		p, err = decodeDevice(r)
	case payload.KindPlatform:
		p, err = decodePlatform(r)
	case payload.KindPresence:
		p, err = decodePresence(r)
	case payload.KindSecurity:
		p, err = decodeSecurity(r)
	default:
		err = fmt.Errorf("unsupported payload kind %s", kind)
	}
	if err != nil {
		return fail(r.pos, err)
	}
	return p, nil
}

// splitTokens splits a space-joined rt/if string, trimming each token and
// dropping empty ones
func splitTokens(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, " ") {
		tok = strings.Trim(tok, " ")
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// eachEntry walks a map, calling fn with each key; fn must consume the value
func eachEntry(r *reader, fn func(key string) error) error {
	c, err := r.enterMap()
	if err != nil {
		return err
	}
	for {
		more, err := r.next(c)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		key, err := r.text()
		if err != nil {
			return fmt.Errorf("map key: %w", err)
		}
		if err := fn(key); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
}

// eachItem walks an array, calling fn for each element index
func eachItem(r *reader, fn func(i int) error) error {
	c, err := r.enterArray()
	if err != nil {
		return err
	}
	for i := 0; ; i++ {
		more, err := r.next(c)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		if err := fn(i); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
}

// singleton walks an outer array that must hold exactly one item
func singleton(r *reader, fn func() error) error {
	count := 0
	err := eachItem(r, func(int) error {
		count++
		if count > 1 {
			return errors.New("unexpected extra item")
		}
		return fn()
	})
	if err != nil {
		return err
	}
	if count == 0 {
		return errors.New("empty payload array")
	}
	return nil
}

func missing(key string) error {
	return fmt.Errorf("missing required key %q", key)
}

func decodeRepresentation(r *reader) (*payload.Representation, error) {
	rep := &payload.Representation{}
	err := eachItem(r, func(int) error {
		n, err := decodeNode(r)
		if err != nil {
			return err
		}
		rep.Nodes = append(rep.Nodes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func decodeNode(r *reader) (*payload.Node, error) {
	n := &payload.Node{}
	err := eachEntry(r, func(key string) error {
		var err error
		switch key {
		case keyHref:
			n.URI, err = r.text()
		case keyProperties:
			n.Types, n.Interfaces, err = decodeTypesAndInterfaces(r)
		case keyRepresentation:
			err = decodeProps(r, n)
		default:
			err = r.skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func decodeTypesAndInterfaces(r *reader) (types, ifaces []string, err error) {
	err = eachEntry(r, func(key string) error {
		switch key {
		case keyResourceType:
			s, err := r.text()
			types = splitTokens(s)
			return err
		case keyInterface:
			s, err := r.text()
			ifaces = splitTokens(s)
			return err
		default:
			return r.skip()
		}
	})
	return types, ifaces, err
}

func decodeProps(r *reader, n *payload.Node) error {
	return eachEntry(r, func(name string) error {
		if _, dup := n.Get(name); dup {
			return fmt.Errorf("duplicate property")
		}
		v, err := decodeValue(r)
		if err != nil {
			return err
		}
		n.Props = append(n.Props, payload.Property{Name: name, Value: v})
		return nil
	})
}

// decodeValue dispatches on the wire type of the next item
func decodeValue(r *reader) (payload.Value, error) {
	b, err := r.peek()
	if err != nil {
		return nil, err
	}
	switch b >> 5 {
	case majorUint, majorNegint:
		n, err := r.integer()
		return payload.Int(n), err
	case majorText:
		s, err := r.text()
		return payload.String(s), err
	case majorArray:
		return decodeArray(r)
	case majorMap:
		node, err := decodeNode(r)
		if err != nil {
			return nil, err
		}
		return payload.Object{Node: node}, nil
	case majorSimple:
		switch b {
		case 0xf4, 0xf5:
			v, err := r.boolean()
			return payload.Bool(v), err
		case 0xf6:
			r.pos++
			return payload.Null{}, nil
		case 0xf9, 0xfa, 0xfb:
			var f float64
			err := r.item(&f)
			return payload.Double(f), err
		}
		return nil, fmt.Errorf("unsupported simple value 0x%02x", b)
	default:
		return nil, fmt.Errorf("unsupported property type %s", majorName(b>>5))
	}
}

func decodeDeviceID(r *reader) (uuid.UUID, error) {
	b, err := r.byteString()
	if err != nil {
		return uuid.Nil, err
	}
	if len(b) != deviceIDLen {
		return uuid.Nil, fmt.Errorf("device id is %d bytes, want %d", len(b), deviceIDLen)
	}
	return uuid.FromBytes(b)
}

func decodeDiscovery(r *reader) (*payload.Discovery, error) {
	d := &payload.Discovery{}
	form := -1
	err := eachItem(r, func(int) error {
		m, err := r.major()
		if err != nil {
			return err
		}
		if form < 0 {
			form = int(m)
		} else if int(m) != form {
			return errors.New("discovery payload mixes flat and collection entries")
		}
		switch m {
		case majorMap:
			res, err := decodeResource(r)
			if err != nil {
				return err
			}
			d.Resources = append(d.Resources, res...)
		case majorArray:
			col, err := decodeCollection(r)
			if err != nil {
				return err
			}
			d.Collections = append(d.Collections, col)
		default:
			return fmt.Errorf("unexpected %s in discovery payload", majorName(m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// decodeResource reads {di, links:[...]}; every link becomes a Resource
// carrying the entry's device id.
func decodeResource(r *reader) ([]*payload.Resource, error) {
	var (
		id     uuid.UUID
		haveID bool
		links  []*payload.Resource
		have   bool
	)
	err := eachEntry(r, func(key string) error {
		var err error
		switch key {
		case keyDeviceID:
			id, err = decodeDeviceID(r)
			haveID = true
		case keyLinks:
			have = true
			err = eachItem(r, func(int) error {
				res, err := decodeResourceLink(r)
				if err != nil {
					return err
				}
				links = append(links, res)
				return nil
			})
		default:
			err = r.skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !haveID {
		return nil, missing(keyDeviceID)
	}
	if !have || len(links) == 0 {
		return nil, missing(keyLinks)
	}
	for _, l := range links {
		l.DeviceID = id
	}
	return links, nil
}

func decodeResourceLink(r *reader) (*payload.Resource, error) {
	res := &payload.Resource{}
	var haveHref, havePolicy bool
	err := eachEntry(r, func(key string) error {
		var (
			s   string
			err error
		)
		switch key {
		case keyHref:
			res.URI, err = r.text()
			haveHref = true
		case keyResourceType:
			s, err = r.text()
			res.Types = splitTokens(s)
		case keyInterface:
			s, err = r.text()
			res.Interfaces = splitTokens(s)
		case keyPolicy:
			havePolicy = true
			res.Bitmap, res.Secure, res.Port, err = decodePolicy(r)
		default:
			err = r.skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !haveHref {
		return nil, missing(keyHref)
	}
	if !havePolicy {
		return nil, missing(keyPolicy)
	}
	return res, nil
}

// decodePolicy reads {bm, sec?, port?}; port is only honoured when sec is
// true.
func decodePolicy(r *reader) (bitmap uint8, secure bool, port uint16, err error) {
	var haveBitmap bool
	var rawPort uint64
	err = eachEntry(r, func(key string) error {
		var err error
		switch key {
		case keyBitmap:
			var v uint64
			v, err = r.unsigned(0xff)
			bitmap = uint8(v)
			haveBitmap = true
		case keySecure:
			secure, err = r.boolean()
		case keyPort:
			rawPort, err = r.unsigned(0xffff)
		default:
			err = r.skip()
		}
		return err
	})
	if err != nil {
		return 0, false, 0, err
	}
	if !haveBitmap {
		return 0, false, 0, missing(keyBitmap)
	}
	if secure {
		port = uint16(rawPort)
	}
	return bitmap, secure, port, nil
}

// decodeCollection reads [tags, link, link...]
func decodeCollection(r *reader) (*payload.Collection, error) {
	col := &payload.Collection{}
	var haveTags bool
	err := eachItem(r, func(i int) error {
		if i == 0 {
			haveTags = true
			return decodeTags(r, &col.Tags)
		}
		l, err := decodeCollectionLink(r)
		if err != nil {
			return err
		}
		col.Links = append(col.Links, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !haveTags {
		return nil, errors.New("collection without tags")
	}
	return col, nil
}

func decodeTags(r *reader, t *payload.Tags) error {
	var haveID, haveBitmap bool
	var rawPort uint64
	err := eachEntry(r, func(key string) error {
		var (
			v   uint64
			err error
		)
		switch key {
		case keyDeviceID:
			t.DeviceID, err = decodeDeviceID(r)
			haveID = true
		case keyName:
			t.Name, err = r.text()
		case keyBitmap:
			v, err = r.unsigned(0xff)
			t.Bitmap = uint8(v)
			haveBitmap = true
		case keySecure:
			t.Secure, err = r.boolean()
		case keyPort:
			rawPort, err = r.unsigned(0xffff)
		case keyTTL:
			v, err = r.unsigned(0xffffffff)
			t.TTL = uint32(v)
		default:
			err = r.skip()
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	if !haveID {
		return fmt.Errorf("tags: %w", missing(keyDeviceID))
	}
	if !haveBitmap {
		return fmt.Errorf("tags: %w", missing(keyBitmap))
	}
	if t.Secure {
		t.Port = uint16(rawPort)
	}
	return nil
}

func decodeCollectionLink(r *reader) (*payload.Link, error) {
	l := &payload.Link{}
	var haveHref bool
	err := eachEntry(r, func(key string) error {
		var (
			s   string
			err error
		)
		switch key {
		case keyHref:
			l.URI, err = r.text()
			haveHref = true
		case keyResourceType:
			s, err = r.text()
			l.Types = splitTokens(s)
		case keyInterface:
			s, err = r.text()
			l.Interfaces = splitTokens(s)
		case keyRelation:
			l.Relation, err = r.text()
		case keyInstance:
			l.Instance, err = r.integer()
		default:
			err = r.skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !haveHref {
		return nil, missing(keyHref)
	}
	return l, nil
}

// decodeEnvelope reads [ {href?, rep: ...} ] handing the rep value to fn
func decodeEnvelope(r *reader, fn func() error) (uri string, err error) {
	err = singleton(r, func() error {
		var haveRep bool
		err := eachEntry(r, func(key string) error {
			switch key {
			case keyHref:
				var err error
				uri, err = r.text()
				return err
			case keyRepresentation:
				haveRep = true
				return fn()
			default:
				return r.skip()
			}
		})
		if err != nil {
			return err
		}
		if !haveRep {
			return missing(keyRepresentation)
		}
		return nil
	})
	return uri, err
}

func decodeDevice(r *reader) (*payload.Device, error) {
	d := &payload.Device{}
	var haveID bool
	uri, err := decodeEnvelope(r, func() error {
		return eachEntry(r, func(key string) error {
			var err error
			switch key {
			case keyDeviceID:
				d.DeviceID, err = decodeDeviceID(r)
				haveID = true
			case keyName:
				d.Name, err = r.text()
			case keySpecVersion:
				d.SpecVersion, err = r.text()
			case keyDataModelVersion:
				d.DataModelVersion, err = r.text()
			default:
				err = r.skip()
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if !haveID {
		return nil, missing(keyDeviceID)
	}
	d.URI = uri
	return d, nil
}

func decodePlatform(r *reader) (*payload.Platform, error) {
	p := &payload.Platform{}
	fields := map[string]*string{
		keyPlatformID:        &p.PlatformID,
		keyManufacturer:      &p.Manufacturer,
		keyManufacturerURL:   &p.ManufacturerURL,
		keyModelNumber:       &p.ModelNumber,
		keyDateOfManufacture: &p.DateOfManufacture,
		keyPlatformVersion:   &p.PlatformVersion,
		keyOSVersion:         &p.OSVersion,
		keyHardwareVersion:   &p.HardwareVersion,
		keyFirmwareVersion:   &p.FirmwareVersion,
		keySupportURL:        &p.SupportURL,
		keySystemTime:        &p.SystemTime,
	}
	uri, err := decodeEnvelope(r, func() error {
		return eachEntry(r, func(key string) error {
			dst, ok := fields[key]
			if !ok {
				return r.skip()
			}
			s, err := r.text()
			*dst = s
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if p.PlatformID == "" {
		return nil, missing(keyPlatformID)
	}
	if p.Manufacturer == "" {
		return nil, missing(keyManufacturer)
	}
	p.URI = uri
	return p, nil
}

func decodePresence(r *reader) (*payload.Presence, error) {
	p := &payload.Presence{}
	var haveSeq, haveTTL, haveTrigger bool
	var rt string
	err := singleton(r, func() error {
		return eachEntry(r, func(key string) error {
			var (
				v   uint64
				s   string
				err error
			)
			switch key {
			case keyNonce:
				v, err = r.unsigned(0xffffffff)
				p.Sequence = uint32(v)
				haveSeq = true
			case keyTTL:
				v, err = r.unsigned(0xffffffff)
				p.MaxAge = uint32(v)
				haveTTL = true
			case keyTrigger:
				s, err = r.text()
				if err == nil {
					p.Trigger, err = payload.ParseTrigger(s)
				}
				haveTrigger = true
			case keyResourceType:
				rt, err = r.text()
			default:
				err = r.skip()
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	switch {
	case !haveSeq:
		return nil, missing(keyNonce)
	case !haveTTL:
		return nil, missing(keyTTL)
	case !haveTrigger:
		return nil, missing(keyTrigger)
	}
	if p.Trigger != payload.TriggerDelete {
		p.ResourceType = rt
	}
	return p, nil
}

func decodeSecurity(r *reader) (*payload.Security, error) {
	p := &payload.Security{}
	var have bool
	err := singleton(r, func() error {
		return eachEntry(r, func(key string) error {
			if key != keyRepresentation {
				return r.skip()
			}
			var err error
			p.Data, err = r.text()
			have = true
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if !have {
		return nil, missing(keyRepresentation)
	}
	return p, nil
}
