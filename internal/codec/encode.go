package codec

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/muurk/ocfstack/internal/payload"
)

// DefaultBufferGuess is the initial scratch buffer size for Encode.
const DefaultBufferGuess = 255

// Encode serialises a payload using DefaultBufferGuess as the first buffer
// size.
func Encode(p payload.Payload) ([]byte, error) {
	return EncodeWithGuess(p, DefaultBufferGuess)
}

// EncodeWithGuess serialises a payload into a buffer of guess bytes. If the
// payload does not fit, it is encoded exactly once more into a buffer grown
// by the number of bytes that were missing. The returned slice never carries
// spare capacity.
func EncodeWithGuess(p payload.Payload, guess int) ([]byte, error) {
	if p == nil {
		return nil, &EncodeError{Kind: payload.KindInvalid, Err: invalidf("nil payload")}
	}
	if guess <= 0 {
		guess = DefaultBufferGuess
	}

	w := newWriter(guess)
	err := encodePayload(w, p)
	if err == nil && errors.Is(w.err, ErrBufferTooSmall) {
		w = newWriter(guess + w.needed())
		err = encodePayload(w, p)
	}
	if err == nil {
		err = w.err
	}
	if err != nil {
		return nil, &EncodeError{Kind: p.Kind(), Err: err}
	}

	out := w.bytes()
	if cap(out) > len(out) {
		// bytes.Clone rounds capacity up to the allocator size class
		trimmed := make([]byte, len(out))
		copy(trimmed, out)
		out = trimmed
	}
	return out, nil
}

func encodePayload(w *writer, p payload.Payload) error {
	switch p := p.(type) {
	case *payload.Representation:
		return encodeRepresentation(w, p)
	case *payload.Discovery:
		return encodeDiscovery(w, p)
	case *payload.Device:
		return encodeDevice(w, p)
	case *payload.Platform:
		return encodePlatform(w, p)
	case *payload.Presence:
		return encodePresence(w, p)
	case *payload.Security:
		return encodeSecurity(w, p)
	default:
		return invalidf("unsupported payload type %T", p)
	}
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}

func encodeRepresentation(w *writer, p *payload.Representation) error {
	w.beginIndefiniteArray()
	for i, n := range p.Nodes {
		if n == nil {
			return invalidf("representation node %d is nil", i)
		}
		if err := encodeNode(w, n, 2); err != nil {
			return err
		}
	}
	w.endIndefinite()
	return nil
}

// encodeNode writes {href?, prop?{rt?, if?}, rep{...}} with the node map at
// nesting level. Nested objects use the same layout.
func encodeNode(w *writer, n *payload.Node, level int) error {
	if level+1 > MaxNestedLevels {
		return invalidf("objects nest deeper than %d levels", MaxNestedLevels)
	}
	hasProp := len(n.Types) > 0 || len(n.Interfaces) > 0
	entries := 1
	if n.URI != "" {
		entries++
	}
	if hasProp {
		entries++
	}
	w.mapHeader(entries)

	if n.URI != "" {
		w.textEntry(keyHref, n.URI)
	}
	if hasProp {
		w.text(keyProperties)
		encodeTypesAndInterfaces(w, n.Types, n.Interfaces)
	}

	w.text(keyRepresentation)
	w.mapHeader(len(n.Props))
	seen := make(map[string]struct{}, len(n.Props))
	for _, prop := range n.Props {
		if _, dup := seen[prop.Name]; dup {
			return invalidf("duplicate property %q", prop.Name)
		}
		seen[prop.Name] = struct{}{}
		w.text(prop.Name)
		if err := encodeValue(w, prop.Value, level+2); err != nil {
			return err
		}
	}
	return nil
}

// encodeTypesAndInterfaces writes a map holding the space-joined rt and if
// strings, each only when non-empty.
func encodeTypesAndInterfaces(w *writer, types, ifaces []string) {
	entries := 0
	if len(types) > 0 {
		entries++
	}
	if len(ifaces) > 0 {
		entries++
	}
	w.mapHeader(entries)
	if len(types) > 0 {
		w.textEntry(keyResourceType, joinTokens(types))
	}
	if len(ifaces) > 0 {
		w.textEntry(keyInterface, joinTokens(ifaces))
	}
}

// encodeValue writes v; containers it opens start at nesting level
func encodeValue(w *writer, v payload.Value, level int) error {
	switch v := v.(type) {
	case nil, payload.Null:
		w.null()
	case payload.Int:
		w.integer(int64(v))
	case payload.Double:
		w.double(float64(v))
	case payload.Bool:
		w.boolean(bool(v))
	case payload.String:
		w.text(string(v))
	case payload.Object:
		if v.Node == nil {
			return invalidf("object value without node")
		}
		return encodeNode(w, v.Node, level)
	case *payload.Array:
		return encodeArray(w, v, level)
	default:
		return invalidf("unsupported value type %T", v)
	}
	return nil
}

func encodeArray(w *writer, a *payload.Array, level int) error {
	if a == nil {
		return invalidf("nil array")
	}
	switch a.Kind {
	case payload.ValueInt, payload.ValueDouble, payload.ValueBool,
		payload.ValueString, payload.ValueObject:
	default:
		return invalidf("array of %s elements", a.Kind)
	}

	depth := a.Depth()
	for d := depth; d < payload.MaxArrayDepth; d++ {
		if a.Dims[d] != 0 {
			return invalidf("array dimension %d set after unused dimension %d", d, depth)
		}
	}
	for _, d := range a.Dims {
		if d < 0 {
			return invalidf("negative array dimension %d", d)
		}
	}
	if level+max(depth, 1)-1 > MaxNestedLevels {
		return invalidf("array nests deeper than %d levels", MaxNestedLevels)
	}
	if depth == 0 {
		w.arrayHeader(0)
		return nil
	}
	if len(a.Elems) < a.Len() {
		return invalidf("array %v holds %d elements, needs %d", a.Dims, len(a.Elems), a.Len())
	}
	for i, e := range a.Elems[:a.Len()] {
		if e == nil || e.ValueKind() != a.Kind {
			return invalidf("array of %s has element %d of another kind", a.Kind, i)
		}
	}
	return encodeArrayDim(w, a, 0, depth, 0, level)
}

// encodeArrayDim writes dimension dim starting at flat offset base. The
// outermost dimension sits at nesting level.
func encodeArrayDim(w *writer, a *payload.Array, dim, depth, base, level int) error {
	stride := 1
	for d := dim + 1; d < depth; d++ {
		stride *= a.Dims[d]
	}
	w.arrayHeader(a.Dims[dim])
	for i := 0; i < a.Dims[dim]; i++ {
		off := base + i*stride
		if dim+1 < depth {
			if err := encodeArrayDim(w, a, dim+1, depth, off, level); err != nil {
				return err
			}
			continue
		}
		if err := encodeValue(w, a.Elems[off], level+depth); err != nil {
			return err
		}
	}
	return nil
}

func encodeDeviceID(w *writer, id uuid.UUID) {
	w.byteString(id[:])
}

// encodePolicy writes {bm, sec?, port?}. sec and port only appear for
// secure resources, port only when non-zero.
func encodePolicy(w *writer, bitmap uint8, secure bool, port uint16) {
	entries := 1
	if secure {
		entries++
		if port != 0 {
			entries++
		}
	}
	w.mapHeader(entries)
	w.text(keyBitmap)
	w.unsigned(uint64(bitmap))
	if secure {
		w.text(keySecure)
		w.boolean(true)
		if port != 0 {
			w.text(keyPort)
			w.unsigned(uint64(port))
		}
	}
}

func encodeDiscovery(w *writer, p *payload.Discovery) error {
	if err := p.Validate(); err != nil {
		return invalidf("%v", err)
	}
	if p.IsCollection() {
		return encodeCollections(w, p.Collections)
	}

	w.arrayHeader(len(p.Resources))
	for _, r := range p.Resources {
		w.mapHeader(2)
		w.text(keyDeviceID)
		encodeDeviceID(w, r.DeviceID)

		w.text(keyLinks)
		w.arrayHeader(1)
		entries := 2
		if len(r.Types) > 0 {
			entries++
		}
		if len(r.Interfaces) > 0 {
			entries++
		}
		w.mapHeader(entries)
		w.textEntry(keyHref, r.URI)
		if len(r.Types) > 0 {
			w.textEntry(keyResourceType, joinTokens(r.Types))
		}
		if len(r.Interfaces) > 0 {
			w.textEntry(keyInterface, joinTokens(r.Interfaces))
		}
		w.text(keyPolicy)
		encodePolicy(w, r.Bitmap, r.Secure, r.Port)
	}
	return nil
}

// encodeCollections writes each collection as [tags, link, link...]
func encodeCollections(w *writer, cols []*payload.Collection) error {
	w.arrayHeader(len(cols))
	for _, c := range cols {
		w.arrayHeader(1 + len(c.Links))

		t := c.Tags
		entries := 2
		if t.Name != "" {
			entries++
		}
		if t.Secure {
			entries++
			if t.Port != 0 {
				entries++
			}
		}
		if t.TTL != 0 {
			entries++
		}
		w.mapHeader(entries)
		w.text(keyDeviceID)
		encodeDeviceID(w, t.DeviceID)
		if t.Name != "" {
			w.textEntry(keyName, t.Name)
		}
		w.text(keyBitmap)
		w.unsigned(uint64(t.Bitmap))
		if t.Secure {
			w.text(keySecure)
			w.boolean(true)
			if t.Port != 0 {
				w.text(keyPort)
				w.unsigned(uint64(t.Port))
			}
		}
		if t.TTL != 0 {
			w.text(keyTTL)
			w.unsigned(uint64(t.TTL))
		}

		for i, l := range c.Links {
			if l == nil {
				return invalidf("collection link %d is nil", i)
			}
			entries := 1
			for _, present := range []bool{len(l.Types) > 0, len(l.Interfaces) > 0, l.Relation != "", l.Instance != 0} {
				if present {
					entries++
				}
			}
			w.mapHeader(entries)
			w.textEntry(keyHref, l.URI)
			if len(l.Types) > 0 {
				w.textEntry(keyResourceType, joinTokens(l.Types))
			}
			if len(l.Interfaces) > 0 {
				w.textEntry(keyInterface, joinTokens(l.Interfaces))
			}
			if l.Relation != "" {
				w.textEntry(keyRelation, l.Relation)
			}
			if l.Instance != 0 {
				w.text(keyInstance)
				w.integer(l.Instance)
			}
		}
	}
	return nil
}

type textField struct {
	key   string
	value string
}

// writeTextFields writes the non-empty fields as a text map
func writeTextFields(w *writer, fields []textField) {
	n := 0
	for _, f := range fields {
		if f.value != "" {
			n++
		}
	}
	w.mapHeader(n)
	for _, f := range fields {
		if f.value != "" {
			w.textEntry(f.key, f.value)
		}
	}
}

// beginEnvelope writes [ {href?, rep: ...} leaving the rep value to the caller
func beginEnvelope(w *writer, uri string) {
	w.arrayHeader(1)
	if uri != "" {
		w.mapHeader(2)
		w.textEntry(keyHref, uri)
	} else {
		w.mapHeader(1)
	}
	w.text(keyRepresentation)
}

func encodeDevice(w *writer, p *payload.Device) error {
	if p.DeviceID == uuid.Nil {
		return invalidf("device payload without device id")
	}
	beginEnvelope(w, p.URI)
	fields := []textField{
		{keyName, p.Name},
		{keySpecVersion, p.SpecVersion},
		{keyDataModelVersion, p.DataModelVersion},
	}
	n := 1
	for _, f := range fields {
		if f.value != "" {
			n++
		}
	}
	w.mapHeader(n)
	w.text(keyDeviceID)
	encodeDeviceID(w, p.DeviceID)
	for _, f := range fields {
		if f.value != "" {
			w.textEntry(f.key, f.value)
		}
	}
	return nil
}

func encodePlatform(w *writer, p *payload.Platform) error {
	if p.PlatformID == "" || p.Manufacturer == "" {
		return invalidf("platform payload requires platform id and manufacturer")
	}
	beginEnvelope(w, p.URI)
	writeTextFields(w, []textField{
		{keyPlatformID, p.PlatformID},
		{keyManufacturer, p.Manufacturer},
		{keyManufacturerURL, p.ManufacturerURL},
		{keyModelNumber, p.ModelNumber},
		{keyDateOfManufacture, p.DateOfManufacture},
		{keyPlatformVersion, p.PlatformVersion},
		{keyOSVersion, p.OSVersion},
		{keyHardwareVersion, p.HardwareVersion},
		{keyFirmwareVersion, p.FirmwareVersion},
		{keySupportURL, p.SupportURL},
		{keySystemTime, p.SystemTime},
	})
	return nil
}

func encodePresence(w *writer, p *payload.Presence) error {
	var trigger string
	switch p.Trigger {
	case payload.TriggerCreate, payload.TriggerChange, payload.TriggerDelete:
		trigger = p.Trigger.String()
	default:
		return invalidf("unknown presence trigger %d", int(p.Trigger))
	}
	withType := p.Trigger != payload.TriggerDelete && p.ResourceType != ""

	w.arrayHeader(1)
	if withType {
		w.mapHeader(4)
	} else {
		w.mapHeader(3)
	}
	w.text(keyNonce)
	w.unsigned(uint64(p.Sequence))
	w.text(keyTTL)
	w.unsigned(uint64(p.MaxAge))
	w.textEntry(keyTrigger, trigger)
	if withType {
		w.textEntry(keyResourceType, p.ResourceType)
	}
	return nil
}

func encodeSecurity(w *writer, p *payload.Security) error {
	w.arrayHeader(1)
	w.mapHeader(1)
	w.textEntry(keyRepresentation, p.Data)
	return nil
}
