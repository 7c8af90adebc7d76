package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MaxNestedLevels bounds array and map nesting on both encode and decode.
// A nested object property costs two levels: its node map and its rep map.
const MaxNestedLevels = 64

// itemMode decodes single scalar items. Integers always land in int64.
var itemMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		IntDec:          cbor.IntDecConvertSigned,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		UTF8:            cbor.UTF8RejectInvalid,
		IndefLength:     cbor.IndefLengthAllowed,
		MaxNestedLevels: MaxNestedLevels,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

var errTruncated = errors.New("unexpected end of input")

// reader walks a CBOR buffer one item at a time. Container heads are read
// here; scalar items are handed to fxamacker/cbor.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

// fork returns an independent reader positioned at the same item
func (r *reader) fork() *reader {
	return &reader{data: r.data, pos: r.pos}
}

func (r *reader) rest() []byte {
	return r.data[r.pos:]
}

func (r *reader) peek() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errTruncated
	}
	return r.data[r.pos], nil
}

// major returns the major type of the next item without consuming it
func (r *reader) major() (byte, error) {
	b, err := r.peek()
	if err != nil {
		return 0, err
	}
	return b >> 5, nil
}

// head consumes an item head and returns its argument. indefinite is set for
// indefinite-length strings and containers.
func (r *reader) head() (major byte, arg uint64, indefinite bool, err error) {
	b, err := r.peek()
	if err != nil {
		return 0, 0, false, err
	}
	major, info := b>>5, b&0x1f
	r.pos++

	var size int
	switch {
	case info < 24:
		return major, uint64(info), false, nil
	case info == 24:
		size = 1
	case info == 25:
		size = 2
	case info == 26:
		size = 4
	case info == 27:
		size = 8
	case info == 31:
		return major, 0, true, nil
	default:
		return 0, 0, false, fmt.Errorf("reserved additional info %d", info)
	}
	if r.pos+size > len(r.data) {
		return 0, 0, false, errTruncated
	}
	buf := r.data[r.pos : r.pos+size]
	r.pos += size
	switch size {
	case 1:
		arg = uint64(buf[0])
	case 2:
		arg = uint64(binary.BigEndian.Uint16(buf))
	case 4:
		arg = uint64(binary.BigEndian.Uint32(buf))
	default:
		arg = binary.BigEndian.Uint64(buf)
	}
	return major, arg, false, nil
}

// container tracks iteration over an entered array or map
type container struct {
	remaining  uint64
	indefinite bool
}

func (r *reader) enter(want byte) (*container, error) {
	major, arg, indefinite, err := r.head()
	if err != nil {
		return nil, err
	}
	if major != want {
		return nil, fmt.Errorf("expected %s, found %s", majorName(want), majorName(major))
	}
	if !indefinite && arg > uint64(len(r.data)) {
		return nil, fmt.Errorf("%s length %d exceeds input", majorName(want), arg)
	}
	return &container{remaining: arg, indefinite: indefinite}, nil
}

func (r *reader) enterArray() (*container, error) { return r.enter(majorArray) }
func (r *reader) enterMap() (*container, error)   { return r.enter(majorMap) }

// next reports whether the container has another item (or map entry) and
// consumes the break marker at the end of indefinite containers.
func (r *reader) next(c *container) (bool, error) {
	if c.indefinite {
		b, err := r.peek()
		if err != nil {
			return false, err
		}
		if b == breakByte {
			r.pos++
			return false, nil
		}
		return true, nil
	}
	if c.remaining == 0 {
		return false, nil
	}
	c.remaining--
	return true, nil
}

// item decodes one complete item into v
func (r *reader) item(v any) error {
	rest, err := itemMode.UnmarshalFirst(r.rest(), v)
	if err != nil {
		return err
	}
	r.pos = len(r.data) - len(rest)
	return nil
}

func (r *reader) expect(want byte) error {
	m, err := r.major()
	if err != nil {
		return err
	}
	if m != want {
		return fmt.Errorf("expected %s, found %s", majorName(want), majorName(m))
	}
	return nil
}

func (r *reader) text() (string, error) {
	if err := r.expect(majorText); err != nil {
		return "", err
	}
	var s string
	err := r.item(&s)
	return s, err
}

func (r *reader) byteString() ([]byte, error) {
	if err := r.expect(majorBytes); err != nil {
		return nil, err
	}
	var b []byte
	err := r.item(&b)
	return b, err
}

func (r *reader) integer() (int64, error) {
	m, err := r.major()
	if err != nil {
		return 0, err
	}
	if m != majorUint && m != majorNegint {
		return 0, fmt.Errorf("expected integer, found %s", majorName(m))
	}
	var n int64
	err = r.item(&n)
	return n, err
}

// unsigned reads a non-negative integer no larger than max
func (r *reader) unsigned(max uint64) (uint64, error) {
	if err := r.expect(majorUint); err != nil {
		return 0, err
	}
	var n uint64
	if err := r.item(&n); err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("value %d out of range (max %d)", n, max)
	}
	return n, nil
}

func (r *reader) boolean() (bool, error) {
	b, err := r.peek()
	if err != nil {
		return false, err
	}
	switch b {
	case 0xf4:
		r.pos++
		return false, nil
	case 0xf5:
		r.pos++
		return true, nil
	default:
		return false, fmt.Errorf("expected boolean, found initial byte 0x%02x", b)
	}
}

// skip consumes one complete item of any type
func (r *reader) skip() error {
	var raw cbor.RawMessage
	return r.item(&raw)
}

func majorName(m byte) string {
	switch m {
	case majorUint:
		return "unsigned integer"
	case majorNegint:
		return "negative integer"
	case majorBytes:
		return "byte string"
	case majorText:
		return "text string"
	case majorArray:
		return "array"
	case majorMap:
		return "map"
	case majorTag:
		return "tag"
	case majorSimple:
		return "simple value"
	default:
		return fmt.Sprintf("major(%d)", m)
	}
}
