package codec

import (
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
)

// CBOR major types
const (
	majorUint   byte = 0
	majorNegint byte = 1
	majorBytes  byte = 2
	majorText   byte = 3
	majorArray  byte = 4
	majorMap    byte = 5
	majorTag    byte = 6
	majorSimple byte = 7
)

const (
	indefiniteArray byte = 0x9f
	breakByte       byte = 0xff
)

// scalarMode serialises scalar items. Floats stay 8-byte IEEE doubles.
var scalarMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{
		ShortestFloat: cbor.ShortestFloatNone,
		NaNConvert:    cbor.NaNConvertNone,
		InfConvert:    cbor.InfConvertNone,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// writer is a fixed-capacity CBOR writer. Writes past the capacity are not
// stored but are still counted, so after an overflow needed() reports how
// many more bytes the buffer would have had to hold.
type writer struct {
	buf     []byte
	limit   int
	written int
	err     error
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, 0, size), limit: size}
}

func (w *writer) write(b []byte) {
	w.written += len(b)
	if w.written > w.limit {
		if w.err == nil {
			w.err = ErrBufferTooSmall
		}
		return
	}
	w.buf = append(w.buf, b...)
}

// needed returns the bytes missing from the buffer
func (w *writer) needed() int {
	if w.written <= w.limit {
		return 0
	}
	return w.written - w.limit
}

func (w *writer) bytes() []byte {
	return w.buf
}

// head writes a major type with its argument in the shortest form
func (w *writer) head(major byte, n uint64) {
	var b [9]byte
	m := major << 5
	switch {
	case n < 24:
		b[0] = m | byte(n)
		w.write(b[:1])
	case n <= 0xff:
		b[0], b[1] = m|24, byte(n)
		w.write(b[:2])
	case n <= 0xffff:
		b[0] = m | 25
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		w.write(b[:3])
	case n <= 0xffffffff:
		b[0] = m | 26
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		w.write(b[:5])
	default:
		b[0] = m | 27
		binary.BigEndian.PutUint64(b[1:], n)
		w.write(b[:9])
	}
}

func (w *writer) mapHeader(n int) {
	w.head(majorMap, uint64(n))
}

func (w *writer) arrayHeader(n int) {
	w.head(majorArray, uint64(n))
}

func (w *writer) beginIndefiniteArray() {
	w.write([]byte{indefiniteArray})
}

func (w *writer) endIndefinite() {
	w.write([]byte{breakByte})
}

// scalar serialises one non-container item
func (w *writer) scalar(v any) {
	b, err := scalarMode.Marshal(v)
	if err != nil {
		if w.err == nil {
			w.err = invalidf("scalar %T: %v", v, err)
		}
		return
	}
	w.write(b)
}

func (w *writer) text(s string)       { w.scalar(s) }
func (w *writer) byteString(b []byte) { w.scalar(b) }
func (w *writer) integer(n int64)     { w.scalar(n) }
func (w *writer) unsigned(n uint64)   { w.scalar(n) }
func (w *writer) double(f float64)    { w.scalar(f) }
func (w *writer) boolean(b bool)      { w.scalar(b) }
func (w *writer) null()               { w.scalar(nil) }

// textEntry writes a text key and text value
func (w *writer) textEntry(k, v string) {
	w.text(k)
	w.text(v)
}
