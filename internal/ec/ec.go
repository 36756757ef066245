// Package ec decodes and encodes the ED2K engine's binary External-Control
// frames: a tagged value tree plus the run-length encoded byte/uint64
// streams used for segment/gap/request buffers. The wire format is
// proprietary to the ED2K engine and has no ecosystem counterpart, so the
// codec is hand-rolled encoding/binary rather than a reused library, the
// same way a one-off protocol gets its own package elsewhere in the pack.
package ec

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
)

// TagType identifies the wire representation of a Tag's value.
type TagType uint8

const (
	TypeUnknown TagType = iota
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeString
	TypeIPv4
	TypeHash
	TypeCustom
)

// PartSize is the fixed chunk size, in bytes, the ED2K engine reports
// partStatus/gapStatus/reqStatus buffers against.
const PartSize = 9_728_000

// Tag is one node of the EC tagged value tree. Exactly one of the typed
// value fields is populated, selected by Type; Children holds nested tags.
// Unknown tag types are preserved in Raw so the codec never drops bytes.
type Tag struct {
	ID       uint8
	Type     TagType
	Uint     uint64
	Str      string
	Raw      []byte
	Children []*Tag
}

// Frame is a decoded command/response: a command id plus its root tags.
type Frame struct {
	Cmd  uint8
	Tags []*Tag
}

// Codec decodes opaque EC frame bytes into a Frame and encodes a command id
// plus parameter tags back into wire bytes. It is stateless and safe for
// concurrent use.
type Codec struct{}

// New returns a ready-to-use Codec.
func New() *Codec { return &Codec{} }

// Decode parses a single opaque EC frame. Malformed RLE and unknown tag
// types degrade gracefully per the wire contract rather than failing the
// whole frame: an incomplete run is treated as literal bytes, and an
// unrecognised tag type keeps its payload undecoded in Raw while decoding
// continues with the next node.
func (c *Codec) Decode(buf []byte) (*Frame, error) {
	if len(buf) < 2 {
		return nil, bridgeerr.New(bridgeerr.KindProtocol, "ec.Decode", errors.New("frame too short"))
	}
	r := &reader{buf: buf}
	cmd := r.u8()
	count := r.u8()
	tags := make([]*Tag, 0, count)
	for i := 0; i < int(count) && r.ok(); i++ {
		tag, err := decodeTag(r)
		if err != nil {
			return nil, bridgeerr.New(bridgeerr.KindProtocol, "ec.Decode", err)
		}
		if tag != nil {
			tags = append(tags, tag)
		}
	}
	if r.err != nil {
		return nil, bridgeerr.New(bridgeerr.KindProtocol, "ec.Decode", r.err)
	}
	return &Frame{Cmd: cmd, Tags: tags}, nil
}

// Encode serialises a command id and parameter tags into opaque EC frame
// bytes, the inverse of Decode for well-formed trees.
func (c *Codec) Encode(cmd uint8, tags []*Tag) ([]byte, error) {
	w := &writer{}
	w.putU8(cmd)
	if len(tags) > 255 {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ec.Encode", errors.New("too many top-level tags"))
	}
	w.putU8(uint8(len(tags)))
	for _, t := range tags {
		encodeTag(w, t)
	}
	return w.buf, nil
}

func decodeTag(r *reader) (*Tag, error) {
	id := r.u8()
	typ := TagType(r.u8())
	hasChildren := r.u8() != 0
	var childCount uint16
	if hasChildren {
		childCount = r.u16()
	}

	t := &Tag{ID: id, Type: typ}
	switch typ {
	case TypeUint8:
		t.Uint = uint64(r.u8())
	case TypeUint16:
		t.Uint = uint64(r.u16())
	case TypeUint32:
		t.Uint = uint64(r.u32())
	case TypeUint64:
		t.Uint = r.u64()
	case TypeIPv4:
		t.Uint = uint64(r.u32())
	case TypeHash:
		t.Raw = r.bytes(16)
	case TypeString:
		n := r.u16()
		t.Str = string(r.bytes(int(n)))
	case TypeCustom:
		n := r.u32()
		t.Raw = r.bytes(int(n))
	default:
		// Unknown type: keep the payload undecoded in Raw, keep reading
		// siblings/children.
		n := r.u32()
		t.Raw = r.bytes(int(n))
	}

	for i := 0; i < int(childCount) && r.ok(); i++ {
		child, err := decodeTag(r)
		if err != nil {
			return nil, err
		}
		if child != nil {
			t.Children = append(t.Children, child)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return t, nil
}

func encodeTag(w *writer, t *Tag) {
	w.putU8(t.ID)
	w.putU8(uint8(t.Type))
	if len(t.Children) > 0 {
		w.putU8(1)
		w.putU16(uint16(len(t.Children)))
	} else {
		w.putU8(0)
	}
	switch t.Type {
	case TypeUint8:
		w.putU8(uint8(t.Uint))
	case TypeUint16:
		w.putU16(uint16(t.Uint))
	case TypeUint32, TypeIPv4:
		w.putU32(uint32(t.Uint))
	case TypeUint64:
		w.putU64(t.Uint)
	case TypeHash:
		w.putBytes(t.Raw)
	case TypeString:
		w.putU16(uint16(len(t.Str)))
		w.putBytes([]byte(t.Str))
	case TypeCustom:
		w.putU32(uint32(len(t.Raw)))
		w.putBytes(t.Raw)
	default:
		w.putU32(uint32(len(t.Raw)))
		w.putBytes(t.Raw)
	}
	for _, child := range t.Children {
		encodeTag(w, child)
	}
}

// reader is a small bounds-checked cursor over an EC frame buffer.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) ok() bool { return r.err == nil && r.pos < len(r.buf) }

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = errors.New("ec: buffer underrun")
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) bytes(n int) []byte {
	if n < 0 || !r.need(n) {
		return nil
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+n])
	r.pos += n
	return v
}

// writer is a small growable byte buffer for encoding.
type writer struct {
	buf []byte
}

func (w *writer) putU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) putU16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) putU32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) putU64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) putBytes(b []byte) { w.buf = append(w.buf, b...) }
