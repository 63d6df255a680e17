// Package codec implements the low-level byte extraction primitives used to
// decode the MySQL/MariaDB binlog wire format and the Avro binary encoding:
// little-endian fixed-width integers, a big-endian 5-byte unpacker for
// temporal fields, MySQL length-encoded ("lenenc") integers and strings, and
// Avro's zig-zag variable-length long encoding. Every operation here fails
// with vars.ErrShortBuffer rather than reading past the end of a slice.
package codec

import (
	"encoding/binary"

	"github.com/SisyphusSQ/mxavro/internal/vars"
)

// ExtractU16 reads a little-endian uint16 at the start of b.
func ExtractU16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, vars.ErrShortBuffer
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ExtractU24 reads a little-endian 3-byte unsigned integer.
func ExtractU24(b []byte) (uint32, error) {
	if len(b) < 3 {
		return 0, vars.ErrShortBuffer
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// ExtractU32 reads a little-endian uint32 at the start of b.
func ExtractU32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, vars.ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ExtractU64 reads a little-endian uint64 at the start of b.
func ExtractU64(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, vars.ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Unpack5 reads a big-endian 5-byte unsigned integer, the width of a
// DATETIME2 value's packed on-disk form.
func Unpack5(b []byte) (uint64, error) {
	if len(b) < 5 {
		return 0, vars.ErrShortBuffer
	}
	var v uint64
	for i := 0; i < 5; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// Cursor is a read-only forward cursor over a byte slice used throughout
// the binlog/DDL/row decoders so that every read is bounds-checked in one
// place.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential decoding starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the total length of the wrapped slice.
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Rest returns every byte not yet consumed, without advancing the cursor.
func (c *Cursor) Rest() []byte { return c.buf[c.pos:] }

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if c.Remaining() < n {
		return vars.ErrShortBuffer
	}
	c.pos += n
	return nil
}

// Bytes reads and returns the next n bytes, advancing the cursor.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if c.Remaining() < n {
		return nil, vars.ErrShortBuffer
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Byte reads a single byte.
func (c *Cursor) Byte() (byte, error) {
	if c.Remaining() < 1 {
		return 0, vars.ErrShortBuffer
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// U16 reads a little-endian uint16.
func (c *Cursor) U16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U24 reads a little-endian 3-byte unsigned integer.
func (c *Cursor) U24() (uint32, error) {
	b, err := c.Bytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// U32 reads a little-endian uint32.
func (c *Cursor) U32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U48 reads a little-endian 6-byte unsigned integer, the size MySQL uses
// for binlog table_id values.
func (c *Cursor) U48() (uint64, error) {
	b, err := c.Bytes(6)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 5; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// U64 reads a little-endian uint64.
func (c *Cursor) U64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Unpack5 reads a big-endian 5-byte unsigned integer without advancing past
// bounds errors.
func (c *Cursor) Unpack5() (uint64, error) {
	b, err := c.Bytes(5)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 5; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// LenencInt decodes a MySQL length-encoded integer: a first byte <0xfb is
// the value itself; 0xfc introduces 2 more bytes, 0xfd 3 more, 0xfe 8 more.
func (c *Cursor) LenencInt() (uint64, error) {
	first, err := c.Byte()
	if err != nil {
		return 0, err
	}
	switch {
	case first < 0xfb:
		return uint64(first), nil
	case first == 0xfb:
		// NULL marker in result-set contexts; callers that only expect
		// counts treat this as zero.
		return 0, nil
	case first == 0xfc:
		v, err := c.Bytes(2)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(v)), nil
	case first == 0xfd:
		v, err := c.Bytes(3)
		if err != nil {
			return 0, err
		}
		return uint64(v[0]) | uint64(v[1])<<8 | uint64(v[2])<<16, nil
	case first == 0xfe:
		v, err := c.Bytes(8)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(v), nil
	default:
		return 0, vars.ErrShortBuffer
	}
}

// LenencStr decodes a MySQL length-encoded string: a lenenc integer length
// followed by that many bytes.
func (c *Cursor) LenencStr() ([]byte, error) {
	n, err := c.LenencInt()
	if err != nil {
		return nil, err
	}
	return c.Bytes(int(n))
}

// NullTerminated reads bytes up to (not including) the next NUL byte, then
// skips the NUL.
func (c *Cursor) NullTerminated() ([]byte, error) {
	rest := c.Rest()
	idx := -1
	for i, b := range rest {
		if b == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, vars.ErrShortBuffer
	}
	s := rest[:idx]
	c.pos += idx + 1
	return s, nil
}

// ZigZagEncodeLong appends an Avro "long" zig-zag, variable-length encoded
// value of n to dst and returns the extended slice.
func ZigZagEncodeLong(dst []byte, n int64) []byte {
	u := uint64((n << 1) ^ (n >> 63))
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// ZigZagDecodeLong decodes an Avro "long" at the cursor's current position.
func (c *Cursor) ZigZagDecodeLong() (int64, error) {
	var (
		u     uint64
		shift uint
	)
	for {
		b, err := c.Byte()
		if err != nil {
			return 0, err
		}
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return int64(u>>1) ^ -int64(u&1), nil
}
