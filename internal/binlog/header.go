// Package binlog frames the MariaDB binlog wire format: the fixed 19-byte
// event header, the FORMAT_DESCRIPTION_EVENT post-header length table, and
// rotation/truncation detection. It deliberately reimplements this layer
// rather than wrapping go-mysql-org/go-mysql's replication client, since
// tracking next_pos/event_size validation and checksum stripping by hand is
// what the converter is built to do.
package binlog

import (
	"fmt"

	"github.com/SisyphusSQ/mxavro/internal/codec"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

// EventHeader is the fixed 19-byte prefix of every binlog event.
type EventHeader struct {
	Timestamp uint32
	EventType byte
	ServerID  uint32
	EventSize uint32
	NextPos   uint32
	Flags     uint16
}

// ParseEventHeader decodes the 19-byte header starting at offset within buf
// and validates it against the event's own declared position.
func ParseEventHeader(buf []byte, offset uint32) (EventHeader, error) {
	var h EventHeader
	if len(buf) < vars.EventHeaderLen {
		return h, vars.ErrShortBuffer
	}
	c := codec.NewCursor(buf)

	ts, err := c.U32()
	if err != nil {
		return h, err
	}
	et, err := c.Byte()
	if err != nil {
		return h, err
	}
	sid, err := c.U32()
	if err != nil {
		return h, err
	}
	size, err := c.U32()
	if err != nil {
		return h, err
	}
	next, err := c.U32()
	if err != nil {
		return h, err
	}
	flags, err := c.U16()
	if err != nil {
		return h, err
	}

	h = EventHeader{Timestamp: ts, EventType: et, ServerID: sid, EventSize: size, NextPos: next, Flags: flags}

	if err := h.Validate(offset); err != nil {
		return h, err
	}
	return h, nil
}

// Validate checks event_size/event_type/next_pos against the offset the
// header was read from, per the framer's truncation-detection contract.
func (h EventHeader) Validate(offset uint32) error {
	if h.EventSize < vars.EventHeaderLen {
		return fmt.Errorf("%w: event_size %d < header length", vars.ErrTruncated, h.EventSize)
	}
	if h.EventType > vars.MaxEventTypeMariaDB10 {
		return fmt.Errorf("%w: event_type 0x%02x exceeds max 0x%02x", vars.ErrTruncated, h.EventType, vars.MaxEventTypeMariaDB10)
	}
	if h.NextPos > 0 {
		if h.NextPos != offset+h.EventSize {
			return fmt.Errorf("%w: next_pos %d != offset %d + event_size %d", vars.ErrTruncated, h.NextPos, offset, h.EventSize)
		}
		if h.NextPos <= offset {
			return fmt.Errorf("%w: next_pos %d <= offset %d", vars.ErrTruncated, h.NextPos, offset)
		}
	}
	return nil
}

// PayloadLen returns the number of payload bytes following the header,
// event_size - 19.
func (h EventHeader) PayloadLen() uint32 {
	return h.EventSize - vars.EventHeaderLen
}

// FormatDescription holds the per-event-type post-header length table
// learned from the stream's FORMAT_DESCRIPTION_EVENT, plus whether CRC32
// checksums trail every subsequent event's payload.
type FormatDescription struct {
	HeaderLength    byte
	PostHeaderLens  []byte // entry i is for event type i+1
	ChecksumPresent bool
}

// ParseFormatDescription decodes a FORMAT_DESCRIPTION_EVENT payload:
// event_header_length sits past the binlog-version(2), server-version(50)
// and create-timestamp(4) fields, followed by one post-header-length byte
// per known event type; a trailing 0x01 marks CRC32 checksums as present on
// every following event.
func ParseFormatDescription(payload []byte) (FormatDescription, error) {
	const lenOffset = 2 + 50 + 4
	var fd FormatDescription

	if len(payload) < lenOffset+1 {
		return fd, vars.ErrShortBuffer
	}
	fd.HeaderLength = payload[lenOffset]

	table := payload[lenOffset+1:]
	if len(table) == 0 {
		return fd, vars.ErrShortBuffer
	}

	// The checksum-algorithm byte trails the post-header length table; when
	// present and non-zero (CRC32 = 1), every subsequent event carries a
	// 4-byte checksum suffix that must be excluded from payload length.
	checksumByte := table[len(table)-1]
	fd.ChecksumPresent = checksumByte == 0x01
	if fd.ChecksumPresent {
		fd.PostHeaderLens = append([]byte(nil), table[:len(table)-1]...)
	} else {
		fd.PostHeaderLens = append([]byte(nil), table...)
	}
	return fd, nil
}

// PostHeaderLen returns the post-header length stored for eventType, or 0
// when the format description's table doesn't cover it.
func (fd FormatDescription) PostHeaderLen(eventType byte) byte {
	idx := int(eventType) - 1
	if idx < 0 || idx >= len(fd.PostHeaderLens) {
		return 0
	}
	return fd.PostHeaderLens[idx]
}

// TrimChecksum strips the trailing 4-byte CRC32 checksum from payload when
// the format description indicates one is present.
func (fd FormatDescription) TrimChecksum(payload []byte) ([]byte, error) {
	if !fd.ChecksumPresent {
		return payload, nil
	}
	if len(payload) < vars.ChecksumLen {
		return nil, vars.ErrShortBuffer
	}
	return payload[:len(payload)-vars.ChecksumLen], nil
}
