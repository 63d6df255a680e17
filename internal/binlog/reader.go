package binlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/SisyphusSQ/mxavro/internal/vars"
)

// RawEvent is one framed binlog event: its header, the byte offset its
// header started at, and a checksum-trimmed, NUL-terminated payload.
type RawEvent struct {
	Header  EventHeader
	Offset  uint32
	Payload []byte
}

// Reader sequentially frames events out of one binlog file, tracking the
// FormatDescription learned from the stream's own FORMAT_DESCRIPTION_EVENT.
type Reader struct {
	f      *os.File
	name   string
	offset uint32
	fd     FormatDescription
}

// Open opens path for sequential event framing starting at startPos. A
// startPos of 0 or 4 means "from the start of the stream": the 4-byte magic
// header is validated and consumed first and framing begins at offset 4.
// Any larger value resumes mid-stream (the caller is responsible for
// startPos being the offset of an event header, per the checkpoint
// invariant).
func Open(path string, startPos uint32) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{f: f, name: path}

	if startPos <= vars.BinlogMagicLen {
		magic := make([]byte, vars.BinlogMagicLen)
		if _, err := io.ReadFull(f, magic); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%s: %w: reading magic: %v", path, vars.ErrBadMagic, err)
		}
		for i, b := range vars.BinlogMagic {
			if magic[i] != b {
				_ = f.Close()
				return nil, fmt.Errorf("%s: %w", path, vars.ErrBadMagic)
			}
		}
		r.offset = vars.BinlogMagicLen
	} else {
		if _, err := f.Seek(int64(startPos), io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
		r.offset = startPos
	}

	return r, nil
}

// Name returns the path the reader was opened on.
func (r *Reader) Name() string { return r.name }

// Offset returns the byte offset of the next event header to be read.
func (r *Reader) Offset() uint32 { return r.offset }

// FormatDescription returns the format description learned so far, which is
// the zero value until the stream's FORMAT_DESCRIPTION_EVENT has been read.
func (r *Reader) FormatDescription() FormatDescription { return r.fd }

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Next frames and returns the next event. It returns io.EOF when the file
// ends cleanly on an event boundary, and vars.ErrTruncated (wrapped) when a
// partial header or payload is found mid-event, signalling the driver to
// stop and leave its checkpoint at the last known commit.
func (r *Reader) Next() (RawEvent, error) {
	headerOffset := r.offset
	hdrBuf := make([]byte, vars.EventHeaderLen)
	n, err := io.ReadFull(r.f, hdrBuf)
	if err == io.EOF && n == 0 {
		return RawEvent{}, io.EOF
	}
	if err != nil {
		return RawEvent{}, fmt.Errorf("%s@%d: %w: short event header: %v", r.name, headerOffset, vars.ErrTruncated, err)
	}

	header, err := ParseEventHeader(hdrBuf, headerOffset)
	if err != nil {
		return RawEvent{}, fmt.Errorf("%s@%d: %w", r.name, headerOffset, err)
	}

	payloadLen := int(header.PayloadLen())
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r.f, payload); err != nil {
			return RawEvent{}, fmt.Errorf("%s@%d: %w: short event payload: %v", r.name, headerOffset, vars.ErrTruncated, err)
		}
	}

	if header.EventType == FormatDescriptionEvent {
		fd, err := ParseFormatDescription(payload)
		if err != nil {
			return RawEvent{}, fmt.Errorf("%s@%d: %w", r.name, headerOffset, err)
		}
		r.fd = fd
	} else if r.fd.ChecksumPresent {
		trimmed, err := r.fd.TrimChecksum(payload)
		if err != nil {
			return RawEvent{}, fmt.Errorf("%s@%d: %w", r.name, headerOffset, err)
		}
		payload = trimmed
	}

	// A trailing NUL lets QUERY_EVENT SQL text be treated as a C string by
	// anything that wants to scan it that way, without a bounds check.
	payload = append(payload, 0)

	if header.NextPos > 0 {
		r.offset = header.NextPos
	} else {
		r.offset = headerOffset + header.EventSize
	}

	return RawEvent{Header: header, Offset: headerOffset, Payload: payload}, nil
}

// RotateInfo is the parsed payload of a ROTATE_EVENT: the position to
// resume at and the name of the binlog file to switch to.
type RotateInfo struct {
	Position uint64
	NextFile string
}

// ParseRotate decodes a ROTATE_EVENT payload: an 8-byte little-endian
// position followed by the raw (unprefixed) next file name.
func ParseRotate(payload []byte) (RotateInfo, error) {
	if len(payload) < 8 {
		return RotateInfo{}, vars.ErrShortBuffer
	}
	pos := binary.LittleEndian.Uint64(payload[:8])
	name := payload[8:]
	// strip the NUL terminator Reader.Next appends plus any short read pad.
	for len(name) > 0 && name[len(name)-1] == 0 {
		name = name[:len(name)-1]
	}
	return RotateInfo{Position: pos, NextFile: string(name)}, nil
}
