// Package avrofile writes decoded row records to per-table-version Avro
// Object Container Files: a header (magic, JSON schema, 16-byte sync marker)
// followed by length-prefixed blocks of Avro-encoded records, each closed by
// the sync marker. hamba/avro/v2 supplies the schema parser and the
// per-record binary encoder; the header/block envelope and the
// buffer-then-finalize/truncate-on-failure discipline are managed here
// directly, one block at a time rather than through a streaming encoder,
// because append-to-existing-file and abort-by-truncate have no hook in the
// library's ocf encoder.
package avrofile

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hamba/avro/v2"

	"github.com/SisyphusSQ/mxavro/internal/codec"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

const magic = "Obj\x01"

// Writer appends records to one table-version's Avro container file.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	schema avro.Schema
	sync   [16]byte
	block  datablock
}

// Create truncates (or creates) path and writes a fresh OCF header carrying
// schemaJSON and a newly generated sync marker.
func Create(path string, schemaJSON string) (*Writer, error) {
	schema, err := avro.Parse(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("avrofile: parse schema: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	var marker [16]byte
	if _, err := rand.Read(marker[:]); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeHeader(f, schemaJSON, marker); err != nil {
		f.Close()
		return nil, err
	}

	return &Writer{f: f, path: path, schema: schema, sync: marker}, nil
}

// OpenOrCreate opens path for append if it already exists, reusing the sync
// marker recorded in its header, or creates it fresh otherwise.
func OpenOrCreate(path string, schemaJSON string) (*Writer, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Create(path, schemaJSON)
	}

	schema, err := avro.Parse(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("avrofile: parse schema: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	marker, err := readHeaderSync(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}

	return &Writer{f: f, path: path, schema: schema, sync: marker}, nil
}

// Path returns the container file's path.
func (w *Writer) Path() string {
	return w.path
}

// Append buffers one record into the active datablock. Records become
// durable only once Flush is called.
func (w *Writer) Append(rec map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.block.append(w.schema, rec)
}

// Flush finalizes the active datablock to disk as one Avro block. On any
// partial write it truncates the file back to the length it held before the
// attempt and reseeks to end-of-file, leaving previously finalized blocks
// intact and the in-memory block unchanged so the caller may retry.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.block.finalize(w.f, w.sync)
}

// Close flushes any pending records and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.block.finalize(w.f, w.sync); err != nil {
		return err
	}
	return w.f.Close()
}

// datablock is the in-memory buffer described in the container format:
// accumulated record count plus the concatenated Avro-encoded payload bytes.
type datablock struct {
	records int
	buf     []byte
}

func (d *datablock) append(schema avro.Schema, rec map[string]any) error {
	b, err := avro.Marshal(schema, rec)
	if err != nil {
		return fmt.Errorf("avrofile: encode record: %w", err)
	}
	if cap(d.buf)-len(d.buf) < len(b) {
		grown := make([]byte, len(d.buf), 2*(len(d.buf)+len(b))+64)
		copy(grown, d.buf)
		d.buf = grown
	}
	d.buf = append(d.buf, b...)
	d.records++
	return nil
}

func (d *datablock) finalize(f *os.File, marker [16]byte) error {
	if d.records == 0 {
		return nil
	}

	before, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	var head []byte
	head = codec.ZigZagEncodeLong(head, int64(d.records))
	head = codec.ZigZagEncodeLong(head, int64(len(d.buf)))

	if _, err := f.Write(head); err != nil {
		return d.abort(f, before, err)
	}
	if _, err := f.Write(d.buf); err != nil {
		return d.abort(f, before, err)
	}
	if _, err := f.Write(marker[:]); err != nil {
		return d.abort(f, before, err)
	}

	d.records = 0
	d.buf = d.buf[:0]
	return nil
}

func (d *datablock) abort(f *os.File, before int64, cause error) error {
	if err := f.Truncate(before); err != nil {
		return fmt.Errorf("avrofile: truncate after failed flush: %w (original: %v)", err, cause)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("avrofile: reseek after failed flush: %w (original: %v)", err, cause)
	}
	return cause
}

func writeHeader(w io.Writer, schemaJSON string, marker [16]byte) error {
	var buf []byte
	buf = append(buf, magic...)
	buf = codec.ZigZagEncodeLong(buf, 2) // one metadata map block of 2 entries
	buf = appendAvroBytes(buf, []byte("avro.schema"))
	buf = appendAvroBytes(buf, []byte(schemaJSON))
	buf = appendAvroBytes(buf, []byte("avro.codec"))
	buf = appendAvroBytes(buf, []byte("null"))
	buf = codec.ZigZagEncodeLong(buf, 0) // terminate the map
	buf = append(buf, marker[:]...)
	_, err := w.Write(buf)
	return err
}

func appendAvroBytes(dst []byte, b []byte) []byte {
	dst = codec.ZigZagEncodeLong(dst, int64(len(b)))
	return append(dst, b...)
}

// readHeaderSync validates the magic and walks the metadata map to land the
// read position at the sync marker, which it returns. It reads through a
// bufio.Reader, so f's offset is left wherever that reader's read-ahead
// stopped, possibly beyond the marker; callers that want to append reseek to
// end-of-file.
func readHeaderSync(f *os.File) ([16]byte, error) {
	var marker [16]byte

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return marker, err
	}
	r := bufio.NewReader(f)

	got := make([]byte, 4)
	if _, err := io.ReadFull(r, got); err != nil {
		return marker, err
	}
	if string(got) != magic {
		return marker, vars.ErrAvroBadMagic
	}

	for {
		n, err := readZigZagLong(r)
		if err != nil {
			return marker, err
		}
		if n == 0 {
			break
		}
		count := n
		if count < 0 {
			count = -count
			if _, err := readZigZagLong(r); err != nil { // byte-size of block, unused
				return marker, err
			}
		}
		for i := int64(0); i < count; i++ {
			if _, err := readAvroBytes(r); err != nil { // key
				return marker, err
			}
			if _, err := readAvroBytes(r); err != nil { // value
				return marker, err
			}
		}
	}

	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return marker, err
	}
	return marker, nil
}

func readZigZagLong(r io.Reader) (int64, error) {
	var ux uint64
	var shift uint
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		ux |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			break
		}
		shift += 7
	}
	x := int64(ux >> 1)
	if ux&1 != 0 {
		x = ^x
	}
	return x, nil
}

func readAvroBytes(r io.Reader) ([]byte, error) {
	n, err := readZigZagLong(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
