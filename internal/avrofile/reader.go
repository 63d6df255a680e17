package avrofile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/hamba/avro/v2"

	"github.com/SisyphusSQ/mxavro/internal/codec"
)

// Reader streams records out of one table-version's Avro container file,
// block by block, for the serving layer. It never buffers the whole file:
// each call to NextBlockRaw or NextBlockRecords reads exactly one on-disk
// block.
type Reader struct {
	f          *os.File
	r          *bufio.Reader
	schema     avro.Schema
	schemaJSON string
	sync       [16]byte
}

// OpenReader opens path for read-only streaming, parsing its header to
// recover the schema and sync marker.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	schemaJSON, marker, err := readHeaderSchema(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	schema, err := avro.Parse(schemaJSON)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{f: f, r: bufio.NewReader(f), schema: schema, schemaJSON: schemaJSON, sync: marker}, nil
}

// SchemaJSON returns the container's schema text, used to resend the schema
// preamble on a JSON-format session or re-parse records on rotation.
func (r *Reader) SchemaJSON() string { return r.schemaJSON }

// HeaderBytes reconstructs the file's binary OCF header (magic, schema
// metadata map, sync marker) byte-for-byte, for the Avro wire path's schema
// preamble, which resends the container's own header rather than a parsed
// representation of it.
func (r *Reader) HeaderBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, r.schemaJSON, r.sync); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// NextBlockRaw reads one block's raw bytes (count+size header, payload and
// trailing sync marker, exactly as stored on disk) for the Avro wire path,
// which streams blocks unchanged. Returns io.EOF when no further block is
// currently available.
func (r *Reader) NextBlockRaw() (recordCount int64, raw []byte, err error) {
	count, payload, err := r.nextBlockPayload()
	if err != nil {
		return 0, nil, err
	}

	var head []byte
	head = codec.ZigZagEncodeLong(head, count)
	head = codec.ZigZagEncodeLong(head, int64(len(payload)))

	raw = append(raw, head...)
	raw = append(raw, payload...)
	raw = append(raw, r.sync[:]...)
	return count, raw, nil
}

// NextBlockRecords reads one block and decodes it into count independent
// records, for the JSON wire path which re-serializes record by record.
func (r *Reader) NextBlockRecords() ([]map[string]any, error) {
	count, payload, err := r.nextBlockPayload()
	if err != nil {
		return nil, err
	}

	dec := avro.NewDecoderForSchema(r.schema, bytes.NewReader(payload))

	records := make([]map[string]any, 0, count)
	for i := int64(0); i < count; i++ {
		rec := make(map[string]any)
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("avrofile: decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// nextBlockPayload reads one block's count and concatenated record bytes off
// the stream, verifying the trailing sync marker. A session tailing a file
// the converter is still appending to can land mid-block: any failure
// rewinds the stream to the block's start so the next call retries the whole
// block once the writer has finished it.
func (r *Reader) nextBlockPayload() (int64, []byte, error) {
	start, err := r.offset()
	if err != nil {
		return 0, nil, err
	}

	count, payload, err := r.readBlock()
	if err != nil {
		r.rewind(start)
		return 0, nil, err
	}
	return count, payload, nil
}

func (r *Reader) readBlock() (int64, []byte, error) {
	count, err := readZigZagLong(r.r)
	if err != nil {
		return 0, nil, err
	}

	size, err := readZigZagLong(r.r)
	if err != nil {
		return 0, nil, err
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return 0, nil, err
	}

	var marker [16]byte
	if _, err := io.ReadFull(r.r, marker[:]); err != nil {
		return 0, nil, err
	}
	if marker != r.sync {
		return 0, nil, fmt.Errorf("avrofile: sync marker mismatch reading %s", r.f.Name())
	}

	return count, payload, nil
}

// offset is the logical read position: the file descriptor's offset minus
// whatever the buffered reader has read ahead.
func (r *Reader) offset() (int64, error) {
	cur, err := r.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return cur - int64(r.r.Buffered()), nil
}

func (r *Reader) rewind(to int64) {
	if _, err := r.f.Seek(to, io.SeekStart); err == nil {
		r.r.Reset(r.f)
	}
}

// readHeaderSchema parses the OCF header directly off f with no buffering,
// so the underlying file descriptor's offset lands exactly at the header's
// end with nothing left over-buffered and discarded — a bufio.Reader (whose
// buffer is never smaller than 16 bytes) would read ahead into the first
// data block and strand those bytes when OpenReader wraps f in a second,
// fresh bufio.Reader.
func readHeaderSchema(f *os.File) (string, [16]byte, error) {
	var marker [16]byte

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", marker, err
	}
	var r io.Reader = f

	got := make([]byte, 4)
	if _, err := io.ReadFull(r, got); err != nil {
		return "", marker, err
	}
	if string(got) != magic {
		return "", marker, fmt.Errorf("avrofile: bad magic in %s", f.Name())
	}

	var schemaJSON string
	for {
		n, err := readZigZagLong(r)
		if err != nil {
			return "", marker, err
		}
		if n == 0 {
			break
		}
		count := n
		if count < 0 {
			count = -count
			if _, err := readZigZagLong(r); err != nil {
				return "", marker, err
			}
		}
		for i := int64(0); i < count; i++ {
			key, err := readAvroBytes(r)
			if err != nil {
				return "", marker, err
			}
			val, err := readAvroBytes(r)
			if err != nil {
				return "", marker, err
			}
			if string(key) == "avro.schema" {
				schemaJSON = string(val)
			}
		}
	}

	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return "", marker, err
	}
	return schemaJSON, marker, nil
}

