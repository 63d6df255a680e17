package avrofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestContainer(t *testing.T, records ...int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.000001.avro")
	w, err := Create(path, testSchema)
	require.NoError(t, err)
	for _, v := range records {
		require.NoError(t, w.Append(map[string]any{"a": v}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestReaderRoundTripsRecords(t *testing.T) {
	path := writeTestContainer(t, 1, 2, 3)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	recs, err := r.NextBlockRecords()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(1), recs[0]["a"])
	assert.Equal(t, int64(3), recs[2]["a"])

	_, err = r.NextBlockRecords()
	assert.Error(t, err, "no further block")
}

func TestReaderRawBlockMatchesOnDiskBytes(t *testing.T) {
	path := writeTestContainer(t, 7)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	count, raw, err := r.NextBlockRaw()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	whole, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, whole[len(whole)-len(raw):], raw, "raw block should be the file's tail, byte for byte")
}

func TestReaderHeaderBytesMatchFileHeader(t *testing.T) {
	path := writeTestContainer(t)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	header, err := r.HeaderBytes()
	require.NoError(t, err)

	whole, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(whole), len(header))
	assert.Equal(t, whole[:len(header)], header)
}

// A reader that lands mid-block (the writer has not finished appending it
// yet) must rewind so the retry sees the whole block once it is complete.
func TestReaderRewindsOnPartialBlock(t *testing.T) {
	full := writeTestContainer(t, 5)
	whole, err := os.ReadFile(full)
	require.NoError(t, err)

	partial := filepath.Join(t.TempDir(), "t.000001.avro")
	require.NoError(t, os.WriteFile(partial, whole[:len(whole)-10], 0o644))

	r, err := OpenReader(partial)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextBlockRecords()
	require.Error(t, err)

	// Complete the file, as the converter's next flush would.
	require.NoError(t, os.WriteFile(partial, whole, 0o644))

	recs, err := r.NextBlockRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(5), recs[0]["a"])
}
