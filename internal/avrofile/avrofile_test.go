package avrofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{"type":"record","name":"t","fields":[{"name":"a","type":"long"}]}`

func TestCreateWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.000001.avro")
	w, err := Create(path, testSchema)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, magic, string(b[:4]))
	assert.Contains(t, string(b), "avro.schema")
	assert.Contains(t, string(b), testSchema)
}

func TestAppendRequiresFlushToPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.000001.avro")
	w, err := Create(path, testSchema)
	require.NoError(t, err)

	require.NoError(t, w.Append(map[string]any{"a": int64(1)}))

	before, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, w.Flush())

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, after.Size(), before.Size())

	require.NoError(t, w.Close())
}

func TestOpenOrCreateAppendsWithSameSyncMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.000001.avro")

	w1, err := Create(path, testSchema)
	require.NoError(t, err)
	require.NoError(t, w1.Append(map[string]any{"a": int64(1)}))
	require.NoError(t, w1.Flush())
	marker1 := w1.sync
	require.NoError(t, w1.Close())

	w2, err := OpenOrCreate(path, testSchema)
	require.NoError(t, err)
	assert.Equal(t, marker1, w2.sync)

	require.NoError(t, w2.Append(map[string]any{"a": int64(2)}))
	require.NoError(t, w2.Flush())
	require.NoError(t, w2.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	// the header carries the 16-byte marker, and each of the two blocks is
	// closed by that same marker.
	assert.Equal(t, 3, countOccurrences(b, marker1[:]))
}

func TestOpenOrCreateCreatesWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.000001.avro")
	w, err := OpenOrCreate(path, testSchema)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestFlushIsNoOpWithNoPendingRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.000001.avro")
	w, err := Create(path, testSchema)
	require.NoError(t, err)

	before, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())

	require.NoError(t, w.Close())
}

func TestFlushTruncatesOnWriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.000001.avro")
	w, err := Create(path, testSchema)
	require.NoError(t, err)
	require.NoError(t, w.Append(map[string]any{"a": int64(1)}))

	before, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, w.f.Close()) // force the next write to fail
	err = w.Flush()
	assert.Error(t, err)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())
}

func countOccurrences(haystack, needle []byte) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			count++
			i += len(needle) - 1
		}
	}
	return count
}
