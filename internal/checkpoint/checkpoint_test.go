package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SisyphusSQ/mxavro/internal/models"
)

func TestLoadMissingFileReturnsZeroState(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avro-conversion.ini")
	want := State{
		File:     "binlog.000042",
		Position: 194,
		GTID:     models.GTID{Domain: 0, ServerID: 1, Sequence: 55, EventNum: 3},
	}

	require.NoError(t, Save(path, want))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avro-conversion.ini")
	st1 := State{File: "binlog.000001", Position: 4, GTID: models.GTID{Sequence: 1}}
	st2 := State{File: "binlog.000001", Position: 4000, GTID: models.GTID{Sequence: 2}}

	require.NoError(t, Save(path, st1))
	require.NoError(t, Save(path, st2))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, st2, got)

	_, err = filepathGlobMustBeEmpty(path + ".tmp")
	require.NoError(t, err)
}

func filepathGlobMustBeEmpty(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) != 0 {
		panic("leftover tmp file after atomic save: " + matches[0])
	}
	return matches, nil
}

func TestParseGTIDRoundTrip(t *testing.T) {
	g := models.GTID{Domain: 3, ServerID: 7, Sequence: 100, EventNum: 9}
	parsed, err := parseGTID(g.Checkpoint())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)
}

func TestParseGTIDEmptyIsZeroValue(t *testing.T) {
	parsed, err := parseGTID("")
	require.NoError(t, err)
	assert.Equal(t, models.GTID{}, parsed)
}

func TestParseGTIDMalformedErrors(t *testing.T) {
	_, err := parseGTID("not-a-gtid")
	assert.Error(t, err)
}
