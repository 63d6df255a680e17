package session

import (
	"bufio"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SisyphusSQ/mxavro/internal/avrofile"
	"github.com/SisyphusSQ/mxavro/internal/models"
)

func TestSplitStemDefaultsToVersionOne(t *testing.T) {
	db, table, version, err := splitStem("mydb.mytable")
	require.NoError(t, err)
	assert.Equal(t, "mydb", db)
	assert.Equal(t, "mytable", table)
	assert.Equal(t, 1, version)
}

func TestSplitStemHonorsExplicitVersion(t *testing.T) {
	db, table, version, err := splitStem("mydb.mytable.000002")
	require.NoError(t, err)
	assert.Equal(t, "mydb", db)
	assert.Equal(t, "mytable", table)
	assert.Equal(t, 2, version)
}

func TestSplitStemRejectsBareWord(t *testing.T) {
	_, _, _, err := splitStem("nodothere")
	assert.Error(t, err)
}

func TestGTIDAtLeast(t *testing.T) {
	target := models.GTID{Domain: 1, ServerID: 2, Sequence: 100}
	assert.True(t, gtidAtLeast(models.GTID{Domain: 1, ServerID: 2, Sequence: 100}, target))
	assert.True(t, gtidAtLeast(models.GTID{Domain: 1, ServerID: 2, Sequence: 150}, target))
	assert.False(t, gtidAtLeast(models.GTID{Domain: 1, ServerID: 2, Sequence: 99}, target))
	assert.False(t, gtidAtLeast(models.GTID{Domain: 9, ServerID: 2, Sequence: 150}, target))
}

func TestRecordGTIDParsesEnvelope(t *testing.T) {
	g := recordGTID(map[string]any{"GTID": "1-2-300"})
	assert.Equal(t, models.GTID{Domain: 1, ServerID: 2, Sequence: 300}, g)
}

func TestRecordGTIDZeroValueOnMissingField(t *testing.T) {
	g := recordGTID(map[string]any{})
	assert.Equal(t, models.GTID{}, g)
}

func TestGTIDIndexEvictsOldestOnCap(t *testing.T) {
	idx := newGTIDIndex(2)
	idx.record("d.t.000001", models.GTID{Domain: 1, ServerID: 1, Sequence: 1}, 0)
	idx.record("d.t.000001", models.GTID{Domain: 1, ServerID: 1, Sequence: 2}, 1)
	idx.record("d.t.000001", models.GTID{Domain: 1, ServerID: 1, Sequence: 3}, 2)
	assert.Len(t, idx.entries, 2)
	_, present := idx.entries[indexKey{table: "d.t.000001", domain: 1, server: 1, seq: 1}]
	assert.False(t, present)
}

func TestGTIDIndexLookupReturnsRecordedBlock(t *testing.T) {
	idx := newGTIDIndex(16)
	g := models.GTID{Domain: 1, ServerID: 2, Sequence: 7}
	idx.record("d.t.000001", g, 3)

	block, ok := idx.lookup("d.t.000001", g)
	assert.True(t, ok)
	assert.Equal(t, 3, block)

	_, ok = idx.lookup("d.t.000002", g)
	assert.False(t, ok)
}

const schemaJSON = `{
  "type": "record",
  "name": "row",
  "fields": [
    {"name": "GTID", "type": "string"},
    {"name": "timestamp", "type": "int"},
    {"name": "event_type", "type": {"type": "enum", "name": "event_type", "symbols": ["insert", "update_before", "update_after", "delete"]}},
    {"name": "a", "type": ["null", "int"]}
  ]
}`

func TestSessionRegisterRequestDataAndStreamAvro(t *testing.T) {
	avroDir := t.TempDir()
	path := filepath.Join(avroDir, "d.t.000001.avro")

	w, err := avrofile.Create(path, schemaJSON)
	require.NoError(t, err)
	require.NoError(t, w.Append(map[string]any{
		"GTID": "1-2-300", "timestamp": int32(1700000000), "event_type": "insert", "a": int32(42),
	}))
	require.NoError(t, w.Close())

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	sess := &Session{
		conn:    serverConn,
		r:       bufio.NewReader(serverConn),
		avroDir: avroDir,
		index:   newGTIDIndex(16),
	}
	go sess.run()

	client := bufio.NewReader(clientConn)

	id := uuid.New().String()
	_, err = clientConn.Write([]byte(fmt.Sprintf("REGISTER UUID=%s, TYPE=AVRO\n", id)))
	require.NoError(t, err)
	line, err := client.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "OK\n", line)

	_, err = clientConn.Write([]byte("REQUEST-DATA d.t\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 4)
	assert.Equal(t, []byte("Obj\x01"), buf[:4])
}

const seekSchema = `{"type":"record","name":"row","fields":[{"name":"GTID","type":"string"},{"name":"timestamp","type":"int"},{"name":"event_type","type":{"type":"enum","name":"event_type","symbols":["insert","update_before","update_after","delete"]}},{"name":"a","type":["null","int"]}]}`

func TestSessionJSONSeekSkipsRowsBeforeRequestedGTID(t *testing.T) {
	avroDir := t.TempDir()
	path := filepath.Join(avroDir, "d.t.000001.avro")

	w, err := avrofile.Create(path, seekSchema)
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		require.NoError(t, w.Append(map[string]any{
			"GTID": fmt.Sprintf("0-1-%d", i), "timestamp": int32(1700000000), "event_type": "insert", "a": int32(i),
		}))
	}
	require.NoError(t, w.Close())

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	sess := &Session{
		conn:    serverConn,
		r:       bufio.NewReader(serverConn),
		avroDir: avroDir,
		index:   newGTIDIndex(64),
	}
	go sess.run()

	client := bufio.NewReader(clientConn)

	_, err = clientConn.Write([]byte(fmt.Sprintf("REGISTER UUID=%s, TYPE=JSON\n", uuid.New().String())))
	require.NoError(t, err)
	line, err := client.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\n", line)

	_, err = clientConn.Write([]byte("REQUEST-DATA d.t 0-1-5\n"))
	require.NoError(t, err)

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Schema preamble first, then the first matching row.
	preamble, err := client.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, preamble, `"type":"record"`)

	first, err := client.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, first, `"0-1-5"`)
	assert.NotContains(t, first, `"0-1-4"`)
}

func TestSessionRegisterRejectsBadUUID(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	sess := &Session{conn: serverConn, r: bufio.NewReader(serverConn), avroDir: t.TempDir(), index: newGTIDIndex(16)}
	go sess.run()

	client := bufio.NewReader(clientConn)
	_, err := clientConn.Write([]byte("REGISTER UUID=not-a-uuid\n"))
	require.NoError(t, err)

	line, err := client.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERR, code 12, msg: Registration failed\n", line)
}

func TestSessionUnknownCommandIsEchoed(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	sess := &Session{conn: serverConn, r: bufio.NewReader(serverConn), avroDir: t.TempDir(), index: newGTIDIndex(16)}
	sess.state = StateRegistered
	go sess.run()

	client := bufio.NewReader(clientConn)
	_, err := clientConn.Write([]byte("WHATEVER\n"))
	require.NoError(t, err)

	line, err := client.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ECHO: WHATEVER\n", line)
}

func TestSessionRequestDataNoFile(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	sess := &Session{conn: serverConn, r: bufio.NewReader(serverConn), avroDir: t.TempDir(), index: newGTIDIndex(16)}
	sess.state = StateRegistered
	go sess.run()

	client := bufio.NewReader(clientConn)
	_, err := clientConn.Write([]byte("REQUEST-DATA missing.table\n"))
	require.NoError(t, err)

	line, err := client.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERR NO-FILE File 'missing.table' not found.\n", line)
}
