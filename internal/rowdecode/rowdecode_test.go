package rowdecode

import (
	"math"
	"testing"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SisyphusSQ/mxavro/internal/models"
)

func tableMap(colTypes []byte, meta []byte, colNames []string) *models.TableMap {
	return &models.TableMap{
		ID:             42,
		Create:         &models.TableCreate{Database: "d", Table: "t", ColumnNames: colNames, Version: 1},
		ColumnTypes:    colTypes,
		ColumnMetadata: meta,
	}
}

// buildRowImage assembles a single WRITE_ROWS-style payload: lenenc column
// count, a fully-set present bitmap, a null bitmap and the column values
// concatenated in order.
func buildRowImage(values ...[]byte) []byte {
	n := len(values)
	var buf []byte
	buf = append(buf, byte(n)) // lenenc column count, n < 0xfb
	present := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		present[i/8] |= 1 << uint(i%8)
	}
	buf = append(buf, present...)
	nullBitmap := make([]byte, (n+7)/8)
	buf = append(buf, nullBitmap...)
	for _, v := range values {
		buf = append(buf, v...)
	}
	return buf
}

func TestDecodeSimpleInsert(t *testing.T) {
	tm := tableMap([]byte{mysql.MYSQL_TYPE_LONG}, nil, []string{"a"})
	payload := buildRowImage([]byte{0x0A, 0x00, 0x00, 0x00})

	recs, err := Decode(tm, false, models.GTID{Domain: 0, ServerID: 1, Sequence: 1}, 0, payload)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "0-1-1", recs[0].GTID)
	assert.Equal(t, "insert", recs[0].EventType)
	assert.Equal(t, int32(10), recs[0].Columns["a"])
}

func TestDecodeUpdateProducesBeforeAfterPair(t *testing.T) {
	tm := tableMap([]byte{mysql.MYSQL_TYPE_LONG}, nil, []string{"a"})

	n := 1
	var buf []byte
	buf = append(buf, byte(n))
	present := []byte{0x01}
	buf = append(buf, present...)   // columns-before bitmap
	buf = append(buf, present...)   // columns-after bitmap
	buf = append(buf, 0x00)         // null bitmap, before image
	buf = append(buf, 0x0A, 0, 0, 0) // before value: 10
	buf = append(buf, 0x00)         // null bitmap, after image
	buf = append(buf, 0x0B, 0, 0, 0) // after value: 11

	recs, err := Decode(tm, true, models.GTID{Sequence: 5}, 0, buf)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "update_before", recs[0].EventType)
	assert.Equal(t, int32(10), recs[0].Columns["a"])
	assert.Equal(t, "update_after", recs[1].EventType)
	assert.Equal(t, int32(11), recs[1].Columns["a"])
}

func TestDecodeDeleteSetsEventType(t *testing.T) {
	tm := tableMap([]byte{mysql.MYSQL_TYPE_LONG}, nil, []string{"a"})
	payload := buildRowImage([]byte{0x0A, 0x00, 0x00, 0x00})

	recs, err := DecodeDelete(tm, models.GTID{}, 0, payload)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "delete", recs[0].EventType)
}

func TestDecodeColumnCountMismatch(t *testing.T) {
	tm := tableMap([]byte{mysql.MYSQL_TYPE_LONG, mysql.MYSQL_TYPE_LONG}, nil, []string{"a", "b"})
	payload := buildRowImage([]byte{0x0A, 0x00, 0x00, 0x00})
	_, err := Decode(tm, false, models.GTID{}, 0, payload)
	assert.Error(t, err)
}

func TestDecodeNullColumn(t *testing.T) {
	tm := tableMap([]byte{mysql.MYSQL_TYPE_LONG}, nil, []string{"a"})
	var buf []byte
	buf = append(buf, 0x01, 0x01, 0x01) // colcount=1, present=0x01, null=0x01 (column is NULL)
	recs, err := Decode(tm, false, models.GTID{}, 0, buf)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Columns["a"])
}

func roundTrip(t *testing.T, colType byte, meta []byte, raw []byte, want any) {
	t.Helper()
	tm := tableMap([]byte{colType}, meta, []string{"a"})
	payload := buildRowImage(raw)
	recs, err := Decode(tm, false, models.GTID{}, 0, payload)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, want, recs[0].Columns["a"])
}

func TestRoundTripIntegerTypes(t *testing.T) {
	roundTrip(t, mysql.MYSQL_TYPE_TINY, nil, []byte{0xFB}, int32(-5))
	roundTrip(t, mysql.MYSQL_TYPE_SHORT, nil, []byte{0xD0, 0x07}, int32(2000))
	roundTrip(t, mysql.MYSQL_TYPE_INT24, nil, []byte{0xFF, 0xFF, 0xFF}, int32(-1))
	roundTrip(t, mysql.MYSQL_TYPE_LONG, nil, []byte{0x2A, 0, 0, 0}, int32(42))
	roundTrip(t, mysql.MYSQL_TYPE_LONGLONG, nil, []byte{1, 0, 0, 0, 0, 0, 0, 0}, int64(1))
	roundTrip(t, mysql.MYSQL_TYPE_YEAR, nil, []byte{120}, int32(2020))
}

func TestRoundTripFloatDouble(t *testing.T) {
	var f32buf [4]byte
	bits := math.Float32bits(3.5)
	f32buf[0] = byte(bits)
	f32buf[1] = byte(bits >> 8)
	f32buf[2] = byte(bits >> 16)
	f32buf[3] = byte(bits >> 24)
	roundTrip(t, mysql.MYSQL_TYPE_FLOAT, nil, f32buf[:], float32(3.5))

	var f64buf [8]byte
	dbits := math.Float64bits(2.25)
	for i := 0; i < 8; i++ {
		f64buf[i] = byte(dbits >> (8 * i))
	}
	roundTrip(t, mysql.MYSQL_TYPE_DOUBLE, nil, f64buf[:], 2.25)
}

func TestRoundTripVarcharAndBlob(t *testing.T) {
	roundTrip(t, mysql.MYSQL_TYPE_VARCHAR, []byte{0xFF, 0x00}, append([]byte{5}, []byte("hello")...), "hello")
	roundTrip(t, mysql.MYSQL_TYPE_BLOB, []byte{1}, append([]byte{3}, []byte("abc")...), []byte("abc"))
}

func TestRoundTripDate(t *testing.T) {
	// 2024-03-15: year<<9 | month<<5 | day, little-endian 3 bytes.
	n := (2024 << 9) | (3 << 5) | 15
	raw := []byte{byte(n), byte(n >> 8), byte(n >> 16)}
	roundTrip(t, mysql.MYSQL_TYPE_DATE, nil, raw, "2024-03-15")
}

func TestRoundTripTime(t *testing.T) {
	n := 10*10000 + 30*100 + 15 // 10:30:15
	raw := []byte{byte(n), byte(n >> 8), byte(n >> 16)}
	roundTrip(t, mysql.MYSQL_TYPE_TIME, nil, raw, "10:30:15")
}

func TestRoundTripYear(t *testing.T) {
	roundTrip(t, mysql.MYSQL_TYPE_YEAR, nil, []byte{100}, int32(2000))
}

func TestRoundTripTimestamp(t *testing.T) {
	// 4-byte big-endian epoch seconds, rendered as local wall-clock time.
	sec := int64(1700000000)
	raw := []byte{byte(sec >> 24), byte(sec >> 16), byte(sec >> 8), byte(sec)}
	want := time.Unix(sec, 0).Format("2006-01-02 15:04:05")
	roundTrip(t, mysql.MYSQL_TYPE_TIMESTAMP, nil, raw, want)
}

func TestRoundTripTimestamp2(t *testing.T) {
	sec := int64(1700000000)
	raw := []byte{byte(sec >> 24), byte(sec >> 16), byte(sec >> 8), byte(sec)}

	// decimals=0: no fractional bytes follow.
	want := time.Unix(sec, 0).Format("2006-01-02 15:04:05")
	roundTrip(t, mysql.MYSQL_TYPE_TIMESTAMP2, []byte{0}, raw, want)

	// decimals=2: one trailing byte holding the two fractional digits.
	raw2 := append(append([]byte(nil), raw...), 45)
	want2 := time.Unix(sec, 450000*1000).Format("2006-01-02 15:04:05") + ".45"
	roundTrip(t, mysql.MYSQL_TYPE_TIMESTAMP2, []byte{2}, raw2, want2)
}

func TestRoundTripDatetime2(t *testing.T) {
	// 2024-03-15 10:30:15, packed per the 5-byte big-endian layout:
	// date = (year*13 + month) << 5 | day, time = hour<<12 | min<<6 | sec.
	date := uint64(2024*13+3)<<5 | 15
	tod := uint64(10)<<12 | uint64(30)<<6 | 15
	n := date<<17 | tod
	packed := n + 0x8000000000

	raw := make([]byte, 5)
	for i := 4; i >= 0; i-- {
		raw[i] = byte(packed)
		packed >>= 8
	}
	roundTrip(t, mysql.MYSQL_TYPE_DATETIME2, []byte{0}, raw, "2024-03-15 10:30:15")
}
