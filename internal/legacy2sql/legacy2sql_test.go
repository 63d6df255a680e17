package legacy2sql

import (
	"testing"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SisyphusSQ/mxavro/internal/models"
	"github.com/SisyphusSQ/mxavro/internal/rowdecode"
)

func testTableMap() *models.TableMap {
	return &models.TableMap{
		ID: 1,
		Create: &models.TableCreate{
			Database:    "shop",
			Table:       "orders",
			ColumnNames: []string{"id", "name", "amount"},
		},
		ColumnTypes:    []byte{mysql.MYSQL_TYPE_LONG, mysql.MYSQL_TYPE_VARCHAR, mysql.MYSQL_TYPE_NEWDECIMAL},
		ColumnMetadata: []byte{255, 0, 4, 0},
		Version:        1,
	}
}

func TestGenerateInsertForward(t *testing.T) {
	g := NewGenerator(false, false, false, false, false)
	tm := testTableMap()
	records := []rowdecode.Record{{
		GTID:      "1-1-1",
		Timestamp: 1700000000,
		EventType: rowdecode.EventInsert.String(),
		Columns:   map[string]any{"id": int32(1), "name": "alice", "amount": 9.5},
	}}

	sqls, jsons, err := g.Generate(tm, nil, "shop", records)
	require.NoError(t, err)
	require.Len(t, sqls, 1)
	assert.Contains(t, sqls[0], "orders")
	assert.Contains(t, sqls[0], "alice")
	require.Len(t, jsons, 1)
	assert.Contains(t, jsons[0], `"event_type":"INSERT"`)
	assert.Contains(t, jsons[0], `"alice"`)
}

func TestGenerateInsertRollbackProducesDelete(t *testing.T) {
	g := NewGenerator(true, false, false, false, false)
	tm := testTableMap()
	records := []rowdecode.Record{{
		EventType: rowdecode.EventInsert.String(),
		Columns:   map[string]any{"id": int32(1), "name": "alice", "amount": 9.5},
	}}

	sqls, _, err := g.Generate(tm, nil, "shop", records)
	require.NoError(t, err)
	require.Len(t, sqls, 1)
	assert.Contains(t, sqls[0], "DELETE")
}

func TestGenerateDeleteForward(t *testing.T) {
	g := NewGenerator(false, false, false, false, false)
	tm := testTableMap()
	records := []rowdecode.Record{{
		EventType: rowdecode.EventDelete.String(),
		Columns:   map[string]any{"id": int32(1), "name": "alice", "amount": 9.5},
	}}

	sqls, jsons, err := g.Generate(tm, nil, "shop", records)
	require.NoError(t, err)
	require.Len(t, sqls, 1)
	assert.Contains(t, sqls[0], "DELETE")
	require.Len(t, jsons, 1)
	assert.Contains(t, jsons[0], `"event_type":"DELETE"`)
}

func TestGenerateUpdatePairsBeforeAfter(t *testing.T) {
	g := NewGenerator(false, false, false, false, false)
	tm := testTableMap()
	records := []rowdecode.Record{
		{EventType: rowdecode.EventUpdateBefore.String(), Columns: map[string]any{"id": int32(1), "name": "alice", "amount": 9.5}},
		{EventType: rowdecode.EventUpdateAfter.String(), Columns: map[string]any{"id": int32(1), "name": "alicia", "amount": 9.5}},
	}

	sqls, jsons, err := g.Generate(tm, nil, "shop", records)
	require.NoError(t, err)
	require.Len(t, sqls, 1)
	assert.Contains(t, sqls[0], "UPDATE")
	assert.Contains(t, sqls[0], "alicia")
	require.Len(t, jsons, 1)
	assert.Contains(t, jsons[0], `"event_type":"UPDATE"`)
}

func TestGenerateUpdateSkipsUnchangedColumnsUnlessFullColumns(t *testing.T) {
	g := NewGenerator(false, false, false, false, false)
	tm := testTableMap()
	records := []rowdecode.Record{
		{EventType: rowdecode.EventUpdateBefore.String(), Columns: map[string]any{"id": int32(1), "name": "alice", "amount": 9.5}},
		{EventType: rowdecode.EventUpdateAfter.String(), Columns: map[string]any{"id": int32(1), "name": "alicia", "amount": 9.5}},
	}

	sqls, _, err := g.Generate(tm, nil, "shop", records)
	require.NoError(t, err)
	require.Len(t, sqls, 1)
	assert.Contains(t, sqls[0], "alicia")

	full, _, err := NewGenerator(false, true, false, false, false).Generate(tm, nil, "shop", records)
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.Greater(t, len(full[0]), len(sqls[0]), "full-columns mode also sets the unchanged id and amount")
}

func TestKeyIndexesNilWithoutLiveSchema(t *testing.T) {
	uk, pri := keyIndexes(testTableMap(), nil, true)
	assert.Nil(t, uk)
	assert.Nil(t, pri)
}

func TestKeyIndexesPrefersUniqueKeyWhenConfigured(t *testing.T) {
	tm := testTableMap()
	tblInfo := &models.TblInfo{
		PrimaryKey: models.KeyInfo{"id"},
		UniqueKeys: []models.KeyInfo{{"name"}},
	}

	uk, pri := keyIndexes(tm, tblInfo, true)
	assert.Equal(t, []int{1}, uk)
	assert.Equal(t, []int{0}, pri)
}

func TestKeyIndexesFallsBackToPrimaryWhenNoUniqueKeyPreferred(t *testing.T) {
	tm := testTableMap()
	tblInfo := &models.TblInfo{PrimaryKey: models.KeyInfo{"id"}}

	uk, pri := keyIndexes(tm, tblInfo, false)
	assert.Equal(t, []int{0}, uk)
	assert.Equal(t, []int{0}, pri)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(int32(1), int32(1)))
	assert.False(t, valuesEqual(int32(1), int32(2)))
	assert.True(t, valuesEqual([]byte("a"), []byte("a")))
	assert.False(t, valuesEqual([]byte("a"), "a"))
	assert.True(t, valuesEqual(nil, nil))
}

func TestAsUnsigned(t *testing.T) {
	assert.Equal(t, uint32(4294967295), asUnsigned(int32(-1)))
	assert.Equal(t, uint64(18446744073709551615), asUnsigned(int64(-1)))
	assert.Equal(t, "x", asUnsigned("x"))
}

func TestNormalizeRowConvertsUnsignedAndText(t *testing.T) {
	tblInfo := &models.TblInfo{
		Columns: []*models.FieldInfo{
			{FieldName: "id", FieldType: "int unsigned", IsUnsigned: true},
			{FieldName: "notes", FieldType: "text"},
		},
	}
	row := map[string]any{"id": int32(-1), "notes": []byte("hi")}

	normalizeRow(row, tblInfo, []string{"id", "notes"})
	assert.Equal(t, uint32(4294967295), row["id"])
	assert.Equal(t, "hi", row["notes"])
}
