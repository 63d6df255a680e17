// Package legacy2sql renders already-decoded row records back into forward
// or rollback SQL, plus a JSON mirror of the same rows, an optional
// secondary sink running alongside the Avro path off the same decoded
// records.
package legacy2sql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	sql "github.com/SisyphusSQ/godropbox/database/sqlbuilder"
	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/mxavro/internal/models"
	"github.com/SisyphusSQ/mxavro/internal/rowdecode"
)

// Generator turns one ROWS event's decoded records into SQL statements and
// their JSON mirror.
type Generator struct {
	rollback         bool
	fullColumns      bool
	prefixDB         bool
	ignorePrimaryIns bool
	uniqueKeyFirst   bool
}

// NewGenerator builds a Generator from the flags config.Config carries for
// work-type 2sql|rollback.
func NewGenerator(rollback, fullColumns, prefixDB, ignorePrimaryForInsert, uniqueKeyFirst bool) *Generator {
	return &Generator{
		rollback:         rollback,
		fullColumns:      fullColumns,
		prefixDB:         prefixDB,
		ignorePrimaryIns: ignorePrimaryForInsert,
		uniqueKeyFirst:   uniqueKeyFirst,
	}
}

// Generate renders records (all belonging to one ROWS event, already decoded
// by rowdecode) into forward/rollback SQL and JSON. tblInfo may be nil: with
// no live key/type metadata available, WHERE clauses compare every column
// and blob-vs-text/unsigned disambiguation is skipped.
func (g *Generator) Generate(tm *models.TableMap, tblInfo *models.TblInfo, schema string, records []rowdecode.Record) (sqls []string, jsons []string, err error) {
	if len(records) == 0 {
		return nil, nil, nil
	}

	names := tm.Create.ColumnNames
	colsDef := make([]sql.NonAliasColumn, len(names))
	for i, name := range names {
		colsDef[i] = colDef(name, tm.ColumnTypes[i], rowdecode.ColumnMeta(tm, i), fieldType(tblInfo, i))
	}
	ukIdx, priIdx := keyIndexes(tm, tblInfo, g.uniqueKeyFirst)

	dbPrefix := schema
	if !g.prefixDB {
		dbPrefix = ""
	}
	table := tm.Create.Table

	for i := range records {
		normalizeRow(records[i].Columns, tblInfo, names)
	}

	switch records[0].EventType {
	case rowdecode.EventInsert.String():
		if g.rollback {
			sqls, err = g.genDeletes(table, dbPrefix, colsDef, names, ukIdx, records)
		} else {
			sqls, err = g.genInserts(table, dbPrefix, colsDef, names, priIdx, records, true)
		}
	case rowdecode.EventDelete.String():
		if g.rollback {
			sqls, err = g.genInserts(table, dbPrefix, colsDef, names, priIdx, records, false)
		} else {
			sqls, err = g.genDeletes(table, dbPrefix, colsDef, names, ukIdx, records)
		}
	case rowdecode.EventUpdateBefore.String():
		sqls, err = g.genUpdates(table, dbPrefix, colsDef, names, ukIdx, records)
	default:
		return nil, nil, fmt.Errorf("legacy2sql: unexpected leading event_type %q", records[0].EventType)
	}
	if err != nil {
		return nil, nil, err
	}

	jsons, err = g.genJSON(schema, table, records)
	return sqls, jsons, err
}

// genInserts renders one INSERT per record. allowIgnorePrimary is true only
// for a genuine forward insert: a rollback restoring a deleted row always
// carries its primary key, since that is exactly the row being restored.
func (g *Generator) genInserts(table, dbPrefix string, colsDef []sql.NonAliasColumn, names []string, priIdx []int, records []rowdecode.Record, allowIgnorePrimary bool) ([]string, error) {
	skip := g.ignorePrimaryIns && allowIgnorePrimary && len(priIdx) > 0

	cols := colsDef
	if skip {
		cols = make([]sql.NonAliasColumn, 0, len(colsDef))
		for i, c := range colsDef {
			if slices.Contains(priIdx, i) {
				continue
			}
			cols = append(cols, c)
		}
	}

	sqls := make([]string, 0, len(records))
	for _, rec := range records {
		exprs := make([]sql.Expression, 0, len(cols))
		for i, name := range names {
			if skip && slices.Contains(priIdx, i) {
				continue
			}
			exprs = append(exprs, sql.Literal(rec.Columns[name]))
		}

		s, err := sql.NewTable(table, cols...).Insert(cols...).Add(exprs...).String(dbPrefix)
		if err != nil {
			return nil, fmt.Errorf("legacy2sql: build insert for %s: %w", table, err)
		}
		sqls = append(sqls, s)
	}
	return sqls, nil
}

func (g *Generator) genDeletes(table, dbPrefix string, colsDef []sql.NonAliasColumn, names []string, ukIdx []int, records []rowdecode.Record) ([]string, error) {
	sqls := make([]string, 0, len(records))
	for _, rec := range records {
		cond := g.eqConditions(colsDef, names, ukIdx, rec.Columns)
		s, err := sql.NewTable(table, colsDef...).Delete().Where(sql.And(cond...)).String(dbPrefix)
		if err != nil {
			return nil, fmt.Errorf("legacy2sql: build delete for %s: %w", table, err)
		}
		sqls = append(sqls, s)
	}
	return sqls, nil
}

// genUpdates pairs consecutive (update_before, update_after) records exactly
// as rowdecode.Decode emits them for an UPDATE_ROWS event.
func (g *Generator) genUpdates(table, dbPrefix string, colsDef []sql.NonAliasColumn, names []string, ukIdx []int, records []rowdecode.Record) ([]string, error) {
	sqls := make([]string, 0, len(records)/2)
	for i := 0; i+1 < len(records); i += 2 {
		before, after := records[i].Columns, records[i+1].Columns

		setFrom, whereFrom := after, before
		if g.rollback {
			setFrom, whereFrom = before, after
		}

		update := sql.NewTable(table, colsDef...).Update()
		for j, name := range names {
			if !g.fullColumns && valuesEqual(before[name], after[name]) {
				continue
			}
			update.Set(colsDef[j], sql.Literal(setFrom[name]))
		}
		update.Where(sql.And(g.eqConditions(colsDef, names, ukIdx, whereFrom)...))

		s, err := update.String(dbPrefix)
		if err != nil {
			return nil, fmt.Errorf("legacy2sql: build update for %s: %w", table, err)
		}
		sqls = append(sqls, s)
	}
	return sqls, nil
}

// eqConditions builds a WHERE-equality list, preferring the resolved key
// (ukIdx) over every column, unless full-columns mode or no key is known.
func (g *Generator) eqConditions(colsDef []sql.NonAliasColumn, names []string, ukIdx []int, row map[string]any) []sql.BoolExpression {
	if !g.fullColumns && len(ukIdx) > 0 {
		exps := make([]sql.BoolExpression, 0, len(ukIdx))
		for _, i := range ukIdx {
			exps = append(exps, sql.EqL(colsDef[i], row[names[i]]))
		}
		return exps
	}

	exps := make([]sql.BoolExpression, 0, len(names))
	for i, name := range names {
		exps = append(exps, sql.EqL(colsDef[i], row[name]))
	}
	return exps
}

func (g *Generator) genJSON(schema, table string, records []rowdecode.Record) ([]string, error) {
	step := 1
	if records[0].EventType == rowdecode.EventUpdateBefore.String() {
		step = 2
	}

	jsons := make([]string, 0, len(records)/step+1)
	for i := 0; i < len(records); i += step {
		ev := models.JsonEvent{
			EventType:  strings.ToUpper(strings.TrimSuffix(records[i].EventType, "_before")),
			SchemaName: schema,
			TableName:  table,
			Timestamp:  records[i].Timestamp,
			GTID:       records[i].GTID,
		}

		switch records[i].EventType {
		case rowdecode.EventInsert.String():
			ev.RowAfter = records[i].Columns
		case rowdecode.EventDelete.String():
			ev.RowBefore = records[i].Columns
		case rowdecode.EventUpdateBefore.String():
			ev.EventType = "UPDATE"
			ev.RowBefore = records[i].Columns
			ev.RowAfter = records[i+1].Columns
		}

		b, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("legacy2sql: marshal json event: %w", err)
		}
		jsons = append(jsons, string(b))
	}

	return jsons, nil
}

// keyIndexes resolves, for one table, the tm-column positions of its
// preferred equality key (a unique key when uniqueKeyFirst is set and one
// exists, else the primary key) and of the primary key alone, used by
// insert's ignore-primary-key option. Both come back empty when tblInfo is
// nil: no live key metadata, so callers fall back to comparing/inserting
// every column.
func keyIndexes(tm *models.TableMap, tblInfo *models.TblInfo, uniqueKeyFirst bool) (ukIdx, priIdx []int) {
	if tblInfo == nil {
		return nil, nil
	}

	pos := make(map[string]int, len(tm.Create.ColumnNames))
	for i, name := range tm.Create.ColumnNames {
		pos[name] = i
	}
	resolve := func(cols models.KeyInfo) []int {
		idx := make([]int, 0, len(cols))
		for _, name := range cols {
			if i, ok := pos[name]; ok {
				idx = append(idx, i)
			}
		}
		return idx
	}

	if len(tblInfo.PrimaryKey) > 0 {
		priIdx = resolve(tblInfo.PrimaryKey)
	}
	switch {
	case uniqueKeyFirst && len(tblInfo.UniqueKeys) > 0:
		ukIdx = resolve(tblInfo.UniqueKeys[0])
	case len(priIdx) > 0:
		ukIdx = priIdx
	}
	return ukIdx, priIdx
}

func fieldType(tblInfo *models.TblInfo, i int) string {
	if tblInfo == nil || i >= len(tblInfo.Columns) {
		return ""
	}
	return tblInfo.Columns[i].FieldType
}

// colDef picks a sqlbuilder column type for one column by its binlog type
// byte, falling back to a string column (rather than failing) on an
// unrecognised type: rowdecode.Decode has already rejected genuinely
// unknown column types, so the only case left is one this switch hasn't
// been taught about yet.
func colDef(colName string, colType byte, meta []byte, fieldType string) sql.NonAliasColumn {
	realType := colType
	if colType == mysql.MYSQL_TYPE_STRING && len(meta) >= 2 {
		b0 := meta[0]
		if b0&0x30 != 0x30 {
			realType = b0 | 0x30
		} else {
			realType = b0
		}
	}

	switch realType {
	case mysql.MYSQL_TYPE_LONG, mysql.MYSQL_TYPE_TINY, mysql.MYSQL_TYPE_SHORT,
		mysql.MYSQL_TYPE_INT24, mysql.MYSQL_TYPE_LONGLONG, mysql.MYSQL_TYPE_BIT:
		return sql.IntColumn(colName, sql.NotNullable)
	case mysql.MYSQL_TYPE_NEWDECIMAL, mysql.MYSQL_TYPE_FLOAT, mysql.MYSQL_TYPE_DOUBLE, mysql.MYSQL_TYPE_DECIMAL:
		return sql.DoubleColumn(colName, sql.NotNullable)
	case mysql.MYSQL_TYPE_TIMESTAMP, mysql.MYSQL_TYPE_TIMESTAMP2, mysql.MYSQL_TYPE_DATETIME,
		mysql.MYSQL_TYPE_DATETIME2, mysql.MYSQL_TYPE_TIME, mysql.MYSQL_TYPE_TIME2, mysql.MYSQL_TYPE_DATE:
		return sql.StrColumn(colName, sql.UTF8, sql.UTF8CaseInsensitive, sql.NotNullable)
	case mysql.MYSQL_TYPE_YEAR, mysql.MYSQL_TYPE_ENUM, mysql.MYSQL_TYPE_SET:
		return sql.IntColumn(colName, sql.NotNullable)
	case mysql.MYSQL_TYPE_BLOB, mysql.MYSQL_TYPE_TINY_BLOB, mysql.MYSQL_TYPE_MEDIUM_BLOB, mysql.MYSQL_TYPE_LONG_BLOB:
		if strings.Contains(strings.ToLower(fieldType), "text") {
			return sql.StrColumn(colName, sql.UTF8, sql.UTF8CaseInsensitive, sql.NotNullable)
		}
		return sql.BytesColumn(colName, sql.NotNullable)
	case mysql.MYSQL_TYPE_VARCHAR, mysql.MYSQL_TYPE_VAR_STRING, mysql.MYSQL_TYPE_STRING:
		return sql.StrColumn(colName, sql.UTF8, sql.UTF8CaseInsensitive, sql.NotNullable)
	case mysql.MYSQL_TYPE_JSON:
		return sql.StrColumn(colName, sql.UTF8, sql.UTF8CaseInsensitive, sql.NotNullable)
	case mysql.MYSQL_TYPE_GEOMETRY:
		return sql.BytesColumn(colName, sql.NotNullable)
	default:
		return sql.StrColumn(colName, sql.UTF8, sql.UTF8CaseInsensitive, sql.NotNullable)
	}
}

// normalizeRow applies the two adjustments that need live schema metadata
// before SQL is generated: reinterpreting a decoded signed integer as
// unsigned where the live column is unsigned, and turning a decoded
// text-as-blob []byte back into a string. Both are no-ops without tblInfo.
func normalizeRow(row map[string]any, tblInfo *models.TblInfo, names []string) {
	if tblInfo == nil {
		return
	}
	for i, name := range names {
		if i >= len(tblInfo.Columns) {
			return
		}
		col := tblInfo.Columns[i]
		v, ok := row[name]
		if !ok || v == nil {
			continue
		}

		if col.IsUnsigned && strings.Contains(col.FieldType, "int") {
			row[name] = asUnsigned(v)
			continue
		}
		if strings.Contains(strings.ToLower(col.FieldType), "text") {
			if b, ok := v.([]byte); ok {
				row[name] = string(b)
			}
		}
	}
}

func asUnsigned(v any) any {
	switch n := v.(type) {
	case int32:
		return uint32(n)
	case int64:
		return uint64(n)
	default:
		return v
	}
}

func valuesEqual(a, b any) bool {
	ab, aIsBytes := a.([]byte)
	bb, bIsBytes := b.([]byte)
	if aIsBytes || bIsBytes {
		if aIsBytes && bIsBytes {
			return bytes.Equal(ab, bb)
		}
		return false
	}
	return a == b
}
