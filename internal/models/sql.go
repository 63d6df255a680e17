package models

// The types below back internal/legacy2sql, the supplemental redo/rollback
// SQL sink driven by work-type=2sql|rollback. They are independent of the
// CDC Avro path's GTID/TableCreate/TableMap types.

type DBTable struct {
	Database string
	Table    string
}

func (d DBTable) Copy() DBTable {
	return DBTable{Database: d.Database, Table: d.Table}
}

type ExtraInfo struct {
	Schema    string
	Table     string
	Binlog    string
	StartPos  uint32
	EndPos    uint32
	Datetime  string
	TrxIndex  uint64
	TrxStatus int
}

type ResultSQL struct {
	SQLs    []string
	Jsons   []string
	SQLInfo ExtraInfo
}

// KeyInfo is an ordered list of column names making up a key.
type KeyInfo []string

type FieldInfo struct {
	Index      int    `json:"index"`
	FieldName  string `json:"column_name"`
	FieldType  string `json:"column_type"`
	IsUnsigned bool   `json:"is_unsigned"`
}

// JsonEvent is the JSON mirror of one forward/rollback SQL statement: the
// same row image(s), named instead of rendered as SQL literals.
type JsonEvent struct {
	EventType  string         `json:"event_type"`
	SchemaName string         `json:"schema_name"`
	TableName  string         `json:"table_name"`
	Timestamp  uint32         `json:"timestamp"`
	GTID       string         `json:"gtid"`
	RowBefore  map[string]any `json:"row_before,omitempty"`
	RowAfter   map[string]any `json:"row_after,omitempty"`
}

type TblInfo struct {
	Database   string       `json:"database"`
	Table      string       `json:"table"`
	Columns    []*FieldInfo `json:"columns"`
	PrimaryKey KeyInfo      `json:"primary_key"`
	UniqueKeys []KeyInfo    `json:"unique_keys"`
}
