package models

import "fmt"

// TableCreate is the definitive, versioned shape of one database.table as
// observed through CREATE TABLE / ALTER TABLE statements. One exists per
// database.table ever seen; it is owned and mutated only by internal/ddl.
type TableCreate struct {
	Database    string
	Table       string
	ColumnNames []string
	DDL         string // verbatim CREATE TABLE text
	Version     int    // monotonic, incremented on schema-affecting change
	GTID        GTID   // GTID at which this version was last changed
}

// AbsName returns "database.table".
func (t *TableCreate) AbsName() string {
	return fmt.Sprintf("%s.%s", t.Database, t.Table)
}

// ColumnCount returns len(ColumnNames); TableCreate's invariant is that this
// always equals the column count implied by the DDL.
func (t *TableCreate) ColumnCount() int {
	return len(t.ColumnNames)
}

// Copy returns a deep copy, used when ALTER TABLE derives a new version from
// an existing TableCreate without mutating the original in place.
func (t *TableCreate) Copy() *TableCreate {
	cp := *t
	cp.ColumnNames = append([]string(nil), t.ColumnNames...)
	return &cp
}

// TableMap is the ephemeral binding between a binlog table_id and a
// TableCreate, produced by a TABLE_MAP_EVENT. Replaced whenever the
// TableCreate's version changes.
type TableMap struct {
	ID             uint64
	Create         *TableCreate
	ColumnTypes    []byte
	ColumnMetadata []byte
	Version        int
	GTID           GTID
}

// Columns returns the column count, which must equal len(Create.ColumnNames).
func (m *TableMap) Columns() int {
	return len(m.ColumnTypes)
}

// VersionString renders the zero-padded 6-digit version suffix used in Avro
// filenames: db.table.000001.avro.
func (m *TableMap) VersionString() string {
	return fmt.Sprintf("%06d", m.Version)
}
