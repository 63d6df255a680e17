package utils

import (
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

func CreateMysqlConn(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// GetAbsTableName returns "database.table", the key used throughout the
// table-map registry and the legacy SQL sink to address one table.
func GetAbsTableName(schema, table string) string {
	return schema + "." + table
}

// colIndex returns the position of name within cols, or -1.
func colIndex(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

// ColumnValue reads the named column out of a database/sql RawBytes scan
// result set, returning "" if the column is absent or NULL.
func ColumnValue(scanArgs []any, cols []string, name string) string {
	i := colIndex(cols, name)
	if i < 0 {
		return ""
	}
	rb, ok := scanArgs[i].(*sql.RawBytes)
	if !ok || rb == nil {
		return ""
	}
	return string(*rb)
}

// ColumnValueInt64 is ColumnValue parsed as an integer; an empty column
// value parses to 0 with no error, matching MySQL's NULL convention for the
// SHOW KEYS Non_unique column.
func ColumnValueInt64(scanArgs []any, cols []string, name string) (int64, error) {
	s := ColumnValue(scanArgs, cols, name)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// GetFieldType strips the length/precision and attribute suffix off a MySQL
// column type string, e.g. "int(11) unsigned" -> "int".
func GetFieldType(colType string) string {
	t := colType
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	if i := strings.IndexByte(t, ' '); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}

// IsUnsigned reports whether a SHOW COLUMNS Type string carries the
// "unsigned" attribute.
func IsUnsigned(colType string) bool {
	return strings.Contains(strings.ToLower(colType), "unsigned")
}

// IsPrimary reports whether a SHOW KEYS Key_name names the primary key.
func IsPrimary(keyName string) bool {
	return strings.EqualFold(keyName, "PRIMARY")
}
