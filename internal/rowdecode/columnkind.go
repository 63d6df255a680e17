package rowdecode

import "github.com/go-mysql-org/go-mysql/mysql"

// columnKind tags a MySQL column type byte with the Avro-level shape its
// decoded value takes, replacing a bare switch on the raw type byte at
// every call site that needs to know "is this numeric/temporal/textual".
type columnKind int

const (
	kindUnknown columnKind = iota
	kindInt
	kindLong
	kindFloat
	kindDouble
	kindString
	kindBytes
	kindTemporal
)

// classify maps a MySQL binlog column type byte to its columnKind.
func classify(colType byte) columnKind {
	switch colType {
	case mysql.MYSQL_TYPE_TINY, mysql.MYSQL_TYPE_SHORT, mysql.MYSQL_TYPE_INT24,
		mysql.MYSQL_TYPE_LONG, mysql.MYSQL_TYPE_YEAR:
		return kindInt
	case mysql.MYSQL_TYPE_LONGLONG, mysql.MYSQL_TYPE_BIT,
		mysql.MYSQL_TYPE_ENUM, mysql.MYSQL_TYPE_SET:
		return kindLong
	case mysql.MYSQL_TYPE_FLOAT:
		return kindFloat
	case mysql.MYSQL_TYPE_DOUBLE:
		return kindDouble
	case mysql.MYSQL_TYPE_TIMESTAMP, mysql.MYSQL_TYPE_TIMESTAMP2,
		mysql.MYSQL_TYPE_DATETIME, mysql.MYSQL_TYPE_DATETIME2,
		mysql.MYSQL_TYPE_TIME, mysql.MYSQL_TYPE_TIME2, mysql.MYSQL_TYPE_DATE:
		return kindTemporal
	case mysql.MYSQL_TYPE_VARCHAR, mysql.MYSQL_TYPE_VAR_STRING, mysql.MYSQL_TYPE_STRING,
		mysql.MYSQL_TYPE_DECIMAL, mysql.MYSQL_TYPE_NEWDECIMAL, mysql.MYSQL_TYPE_JSON,
		mysql.MYSQL_TYPE_GEOMETRY:
		return kindString
	case mysql.MYSQL_TYPE_BLOB, mysql.MYSQL_TYPE_TINY_BLOB, mysql.MYSQL_TYPE_MEDIUM_BLOB,
		mysql.MYSQL_TYPE_LONG_BLOB:
		return kindBytes
	default:
		return kindUnknown
	}
}

// AvroTypeFor returns the Avro primitive type name a column decodes to,
// given its type byte and its slice of the table-map metadata, used by
// internal/tablemap when generating a table version's Avro schema. The
// metadata matters for exactly one case: ENUM/SET columns are transmitted
// as MYSQL_TYPE_STRING with the real type tucked into metadata[0], and
// decode to their integer index rather than text.
func AvroTypeFor(colType byte, meta []byte) string {
	if colType == mysql.MYSQL_TYPE_STRING && stringMasksEnumOrSet(meta) {
		return "long"
	}
	return AvroTypeName(colType)
}

// stringMasksEnumOrSet reports whether a MYSQL_TYPE_STRING column's metadata
// marks the real type as ENUM (0xf7) or SET (0xf8).
func stringMasksEnumOrSet(meta []byte) bool {
	return len(meta) >= 2 && (meta[0] == mysql.MYSQL_TYPE_ENUM || meta[0] == mysql.MYSQL_TYPE_SET)
}

// AvroTypeName returns the Avro primitive type name a column type byte
// decodes to; it never returns a union.
func AvroTypeName(colType byte) string {
	switch classify(colType) {
	case kindInt:
		return "int"
	case kindLong:
		return "long"
	case kindFloat:
		return "float"
	case kindDouble:
		return "double"
	case kindBytes:
		return "bytes"
	case kindString, kindTemporal:
		return "string"
	default:
		return "string"
	}
}
