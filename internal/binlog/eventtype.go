package binlog

// Event type bytes, named after the go-mysql-org/go-mysql/replication
// constants for the same values.
const (
	FormatDescriptionEvent byte = 0x0f
	QueryEvent             byte = 0x02
	RotateEvent            byte = 0x04
	XIDEvent               byte = 0x10
	TableMapEvent          byte = 0x13
	WriteRowsEventV0       byte = 0x17
	UpdateRowsEventV0      byte = 0x18
	DeleteRowsEventV0      byte = 0x19
	WriteRowsEventV1       byte = 0x1e
	UpdateRowsEventV1      byte = 0x1f
	DeleteRowsEventV1      byte = 0x20
	GTIDEvent              byte = 0xa2
	GTIDListEvent          byte = 0xa3
	WriteRowsEventV2       byte = 0x1e // MariaDB reuses v1 codes under ROW_EVENT flags; see IsRowEvent
	UpdateRowsEventV2      byte = 0x1f
	DeleteRowsEventV2      byte = 0x20
	StopEvent              byte = 0x03
)

// IsWriteRows, IsUpdateRows, IsDeleteRows classify row-event type bytes
// across the v0/v1 numbering MariaDB emits (v2 row events reuse the v1 type
// bytes and are told apart by their post-header length, 10 instead of 8, in
// internal/driver's parseRowsPostHeader).
func IsWriteRows(t byte) bool {
	return t == WriteRowsEventV0 || t == WriteRowsEventV1
}

func IsUpdateRows(t byte) bool {
	return t == UpdateRowsEventV0 || t == UpdateRowsEventV1
}

func IsDeleteRows(t byte) bool {
	return t == DeleteRowsEventV0 || t == DeleteRowsEventV1
}

func IsRowEvent(t byte) bool {
	return IsWriteRows(t) || IsUpdateRows(t) || IsDeleteRows(t)
}
