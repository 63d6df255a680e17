package vars

import "errors"

var (
	SchemaTableEmpty = errors.New("schema/table is empty")
	ManualKill       = errors.New("finished by ctrl-C/kill/kill -15")
	NotSupportType   = errors.New("not support type")

	// ErrShortBuffer is returned by internal/codec whenever a decode would
	// read past the end of the supplied slice.
	ErrShortBuffer = errors.New("short buffer")

	// ErrTruncated is returned by internal/binlog when an event header
	// fails the next_pos/event_size monotonicity check.
	ErrTruncated = errors.New("binlog event truncated")

	// ErrBadMagic is returned when a binlog file doesn't start with the
	// expected 4-byte magic.
	ErrBadMagic = errors.New("binlog magic marker bytes are not correct")

	// ErrAvroBadMagic mirrors ErrBadMagic's wording for Avro container files.
	ErrAvroBadMagic = errors.New("avro magic marker bytes are not correct")

	// ErrColumnCountMismatch is returned by internal/rowdecode when a row
	// event's column count disagrees with its TableMap.
	ErrColumnCountMismatch = errors.New("row event column count mismatch")

	// ErrUnknownTable is returned when a row/table-map event references a
	// table_id with no matching TableCreate.
	ErrUnknownTable = errors.New("no table-create definition for this table")

	// ErrUnknownColumnType is returned by internal/rowdecode for a column
	// type byte with no registered decoder.
	ErrUnknownColumnType = errors.New("unknown column type")

	// ErrOpenTransaction is returned by internal/driver when end-of-file is
	// reached with a transaction still open.
	ErrOpenTransaction = errors.New("binlog ends with an open transaction")

	// ErrLastFile is returned by internal/driver when there is no next
	// sequential binlog file to roll over to.
	ErrLastFile = errors.New("no further binlog file to process")

	// ErrSessionProtocol is returned by internal/session on malformed client input.
	ErrSessionProtocol = errors.New("protocol error")

	// ErrFileNotFound mirrors the CDC protocol's "ERR NO-FILE" wire message.
	ErrFileNotFound = errors.New("file not found")
)
