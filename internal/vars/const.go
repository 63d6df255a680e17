package vars

import (
	"fmt"
	"time"

	"github.com/SisyphusSQ/mxavro/internal/log"
)

const (
	AppName    = "mxavro"
	AppVersion = "0.1.0"
)

var (
	GoVersion = "unknown"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitRemote = "unknown"
)

const (
	ValidOptMsg  = "valid options are: "
	JoinSepComma = ","

	EventTimeout = 5 * time.Second
)

const (
	TrxProcess = iota - 1
	TrxBegin
	TrxCommit
	TrxRollback
)

const (
	ReProcess = iota
	ReContinue
	ReBreak
	ReFileEnd
)

// MaxEventTypeMariaDB10 is the highest event type byte MariaDB 10 emits.
const MaxEventTypeMariaDB10 = 0xa3

// MaxMappedTables bounds the active_maps slot array (table_id % MaxMappedTables).
const MaxMappedTables = 1024

// TableMapVersionDigits is how many digits the version suffix of an Avro
// filename carries: db.table.000001.avro
const TableMapVersionDigits = 6

// TableMapVersionMax is the largest version a single TableCreate can reach.
const TableMapVersionMax = 999999

// Default block-flush thresholds (AVRO_DEFAULT_BLOCK_TRX_COUNT / AVRO_DEFAULT_BLOCK_ROW_COUNT).
const (
	DefaultRowTarget = 1000
	DefaultTrxTarget = 50
)

// Binlog event header layout.
const (
	EventHeaderLen  = 19
	BinlogMagicLen  = 4
	ChecksumLen     = 4
	FormatDescEvent = 0x0f
)

var BinlogMagic = [BinlogMagicLen]byte{0xfe, 0x62, 0x69, 0x6e}

// Client session protocol states.
const (
	ClientUnregistered = iota
	ClientRegistered
	ClientRequestData
	ClientErrored
)

const (
	FormatAvro = "AVRO"
	FormatJSON = "JSON"
)

// Row event type markers, the event_type enum symbols every Avro record carries.
const (
	EventInsert       = "insert"
	EventUpdateBefore = "update_before"
	EventUpdateAfter  = "update_after"
	EventDelete       = "delete"
)

const AvroDataBurstSize = 1 << 20 // AVRO_DATA_BURST_SIZE

// Introspection queries used by internal/legacy2sql to resolve a table's
// live column/key shape for redo/rollback SQL generation.
const (
	ShowColumns = "show columns from `%s`.`%s`"
	ShowKeys    = "show keys from `%s`.`%s`"
)

var (
	GOptsValidMode      = []string{"repl", "file"}
	GOptsValidWorkType  = []string{"2sql", "rollback", "stats", "avro"}
	GOptsValidDBType    = []string{"mysql", "mariadb"}
	GOptsValidFilterSQL = []string{"insert", "update", "delete"}

	GOptsValueRange = map[string][]int{
		"PrintInterval":  {1, 600, 30},
		"BigTrxRowLimit": {1, 30000, 10},
		"LongTrxSeconds": {0, 3600, 1},
		"InsertRows":     {1, 500, 30},
		"Threads":        {1, 16, 2},
		"RowTarget":      {1, 1000000, DefaultRowTarget},
		"TrxTarget":      {1, 100000, DefaultTrxTarget},
	}
)

func GetMinValueOfRange(opt string) int {
	return GOptsValueRange[opt][0]
}

func GetMaxValueOfRange(opt string) int {
	return GOptsValueRange[opt][1]
}

func GetDefaultValueOfRange(opt string) int {
	return GOptsValueRange[opt][2]
}

func GetDefaultAndRangeValueMsg(opt string) string {
	return fmt.Sprintf("Valid values range from %d to %d, default %d",
		GetMinValueOfRange(opt),
		GetMaxValueOfRange(opt),
		GetDefaultValueOfRange(opt),
	)
}

func CheckValueInRange(opt string, val int, prefix string, ifExt bool) bool {
	valOk := val >= GetMinValueOfRange(opt) && val <= GetMaxValueOfRange(opt)

	if !valOk && ifExt {
		log.Logger.Fatal("%s: %d is specified, but %s", prefix, val, GetDefaultAndRangeValueMsg(opt))
	}
	return valOk
}
