// Package config holds the converter's runtime configuration: directories,
// flush thresholds, optional schema/table scoping and the flags cmd/ binds
// cobra onto.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/utils"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

const (
	filterDTTemp = "%s.%s"
	filterDBTemp = "%s.all"
	filterTBTemp = "all.%s"
)

// Config is the converter's full set of runtime options. Fields group into
// the binlog source, the Avro/checkpoint sink, the optional schema/table
// scope (which databases/tables a converter instance tracks at all), and
// the optional live-MySQL connection used only by the supplemental
// legacy2sql schema-verification path.
type Config struct {
	Mode      string // "repl" or "file"
	MySQLType string

	BinlogDir  string // directory the driver reads *.NNNNNN binlog files from
	StartFile  string // binlog filename to begin from when no checkpoint exists
	StartPos   uint32

	AvroDir        string
	CheckpointFile string
	DDLListFile    string
	ListenAddr     string

	RowTarget int
	TrxTarget int

	WorkType string // "avro" (default), or "2sql"/"rollback" to also run legacy2sql

	OutputDir      string // where legacy2sql writes generated .sql/.json files
	OutputToScreen bool
	PrintExtraInfo bool
	FilePerTable   bool

	SQLTblPrefixDB            bool
	UseUniqueKeyFirst         bool
	FullColumns               bool
	IgnorePrimaryKeyForInsert bool

	Host   string
	Port   uint
	User   string
	Passwd string

	IsAssign  bool
	AssignDB  bool
	AssignTB  bool
	AssignMap map[string]struct{}

	IsIgnore  bool
	IgnoreDB  bool
	IgnoreTB  bool
	IgnoreMap map[string]struct{}
}

// New returns a Config with library defaults; callers set flag-backed fields
// then call ParseConfig to validate and derive the rest.
func New() *Config {
	return &Config{
		RowTarget: vars.DefaultRowTarget,
		TrxTarget: vars.DefaultTrxTarget,
		WorkType:  "avro",
		MySQLType: "mariadb",
	}
}

// ParseConfig validates required fields and builds the AssignMap/IgnoreMap
// scoping tables from comma-separated db/table lists, fataling via
// log.Logger on any invalid combination.
func (c *Config) ParseConfig(dbs, tbs, ignoreDBs, ignoreTBs string) {
	utils.CheckItemInSlice(vars.GOptsValidMode, c.Mode, "invalid arg for --mode", true)
	utils.CheckItemInSlice(vars.GOptsValidDBType, c.MySQLType, "invalid arg for --mysql-type", true)
	utils.CheckItemInSlice(vars.GOptsValidWorkType, c.WorkType, "invalid arg for --work-type", true)

	if c.AvroDir == "" {
		log.Logger.Fatal("--avro-dir is required")
	}
	if ok, errMsg := utils.CheckIsDir(c.AvroDir); !ok {
		log.Logger.Fatal("--avro-dir=%s %s", c.AvroDir, errMsg)
	}

	if c.Mode == "file" {
		if c.BinlogDir == "" {
			log.Logger.Fatal("--binlog-dir is required when --mode=file")
		}
		if ok, errMsg := utils.CheckIsDir(c.BinlogDir); !ok {
			log.Logger.Fatal("--binlog-dir=%s %s", c.BinlogDir, errMsg)
		}
	}

	if c.CheckpointFile == "" {
		c.CheckpointFile = filepath.Join(c.AvroDir, "avro-conversion.ini")
	}
	if c.DDLListFile == "" {
		c.DDLListFile = filepath.Join(c.AvroDir, "table-ddl.list")
	}

	if c.WorkType != "avro" && c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.AvroDir, "legacy2sql")
	}

	if c.RowTarget != vars.GetDefaultValueOfRange("RowTarget") {
		vars.CheckValueInRange("RowTarget", c.RowTarget, "value of --row-target out of range", true)
	}
	if c.TrxTarget != vars.GetDefaultValueOfRange("TrxTarget") {
		vars.CheckValueInRange("TrxTarget", c.TrxTarget, "value of --trx-target out of range", true)
	}

	c.AssignMap = make(map[string]struct{})
	dbArr := utils.CommaListToArray(dbs)
	tbArr := utils.CommaListToArray(tbs)
	if len(dbArr) > 0 {
		c.IsAssign = true
		c.AssignDB = true
		for _, db := range dbArr {
			if len(tbArr) > 0 {
				c.AssignTB = true
				for _, tb := range tbArr {
					c.AssignMap[fmt.Sprintf(filterDTTemp, db, tb)] = struct{}{}
				}
			} else {
				c.AssignMap[fmt.Sprintf(filterDBTemp, db)] = struct{}{}
			}
		}
	} else if len(tbArr) > 0 {
		c.IsAssign = true
		c.AssignTB = true
		for _, tb := range tbArr {
			c.AssignMap[fmt.Sprintf(filterTBTemp, tb)] = struct{}{}
		}
	}

	c.IgnoreMap = make(map[string]struct{})
	ignoreDBArr := utils.CommaListToArray(ignoreDBs)
	ignoreTBArr := utils.CommaListToArray(ignoreTBs)
	if len(ignoreDBArr) > 0 {
		c.IsIgnore = true
		c.IgnoreDB = true
		for _, db := range ignoreDBArr {
			if len(ignoreTBArr) > 0 {
				c.IgnoreTB = true
				for _, tb := range ignoreTBArr {
					c.IgnoreMap[fmt.Sprintf(filterDTTemp, db, tb)] = struct{}{}
				}
			} else {
				c.IgnoreMap[fmt.Sprintf(filterDBTemp, db)] = struct{}{}
			}
		}
	} else if len(ignoreTBArr) > 0 {
		c.IsIgnore = true
		c.IgnoreTB = true
		for _, tb := range ignoreTBArr {
			c.IgnoreMap[fmt.Sprintf(filterTBTemp, tb)] = struct{}{}
		}
	}
}

// MySQLDSN renders the go-sql-driver/mysql data source name legacy2sql's
// live schema lookup opens.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/information_schema?charset=utf8mb4", c.User, c.Passwd, c.Host, c.Port)
}

// DBTBExist reports whether db.tb passes the configured assign/ignore scope
// for fType "assign" or "ignore". A converter with no scoping configured
// tracks everything, so DBTBExist("assign", ...) is only consulted when
// IsAssign is set and DBTBExist("ignore", ...) only when IsIgnore is set.
func (c *Config) DBTBExist(db, tb, fType string) bool {
	if fType == "assign" {
		switch {
		case c.AssignDB && c.AssignTB:
			_, ok := c.AssignMap[fmt.Sprintf(filterDTTemp, db, tb)]
			return ok
		case c.AssignDB:
			_, ok := c.AssignMap[fmt.Sprintf(filterDBTemp, db)]
			return ok
		case c.AssignTB:
			_, ok := c.AssignMap[fmt.Sprintf(filterTBTemp, tb)]
			return ok
		default:
			return false
		}
	}

	switch {
	case c.IgnoreDB && c.IgnoreTB:
		_, ok := c.IgnoreMap[fmt.Sprintf(filterDTTemp, db, tb)]
		return ok
	case c.IgnoreDB:
		_, ok := c.IgnoreMap[fmt.Sprintf(filterDBTemp, db)]
		return ok
	case c.IgnoreTB:
		_, ok := c.IgnoreMap[fmt.Sprintf(filterTBTemp, tb)]
		return ok
	default:
		return false
	}
}
