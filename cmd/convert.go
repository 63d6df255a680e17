package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SisyphusSQ/mxavro/internal/config"
	"github.com/SisyphusSQ/mxavro/internal/ddl"
	"github.com/SisyphusSQ/mxavro/internal/driver"
	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/utils"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

var (
	cc = config.New()

	dbs       string
	tbs       string
	ignoreDBs string
	ignoreTBs string
)

var convertCmd = &cobra.Command{
	Use:     "convert",
	Short:   "Read binlogs and convert them to Avro (and optionally legacy SQL)",
	Example: fmt.Sprintf("%s convert --mode=repl --avro-dir=/data/avro ...\n", vars.AppName),
	RunE: func(cmd *cobra.Command, args []string) error {
		cc.ParseConfig(dbs, tbs, ignoreDBs, ignoreTBs)

		tracker := ddl.NewTracker()
		inst := driver.New(cc, tracker)
		defer inst.Close()

		if cc.WorkType == "2sql" || cc.WorkType == "rollback" {
			dsn := ""
			if cc.User != "" {
				dsn = cc.MySQLDSN()
			}
			if err := inst.EnableLegacySQL(dsn); err != nil {
				return err
			}
		}

		if err := inst.Restore(); err != nil {
			return err
		}

		if err := inst.Run(); err != nil {
			switch {
			case errors.Is(err, vars.ErrLastFile):
				log.Logger.Info("caught up with the last binlog file, nothing more to process")
				return nil
			case errors.Is(err, vars.ErrOpenTransaction):
				log.Logger.Info("stopped mid-transaction at end of file, resume later to finish it")
				return nil
			case errors.Is(err, io.EOF):
				return nil
			default:
				return err
			}
		}
		return nil
	},
}

func initConvert() {
	convertCmd.Flags().StringVar(&cc.Mode, "mode", "repl", utils.SliceToString(vars.GOptsValidMode, vars.JoinSepComma, vars.ValidOptMsg)+". both modes read from the start file through the last sequential binlog file in --binlog-dir, then exit. default repl")
	convertCmd.Flags().StringVar(&cc.MySQLType, "mysql-type", "mariadb", utils.SliceToString(vars.GOptsValidDBType, vars.JoinSepComma, vars.ValidOptMsg)+". source server flavor, mysql or mariadb, default mariadb")
	convertCmd.Flags().StringVar(&cc.WorkType, "work-type", "avro", utils.SliceToString(vars.GOptsValidWorkType, vars.JoinSepComma, vars.ValidOptMsg)+". avro: convert binlog to Avro only (default). 2sql: also emit forward SQL. rollback: also emit rollback SQL. both drive the legacy2sql sink alongside the Avro path")

	convertCmd.Flags().StringVar(&cc.BinlogDir, "binlog-dir", "", "directory to read *.NNNNNN binlog files from")
	convertCmd.Flags().StringVar(&cc.StartFile, "start-file", "", "binlog file to start reading when no checkpoint exists yet")
	convertCmd.Flags().Uint32Var(&cc.StartPos, "start-pos", 4, "start reading the binlog at this position when no checkpoint exists yet")

	convertCmd.Flags().StringVar(&cc.AvroDir, "avro-dir", "", "directory to write Avro container files and schema sidecars to (required)")
	convertCmd.Flags().StringVar(&cc.CheckpointFile, "checkpoint-file", "", "conversion checkpoint file, default {avro-dir}/avro-conversion.ini")
	convertCmd.Flags().StringVar(&cc.DDLListFile, "ddl-list-file", "", "persisted table-ddl.list file, default {avro-dir}/table-ddl.list")

	convertCmd.Flags().IntVar(&cc.RowTarget, "row-target", vars.DefaultRowTarget, "flush and checkpoint after this many rows since the last flush")
	convertCmd.Flags().IntVar(&cc.TrxTarget, "trx-target", vars.DefaultTrxTarget, "flush and checkpoint after this many transactions since the last flush")

	convertCmd.Flags().StringVar(&dbs, "databases", "", "only convert these databases, comma separated, default all")
	convertCmd.Flags().StringVar(&tbs, "tables", "", "only convert these tables, comma separated, DO NOT prefix with schema, default all")
	convertCmd.Flags().StringVar(&ignoreDBs, "ignore-databases", "", "ignore these databases, comma separated, default none")
	convertCmd.Flags().StringVar(&ignoreTBs, "ignore-tables", "", "ignore these tables, comma separated, default none")

	convertCmd.Flags().StringVar(&cc.OutputDir, "output-dir", "", "legacy2sql result output dir, default {avro-dir}/legacy2sql")
	convertCmd.Flags().BoolVar(&cc.OutputToScreen, "output-to-screen", false, "legacy2sql: print to stdout instead of writing files")
	convertCmd.Flags().BoolVar(&cc.PrintExtraInfo, "add-extra-info", false, "legacy2sql: print database/table/datetime/binlog-position info before each statement")
	convertCmd.Flags().BoolVar(&cc.FilePerTable, "file-per-table", false, "legacy2sql: one file per table instead of one file per binlog file")
	convertCmd.Flags().BoolVar(&cc.SQLTblPrefixDB, "sql-tbl-prefix-db", true, "legacy2sql: prefix table names with their database in generated SQL")
	convertCmd.Flags().BoolVar(&cc.UseUniqueKeyFirst, "use-unique-key-first", false, "legacy2sql: prefer a unique key over the primary key to build WHERE conditions")
	convertCmd.Flags().BoolVar(&cc.FullColumns, "full-columns", false, "legacy2sql: for UPDATE include unchanged columns, for UPDATE/DELETE use all columns in WHERE")
	convertCmd.Flags().BoolVar(&cc.IgnorePrimaryKeyForInsert, "ignore-primary-key-for-insert", false, "legacy2sql: omit the primary key column from generated INSERT statements")

	convertCmd.Flags().StringVar(&cc.Host, "host", "127.0.0.1", "mysql/mariadb host for legacy2sql's optional live schema lookup")
	convertCmd.Flags().UintVar(&cc.Port, "port", 3306, "mysql/mariadb port")
	convertCmd.Flags().StringVar(&cc.User, "user", "", "mysql/mariadb user; leave empty to run legacy2sql without a live schema connection")
	convertCmd.Flags().StringVar(&cc.Passwd, "password", "", "mysql/mariadb user password")

	rootCmd.AddCommand(convertCmd)
}
