package driver

import (
	"fmt"
	"time"

	"github.com/SisyphusSQ/mxavro/internal/binlog"
	"github.com/SisyphusSQ/mxavro/internal/legacy2sql"
	"github.com/SisyphusSQ/mxavro/internal/loader"
	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/models"
	"github.com/SisyphusSQ/mxavro/internal/rowdecode"
)

// EnableLegacySQL turns on the supplemental redo/rollback SQL sink
// alongside the Avro path: every decoded ROWS event is additionally
// rendered to forward/rollback SQL and JSON and written under
// cfg.OutputDir. dsn may be empty, in which case legacy2sql runs without
// live key/type metadata and falls back to comparing/inserting every
// column, per its own documented behaviour.
func (inst *Instance) EnableLegacySQL(dsn string) error {
	cfg := inst.cfg
	inst.legacyGen = legacy2sql.NewGenerator(
		cfg.WorkType == "rollback",
		cfg.FullColumns,
		cfg.SQLTblPrefixDB,
		cfg.IgnorePrimaryKeyForInsert,
		cfg.UseUniqueKeyFirst,
	)

	if dsn != "" {
		tbls, err := models.NewTblColsInfo(dsn)
		if err != nil {
			return fmt.Errorf("driver: connect for legacy2sql schema lookup: %w", err)
		}
		inst.legacyTbls = tbls
	}

	inst.fwdLoader = loader.NewSQLLoader(cfg, loader.ForwardType)
	if cfg.WorkType == "rollback" {
		inst.rbLoader = loader.NewSQLLoader(cfg, loader.RollbackType)
	}
	inst.jsonLoader = loader.NewSQLLoader(cfg, loader.JSONType)
	return nil
}

// emitLegacySQL renders one ROWS event's already-decoded records through the
// legacy2sql generator and hands the result to the matching loader(s).
func (inst *Instance) emitLegacySQL(tm *models.TableMap, ev binlog.RawEvent, records []rowdecode.Record) error {
	var tblInfo *models.TblInfo
	if inst.legacyTbls != nil {
		tblInfo = inst.legacyTbls.GetTableInfo(tm.Create.Database, tm.Create.Table)
	}

	sqls, jsons, err := inst.legacyGen.Generate(tm, tblInfo, tm.Create.Database, records)
	if err != nil {
		return fmt.Errorf("legacy2sql: %w", err)
	}

	res := &models.ResultSQL{
		SQLs:  sqls,
		Jsons: jsons,
		SQLInfo: models.ExtraInfo{
			Schema:   tm.Create.Database,
			Table:    tm.Create.Table,
			Binlog:   inst.curFile,
			StartPos: inst.position,
			EndPos:   inst.reader.Offset(),
			Datetime: time.Unix(int64(ev.Header.Timestamp), 0).UTC().Format(time.RFC3339),
		},
	}

	loaderForWorkType := inst.fwdLoader
	if inst.rbLoader != nil {
		loaderForWorkType = inst.rbLoader
	}
	if err := loaderForWorkType.Handle(res); err != nil {
		log.Logger.Error("legacy2sql: write sql: %v", err)
		return err
	}
	if err := inst.jsonLoader.Handle(res); err != nil {
		log.Logger.Error("legacy2sql: write json: %v", err)
		return err
	}
	return nil
}

// Close releases any resources EnableLegacySQL opened. Safe to call even
// when EnableLegacySQL was never called.
func (inst *Instance) Close() error {
	if inst.legacyTbls != nil {
		inst.legacyTbls.Stop()
	}
	for _, l := range []*loader.SQLLoader{inst.fwdLoader, inst.rbLoader, inst.jsonLoader} {
		if l != nil {
			_ = l.Close()
		}
	}
	return nil
}
