// Package driver runs the conversion loop: frame one binlog event at a
// time, route it to the DDL tracker, table-map registry or row decoder, and
// flush/checkpoint on commit thresholds. An outer per-file loop wraps a
// per-event dispatch that runs in-line rather than over channels, since
// nothing downstream needs to run on another goroutine.
package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/SisyphusSQ/mxavro/internal/avrofile"
	"github.com/SisyphusSQ/mxavro/internal/binlog"
	"github.com/SisyphusSQ/mxavro/internal/checkpoint"
	"github.com/SisyphusSQ/mxavro/internal/config"
	"github.com/SisyphusSQ/mxavro/internal/ddl"
	"github.com/SisyphusSQ/mxavro/internal/legacy2sql"
	"github.com/SisyphusSQ/mxavro/internal/loader"
	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/models"
	"github.com/SisyphusSQ/mxavro/internal/rowdecode"
	"github.com/SisyphusSQ/mxavro/internal/tablemap"
	"github.com/SisyphusSQ/mxavro/internal/utils"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

// AvroTable bundles one table version's open Avro container with the schema
// it was opened against, keyed by the TableMap that produced it.
type AvroTable struct {
	Path       string
	SchemaJSON string
	Writer     *avrofile.Writer
}

// Instance is one converter run: its config, schema state, open writers and
// position. It is a plain value wired up by cmd/, never a package singleton,
// so a process can run more than one conversion concurrently (e.g. tests).
type Instance struct {
	cfg    *config.Config
	ddl    *ddl.Tracker
	tables *tablemap.Registry

	mu      sync.Mutex
	writers map[*models.TableMap]*AvroTable

	// skipIDs remembers table_ids whose table-map named a table outside the
	// configured assign/ignore scope, so their row events drop silently
	// instead of logging an unknown-table error per event.
	skipIDs map[uint64]struct{}

	reader *binlog.Reader

	curFile  string
	curBase  string
	curIndex int
	position uint32

	gtid     models.GTID
	rowEvNum uint64

	rowCount int
	trxCount int
	trxState trxState

	safeFile string
	safePos  uint32
	safeGTID models.GTID

	// onFlush is called after every successful flush+checkpoint, so a
	// serving layer can wake clients waiting on new data. Nil is fine.
	onFlush func()

	// legacy* back the optional supplemental redo/rollback SQL sink; nil
	// unless EnableLegacySQL was called (cfg.WorkType != "avro").
	legacyGen  *legacy2sql.Generator
	legacyTbls *models.TblColsInfo
	fwdLoader  *loader.SQLLoader
	rbLoader   *loader.SQLLoader
	jsonLoader *loader.SQLLoader
}

// New wires a fresh Instance around cfg; tracker seeds the DDL state so a
// restart can resume with table versions intact.
func New(cfg *config.Config, tracker *ddl.Tracker) *Instance {
	inst := &Instance{
		cfg:     cfg,
		ddl:     tracker,
		writers: make(map[*models.TableMap]*AvroTable),
		skipIDs: make(map[uint64]struct{}),
	}
	inst.tables = tablemap.NewRegistry(tracker, inst.openAvroTable)
	return inst
}

// OnFlush installs the post-flush notification hook.
func (inst *Instance) OnFlush(fn func()) { inst.onFlush = fn }

// Tables returns the table-map registry, for a serving layer that needs to
// resolve a client's requested filestem against live schema.
func (inst *Instance) Tables() *tablemap.Registry { return inst.tables }

// Restore loads the persisted checkpoint, or falls back to cfg.StartFile/
// StartPos when none exists yet.
func (inst *Instance) Restore() error {
	if err := inst.ddl.LoadFromDisk(inst.cfg.DDLListFile); err != nil {
		return err
	}

	st, err := checkpoint.Load(inst.cfg.CheckpointFile)
	if err != nil {
		return err
	}

	if st.File == "" {
		if inst.cfg.StartFile == "" {
			return fmt.Errorf("driver: no checkpoint to resume from and no start file configured")
		}
		inst.curFile = inst.cfg.StartFile
		inst.position = inst.cfg.StartPos
	} else {
		inst.curFile = st.File
		inst.position = st.Position
		inst.gtid = st.GTID
	}
	// with nothing to resume from, position is cfg.StartPos (4 by default,
	// the first event after the magic header); a position of 0 or 4 makes
	// Open validate and consume the magic header itself, landing the reader
	// at 4.

	base, idx := utils.GetLogNameAndIndex(inst.curFile)
	inst.curBase = base
	inst.curIndex = idx

	inst.safeFile = inst.curFile
	inst.safePos = inst.position
	inst.safeGTID = inst.gtid
	return nil
}

// openAvroTable is the tablemap.Registry's OpenFunc: it materializes the
// AvroTable file for a newly observed table version.
func (inst *Instance) openAvroTable(m *models.TableMap, schemaJSON string) error {
	path := filepath.Join(inst.cfg.AvroDir, fmt.Sprintf("%s.%s.%s.avro", m.Create.Database, m.Create.Table, m.VersionString()))

	w, err := avrofile.OpenOrCreate(path, schemaJSON)
	if err != nil {
		return err
	}

	sidecar := strings.TrimSuffix(path, ".avro") + ".avsc"
	if err := os.WriteFile(sidecar, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("driver: write schema sidecar: %w", err)
	}

	inst.mu.Lock()
	inst.writers[m] = &AvroTable{Path: path, SchemaJSON: schemaJSON, Writer: w}
	inst.mu.Unlock()

	log.Logger.Info("opened avro table %s", path)
	return nil
}

// Run drives the conversion loop until it returns a terminal error:
// vars.ErrLastFile (caught up, nothing more to process right now) or
// vars.ErrOpenTransaction (stopped mid-transaction at EOF). Any other
// returned error is an I/O or framing failure; the checkpoint is left at
// the last known commit so a restart resumes cleanly.
func (inst *Instance) Run() error {
	for {
		if err := inst.openCurrentFile(); err != nil {
			return err
		}

		err := inst.drainFile()
		switch {
		case errors.Is(err, io.EOF):
			rotated, rerr := inst.rotate()
			if rerr != nil {
				return rerr
			}
			if !rotated {
				return vars.ErrLastFile
			}
			continue
		case err != nil:
			return err
		}
	}
}

func (inst *Instance) openCurrentFile() error {
	if inst.reader != nil {
		return nil
	}
	path := filepath.Join(inst.cfg.BinlogDir, inst.curFile)
	r, err := binlog.Open(path, inst.position)
	if err != nil {
		return fmt.Errorf("driver: open %s: %w", path, err)
	}
	inst.reader = r
	return nil
}

// drainFile processes events from the current file until a ROTATE_EVENT
// naming another file, end-of-file, or an unrecoverable read error; a
// STOP_EVENT does not end the loop. At end-of-file it returns io.EOF,
// signalling the caller to try the next sequential file, or
// vars.ErrOpenTransaction when a transaction is still open.
func (inst *Instance) drainFile() error {
	for {
		ev, err := inst.reader.Next()
		if err == io.EOF {
			inst.closeReader()
			if inst.trxOpen() {
				return vars.ErrOpenTransaction
			}
			return io.EOF
		}
		if err != nil {
			inst.closeReader()
			return fmt.Errorf("driver: %w", err)
		}

		rotated, err := inst.dispatch(ev)
		if err != nil {
			log.Logger.Error("dispatch event type 0x%02x: %v", ev.Header.EventType, err)
			continue
		}
		inst.position = inst.reader.Offset()
		if rotated {
			inst.closeReader()
			return nil
		}
	}
}

func (inst *Instance) closeReader() {
	if inst.reader != nil {
		_ = inst.reader.Close()
		inst.reader = nil
	}
}

// trxOpen reports whether the DDL tracker last saw BEGIN without a matching
// COMMIT/ROLLBACK/XID, i.e. whether ending here would leave an open trx.
func (inst *Instance) trxOpen() bool {
	return inst.trxState == trxStateOpen
}

// dispatch routes one event and reports whether it triggered a same-file
// "switch files now" transition (a ROTATE_EVENT naming the next file).
func (inst *Instance) dispatch(ev binlog.RawEvent) (bool, error) {
	switch {
	case ev.Header.EventType == binlog.QueryEvent:
		return false, inst.dispatchQuery(ev)
	case ev.Header.EventType == binlog.TableMapEvent:
		return false, inst.dispatchTableMap(ev)
	case binlog.IsRowEvent(ev.Header.EventType):
		return false, inst.dispatchRows(ev)
	case ev.Header.EventType == binlog.XIDEvent:
		inst.trxState = trxStateClosed
		inst.trxCount++
		inst.maybeFlush()
		return false, nil
	case ev.Header.EventType == binlog.GTIDEvent:
		return false, inst.dispatchGTID(ev)
	case ev.Header.EventType == binlog.RotateEvent:
		return inst.dispatchRotate(ev)
	case ev.Header.EventType == binlog.StopEvent:
		return false, nil
	default:
		return false, nil
	}
}

func (inst *Instance) dispatchQuery(ev binlog.RawEvent) error {
	db, sqlText, err := ddl.ExtractQueryEvent(ev.Payload)
	if err != nil {
		return err
	}

	switch {
	case ddl.IsBegin(sqlText):
		inst.trxState = trxStateOpen
	case ddl.IsCommit(sqlText):
		inst.trxState = trxStateClosed
		inst.trxCount++
		inst.maybeFlush()
	default:
		if _, applied := inst.ddl.Apply(db, sqlText, inst.gtid); applied {
			log.Logger.Info("ddl applied: %s", sqlText)
		}
	}
	return nil
}

func (inst *Instance) dispatchTableMap(ev binlog.RawEvent) error {
	idLen := 6
	if inst.reader.FormatDescription().PostHeaderLen(binlog.TableMapEvent) == 6 {
		idLen = 4
	}

	p, err := tablemap.Parse(ev.Payload, idLen)
	if err != nil {
		return err
	}
	if tablemap.IsReleaseAllSentinel(p.ID, p.Flags) {
		inst.tables.ReleaseAll()
		return nil
	}

	if !inst.inScope(p.Database, p.Table) {
		inst.skipIDs[p.ID] = struct{}{}
		return nil
	}
	delete(inst.skipIDs, p.ID)

	_, err = inst.tables.Apply(p, inst.gtid)
	return err
}

// inScope applies the configured assign/ignore db.table filter.
func (inst *Instance) inScope(db, table string) bool {
	if inst.cfg.IsAssign && !inst.cfg.DBTBExist(db, table, "assign") {
		return false
	}
	if inst.cfg.IsIgnore && inst.cfg.DBTBExist(db, table, "ignore") {
		return false
	}
	return true
}

func (inst *Instance) dispatchGTID(ev binlog.RawEvent) error {
	if len(ev.Payload) < 12 {
		return vars.ErrShortBuffer
	}
	seq := leU64(ev.Payload[0:8])
	domain := leU32(ev.Payload[8:12])
	inst.gtid = models.GTID{Domain: domain, ServerID: ev.Header.ServerID, Sequence: seq}
	inst.rowEvNum = 0
	return nil
}

// dispatchRotate reports whether the rotate named a new file to switch to
// immediately (true) so drainFile can stop reading the current one.
func (inst *Instance) dispatchRotate(ev binlog.RawEvent) (bool, error) {
	info, err := binlog.ParseRotate(ev.Payload)
	if err != nil {
		return false, err
	}
	if info.NextFile == "" || info.NextFile == inst.curFile {
		return false, nil
	}

	inst.curFile = info.NextFile
	inst.position = uint32(info.Position)
	base, idx := utils.GetLogNameAndIndex(inst.curFile)
	inst.curBase = base
	inst.curIndex = idx
	return true, nil
}

// rotate is called after drainFile returns io.EOF with no explicit rotate
// event: it tries the next sequentially numbered file. Reports false (not an
// error) when none exists, matching AVRO_LAST_FILE.
func (inst *Instance) rotate() (bool, error) {
	next := utils.GetNextBinlog(inst.curBase, &inst.curIndex)
	path := filepath.Join(inst.cfg.BinlogDir, next)
	if !utils.IsFile(path) {
		inst.curIndex--
		return false, nil
	}

	inst.curFile = next
	inst.position = 0
	return true, nil
}

// dispatchRows decodes one WRITE/UPDATE/DELETE_ROWS event's post-header and
// row images, then appends every decoded record to that table's writer.
func (inst *Instance) dispatchRows(ev binlog.RawEvent) error {
	fd := inst.reader.FormatDescription()
	phl := fd.PostHeaderLen(ev.Header.EventType)

	// Reader.Next always appends one convenience NUL so QUERY_EVENT SQL text
	// can be scanned as a C string; row event bodies are length-exact and
	// must not see it, or rowdecode.Decode's Remaining()>0 loop would try to
	// decode a phantom extra row image.
	raw := ev.Payload
	if len(raw) > 0 {
		raw = raw[:len(raw)-1]
	}

	tableID, body, err := parseRowsPostHeader(phl, raw)
	if err != nil {
		return err
	}

	if _, skip := inst.skipIDs[tableID]; skip {
		return nil
	}

	tm := inst.tables.ByID(tableID)
	if tm == nil {
		return fmt.Errorf("%w: table_id %d", vars.ErrUnknownTable, tableID)
	}

	inst.mu.Lock()
	at := inst.writers[tm]
	inst.mu.Unlock()
	if at == nil {
		return fmt.Errorf("driver: no avro writer open for %s version %d", tm.Create.AbsName(), tm.Version)
	}

	var records []rowdecode.Record
	switch {
	case binlog.IsUpdateRows(ev.Header.EventType):
		records, err = rowdecode.Decode(tm, true, inst.gtid, ev.Header.Timestamp, body)
	case binlog.IsDeleteRows(ev.Header.EventType):
		records, err = rowdecode.DecodeDelete(tm, inst.gtid, ev.Header.Timestamp, body)
	default:
		records, err = rowdecode.Decode(tm, false, inst.gtid, ev.Header.Timestamp, body)
	}
	if err != nil {
		return err
	}

	for _, rec := range records {
		payload := make(map[string]any, len(rec.Columns)+3)
		for k, v := range rec.Columns {
			payload[k] = v
		}
		payload["GTID"] = rec.GTID
		payload["timestamp"] = int32(rec.Timestamp)
		payload["event_type"] = rec.EventType

		if err := at.Writer.Append(payload); err != nil {
			return err
		}
		inst.rowCount++
		inst.rowEvNum++
	}
	inst.gtid.EventNum = inst.rowEvNum

	if inst.legacyGen != nil {
		if err := inst.emitLegacySQL(tm, ev, records); err != nil {
			return err
		}
	}
	return nil
}

// maybeFlush flushes every open writer and checkpoints once either
// threshold is met, then resets the counters. It runs only on commit
// events, so the checkpoint never lands mid-transaction.
func (inst *Instance) maybeFlush() {
	if inst.rowCount < inst.cfg.RowTarget && inst.trxCount < inst.cfg.TrxTarget {
		return
	}

	inst.mu.Lock()
	writers := make([]*AvroTable, 0, len(inst.writers))
	for _, at := range inst.writers {
		writers = append(writers, at)
	}
	inst.mu.Unlock()

	for _, at := range writers {
		if err := at.Writer.Flush(); err != nil {
			log.Logger.Error("flush %s: %v", at.Path, err)
		}
	}

	inst.safeFile = inst.curFile
	inst.safePos = inst.position
	inst.safeGTID = inst.gtid

	if err := checkpoint.Save(inst.cfg.CheckpointFile, checkpoint.State{
		File:     inst.safeFile,
		Position: inst.safePos,
		GTID:     inst.safeGTID,
	}); err != nil {
		log.Logger.Error("checkpoint save: %v", err)
	}
	if err := inst.ddl.SaveToDisk(inst.cfg.DDLListFile); err != nil {
		log.Logger.Error("ddl list save: %v", err)
	}

	inst.rowCount = 0
	inst.trxCount = 0

	if inst.onFlush != nil {
		inst.onFlush()
	}
}

// trxState tracks whether the driver is between BEGIN and its matching
// COMMIT/XID, to detect an incomplete transaction at end-of-file.
type trxState int

const (
	trxStateClosed trxState = iota
	trxStateOpen
)

// parseRowsPostHeader consumes the (table_id, flags, [v2 extra-data]) prefix
// of a ROWS event payload per its format description's post-header length:
// 6 (v0) -> 4-byte table_id, no extra data; 8 (v1) -> 6-byte table_id, no
// extra data; 10 (v2) -> 6-byte table_id plus a 2-byte extra-data length
// that counts its own two bytes, followed by the rest of the extra data. It
// returns the table_id and the remaining body
// (column count onward) ready for rowdecode.
func parseRowsPostHeader(postHeaderLen byte, payload []byte) (uint64, []byte, error) {
	switch postHeaderLen {
	case 6:
		if len(payload) < 4+2 {
			return 0, nil, vars.ErrShortBuffer
		}
		id := uint64(leU32(payload[:4]))
		return id, payload[4+2:], nil
	case 8:
		if len(payload) < 6+2 {
			return 0, nil, vars.ErrShortBuffer
		}
		id := leU48(payload[:6])
		return id, payload[6+2:], nil
	case 10:
		if len(payload) < 6+2+2 {
			return 0, nil, vars.ErrShortBuffer
		}
		id := leU48(payload[:6])
		// extra-data length counts its own two bytes, so a v2 event with no
		// extra row info carries 0x0002 here and the body starts at 10.
		extraLen := int(leU16(payload[8:10]))
		if extraLen < 2 {
			return 0, nil, vars.ErrShortBuffer
		}
		start := 8 + extraLen
		if len(payload) < start {
			return 0, nil, vars.ErrShortBuffer
		}
		return id, payload[start:], nil
	default:
		return 0, nil, fmt.Errorf("driver: unrecognised rows-event post-header length %d", postHeaderLen)
	}
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leU48(b []byte) uint64 {
	var v uint64
	for i := 5; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
