// Package tablemap maintains the live binding between binlog table_ids and
// the TableCreate definitions tracked by internal/ddl, generating a fresh
// Avro schema and AvroTable file every time a table's version changes.
package tablemap

import (
	"fmt"

	"github.com/SisyphusSQ/mxavro/internal/codec"
	"github.com/SisyphusSQ/mxavro/internal/ddl"
	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/models"
	"github.com/SisyphusSQ/mxavro/internal/rowdecode"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

// OpenFunc is called whenever the registry needs an AvroTable opened for a
// new table version, supplied by internal/driver so that tablemap never
// touches the filesystem directly.
type OpenFunc func(m *models.TableMap, schemaJSON string) error

// Registry is the TABLE_MAP_EVENT handler: a fixed-size active-slot array
// indexed by table_id modulo MaxMappedTables, plus a keyed
// "database.table" lookup.
type Registry struct {
	ddl    *ddl.Tracker
	active [vars.MaxMappedTables]*models.TableMap
	byName map[string]*models.TableMap
	open   OpenFunc
}

// NewRegistry returns a Registry backed by tracker for TableCreate lookups;
// open is invoked once per new table version to materialize its AvroTable.
func NewRegistry(tracker *ddl.Tracker, open OpenFunc) *Registry {
	return &Registry{
		ddl:    tracker,
		byName: make(map[string]*models.TableMap),
		open:   open,
	}
}

// ByID returns the TableMap active for id, or nil if none is mapped.
func (r *Registry) ByID(id uint64) *models.TableMap {
	return r.active[id%vars.MaxMappedTables]
}

// ByName returns the TableMap active for "database.table", or nil.
func (r *Registry) ByName(absName string) *models.TableMap {
	return r.byName[absName]
}

// ParsedTableMap is the raw, decoded body of a TABLE_MAP_EVENT.
type ParsedTableMap struct {
	ID             uint64
	Flags          uint16
	Database       string
	Table          string
	ColumnTypes    []byte
	ColumnMetadata []byte
	NullBitmap     []byte
}

// Parse decodes a TABLE_MAP_EVENT payload. idLen is the table_id width: the
// driver passes 4 when the format description's post-header length for
// TABLE_MAP_EVENT is 6 (4-byte id + 2 flags), 6 otherwise. Any idLen other
// than 6 reads a 4-byte id.
func Parse(payload []byte, idLen int) (ParsedTableMap, error) {
	var p ParsedTableMap
	c := codec.NewCursor(payload)

	var id uint64
	var err error
	switch idLen {
	case 6:
		id, err = c.U48()
	default:
		var v uint32
		v, err = c.U32()
		id = uint64(v)
	}
	if err != nil {
		return p, err
	}
	p.ID = id

	p.Flags, err = c.U16()
	if err != nil {
		return p, err
	}

	dbLen, err := c.Byte()
	if err != nil {
		return p, err
	}
	dbName, err := c.Bytes(int(dbLen))
	if err != nil {
		return p, err
	}
	p.Database = string(dbName)
	if _, err = c.Byte(); err != nil { // NUL
		return p, err
	}

	tblLen, err := c.Byte()
	if err != nil {
		return p, err
	}
	tblName, err := c.Bytes(int(tblLen))
	if err != nil {
		return p, err
	}
	p.Table = string(tblName)
	if _, err = c.Byte(); err != nil { // NUL
		return p, err
	}

	colCount, err := c.LenencInt()
	if err != nil {
		return p, err
	}
	p.ColumnTypes, err = c.Bytes(int(colCount))
	if err != nil {
		return p, err
	}

	p.ColumnMetadata, err = c.LenencStr()
	if err != nil {
		return p, err
	}

	nullBitmapLen := (int(colCount) + 7) / 8
	p.NullBitmap, err = c.Bytes(nullBitmapLen)
	if err != nil {
		return p, err
	}

	return p, nil
}

// IsReleaseAllSentinel reports whether id/flags mark the dummy
// "release every active map" event: table id 0x00ffffff combined with the
// ROW_EVENT_END_STATEMENT flag.
func IsReleaseAllSentinel(id uint64, flags uint16) bool {
	const (
		dummyTableID         = 0x00ffffff
		rowEventEndStatement = 0x0001
	)
	return id == dummyTableID && flags&rowEventEndStatement != 0
}

// Apply processes a parsed TABLE_MAP_EVENT: it looks up the TableCreate by
// "db.table", reuses the current TableMap if its version is unchanged, or
// creates and opens a new one. It returns nil, vars.ErrUnknownTable when no
// TableCreate has been tracked for this table yet - callers should log and
// skip the event; the mismatch is fatal for that event only.
func (r *Registry) Apply(p ParsedTableMap, gtid models.GTID) (*models.TableMap, error) {
	absName := p.Database + "." + p.Table

	create := r.ddl.Lookup(p.Database, p.Table)
	if create == nil {
		return nil, fmt.Errorf("%w: %s", vars.ErrUnknownTable, absName)
	}

	if existing, ok := r.byName[absName]; ok && existing.Version == create.Version {
		existing.ID = p.ID
		existing.ColumnTypes = p.ColumnTypes
		existing.ColumnMetadata = p.ColumnMetadata
		r.active[p.ID%vars.MaxMappedTables] = existing
		return existing, nil
	}

	tm := &models.TableMap{
		ID:             p.ID,
		Create:         create,
		ColumnTypes:    p.ColumnTypes,
		ColumnMetadata: p.ColumnMetadata,
		Version:        create.Version,
		GTID:           gtid,
	}

	schemaJSON, err := BuildSchema(create, p.ColumnTypes, p.ColumnMetadata)
	if err != nil {
		return nil, err
	}

	if r.open != nil {
		if err := r.open(tm, schemaJSON); err != nil {
			return nil, err
		}
	}

	r.byName[absName] = tm
	r.active[p.ID%vars.MaxMappedTables] = tm
	log.Logger.Info("table map %s version %d (id=%d) opened", absName, tm.Version, tm.ID)
	return tm, nil
}

// ReleaseAll clears every active slot and keyed entry, used when a release-
// all-maps sentinel event is observed.
func (r *Registry) ReleaseAll() {
	for i := range r.active {
		r.active[i] = nil
	}
	r.byName = make(map[string]*models.TableMap)
}

// BuildSchema renders the Avro schema JSON for one table version: the
// fixed GTID/timestamp/event_type envelope fields followed by one field per
// source column, typed per rowdecode.AvroTypeFor. columnMetadata is the
// event's opaque metadata blob, consulted per column so that ENUM/SET
// columns masked under the STRING type byte schema out as integers, the
// same shape their decoded values take.
func BuildSchema(tc *models.TableCreate, columnTypes, columnMetadata []byte) (string, error) {
	if len(columnTypes) != len(tc.ColumnNames) {
		return "", fmt.Errorf("%w: table %s has %d columns but table-map carries %d types",
			vars.ErrColumnCountMismatch, tc.AbsName(), len(tc.ColumnNames), len(columnTypes))
	}

	fields := fmt.Sprintf(
		`{"name":"GTID","type":"string"},{"name":"timestamp","type":"int"},`+
			`{"name":"event_type","type":{"type":"enum","name":"event_type_%s_%d","symbols":["insert","update_before","update_after","delete"]}}`,
		sanitizeName(tc.Table), tc.Version,
	)

	for i, name := range tc.ColumnNames {
		meta := rowdecode.MetaFor(columnMetadata, columnTypes, i)
		fields += fmt.Sprintf(`,{"name":%q,"type":["null",%q]}`, name, rowdecode.AvroTypeFor(columnTypes[i], meta))
	}

	schema := fmt.Sprintf(
		`{"type":"record","name":"%s_%06d","namespace":"%s","fields":[%s]}`,
		sanitizeName(tc.Table), tc.Version, sanitizeName(tc.Database), fields,
	)
	return schema, nil
}

func sanitizeName(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
