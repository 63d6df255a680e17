// Package ddl tracks the schema of every table as seen through QUERY_EVENT
// CREATE TABLE / ALTER TABLE statements, producing a versioned TableCreate
// per database.table and persisting the definitive list to a sidecar file.
package ddl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/models"
	"github.com/SisyphusSQ/mxavro/internal/utils"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

var (
	createRe = regexp.MustCompile(`(?is)^\s*create\s+(or\s+replace\s+)?(temporary\s+)?table`)
	alterRe  = regexp.MustCompile(`(?is)^\s*alter\s+(online\s+)?(ignore\s+)?table`)

	skipColumnPrefixes = []string{
		"PRIMARY", "KEY", "INDEX", "CONSTRAINT", "FOREIGN", "UNIQUE", "FULLTEXT", "SPATIAL",
	}
)

// Tracker owns every TableCreate ever observed, keyed by "database.table".
type Tracker struct {
	tables map[string]*models.TableCreate
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{tables: make(map[string]*models.TableCreate)}
}

// Lookup returns the current TableCreate for database.table, or nil.
func (t *Tracker) Lookup(database, table string) *models.TableCreate {
	return t.tables[database+"."+table]
}

// All returns every tracked TableCreate, for persistence to table-ddl.list.
func (t *Tracker) All() []*models.TableCreate {
	out := make([]*models.TableCreate, 0, len(t.tables))
	for _, tc := range t.tables {
		out = append(out, tc)
	}
	return out
}

// Load seeds the tracker from a previously persisted list, e.g. on startup
// replay so that table versions carry over across process restarts.
func (t *Tracker) Load(list []*models.TableCreate) {
	for _, tc := range list {
		t.tables[tc.AbsName()] = tc
	}
}

// LoadFromDisk replays a previously persisted table-ddl.list, one JSON
// TableCreate per line, so a restarted converter does not need to
// re-observe historical DDL before it can decode rows against tables it
// already knows. A missing file is not an error: it means there is
// nothing to replay yet.
func (t *Tracker) LoadFromDisk(path string) error {
	if !utils.IsFile(path) {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ddl: open %s: %w", path, err)
	}
	defer f.Close()

	var list []*models.TableCreate
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		tc := &models.TableCreate{}
		if err := json.Unmarshal([]byte(line), tc); err != nil {
			return fmt.Errorf("ddl: parse %s: %w", path, err)
		}
		list = append(list, tc)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("ddl: read %s: %w", path, err)
	}

	t.Load(list)
	return nil
}

// SaveToDisk rewrites path with every tracked TableCreate, one JSON object
// per line, atomically so a concurrent reader never observes a
// half-written list.
func (t *Tracker) SaveToDisk(path string) error {
	var buf strings.Builder
	for _, tc := range t.All() {
		b, err := json.Marshal(tc)
		if err != nil {
			return fmt.Errorf("ddl: marshal %s: %w", tc.AbsName(), err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return utils.WriteFileAtomic(path, []byte(buf.String()), 0644)
}

// IsBegin and IsCommit classify a QUERY_EVENT's (whitespace-unified,
// comment-stripped) SQL text.
func IsBegin(sql string) bool  { return strings.EqualFold(strings.TrimSpace(sql), "BEGIN") }
func IsCommit(sql string) bool { return strings.EqualFold(strings.TrimSpace(sql), "COMMIT") }

// Apply recognizes sql as CREATE TABLE or ALTER TABLE and updates the
// tracker accordingly. It returns the resulting TableCreate and true when
// sql was schema-affecting DDL; database is the QUERY_EVENT's own schema,
// used when the statement's table identifier is unqualified.
func (t *Tracker) Apply(database string, sql string, gtid models.GTID) (*models.TableCreate, bool) {
	clean := normalize(sql)

	switch {
	case createRe.MatchString(clean):
		return t.applyCreate(database, clean, gtid), true
	case alterRe.MatchString(clean):
		tc := t.applyAlter(database, clean, gtid)
		return tc, tc != nil
	default:
		return nil, false
	}
}

// normalize replaces each whitespace byte with a space and strips /* ... */ and
// -- ... comments. It walks bytes, not runes: every byte it inspects is
// ASCII, and multi-byte characters inside identifiers or literals pass
// through untouched.
func normalize(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if c == '/' && i+1 < len(sql) && sql[i+1] == '*' {
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				break
			}
			i += 2 + end + 1
			continue
		}
		if c == '-' && i+1 < len(sql) && sql[i+1] == '-' {
			nl := strings.IndexByte(sql[i:], '\n')
			if nl < 0 {
				break
			}
			i += nl
			continue
		}
		if isSQLSpace(c) {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSQLSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

func (t *Tracker) applyCreate(database, sql string, gtid models.GTID) *models.TableCreate {
	rest := createRe.ReplaceAllString(sql, "")
	rest = strings.TrimSpace(rest)
	rest = trimIfNotExists(rest)

	db, table, rest := parseQualifiedIdent(rest, database)

	cols := parseColumnList(rest)
	tc := &models.TableCreate{
		Database:    db,
		Table:       table,
		ColumnNames: cols,
		DDL:         sql,
		Version:     1,
		GTID:        gtid,
	}
	if prev, ok := t.tables[tc.AbsName()]; ok {
		tc.Version = prev.Version + 1
	}
	t.tables[tc.AbsName()] = tc
	return tc
}

func trimIfNotExists(rest string) string {
	re := regexp.MustCompile(`(?is)^if\s+not\s+exists\s+`)
	return re.ReplaceAllString(rest, "")
}

// parseQualifiedIdent parses a possibly `db`.`table` or db.table or bare
// table identifier off the front of rest, returning the resolved database
// (falling back to defaultDB when unqualified), the table name, and
// whatever text followed the identifier.
func parseQualifiedIdent(rest, defaultDB string) (db, table, tail string) {
	rest = strings.TrimSpace(rest)
	ident, tail := takeIdentChain(rest)
	parts := strings.Split(ident, ".")
	for i := range parts {
		parts[i] = unquoteIdent(parts[i])
	}
	switch len(parts) {
	case 1:
		return defaultDB, parts[0], tail
	default:
		return parts[len(parts)-2], parts[len(parts)-1], tail
	}
}

// takeIdentChain consumes a backtick/bareword identifier chain such as
// `db`.`tbl` or db.tbl from the front of s, returning it and the remainder.
func takeIdentChain(s string) (ident, rest string) {
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '`':
			j := strings.IndexByte(s[i+1:], '`')
			if j < 0 {
				i = len(s)
			} else {
				i += j + 2
			}
		case c == '.' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			i++
		default:
			return strings.TrimSpace(s[:i]), s[i:]
		}
	}
	return strings.TrimSpace(s), ""
}

func unquoteIdent(s string) string {
	return strings.Trim(s, "`")
}

// parseColumnList extracts the parenthesized, depth-tracked column list
// that follows a CREATE TABLE's identifier and returns the bare column
// names, skipping index/constraint clauses.
func parseColumnList(rest string) []string {
	start := strings.IndexByte(rest, '(')
	if start < 0 {
		return nil
	}

	depth := 0
	end := -1
	for i := start; i < len(rest); i++ {
		switch rest[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil
	}

	body := rest[start+1 : end]
	items := splitTopLevel(body)

	cols := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if isSkippedClause(item) {
			continue
		}
		name, _ := takeIdentChain(item)
		name = unquoteIdent(name)
		if name != "" {
			cols = append(cols, name)
		}
	}
	return cols
}

// splitTopLevel splits body on commas that are not nested inside
// parentheses, so that ENUM('a,b') or DECIMAL(10,2) column definitions
// survive intact.
func splitTopLevel(body string) []string {
	var items []string
	depth := 0
	start := 0
	for i, c := range body {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, body[start:i])
				start = i + 1
			}
		}
	}
	items = append(items, body[start:])
	return items
}

func isSkippedClause(item string) bool {
	upper := strings.ToUpper(strings.TrimSpace(item))
	for _, prefix := range skipColumnPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// applyAlter applies ADD/DROP/CHANGE/RENAME-COLUMN clauses in source order
// to the stored column list and bumps the version. Returns nil if no
// tracked TableCreate exists for the target table.
func (t *Tracker) applyAlter(database, sql string, gtid models.GTID) *models.TableCreate {
	rest := alterRe.ReplaceAllString(sql, "")
	rest = strings.TrimSpace(rest)

	db, table, rest := parseQualifiedIdent(rest, database)
	absName := db + "." + table

	prev, ok := t.tables[absName]
	if !ok {
		log.Logger.Warn("ALTER TABLE %s seen with no prior CREATE TABLE tracked; skipping", absName)
		return nil
	}

	tc := prev.Copy()
	tc.GTID = gtid
	tc.Version = prev.Version + 1
	tc.DDL = sql

	for _, clause := range splitTopLevel(rest) {
		applyAlterClause(tc, strings.TrimSpace(clause))
	}

	t.tables[absName] = tc
	return tc
}

var (
	addColumnRe    = regexp.MustCompile(`(?is)^add\s+(column\s+)?`)
	dropColumnRe   = regexp.MustCompile(`(?is)^drop\s+(column\s+)?`)
	changeColumnRe = regexp.MustCompile(`(?is)^change\s+(column\s+)?`)
	renameColumnRe = regexp.MustCompile(`(?is)^rename\s+column\s+`)
)

func applyAlterClause(tc *models.TableCreate, clause string) {
	switch {
	case addColumnRe.MatchString(clause):
		m := addColumnRe.FindStringSubmatch(clause)
		rest := addColumnRe.ReplaceAllString(clause, "")
		if m[1] == "" && isSkippedClause(rest) {
			break // ADD INDEX / KEY / CONSTRAINT ... names no column
		}
		name, _ := takeIdentChain(strings.TrimSpace(rest))
		name = unquoteIdent(name)
		if name != "" {
			tc.ColumnNames = append(tc.ColumnNames, name)
		}
	case dropColumnRe.MatchString(clause):
		rest := dropColumnRe.ReplaceAllString(clause, "")
		name, _ := takeIdentChain(strings.TrimSpace(rest))
		name = unquoteIdent(name)
		tc.ColumnNames = removeColumn(tc.ColumnNames, name)
	case renameColumnRe.MatchString(clause):
		rest := renameColumnRe.ReplaceAllString(clause, "")
		oldName, tail := takeIdentChain(strings.TrimSpace(rest))
		oldName = unquoteIdent(oldName)
		tail = strings.TrimSpace(tail)
		tail = regexp.MustCompile(`(?is)^to\s+`).ReplaceAllString(tail, "")
		newName, _ := takeIdentChain(strings.TrimSpace(tail))
		newName = unquoteIdent(newName)
		renameColumn(tc.ColumnNames, oldName, newName)
	case changeColumnRe.MatchString(clause):
		rest := changeColumnRe.ReplaceAllString(clause, "")
		oldName, tail := takeIdentChain(strings.TrimSpace(rest))
		oldName = unquoteIdent(oldName)
		newName, _ := takeIdentChain(strings.TrimSpace(tail))
		newName = unquoteIdent(newName)
		renameColumn(tc.ColumnNames, oldName, newName)
	default:
		// ADD INDEX / ADD CONSTRAINT / MODIFY COLUMN (type-only change) /
		// RENAME TABLE and anything else structurally inert for the
		// column list are left as-is.
	}
}

func removeColumn(cols []string, name string) []string {
	out := cols[:0]
	for _, c := range cols {
		if !strings.EqualFold(c, name) {
			out = append(out, c)
		}
	}
	return out
}

func renameColumn(cols []string, oldName, newName string) {
	for i, c := range cols {
		if strings.EqualFold(c, oldName) {
			cols[i] = newName
			return
		}
	}
}

// ExtractQueryEvent pulls the schema name and SQL text out of a QUERY_EVENT
// payload using the fixed post-header offsets: db_name_len at offset 8, the
// variable-status-block length at offset 11, and the payload body starting
// at 13 + varblock + 1 + db_name_len.
func ExtractQueryEvent(payload []byte) (database, sqlText string, err error) {
	if len(payload) < 13 {
		return "", "", vars.ErrShortBuffer
	}
	dbNameLen := int(payload[8])
	varBlockLen := int(payload[11]) | int(payload[12])<<8

	bodyStart := 13 + varBlockLen + 1 + dbNameLen
	dbStart := 13 + varBlockLen

	if dbStart+dbNameLen > len(payload) || bodyStart > len(payload) {
		return "", "", fmt.Errorf("%w: query event offsets out of range", vars.ErrShortBuffer)
	}

	database = string(payload[dbStart : dbStart+dbNameLen])
	body := payload[bodyStart:]
	if nul := indexNUL(body); nul >= 0 {
		body = body[:nul]
	}
	return database, string(body), nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
