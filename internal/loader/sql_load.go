// Package loader writes legacy2sql's rendered SQL/JSON out to disk, one file
// per binlog file (or per table, when configured). It is a plain synchronous
// sink called directly from the driver's dispatch loop: the single dedicated
// conversion worker has nothing to hand this off to.
package loader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SisyphusSQ/mxavro/internal/config"
	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/models"
	"github.com/SisyphusSQ/mxavro/internal/utils"
)

const (
	RollbackType = "rollback"
	ForwardType  = "forward"
	JSONType     = "json"
)

// SQLLoader rotates its output file(s) whenever the binlog filename a
// ResultSQL is attributed to changes.
type SQLLoader struct {
	typeName   string
	baseDir    string
	lastBinlog string

	file   *os.File
	writer *bufio.Writer

	isPrintScreen  bool
	isPrintExtra   bool
	isFilePerTable bool

	fileMap   map[string]*os.File
	writerMap map[string]*bufio.Writer
}

// NewSQLLoader builds a loader of typeName ("forward", "rollback" or
// "json") writing into c.OutputDir.
func NewSQLLoader(c *config.Config, typeName string) *SQLLoader {
	s := &SQLLoader{
		typeName: typeName,
		baseDir:  c.OutputDir,

		isPrintScreen:  c.OutputToScreen,
		isPrintExtra:   c.PrintExtraInfo,
		isFilePerTable: c.FilePerTable,
	}
	if s.isFilePerTable {
		s.fileMap = make(map[string]*os.File)
		s.writerMap = make(map[string]*bufio.Writer)
	}
	return s
}

// Handle writes one ResultSQL's statements (or json lines, for a
// typeName=="json" loader) out, rotating the output file first if needed.
func (s *SQLLoader) Handle(res *models.ResultSQL) error {
	if len(s.lines(res)) == 0 {
		return nil
	}

	if s.isPrintScreen {
		fmt.Println(strings.Join(s.lines(res), ""))
		return nil
	}

	if s.isFilePerTable {
		return s.handlePerTable(res)
	}
	return s.handle(res)
}

func (s *SQLLoader) handle(res *models.ResultSQL) error {
	if s.lastBinlog == "" {
		s.lastBinlog = res.SQLInfo.Binlog
	} else if s.lastBinlog != res.SQLInfo.Binlog {
		s.lastBinlog = res.SQLInfo.Binlog
		if err := s.closeDefault(); err != nil {
			return err
		}
	}

	if s.file == nil {
		if err := os.MkdirAll(s.baseDir, 0755); err != nil {
			return fmt.Errorf("loader: mkdir %s: %w", s.baseDir, err)
		}
		f, err := os.OpenFile(s.absFilename(res.SQLInfo), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("loader: open file: %w", err)
		}
		s.file = f
		s.writer = bufio.NewWriter(f)
	}

	return s.write(s.writer, res)
}

func (s *SQLLoader) handlePerTable(res *models.ResultSQL) error {
	if s.lastBinlog == "" {
		s.lastBinlog = res.SQLInfo.Binlog
	} else if s.lastBinlog != res.SQLInfo.Binlog {
		s.lastBinlog = res.SQLInfo.Binlog
	}

	name := s.absFilename(res.SQLInfo)
	if _, ok := s.fileMap[name]; !ok {
		if err := os.MkdirAll(s.baseDir, 0755); err != nil {
			return fmt.Errorf("loader: mkdir %s: %w", s.baseDir, err)
		}
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("loader: open file: %w", err)
		}
		s.fileMap[name] = f
		s.writerMap[name] = bufio.NewWriter(f)
	}

	return s.write(s.writerMap[name], res)
}

func (s *SQLLoader) write(w *bufio.Writer, res *models.ResultSQL) error {
	for _, line := range s.lines(res) {
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("loader: write: %w", err)
		}
	}
	return w.Flush()
}

// lines renders one ResultSQL into the text this loader appends: json lines
// for a json loader, else an optional extra-info comment followed by the
// semicolon-terminated statements.
func (s *SQLLoader) lines(res *models.ResultSQL) []string {
	if s.typeName == JSONType {
		if len(res.Jsons) == 0 {
			return nil
		}
		return []string{strings.Join(res.Jsons, "\n") + "\n"}
	}

	if len(res.SQLs) == 0 {
		return nil
	}

	out := make([]string, 0, 2)
	if s.isPrintExtra {
		i := res.SQLInfo
		out = append(out, fmt.Sprintf("-- datetime=%s database=%s table=%s binlog=%s startpos=%d stoppos=%d\n",
			i.Datetime, i.Schema, i.Table, i.Binlog, i.StartPos, i.EndPos))
	}
	out = append(out, strings.Join(res.SQLs, ";\n")+";\n")
	return out
}

func (s *SQLLoader) absFilename(i models.ExtraInfo) string {
	_, idx := utils.GetLogNameAndIndex(s.lastBinlog)
	if s.isFilePerTable {
		return filepath.Join(s.baseDir, fmt.Sprintf("%s.%s.%s.%06d.sql", i.Schema, i.Table, s.typeName, idx))
	}
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.%06d.sql", s.typeName, idx))
}

func (s *SQLLoader) closeDefault() error {
	if s.file == nil {
		return nil
	}
	err := s.writer.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	s.writer = nil
	return err
}

// Close flushes and closes every file this loader has open, for a clean
// converter shutdown.
func (s *SQLLoader) Close() error {
	var firstErr error
	if err := s.closeDefault(); err != nil {
		firstErr = err
	}
	for name, f := range s.fileMap {
		if err := s.writerMap[name].Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		log.Logger.Error("loader: close error: %v", firstErr)
	}
	return firstErr
}
