// Package checkpoint persists and restores conversion progress in
// avro-conversion.ini so a restarted driver resumes without replaying
// already-converted events.
package checkpoint

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/SisyphusSQ/mxavro/internal/models"
	"github.com/SisyphusSQ/mxavro/internal/utils"
)

const (
	section = "avro-conversion"

	keyPosition = "position"
	keyGTID     = "gtid"
	keyFile     = "file"
)

// State is the resumable conversion position: the binlog file currently
// being read, the byte offset of the next event header within it, and the
// GTID of the last fully processed transaction.
type State struct {
	File     string
	Position uint32
	GTID     models.GTID
}

// Load reads path and returns the persisted State. A missing file is not an
// error: it returns the zero State, meaning "start from the beginning".
func Load(path string) (State, error) {
	if !utils.IsFile(path) {
		return State{}, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: load %s: %w", path, err)
	}

	sec := cfg.Section(section)
	pos, err := sec.Key(keyPosition).Uint()
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: parse position: %w", err)
	}

	gtid, err := parseGTID(sec.Key(keyGTID).String())
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: parse gtid: %w", err)
	}

	return State{
		File:     sec.Key(keyFile).String(),
		Position: uint32(pos),
		GTID:     gtid,
	}, nil
}

// Save atomically rewrites path with st, via write-to-temp then rename so a
// concurrent reader never observes a half-written checkpoint.
func Save(path string, st State) error {
	cfg := ini.Empty()
	sec, err := cfg.NewSection(section)
	if err != nil {
		return fmt.Errorf("checkpoint: new section: %w", err)
	}
	if _, err := sec.NewKey(keyPosition, strconv.FormatUint(uint64(st.Position), 10)); err != nil {
		return err
	}
	if _, err := sec.NewKey(keyGTID, st.GTID.Checkpoint()); err != nil {
		return err
	}
	if _, err := sec.NewKey(keyFile, st.File); err != nil {
		return err
	}

	var buf strings.Builder
	if _, err := cfg.WriteTo(&buf); err != nil {
		return fmt.Errorf("checkpoint: render ini: %w", err)
	}

	return utils.WriteFileAtomic(path, []byte(buf.String()), 0644)
}

// parseGTID parses the "<domain>-<server_id>-<sequence>:<event_num>" form
// written by GTID.Checkpoint. An empty string yields the zero GTID.
func parseGTID(s string) (models.GTID, error) {
	if s == "" {
		return models.GTID{}, nil
	}

	tuple, eventNumStr, ok := strings.Cut(s, ":")
	if !ok {
		return models.GTID{}, fmt.Errorf("checkpoint: malformed gtid %q", s)
	}
	parts := strings.Split(tuple, "-")
	if len(parts) != 3 {
		return models.GTID{}, fmt.Errorf("checkpoint: malformed gtid %q", s)
	}

	domain, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return models.GTID{}, fmt.Errorf("checkpoint: malformed gtid domain in %q: %w", s, err)
	}
	serverID, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return models.GTID{}, fmt.Errorf("checkpoint: malformed gtid server_id in %q: %w", s, err)
	}
	sequence, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return models.GTID{}, fmt.Errorf("checkpoint: malformed gtid sequence in %q: %w", s, err)
	}
	eventNum, err := strconv.ParseUint(eventNumStr, 10, 64)
	if err != nil {
		return models.GTID{}, fmt.Errorf("checkpoint: malformed gtid event_num in %q: %w", s, err)
	}

	return models.GTID{
		Domain:   uint32(domain),
		ServerID: uint32(serverID),
		Sequence: sequence,
		EventNum: eventNum,
	}, nil
}
