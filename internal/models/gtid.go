package models

import (
	"fmt"
	"strconv"
	"strings"
)

// GTID is a MariaDB global transaction identifier: (domain, server_id,
// sequence, event_num). event_num increments within a single transaction;
// the other three fields come directly off the binlog's GTID event.
type GTID struct {
	Domain   uint32
	ServerID uint32
	Sequence uint64
	EventNum uint64
}

// String renders the 3-tuple form used as the Avro record's GTID field and
// in client REQUEST-DATA seek arguments: domain-server_id-sequence.
func (g GTID) String() string {
	return fmt.Sprintf("%d-%d-%d", g.Domain, g.ServerID, g.Sequence)
}

// Checkpoint renders the full 4-tuple form persisted in avro-conversion.ini:
// domain-server_id-sequence:event_num.
func (g GTID) Checkpoint() string {
	return fmt.Sprintf("%d-%d-%d:%d", g.Domain, g.ServerID, g.Sequence, g.EventNum)
}

// Compare returns -1, 0 or 1 comparing g to other in lexicographic
// (domain, server_id, sequence, event_num) order.
func (g GTID) Compare(other GTID) int {
	switch {
	case g.Domain != other.Domain:
		return cmpUint64(uint64(g.Domain), uint64(other.Domain))
	case g.ServerID != other.ServerID:
		return cmpUint64(uint64(g.ServerID), uint64(other.ServerID))
	case g.Sequence != other.Sequence:
		return cmpUint64(g.Sequence, other.Sequence)
	default:
		return cmpUint64(g.EventNum, other.EventNum)
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseCheckpointGTID parses the domain-server_id-sequence:event_num form
// stored in avro-conversion.ini.
func ParseCheckpointGTID(s string) (GTID, error) {
	main, evStr, ok := strings.Cut(s, ":")
	if !ok {
		return GTID{}, fmt.Errorf("invalid checkpoint gtid %q: missing event_num", s)
	}
	g, err := parseTriple(main)
	if err != nil {
		return GTID{}, err
	}
	ev, err := strconv.ParseUint(evStr, 10, 64)
	if err != nil {
		return GTID{}, fmt.Errorf("invalid checkpoint gtid %q: %w", s, err)
	}
	g.EventNum = ev
	return g, nil
}

// ParseSeekGTID parses the domain-server_id-sequence form a client supplies
// to REQUEST-DATA when seeking.
func ParseSeekGTID(s string) (GTID, error) {
	return parseTriple(s)
}

func parseTriple(s string) (GTID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return GTID{}, fmt.Errorf("invalid gtid %q: expected domain-server_id-sequence", s)
	}
	domain, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return GTID{}, fmt.Errorf("invalid gtid domain %q: %w", s, err)
	}
	server, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return GTID{}, fmt.Errorf("invalid gtid server_id %q: %w", s, err)
	}
	seq, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return GTID{}, fmt.Errorf("invalid gtid sequence %q: %w", s, err)
	}
	return GTID{Domain: uint32(domain), ServerID: uint32(server), Sequence: seq}, nil
}
