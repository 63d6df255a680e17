package session

import (
	"sync"

	"github.com/SisyphusSQ/mxavro/internal/models"
)

// gtidIndex is a capped, lazily built map from a streamed GTID to the block
// ordinal it was first observed at within one table-version file, so a
// later seek-to-GTID request against a file some session has already
// streamed can skip whole blocks without decoding them. Entries evict in
// FIFO order once the cap is reached; this is purely a hint, never a
// correctness requirement, so losing an entry just costs a rescan.
type gtidIndex struct {
	mu      sync.Mutex
	cap     int
	order   []indexKey
	entries map[indexKey]int
}

type indexKey struct {
	table  string
	domain uint32
	server uint32
	seq    uint64
}

func newGTIDIndex(capacity int) *gtidIndex {
	return &gtidIndex{cap: capacity, entries: make(map[indexKey]int)}
}

// record notes that gtid was observed in block number block while streaming
// table (the "database.table.version" key). A zero-value GTID (no GTID event
// has been seen yet for this record) is not worth indexing.
func (idx *gtidIndex) record(table string, gtid models.GTID, block int) {
	if gtid.Sequence == 0 {
		return
	}
	k := indexKey{table: table, domain: gtid.Domain, server: gtid.ServerID, seq: gtid.Sequence}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.entries[k]; ok {
		return
	}
	if len(idx.order) >= idx.cap {
		oldest := idx.order[0]
		idx.order = idx.order[1:]
		delete(idx.entries, oldest)
	}
	idx.order = append(idx.order, k)
	idx.entries[k] = block
}

// lookup returns the block ordinal gtid was first seen at in table's file,
// if a prior session has streamed past it and the entry has not evicted.
func (idx *gtidIndex) lookup(table string, gtid models.GTID) (int, bool) {
	k := indexKey{table: table, domain: gtid.Domain, server: gtid.ServerID, seq: gtid.Sequence}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	block, ok := idx.entries[k]
	return block, ok
}
