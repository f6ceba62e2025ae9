package session

import (
	"net"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/haruue-net/wgveil/internal/wglog"
)

// shardCount is the number of independently-locked buckets the table is
// split into. Hashing the client address with xxhash (the teacher's own
// dependency — mwgp requires cespare/xxhash/v2) spreads lookups, inserts
// and reaper scans across separate mutexes instead of one table-wide
// lock, the concrete win SPEC_FULL.md §3 wires the dependency for.
const shardCount = 64

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Table is the peer-address → Entry map of spec.md §3: looked up and
// inserted into by the client-side packet handler (GetOrCreate), and
// evicted from by the reaper. Server-origin traffic does not go through
// the table: ingress gets the owning entry from the poller and passes it
// to the server-side worker on the job.
type Table struct {
	shards [shardCount]*shard
}

// NewTable builds an empty, ready-to-use Table.
func NewTable() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return t
}

func addrKey(addr *net.UDPAddr) string {
	return addr.IP.String() + "/" + strconv.Itoa(addr.Port) + "/" + addr.Zone
}

func (t *Table) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return t.shards[h%shardCount]
}

// Lookup returns the entry for addr, or nil if none exists.
func (t *Table) Lookup(addr *net.UDPAddr) *Entry {
	key := addrKey(addr)
	s := t.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

// GetOrCreate returns the existing entry for clientAddr if present;
// otherwise it calls create to build one and inserts it, returning the
// winner of a race if two callers create concurrently (create's result is
// discarded and its socket closed in that case). Per spec.md §3's
// invariant, only the client-side worker calls this with a non-nil
// create.
func (t *Table) GetOrCreate(clientAddr *net.UDPAddr, create func() (*Entry, error)) (*Entry, error) {
	key := addrKey(clientAddr)
	s := t.shardFor(key)

	s.mu.RLock()
	if existing := s.entries[key]; existing != nil {
		s.mu.RUnlock()
		return existing, nil
	}
	s.mu.RUnlock()

	entry, err := create()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing := s.entries[key]; existing != nil {
		s.mu.Unlock()
		_ = entry.Close()
		return existing, nil
	}
	s.entries[key] = entry
	s.mu.Unlock()
	return entry, nil
}

// Delete removes addr's entry from the table, if present, and returns it
// so the caller (the reaper) can close its socket after unlocking.
func (t *Table) Delete(addr *net.UDPAddr) *Entry {
	key := addrKey(addr)
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	delete(s.entries, key)
	return e
}

// ReapIdle scans every shard for entries idle past timeout, removes them
// from the table, and closes their upstream sockets. Eviction is
// O(scanned) per spec.md §4.7; the table-wide scan is split across
// shards so a single reaper pass never holds one lock for the whole
// table's size.
func (t *Table) ReapIdle(timeout func(e *Entry) bool) int {
	reaped := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if timeout(e) {
				delete(s.entries, key)
				if err := e.Close(); err != nil {
					wglog.Warn("reaper: closing upstream socket for %s: %s", e.ClientAddr, err)
				}
				reaped++
			}
		}
		s.mu.Unlock()
	}
	return reaped
}

// Len returns the total number of tracked entries, used by diagnostics
// and tests only.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
