package forwarder

import (
	"net/netip"
	"sync"

	"github.com/cse473-net/netlab/internal/overlay/packet"
	"github.com/gaissmai/bart"
)

// Table is the forwarding table: prefix -> outgoing link. It always
// contains at least the default route (0.0.0.0/0) when built by NewTable,
// per spec.md §3's "table always contains at least the default route
// (0,0)→0 at startup" invariant. Longest-prefix-match lookup is delegated
// to gaissmai/bart's compressed trie, the same structure the teacher uses
// for its own forwarding plane (core/router.go's bart.Table[RouteTableEntry]).
type Table struct {
	mu   sync.RWMutex
	bart bart.Table[int]
}

// NewTable builds a Table seeded with the default route pointing at
// defaultLink.
func NewTable(defaultLink int) *Table {
	t := &Table{}
	t.bart.Insert(packet.Default.Netip(), defaultLink)
	return t
}

// AddRoute inserts or replaces the link for prefix. Concurrency-safe
// against Lookup, matching spec.md §4.1's "addRoute... concurrency-safe
// against the main loop".
func (t *Table) AddRoute(prefix packet.Prefix, link int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bart.Insert(prefix.Netip(), link)
}

// Lookup returns the link of the longest prefix matching ip, or -1 if the
// table has no matching entry (which cannot happen while the default
// route is present).
func (t *Table) Lookup(ip uint32) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	link, ok := t.bart.Lookup(packet.AddrFromIP(ip))
	if !ok {
		return -1
	}
	return link
}

// Entry is a (prefix, link) pair as reported by Snapshot.
type Entry struct {
	Prefix packet.Prefix
	Link   int
}

// Snapshot returns every entry currently in the table, for debug printing
// and tests.
func (t *Table) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Entry
	for pfx, link := range t.bart.All() {
		out = append(out, Entry{
			Prefix: packet.Prefix{Value: netipToUint32(pfx.Addr()), Length: pfx.Bits()},
			Link:   link,
		})
	}
	return out
}

func netipToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
