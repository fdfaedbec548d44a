package dht

import "log/slog"

// routeTable is the bounded shortcut-routing table described in
// spec.md §4.4: at most numRoutes entries, with succInfo pinned at
// index 0 whenever it is present.
type routeTable struct {
	numRoutes int
	entries   []NodeInfo
	log       *slog.Logger
}

func newRouteTable(numRoutes int, log *slog.Logger) *routeTable {
	return &routeTable{numRoutes: numRoutes, log: log}
}

func (t *routeTable) Len() int {
	return len(t.entries)
}

func (t *routeTable) Snapshot() []NodeInfo {
	out := make([]NodeInfo, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *routeTable) contains(r NodeInfo) bool {
	for _, e := range t.entries {
		if e.Equal(r) {
			return true
		}
	}
	return false
}

// addRoute inserts newRoute, keeping succInfo (identified by the
// caller passing isSucc) at index 0. myInfo entries are ignored.
func (t *routeTable) addRoute(newRoute, myInfo NodeInfo, isSucc bool) {
	if newRoute.Equal(myInfo) {
		return
	}
	if len(t.entries) == t.numRoutes {
		if isSucc {
			if len(t.entries) > 0 {
				t.entries = t.entries[1:]
			}
			t.entries = append([]NodeInfo{newRoute}, t.entries...)
		} else {
			if t.numRoutes == 1 {
				return
			}
			t.entries = append(t.entries[:1], t.entries[2:]...)
			t.entries = append(t.entries, newRoute)
		}
	} else {
		if isSucc {
			t.entries = append([]NodeInfo{newRoute}, t.entries...)
		} else {
			t.entries = append(t.entries, newRoute)
		}
	}
	if t.log != nil {
		t.log.Debug("dht: routing table changed", "rteTbl", t.entries)
	}
}

func (t *routeTable) removeRoute(rm NodeInfo) {
	for i, e := range t.entries {
		if e.Equal(rm) {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			if t.log != nil {
				t.log.Debug("dht: routing table changed", "rteTbl", t.entries)
			}
			return
		}
	}
}

func (t *routeTable) clear() {
	t.entries = nil
}

// closest returns the address of the route entry that minimizes
// (hash - firstHash) mod 2^31, the "closest predecessor" forwarding
// rule of spec.md §4.4.
func (t *routeTable) closest(hash uint32) (NodeInfo, bool) {
	const ringSize = 1 << 31
	var best NodeInfo
	found := false
	min := uint32(ringSize)
	for _, e := range t.entries {
		diff := (hash - e.FirstHash) % ringSize
		if diff < min {
			min = diff
			best = e
			found = true
		}
	}
	return best, found
}
