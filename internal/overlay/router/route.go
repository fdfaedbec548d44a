package router

import (
	"time"

	"github.com/cse473-net/netlab/internal/overlay/packet"
)

// LinkInfo is the per-neighbor state described by spec.md §3: a decaying
// health counter, the EWMA-smoothed round-trip cost, and lifetime
// round-trip statistics.
type LinkInfo struct {
	PeerIp     uint32
	Cost       *EWMA
	GotReply   bool
	HelloState int // 0..3; 0 means the link is DOWN.
}

// NewLinkInfo builds a LinkInfo for a neighbor, seeded with helloState=3
// (freshly up) and an initial cost estimate.
func NewLinkInfo(peerIp uint32, initialCost float64) *LinkInfo {
	return &LinkInfo{
		PeerIp:     peerIp,
		Cost:       NewEWMA(initialCost),
		HelloState: 3,
	}
}

// Down reports whether the link is considered down (spec.md §3:
// "helloState == 0 ⇒ link DOWN").
func (l *LinkInfo) Down() bool {
	return l.HelloState == 0
}

// Route is a routing-table entry (spec.md §3): the path-vector protocol's
// unit of advertisement and forwarding-table update.
type Route struct {
	Prefix    packet.Prefix
	Timestamp float64
	Cost      float64
	Path      []uint32 // router IPs, destination last
	OutLink   int
	Valid     bool
}

// containsIP reports whether ip appears anywhere in path — used for loop
// detection on adverts and failure adverts (spec.md "if myIp appears
// among the hops, drop").
func containsIP(path []uint32, ip uint32) bool {
	for _, h := range path {
		if h == ip {
			return true
		}
	}
	return false
}

// clonePath returns a defensive copy of path, so a stored Route never
// shares its Path backing array with the advert it was built from.
func clonePath(path []uint32) []uint32 {
	out := make([]uint32, len(path))
	copy(out, path)
	return out
}

// prependIP returns a new path with ip inserted at the front, used when
// re-advertising a route or failure to every other live link (spec.md
// §4.2: "the router prepending myIp to the path").
func prependIP(ip uint32, path []uint32) []uint32 {
	out := make([]uint32, 0, len(path)+1)
	out = append(out, ip)
	out = append(out, path...)
	return out
}

// nowSince returns the router's monotonic clock in fractional seconds since a
// fixed epoch t0, as spec.md §4.2 requires ("now = (monotonic_ns -
// t0)/10^9").
func nowSince(t0 time.Time) float64 {
	return time.Since(t0).Seconds()
}

// updateRoute implements spec.md §4.2's updateRoute(old, nu) route-update
// policy. It returns the effective new route (nil if nu should not
// replace old), whether Forwarder.addRoute must be invoked, and whether
// the path changed (gates debug printing).
//
// addRouteRequired is true whenever this call lands in the "insert",
// "invalid becomes valid", or "cost/timeout replace" branches, even if
// the resulting outLink happens to equal the old one. spec.md's design
// notes flag this as a known redundant-but-harmless call in the source
// this protocol is modeled on; it is preserved here rather than
// optimized away.
func updateRoute(old *Route, nu *Route, linkDown func(int) bool) (result *Route, addRouteRequired, pathChanged bool) {
	if linkDown(nu.OutLink) {
		return nil, false, false
	}

	if old == nil {
		return nu, true, true
	}

	if !old.Valid {
		merged := *old
		merged.Timestamp = nu.Timestamp
		merged.Cost = nu.Cost
		merged.Path = clonePath(nu.Path)
		merged.OutLink = nu.OutLink
		merged.Valid = true
		pathChanged = !samePath(merged.Path, old.Path) || merged.OutLink != old.OutLink
		return &merged, true, pathChanged
	}

	if samePath(old.Path, nu.Path) && old.OutLink == nu.OutLink {
		merged := *old
		merged.Timestamp = nu.Timestamp
		merged.Cost = nu.Cost
		return &merged, false, false
	}

	if nu.Cost < 0.9*old.Cost || nu.Timestamp-old.Timestamp >= 20 || linkDown(old.OutLink) {
		merged := *old
		merged.Timestamp = nu.Timestamp
		merged.Cost = nu.Cost
		merged.Path = clonePath(nu.Path)
		merged.OutLink = nu.OutLink
		return &merged, true, true
	}

	return nil, false, false
}

func samePath(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
