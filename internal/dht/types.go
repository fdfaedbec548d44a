package dht

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// HashRange is the closed interval [Left, Right] of hash values a node
// answers for, per spec.md §4.4. The initial node holds the whole
// nonnegative int32 range, [0, 2^31-1].
type HashRange struct {
	Left  uint32
	Right uint32
}

func (r HashRange) Contains(h uint32) bool {
	return r.Left <= h && h <= r.Right
}

func (r HashRange) String() string {
	return fmt.Sprintf("%d:%d", r.Left, r.Right)
}

func parseHashRange(s string) (HashRange, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return HashRange{}, fmt.Errorf("dht: malformed hashRange %q", s)
	}
	l, err := strconv.ParseUint(lo, 10, 32)
	if err != nil {
		return HashRange{}, fmt.Errorf("dht: malformed hashRange %q: %w", s, err)
	}
	h, err := strconv.ParseUint(hi, 10, 32)
	if err != nil {
		return HashRange{}, fmt.Errorf("dht: malformed hashRange %q: %w", s, err)
	}
	return HashRange{Left: uint32(l), Right: uint32(h)}, nil
}

// NodeInfo names a DHT peer by socket address and the first hash value
// it owns, the (adr, firstHash) pair used throughout spec.md §4.4 for
// predInfo, succInfo, and routing-table entries.
type NodeInfo struct {
	Addr      netip.AddrPort
	FirstHash uint32
}

func (n NodeInfo) String() string {
	return fmt.Sprintf("%s:%d", n.Addr, n.FirstHash)
}

func (n NodeInfo) Equal(o NodeInfo) bool {
	return n.Addr == o.Addr && n.FirstHash == o.FirstHash
}

func parseNodeInfo(s string) (NodeInfo, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return NodeInfo{}, fmt.Errorf("dht: malformed nodeInfo %q", s)
	}
	adrPart, hashPart := s[:idx], s[idx+1:]
	adr, err := netip.ParseAddrPort(adrPart)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("dht: malformed nodeInfo address %q: %w", adrPart, err)
	}
	h, err := strconv.ParseUint(hashPart, 10, 32)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("dht: malformed nodeInfo hash %q: %w", hashPart, err)
	}
	return NodeInfo{Addr: adr, FirstHash: uint32(h)}, nil
}

// parseAddrPort parses a bare "ip:port" pair carrying no hash suffix,
// used for clientAdr and relayAdr fields.
func parseAddrPort(s string) (netip.AddrPort, error) {
	return netip.ParseAddrPort(s)
}
