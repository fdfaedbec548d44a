package dht

import (
	"net/netip"
	"testing"
)

func mustNode(s string, hash uint32) NodeInfo {
	return NodeInfo{Addr: netip.MustParseAddrPort(s), FirstHash: hash}
}

func TestRouteTableSuccPinnedAtIndexZero(t *testing.T) {
	me := mustNode("10.0.0.1:9000", 0)
	succ := mustNode("10.0.0.2:9000", 10)
	rt := newRouteTable(3, nil)
	rt.addRoute(mustNode("10.0.0.3:9000", 20), me, false)
	rt.addRoute(succ, me, true)
	if rt.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rt.Len())
	}
	if !rt.Snapshot()[0].Equal(succ) {
		t.Fatalf("succInfo not pinned at index 0: %+v", rt.Snapshot())
	}
}

func TestRouteTableBoundedAtNumRoutes(t *testing.T) {
	me := mustNode("10.0.0.1:9000", 0)
	rt := newRouteTable(2, nil)
	rt.addRoute(mustNode("10.0.0.2:9000", 1), me, false)
	rt.addRoute(mustNode("10.0.0.3:9000", 2), me, false)
	rt.addRoute(mustNode("10.0.0.4:9000", 3), me, false)
	if rt.Len() > 2 {
		t.Fatalf("Len() = %d, want <= 2", rt.Len())
	}
}

func TestRouteTableIgnoresMyInfo(t *testing.T) {
	me := mustNode("10.0.0.1:9000", 0)
	rt := newRouteTable(3, nil)
	rt.addRoute(me, me, false)
	if rt.Len() != 0 {
		t.Fatalf("expected myInfo to be ignored, Len() = %d", rt.Len())
	}
}

func TestRouteTableRemoveRoute(t *testing.T) {
	me := mustNode("10.0.0.1:9000", 0)
	other := mustNode("10.0.0.2:9000", 5)
	rt := newRouteTable(3, nil)
	rt.addRoute(other, me, false)
	rt.removeRoute(other)
	if rt.Len() != 0 {
		t.Fatalf("expected route removed, Len() = %d", rt.Len())
	}
}
