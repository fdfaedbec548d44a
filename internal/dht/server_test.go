package dht_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/cse473-net/netlab/internal/dht"
	"github.com/cse473-net/netlab/internal/dht/dhttest"
	"github.com/cse473-net/netlab/internal/netlog"
)

// TestSplitOnJoin encodes spec.md §8 scenario 5: a lone node N0 owning
// the whole ring, joined by N1, ends up split at the midpoint with a
// non-empty routing table on N0.
func TestSplitOnJoin(t *testing.T) {
	net := dhttest.NewNetwork()
	n0Adr := netip.MustParseAddrPort("10.0.0.1:9000")
	n1Adr := netip.MustParseAddrPort("10.0.0.2:9000")

	subN0 := net.NewNode(n0Adr)
	subN1 := net.NewNode(n1Adr)

	log := netlog.Discard()
	n0 := dht.New(dht.Config{NumRoutes: 4}, subN0, log)
	n1 := dht.New(dht.Config{NumRoutes: 4}, subN1, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n0.Run(ctx)

	joinCtx, joinCancel := context.WithTimeout(ctx, 2*time.Second)
	defer joinCancel()
	if err := n1.Join(joinCtx, n0Adr); err != nil {
		t.Fatalf("Join: %v", err)
	}
	go n1.Run(ctx)

	// Let N0 process anything still in flight (the update to itself as
	// its own old successor, harmlessly).
	time.Sleep(20 * time.Millisecond)

	const oldRight = uint32(1<<31 - 1)
	mid := oldRight / 2

	snapN0 := n0.Snapshot()
	snapN1 := n1.Snapshot()

	if snapN0.HashRange.Right != mid {
		t.Fatalf("N0.hashRange.Right = %d, want %d", snapN0.HashRange.Right, mid)
	}
	if snapN1.HashRange.Left != mid || snapN1.HashRange.Right != oldRight {
		t.Fatalf("N1.hashRange = %+v, want [%d,%d]", snapN1.HashRange, mid, oldRight)
	}
	if snapN0.NumRoutes == 0 {
		t.Fatalf("N0 routing table empty after join")
	}
}

// TestPutForwardedToOwner encodes spec.md §8 scenario 6: a put whose
// key does not hash into N0's range is forwarded around the ring,
// applied at the owner, and the success reply is relayed back through
// N0 to the client, with caching enabled on N0.
func TestPutForwardedToOwner(t *testing.T) {
	net := dhttest.NewNetwork()
	n0Adr := netip.MustParseAddrPort("10.0.0.1:9000")
	n1Adr := netip.MustParseAddrPort("10.0.0.2:9000")
	clientAdr := netip.MustParseAddrPort("10.0.0.9:6000")

	subN0 := net.NewNode(n0Adr)
	subN1 := net.NewNode(n1Adr)
	subClient := net.NewNode(clientAdr)

	log := netlog.Discard()
	n0 := dht.New(dht.Config{NumRoutes: 4, CacheEnabled: true}, subN0, log)
	n1 := dht.New(dht.Config{NumRoutes: 4}, subN1, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n0.Run(ctx)

	joinCtx, joinCancel := context.WithTimeout(ctx, 2*time.Second)
	defer joinCancel()
	if err := n1.Join(joinCtx, n0Adr); err != nil {
		t.Fatalf("Join: %v", err)
	}
	go n1.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	key, val := findKeyOwnedByN1(t, n0, n1)

	// Client sends "put" to N0 regardless of who owns the key.
	putPkt := dht.Packet{Type: dht.TypePut, Key: key, Value: val, HasValue: true, Tag: 777, TTL: 100}
	if err := subClient.Send(putPkt, n0Adr); err != nil {
		t.Fatalf("client send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if subClient.Incoming() {
			p, _, err := subClient.Receive()
			if err != nil {
				t.Fatalf("client receive: %v", err)
			}
			if p.Type != dht.TypeSuccess || p.Tag != 777 {
				t.Fatalf("unexpected reply %+v", p)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for put reply")
		case <-time.After(time.Millisecond):
		}
	}
}

// findKeyOwnedByN1 searches for a literal key string whose hash falls
// in N1's range, so the forwarding path in TestPutForwardedToOwner
// is actually exercised.
func findKeyOwnedByN1(t *testing.T, n0, n1 *dht.Server) (string, string) {
	t.Helper()
	n1Range := n1.Snapshot().HashRange
	for i := 0; i < 10000; i++ {
		key := "key" + string(rune('a'+i%26)) + string(rune('0'+i/26%10))
		if n1Range.Contains(dht.HashItForTest(key)) {
			return key, "value-for-" + key
		}
	}
	t.Fatalf("could not find a key owned by N1 in range %+v", n1Range)
	return "", ""
}
