package router

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/cse473-net/netlab/internal/overlay/packet"
)

// fakeFwdr is an in-process double for the router's Forwarder port,
// recording SendPkt calls and AddRoute calls for assertions.
type fakeFwdr struct {
	mu    sync.Mutex
	sent  []packet.Packet
	links []int
	added []addRouteCall
}

type addRouteCall struct {
	prefix packet.Prefix
	link   int
}

func (f *fakeFwdr) SendPkt(p packet.Packet, lnk int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	f.links = append(f.links, lnk)
}
func (f *fakeFwdr) Ready4Pkt() bool                      { return true }
func (f *fakeFwdr) ReceivePkt() (packet.Packet, int)     { return packet.Packet{}, -1 }
func (f *fakeFwdr) IncomingPkt() bool                    { return false }
func (f *fakeFwdr) AddRoute(prefix packet.Prefix, link int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, addRouteCall{prefix, link})
}

func mustIP(t *testing.T, s string) uint32 {
	t.Helper()
	ip, err := packet.ParseIP(s)
	require.NoError(t, err)
	return ip
}

func mustPfx(t *testing.T, s string) packet.Prefix {
	t.Helper()
	p, err := packet.ParsePrefix(s)
	require.NoError(t, err)
	return p
}

func newTestRouter(t *testing.T, myIp string, neighbors []string, fwdr Forwarder) *Router {
	var n []uint32
	for _, s := range neighbors {
		n = append(n, mustIP(t, s))
	}
	return New(Config{
		MyIp:            mustIP(t, myIp),
		Prefixes:        []packet.Prefix{mustPfx(t, "10.1.0.0/16")},
		Neighbors:       n,
		InitialLinkCost: 0.010,
	}, fwdr, nil)
}

// TestLoopFreeAdvert encodes spec.md §8 scenario 4: an advert whose path
// already contains myIp must never be accepted.
func TestLoopFreeAdvert(t *testing.T) {
	fwdr := &fakeFwdr{}
	r := newTestRouter(t, "10.2.0.1", []string{"10.1.0.1"}, fwdr)

	a := advertMsg{
		prefix:    mustPfx(t, "10.1.0.0/16"),
		timestamp: r.now(),
		cost:      0,
		path:      []uint32{mustIP(t, "10.2.0.1"), mustIP(t, "10.1.0.1")},
	}
	r.handleAdvert(0, a)

	require.Empty(t, r.Snapshot())
	require.Empty(t, fwdr.added)
}

// TestAdvertInstallsRouteAndUpdatesForwardingTable encodes spec.md §8
// scenario 3: router B receives A's advert and installs a route with
// cost = advertised cost + link cost, invoking Forwarder.addRoute.
func TestAdvertInstallsRouteAndUpdatesForwardingTable(t *testing.T) {
	fwdr := &fakeFwdr{}
	r := newTestRouter(t, "10.2.0.1", []string{"10.1.0.1"}, fwdr)
	r.links[0].Cost = NewEWMA(0.010)

	a := advertMsg{
		prefix:    mustPfx(t, "10.1.0.0/16"),
		timestamp: r.now(),
		cost:      0.010,
		path:      []uint32{mustIP(t, "10.1.0.1")},
	}
	r.handleAdvert(0, a)

	routes := r.Snapshot()
	rt, ok := routes["10.1.0.0/16"]
	require.True(t, ok)

	want := Route{
		Prefix:  mustPfx(t, "10.1.0.0/16"),
		Cost:    0.020,
		Path:    []uint32{mustIP(t, "10.1.0.1")},
		OutLink: 0,
		Valid:   true,
	}
	diff := cmp.Diff(want, rt,
		cmpopts.IgnoreFields(Route{}, "Timestamp"),
		cmpopts.EquateApprox(0, 1e-9),
	)
	if diff != "" {
		t.Fatalf("route mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, fwdr.added, 1)
	require.Equal(t, 0, fwdr.added[0].link)
}

// TestHelloLiveness encodes spec.md §8: after 3 consecutive missed hello
// replies, every route whose first hop is that peer becomes invalid.
func TestHelloLiveness(t *testing.T) {
	fwdr := &fakeFwdr{}
	r := newTestRouter(t, "10.2.0.1", []string{"10.1.0.1"}, fwdr)
	r.routes["10.1.0.0/16"] = &Route{
		Prefix:  mustPfx(t, "10.1.0.0/16"),
		Cost:    0.02,
		Path:    []uint32{mustIP(t, "10.1.0.1")},
		OutLink: 0,
		Valid:   true,
	}

	for i := 0; i < 3; i++ {
		r.sendHellos()
	}

	require.Equal(t, 0, r.links[0].HelloState)
	require.True(t, r.links[0].Down())
	require.False(t, r.Snapshot()["10.1.0.0/16"].Valid)
}

// TestEWMAContract encodes spec.md §8: after k successful RTT samples,
// cost equals the iterated alpha=0.1 EWMA of r_i/2.
func TestEWMAContract(t *testing.T) {
	e := NewEWMA(0.05)
	samples := []float64{0.02, 0.03, 0.01}
	want := 0.05
	for _, s := range samples {
		half := s / 2
		want = 0.9*want + 0.1*half
		got := e.Update(half)
		require.InDelta(t, want, got, 1e-12)
	}
	require.Equal(t, len(samples), e.Count)
}
