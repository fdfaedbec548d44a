package forwarder

import (
	"context"
	"testing"
	"time"

	"github.com/cse473-net/netlab/internal/overlay/packet"
	"github.com/cse473-net/netlab/internal/overlay/substrate"
	"github.com/stretchr/testify/require"
)

// TestLongestPrefixMatch sets up spec.md §8 scenario 1: a forwarder with
// the default route on link 0 and a more specific route on link 2. It
// injects a matching packet and checks that Lookup picks link 2 for its
// destination and the default link 0 for an unrelated one; it does not
// inspect the packet sent on the link.
func TestLongestPrefixMatch(t *testing.T) {
	myIp, err := packet.ParseIP("10.9.0.1")
	require.NoError(t, err)
	dest, err := packet.ParseIP("10.1.2.3")
	require.NoError(t, err)
	morePfx, err := packet.ParsePrefix("10.1.0.0/16")
	require.NoError(t, err)

	sub := substrate.NewFake(3)
	fwd := New(myIp, 0, sub, nil)
	fwd.AddRoute(morePfx, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fwd.Run(ctx)

	sub.Inject(packet.Packet{
		SrcAdr:   0x0a000001,
		DestAdr:  dest,
		Protocol: packet.ProtoData,
		Ttl:      5,
		Payload:  "hi",
	}, 1) // arrival link is irrelevant to the routing decision

	require.Equal(t, 2, fwd.Lookup(dest))
	require.Equal(t, 0, fwd.Lookup(0xc0a80001)) // unrelated dest hits default

	time.Sleep(20 * time.Millisecond)
}

// TestLookupUnmatchedWithoutDefault verifies Lookup returns -1 once the
// table has no matching entry (spec.md §8: longest-prefix-match property).
func TestLookupUnmatchedWithoutDefault(t *testing.T) {
	tbl := &Table{}
	pfx, _ := packet.ParsePrefix("10.1.0.0/16")
	tbl.AddRoute(pfx, 2)
	ip, _ := packet.ParseIP("192.168.1.1")
	require.Equal(t, -1, tbl.Lookup(ip))
}

// TestTTLExpiry checks that a packet whose TTL hits zero is dropped and
// counted, not forwarded.
func TestTTLExpiry(t *testing.T) {
	myIp, _ := packet.ParseIP("10.9.0.1")
	dest, _ := packet.ParseIP("10.1.2.3")
	sub := substrate.NewFake(1)
	fwd := New(myIp, 0, sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fwd.Run(ctx)

	sub.Inject(packet.Packet{
		SrcAdr: 1, DestAdr: dest, Protocol: packet.ProtoData, Ttl: 0, Payload: "x",
	}, 0)

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, fwd.Snapshot().TTLExpired)
}

// TestDeliveredToSink verifies data packets addressed to myIp reach
// Receive with the correct source address.
func TestDeliveredToSink(t *testing.T) {
	myIp, _ := packet.ParseIP("10.0.0.1")
	src, _ := packet.ParseIP("10.0.0.2")
	sub := substrate.NewFake(1)
	fwd := New(myIp, 0, sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fwd.Run(ctx)

	sub.Inject(packet.Packet{
		SrcAdr: src, DestAdr: myIp, Protocol: packet.ProtoData, Ttl: 5, Payload: "hello",
	}, 0)

	payload, srcStr := fwd.Receive()
	require.Equal(t, "hello", payload)
	require.Equal(t, packet.FormatIP(src), srcStr)
}
