package rdt_test

import (
	"context"
	"testing"
	"time"

	"github.com/cse473-net/netlab/internal/netlog"
	"github.com/cse473-net/netlab/internal/rdt"
	"github.com/cse473-net/netlab/internal/rdt/rdttest"
	"github.com/stretchr/testify/require"
)

// TestGoBackNEndToEnd encodes spec.md §8 scenario 2: with W=4 and the
// substrate dropping only DATA seq 0, the receiver stays stuck at
// expSeqNum==0 and cumulatively ACKs 2W-1 for every later in-window
// arrival, so the sender sees 3 duplicate ACKs for seq 2W-1 and
// fast-retransmits the whole window, while the sink still observes
// every payload exactly once, in order, once the retransmit lands.
func TestGoBackNEndToEnd(t *testing.T) {
	subA, subB := rdttest.NewPair(64)

	log := netlog.Discard()
	cSend := rdt.New(4, subA, 200*time.Millisecond, log)
	cRecv := rdt.New(4, subB, 200*time.Millisecond, log)

	// Drop only DATA seq 0 (sent by the sender, subA, toward the
	// receiver).
	dropped := false
	subA.DropOn(func(p rdt.Packet, idx int) bool {
		if !dropped && p.Type == rdt.TypeData && p.SeqNum == 0 {
			dropped = true
			return true
		}
		return false
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cSend.Run(ctx)
	go cRecv.Run(ctx)

	payloads := []string{"A", "B", "C", "D", "E"}
	for _, p := range payloads {
		cSend.Send(p)
	}

	var got []string
	deadline := time.After(3 * time.Second)
	for len(got) < len(payloads) {
		select {
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		default:
		}
		if cRecv.Incoming() {
			got = append(got, cRecv.Receive())
		} else {
			time.Sleep(time.Millisecond)
		}
	}

	require.Equal(t, payloads, got)
	require.GreaterOrEqual(t, cSend.Snapshot().FastRetransmits, uint64(1))
}

// TestWindowBound checks diff(sendSeqNum, sendBase) never exceeds W: the
// sender must stall once the window is full until an ACK advances it.
func TestWindowBound(t *testing.T) {
	subA, subB := rdttest.NewPair(64)
	// Drop every DATA packet so the receiver never ACKs and the window
	// never advances.
	subA.DropOn(func(p rdt.Packet, idx int) bool { return p.Type == rdt.TypeData })

	log := netlog.Discard()
	cSend := rdt.New(2, subA, 50*time.Millisecond, log)
	cRecv := rdt.New(2, subB, 50*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cSend.Run(ctx)
	go cRecv.Run(ctx)

	for i := 0; i < 10; i++ {
		go cSend.Send(string(rune('a' + i)))
	}

	time.Sleep(150 * time.Millisecond)
	stats := cSend.Snapshot()
	// With W=2 and every DATA dropped, at most 2 distinct sequence
	// numbers should ever be outstanding; Sent should stop growing
	// unboundedly relative to retransmissions once the window fills.
	require.LessOrEqual(t, stats.Sent, uint64(2))
}
