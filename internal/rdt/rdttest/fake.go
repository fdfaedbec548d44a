// Package rdttest provides a deterministic, injectable Substrate double
// for exercising RDT's reliability logic without a real network, in the
// spirit of the teacher's mock package (mock/mock_dplink.go).
package rdttest

import (
	"fmt"
	"sync"

	"github.com/cse473-net/netlab/internal/rdt"
)

// DropRule reports whether to drop p, the sendIndex-th packet (0-indexed)
// sent through the Fake.
type DropRule func(p rdt.Packet, sendIndex int) bool

// Fake is a Substrate connecting two endpoints back to back through
// buffered channels, with programmable drop rules applied on Send.
type Fake struct {
	mu    sync.Mutex
	out   chan rdt.Packet
	in    chan rdt.Packet
	rules []DropRule
	sent  int
}

// NewPair builds two Fakes wired to each other: a's Send is b's Receive
// and vice versa.
func NewPair(depth int) (a, b *Fake) {
	ab := make(chan rdt.Packet, depth)
	ba := make(chan rdt.Packet, depth)
	a = &Fake{out: ab, in: ba}
	b = &Fake{out: ba, in: ab}
	return a, b
}

// DropOn installs a rule; packets it matches are silently swallowed on
// Send instead of reaching the peer.
func (f *Fake) DropOn(rule DropRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule)
}

func (f *Fake) Incoming() bool {
	return len(f.in) > 0
}

func (f *Fake) Receive() (rdt.Packet, error) {
	select {
	case p := <-f.in:
		return p, nil
	default:
		return rdt.Packet{}, fmt.Errorf("rdttest: nothing incoming")
	}
}

func (f *Fake) Ready() bool {
	return true
}

func (f *Fake) Send(p rdt.Packet) error {
	f.mu.Lock()
	idx := f.sent
	f.sent++
	drop := false
	for _, r := range f.rules {
		if r(p, idx) {
			drop = true
			break
		}
	}
	f.mu.Unlock()
	if drop {
		return nil
	}
	f.out <- p
	return nil
}

// Duplicate re-sends p immediately, bypassing drop rules, to simulate a
// substrate that occasionally duplicates a datagram.
func (f *Fake) Duplicate(p rdt.Packet) {
	f.out <- p
}
