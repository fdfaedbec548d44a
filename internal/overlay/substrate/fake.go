package substrate

import (
	"fmt"
	"sync"

	"github.com/cse473-net/netlab/internal/overlay/packet"
)

// Fake is an in-process Substrate for tests, mirroring the teacher's
// mock/mock_dplink.go: each link is a pair of buffered channels connecting
// two Fake instances constructed by Wire, plus optional drop injection.
type Fake struct {
	mu       sync.Mutex
	links    []*fakeLink
	dropNext map[int]bool
}

type fakeLink struct {
	out  chan packet.Packet
	in   chan packet.Packet
	down bool
}

// NewFake builds a Fake with n links, none of them wired to a peer yet.
// Use Wire to connect two Fakes' links back to back.
func NewFake(n int) *Fake {
	f := &Fake{dropNext: map[int]bool{}}
	for i := 0; i < n; i++ {
		f.links = append(f.links, &fakeLink{
			out: make(chan packet.Packet, 1000),
			in:  make(chan packet.Packet, 1000),
		})
	}
	return f
}

// Wire connects a's link la to b's link lb: sends on one arrive on the
// other.
func Wire(a *Fake, la int, b *Fake, lb int) {
	a.links[la].out = b.links[lb].in
	b.links[lb].out = a.links[la].in
}

// Inject delivers pkt as if it had arrived on link, without going through
// a wired peer. Used by tests that want to hand-craft an inbound packet.
func (f *Fake) Inject(pkt packet.Packet, link int) {
	f.links[link].in <- pkt
}

// SetDown marks link as down: Ready returns false and Send is dropped.
func (f *Fake) SetDown(link int, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[link].down = down
}

// DropNext arranges for the next Send on link to be silently swallowed,
// simulating a substrate that couldn't admit the packet.
func (f *Fake) DropNext(link int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropNext[link] = true
}

func (f *Fake) Incoming() bool {
	for _, l := range f.links {
		if len(l.in) > 0 {
			return true
		}
	}
	return false
}

func (f *Fake) Receive() (packet.Packet, int, error) {
	for {
		for i, l := range f.links {
			select {
			case p := <-l.in:
				return p, i, nil
			default:
			}
		}
	}
}

func (f *Fake) Ready(link int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if link < 0 || link >= len(f.links) {
		return false
	}
	return !f.links[link].down
}

func (f *Fake) Send(pkt packet.Packet, link int) error {
	f.mu.Lock()
	if link < 0 || link >= len(f.links) {
		f.mu.Unlock()
		return fmt.Errorf("fake substrate: no such link %d", link)
	}
	if f.links[link].down {
		f.mu.Unlock()
		return fmt.Errorf("fake substrate: link %d down", link)
	}
	if f.dropNext[link] {
		delete(f.dropNext, link)
		f.mu.Unlock()
		return nil
	}
	out := f.links[link].out
	f.mu.Unlock()
	if out == nil {
		return fmt.Errorf("fake substrate: link %d not wired", link)
	}
	out <- pkt
	return nil
}

func (f *Fake) NumLinks() int {
	return len(f.links)
}
