// Package dhttest provides an in-memory Substrate double for exercising
// DHT ring membership and forwarding logic without real sockets, in the
// spirit of the teacher's mock package.
package dhttest

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/cse473-net/netlab/internal/dht"
)

type msg struct {
	pkt  dht.Packet
	from netip.AddrPort
}

// Network is a shared switchboard connecting any number of Fake
// substrates addressed by netip.AddrPort.
type Network struct {
	mu    sync.Mutex
	nodes map[netip.AddrPort]*Fake
}

func NewNetwork() *Network {
	return &Network{nodes: make(map[netip.AddrPort]*Fake)}
}

// Fake is a Substrate bound to one address on a shared Network.
type Fake struct {
	net   *Network
	addr  netip.AddrPort
	inbox chan msg
}

func (n *Network) NewNode(addr netip.AddrPort) *Fake {
	f := &Fake{net: n, addr: addr, inbox: make(chan msg, 256)}
	n.mu.Lock()
	n.nodes[addr] = f
	n.mu.Unlock()
	return f
}

func (f *Fake) Incoming() bool {
	return len(f.inbox) > 0
}

func (f *Fake) Receive() (dht.Packet, netip.AddrPort, error) {
	select {
	case m := <-f.inbox:
		return m.pkt, m.from, nil
	default:
		return dht.Packet{}, netip.AddrPort{}, fmt.Errorf("dhttest: nothing incoming")
	}
}

func (f *Fake) Send(p dht.Packet, to netip.AddrPort) error {
	f.net.mu.Lock()
	peer, ok := f.net.nodes[to]
	f.net.mu.Unlock()
	if !ok {
		return fmt.Errorf("dhttest: no node at %s", to)
	}
	peer.inbox <- msg{pkt: p, from: f.addr}
	return nil
}

func (f *Fake) LocalAddr() netip.AddrPort {
	return f.addr
}

func (f *Fake) Close() error {
	return nil
}
