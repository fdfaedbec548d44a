// Package substrate defines the datagram transport the forwarder and
// router sit on top of. The substrate itself — socket I/O, per-link
// admission control — is an external collaborator (spec.md §1); this
// package only pins down the interface both cores program against, plus
// a real UDP-backed implementation for the process entrypoints.
package substrate

import (
	"fmt"
	"net"
	"sync"

	"github.com/cse473-net/netlab/internal/overlay/packet"
)

// Substrate is the datagram transport a fixed set of neighbor links rides
// on. Link numbers index the neighbor set given at construction time.
// Incoming/Ready are nonblocking probes; Receive/Send never block for long
// once probed true/false.
type Substrate interface {
	// Incoming reports whether a packet is ready to Receive.
	Incoming() bool
	// Receive dequeues one inbound packet and the link it arrived on.
	Receive() (pkt packet.Packet, link int, err error)
	// Ready reports whether Send on link would not block.
	Ready(link int) bool
	// Send transmits pkt on link. Best-effort: substrates may drop.
	Send(pkt packet.Packet, link int) error
	// NumLinks returns the number of configured neighbor links.
	NumLinks() int
}

// UDP is a Substrate backed by one UDP socket per neighbor link, in the
// style of the teacher's per-link data-plane implementations
// (impl/udp_link.go): each link owns its own *net.UDPConn and a reader
// goroutine feeding a shared inbound channel tagged with the link number.
type UDP struct {
	conns   []*net.UDPConn
	inbound chan inboundPkt
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

type inboundPkt struct {
	pkt  packet.Packet
	link int
}

// NewUDP dials one UDP socket per neighbor address. local is the address
// to bind for receiving; neighbors[i] is the remote address for link i.
func NewUDP(local string, neighbors []string, queueDepth int) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp4", local)
	if err != nil {
		return nil, fmt.Errorf("substrate: resolve local: %w", err)
	}

	u := &UDP{
		inbound: make(chan inboundPkt, queueDepth),
		done:    make(chan struct{}),
	}
	for i, n := range neighbors {
		raddr, err := net.ResolveUDPAddr("udp4", n)
		if err != nil {
			u.Close()
			return nil, fmt.Errorf("substrate: resolve neighbor %d (%s): %w", i, n, err)
		}
		conn, err := net.DialUDP("udp4", laddr, raddr)
		if err != nil {
			u.Close()
			return nil, fmt.Errorf("substrate: dial neighbor %d (%s): %w", i, n, err)
		}
		u.conns = append(u.conns, conn)
		go u.readLoop(conn, i)
	}
	return u, nil
}

func (u *UDP) readLoop(conn *net.UDPConn, link int) {
	buf := make([]byte, 65535)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pkt, err := packet.Decode(buf[:n])
		if err != nil {
			continue
		}
		select {
		case u.inbound <- inboundPkt{pkt: pkt, link: link}:
		case <-u.done:
			return
		}
	}
}

func (u *UDP) Incoming() bool {
	return len(u.inbound) > 0
}

func (u *UDP) Receive() (packet.Packet, int, error) {
	select {
	case ip := <-u.inbound:
		return ip.pkt, ip.link, nil
	case <-u.done:
		return packet.Packet{}, -1, fmt.Errorf("substrate: closed")
	}
}

func (u *UDP) Ready(link int) bool {
	return link >= 0 && link < len(u.conns)
}

func (u *UDP) Send(pkt packet.Packet, link int) error {
	if !u.Ready(link) {
		return fmt.Errorf("substrate: no such link %d", link)
	}
	_, err := u.conns[link].Write(pkt.Encode())
	return err
}

func (u *UDP) NumLinks() int {
	return len(u.conns)
}

// Close releases every underlying socket. Safe to call more than once.
func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()
	close(u.done)

	var firstErr error
	for _, c := range u.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
