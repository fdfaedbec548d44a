package dht

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/time/rate"
)

// Substrate is the UDP transport a Server exchanges wire-format DHT
// packets over. Incoming/Receive are nonblocking probes, mirroring the
// overlay and RDT substrates' cooperative-polling contract.
type Substrate interface {
	Incoming() bool
	Receive() (Packet, netip.AddrPort, error)
	Send(p Packet, to netip.AddrPort) error
	LocalAddr() netip.AddrPort
	Close() error
}

// UDP is the real Substrate: a single bound UDP socket, per spec.md
// §4.4 ("Single UDP socket").
type UDP struct {
	conn *net.UDPConn

	mu      sync.Mutex
	closed  bool
	inbox   chan inbound
	limiter *rate.Limiter
}

type inbound struct {
	pkt  Packet
	from netip.AddrPort
}

// NewUDP binds a UDP socket at localAddr and starts a background read
// loop feeding the nonblocking Incoming/Receive probes.
func NewUDP(localAddr netip.AddrPort, queueDepth int) (*UDP, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(localAddr))
	if err != nil {
		return nil, fmt.Errorf("dht: listen %s: %w", localAddr, err)
	}
	u := &UDP{conn: conn, inbox: make(chan inbound, queueDepth)}
	go u.readLoop()
	return u, nil
}

func (u *UDP) readLoop() {
	buf := make([]byte, 8192)
	for {
		n, from, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		p, err := Decode(string(buf[:n]))
		if err != nil {
			continue
		}
		u.mu.Lock()
		closed := u.closed
		u.mu.Unlock()
		if closed {
			return
		}
		u.inbox <- inbound{pkt: p, from: from}
	}
}

func (u *UDP) Incoming() bool {
	return len(u.inbox) > 0
}

func (u *UDP) Receive() (Packet, netip.AddrPort, error) {
	select {
	case m := <-u.inbox:
		return m.pkt, m.from, nil
	default:
		return Packet{}, netip.AddrPort{}, fmt.Errorf("dht: nothing incoming")
	}
}

// SetRateLimit caps outbound packets to eventsPerSec with the given
// burst, protecting a node's socket from the packet storms join/leave
// key transfers can otherwise produce. Unset (the default) means
// unlimited.
func (u *UDP) SetRateLimit(eventsPerSec float64, burst int) {
	u.limiter = rate.NewLimiter(rate.Limit(eventsPerSec), burst)
}

func (u *UDP) Send(p Packet, to netip.AddrPort) error {
	if u.limiter != nil {
		if err := u.limiter.Wait(context.Background()); err != nil {
			return fmt.Errorf("dht: rate limit wait: %w", err)
		}
	}
	_, err := u.conn.WriteToUDPAddrPort([]byte(p.Encode()), to)
	return err
}

func (u *UDP) LocalAddr() netip.AddrPort {
	return u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (u *UDP) Close() error {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	return u.conn.Close()
}
