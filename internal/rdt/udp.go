package rdt

import (
	"fmt"
	"net"
)

// UDP is a point-to-point Substrate: a connected UDP socket carrying
// one Conn's DATA/ACK traffic to a single fixed peer.
type UDP struct {
	conn  *net.UDPConn
	inbox chan Packet
}

// NewUDP binds localAddr and connects to peerAddr, starting a
// background read loop that feeds the nonblocking Incoming/Receive
// probes.
func NewUDP(localAddr, peerAddr string, queueDepth int) (*UDP, error) {
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("rdt: resolve local %s: %w", localAddr, err)
	}
	peer, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return nil, fmt.Errorf("rdt: resolve peer %s: %w", peerAddr, err)
	}
	conn, err := net.DialUDP("udp", local, peer)
	if err != nil {
		return nil, fmt.Errorf("rdt: dial %s -> %s: %w", localAddr, peerAddr, err)
	}
	u := &UDP{conn: conn, inbox: make(chan Packet, queueDepth)}
	go u.readLoop()
	return u, nil
}

func (u *UDP) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, err := u.conn.Read(buf)
		if err != nil {
			return
		}
		p, err := Decode(buf[:n])
		if err != nil {
			continue
		}
		u.inbox <- p
	}
}

func (u *UDP) Incoming() bool {
	return len(u.inbox) > 0
}

func (u *UDP) Receive() (Packet, error) {
	select {
	case p := <-u.inbox:
		return p, nil
	default:
		return Packet{}, fmt.Errorf("rdt: nothing incoming")
	}
}

func (u *UDP) Ready() bool {
	return true
}

func (u *UDP) Send(p Packet) error {
	_, err := u.conn.Write(p.Encode())
	return err
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
