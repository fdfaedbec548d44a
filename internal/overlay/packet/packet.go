// Package packet defines the overlay's wire packet and the address/prefix
// arithmetic that the forwarder and router share.
package packet

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Protocol identifies the local consumer of a Packet once it reaches its
// destination.
type Protocol uint8

const (
	// ProtoData carries an application payload destined for the local
	// source/sink.
	ProtoData Protocol = 1
	// ProtoRouter carries a router control-plane message.
	ProtoRouter Protocol = 2
)

// DefaultTTL is the hop count new data packets are stamped with at the
// originating node.
const DefaultTTL = 100

// Packet is the overlay's only wire structure. SrcAdr/DestAdr are 32-bit
// dotted-quad IPv4 addresses, Payload is bounded text (protocol-dependent).
type Packet struct {
	SrcAdr   uint32
	DestAdr  uint32
	Protocol Protocol
	Ttl      uint8
	Payload  string
}

// wire form: srcAdr(4) destAdr(4) protocol(1) ttl(1) payloadLen(2) payload(n)
const headerLen = 4 + 4 + 1 + 1 + 2

// Encode serializes p into its stable wire form.
func (p Packet) Encode() []byte {
	buf := make([]byte, headerLen+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], p.SrcAdr)
	binary.BigEndian.PutUint32(buf[4:8], p.DestAdr)
	buf[8] = byte(p.Protocol)
	buf[9] = p.Ttl
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(p.Payload)))
	copy(buf[headerLen:], p.Payload)
	return buf
}

// Decode parses the wire form produced by Encode.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < headerLen {
		return Packet{}, fmt.Errorf("packet: short header, got %d bytes", len(buf))
	}
	plen := int(binary.BigEndian.Uint16(buf[10:12]))
	if len(buf) < headerLen+plen {
		return Packet{}, fmt.Errorf("packet: short payload, want %d have %d", plen, len(buf)-headerLen)
	}
	return Packet{
		SrcAdr:   binary.BigEndian.Uint32(buf[0:4]),
		DestAdr:  binary.BigEndian.Uint32(buf[4:8]),
		Protocol: Protocol(buf[8]),
		Ttl:      buf[9],
		Payload:  string(buf[headerLen : headerLen+plen]),
	}, nil
}

// ParseIP parses a dotted-quad string into its 32-bit integer form.
func ParseIP(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("packet: bad ip %q", s)
	}
	var v uint32
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, fmt.Errorf("packet: bad ip octet %q in %q", p, s)
		}
		v = v<<8 | uint32(n)
	}
	return v, nil
}

// FormatIP renders a 32-bit address as a dotted quad.
func FormatIP(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip>>24&0xff, ip>>16&0xff, ip>>8&0xff, ip&0xff)
}
