// Package rdt implements the reliable data transport described by
// spec.md §4.3: a go-back-N sliding-window protocol over an unreliable
// packet substrate, with wrap-around sequence numbers, fast retransmit on
// triple duplicate ACK, and timer-based retransmission.
package rdt

import (
	"encoding/binary"
	"fmt"
)

// Type distinguishes DATA from ACK packets.
type Type uint8

const (
	TypeData Type = 0
	TypeAck  Type = 1
)

// Packet is the RDT wire packet (spec.md §3): a 15-bit-ish sequence
// number (arithmetic performed modulo 2*W) and, for DATA, a payload.
type Packet struct {
	Type    Type
	SeqNum  uint16
	Payload string
}

// wire form: type(1) seqNum(2) payloadLen(2) payload(n)
const headerLen = 1 + 2 + 2

// Encode serializes p into its stable wire form.
func (p Packet) Encode() []byte {
	buf := make([]byte, headerLen+len(p.Payload))
	buf[0] = byte(p.Type)
	binary.BigEndian.PutUint16(buf[1:3], p.SeqNum)
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(p.Payload)))
	copy(buf[headerLen:], p.Payload)
	return buf
}

// Decode parses the wire form produced by Encode.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < headerLen {
		return Packet{}, fmt.Errorf("rdt: short header, got %d bytes", len(buf))
	}
	plen := int(binary.BigEndian.Uint16(buf[3:5]))
	if len(buf) < headerLen+plen {
		return Packet{}, fmt.Errorf("rdt: short payload, want %d have %d", plen, len(buf)-headerLen)
	}
	return Packet{
		Type:    Type(buf[0]),
		SeqNum:  binary.BigEndian.Uint16(buf[1:3]),
		Payload: string(buf[headerLen : headerLen+plen]),
	}, nil
}
