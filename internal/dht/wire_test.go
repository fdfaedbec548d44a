package dht

import (
	"net/netip"
	"testing"
)

func TestPacketEncodeDecodeRoundTrip(t *testing.T) {
	orig := Packet{
		Type: TypeGet, Key: "dungeons", Tag: 12345, TTL: 100,
	}
	decoded, err := Decode(orig.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != orig.Type || decoded.Key != orig.Key || decoded.Tag != orig.Tag || decoded.TTL != orig.TTL {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, orig)
	}
}

func TestPacketEncodeDecodeWithNodeInfoFields(t *testing.T) {
	adr := netip.MustParseAddrPort("10.0.0.1:5000")
	orig := Packet{
		Type: TypeSuccess, Tag: 1, TTL: 90,
		SuccInfo: NodeInfo{Addr: adr, FirstHash: 42}, HasSuccInfo: true,
		HashRange: HashRange{Left: 0, Right: 100}, HasHashRange: true,
	}
	decoded, err := Decode(orig.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.HasSuccInfo || !decoded.SuccInfo.Equal(orig.SuccInfo) {
		t.Fatalf("succInfo mismatch: got %+v", decoded.SuccInfo)
	}
	if !decoded.HasHashRange || decoded.HashRange != orig.HashRange {
		t.Fatalf("hashRange mismatch: got %+v", decoded.HashRange)
	}
}

func TestDecodeRejectsMissingHeader(t *testing.T) {
	if _, err := Decode("type:get\ntag:1\n"); err == nil {
		t.Fatalf("expected error for missing magic header")
	}
}

func TestDecodeRejectsMalformedField(t *testing.T) {
	if _, err := Decode(magicHeader + "\nnotafield\n"); err == nil {
		t.Fatalf("expected error for malformed field line")
	}
}
