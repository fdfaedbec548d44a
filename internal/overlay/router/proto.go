package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cse473-net/netlab/internal/overlay/packet"
)

// magicHeader is the leading line every router control-plane payload
// starts with (spec.md §6).
const magicHeader = "RPv0"

// msgType enumerates the recognized control-plane message types.
type msgType string

const (
	msgHello    msgType = "hello"
	msgHelloAck msgType = "hello2u"
	msgAdvert   msgType = "advert"
	msgFadvert  msgType = "fadvert"
)

// helloMsg is the payload of a hello / hello2u packet.
type helloMsg struct {
	kind      msgType
	timestamp float64
}

func encodeHello(kind msgType, timestamp float64) string {
	return fmt.Sprintf("%s\ntype: %s\ntimestamp: %s\n", magicHeader, kind, formatTs(timestamp))
}

// advertMsg is the payload of an advert packet: one path-vector line.
type advertMsg struct {
	prefix    packet.Prefix
	timestamp float64
	cost      float64
	path      []uint32 // hop1..hopN, destination last
}

func encodeAdvert(a advertMsg) string {
	var b strings.Builder
	b.WriteString(magicHeader)
	b.WriteString("\ntype: advert\npathvec: ")
	b.WriteString(a.prefix.String())
	b.WriteByte(' ')
	b.WriteString(formatTs(a.timestamp))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(a.cost, 'f', 3, 64))
	for _, hop := range a.path {
		b.WriteByte(' ')
		b.WriteString(packet.FormatIP(hop))
	}
	b.WriteByte('\n')
	return b.String()
}

// fadvertMsg is the payload of a fadvert packet: a link-failure notice.
type fadvertMsg struct {
	peerA, peerB uint32
	timestamp    float64
	path         []uint32
}

func encodeFadvert(f fadvertMsg) string {
	var b strings.Builder
	b.WriteString(magicHeader)
	b.WriteString("\ntype: fadvert\nlinkfail: ")
	b.WriteString(packet.FormatIP(f.peerA))
	b.WriteByte(' ')
	b.WriteString(packet.FormatIP(f.peerB))
	b.WriteByte(' ')
	b.WriteString(formatTs(f.timestamp))
	for _, hop := range f.path {
		b.WriteByte(' ')
		b.WriteString(packet.FormatIP(hop))
	}
	b.WriteByte('\n')
	return b.String()
}

func formatTs(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 3, 64)
}

// parsedMsg is the discriminated union returned by parseMsg.
type parsedMsg struct {
	kind    msgType
	hello   helloMsg
	advert  advertMsg
	fadvert fadvertMsg
}

// parseMsg parses a control-plane payload, per spec.md §6/§7: a missing
// magic header, unknown type, or unparseable field is a protocol
// violation and is reported as an error, which callers must silently
// drop rather than propagate.
func parseMsg(payload string) (parsedMsg, error) {
	lines := strings.Split(strings.TrimRight(payload, "\n"), "\n")
	if len(lines) == 0 || lines[0] != magicHeader {
		return parsedMsg{}, fmt.Errorf("router: missing %s header", magicHeader)
	}
	fields := map[string]string{}
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	switch msgType(fields["type"]) {
	case msgHello, msgHelloAck:
		ts, err := strconv.ParseFloat(fields["timestamp"], 64)
		if err != nil {
			return parsedMsg{}, fmt.Errorf("router: bad hello timestamp: %w", err)
		}
		return parsedMsg{kind: msgType(fields["type"]), hello: helloMsg{kind: msgType(fields["type"]), timestamp: ts}}, nil
	case msgAdvert:
		a, err := parsePathvec(fields["pathvec"])
		if err != nil {
			return parsedMsg{}, err
		}
		return parsedMsg{kind: msgAdvert, advert: a}, nil
	case msgFadvert:
		f, err := parseLinkfail(fields["linkfail"])
		if err != nil {
			return parsedMsg{}, err
		}
		return parsedMsg{kind: msgFadvert, fadvert: f}, nil
	default:
		return parsedMsg{}, fmt.Errorf("router: unknown message type %q", fields["type"])
	}
}

func parsePathvec(s string) (advertMsg, error) {
	toks := strings.Fields(s)
	if len(toks) < 4 {
		return advertMsg{}, fmt.Errorf("router: pathvec too short: %q", s)
	}
	pfx, err := packet.ParsePrefix(toks[0])
	if err != nil {
		return advertMsg{}, fmt.Errorf("router: bad pathvec prefix: %w", err)
	}
	ts, err := strconv.ParseFloat(toks[1], 64)
	if err != nil {
		return advertMsg{}, fmt.Errorf("router: bad pathvec timestamp: %w", err)
	}
	cost, err := strconv.ParseFloat(toks[2], 64)
	if err != nil {
		return advertMsg{}, fmt.Errorf("router: bad pathvec cost: %w", err)
	}
	path := make([]uint32, 0, len(toks)-3)
	for _, hop := range toks[3:] {
		ip, err := packet.ParseIP(hop)
		if err != nil {
			return advertMsg{}, fmt.Errorf("router: bad pathvec hop: %w", err)
		}
		path = append(path, ip)
	}
	return advertMsg{prefix: pfx, timestamp: ts, cost: cost, path: path}, nil
}

func parseLinkfail(s string) (fadvertMsg, error) {
	toks := strings.Fields(s)
	if len(toks) < 3 {
		return fadvertMsg{}, fmt.Errorf("router: linkfail too short: %q", s)
	}
	a, err := packet.ParseIP(toks[0])
	if err != nil {
		return fadvertMsg{}, fmt.Errorf("router: bad linkfail peerA: %w", err)
	}
	b, err := packet.ParseIP(toks[1])
	if err != nil {
		return fadvertMsg{}, fmt.Errorf("router: bad linkfail peerB: %w", err)
	}
	ts, err := strconv.ParseFloat(toks[2], 64)
	if err != nil {
		return fadvertMsg{}, fmt.Errorf("router: bad linkfail timestamp: %w", err)
	}
	path := make([]uint32, 0, len(toks)-3)
	for _, hop := range toks[3:] {
		ip, err := packet.ParseIP(hop)
		if err != nil {
			return fadvertMsg{}, fmt.Errorf("router: bad linkfail hop: %w", err)
		}
		path = append(path, ip)
	}
	return fadvertMsg{peerA: a, peerB: b, timestamp: ts, path: path}, nil
}
