// Package forwarder implements the overlay packet forwarder: it owns the
// forwarding table and shuttles packets between the substrate, the local
// source/sink, and the local router (spec.md §4.1).
package forwarder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cse473-net/netlab/internal/overlay/packet"
	"github.com/cse473-net/netlab/internal/overlay/substrate"
)

// ErrQueueClosed denotes the "internal queue failure" spec.md §7 calls
// fatal. Forwarder has no Close method, and none of its methods returns
// this error.
var ErrQueueClosed = errors.New("forwarder: queue closed")

const (
	sinkQueueDepth   = 1000
	routerQueueDepth = 1000
	idlePoll         = time.Millisecond
)

// delivered is a payload handed off to the local source/sink, tagged with
// its originating address for Receive's (payload, srcAdrString) return.
type delivered struct {
	payload string
	srcAdr  uint32
}

// pktLink pairs a router-bound packet with the link it arrived on, or a
// router-originated packet with the link to send it on.
type pktLink struct {
	pkt  packet.Packet
	link int
}

// Stats is a snapshot of forwarding activity, supplemented per SPEC_FULL
// §5 for observability during grading/demo runs.
type Stats struct {
	Forwarded  uint64
	Dropped    uint64
	TTLExpired uint64
	NoRoute    uint64
}

// Forwarder is the packet forwarder described by spec.md §4.1. It is safe
// to call the source/sink and router-facing methods from any goroutine;
// Run must be driven by exactly one goroutine.
type Forwarder struct {
	myIp  uint32
	table *Table
	sub   substrate.Substrate
	log   *slog.Logger

	sinkOut chan delivered // substrate -> local sink, delivered via Receive
	srcIn   chan pktLink   // local source -> substrate, drained by Run

	rtrOut chan pktLink // substrate -> router, delivered via ReceivePkt
	rtrIn  chan pktLink // router -> substrate, drained by Run

	stats Stats
}

// New builds a Forwarder for node myIp, with a Table seeded with the
// default route on defaultLink.
func New(myIp uint32, defaultLink int, sub substrate.Substrate, log *slog.Logger) *Forwarder {
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{
		myIp:    myIp,
		table:   NewTable(defaultLink),
		sub:     sub,
		log:     log,
		sinkOut: make(chan delivered, sinkQueueDepth),
		srcIn:   make(chan pktLink, sinkQueueDepth),
		rtrOut:  make(chan pktLink, routerQueueDepth),
		rtrIn:   make(chan pktLink, routerQueueDepth),
	}
}

// AddRoute replaces prefix's link if present, otherwise appends. Safe to
// call concurrently with Run.
func (f *Forwarder) AddRoute(prefix packet.Prefix, link int) {
	f.table.AddRoute(prefix, link)
}

// Lookup returns the link of the longest prefix matching ip, or -1.
func (f *Forwarder) Lookup(ip uint32) int {
	return f.table.Lookup(ip)
}

// Snapshot returns the current Stats.
func (f *Forwarder) Snapshot() Stats {
	return f.stats
}

// ---- source/sink-facing API ----

// Send enqueues a new DATA packet to destAdrString. Blocks if the outgoing
// queue is full.
func (f *Forwarder) Send(payload, destAdrString string) error {
	dest, err := packet.ParseIP(destAdrString)
	if err != nil {
		return err
	}
	pkt := packet.Packet{
		SrcAdr:   f.myIp,
		DestAdr:  dest,
		Protocol: packet.ProtoData,
		Ttl:      packet.DefaultTTL,
		Payload:  payload,
	}
	f.srcIn <- pktLink{pkt: pkt}
	return nil
}

// Ready reports whether Send would not block.
func (f *Forwarder) Ready() bool {
	return len(f.srcIn) < cap(f.srcIn)
}

// Receive dequeues the next delivered payload; blocks if none is ready.
func (f *Forwarder) Receive() (payload string, srcAdrString string) {
	d := <-f.sinkOut
	return d.payload, packet.FormatIP(d.srcAdr)
}

// Incoming reports whether Receive would not block.
func (f *Forwarder) Incoming() bool {
	return len(f.sinkOut) > 0
}

// ---- router-facing API ----

// SendPkt enqueues a router control packet p to be sent on lnk.
func (f *Forwarder) SendPkt(p packet.Packet, lnk int) {
	f.rtrIn <- pktLink{pkt: p, link: lnk}
}

// Ready4Pkt reports whether SendPkt would not block.
func (f *Forwarder) Ready4Pkt() bool {
	return len(f.rtrIn) < cap(f.rtrIn)
}

// ReceivePkt dequeues the next router-bound packet and the link it
// arrived on; blocks if none is ready.
func (f *Forwarder) ReceivePkt() (packet.Packet, int) {
	pl := <-f.rtrOut
	return pl.pkt, pl.link
}

// IncomingPkt reports whether ReceivePkt would not block.
func (f *Forwarder) IncomingPkt() bool {
	return len(f.rtrOut) > 0
}

// Run drives the forwarder's cooperative main loop until ctx is canceled.
// Priorities, per spec.md §4.1: inbound-from-substrate, then
// router-outbox, then source-outbox, else idle sleep.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		progressed := true
		switch {
		case f.sub.Incoming():
			f.handleInbound()
		case len(f.rtrIn) > 0:
			progressed = f.drainRouterOut()
		case len(f.srcIn) > 0:
			f.drainSourceOut()
		default:
			progressed = false
		}
		if progressed {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idlePoll):
		}
	}
}

func (f *Forwarder) handleInbound() {
	pkt, link, err := f.sub.Receive()
	if err != nil {
		f.log.Debug("forwarder: receive error", "err", err)
		return
	}
	if pkt.DestAdr == f.myIp {
		switch pkt.Protocol {
		case packet.ProtoData:
			select {
			case f.sinkOut <- delivered{payload: pkt.Payload, srcAdr: pkt.SrcAdr}:
			default:
				f.stats.Dropped++
				f.log.Warn("forwarder: sink queue full, dropping", "src", packet.FormatIP(pkt.SrcAdr))
			}
		case packet.ProtoRouter:
			select {
			case f.rtrOut <- pktLink{pkt: pkt, link: link}:
			default:
				f.stats.Dropped++
				f.log.Warn("forwarder: router queue full, dropping")
			}
		default:
			f.stats.Dropped++
			f.log.Warn("forwarder: unknown protocol, dropping", "protocol", pkt.Protocol)
		}
		return
	}

	// Decrementing a TTL of 1 reaches zero, so such packets are dropped
	// here along with any that arrive already at 0.
	if pkt.Ttl <= 1 {
		f.stats.TTLExpired++
		f.log.Warn("forwarder: ttl expired, dropping", "dest", packet.FormatIP(pkt.DestAdr))
		return
	}
	pkt.Ttl--

	lnk := f.table.Lookup(pkt.DestAdr)
	if lnk < 0 {
		f.stats.NoRoute++
		f.log.Warn("forwarder: no route, dropping", "dest", packet.FormatIP(pkt.DestAdr))
		return
	}
	if !f.sub.Ready(lnk) {
		f.stats.Dropped++
		f.log.Debug("forwarder: link not ready, dropping", "link", lnk)
		return
	}
	if err := f.sub.Send(pkt, lnk); err != nil {
		f.stats.Dropped++
		f.log.Debug("forwarder: send failed, dropping", "link", lnk, "err", err)
		return
	}
	f.stats.Forwarded++
}

// drainRouterOut sends the next queued router-outbound packet, if any.
// It reports false when the packet it dequeued cannot be sent because
// its link isn't ready yet, so Run falls through to the idle sleep
// instead of busy-spinning on that link.
func (f *Forwarder) drainRouterOut() bool {
	select {
	case pl := <-f.rtrIn:
		if f.sub.Ready(pl.link) {
			if err := f.sub.Send(pl.pkt, pl.link); err != nil {
				f.stats.Dropped++
				f.log.Debug("forwarder: router send failed", "link", pl.link, "err", err)
				return true
			}
			f.stats.Forwarded++
			return true
		}
		// Not ready this tick; the router will not retry this exact
		// packet, matching spec.md §7's "transient... skipped this
		// iteration" characterization for the data plane. Put it back
		// so it's tried again next iteration.
		select {
		case f.rtrIn <- pl:
		default:
			f.stats.Dropped++
		}
		return false
	default:
		return true
	}
}

func (f *Forwarder) drainSourceOut() {
	select {
	case pl := <-f.srcIn:
		lnk := f.table.Lookup(pl.pkt.DestAdr)
		if lnk < 0 {
			f.stats.NoRoute++
			f.log.Warn("forwarder: no route for local send, dropping", "dest", packet.FormatIP(pl.pkt.DestAdr))
			return
		}
		if !f.sub.Ready(lnk) {
			select {
			case f.srcIn <- pl:
			default:
				f.stats.Dropped++
			}
			return
		}
		if err := f.sub.Send(pl.pkt, lnk); err != nil {
			f.stats.Dropped++
			return
		}
		f.stats.Forwarded++
	default:
	}
}
