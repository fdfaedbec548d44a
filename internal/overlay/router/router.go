// Package router implements the path-vector routing daemon described by
// spec.md §4.2: hello/keepalive, route advertisement, link-failure
// advertisement, and EWMA round-trip cost tracking.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cse473-net/netlab/internal/overlay/packet"
)

const (
	helloInterval    = 1.0  // seconds
	advertInterval   = 10.0 // seconds
	idlePoll         = time.Millisecond
	staleRouteWindow = 20.0 // seconds; see updateRoute's timestamp clause
)

// Forwarder is the subset of forwarder.Forwarder the router drives: the
// router-facing packet queues and the shared forwarding table.
type Forwarder interface {
	SendPkt(p packet.Packet, lnk int)
	Ready4Pkt() bool
	ReceivePkt() (packet.Packet, int)
	IncomingPkt() bool
	AddRoute(prefix packet.Prefix, link int)
}

// Config configures a Router at construction time.
type Config struct {
	MyIp uint32
	// Prefixes this router originates; spec.md §4.2 only ever advertises
	// Prefixes[0].
	Prefixes []packet.Prefix
	// Neighbors[i] is the IP of the peer reachable over link i.
	Neighbors []uint32
	// InitialLinkCost seeds each LinkInfo's EWMA before any hello RTT
	// sample arrives.
	InitialLinkCost float64
	// Debug is the debug verbosity (0, 1, or 2) from spec.md §4.2.
	Debug int
	// FailureAdvertEnabled toggles spec.md §4.2's optional
	// sendFailureAdvert on link-down detection.
	FailureAdvertEnabled bool
}

// Router is the path-vector routing daemon.
type Router struct {
	myIp                 uint32
	pfxList              []packet.Prefix
	links                []*LinkInfo
	failureAdvertEnabled bool
	debug                int

	fwdr Forwarder
	log  *slog.Logger

	mu     sync.Mutex
	routes map[string]*Route // keyed by Prefix.String()

	t0         time.Time
	helloTime  float64
	pvSendTime float64
}

// New builds a Router. cfg.Neighbors[i] is dialed on link i via fwdr.
func New(cfg Config, fwdr Forwarder, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		myIp:                 cfg.MyIp,
		pfxList:              cfg.Prefixes,
		failureAdvertEnabled: cfg.FailureAdvertEnabled,
		debug:                cfg.Debug,
		fwdr:                 fwdr,
		log:                  log,
		routes:               map[string]*Route{},
		t0:                   time.Now(),
	}
	for _, n := range cfg.Neighbors {
		r.links = append(r.links, NewLinkInfo(n, cfg.InitialLinkCost))
	}
	return r
}

func (r *Router) now() float64 {
	return nowSince(r.t0)
}

// Run drives the router's cooperative main loop until ctx is canceled.
// Priorities, per spec.md §4.2: hello timer, advert timer, then inbound
// packet processing, else idle sleep.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		now := r.now()
		switch {
		case now >= r.helloTime+helloInterval:
			r.sendHellos()
			r.helloTime = now
		case now >= r.pvSendTime+advertInterval:
			r.sendAdverts()
			r.pvSendTime = now
		case r.fwdr.IncomingPkt():
			r.handleIncoming()
		default:
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idlePoll):
			}
		}
	}
}

// ---- hello subprotocol (spec.md §4.2) ----

func (r *Router) sendHellos() {
	now := r.now()
	r.mu.Lock()
	for i, l := range r.links {
		if !l.GotReply && l.HelloState > 0 {
			l.HelloState--
		}
		if l.HelloState == 0 {
			r.invalidateRoutesVia(l.PeerIp)
			if r.debug >= 2 {
				r.printTableLocked()
			}
			if r.failureAdvertEnabled {
				r.sendFailureAdvertLocked(i)
			}
		}
		l.GotReply = false
		payload := encodeHello(msgHello, now)
		r.fwdr.SendPkt(packet.Packet{
			SrcAdr:   r.myIp,
			DestAdr:  l.PeerIp,
			Protocol: packet.ProtoRouter,
			Ttl:      1,
			Payload:  payload,
		}, i)
	}
	r.mu.Unlock()
}

// invalidateRoutesVia marks every route whose first path hop is peerIp
// invalid, per spec.md §4.2's hello-liveness handler. Caller holds r.mu.
func (r *Router) invalidateRoutesVia(peerIp uint32) {
	for _, rt := range r.routes {
		if len(rt.Path) > 0 && rt.Path[0] == peerIp {
			rt.Valid = false
		}
	}
}

func (r *Router) handleHello(from uint32, link int, ts float64) {
	payload := encodeHello(msgHelloAck, ts)
	r.fwdr.SendPkt(packet.Packet{
		SrcAdr:   r.myIp,
		DestAdr:  from,
		Protocol: packet.ProtoRouter,
		Ttl:      1,
		Payload:  payload,
	}, link)
}

func (r *Router) handleHelloAck(link int, ts float64) {
	now := r.now()
	rtt := now - ts

	r.mu.Lock()
	defer r.mu.Unlock()
	if link < 0 || link >= len(r.links) {
		return
	}
	l := r.links[link]
	l.Cost.Update(rtt / 2)
	l.HelloState = 3
	l.GotReply = true
}

// ---- advertisement (spec.md §4.2) ----

func (r *Router) sendAdverts() {
	if len(r.pfxList) == 0 {
		return
	}
	pfx := r.pfxList[0]
	payload := encodeAdvert(advertMsg{
		prefix:    pfx,
		timestamp: r.now(),
		cost:      0.000,
		path:      []uint32{r.myIp},
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.links {
		r.fwdr.SendPkt(packet.Packet{
			SrcAdr:   r.myIp,
			DestAdr:  l.PeerIp,
			Protocol: packet.ProtoRouter,
			Ttl:      1,
			Payload:  payload,
		}, i)
	}
}

func (r *Router) handleAdvert(link int, a advertMsg) {
	if containsIP(a.path, r.myIp) {
		return // loop prevention
	}
	if link < 0 || link >= len(r.links) {
		return
	}

	r.mu.Lock()
	l := r.links[link]
	nu := &Route{
		Prefix:    a.prefix,
		Timestamp: a.timestamp,
		Cost:      a.cost + l.Cost.Value(),
		Path:      clonePath(a.path),
		OutLink:   link,
		Valid:     true,
	}
	key := a.prefix.String()
	old := r.routes[key]
	result, addRouteRequired, pathChanged := updateRoute(old, nu, func(lnk int) bool {
		return lnk < 0 || lnk >= len(r.links) || r.links[lnk].Down()
	})
	if result == nil {
		r.mu.Unlock()
		return
	}
	r.routes[key] = result

	if pathChanged && r.debug > 0 {
		r.printTableLocked()
	}
	myIp := r.myIp
	readvertPath := prependIP(myIp, result.Path)
	readvertMsg := advertMsg{
		prefix:    result.Prefix,
		timestamp: result.Timestamp,
		cost:      result.Cost,
		path:      readvertPath,
	}
	skipLink := result.OutLink
	links := r.links
	r.mu.Unlock()

	if addRouteRequired {
		r.fwdr.AddRoute(result.Prefix, result.OutLink)
	}

	// spec.md §4.2: re-advertise on every successful updateRoute, not
	// only when the path changed — a refreshed timestamp/cost on an
	// otherwise unchanged path must still propagate past this hop, or
	// multi-hop cost convergence and the 20s staleness rule stall.
	r.rebroadcastAdvert(readvertMsg, skipLink, links)
}

func (r *Router) rebroadcastAdvert(a advertMsg, skipLink int, links []*LinkInfo) {
	payload := encodeAdvert(a)
	for i, l := range links {
		if i == skipLink || l.Down() {
			continue
		}
		r.fwdr.SendPkt(packet.Packet{
			SrcAdr:   r.myIp,
			DestAdr:  l.PeerIp,
			Protocol: packet.ProtoRouter,
			Ttl:      1,
			Payload:  payload,
		}, i)
	}
}

// ---- failure advertisement (spec.md §4.2) ----

// sendFailureAdvertLocked sends a fadvert for the link i that just went
// down. Caller holds r.mu.
func (r *Router) sendFailureAdvertLocked(i int) {
	l := r.links[i]
	msg := fadvertMsg{
		peerA:     r.myIp,
		peerB:     l.PeerIp,
		timestamp: r.now(),
		path:      []uint32{r.myIp},
	}
	payload := encodeFadvert(msg)
	for j, other := range r.links {
		if j == i || other.Down() {
			continue
		}
		r.fwdr.SendPkt(packet.Packet{
			SrcAdr:   r.myIp,
			DestAdr:  other.PeerIp,
			Protocol: packet.ProtoRouter,
			Ttl:      1,
			Payload:  payload,
		}, j)
	}
}

func (r *Router) handleFadvert(link int, f fadvertMsg) {
	if containsIP(f.path, r.myIp) {
		return
	}

	r.mu.Lock()
	now := r.now()
	changed := false
	for _, rt := range r.routes {
		if adjacentPairInPath(rt.Path, f.peerA, f.peerB) {
			rt.Valid = false
			rt.Timestamp = now
			changed = true
		}
	}
	if !changed {
		r.mu.Unlock()
		return
	}
	newPath := prependIP(r.myIp, f.path)
	links := r.links
	r.mu.Unlock()

	msg := fadvertMsg{peerA: f.peerA, peerB: f.peerB, timestamp: now, path: newPath}
	payload := encodeFadvert(msg)
	for i, l := range links {
		if i == link || l.Down() {
			continue
		}
		r.fwdr.SendPkt(packet.Packet{
			SrcAdr:   r.myIp,
			DestAdr:  l.PeerIp,
			Protocol: packet.ProtoRouter,
			Ttl:      1,
			Payload:  payload,
		}, i)
	}
}

// adjacentPairInPath reports whether the path contains ipA immediately
// followed by ipB (in that order), i.e. the edge A->B along the path.
func adjacentPairInPath(path []uint32, a, b uint32) bool {
	for i := 0; i+1 < len(path); i++ {
		if path[i] == a && path[i+1] == b {
			return true
		}
	}
	return false
}

// ---- inbound dispatch ----

func (r *Router) handleIncoming() {
	pkt, link := r.fwdr.ReceivePkt()
	msg, err := parseMsg(pkt.Payload)
	if err != nil {
		r.log.Debug("router: dropping malformed control packet", "err", err)
		return
	}
	switch msg.kind {
	case msgHello:
		r.handleHello(pkt.SrcAdr, link, msg.hello.timestamp)
	case msgHelloAck:
		r.handleHelloAck(link, msg.hello.timestamp)
	case msgAdvert:
		r.handleAdvert(link, msg.advert)
	case msgFadvert:
		r.handleFadvert(link, msg.fadvert)
	}
}

// ---- debug ----

// printTableLocked logs the current routing table at Debug level. Caller
// holds r.mu.
func (r *Router) printTableLocked() {
	for pfx, rt := range r.routes {
		r.log.Debug("router: table",
			"prefix", pfx,
			"valid", rt.Valid,
			"cost", rt.Cost,
			"outLink", rt.OutLink,
			"path", fmt.Sprint(rt.Path),
		)
	}
}

// Snapshot returns a defensive copy of the routing table, for tests and
// diagnostics.
func (r *Router) Snapshot() map[string]Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Route, len(r.routes))
	for k, v := range r.routes {
		out[k] = *v
	}
	return out
}

// LinkSnapshot returns a defensive copy of link i's state.
func (r *Router) LinkSnapshot(i int) LinkInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := *r.links[i]
	return l
}
