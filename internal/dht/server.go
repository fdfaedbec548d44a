package dht

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const idlePoll = time.Millisecond

// Config is the fixed set of parameters a Server is constructed with,
// mirroring DhtServer's CLI arguments (spec.md §6).
type Config struct {
	NumRoutes    int
	CacheEnabled bool
}

// Server is a single Chord-style DHT node (spec.md §4.4). The zero
// value is not usable; construct with New. Run drives the node's
// cooperative polling loop; Join and Leave are blocking calls meant to
// be issued before/around Run from the owning goroutine.
type Server struct {
	cfg Config
	sub Substrate
	log *slog.Logger

	mu        sync.Mutex
	myInfo    NodeInfo
	predInfo  NodeInfo
	hasPred   bool
	succInfo  NodeInfo
	hasSucc   bool
	hashRange HashRange
	kv        map[string]string
	cache     *ttlcache.Cache[string, string]
	rte       *routeTable

	sendTag  atomic.Uint64
	stopFlag atomic.Bool
	quit     atomic.Bool
}

// New constructs a Server that will own the entire ring on first use
// (hashRange = [0, 2^31-1]); call Join before Run to attach to an
// existing ring instead.
func New(cfg Config, sub Substrate, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg: cfg,
		sub: sub,
		log: log,
		kv:  make(map[string]string),
		rte: newRouteTable(cfg.NumRoutes, log),
	}
	s.myInfo = NodeInfo{Addr: sub.LocalAddr(), FirstHash: 0}
	// A freshly started node is a ring of one: succ and pred both
	// point to itself until Join contacts an existing ring.
	s.succInfo = s.myInfo
	s.hasSucc = true
	s.predInfo = s.myInfo
	s.hasPred = true
	s.hashRange = HashRange{Left: 0, Right: 1<<31 - 1}
	s.sendTag.Store(12345)
	if cfg.CacheEnabled {
		s.cache = ttlcache.New[string, string]()
	}
	return s
}

func (s *Server) nextTag() uint64 {
	return s.sendTag.Add(1)
}

func (s *Server) send(p Packet, to netip.AddrPort) {
	if err := s.sub.Send(p, to); err != nil {
		s.log.Debug("dht: send failed", "to", to, "err", err)
	}
}

// Snapshot reports the node's current ring-membership state, backing
// the additive ping/pong diagnostic (SPEC_FULL §8).
type Snapshot struct {
	MyInfo    NodeInfo
	PredInfo  NodeInfo
	HasPred   bool
	SuccInfo  NodeInfo
	HasSucc   bool
	HashRange HashRange
	NumRoutes int
}

func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		MyInfo:    s.myInfo,
		PredInfo:  s.predInfo,
		HasPred:   s.hasPred,
		SuccInfo:  s.succInfo,
		HasSucc:   s.hasSucc,
		HashRange: s.hashRange,
		NumRoutes: s.rte.Len(),
	}
}

// Quit arranges for Run to return at the next iteration boundary.
func (s *Server) Quit() {
	s.quit.Store(true)
}

// Run drives the node's receive loop until Quit is called or ctx is
// canceled: a single-threaded cooperative poll with a ~1ms idle sleep,
// per spec.md §5.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if s.quit.Load() {
			return nil
		}
		if s.sub.Incoming() {
			p, from, err := s.sub.Receive()
			if err != nil {
				continue
			}
			s.handlePacket(p, from)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idlePoll):
		}
	}
}

// Join attaches this node to an existing ring by contacting predAdr,
// blocking until the "success" reply arrives (spec.md §4.4). Any
// packet type besides "success" received while waiting is discarded,
// matching the original join loop's behavior.
func (s *Server) Join(ctx context.Context, predAdr netip.AddrPort) error {
	s.mu.Lock()
	joinPkt := Packet{Type: TypeJoin, Tag: s.nextTag()}
	s.mu.Unlock()
	s.send(joinPkt, predAdr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !s.sub.Incoming() {
			time.Sleep(idlePoll)
			continue
		}
		p, from, err := s.sub.Receive()
		if err != nil {
			continue
		}
		if p.Type != TypeSuccess {
			continue
		}
		s.handlePacket(p, from)
		return nil
	}
}

// Leave detaches this node from the ring: it notifies its successor,
// spin-waits for the leave packet to circle back, updates its
// neighbors, and transfers every local key to its predecessor
// (spec.md §4.4).
func (s *Server) Leave() {
	s.mu.Lock()
	succ, pred := s.succInfo, s.predInfo
	myInfo := s.myInfo
	hashRange := s.hashRange
	tag := s.nextTag()
	s.mu.Unlock()

	s.send(Packet{Type: TypeLeave, Tag: tag, SenderInfo: myInfo, HasSenderInfo: true}, succ.Addr)

	for !s.stopFlag.Load() {
		if s.sub.Incoming() {
			p, from, err := s.sub.Receive()
			if err == nil {
				s.handlePacket(p, from)
			}
			continue
		}
		time.Sleep(idlePoll)
	}

	s.send(Packet{
		Type: TypeUpdate, Tag: s.nextTag(),
		SuccInfo: succ, HasSuccInfo: true,
		HashRange: HashRange{Left: pred.FirstHash, Right: hashRange.Right}, HasHashRange: true,
	}, pred.Addr)
	s.send(Packet{
		Type: TypeUpdate, Tag: s.nextTag(),
		PredInfo: pred, HasPredInfo: true,
	}, succ.Addr)

	s.mu.Lock()
	for k, v := range s.kv {
		s.send(Packet{Type: TypeTransfer, Tag: s.nextTag(), Key: k, Value: v, HasValue: true}, pred.Addr)
	}
	s.kv = make(map[string]string)
	if s.cache != nil {
		s.cache.DeleteAll()
	}
	s.rte.clear()
	s.mu.Unlock()
}

func (s *Server) handlePacket(p Packet, from netip.AddrPort) {
	if s.log.Enabled(context.Background(), slog.LevelDebug) {
		s.log.Debug("dht: recv", "type", p.Type, "from", from, "tag", p.Tag)
	}
	s.mu.Lock()
	myInfo := s.myInfo
	succInfo := s.succInfo
	s.mu.Unlock()

	// spec.md §4.4: any incoming packet carrying senderInfo (except
	// leave, which removes instead) triggers shortcut-route learning.
	if p.HasSenderInfo && p.Type != TypeLeave {
		s.mu.Lock()
		s.rte.addRoute(p.SenderInfo, myInfo, p.SenderInfo.Equal(succInfo))
		s.mu.Unlock()
	}

	switch p.Type {
	case TypeGet:
		s.handleGet(p, from)
	case TypePut:
		s.handlePut(p, from)
	case TypeTransfer:
		s.handleXfer(p)
	case TypeSuccess, TypeNoMatch, TypeFailure:
		s.handleReply(p)
	case TypeJoin:
		s.handleJoin(p, from)
	case TypeUpdate:
		s.handleUpdate(p)
	case TypeLeave:
		s.handleLeave(p, from)
	case TypePing:
		s.handlePing(from)
	}
}

func (s *Server) handleGet(p Packet, senderAdr netip.AddrPort) {
	// Cache shortcut: replies straight to senderAdr even when the
	// request arrived via a relay, bypassing clientAdr. Preserved
	// intentionally; see spec.md §9.
	if s.cache != nil {
		if item := s.cache.Get(p.Key); item != nil {
			reply := p
			reply.Type = TypeSuccess
			reply.Value = item.Value()
			reply.HasValue = true
			s.send(reply, senderAdr)
			return
		}
	}

	s.mu.Lock()
	hash := hashIt(p.Key)
	inRange := s.hashRange.Contains(hash)
	myInfo := s.myInfo
	s.mu.Unlock()

	if inRange {
		var replyAdr netip.AddrPort
		if p.HasRelayAdr {
			replyAdr = p.RelayAdr
			p.SenderInfo = myInfo
			p.HasSenderInfo = true
		} else {
			replyAdr = senderAdr
		}
		s.mu.Lock()
		val, ok := s.kv[p.Key]
		s.mu.Unlock()
		if ok {
			p.Type = TypeSuccess
			p.Value = val
			p.HasValue = true
		} else {
			p.Type = TypeNoMatch
			p.HasValue = false
		}
		s.send(p, replyAdr)
		return
	}
	if !p.HasRelayAdr {
		p.RelayAdr = myInfo.Addr
		p.HasRelayAdr = true
		p.ClientAdr = senderAdr
		p.HasClientAdr = true
	}
	s.forward(p, hash)
}

func (s *Server) handlePut(p Packet, senderAdr netip.AddrPort) {
	if s.cache != nil {
		s.cache.Delete(p.Key)
	}

	s.mu.Lock()
	hash := hashIt(p.Key)
	inRange := s.hashRange.Contains(hash)
	myInfo := s.myInfo
	s.mu.Unlock()

	if inRange {
		p.Type = TypeSuccess
		s.mu.Lock()
		if p.HasValue {
			s.kv[p.Key] = p.Value
		} else {
			delete(s.kv, p.Key)
		}
		s.mu.Unlock()

		var replyAdr netip.AddrPort
		if p.HasRelayAdr {
			replyAdr = p.RelayAdr
			p.SenderInfo = myInfo
			p.HasSenderInfo = true
		} else {
			replyAdr = senderAdr
		}
		s.send(p, replyAdr)
		return
	}
	if !p.HasRelayAdr {
		p.RelayAdr = myInfo.Addr
		p.HasRelayAdr = true
		p.ClientAdr = senderAdr
		p.HasClientAdr = true
	}
	s.forward(p, hash)
}

func (s *Server) handleXfer(p Packet) {
	s.mu.Lock()
	s.kv[p.Key] = p.Value
	s.mu.Unlock()
}

func (s *Server) handleReply(p Packet) {
	if p.HasHashRange {
		// join-success case.
		s.mu.Lock()
		s.hashRange = p.HashRange
		s.succInfo = p.SuccInfo
		s.hasSucc = p.HasSuccInfo
		s.predInfo = p.PredInfo
		s.hasPred = p.HasPredInfo
		s.myInfo = NodeInfo{Addr: s.myInfo.Addr, FirstHash: p.HashRange.Left}
		myInfo := s.myInfo
		succ := s.succInfo
		s.rte.addRoute(succ, myInfo, true)
		s.mu.Unlock()
		return
	}

	client := p.ClientAdr
	p.ClientAdr = netip.AddrPort{}
	p.HasClientAdr = false
	p.RelayAdr = netip.AddrPort{}
	p.HasRelayAdr = false
	p.SenderInfo = NodeInfo{}
	p.HasSenderInfo = false
	if s.cache != nil && p.Type == TypeSuccess && p.HasValue {
		s.cache.Set(p.Key, p.Value, ttlcache.NoTTL)
	}
	s.send(p, client)
}

func (s *Server) handleJoin(p Packet, succAdr netip.AddrPort) {
	s.mu.Lock()
	mid := s.hashRange.Left + (s.hashRange.Right-s.hashRange.Left)/2
	top := s.hashRange.Right
	myInfo := s.myInfo
	oldSucc := s.succInfo
	joinerInfo := NodeInfo{Addr: succAdr, FirstHash: mid}

	reply := Packet{
		Type: TypeSuccess, Tag: s.nextTag(),
		HashRange: HashRange{Left: mid, Right: top}, HasHashRange: true,
		SuccInfo: oldSucc, HasSuccInfo: s.hasSucc,
		PredInfo: myInfo, HasPredInfo: true,
	}

	updatePkt := Packet{
		Type: TypeUpdate, Tag: s.nextTag(),
		SenderInfo: myInfo, HasSenderInfo: true,
		PredInfo: joinerInfo, HasPredInfo: true,
	}

	s.succInfo = joinerInfo
	s.hasSucc = true
	s.rte.addRoute(joinerInfo, myInfo, true)
	s.hashRange.Right = mid

	var deletedKeys []string
	var xfers []Packet
	for k, v := range s.kv {
		if hashIt(k) >= mid {
			xfers = append(xfers, Packet{Type: TypeTransfer, Tag: s.nextTag(), Key: k, Value: v, HasValue: true})
			deletedKeys = append(deletedKeys, k)
		}
	}
	for _, k := range deletedKeys {
		delete(s.kv, k)
	}
	s.mu.Unlock()

	s.send(reply, succAdr)
	s.send(updatePkt, oldSucc.Addr)
	for _, x := range xfers {
		s.send(x, succAdr)
	}
}

func (s *Server) handleUpdate(p Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.HasPredInfo {
		s.predInfo = p.PredInfo
		s.hasPred = true
	}
	if p.HasSuccInfo {
		s.succInfo = p.SuccInfo
		s.hasSucc = true
		s.rte.addRoute(s.succInfo, s.myInfo, true)
	}
	if p.HasHashRange {
		s.hashRange = p.HashRange
	}
}

func (s *Server) handleLeave(p Packet, _ netip.AddrPort) {
	s.mu.Lock()
	myInfo := s.myInfo
	succ := s.succInfo
	s.mu.Unlock()

	if p.HasSenderInfo && p.SenderInfo.Equal(myInfo) {
		s.stopFlag.Store(true)
		return
	}
	s.send(p, succ.Addr)
	s.mu.Lock()
	s.rte.removeRoute(p.SenderInfo)
	s.mu.Unlock()
}

func (s *Server) handlePing(from netip.AddrPort) {
	snap := s.Snapshot()
	s.send(Packet{
		Type: TypePong, Tag: s.nextTag(),
		SenderInfo: snap.MyInfo, HasSenderInfo: true,
		PredInfo: snap.PredInfo, HasPredInfo: snap.HasPred,
		SuccInfo: snap.SuccInfo, HasSuccInfo: snap.HasSucc,
		HashRange: snap.HashRange, HasHashRange: true,
	}, from)
}

// forward picks the routing-table entry that minimizes (hash -
// firstHash) mod 2^31 and relays p to it (spec.md §4.4).
func (s *Server) forward(p Packet, hash uint32) {
	s.mu.Lock()
	adr, ok := s.rte.closest(hash)
	s.mu.Unlock()
	if !ok {
		s.log.Debug("dht: forward has no route", "key", p.Key)
		return
	}
	s.send(p, adr.Addr)
}
