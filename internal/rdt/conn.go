package rdt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const idlePoll = time.Millisecond

// Stats is a snapshot of transport activity, supplemented per SPEC_FULL
// §7 so tests and the cmd/rdt entrypoint can observe go-back-N behavior
// without instrumenting the protocol state directly.
type Stats struct {
	Sent            uint64
	Retransmitted   uint64
	FastRetransmits uint64
	TimeoutFires    uint64
	Delivered       uint64
}

// Conn is a go-back-N sliding-window connection over an unreliable
// Substrate (spec.md §4.3). The zero value is not usable; construct with
// New. Send/Receive/Ready/Incoming are safe to call from any goroutine;
// Run must be driven by exactly one goroutine.
type Conn struct {
	w       int // window size W
	s       int // sequence space S = 2W
	timeout time.Duration
	sub     Substrate
	log     *slog.Logger

	appIn   chan string // source -> sender, drained by Run
	sinkOut chan string // receiver -> sink, delivered via Receive

	quit int32 // atomic bool

	// sender state (owned by Run)
	sendBuf     []Packet
	sendBase    int
	sendSeqNum  int
	dupAcks     int
	sendAgain   int64 // absolute deadline in unix ns; 0 = disarmed
	retransFlag bool

	// receiver state (owned by Run)
	recvBuf   []string
	recvBase  int
	expSeqNum int
	lastRcvd  int

	statsMu sync.Mutex
	stats   Stats
}

// New builds a Conn with window size w (must satisfy w <= 2^14-1) over
// sub, retransmitting unacked packets after timeout.
func New(w int, sub Substrate, timeout time.Duration, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	s := 2 * w
	return &Conn{
		w:       w,
		s:       s,
		timeout: timeout,
		sub:     sub,
		log:     log,
		appIn:   make(chan string, s),
		sinkOut: make(chan string, s),
		sendBuf: make([]Packet, s),
		recvBuf: make([]string, s),
	}
}

// Send enqueues payload for transmission; blocks if the outgoing queue is
// full.
func (c *Conn) Send(payload string) {
	c.appIn <- payload
}

// Ready reports whether Send would not block.
func (c *Conn) Ready() bool {
	return len(c.appIn) < cap(c.appIn)
}

// Receive dequeues the next in-order payload delivered to the sink;
// blocks if none is ready.
func (c *Conn) Receive() string {
	return <-c.sinkOut
}

// Incoming reports whether Receive would not block.
func (c *Conn) Incoming() bool {
	return len(c.sinkOut) > 0
}

// Quit arranges for Run to exit once the send window has fully drained
// (spec.md §4.3: "terminates once quit is set and sendSeqNum == sendBase").
func (c *Conn) Quit() {
	atomic.StoreInt32(&c.quit, 1)
}

// Snapshot returns the current Stats.
func (c *Conn) Snapshot() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Run drives the connection's cooperative main loop until it terminates
// per Quit's contract, or ctx is canceled. Priorities, per spec.md §4.3:
// deliver a buffered in-order packet, else process an inbound substrate
// packet, else fire an overdue retransmission, else send new data if the
// window allows, else idle sleep.
func (c *Conn) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if atomic.LoadInt32(&c.quit) == 1 && c.sendSeqNum == c.sendBase {
			return nil
		}

		switch {
		case c.recvBase != c.expSeqNum:
			c.deliverOne()
		case c.sub.Incoming():
			c.handleInbound()
		case c.sendAgain != 0 && time.Now().UnixNano() >= c.sendAgain:
			c.retransmitWindow()
		case len(c.appIn) > 0 && diff(c.sendSeqNum, c.sendBase, c.s) < c.w && c.sub.Ready():
			c.sendNext()
		default:
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idlePoll):
			}
		}
	}
}

func (c *Conn) deliverOne() {
	payload := c.recvBuf[c.recvBase]
	c.recvBase = incr(c.recvBase, c.s)
	c.sinkOut <- payload
	c.statsMu.Lock()
	c.stats.Delivered++
	c.statsMu.Unlock()
}

func (c *Conn) sendNext() {
	payload := <-c.appIn
	p := Packet{Type: TypeData, SeqNum: uint16(c.sendSeqNum), Payload: payload}
	c.sendBuf[c.sendSeqNum] = p
	c.sendSeqNum = incr(c.sendSeqNum, c.s)
	if err := c.sub.Send(p); err != nil {
		c.log.Debug("rdt: send failed", "err", err)
	}
	c.statsMu.Lock()
	c.stats.Sent++
	c.statsMu.Unlock()
	c.armTimer()
}

func (c *Conn) armTimer() {
	c.sendAgain = time.Now().Add(c.timeout).UnixNano()
}

func (c *Conn) retransmitWindow() {
	for s := c.sendBase; s != c.sendSeqNum; s = incr(s, c.s) {
		if err := c.sub.Send(c.sendBuf[s]); err != nil {
			c.log.Debug("rdt: retransmit failed", "seq", s, "err", err)
			continue
		}
		c.statsMu.Lock()
		c.stats.Retransmitted++
		c.statsMu.Unlock()
	}
	c.statsMu.Lock()
	c.stats.TimeoutFires++
	c.statsMu.Unlock()
	c.armTimer()
}

func (c *Conn) handleInbound() {
	p, err := c.sub.Receive()
	if err != nil {
		return
	}
	switch p.Type {
	case TypeData:
		c.handleData(p)
	case TypeAck:
		c.handleAck(p)
	}
	// spec.md §4.3: re-arm unconditionally after inbound processing. The
	// "no retransmission when sendBase==sendSeqNum" invariant holds
	// because retransmitWindow's loop is a no-op over an empty window,
	// not because the timer is disarmed.
	c.armTimer()
}

func (c *Conn) handleData(p Packet) {
	seq := int(p.SeqNum)
	c.lastRcvd = seq
	if seq == c.expSeqNum {
		c.recvBuf[c.expSeqNum] = p.Payload
		c.expSeqNum = incr(c.expSeqNum, c.s)
		c.sendAck(uint16(seq))
		return
	}
	// Out of order (or duplicate): cumulative ACK of the last in-order
	// sequence number. Note per spec.md §9: when expSeqNum==0 and no
	// packet has yet been received, this ACKs (0-1) mod 2W = 2W-1 — the
	// receiver's legitimate "nothing delivered yet" answer to a
	// resequenced or duplicated first packet.
	ackSeq := (c.expSeqNum - 1 + c.s) % c.s
	c.sendAck(uint16(ackSeq))
}

func (c *Conn) sendAck(seq uint16) {
	if err := c.sub.Send(Packet{Type: TypeAck, SeqNum: seq}); err != nil {
		c.log.Debug("rdt: ack send failed", "err", err)
	}
}

func (c *Conn) handleAck(p Packet) {
	k := int(p.SeqNum)
	if diff(k, c.sendBase, c.s) < diff(c.sendSeqNum, c.sendBase, c.s) {
		c.sendBase = incr(k, c.s)
		c.dupAcks = 0
		c.retransFlag = false
		return
	}
	if incr(k, c.s) == c.sendBase {
		c.dupAcks++
		if c.dupAcks >= 3 && !c.retransFlag {
			c.fastRetransmit()
			c.retransFlag = true
		}
	}
}

func (c *Conn) fastRetransmit() {
	for s := c.sendBase; s != c.sendSeqNum; s = incr(s, c.s) {
		if err := c.sub.Send(c.sendBuf[s]); err != nil {
			continue
		}
		c.statsMu.Lock()
		c.stats.Retransmitted++
		c.statsMu.Unlock()
	}
	c.statsMu.Lock()
	c.stats.FastRetransmits++
	c.statsMu.Unlock()
}
