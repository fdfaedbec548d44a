// Package node wires an overlay Forwarder and Router into one
// supervised unit, the two per-node threads spec.md §5 describes as
// "separate threads within the same overlay node".
package node

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cse473-net/netlab/internal/overlay/forwarder"
	"github.com/cse473-net/netlab/internal/overlay/router"
	"github.com/cse473-net/netlab/internal/overlay/substrate"
)

// Node is one overlay endpoint: a Forwarder driving substrate I/O and
// a Router driving path-vector control-plane logic against it.
type Node struct {
	Fwdr *forwarder.Forwarder
	Rtr  *router.Router
}

// New builds a Node, wiring rtr against fwdr as its Forwarder
// collaborator.
func New(myIp uint32, defaultLink int, sub substrate.Substrate, rcfg router.Config, log *slog.Logger) *Node {
	fwdr := forwarder.New(myIp, defaultLink, sub, log)
	rtr := router.New(rcfg, fwdr, log)
	return &Node{Fwdr: fwdr, Rtr: rtr}
}

// Run starts the forwarder and router loops and blocks until either
// exits (error or ctx cancellation), canceling the other in turn. This
// mirrors the teacher's practice of supervising its per-node
// goroutines as one failure unit rather than leaking an orphaned peer.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Fwdr.Run(gctx)
	})
	g.Go(func() error {
		return n.Rtr.Run(gctx)
	})
	return g.Wait()
}
