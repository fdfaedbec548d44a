// Command dhtclient issues a single get or put against a DHT node.
// Usage: dhtclient <get|put> key [value], with the local address given
// by --listen and the server's cfg file by --cfg-file.
package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cse473-net/netlab/internal/dht"
)

var (
	myAdrFlag  string
	cfgFile    string
	reqTimeout = 3 * time.Second
)

var rootCmd = &cobra.Command{
	Use:   "dhtclient <get|put> key [value]",
	Short: "Issues a single get/put request against a DHT node",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runDhtClient,
}

func init() {
	rootCmd.Flags().StringVar(&myAdrFlag, "listen", "127.0.0.1:0", "local address to bind the client socket")
	rootCmd.Flags().StringVar(&cfgFile, "cfg-file", "", "server config file written by dhtserver (contains \"ip port\")")
}

func runDhtClient(cmd *cobra.Command, args []string) error {
	op, key := args[0], args[1]
	var val string
	hasVal := len(args) == 3
	if hasVal {
		val = args[2]
	}

	serverAdr, err := readServerCfg(cfgFile)
	if err != nil {
		return err
	}

	localAdr, err := netip.ParseAddrPort(myAdrFlag)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	sub, err := dht.NewUDP(localAdr, 4)
	if err != nil {
		return fmt.Errorf("substrate: %w", err)
	}
	defer sub.Close()

	// A UUID-derived tag lets the client disambiguate replies to
	// concurrent requests without a monotonic counter of its own.
	tag := uuidTag()

	var pktType dht.Type
	switch op {
	case "get":
		pktType = dht.TypeGet
	case "put":
		pktType = dht.TypePut
	default:
		return fmt.Errorf("unknown operation %q, want get or put", op)
	}

	req := dht.Packet{Type: pktType, Key: key, Tag: tag, TTL: 100}
	if hasVal {
		req.Value = val
		req.HasValue = true
	}
	if err := sub.Send(req, serverAdr); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for reply")
		default:
		}
		if sub.Incoming() {
			reply, _, err := sub.Receive()
			if err != nil {
				continue
			}
			if reply.Tag != tag {
				continue
			}
			printReply(reply)
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

func printReply(p dht.Packet) {
	switch p.Type {
	case dht.TypeSuccess:
		if p.HasValue {
			fmt.Println(p.Value)
		} else {
			fmt.Println("ok")
		}
	case dht.TypeNoMatch:
		fmt.Println("no match")
	case dht.TypeFailure:
		fmt.Println("failure:", p.Reason)
	default:
		fmt.Println(p.Type)
	}
}

// readServerCfg parses the "<ip> <port>" line dhtserver writes to its
// cfg file (spec.md §6).
func readServerCfg(path string) (netip.AddrPort, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("cfg-file: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return netip.AddrPort{}, fmt.Errorf("cfg-file: want \"ip port\", got %q", string(data))
	}
	addr, err := netip.ParseAddr(fields[0])
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("cfg-file: bad ip %q: %w", fields[0], err)
	}
	var port int
	if _, err := fmt.Sscanf(fields[1], "%d", &port); err != nil {
		return netip.AddrPort{}, fmt.Errorf("cfg-file: bad port %q: %w", fields[1], err)
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

// uuidTag folds a random UUID down to the 64-bit tag space DHT
// packets carry.
func uuidTag() uint64 {
	id := uuid.New()
	h := fnv.New64a()
	h.Write(id[:])
	return h.Sum64()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
