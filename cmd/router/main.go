// Command router runs one overlay node: a Forwarder and Router pair
// exchanging path-vector control traffic and forwarding data-plane
// packets over a UDP substrate.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cse473-net/netlab/internal/netconf"
	"github.com/cse473-net/netlab/internal/netlog"
	"github.com/cse473-net/netlab/internal/overlay/node"
	"github.com/cse473-net/netlab/internal/overlay/packet"
	"github.com/cse473-net/netlab/internal/overlay/router"
	"github.com/cse473-net/netlab/internal/overlay/substrate"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "router",
	Short: "Runs an overlay router/forwarder node",
	RunE:  runRouter,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "router.yaml", "path to the router config file")
}

func runRouter(cmd *cobra.Command, args []string) error {
	cfg, err := netconf.Load[netconf.RouterCfg](configPath)
	if err != nil {
		return err
	}

	opts := netlog.Options{Debug: cfg.Debug > 0}
	if cfg.LogPath != "" {
		logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		opts.File = logFile
	}
	log := netlog.New(opts)

	myIp, err := packet.ParseIP(cfg.MyIp.String())
	if err != nil {
		return fmt.Errorf("my_ip: %w", err)
	}

	prefixes := make([]packet.Prefix, 0, len(cfg.Prefixes))
	for _, s := range cfg.Prefixes {
		pfx, err := packet.ParsePrefix(s)
		if err != nil {
			return fmt.Errorf("prefixes: %w", err)
		}
		prefixes = append(prefixes, pfx)
	}

	neighbors := make([]uint32, 0, len(cfg.Neighbors))
	substrateAddrs := make([]string, 0, len(cfg.Neighbors))
	for _, n := range cfg.Neighbors {
		ip, err := packet.ParseIP(n.Ip.String())
		if err != nil {
			return fmt.Errorf("neighbors: %w", err)
		}
		neighbors = append(neighbors, ip)
		substrateAddrs = append(substrateAddrs, n.SubstrateAddr)
	}

	sub, err := substrate.NewUDP(cfg.ListenAddr, substrateAddrs, 1000)
	if err != nil {
		return fmt.Errorf("substrate: %w", err)
	}
	defer sub.Close()

	initialCost := cfg.InitialLinkCost
	if initialCost == 0 {
		initialCost = 1.0
	}
	rcfg := router.Config{
		MyIp:                 myIp,
		Prefixes:             prefixes,
		Neighbors:            neighbors,
		InitialLinkCost:      initialCost,
		Debug:                cfg.Debug,
		FailureAdvertEnabled: cfg.FailureAdvertEnabled,
	}

	n := node.New(myIp, 0, sub, rcfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("router: starting", "myIp", cfg.MyIp, "listen", cfg.ListenAddr)
	return n.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
