// Command dhtserver runs one node of a Chord-style distributed hash
// table, per spec.md §4.4 and §6's CLI surface.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cse473-net/netlab/internal/dht"
	"github.com/cse473-net/netlab/internal/netconf"
	"github.com/cse473-net/netlab/internal/netlog"
)

const dhtJoinTimeout = 5 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dhtserver",
	Short: "Runs one node of a Chord-style DHT",
	RunE:  runDhtServer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "dhtserver.yaml", "path to the dhtserver config file")
}

func runDhtServer(cmd *cobra.Command, args []string) error {
	cfg, err := netconf.Load[netconf.DhtServerCfg](configPath)
	if err != nil {
		return err
	}
	log := netlog.New(netlog.Options{Debug: cfg.Debug})

	listenAddr, err := netip.ParseAddrPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen_addr: %w", err)
	}

	sub, err := dht.NewUDP(listenAddr, 1000)
	if err != nil {
		return fmt.Errorf("substrate: %w", err)
	}
	defer sub.Close()

	if cfg.CfgFile != "" {
		if err := os.WriteFile(cfg.CfgFile, fmt.Appendf(nil, "%s %d\n", listenAddr.Addr(), listenAddr.Port()), 0o644); err != nil {
			return fmt.Errorf("cfg_file: %w", err)
		}
	}

	numRoutes := cfg.NumRoutes
	if numRoutes == 0 {
		numRoutes = 4
	}
	srv := dht.New(dht.Config{NumRoutes: numRoutes, CacheEnabled: cfg.CacheEnabled}, sub, log)

	sigCtx, sigCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigCancel()

	if cfg.PredAddr != "" {
		predAdr, err := netip.ParseAddrPort(cfg.PredAddr)
		if err != nil {
			return fmt.Errorf("pred_addr: %w", err)
		}
		joinCtx, joinCancel := context.WithTimeout(sigCtx, dhtJoinTimeout)
		defer joinCancel()
		if err := srv.Join(joinCtx, predAdr); err != nil {
			return fmt.Errorf("join: %w", err)
		}
		log.Info("dhtserver: joined ring", "pred", predAdr)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(runCtx) }()

	log.Info("dhtserver: starting", "listen", cfg.ListenAddr)
	<-sigCtx.Done()
	// Signal-triggered leave, per spec.md §5: block until the leave
	// packet has circled back and neighbors are updated, then stop the
	// receive loop.
	srv.Leave()
	srv.Quit()
	runCancel()
	return <-runDone
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
