// Command rdt runs a standalone go-back-N reliable transport endpoint
// over UDP, reading lines from stdin to send and printing delivered
// payloads to stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cse473-net/netlab/internal/netconf"
	"github.com/cse473-net/netlab/internal/netlog"
	"github.com/cse473-net/netlab/internal/rdt"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rdt",
	Short: "Runs a standalone RDT (go-back-N) endpoint",
	RunE:  runRdt,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "rdt.yaml", "path to the rdt config file")
}

func runRdt(cmd *cobra.Command, args []string) error {
	cfg, err := netconf.Load[netconf.RdtCfg](configPath)
	if err != nil {
		return err
	}

	opts := netlog.Options{}
	if cfg.LogPath != "" {
		logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		opts.File = logFile
	}
	log := netlog.New(opts)

	sub, err := rdt.NewUDP(cfg.ListenAddr, cfg.PeerAddr, cfg.Window*2)
	if err != nil {
		return fmt.Errorf("substrate: %w", err)
	}
	defer sub.Close()

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	conn := rdt.New(cfg.Window, sub, timeout, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		conn.Quit()
	}()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			conn.Send(scanner.Text())
		}
		conn.Quit()
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			fmt.Println(conn.Receive())
		}
	}()

	log.Info("rdt: starting", "listen", cfg.ListenAddr, "peer", cfg.PeerAddr, "window", cfg.Window)
	return conn.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
