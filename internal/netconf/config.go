// Package netconf loads the YAML configuration files that back
// cmd/router, cmd/rdt, and cmd/dhtserver, following the teacher's
// convention of plain structs with go-yaml tags.
package netconf

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/goccy/go-yaml"
)

// RouterCfg configures one overlay node's Forwarder+Router pairing.
type RouterCfg struct {
	MyIp      netip.Addr   `yaml:"my_ip"`
	Prefixes  []string     `yaml:"prefixes"`
	Neighbors []NeighborCfg `yaml:"neighbors"`

	InitialLinkCost      float64 `yaml:"initial_link_cost,omitempty"`
	Debug                int     `yaml:"debug,omitempty"`
	FailureAdvertEnabled bool    `yaml:"failure_advert_enabled,omitempty"`

	ListenAddr string `yaml:"listen_addr"`
	LogPath    string `yaml:"log_path,omitempty"`
}

// NeighborCfg is one substrate link: the neighbor's overlay IP and the
// UDP address the substrate dials to reach it.
type NeighborCfg struct {
	Ip         netip.Addr `yaml:"ip"`
	SubstrateAddr string  `yaml:"substrate_addr"`
}

// RdtCfg configures a standalone RDT endpoint for cmd/rdt.
type RdtCfg struct {
	Window     int    `yaml:"window"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	ListenAddr string `yaml:"listen_addr"`
	PeerAddr   string `yaml:"peer_addr"`
	LogPath    string `yaml:"log_path,omitempty"`
}

// DhtServerCfg configures a DHT node for cmd/dhtserver.
type DhtServerCfg struct {
	ListenAddr   string `yaml:"listen_addr"`
	NumRoutes    int    `yaml:"num_routes"`
	CacheEnabled bool   `yaml:"cache_enabled,omitempty"`
	Debug        bool   `yaml:"debug,omitempty"`
	CfgFile      string `yaml:"cfg_file"`
	PredAddr     string `yaml:"pred_addr,omitempty"`
}

// Load reads and unmarshals a YAML config file of type T.
func Load[T any](path string) (T, error) {
	var cfg T
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("netconf: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("netconf: parse %s: %w", path, err)
	}
	return cfg, nil
}
