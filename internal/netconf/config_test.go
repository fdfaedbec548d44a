package netconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRouterCfg(t *testing.T) {
	path := writeTemp(t, `
my_ip: 10.1.0.1
prefixes:
  - 10.1.0.0/16
neighbors:
  - ip: 10.2.0.1
    substrate_addr: 127.0.0.1:9001
listen_addr: 127.0.0.1:9000
initial_link_cost: 0.05
`)
	cfg, err := Load[RouterCfg](path)
	require.NoError(t, err)
	assert.Equal(t, "10.1.0.1", cfg.MyIp.String())
	assert.Equal(t, []string{"10.1.0.0/16"}, cfg.Prefixes)
	require.Len(t, cfg.Neighbors, 1)
	assert.Equal(t, "127.0.0.1:9001", cfg.Neighbors[0].SubstrateAddr)
	assert.Equal(t, 0.05, cfg.InitialLinkCost)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load[RouterCfg]("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadDhtServerCfg(t *testing.T) {
	path := writeTemp(t, `
listen_addr: 127.0.0.1:9500
num_routes: 4
cache_enabled: true
cfg_file: /tmp/dht0.cfg
`)
	cfg, err := Load[DhtServerCfg](path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.NumRoutes)
	assert.True(t, cfg.CacheEnabled)
}
