package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tipchain/native/tipping"
	"tipchain/storage"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, storage.BackendLevelDB, cfg.Backend)
	require.Len(t, cfg.Faucet.JWTSecret, 64)
	require.Equal(t, tipping.DefaultParams(), cfg.Params())

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Faucet.JWTSecret, again.Faucet.JWTSecret)
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "/var/lib/tipd"
Backend = "Bolt"
IndexerDSN = "postgres://tips@db/tips"

[Tipping]
MinBalance = 10
RecordDeposit = 20
Paused = true

[Faucet]
Enabled = true
JWTSecret = "0123456789abcdef0123"
MaxAmount = 1000

[RateLimit]
RequestsPerMinute = 120
Burst = 10

[Logging]
Level = "debug"
File = "/var/log/tipd.log"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.RPCAddress)
	require.Equal(t, storage.BackendBolt, cfg.Backend)
	require.Equal(t, tipping.Params{MinBalance: 10, RecordDeposit: 20}, cfg.Params())
	require.True(t, cfg.Tipping.Paused)
	require.True(t, cfg.Faucet.Enabled)
	require.Equal(t, "tipchain", cfg.Faucet.Issuer)
	require.Equal(t, float64(120), cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 15, cfg.RPCReadTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":     func(c *Config) { c.Backend = "rocksdb" },
		"rpc address": func(c *Config) { c.RPCAddress = " " },
		"faucet secret": func(c *Config) {
			c.Faucet.Enabled = true
			c.Faucet.JWTSecret = "short"
		},
		"faucet cap": func(c *Config) {
			c.Faucet.Enabled = true
			c.Faucet.JWTSecret = strings.Repeat("x", 32)
			c.Faucet.MaxAmount = 0
		},
		"burst":   func(c *Config) { c.RateLimit.Burst = 0 },
		"timeout": func(c *Config) { c.RPCWriteTimeout = -1 },
		"datadir": func(c *Config) { c.DataDir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Backend = storage.BackendMemory
	cfg.DataDir = ""
	require.NoError(t, cfg.Validate())
}
