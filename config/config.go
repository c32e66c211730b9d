package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"tipchain/native/tipping"
	"tipchain/storage"
)

type Config struct {
	RPCAddress           string    `toml:"RPCAddress"`
	RPCReadHeaderTimeout int       `toml:"RPCReadHeaderTimeout"`
	RPCReadTimeout       int       `toml:"RPCReadTimeout"`
	RPCWriteTimeout      int       `toml:"RPCWriteTimeout"`
	RPCIdleTimeout       int       `toml:"RPCIdleTimeout"`
	DataDir              string    `toml:"DataDir"`
	Backend              string    `toml:"Backend"`
	IndexerDSN           string    `toml:"IndexerDSN"`
	Environment          string    `toml:"Environment"`
	Tipping              Tipping   `toml:"Tipping"`
	Faucet               Faucet    `toml:"Faucet"`
	RateLimit            RateLimit `toml:"RateLimit"`
	Logging              Logging   `toml:"Logging"`
	Telemetry            Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	params := tipping.DefaultParams()
	return &Config{
		RPCAddress:           ":8080",
		RPCReadHeaderTimeout: 5,
		RPCReadTimeout:       15,
		RPCWriteTimeout:      15,
		RPCIdleTimeout:       60,
		DataDir:              "./tip-data",
		Backend:              storage.BackendLevelDB,
		IndexerDSN:           "./tip-data/receipts.db",
		Environment:          "local",
		Tipping: Tipping{
			MinBalance:    params.MinBalance,
			RecordDeposit: params.RecordDeposit,
		},
		Faucet: Faucet{
			Issuer:    "tipchain",
			MaxAmount: 5_000_000_000,
		},
		RateLimit: RateLimit{
			RequestsPerMinute: 600,
			Burst:             50,
		},
		Logging: Logging{Level: "info"},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = storage.BackendLevelDB
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.Faucet.Issuer) == "" {
		c.Faucet.Issuer = "tipchain"
	}
}

// Params converts the tipping section into engine parameters.
func (c *Config) Params() tipping.Params {
	return tipping.Params{
		MinBalance:    c.Tipping.MinBalance,
		RecordDeposit: c.Tipping.RecordDeposit,
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	secret, err := randomSecret()
	if err != nil {
		return nil, err
	}
	cfg.Faucet.JWTSecret = secret
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
