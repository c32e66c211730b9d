package config

import (
	"fmt"
	"strings"

	"tipchain/storage"
)

// MinFaucetSecretLength guards against trivially guessable HMAC keys.
const MinFaucetSecretLength = 16

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	switch c.Backend {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("config: unsupported Backend %q", c.Backend)
	}
	if c.Backend != storage.BackendMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required for %s backend", c.Backend)
	}
	if c.Faucet.Enabled {
		if len(c.Faucet.JWTSecret) < MinFaucetSecretLength {
			return fmt.Errorf("faucet: JWTSecret must be at least %d characters", MinFaucetSecretLength)
		}
		if c.Faucet.MaxAmount == 0 {
			return fmt.Errorf("faucet: MaxAmount must be positive")
		}
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("ratelimit: Burst must be positive when RequestsPerMinute is set")
	}
	for name, v := range map[string]int{
		"RPCReadHeaderTimeout": c.RPCReadHeaderTimeout,
		"RPCReadTimeout":       c.RPCReadTimeout,
		"RPCWriteTimeout":      c.RPCWriteTimeout,
		"RPCIdleTimeout":       c.RPCIdleTimeout,
	} {
		if v < 0 {
			return fmt.Errorf("config: %s must not be negative", name)
		}
	}
	return nil
}
