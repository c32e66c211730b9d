package config

// Tipping holds the ledger parameters applied by the node.
type Tipping struct {
	MinBalance    uint64 `toml:"MinBalance"`
	RecordDeposit uint64 `toml:"RecordDeposit"`
	Paused        bool   `toml:"Paused"`
}

// Faucet controls the JWT protected airdrop endpoint.
type Faucet struct {
	Enabled   bool   `toml:"Enabled"`
	JWTSecret string `toml:"JWTSecret"`
	Issuer    string `toml:"Issuer"`
	MaxAmount uint64 `toml:"MaxAmount"`
}

// RateLimit bounds JSON-RPC requests per client address.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Logging selects the log level and optional rotating file sink.
type Logging struct {
	Level     string `toml:"Level"`
	File      string `toml:"File"`
	MaxSizeMB int    `toml:"MaxSizeMB"`
}

// Telemetry configures OTLP export. An empty endpoint disables it.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}
