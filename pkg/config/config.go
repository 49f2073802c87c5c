// Copyright 2025 Certen Protocol
//
// Package config loads validator configuration from YAML, following
// pkg/config/anchor_config.go's pattern: a Duration wrapper for
// human-readable YAML durations, ${VAR_NAME} / ${VAR_NAME:-default}
// environment-variable substitution applied to the raw file before
// parsing, and an applyDefaults pass filling unset fields after decode.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidatorConfig holds every tunable this validator process reads at
// startup.
type ValidatorConfig struct {
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`

	Validator ValidatorIdentity  `yaml:"validator"`
	Store     StoreSettings      `yaml:"store"`
	Consensus ConsensusSettings  `yaml:"consensus"`
	Adapter   AdapterSettings    `yaml:"consensus_adapter"`
	Execution ExecutionSettings  `yaml:"execution"`
	Admin     AdminSettings      `yaml:"admin"`
	Archive   ArchiveSettings    `yaml:"archive"`
	Metrics   MetricsSettings    `yaml:"metrics"`
	Logging   LoggingSettings    `yaml:"logging"`
}

// ValidatorIdentity names this validator's own identity and key material.
type ValidatorIdentity struct {
	Address           string `yaml:"address"`
	BLSPrivateKeyPath string `yaml:"bls_private_key_path"`
	BLSPublicKeyPath  string `yaml:"bls_public_key_path"`
	Ed25519KeyPath    string `yaml:"ed25519_key_path"`
}

// StoreSettings configures the bbolt-backed authority store.
type StoreSettings struct {
	Path           string   `yaml:"path"`
	SyncWrites     bool     `yaml:"sync_writes"`
	OpenTimeout    Duration `yaml:"open_timeout"`
}

// ConsensusSettings configures the CometBFT client.
type ConsensusSettings struct {
	RPCURL         string   `yaml:"rpc_url"`
	BroadcastTimeout Duration `yaml:"broadcast_timeout"`
}

// AdapterSettings configures the consensus adapter's protocol tunables,
// mirroring consensusadapter.ProtocolConfig.
type AdapterSettings struct {
	ReferenceGasPrice          uint64   `yaml:"reference_gas_price"`
	AmplificationThreshold     float64  `yaml:"amplification_threshold"`
	MaxPendingTransactions     int64    `yaml:"max_pending_transactions"`
	MaxPendingLocalSubmissions int64    `yaml:"max_pending_local_submissions"`
	MinDelay                   Duration `yaml:"min_delay"`
	MaxDelay                   Duration `yaml:"max_delay"`
	BaseLatency                Duration `yaml:"base_latency"`
}

// ExecutionSettings configures the execution driver's worker pool.
type ExecutionSettings struct {
	WorkerCount    int      `yaml:"worker_count"`
	QueueCapacity  int      `yaml:"queue_capacity"`
	CommitTimeout  Duration `yaml:"commit_timeout"`
}

// AdminSettings configures the admin/submission HTTP surface.
type AdminSettings struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ArchiveSettings configures the optional Postgres archival tables.
type ArchiveSettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// MetricsSettings configures Prometheus exposition.
type MetricsSettings struct {
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

// LoggingSettings configures process-wide logging.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML unmarshaling of strings like
// "250ms" or "5s", the same pattern anchor_config.go uses.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads path, substitutes environment variables, parses it as YAML,
// and fills unset fields with applyDefaults.
func Load(path string) (*ValidatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))

	var cfg ValidatorConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *ValidatorConfig) applyDefaults() {
	if c.Store.Path == "" {
		c.Store.Path = "./data/authority.db"
	}
	if c.Store.OpenTimeout == 0 {
		c.Store.OpenTimeout = Duration(10 * time.Second)
	}
	if c.Consensus.BroadcastTimeout == 0 {
		c.Consensus.BroadcastTimeout = Duration(5 * time.Second)
	}
	if c.Adapter.ReferenceGasPrice == 0 {
		c.Adapter.ReferenceGasPrice = 1000
	}
	if c.Adapter.AmplificationThreshold == 0 {
		c.Adapter.AmplificationThreshold = 2.0
	}
	if c.Adapter.MaxPendingTransactions == 0 {
		c.Adapter.MaxPendingTransactions = 20_000
	}
	if c.Adapter.MaxPendingLocalSubmissions == 0 {
		c.Adapter.MaxPendingLocalSubmissions = 2_000
	}
	if c.Adapter.MinDelay == 0 {
		c.Adapter.MinDelay = Duration(150 * time.Millisecond)
	}
	if c.Adapter.MaxDelay == 0 {
		c.Adapter.MaxDelay = Duration(3 * time.Second)
	}
	if c.Adapter.BaseLatency == 0 {
		c.Adapter.BaseLatency = Duration(time.Second)
	}
	if c.Execution.WorkerCount == 0 {
		c.Execution.WorkerCount = 8
	}
	if c.Execution.QueueCapacity == 0 {
		c.Execution.QueueCapacity = 4096
	}
	if c.Execution.CommitTimeout == 0 {
		c.Execution.CommitTimeout = Duration(30 * time.Second)
	}
	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = ":8080"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the minimum fields required to actually run a
// validator process, mirroring ValidateAnchorConfig's accumulate-errors
// style.
func (c *ValidatorConfig) Validate() error {
	var problems []string
	if c.Validator.Address == "" {
		problems = append(problems, "validator.address is required")
	}
	if c.Validator.BLSPrivateKeyPath == "" {
		problems = append(problems, "validator.bls_private_key_path is required")
	}
	if c.Consensus.RPCURL == "" {
		problems = append(problems, "consensus.rpc_url is required")
	}
	if len(problems) == 0 {
		return nil
	}
	err := fmt.Errorf("config: invalid configuration:")
	for _, p := range problems {
		err = fmt.Errorf("%w\n  - %s", err, p)
	}
	return err
}
