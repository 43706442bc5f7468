// Copyright 2025 Certen Protocol
//
// Relayer Configuration Loader
//
// This package loads relayer configuration from a YAML file, with
// ${VAR_NAME} environment-variable substitution and a set of
// RELAYER_*-prefixed environment overrides applied on top, matching the
// precedence file-then-env convention the validator's anchor config
// loader uses.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ==============================================================================
// Configuration Structures
// ==============================================================================

// Config is the relayer's root configuration: one entry per origin chain,
// one per destination chain, shared lander tuning, and metrics/server
// settings.
type Config struct {
	Origins      []OriginConfig      `yaml:"origins"`
	Destinations []DestinationConfig `yaml:"destinations"`
	Lander       LanderConfig        `yaml:"lander"`
	Metrics      MetricsConfig       `yaml:"metrics"`
	Server       ServerConfig        `yaml:"server"`
	DatabaseURL  string              `yaml:"database_url"`
	DataDir      string              `yaml:"data_dir"`
	LogLevel     string              `yaml:"log_level"`
}

// OriginConfig configures one origin chain's indexer and reorg policy.
type OriginConfig struct {
	Domain                   uint32        `yaml:"domain"`
	Name                     string        `yaml:"name"`
	ChainID                  uint64        `yaml:"chain_id"`
	RPCURL                   string        `yaml:"rpc_url"`
	MailboxAddress           string        `yaml:"mailbox_address"`
	MerkleHookAddress        string        `yaml:"merkle_hook_address"`
	ValidatorAnnounceAddress string        `yaml:"validator_announce_address"`
	ReorgPeriod              uint32        `yaml:"reorg_period"`
	StartBlock               uint64        `yaml:"start_block"`
	PollInterval             time.Duration `yaml:"poll_interval"`
}

// DestinationConfig configures one destination chain's mailbox and
// message-processor policy.
type DestinationConfig struct {
	Domain         uint32        `yaml:"domain"`
	Name           string        `yaml:"name"`
	ChainID        uint64        `yaml:"chain_id"`
	RPCURL         string        `yaml:"rpc_url"`
	MailboxAddress string        `yaml:"mailbox_address"`
	MaxRetries     int           `yaml:"max_retries"`
	AllowedSenders []string      `yaml:"allowed_senders"`
	DeniedSenders  []string      `yaml:"denied_senders"`
	BlockTime      time.Duration `yaml:"block_time"`
}

// LanderConfig tunes the transaction-lander pipeline shared across every
// destination.
type LanderConfig struct {
	SignerKeyPath        string        `yaml:"signer_key_path"`
	MinResubmissionDelay time.Duration `yaml:"min_resubmission_delay"`
	MaxBatchSize         uint32        `yaml:"max_batch_size"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ServerConfig configures the operator-facing admin HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ==============================================================================
// Configuration Loading
// ==============================================================================

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig loads relayer configuration from a YAML file at path.
// ${VAR_NAME} references in the file are substituted from the process
// environment before parsing, then a handful of RELAYER_*-prefixed
// variables override the parsed result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultConfig returns a Config with conservative, non-production
// defaults populated for every field not otherwise overridden.
func DefaultConfig() *Config {
	return &Config{
		Lander: LanderConfig{
			MinResubmissionDelay: 30 * time.Second,
			MaxBatchSize:         32,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:9090",
		},
		Server: ServerConfig{
			Addr: "0.0.0.0:8080",
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// substituteEnvVars replaces every ${VAR_NAME} in content with the
// corresponding environment variable's value, leaving the reference
// untouched if the variable is unset.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// applyEnvOverrides layers a small set of RELAYER_*-prefixed environment
// variables on top of the parsed file, following the teacher's
// getEnv/getEnvInt/getEnvBool fallback idiom.
func applyEnvOverrides(cfg *Config) {
	cfg.DatabaseURL = getEnv("RELAYER_DATABASE_URL", cfg.DatabaseURL)
	cfg.DataDir = getEnv("RELAYER_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("RELAYER_LOG_LEVEL", cfg.LogLevel)
	cfg.Server.Addr = getEnv("RELAYER_SERVER_ADDR", cfg.Server.Addr)
	cfg.Metrics.Addr = getEnv("RELAYER_METRICS_ADDR", cfg.Metrics.Addr)
	cfg.Metrics.Enabled = getEnvBool("RELAYER_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Lander.SignerKeyPath = getEnv("RELAYER_SIGNER_KEY_PATH", cfg.Lander.SignerKeyPath)
	cfg.Lander.MaxBatchSize = uint32(getEnvInt("RELAYER_LANDER_MAX_BATCH_SIZE", int(cfg.Lander.MaxBatchSize)))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// ==============================================================================
// Validation
// ==============================================================================

// Validate checks that the configuration is complete enough to start the
// relayer: at least one origin and one destination, unique domains, and
// a signer key for landing transactions.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Origins) == 0 {
		errs = append(errs, "at least one origin chain is required")
	}
	if len(c.Destinations) == 0 {
		errs = append(errs, "at least one destination chain is required")
	}
	if c.Lander.SignerKeyPath == "" {
		errs = append(errs, "lander.signer_key_path is required")
	}

	seen := make(map[uint32]bool)
	for _, o := range c.Origins {
		if o.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("origin %d (%s): rpc_url is required", o.Domain, o.Name))
		}
		if seen[o.Domain] {
			errs = append(errs, fmt.Sprintf("duplicate domain %d across origins/destinations", o.Domain))
		}
		seen[o.Domain] = true
	}
	for _, d := range c.Destinations {
		if d.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("destination %d (%s): rpc_url is required", d.Domain, d.Name))
		}
		if seen[d.Domain] {
			errs = append(errs, fmt.Sprintf("duplicate domain %d across origins/destinations", d.Domain))
		}
		seen[d.Domain] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %v", errs)
	}
	return nil
}
