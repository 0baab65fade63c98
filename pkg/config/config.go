package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/meridian/pkg/consensus"
	"github.com/cuemby/meridian/pkg/log"
)

// NodeConfig is the on-disk shape of a validator's configuration file.
type NodeConfig struct {
	Validator ValidatorConfig `yaml:"validator"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ValidatorConfig struct {
	ID    int      `yaml:"id"`
	Peers []string `yaml:"peers"`
}

// ConsensusConfig mirrors consensus.Config with YAML-friendly duration
// strings (spec.md §6's tunables table).
type ConsensusConfig struct {
	FirstRoundTimeout       string  `yaml:"first_round_timeout"`
	RoundTimeoutIncreasePct float64 `yaml:"round_timeout_increase_pct"`
	ProposeTimeout          string  `yaml:"propose_timeout"`
	StatusTimeout           string  `yaml:"status_timeout"`
	PeersTimeout            string  `yaml:"peers_timeout"`
	TxsBlockLimit           int     `yaml:"txs_block_limit"`
	MaxMessageLen           int     `yaml:"max_message_len"`
	FlushPoolStrategy       string  `yaml:"flush_pool_strategy"`
	FlushTimeout            string  `yaml:"flush_timeout"`
	StrictProposeOrdering   bool    `yaml:"strict_propose_ordering"`
	SmallBatchThreshold     int     `yaml:"small_batch_threshold"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

func defaultNodeConfig() NodeConfig {
	d := consensus.DefaultConfig()
	return NodeConfig{
		Consensus: ConsensusConfig{
			FirstRoundTimeout:       d.FirstRoundTimeout.String(),
			RoundTimeoutIncreasePct: d.RoundTimeoutIncreasePct,
			ProposeTimeout:          d.ProposeTimeout.String(),
			StatusTimeout:           d.StatusTimeout.String(),
			PeersTimeout:            d.PeersTimeout.String(),
			TxsBlockLimit:           d.TxsBlockLimit,
			MaxMessageLen:           d.MaxMessageLen,
			FlushPoolStrategy:       "immediate",
			FlushTimeout:            d.FlushTimeout.String(),
			StrictProposeOrdering:   d.StrictProposeOrdering,
			SmallBatchThreshold:     d.SmallBatchThreshold,
		},
		Storage: StorageConfig{DataDir: "./data"},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{ListenAddr: ":9090"},
	}
}

// Load reads and parses a YAML node configuration file at path, layering it
// over defaultNodeConfig so an operator only needs to specify overrides.
func Load(path string) (NodeConfig, error) {
	cfg := defaultNodeConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return NodeConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ToConsensusConfig parses every duration string and validates
// flush_pool_strategy, producing a consensus.Config.
func (c NodeConfig) ToConsensusConfig() (consensus.Config, error) {
	first, err := time.ParseDuration(c.Consensus.FirstRoundTimeout)
	if err != nil {
		return consensus.Config{}, fmt.Errorf("config: first_round_timeout: %w", err)
	}
	propose, err := time.ParseDuration(c.Consensus.ProposeTimeout)
	if err != nil {
		return consensus.Config{}, fmt.Errorf("config: propose_timeout: %w", err)
	}
	status, err := time.ParseDuration(c.Consensus.StatusTimeout)
	if err != nil {
		return consensus.Config{}, fmt.Errorf("config: status_timeout: %w", err)
	}
	peers, err := time.ParseDuration(c.Consensus.PeersTimeout)
	if err != nil {
		return consensus.Config{}, fmt.Errorf("config: peers_timeout: %w", err)
	}
	flushTimeout, err := time.ParseDuration(c.Consensus.FlushTimeout)
	if err != nil {
		return consensus.Config{}, fmt.Errorf("config: flush_timeout: %w", err)
	}
	strategy, err := parseFlushStrategy(c.Consensus.FlushPoolStrategy)
	if err != nil {
		return consensus.Config{}, err
	}

	return consensus.Config{
		FirstRoundTimeout:       first,
		RoundTimeoutIncreasePct: c.Consensus.RoundTimeoutIncreasePct,
		ProposeTimeout:          propose,
		StatusTimeout:           status,
		PeersTimeout:            peers,
		TxsBlockLimit:           c.Consensus.TxsBlockLimit,
		MaxMessageLen:           c.Consensus.MaxMessageLen,
		FlushPoolStrategy:       strategy,
		FlushTimeout:            flushTimeout,
		StrictProposeOrdering:   c.Consensus.StrictProposeOrdering,
		SmallBatchThreshold:     c.Consensus.SmallBatchThreshold,
	}, nil
}

func parseFlushStrategy(s string) (consensus.FlushPoolStrategy, error) {
	switch s {
	case "", "immediate":
		return consensus.FlushImmediate, nil
	case "timeout":
		return consensus.FlushOnTimeout, nil
	case "on_majority":
		return consensus.FlushOnMajority, nil
	default:
		return 0, fmt.Errorf("config: unknown flush_pool_strategy %q", s)
	}
}

// LogConfig converts the YAML logging section into log.Config.
func (c NodeConfig) LogConfig() log.Config {
	level := log.InfoLevel
	switch c.Logging.Level {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	return log.Config{Level: level, JSONOutput: c.Logging.JSONOutput}
}
