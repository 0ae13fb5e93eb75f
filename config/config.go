package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRPCTimeout        = 30 * time.Second
	DefaultMaxBlockRangeSize = 500_000
	DefaultReconcileInterval = 5 * time.Minute
	DefaultReconcileLookback = 512
	DefaultOpsAddr           = ":2112"
)

type RPCConfig struct {
	Host    string
	Timeout time.Duration
	RPS     float64
}

type ChainConfig struct {
	RPC     *RPCConfig
	ChainID string
}

type ReconcileConfig struct {
	Interval       time.Duration
	LookbackBlocks uint
}

type IndexerConfig struct {
	ContractAddress    common.Address
	StartBlock         uint
	BlockConfirmations uint
	MaxBlockRangeSize  uint
	SafeLogsRequest    bool
	Reconcile          *ReconcileConfig
}

type OpsConfig struct {
	Addr string
}

type Config struct {
	Chain    *ChainConfig
	Indexer  *IndexerConfig
	Ops      *OpsConfig
	LogLevel logrus.Level
}

// rawConfig is the yaml schema of the config file. Scalar fields that need
// parsing beyond what yaml gives us (durations, addresses, log levels) are
// read as strings and converted in buildConfig.
type rawConfig struct {
	Chain struct {
		RPC struct {
			Host    string  `yaml:"host"`
			Timeout string  `yaml:"timeout"`
			RPS     float64 `yaml:"rps"`
		} `yaml:"rpc"`
		ChainID string `yaml:"chain_id"`
	} `yaml:"chain"`
	Indexer struct {
		ContractAddress    string `yaml:"contract_address"`
		StartBlock         uint   `yaml:"start_block"`
		BlockConfirmations uint   `yaml:"block_confirmations"`
		MaxBlockRangeSize  uint   `yaml:"max_block_range_size"`
		SafeLogsRequest    bool   `yaml:"safe_logs_request"`
		Reconcile          struct {
			Disabled       bool   `yaml:"disabled"`
			Interval       string `yaml:"interval"`
			LookbackBlocks uint   `yaml:"lookback_blocks"`
		} `yaml:"reconcile"`
	} `yaml:"indexer"`
	Ops struct {
		Addr string `yaml:"addr"`
	} `yaml:"ops"`
	LogLevel string `yaml:"log_level"`
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("can't parse %s duration: %w", name, err)
	}
	return d, nil
}

func buildConfig(raw *rawConfig) (*Config, error) {
	rpcTimeout, err := parseDuration("chain.rpc.timeout", raw.Chain.RPC.Timeout, DefaultRPCTimeout)
	if err != nil {
		return nil, err
	}

	var reconcile *ReconcileConfig
	if !raw.Indexer.Reconcile.Disabled {
		reconcile = &ReconcileConfig{LookbackBlocks: raw.Indexer.Reconcile.LookbackBlocks}
		reconcile.Interval, err = parseDuration("indexer.reconcile.interval", raw.Indexer.Reconcile.Interval, DefaultReconcileInterval)
		if err != nil {
			return nil, err
		}
		if reconcile.LookbackBlocks == 0 {
			reconcile.LookbackBlocks = DefaultReconcileLookback
		}
	}

	logLevel := logrus.InfoLevel
	if raw.LogLevel != "" {
		logLevel, err = logrus.ParseLevel(raw.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("can't parse log_level: %w", err)
		}
	}

	var contractAddress common.Address
	if raw.Indexer.ContractAddress != "" {
		if !common.IsHexAddress(raw.Indexer.ContractAddress) {
			return nil, fmt.Errorf("indexer.contract_address %q is not a valid hex address", raw.Indexer.ContractAddress)
		}
		contractAddress = common.HexToAddress(raw.Indexer.ContractAddress)
	}

	cfg := &Config{
		Chain: &ChainConfig{
			RPC: &RPCConfig{
				Host:    raw.Chain.RPC.Host,
				Timeout: rpcTimeout,
				RPS:     raw.Chain.RPC.RPS,
			},
			ChainID: raw.Chain.ChainID,
		},
		Indexer: &IndexerConfig{
			ContractAddress:    contractAddress,
			StartBlock:         raw.Indexer.StartBlock,
			BlockConfirmations: raw.Indexer.BlockConfirmations,
			MaxBlockRangeSize:  raw.Indexer.MaxBlockRangeSize,
			SafeLogsRequest:    raw.Indexer.SafeLogsRequest,
			Reconcile:          reconcile,
		},
		Ops: &OpsConfig{
			Addr: raw.Ops.Addr,
		},
		LogLevel: logLevel,
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (cfg *Config) applyDefaults() {
	if cfg.Indexer.MaxBlockRangeSize == 0 {
		cfg.Indexer.MaxBlockRangeSize = DefaultMaxBlockRangeSize
	}
	if cfg.Ops.Addr == "" {
		cfg.Ops.Addr = DefaultOpsAddr
	}
}

var zeroAddress common.Address

func (cfg *Config) Validate() error {
	if cfg.Chain.RPC.Host == "" {
		return fmt.Errorf("chain.rpc.host is required")
	}
	if cfg.Indexer.ContractAddress == zeroAddress {
		return fmt.Errorf("indexer.contract_address is required")
	}
	if cfg.Chain.RPC.RPS < 0 {
		return fmt.Errorf("chain.rpc.rps can't be negative")
	}
	return nil
}

// ReadConfigWithEnv parses blob as yaml after expanding ${VAR} references
// from the process environment.
func ReadConfigWithEnv(blob []byte) (*Config, error) {
	blob = []byte(os.ExpandEnv(string(blob)))

	raw := new(rawConfig)
	if err := parseYaml(raw, blob); err != nil {
		return nil, err
	}
	return buildConfig(raw)
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
