package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envConfig mirrors rawConfig for deployments configured purely through the
// environment, without a config file.
type envConfig struct {
	RPCHost            string        `env:"SHOP_RPC_HOST,required"`
	RPCTimeout         time.Duration `env:"SHOP_RPC_TIMEOUT" envDefault:"30s"`
	RPCRPS             float64       `env:"SHOP_RPC_RPS" envDefault:"0"`
	ChainID            string        `env:"SHOP_CHAIN_ID"`
	ContractAddress    string        `env:"SHOP_CONTRACT_ADDRESS,required"`
	StartBlock         uint          `env:"SHOP_START_BLOCK" envDefault:"0"`
	BlockConfirmations uint          `env:"SHOP_BLOCK_CONFIRMATIONS" envDefault:"0"`
	MaxBlockRangeSize  uint          `env:"SHOP_MAX_BLOCK_RANGE_SIZE" envDefault:"500000"`
	SafeLogsRequest    bool          `env:"SHOP_SAFE_LOGS_REQUEST" envDefault:"false"`
	ReconcileDisabled  bool          `env:"SHOP_RECONCILE_DISABLED" envDefault:"false"`
	ReconcileInterval  time.Duration `env:"SHOP_RECONCILE_INTERVAL" envDefault:"5m"`
	ReconcileLookback  uint          `env:"SHOP_RECONCILE_LOOKBACK_BLOCKS" envDefault:"512"`
	OpsAddr            string        `env:"SHOP_OPS_ADDR" envDefault:":2112"`
	LogLevel           string        `env:"SHOP_LOG_LEVEL" envDefault:"info"`
}

// ReadConfigFromEnv assembles the config from SHOP_* environment variables.
// A .env file in the working directory is loaded first if present.
func ReadConfigFromEnv() (*Config, error) {
	_ = godotenv.Load()

	envCfg := new(envConfig)
	if err := env.Parse(envCfg); err != nil {
		return nil, fmt.Errorf("can't parse environment config: %w", err)
	}

	raw := new(rawConfig)
	raw.Chain.RPC.Host = envCfg.RPCHost
	raw.Chain.RPC.Timeout = envCfg.RPCTimeout.String()
	raw.Chain.RPC.RPS = envCfg.RPCRPS
	raw.Chain.ChainID = envCfg.ChainID
	raw.Indexer.ContractAddress = envCfg.ContractAddress
	raw.Indexer.StartBlock = envCfg.StartBlock
	raw.Indexer.BlockConfirmations = envCfg.BlockConfirmations
	raw.Indexer.MaxBlockRangeSize = envCfg.MaxBlockRangeSize
	raw.Indexer.SafeLogsRequest = envCfg.SafeLogsRequest
	raw.Indexer.Reconcile.Disabled = envCfg.ReconcileDisabled
	raw.Indexer.Reconcile.Interval = envCfg.ReconcileInterval.String()
	raw.Indexer.Reconcile.LookbackBlocks = envCfg.ReconcileLookback
	raw.Ops.Addr = envCfg.OpsAddr
	raw.LogLevel = envCfg.LogLevel

	return buildConfig(raw)
}
