package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/pelletier/go-toml/v2"
	"hyc/hyc-node/fieldhash"
	merkle_tree "hyc/hyc-node/merkle-tree"
)

const (
	DisbursementSync  = "sync"
	DisbursementQueue = "queue"

	// FeeDivisor is the denominator of PoolConfig.PercentFee.
	FeeDivisor = 100_000

	// DefaultZeroValue is keccak256("tornado") reduced into the BN254 scalar field.
	DefaultZeroValue = "21663839004416932945382355908790599225266501822907911457504978515578255421292"
)

type Config struct {
	Pool         PoolConfig         `toml:"pool"`
	Commitments  TreeConfig         `toml:"commitments"`
	Whitelist    TreeConfig         `toml:"whitelist"`
	Verifier     VerifierConfig     `toml:"verifier"`
	Server       ServerConfig       `toml:"server"`
	Redis        RedisConfig        `toml:"redis"`
	Disbursement DisbursementConfig `toml:"disbursement"`
	Log          LogConfig          `toml:"log"`
}

type PoolConfig struct {
	Owner    string `toml:"owner"`
	Currency string `toml:"currency"`
	// DepositValue is a decimal or 0x-prefixed integer; denominations overflow int64.
	DepositValue string `toml:"deposit_value"`
	// PercentFee is expressed over 100_000.
	PercentFee uint64           `toml:"percent_fee"`
	MaxRisk    uint8            `toml:"max_risk"`
	Risk       map[string]uint8 `toml:"risk"`
}

type TreeConfig struct {
	Height     uint32 `toml:"height"`
	RootWindow uint32 `toml:"root_window"`
	ZeroValue  string `toml:"zero_value"`
}

type VerifierConfig struct {
	VerifyingKey string `toml:"verifying_key"`
	ProvingKey   string `toml:"proving_key"`
}

type ServerConfig struct {
	Address        string   `toml:"address"`
	MetricsAddress string   `toml:"metrics_address"`
	APIKey         string   `toml:"api_key"`
	CORSOrigins    []string `toml:"cors_origins"`
}

type RedisConfig struct {
	URL     string `toml:"url"`
	Enabled bool   `toml:"enabled"`
	Prefix  string `toml:"prefix"`
}

type DisbursementConfig struct {
	Mode    string `toml:"mode"`
	Workers int    `toml:"workers"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

func Default() Config {
	return Config{
		Pool: PoolConfig{
			Currency:     "near",
			DepositValue: "10000000000000000000000000",
		},
		Commitments: TreeConfig{Height: 20, RootWindow: 20, ZeroValue: DefaultZeroValue},
		Whitelist:   TreeConfig{Height: 20, RootWindow: 20, ZeroValue: DefaultZeroValue},
		Server: ServerConfig{
			Address:        "0.0.0.0:3001",
			MetricsAddress: "0.0.0.0:9998",
			CORSOrigins:    []string{"*"},
		},
		Redis:        RedisConfig{Prefix: "hyc"},
		Disbursement: DisbursementConfig{Mode: DisbursementSync, Workers: 1},
		Log:          LogConfig{Level: "info"},
	}
}

// ReadConfig decodes file on top of Default, so a config only needs to name what it changes.
func ReadConfig(file string) (Config, error) {
	cfg := Default()
	configFileData, err := os.ReadFile(file)
	if err != nil {
		return cfg, err
	}
	err = toml.Unmarshal(configFileData, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", file, err)
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Pool.Owner == "" {
		return fmt.Errorf("pool.owner is required")
	}
	deposit, err := cfg.DepositValue()
	if err != nil {
		return err
	}
	if deposit.Sign() <= 0 {
		return fmt.Errorf("pool.deposit_value must be positive")
	}
	if cfg.Pool.PercentFee >= FeeDivisor {
		return fmt.Errorf("pool.percent_fee must be below %d, got %d", FeeDivisor, cfg.Pool.PercentFee)
	}
	if _, err := cfg.Commitments.Params(); err != nil {
		return fmt.Errorf("commitments: %w", err)
	}
	if _, err := cfg.Whitelist.Params(); err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}
	switch cfg.Disbursement.Mode {
	case DisbursementSync:
	case DisbursementQueue:
		if !cfg.Redis.Enabled {
			return fmt.Errorf("disbursement mode %q requires redis.enabled", DisbursementQueue)
		}
	default:
		return fmt.Errorf("unknown disbursement mode %q", cfg.Disbursement.Mode)
	}
	if cfg.Disbursement.Workers < 1 {
		return fmt.Errorf("disbursement.workers must be at least 1")
	}
	if cfg.Redis.Enabled && cfg.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}
	return nil
}

func (cfg *Config) DepositValue() (*big.Int, error) {
	v, err := ParseInt(cfg.Pool.DepositValue)
	if err != nil {
		return nil, fmt.Errorf("pool.deposit_value: %w", err)
	}
	return v, nil
}

func (t TreeConfig) Params() (merkle_tree.Params, error) {
	var params merkle_tree.Params
	zero, err := ParseInt(t.ZeroValue)
	if err != nil {
		return params, fmt.Errorf("zero_value: %w", err)
	}
	params.Height = t.Height
	params.RootWindow = t.RootWindow
	params.ZeroValue.Set(zero)
	return params, params.Validate()
}

// ParseInt accepts decimal and 0x-prefixed hex.
func ParseInt(s string) (*big.Int, error) {
	return fieldhash.ParseUint(s)
}
