package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the node-level settings for the ringfund service. Engine
// parameters are expressed in basis points and seconds so the file stays free
// of float arithmetic.
type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	RPCToken   string `toml:"RPCToken"`
	DataDir    string `toml:"DataDir"`

	// SafetyMarginBps scales the minimum collateral requirement (>10000).
	SafetyMarginBps uint64 `toml:"SafetyMarginBps"`
	// SolvencyThresholdBps is the under-collateralization cutoff.
	SolvencyThresholdBps uint64 `toml:"SolvencyThresholdBps"`
	// YieldFractionBps is the share of opted-in collateral forwarded to the
	// yield provider on term start.
	YieldFractionBps uint64 `toml:"YieldFractionBps"`

	OracleMaxQuoteAgeSeconds int64 `toml:"OracleMaxQuoteAgeSeconds"`
	FundDormancySeconds      int64 `toml:"FundDormancySeconds"`

	// YieldLocked forces opt-out for all new yield deposits.
	YieldLocked bool `toml:"YieldLocked"`
}

// Load loads the configuration from the given path, writing a default file if
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects degenerate engine parameters before any engine is built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.SafetyMarginBps <= 10_000 {
		return fmt.Errorf("config: SafetyMarginBps must exceed 10000, got %d", c.SafetyMarginBps)
	}
	if c.SolvencyThresholdBps == 0 || c.SolvencyThresholdBps > c.SafetyMarginBps {
		return fmt.Errorf("config: SolvencyThresholdBps must be in (0, SafetyMarginBps], got %d", c.SolvencyThresholdBps)
	}
	if c.YieldFractionBps > 10_000 {
		return fmt.Errorf("config: YieldFractionBps must not exceed 10000, got %d", c.YieldFractionBps)
	}
	if c.OracleMaxQuoteAgeSeconds <= 0 {
		return fmt.Errorf("config: OracleMaxQuoteAgeSeconds must be positive, got %d", c.OracleMaxQuoteAgeSeconds)
	}
	if c.FundDormancySeconds <= 0 {
		return fmt.Errorf("config: FundDormancySeconds must be positive, got %d", c.FundDormancySeconds)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = def.RPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.SafetyMarginBps == 0 {
		cfg.SafetyMarginBps = def.SafetyMarginBps
	}
	if cfg.SolvencyThresholdBps == 0 {
		cfg.SolvencyThresholdBps = def.SolvencyThresholdBps
	}
	if cfg.YieldFractionBps == 0 {
		cfg.YieldFractionBps = def.YieldFractionBps
	}
	if cfg.OracleMaxQuoteAgeSeconds == 0 {
		cfg.OracleMaxQuoteAgeSeconds = def.OracleMaxQuoteAgeSeconds
	}
	if cfg.FundDormancySeconds == 0 {
		cfg.FundDormancySeconds = def.FundDormancySeconds
	}
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress:               ":8545",
		DataDir:                  "./ring-data",
		SafetyMarginBps:          15_000,
		SolvencyThresholdBps:     10_000,
		YieldFractionBps:         9_000,
		OracleMaxQuoteAgeSeconds: 300,
		FundDormancySeconds:      180 * 24 * 3600,
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
