package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`
	Env        string `toml:"Env"`
	// LogFile enables rotating file output when set; stdout is always used.
	LogFile string `toml:"LogFile,omitempty"`

	Lending LendingConfig `toml:"lending"`
	Tokens  []TokenConfig `toml:"tokens,omitempty"`
	Prices  []PriceConfig `toml:"prices,omitempty"`
}

// LendingConfig carries the risk parameters applied at startup.
type LendingConfig struct {
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	TeamAddress             string `toml:"TeamAddress,omitempty"`
}

// TokenConfig provisions a token in the vault at startup.
type TokenConfig struct {
	Address  string `toml:"Address"`
	Decimals uint8  `toml:"Decimals"`
}

// PriceConfig seeds a static oracle quote. Price is an 18-decimal fixed-point
// integer rendered as a decimal string.
type PriceConfig struct {
	Source string `toml:"Source"`
	Price  string `toml:"Price"`
}

// Load reads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./crosslend-data"
	}
	if cfg.Env == "" {
		cfg.Env = "local"
	}
	if cfg.Lending.LiquidationThresholdBps == 0 {
		cfg.Lending.LiquidationThresholdBps = 8_000
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
