package config

import (
	"fmt"
	"math/big"

	"crosslend/crypto"
)

// Validate rejects configurations the daemon could not start with.
func Validate(cfg *Config) error {
	if cfg.Lending.LiquidationThresholdBps < 5_000 || cfg.Lending.LiquidationThresholdBps > 9_500 {
		return fmt.Errorf("lending: LiquidationThresholdBps %d outside [5000, 9500]", cfg.Lending.LiquidationThresholdBps)
	}
	if cfg.Lending.TeamAddress != "" {
		if _, err := crypto.DecodeAddress(cfg.Lending.TeamAddress); err != nil {
			return fmt.Errorf("lending: invalid TeamAddress: %w", err)
		}
	}
	for i, token := range cfg.Tokens {
		if _, err := crypto.DecodeAddress(token.Address); err != nil {
			return fmt.Errorf("tokens[%d]: invalid Address: %w", i, err)
		}
		switch token.Decimals {
		case 6, 8, 18:
		default:
			return fmt.Errorf("tokens[%d]: Decimals must be 6, 8 or 18", i)
		}
	}
	for i, price := range cfg.Prices {
		if _, err := crypto.DecodeAddress(price.Source); err != nil {
			return fmt.Errorf("prices[%d]: invalid Source: %w", i, err)
		}
		value, ok := new(big.Int).SetString(price.Price, 10)
		if !ok || value.Sign() <= 0 {
			return fmt.Errorf("prices[%d]: Price must be a positive integer string", i)
		}
	}
	return nil
}
