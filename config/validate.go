package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
)

// Validate checks the config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is empty")
	}
	switch cfg.Node.Backend {
	case BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("node.backend must be %q or %q", BackendBadger, BackendMemory)
	}
	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}

	addrs, err := cfg.OwnedAddresses()
	if err != nil {
		return err
	}
	seen := make(map[string]int, len(addrs))
	for i, a := range addrs {
		if j, dup := seen[a.Hex()]; dup {
			return fmt.Errorf("wallet.addresses[%d] repeats wallet.addresses[%d]", i, j)
		}
		seen[a.Hex()] = i
	}
	return nil
}
