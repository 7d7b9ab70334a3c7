package config

import (
	"github.com/ruxir-ig/clawrrency/coreerrors"
	"github.com/ruxir-ig/clawrrency/ledger"
)

// ApplyGenesis seeds every account in cfg's Genesis.Alloc map with its
// initial balance; accounts that already exist are left unchanged. Replaces the previous CreateGenesisBlock, which signed
// a block #0 carrying a state root: this system commits one transaction
// per consensus sequence and has no block or state-root concept to seal,
// so genesis reduces to a batch of account seeds applied once, before
// consensus starts.
func ApplyGenesis(cfg *Config, led *ledger.Engine) error {
	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		if err := led.CreateAccount(pubkeyHex, balance); err != nil {
			if code, ok := coreerrors.CodeOf(err); ok && code == coreerrors.CodeInvalidArgument {
				continue // already seeded on an earlier start
			}
			return err
		}
	}
	return nil
}
