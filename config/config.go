// Package config holds node configuration: data directory, the fixed
// validator set used by consensus, economic parameters, and optional mTLS
// material for the validator-to-validator transport.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS between
// validators. When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// SeedPeer identifies a remote validator to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // validator pubkey hex
	Addr string `json:"addr"` // host:port
}

// GenesisConfig describes the chain's initial account balances.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // pubkey hex -> initial balance
}

// EconomicConfig records the fee, staking, and reward parameters. Load
// starts from DefaultConfig, so fields absent from the file keep those
// defaults. The econ and ledger packages do not read this struct; the
// formulas use the fixed constants defined in those packages.
type EconomicConfig struct {
	BaseFee               uint64  `json:"base_fee"`
	RegisterStake         uint64  `json:"register_stake"`
	AttestedStakeDiscount uint64  `json:"attested_stake"`
	AttesterMinReputation float64 `json:"attester_min_reputation"`
	StakeLockDays         int     `json:"stake_lock_days"`
	ValidatorRewardPerTx  uint64  `json:"validator_reward_per_tx"`
	TreasuryRewardPerTx   uint64  `json:"treasury_reward_per_tx"`
}

// Config holds all node configuration.
type Config struct {
	NodeID         string   `json:"node_id"`
	DataDir        string   `json:"data_dir"`
	RPCPort        int      `json:"rpc_port"`
	P2PPort        int      `json:"p2p_port"`
	MaxPendingTxs  int      `json:"max_pending_txs"` // not read by consensus; each pre-prepare carries one tx
	Validators     []string `json:"validators"`      // validator pubkey hexes, stable order (self first)
	ViewTimeoutMS  int      `json:"view_timeout_ms"` // PBFT view-change timeout

	Genesis      GenesisConfig  `json:"genesis"`
	Economics    EconomicConfig `json:"economics"`
	SeedPeers    []SeedPeer     `json:"seed_peers,omitempty"`
	TLS          *TLSConfig     `json:"tls,omitempty"`
	RPCAuthToken string         `json:"rpc_auth_token,omitempty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		RPCPort:       8645,
		P2PPort:       31303,
		MaxPendingTxs: 500,
		ViewTimeoutMS: 4000,
		Genesis: GenesisConfig{
			ChainID: "clawrrency-dev",
			Alloc:   map[string]uint64{},
		},
		Economics: EconomicConfig{
			BaseFee:               1,
			RegisterStake:         50,
			AttestedStakeDiscount: 25,
			AttesterMinReputation: 100,
			StakeLockDays:         30,
			ValidatorRewardPerTx:  10,
			TreasuryRewardPerTx:   5,
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if len(c.Validators) == 0 {
		return fmt.Errorf("validators list must not be empty")
	}
	for i, v := range c.Validators {
		b, err := hex.DecodeString(v)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("validators[%d]: must be 64-char hex (32 bytes ed25519 pubkey), got %q", i, v)
		}
	}
	if c.ViewTimeoutMS <= 0 {
		return fmt.Errorf("view_timeout_ms must be > 0")
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
