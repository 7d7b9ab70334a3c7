// Package ledger implements the transaction and account-balance engine: the
// authoritative state transition function for transfers, minting, burning,
// staking, and the value-moving side of skill-marketplace purchases.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruxir-ig/clawrrency/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer      TxType = "transfer"
	TxMint          TxType = "mint"
	TxBurn          TxType = "burn"
	TxStake         TxType = "stake"
	TxSkillCreate   TxType = "skill_create"
	TxSkillPurchase TxType = "skill_purchase"
)

// Transaction is the atomic unit of ledger mutation. Amount is denominated
// in shells (the integer unit of account). To is empty for types that don't
// move value between two accounts (mint/burn/stake). Data carries a typed
// payload for skill_create/skill_purchase and is otherwise omitted.
//
// Signature covers the canonical hash of every other field; see Hash.
type Transaction struct {
	Version   int             `json:"version"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	To        string          `json:"to,omitempty"`
	Amount    uint64          `json:"amount"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"` // milliseconds since epoch
	Data      json.RawMessage `json:"data,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// signingBody holds the fields covered by the transaction's signature: every
// field of Transaction except Signature itself.
type signingBody struct {
	Version   int             `json:"version"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	Amount    uint64          `json:"amount"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Hash returns the transaction digest: the hex-encoded SHA-256 of the
// canonical JSON encoding of every field except Signature. This digest is
// the transaction's stable identity (its ID) and the value the signature
// covers.
func (tx *Transaction) Hash() string {
	body := signingBody{
		Version:   tx.Version,
		Type:      tx.Type,
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount,
		Nonce:     tx.Nonce,
		Timestamp: tx.Timestamp,
		Data:      tx.Data,
	}
	h, err := crypto.HashCanonical(body)
	if err != nil {
		return ""
	}
	return h
}

// Sign computes the digest and signs its hex form, per the module-wide
// convention of signing the hex-encoded ASCII hash rather than raw bytes.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	tx.Signature = crypto.SignHash(priv, tx.Hash())
}

// Verify checks the signature against From and that From decodes to a
// valid 32-byte ed25519 public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return fmt.Errorf("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.VerifyHash(pub, tx.Hash(), tx.Signature)
}

// NewTransaction builds an unsigned transaction with the given nonce and
// the current wall-clock timestamp in milliseconds.
func NewTransaction(typ TxType, from, to string, amount uint64, nonce uint64, data any) (*Transaction, error) {
	tx := &Transaction{
		Version:   1,
		Type:      typ,
		From:      from,
		To:        to,
		Amount:    amount,
		Nonce:     nonce,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		tx.Data = raw
	}
	return tx, nil
}

// Account holds a participant's spendable balance, replay-protection nonce,
// reputation, and stake state. Keyed externally by the hex-encoded public
// key (Account itself does not store its own key).
type Account struct {
	Balance        uint64  `json:"balance"`
	Nonce          uint64  `json:"nonce"` // last consumed nonce, 0 if none
	Reputation     float64 `json:"reputation"`
	CreatedAt      int64   `json:"created_at"`       // unix millis
	LastActiveAt   int64   `json:"last_active_at"`   // unix millis
	StakeLocked    uint64  `json:"stake_locked"`
	StakeUnlockAt  int64   `json:"stake_unlock_at,omitempty"` // unix millis, 0 if unset

	// Activity counters feeding the reputation formula (econ.Reputation).
	Trades        uint64 `json:"trades"`
	SkillsCreated uint64 `json:"skills_created"`
	UptimeHours   uint64 `json:"uptime_hours"`
	GovVotes      uint64 `json:"gov_votes"`
	DisputesLost  uint64 `json:"disputes_lost"`
	SpamFlags     uint64 `json:"spam_flags"`
}

// StoredTx is the persisted record of an applied transaction: the
// transaction itself plus the ledger-assigned block height and apply time.
type StoredTx struct {
	Tx          *Transaction `json:"tx"`
	BlockHeight uint64       `json:"block_height"`
	AppliedAt   int64        `json:"applied_at"` // unix millis
}
