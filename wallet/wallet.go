// Package wallet provides key management and transaction-building helpers
// for a single identity. The identity registry (package identity) wraps
// this to manage many wallets under one data directory.
package wallet

import (
	"github.com/ruxir-ig/clawrrency/crypto"
	"github.com/ruxir-ig/clawrrency/ledger"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key, the account's sole
// identifier throughout the system.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx builds and signs a transaction of the given type. nonce should be
// the caller's current account nonce plus one.
func (w *Wallet) NewTx(typ ledger.TxType, to string, amount, nonce uint64, data any) (*ledger.Transaction, error) {
	tx, err := ledger.NewTransaction(typ, w.pub.Hex(), to, amount, nonce, data)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer builds and signs a transfer transaction.
func (w *Wallet) Transfer(to string, amount, nonce uint64) (*ledger.Transaction, error) {
	return w.NewTx(ledger.TxTransfer, to, amount, nonce, nil)
}
