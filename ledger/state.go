package ledger

// State is the storage contract the ledger engine mutates through. It owns
// three keyspaces: accounts, the global applied-transaction log, and each
// account's per-address transaction index. Implementations must support
// snapshot/rollback so apply_transaction never leaves torn state behind a
// failed check.
type State interface {
	// GetAccount returns the account for pk, or a zero-value Account
	// (balance 0, nonce 0) if none exists yet — creation is implicit on
	// first SetAccount.
	GetAccount(pk string) (*Account, error)
	SetAccount(pk string, acc *Account) error
	// HasAccount reports whether pk has ever been given a balance via
	// create_account (distinguishing "never created" from "zero balance").
	HasAccount(pk string) (bool, error)

	GetStoredTx(digest string) (*StoredTx, error) // storage.ErrNotFound if absent
	PutStoredTx(stx *StoredTx) error

	// AppendGlobalTx and AppendAccountTx record digest in the respective
	// insertion-ordered index. Call once per apply, after PutStoredTx.
	AppendGlobalTx(digest string) error
	AppendAccountTx(pk, digest string) error

	// AllTxDigests returns every applied digest in insertion (apply) order.
	AllTxDigests() ([]string, error)
	// AccountTxDigests returns pk's applied digests in insertion order.
	AccountTxDigests(pk string) ([]string, error)

	BlockHeight() (uint64, error)
	// IncrementBlockHeight advances and returns the new height.
	IncrementBlockHeight() (uint64, error)

	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	Commit() error
}
