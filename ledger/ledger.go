package ledger

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ruxir-ig/clawrrency/coreerrors"
	"github.com/ruxir-ig/clawrrency/econ"
)

// BaseFee is the fixed transfer-type fee (shells) before priority
// adjustment; default base fee of 1.
const BaseFee = uint64(1)

// Engine is the authoritative state-transition function: accounts,
// balances, nonces, and the applied-transaction log. All mutating
// operations are serialized by a single coarse mutex, matching the
// single-logical-execution-context model.
type Engine struct {
	mu    sync.Mutex
	state State
	log   *logrus.Logger
}

// New constructs a ledger Engine over state. A nil logger falls back to
// logrus's standard logger.
func New(state State, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{state: state, log: log}
}

// CreateAccount seeds pk with initialBalance. Fails if pk is already
// present.
func (e *Engine) CreateAccount(pk string, initialBalance uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	exists, err := e.state.HasAccount(pk)
	if err != nil {
		return err
	}
	if exists {
		return coreerrors.New(coreerrors.CodeInvalidArgument, "account %s already exists", pk)
	}
	now := time.Now().UnixMilli()
	acc := &Account{
		Balance:      initialBalance,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := e.state.SetAccount(pk, acc); err != nil {
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"pk": pk, "balance": initialBalance}).Info("account created")
	return nil
}

// GetAccount returns a copy of pk's account, or a zero-value account if pk
// was never created.
func (e *Engine) GetAccount(pk string) (*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GetAccount(pk)
}

// GetBalance returns pk's balance, 0 if the account does not exist.
func (e *Engine) GetBalance(pk string) (uint64, error) {
	acc, err := e.GetAccount(pk)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// BlockHeight returns the current block height.
func (e *Engine) BlockHeight() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.BlockHeight()
}

// ApplyTransaction is the authoritative state-transition function,
// implementing the ordered check sequence below. No step mutates
// state until every check preceding it has passed.
func (e *Engine) ApplyTransaction(tx *Transaction) (*StoredTx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	digest := tx.Hash()

	// 1. Reject duplicates.
	if _, err := e.state.GetStoredTx(digest); err == nil {
		return nil, coreerrors.New(coreerrors.CodeDuplicateTx, "transaction %s already applied", digest)
	}

	// 2. Load sender.
	senderExists, err := e.state.HasAccount(tx.From)
	if err != nil {
		return nil, err
	}
	if !senderExists {
		return nil, coreerrors.New(coreerrors.CodeUnknownSender, "unknown sender %s", tx.From)
	}
	sender, err := e.state.GetAccount(tx.From)
	if err != nil {
		return nil, err
	}

	// 3. Nonce check.
	expected := sender.Nonce + 1
	if tx.Nonce != expected {
		return nil, coreerrors.New(coreerrors.CodeInvalidNonce, "expected nonce %d, got %d", expected, tx.Nonce)
	}

	// 4. Signature verification over the recomputed digest.
	if err := tx.Verify(); err != nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidSignature, "%v", err)
	}

	// 5. Economic constraint check. Mint adds value rather than spending it,
	// so it is exempt from the balance-sufficiency half of the check.
	fee := e.feeFor(tx.Type)
	requireNonzero := tx.Type == TxTransfer || tx.Type == TxSkillPurchase
	if tx.Type == TxMint {
		if tx.Amount > econ.SafeIntegerBound {
			return nil, coreerrors.New(coreerrors.CodeInvalidAmount, "amount %d exceeds safe integer bound", tx.Amount)
		}
	} else if err := econ.CheckTransaction(tx.Amount, sender.Balance, fee, requireNonzero); err != nil {
		return nil, err
	}

	var recipient *Account
	// 6/7. transfer and skill_purchase move value to a distinct recipient.
	moveValue := tx.Type == TxTransfer || tx.Type == TxSkillPurchase
	if moveValue {
		recipExists, err := e.state.HasAccount(tx.To)
		if err != nil {
			return nil, err
		}
		if !recipExists {
			return nil, coreerrors.New(coreerrors.CodeUnknownRecipient, "unknown recipient %s", tx.To)
		}
		recipient, err = e.state.GetAccount(tx.To)
		if err != nil {
			return nil, err
		}
	}

	// All checks passed: mutate per transaction type. Wrapped in a
	// snapshot so a failure partway through the mutation sequence leaves
	// the write buffer exactly as it was before this transaction.
	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, err
	}
	stx, err := e.mutate(tx, digest, fee, moveValue, sender, recipient)
	if err != nil {
		if rerr := e.state.RevertToSnapshot(snapID); rerr != nil {
			e.log.WithError(rerr).Error("revert snapshot after failed mutation")
		}
		return nil, err
	}

	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"digest": digest, "type": tx.Type, "height": stx.BlockHeight,
	}).Info("transaction applied")
	return stx, nil
}

// mutate applies tx's balance/index effects to the write-buffered state and
// returns the StoredTx to commit. Split out of ApplyTransaction so the
// caller can snapshot before and revert on any error from this block.
func (e *Engine) mutate(tx *Transaction, digest string, fee uint64, moveValue bool, sender, recipient *Account) (*StoredTx, error) {
	now := time.Now().UnixMilli()
	switch tx.Type {
	case TxTransfer, TxSkillPurchase:
		sender.Balance -= tx.Amount + fee
		recipient.Balance += tx.Amount
	case TxMint:
		sender.Balance += tx.Amount
	case TxBurn:
		sender.Balance -= tx.Amount
	case TxStake:
		sender.Balance -= tx.Amount
		sender.StakeLocked += tx.Amount
		sender.StakeUnlockAt = now + int64(econ.StakeLockDays)*24*60*60*1000
	case TxSkillCreate:
		// No value movement; recorded for history and reputation only.
	}
	sender.Nonce = tx.Nonce
	sender.LastActiveAt = now
	if err := e.state.SetAccount(tx.From, sender); err != nil {
		return nil, err
	}
	if moveValue {
		recipient.LastActiveAt = now
		if err := e.state.SetAccount(tx.To, recipient); err != nil {
			return nil, err
		}
	}

	height, err := e.state.IncrementBlockHeight()
	if err != nil {
		return nil, err
	}
	stx := &StoredTx{Tx: tx, BlockHeight: height, AppliedAt: now}

	// 8. Append to global log and per-account indices.
	if err := e.state.PutStoredTx(stx); err != nil {
		return nil, err
	}
	if err := e.state.AppendGlobalTx(digest); err != nil {
		return nil, err
	}
	if err := e.state.AppendAccountTx(tx.From, digest); err != nil {
		return nil, err
	}
	if moveValue {
		if err := e.state.AppendAccountTx(tx.To, digest); err != nil {
			return nil, err
		}
	}
	return stx, nil
}

// feeFor returns the base fee applied to value-moving transaction types;
// non-value types carry no fee.
func (e *Engine) feeFor(typ TxType) uint64 {
	switch typ {
	case TxTransfer, TxSkillPurchase:
		return econ.Fee(BaseFee, econ.PriorityNormal)
	default:
		return 0
	}
}

// GetTransactionByHash returns the stored transaction record for digest.
func (e *Engine) GetTransactionByHash(digest string) (*StoredTx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GetStoredTx(digest)
}

// GetTransactionHistory returns pk's applied transactions, newest first,
// truncated to limit (0 means no limit).
func (e *Engine) GetTransactionHistory(pk string, limit int) ([]*StoredTx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	digests, err := e.state.AccountTxDigests(pk)
	if err != nil {
		return nil, err
	}
	return e.loadDescending(digests, limit)
}

// GetAllTransactions returns every applied transaction, newest first,
// paginated by offset/limit (limit 0 means no limit).
func (e *Engine) GetAllTransactions(limit, offset int) ([]*StoredTx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	digests, err := e.state.AllTxDigests()
	if err != nil {
		return nil, err
	}
	// digests is oldest-first: drop the newest offset entries, then load
	// the rest newest-first.
	if offset > len(digests) {
		offset = len(digests)
	}
	return e.loadDescending(digests[:len(digests)-offset], limit)
}

// loadDescending assumes digests is already oldest-first and returns the
// corresponding stored transactions newest-first, truncated to limit.
func (e *Engine) loadDescending(digests []string, limit int) ([]*StoredTx, error) {
	out := make([]*StoredTx, 0, len(digests))
	for i := len(digests) - 1; i >= 0; i-- {
		stx, err := e.state.GetStoredTx(digests[i])
		if err != nil {
			return nil, err
		}
		out = append(out, stx)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---- Snapshot export/import (persistent ledger state file) ----

// Snapshot is the logical JSON shape of the persisted ledger state:
// {version, block_height, accounts, transactions, account_transactions}.
type Snapshot struct {
	Version              int                    `json:"version"`
	BlockHeight          uint64                 `json:"block_height"`
	Accounts             map[string]*Account    `json:"accounts"`
	Transactions         map[string]*StoredTx   `json:"transactions"`
	AccountTransactions  map[string][]string    `json:"account_transactions"`
}

// SnapshotState renders the engine's full state as the documented logical
// shape, regardless of the underlying storage backend.
func (e *Engine) SnapshotState() (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	height, err := e.state.BlockHeight()
	if err != nil {
		return nil, err
	}
	digests, err := e.state.AllTxDigests()
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]*Account)
	transactions := make(map[string]*StoredTx)
	accountTx := make(map[string][]string)

	seenAccounts := make(map[string]bool)
	for _, digest := range digests {
		stx, err := e.state.GetStoredTx(digest)
		if err != nil {
			return nil, err
		}
		transactions[digest] = stx
		for _, pk := range []string{stx.Tx.From, stx.Tx.To} {
			if pk == "" || seenAccounts[pk] {
				continue
			}
			acc, err := e.state.GetAccount(pk)
			if err != nil {
				return nil, err
			}
			accounts[pk] = acc
			seenAccounts[pk] = true
			txs, err := e.state.AccountTxDigests(pk)
			if err != nil {
				return nil, err
			}
			accountTx[pk] = txs
		}
	}

	return &Snapshot{
		Version:             1,
		BlockHeight:         height,
		Accounts:            accounts,
		Transactions:        transactions,
		AccountTransactions: accountTx,
	}, nil
}

// MarshalJSON renders the snapshot with sorted map keys via the standard
// library's deterministic map ordering for encoding/json.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal((*alias)(s))
}

// LoadSnapshot rebuilds state from a previously exported Snapshot.
func LoadSnapshot(state State, snap *Snapshot) error {
	pks := make([]string, 0, len(snap.Accounts))
	for pk := range snap.Accounts {
		pks = append(pks, pk)
	}
	sort.Strings(pks)
	for _, pk := range pks {
		if err := state.SetAccount(pk, snap.Accounts[pk]); err != nil {
			return err
		}
	}
	digests := make([]string, 0, len(snap.Transactions))
	for d := range snap.Transactions {
		digests = append(digests, d)
	}
	sort.Slice(digests, func(i, j int) bool {
		return snap.Transactions[digests[i]].BlockHeight < snap.Transactions[digests[j]].BlockHeight
	})
	for _, d := range digests {
		if err := state.PutStoredTx(snap.Transactions[d]); err != nil {
			return err
		}
		if err := state.AppendGlobalTx(d); err != nil {
			return err
		}
	}
	for _, pk := range pks {
		for _, d := range snap.AccountTransactions[pk] {
			if err := state.AppendAccountTx(pk, d); err != nil {
				return err
			}
		}
	}
	for i := uint64(0); i < snap.BlockHeight; i++ {
		if _, err := state.IncrementBlockHeight(); err != nil {
			return err
		}
	}
	return state.Commit()
}
