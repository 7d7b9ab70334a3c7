package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/ruxir-ig/clawrrency/storage"
)

const (
	prefixAccount  = "acct:"
	prefixTx       = "tx:"
	prefixTxSeq    = "txseq:"
	prefixAccTxSeq = "atx:"
	keyHeight      = "meta:height"
	prefixAccTxCnt = "meta:atxcount:"
)

// seqKey zero-pads seq to 20 digits so lexical and numeric ordering agree.
func seqKey(prefix string, seq uint64) string {
	return fmt.Sprintf("%s%020d", prefix, seq)
}

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements State on top of a storage.DB, buffering writes in
// memory until Commit and supporting nested Snapshot/RevertToSnapshot.
type StateDB struct {
	db        storage.DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db storage.DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, storage.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) has(key string) (bool, error) {
	_, err := s.get(key)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *StateDB) counter(key string) (uint64, error) {
	data, err := s.get(key)
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (s *StateDB) setCounter(key string, v uint64) {
	s.set(key, []byte(strconv.FormatUint(v, 10)))
}

// mergedKeys returns every key under prefix visible to this write buffer,
// merging the underlying DB with uncommitted dirty/deleted entries, sorted
// so insertion-ordered (zero-padded sequence) keys iterate in order.
func (s *StateDB) mergedKeys(prefix string) []string {
	merged := make(map[string]bool)
	it := s.db.NewIterator([]byte(prefix))
	for it.Next() {
		merged[string(it.Key())] = true
	}
	it.Release()
	for k := range s.dirty {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			merged[k] = true
		}
	}
	for k := range s.deleted {
		delete(merged, k)
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---- Account ----

func (s *StateDB) GetAccount(pk string) (*Account, error) {
	data, err := s.get(prefixAccount + pk)
	if err == storage.ErrNotFound {
		return &Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(pk string, acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	s.set(prefixAccount+pk, data)
	return nil
}

func (s *StateDB) HasAccount(pk string) (bool, error) {
	return s.has(prefixAccount + pk)
}

// ---- Transactions ----

func (s *StateDB) GetStoredTx(digest string) (*StoredTx, error) {
	data, err := s.get(prefixTx + digest)
	if err != nil {
		return nil, err
	}
	var stx StoredTx
	if err := json.Unmarshal(data, &stx); err != nil {
		return nil, err
	}
	return &stx, nil
}

func (s *StateDB) PutStoredTx(stx *StoredTx) error {
	data, err := json.Marshal(stx)
	if err != nil {
		return err
	}
	s.set(prefixTx+stx.Tx.Hash(), data)
	return nil
}

func (s *StateDB) AppendGlobalTx(digest string) error {
	seq, err := s.counter("meta:txcount")
	if err != nil {
		return err
	}
	s.set(seqKey(prefixTxSeq, seq), []byte(digest))
	s.setCounter("meta:txcount", seq+1)
	return nil
}

func (s *StateDB) AppendAccountTx(pk, digest string) error {
	seq, err := s.counter(prefixAccTxCnt + pk)
	if err != nil {
		return err
	}
	s.set(seqKey(prefixAccTxSeq+pk+":", seq), []byte(digest))
	s.setCounter(prefixAccTxCnt+pk, seq+1)
	return nil
}

func (s *StateDB) AllTxDigests() ([]string, error) {
	keys := s.mergedKeys(prefixTxSeq)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := s.get(k)
		if err != nil {
			return nil, err
		}
		out = append(out, string(v))
	}
	return out, nil
}

func (s *StateDB) AccountTxDigests(pk string) ([]string, error) {
	keys := s.mergedKeys(prefixAccTxSeq + pk + ":")
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := s.get(k)
		if err != nil {
			return nil, err
		}
		out = append(out, string(v))
	}
	return out, nil
}

// ---- Block height ----

func (s *StateDB) BlockHeight() (uint64, error) {
	return s.counter(keyHeight)
}

func (s *StateDB) IncrementBlockHeight() (uint64, error) {
	h, err := s.counter(keyHeight)
	if err != nil {
		return 0, err
	}
	h++
	s.setCounter(keyHeight, h)
	return h, nil
}

// ---- Snapshot / Rollback / Commit ----

func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]
	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}
	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
