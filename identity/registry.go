package identity

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ruxir-ig/clawrrency/coreerrors"
	"github.com/ruxir-ig/clawrrency/econ"
	"github.com/ruxir-ig/clawrrency/ledger"
	"github.com/ruxir-ig/clawrrency/storage"
	"github.com/ruxir-ig/clawrrency/wallet"
)

const prefixIdentity = "id:"

// Registry manages bot identities: wallets, stake-gated registration, and
// reputation. It drives the ledger via signed mint/stake transactions
// rather than mutating balance or stake fields directly, keeping the
// ledger the single owner of spendable state.
type Registry struct {
	mu      sync.Mutex
	db      storage.DB
	dataDir string
	ledger  *ledger.Engine
	log     *logrus.Logger
}

// NewRegistry constructs a Registry backed by db, storing keystore files
// under dataDir/keystores. A nil logger falls back to logrus's standard
// logger.
func NewRegistry(db storage.DB, dataDir string, led *ledger.Engine, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{db: db, dataDir: dataDir, ledger: led, log: log}
}

func (r *Registry) get(pk string) (*Identity, error) {
	data, err := r.db.Get([]byte(prefixIdentity + pk))
	if err != nil {
		return nil, err
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *Registry) put(id *Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return r.db.Set([]byte(prefixIdentity+id.PubKey), data)
}

// GetIdentity returns the registry record for pk.
func (r *Registry) GetIdentity(pk string) (*Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(pk)
}

// CreateWallet generates a fresh keypair, encrypts it under password, and
// registers an empty identity record and ledger account for it.
func (r *Registry) CreateWallet(name, description, password string) (*wallet.Wallet, *Identity, error) {
	w, err := wallet.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("generate wallet: %w", err)
	}
	pk := w.PubKey()

	keystorePath := filepath.Join(r.dataDir, "keystores", pk+".json")
	if err := wallet.SaveKey(keystorePath, password, w.PrivKey()); err != nil {
		return nil, nil, fmt.Errorf("save keystore: %w", err)
	}

	if err := r.ledger.CreateAccount(pk, 0); err != nil {
		return nil, nil, fmt.Errorf("create ledger account: %w", err)
	}

	now := time.Now().UnixMilli()
	id := &Identity{
		PubKey:       pk,
		Name:         name,
		Description:  description,
		KeystorePath: keystorePath,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.put(id); err != nil {
		return nil, nil, err
	}
	r.log.WithFields(logrus.Fields{"pk": pk, "name": name}).Info("wallet created")
	return w, id, nil
}

// RegisterBot enforces the stake minimum (with attestation discount when
// attesterPk is given and its reputation meets econ.AttesterMinReputation),
// mints the registration reward, and locks the stake — both driven through
// signed ledger transactions from w. attesterPk may be empty.
func (r *Registry) RegisterBot(w *wallet.Wallet, attesterPk string) error {
	pk := w.PubKey()

	r.mu.Lock()
	id, err := r.get(pk)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("identity not found for %s: %w", pk, err)
	}

	attested := attesterPk != ""
	var attester *Identity
	if attested {
		r.mu.Lock()
		attester, err = r.get(attesterPk)
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("attester not found: %w", err)
		}
		if attester.Reputation < econ.AttesterMinReputation {
			return coreerrors.New(coreerrors.CodeReputationTooLow,
				"attester reputation %.2f below required %.2f", attester.Reputation, econ.AttesterMinReputation)
		}
	}

	mintAmount := econ.RegistrationMint(attested)
	if err := r.applySelf(w, ledger.TxMint, mintAmount); err != nil {
		return fmt.Errorf("registration mint: %w", err)
	}

	required := econ.StakeRequirement(attested, 0)
	if attested {
		required = econ.StakeRequirement(true, attester.Reputation)
	}
	if err := r.applySelf(w, ledger.TxStake, required); err != nil {
		return fmt.Errorf("stake: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UnixMilli()
	id.LastActiveAt = now
	if attested {
		id.AttestedBy = appendUnique(id.AttestedBy, attesterPk)
		attester.Attests = appendUnique(attester.Attests, pk)
		if err := r.put(attester); err != nil {
			return err
		}
	}
	if err := r.put(id); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"pk": pk, "stake": required, "attested": attested}).Info("bot registered")
	return nil
}

// applySelf builds, signs, and applies a self-addressed mint/stake
// transaction for w using its current ledger nonce.
func (r *Registry) applySelf(w *wallet.Wallet, typ ledger.TxType, amount uint64) error {
	acc, err := r.ledger.GetAccount(w.PubKey())
	if err != nil {
		return err
	}
	tx, err := w.NewTx(typ, "", amount, acc.Nonce+1, nil)
	if err != nil {
		return err
	}
	_, err = r.ledger.ApplyTransaction(tx)
	return err
}

// IsRegistered reports whether pk currently satisfies the registration
// stake requirement: stake-locked >= the base minimum and not yet unlocked.
func (r *Registry) IsRegistered(pk string) (bool, error) {
	acc, err := r.ledger.GetAccount(pk)
	if err != nil {
		return false, err
	}
	now := time.Now().UnixMilli()
	return acc.StakeLocked >= econ.BaseStakeRequirement && acc.StakeUnlockAt > now, nil
}

// UpdateReputation recomputes and persists an identity's reputation from
// its current activity counters and age.
func (r *Registry) UpdateReputation(pk string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := r.get(pk)
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixMilli()
	rep := econ.Reputation(econ.ReputationInputs{
		Trades:       id.Trades,
		Skills:       id.Skills,
		UptimeHours:  id.UptimeHours,
		GovVotes:     id.GovVotes,
		DisputesLost: id.DisputesLost,
		SpamFlags:    id.SpamFlags,
		AgeMonths:    id.ageMonths(now),
	})
	id.Reputation = rep
	id.LastActiveAt = now
	if err := r.put(id); err != nil {
		return 0, err
	}
	return rep, nil
}

// ListIdentities returns every registered identity record, in no
// particular order. Used by the SDK's periodic maintenance tick to
// recompute reputation across the whole registry.
func (r *Registry) ListIdentities() ([]*Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.db.NewIterator([]byte(prefixIdentity))
	defer it.Release()
	var out []*Identity
	for it.Next() {
		var id Identity
		if err := json.Unmarshal(it.Value(), &id); err != nil {
			return nil, err
		}
		out = append(out, &id)
	}
	return out, it.Error()
}

// RecordTrade increments pk's trade counter, used after a skill purchase.
func (r *Registry) RecordTrade(pk string) error {
	return r.bumpCounter(pk, func(id *Identity) { id.Trades++ })
}

// RecordSkillCreated increments pk's created-skill counter.
func (r *Registry) RecordSkillCreated(pk string) error {
	return r.bumpCounter(pk, func(id *Identity) { id.Skills++ })
}

func (r *Registry) bumpCounter(pk string, mutate func(*Identity)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := r.get(pk)
	if err != nil {
		return err
	}
	mutate(id)
	id.LastActiveAt = time.Now().UnixMilli()
	return r.put(id)
}
