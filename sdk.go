// Package clawrrency assembles the ledger, identity registry, skill
// marketplace, and optional PBFT consensus and governance oracle into a
// single facade, sharing one on-disk LevelDB instance and one event bus.
// Embedders that only want the ledger and marketplace (e.g. a lightweight
// tool or a test harness) may construct an SDK with consensus and
// governance left nil; Initialize only wires what was provided.
package clawrrency

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ruxir-ig/clawrrency/config"
	"github.com/ruxir-ig/clawrrency/consensus"
	"github.com/ruxir-ig/clawrrency/crypto"
	"github.com/ruxir-ig/clawrrency/events"
	"github.com/ruxir-ig/clawrrency/governance"
	"github.com/ruxir-ig/clawrrency/identity"
	"github.com/ruxir-ig/clawrrency/indexer"
	"github.com/ruxir-ig/clawrrency/ledger"
	"github.com/ruxir-ig/clawrrency/skillmarket"
	"github.com/ruxir-ig/clawrrency/storage"
)

// SDK binds every subsystem of a clawrrency node behind a single type.
// Fields are exported so a caller that needs raw access (e.g. the RPC
// handler, or a test) doesn't have to go through accessor methods.
type SDK struct {
	Config *config.Config
	Log    *logrus.Logger

	DB        storage.DB
	Events    *events.Emitter
	Ledger    *ledger.Engine
	Identity  *identity.Registry
	Market    *skillmarket.Market
	Indexer   *indexer.Indexer
	Consensus *consensus.Engine // nil unless validatorKey is supplied to New
	Oracle    governance.Oracle // nil unless enabled by the caller

	stopMaintenance chan struct{}
}

// New opens cfg.DataDir/chain as a LevelDB store and wires every subsystem
// against it. If validatorKey is non-nil, cfg.Validators names the fixed
// PBFT member set, and this SDK runs its own consensus.Engine; pass nil to
// run ledger + marketplace only (e.g. the clawrrencyd wallet and query
// subcommands, which work on the local data directory).
func New(cfg *config.Config, validatorKey crypto.PrivateKey, log *logrus.Logger) (*SDK, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	emitter := events.NewEmitter(log)
	state := ledger.NewStateDB(db)
	led := ledger.New(state, log)
	registry := identity.NewRegistry(db, cfg.DataDir, led, log)
	market := skillmarket.NewMarket(db, led, registry, emitter, log)
	idx := indexer.New(db, emitter, log)

	sdk := &SDK{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Events:   emitter,
		Ledger:   led,
		Identity: registry,
		Market:   market,
		Indexer:  idx,
	}

	if validatorKey != nil {
		sdk.Consensus = consensus.New(cfg.Validators, validatorKey, led, emitter,
			consensus.NullBroadcaster{}, time.Duration(cfg.ViewTimeoutMS)*time.Millisecond, log)
	}

	return sdk, nil
}

// Initialize applies genesis allocations, creating each genesis account
// that does not exist yet. It is idempotent: on a node restart the genesis
// accounts already exist and ApplyGenesis skips them.
func (s *SDK) Initialize() error {
	if err := config.ApplyGenesis(s.Config, s.Ledger); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	s.Log.WithField("chain_id", s.Config.Genesis.ChainID).Info("sdk initialized")
	return nil
}

// EnableGovernance attaches an Oracle to the SDK. Governance is optional:
// a node that never submits or tallies proposals can leave this unset.
func (s *SDK) EnableGovernance(o governance.Oracle) {
	s.Oracle = o
}

// RunMaintenance starts a background ticker that recomputes every
// registered identity's reputation at the given interval, folding in
// age-based decay (econ.Reputation) even for identities with no new
// activity. It returns immediately; call StopMaintenance to halt the
// ticker. Inactivity-penalty balance burning has no concrete formula
// anywhere in the reputation or economic model, so this tick only
// recomputes reputation — it never burns or slashes balance.
func (s *SDK) RunMaintenance(ctx context.Context, interval time.Duration) {
	s.stopMaintenance = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopMaintenance:
				return
			case <-ticker.C:
				s.recomputeReputations()
			}
		}
	}()
}

func (s *SDK) recomputeReputations() {
	ids, err := s.Identity.ListIdentities()
	if err != nil {
		s.Log.WithError(err).Warn("maintenance: list identities failed")
		return
	}
	for _, id := range ids {
		if _, err := s.Identity.UpdateReputation(id.PubKey); err != nil {
			s.Log.WithError(err).WithField("pk", id.PubKey).Warn("maintenance: reputation update failed")
		}
	}
	s.Log.WithField("count", len(ids)).Debug("maintenance: reputations recomputed")
}

// StopMaintenance halts a running RunMaintenance ticker, if one is active.
func (s *SDK) StopMaintenance() {
	if s.stopMaintenance != nil {
		close(s.stopMaintenance)
		s.stopMaintenance = nil
	}
}

// Close releases the underlying database handle.
func (s *SDK) Close() error {
	s.StopMaintenance()
	return s.DB.Close()
}
