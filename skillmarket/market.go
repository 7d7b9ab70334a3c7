package skillmarket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ruxir-ig/clawrrency/coreerrors"
	"github.com/ruxir-ig/clawrrency/events"
	"github.com/ruxir-ig/clawrrency/identity"
	"github.com/ruxir-ig/clawrrency/ledger"
	"github.com/ruxir-ig/clawrrency/storage"
	"github.com/ruxir-ig/clawrrency/wallet"
)

const (
	prefixSkill    = "skill:"
	prefixListing  = "listing:"
	prefixPurchase = "purchase:"
)

// Market is the skill marketplace: content-addressed artifact storage,
// listings, and purchases routed through the ledger. Purchases are signed
// skill_purchase transactions applied through ledger.Engine rather than
// direct balance mutation, so a sale settles exactly like any transfer.
// They are applied to the ledger directly; they do not pass through the
// consensus engine.
type Market struct {
	mu       sync.Mutex
	db       storage.DB
	ledger   *ledger.Engine
	registry *identity.Registry // optional: nil skips reputation bookkeeping
	emitter  *events.Emitter
	log      *logrus.Logger
}

// NewMarket constructs a Market. registry and emitter may be nil.
func NewMarket(db storage.DB, led *ledger.Engine, registry *identity.Registry, emitter *events.Emitter, log *logrus.Logger) *Market {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Market{db: db, ledger: led, registry: registry, emitter: emitter, log: log}
}

func (m *Market) getSkill(id string) (*Skill, error) {
	data, err := m.db.Get([]byte(prefixSkill + id))
	if err != nil {
		return nil, err
	}
	var s Skill
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *Market) putSkill(s *Skill) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.db.Set([]byte(prefixSkill+s.ID), data)
}

func (m *Market) getListing(id string) (*Listing, error) {
	data, err := m.db.Get([]byte(prefixListing + id))
	if err != nil {
		return nil, err
	}
	var l Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (m *Market) putListing(l *Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return m.db.Set([]byte(prefixListing+l.ID), data)
}

func (m *Market) putPurchase(p *Purchase) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return m.db.Set([]byte(prefixPurchase+p.TxDigest), data)
}

// CreateSkill hashes files into a manifest, stores the artifact, records a
// zero-value skill_create marker transaction on the ledger for history, and
// bumps the creator's skill count for reputation. Duplicate ids (identical
// manifest) are rejected.
func (m *Market) CreateSkill(creator *wallet.Wallet, name, description, version string, typ SkillType, files []FileInput, deps []string, license, entryPoint string) (*Skill, error) {
	skill, err := NewSkill(name, description, version, typ, files, deps, license, entryPoint, creator.PubKey())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.getSkill(skill.ID); err == nil {
		return nil, coreerrors.New(coreerrors.CodeDuplicateSkill, "skill %s already exists", skill.ID)
	} else if err != storage.ErrNotFound {
		return nil, err
	}

	acc, err := m.ledger.GetAccount(creator.PubKey())
	if err != nil {
		return nil, fmt.Errorf("load creator account: %w", err)
	}
	tx, err := creator.NewTx(ledger.TxSkillCreate, "", 0, acc.Nonce+1, skillCreateData(skill.ID))
	if err != nil {
		return nil, err
	}
	stx, err := m.ledger.ApplyTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("record skill_create: %w", err)
	}

	if err := m.putSkill(skill); err != nil {
		return nil, err
	}

	if m.registry != nil {
		if err := m.registry.RecordSkillCreated(creator.PubKey()); err != nil {
			m.log.WithError(err).Warn("record skill created counter")
		}
	}
	if m.emitter != nil {
		m.emitter.Emit(events.Event{
			Type:     events.EventSkillCreated,
			TxDigest: stx.Tx.Hash(),
			Data:     map[string]any{"skill_id": skill.ID, "creator": creator.PubKey()},
		})
	}
	m.log.WithFields(logrus.Fields{"skill_id": skill.ID, "creator": creator.PubKey()}).Info("skill created")
	return skill, nil
}

func skillCreateData(skillID string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"skill_id": skillID})
	return data
}

// ListSkill marks a skill for sale at price. seller must be the skill's
// creator. A skill may be listed once; relisting after delisting replaces
// the prior listing record.
func (m *Market) ListSkill(seller *wallet.Wallet, skillID string, price uint64) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	skill, err := m.getSkill(skillID)
	if err != nil {
		return nil, fmt.Errorf("skill %s not found: %w", skillID, err)
	}
	if skill.Manifest.Creator != seller.PubKey() {
		return nil, coreerrors.New(coreerrors.CodeUnauthorized, "seller %s is not the creator of skill %s", seller.PubKey(), skillID)
	}
	if existing, err := m.getListing(skillID); err == nil && existing.Status == ListingActive {
		return nil, coreerrors.New(coreerrors.CodeInvalidArgument, "skill %s is already listed", skillID)
	}

	listing := &Listing{
		ID:        skillID,
		SkillID:   skillID,
		Seller:    seller.PubKey(),
		Price:     price,
		Status:    ListingActive,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.putListing(listing); err != nil {
		return nil, err
	}

	if m.emitter != nil {
		m.emitter.Emit(events.Event{
			Type: events.EventSkillListed,
			Data: map[string]any{"skill_id": skillID, "seller": seller.PubKey(), "price": price},
		})
	}
	m.log.WithFields(logrus.Fields{"skill_id": skillID, "price": price}).Info("skill listed")
	return listing, nil
}

// PurchaseSkill moves price from buyer to the listing's seller through a
// signed skill_purchase ledger transaction, then records the sale.
func (m *Market) PurchaseSkill(buyer *wallet.Wallet, skillID string) (*Purchase, error) {
	m.mu.Lock()
	listing, err := m.getListing(skillID)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("listing %s not found: %w", skillID, err)
	}
	if listing.Status != ListingActive {
		m.mu.Unlock()
		return nil, coreerrors.New(coreerrors.CodeListingNotActive, "listing %s is not active", skillID)
	}
	skill, err := m.getSkill(skillID)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("skill %s not found: %w", skillID, err)
	}
	m.mu.Unlock()

	acc, err := m.ledger.GetAccount(buyer.PubKey())
	if err != nil {
		return nil, fmt.Errorf("load buyer account: %w", err)
	}

	payload := PurchasePayload{
		SkillID:      skillID,
		ManifestHash: skill.ID,
		Creator:      skill.Manifest.Creator,
		Price:        listing.Price,
		CreatedAt:    time.Now().UnixMilli(),
	}

	tx, err := buyer.NewTx(ledger.TxSkillPurchase, listing.Seller, listing.Price, acc.Nonce+1, payload)
	if err != nil {
		return nil, err
	}
	stx, err := m.ledger.ApplyTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("apply skill_purchase: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-read in case of concurrent mutation between the unlock above and here.
	listing, err = m.getListing(skillID)
	if err != nil {
		return nil, err
	}
	listing.SalesCount++
	if err := m.putListing(listing); err != nil {
		return nil, err
	}

	purchase := &Purchase{
		SkillID:   skillID,
		Buyer:     buyer.PubKey(),
		Seller:    listing.Seller,
		Price:     listing.Price,
		Timestamp: stx.AppliedAt,
		TxDigest:  stx.Tx.Hash(),
	}
	if err := m.putPurchase(purchase); err != nil {
		return nil, fmt.Errorf("persist purchase: %w", err)
	}

	if m.registry != nil {
		if err := m.registry.RecordTrade(buyer.PubKey()); err != nil {
			m.log.WithError(err).Warn("record buyer trade counter")
		}
	}
	if m.emitter != nil {
		m.emitter.Emit(events.Event{
			Type:     events.EventSkillPurchased,
			TxDigest: stx.Tx.Hash(),
			Data:     map[string]any{"skill_id": skillID, "buyer": buyer.PubKey(), "seller": listing.Seller, "price": listing.Price},
		})
	}
	m.log.WithFields(logrus.Fields{"skill_id": skillID, "buyer": buyer.PubKey(), "price": listing.Price}).Info("skill purchased")
	return purchase, nil
}

// VerifySkill recomputes the skill's manifest hash and every file's content
// hash from its stored contents and reports whether it is still valid.
func (m *Market) VerifySkill(skillID string) (bool, error) {
	m.mu.Lock()
	skill, err := m.getSkill(skillID)
	m.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("skill %s not found: %w", skillID, err)
	}
	return Verify(skill)
}

// AddReview appends a reviewer's rating (hard-clamped to 1-5) and recomputes
// the listing's average rating. The reviewer must have purchased the skill.
func (m *Market) AddReview(reviewer string, skillID string, rating int, comment string) error {
	if rating < 1 {
		rating = 1
	} else if rating > 5 {
		rating = 5
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	listing, err := m.getListing(skillID)
	if err != nil {
		return fmt.Errorf("listing %s not found: %w", skillID, err)
	}

	history, err := m.ledger.GetTransactionHistory(reviewer, 0)
	if err != nil {
		return fmt.Errorf("load reviewer history: %w", err)
	}
	purchased := false
	for _, stx := range history {
		if stx.Tx.Type != ledger.TxSkillPurchase || stx.Tx.From != reviewer {
			continue
		}
		var p PurchasePayload
		if json.Unmarshal(stx.Tx.Data, &p) == nil && p.SkillID == skillID {
			purchased = true
			break
		}
	}
	if !purchased {
		return coreerrors.New(coreerrors.CodeUnauthorized, "reviewer %s has not purchased skill %s", reviewer, skillID)
	}

	listing.Reviews = append(listing.Reviews, Review{
		Reviewer:  reviewer,
		Rating:    rating,
		Comment:   comment,
		Timestamp: time.Now().UnixMilli(),
	})
	var sum int
	for _, r := range listing.Reviews {
		sum += r.Rating
	}
	listing.Rating = float64(sum) / float64(len(listing.Reviews))

	if err := m.putListing(listing); err != nil {
		return err
	}
	if m.emitter != nil {
		m.emitter.Emit(events.Event{
			Type: events.EventReviewAdded,
			Data: map[string]any{"skill_id": skillID, "reviewer": reviewer, "rating": rating},
		})
	}
	return nil
}

// DelistSkill marks a listing delisted. seller must match the original
// lister.
func (m *Market) DelistSkill(seller string, skillID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	listing, err := m.getListing(skillID)
	if err != nil {
		return fmt.Errorf("listing %s not found: %w", skillID, err)
	}
	if listing.Seller != seller {
		return coreerrors.New(coreerrors.CodeUnauthorized, "seller %s does not match listing owner %s", seller, listing.Seller)
	}
	listing.Status = ListingDelisted
	if err := m.putListing(listing); err != nil {
		return err
	}
	if m.emitter != nil {
		m.emitter.Emit(events.Event{
			Type: events.EventSkillDelisted,
			Data: map[string]any{"skill_id": skillID, "seller": seller},
		})
	}
	m.log.WithFields(logrus.Fields{"skill_id": skillID}).Info("skill delisted")
	return nil
}

// GetListing returns the current listing for a skill.
func (m *Market) GetListing(skillID string) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getListing(skillID)
}

// GetSkill returns the stored artifact for id.
func (m *Market) GetSkill(id string) (*Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSkill(id)
}
