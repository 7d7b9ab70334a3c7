// Package indexer maintains secondary indexes over marketplace events so
// callers can query skills by creator or active listings by seller without
// scanning the full keyspace.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ruxir-ig/clawrrency/events"
	"github.com/ruxir-ig/clawrrency/storage"
)

const (
	prefixCreatorSkills = "idx:creator:skill:"
	prefixSellerListing = "idx:seller:listing:"
)

// Indexer subscribes to marketplace events and updates secondary lookup
// tables.
type Indexer struct {
	db  storage.DB
	log *logrus.Logger
}

// New creates an Indexer backed by db and subscribes to relevant events. A
// nil logger falls back to logrus's standard logger.
func New(db storage.DB, emitter *events.Emitter, log *logrus.Logger) *Indexer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	idx := &Indexer{db: db, log: log}
	emitter.Subscribe(events.EventSkillCreated, idx.onSkillCreated)
	emitter.Subscribe(events.EventSkillListed, idx.onSkillListed)
	emitter.Subscribe(events.EventSkillDelisted, idx.onSkillDelisted)
	return idx
}

// GetSkillsByCreator returns every skill id created by pk.
func (idx *Indexer) GetSkillsByCreator(pk string) ([]string, error) {
	return idx.getList(prefixCreatorSkills + pk)
}

// GetListingsBySeller returns every skill id currently listed by pk.
func (idx *Indexer) GetListingsBySeller(pk string) ([]string, error) {
	return idx.getList(prefixSellerListing + pk)
}

// ---- event handlers ----

func (idx *Indexer) onSkillCreated(ev events.Event) {
	creator, _ := ev.Data["creator"].(string)
	skillID, _ := ev.Data["skill_id"].(string)
	if creator == "" || skillID == "" {
		return
	}
	if err := idx.addToList(prefixCreatorSkills+creator, skillID); err != nil {
		idx.log.WithError(err).WithFields(logrus.Fields{"creator": creator, "skill_id": skillID}).Warn("skill-created index write failed")
	}
}

func (idx *Indexer) onSkillListed(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	skillID, _ := ev.Data["skill_id"].(string)
	if seller == "" || skillID == "" {
		return
	}
	if err := idx.addToList(prefixSellerListing+seller, skillID); err != nil {
		idx.log.WithError(err).WithFields(logrus.Fields{"seller": seller, "skill_id": skillID}).Warn("listing index write failed")
	}
}

func (idx *Indexer) onSkillDelisted(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	skillID, _ := ev.Data["skill_id"].(string)
	if seller == "" || skillID == "" {
		return
	}
	if err := idx.removeFromList(prefixSellerListing+seller, skillID); err != nil {
		idx.log.WithError(err).WithFields(logrus.Fields{"seller": seller, "skill_id": skillID}).Warn("delist index remove failed")
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil // already present
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) removeFromList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	if ids == nil {
		return nil
	}
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
