// Package events implements a synchronous pub/sub broker used to notify
// subscribers (indexers, RPC streaming, reputation updates) of ledger,
// consensus, and marketplace lifecycle events.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventType labels what happened.
type EventType string

const (
	EventTxApplied        EventType = "tx_applied"
	EventAccountCreated    EventType = "account_created"
	EventBotRegistered     EventType = "bot_registered"
	EventConsensusPrePrep  EventType = "consensus_pre_prepare"
	EventConsensusPrepared EventType = "consensus_prepared"
	EventConsensusCommit   EventType = "consensus_commit"
	EventViewChange        EventType = "view_change"
	EventSkillCreated      EventType = "skill_created"
	EventSkillListed       EventType = "skill_listed"
	EventSkillPurchased    EventType = "skill_purchased"
	EventSkillDelisted     EventType = "skill_delisted"
	EventReviewAdded       EventType = "review_added"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxDigest    string         `json:"tx_digest,omitempty"`
	BlockHeight uint64         `json:"block_height,omitempty"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      *logrus.Logger
}

// NewEmitter creates an Emitter with no subscribers. A nil logger falls
// back to logrus's standard logger.
func NewEmitter(log *logrus.Logger) *Emitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Emitter{handlers: make(map[EventType][]Handler), log: log}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously, before
// returning to the caller — commit callbacks rely on this
// to run before the next consensus message is processed.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot halt the caller.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.WithField("event", ev.Type).Errorf("handler panicked: %v", r)
				}
			}()
			h(ev)
		}()
	}
}
