// Package consensus implements PBFT-style Byzantine-fault-tolerant
// ordering over ledger transactions: pre-prepare/prepare/commit with
// 2f+1 quorum (counting the local validator's own vote), a deterministic
// round-robin leader, and a view-change timer. Generalized from the
// teacher's package consensus (round-robin Proof-of-Authority block
// production, poa.go): the round-robin proposer-selection idiom and the
// sign-broadcast-commit pipeline carry over; block proposal/assembly is
// replaced by one committed sequence per applied transaction, since this
// system does not batch into blocks.
package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ruxir-ig/clawrrency/coreerrors"
	"github.com/ruxir-ig/clawrrency/crypto"
	"github.com/ruxir-ig/clawrrency/events"
	"github.com/ruxir-ig/clawrrency/ledger"
)

// MessageType labels a PBFT protocol message.
type MessageType string

const (
	MsgPrePrepare MessageType = "pre-prepare"
	MsgPrepare    MessageType = "prepare"
	MsgCommit     MessageType = "commit"
	MsgViewChange MessageType = "view-change"
)

// Message is one PBFT protocol message. Tx is only populated on
// PrePrepare (the other phases reference the transaction by digest only).
type Message struct {
	Type      MessageType          `json:"type"`
	View      uint64               `json:"view"`
	Sequence  uint64               `json:"sequence"`
	TxDigest  string               `json:"tx_digest"`
	Tx        *ledger.Transaction  `json:"tx,omitempty"`
	From      string               `json:"from"`
	Signature string               `json:"signature,omitempty"`
}

func (m Message) signingBody() Message {
	m.Signature = ""
	return m
}

// Sign signs m with priv, returning the signed copy.
func (m Message) Sign(priv crypto.PrivateKey) (Message, error) {
	digest, err := crypto.HashCanonical(m.signingBody())
	if err != nil {
		return Message{}, err
	}
	m.Signature = crypto.SignHash(priv, digest)
	return m, nil
}

// Verify checks m's signature was produced by the pubkey named in m.From.
func (m Message) Verify() error {
	if m.Signature == "" {
		return fmt.Errorf("message from %s is unsigned", m.From)
	}
	pub, err := crypto.PubKeyFromHex(m.From)
	if err != nil {
		return fmt.Errorf("invalid sender pubkey: %w", err)
	}
	digest, err := crypto.HashCanonical(m.signingBody())
	if err != nil {
		return err
	}
	return crypto.VerifyHash(pub, digest, m.Signature)
}

// Broadcaster delivers a PBFT message to every other validator. The
// network package provides the real implementation; tests use a no-op or
// loopback stub.
type Broadcaster interface {
	Broadcast(Message)
}

// NullBroadcaster discards every message; correct for a single-validator
// deployment, where quorum is satisfied by the local vote alone.
type NullBroadcaster struct{}

func (NullBroadcaster) Broadcast(Message) {}

type pendingEntry struct {
	view     uint64
	sequence uint64
	tx       *ledger.Transaction
	digest   string

	prepares map[string]bool
	commits  map[string]bool

	prepared bool
	done     chan struct{}
	result   *ledger.StoredTx
	err      error
}

// Engine is one validator's PBFT state machine.
type Engine struct {
	mu sync.Mutex

	members []string // validator pubkeys, fixed order = leader rotation order
	selfPk  string
	priv    crypto.PrivateKey

	ledger      *ledger.Engine
	emitter     *events.Emitter
	broadcaster Broadcaster
	log         *logrus.Logger

	view        uint64
	nextSeq     uint64
	viewTimeout time.Duration
	viewTimer   *time.Timer

	pending    map[string]*pendingEntry // keyed by tx digest
	messageLog []Message
}

// New constructs a PBFT engine for the validator identified by priv, among
// the fixed validator set members (pubkey hex, same order on every node). A
// nil broadcaster defaults to NullBroadcaster (single-node deployments).
func New(members []string, priv crypto.PrivateKey, led *ledger.Engine, emitter *events.Emitter, broadcaster Broadcaster, viewTimeout time.Duration, log *logrus.Logger) *Engine {
	if broadcaster == nil {
		broadcaster = NullBroadcaster{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if viewTimeout <= 0 {
		viewTimeout = 4 * time.Second
	}
	return &Engine{
		members:     members,
		selfPk:      priv.Public().Hex(),
		priv:        priv,
		ledger:      led,
		emitter:     emitter,
		broadcaster: broadcaster,
		viewTimeout: viewTimeout,
		log:         log,
		pending:     make(map[string]*pendingEntry),
	}
}

// SetBroadcaster replaces the engine's broadcaster. Used when the
// transport (network.Node) is constructed after the engine, since the
// node itself needs a reference to the engine to dispatch inbound
// messages.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = NullBroadcaster{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

// f is the maximum number of faulty validators this set tolerates.
func (e *Engine) f() int {
	n := len(e.members)
	if n == 0 {
		return 0
	}
	return (n - 1) / 3
}

// quorum is 2f+1, counting the local validator's own vote.
func (e *Engine) quorum() int {
	return 2*e.f() + 1
}

// Leader returns the pubkey of the leader for the given view.
func (e *Engine) Leader(view uint64) string {
	if len(e.members) == 0 {
		return ""
	}
	return e.members[view%uint64(len(e.members))]
}

// IsLeader reports whether this validator leads the current view.
func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Leader(e.view) == e.selfPk
}

// PendingCount returns the number of transactions awaiting commit.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Messages returns a copy of every protocol message this engine has sent
// or received, in order — used to audit the pre-prepare/prepare/commit
// sequence.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Message, len(e.messageLog))
	copy(out, e.messageLog)
	return out
}

// SubmitTransaction proposes tx for ordering. Only the current view's
// leader may propose; followers should forward the transaction to the
// leader instead. Blocks until the transaction commits,
// view-changes away, or the view timeout elapses.
func (e *Engine) SubmitTransaction(tx *ledger.Transaction) (*ledger.StoredTx, error) {
	e.mu.Lock()
	if e.Leader(e.view) != e.selfPk {
		e.mu.Unlock()
		return nil, coreerrors.New(coreerrors.CodeConsensusFailure, "not leader for view %d; leader is %s", e.view, e.Leader(e.view))
	}
	digest := tx.Hash()
	if _, exists := e.pending[digest]; exists {
		e.mu.Unlock()
		return nil, coreerrors.New(coreerrors.CodeDuplicateTx, "transaction %s already in flight", digest)
	}
	seq := e.nextSeq
	e.nextSeq++
	entry := &pendingEntry{
		view:     e.view,
		sequence: seq,
		tx:       tx,
		digest:   digest,
		prepares: make(map[string]bool),
		commits:  make(map[string]bool),
		done:     make(chan struct{}),
	}
	e.pending[digest] = entry
	preprepare := Message{Type: MsgPrePrepare, View: e.view, Sequence: seq, TxDigest: digest, Tx: tx, From: e.selfPk}
	e.mu.Unlock()

	signed, err := e.signAndBroadcast(preprepare)
	if err != nil {
		e.failEntry(entry, err)
		return nil, err
	}
	// The leader processes its own pre-prepare immediately, issuing its
	// own prepare vote.
	if err := e.handlePrePrepare(signed); err != nil {
		return nil, err
	}

	select {
	case <-entry.done:
		return entry.result, entry.err
	case <-time.After(e.viewTimeout):
		e.mu.Lock()
		delete(e.pending, digest)
		e.mu.Unlock()
		e.startViewChange()
		return nil, coreerrors.New(coreerrors.CodeConsensusFailure, "view timeout waiting for quorum on %s", digest)
	}
}

// ReceiveMessage processes a protocol message from another validator.
func (e *Engine) ReceiveMessage(msg Message) error {
	if err := msg.Verify(); err != nil {
		return fmt.Errorf("reject message: %w", err)
	}
	switch msg.Type {
	case MsgPrePrepare:
		return e.handlePrePrepare(msg)
	case MsgPrepare:
		return e.handlePrepare(msg)
	case MsgCommit:
		return e.handleCommit(msg)
	case MsgViewChange:
		return e.handleViewChange(msg)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (e *Engine) handlePrePrepare(msg Message) error {
	e.mu.Lock()
	if msg.View != e.view {
		e.mu.Unlock()
		return coreerrors.New(coreerrors.CodeConsensusFailure, "pre-prepare view %d != current view %d", msg.View, e.view)
	}
	if e.Leader(msg.View) != msg.From {
		e.mu.Unlock()
		return coreerrors.New(coreerrors.CodeConsensusFailure, "pre-prepare from non-leader %s", msg.From)
	}
	e.messageLog = append(e.messageLog, msg)
	entry, ok := e.pending[msg.TxDigest]
	if !ok {
		entry = &pendingEntry{
			view: msg.View, sequence: msg.Sequence, tx: msg.Tx, digest: msg.TxDigest,
			prepares: make(map[string]bool), commits: make(map[string]bool), done: make(chan struct{}),
		}
		e.pending[msg.TxDigest] = entry
	}
	e.mu.Unlock()

	prepare := Message{Type: MsgPrepare, View: msg.View, Sequence: msg.Sequence, TxDigest: msg.TxDigest, From: e.selfPk}
	signed, err := e.signAndBroadcast(prepare)
	if err != nil {
		return err
	}
	return e.handlePrepare(signed)
}

func (e *Engine) handlePrepare(msg Message) error {
	e.mu.Lock()
	if msg.View != e.view {
		e.mu.Unlock()
		return coreerrors.New(coreerrors.CodeConsensusFailure, "prepare view %d != current view %d", msg.View, e.view)
	}
	entry, ok := e.pending[msg.TxDigest]
	if !ok {
		e.mu.Unlock()
		return coreerrors.New(coreerrors.CodeConsensusFailure, "prepare for unknown transaction %s", msg.TxDigest)
	}
	if msg.View != entry.view {
		e.mu.Unlock()
		return coreerrors.New(coreerrors.CodeConsensusFailure, "prepare view %d != entry view %d", msg.View, entry.view)
	}
	e.messageLog = append(e.messageLog, msg)
	entry.prepares[msg.From] = true
	alreadyPrepared := entry.prepared
	if !alreadyPrepared && len(entry.prepares) >= e.quorum() {
		entry.prepared = true
	}
	shouldCommit := entry.prepared && !alreadyPrepared
	e.mu.Unlock()

	if !shouldCommit {
		return nil
	}
	commit := Message{Type: MsgCommit, View: msg.View, Sequence: msg.Sequence, TxDigest: msg.TxDigest, From: e.selfPk}
	signed, err := e.signAndBroadcast(commit)
	if err != nil {
		return err
	}
	return e.handleCommit(signed)
}

func (e *Engine) handleCommit(msg Message) error {
	e.mu.Lock()
	if msg.View != e.view {
		e.mu.Unlock()
		return coreerrors.New(coreerrors.CodeConsensusFailure, "commit view %d != current view %d", msg.View, e.view)
	}
	entry, ok := e.pending[msg.TxDigest]
	if !ok {
		e.mu.Unlock()
		return coreerrors.New(coreerrors.CodeConsensusFailure, "commit for unknown transaction %s", msg.TxDigest)
	}
	if msg.View != entry.view {
		e.mu.Unlock()
		return coreerrors.New(coreerrors.CodeConsensusFailure, "commit view %d != entry view %d", msg.View, entry.view)
	}
	e.messageLog = append(e.messageLog, msg)
	entry.commits[msg.From] = true
	reachedQuorum := len(entry.commits) >= e.quorum()
	alreadyDone := false
	select {
	case <-entry.done:
		alreadyDone = true
	default:
	}
	e.mu.Unlock()

	if !reachedQuorum || alreadyDone {
		return nil
	}

	stx, err := e.ledger.ApplyTransaction(entry.tx)

	e.mu.Lock()
	entry.result, entry.err = stx, err
	delete(e.pending, entry.digest)
	close(entry.done)
	e.mu.Unlock()

	if err != nil {
		e.log.WithError(err).WithField("tx_digest", entry.digest).Warn("commit applied but ledger rejected transaction")
		return err
	}
	if e.emitter != nil {
		e.emitter.Emit(events.Event{
			Type:        events.EventConsensusCommit,
			TxDigest:    entry.digest,
			BlockHeight: stx.BlockHeight,
			Data:        map[string]any{"sequence": entry.sequence, "view": entry.view},
		})
	}
	e.log.WithFields(logrus.Fields{"tx_digest": entry.digest, "sequence": entry.sequence}).Info("transaction committed")
	return nil
}

// startViewChange advances to the next view and broadcasts a view-change
// message. Called when the view timer expires without quorum.
func (e *Engine) startViewChange() {
	e.mu.Lock()
	e.view++
	view := e.view
	e.mu.Unlock()

	msg := Message{Type: MsgViewChange, View: view, From: e.selfPk}
	signed, err := e.signAndBroadcast(msg)
	if err != nil {
		e.log.WithError(err).Warn("broadcast view-change")
		return
	}
	e.mu.Lock()
	e.messageLog = append(e.messageLog, signed)
	e.mu.Unlock()
	if e.emitter != nil {
		e.emitter.Emit(events.Event{Type: events.EventViewChange, Data: map[string]any{"view": view, "from": e.selfPk}})
	}
}

func (e *Engine) handleViewChange(msg Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messageLog = append(e.messageLog, msg)
	if msg.View > e.view {
		e.view = msg.View
	}
	return nil
}

// signAndBroadcast signs msg and broadcasts it to peers, returning the
// signed copy for local processing. Does not append to the message log —
// callers log on receipt (handlePrePrepare/handlePrepare/handleCommit),
// whether the message came from a peer or from this validator's own vote.
func (e *Engine) signAndBroadcast(msg Message) (Message, error) {
	signed, err := msg.Sign(e.priv)
	if err != nil {
		return Message{}, fmt.Errorf("sign %s message: %w", msg.Type, err)
	}
	e.broadcaster.Broadcast(signed)
	return signed, nil
}

func (e *Engine) failEntry(entry *pendingEntry, err error) {
	e.mu.Lock()
	entry.err = err
	delete(e.pending, entry.digest)
	close(entry.done)
	e.mu.Unlock()
}

