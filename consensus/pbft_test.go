package consensus

import (
	"testing"
	"time"

	"github.com/ruxir-ig/clawrrency/crypto"
	"github.com/ruxir-ig/clawrrency/events"
	"github.com/ruxir-ig/clawrrency/internal/testutil"
	"github.com/ruxir-ig/clawrrency/ledger"
)

func newSingleValidatorEngine(t *testing.T) (*Engine, crypto.PrivateKey, *ledger.Engine) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	led := ledger.New(ledger.NewStateDB(testutil.NewMemDB()), nil)
	emitter := events.NewEmitter(nil)
	eng := New([]string{pub.Hex()}, priv, led, emitter, nil, 2*time.Second, nil)
	return eng, priv, led
}

func TestSingleNodePBFTCommitsImmediately(t *testing.T) {
	eng, priv, led := newSingleValidatorEngine(t)
	self := priv.Public().Hex()

	if err := led.CreateAccount(self, 1000); err != nil {
		t.Fatalf("create account: %v", err)
	}
	recipPriv, recipPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}
	_ = recipPriv
	if err := led.CreateAccount(recipPub.Hex(), 0); err != nil {
		t.Fatalf("create recipient account: %v", err)
	}

	tx, err := ledger.NewTransaction(ledger.TxTransfer, self, recipPub.Hex(), 100, 1, nil)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	tx.Sign(priv)

	stx, err := eng.SubmitTransaction(tx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if stx == nil {
		t.Fatal("expected committed transaction, got nil")
	}

	if got := eng.PendingCount(); got != 0 {
		t.Fatalf("pending_count = %d, want 0", got)
	}

	bal, err := led.GetBalance(self)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if bal != 899 {
		t.Fatalf("sender balance = %d, want 899", bal)
	}

	var sawPrePrepare, sawPrepare, sawCommit bool
	for _, m := range eng.Messages() {
		if m.From != self {
			t.Fatalf("unexpected message from %s in a single-validator log", m.From)
		}
		switch m.Type {
		case MsgPrePrepare:
			sawPrePrepare = true
		case MsgPrepare:
			sawPrepare = true
		case MsgCommit:
			sawCommit = true
		}
	}
	if !sawPrePrepare || !sawPrepare || !sawCommit {
		t.Fatalf("message log missing a phase: pre-prepare=%v prepare=%v commit=%v", sawPrePrepare, sawPrepare, sawCommit)
	}
}

func TestNonLeaderRejectsSubmission(t *testing.T) {
	followerPriv, followerPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate follower key: %v", err)
	}
	_, leaderPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate leader key: %v", err)
	}
	led := ledger.New(ledger.NewStateDB(testutil.NewMemDB()), nil)
	emitter := events.NewEmitter(nil)
	// Two members in fixed order; view 0's leader is members[0], the
	// other validator, not this engine's own key.
	members := []string{leaderPub.Hex(), followerPub.Hex()}
	eng := New(members, followerPriv, led, emitter, nil, 2*time.Second, nil)

	if eng.IsLeader() {
		t.Fatal("expected follower not to be leader for view 0")
	}

	tx, err := ledger.NewTransaction(ledger.TxTransfer, followerPub.Hex(), leaderPub.Hex(), 1, 1, nil)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	tx.Sign(followerPriv)

	if _, err := eng.SubmitTransaction(tx); err == nil {
		t.Fatal("expected non-leader submission to be rejected")
	}
}
