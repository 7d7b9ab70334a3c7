package ledger

import (
	"testing"

	"github.com/ruxir-ig/clawrrency/coreerrors"
	"github.com/ruxir-ig/clawrrency/crypto"
	"github.com/ruxir-ig/clawrrency/internal/testutil"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(NewStateDB(testutil.NewMemDB()), nil)
}

func mustKey(t *testing.T) (crypto.PrivateKey, crypto.PublicKey) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return priv, pub
}

func signedTransfer(t *testing.T, priv crypto.PrivateKey, from, to string, amount, nonce uint64) *Transaction {
	t.Helper()
	tx, err := NewTransaction(TxTransfer, from, to, amount, nonce, nil)
	if err != nil {
		t.Fatal(err)
	}
	tx.Sign(priv)
	return tx
}

// TestFreshTransfer pins the basic transfer scenario.
func TestFreshTransfer(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()

	if err := e.CreateAccount(s, 1000); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateAccount(r, 100); err != nil {
		t.Fatal(err)
	}

	tx := signedTransfer(t, sPriv, s, r, 100, 1)
	if _, err := e.ApplyTransaction(tx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	sAcc, _ := e.GetAccount(s)
	rAcc, _ := e.GetAccount(r)
	if sAcc.Balance != 899 {
		t.Errorf("sender balance = %d, want 899", sAcc.Balance)
	}
	if rAcc.Balance != 200 {
		t.Errorf("recipient balance = %d, want 200", rAcc.Balance)
	}
	if sAcc.Nonce != 1 {
		t.Errorf("sender nonce = %d, want 1", sAcc.Nonce)
	}
}

// TestReplayRejection pins scenario 2.
func TestReplayRejection(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()
	e.CreateAccount(s, 1000)
	e.CreateAccount(r, 100)

	tx := signedTransfer(t, sPriv, s, r, 100, 1)
	if _, err := e.ApplyTransaction(tx); err != nil {
		t.Fatal(err)
	}
	before, _ := e.GetAccount(s)

	_, err := e.ApplyTransaction(tx)
	code, ok := coreerrors.CodeOf(err)
	if !ok || code != coreerrors.CodeDuplicateTx {
		t.Fatalf("expected DUPLICATE_TRANSACTION, got %v", err)
	}
	after, _ := e.GetAccount(s)
	if after.Balance != before.Balance || after.Nonce != before.Nonce {
		t.Error("state mutated on duplicate rejection")
	}
}

// TestNonceGap pins scenario 3.
func TestNonceGap(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()
	e.CreateAccount(s, 1000)
	e.CreateAccount(r, 100)

	first := signedTransfer(t, sPriv, s, r, 100, 1)
	if _, err := e.ApplyTransaction(first); err != nil {
		t.Fatal(err)
	}

	gapped := signedTransfer(t, sPriv, s, r, 10, 5)
	_, err := e.ApplyTransaction(gapped)
	code, ok := coreerrors.CodeOf(err)
	if !ok || code != coreerrors.CodeInvalidNonce {
		t.Fatalf("expected INVALID_NONCE, got %v", err)
	}
	ce, ok := err.(*coreerrors.Error)
	if !ok || ce.Message == "" {
		t.Fatal("expected *coreerrors.Error with a message carrying the expected nonce")
	}
}

// TestForgedSignature pins scenario 4.
func TestForgedSignature(t *testing.T) {
	e := newTestEngine(t)
	_, sPub := mustKey(t)
	attackerPriv, _ := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()
	e.CreateAccount(s, 1000)
	e.CreateAccount(r, 100)

	tx := signedTransfer(t, attackerPriv, s, r, 100, 1)
	_, err := e.ApplyTransaction(tx)
	code, ok := coreerrors.CodeOf(err)
	if !ok || code != coreerrors.CodeInvalidSignature {
		t.Fatalf("expected INVALID_SIGNATURE, got %v", err)
	}
	sAcc, _ := e.GetAccount(s)
	if sAcc.Balance != 1000 {
		t.Error("state mutated on forged signature")
	}
}

// TestNonceMonotonicity pins the nonce-monotonicity property.
func TestNonceMonotonicity(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()
	e.CreateAccount(s, 10_000)
	e.CreateAccount(r, 0)

	accepted := 0
	for i := uint64(1); i <= 5; i++ {
		tx := signedTransfer(t, sPriv, s, r, 1, i)
		if _, err := e.ApplyTransaction(tx); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		accepted++
	}
	acc, _ := e.GetAccount(s)
	if int(acc.Nonce) != accepted {
		t.Errorf("nonce = %d, want %d", acc.Nonce, accepted)
	}
}

// TestBalanceConservation pins the balance-conservation property.
func TestBalanceConservation(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()
	e.CreateAccount(s, 1000)
	e.CreateAccount(r, 0)

	before := uint64(1000)
	tx := signedTransfer(t, sPriv, s, r, 300, 1)
	if _, err := e.ApplyTransaction(tx); err != nil {
		t.Fatal(err)
	}
	sAcc, _ := e.GetAccount(s)
	rAcc, _ := e.GetAccount(r)
	after := sAcc.Balance + rAcc.Balance
	if before-after != BaseFee {
		t.Errorf("total supply decreased by %d, want %d", before-after, BaseFee)
	}
}

// TestHistoryNewestFirst verifies get_transaction_history ordering.
func TestHistoryNewestFirst(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()
	e.CreateAccount(s, 10_000)
	e.CreateAccount(r, 0)

	var digests []string
	for i := uint64(1); i <= 3; i++ {
		tx := signedTransfer(t, sPriv, s, r, 1, i)
		stx, err := e.ApplyTransaction(tx)
		if err != nil {
			t.Fatal(err)
		}
		digests = append(digests, stx.Tx.Hash())
	}

	hist, err := e.GetTransactionHistory(s, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	for i, stx := range hist {
		want := digests[len(digests)-1-i]
		if stx.Tx.Hash() != want {
			t.Errorf("history[%d] = %s, want %s", i, stx.Tx.Hash(), want)
		}
	}
}

// TestBlockHeightIncrementsPerCommit pins the chosen block-height
// semantics: it increments once per applied transaction.
func TestBlockHeightIncrementsPerCommit(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()
	e.CreateAccount(s, 10_000)
	e.CreateAccount(r, 0)

	for i := uint64(1); i <= 3; i++ {
		tx := signedTransfer(t, sPriv, s, r, 1, i)
		stx, err := e.ApplyTransaction(tx)
		if err != nil {
			t.Fatal(err)
		}
		if stx.BlockHeight != i {
			t.Errorf("block height = %d, want %d", stx.BlockHeight, i)
		}
	}
	h, err := e.BlockHeight()
	if err != nil {
		t.Fatal(err)
	}
	if h != 3 {
		t.Errorf("final block height = %d, want 3", h)
	}
}

func TestUnknownSenderAndRecipient(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()

	// Sender never created.
	tx := signedTransfer(t, sPriv, s, r, 1, 1)
	_, err := e.ApplyTransaction(tx)
	if code, ok := coreerrors.CodeOf(err); !ok || code != coreerrors.CodeUnknownSender {
		t.Fatalf("expected UNKNOWN_SENDER, got %v", err)
	}

	e.CreateAccount(s, 1000)
	tx2 := signedTransfer(t, sPriv, s, r, 1, 1)
	_, err = e.ApplyTransaction(tx2)
	if code, ok := coreerrors.CodeOf(err); !ok || code != coreerrors.CodeUnknownRecipient {
		t.Fatalf("expected UNKNOWN_RECIPIENT, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	sPriv, sPub := mustKey(t)
	_, rPub := mustKey(t)
	s, r := sPub.Hex(), rPub.Hex()
	e.CreateAccount(s, 1000)
	e.CreateAccount(r, 100)
	tx := signedTransfer(t, sPriv, s, r, 100, 1)
	if _, err := e.ApplyTransaction(tx); err != nil {
		t.Fatal(err)
	}

	snap, err := e.SnapshotState()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 1 || snap.BlockHeight != 1 {
		t.Fatalf("unexpected snapshot header: %+v", snap)
	}
	if len(snap.Accounts) != 2 || len(snap.Transactions) != 1 {
		t.Fatalf("unexpected snapshot contents: %+v", snap)
	}

	e2 := New(NewStateDB(testutil.NewMemDB()), nil)
	if err := LoadSnapshot(e2.state, snap); err != nil {
		t.Fatal(err)
	}
	sAcc, err := e2.GetAccount(s)
	if err != nil {
		t.Fatal(err)
	}
	if sAcc.Balance != 899 {
		t.Errorf("restored sender balance = %d, want 899", sAcc.Balance)
	}
	h, _ := e2.BlockHeight()
	if h != 1 {
		t.Errorf("restored block height = %d, want 1", h)
	}
}
