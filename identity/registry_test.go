package identity

import (
	"testing"

	"github.com/ruxir-ig/clawrrency/internal/testutil"
	"github.com/ruxir-ig/clawrrency/ledger"
)

func newTestRegistry(t *testing.T) (*Registry, *ledger.Engine) {
	t.Helper()
	led := ledger.New(ledger.NewStateDB(testutil.NewMemDB()), nil)
	reg := NewRegistry(testutil.NewMemDB(), t.TempDir(), led, nil)
	return reg, led
}

func TestCreateWalletAndUnattestedRegistration(t *testing.T) {
	reg, led := newTestRegistry(t)

	w, id, err := reg.CreateWallet("bot-a", "a test bot", "correct horse battery staple")
	if err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if id.PubKey != w.PubKey() {
		t.Fatal("identity pubkey mismatch")
	}

	if err := reg.RegisterBot(w, ""); err != nil {
		t.Fatalf("RegisterBot: %v", err)
	}

	registered, err := reg.IsRegistered(w.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	if !registered {
		t.Error("expected bot to be registered")
	}

	acc, err := led.GetAccount(w.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	// Unattested: mint 50, then stake 50 locked -> spendable balance 0.
	if acc.Balance != 0 {
		t.Errorf("balance after unattested registration = %d, want 0", acc.Balance)
	}
	if acc.StakeLocked != 50 {
		t.Errorf("stake locked = %d, want 50", acc.StakeLocked)
	}
}

func TestAttestedRegistrationDiscount(t *testing.T) {
	reg, led := newTestRegistry(t)

	attesterW, attesterID, err := reg.CreateWallet("attester", "", "pw")
	if err != nil {
		t.Fatal(err)
	}
	// Give the attester reputation >= 100 directly (simulating prior activity).
	attesterID.Reputation = 150
	if err := reg.put(attesterID); err != nil {
		t.Fatal(err)
	}

	botW, _, err := reg.CreateWallet("bot-b", "", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterBot(botW, attesterW.PubKey()); err != nil {
		t.Fatalf("RegisterBot with attestation: %v", err)
	}

	acc, err := led.GetAccount(botW.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	// Attested: mint 100, stake 25 locked -> spendable balance 75.
	if acc.Balance != 75 {
		t.Errorf("balance after attested registration = %d, want 75", acc.Balance)
	}
	if acc.StakeLocked != 25 {
		t.Errorf("stake locked = %d, want 25", acc.StakeLocked)
	}

	id, err := reg.GetIdentity(botW.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	if len(id.AttestedBy) != 1 || id.AttestedBy[0] != attesterW.PubKey() {
		t.Errorf("unexpected AttestedBy: %v", id.AttestedBy)
	}

	attester, err := reg.GetIdentity(attesterW.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	if len(attester.Attests) != 1 || attester.Attests[0] != botW.PubKey() {
		t.Errorf("unexpected Attests: %v", attester.Attests)
	}
}

func TestRegisterBotRejectsLowReputationAttester(t *testing.T) {
	reg, _ := newTestRegistry(t)

	attesterW, _, err := reg.CreateWallet("attester", "", "pw")
	if err != nil {
		t.Fatal(err)
	}
	botW, _, err := reg.CreateWallet("bot-c", "", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterBot(botW, attesterW.PubKey()); err == nil {
		t.Error("expected registration to fail for low-reputation attester")
	}
}

func TestUpdateReputation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	w, _, err := reg.CreateWallet("bot-d", "", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.RecordTrade(w.PubKey()); err != nil {
		t.Fatal(err)
	}
	rep, err := reg.UpdateReputation(w.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	if rep <= 0 {
		t.Errorf("reputation = %v, want > 0 after one trade", rep)
	}
}
