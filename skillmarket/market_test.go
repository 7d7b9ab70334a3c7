package skillmarket

import (
	"testing"

	"github.com/ruxir-ig/clawrrency/identity"
	"github.com/ruxir-ig/clawrrency/internal/testutil"
	"github.com/ruxir-ig/clawrrency/ledger"
	"github.com/ruxir-ig/clawrrency/wallet"
)

func newTestMarket(t *testing.T) (*Market, *ledger.Engine, *identity.Registry) {
	t.Helper()
	db := testutil.NewMemDB()
	led := ledger.New(ledger.NewStateDB(db), nil)
	reg := identity.NewRegistry(testutil.NewMemDB(), t.TempDir(), led, nil)
	mkt := NewMarket(testutil.NewMemDB(), led, reg, nil, nil)
	return mkt, led, reg
}

func mustWallet(t *testing.T, reg *identity.Registry, name string) *wallet.Wallet {
	t.Helper()
	w, _, err := reg.CreateWallet(name, "", "pw")
	if err != nil {
		t.Fatalf("CreateWallet(%s): %v", name, err)
	}
	return w
}

// TestSkillLifecycle exercises the full skill flow: creator C (balance 0),
// buyer B (balance 1000). C creates skill M with one file, lists at price
// 50. B purchases. Expected: B.balance=949 (price 50 + fee 1), C.balance=50,
// verify_skill valid, then invalid after mutating the stored file content.
func TestSkillLifecycle(t *testing.T) {
	mkt, led, reg := newTestMarket(t)

	creator := mustWallet(t, reg, "creator")

	buyer, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := led.CreateAccount(buyer.PubKey(), 1000); err != nil {
		t.Fatalf("seed buyer balance: %v", err)
	}

	skill, err := mkt.CreateSkill(creator, "echo", "echoes input", "1.0.0", TypeSkill,
		[]FileInput{{Path: "index.js", Content: []byte("x=1")}}, nil, "MIT", "index.js")
	if err != nil {
		t.Fatalf("CreateSkill: %v", err)
	}

	if _, err := mkt.ListSkill(creator, skill.ID, 50); err != nil {
		t.Fatalf("ListSkill: %v", err)
	}

	purchase, err := mkt.PurchaseSkill(buyer, skill.ID)
	if err != nil {
		t.Fatalf("PurchaseSkill: %v", err)
	}
	if purchase.Price != 50 {
		t.Errorf("purchase price = %d, want 50", purchase.Price)
	}

	buyerAcc, err := led.GetAccount(buyer.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	if buyerAcc.Balance != 949 {
		t.Errorf("buyer balance = %d, want 949", buyerAcc.Balance)
	}

	creatorAcc, err := led.GetAccount(creator.PubKey())
	if err != nil {
		t.Fatal(err)
	}
	if creatorAcc.Balance != 50 {
		t.Errorf("creator balance = %d, want 50", creatorAcc.Balance)
	}

	valid, err := mkt.VerifySkill(skill.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Error("expected skill to verify valid before mutation")
	}

	stored, err := mkt.GetSkill(skill.ID)
	if err != nil {
		t.Fatal(err)
	}
	stored.Contents["index.js"] = []byte("x=2")
	valid, err = Verify(stored)
	if err != nil {
		t.Fatal(err)
	}
	if valid {
		t.Error("expected skill to verify invalid after content mutation")
	}
}

func TestListSkillRequiresCreator(t *testing.T) {
	mkt, _, reg := newTestMarket(t)
	creator := mustWallet(t, reg, "creator")
	other := mustWallet(t, reg, "other")

	skill, err := mkt.CreateSkill(creator, "s", "", "1.0.0", TypeSkill,
		[]FileInput{{Path: "a", Content: []byte("1")}}, nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mkt.ListSkill(other, skill.ID, 10); err == nil {
		t.Error("expected listing by non-creator to fail")
	}
}

func TestDuplicateSkillRejected(t *testing.T) {
	mkt, _, reg := newTestMarket(t)
	creator := mustWallet(t, reg, "creator")

	files := []FileInput{{Path: "a", Content: []byte("same")}}
	if _, err := mkt.CreateSkill(creator, "dup", "d", "1.0.0", TypeSkill, files, nil, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := mkt.CreateSkill(creator, "dup", "d", "1.0.0", TypeSkill, files, nil, "", ""); err == nil {
		t.Error("expected duplicate skill creation to fail")
	}
}

func TestAddReviewRequiresPurchase(t *testing.T) {
	mkt, led, reg := newTestMarket(t)
	creator := mustWallet(t, reg, "creator")
	buyer, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := led.CreateAccount(buyer.PubKey(), 100); err != nil {
		t.Fatal(err)
	}

	skill, err := mkt.CreateSkill(creator, "s", "", "1.0.0", TypeSkill,
		[]FileInput{{Path: "a", Content: []byte("1")}}, nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mkt.ListSkill(creator, skill.ID, 10); err != nil {
		t.Fatal(err)
	}

	if err := mkt.AddReview(buyer.PubKey(), skill.ID, 5, "great"); err == nil {
		t.Error("expected review without purchase to fail")
	}

	if _, err := mkt.PurchaseSkill(buyer, skill.ID); err != nil {
		t.Fatal(err)
	}
	if err := mkt.AddReview(buyer.PubKey(), skill.ID, 9, "amazing"); err != nil {
		t.Fatalf("AddReview: %v", err)
	}
	listing, err := mkt.GetListing(skill.ID)
	if err != nil {
		t.Fatal(err)
	}
	if listing.Rating != 5 {
		t.Errorf("rating = %v, want 5 (clamped from 9)", listing.Rating)
	}
}

func TestDelistSkillRequiresSeller(t *testing.T) {
	mkt, _, reg := newTestMarket(t)
	creator := mustWallet(t, reg, "creator")
	other := mustWallet(t, reg, "other")

	skill, err := mkt.CreateSkill(creator, "s", "", "1.0.0", TypeSkill,
		[]FileInput{{Path: "a", Content: []byte("1")}}, nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mkt.ListSkill(creator, skill.ID, 10); err != nil {
		t.Fatal(err)
	}
	if err := mkt.DelistSkill(other.PubKey(), skill.ID); err == nil {
		t.Error("expected delist by non-seller to fail")
	}
	if err := mkt.DelistSkill(creator.PubKey(), skill.ID); err != nil {
		t.Fatalf("DelistSkill: %v", err)
	}
	listing, err := mkt.GetListing(skill.ID)
	if err != nil {
		t.Fatal(err)
	}
	if listing.Status != ListingDelisted {
		t.Errorf("status = %s, want delisted", listing.Status)
	}
}
