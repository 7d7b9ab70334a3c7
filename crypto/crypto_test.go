package crypto

import "testing"

func TestKeyGenAndHex(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if len(pub.Hex()) != 64 {
		t.Errorf("pubkey hex length: got %d want 64", len(pub.Hex()))
	}
	if derived := priv.Public(); derived.Hex() != pub.Hex() {
		t.Error("derived public key does not match")
	}
}

func TestPubKeyFromHexRejectsWrongLength(t *testing.T) {
	if _, err := PubKeyFromHex("deadbeef"); err == nil {
		t.Error("expected error for short pubkey hex")
	}
}

// TestSignVerifyRoundTrip pins the "signature round-trip" property from the
// spec: verify(sign(message, sk), message, pk) holds, and fails for any
// other key or tampered message.
func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	_, otherPub, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("clawrrency")
	sig := Sign(priv, msg)

	if err := Verify(pub, msg, sig); err != nil {
		t.Errorf("valid signature failed: %v", err)
	}
	if err := Verify(pub, []byte("tampered"), sig); err == nil {
		t.Error("tampered message should fail verification")
	}
	if err := Verify(otherPub, msg, sig); err == nil {
		t.Error("verification with wrong public key should fail")
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	_, pub, _ := GenerateKeyPair()
	if err := Verify(pub, []byte("x"), "not-hex!!"); err == nil {
		t.Error("expected decode error")
	}
	if err := Verify(pub, []byte("x"), "aa"); err == nil {
		t.Error("expected length error for short signature")
	}
}

// TestCanonicalHashStability pins the "canonical hash stability" property:
// hash(obj) is invariant under key-reordering of obj.
func TestCanonicalHashStability(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": map[string]any{"y": 2, "x": 1}}
	b := map[string]any{"c": map[string]any{"x": 1, "y": 2}, "a": 1, "b": 2}

	ha, err := HashCanonical(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := HashCanonical(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("canonical hash not stable under key reordering: %s != %s", ha, hb)
	}
}

func TestCanonicalRejectsFloatDistortion(t *testing.T) {
	// A large uint64 amount must round-trip exactly through canonical
	// encoding rather than being distorted by float64 conversion.
	type payload struct {
		Amount uint64 `json:"amount"`
	}
	data, err := Canonical(payload{Amount: 9007199254740993}) // 2^53 + 1
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"amount":9007199254740993}` {
		t.Errorf("amount distorted: %s", data)
	}
}
