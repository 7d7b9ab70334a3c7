package econ

import (
	"math"
	"testing"
)

func TestFeeMultipliers(t *testing.T) {
	cases := []struct {
		priority Priority
		want     uint64
	}{
		{PriorityLow, 1},    // ceil(1*0.5) = 1
		{PriorityNormal, 1}, // ceil(1*1.0) = 1
		{PriorityHigh, 2},   // ceil(1*2.0) = 2
	}
	for _, c := range cases {
		if got := Fee(1, c.priority); got != c.want {
			t.Errorf("Fee(1, %s) = %d, want %d", c.priority, got, c.want)
		}
	}
	if got := Fee(3, PriorityLow); got != 2 { // ceil(1.5) = 2
		t.Errorf("Fee(3, low) = %d, want 2", got)
	}
}

// TestReputationPenalties pins an end-to-end reputation-penalty scenario.
func TestReputationPenalties(t *testing.T) {
	in := ReputationInputs{
		Trades:       20,
		Skills:       0,
		UptimeHours:  0,
		GovVotes:     0,
		DisputesLost: 5,
		SpamFlags:    2,
		AgeMonths:    1,
	}
	got := Reputation(in)
	// raw = 10*20 - 50*5 - 100*2 = 200 - 250 - 200 = -250 -> clamped inputs to
	// the decay step, not the floor: (200 - 250 - 200) * 0.99 = -247.5, then
	// max(0, -247.5) = 0.
	want := math.Max(0, (200-250-200)*0.99)
	if got != want {
		t.Errorf("Reputation = %v, want %v", got, want)
	}
	if got != 0 {
		t.Errorf("Reputation = %v, want 0 (floored)", got)
	}

	positiveOnly := Reputation(ReputationInputs{Trades: 20, AgeMonths: 1})
	if got >= positiveOnly {
		t.Errorf("penalized reputation %v should be < positive-only %v", got, positiveOnly)
	}
}

func TestVotingPowerCap(t *testing.T) {
	if got := VotingPower(5000, 1_000_000); got != 1000 {
		t.Errorf("VotingPower should cap at 1000, got %v", got)
	}
	if got := VotingPower(10, 100); got != 5.1 {
		t.Errorf("VotingPower(10, 100) = %v, want 5.1", got)
	}
}

func TestRegistrationMint(t *testing.T) {
	if RegistrationMint(true) != 100 {
		t.Error("attested mint should be 100")
	}
	if RegistrationMint(false) != 50 {
		t.Error("unattested mint should be 50")
	}
}

func TestStakeRequirement(t *testing.T) {
	if got := StakeRequirement(false, 0); got != 50 {
		t.Errorf("unattested stake = %d, want 50", got)
	}
	if got := StakeRequirement(true, 150); got != 25 {
		t.Errorf("attested (rep>=100) stake = %d, want 25", got)
	}
	if got := StakeRequirement(true, 50); got != 50 {
		t.Errorf("attested but low-rep attester stake = %d, want 50", got)
	}
}

func TestCheckTransaction(t *testing.T) {
	if err := CheckTransaction(100, 50, 1, true); err == nil {
		t.Error("expected insufficient balance error")
	}
	if err := CheckTransaction(0, 1000, 1, true); err == nil {
		t.Error("expected invalid amount error for zero transfer")
	}
	if err := CheckTransaction(0, 1000, 0, false); err != nil {
		t.Errorf("zero amount should be valid for non-transfer types: %v", err)
	}
	if err := CheckTransaction(SafeIntegerBound+1, math.MaxUint64, 0, false); err == nil {
		t.Error("expected invalid amount error above safe integer bound")
	}
}

func TestDistributeValidatorRewardEqualWhenAllZero(t *testing.T) {
	shares := DistributeValidatorReward(10, []uint64{0, 0, 0})
	var sum uint64
	for _, s := range shares {
		sum += s
		if s < 3 {
			t.Errorf("share %d too small for equal split of 10/3", s)
		}
	}
	if sum != 10 {
		t.Errorf("shares sum to %d, want 10", sum)
	}
}

func TestDistributeValidatorRewardProportional(t *testing.T) {
	shares := DistributeValidatorReward(10, []uint64{1, 1, 2})
	var sum uint64
	for _, s := range shares {
		sum += s
	}
	if sum != 10 {
		t.Errorf("shares sum to %d, want 10", sum)
	}
	if shares[2] < shares[0] {
		t.Error("higher score should not receive a smaller share")
	}
}
