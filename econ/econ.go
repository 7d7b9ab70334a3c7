// Package econ implements the pure economic formulas shared by the ledger,
// identity registry, and skill marketplace: fees, reputation, voting power,
// minting amounts, and stake requirements. Every function here is a pure
// computation over primitive inputs; none of them touch storage.
package econ

import (
	"math"

	"github.com/ruxir-ig/clawrrency/coreerrors"
)

// SafeIntegerBound mirrors the IEEE-754 double safe-integer limit (2^53-1),
// the upper bound placed on transaction amounts.
const SafeIntegerBound = uint64(1<<53) - 1

// Priority selects the fee multiplier applied to the base fee.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Multipliers applied to the base fee per priority tier.
const (
	MultiplierLow    = 0.5
	MultiplierNormal = 1.0
	MultiplierHigh   = 2.0
)

// Fee computes the priority-adjusted fee: ceil(base * multiplier).
func Fee(base uint64, priority Priority) uint64 {
	mult := MultiplierNormal
	switch priority {
	case PriorityLow:
		mult = MultiplierLow
	case PriorityHigh:
		mult = MultiplierHigh
	}
	return uint64(math.Ceil(float64(base) * mult))
}

// ReputationInputs are the activity counters the reputation formula reads.
type ReputationInputs struct {
	Trades       uint64
	Skills       uint64
	UptimeHours  uint64
	GovVotes     uint64
	DisputesLost uint64
	SpamFlags    uint64
	AgeMonths    float64
}

// Reputation computes:
//
//	R = max(0, (10*trades + 20*skills + 0.1*uptime_hours + 5*gov_votes
//	            - 50*disputes_lost - 100*spam_flags) * (1 - 0.01)^age_months)
func Reputation(in ReputationInputs) float64 {
	raw := 10*float64(in.Trades) +
		20*float64(in.Skills) +
		0.1*float64(in.UptimeHours) +
		5*float64(in.GovVotes) -
		50*float64(in.DisputesLost) -
		100*float64(in.SpamFlags)
	decayed := raw * math.Pow(1-0.01, in.AgeMonths)
	return math.Max(0, decayed)
}

// VotingPower computes min(0.5*R + 0.001*shellsHeld, 1000).
func VotingPower(reputation float64, shellsHeld uint64) float64 {
	power := 0.5*reputation + 0.001*float64(shellsHeld)
	return math.Min(power, 1000)
}

// Registration minting amounts.
const (
	MintAttested   = uint64(100)
	MintUnattested = uint64(50)
)

// RegistrationMint returns the minted amount for a new registrant.
func RegistrationMint(attested bool) uint64 {
	if attested {
		return MintAttested
	}
	return MintUnattested
}

// Stake parameters.
const (
	BaseStakeRequirement     = uint64(50)
	AttestedStakeRequirement = uint64(25)
	AttesterMinReputation    = float64(100)
	StakeLockDays            = 30

	ValidatorRewardPerBlock = uint64(10)
	TreasuryRewardPerBlock  = uint64(5)
)

// StakeRequirement returns the shells a registrant must lock, applying the
// attestation discount when attesterReputation meets AttesterMinReputation.
func StakeRequirement(attested bool, attesterReputation float64) uint64 {
	if attested && attesterReputation >= AttesterMinReputation {
		return AttestedStakeRequirement
	}
	return BaseStakeRequirement
}

// CheckTransaction runs the pre-apply economic constraint check from
// amount bounds, the transfer-type nonzero-amount rule, and
// sufficient balance to cover amount+fee. requireNonzero is set by the
// caller for transfer-shaped transaction types (transfer, skill_purchase).
func CheckTransaction(amount, senderBalance, fee uint64, requireNonzero bool) error {
	if amount > SafeIntegerBound {
		return coreerrors.New(coreerrors.CodeInvalidAmount, "amount %d exceeds safe integer bound", amount)
	}
	if requireNonzero && amount == 0 {
		return coreerrors.New(coreerrors.CodeInvalidAmount, "amount must be nonzero")
	}
	total := amount + fee
	if total < amount {
		return coreerrors.New(coreerrors.CodeInvalidAmount, "amount+fee overflow")
	}
	if senderBalance < total {
		return coreerrors.New(coreerrors.CodeInsufficientBalance, "balance %d < amount+fee %d", senderBalance, total)
	}
	return nil
}

// DistributeValidatorReward splits a per-block validator reward across
// scores proportionally; if every score is zero, the reward is split
// equally. Returned shares sum to total: in the equal split the remainder
// from integer division adds one to each of the first entries in caller
// order; in the proportional split it goes to the highest-scoring entry
// (the first one on a tie).
func DistributeValidatorReward(total uint64, scores []uint64) []uint64 {
	shares := make([]uint64, len(scores))
	if len(scores) == 0 {
		return shares
	}
	var sum uint64
	for _, s := range scores {
		sum += s
	}
	if sum == 0 {
		base := total / uint64(len(scores))
		remainder := total % uint64(len(scores))
		for i := range shares {
			shares[i] = base
		}
		for i := uint64(0); i < remainder; i++ {
			shares[i]++
		}
		return shares
	}
	var distributed uint64
	for i, s := range scores {
		share := total * s / sum
		shares[i] = share
		distributed += share
	}
	// Remainder from integer division goes to the highest-scoring entry.
	if rem := total - distributed; rem > 0 && len(shares) > 0 {
		best := 0
		for i, s := range scores {
			if s > scores[best] {
				best = i
			}
		}
		shares[best] += rem
	}
	return shares
}
