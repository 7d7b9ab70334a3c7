// Package identity implements the bot registry: wallet creation, stake-
// gated registration with attestation discounts, and reputation tracking
// derived from ledger activity. The ledger (package ledger) remains the
// sole owner of spendable balance and stake-locked amount, per the
// ownership rule; this registry owns bot metadata, activity counters, and
// attestations, and drives ledger mutations (mint, stake) through signed
// transactions rather than duplicating ledger.Account's fields.
package identity

// Identity is a registered bot's metadata record. PubKey is its ledger
// account key; the actual private key lives in an encrypted keystore file
// referenced by KeystorePath (see wallet.SaveKey/LoadKey).
type Identity struct {
	PubKey       string `json:"pub_key"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	KeystorePath string `json:"keystore_path,omitempty"`

	Reputation float64 `json:"reputation"` // cached; recomputed by UpdateReputation

	CreatedAt    int64 `json:"created_at"`
	LastActiveAt int64 `json:"last_active_at"`

	// Activity counters feeding econ.Reputation.
	Trades       uint64 `json:"trades"`
	Skills       uint64 `json:"skills"`
	UptimeHours  uint64 `json:"uptime_hours"`
	GovVotes     uint64 `json:"gov_votes"`
	DisputesLost uint64 `json:"disputes_lost"`
	SpamFlags    uint64 `json:"spam_flags"`

	AttestedBy []string `json:"attested_by,omitempty"` // attesters who vouched for this identity
	Attests    []string `json:"attests,omitempty"`     // identities this one has vouched for
}

// ageMonths returns the identity's age in months at nowMillis.
func (id *Identity) ageMonths(nowMillis int64) float64 {
	elapsedMillis := nowMillis - id.CreatedAt
	if elapsedMillis < 0 {
		return 0
	}
	const millisPerMonth = float64(30 * 24 * 60 * 60 * 1000)
	return float64(elapsedMillis) / millisPerMonth
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
