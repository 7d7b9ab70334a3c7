// Package governance models the external code-review/proposal channel as a
// minimal capability interface, so the core never assumes a particular
// transport or backing store for governance — only the four operations
// below.
package governance

import (
	"github.com/google/uuid"

	"github.com/ruxir-ig/clawrrency/coreerrors"
)

// ProposalStatus is a proposal's lifecycle state.
type ProposalStatus string

const (
	StatusOpen     ProposalStatus = "open"
	StatusExecuted ProposalStatus = "executed"
	StatusRejected ProposalStatus = "rejected"
)

// Proposal is a single governance item: a title under vote by the
// registered identities with voting power (econ.VotingPower).
type Proposal struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Submitter string         `json:"submitter"` // pubkey hex
	Status    ProposalStatus `json:"status"`
	CreatedAt int64          `json:"created_at"`
}

// Tally is a proposal's current vote outcome: the sum of voting power cast
// for and against, keyed by voter so a voter's ballot can be changed.
type Tally struct {
	ProposalID string             `json:"proposal_id"`
	Votes      map[string]float64 `json:"votes"` // voter pubkey -> signed voting power (+for, -against)
}

// Oracle is the minimal capability set the core requires of the external
// governance/code-review channel: submit a proposal, cast a weighted vote,
// read the current tally, and execute a decided proposal. An
// implementation backing a real review platform only needs to satisfy this
// interface; the core never reaches past it.
type Oracle interface {
	SubmitProposal(title, submitter string, createdAt int64) (*Proposal, error)
	CastVote(proposalID, voter string, votingPower float64, inFavor bool) error
	Tally(proposalID string) (*Tally, error)
	Execute(proposalID string) (*Proposal, error)
}

// MemOracle is an in-memory reference Oracle implementation suitable for
// embedding and for tests; it makes no assumption about a real review
// platform's transport.
type MemOracle struct {
	proposals map[string]*Proposal
	tallies   map[string]*Tally
}

// NewMemOracle constructs an empty in-memory Oracle.
func NewMemOracle() *MemOracle {
	return &MemOracle{
		proposals: make(map[string]*Proposal),
		tallies:   make(map[string]*Tally),
	}
}

func (o *MemOracle) SubmitProposal(title, submitter string, createdAt int64) (*Proposal, error) {
	id := "prop_" + uuid.NewString()
	p := &Proposal{ID: id, Title: title, Submitter: submitter, Status: StatusOpen, CreatedAt: createdAt}
	o.proposals[id] = p
	o.tallies[id] = &Tally{ProposalID: id, Votes: make(map[string]float64)}
	return p, nil
}

func (o *MemOracle) CastVote(proposalID, voter string, votingPower float64, inFavor bool) error {
	p, ok := o.proposals[proposalID]
	if !ok {
		return coreerrors.New(coreerrors.CodeNotFound, "proposal %s not found", proposalID)
	}
	if p.Status != StatusOpen {
		return coreerrors.New(coreerrors.CodeInvalidArgument, "proposal %s is not open", proposalID)
	}
	weight := votingPower
	if !inFavor {
		weight = -weight
	}
	o.tallies[proposalID].Votes[voter] = weight
	return nil
}

func (o *MemOracle) Tally(proposalID string) (*Tally, error) {
	t, ok := o.tallies[proposalID]
	if !ok {
		return nil, coreerrors.New(coreerrors.CodeNotFound, "proposal %s not found", proposalID)
	}
	return t, nil
}

// Execute marks a proposal executed if its net tally (sum of signed voting
// power) is positive, rejected otherwise. Re-executing an already-decided
// proposal is a no-op that returns its current state.
func (o *MemOracle) Execute(proposalID string) (*Proposal, error) {
	p, ok := o.proposals[proposalID]
	if !ok {
		return nil, coreerrors.New(coreerrors.CodeNotFound, "proposal %s not found", proposalID)
	}
	if p.Status != StatusOpen {
		return p, nil
	}
	var net float64
	for _, w := range o.tallies[proposalID].Votes {
		net += w
	}
	if net > 0 {
		p.Status = StatusExecuted
	} else {
		p.Status = StatusRejected
	}
	return p, nil
}
