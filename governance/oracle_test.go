package governance

import "testing"

func TestProposalLifecycle(t *testing.T) {
	o := NewMemOracle()

	p, err := o.SubmitProposal("raise base fee", "alice", 1000)
	if err != nil {
		t.Fatalf("SubmitProposal: %v", err)
	}
	if p.Status != StatusOpen {
		t.Fatalf("new proposal status = %q, want open", p.Status)
	}

	if err := o.CastVote(p.ID, "alice", 100, true); err != nil {
		t.Fatalf("CastVote alice: %v", err)
	}
	if err := o.CastVote(p.ID, "bob", 40, false); err != nil {
		t.Fatalf("CastVote bob: %v", err)
	}

	tally, err := o.Tally(p.ID)
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if len(tally.Votes) != 2 {
		t.Fatalf("tally votes = %d, want 2", len(tally.Votes))
	}

	executed, err := o.Execute(p.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if executed.Status != StatusExecuted {
		t.Fatalf("status = %q, want executed (net vote is positive)", executed.Status)
	}

	// Re-executing a decided proposal is a no-op.
	again, err := o.Execute(p.ID)
	if err != nil {
		t.Fatalf("Execute again: %v", err)
	}
	if again.Status != StatusExecuted {
		t.Fatalf("status after re-execute = %q, want unchanged executed", again.Status)
	}
}

func TestProposalRejectedOnNegativeTally(t *testing.T) {
	o := NewMemOracle()
	p, err := o.SubmitProposal("cut treasury reward", "carol", 2000)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.CastVote(p.ID, "carol", 10, false); err != nil {
		t.Fatal(err)
	}
	executed, err := o.Execute(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if executed.Status != StatusRejected {
		t.Fatalf("status = %q, want rejected", executed.Status)
	}
}

func TestCastVoteOnUnknownProposal(t *testing.T) {
	o := NewMemOracle()
	if err := o.CastVote("does-not-exist", "alice", 1, true); err == nil {
		t.Fatal("expected error for unknown proposal")
	}
}
