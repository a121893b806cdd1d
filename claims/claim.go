package claims

import (
	"time"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusVerified Status = "Verified"
)

// Vote is a council member's attestation. Display name and ledger address are
// copied at cast time and never follow later profile changes.
type Vote struct {
	VoterID            string    `json:"voterId"`
	VoterDisplayName   string    `json:"voterDisplayName"`
	VoterLedgerAddress string    `json:"voterLedgerAddress"`
	CastAt             time.Time `json:"castAt"`
}

// Claim is a land-ownership assertion and its vote history. It is never
// deleted.
type Claim struct {
	ID            string `json:"id"`
	OwnerName     string `json:"ownerName"`
	Location      string `json:"location"`
	ContentHash   string `json:"contentHash"`
	Status        Status `json:"status"`
	Votes         []Vote `json:"votes"`
	VoteCount     int    `json:"voteCount"`
	RequiredVotes int    `json:"requiredVotes"`
	// LedgerTxRef is empty until the claim is Verified.
	LedgerTxRef string `json:"ledgerTxRef,omitempty"`
	// PendingTxRef is the last submitted but unconfirmed anchor transaction.
	PendingTxRef string    `json:"pendingTxRef,omitempty"`
	SubmittedBy  string    `json:"submittedBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (c *Claim) IsVerified() bool {
	return c.Status == StatusVerified
}

// HasVoted reports whether voterID is already in the vote list.
func (c *Claim) HasVoted(voterID string) bool {
	for _, v := range c.Votes {
		if v.VoterID == voterID {
			return true
		}
	}
	return false
}

// ThresholdReached is true once the claim holds at least RequiredVotes votes.
func (c *Claim) ThresholdReached() bool {
	return c.VoteCount >= c.RequiredVotes
}

// CheckInvariants returns an error describing the first broken data invariant.
func (c *Claim) CheckInvariants() error {
	if c.VoteCount != len(c.Votes) {
		return errors.Errorf("claim %s: voteCount %d != %d votes", c.ID, c.VoteCount, len(c.Votes))
	}
	if (c.Status == StatusVerified) != (c.LedgerTxRef != "") {
		return errors.Errorf("claim %s: status %s with ledgerTxRef %q", c.ID, c.Status, c.LedgerTxRef)
	}
	if c.RequiredVotes < 1 {
		return errors.Errorf("claim %s: requiredVotes %d", c.ID, c.RequiredVotes)
	}
	seen := make(map[string]struct{}, len(c.Votes))
	for _, v := range c.Votes {
		if _, ok := seen[v.VoterID]; ok {
			return errors.Errorf("claim %s: voter %s voted twice", c.ID, v.VoterID)
		}
		seen[v.VoterID] = struct{}{}
	}
	return nil
}

func (c *Claim) clone() *Claim {
	cp := *c
	cp.Votes = make([]Vote, len(c.Votes))
	copy(cp.Votes, c.Votes)
	return &cp
}
