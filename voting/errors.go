package voting

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrFinalizationFailed is matched by every *FinalizationError.
	ErrFinalizationFailed = errors.New("finalization failed")
	// ErrFinalizationInProgress is returned while another caller is anchoring the claim.
	ErrFinalizationInProgress = errors.New("finalization in progress")
	// ErrThresholdNotReached is returned by RetryFinalization for claims still collecting votes.
	ErrThresholdNotReached = errors.New("vote threshold not reached")
	// ErrThresholdReached is returned for a new vote on a claim that already
	// holds enough votes but is not yet verified. Use RetryFinalization.
	ErrThresholdReached = errors.New("vote threshold already reached")
)

// FinalizationError reports a ledger failure after the threshold was reached.
// The votes stay recorded and the claim stays Pending.
type FinalizationError struct {
	ClaimID       string
	VoteCount     int
	RequiredVotes int
	// TxRef is set when a transaction was submitted but not confirmed in time.
	TxRef string
	Err   error
}

func (e *FinalizationError) Error() string {
	msg := fmt.Sprintf("%v: claim %s at %d/%d votes", ErrFinalizationFailed, e.ClaimID, e.VoteCount, e.RequiredVotes)
	if e.TxRef != "" {
		msg += ", pending tx " + e.TxRef
	}
	return msg + ": " + e.Err.Error()
}

func (e *FinalizationError) Is(target error) bool {
	return target == ErrFinalizationFailed
}

func (e *FinalizationError) Unwrap() error {
	return e.Err
}
