// Package voting collects council votes on claims and anchors each claim on
// the ledger exactly once when its threshold is reached.
package voting

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/adhikar/registry/claimid"
	"github.com/adhikar/registry/claims"
	"github.com/adhikar/registry/council"
	"github.com/adhikar/registry/ledger"
	"github.com/adhikar/registry/metrics"
	"github.com/adhikar/registry/namedlocker"
)

var log = logging.Logger("voting")

// Anchorer writes a finalized claim to the ledger and reports on
// transactions it submitted earlier.
type Anchorer interface {
	Anchor(ctx context.Context, req ledger.AnchorRequest) (common.Hash, error)
	State(ctx context.Context, hash common.Hash) (ledger.TxState, error)
}

// Verifier reads a claim record back from the ledger.
type Verifier interface {
	Verify(ctx context.Context, hash common.Hash) (*ledger.VerificationResult, error)
}

var _ Anchorer = (*ledger.Anchor)(nil)
var _ Verifier = (*ledger.Verifier)(nil)

type VoteResult struct {
	ClaimID       string `json:"claimId"`
	Finalized     bool   `json:"finalized"`
	VoteCount     int    `json:"voteCount"`
	RequiredVotes int    `json:"requiredVotes"`
	LedgerTxRef   string `json:"ledgerTxRef,omitempty"`
}

// Coordinator serializes vote appends per claim. The claim lock is held for
// "check, append, test threshold" only; anchoring runs outside it while the
// claim is marked in flight.
type Coordinator struct {
	store    claims.Store
	council  *council.Council
	keyring  council.Keyring
	anchor   Anchorer
	verifier Verifier

	locker *namedlocker.NamedLocker

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewCoordinator(store claims.Store, c *council.Council, keyring council.Keyring, anchor Anchorer, verifier Verifier) *Coordinator {
	return &Coordinator{
		store:    store,
		council:  c,
		keyring:  keyring,
		anchor:   anchor,
		verifier: verifier,
		locker:   namedlocker.NewNamedLocker(),
		inflight: make(map[string]struct{}),
	}
}

// CastVote records voterID's vote on the claim. The vote that reaches the
// threshold anchors the claim before returning; a ledger failure is returned
// as a *FinalizationError with the vote still recorded.
func (co *Coordinator) CastVote(ctx context.Context, claimID string, voterID string) (*VoteResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "voting.castVote")
	defer span.Finish()
	span.SetTag("claimID", claimID)
	span.SetTag("voterID", voterID)

	member, err := co.council.Lookup(voterID)
	if err != nil {
		metrics.VotesCast.WithLabelValues("rejected").Inc()
		return nil, errors.Wrap(claims.ErrNotFound, err.Error())
	}

	c, anchoring, err := co.appendVote(ctx, claimID, member)
	if err != nil {
		metrics.VotesCast.WithLabelValues("rejected").Inc()
		log.Debugw("vote rejected", "claimID", claimID, "voterID", voterID, "err", err)
		return nil, err
	}
	log.Infow("vote recorded", "claimID", claimID, "voterID", voterID, "voteCount", c.VoteCount, "requiredVotes", c.RequiredVotes)

	if !anchoring {
		metrics.VotesCast.WithLabelValues("recorded").Inc()
		return resultFor(c), nil
	}
	defer co.release(claimID)

	log.Infow("threshold reached", "claimID", claimID, "voteCount", c.VoteCount)
	res, err := co.finalize(ctx, c)
	if err != nil {
		span.SetTag("error", true)
		metrics.VotesCast.WithLabelValues("finalization_failed").Inc()
		return nil, err
	}
	metrics.VotesCast.WithLabelValues("finalized").Inc()
	return res, nil
}

// RetryFinalization anchors a claim that holds enough votes but is still
// Pending. It is idempotent: a Verified claim returns its existing result.
func (co *Coordinator) RetryFinalization(ctx context.Context, claimID string) (*VoteResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "voting.retryFinalization")
	defer span.Finish()
	span.SetTag("claimID", claimID)

	co.locker.Lock(claimID)
	c, err := co.store.Get(ctx, claimID)
	if err != nil {
		co.locker.Unlock(claimID)
		return nil, err
	}
	switch {
	case c.IsVerified():
		co.locker.Unlock(claimID)
		return resultFor(c), nil
	case !c.ThresholdReached():
		co.locker.Unlock(claimID)
		return nil, errors.Wrapf(ErrThresholdNotReached, "claim %s at %d/%d votes", claimID, c.VoteCount, c.RequiredVotes)
	case !co.acquire(claimID):
		co.locker.Unlock(claimID)
		return nil, errors.Wrapf(ErrFinalizationInProgress, "claim %s", claimID)
	}
	co.locker.Unlock(claimID)
	defer co.release(claimID)

	log.Infow("retrying finalization", "claimID", claimID, "pendingTx", c.PendingTxRef)
	return co.finalize(ctx, c)
}

// appendVote reports whether the caller now owns anchoring the claim.
func (co *Coordinator) appendVote(ctx context.Context, claimID string, member council.Member) (*claims.Claim, bool, error) {
	co.locker.Lock(claimID)
	defer co.locker.Unlock(claimID)

	c, err := co.store.Get(ctx, claimID)
	if err != nil {
		return nil, false, err
	}
	switch {
	case c.IsVerified():
		return nil, false, errors.Wrapf(claims.ErrAlreadyFinalized, "claim %s", claimID)
	case c.HasVoted(member.ID):
		return nil, false, errors.Wrapf(claims.ErrDuplicateVote, "voter %s on claim %s", member.ID, claimID)
	case co.isInflight(claimID):
		return nil, false, errors.Wrapf(ErrFinalizationInProgress, "claim %s", claimID)
	case c.ThresholdReached():
		return nil, false, errors.Wrapf(ErrThresholdReached, "claim %s at %d/%d votes", claimID, c.VoteCount, c.RequiredVotes)
	}

	vote := claims.Vote{
		VoterID:          member.ID,
		VoterDisplayName: member.DisplayName,
	}
	if member.LedgerAddress != (common.Address{}) {
		vote.VoterLedgerAddress = member.LedgerAddress.Hex()
	}
	c, err = co.store.AppendVote(ctx, claimID, vote)
	if err != nil {
		return nil, false, err
	}
	if !c.ThresholdReached() {
		return c, false, nil
	}
	return c, co.acquire(claimID), nil
}

// finalize must only run while the caller holds the claim's in-flight mark.
// The ledger calls outlive the caller's request and are bounded by the
// anchor's confirmation timeout.
func (co *Coordinator) finalize(ctx context.Context, c *claims.Claim) (*VoteResult, error) {
	ctx = context.WithoutCancel(ctx)

	numericID, err := claimid.Derive(c.ContentHash)
	if err != nil {
		return nil, errors.Wrapf(claims.ErrInvalidInput, "claim %s: %v", c.ID, err)
	}

	var previous common.Hash
	if c.PendingTxRef != "" {
		done, err := co.recheck(ctx, c, numericID)
		if err != nil {
			return nil, co.failed(c, c.PendingTxRef, err)
		}
		if done != nil {
			return done, nil
		}
		previous, _ = ledger.ParseTxRef(c.PendingTxRef)
	}

	finalizer := c.Votes[c.RequiredVotes-1].VoterID
	key, err := co.keyring.SignerFor(ctx, finalizer)
	if err != nil {
		return nil, co.failed(c, c.PendingTxRef, errors.Wrapf(ledger.ErrLedgerUnavailable, "signing key for %s: %v", finalizer, err))
	}

	hash, err := co.anchor.Anchor(ctx, ledger.AnchorRequest{
		ClaimID:     numericID,
		OwnerName:   c.OwnerName,
		Location:    c.Location,
		ContentHash: c.ContentHash,
		Signer:      key,
	})
	if err == nil {
		return co.commit(ctx, c, hash.Hex())
	}

	var timeout *ledger.TimeoutError
	if errors.As(err, &timeout) {
		ref := timeout.TxHash.Hex()
		if _, rerr := co.store.RecordAnchorAttempt(ctx, c.ID, ref); rerr != nil {
			log.Errorw("could not record pending anchor", "claimID", c.ID, "tx", ref, "err", rerr)
		}
		return nil, co.failed(c, ref, err)
	}
	// the earlier attempt may have been mined between the recheck and now
	if errors.Is(err, ledger.ErrLedgerRejected) && previous != (common.Hash{}) {
		res, verr := co.verifier.Verify(ctx, previous)
		if verr == nil && recordOf(res, numericID) {
			log.Infow("earlier anchor confirmed after resubmission was rejected", "claimID", c.ID, "tx", previous.Hex())
			return co.commit(ctx, c, previous.Hex())
		}
	}
	return nil, co.failed(c, c.PendingTxRef, err)
}

// recheck looks up the transaction a timed-out attempt left behind. It
// returns a result when that transaction confirmed as this claim's record and
// a *ledger.TimeoutError while it may still confirm. Only when both are nil
// is a new submission safe.
func (co *Coordinator) recheck(ctx context.Context, c *claims.Claim, numericID uint64) (*VoteResult, error) {
	hash, err := ledger.ParseTxRef(c.PendingTxRef)
	if err != nil {
		log.Warnw("discarding malformed pending tx", "claimID", c.ID, "tx", c.PendingTxRef)
		return nil, nil
	}
	res, err := co.verifier.Verify(ctx, hash)
	if err != nil {
		return nil, err
	}
	if recordOf(res, numericID) {
		log.Infow("pending anchor confirmed", "claimID", c.ID, "tx", res.TxRef)
		return co.commit(ctx, c, hash.Hex())
	}
	if res.Valid {
		log.Infow("pending anchor mined without a claim record, resubmitting", "claimID", c.ID, "tx", c.PendingTxRef)
		return nil, nil
	}

	state, err := co.anchor.State(ctx, hash)
	if err != nil {
		return nil, err
	}
	switch state {
	case ledger.TxPending, ledger.TxMined:
		log.Infow("pending anchor not yet confirmed", "claimID", c.ID, "tx", c.PendingTxRef, "state", state)
		return nil, &ledger.TimeoutError{TxHash: hash, Err: errors.Errorf("transaction %s, not yet confirmed", state)}
	}
	log.Infow("pending anchor will not confirm, resubmitting", "claimID", c.ID, "tx", c.PendingTxRef, "state", state)
	return nil, nil
}

func recordOf(res *ledger.VerificationResult, numericID uint64) bool {
	return res.IsClaimRecord && res.ClaimData.ClaimID.IsUint64() && res.ClaimData.ClaimID.Uint64() == numericID
}

func (co *Coordinator) commit(ctx context.Context, c *claims.Claim, txRef string) (*VoteResult, error) {
	final, err := co.store.Finalize(ctx, c.ID, txRef)
	if err != nil {
		return nil, errors.Wrapf(err, "claim %s anchored in %s but not marked verified", c.ID, txRef)
	}
	log.Infow("claim verified", "claimID", c.ID, "tx", txRef)
	return resultFor(final), nil
}

func (co *Coordinator) failed(c *claims.Claim, txRef string, err error) error {
	log.Errorw("finalization failed", "claimID", c.ID, "voteCount", c.VoteCount, "tx", txRef, "err", err)
	return &FinalizationError{
		ClaimID:       c.ID,
		VoteCount:     c.VoteCount,
		RequiredVotes: c.RequiredVotes,
		TxRef:         txRef,
		Err:           err,
	}
}

func (co *Coordinator) acquire(claimID string) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	if _, ok := co.inflight[claimID]; ok {
		return false
	}
	co.inflight[claimID] = struct{}{}
	return true
}

func (co *Coordinator) release(claimID string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	delete(co.inflight, claimID)
}

func (co *Coordinator) isInflight(claimID string) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	_, ok := co.inflight[claimID]
	return ok
}

func resultFor(c *claims.Claim) *VoteResult {
	return &VoteResult{
		ClaimID:       c.ID,
		Finalized:     c.IsVerified(),
		VoteCount:     c.VoteCount,
		RequiredVotes: c.RequiredVotes,
		LedgerTxRef:   c.LedgerTxRef,
	}
}
