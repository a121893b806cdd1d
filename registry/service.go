// Package registry is the application surface of the land registry: claim
// intake, council votes, review queries and public verification.
package registry

import (
	"context"
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/adhikar/registry/claims"
	"github.com/adhikar/registry/ledger"
	"github.com/adhikar/registry/voting"
)

var log = logging.Logger("registry")

const DefaultRequiredVotes = 5

// ClaimRequest is what a claimant submits. SubmittedBy comes from the
// caller's authenticated session.
type ClaimRequest struct {
	OwnerName   string `json:"ownerName"`
	Location    string `json:"location"`
	ContentHash string `json:"contentHash"`
	SubmittedBy string `json:"submittedBy"`
}

type Options struct {
	RequiredVotes int
	// ExplorerTxURL is a printf template with a single %s for the tx hash.
	ExplorerTxURL string
}

type Service struct {
	store         claims.Store
	coordinator   *voting.Coordinator
	verifier      voting.Verifier
	requiredVotes int
	explorerTxURL string
}

func NewService(store claims.Store, coordinator *voting.Coordinator, verifier voting.Verifier, opts Options) *Service {
	if opts.RequiredVotes <= 0 {
		opts.RequiredVotes = DefaultRequiredVotes
	}
	return &Service{
		store:         store,
		coordinator:   coordinator,
		verifier:      verifier,
		requiredVotes: opts.RequiredVotes,
		explorerTxURL: opts.ExplorerTxURL,
	}
}

func (s *Service) RequiredVotes() int {
	return s.requiredVotes
}

// SubmitClaim creates a Pending claim with the configured threshold.
func (s *Service) SubmitClaim(ctx context.Context, req ClaimRequest) (*claims.Claim, error) {
	c, err := s.store.Create(ctx, claims.NewClaim{
		OwnerName:     req.OwnerName,
		Location:      req.Location,
		ContentHash:   req.ContentHash,
		SubmittedBy:   req.SubmittedBy,
		RequiredVotes: s.requiredVotes,
	})
	if err != nil {
		return nil, err
	}
	log.Infow("claim submitted", "id", c.ID, "submittedBy", c.SubmittedBy)
	return c, nil
}

func (s *Service) CastVote(ctx context.Context, claimID string, voterID string) (*voting.VoteResult, error) {
	return s.coordinator.CastVote(ctx, claimID, voterID)
}

func (s *Service) RetryFinalization(ctx context.Context, claimID string) (*voting.VoteResult, error) {
	return s.coordinator.RetryFinalization(ctx, claimID)
}

// PendingClaims returns claims awaiting votes or anchoring, newest first,
// with their vote history.
func (s *Service) PendingClaims(ctx context.Context) ([]*claims.Claim, error) {
	return s.store.ListPending(ctx)
}

func (s *Service) ClaimsBySubmitter(ctx context.Context, submittedBy string) ([]*claims.Claim, error) {
	if strings.TrimSpace(submittedBy) == "" {
		return nil, errors.Wrap(claims.ErrInvalidInput, "submittedBy is required")
	}
	return s.store.ListBySubmitter(ctx, submittedBy)
}

func (s *Service) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	return s.store.Get(ctx, id)
}

// Verify checks txRef against the ledger only. A malformed reference is
// ledger.ErrInvalidTxRef; a reference the ledger does not know is a Report
// with Result.Valid false.
func (s *Service) Verify(ctx context.Context, txRef string) (*Report, error) {
	hash, err := ledger.ParseTxRef(txRef)
	if err != nil {
		return nil, err
	}
	res, err := s.verifier.Verify(ctx, hash)
	if err != nil {
		return nil, err
	}
	log.Infow("verification served", "tx", res.TxRef, "valid", res.Valid, "claimRecord", res.IsClaimRecord)
	return &Report{
		VerificationResult: res,
		ExplorerURL:        s.explorerLink(res),
	}, nil
}

func (s *Service) explorerLink(res *ledger.VerificationResult) string {
	if s.explorerTxURL == "" || !res.Valid {
		return ""
	}
	return fmt.Sprintf(s.explorerTxURL, res.TxRef)
}
