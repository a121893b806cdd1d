package claims

import "github.com/pkg/errors"

var (
	// ErrInvalidInput is returned when a required claim field is missing; nothing is persisted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for an unknown claim (or voter) reference.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyFinalized is returned when mutating a Verified claim.
	ErrAlreadyFinalized = errors.New("claim already verified")
	// ErrDuplicateVote is returned when a voter votes twice on one claim.
	ErrDuplicateVote = errors.New("voter already voted on this claim")
)
