package api

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/adhikar/registry/claims"
	"github.com/adhikar/registry/ledger"
	"github.com/adhikar/registry/voting"
)

type errorBody struct {
	Error         string `json:"error"`
	VoteCount     int    `json:"voteCount,omitempty"`
	RequiredVotes int    `json:"requiredVotes,omitempty"`
	PendingTxRef  string `json:"pendingTxRef,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, claims.ErrInvalidInput), errors.Is(err, ledger.ErrInvalidTxRef):
		return http.StatusBadRequest
	case errors.Is(err, claims.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, claims.ErrAlreadyFinalized),
		errors.Is(err, claims.ErrDuplicateVote),
		errors.Is(err, voting.ErrThresholdReached),
		errors.Is(err, voting.ErrThresholdNotReached),
		errors.Is(err, voting.ErrFinalizationInProgress):
		return http.StatusConflict
	case errors.Is(err, voting.ErrFinalizationFailed):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrLedgerRejected), errors.Is(err, ledger.ErrLedgerTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ferr *voting.FinalizationError
	if errors.As(err, &ferr) {
		body.VoteCount = ferr.VoteCount
		body.RequiredVotes = ferr.RequiredVotes
		body.PendingTxRef = ferr.TxRef
	}
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "err", err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnw("error writing response", "err", err)
	}
}
