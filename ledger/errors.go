package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

var (
	// ErrLedgerUnavailable means nothing reached the ledger; retrying is safe.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrLedgerRejected means the ledger refused or reverted the transaction.
	ErrLedgerRejected = errors.New("ledger rejected transaction")
	// ErrLedgerTimeout means a transaction was submitted but not seen confirmed
	// in time. It may still confirm.
	ErrLedgerTimeout = errors.New("timed out awaiting ledger confirmation")
	// ErrInvalidTxRef is returned for references that are not 32-byte hex hashes.
	ErrInvalidTxRef = errors.New("invalid transaction reference")
)

// TimeoutError carries the hash of the submitted transaction so a caller can
// re-check it instead of resubmitting.
type TimeoutError struct {
	TxHash common.Hash
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v: tx %s: %v", ErrLedgerTimeout, e.TxHash.Hex(), e.Err)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrLedgerTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// classify maps an error from the RPC client onto the ledger taxonomy. A
// JSON-RPC error object means the node answered and refused.
func classify(err error, during string) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return errors.Wrapf(ErrLedgerRejected, "%s: %v (code %d)", during, err, rpcErr.ErrorCode())
	}
	return errors.Wrapf(ErrLedgerUnavailable, "%s: %v", during, err)
}
