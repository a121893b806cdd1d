package ledger

import (
	"context"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// TxState is what the ledger currently knows about a submitted transaction.
type TxState int

const (
	// TxUnknown means no receipt and not in the node's pool: dropped, or
	// never seen by this node.
	TxUnknown TxState = iota
	// TxPending means the transaction waits in the pool and is executable.
	TxPending
	// TxStalled means the transaction waits in the pool behind a nonce gap
	// and will not be mined until the gap is filled.
	TxStalled
	// TxMined means the transaction is in a block.
	TxMined
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxStalled:
		return "stalled"
	case TxMined:
		return "mined"
	default:
		return "unknown"
	}
}

// State looks up a previously submitted transaction. Finding one stalled also
// resets its signer's nonce watermark so the next submission fills the gap.
func (a *Anchor) State(ctx context.Context, hash common.Hash) (TxState, error) {
	if a.client == nil {
		return TxUnknown, errors.Wrap(ErrLedgerUnavailable, "ledger client not configured")
	}

	receipt, err := a.client.TransactionReceipt(ctx, hash)
	switch {
	case err == nil && receipt != nil:
		return TxMined, nil
	case err != nil && !errors.Is(err, ethereum.NotFound):
		return TxUnknown, classify(err, "fetching receipt")
	}

	tx, isPending, err := a.client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return TxUnknown, nil
	}
	if err != nil {
		return TxUnknown, classify(err, "fetching transaction")
	}
	if !isPending {
		return TxMined, nil
	}

	chainID, err := a.getChainID(ctx)
	if err != nil {
		return TxUnknown, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return TxUnknown, errors.Wrap(err, "error recovering sender")
	}
	next, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return TxUnknown, classify(err, "fetching nonce")
	}
	// executable pool transactions all sit below the pending nonce
	if tx.Nonce() >= next {
		a.resetNonce(from)
		log.Warnw("transaction stalled behind nonce gap", "tx", hash.Hex(), "nonce", tx.Nonce(), "pendingNonce", next)
		return TxStalled, nil
	}
	return TxPending, nil
}
