package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/adhikar/registry/metrics"
	"github.com/adhikar/registry/namedlocker"
)

const (
	DefaultConfirmationTimeout = 2 * time.Minute
	DefaultPollInterval        = time.Second
)

// AnchorRequest is a finalized claim ready to be written to the registry
// contract, signed by the key of the finalizing council member.
type AnchorRequest struct {
	ClaimID     uint64
	OwnerName   string
	Location    string
	ContentHash string
	Signer      *ecdsa.PrivateKey
}

type AnchorOptions struct {
	Contract            common.Address
	ABI                 abi.ABI
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
}

// Anchor submits registry transactions and waits for their receipts. It keeps
// no claim state; the only thing it remembers is the next nonce per signer.
type Anchor struct {
	client              Client
	contract            common.Address
	abi                 abi.ABI
	confirmationTimeout time.Duration
	pollInterval        time.Duration

	signers *namedlocker.NamedLocker

	mu      sync.Mutex
	chainID *big.Int
	nonces  map[common.Address]uint64
}

func NewAnchor(client Client, opts AnchorOptions) *Anchor {
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Anchor{
		client:              client,
		contract:            opts.Contract,
		abi:                 withSchema(opts.ABI),
		confirmationTimeout: opts.ConfirmationTimeout,
		pollInterval:        opts.PollInterval,
		signers:             namedlocker.NewNamedLocker(),
		nonces:              make(map[common.Address]uint64),
	}
}

// Anchor writes the claim and blocks until the transaction is confirmed, the
// ledger rejects it, or the confirmation timeout passes. Nothing is retried.
func (a *Anchor) Anchor(ctx context.Context, req AnchorRequest) (common.Hash, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ledger.anchor")
	defer span.Finish()
	span.SetTag("claimID", req.ClaimID)

	start := time.Now()
	hash, err := a.anchor(ctx, req)
	metrics.AnchorSeconds.Observe(time.Since(start).Seconds())
	metrics.Anchors.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		span.SetTag("error", true)
		log.Errorw("anchor failed", "claimID", req.ClaimID, "err", err)
		return hash, err
	}
	log.Infow("anchor confirmed", "claimID", req.ClaimID, "tx", hash.Hex())
	return hash, nil
}

func (a *Anchor) anchor(ctx context.Context, req AnchorRequest) (common.Hash, error) {
	if a.client == nil {
		return common.Hash{}, errors.Wrap(ErrLedgerUnavailable, "ledger client not configured")
	}
	if a.contract == (common.Address{}) {
		return common.Hash{}, errors.Wrap(ErrLedgerUnavailable, "contract address not configured")
	}
	if req.Signer == nil {
		return common.Hash{}, errors.Wrap(ErrLedgerUnavailable, "signing key not configured")
	}

	data, err := a.abi.Pack(RecordMethod, new(big.Int).SetUint64(req.ClaimID), req.OwnerName, req.Location, req.ContentHash)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "error packing call")
	}

	ctx, cancel := context.WithTimeout(ctx, a.confirmationTimeout)
	defer cancel()

	tx, err := a.send(ctx, req.Signer, data)
	if err != nil {
		return common.Hash{}, err
	}
	log.Infow("anchor transaction sent", "claimID", req.ClaimID, "tx", tx.Hash().Hex(), "nonce", tx.Nonce())

	receipt, err := a.waitMined(ctx, tx.Hash())
	if err != nil {
		// the tx may have been dropped, leaving a gap the watermark would skip over
		a.resetNonce(crypto.PubkeyToAddress(req.Signer.PublicKey))
		return tx.Hash(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash(), errors.Wrapf(ErrLedgerRejected, "tx %s reverted in block %v", tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt.TxHash, nil
}

// send allocates a nonce, signs and submits under the signer's lock so that
// concurrent anchors sharing a key get strictly increasing nonces.
func (a *Anchor) send(ctx context.Context, key *ecdsa.PrivateKey, data []byte) (*types.Transaction, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	a.signers.Lock(from.Hex())
	defer a.signers.Unlock(from.Hex())

	chainID, err := a.getChainID(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classify(err, "fetching nonce")
	}
	a.mu.Lock()
	if local, ok := a.nonces[from]; ok && local > nonce {
		nonce = local
	}
	a.mu.Unlock()

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify(err, "suggesting gas price")
	}

	gas, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &a.contract,
		Data: data,
	})
	if err != nil {
		return nil, classify(err, "estimating gas")
	}
	gas += gas / 5

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &a.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, errors.Wrap(err, "error signing transaction")
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		a.resetNonce(from)
		return nil, classify(err, "sending transaction")
	}

	a.mu.Lock()
	a.nonces[from] = nonce + 1
	a.mu.Unlock()
	return signed, nil
}

// resetNonce drops the local watermark so the next send for from starts at
// the node's pending nonce.
func (a *Anchor) resetNonce(from common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.nonces, from)
}

func (a *Anchor) getChainID(ctx context.Context) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chainID != nil {
		return a.chainID, nil
	}
	id, err := a.client.ChainID(ctx)
	if err != nil {
		return nil, classify(err, "fetching chain id")
	}
	a.chainID = id
	return id, nil
}

// waitMined polls for the receipt until ctx ends. Transient lookup errors are
// logged and polled through; only the deadline ends the wait.
func (a *Anchor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Debugw("receipt lookup failed", "tx", hash.Hex(), "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, &TimeoutError{TxHash: hash, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrLedgerTimeout):
		return "timeout"
	case errors.Is(err, ErrLedgerRejected):
		return "rejected"
	case errors.Is(err, ErrLedgerUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
