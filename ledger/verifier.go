package ledger

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/adhikar/registry/metrics"
)

const (
	MsgNotFound       = "not found"
	MsgNotClaimRecord = "valid transaction, not a claim record"
	MsgClaimVerified  = "claim record verified"

	DefaultVerifyTimeout = 30 * time.Second
	DefaultCacheSize     = 1024
)

// ClaimRecord is what the ledger alone says about a verified claim.
type ClaimRecord struct {
	ClaimID     *big.Int       `json:"claimId"`
	OwnerName   string         `json:"ownerName"`
	Location    string         `json:"location"`
	VerifiedBy  common.Address `json:"verifiedBy"`
	BlockNumber uint64         `json:"blockNumber"`
	Timestamp   time.Time      `json:"timestamp"`
}

type VerificationResult struct {
	Valid         bool         `json:"valid"`
	IsClaimRecord bool         `json:"isClaimRecord"`
	Message       string       `json:"message"`
	TxRef         string       `json:"txRef"`
	BlockNumber   uint64       `json:"blockNumber,omitempty"`
	ClaimData     *ClaimRecord `json:"claimData,omitempty"`
}

func (r *VerificationResult) copy() *VerificationResult {
	cp := *r
	if r.ClaimData != nil {
		cd := *r.ClaimData
		cd.ClaimID = new(big.Int).Set(r.ClaimData.ClaimID)
		cp.ClaimData = &cd
	}
	return &cp
}

type VerifierOptions struct {
	// Contract restricts accepted records to logs emitted by this address when set.
	Contract  common.Address
	ABI       abi.ABI
	Timeout   time.Duration
	CacheSize int
}

// Verifier reconstructs claim facts from the ledger without touching the
// claim store. It only reads, so it is safe for concurrent use.
type Verifier struct {
	client  Client
	decoder *Decoder
	timeout time.Duration
	cache   *lru.Cache
}

func NewVerifier(client Client, opts VerifierOptions) (*Verifier, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultVerifyTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "error creating cache")
	}
	return &Verifier{
		client:  client,
		decoder: NewDecoder(opts.ABI, opts.Contract),
		timeout: opts.Timeout,
		cache:   cache,
	}, nil
}

// Verify looks up the receipt for hash. A missing receipt or a receipt with no
// registry record are results, not errors; errors mean the ledger could not
// be asked.
func (v *Verifier) Verify(ctx context.Context, hash common.Hash) (*VerificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ledger.verify")
	defer span.Finish()
	span.SetTag("tx", hash.Hex())

	if cached, ok := v.cache.Get(hash); ok {
		metrics.Verifications.WithLabelValues("claim_record").Inc()
		return cached.(*VerificationResult).copy(), nil
	}

	res, err := v.verify(ctx, hash)
	switch {
	case err != nil:
		metrics.Verifications.WithLabelValues("error").Inc()
		return nil, err
	case res.IsClaimRecord:
		metrics.Verifications.WithLabelValues("claim_record").Inc()
		v.cache.Add(hash, res.copy())
	case res.Valid:
		metrics.Verifications.WithLabelValues("not_claim_record").Inc()
	default:
		metrics.Verifications.WithLabelValues("not_found").Inc()
	}
	return res, nil
}

func (v *Verifier) verify(ctx context.Context, hash common.Hash) (*VerificationResult, error) {
	if v.client == nil {
		return nil, errors.Wrap(ErrLedgerUnavailable, "ledger client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	res := &VerificationResult{TxRef: hash.Hex()}

	receipt, err := v.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil) {
		res.Message = MsgNotFound
		return res, nil
	}
	if err != nil {
		return nil, classify(err, "fetching receipt")
	}

	res.Valid = true
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}

	tv := v.decoder.FirstTitleVerified(receipt.Logs)
	if tv == nil {
		res.Message = MsgNotClaimRecord
		return res, nil
	}

	header, err := v.client.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, classify(err, "fetching block header")
	}

	res.IsClaimRecord = true
	res.Message = MsgClaimVerified
	res.ClaimData = &ClaimRecord{
		ClaimID:     tv.ClaimID,
		OwnerName:   tv.OwnerName,
		Location:    tv.Location,
		VerifiedBy:  tv.VerifiedBy,
		BlockNumber: res.BlockNumber,
		Timestamp:   time.Unix(int64(header.Time), 0).UTC(),
	}
	log.Debugw("verified claim record", "tx", hash.Hex(), "claimID", tv.ClaimID, "block", res.BlockNumber)
	return res, nil
}
