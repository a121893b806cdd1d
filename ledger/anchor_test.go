package ledger_test

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhikar/registry/ledger"
	"github.com/adhikar/registry/ledger/ledgertest"
)

func newTestAnchor(t *testing.T, sim *ledgertest.SimulatedLedger, timeout time.Duration) *ledger.Anchor {
	t.Helper()
	return ledger.NewAnchor(sim, ledger.AnchorOptions{
		Contract:            sim.Contract(),
		ABI:                 sim.ABI(),
		ConfirmationTimeout: timeout,
		PollInterval:        5 * time.Millisecond,
	})
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.Nil(t, err)
	return key
}

func TestAnchorConfirms(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()
	anchor := newTestAnchor(t, sim, time.Second)
	key := testKey(t)

	hash, err := anchor.Anchor(context.Background(), ledger.AnchorRequest{
		ClaimID:     42,
		OwnerName:   "Asha Devi",
		Location:    "Plot 12, Ward 4",
		ContentHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		Signer:      key,
	})
	require.Nil(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.Equal(t, 1, sim.SentCount())

	verifier, err := ledger.NewVerifier(sim, ledger.VerifierOptions{Contract: sim.Contract(), ABI: sim.ABI()})
	require.Nil(t, err)
	res, err := verifier.Verify(context.Background(), hash)
	require.Nil(t, err)
	require.True(t, res.IsClaimRecord)
	assert.Equal(t, uint64(42), res.ClaimData.ClaimID.Uint64())
	assert.Equal(t, "Asha Devi", res.ClaimData.OwnerName)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), res.ClaimData.VerifiedBy)
}

func TestAnchorUnavailable(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()
	sim.SetUnavailable(true)
	anchor := newTestAnchor(t, sim, time.Second)

	_, err := anchor.Anchor(context.Background(), ledger.AnchorRequest{ClaimID: 1, Signer: testKey(t)})
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	assert.Equal(t, 0, sim.SentCount())
}

func TestAnchorNotConfigured(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()

	t.Run("no contract", func(t *testing.T) {
		anchor := ledger.NewAnchor(sim, ledger.AnchorOptions{ABI: sim.ABI()})
		_, err := anchor.Anchor(context.Background(), ledger.AnchorRequest{ClaimID: 1, Signer: testKey(t)})
		assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	})

	t.Run("no signer", func(t *testing.T) {
		anchor := newTestAnchor(t, sim, time.Second)
		_, err := anchor.Anchor(context.Background(), ledger.AnchorRequest{ClaimID: 1})
		assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	})

	t.Run("no client", func(t *testing.T) {
		anchor := ledger.NewAnchor(nil, ledger.AnchorOptions{Contract: sim.Contract()})
		_, err := anchor.Anchor(context.Background(), ledger.AnchorRequest{ClaimID: 1, Signer: testKey(t)})
		assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	})
}

func TestAnchorRejectsDuplicateRecord(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()
	anchor := newTestAnchor(t, sim, time.Second)
	req := ledger.AnchorRequest{ClaimID: 7, OwnerName: "Ravi", Location: "Survey 19", ContentHash: "ab", Signer: testKey(t)}

	_, err := anchor.Anchor(context.Background(), req)
	require.Nil(t, err)

	_, err = anchor.Anchor(context.Background(), req)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ledger.ErrLedgerRejected)
	assert.Equal(t, 1, sim.SentCount())
}

func TestAnchorTimeoutCarriesTxHash(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()
	sim.HoldMining(true)
	anchor := newTestAnchor(t, sim, 50*time.Millisecond)

	hash, err := anchor.Anchor(context.Background(), ledger.AnchorRequest{ClaimID: 3, OwnerName: "Meera", Location: "Khasra 8", Signer: testKey(t)})
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ledger.ErrLedgerTimeout)

	var timeoutErr *ledger.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, hash, timeoutErr.TxHash)
	assert.Equal(t, sim.Sent()[0].Hash(), timeoutErr.TxHash)

	sim.Mine()
	verifier, err := ledger.NewVerifier(sim, ledger.VerifierOptions{Contract: sim.Contract(), ABI: sim.ABI()})
	require.Nil(t, err)
	res, err := verifier.Verify(context.Background(), timeoutErr.TxHash)
	require.Nil(t, err)
	assert.True(t, res.IsClaimRecord)
	assert.Equal(t, uint64(3), res.ClaimData.ClaimID.Uint64())
}

func TestAnchorConcurrentNonces(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()
	anchor := newTestAnchor(t, sim, time.Second)
	key := testKey(t)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = anchor.Anchor(context.Background(), ledger.AnchorRequest{
				ClaimID:   uint64(100 + i),
				OwnerName: fmt.Sprintf("owner-%d", i),
				Signer:    key,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.Nil(t, err, "anchor %d", i)
	}
	seen := make(map[uint64]bool)
	for _, tx := range sim.Sent() {
		assert.False(t, seen[tx.Nonce()], "nonce %d reused", tx.Nonce())
		seen[tx.Nonce()] = true
	}
	assert.Len(t, seen, 10)
}

func TestAnchorUsesPendingNonce(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()
	anchor := newTestAnchor(t, sim, time.Second)
	key := testKey(t)

	_, err := sim.RecordClaim(key, 900, "outside", "elsewhere", "cd")
	require.Nil(t, err)

	_, err = anchor.Anchor(context.Background(), ledger.AnchorRequest{ClaimID: 901, Signer: key})
	require.Nil(t, err)
	assert.Equal(t, uint64(1), sim.Sent()[1].Nonce())
}

func TestAnchorRecoversFromDroppedNonce(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()
	anchor := newTestAnchor(t, sim, 50*time.Millisecond)
	key := testKey(t)

	sim.HoldMining(true)
	_, err := anchor.Anchor(context.Background(), ledger.AnchorRequest{ClaimID: 11, OwnerName: "Lakshmi", Signer: key})
	require.ErrorIs(t, err, ledger.ErrLedgerTimeout)

	require.Equal(t, 1, sim.DropPending())
	sim.HoldMining(false)

	_, err = anchor.Anchor(context.Background(), ledger.AnchorRequest{ClaimID: 12, OwnerName: "Gopal", Signer: key})
	require.Nil(t, err)
	require.Equal(t, 2, sim.SentCount())
	assert.Equal(t, uint64(0), sim.Sent()[1].Nonce())
}

func signedRecord(t *testing.T, sim *ledgertest.SimulatedLedger, key *ecdsa.PrivateKey, nonce uint64, claimID int64) *types.Transaction {
	t.Helper()
	data, err := sim.ABI().Pack(ledger.RecordMethod, big.NewInt(claimID), "owner", "location", "ab")
	require.Nil(t, err)
	contract := sim.Contract()
	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, GasPrice: big.NewInt(1), Gas: 100000, To: &contract, Value: big.NewInt(0), Data: data})
	chainID, err := sim.ChainID(context.Background())
	require.Nil(t, err)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	require.Nil(t, err)
	return signed
}

func TestAnchorTxState(t *testing.T) {
	ctx := context.Background()
	sim := ledgertest.NewSimulatedLedger()
	anchor := newTestAnchor(t, sim, time.Second)
	key := testKey(t)

	state, err := anchor.State(ctx, common.HexToHash("0x01"))
	require.Nil(t, err)
	assert.Equal(t, ledger.TxUnknown, state)

	sim.HoldMining(true)
	pending := signedRecord(t, sim, key, 0, 21)
	require.Nil(t, sim.SendTransaction(ctx, pending))
	state, err = anchor.State(ctx, pending.Hash())
	require.Nil(t, err)
	assert.Equal(t, ledger.TxPending, state)

	stalled := signedRecord(t, sim, key, 5, 22)
	require.Nil(t, sim.SendTransaction(ctx, stalled))
	state, err = anchor.State(ctx, stalled.Hash())
	require.Nil(t, err)
	assert.Equal(t, ledger.TxStalled, state)

	sim.Mine()
	state, err = anchor.State(ctx, pending.Hash())
	require.Nil(t, err)
	assert.Equal(t, ledger.TxMined, state)

	sim.DropPending()
	state, err = anchor.State(ctx, stalled.Hash())
	require.Nil(t, err)
	assert.Equal(t, ledger.TxStalled, state)

	sim.SetUnavailable(true)
	_, err = anchor.State(ctx, pending.Hash())
	assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
}
