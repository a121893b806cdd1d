package nodebuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhikar/registry/council"
	"github.com/adhikar/registry/ledger"
	"github.com/adhikar/registry/ledger/ledgertest"
	"github.com/adhikar/registry/registry"
)

func testConfig(t *testing.T, sim *ledgertest.SimulatedLedger, required int) *Config {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.Nil(t, err)
	var members []*council.Member
	for i := 1; i <= 3; i++ {
		members = append(members, &council.Member{ID: fmt.Sprintf("m%d", i)})
	}
	return &Config{
		Namespace: "test",
		Ledger: LedgerConfig{
			Contract:            sim.Contract(),
			ABI:                 sim.ABI(),
			SignerKey:           key,
			ConfirmationTimeout: time.Second,
			PollInterval:        5 * time.Millisecond,
		},
		Council: CouncilConfig{
			RequiredVotes: required,
			Members:       members,
		},
		HTTP: HTTPConfig{Listen: "127.0.0.1:0"},
	}
}

func TestNodeStartsAndFinalizes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := ledgertest.NewSimulatedLedger()
	nb := &NodeBuilder{Config: testConfig(t, sim, 2), LedgerClient: sim}
	require.Nil(t, nb.Start(ctx))
	defer nb.Stop()

	resp, err := http.Get(fmt.Sprintf("http://%s/api/health", nb.Addr()))
	require.Nil(t, err)
	var health map[string]interface{}
	require.Nil(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, float64(2), health["requiredVotes"])

	svc := nb.Service()
	c, err := svc.SubmitClaim(ctx, registry.ClaimRequest{
		OwnerName:   "Asha Devi",
		Location:    "22.0310,82.4410",
		ContentHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		SubmittedBy: "claimant-1",
	})
	require.Nil(t, err)
	_, err = svc.CastVote(ctx, c.ID, "m1")
	require.Nil(t, err)
	res, err := svc.CastVote(ctx, c.ID, "m3")
	require.Nil(t, err)
	require.True(t, res.Finalized)

	report, err := svc.Verify(ctx, res.LedgerTxRef)
	require.Nil(t, err)
	assert.True(t, report.IsClaimRecord)

	resp, err = http.Get(fmt.Sprintf("http://%s/metrics", nb.Addr()))
	require.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNodeWithoutLedgerStaysPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := ledgertest.NewSimulatedLedger()
	conf := testConfig(t, sim, 1)
	nb := &NodeBuilder{Config: conf}
	require.Nil(t, nb.Start(ctx))
	defer nb.Stop()

	c, err := nb.Service().SubmitClaim(ctx, registry.ClaimRequest{
		OwnerName: "o", Location: "l", SubmittedBy: "u",
		ContentHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
	})
	require.Nil(t, err)
	_, err = nb.Service().CastVote(ctx, c.ID, "m1")
	assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)

	got, err := nb.Service().GetClaim(ctx, c.ID)
	require.Nil(t, err)
	assert.Equal(t, 1, got.VoteCount)
	assert.False(t, got.IsVerified())
}

func TestConfigAssertions(t *testing.T) {
	sim := ledgertest.NewSimulatedLedger()

	nb := &NodeBuilder{}
	assert.NotNil(t, nb.Start(context.Background()))

	conf := testConfig(t, sim, 2)
	conf.Council.Members = nil
	nb = &NodeBuilder{Config: conf, LedgerClient: sim}
	assert.NotNil(t, nb.Start(context.Background()))

	conf = testConfig(t, sim, 4)
	nb = &NodeBuilder{Config: conf, LedgerClient: sim}
	assert.NotNil(t, nb.Start(context.Background()))
}

func TestKeystoreSigning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := ledgertest.NewSimulatedLedger()
	conf := testConfig(t, sim, 1)
	conf.Keystore = KeystoreConfig{Path: t.TempDir(), Passphrase: "correct horse"}

	memberKey, err := crypto.GenerateKey()
	require.Nil(t, err)
	ks, err := OpenKeystore(ctx, conf.Keystore)
	require.Nil(t, err)
	require.Nil(t, council.NewStoredKeyring(ks.EncryptedStore, nil).Import(ctx, "m2", memberKey))
	require.Nil(t, ks.Close())

	nb := &NodeBuilder{Config: conf, LedgerClient: sim}
	require.Nil(t, nb.Start(ctx))
	defer nb.Stop()

	c, err := nb.Service().SubmitClaim(ctx, registry.ClaimRequest{
		OwnerName: "o", Location: "l", SubmittedBy: "u",
		ContentHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
	})
	require.Nil(t, err)
	res, err := nb.Service().CastVote(ctx, c.ID, "m2")
	require.Nil(t, err)

	report, err := nb.Service().Verify(ctx, res.LedgerTxRef)
	require.Nil(t, err)
	require.True(t, report.IsClaimRecord)
	assert.Equal(t, crypto.PubkeyToAddress(memberKey.PublicKey), report.ClaimData.VerifiedBy)
}

func TestKeystoreRequiresPassphrase(t *testing.T) {
	_, err := OpenKeystore(context.Background(), KeystoreConfig{Path: t.TempDir()})
	assert.NotNil(t, err)
}
