package nodebuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhikar/registry/ledger"
	"github.com/adhikar/registry/registry"
)

func loadTestConfig(t *testing.T, name string) (*Config, error) {
	t.Helper()
	hc, err := LoadHumanConfig(filepath.Join("testconfigs", name))
	require.Nil(t, err)
	return HumanConfigToConfig(*hc)
}

func TestTomlLoading(t *testing.T) {
	c, err := loadTestConfig(t, "basic.toml")
	require.Nil(t, err)

	assert.Equal(t, "testing", c.Namespace)
	assert.Equal(t, "memory", c.Storage.Kind)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), c.Ledger.Contract)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), crypto.PubkeyToAddress(c.Ledger.SignerKey.PublicKey))
	assert.Equal(t, 90*time.Second, c.Ledger.ConfirmationTimeout)
	assert.Equal(t, 500*time.Millisecond, c.Ledger.PollInterval)
	assert.Contains(t, c.Ledger.ABI.Methods, ledger.RecordMethod)

	assert.Equal(t, 3, c.Council.RequiredVotes)
	require.Len(t, c.Council.Members, 3)
	assert.Equal(t, "Ramesh Kumar", c.Council.Members[0].DisplayName)
	// address derived from the member's own key
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), c.Council.Members[1].LedgerAddress)
	assert.Contains(t, c.Council.MemberKeys, "secretary")

	assert.Equal(t, "127.0.0.1:0", c.HTTP.Listen)
	assert.Equal(t, 10, c.HTTP.VerifyBurst)
}

func TestDefaults(t *testing.T) {
	var members strings.Builder
	for i := 1; i <= registry.DefaultRequiredVotes; i++ {
		fmt.Fprintf(&members, "[[Council.Members]]\nID = \"m%d\"\n", i)
	}
	c, err := TomlToConfig(members.String())
	require.Nil(t, err)
	assert.Len(t, c.Council.Members, registry.DefaultRequiredVotes)
	assert.Equal(t, "default", c.Namespace)
	assert.Equal(t, ":8080", c.HTTP.Listen)
	assert.Equal(t, registry.DefaultRequiredVotes, c.Council.RequiredVotes)
	assert.Equal(t, ledger.DefaultConfirmationTimeout, c.Ledger.ConfirmationTimeout)
	assert.Nil(t, c.Ledger.SignerKey)
}

func TestRoundTripThroughEncoder(t *testing.T) {
	hc, err := LoadHumanConfig("testconfigs/basic.toml")
	require.Nil(t, err)
	hc.HTTP.Listen = "127.0.0.1:9999"

	path := filepath.Join(t.TempDir(), "rewritten.toml")
	f, err := os.Create(path)
	require.Nil(t, err)
	require.Nil(t, toml.NewEncoder(f).Encode(hc))
	require.Nil(t, f.Close())

	again, err := LoadHumanConfig(path)
	require.Nil(t, err)
	c, err := HumanConfigToConfig(*again)
	require.Nil(t, err)
	assert.Equal(t, "127.0.0.1:9999", c.HTTP.Listen)
	assert.Len(t, c.Council.Members, 3)
}

func TestFailsWithInvalidKeys(t *testing.T) {
	_, err := loadTestConfig(t, "invalidkeys.toml")
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "signer key")
}

func TestFailsWithTooManyRequiredVotes(t *testing.T) {
	_, err := loadTestConfig(t, "toomanyvotes.toml")
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "exceeds council size")
}

func TestFailsWithBadDuration(t *testing.T) {
	_, err := TomlToConfig(`
[Ledger]
ConfirmationTimeout = "soon"
`)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "ConfirmationTimeout")
}
