package ledger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhikar/registry/ledger"
)

const fullABI = `[
  {"type":"function","name":"recordVerifiedTitle","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"claimId","type":"uint256"},{"name":"ownerName","type":"string"},{"name":"location","type":"string"},{"name":"documentHash","type":"string"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"TitleVerified","anonymous":false,
   "inputs":[{"name":"claimId","type":"uint256","indexed":true},{"name":"ownerName","type":"string","indexed":false},{"name":"location","type":"string","indexed":false},{"name":"verifiedBy","type":"address","indexed":false}]}
]`

func TestFallbackABI(t *testing.T) {
	a := ledger.FallbackABI()
	assert.Contains(t, a.Methods, ledger.RecordMethod)
	assert.Contains(t, a.Events, ledger.TitleVerifiedName)
}

func TestParseABI(t *testing.T) {
	parsed, err := ledger.ParseABI([]byte(fullABI))
	require.Nil(t, err)
	assert.Contains(t, parsed.Methods, "owner")

	parsed, err = ledger.ParseABI([]byte(`{"contractName":"LandRegistry","abi":` + fullABI + `}`))
	require.Nil(t, err)
	assert.Contains(t, parsed.Methods, "owner")

	_, err = ledger.ParseABI([]byte(`{"contractName":"LandRegistry"}`))
	assert.NotNil(t, err)

	_, err = ledger.ParseABI([]byte(`not json`))
	assert.NotNil(t, err)
}

func TestLoadABI(t *testing.T) {
	dir := t.TempDir()

	t.Run("artifact", func(t *testing.T) {
		path := filepath.Join(dir, "LandRegistry.json")
		require.Nil(t, os.WriteFile(path, []byte(`{"abi":`+fullABI+`}`), 0600))
		a, fromFile := ledger.LoadABI(path)
		assert.True(t, fromFile)
		assert.Contains(t, a.Methods, "owner")
	})

	t.Run("missing file", func(t *testing.T) {
		a, fromFile := ledger.LoadABI(filepath.Join(dir, "nope.json"))
		assert.False(t, fromFile)
		assert.Contains(t, a.Methods, ledger.RecordMethod)
	})

	t.Run("incomplete", func(t *testing.T) {
		path := filepath.Join(dir, "partial.json")
		require.Nil(t, os.WriteFile(path, []byte(`[{"type":"function","name":"owner","inputs":[],"outputs":[]}]`), 0600))
		a, fromFile := ledger.LoadABI(path)
		assert.False(t, fromFile)
		assert.Contains(t, a.Events, ledger.TitleVerifiedName)
	})

	t.Run("unset", func(t *testing.T) {
		_, fromFile := ledger.LoadABI("")
		assert.False(t, fromFile)
	})
}
