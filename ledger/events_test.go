package ledger_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhikar/registry/ledger"
)

func TestDecodeTitleVerified(t *testing.T) {
	contract := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	verifier := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	l, err := ledger.PackTitleVerified(ledger.FallbackABI(), contract, big.NewInt(77), "Asha Devi", "Plot 12", verifier)
	require.Nil(t, err)

	decoder := ledger.NewDecoder(ledger.FallbackABI(), contract)
	tv, ok := decoder.Decode(l).(*ledger.TitleVerified)
	require.True(t, ok)
	assert.Equal(t, int64(77), tv.ClaimID.Int64())
	assert.Equal(t, "Asha Devi", tv.OwnerName)
	assert.Equal(t, "Plot 12", tv.Location)
	assert.Equal(t, verifier, tv.VerifiedBy)
	assert.Equal(t, l, tv.Raw())
}

func TestDecodeUnrecognized(t *testing.T) {
	contract := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	decoder := ledger.NewDecoder(ledger.FallbackABI(), contract)
	good, err := ledger.PackTitleVerified(ledger.FallbackABI(), contract, big.NewInt(1), "a", "b", common.Address{})
	require.Nil(t, err)

	cases := map[string]*types.Log{
		"no topics":      {Address: contract},
		"other event":    {Address: contract, Topics: []common.Hash{{0x01}}},
		"wrong emitter":  {Address: common.Address{0x02}, Topics: good.Topics, Data: good.Data},
		"missing topic":  {Address: contract, Topics: good.Topics[:1], Data: good.Data},
		"truncated data": {Address: contract, Topics: good.Topics, Data: good.Data[:10]},
	}
	for name, l := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := decoder.Decode(l).(*ledger.Unrecognized)
			assert.True(t, ok)
		})
	}
}

func TestFirstTitleVerified(t *testing.T) {
	contract := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	decoder := ledger.NewDecoder(ledger.FallbackABI(), common.Address{})
	first, err := ledger.PackTitleVerified(ledger.FallbackABI(), contract, big.NewInt(1), "first", "x", common.Address{})
	require.Nil(t, err)
	second, err := ledger.PackTitleVerified(ledger.FallbackABI(), contract, big.NewInt(2), "second", "y", common.Address{})
	require.Nil(t, err)

	tv := decoder.FirstTitleVerified([]*types.Log{{Address: contract}, first, second})
	require.NotNil(t, tv)
	assert.Equal(t, "first", tv.OwnerName)

	assert.Nil(t, decoder.FirstTitleVerified(nil))
}
