package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhikar/registry/ledger"
)

func TestParseTxRef(t *testing.T) {
	good := "0x8a3c1f0e9b7d6a5c4b3a291807f6e5d4c3b2a1908f7e6d5c4b3a29180f7e6d5c"
	hash, err := ledger.ParseTxRef(good)
	require.Nil(t, err)
	assert.Equal(t, good, hash.Hex())

	hash, err = ledger.ParseTxRef("  " + good + "\n")
	require.Nil(t, err)
	assert.Equal(t, good, hash.Hex())

	for _, bad := range []string{
		"",
		"0x",
		good[2:],
		good[:65],
		good + "00",
		"0xzz3c1f0e9b7d6a5c4b3a291807f6e5d4c3b2a1908f7e6d5c4b3a29180f7e6d5c",
	} {
		_, err := ledger.ParseTxRef(bad)
		assert.ErrorIs(t, err, ledger.ErrInvalidTxRef, "ref %q", bad)
	}
}
