package claimid

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestDerive(t *testing.T) {
	id, err := Derive(testHash)
	require.Nil(t, err)
	assert.Equal(t, uint64(0x9f86d081884c7d65), id)

	again, err := Derive(testHash)
	require.Nil(t, err)
	assert.Equal(t, id, again)
}

func TestDeriveIgnoresSuffix(t *testing.T) {
	a, err := Derive("9f86d081884c7d65" + "0000")
	require.Nil(t, err)
	b, err := Derive("9f86d081884c7d65" + "ffffffffffff")
	require.Nil(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveAcceptsPrefixAndUppercase(t *testing.T) {
	a, err := Derive("0x" + testHash)
	require.Nil(t, err)
	b, err := Derive("9F86D081884C7D659A")
	require.Nil(t, err)
	assert.Equal(t, a, b)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, testHash, Normalize(testHash))
	assert.Equal(t, "9f86d081884c7d659a", Normalize(" 0X9F86D081884C7D659A\n"))
	assert.Equal(t, "9f86d081884c7d659a", Normalize("0x9f86d081884c7d659a"))
	assert.Equal(t, "", Normalize("0x"))
}

func TestDeriveLeadingZeros(t *testing.T) {
	id, err := Derive("0000000000000001")
	require.Nil(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestDeriveMalformed(t *testing.T) {
	for _, h := range []string{"", "9f86d0", "zz86d081884c7d659a", "9f86d081884c7d659g"} {
		_, err := Derive(h)
		require.NotNil(t, err, h)
		assert.True(t, errors.Is(err, ErrMalformedHash), h)
	}
}

func TestContentHash(t *testing.T) {
	h, err := ContentHash([]byte("te"), []byte("st"))
	require.Nil(t, err)
	assert.Equal(t, testHash, h)
}
