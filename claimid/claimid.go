// Package claimid maps a claim's document content hash onto the numeric key
// the land registry contract indexes claims by.
package claimid

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// PrefixLength is the number of leading hex characters (64 bits) of a content
// hash that make up the ledger claim id.
const PrefixLength = 16

// ErrMalformedHash is returned for content hashes that are not hex or are
// shorter than PrefixLength.
var ErrMalformedHash = errors.New("malformed content hash")

// Normalize returns the canonical stored form of a content hash: trimmed,
// lowercase, without a 0x prefix. It does not validate.
func Normalize(contentHash string) string {
	h := strings.TrimSpace(contentHash)
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	return strings.ToLower(h)
}

// Derive takes the first 16 hex characters of the content hash and reads them
// as a big-endian uint64. Hashes that share those characters share an id.
func Derive(contentHash string) (uint64, error) {
	h := Normalize(contentHash)
	if len(h) < PrefixLength {
		return 0, errors.Wrapf(ErrMalformedHash, "need at least %d hex characters, got %d", PrefixLength, len(h))
	}
	for i, c := range h {
		if !isHex(c) {
			return 0, errors.Wrapf(ErrMalformedHash, "invalid hex character %q at %d", c, i)
		}
	}

	prefix, err := hexutil.Decode("0x" + h[:PrefixLength])
	if err != nil {
		return 0, errors.Wrap(ErrMalformedHash, err.Error())
	}
	return binary.BigEndian.Uint64(prefix), nil
}

func isHex(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// ContentHash fingerprints the supporting documents of a claim: the SHA2-256
// digest of their concatenation, hex encoded without prefix.
func ContentHash(documents ...[]byte) (string, error) {
	var combined []byte
	for _, d := range documents {
		combined = append(combined, d...)
	}
	mh, err := multihash.Sum(combined, multihash.SHA2_256, -1)
	if err != nil {
		return "", errors.Wrap(err, "error hashing documents")
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return "", errors.Wrap(err, "error decoding multihash")
	}
	return hex.EncodeToString(decoded.Digest), nil
}
