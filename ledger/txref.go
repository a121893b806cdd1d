package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// ParseTxRef accepts a 0x-prefixed 32-byte transaction hash (66 characters).
func ParseTxRef(ref string) (common.Hash, error) {
	ref = strings.TrimSpace(ref)
	if len(ref) != 2+2*common.HashLength || !strings.HasPrefix(ref, "0x") {
		return common.Hash{}, errors.Wrapf(ErrInvalidTxRef, "%q: want 0x followed by 64 hex characters", ref)
	}
	b, err := hexutil.Decode(ref)
	if err != nil {
		return common.Hash{}, errors.Wrapf(ErrInvalidTxRef, "%q: %v", ref, err)
	}
	return common.BytesToHash(b), nil
}
