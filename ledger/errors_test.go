package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type codedErr struct{}

func (codedErr) Error() string  { return "execution reverted" }
func (codedErr) ErrorCode() int { return 3 }

func TestClassify(t *testing.T) {
	err := classify(errors.Wrap(codedErr{}, "estimate"), "estimating gas")
	assert.ErrorIs(t, err, ErrLedgerRejected)

	err = classify(errors.New("connection refused"), "fetching nonce")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)

	err = classify(context.DeadlineExceeded, "fetching nonce")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestTimeoutError(t *testing.T) {
	err := error(&TimeoutError{TxHash: common.Hash{0xab}, Err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, ErrLedgerTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), common.Hash{0xab}.Hex())
	assert.Equal(t, "timeout", outcome(errors.Wrap(err, "anchoring")))
	assert.Equal(t, "confirmed", outcome(nil))
	assert.Equal(t, "rejected", outcome(ErrLedgerRejected))
}
