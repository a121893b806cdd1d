// Package ledgertest provides an in-memory registry chain implementing
// ledger.Client for tests.
package ledgertest

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/adhikar/registry/ledger"
)

var ErrConnectionRefused = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")

// RPCError mimics a JSON-RPC error object returned by a node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

// SimulatedLedger accepts recordVerifiedTitle transactions for one contract,
// mines each into its own block and emits TitleVerified logs. A claim id can
// only be recorded once. Transactions with a nonce ahead of the sender's next
// nonce are queued until the gap is filled, as a node's pool does.
type SimulatedLedger struct {
	mu sync.Mutex

	chainID  *big.Int
	contract common.Address
	abi      abi.ABI
	genesis  time.Time

	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	headers  []*types.Header
	recorded map[string]bool
	pending  []*types.Transaction
	queued   []*types.Transaction
	sent     []*types.Transaction
	txs      map[common.Hash]*types.Transaction

	unavailable bool
	holdMining  bool
}

var _ ledger.Client = (*SimulatedLedger)(nil)

func NewSimulatedLedger() *SimulatedLedger {
	key, _ := crypto.GenerateKey()
	s := &SimulatedLedger{
		chainID:  big.NewInt(1337),
		contract: crypto.PubkeyToAddress(key.PublicKey),
		abi:      ledger.FallbackABI(),
		genesis:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		recorded: make(map[string]bool),
		txs:      make(map[common.Hash]*types.Transaction),
	}
	s.headers = []*types.Header{{Number: big.NewInt(0), Time: uint64(s.genesis.Unix())}}
	return s
}

func (s *SimulatedLedger) Contract() common.Address { return s.contract }
func (s *SimulatedLedger) ABI() abi.ABI             { return s.abi }

// SetUnavailable makes every call fail as if the node were unreachable.
func (s *SimulatedLedger) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

// HoldMining leaves submitted transactions pending until Mine is called.
func (s *SimulatedLedger) HoldMining(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdMining = v
}

// Mine includes every pending transaction.
func (s *SimulatedLedger) Mine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.pending {
		s.mine(tx)
	}
	s.pending = nil
}

// DropPending evicts every unmined, executable transaction from the pool and
// rewinds the senders' nonces, as a node does when it drops transactions.
// Queued transactions stay queued. It returns the number dropped.
func (s *SimulatedLedger) DropPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := len(s.pending)
	for _, tx := range s.pending {
		from, _ := types.Sender(types.LatestSignerForChainID(s.chainID), tx)
		if tx.Nonce() < s.nonces[from] {
			s.nonces[from] = tx.Nonce()
		}
	}
	s.pending = nil
	return dropped
}

// SentCount is the number of transactions accepted by SendTransaction.
func (s *SimulatedLedger) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// Sent returns the accepted transactions in submission order.
func (s *SimulatedLedger) Sent() []*types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Transaction, len(s.sent))
	copy(out, s.sent)
	return out
}

// AddReceipt records an already-mined transaction carrying the given logs
// and returns its hash.
func (s *SimulatedLedger) AddReceipt(logs ...*types.Log) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	header := s.nextHeader()
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("foreign-%d", header.Number.Uint64())))
	for i, l := range logs {
		l.TxHash = hash
		l.BlockNumber = header.Number.Uint64()
		l.Index = uint(i)
	}
	s.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: header.Number,
		BlockHash:   blockHash(header),
		Logs:        logs,
	}
	return hash
}

// RecordClaim writes a claim record directly, signed by key, as if submitted
// outside this process.
func (s *SimulatedLedger) RecordClaim(key *ecdsa.PrivateKey, claimID uint64, owner, location, contentHash string) (common.Hash, error) {
	data, err := s.abi.Pack(ledger.RecordMethod, new(big.Int).SetUint64(claimID), owner, location, contentHash)
	if err != nil {
		return common.Hash{}, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	s.mu.Lock()
	nonce := s.nonces[from]
	s.mu.Unlock()
	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, GasPrice: big.NewInt(1), Gas: 100000, To: &s.contract, Value: big.NewInt(0), Data: data})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), key)
	if err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), s.SendTransaction(context.Background(), signed)
}

func (s *SimulatedLedger) ChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, ErrConnectionRefused
	}
	return new(big.Int).Set(s.chainID), nil
}

func (s *SimulatedLedger) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return 0, ErrConnectionRefused
	}
	return s.nonces[account], nil
}

func (s *SimulatedLedger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, ErrConnectionRefused
	}
	return big.NewInt(1000000000), nil
}

func (s *SimulatedLedger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return 0, ErrConnectionRefused
	}
	if msg.To == nil || *msg.To != s.contract {
		return 21000, nil
	}
	claimID, _, _, _, err := s.decodeRecord(msg.Data)
	if err != nil {
		return 0, &RPCError{Code: 3, Message: "execution reverted: " + err.Error()}
	}
	if s.isRecorded(claimID) {
		return 0, &RPCError{Code: 3, Message: "execution reverted: claim already recorded"}
	}
	return 90000, nil
}

func (s *SimulatedLedger) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return ErrConnectionRefused
	}
	from, err := types.Sender(types.LatestSignerForChainID(s.chainID), tx)
	if err != nil {
		return &RPCError{Code: -32000, Message: "invalid sender: " + err.Error()}
	}
	if _, mined := s.receipts[tx.Hash()]; mined || s.inPool(tx.Hash()) {
		return &RPCError{Code: -32000, Message: "already known"}
	}
	expected := s.nonces[from]
	if tx.Nonce() < expected {
		return &RPCError{Code: -32000, Message: "nonce too low"}
	}
	s.sent = append(s.sent, tx)
	s.txs[tx.Hash()] = tx
	if tx.Nonce() > expected {
		s.queued = append(s.queued, tx)
		return nil
	}
	s.accept(from, tx)
	s.promote(from)
	return nil
}

func (s *SimulatedLedger) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, false, ErrConnectionRefused
	}
	tx, ok := s.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	if _, mined := s.receipts[hash]; mined {
		return tx, false, nil
	}
	if s.inPool(hash) {
		return tx, true, nil
	}
	return nil, false, ethereum.NotFound
}

func (s *SimulatedLedger) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, ErrConnectionRefused
	}
	r, ok := s.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (s *SimulatedLedger) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, ErrConnectionRefused
	}
	if number == nil {
		return s.headers[len(s.headers)-1], nil
	}
	if !number.IsUint64() || number.Uint64() >= uint64(len(s.headers)) {
		return nil, ethereum.NotFound
	}
	return s.headers[number.Uint64()], nil
}

// HeaderTime returns the timestamp of block n.
func (s *SimulatedLedger) HeaderTime(n uint64) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Unix(int64(s.headers[n].Time), 0).UTC()
}

func (s *SimulatedLedger) accept(from common.Address, tx *types.Transaction) {
	s.nonces[from] = tx.Nonce() + 1
	if s.holdMining {
		s.pending = append(s.pending, tx)
		return
	}
	s.mine(tx)
}

// promote moves queued transactions of from whose nonce is now next.
func (s *SimulatedLedger) promote(from common.Address) {
	for {
		found := -1
		for i, tx := range s.queued {
			sender, _ := types.Sender(types.LatestSignerForChainID(s.chainID), tx)
			if sender == from && tx.Nonce() == s.nonces[from] {
				found = i
				break
			}
		}
		if found < 0 {
			return
		}
		tx := s.queued[found]
		s.queued = append(s.queued[:found], s.queued[found+1:]...)
		s.accept(from, tx)
	}
}

func (s *SimulatedLedger) inPool(hash common.Hash) bool {
	for _, tx := range s.pending {
		if tx.Hash() == hash {
			return true
		}
	}
	for _, tx := range s.queued {
		if tx.Hash() == hash {
			return true
		}
	}
	return false
}

func (s *SimulatedLedger) nextHeader() *types.Header {
	n := uint64(len(s.headers))
	h := &types.Header{
		Number: new(big.Int).SetUint64(n),
		Time:   uint64(s.genesis.Add(time.Duration(n) * 12 * time.Second).Unix()),
	}
	s.headers = append(s.headers, h)
	return h
}

func (s *SimulatedLedger) mine(tx *types.Transaction) {
	header := s.nextHeader()
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: header.Number,
		BlockHash:   blockHash(header),
		Logs:        []*types.Log{},
	}
	s.receipts[tx.Hash()] = receipt

	if tx.To() == nil || *tx.To() != s.contract {
		return
	}
	claimID, owner, location, _, err := s.decodeRecord(tx.Data())
	if err != nil || s.isRecorded(claimID) {
		receipt.Status = types.ReceiptStatusFailed
		return
	}
	from, _ := types.Sender(types.LatestSignerForChainID(s.chainID), tx)
	l, err := ledger.PackTitleVerified(s.abi, s.contract, claimID, owner, location, from)
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		return
	}
	l.TxHash = tx.Hash()
	l.BlockNumber = header.Number.Uint64()
	receipt.Logs = append(receipt.Logs, l)
	s.recorded[claimID.String()] = true
}

func (s *SimulatedLedger) isRecorded(claimID *big.Int) bool {
	return s.recorded[claimID.String()]
}

func (s *SimulatedLedger) decodeRecord(data []byte) (*big.Int, string, string, string, error) {
	if len(data) < 4 {
		return nil, "", "", "", errors.New("no method selector")
	}
	method, err := s.abi.MethodById(data[:4])
	if err != nil || method.Name != ledger.RecordMethod {
		return nil, "", "", "", errors.New("unknown method")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, "", "", "", errors.Wrap(err, "bad arguments")
	}
	claimID, ok1 := args[0].(*big.Int)
	owner, ok2 := args[1].(string)
	location, ok3 := args[2].(string)
	contentHash, ok4 := args[3].(string)
	if !(ok1 && ok2 && ok3 && ok4) {
		return nil, "", "", "", errors.New("bad argument types")
	}
	return claimID, owner, location, contentHash, nil
}

func blockHash(h *types.Header) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("block-%d", h.Number.Uint64())))
}
