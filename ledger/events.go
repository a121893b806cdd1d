package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is the result of decoding one receipt log: either *TitleVerified or
// *Unrecognized.
type Event interface {
	Raw() *types.Log
}

// TitleVerified is a registry record of a finalized claim.
type TitleVerified struct {
	ClaimID    *big.Int
	OwnerName  string
	Location   string
	VerifiedBy common.Address
	log        *types.Log
}

func (e *TitleVerified) Raw() *types.Log { return e.log }

// Unrecognized is any log that does not decode as TitleVerified.
type Unrecognized struct {
	Reason string
	log    *types.Log
}

func (e *Unrecognized) Raw() *types.Log { return e.log }

// Decoder matches logs against the TitleVerified schema. When contract is
// non-zero only logs emitted by that address are accepted.
type Decoder struct {
	event    abi.Event
	indexed  abi.Arguments
	contract common.Address
}

func NewDecoder(contractABI abi.ABI, contract common.Address) *Decoder {
	event := withSchema(contractABI).Events[TitleVerifiedName]
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return &Decoder{
		event:    event,
		indexed:  indexed,
		contract: contract,
	}
}

func (d *Decoder) Decode(l *types.Log) Event {
	if len(l.Topics) == 0 || l.Topics[0] != d.event.ID {
		return &Unrecognized{Reason: "different event", log: l}
	}
	if d.contract != (common.Address{}) && l.Address != d.contract {
		return &Unrecognized{Reason: "emitted by " + l.Address.Hex(), log: l}
	}
	if len(l.Topics) != len(d.indexed)+1 {
		return &Unrecognized{Reason: "topic count mismatch", log: l}
	}

	values := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(values, d.indexed, l.Topics[1:]); err != nil {
		return &Unrecognized{Reason: err.Error(), log: l}
	}
	if err := d.event.Inputs.NonIndexed().UnpackIntoMap(values, l.Data); err != nil {
		return &Unrecognized{Reason: err.Error(), log: l}
	}

	claimID, ok1 := values["claimId"].(*big.Int)
	owner, ok2 := values["ownerName"].(string)
	location, ok3 := values["location"].(string)
	verifiedBy, ok4 := values["verifiedBy"].(common.Address)
	if !(ok1 && ok2 && ok3 && ok4) {
		return &Unrecognized{Reason: "unexpected field types", log: l}
	}
	return &TitleVerified{
		ClaimID:    claimID,
		OwnerName:  owner,
		Location:   location,
		VerifiedBy: verifiedBy,
		log:        l,
	}
}

// FirstTitleVerified scans a receipt's logs in order and returns the first
// registry record, or nil.
func (d *Decoder) FirstTitleVerified(logs []*types.Log) *TitleVerified {
	for _, l := range logs {
		if tv, ok := d.Decode(l).(*TitleVerified); ok {
			return tv
		}
	}
	return nil
}

// PackTitleVerified builds the log a registry contract at address emits. Used
// by tests and the simulated ledger.
func PackTitleVerified(contractABI abi.ABI, address common.Address, claimID *big.Int, owner, location string, verifiedBy common.Address) (*types.Log, error) {
	event := withSchema(contractABI).Events[TitleVerifiedName]
	data, err := event.Inputs.NonIndexed().Pack(owner, location, verifiedBy)
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: address,
		Topics:  []common.Hash{event.ID, common.BigToHash(claimID)},
		Data:    data,
	}, nil
}
