package nodebuilder

import (
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/adhikar/registry/council"
	"github.com/adhikar/registry/storage"
)

type LedgerConfig struct {
	RPCURL   string
	Contract common.Address
	// SignerKey is the shared council credential used for members without a
	// key of their own.
	SignerKey           *ecdsa.PrivateKey
	ABI                 abi.ABI
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	ExplorerTxURL       string
}

type CouncilConfig struct {
	RequiredVotes int
	Members       []*council.Member
	MemberKeys    map[string]*ecdsa.PrivateKey
}

type KeystoreConfig struct {
	Path       string
	Passphrase string
}

type HTTPConfig struct {
	Listen              string
	VerifyRatePerSecond float64
	VerifyBurst         int
	VerifyMaxClients    int
}

type Config struct {
	Namespace string

	Storage  storage.Config
	Ledger   LedgerConfig
	Council  CouncilConfig
	Keystore KeystoreConfig
	HTTP     HTTPConfig
}
