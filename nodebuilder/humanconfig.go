package nodebuilder

import (
	"crypto/ecdsa"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/adhikar/registry/council"
	"github.com/adhikar/registry/ledger"
	"github.com/adhikar/registry/registry"
	"github.com/adhikar/registry/storage"
)

type HumanLedgerConfig struct {
	RPCURL          string
	ContractAddress string
	SignerKeyHex    string
	// ABIPath points at a build artifact or bare ABI array; the built-in
	// schema is used when it is empty or unusable.
	ABIPath             string
	ConfirmationTimeout string
	PollInterval        string
	ExplorerTxURL       string
}

type HumanMember struct {
	ID            string
	DisplayName   string
	LedgerAddress string
	KeyHex        string
}

type HumanCouncilConfig struct {
	RequiredVotes int
	Members       []HumanMember
}

type HumanKeystoreConfig struct {
	Path       string
	Passphrase string
}

type HumanHTTPConfig struct {
	Listen              string
	VerifyRatePerSecond float64
	VerifyBurst         int
	VerifyMaxClients    int
}

// HumanConfig is the on-disk TOML form of Config.
type HumanConfig struct {
	Namespace string

	Storage  storage.Config
	Ledger   HumanLedgerConfig
	Council  HumanCouncilConfig
	Keystore HumanKeystoreConfig
	HTTP     HumanHTTPConfig
}

func HumanConfigToConfig(hc HumanConfig) (*Config, error) {
	c := &Config{
		Namespace: hc.Namespace,
		Storage:   hc.Storage,
		Keystore: KeystoreConfig{
			Path:       hc.Keystore.Path,
			Passphrase: hc.Keystore.Passphrase,
		},
		HTTP: HTTPConfig{
			Listen:              hc.HTTP.Listen,
			VerifyRatePerSecond: hc.HTTP.VerifyRatePerSecond,
			VerifyBurst:         hc.HTTP.VerifyBurst,
			VerifyMaxClients:    hc.HTTP.VerifyMaxClients,
		},
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}

	lc, err := hc.Ledger.toLedgerConfig()
	if err != nil {
		return nil, errors.Wrap(err, "error in [Ledger]")
	}
	c.Ledger = *lc

	cc, err := hc.Council.toCouncilConfig()
	if err != nil {
		return nil, errors.Wrap(err, "error in [Council]")
	}
	c.Council = *cc

	return c, nil
}

func (hlc *HumanLedgerConfig) toLedgerConfig() (*LedgerConfig, error) {
	lc := &LedgerConfig{
		RPCURL:        hlc.RPCURL,
		ExplorerTxURL: hlc.ExplorerTxURL,
	}
	if hlc.ContractAddress != "" {
		if !common.IsHexAddress(hlc.ContractAddress) {
			return nil, errors.Errorf("invalid contract address %q", hlc.ContractAddress)
		}
		lc.Contract = common.HexToAddress(hlc.ContractAddress)
	}
	if hlc.SignerKeyHex != "" {
		key, err := council.DecodeKeyHex(hlc.SignerKeyHex)
		if err != nil {
			return nil, errors.Wrap(err, "error decoding signer key")
		}
		lc.SignerKey = key
	}
	lc.ABI, _ = ledger.LoadABI(hlc.ABIPath)

	var err error
	if lc.ConfirmationTimeout, err = parseDuration(hlc.ConfirmationTimeout, ledger.DefaultConfirmationTimeout); err != nil {
		return nil, errors.Wrap(err, "error parsing ConfirmationTimeout")
	}
	if lc.PollInterval, err = parseDuration(hlc.PollInterval, ledger.DefaultPollInterval); err != nil {
		return nil, errors.Wrap(err, "error parsing PollInterval")
	}
	return lc, nil
}

func (hcc *HumanCouncilConfig) toCouncilConfig() (*CouncilConfig, error) {
	cc := &CouncilConfig{
		RequiredVotes: hcc.RequiredVotes,
		MemberKeys:    make(map[string]*ecdsa.PrivateKey),
	}
	if cc.RequiredVotes == 0 {
		cc.RequiredVotes = registry.DefaultRequiredVotes
	}
	if cc.RequiredVotes < 0 {
		return nil, errors.Errorf("RequiredVotes must be positive, got %d", cc.RequiredVotes)
	}
	for _, hm := range hcc.Members {
		m := &council.Member{ID: hm.ID, DisplayName: hm.DisplayName}
		if hm.LedgerAddress != "" {
			if !common.IsHexAddress(hm.LedgerAddress) {
				return nil, errors.Errorf("member %s: invalid ledger address %q", hm.ID, hm.LedgerAddress)
			}
			m.LedgerAddress = common.HexToAddress(hm.LedgerAddress)
		}
		if hm.KeyHex != "" {
			key, err := council.DecodeKeyHex(hm.KeyHex)
			if err != nil {
				return nil, errors.Wrapf(err, "member %s", hm.ID)
			}
			cc.MemberKeys[hm.ID] = key
			if m.LedgerAddress == (common.Address{}) {
				m.LedgerAddress = crypto.PubkeyToAddress(key.PublicKey)
			}
		}
		cc.Members = append(cc.Members, m)
	}
	if len(cc.Members) > 0 && cc.RequiredVotes > len(cc.Members) {
		return nil, errors.Errorf("RequiredVotes %d exceeds council size %d", cc.RequiredVotes, len(cc.Members))
	}
	return cc, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// DecodeHumanConfig parses TOML without converting it, so callers can apply
// environment overrides first.
func DecodeHumanConfig(tomlStr string) (*HumanConfig, error) {
	var hc HumanConfig
	if _, err := toml.Decode(tomlStr, &hc); err != nil {
		return nil, errors.Wrap(err, "error decoding toml")
	}
	return &hc, nil
}

// TomlToConfig will load a config from a toml string
func TomlToConfig(tomlStr string) (*Config, error) {
	hc, err := DecodeHumanConfig(tomlStr)
	if err != nil {
		return nil, err
	}
	return HumanConfigToConfig(*hc)
}

// LoadHumanConfig reads and decodes the TOML file at path.
func LoadHumanConfig(path string) (*HumanConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", path)
	}
	return DecodeHumanConfig(string(raw))
}
