package ledger

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

const (
	RecordMethod      = "recordVerifiedTitle"
	TitleVerifiedName = "TitleVerified"
)

//go:embed fallback_abi.json
var fallbackABIJSON []byte

// FallbackABI is the built-in description of the registry contract, limited to
// the record call and the TitleVerified event.
func FallbackABI() abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(fallbackABIJSON))
	if err != nil {
		panic(errors.Wrap(err, "embedded registry ABI is invalid"))
	}
	return parsed
}

// ParseABI accepts a bare ABI array or a build artifact with an "abi" field.
func ParseABI(raw []byte) (abi.ABI, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return abi.ABI{}, errors.Wrap(err, "error decoding artifact")
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, errors.New("artifact has no abi field")
		}
		raw = artifact.ABI
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "error parsing abi")
	}
	return parsed, nil
}

// LoadABI reads the contract description at path. A missing, unreadable or
// incomplete description falls back to FallbackABI; the bool reports whether
// the file was used.
func LoadABI(path string) (abi.ABI, bool) {
	if path == "" {
		log.Infow("no contract abi configured, using built-in schema")
		return FallbackABI(), false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warnw("contract abi unavailable, using built-in schema", "path", path, "err", err)
		return FallbackABI(), false
	}
	parsed, err := ParseABI(raw)
	if err != nil {
		log.Warnw("contract abi unparsable, using built-in schema", "path", path, "err", err)
		return FallbackABI(), false
	}
	if err := checkSchema(parsed); err != nil {
		log.Warnw("contract abi incomplete, using built-in schema", "path", path, "err", err)
		return FallbackABI(), false
	}
	return parsed, true
}

func checkSchema(a abi.ABI) error {
	if _, ok := a.Methods[RecordMethod]; !ok {
		return errors.Errorf("missing method %s", RecordMethod)
	}
	if _, ok := a.Events[TitleVerifiedName]; !ok {
		return errors.Errorf("missing event %s", TitleVerifiedName)
	}
	return nil
}

// withSchema returns a unless it lacks the registry method or event.
func withSchema(a abi.ABI) abi.ABI {
	if err := checkSchema(a); err != nil {
		log.Warnw("contract abi incomplete, using built-in schema", "err", err)
		return FallbackABI()
	}
	return a
}
