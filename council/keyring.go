package council

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	datastore "github.com/ipfs/go-datastore"
	"github.com/pkg/errors"

	"github.com/adhikar/registry/storage"
)

var ErrNoSigningKey = errors.New("no signing key for council member")

// Keyring resolves the ledger signing key used when a member's vote is the
// one that finalizes a claim.
type Keyring interface {
	SignerFor(ctx context.Context, memberID string) (*ecdsa.PrivateKey, error)
}

// StaticKeyring serves per-member keys from memory and falls back to a shared
// council key for members without their own.
type StaticKeyring struct {
	shared  *ecdsa.PrivateKey
	members map[string]*ecdsa.PrivateKey
}

var _ Keyring = (*StaticKeyring)(nil)

func NewStaticKeyring(shared *ecdsa.PrivateKey) *StaticKeyring {
	return &StaticKeyring{
		shared:  shared,
		members: make(map[string]*ecdsa.PrivateKey),
	}
}

func (k *StaticKeyring) Add(memberID string, key *ecdsa.PrivateKey) {
	k.members[memberID] = key
}

func (k *StaticKeyring) SignerFor(_ context.Context, memberID string) (*ecdsa.PrivateKey, error) {
	if key, ok := k.members[memberID]; ok {
		return key, nil
	}
	if k.shared != nil {
		return k.shared, nil
	}
	return nil, errors.Wrapf(ErrNoSigningKey, "%q", memberID)
}

var keystorePrefix = datastore.NewKey("/keys")

// StoredKeyring keeps member keys in an encrypted datastore. Members without
// a stored key use the fallback keyring when one is set.
type StoredKeyring struct {
	store    *storage.EncryptedStore
	fallback Keyring
}

var _ Keyring = (*StoredKeyring)(nil)

func NewStoredKeyring(store *storage.EncryptedStore, fallback Keyring) *StoredKeyring {
	return &StoredKeyring{store: store, fallback: fallback}
}

func (k *StoredKeyring) Import(ctx context.Context, memberID string, key *ecdsa.PrivateKey) error {
	return k.store.Put(ctx, keystorePrefix.ChildString(memberID), crypto.FromECDSA(key))
}

func (k *StoredKeyring) SignerFor(ctx context.Context, memberID string) (*ecdsa.PrivateKey, error) {
	raw, err := k.store.Get(ctx, keystorePrefix.ChildString(memberID))
	switch {
	case err == datastore.ErrNotFound || (err == nil && len(raw) == 0):
		if k.fallback != nil {
			return k.fallback.SignerFor(ctx, memberID)
		}
		return nil, errors.Wrapf(ErrNoSigningKey, "%q", memberID)
	case err != nil:
		return nil, errors.Wrapf(err, "error reading key for %q", memberID)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "stored key for %q is invalid", memberID)
	}
	return key, nil
}

// DecodeKeyHex parses a 0x-prefixed or bare hex secp256k1 private key.
func DecodeKeyHex(keyHex string) (*ecdsa.PrivateKey, error) {
	if len(keyHex) < 2 || keyHex[:2] != "0x" {
		keyHex = "0x" + keyHex
	}
	keyBytes, err := hexutil.Decode(keyHex)
	if err != nil {
		return nil, errors.Wrap(err, "error decoding key")
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't unmarshal ECDSA private key")
	}
	return key, nil
}
