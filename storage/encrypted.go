package storage

import (
	"context"
	"crypto/rand"
	"io"

	datastore "github.com/ipfs/go-datastore"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// ErrLocked is returned by EncryptedStore reads and writes before Unlock.
var ErrLocked = errors.New("you must unlock this storage before using")

var saltKey = datastore.NewKey("/_adhikar_encrypted_salt")

// EncryptedStore wraps any datastore and seals values with a key derived from
// a passphrase. Keys are stored in the clear.
type EncryptedStore struct {
	datastore.Datastore
	secretKey *[32]byte
}

// EncryptedWrapper takes an underlying store and uses encryption on the values being set.
func EncryptedWrapper(store datastore.Datastore) *EncryptedStore {
	return &EncryptedStore{
		Datastore: store,
	}
}

// Unlock takes a passphrase to use to decrypt values in the database.
func (es *EncryptedStore) Unlock(ctx context.Context, passphrase string) error {
	salt, err := es.getSalt(ctx)
	if err != nil {
		return err
	}
	dk, err := scrypt.Key([]byte(passphrase), salt, 32768, 8, 1, 32)
	if err != nil {
		return errors.Wrap(err, "error deriving key")
	}
	var key [32]byte
	copy(key[:], dk)
	es.secretKey = &key
	return nil
}

func (es *EncryptedStore) IsUnlocked() bool {
	return es.secretKey != nil
}

func (es *EncryptedStore) Put(ctx context.Context, key datastore.Key, value []byte) error {
	if !es.IsUnlocked() {
		return ErrLocked
	}

	encrypted, err := es.encryptedValue(value)
	if err != nil {
		return errors.Wrap(err, "error encrypting")
	}
	return es.Datastore.Put(ctx, key, encrypted)
}

func (es *EncryptedStore) Get(ctx context.Context, key datastore.Key) ([]byte, error) {
	if !es.IsUnlocked() {
		return nil, ErrLocked
	}
	encryptedBytes, err := es.Datastore.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(encryptedBytes) == 0 {
		return nil, nil
	}
	return es.decryptedValue(encryptedBytes)
}

func (es *EncryptedStore) encryptedValue(value []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "error getting nonce")
	}

	return secretbox.Seal(nonce[:], value, &nonce, es.secretKey), nil
}

func (es *EncryptedStore) decryptedValue(encryptedBytes []byte) ([]byte, error) {
	if len(encryptedBytes) < 24 {
		return nil, errors.New("error decrypting: value too short")
	}
	var decryptNonce [24]byte
	copy(decryptNonce[:], encryptedBytes[:24])
	decrypted, ok := secretbox.Open(nil, encryptedBytes[24:], &decryptNonce, es.secretKey)
	if !ok {
		return nil, errors.New("error decrypting: wrong passphrase or corrupt value")
	}
	return decrypted, nil
}

func (es *EncryptedStore) getSalt(ctx context.Context) ([]byte, error) {
	salt, err := es.Datastore.Get(ctx, saltKey)
	if err == nil && len(salt) > 0 {
		return salt, nil
	}
	if err != nil && err != datastore.ErrNotFound {
		return nil, errors.Wrap(err, "error getting salt key")
	}

	salt = make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "error generating salt")
	}
	if err := es.Datastore.Put(ctx, saltKey, salt); err != nil {
		return nil, errors.Wrap(err, "error storing salt")
	}
	return salt, nil
}
