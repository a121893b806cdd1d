package storage

import (
	"context"
	"testing"

	datastore "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"
)

func TestEncrypted(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultMemory()
	encrypted := EncryptedWrapper(store)

	k := datastore.NewKey("test")
	require.Equal(t, ErrLocked, encrypted.Put(ctx, k, []byte("hi")))

	require.Nil(t, encrypted.Unlock(ctx, "test"))
	require.Nil(t, encrypted.Put(ctx, k, []byte("hi")))

	raw, err := store.Get(ctx, k)
	require.Nil(t, err)
	require.NotEqual(t, []byte("hi"), raw)

	val, err := encrypted.Get(ctx, k)
	require.Nil(t, err)
	require.Equal(t, []byte("hi"), val)
}

func TestEncryptedWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultMemory()

	first := EncryptedWrapper(store)
	require.Nil(t, first.Unlock(ctx, "right"))
	k := datastore.NewKey("test")
	require.Nil(t, first.Put(ctx, k, []byte("secret")))

	second := EncryptedWrapper(store)
	require.Nil(t, second.Unlock(ctx, "wrong"))
	_, err := second.Get(ctx, k)
	require.NotNil(t, err)
}
