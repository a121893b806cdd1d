package namedlocker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameName(t *testing.T) {
	nl := NewNamedLocker()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nl.Lock("claim")
			defer nl.Unlock("claim")
			c := counter
			counter = c + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, nl.Len())
}

func TestDifferentNamesDoNotBlock(t *testing.T) {
	nl := NewNamedLocker()
	nl.Lock("a")
	defer nl.Unlock("a")

	done := make(chan struct{})
	go func() {
		nl.Lock("b")
		nl.Unlock("b")
		close(done)
	}()
	<-done
	assert.Equal(t, 1, nl.Len())
}

func TestReadersShare(t *testing.T) {
	nl := NewNamedLocker()
	nl.RLock("a")
	nl.RLock("a")
	nl.RUnlock("a")
	nl.RUnlock("a")
	assert.Equal(t, 0, nl.Len())
}

func TestWithReturnsError(t *testing.T) {
	nl := NewNamedLocker()
	err := nl.With("a", func() error {
		return assert.AnError
	})
	require.Equal(t, assert.AnError, err)
	assert.Equal(t, 0, nl.Len())
}

func TestUnlockUnknownPanics(t *testing.T) {
	nl := NewNamedLocker()
	assert.Panics(t, func() {
		nl.Unlock("missing")
	})
}
