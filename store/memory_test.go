// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetPutDelete(t *testing.T) {
	require := require.New(t)
	m := NewMemory()

	_, found, err := m.Get([]byte("a"))
	require.NoError(err)
	require.False(found)

	require.NoError(m.Put([]byte("a"), []byte("1")))
	v, found, err := m.Get([]byte("a"))
	require.NoError(err)
	require.True(found)
	require.Equal([]byte("1"), v)

	require.NoError(m.Delete([]byte("a")))
	_, found, err = m.Get([]byte("a"))
	require.NoError(err)
	require.False(found)
}

func TestMemoryBatchIsAtomic(t *testing.T) {
	require := require.New(t)
	m := NewMemory()

	b := m.NewBatch()
	b.Put([]byte("x"), []byte("1"))
	b.Put([]byte("y"), []byte("2"))
	require.NoError(m.WriteBatch(b))

	_, found, _ := m.Get([]byte("x"))
	require.True(found)
	_, found, _ = m.Get([]byte("y"))
	require.True(found)
}

func TestMemoryIteratorRespectsPrefix(t *testing.T) {
	require := require.New(t)
	m := NewMemory()
	require.NoError(m.Put(PrefixedKey(CFState, []byte("a")), []byte("1")))
	require.NoError(m.Put(PrefixedKey(CFState, []byte("b")), []byte("2")))
	require.NoError(m.Put(PrefixedKey(CFBlocks, []byte("c")), []byte("3")))

	it := m.NewIterator(CFState)
	defer it.Release()
	count := 0
	for it.Next() {
		count++
	}
	require.NoError(it.Error())
	require.Equal(2, count)
}
