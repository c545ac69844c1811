// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// errBadBatch is returned when WriteBatch is handed a Batch this driver
// did not create.
var errBadBatch = errors.New("store: batch was not created by this LevelDB instance")

// LevelDB is the durable KV.KV implementation backing a running node.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a goleveldb database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, bool, error) {
	v, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

type levelDBBatch struct {
	batch *leveldb.Batch
}

func (b *levelDBBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *levelDBBatch) Delete(key []byte)     { b.batch.Delete(key) }

func (l *LevelDB) NewBatch() Batch {
	return &levelDBBatch{batch: new(leveldb.Batch)}
}

func (l *LevelDB) WriteBatch(b Batch) error {
	lb, ok := b.(*levelDBBatch)
	if !ok {
		return errBadBatch
	}
	return l.db.Write(lb.batch, nil)
}

type levelDBIterator struct {
	it interface {
		Next() bool
		Key() []byte
		Value() []byte
		Release()
		Error() error
	}
}

func (it *levelDBIterator) Next() bool      { return it.it.Next() }
func (it *levelDBIterator) Key() []byte     { return it.it.Key() }
func (it *levelDBIterator) Value() []byte   { return it.it.Value() }
func (it *levelDBIterator) Release()        { it.it.Release() }
func (it *levelDBIterator) Error() error    { return it.it.Error() }

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return &levelDBIterator{it: l.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
