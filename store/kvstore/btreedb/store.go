package btreedb

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/tiglabs/tabletengine/store/kvstore"
)

var _ kvstore.KVStore = &Store{}

const defaultDegree = 10

type item struct {
	key   []byte
	value []byte
}

func (i *item) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(*item).key) < 0
}

// Store is the in-memory row engine backed by a btree. It backs
// unpersisted tablets and tests; mutations are lost on restart.
type Store struct {
	mu      sync.RWMutex
	tree    *btree.BTree
	applyID uint64
}

// New create an empty in-memory store.
func New() *Store {
	return &Store{tree: btree.New(defaultDegree)}
}

func (ms *Store) Get(key []byte) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	got := ms.tree.Get(&item{key: key})
	if got == nil {
		return nil, nil
	}
	return cloneBytes(got.(*item).value), nil
}

func (ms *Store) Put(key, value []byte, ops ...*kvstore.Option) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.tree.ReplaceOrInsert(&item{key: cloneBytes(key), value: cloneBytes(value)})
	ms.setApplyID(ops)
	return nil
}

func (ms *Store) Delete(key []byte, ops ...*kvstore.Option) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.tree.Delete(&item{key: key})
	ms.setApplyID(ops)
	return nil
}

// RangeIterator snapshots the pairs in [start, end) under the read lock.
func (ms *Store) RangeIterator(start, end []byte) kvstore.KVIterator {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	it := &Iterator{}
	visit := func(i btree.Item) bool {
		got := i.(*item)
		if len(end) > 0 && bytes.Compare(got.key, end) >= 0 {
			return false
		}
		it.pairs = append(it.pairs, pair{cloneBytes(got.key), cloneBytes(got.value)})
		return true
	}
	if len(start) > 0 {
		ms.tree.AscendGreaterOrEqual(&item{key: start}, visit)
	} else {
		ms.tree.Ascend(visit)
	}
	return it
}

func (ms *Store) NewKVBatch() kvstore.KVBatch {
	return kvstore.NewBatch()
}

func (ms *Store) ExecuteBatch(batch kvstore.KVBatch, ops ...*kvstore.Option) error {
	if batch == nil {
		return nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, op := range batch.Operations() {
		if op.Value() != nil {
			ms.tree.ReplaceOrInsert(&item{key: cloneBytes(op.Key()), value: cloneBytes(op.Value())})
		} else {
			ms.tree.Delete(&item{key: op.Key()})
		}
	}
	ms.setApplyID(ops)
	return nil
}

func (ms *Store) ApplyID() (uint64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.applyID, nil
}

func (ms *Store) Close() error {
	ms.mu.Lock()
	ms.tree = btree.New(defaultDegree)
	ms.mu.Unlock()
	return nil
}

func (ms *Store) setApplyID(ops []*kvstore.Option) {
	for _, o := range ops {
		if o != nil && o.ApplyID > 0 {
			ms.applyID = o.ApplyID
		}
	}
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

type pair struct {
	key   []byte
	value []byte
}

// Iterator walks a point-in-time snapshot of the selected range.
type Iterator struct {
	pairs []pair
	pos   int
}

func (i *Iterator) Seek(key []byte) {
	for i.pos < len(i.pairs) && bytes.Compare(i.pairs[i.pos].key, key) < 0 {
		i.pos++
	}
}

func (i *Iterator) Next() { i.pos++ }

func (i *Iterator) Key() []byte {
	if !i.Valid() {
		return nil
	}
	return i.pairs[i.pos].key
}

func (i *Iterator) Value() []byte {
	if !i.Valid() {
		return nil
	}
	return i.pairs[i.pos].value
}

func (i *Iterator) Valid() bool { return i.pos < len(i.pairs) }

func (i *Iterator) Close() error { return nil }
