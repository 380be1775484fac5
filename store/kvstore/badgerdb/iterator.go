package badgerdb

import (
	"bytes"

	"github.com/dgraph-io/badger"
)

// Iterator walks keys in [start, end).
type Iterator struct {
	tx   *badger.Txn
	iter *badger.Iterator

	start []byte
	end   []byte
	valid bool
	key   []byte
	value []byte
}

func (i *Iterator) Seek(key []byte) {
	if len(i.start) > 0 && bytes.Compare(key, i.start) < 0 {
		key = i.start
	}
	i.iter.Seek(key)
	i.refresh()
}

func (i *Iterator) Next() {
	i.iter.Next()
	i.refresh()
}

func (i *Iterator) refresh() {
	i.valid = i.iter.Valid()
	if !i.valid {
		i.key = nil
		i.value = nil
		return
	}

	item := i.iter.Item()
	i.key = item.KeyCopy(i.key[:0])
	if len(i.end) > 0 && bytes.Compare(i.key, i.end) >= 0 {
		i.valid = false
		i.key = nil
		i.value = nil
		return
	}
	i.value, _ = item.ValueCopy(i.value[:0])
}

func (i *Iterator) Key() []byte {
	if !i.valid {
		return nil
	}
	return i.key
}

func (i *Iterator) Value() []byte {
	if !i.valid {
		return nil
	}
	return i.value
}

func (i *Iterator) Valid() bool {
	return i.valid
}

func (i *Iterator) Close() error {
	i.iter.Close()
	i.tx.Discard()
	return nil
}
