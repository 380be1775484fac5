package badgerdb

import (
	"encoding/binary"
	"os"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/store/kvstore"
)

var _ kvstore.KVStore = &Store{}

// applyIDKey is the reserved key the replicated-log apply index is
// persisted under, outside the row keyspace.
var applyIDKey = []byte("\x00meta\x00apply-id")

// StoreConfig badger engine config
type StoreConfig struct {
	Path string
	Sync bool
}

// Store is the disk row engine backed by badger.
type Store struct {
	path string
	db   *badger.DB
}

// New open a badger-backed store.
func New(config *StoreConfig) (kvstore.KVStore, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	if config.Path == "" {
		return nil, os.ErrInvalid
	}
	opts := badger.DefaultOptions
	opts.Dir = config.Path
	opts.ValueDir = config.Path
	if !config.Sync {
		opts.SyncWrites = false
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{
		path: config.Path,
		db:   db,
	}, nil
}

func (bs *Store) Get(key []byte) (value []byte, err error) {
	err = bs.db.View(func(tx *badger.Txn) error {
		v, err := tx.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = v.ValueCopy(value)
		return err
	})
	return
}

func (bs *Store) Put(key []byte, value []byte, ops ...*kvstore.Option) error {
	return bs.db.Update(func(tx *badger.Txn) error {
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return setApplyID(tx, ops)
	})
}

func (bs *Store) Delete(key []byte, ops ...*kvstore.Option) error {
	return bs.db.Update(func(tx *badger.Txn) error {
		if err := tx.Delete(key); err != nil {
			return err
		}
		return setApplyID(tx, ops)
	})
}

func (bs *Store) RangeIterator(start, end []byte) kvstore.KVIterator {
	tx := bs.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 10
	it := tx.NewIterator(opts)
	rv := &Iterator{
		tx:    tx,
		iter:  it,
		start: start,
		end:   end,
	}

	rv.Seek(start)
	return rv
}

func (bs *Store) NewKVBatch() kvstore.KVBatch {
	return kvstore.NewBatch()
}

func (bs *Store) ExecuteBatch(batch kvstore.KVBatch, ops ...*kvstore.Option) (err error) {
	if batch == nil {
		return nil
	}
	tx := bs.db.NewTransaction(true)
	defer func() {
		if err != nil {
			tx.Discard()
		}
	}()

	for _, op := range batch.Operations() {
		if op.Value() != nil {
			err = tx.Set(op.Key(), op.Value())
		} else {
			err = tx.Delete(op.Key())
		}
		if err == badger.ErrTxnTooBig {
			if err = tx.Commit(nil); err != nil {
				return
			}
			tx = bs.db.NewTransaction(true)
		}
		if err != nil {
			return
		}
	}
	if err = setApplyID(tx, ops); err != nil {
		return
	}
	err = tx.Commit(nil)
	return
}

func (bs *Store) ApplyID() (uint64, error) {
	var id uint64
	err := bs.db.View(func(tx *badger.Txn) error {
		v, err := tx.Get(applyIDKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := v.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) == 8 {
			id = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return id, err
}

func (bs *Store) Close() error {
	return bs.db.Close()
}

func setApplyID(tx *badger.Txn, ops []*kvstore.Option) error {
	for _, o := range ops {
		if o != nil && o.ApplyID > 0 {
			var raw [8]byte
			binary.BigEndian.PutUint64(raw[:], o.ApplyID)
			return tx.Set(applyIDKey, raw[:])
		}
	}
	return nil
}
