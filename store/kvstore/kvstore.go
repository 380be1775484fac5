package kvstore

// KVStore is the row-engine abstraction a tablet mutates through.
type KVStore interface {
	Put(key, value []byte, ops ...*Option) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte, ops ...*Option) error

	// RangeIterator returns a KVIterator that will
	// visit all K/V pairs >= start AND < end
	RangeIterator(start, end []byte) KVIterator

	NewKVBatch() KVBatch
	ExecuteBatch(batch KVBatch, ops ...*Option) error

	// ApplyID returns the highest replicated-log index whose mutations
	// have been committed to the engine.
	ApplyID() (uint64, error)

	Close() error
}

// KVIterator is an abstraction around key iteration
type KVIterator interface {

	// Seek will advance the iterator to the specified key
	Seek(key []byte)

	// Next will advance the iterator to the next key
	Next()

	// Key returns the key pointed to by the iterator
	// The bytes returned are **ONLY** valid until the next call to Seek/Next/Close
	// Continued use after that requires that they be copied.
	Key() []byte

	// Value returns the value pointed to by the iterator
	// The bytes returned are **ONLY** valid until the next call to Seek/Next/Close
	// Continued use after that requires that they be copied.
	Value() []byte

	// Valid returns whether or not the iterator is in a valid state
	Valid() bool

	// Close closes the iterator
	Close() error
}

// KVBatch is a set of mutations committed atomically.
type KVBatch interface {

	// Set updates the key with the specified value
	// both key and value []byte may be reused as soon as this call returns
	Set(key, val []byte)

	// Delete removes the specified key
	// the key []byte may be reused as soon as this call returns
	Delete(key []byte)

	// Operations returns all buffered mutations
	Operations() []Operation

	// Reset frees resources for this batch and allows reuse
	Reset()

	// Close frees resources
	Close() error
}

// Option carries per-write engine directives.
type Option struct {
	// ApplyID is the replicated-log index of the write, persisted with it.
	ApplyID uint64
}
