package kvstore

var _ Operation = &op{}
var _ KVBatch = &Batch{}

// Operation is one buffered mutation; a nil value means delete.
type Operation interface {
	Key() []byte
	Value() []byte
}

type op struct {
	k []byte
	v []byte
}

func (o *op) Key() []byte {
	if o == nil {
		return nil
	}
	return o.k
}

func (o *op) Value() []byte {
	if o == nil {
		return nil
	}
	return o.v
}

// Batch buffers mutations until ExecuteBatch.
type Batch struct {
	ops []Operation
}

// NewBatch create an empty batch.
func NewBatch() *Batch {
	return &Batch{
		ops: make([]Operation, 0, 64),
	}
}

func (b *Batch) Set(key, val []byte) {
	ck := make([]byte, len(key))
	copy(ck, key)
	cv := make([]byte, len(val))
	copy(cv, val)
	b.ops = append(b.ops, &op{ck, cv})
}

func (b *Batch) Delete(key []byte) {
	ck := make([]byte, len(key))
	copy(ck, key)
	b.ops = append(b.ops, &op{ck, nil})
}

func (b *Batch) Operations() []Operation {
	return b.ops
}

// for reuse
func (b *Batch) Reset() {
	b.ops = b.ops[:0]
}

func (b *Batch) Close() error {
	return nil
}
