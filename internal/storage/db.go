// Package storage provides the key/value abstraction the wallet ledger and
// the simulated node persist into.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch buffers writes and applies them together on Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by databases that can commit a Batch atomically.
type Batcher interface {
	NewBatch() Batch
}

// NewBatch returns db's native batch when it has one and a buffered,
// non-atomic batch otherwise.
func NewBatch(db DB) Batch {
	if b, ok := db.(Batcher); ok {
		return b.NewBatch()
	}
	return &bufferedBatch{db: db}
}

type batchOp struct {
	key   []byte
	value []byte // nil means delete
}

// bufferedBatch replays its operations one by one on Commit.
type bufferedBatch struct {
	db  DB
	ops []batchOp
}

func (b *bufferedBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: clone(key), value: nonNilClone(value)})
	return nil
}

func (b *bufferedBatch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: clone(key)})
	return nil
}

func (b *bufferedBatch) Commit() error {
	for _, op := range b.ops {
		var err error
		if op.value == nil {
			err = b.db.Delete(op.key)
		} else {
			err = b.db.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func nonNilClone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
