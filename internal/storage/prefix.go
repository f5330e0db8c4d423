package storage

// PrefixDB namespaces another DB by prepending a fixed prefix to every key,
// so several components can share one underlying database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: clone(prefix)}
}

func (p *PrefixDB) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.key(key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.key(key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.key(key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.key(key))
}

// ForEach iterates over keys with the given prefix inside this namespace.
// Keys passed to fn have the namespace stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// DeleteAll removes every key in this namespace.
func (p *PrefixDB) DeleteAll() error {
	batch := NewBatch(p.inner)
	err := p.inner.ForEach(p.prefix, func(key, _ []byte) error {
		return batch.Delete(key)
	})
	if err != nil {
		return err
	}
	return batch.Commit()
}

// NewBatch returns a batch on the inner DB with keys namespaced.
func (p *PrefixDB) NewBatch() Batch {
	return &prefixBatch{inner: NewBatch(p.inner), db: p}
}

type prefixBatch struct {
	inner Batch
	db    *PrefixDB
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(pb.db.key(key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(pb.db.key(key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}

// Close is a no-op. The inner DB owns its lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}
