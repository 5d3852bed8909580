package store

// Store is the durable key/value interface used for checkpoint persistence.
// Get returns (nil, nil) when the key is absent. Writes are last-write-wins;
// no transactional guarantees beyond single-key atomicity are assumed.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Close() error
}
