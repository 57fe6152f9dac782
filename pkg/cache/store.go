package cache

import "errors"

var (
	ErrCorruptEntry = errors.New("corrupted cache entry")
	ErrStoreClosed  = errors.New("cache store closed")
)

// Partition is a named key to response mapping. Keys are request URLs.
type Partition interface {
	Name() string
	Match(key string) (*Entry, bool, error)
	Put(key string, entry *Entry) error
	Delete(key string) (bool, error)
	Keys() ([]string, error)
}

// Store holds the named partitions. Opening a name that does not exist
// creates it; deleting a partition drops every entry in it.
type Store interface {
	Open(name string) (Partition, error)
	Has(name string) (bool, error)
	Names() ([]string, error)
	Delete(name string) (bool, error)
	// Match looks key up in every partition, in Names order.
	Match(key string) (*Entry, bool, error)
	Close() error
}

func matchIn(partitions []Partition, key string) (*Entry, bool, error) {
	for _, p := range partitions {
		entry, ok, err := p.Match(key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return entry, true, nil
		}
	}
	return nil, false, nil
}
