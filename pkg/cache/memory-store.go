package cache

import (
	"container/list"
	"sync"
)

type memoryEntry struct {
	key     string
	value   *Entry
	element *list.Element
}

// MemoryPartition is an in-process partition. With a non-zero capacity the
// least recently used entry is evicted when the partition is full.
type MemoryPartition struct {
	name     string
	capacity uint64
	mu       sync.Mutex
	items    map[string]*memoryEntry
	order    *list.List
}

func NewMemoryPartition(name string, capacity uint64) *MemoryPartition {
	return &MemoryPartition{
		name:     name,
		capacity: capacity,
		items:    make(map[string]*memoryEntry),
		order:    list.New(),
	}
}

func (c *MemoryPartition) Name() string {
	return c.name
}

func (c *MemoryPartition) Put(key string, value *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		c.order.MoveToFront(e.element)
		return nil
	}

	if c.capacity > 0 && uint64(len(c.items)) >= c.capacity {
		c.evict()
	}

	elem := c.order.PushFront(key)
	c.items[key] = &memoryEntry{
		key:     key,
		value:   value,
		element: elem,
	}

	return nil
}

func (c *MemoryPartition) Match(key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}

	c.order.MoveToFront(e.element)
	return e.value, true, nil
}

func (c *MemoryPartition) Delete(key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return false, nil
	}
	c.remove(key)
	return true, nil
}

func (c *MemoryPartition) Keys() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		keys = append(keys, elem.Value.(string))
	}
	return keys, nil
}

func (c *MemoryPartition) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryPartition) remove(key string) {
	e := c.items[key]
	c.order.Remove(e.element)
	delete(c.items, key)
}

func (c *MemoryPartition) evict() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.remove(back.Value.(string))
}

// MemoryStore keeps partitions in process memory, in creation order.
type MemoryStore struct {
	capacity   uint64
	mu         sync.Mutex
	partitions map[string]*MemoryPartition
	names      []string
}

func NewMemoryStore(capacity uint64) *MemoryStore {
	return &MemoryStore{
		capacity:   capacity,
		partitions: make(map[string]*MemoryPartition),
	}
}

func (s *MemoryStore) Open(name string) (Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[name]; ok {
		return p, nil
	}
	p := NewMemoryPartition(name, s.capacity)
	s.partitions[name] = p
	s.names = append(s.names, name)
	return p, nil
}

func (s *MemoryStore) Has(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.partitions[name]
	return ok, nil
}

func (s *MemoryStore) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...), nil
}

func (s *MemoryStore) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.partitions[name]; !ok {
		return false, nil
	}
	delete(s.partitions, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStore) Match(key string) (*Entry, bool, error) {
	s.mu.Lock()
	partitions := make([]Partition, 0, len(s.names))
	for _, name := range s.names {
		partitions = append(partitions, s.partitions[name])
	}
	s.mu.Unlock()

	return matchIn(partitions, key)
}

func (s *MemoryStore) Close() error {
	return nil
}
