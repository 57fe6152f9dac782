package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reelcache/pkg/utils/fs"
	"reelcache/pkg/utils/hash"
	"sort"
	"strings"
	"sync"
)

const (
	partitionNameFile = "partition.name"
	entrySuffix       = ".entry"
)

// DiskStore keeps one directory per partition under root and one file per
// entry, so partitions survive process restarts.
type DiskStore struct {
	root     string
	compress bool
	mu       sync.RWMutex
	closed   bool
}

func NewDiskStore(root string, compress bool) (*DiskStore, error) {
	if err := fs.EnsureDir(root); err != nil {
		return nil, err
	}
	return &DiskStore{root: root, compress: compress}, nil
}

func (s *DiskStore) dir(name string) string {
	return filepath.Join(s.root, hash.HashString(name))
}

func (s *DiskStore) Open(name string) (Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	dir := s.dir(name)
	if err := fs.EnsureDir(dir); err != nil {
		return nil, err
	}
	namePath := filepath.Join(dir, partitionNameFile)
	if _, err := os.Stat(namePath); os.IsNotExist(err) {
		if err := os.WriteFile(namePath, []byte(name), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write partition name: %w", err)
		}
	}
	return &DiskPartition{store: s, name: name, dir: dir}, nil
}

func (s *DiskStore) Has(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	return s.has(name)
}

func (s *DiskStore) has(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir(name), partitionNameFile))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *DiskStore) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.names()
}

func (s *DiskStore) names() ([]string, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, d.Name(), partitionNameFile))
		if err != nil {
			continue
		}
		names = append(names, string(data))
	}
	sort.Strings(names)
	return names, nil
}

func (s *DiskStore) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	exists, err := s.has(name)
	if err != nil || !exists {
		return false, err
	}
	if err := os.RemoveAll(s.dir(name)); err != nil {
		return false, fmt.Errorf("failed to delete partition %s: %w", name, err)
	}
	return true, nil
}

func (s *DiskStore) Match(key string) (*Entry, bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, false, ErrStoreClosed
	}
	names, err := s.names()
	s.mu.RUnlock()
	if err != nil {
		return nil, false, err
	}

	partitions := make([]Partition, 0, len(names))
	for _, name := range names {
		partitions = append(partitions, &DiskPartition{store: s, name: name, dir: s.dir(name)})
	}
	return matchIn(partitions, key)
}

func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type DiskPartition struct {
	store *DiskStore
	name  string
	dir   string
}

func (p *DiskPartition) Name() string {
	return p.name
}

func (p *DiskPartition) path(key string) string {
	return filepath.Join(p.dir, hash.HashString(key)+entrySuffix)
}

func (p *DiskPartition) Match(key string) (*Entry, bool, error) {
	p.store.mu.RLock()
	defer p.store.mu.RUnlock()
	if p.store.closed {
		return nil, false, ErrStoreClosed
	}

	data, err := os.ReadFile(p.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	entry, err := DecodeEntry(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", p.path(key), err)
	}
	// hash collision
	if entry.Key != key {
		return nil, false, nil
	}
	return entry, true, nil
}

func (p *DiskPartition) Put(key string, entry *Entry) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	if p.store.closed {
		return ErrStoreClosed
	}

	stored := *entry
	stored.Key = key
	data := EncodeEntry(&stored, p.store.compress)

	tmp, err := os.CreateTemp(p.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p.path(key))
}

func (p *DiskPartition) Delete(key string) (bool, error) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	if p.store.closed {
		return false, ErrStoreClosed
	}

	err := os.Remove(p.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (p *DiskPartition) Keys() ([]string, error) {
	p.store.mu.RLock()
	defer p.store.mu.RUnlock()
	if p.store.closed {
		return nil, ErrStoreClosed
	}

	files, err := os.ReadDir(p.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), entrySuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.dir, f.Name()))
		if err != nil {
			continue
		}
		entry, err := DecodeEntry(data)
		if err != nil {
			continue
		}
		keys = append(keys, entry.Key)
	}
	sort.Strings(keys)
	return keys, nil
}
