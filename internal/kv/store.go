package kv

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// Outcome is the result of a CompareAndSwap.
type Outcome int

const (
	Replaced Outcome = iota // stored value matched and was replaced
	Added                   // key was absent and has been created
	Mismatch                // stored value differs; nothing changed
	Rejected                // key absent and creation not allowed
)

func (o Outcome) String() string {
	switch o {
	case Replaced:
		return "replaced"
	case Added:
		return "added"
	case Mismatch:
		return "mismatch"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Store is the in-memory data namespace of a node. Values are opaque
// strings. Check-and-set operations on one key are serialized.
type Store struct {
	mu   sync.RWMutex
	data map[string]string

	keyLocks [lockStripes]sync.Mutex
}

func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) keyLock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.keyLocks[h.Sum32()%lockStripes]
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Put stores value and reports whether an earlier value was replaced.
func (s *Store) Put(key, value string) (replaced bool) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, replaced = s.data[key]
	s.data[key] = value
	return replaced
}

// Delete removes key and returns the value it held.
func (s *Store) Delete(key string) (string, bool) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	delete(s.data, key)
	return v, ok
}

// DeleteIf removes key only while it still holds value. Used by migration
// so a newer write racing with the forward is not lost.
func (s *Store) DeleteIf(key, value string) bool {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.data[key]; !ok || cur != value {
		return false
	}
	delete(s.data, key)
	return true
}

// CompareAndSwap sets key to next when it currently holds expected. When
// the key is absent, mayCreate decides whether it is created. The whole
// decision runs under the key's lock.
func (s *Store) CompareAndSwap(key, expected, next string, mayCreate func() bool) Outcome {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	cur, ok := s.data[key]
	s.mu.RUnlock()

	switch {
	case ok && cur == expected:
		s.mu.Lock()
		s.data[key] = next
		s.mu.Unlock()
		return Replaced
	case ok:
		return Mismatch
	case mayCreate != nil && mayCreate():
		s.mu.Lock()
		s.data[key] = next
		s.mu.Unlock()
		return Added
	default:
		return Rejected
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// ForEach visits a snapshot of the keys; fn returning false stops early.
func (s *Store) ForEach(fn func(key, value string) bool) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	for _, k := range keys {
		v, ok := s.Get(k)
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}
