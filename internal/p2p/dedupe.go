package p2p

import (
	"sync"

	"crn-node/internal/proto"
)

// seenKey identifies one datagram: who sent it, its txid and its type.
type seenKey struct {
	src  string
	txid string
	typ  proto.Type
}

// seenCache is a bounded FIFO set of recently processed datagrams. When
// full, the oldest entry is evicted.
type seenCache struct {
	mu    sync.Mutex
	ring  []seenKey
	next  int
	count int
	items map[seenKey]struct{}
}

func newSeenCache(capacity int) *seenCache {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &seenCache{
		ring:  make([]seenKey, capacity),
		items: make(map[seenKey]struct{}, capacity),
	}
}

// Seen returns true if k was seen recently. If not, it records it and returns false.
func (s *seenCache) Seen(k seenKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[k]; ok {
		return true
	}
	if s.count == len(s.ring) {
		delete(s.items, s.ring[s.next])
	} else {
		s.count++
	}
	s.ring[s.next] = k
	s.next = (s.next + 1) % len(s.ring)
	s.items[k] = struct{}{}
	return false
}

func (s *seenCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *seenCache) contains(k seenKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[k]
	return ok
}
