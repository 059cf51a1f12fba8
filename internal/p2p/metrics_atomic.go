package p2p

import (
	"sync"
	"sync/atomic"
	"time"
)

// AtomicMetrics counts in memory. Tests read it through Snapshot.
type AtomicMetrics struct {
	rpcOK         atomic.Uint64
	rpcFail       atomic.Uint64
	migrateOK     atomic.Uint64
	migrateFail   atomic.Uint64
	lookups       atomic.Uint64
	lookupOK      atomic.Uint64
	lookupQueries atomic.Uint64
	dirSize       atomic.Int64
	storeSize     atomic.Int64

	mu      sync.Mutex
	handled map[string]uint64
	dropped map[string]uint64
}

func (m *AtomicMetrics) IncRPC(kind string, ok bool) {
	if ok {
		m.rpcOK.Add(1)
	} else {
		m.rpcFail.Add(1)
	}
}

func (m *AtomicMetrics) IncHandled(kind string) {
	m.mu.Lock()
	if m.handled == nil {
		m.handled = make(map[string]uint64)
	}
	m.handled[kind]++
	m.mu.Unlock()
}

func (m *AtomicMetrics) IncDropped(reason string) {
	m.mu.Lock()
	if m.dropped == nil {
		m.dropped = make(map[string]uint64)
	}
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *AtomicMetrics) IncMigration(ok bool) {
	if ok {
		m.migrateOK.Add(1)
	} else {
		m.migrateFail.Add(1)
	}
}

func (m *AtomicMetrics) ObserveLookup(queries int, duration time.Duration, ok bool) {
	m.lookups.Add(1)
	m.lookupQueries.Add(uint64(queries))
	if ok {
		m.lookupOK.Add(1)
	}
}

func (m *AtomicMetrics) SetDirectorySize(n int) { m.dirSize.Store(int64(n)) }
func (m *AtomicMetrics) SetStoreSize(n int)     { m.storeSize.Store(int64(n)) }

func (m *AtomicMetrics) Handled(kind string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handled[kind]
}

func (m *AtomicMetrics) Dropped(reason string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

func (m *AtomicMetrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"rpc_ok":         m.rpcOK.Load(),
		"rpc_fail":       m.rpcFail.Load(),
		"migrate_ok":     m.migrateOK.Load(),
		"migrate_fail":   m.migrateFail.Load(),
		"lookups":        m.lookups.Load(),
		"lookup_ok":      m.lookupOK.Load(),
		"lookup_queries": m.lookupQueries.Load(),
		"directory_size": uint64(m.dirSize.Load()),
		"store_size":     uint64(m.storeSize.Load()),
	}
}
