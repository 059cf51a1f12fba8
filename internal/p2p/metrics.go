package p2p

import "time"

// Metrics receives node counters. Prometheus wiring lives in internal/metrics.
// Implementations must be thread-safe.
type Metrics interface {
	IncRPC(kind string, ok bool)
	IncHandled(kind string)
	IncDropped(reason string)
	IncMigration(ok bool)
	ObserveLookup(queries int, duration time.Duration, ok bool)
	SetDirectorySize(n int)
	SetStoreSize(n int)
}

// NoopMetrics is the default.
type NoopMetrics struct{}

func (NoopMetrics) IncRPC(kind string, ok bool)                                {}
func (NoopMetrics) IncHandled(kind string)                                     {}
func (NoopMetrics) IncDropped(reason string)                                   {}
func (NoopMetrics) IncMigration(ok bool)                                       {}
func (NoopMetrics) ObserveLookup(queries int, duration time.Duration, ok bool) {}
func (NoopMetrics) SetDirectorySize(n int)                                     {}
func (NoopMetrics) SetStoreSize(n int)                                         {}
