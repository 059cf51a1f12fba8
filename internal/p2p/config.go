package p2p

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"crn-node/internal/netx"
)

// Key namespaces.
const (
	NamePrefix = "N:"
	DataPrefix = "D:"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultMaxRetries     = 3
	DefaultRelayTimeout   = 5 * time.Second
	DefaultLookupTimeout  = 1200 * time.Millisecond
	DefaultLookupRounds   = 4
	DefaultDedupCapacity  = 1000
	DefaultMaxHandlers    = 64
	DefaultMaxMigrations  = 16
	DefaultRateLimit      = 500 // datagrams per second per source
	DefaultRateBurst      = 1000
	DefaultAdvertiseHost  = "127.0.0.1"
)

// PeerStore persists learned addresses between runs. It only seeds the
// directory; nothing in the data namespace is persisted.
type PeerStore interface {
	Put(name, addr string) error
	LoadAll(fn func(name, addr string) error) error
}

type Config struct {
	Name string // node name, must start with "N:"
	Port int    // UDP port; 0 picks an ephemeral port

	BindHost      string // listen host; empty binds all interfaces
	AdvertiseHost string // host published in the self address record

	// PortMin and PortMax restrict Port when either is non-zero.
	PortMin int
	PortMax int

	RequestTimeout time.Duration // per attempt
	MaxRetries     int           // attempts per request
	RelayTimeout   time.Duration // how long a relay waits for the inner reply

	LookupTimeout time.Duration // per nearest-node query, one attempt
	LookupRounds  int
	DisableLookup bool

	DedupCapacity int
	MaxHandlers   int64
	MaxMigrations int64

	RateLimit float64 // datagrams/sec per source, 0 disables
	RateBurst float64

	Network   netx.Network
	Logger    *zap.Logger
	Debug     bool // flag for showing hidden logs to debug
	Metrics   Metrics
	PeerStore PeerStore
}

func DefaultConfig() Config {
	return Config{
		AdvertiseHost:  DefaultAdvertiseHost,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		RelayTimeout:   DefaultRelayTimeout,
		LookupTimeout:  DefaultLookupTimeout,
		LookupRounds:   DefaultLookupRounds,
		DedupCapacity:  DefaultDedupCapacity,
		MaxHandlers:    DefaultMaxHandlers,
		MaxMigrations:  DefaultMaxMigrations,
		RateLimit:      DefaultRateLimit,
		RateBurst:      DefaultRateBurst,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AdvertiseHost == "" {
		c.AdvertiseHost = d.AdvertiseHost
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RelayTimeout == 0 {
		c.RelayTimeout = d.RelayTimeout
	}
	if c.LookupTimeout == 0 {
		c.LookupTimeout = d.LookupTimeout
	}
	if c.LookupRounds == 0 {
		c.LookupRounds = d.LookupRounds
	}
	if c.DedupCapacity == 0 {
		c.DedupCapacity = d.DedupCapacity
	}
	if c.MaxHandlers == 0 {
		c.MaxHandlers = d.MaxHandlers
	}
	if c.MaxMigrations == 0 {
		c.MaxMigrations = d.MaxMigrations
	}
	if c.RateBurst == 0 {
		c.RateBurst = c.RateLimit * 2
	}
	if c.Network == nil {
		c.Network = netx.NewUDPNetwork()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	return c
}

// Validate checks the name and port policy.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Name, NamePrefix) || len(c.Name) == len(NamePrefix) {
		return fmt.Errorf("%w: node name %q must start with %q", ErrConfiguration, c.Name, NamePrefix)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrConfiguration, c.Port)
	}
	if c.PortMin != 0 || c.PortMax != 0 {
		if c.PortMin > c.PortMax {
			return fmt.Errorf("%w: port range %d-%d is empty", ErrConfiguration, c.PortMin, c.PortMax)
		}
		if c.Port < c.PortMin || c.Port > c.PortMax {
			return fmt.Errorf("%w: port %d outside %d-%d", ErrConfiguration, c.Port, c.PortMin, c.PortMax)
		}
	}
	if c.RequestTimeout < 0 || c.RelayTimeout < 0 || c.LookupTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrConfiguration)
	}
	if c.MaxRetries < 0 || c.LookupRounds < 0 || c.DedupCapacity < 0 {
		return fmt.Errorf("%w: negative limit", ErrConfiguration)
	}
	if c.MaxHandlers < 0 || c.MaxMigrations < 0 || c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("%w: negative limit", ErrConfiguration)
	}
	return nil
}
