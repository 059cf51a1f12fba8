package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"crn-node/internal/dht"
	"crn-node/internal/kv"
)

// Node is one peer of the key-value network. It owns a single UDP socket,
// the routing directory and the local shard of the data namespace.
type Node struct {
	cfg     Config
	log     *zap.Logger
	sugar   *zap.SugaredLogger
	metrics Metrics

	dir   *dht.Directory
	store *kv.Store

	connMu sync.RWMutex
	conn   net.PacketConn
	addr   string

	corr    *correlator
	seen    *seenCache
	limiter *sourceLimiter
	relays  relayStack

	handlers   *semaphore.Weighted
	migrations *semaphore.Weighted

	activity chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New validates cfg and builds a node. No socket is opened until Start.
func New(cfg Config) (*Node, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger.With(zap.String("node", cfg.Name))
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:        cfg,
		log:        log,
		sugar:      log.Sugar(),
		metrics:    cfg.Metrics,
		dir:        dht.NewDirectory(cfg.Name, net.JoinHostPort(cfg.AdvertiseHost, strconv.Itoa(cfg.Port))),
		store:      kv.NewStore(),
		corr:       newCorrelator(),
		seen:       newSeenCache(cfg.DedupCapacity),
		limiter:    newSourceLimiter(cfg.RateLimit, cfg.RateBurst),
		handlers:   semaphore.NewWeighted(cfg.MaxHandlers),
		migrations: semaphore.NewWeighted(cfg.MaxMigrations),
		activity:   make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	return n, nil
}

// Name returns this node's name.
func (n *Node) Name() string { return n.cfg.Name }

// Addr returns the advertised "host:port" of this node.
func (n *Node) Addr() string {
	n.connMu.RLock()
	defer n.connMu.RUnlock()
	if n.addr == "" {
		addr, _ := n.dir.Lookup(n.cfg.Name)
		return addr
	}
	return n.addr
}

// LocalAddr returns the bound socket address, or nil before Start.
func (n *Node) LocalAddr() net.Addr {
	conn := n.packetConn()
	if conn == nil {
		return nil
	}
	return conn.LocalAddr()
}

func (n *Node) packetConn() net.PacketConn {
	n.connMu.RLock()
	defer n.connMu.RUnlock()
	return n.conn
}

// Start opens the socket, seeds the directory from the peer store and
// begins serving datagrams.
func (n *Node) Start() error {
	err := errors.New("p2p: node already started")
	n.startOnce.Do(func() { err = n.start() })
	return err
}

func (n *Node) start() error {
	if n.ctx.Err() != nil {
		return ErrStopped
	}
	conn, err := n.cfg.Network.ListenPacket(n.cfg.BindHost, n.cfg.Port)
	if err != nil {
		return fmt.Errorf("%w: listen on port %d: %v", ErrNetwork, n.cfg.Port, err)
	}

	port := n.cfg.Port
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		port = ua.Port
	}
	addr := net.JoinHostPort(n.cfg.AdvertiseHost, strconv.Itoa(port))

	n.connMu.Lock()
	n.conn = conn
	n.addr = addr
	n.connMu.Unlock()
	n.dir.SetSelfAddr(addr)

	n.loadPeers()
	n.log.Info("listening", zap.String("addr", addr), zap.String("hash", dht.HashOf(n.cfg.Name).Hex()))

	n.wg.Add(1)
	go n.readLoop()
	return nil
}

// Stop closes the socket and waits for handlers and migrations to finish.
func (n *Node) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		n.cancel()
		if conn := n.packetConn(); conn != nil {
			err = conn.Close()
		}
		n.wg.Wait()
		_ = n.log.Sync()
	})
	return err
}
