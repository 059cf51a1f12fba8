package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crn-node/internal/dht"
	"crn-node/internal/proto"
)

func TestNew_ConfigurationErrors(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
	}{
		{"missing prefix", func(c *Config) { c.Name = "node" }},
		{"bare prefix", func(c *Config) { c.Name = "N:" }},
		{"port below policy", func(c *Config) { c.PortMin, c.PortMax, c.Port = 20110, 20130, 20000 }},
		{"port above policy", func(c *Config) { c.PortMin, c.PortMax, c.Port = 20110, 20130, 20131 }},
		{"ephemeral under policy", func(c *Config) { c.PortMin, c.PortMax, c.Port = 20110, 20130, 0 }},
		{"inverted range", func(c *Config) { c.PortMin, c.PortMax, c.Port = 20130, 20110, 20120 }},
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Name = "N:test"
			tc.mod(&cfg)
			n, err := New(cfg)
			require.Error(t, err)
			assert.Nil(t, n)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestStart_EphemeralPort(t *testing.T) {
	n := newTestNode(t, "N:alpha")

	addr := n.Addr()
	require.NotEmpty(t, addr)
	assert.NotEqual(t, "127.0.0.1:0", addr)

	self, ok := n.dir.Lookup("N:alpha")
	require.True(t, ok)
	assert.Equal(t, addr, self)

	assert.Error(t, n.Start(), "second Start must fail")
}

func TestStop_Idempotent(t *testing.T) {
	n := newTestNode(t, "N:alpha")
	require.NoError(t, n.Stop())
	require.NoError(t, n.Stop())

	_, err := n.call(context.Background(), "N:alpha", proto.MsgNameRequest, "")
	assert.Error(t, err)
}

// A lone node keeps everything it writes.
func TestScenarioA_LoneWriterReader(t *testing.T) {
	x := newTestNode(t, "N:x")
	ctx := context.Background()

	require.True(t, x.Write(ctx, "D:greeting", "hello"))
	v, ok := x.Read(ctx, "D:greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", v)
	assert.True(t, x.Exists(ctx, "D:greeting"))

	_, ok = x.Read(ctx, "D:missing")
	assert.False(t, ok)
	assert.False(t, x.Exists(ctx, "D:missing"))

	assert.False(t, x.Write(ctx, "Q:bad-prefix", "v"))
}

// keyCloserTo finds a data key whose hash is closer to near than to far.
func keyCloserTo(t *testing.T, near, far string) string {
	t.Helper()
	nh, fh := dht.HashOf(near), dht.HashOf(far)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("D:key-%d", i)
		k := dht.HashOf(key)
		if dht.DistanceLess(dht.Distance(k, nh), dht.Distance(k, fh)) {
			return key
		}
	}
	t.Fatalf("no key closer to %s than %s", near, far)
	return ""
}

func TestScenarioB_TwoPeers(t *testing.T) {
	a := newTestNode(t, "N:a")
	b := newTestNode(t, "N:b")
	introduce(t, a, b)
	ctx := context.Background()

	key := keyCloserTo(t, "N:b", "N:a")
	require.True(t, a.Write(ctx, key, "v"))

	eventually(t, 2*time.Second, func() bool {
		v, ok := b.Get(key)
		return ok && v == "v"
	}, "b should hold the value")

	assert.True(t, a.Exists(ctx, key))
	v, ok := a.Read(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	// b answers authoritatively for keys it does not hold.
	other := keyCloserTo(t, "N:b", "N:a") + "-absent"
	assert.False(t, a.Exists(ctx, other))
}

// keyAwayFrom finds a data key whose closest set among self and others
// leaves self out, and returns others ordered by distance to it.
func keyAwayFrom(t *testing.T, self string, others ...string) (string, []string) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("D:walk-%d", i)
		entries := []dht.Entry{{Name: self, ID: dht.HashOf(self)}}
		for _, name := range others {
			entries = append(entries, dht.Entry{Name: name, ID: dht.HashOf(name)})
		}
		dht.SortByDistance(entries, dht.HashOf(key))
		if entries[len(entries)-1].Name != self {
			continue
		}
		ordered := make([]string, 0, len(others))
		for _, e := range entries[:len(others)] {
			ordered = append(ordered, e.Name)
		}
		return key, ordered
	}
	t.Fatalf("no key keeps %s out of the closest set", self)
	return "", nil
}

// Read and Exists ask every candidate in distance order until one answers Y.
func TestReadExists_WalkPastNoAndUnknown(t *testing.T) {
	a := newTestNode(t, "N:a", WithoutLookup())
	key, order := keyAwayFrom(t, "N:a", "N:b", "N:c", "N:d")
	ctx := context.Background()

	answers := []proto.Answer{proto.AnswerNo, proto.AnswerUnknown, proto.AnswerYes}
	peers := make([]*scriptedPeer, len(order))
	for i, name := range order {
		peers[i] = newScriptedPeer(t, answers[i], "found")
		require.NoError(t, a.Learn(name, peers[i].Addr()))
	}

	assert.True(t, a.Exists(ctx, key), "N from %s and ? from %s must not end the walk", order[0], order[1])
	v, ok := a.Read(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "found", v)

	for i, p := range peers {
		assert.Equal(t, int32(2), p.asked.Load(), "%s should be asked once per operation", order[i])
	}
	_, cached := a.Get(key)
	assert.False(t, cached, "a non-authoritative reader keeps no copy")
}

func TestReadExists_AllUnknownIsAbsent(t *testing.T) {
	a := newTestNode(t, "N:a", WithoutLookup())
	key, order := keyAwayFrom(t, "N:a", "N:b", "N:c", "N:d")
	ctx := context.Background()

	peers := make([]*scriptedPeer, len(order))
	for i, name := range order {
		answer := proto.AnswerUnknown
		if i == 0 {
			answer = proto.AnswerNo
		}
		peers[i] = newScriptedPeer(t, answer, "never")
		require.NoError(t, a.Learn(name, peers[i].Addr()))
	}

	assert.False(t, a.Exists(ctx, key))
	_, ok := a.Read(ctx, key)
	assert.False(t, ok)
	for i, p := range peers {
		assert.Equal(t, int32(2), p.asked.Load(), "%s should be asked by both operations", order[i])
	}
}

func TestScenarioC_UnreachableIsBounded(t *testing.T) {
	a := newTestNode(t, "N:a", WithTimeouts(100*time.Millisecond, 100*time.Millisecond), WithoutLookup())
	sink := newRawPeer(t) // never answers
	require.NoError(t, a.Learn("N:ghost", sink.Addr()))

	start := time.Now()
	_, ok := a.Read(context.Background(), "D:whatever")
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 3*100*time.Millisecond, "all attempts must be used")
	assert.Less(t, elapsed, 2*time.Second)

	// Each attempt resends the identical datagram.
	first, ok := sink.recv(time.Second)
	require.True(t, ok)
	for i := 0; i < 2; i++ {
		again, ok := sink.recv(time.Second)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}

func TestRequest_TimeoutError(t *testing.T) {
	a := newTestNode(t, "N:a", WithTimeouts(50*time.Millisecond, 50*time.Millisecond))
	sink := newRawPeer(t)
	require.NoError(t, a.Learn("N:ghost", sink.Addr()))

	_, err := a.call(context.Background(), "N:ghost", proto.MsgNameRequest, "")
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)

	_, err = a.call(context.Background(), "N:nobody", proto.MsgNameRequest, "")
	assert.True(t, errors.Is(err, ErrAddress), "got %v", err)
}

func TestRequest_ContextCancel(t *testing.T) {
	a := newTestNode(t, "N:a", WithTimeouts(5*time.Second, time.Second))
	sink := newRawPeer(t)
	require.NoError(t, a.Learn("N:ghost", sink.Addr()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := a.call(ctx, "N:ghost", proto.MsgNameRequest, "")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, 0, a.Stats().Pending)
}

func TestIsActive(t *testing.T) {
	a := newTestNode(t, "N:a", WithTimeouts(100*time.Millisecond, 100*time.Millisecond))
	b := newTestNode(t, "N:b")
	introduce(t, a, b)
	ctx := context.Background()

	assert.True(t, a.IsActive(ctx, "N:b"))
	assert.True(t, a.IsActive(ctx, "N:a"))
	assert.False(t, a.IsActive(ctx, "N:unknown"))

	// A live peer that answers with another name is not the one asked for.
	require.NoError(t, a.Learn("N:impostor", b.Addr()))
	assert.False(t, a.IsActive(ctx, "N:impostor"))

	require.NoError(t, b.Stop())
	assert.False(t, a.IsActive(ctx, "N:b"))
}

func TestPump_BoundedAndUnbounded(t *testing.T) {
	a := newTestNode(t, "N:a")

	start := time.Now()
	require.NoError(t, a.Pump(context.Background(), 100*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// Traffic keeps the pump running.
	raw := newRawPeer(t)
	stop := make(chan struct{})
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				_, _ = raw.conn.WriteTo([]byte("zz I"), a.LocalAddr())
			}
		}
	}()
	start = time.Now()
	time.AfterFunc(300*time.Millisecond, func() { close(stop) })
	require.NoError(t, a.Pump(context.Background(), 100*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Pump(ctx, 0), context.DeadlineExceeded)
}

func TestLookup_LearnsPeersOfPeers(t *testing.T) {
	m := &AtomicMetrics{}
	a := newTestNode(t, "N:a", WithMetrics(m))
	b := newTestNode(t, "N:b")
	c := newTestNode(t, "N:c")
	introduce(t, a, b)
	introduce(t, b, c)

	_, known := a.dir.Lookup("N:c")
	require.False(t, known)

	a.Exists(context.Background(), "D:anything")

	addr, known := a.dir.Lookup("N:c")
	require.True(t, known, "lookup should learn c through b")
	assert.Equal(t, c.Addr(), addr)
	assert.Equal(t, uint64(1), m.Snapshot()["lookups"])
}

func TestCompareAndSwap_TwoNodes(t *testing.T) {
	a := newTestNode(t, "N:a")
	b := newTestNode(t, "N:b")
	introduce(t, a, b)
	ctx := context.Background()

	require.True(t, a.CompareAndSwap(ctx, "D:cas", "", "v1"), "absent key is created by authorities")
	v, ok := b.Get("D:cas")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	assert.False(t, a.CompareAndSwap(ctx, "D:cas", "wrong", "v2"))
	assert.True(t, b.CompareAndSwap(ctx, "D:cas", "v1", "v2"))

	v, ok = a.Read(ctx, "D:cas")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestWrite_NameKeyUpdatesDirectory(t *testing.T) {
	a := newTestNode(t, "N:a")
	b := newTestNode(t, "N:b")
	introduce(t, a, b)
	ctx := context.Background()

	require.True(t, a.Write(ctx, "N:far", "10.1.2.3:20115"))
	eventually(t, time.Second, func() bool {
		addr, ok := b.dir.Lookup("N:far")
		return ok && addr == "10.1.2.3:20115"
	}, "b should learn N:far")

	v, ok := a.Read(ctx, "N:far")
	require.True(t, ok)
	assert.Equal(t, "10.1.2.3:20115", v)
}

func TestWrite_SelfNameAnnounces(t *testing.T) {
	a := newTestNode(t, "N:a")
	b := newTestNode(t, "N:b")
	require.NoError(t, b.Learn("N:a", a.Addr()))
	require.NoError(t, a.Learn("N:b", b.Addr()))
	ctx := context.Background()

	require.True(t, a.Write(ctx, "N:a", "10.9.8.7:20110"))
	eventually(t, time.Second, func() bool {
		addr, ok := b.dir.Lookup("N:a")
		return ok && addr == "10.9.8.7:20110"
	}, "b should learn the announced address")

	self, _ := a.dir.Lookup("N:a")
	assert.Equal(t, a.Addr(), self, "the local self entry is kept")
}

func TestUnreachablePeer_WriteFallsBackLocally(t *testing.T) {
	a := newTestNode(t, "N:a", WithTimeouts(50*time.Millisecond, 50*time.Millisecond), WithoutLookup())
	sink := newRawPeer(t)
	require.NoError(t, a.Learn("N:ghost", sink.Addr()))

	require.True(t, a.Write(context.Background(), "D:k", "v"))
	v, ok := a.Get("D:k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestStats(t *testing.T) {
	a := newTestNode(t, "N:a")
	b := newTestNode(t, "N:b")
	introduce(t, a, b)
	require.NoError(t, a.PushRelay("N:b"))

	require.True(t, a.Write(context.Background(), "D:s", "1"))
	s := a.Stats()
	assert.Equal(t, 2, s.Peers)
	assert.Equal(t, 1, s.Relays)
	assert.Equal(t, 0, s.Pending)
}

type memPeerStore struct {
	mu    sync.Mutex
	peers map[string]string
}

func (m *memPeerStore) Put(name, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[name] = addr
	return nil
}

func (m *memPeerStore) LoadAll(fn func(name, addr string) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, addr := range m.peers {
		if err := fn(name, addr); err != nil {
			return err
		}
	}
	return nil
}

func (m *memPeerStore) get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.peers[name]
	return addr, ok
}

func TestPeerStore_LoadedAtStartAndPersisted(t *testing.T) {
	ps := &memPeerStore{peers: map[string]string{
		"N:old": "127.0.0.1:20111",
		"N:a":   "10.0.0.1:1",
		"bogus": "127.0.0.1:1",
	}}
	a := newTestNode(t, "N:a", func(c *Config) { c.PeerStore = ps })

	addr, ok := a.dir.Lookup("N:old")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:20111", addr)
	self, _ := a.dir.Lookup("N:a")
	assert.Equal(t, a.Addr(), self, "a stored self entry is ignored")
	_, ok = a.dir.Lookup("bogus")
	assert.False(t, ok)

	require.NoError(t, a.Learn("N:new", "127.0.0.1:20112"))
	got, ok := ps.get("N:new")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:20112", got)
}
