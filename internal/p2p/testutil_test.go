package p2p

import (
	"errors"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crn-node/internal/proto"
)

type nodeTestOpt func(*Config)

// WithTimeouts shortens request and relay timeouts.
func WithTimeouts(request, relay time.Duration) nodeTestOpt {
	return func(cfg *Config) {
		cfg.RequestTimeout = request
		cfg.RelayTimeout = relay
	}
}

// WithoutLookup skips nearest-node lookups before remote operations.
func WithoutLookup() nodeTestOpt {
	return func(cfg *Config) { cfg.DisableLookup = true }
}

// WithMetrics installs m.
func WithMetrics(m Metrics) nodeTestOpt {
	return func(cfg *Config) { cfg.Metrics = m }
}

// newTestNode spins up a node bound to an ephemeral localhost port and auto-stops it.
func newTestNode(t *testing.T, name string, opts ...nodeTestOpt) *Node {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Name = name
	cfg.BindHost = "127.0.0.1"
	cfg.RequestTimeout = 300 * time.Millisecond
	cfg.RelayTimeout = 600 * time.Millisecond
	cfg.LookupTimeout = 200 * time.Millisecond
	cfg.RateLimit = 0
	cfg.Debug = true

	for _, opt := range opts {
		opt(&cfg)
	}

	n, err := New(cfg)
	require.NoError(t, err, "New(%s)", name)
	require.NoError(t, n.Start(), "Start(%s)", name)

	t.Cleanup(func() { _ = n.Stop() })
	return n
}

// introduce makes every node know every other node.
func introduce(t *testing.T, nodes ...*Node) {
	t.Helper()
	for _, a := range nodes {
		for _, b := range nodes {
			if a == b {
				continue
			}
			require.NoError(t, a.Learn(b.Name(), b.Addr()))
		}
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

// rawPeer is a bare UDP socket that speaks the wire format by hand.
type rawPeer struct {
	t    *testing.T
	conn net.PacketConn
}

func newRawPeer(t *testing.T) *rawPeer {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rawPeer{t: t, conn: conn}
}

func (r *rawPeer) Addr() string { return r.conn.LocalAddr().String() }

func (r *rawPeer) send(to, datagram string) {
	r.t.Helper()
	ua, err := net.ResolveUDPAddr("udp", to)
	require.NoError(r.t, err)
	_, err = r.conn.WriteTo([]byte(datagram), ua)
	require.NoError(r.t, err)
}

// recv returns the next datagram, or false after timeout.
func (r *rawPeer) recv(timeout time.Duration) (string, bool) {
	r.t.Helper()
	buf := make([]byte, maxDatagram)
	_ = r.conn.SetReadDeadline(time.Now().Add(timeout))
	n, _, err := r.conn.ReadFrom(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
			return "", false
		}
		r.t.Fatalf("raw read: %v", err)
	}
	return string(buf[:n]), true
}

// scriptedPeer is a raw peer that answers every E and R request with a
// fixed answer. The value is only sent with Y.
type scriptedPeer struct {
	*rawPeer
	answer proto.Answer
	value  string
	asked  atomic.Int32
}

func newScriptedPeer(t *testing.T, answer proto.Answer, value string) *scriptedPeer {
	t.Helper()
	p := &scriptedPeer{rawPeer: newRawPeer(t), answer: answer, value: value}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go p.serve(done, stopped)
	t.Cleanup(func() {
		close(done)
		<-stopped
	})
	return p
}

func (p *scriptedPeer) serve(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-done:
			return
		default:
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		nr, from, err := p.conn.ReadFrom(buf)
		if err != nil {
			continue
		}
		msg, err := proto.Parse(buf[:nr])
		if err != nil {
			continue
		}

		var payload string
		var typ proto.Type
		switch msg.Type {
		case proto.MsgExistsRequest:
			typ, payload = proto.MsgExistsResponse, proto.ExistsResponse(p.answer)
		case proto.MsgReadRequest:
			value := ""
			if p.answer == proto.AnswerYes {
				value = p.value
			}
			typ, payload = proto.MsgReadResponse, proto.ReadResponse(p.answer, value)
		default:
			continue
		}
		p.asked.Add(1)
		reply := proto.Message{TxID: msg.TxID, Type: typ, Payload: payload}
		_, _ = p.conn.WriteTo(reply.Bytes(), from)
	}
}
