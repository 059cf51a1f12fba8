package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crn-node/internal/proto"
)

type pendingReply struct {
	want proto.Type
	ch   chan proto.Message
}

// correlator issues transaction ids and routes replies to their waiters.
// A reply matches when both its txid and its type agree with the request.
type correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingReply

	recent    [recentTxIDs]string
	recentPos int
	recentSet map[string]struct{}
}

func newCorrelator() *correlator {
	return &correlator{
		pending:   make(map[string]*pendingReply),
		recentSet: make(map[string]struct{}, recentTxIDs),
	}
}

// fresh returns an id that is neither pending nor recently issued.
func (c *correlator) fresh() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freshLocked()
}

func (c *correlator) freshLocked() string {
	for {
		id := NewTxID()
		if _, busy := c.pending[id]; busy {
			continue
		}
		if _, used := c.recentSet[id]; used {
			continue
		}
		if old := c.recent[c.recentPos]; old != "" {
			delete(c.recentSet, old)
		}
		c.recent[c.recentPos] = id
		c.recentPos = (c.recentPos + 1) % len(c.recent)
		c.recentSet[id] = struct{}{}
		return id
	}
}

// open issues a new id and registers a waiter for a reply of type want.
func (c *correlator) open(want proto.Type) (string, <-chan proto.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.freshLocked()
	p := &pendingReply{want: want, ch: make(chan proto.Message, 1)}
	c.pending[id] = p
	return id, p.ch
}

// register waits on an id chosen elsewhere, as relays do for the inner
// message. It fails when the id is already pending.
func (c *correlator) register(id string, want proto.Type) (<-chan proto.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.pending[id]; busy {
		return nil, false
	}
	p := &pendingReply{want: want, ch: make(chan proto.Message, 1)}
	c.pending[id] = p
	return p.ch, true
}

func (c *correlator) close(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// deliver hands msg to its waiter and reports whether one was found.
func (c *correlator) deliver(msg proto.Message) bool {
	c.mu.Lock()
	p := c.pending[msg.TxID]
	if p == nil || p.want != msg.Type {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, msg.TxID)
	c.mu.Unlock()

	select {
	case p.ch <- msg:
	default:
	}
	return true
}

func (c *correlator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// request sends typ+payload to the named peer and waits for the matching
// reply. The identical datagram is resent after each timeout, up to attempts
// sends in total. The reply is returned stamped with the request's own txid,
// also when it travelled through relays.
func (n *Node) request(ctx context.Context, dest string, typ proto.Type, payload string, timeout time.Duration, attempts int) (proto.Message, error) {
	want, ok := typ.Response()
	if !ok {
		return proto.Message{}, fmt.Errorf("p2p: %s is not a request type", typ)
	}
	if attempts <= 0 {
		attempts = 1
	}

	outerID, ch := n.corr.open(want)
	defer n.corr.close(outerID)

	inner := proto.Message{Type: typ, Payload: payload}
	datagram, innerID, addr, err := n.route(dest, inner, outerID)
	if err != nil {
		n.metrics.IncRPC(typ.String(), false)
		return proto.Message{}, err
	}
	raw := datagram.Bytes()

	start := time.Now()
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := n.writeTo(raw, addr); err != nil {
			n.metrics.IncRPC(typ.String(), false)
			return proto.Message{}, err
		}

		timer := time.NewTimer(timeout)
		select {
		case reply := <-ch:
			timer.Stop()
			n.metrics.IncRPC(typ.String(), true)
			return reply.WithTxID(innerID), nil
		case <-timer.C:
			n.Logf("%s to %s: no reply to attempt %d/%d", typ, dest, attempt, attempts)
		case <-ctx.Done():
			timer.Stop()
			n.metrics.IncRPC(typ.String(), false)
			return proto.Message{}, ctx.Err()
		case <-n.ctx.Done():
			timer.Stop()
			n.metrics.IncRPC(typ.String(), false)
			return proto.Message{}, ErrStopped
		}
	}

	n.metrics.IncRPC(typ.String(), false)
	return proto.Message{}, fmt.Errorf("%w: %s to %s after %d attempts in %s", ErrTimeout, typ, dest, attempts, time.Since(start).Round(time.Millisecond))
}

// call is request with the configured timeout and retry budget.
func (n *Node) call(ctx context.Context, dest string, typ proto.Type, payload string) (proto.Message, error) {
	return n.request(ctx, dest, typ, payload, n.cfg.RequestTimeout, n.cfg.MaxRetries)
}
