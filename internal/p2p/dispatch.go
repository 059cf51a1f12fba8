package p2p

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"crn-node/internal/proto"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 64 * 1024

func (n *Node) readLoop() {
	defer n.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		nr, from, err := n.conn.ReadFrom(buf)
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			n.log.Warn("read failed", zap.Error(err))
			continue
		}
		n.markActivity()

		raw := make([]byte, nr)
		copy(raw, buf[:nr])
		n.dispatch(raw, from)
	}
}

func (n *Node) markActivity() {
	select {
	case n.activity <- struct{}{}:
	default:
	}
}

// dispatch decodes one datagram and hands it to a waiter or a handler.
// Nothing here fails the loop: bad or surplus datagrams are dropped.
func (n *Node) dispatch(raw []byte, from net.Addr) {
	msg, err := proto.Parse(raw)
	if err != nil {
		n.Logf("drop datagram from %s: %v", from, err)
		n.metrics.IncDropped("malformed")
		return
	}

	if msg.Type.IsResponse() && n.corr.deliver(msg) {
		return
	}

	if n.seen.Seen(seenKey{src: from.String(), txid: msg.TxID, typ: msg.Type}) {
		n.Logf("duplicate %s %q from %s", msg.Type, msg.TxID, from)
		n.metrics.IncDropped("duplicate")
		return
	}
	if !n.limiter.allow(from.String(), time.Now()) {
		n.metrics.IncDropped("rate_limited")
		return
	}
	if !n.handlers.TryAcquire(1) {
		n.Logf("handler pool full, dropping %s from %s", msg.Type, from)
		n.metrics.IncDropped("saturated")
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.handlers.Release(1)
		n.handle(msg, from)
	}()
}

func (n *Node) handle(msg proto.Message, from net.Addr) {
	switch msg.Type {
	case proto.MsgNameRequest:
		n.handleName(msg, from)
	case proto.MsgNearestRequest:
		n.handleNearest(msg, from)
	case proto.MsgExistsRequest:
		n.handleExists(msg, from)
	case proto.MsgReadRequest:
		n.handleRead(msg, from)
	case proto.MsgWriteRequest:
		n.handleWrite(msg, from)
	case proto.MsgCASRequest:
		n.handleCAS(msg, from)
	case proto.MsgRelay:
		n.handleRelay(msg, from)
	case proto.MsgNameResponse:
		n.handleNameResponse(msg, from)
	case proto.MsgNearestResponse:
		n.handleNearestResponse(msg, from)
	case proto.MsgInformation:
		n.metrics.IncHandled(msg.Type.String())
	case proto.MsgExistsResponse, proto.MsgReadResponse, proto.MsgWriteResponse, proto.MsgCASResponse:
		n.Logf("late %s %q from %s", msg.Type, msg.TxID, from)
		n.metrics.IncDropped("late_reply")
	default:
		n.metrics.IncDropped("unknown_type")
	}
}

// Pump waits for inbound traffic to settle. With delay > 0 it returns once
// no datagram has arrived for delay. With delay == 0 it blocks until ctx is
// done or the node stops. Datagrams are served in the background either
// way; Pump only gives callers a way to wait on them.
func (n *Node) Pump(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.ctx.Done():
			return nil
		}
	}

	select {
	case <-n.activity:
	default:
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-n.activity:
			timer.Reset(delay)
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-n.ctx.Done():
			return nil
		}
	}
}
