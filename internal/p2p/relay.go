package p2p

import (
	"fmt"
	"net"
	"sync"
	"time"

	"crn-node/internal/proto"
)

// relayStack holds the hops outgoing messages travel through. The base of
// the stack is the first hop.
type relayStack struct {
	mu   sync.Mutex
	hops []string
}

func (r *relayStack) push(name string) {
	r.mu.Lock()
	r.hops = append(r.hops, name)
	r.mu.Unlock()
}

func (r *relayStack) pop() {
	r.mu.Lock()
	if len(r.hops) > 0 {
		r.hops = r.hops[:len(r.hops)-1]
	}
	r.mu.Unlock()
}

func (r *relayStack) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.hops) == 0 {
		return nil
	}
	return append([]string(nil), r.hops...)
}

// PushRelay adds a hop to the relay stack. The name must already be known.
func (n *Node) PushRelay(name string) error {
	if _, ok := n.dir.Lookup(name); !ok {
		return fmt.Errorf("%w: relay %s", ErrAddress, name)
	}
	n.relays.push(name)
	return nil
}

// PopRelay removes the most recently pushed hop. It is a no-op on an empty
// stack.
func (n *Node) PopRelay() { n.relays.pop() }

// Relays returns the current hops, first hop first.
func (n *Node) Relays() []string { return n.relays.snapshot() }

// handleRelay forwards the embedded message to its target. For request-like
// messages it waits for one reply and passes it back under the outer txid.
func (n *Node) handleRelay(msg proto.Message, from net.Addr) {
	target, raw, err := proto.ParseRelayPayload(msg.Payload)
	if err != nil {
		n.Logf("bad relay from %s: %v", from, err)
		n.metrics.IncDropped("malformed")
		return
	}
	inner, err := proto.Parse([]byte(raw))
	if err != nil {
		n.Logf("bad embedded message from %s: %v", from, err)
		n.metrics.IncDropped("malformed")
		return
	}
	addr, ok := n.dir.Lookup(target)
	if !ok {
		n.Logf("relay target %s unknown", target)
		n.metrics.IncDropped("address")
		return
	}

	innermost := inner.Type
	if innermost == proto.MsgRelay {
		if innermost, ok = proto.InnermostType(raw); !ok {
			n.metrics.IncDropped("malformed")
			return
		}
	}
	want, requestLike := innermost.Response()

	var ch <-chan proto.Message
	if requestLike {
		if ch, ok = n.corr.register(inner.TxID, want); !ok {
			n.Logf("relay txid %q already pending, forwarding without waiting", inner.TxID)
			requestLike = false
		} else {
			defer n.corr.close(inner.TxID)
		}
	}

	if err := n.writeTo([]byte(raw), addr); err != nil {
		n.Logf("relay to %s failed: %v", target, err)
		return
	}
	n.metrics.IncHandled("relay")
	if !requestLike {
		return
	}

	timer := time.NewTimer(n.cfg.RelayTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		n.reply(from, msg.TxID, resp.Type, resp.Payload)
	case <-timer.C:
		n.Logf("relay to %s: no reply for %q within %s", target, inner.TxID, n.cfg.RelayTimeout)
	case <-n.ctx.Done():
	}
}
