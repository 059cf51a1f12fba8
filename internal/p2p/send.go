package p2p

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"crn-node/internal/proto"
)

// route prepares msg for the named destination. Without relays msg is sent
// as is under outerID. With relays it is wrapped once per hop, the base hop
// outermost, and the result is addressed to the base hop. innerID is the
// txid the destination itself will see.
func (n *Node) route(dest string, msg proto.Message, outerID string) (datagram proto.Message, innerID, addr string, err error) {
	hops := n.relays.snapshot()
	if len(hops) == 0 {
		addr, ok := n.dir.Lookup(dest)
		if !ok {
			return proto.Message{}, "", "", fmt.Errorf("%w: %s", ErrAddress, dest)
		}
		msg.TxID = outerID
		return msg, outerID, addr, nil
	}

	addr, ok := n.dir.Lookup(hops[0])
	if !ok {
		return proto.Message{}, "", "", fmt.Errorf("%w: relay %s", ErrAddress, hops[0])
	}

	msg.TxID = n.corr.fresh()
	innerID = msg.TxID
	cur := msg
	for i := len(hops) - 1; i >= 0; i-- {
		next := dest
		if i < len(hops)-1 {
			next = hops[i+1]
		}
		id := outerID
		if i > 0 {
			id = n.corr.fresh()
		}
		cur = proto.Message{
			TxID:    id,
			Type:    proto.MsgRelay,
			Payload: proto.RelayPayload(next, cur.String()),
		}
	}
	return cur, innerID, addr, nil
}

// writeTo sends raw to a "host:port" address.
func (n *Node) writeTo(raw []byte, addr string) error {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAddress, addr, err)
	}
	return n.writeToAddr(raw, ua)
}

func (n *Node) writeToAddr(raw []byte, addr net.Addr) error {
	conn := n.packetConn()
	if conn == nil {
		return fmt.Errorf("%w: node not started", ErrNetwork)
	}
	if _, err := conn.WriteTo(raw, addr); err != nil {
		n.metrics.IncDropped("write_error")
		return fmt.Errorf("%w: write to %s: %v", ErrNetwork, addr, err)
	}
	return nil
}

// reply answers a request on the address it came from.
func (n *Node) reply(to net.Addr, txid string, typ proto.Type, payload string) {
	msg := proto.Message{TxID: txid, Type: typ, Payload: payload}
	if err := n.writeToAddr(msg.Bytes(), to); err != nil {
		n.log.Warn("reply failed", zap.String("to", to.String()), zap.Stringer("type", typ), zap.Error(err))
	}
}
