package p2p

import (
	"errors"
	"net"
	"strings"

	"crn-node/internal/dht"
	"crn-node/internal/kv"
	"crn-node/internal/proto"
)

func (n *Node) handleName(msg proto.Message, from net.Addr) {
	n.metrics.IncHandled(msg.Type.String())
	n.reply(from, msg.TxID, proto.MsgNameResponse, proto.NameResponse(n.cfg.Name))
}

func (n *Node) handleNearest(msg proto.Message, from net.Addr) {
	hashHex, err := proto.ParseNearestRequest(msg.Payload)
	if err != nil {
		n.Logf("bad nearest request from %s: %v", from, err)
		n.metrics.IncDropped("malformed")
		return
	}
	n.metrics.IncHandled(msg.Type.String())

	target, err := dht.ParseHashIDHex(hashHex)
	if err != nil {
		// An unparsable target gets an empty list rather than silence.
		n.reply(from, msg.TxID, proto.MsgNearestResponse, "")
		return
	}
	closest := n.dir.Closest(target, dht.K)
	peers := make([]proto.PeerAddr, 0, len(closest))
	for _, e := range closest {
		peers = append(peers, proto.PeerAddr{Name: e.Name, Addr: e.Addr})
	}
	n.reply(from, msg.TxID, proto.MsgNearestResponse, proto.NearestResponse(peers))
}

func (n *Node) handleExists(msg proto.Message, from net.Addr) {
	key, err := proto.ParseKeyRequest(msg.Payload)
	if err != nil {
		n.Logf("bad exists request from %s: %v", from, err)
		n.metrics.IncDropped("malformed")
		return
	}
	n.metrics.IncHandled(msg.Type.String())

	answer := proto.AnswerUnknown
	switch {
	case n.holds(key):
		answer = proto.AnswerYes
	case n.dir.IsAuthoritative(key):
		answer = proto.AnswerNo
	}
	n.reply(from, msg.TxID, proto.MsgExistsResponse, proto.ExistsResponse(answer))
}

func (n *Node) handleRead(msg proto.Message, from net.Addr) {
	key, err := proto.ParseKeyRequest(msg.Payload)
	if err != nil {
		n.Logf("bad read request from %s: %v", from, err)
		n.metrics.IncDropped("malformed")
		return
	}
	n.metrics.IncHandled(msg.Type.String())

	answer, value := proto.AnswerUnknown, ""
	if v, ok := n.localValue(key); ok {
		answer, value = proto.AnswerYes, v
	} else if n.dir.IsAuthoritative(key) {
		answer = proto.AnswerNo
	}
	n.reply(from, msg.TxID, proto.MsgReadResponse, proto.ReadResponse(answer, value))
}

func (n *Node) handleWrite(msg proto.Message, from net.Addr) {
	n.metrics.IncHandled(msg.Type.String())

	key, value, err := proto.ParseWriteRequest(msg.Payload)
	if err != nil {
		n.Logf("bad write request from %s: %v", from, err)
		n.reply(from, msg.TxID, proto.MsgWriteResponse, proto.WriteResponse(proto.WriteRejected))
		return
	}

	switch {
	case strings.HasPrefix(key, NamePrefix):
		added, err := n.learn(key, value)
		result := proto.WriteReplaced
		switch {
		case err != nil:
			result = proto.WriteRejected
		case added:
			result = proto.WriteAdded
		}
		n.reply(from, msg.TxID, proto.MsgWriteResponse, proto.WriteResponse(result))

	case strings.HasPrefix(key, DataPrefix):
		result := proto.WriteAdded
		if n.store.Put(key, value) {
			result = proto.WriteReplaced
		}
		n.metrics.SetStoreSize(n.store.Len())
		n.reply(from, msg.TxID, proto.MsgWriteResponse, proto.WriteResponse(result))
		if !n.dir.IsAuthoritative(key) {
			n.migrate(key, value)
		}

	default:
		n.reply(from, msg.TxID, proto.MsgWriteResponse, proto.WriteResponse(proto.WriteRejected))
	}
}

func (n *Node) handleCAS(msg proto.Message, from net.Addr) {
	n.metrics.IncHandled(msg.Type.String())

	key, expected, next, err := proto.ParseCASRequest(msg.Payload)
	if err != nil {
		n.Logf("bad cas request from %s: %v", from, err)
		n.reply(from, msg.TxID, proto.MsgCASResponse, proto.CASResponse(proto.CASRejected))
		return
	}
	result := n.localCAS(key, expected, next)
	n.reply(from, msg.TxID, proto.MsgCASResponse, proto.CASResponse(result))

	if (result == proto.CASReplaced || result == proto.CASAdded) &&
		strings.HasPrefix(key, DataPrefix) && !n.dir.IsAuthoritative(key) {
		n.migrate(key, next)
	}
}

// localCAS applies the compare-and-swap decision table to this node's
// state. Unknown prefixes are rejected.
func (n *Node) localCAS(key, expected, next string) proto.CASResult {
	mayCreate := func() bool { return n.dir.IsAuthoritative(key) }

	switch {
	case strings.HasPrefix(key, NamePrefix):
		return n.directoryCAS(key, expected, next, mayCreate)

	case strings.HasPrefix(key, DataPrefix):
		out := n.store.CompareAndSwap(key, expected, next, mayCreate)
		n.metrics.SetStoreSize(n.store.Len())
		switch out {
		case kv.Replaced:
			return proto.CASReplaced
		case kv.Added:
			return proto.CASAdded
		case kv.Mismatch:
			return proto.CASMismatch
		default:
			return proto.CASRejected
		}

	default:
		return proto.CASRejected
	}
}

func (n *Node) directoryCAS(name, expected, next string, mayCreate func() bool) proto.CASResult {
	present, swapped, err := n.dir.CompareAndSwap(name, expected, next)
	switch {
	case errors.Is(err, dht.ErrSelfEntry):
		return proto.CASRejected
	case swapped:
		n.persistPeer(name, next)
		return proto.CASReplaced
	case present:
		return proto.CASMismatch
	case !mayCreate():
		return proto.CASRejected
	}
	added, err := n.dir.AddIfAbsent(name, next)
	switch {
	case err != nil:
		return proto.CASRejected
	case !added:
		// Another writer created it first.
		return proto.CASMismatch
	}
	n.persistPeer(name, next)
	n.metrics.SetDirectorySize(n.dir.Len())
	return proto.CASAdded
}

// handleNameResponse learns an unsolicited greeting reply.
func (n *Node) handleNameResponse(msg proto.Message, from net.Addr) {
	name, err := proto.ParseNameResponse(msg.Payload)
	if err != nil || !strings.HasPrefix(name, NamePrefix) {
		n.metrics.IncDropped("malformed")
		return
	}
	n.metrics.IncHandled(msg.Type.String())
	if _, err := n.learn(name, from.String()); err != nil {
		n.Logf("ignoring greeting from %s: %v", from, err)
	}
}

// handleNearestResponse learns the entries of an unsolicited nearest reply.
func (n *Node) handleNearestResponse(msg proto.Message, from net.Addr) {
	peers, err := proto.ParseNearestResponse(msg.Payload)
	if err != nil {
		n.metrics.IncDropped("malformed")
		return
	}
	n.metrics.IncHandled(msg.Type.String())
	n.learnAll(peers)
}

// holds reports whether key is in the store or the directory.
func (n *Node) holds(key string) bool {
	if n.store.Has(key) {
		return true
	}
	_, ok := n.dir.Lookup(key)
	return ok
}

// localValue returns the local value of key from the namespace its prefix
// selects.
func (n *Node) localValue(key string) (string, bool) {
	if strings.HasPrefix(key, NamePrefix) {
		return n.dir.Lookup(key)
	}
	return n.store.Get(key)
}
