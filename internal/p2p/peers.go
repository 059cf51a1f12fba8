package p2p

import (
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"crn-node/internal/dht"
	"crn-node/internal/proto"
)

// Learn records the address of a peer, as a greeting or a write of an N:
// key would.
func (n *Node) Learn(name, addr string) error {
	_, err := n.learn(name, addr)
	return err
}

func (n *Node) learn(name, addr string) (added bool, err error) {
	if !strings.HasPrefix(name, NamePrefix) {
		return false, fmt.Errorf("%w: %q is not a node name", ErrAddress, name)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrAddress, addr, err)
	}

	prev, known := n.dir.Lookup(name)
	added, err = n.dir.Upsert(name, addr)
	if err != nil {
		return false, err
	}
	if added {
		n.Logf("learned %s at %s", name, addr)
		n.metrics.SetDirectorySize(n.dir.Len())
	}
	if !known || prev != addr {
		n.persistPeer(name, addr)
	}
	return added, nil
}

func (n *Node) learnAll(peers []proto.PeerAddr) (added int) {
	for _, p := range peers {
		if p.Name == n.cfg.Name {
			continue
		}
		ok, err := n.learn(p.Name, p.Addr)
		if err != nil {
			n.Logf("skipping peer %q: %v", p.Name, err)
			continue
		}
		if ok {
			added++
		}
	}
	return added
}

// Peers returns a snapshot of the directory in name order, self included.
func (n *Node) Peers() []dht.Entry { return n.dir.Entries() }

func (n *Node) persistPeer(name, addr string) {
	if n.cfg.PeerStore == nil {
		return
	}
	if err := n.cfg.PeerStore.Put(name, addr); err != nil {
		n.log.Warn("persist peer failed", zap.String("peer", name), zap.Error(err))
	}
}

// loadPeers seeds the directory from the peer store.
func (n *Node) loadPeers() {
	if n.cfg.PeerStore == nil {
		return
	}
	loaded := 0
	err := n.cfg.PeerStore.LoadAll(func(name, addr string) error {
		if name == n.cfg.Name || !strings.HasPrefix(name, NamePrefix) {
			return nil
		}
		if _, err := n.dir.Upsert(name, addr); err == nil {
			loaded++
		}
		return nil
	})
	if err != nil {
		n.log.Warn("load peers failed", zap.Error(err))
	}
	if loaded > 0 {
		n.log.Info("loaded peers", zap.Int("count", loaded))
		n.metrics.SetDirectorySize(n.dir.Len())
	}
}
