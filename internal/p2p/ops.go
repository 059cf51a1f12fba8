package p2p

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"crn-node/internal/dht"
	"crn-node/internal/proto"
)

// candidates returns the closest set of key without self, and whether self
// belongs to it.
func (n *Node) candidates(key string) (others []dht.Entry, selfMember bool) {
	for _, e := range n.dir.Closest(dht.HashOf(key), dht.K) {
		if e.Name == n.cfg.Name {
			selfMember = true
			continue
		}
		others = append(others, e)
	}
	return others, selfMember
}

func (n *Node) remoteCandidates(key string) []dht.Entry {
	others, _ := n.candidates(key)
	return others
}

func validKey(key string) bool {
	return (strings.HasPrefix(key, NamePrefix) || strings.HasPrefix(key, DataPrefix)) && len(key) > len(NamePrefix)
}

// IsActive greets the named peer and reports whether it answers with that
// name. Unknown names are inactive without any traffic.
func (n *Node) IsActive(ctx context.Context, name string) bool {
	if name == n.cfg.Name {
		return n.packetConn() != nil && n.ctx.Err() == nil
	}
	if _, ok := n.dir.Lookup(name); !ok {
		return false
	}
	resp, err := n.call(ctx, name, proto.MsgNameRequest, "")
	if err != nil {
		n.Logf("isActive %s: %v", name, err)
		return false
	}
	got, err := proto.ParseNameResponse(resp.Payload)
	return err == nil && got == name
}

// Exists reports whether key is present locally or at any member of the
// closest set. Members are asked in distance order; N and ? move on to the
// next one.
func (n *Node) Exists(ctx context.Context, key string) bool {
	if n.holds(key) {
		return true
	}
	n.lookup(ctx, key)

	payload := proto.KeyRequest(key)
	for _, e := range n.remoteCandidates(key) {
		resp, err := n.call(ctx, e.Name, proto.MsgExistsRequest, payload)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			continue
		}
		answer, err := proto.ParseExistsResponse(resp.Payload)
		if err == nil && answer == proto.AnswerYes {
			return true
		}
	}
	return false
}

// Read returns the value of key. Local values are returned without network
// traffic; otherwise the closest set is asked in distance order.
func (n *Node) Read(ctx context.Context, key string) (string, bool) {
	if v, ok := n.localValue(key); ok {
		return v, true
	}
	n.lookup(ctx, key)

	payload := proto.KeyRequest(key)
	for _, e := range n.remoteCandidates(key) {
		resp, err := n.call(ctx, e.Name, proto.MsgReadRequest, payload)
		if err != nil {
			if ctx.Err() != nil {
				return "", false
			}
			continue
		}
		answer, value, err := proto.ParseReadResponse(resp.Payload)
		if err != nil || answer != proto.AnswerYes {
			continue
		}
		n.cache(key, value)
		return value, true
	}

	// A copy held here without authority belongs to the closest set.
	if v, ok := n.store.Get(key); ok && !n.dir.IsAuthoritative(key) {
		n.migrate(key, v)
	}
	return "", false
}

// cache keeps a value read from a peer when this node is one of the key's
// replicas.
func (n *Node) cache(key, value string) {
	switch {
	case strings.HasPrefix(key, NamePrefix):
		_, _ = n.learn(key, value)
	case n.dir.IsAuthoritative(key):
		n.store.Put(key, value)
		n.metrics.SetStoreSize(n.store.Len())
	}
}

// Write stores key=value on the closest set. It applies the value locally
// when this node belongs to the set or no other peer is known, and falls
// back to a local copy when no peer accepts it. It returns false only for
// keys outside the N: and D: namespaces. Writing the node's own name
// announces value as its address to the closest set.
func (n *Node) Write(ctx context.Context, key, value string) bool {
	if !validKey(key) {
		return false
	}
	n.lookup(ctx, key)

	others, selfMember := n.candidates(key)
	if selfMember || len(others) == 0 {
		if !n.writeLocal(key, value) {
			return false
		}
	}
	if len(others) == 0 {
		return true
	}

	if n.forwardWrite(ctx, key, value, others) {
		return true
	}
	n.Logf("write %s: no peer accepted, keeping local copy", key)
	return n.writeLocal(key, value)
}

func (n *Node) writeLocal(key, value string) bool {
	if key == n.cfg.Name {
		// The self entry is fixed at Start.
		return true
	}
	if strings.HasPrefix(key, NamePrefix) {
		_, err := n.learn(key, value)
		return err == nil
	}
	n.store.Put(key, value)
	n.metrics.SetStoreSize(n.store.Len())
	return true
}

// CompareAndSwap sets key to next where it currently equals expected. The
// decision is taken by every member of the closest set; the call succeeds
// when any of them replaced or created the value.
func (n *Node) CompareAndSwap(ctx context.Context, key, expected, next string) bool {
	if !validKey(key) {
		return false
	}
	n.lookup(ctx, key)

	others, selfMember := n.candidates(key)
	success := false
	if selfMember || len(others) == 0 {
		res := n.localCAS(key, expected, next)
		success = res == proto.CASReplaced || res == proto.CASAdded
	}

	payload := proto.CASRequest(key, expected, next)
	var mu sync.Mutex
	var g errgroup.Group
	for _, e := range others {
		g.Go(func() error {
			resp, err := n.call(ctx, e.Name, proto.MsgCASRequest, payload)
			if err != nil {
				n.Logf("cas %s at %s: %v", key, e.Name, err)
				return nil
			}
			res, err := proto.ParseCASResponse(resp.Payload)
			if err != nil {
				return nil
			}
			if res == proto.CASReplaced || res == proto.CASAdded {
				mu.Lock()
				success = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return success
}

// Stats is a point-in-time view of the node's state.
type Stats struct {
	Peers   int // directory entries, self included
	Keys    int // values held locally
	Pending int // outstanding requests
	Seen    int // dedup entries
	Relays  int
}

func (n *Node) Stats() Stats {
	return Stats{
		Peers:   n.dir.Len(),
		Keys:    n.store.Len(),
		Pending: n.corr.pendingCount(),
		Seen:    n.seen.Len(),
		Relays:  len(n.relays.snapshot()),
	}
}

// Get returns the local value of a data key without touching the network.
func (n *Node) Get(key string) (string, bool) { return n.store.Get(key) }
