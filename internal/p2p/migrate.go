package p2p

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crn-node/internal/dht"
	"crn-node/internal/proto"
)

// migrate hands a value this node is not authoritative for to the key's
// closest set. The local copy is dropped first, unless a newer value has
// replaced it meanwhile, and restored when no target accepts the value.
// Forwards run in the background, bounded by the migration semaphore, each
// with its own retransmission budget.
func (n *Node) migrate(key, value string) {
	targets := n.remoteCandidates(key)
	if len(targets) == 0 {
		return
	}
	if !n.store.DeleteIf(key, value) {
		return
	}
	n.metrics.SetStoreSize(n.store.Len())
	n.Logf("migrating %s to %d peers", key, len(targets))

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.migrations.Acquire(n.ctx, 1); err != nil {
			return
		}
		defer n.migrations.Release(1)

		ok := n.forwardWrite(n.ctx, key, value, targets)
		n.metrics.IncMigration(ok)
		if !ok {
			// Keep the value here unless something newer arrived.
			n.store.CompareAndSwap(key, value, value, func() bool { return true })
			n.metrics.SetStoreSize(n.store.Len())
			n.log.Warn("migration found no taker, kept local copy", zap.String("key", key), zap.Int("targets", len(targets)))
		}
	}()
}

// forwardWrite sends W to every target concurrently and reports whether at
// least one accepted it.
func (n *Node) forwardWrite(ctx context.Context, key, value string, targets []dht.Entry) bool {
	payload := proto.WriteRequest(key, value)
	accepted := make([]bool, len(targets))

	var g errgroup.Group
	for i, e := range targets {
		g.Go(func() error {
			resp, err := n.call(ctx, e.Name, proto.MsgWriteRequest, payload)
			if err != nil {
				n.Logf("write %s to %s: %v", key, e.Name, err)
				return nil
			}
			res, err := proto.ParseWriteResponse(resp.Payload)
			if err != nil {
				n.Logf("write %s to %s: %v", key, e.Name, err)
				return nil
			}
			accepted[i] = res == proto.WriteAdded || res == proto.WriteReplaced
			return nil
		})
	}
	_ = g.Wait()

	for _, ok := range accepted {
		if ok {
			return true
		}
	}
	return false
}
