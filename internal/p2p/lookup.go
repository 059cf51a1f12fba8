package p2p

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"crn-node/internal/dht"
	"crn-node/internal/proto"
)

// lookup refines the directory around key before a remote operation. It
// asks the closest known peers for their nearest nodes, one attempt each,
// and repeats while the answers introduce new peers.
func (n *Node) lookup(ctx context.Context, key string) {
	if n.cfg.DisableLookup || n.dir.Len() <= 1 {
		return
	}

	start := time.Now()
	target := dht.HashOf(key)
	payload := proto.NearestRequest(target.Hex())
	queried := map[string]bool{n.cfg.Name: true}
	queries := 0
	answered := false

	for round := 0; round < n.cfg.LookupRounds; round++ {
		var toQuery []dht.Entry
		for _, e := range n.dir.Closest(target, dht.K) {
			if queried[e.Name] {
				continue
			}
			queried[e.Name] = true
			toQuery = append(toQuery, e)
		}
		if len(toQuery) == 0 {
			break
		}
		queries += len(toQuery)

		results := make([][]proto.PeerAddr, len(toQuery))
		replied := make([]bool, len(toQuery))
		g, gctx := errgroup.WithContext(ctx)
		for i, e := range toQuery {
			g.Go(func() error {
				resp, err := n.request(gctx, e.Name, proto.MsgNearestRequest, payload, n.cfg.LookupTimeout, 1)
				if err != nil {
					n.Logf("lookup %s via %s: %v", key, e.Name, err)
					return nil
				}
				peers, err := proto.ParseNearestResponse(resp.Payload)
				if err != nil {
					n.Logf("lookup %s via %s: %v", key, e.Name, err)
					return nil
				}
				results[i], replied[i] = peers, true
				return nil
			})
		}
		_ = g.Wait()

		added := 0
		for i, peers := range results {
			answered = answered || replied[i]
			added += n.learnAll(peers)
		}
		if added == 0 {
			break
		}
	}

	n.metrics.ObserveLookup(queries, time.Since(start), answered)
}
