package deepresearch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
)

// fanoutHybrid runs one hybrid_search per subquery concurrently under the
// shared deadline. Unlike errgroup's default first-error-cancels-all
// semantics, an individual subquery's failure or cancellation contributes
// an empty result rather than failing the whole fan-out — the turn
// pipeline never aborts because one subquery timed out.
func fanoutHybrid(ctx context.Context, engine hybridSearcher, queries []string, q retrieval.Query) []retrieval.Item {
	var (
		mu  sync.Mutex
		out []retrieval.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sq := range queries {
		sq := sq
		g.Go(func() error {
			qq := q
			qq.Text = sq
			items, err := engine.Hybrid(gctx, qq)
			if err != nil {
				log.Warn().Err(err).Str("subquery", sq).Msg("deepresearch_subquery_failed")
				return nil
			}
			mu.Lock()
			out = append(out, items...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// hybridSearcher is the subset of *retrieval.Engine the fan-out needs.
type hybridSearcher interface {
	Hybrid(ctx context.Context, q retrieval.Query) ([]retrieval.Item, error)
}
