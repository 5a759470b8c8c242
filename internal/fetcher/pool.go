package fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-scorer/internal/model"
)

// Source fetches enrichment metrics for a single domain.
type Source interface {
	// Name identifies the provider on records it produces.
	Name() model.Source

	// Fetch looks up one domain. A lookup that completes but finds
	// nothing returns a Record with Success=false and a nil error;
	// transport and decode failures return an error.
	Fetch(ctx context.Context, domain string) (model.Record, error)
}

// Pool fans domain lookups out to a bounded worker group. Request starts
// are paced through a shared limiter so the provider sees at most the
// configured rate regardless of worker count.
type Pool struct {
	concurrency int
	limiter     *rate.Limiter
	timeout     time.Duration
}

// NewPool creates a pool with the given worker count, provider rate in
// requests per second, and per-domain timeout. Non-positive arguments
// fall back to safe defaults.
func NewPool(concurrency int, perSecond float64, timeout time.Duration) *Pool {
	if concurrency <= 0 {
		concurrency = 10
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pool{
		concurrency: concurrency,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		timeout:     timeout,
	}
}

// Run fetches every domain through src and returns records in input
// order. Individual failures become failed records rather than aborting
// the batch; the returned error is non-nil only when ctx is canceled.
// onDone, if non-nil, is invoked once per domain in completion order.
func (p *Pool) Run(ctx context.Context, src Source, domains []string, onDone func(model.Record)) ([]model.Record, error) {
	records := make([]model.Record, len(domains))
	if len(domains) == 0 {
		return records, nil
	}

	log := zap.L().With(zap.String("source", string(src.Name())))
	log.Info("fetching domains",
		zap.Int("count", len(domains)),
		zap.Int("concurrency", p.concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	var mu sync.Mutex // serializes onDone
	var succeeded, failed atomic.Int64

	for i, domain := range domains {
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return eris.Wrap(err, "fetcher: rate limit wait")
			}

			rec := p.fetchOne(gctx, src, domain)
			if rec.Success {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			records[i] = rec

			if onDone != nil {
				mu.Lock()
				onDone(rec)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "fetcher: run")
	}

	log.Info("fetch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return records, nil
}

func (p *Pool) fetchOne(ctx context.Context, src Source, domain string) model.Record {
	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rec, err := src.Fetch(fctx, domain)
	if err != nil {
		zap.L().Debug("fetch failed",
			zap.String("source", string(src.Name())),
			zap.String("domain", domain),
			zap.Error(err),
		)
		return model.FailedRecord(domain, src.Name(), err.Error())
	}
	return rec
}
