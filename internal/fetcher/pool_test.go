package fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-scorer/internal/model"
)

// stubSource serves canned responses keyed by domain.
type stubSource struct {
	name     model.Source
	fetch    func(ctx context.Context, domain string) (model.Record, error)
	inflight atomic.Int64
	peak     atomic.Int64
}

func (s *stubSource) Name() model.Source { return s.name }

func (s *stubSource) Fetch(ctx context.Context, domain string) (model.Record, error) {
	cur := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if cur <= p || s.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	return s.fetch(ctx, domain)
}

func okRecord(domain string, src model.Source) model.Record {
	return model.Record{
		Domain:  domain,
		Source:  src,
		Success: true,
		Metrics: model.Metrics{YearlyRevenue: 1_000_000},
	}
}

func TestPoolPreservesInputOrder(t *testing.T) {
	src := &stubSource{
		name: model.SourcePrimary,
		fetch: func(_ context.Context, domain string) (model.Record, error) {
			return okRecord(domain, model.SourcePrimary), nil
		},
	}
	pool := NewPool(4, 1000, time.Second)

	domains := []string{"a.com", "b.com", "c.com", "d.com", "e.com"}
	records, err := pool.Run(context.Background(), src, domains, nil)
	require.NoError(t, err)
	require.Len(t, records, len(domains))
	for i, d := range domains {
		assert.Equal(t, d, records[i].Domain)
		assert.True(t, records[i].Success)
	}
}

func TestPoolFailureIsolation(t *testing.T) {
	src := &stubSource{
		name: model.SourcePrimary,
		fetch: func(_ context.Context, domain string) (model.Record, error) {
			if domain == "bad.com" {
				return model.Record{}, eris.New("upstream 500")
			}
			return okRecord(domain, model.SourcePrimary), nil
		},
	}
	pool := NewPool(2, 1000, time.Second)

	records, err := pool.Run(context.Background(), src, []string{"a.com", "bad.com", "c.com"}, nil)
	require.NoError(t, err)

	assert.True(t, records[0].Success)
	assert.False(t, records[1].Success)
	assert.Equal(t, "bad.com", records[1].Domain)
	assert.Contains(t, records[1].Error, "upstream 500")
	assert.True(t, records[2].Success)
}

func TestPoolConcurrencyBound(t *testing.T) {
	src := &stubSource{
		name: model.SourcePrimary,
		fetch: func(_ context.Context, domain string) (model.Record, error) {
			time.Sleep(5 * time.Millisecond)
			return okRecord(domain, model.SourcePrimary), nil
		},
	}
	pool := NewPool(3, 10000, time.Second)

	domains := make([]string, 20)
	for i := range domains {
		domains[i] = "site.com"
	}
	_, err := pool.Run(context.Background(), src, domains, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, src.peak.Load(), int64(3))
}

func TestPoolRateLimitPacing(t *testing.T) {
	src := &stubSource{
		name: model.SourcePrimary,
		fetch: func(_ context.Context, domain string) (model.Record, error) {
			return okRecord(domain, model.SourcePrimary), nil
		},
	}
	// 50 req/s: 5 fetches need at least 4 inter-request gaps of 20ms.
	pool := NewPool(5, 50, time.Second)

	start := time.Now()
	_, err := pool.Run(context.Background(), src, []string{"a", "b", "c", "d", "e"}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 4*time.Second/50)
}

func TestPoolPerDomainTimeout(t *testing.T) {
	src := &stubSource{
		name: model.SourceSecondary,
		fetch: func(ctx context.Context, domain string) (model.Record, error) {
			select {
			case <-time.After(5 * time.Second):
				return okRecord(domain, model.SourceSecondary), nil
			case <-ctx.Done():
				return model.Record{}, ctx.Err()
			}
		},
	}
	pool := NewPool(1, 1000, 20*time.Millisecond)

	records, err := pool.Run(context.Background(), src, []string{"slow.com"}, nil)
	require.NoError(t, err)
	assert.False(t, records[0].Success)
	assert.Contains(t, records[0].Error, "deadline")
}

func TestPoolOnDoneSerializedPerCompletion(t *testing.T) {
	src := &stubSource{
		name: model.SourcePrimary,
		fetch: func(_ context.Context, domain string) (model.Record, error) {
			return okRecord(domain, model.SourcePrimary), nil
		},
	}
	pool := NewPool(8, 10000, time.Second)

	var mu sync.Mutex
	seen := make(map[string]int)
	domains := []string{"a.com", "b.com", "c.com", "d.com"}
	_, err := pool.Run(context.Background(), src, domains, func(rec model.Record) {
		mu.Lock()
		seen[rec.Domain]++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Len(t, seen, len(domains))
	for _, d := range domains {
		assert.Equal(t, 1, seen[d])
	}
}

func TestPoolCanceledContext(t *testing.T) {
	src := &stubSource{
		name: model.SourcePrimary,
		fetch: func(_ context.Context, domain string) (model.Record, error) {
			return okRecord(domain, model.SourcePrimary), nil
		},
	}
	// One permit per 10s means the second fetch must wait on the limiter.
	pool := NewPool(2, 0.1, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Run(ctx, src, []string{"a.com", "b.com"}, nil)
	require.Error(t, err)
}

func TestPoolEmptyInput(t *testing.T) {
	pool := NewPool(2, 10, time.Second)
	records, err := pool.Run(context.Background(), &stubSource{name: model.SourcePrimary}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}
