package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scorer/internal/enrich"
	"github.com/sells-group/lead-scorer/internal/fetcher"
	"github.com/sells-group/lead-scorer/internal/progress"
	"github.com/sells-group/lead-scorer/internal/scorer"
	"github.com/sells-group/lead-scorer/internal/store"
	"github.com/sells-group/lead-scorer/internal/webhook"
	"github.com/sells-group/lead-scorer/pkg/companyenrich"
	"github.com/sells-group/lead-scorer/pkg/storeleads"
)

// scoringEnv holds the store, clients, and orchestrator shared by the
// serve/score/batch commands.
type scoringEnv struct {
	Store        store.Store
	Orchestrator *enrich.Orchestrator
	Notifier     *webhook.Notifier
	CacheDefault bool
}

// Close releases resources held by the environment.
func (se *scoringEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "lead-scorer.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, enrichment clients, and the orchestrator for
// the given run mode. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*scoringEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	purgeStaleScores(ctx, st, cfg.Cache.TTLHours)

	scorerCfg := scorer.DefaultConfig()
	if cfg.Scoring.ConfigPath != "" {
		scorerCfg, err = scorer.LoadConfig(cfg.Scoring.ConfigPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("loaded scoring config", zap.String("path", cfg.Scoring.ConfigPath))
	}

	primary := enrich.NewStoreleadsSource(
		storeleads.NewClient(cfg.StoreLeads.Key, storeleads.WithBaseURL(cfg.StoreLeads.BaseURL)))

	var secondary fetcher.Source
	if cfg.CompanyEnrich.Key != "" {
		secondary = enrich.NewCompanyenrichSource(
			companyenrich.NewClient(cfg.CompanyEnrich.Key, companyenrich.WithBaseURL(cfg.CompanyEnrich.BaseURL)))
	} else {
		zap.L().Debug("LEADSCORER_COMPANYENRICH_KEY not set, fallback enrichment disabled")
	}

	timeout := time.Duration(cfg.Batch.FetchTimeoutSecs) * time.Second
	pool := fetcher.NewPool(cfg.Batch.MaxConcurrentDomains, cfg.Batch.RequestsPerSecond, timeout)
	// The secondary provider gets its own pool so its rate limits stay
	// independent of the primary's.
	fallbackPool := fetcher.NewPool(cfg.Batch.FallbackConcurrentDomains, cfg.Batch.FallbackRequestsPerSecond, timeout)

	notifier := webhook.NewNotifier()
	tracker := progress.NewTracker(progress.DefaultWeights())

	orch := enrich.NewOrchestrator(primary, secondary, pool, fallbackPool, scorer.New(scorerCfg), st, tracker, notifier)

	return &scoringEnv{
		Store:        st,
		Orchestrator: orch,
		Notifier:     notifier,
		CacheDefault: cfg.Cache.Enabled,
	}, nil
}

// purgeStaleScores sweeps cache entries older than the configured TTL.
// A zero TTL keeps entries forever.
func purgeStaleScores(ctx context.Context, st store.Store, ttlHours int) {
	if ttlHours <= 0 {
		return
	}
	n, err := st.PurgeScores(ctx, time.Duration(ttlHours)*time.Hour)
	if err != nil {
		zap.L().Warn("cache purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("purged stale cached scores", zap.Int("purged", n))
	}
}
