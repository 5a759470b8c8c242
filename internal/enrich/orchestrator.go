// Package enrich orchestrates multi-source domain enrichment and scoring.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scorer/internal/fetcher"
	"github.com/sells-group/lead-scorer/internal/model"
	"github.com/sells-group/lead-scorer/internal/progress"
	"github.com/sells-group/lead-scorer/internal/scorer"
	"github.com/sells-group/lead-scorer/internal/store"
	"github.com/sells-group/lead-scorer/internal/webhook"
)

// Orchestrator runs the enrichment cascade: cache, primary source,
// fallback source for thin records, then scoring and persistence.
type Orchestrator struct {
	primary      fetcher.Source
	secondary    fetcher.Source
	pool         *fetcher.Pool
	fallbackPool *fetcher.Pool
	scorer       *scorer.Scorer
	store        store.Store
	tracker      *progress.Tracker
	notifier     *webhook.Notifier
}

// NewOrchestrator wires the enrichment pipeline. The fallback pool carries
// the secondary provider's own concurrency and rate limits; pass nil to
// share the primary pool.
func NewOrchestrator(primary, secondary fetcher.Source, pool, fallbackPool *fetcher.Pool, sc *scorer.Scorer, st store.Store, tr *progress.Tracker, wh *webhook.Notifier) *Orchestrator {
	if fallbackPool == nil {
		fallbackPool = pool
	}
	return &Orchestrator{
		primary:      primary,
		secondary:    secondary,
		pool:         pool,
		fallbackPool: fallbackPool,
		scorer:       sc,
		store:        st,
		tracker:      tr,
		notifier:     wh,
	}
}

// ProcessOptions configures one batch run.
type ProcessOptions struct {
	JobID      string
	Domains    []string
	WebhookURL string
	UseCache   bool
}

// Process scores a batch of domains end to end. The job row and progress
// session are updated as work proceeds; the job reaches a terminal state
// exactly once even when Process is retried or the context dies midway.
func (o *Orchestrator) Process(ctx context.Context, opts ProcessOptions) (*model.BatchResult, error) {
	log := zap.L().With(zap.String("job_id", opts.JobID))

	domains := canonicalize(opts.Domains)
	o.tracker.Start(opts.JobID, len(domains))

	result, err := o.process(ctx, log, opts, domains)
	if err != nil {
		o.tracker.Complete(opts.JobID, false, err.Error())
		if failErr := o.store.FailJob(ctx, opts.JobID, err.Error()); failErr != nil {
			log.Error("failed to mark job failed", zap.Error(failErr))
		}
		return nil, err
	}

	o.tracker.Complete(opts.JobID, true, "")
	if opts.WebhookURL != "" {
		// Delivery is best effort, already logged by the notifier.
		_ = o.notifier.NotifyCompletion(ctx, opts.WebhookURL, opts.JobID, result)
	}
	return result, nil
}

func (o *Orchestrator) process(ctx context.Context, log *zap.Logger, opts ProcessOptions, domains []string) (*model.BatchResult, error) {
	results := make([]model.ScoreResult, 0, len(domains))

	// Cache pass. Hits skip both fetch stages entirely.
	toFetch := domains
	if opts.UseCache {
		cached, err := o.store.GetScoredDomains(ctx, domains)
		if err != nil {
			return nil, eris.Wrap(err, "enrich: cache lookup")
		}
		toFetch = toFetch[:0:0]
		for _, d := range domains {
			entry, ok := cached[d]
			if !ok {
				toFetch = append(toFetch, d)
				continue
			}
			r := entry.Result
			r.Cached = true
			results = append(results, r)
			o.tracker.Advance(opts.JobID, progress.StagePrimary)
			o.tracker.Advance(opts.JobID, progress.StageScoring)
			if err := o.store.IncrementJobProgress(ctx, opts.JobID, true); err != nil {
				log.Warn("progress update failed", zap.Error(err))
			}
		}
		if n := len(domains) - len(toFetch); n > 0 {
			log.Info("cache hits", zap.Int("count", n))
		}
	}

	// Primary fetch.
	o.tracker.SetMessage(opts.JobID, progress.StagePrimary, fmt.Sprintf("Fetching %d domains from Store Leads...", len(toFetch)))
	records, err := o.pool.Run(ctx, o.primary, toFetch, func(rec model.Record) {
		o.tracker.Advance(opts.JobID, progress.StagePrimary)
		if !rec.Success {
			o.tracker.RecordError(opts.JobID, fmt.Sprintf("%s: %s", rec.Domain, rec.Error))
		}
	})
	if err != nil {
		return nil, err
	}

	// Thin or failed primary records go through the fallback source.
	// A duplicated domain is fetched once per occurrence, and every
	// occurrence picks up the replacement.
	var fallback []string
	fallbackIdx := make(map[string][]int, len(records))
	for i, rec := range records {
		if scorer.NeedsFallback(rec) {
			fallbackIdx[rec.Domain] = append(fallbackIdx[rec.Domain], i)
			fallback = append(fallback, rec.Domain)
		}
	}

	if len(fallback) > 0 && o.secondary != nil {
		o.tracker.SetStageTotal(opts.JobID, progress.StageSecondary, len(fallback))
		o.tracker.SetMessage(opts.JobID, progress.StageSecondary, fmt.Sprintf("Enriching %d domains via CompanyEnrich...", len(fallback)))
		log.Info("fallback enrichment", zap.Int("count", len(fallback)))

		secRecords, err := o.fallbackPool.Run(ctx, o.secondary, fallback, func(rec model.Record) {
			o.tracker.Advance(opts.JobID, progress.StageSecondary)
		})
		if err != nil {
			return nil, err
		}
		// A successful fallback replaces the primary record; a failed one
		// leaves whatever the primary produced.
		for _, rec := range secRecords {
			if rec.Success {
				for _, i := range fallbackIdx[rec.Domain] {
					records[i] = rec
				}
			}
		}
	}

	// Score and persist. Job counters advance per item; cache writes for
	// the whole batch land in one bulk upsert.
	o.tracker.SetMessage(opts.JobID, progress.StageScoring, "Scoring domains...")
	var scored []model.ScoreResult
	scoredIdx := make(map[string]int)
	for _, rec := range records {
		res := o.scorer.Score(rec)
		if rec.Success {
			// One cache row per domain; a duplicated domain keeps its
			// latest score.
			if i, ok := scoredIdx[res.Domain]; ok {
				scored[i] = res
			} else {
				scoredIdx[res.Domain] = len(scored)
				scored = append(scored, res)
			}
		}
		results = append(results, res)
		o.tracker.Advance(opts.JobID, progress.StageScoring)
		if err := o.store.IncrementJobProgress(ctx, opts.JobID, rec.Success); err != nil {
			log.Warn("progress update failed", zap.Error(err))
		}
	}

	if len(scored) > 0 {
		if _, err := o.store.SaveScoredDomains(ctx, scored); err != nil {
			log.Warn("score cache write failed", zap.Int("count", len(scored)), zap.Error(err))
		}
	}

	batch := &model.BatchResult{
		Summary: o.scorer.Summarize(results),
		Domains: results,
	}
	if err := o.store.CompleteJob(ctx, opts.JobID, batch); err != nil {
		return nil, eris.Wrap(err, "enrich: complete job")
	}

	log.Info("batch complete",
		zap.Int("total", batch.Summary.Total),
		zap.Int("successful", batch.Summary.Successful),
		zap.Int("failed", batch.Summary.Failed),
		zap.Float64("average_score", batch.Summary.AverageScore),
	)
	return batch, nil
}

// ScoreDomain enriches and scores a single domain through the same
// cascade as a batch item.
func (o *Orchestrator) ScoreDomain(ctx context.Context, rawDomain string, useCache bool) (model.ScoreResult, error) {
	domain := model.CanonicalDomain(rawDomain)
	if domain == "" {
		return model.ScoreResult{}, eris.Errorf("enrich: invalid domain %q", rawDomain)
	}

	if useCache {
		entry, err := o.store.GetScoredDomain(ctx, domain)
		if err != nil {
			return model.ScoreResult{}, eris.Wrap(err, "enrich: cache lookup")
		}
		if entry != nil {
			r := entry.Result
			r.Cached = true
			return r, nil
		}
	}

	rec, err := o.fetchOne(ctx, o.pool, o.primary, domain)
	if err != nil {
		return model.ScoreResult{}, err
	}
	if scorer.NeedsFallback(rec) && o.secondary != nil {
		if sec, err := o.fetchOne(ctx, o.fallbackPool, o.secondary, domain); err == nil && sec.Success {
			rec = sec
		}
	}

	res := o.scorer.Score(rec)
	if rec.Success {
		if err := o.store.SaveScoredDomain(ctx, res); err != nil {
			zap.L().Warn("score cache write failed", zap.String("domain", domain), zap.Error(err))
		}
	}
	return res, nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, pool *fetcher.Pool, src fetcher.Source, domain string) (model.Record, error) {
	records, err := pool.Run(ctx, src, []string{domain}, nil)
	if err != nil {
		return model.Record{}, err
	}
	return records[0], nil
}

// Watch exposes the progress stream for a running job.
func (o *Orchestrator) Watch(jobID string) <-chan progress.Snapshot {
	return o.tracker.Watch(jobID)
}

// Progress returns the current progress snapshot for a job.
func (o *Orchestrator) Progress(jobID string) (progress.Snapshot, bool) {
	return o.tracker.Snapshot(jobID)
}

// CleanupProgress drops a finished job's progress session after callers
// have had a chance to read the final snapshot.
func (o *Orchestrator) CleanupProgress(jobID string, after time.Duration) {
	time.AfterFunc(after, func() { o.tracker.Cleanup(jobID) })
}

// canonicalize normalizes raw domain inputs and drops empties.
// Duplicates are preserved; each occurrence is processed.
func canonicalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if d := model.CanonicalDomain(r); d != "" {
			out = append(out, d)
		}
	}
	return out
}
