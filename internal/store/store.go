package store

import (
	"context"
	"time"

	"github.com/sells-group/lead-scorer/internal/model"
)

// JobFilter specifies criteria for listing batch jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for batch jobs and the score
// cache. Both backends key the cache by canonical lowercase domain.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, total int, webhookURL string) (*model.BatchJob, error)
	GetJob(ctx context.Context, jobID string) (*model.BatchJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.BatchJob, error)

	// IncrementJobProgress adds one processed domain to a job's counters.
	// Increments against a terminal job are silently dropped.
	IncrementJobProgress(ctx context.Context, jobID string, success bool) error

	// CompleteJob transitions a job to completed and attaches results.
	// Only the first terminal transition wins; later calls are no-ops.
	CompleteJob(ctx context.Context, jobID string, results *model.BatchResult) error

	// FailJob transitions a job to failed with an error message, under
	// the same first-transition-wins rule as CompleteJob.
	FailJob(ctx context.Context, jobID string, errMsg string) error

	// Score cache
	GetScoredDomain(ctx context.Context, domain string) (*model.CacheEntry, error)
	GetScoredDomains(ctx context.Context, domains []string) (map[string]model.CacheEntry, error)
	SaveScoredDomain(ctx context.Context, result model.ScoreResult) error
	SaveScoredDomains(ctx context.Context, results []model.ScoreResult) (int64, error)
	PurgeScores(ctx context.Context, olderThan time.Duration) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
