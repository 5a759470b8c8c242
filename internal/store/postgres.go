package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scorer/internal/db"
	"github.com/sells-group/lead-scorer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"insert_job":    `INSERT INTO batch_jobs (id, status, total, webhook_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_job":       `SELECT id, status, total, processed, successful, failed, webhook_url, error, results, created_at, completed_at FROM batch_jobs WHERE id = $1`,
	"increment_job": `UPDATE batch_jobs SET processed = processed + 1, successful = successful + $1, failed = failed + $2 WHERE id = $3 AND status = 'processing'`,
	"complete_job":  `UPDATE batch_jobs SET status = 'completed', results = $1, completed_at = $2 WHERE id = $3 AND status = 'processing'`,
	"fail_job":      `UPDATE batch_jobs SET status = 'failed', error = $1, completed_at = $2 WHERE id = $3 AND status = 'processing'`,
	"get_score":     `SELECT domain, result, last_updated FROM scored_domains WHERE domain = $1`,
	"save_score": `INSERT INTO scored_domains (domain, score, grade, source, result, last_updated) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain) DO UPDATE SET score = EXCLUDED.score, grade = EXCLUDED.grade, source = EXCLUDED.source, result = EXCLUDED.result, last_updated = EXCLUDED.last_updated`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status       TEXT NOT NULL DEFAULT 'processing',
	total        INTEGER NOT NULL,
	processed    INTEGER NOT NULL DEFAULT 0,
	successful   INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	webhook_url  TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	results      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS scored_domains (
	domain       TEXT PRIMARY KEY,
	score        DOUBLE PRECISION NOT NULL,
	grade        TEXT NOT NULL,
	source       TEXT NOT NULL,
	result       JSONB NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_created_at ON batch_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_scored_domains_score ON scored_domains(score);
CREATE INDEX IF NOT EXISTS idx_scored_domains_last_updated ON scored_domains(last_updated);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, total int, webhookURL string) (*model.BatchJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_jobs (id, status, total, webhook_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.JobStatusProcessing), total, webhookURL, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.BatchJob{
		ID:         id,
		Status:     model.JobStatusProcessing,
		Total:      total,
		WebhookURL: webhookURL,
		CreatedAt:  now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, total, processed, successful, failed, webhook_url, error, results, created_at, completed_at
		 FROM batch_jobs WHERE id = $1`, jobID)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.BatchJob, error) {
	query := `SELECT id, status, total, processed, successful, failed, webhook_url, error, results, created_at, completed_at
		 FROM batch_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.BatchJob
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) IncrementJobProgress(ctx context.Context, jobID string, success bool) error {
	okDelta, failDelta := 0, 1
	if success {
		okDelta, failDelta = 1, 0
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_jobs SET processed = processed + 1, successful = successful + $1, failed = failed + $2
		 WHERE id = $3 AND status = 'processing'`,
		okDelta, failDelta, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment job %s", jobID)
	}
	return s.checkJobUpdated(ctx, tag, jobID)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, results *model.BatchResult) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_jobs SET status = 'completed', results = $1, completed_at = $2
		 WHERE id = $3 AND status = 'processing'`,
		resultsJSON, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	return s.checkJobUpdated(ctx, tag, jobID)
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_jobs SET status = 'failed', error = $1, completed_at = $2
		 WHERE id = $3 AND status = 'processing'`,
		errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	return s.checkJobUpdated(ctx, tag, jobID)
}

func (s *PostgresStore) checkJobUpdated(ctx context.Context, tag pgconn.CommandTag, jobID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return eris.Errorf("postgres: job %s not found", jobID)
	}
	return nil // terminal job, drop the update
}

func (s *PostgresStore) GetScoredDomain(ctx context.Context, domain string) (*model.CacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT domain, result, last_updated FROM scored_domains WHERE domain = $1`,
		strings.ToLower(domain),
	)

	var entry model.CacheEntry
	var resultJSON []byte
	err := row.Scan(&entry.Domain, &resultJSON, &entry.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get scored domain")
	}
	if err := json.Unmarshal(resultJSON, &entry.Result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached score")
	}
	return &entry, nil
}

func (s *PostgresStore) GetScoredDomains(ctx context.Context, domains []string) (map[string]model.CacheEntry, error) {
	entries := make(map[string]model.CacheEntry, len(domains))
	if len(domains) == 0 {
		return entries, nil
	}

	lowered := make([]string, len(domains))
	for i, d := range domains {
		lowered[i] = strings.ToLower(d)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT domain, result, last_updated FROM scored_domains WHERE domain = ANY($1)`,
		lowered,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get scored domains")
	}
	defer rows.Close()

	for rows.Next() {
		var entry model.CacheEntry
		var resultJSON []byte
		if err := rows.Scan(&entry.Domain, &resultJSON, &entry.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scored domain")
		}
		if err := json.Unmarshal(resultJSON, &entry.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal cached score")
		}
		entries[entry.Domain] = entry
	}
	return entries, eris.Wrap(rows.Err(), "postgres: get scored domains iterate")
}

func (s *PostgresStore) SaveScoredDomain(ctx context.Context, result model.ScoreResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal score")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scored_domains (domain, score, grade, source, result, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (domain) DO UPDATE SET
			score = EXCLUDED.score,
			grade = EXCLUDED.grade,
			source = EXCLUDED.source,
			result = EXCLUDED.result,
			last_updated = EXCLUDED.last_updated`,
		strings.ToLower(result.Domain), result.Score, result.Grade, string(result.Source),
		resultJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save scored domain %s", result.Domain)
}

func (s *PostgresStore) SaveScoredDomains(ctx context.Context, results []model.ScoreResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		resultJSON, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal score")
		}
		rows = append(rows, []any{
			strings.ToLower(r.Domain), r.Score, r.Grade, string(r.Source), resultJSON, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "scored_domains",
		Columns:      []string{"domain", "score", "grade", "source", "result", "last_updated"},
		ConflictKeys: []string{"domain"},
	}, rows)
	return n, eris.Wrap(err, "postgres: bulk save scores")
}

func (s *PostgresStore) PurgeScores(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM scored_domains WHERE last_updated < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge scores")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgJob(row pgx.Row) (*model.BatchJob, error) {
	var j model.BatchJob
	var status string
	var resultsJSON []byte
	var completedAt *time.Time

	err := row.Scan(&j.ID, &status, &j.Total, &j.Processed, &j.Successful, &j.Failed,
		&j.WebhookURL, &j.Error, &resultsJSON, &j.CreatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan job")
	}

	j.Status = model.JobStatus(status)
	if len(resultsJSON) > 0 {
		var br model.BatchResult
		if err := json.Unmarshal(resultsJSON, &br); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job results")
		}
		j.Results = &br
	}
	j.CompletedAt = completedAt
	return &j, nil
}
