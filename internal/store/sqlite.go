package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-scorer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'processing',
	total        INTEGER NOT NULL,
	processed    INTEGER NOT NULL DEFAULT 0,
	successful   INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	webhook_url  TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	results      TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS scored_domains (
	domain       TEXT PRIMARY KEY,
	score        REAL NOT NULL,
	grade        TEXT NOT NULL,
	source       TEXT NOT NULL,
	result       TEXT NOT NULL,
	last_updated DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_created_at ON batch_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_scored_domains_score ON scored_domains(score);
CREATE INDEX IF NOT EXISTS idx_scored_domains_last_updated ON scored_domains(last_updated);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, total int, webhookURL string) (*model.BatchJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_jobs (id, status, total, webhook_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.JobStatusProcessing), total, webhookURL, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.BatchJob{
		ID:         id,
		Status:     model.JobStatusProcessing,
		Total:      total,
		WebhookURL: webhookURL,
		CreatedAt:  now,
	}, nil
}

const jobColumns = `id, status, total, processed, successful, failed, webhook_url, error, results, created_at, completed_at`

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.BatchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM batch_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.BatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) IncrementJobProgress(ctx context.Context, jobID string, success bool) error {
	okDelta, failDelta := 0, 1
	if success {
		okDelta, failDelta = 1, 0
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs SET processed = processed + 1, successful = successful + ?, failed = failed + ?
		 WHERE id = ? AND status = ?`,
		okDelta, failDelta, jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment job %s", jobID)
	}
	return s.checkJobUpdated(ctx, res, jobID)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, results *model.BatchResult) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs SET status = ?, results = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.JobStatusCompleted), string(resultsJSON), time.Now().UTC(),
		jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return s.checkJobUpdated(ctx, res, jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.JobStatusFailed), errMsg, time.Now().UTC(),
		jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return s.checkJobUpdated(ctx, res, jobID)
}

// checkJobUpdated distinguishes a legitimate no-op on a terminal job from
// an update against a job that does not exist.
func (s *SQLiteStore) checkJobUpdated(ctx context.Context, res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return eris.Errorf("sqlite: job %s not found", jobID)
	}
	return nil // terminal job, drop the update
}

func (s *SQLiteStore) GetScoredDomain(ctx context.Context, domain string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT domain, result, last_updated FROM scored_domains WHERE domain = ?`,
		strings.ToLower(domain),
	)

	var entry model.CacheEntry
	var resultJSON string
	err := row.Scan(&entry.Domain, &resultJSON, &entry.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get scored domain")
	}
	if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached score")
	}
	return &entry, nil
}

func (s *SQLiteStore) GetScoredDomains(ctx context.Context, domains []string) (map[string]model.CacheEntry, error) {
	entries := make(map[string]model.CacheEntry, len(domains))
	if len(domains) == 0 {
		return entries, nil
	}

	placeholders := make([]string, len(domains))
	args := make([]any, len(domains))
	for i, d := range domains {
		placeholders[i] = "?"
		args[i] = strings.ToLower(d)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, result, last_updated FROM scored_domains WHERE domain IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get scored domains")
	}
	defer rows.Close()

	for rows.Next() {
		var entry model.CacheEntry
		var resultJSON string
		if err := rows.Scan(&entry.Domain, &resultJSON, &entry.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scored domain")
		}
		if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal cached score")
		}
		entries[entry.Domain] = entry
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: get scored domains iterate")
}

func (s *SQLiteStore) SaveScoredDomain(ctx context.Context, result model.ScoreResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal score")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scored_domains (domain, score, grade, source, result, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET
			score = excluded.score,
			grade = excluded.grade,
			source = excluded.source,
			result = excluded.result,
			last_updated = excluded.last_updated`,
		strings.ToLower(result.Domain), result.Score, result.Grade, string(result.Source),
		string(resultJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save scored domain %s", result.Domain)
}

func (s *SQLiteStore) SaveScoredDomains(ctx context.Context, results []model.ScoreResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scored_domains (domain, score, grade, source, result, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET
			score = excluded.score,
			grade = excluded.grade,
			source = excluded.source,
			result = excluded.result,
			last_updated = excluded.last_updated`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for _, r := range results {
		resultJSON, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal score")
		}
		if _, err := stmt.ExecContext(ctx,
			strings.ToLower(r.Domain), r.Score, r.Grade, string(r.Source),
			string(resultJSON), now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: save scored domain %s", r.Domain)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save")
	}
	return n, nil
}

func (s *SQLiteStore) PurgeScores(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scored_domains WHERE last_updated < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge scores")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: purge rows affected")
}

// scanJob reads a batch job row from either QueryRow or Query results.
func scanJob(row interface{ Scan(...any) error }) (*model.BatchJob, error) {
	var j model.BatchJob
	var status string
	var resultsJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&j.ID, &status, &j.Total, &j.Processed, &j.Successful, &j.Failed,
		&j.WebhookURL, &j.Error, &resultsJSON, &j.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan job")
	}

	j.Status = model.JobStatus(status)
	if resultsJSON.Valid && resultsJSON.String != "" {
		var br model.BatchResult
		if err := json.Unmarshal([]byte(resultsJSON.String), &br); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal job results")
		}
		j.Results = &br
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}
