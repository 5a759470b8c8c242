package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-scorer/internal/enrich"
	"github.com/sells-group/lead-scorer/internal/fetcher"
	"github.com/sells-group/lead-scorer/internal/model"
	"github.com/sells-group/lead-scorer/internal/progress"
	"github.com/sells-group/lead-scorer/internal/scorer"
	"github.com/sells-group/lead-scorer/internal/store"
	"github.com/sells-group/lead-scorer/internal/webhook"
)

// stubSource serves canned records and fails everything else.
type stubSource struct {
	name model.Source
	recs map[string]model.Record
}

func (s *stubSource) Name() model.Source { return s.name }

func (s *stubSource) Fetch(_ context.Context, domain string) (model.Record, error) {
	rec, ok := s.recs[domain]
	if !ok {
		return model.Record{}, eris.Errorf("no fixture for %s", domain)
	}
	return rec, nil
}

func richRecord(domain string) model.Record {
	return model.Record{
		Domain:  domain,
		Source:  model.SourcePrimary,
		Success: true,
		Metrics: model.Metrics{
			Name:          "Acme " + domain,
			YearlyRevenue: 5_000_000,
			EmployeeCount: 35,
			MonthlyVisits: 120_000,
			PlatformRank:  4200,
		},
	}
}

func newTestEnv(t *testing.T, recs map[string]model.Record) *scoringEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	primary := &stubSource{name: model.SourcePrimary, recs: recs}
	secondary := &stubSource{name: model.SourceSecondary, recs: map[string]model.Record{}}

	orch := enrich.NewOrchestrator(
		primary, secondary,
		fetcher.NewPool(4, 1000, time.Second),
		nil,
		scorer.New(scorer.DefaultConfig()),
		st,
		progress.NewTracker(progress.DefaultWeights()),
		webhook.NewNotifier(),
	)

	return &scoringEnv{Store: st, Orchestrator: orch, Notifier: webhook.NewNotifier(), CacheDefault: true}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	router := buildRouter(newTestEnv(t, nil), "")

	rr := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)
}

func TestRouter_APIKeyGate(t *testing.T) {
	router := buildRouter(newTestEnv(t, nil), "sekret")

	// Health is open.
	rr := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	// API routes are not.
	rr = doJSON(t, router, http.MethodGet, "/api/batch-status/whatever", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "API key")

	rr = doJSON(t, router, http.MethodGet, "/api/batch-status/whatever", nil,
		map[string]string{"X-Api-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/batch-status/whatever", nil,
		map[string]string{"X-Api-Key": "sekret"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_ScoreBatch_RunsToCompletion(t *testing.T) {
	env := newTestEnv(t, map[string]model.Record{
		"acme.com":   richRecord("acme.com"),
		"globex.com": richRecord("globex.com"),
	})
	router := buildRouter(env, "")

	rr := doJSON(t, router, http.MethodPost, "/api/score-batch", map[string]any{
		"domains": []string{"acme.com", "globex.com"},
	}, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp struct {
		JobID        string `json:"job_id"`
		Status       string `json:"status"`
		TotalDomains int    `json:"total_domains"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, 2, resp.TotalDomains)

	require.Eventually(t, func() bool {
		job, err := env.Store.GetJob(context.Background(), resp.JobID)
		return err == nil && job != nil && job.Status == model.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	job, err := env.Store.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Processed)
	assert.Equal(t, 2, job.Successful)
	require.NotNil(t, job.Results)
	assert.Equal(t, 2, job.Results.Summary.Total)
}

func TestRouter_ScoreBatch_EmptyDomains(t *testing.T) {
	router := buildRouter(newTestEnv(t, nil), "")

	rr := doJSON(t, router, http.MethodPost, "/api/score-batch", map[string]any{
		"domains": []string{"", "   "},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "domains is required")
}

func TestRouter_ScoreBatch_InvalidJSON(t *testing.T) {
	router := buildRouter(newTestEnv(t, nil), "")

	req := httptest.NewRequest(http.MethodPost, "/api/score-batch", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestRouter_ScoreBatch_TooManyDomains(t *testing.T) {
	router := buildRouter(newTestEnv(t, nil), "")

	domains := make([]string, 4001)
	for i := range domains {
		domains[i] = fmt.Sprintf("site%d.com", i)
	}
	rr := doJSON(t, router, http.MethodPost, "/api/score-batch", map[string]any{
		"domains": domains,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "too many domains")
}

func TestRouter_ScoreDomain(t *testing.T) {
	env := newTestEnv(t, map[string]model.Record{"acme.com": richRecord("acme.com")})
	router := buildRouter(env, "")

	rr := doJSON(t, router, http.MethodGet, "/api/score/acme.com", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result model.ScoreResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "acme.com", result.Domain)
	assert.Greater(t, result.Score, 0.0)
	assert.NotEmpty(t, result.Grade)
}

func TestRouter_ScoreDomain_UnknownGetsNoData(t *testing.T) {
	env := newTestEnv(t, nil)
	router := buildRouter(env, "")

	rr := doJSON(t, router, http.MethodGet, "/api/score/missing.com", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result model.ScoreResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, model.PriorityNoData, result.Priority)
	assert.Equal(t, 0.0, result.Score)
}

func TestRouter_BatchStatus_NotFound(t *testing.T) {
	router := buildRouter(newTestEnv(t, nil), "")

	rr := doJSON(t, router, http.MethodGet, "/api/batch-status/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "job not found")
}

func TestRouter_BatchStatus_Processing(t *testing.T) {
	env := newTestEnv(t, nil)
	router := buildRouter(env, "")

	job, err := env.Store.CreateJob(context.Background(), 10, "")
	require.NoError(t, err)

	rr := doJSON(t, router, http.MethodGet, "/api/batch-status/"+job.ID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status             string  `json:"status"`
		TotalDomains       int     `json:"total_domains"`
		ProgressPercentage float64 `json:"progress_percentage"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, 10, resp.TotalDomains)
	assert.Equal(t, 0.0, resp.ProgressPercentage)
}

func TestRouter_BatchResults_StillProcessing(t *testing.T) {
	env := newTestEnv(t, nil)
	router := buildRouter(env, "")

	job, err := env.Store.CreateJob(context.Background(), 5, "")
	require.NoError(t, err)

	rr := doJSON(t, router, http.MethodGet, "/api/batch-results/"+job.ID, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "still processing")
}

func TestRouter_BatchResults_Completed(t *testing.T) {
	env := newTestEnv(t, map[string]model.Record{"acme.com": richRecord("acme.com")})
	router := buildRouter(env, "")

	rr := doJSON(t, router, http.MethodPost, "/api/score-batch", map[string]any{
		"domains": []string{"acme.com"},
	}, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))

	require.Eventually(t, func() bool {
		job, err := env.Store.GetJob(context.Background(), accepted.JobID)
		return err == nil && job != nil && job.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	rr = doJSON(t, router, http.MethodGet, "/api/batch-results/"+accepted.JobID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status  string             `json:"status"`
		Results *model.BatchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Results)
	require.Len(t, resp.Results.Domains, 1)
	assert.Equal(t, "acme.com", resp.Results.Domains[0].Domain)
}

func TestRouter_Progress_FallsBackToStore(t *testing.T) {
	env := newTestEnv(t, nil)
	router := buildRouter(env, "")

	// No live tracker session, but the job row exists.
	job, err := env.Store.CreateJob(context.Background(), 4, "")
	require.NoError(t, err)

	rr := doJSON(t, router, http.MethodGet, "/api/progress/"+job.ID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		JobID     string `json:"job_id"`
		Total     int    `json:"total"`
		Completed bool   `json:"completed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, job.ID, resp.JobID)
	assert.Equal(t, 4, resp.Total)
	assert.False(t, resp.Completed)
}

func TestRouter_Progress_NotFound(t *testing.T) {
	router := buildRouter(newTestEnv(t, nil), "")

	rr := doJSON(t, router, http.MethodGet, "/api/progress/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_WebhookTest(t *testing.T) {
	var calls atomic.Int64
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "webhook_test", payload["event"])
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	router := buildRouter(newTestEnv(t, nil), "")

	rr := doJSON(t, router, http.MethodPost, "/api/webhook-test", map[string]string{
		"url": receiver.URL,
	}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"sent"`)
	assert.Equal(t, int64(1), calls.Load())
}

func TestRouter_WebhookTest_MissingURL(t *testing.T) {
	router := buildRouter(newTestEnv(t, nil), "")

	rr := doJSON(t, router, http.MethodPost, "/api/webhook-test", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "url is required")
}

func TestRouter_ScoreDomain_CacheDisabledByConfig(t *testing.T) {
	env := newTestEnv(t, map[string]model.Record{"acme.com": richRecord("acme.com")})
	env.CacheDefault = false
	router := buildRouter(env, "")

	// Warm the cache, then hit the endpoint without a use_cache override.
	rr := doJSON(t, router, http.MethodGet, "/api/score/acme.com?use_cache=true", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/score/acme.com", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result model.ScoreResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.False(t, result.Cached, "cache.enabled=false must mean a fresh fetch by default")

	// An explicit use_cache=true still opts in.
	rr = doJSON(t, router, http.MethodGet, "/api/score/acme.com?use_cache=true", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Cached)
}

func TestRouter_ScoreDomain_CacheEnabledByDefault(t *testing.T) {
	env := newTestEnv(t, map[string]model.Record{"acme.com": richRecord("acme.com")})
	router := buildRouter(env, "")

	rr := doJSON(t, router, http.MethodGet, "/api/score/acme.com", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/score/acme.com", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result model.ScoreResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Cached)
}
