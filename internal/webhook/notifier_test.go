package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-scorer/internal/model"
)

func TestNotifyCompletion_PayloadShape(t *testing.T) {
	var got CompletionEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	n := NewNotifier()
	results := &model.BatchResult{
		Summary: model.BatchSummary{Total: 2, Successful: 1, Failed: 1, AverageScore: 36.1},
		Domains: []model.ScoreResult{
			{Domain: "a.com", Score: 72.2, Grade: model.GradeB},
			{Domain: "b.com", Grade: model.GradeF, Priority: model.PriorityNoData},
		},
	}
	require.NoError(t, n.NotifyCompletion(context.Background(), srv.URL, "job-42", results))

	assert.Equal(t, "batch_scoring_complete", got.Event)
	assert.Equal(t, "job-42", got.JobID)
	assert.Equal(t, 2, got.Summary.Total)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "a.com", got.Results[0].Domain)
}

func TestNotifyCompletion_RetriesOnce(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier()
	err := n.NotifyCompletion(context.Background(), srv.URL, "job-1", &model.BatchResult{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestNotifyCompletion_FailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier()
	err := n.NotifyCompletion(context.Background(), srv.URL, "job-1", &model.BatchResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receiver returned 500")
}

func TestNotifyCompletion_UnreachableReceiver(t *testing.T) {
	n := NewNotifier(WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	err := n.NotifyCompletion(context.Background(), "http://127.0.0.1:1/hook", "job-1", &model.BatchResult{})
	require.Error(t, err)
}

func TestSendTest(t *testing.T) {
	var got TestEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	n := NewNotifier()
	require.NoError(t, n.SendTest(context.Background(), srv.URL))
	assert.Equal(t, "webhook_test", got.Event)
	assert.Equal(t, "example.com", got.SampleResult.Domain)
	assert.InDelta(t, 75.0, got.SampleResult.Score, 0.001)
	assert.False(t, got.Timestamp.IsZero())
}
