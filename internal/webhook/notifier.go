// Package webhook delivers batch completion callbacks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scorer/internal/model"
)

// CompletionEvent is the payload posted to a job's webhook URL when the
// batch reaches a terminal state.
type CompletionEvent struct {
	Event   string              `json:"event"`
	JobID   string              `json:"job_id"`
	Summary model.BatchSummary  `json:"summary"`
	Results []model.ScoreResult `json:"results"`
}

// TestEvent is the sample payload sent by the webhook test endpoint.
type TestEvent struct {
	Event        string            `json:"event"`
	Timestamp    time.Time         `json:"timestamp"`
	SampleResult model.ScoreResult `json:"sample_result"`
}

// Notifier posts JSON payloads to caller-supplied webhook URLs. Delivery
// is best effort: one retry, failures logged and swallowed upstream.
type Notifier struct {
	http *http.Client
}

// Option configures the Notifier.
type Option func(*Notifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) {
		n.http = hc
	}
}

// NewNotifier creates a webhook notifier.
func NewNotifier(opts ...Option) *Notifier {
	n := &Notifier{
		http: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyCompletion posts a batch_scoring_complete event. The job's
// outcome does not depend on delivery; callers log the returned error
// and move on.
func (n *Notifier) NotifyCompletion(ctx context.Context, url, jobID string, results *model.BatchResult) error {
	event := CompletionEvent{
		Event:   "batch_scoring_complete",
		JobID:   jobID,
		Summary: results.Summary,
		Results: results.Domains,
	}
	if err := n.send(ctx, url, event); err != nil {
		zap.L().Warn("webhook delivery failed",
			zap.String("job_id", jobID),
			zap.String("url", url),
			zap.Error(err),
		)
		return err
	}
	zap.L().Info("webhook delivered",
		zap.String("job_id", jobID),
		zap.String("url", url),
	)
	return nil
}

// SendTest posts a sample payload so callers can verify their receiver.
func (n *Notifier) SendTest(ctx context.Context, url string) error {
	event := TestEvent{
		Event:     "webhook_test",
		Timestamp: time.Now().UTC(),
		SampleResult: model.ScoreResult{
			Domain:   "example.com",
			Score:    75,
			Grade:    model.GradeBPlus,
			Priority: model.PriorityHigh,
		},
	}
	return n.send(ctx, url, event)
}

func (n *Notifier) send(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "webhook: marshal payload")
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if lastErr = n.post(ctx, url, body); lastErr == nil {
			return nil
		}
		if attempt == 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	return lastErr
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook: post")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("webhook: receiver returned %d", resp.StatusCode)
	}
	return nil
}
