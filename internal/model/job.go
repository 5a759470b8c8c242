package model

import "time"

// JobStatus represents the state of a batch scoring job.
// Jobs start in processing and transition to completed or failed exactly
// once; terminal states are final.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BatchJob is one caller-submitted request to score a list of domains.
type BatchJob struct {
	ID          string       `json:"job_id"`
	Status      JobStatus    `json:"status"`
	Total       int          `json:"total_domains"`
	Processed   int          `json:"processed_domains"`
	Successful  int          `json:"successful_domains"`
	Failed      int          `json:"failed_domains"`
	WebhookURL  string       `json:"webhook_url,omitempty"`
	Error       string       `json:"error,omitempty"`
	Results     *BatchResult `json:"results,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// BatchResult is set exactly once, when a job reaches a terminal state.
type BatchResult struct {
	Summary BatchSummary  `json:"summary"`
	Domains []ScoreResult `json:"domains"`
}

// ProgressPercentage returns processed/total as a percentage for status
// responses. Distinct from the stage-weighted live percentage in the
// progress tracker.
func (j *BatchJob) ProgressPercentage() float64 {
	if j.Total <= 0 {
		return 0
	}
	return float64(j.Processed) / float64(j.Total) * 100
}
