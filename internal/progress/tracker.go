// Package progress aggregates per-stage counters for running batch jobs
// into a single weighted percentage with elapsed/remaining time estimates.
// One session exists per job; it is updated concurrently by fetch
// completions and read by pollers or watch channels.
package progress

import (
	"math"
	"sync"
	"time"
)

// Pipeline stages tracked per session.
const (
	StagePrimary   = "primary"
	StageSecondary = "secondary"
	StageScoring   = "scoring"
)

// Weights controls how stage percentages blend into the overall figure.
// When the secondary stage has no work, its weight is redistributed so
// primary and scoring split evenly. The exact values are a tunable
// heuristic, not a derived invariant.
type Weights struct {
	Primary       float64
	Secondary     float64
	Scoring       float64
	PrimaryNoFall float64
	ScoringNoFall float64
}

// DefaultWeights returns the standard stage weighting.
func DefaultWeights() Weights {
	return Weights{
		Primary:       0.4,
		Secondary:     0.3,
		Scoring:       0.3,
		PrimaryNoFall: 0.5,
		ScoringNoFall: 0.5,
	}
}

// StageCounter is the cumulative progress of one stage.
type StageCounter struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// StageError is one recorded per-item error, append-only.
type StageError struct {
	Time  time.Time `json:"time"`
	Error string    `json:"error"`
}

// Snapshot is a point-in-time view of a session, safe to serialize.
type Snapshot struct {
	JobID              string                  `json:"job_id"`
	Total              int                     `json:"total"`
	Stage              string                  `json:"stage"`
	Message            string                  `json:"message"`
	Percentage         float64                 `json:"percentage"`
	ElapsedSeconds     float64                 `json:"elapsed_time"`
	RemainingSeconds   float64                 `json:"estimated_remaining"`
	RemainingEstimated bool                    `json:"remaining_estimated"`
	Stages             map[string]StageCounter `json:"stages"`
	Errors             []StageError            `json:"errors,omitempty"`
	Completed          bool                    `json:"completed"`
	Success            bool                    `json:"success"`
}

type session struct {
	mu        sync.Mutex
	jobID     string
	total     int
	stage     string
	message   string
	started   time.Time
	stages    map[string]*StageCounter
	errors    []StageError
	completed bool
	success   bool

	// reported percentage never regresses, even if slower stage totals
	// arrive out of order
	lastPct  float64
	watchers []chan Snapshot
}

// Tracker holds progress sessions keyed by job id.
type Tracker struct {
	mu       sync.RWMutex
	weights  Weights
	sessions map[string]*session
	nowFn    func() time.Time
}

// NewTracker creates a Tracker with the given stage weights.
func NewTracker(w Weights) *Tracker {
	return &Tracker{
		weights:  w,
		sessions: make(map[string]*session),
		nowFn:    time.Now,
	}
}

// WithNow fixes the clock for testing.
func (t *Tracker) WithNow(fn func() time.Time) *Tracker {
	t.nowFn = fn
	return t
}

// Start creates a session for a job with the given item count. Primary and
// scoring totals start at the item count; the secondary total starts at
// zero and is set once the fallback queue is known.
func (t *Tracker) Start(jobID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[jobID] = &session{
		jobID:   jobID,
		total:   total,
		stage:   StagePrimary,
		message: "Starting processing...",
		started: t.nowFn(),
		stages: map[string]*StageCounter{
			StagePrimary:   {Total: total},
			StageSecondary: {},
			StageScoring:   {Total: total},
		},
	}
}

func (t *Tracker) get(jobID string) *session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[jobID]
}

// Advance increments a stage counter by one completed item.
func (t *Tracker) Advance(jobID, stage string) {
	s := t.get(jobID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.completed {
		if c, ok := s.stages[stage]; ok {
			c.Current++
		}
		s.stage = stage
	}
	notifyLocked(s, t.snapshotLocked(s))
	s.mu.Unlock()
}

// SetStageTotal sets a stage's expected item count (used once the
// fallback queue size is known).
func (t *Tracker) SetStageTotal(jobID, stage string, total int) {
	s := t.get(jobID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if c, ok := s.stages[stage]; ok && !s.completed {
		c.Total = total
	}
	notifyLocked(s, t.snapshotLocked(s))
	s.mu.Unlock()
}

// SetMessage updates the human-readable status line.
func (t *Tracker) SetMessage(jobID, stage, message string) {
	s := t.get(jobID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if stage != "" {
		s.stage = stage
	}
	if message != "" {
		s.message = message
	}
	notifyLocked(s, t.snapshotLocked(s))
	s.mu.Unlock()
}

// RecordError appends a per-item error without affecting counters.
func (t *Tracker) RecordError(jobID, errMsg string) {
	s := t.get(jobID)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.errors = append(s.errors, StageError{Time: t.nowFn(), Error: errMsg})
	notifyLocked(s, t.snapshotLocked(s))
	s.mu.Unlock()
}

// Complete marks a session finished. On success the percentage is forced
// to 100 regardless of in-flight counters, so rounding can never leave a
// finished job stuck below full.
func (t *Tracker) Complete(jobID string, success bool, message string) {
	s := t.get(jobID)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.completed = true
	s.success = success
	if message != "" {
		s.message = message
	} else if success {
		s.message = "Processing completed successfully"
	} else {
		s.message = "Processing failed"
	}
	if success {
		s.lastPct = 100
	}
	notifyLocked(s, t.snapshotLocked(s))
	s.mu.Unlock()
}

// Snapshot returns the current view of a session, or false if unknown.
func (t *Tracker) Snapshot(jobID string) (Snapshot, bool) {
	s := t.get(jobID)
	if s == nil {
		return Snapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.snapshotLocked(s), true
}

// Watch returns a channel receiving a snapshot after every update. The
// channel is buffered and the oldest pending snapshot is dropped when an
// observer falls behind, so a slow or disconnected watcher never blocks
// the job.
func (t *Tracker) Watch(jobID string) <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	s := t.get(jobID)
	if s == nil {
		close(ch)
		return ch
	}
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	ch <- t.snapshotLocked(s)
	s.mu.Unlock()
	return ch
}

// Cleanup removes a session and closes its watch channels.
func (t *Tracker) Cleanup(jobID string) {
	t.mu.Lock()
	s := t.sessions[jobID]
	delete(t.sessions, jobID)
	t.mu.Unlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	watchers := s.watchers
	s.watchers = nil
	s.mu.Unlock()
	for _, ch := range watchers {
		close(ch)
	}
}

// snapshotLocked computes the weighted percentage and time estimates.
// Caller holds s.mu.
func (t *Tracker) snapshotLocked(s *session) Snapshot {
	primary := s.stages[StagePrimary]
	secondary := s.stages[StageSecondary]
	scoring := s.stages[StageScoring]

	var pct float64
	if secondary.Total > 0 {
		pct = stagePct(primary)*t.weights.Primary +
			stagePct(secondary)*t.weights.Secondary +
			stagePct(scoring)*t.weights.Scoring
	} else {
		pct = stagePct(primary)*t.weights.PrimaryNoFall +
			stagePct(scoring)*t.weights.ScoringNoFall
	}
	pct = math.Round(pct*10) / 10

	if pct > s.lastPct {
		s.lastPct = pct
	}

	elapsed := t.nowFn().Sub(s.started).Seconds()

	// Remaining time extrapolates from scored items, the last stage every
	// item passes through.
	var remaining float64
	estimated := false
	done := scoring.Current
	if done > 0 && done < s.total && elapsed > 0 {
		rate := float64(done) / elapsed
		remaining = math.Round(float64(s.total-done)/rate*10) / 10
		estimated = true
	}

	stages := make(map[string]StageCounter, len(s.stages))
	for name, c := range s.stages {
		stages[name] = *c
	}

	var errs []StageError
	if len(s.errors) > 0 {
		errs = append(errs, s.errors...)
	}

	return Snapshot{
		JobID:              s.jobID,
		Total:              s.total,
		Stage:              s.stage,
		Message:            s.message,
		Percentage:         s.lastPct,
		ElapsedSeconds:     math.Round(elapsed*10) / 10,
		RemainingSeconds:   remaining,
		RemainingEstimated: estimated,
		Stages:             stages,
		Errors:             errs,
		Completed:          s.completed,
		Success:            s.success,
	}
}

func stagePct(c *StageCounter) float64 {
	total := c.Total
	if total < 1 {
		total = 1
	}
	return float64(c.Current) / float64(total) * 100
}

// notifyLocked fans a snapshot out to watchers, dropping the oldest
// pending snapshot when a buffer is full. Caller holds s.mu, which also
// serializes against Cleanup closing the channels.
func notifyLocked(s *session, snap Snapshot) {
	for _, ch := range s.watchers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
