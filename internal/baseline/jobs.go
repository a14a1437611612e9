package baseline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aigentd/internal/metrics"
)

const maxJobEvents = 100

type JobStatus struct {
	JobID          string     `json:"job_id"`
	Status         string     `json:"status"`
	Model          string     `json:"model"`
	TotalCalls     int        `json:"total_calls"`
	CompletedCalls int        `json:"completed_calls"`
	CurrentStep    string     `json:"current_step"`
	StartedAt      time.Time  `json:"started_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	DurationMS     *int64     `json:"duration_ms"`
	Events         []string   `json:"events"`
	Error          *string    `json:"error"`
	Result         *RunResult `json:"result"`
}

type job struct {
	mu sync.Mutex
	// everything below guarded by mu
	status         string
	totalCalls     int
	completedCalls int
	currentStep    string
	startedAt      time.Time
	updatedAt      time.Time
	completedAt    *time.Time
	durationMS     *int64
	events         []string
	err            *string
	result         *RunResult
}

func (j *job) appendEventLocked(message string) {
	j.events = append(j.events, message)
	if len(j.events) > maxJobEvents {
		j.events = j.events[len(j.events)-maxJobEvents:]
	}
	j.updatedAt = time.Now().UTC()
}

func (j *job) progress(step string, inc int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.currentStep = step
	if inc > 0 {
		j.completedCalls += inc
		if j.completedCalls > j.totalCalls {
			j.completedCalls = j.totalCalls
		}
		j.appendEventLocked("Completed: " + step)
	} else {
		j.appendEventLocked("Running: " + step)
	}
}

// Registry tracks baseline jobs in memory for the process lifetime. Jobs
// are never persisted; a restart forgets them.
type Registry struct {
	runner *Runner
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

func NewRegistry(runner *Runner, logger zerolog.Logger) *Registry {
	return &Registry{
		runner: runner,
		logger: logger.With().Str("component", "baseline").Logger(),
		jobs:   make(map[string]*job),
	}
}

// Close waits for in-flight background runs to finish.
func (r *Registry) Close() {
	r.wg.Wait()
}

func (r *Registry) newJob(id string, enforce bool, firstEvent string) *job {
	now := time.Now().UTC()
	j := &job{
		status:      "running",
		totalCalls:  TotalCalls,
		currentStep: "Initializing",
		startedAt:   now,
		updatedAt:   now,
		events:      []string{firstEvent},
	}
	if enforce {
		j.appendEventLocked("Mode: enforcing max response tokens")
	} else {
		j.appendEventLocked("Mode: no max response token cap")
	}
	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()
	return j
}

// Start launches a run in the background and returns its job id immediately.
func (r *Registry) Start(ctx context.Context, enforceMaxResponseTokens bool) string {
	jobID := uuid.NewString()
	j := r.newJob(jobID, enforceMaxResponseTokens, "Baseline run started")

	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(bg, jobID, j, enforceMaxResponseTokens)
	}()
	return jobID
}

// Run executes a full run synchronously. The job is still registered (with
// a "direct-" prefixed id) so its progress shows up in status queries.
func (r *Registry) Run(ctx context.Context, enforceMaxResponseTokens bool) (RunResult, error) {
	jobID := "direct-" + uuid.NewString()
	j := r.newJob(jobID, enforceMaxResponseTokens, "Baseline run started (direct)")
	r.execute(ctx, jobID, j, enforceMaxResponseTokens)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return RunResult{}, fmt.Errorf("baseline run: %s", *j.err)
	}
	return *j.result, nil
}

func (r *Registry) execute(ctx context.Context, jobID string, j *job, enforce bool) {
	result, err := r.runner.Execute(ctx, enforce, j.progress)
	now := time.Now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.completedAt = &now
	if err != nil {
		j.status = "failed"
		msg := fmt.Sprintf("%T: %v", err, err)
		j.err = &msg
		j.appendEventLocked("Baseline failed: " + msg)
		metrics.Global().BaselineJobs.WithLabelValues("failed").Inc()
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("baseline run failed")
		return
	}
	j.status = "completed"
	j.result = &result
	j.durationMS = &result.DurationMS
	j.currentStep = "Completed"
	j.appendEventLocked("Baseline run completed")
	metrics.Global().BaselineJobs.WithLabelValues("completed").Inc()
	r.logger.Info().Str("job_id", jobID).Int64("duration_ms", result.DurationMS).Msg("baseline run completed")
}

// Status returns a point-in-time snapshot of the job, or false when the id
// is unknown.
func (r *Registry) Status(jobID string) (JobStatus, bool) {
	r.mu.Lock()
	j, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return JobStatus{}, false
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	events := make([]string, len(j.events))
	copy(events, j.events)
	return JobStatus{
		JobID:          jobID,
		Status:         j.status,
		Model:          r.runner.model,
		TotalCalls:     j.totalCalls,
		CompletedCalls: j.completedCalls,
		CurrentStep:    j.currentStep,
		StartedAt:      j.startedAt,
		UpdatedAt:      j.updatedAt,
		CompletedAt:    j.completedAt,
		DurationMS:     j.durationMS,
		Events:         events,
		Error:          j.err,
		Result:         j.result,
	}, true
}
