package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dygy/strudel-samples/internal/loader"
	"github.com/dygy/strudel-samples/internal/pipeline"
	"github.com/dygy/strudel-samples/internal/progress"
)

// Job status constants
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusComplete   JobStatus = "complete"
	StatusFailed     JobStatus = "failed"
)

// Job kinds
const (
	KindPreload = "preload"
	KindSamples = "samples"
)

// jobRetention is how long finished jobs stay queryable
const jobRetention = 10 * time.Minute

// JobView is the JSON shape of a job
type JobView struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	Status    JobStatus        `json:"status"`
	Stage     string           `json:"stage"`
	Report    *pipeline.Report `json:"report,omitempty"`
	Result    *loader.Result   `json:"result,omitempty"`
	Confirmed bool             `json:"confirmed,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Job is one background preload or sample fetch
type Job struct {
	ID      string
	Kind    string
	Updates chan string

	mu        sync.Mutex
	status    JobStatus
	stage     string
	report    *pipeline.Report
	result    *loader.Result
	confirmed bool
	err       string
	createdAt time.Time
}

// View returns a consistent snapshot of the job
func (j *Job) View() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobView{
		ID:        j.ID,
		Kind:      j.Kind,
		Status:    j.status,
		Stage:     j.stage,
		Report:    j.report,
		Result:    j.result,
		Confirmed: j.confirmed,
		Error:     j.err,
		CreatedAt: j.createdAt,
	}
}

// Finished reports whether the job completed or failed
func (j *Job) Finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == StatusComplete || j.status == StatusFailed
}

// send delivers an update without blocking the pipeline; slow SSE readers
// miss intermediate lines, never the final state
func (j *Job) send(msg string) {
	select {
	case j.Updates <- msg:
	default:
	}
}

func (j *Job) setStage(stage string) {
	j.mu.Lock()
	j.stage = stage
	j.mu.Unlock()
	j.send(stage)
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	j.status = StatusFailed
	j.err = err.Error()
	j.stage = "Failed"
	j.mu.Unlock()
	j.send(fmt.Sprintf("Error: %s", err))
}

// JobManager runs jobs against the shared preloader
type JobManager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	preloader *pipeline.Preloader
	seq       atomic.Uint64
	retention time.Duration
}

// NewJobManager creates a job manager and subscribes it to the preloader's
// progress events
func NewJobManager(preloader *pipeline.Preloader) *JobManager {
	m := &JobManager{
		jobs:      make(map[string]*Job),
		preloader: preloader,
		retention: jobRetention,
	}
	preloader.Progress().OnEvent(m.broadcast)
	return m
}

// Create creates a new job
func (m *JobManager) Create(kind string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := fmt.Sprintf("%d-%d", time.Now().UnixNano(), m.seq.Add(1))
	job := &Job{
		ID:        id,
		Kind:      kind,
		Updates:   make(chan string, 64),
		status:    StatusPending,
		stage:     "Queued",
		createdAt: time.Now(),
	}
	m.jobs[id] = job
	return job
}

// Get retrieves a job by ID
func (m *JobManager) Get(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// broadcast forwards a progress line to every running job. The reporter
// is shared, so concurrent jobs see each other's lines.
func (m *JobManager) broadcast(ev progress.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		job.mu.Lock()
		running := job.status == StatusProcessing
		if running {
			job.stage = ev.Message
		}
		job.mu.Unlock()
		if running {
			job.send(ev.Message)
		}
	}
}

func (m *JobManager) start(job *Job) {
	job.mu.Lock()
	job.status = StatusProcessing
	job.mu.Unlock()
}

// finish closes the update stream and schedules removal
func (m *JobManager) finish(job *Job) {
	close(job.Updates)
	time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
	})
}

// Preload runs a code preload for a job
func (m *JobManager) Preload(ctx context.Context, job *Job, code string) {
	defer m.finish(job)
	m.start(job)

	report, err := m.preloader.Preload(ctx, code)
	if err != nil {
		job.fail(err)
		return
	}

	job.mu.Lock()
	job.report = report
	job.confirmed = report.Confirmed
	job.status = StatusComplete
	job.mu.Unlock()
	job.setStage(fmt.Sprintf("Complete: %d loaded, %d cached, %d failed", len(report.Loaded), len(report.Cached), len(report.Failed)))
}

// Fetch loads a sample source for a job
func (m *JobManager) Fetch(ctx context.Context, job *Job, source string, opts loader.Options) {
	defer m.finish(job)
	m.start(job)
	job.setStage("Loading " + source)

	res, confirmed, err := m.preloader.Fetch(ctx, source, opts)
	if err != nil {
		job.fail(err)
		return
	}

	job.mu.Lock()
	job.result = res
	job.confirmed = confirmed
	job.status = StatusComplete
	job.mu.Unlock()
	job.setStage(fmt.Sprintf("Complete: %d banks", len(res.Banks)))
}
