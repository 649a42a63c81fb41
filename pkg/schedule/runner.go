// Package schedule runs periodic sensor polls on cron schedules
package schedule

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser accepts five-field expressions with optional seconds and
// descriptors such as @every 2s
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type entry struct {
	id     cron.EntryID
	job    Job
	status JobStatus
}

// Runner manages scheduled polls
type Runner struct {
	cron        *cron.Cron
	jobs        map[string]*entry
	mu          sync.RWMutex
	logger      *log.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	StopTimeout time.Duration

	// OnFailure, if set, is called after every failed run with the job's
	// updated status. It runs on the job's goroutine.
	OnFailure func(JobStatus)
}

// NewRunner creates a new schedule runner. A poll still running when its
// next tick arrives is skipped, so slow chip access never stacks up.
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		jobs:        make(map[string]*entry),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		StopTimeout: 30 * time.Second,
	}
}

// Start starts the scheduler
func (r *Runner) Start() {
	r.cron.Start()

	r.mu.RLock()
	n := len(r.jobs)
	r.mu.RUnlock()
	r.logger.Printf("Scheduler started with %d active jobs", n)
}

// Stop stops the scheduler and waits for running polls to finish
func (r *Runner) Stop() {
	r.cancel()

	ctx := r.cron.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(r.StopTimeout):
		r.logger.Println("Timeout waiting for jobs to complete")
	}

	r.logger.Println("Scheduler stopped")
}

// Register adds a job to the runner
func (r *Runner) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}

	e := &entry{
		job:    job,
		status: JobStatus{Name: job.Name, CronExpr: job.CronExpr},
	}
	id, err := r.cron.AddFunc(job.CronExpr, func() { r.execute(e) })
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	e.id = id
	r.jobs[job.Name] = e

	r.logger.Printf("Registered job '%s' with cron expression: %s", job.Name, job.CronExpr)
	return nil
}

// RunNow runs a registered job immediately on the calling goroutine
func (r *Runner) RunNow(name string) error {
	r.mu.RLock()
	e, exists := r.jobs[name]
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job %q not found", name)
	}
	return r.execute(e)
}

// execute runs one poll and records its outcome
func (r *Runner) execute(e *entry) (err error) {
	select {
	case <-r.ctx.Done():
		return r.ctx.Err()
	default:
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in job %s: %v", e.job.Name, p)
		}
		status := r.record(e, err)
		if err != nil && r.OnFailure != nil {
			r.OnFailure(status)
		}
	}()

	return e.job.Run(r.ctx)
}

func (r *Runner) record(e *entry, err error) JobStatus {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e.status.Runs++
	e.status.LastRunTime = &now
	if err != nil {
		e.status.Failures++
		e.status.ConsecutiveFailures++
		e.status.LastError = err.Error()
		r.logger.Printf("Job %s failed: %v", e.job.Name, err)
	} else {
		e.status.ConsecutiveFailures = 0
		e.status.LastError = ""
	}
	return e.status
}

// Status returns the run history of every job, sorted by name
func (r *Runner) Status() []JobStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]JobStatus, 0, len(r.jobs))
	for _, e := range r.jobs {
		s := e.status
		if next := r.cron.Entry(e.id).Next; !next.IsZero() {
			s.NextRunTime = &next
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
