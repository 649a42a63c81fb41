package schedule

import (
	"context"
	"fmt"
	"time"
)

// Job is a named poll run on a cron schedule
type Job struct {
	Name     string
	CronExpr string
	Run      func(ctx context.Context) error
}

// Every returns a cron expression firing every d, rounded to whole seconds
func Every(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return fmt.Sprintf("@every %s", d.Round(time.Second))
}

// WarnAfter is the number of consecutive failures after which a job's
// output should be treated as stale
const WarnAfter = 3

// JobStatus is the run history of a registered job
type JobStatus struct {
	Name                string     `json:"name"`
	CronExpr            string     `json:"cron_expr"`
	Runs                int        `json:"runs"`
	Failures            int        `json:"failures"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastRunTime         *time.Time `json:"last_run_time"`
	NextRunTime         *time.Time `json:"next_run_time"`
}

// ShouldWarn returns true once the last WarnAfter runs have all failed
func (s *JobStatus) ShouldWarn() bool {
	return s.ConsecutiveFailures >= WarnAfter
}
