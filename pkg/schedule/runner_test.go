package schedule

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestEvery(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{2 * time.Second, "@every 2s"},
		{1500 * time.Millisecond, "@every 2s"},
		{100 * time.Millisecond, "@every 1s"},
		{time.Minute, "@every 1m0s"},
	}

	for _, tt := range tests {
		if got := Every(tt.d); got != tt.want {
			t.Errorf("Every(%s) = %q, want %q", tt.d, got, tt.want)
		}
		if _, err := Parser.Parse(Every(tt.d)); err != nil {
			t.Errorf("Every(%s) does not parse: %v", tt.d, err)
		}
	}
}

func TestParserAcceptsExpressions(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "*/10 * * * * *", "@hourly", "@every 30s"} {
		if _, err := Parser.Parse(expr); err != nil {
			t.Errorf("Parse(%q) failed: %v", expr, err)
		}
	}
	if _, err := Parser.Parse("not a schedule"); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestRegister(t *testing.T) {
	r := NewRunner(quietLogger())
	noop := func(context.Context) error { return nil }

	if err := r.Register(Job{CronExpr: "@every 1s", Run: noop}); err == nil {
		t.Error("expected error for unnamed job")
	}
	if err := r.Register(Job{Name: "nil", CronExpr: "@every 1s"}); err == nil {
		t.Error("expected error for job without run function")
	}
	if err := r.Register(Job{Name: "bad", CronExpr: "whenever", Run: noop}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if err := r.Register(Job{Name: "poll", CronExpr: "@every 1s", Run: noop}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(Job{Name: "poll", CronExpr: "@every 1s", Run: noop}); err == nil {
		t.Error("expected error for duplicate job")
	}

	status := r.Status()
	if len(status) != 1 || status[0].Name != "poll" {
		t.Errorf("Status = %+v, want one job named poll", status)
	}
	if status[0].NextRunTime != nil {
		t.Error("NextRunTime set before Start")
	}
	if err := r.RunNow("missing"); err == nil {
		t.Error("expected error running unknown job")
	}
}

func TestRunNowRecordsStatus(t *testing.T) {
	r := NewRunner(quietLogger())
	errRead := errors.New("read failed")
	fail := true

	err := r.Register(Job{
		Name:     "poll",
		CronExpr: "@every 1h",
		Run: func(context.Context) error {
			if fail {
				return errRead
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.RunNow("poll"); !errors.Is(err, errRead) {
		t.Errorf("RunNow error = %v, want %v", err, errRead)
	}
	status := r.Status()
	if len(status) != 1 {
		t.Fatalf("Status has %d jobs, want 1", len(status))
	}
	if s := status[0]; s.Runs != 1 || s.Failures != 1 || s.LastError != "read failed" || s.ShouldWarn() {
		t.Errorf("status after failure = %+v", s)
	}

	fail = false
	if err := r.RunNow("poll"); err != nil {
		t.Errorf("RunNow failed: %v", err)
	}
	s := r.Status()[0]
	if s.Runs != 2 || s.Failures != 1 || s.LastError != "" || s.ShouldWarn() {
		t.Errorf("status after success = %+v", s)
	}
	if s.LastRunTime == nil {
		t.Error("LastRunTime not set")
	}
}

func TestOnFailure(t *testing.T) {
	r := NewRunner(quietLogger())
	fail := false

	var reported []JobStatus
	r.OnFailure = func(s JobStatus) { reported = append(reported, s) }

	err := r.Register(Job{
		Name:     "poll",
		CronExpr: "@every 1h",
		Run: func(context.Context) error {
			if fail {
				return errors.New("port read failed")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = r.RunNow("poll")
	if len(reported) != 0 {
		t.Fatalf("OnFailure called for a successful run: %+v", reported)
	}

	fail = true
	for i := 0; i < WarnAfter; i++ {
		_ = r.RunNow("poll")
	}

	if len(reported) != WarnAfter {
		t.Fatalf("OnFailure called %d times, want %d", len(reported), WarnAfter)
	}
	for i, s := range reported {
		if s.ConsecutiveFailures != i+1 || s.LastError != "port read failed" {
			t.Errorf("report %d = %+v", i, s)
		}
		if want := i+1 >= WarnAfter; s.ShouldWarn() != want {
			t.Errorf("report %d ShouldWarn = %v, want %v", i, s.ShouldWarn(), want)
		}
	}

	fail = false
	_ = r.RunNow("poll")
	if s := r.Status()[0]; s.ConsecutiveFailures != 0 || s.ShouldWarn() || s.Failures != WarnAfter {
		t.Errorf("status after recovery = %+v", s)
	}
}

func TestRunNowRecoversPanic(t *testing.T) {
	r := NewRunner(quietLogger())
	err := r.Register(Job{
		Name:     "boom",
		CronExpr: "@every 1h",
		Run:      func(context.Context) error { panic("port exploded") },
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.RunNow("boom"); err == nil {
		t.Error("expected error from panicking job")
	}
	if s := r.Status()[0]; s.Failures != 1 {
		t.Errorf("panic not recorded as failure: %+v", s)
	}
}

func TestScheduledRuns(t *testing.T) {
	r := NewRunner(quietLogger())
	var runs atomic.Int32
	done := make(chan struct{}, 1)

	err := r.Register(Job{
		Name:     "poll",
		CronExpr: Every(time.Second),
		Run: func(context.Context) error {
			if runs.Add(1) == 1 {
				done <- struct{}{}
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	r.Start()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}
	r.Stop()

	// nothing runs after Stop
	after := runs.Load()
	time.Sleep(1500 * time.Millisecond)
	if got := runs.Load(); got != after {
		t.Errorf("job ran %d times after Stop", got-after)
	}
}

func TestStopCancelsJobs(t *testing.T) {
	r := NewRunner(quietLogger())
	err := r.Register(Job{Name: "poll", CronExpr: "@every 1h", Run: func(context.Context) error { return nil }})
	if err != nil {
		t.Fatal(err)
	}

	r.Stop()
	if err := r.RunNow("poll"); !errors.Is(err, context.Canceled) {
		t.Errorf("RunNow after Stop = %v, want context.Canceled", err)
	}
}
