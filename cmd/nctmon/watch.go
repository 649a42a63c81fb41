package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/nctmon/pkg/board"
	"github.com/mscrnt/nctmon/pkg/display"
	"github.com/mscrnt/nctmon/pkg/schedule"
)

const pollJob = "sensors"

func watchCmd(opts *globalOptions) *cobra.Command {
	var (
		interval int
		cronExpr string
		noReload bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Redraw all sensors periodically",
		Long: `Clear the screen and redraw every sensor on a schedule. Values that
changed since they were last highlighted are shown in red: temperatures and
voltages after moving more than 0.1, fans on any change.

With -n 0 the sensors are printed once. When --profile names a YAML file,
edits to it are picked up without restarting. Failed polls are reported on
stderr.

Examples:
  # Redraw every 2 seconds
  sudo nctmon watch -n 2

  # Redraw every 10 seconds using a cron expression
  sudo nctmon watch --schedule "*/10 * * * * *"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hw, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = hw.Close() }()

			if err := hw.init(cmd.ErrOrStderr(), opts.requireChip); err != nil {
				return err
			}

			poll := newPoller(hw, display.NewRenderer(cmd.OutOrStdout()))

			if cronExpr == "" {
				if interval <= 0 {
					return poll(cmd.Context())
				}
				cronExpr = schedule.Every(time.Duration(interval) * time.Second)
			}

			logger := log.New(cmd.ErrOrStderr(), "[watch] ", log.LstdFlags)
			if !opts.verbose {
				logger = hw.logger
			}

			runner := schedule.NewRunner(logger)
			runner.StopTimeout = 5 * time.Second
			if err := runner.Register(schedule.Job{Name: pollJob, CronExpr: cronExpr, Run: poll}); err != nil {
				return err
			}

			// first frame immediately, then on schedule
			if err := runner.RunNow(pollJob); err != nil {
				return err
			}
			runner.OnFailure = reportFailure(cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if src := hw.profile.Source; src != "" && !noReload {
				go func() {
					err := board.Watch(ctx, src, func(p *board.Profile) {
						hw.dec.SetProfile(p)
					}, logger)
					if err != nil && ctx.Err() == nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Warning: profile reload disabled: %v\n", err)
					}
				}()
			}

			runner.Start()
			<-ctx.Done()
			runner.Stop()

			printSummary(cmd.ErrOrStderr(), runner.Status())
			return nil
		},
	}

	cmd.Flags().IntVarP(&interval, "interval", "n", 2, "Seconds between redraws, 0 to print once")
	cmd.Flags().StringVar(&cronExpr, "schedule", "", "Cron expression for redraws (overrides -n)")
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "Do not reload a profile file when it changes")

	return cmd
}

// newPoller returns a job that reads a snapshot and draws one frame. A
// reloaded profile resets the highlight cache.
func newPoller(hw *hardware, renderer *display.Renderer) func(context.Context) error {
	var mu sync.Mutex
	lastProfile := hw.dec.Profile()

	return func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()

		if p := hw.dec.Profile(); p != lastProfile {
			renderer.Reset()
			lastProfile = p
		}
		snap, err := hw.dec.Snapshot()
		if err != nil {
			return err
		}
		return renderer.Frame(snap)
	}
}

// reportFailure writes every failed poll to w, and flags the screen as
// stale once polls keep failing
func reportFailure(w io.Writer) func(schedule.JobStatus) {
	return func(s schedule.JobStatus) {
		fmt.Fprintf(w, "Warning: %s poll failed: %s\n", s.Name, s.LastError)
		if s.ShouldWarn() {
			fmt.Fprintf(w, "Warning: last %d polls failed, readings on screen are stale\n", s.ConsecutiveFailures)
		}
	}
}

func printSummary(w io.Writer, status []schedule.JobStatus) {
	for _, s := range status {
		if s.Failures == 0 {
			continue
		}
		fmt.Fprintf(w, "%s: %d of %d polls failed", s.Name, s.Failures, s.Runs)
		if s.LastError != "" {
			fmt.Fprintf(w, " (last error: %s)", s.LastError)
		}
		fmt.Fprintln(w)
	}
}
