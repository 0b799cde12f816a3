// Package jobs runs the periodic maintenance work on robfig/cron: the
// minute replan pass and the daily inventory reset.
package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"invbot/pkg/logx"
)

type Runner struct {
	cron *cron.Cron
	log  logx.Logger
}

func NewRunner(loc *time.Location, log logx.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl)),
	)
	return &Runner{cron: c, log: log}
}

// AddEveryMinute registers fn to run once per minute.
func (r *Runner) AddEveryMinute(name string, fn func()) {
	_, _ = r.cron.AddFunc("* * * * *", r.wrap(name, fn))
}

// AddDaily registers fn to run once per day at the local HH:MM.
func (r *Runner) AddDaily(name, hhmm string, fn func()) error {
	hour, minute, err := parseClock(hhmm)
	if err != nil {
		return err
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := r.cron.AddFunc(spec, r.wrap(name, fn)); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return nil
}

func (r *Runner) wrap(name string, fn func()) func() {
	return func() {
		started := time.Now()
		fn()
		r.log.Debug("job finished",
			logx.String("job", name),
			logx.Duration("took", time.Since(started)))
	}
}

func (r *Runner) Start() { r.cron.Start() }

// Stop halts scheduling and waits for running jobs, bounded by ctx.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop().Done()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// parseClock parses "HH:MM".
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad clock time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad clock time %q: hour out of range", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad clock time %q: minute out of range", s)
	}
	return hour, minute, nil
}

// cronLogger adapts logx to cron's logging interface.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
