package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs every job on a fixed interval. A job never overlaps with
// itself; different sources run independently.
type Scheduler struct {
	cron       *cron.Cron
	jobs       []*Job
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
	wg      sync.WaitGroup
}

func NewScheduler(jobs []*Job, interval time.Duration, runOnStart bool, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cronLogger{logger})),
		jobs:       jobs,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger,
		entries:    make(map[string]cron.EntryID),
	}
}

// Start registers one entry per job and starts the cron loop. Jobs run with
// a context derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	spec := "@every " + s.interval.String()
	cl := cronLogger{s.logger}

	for _, job := range s.jobs {
		src := job.Source()
		wrapped := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(s.runner(runCtx, job))

		id, err := s.cron.AddJob(spec, wrapped)
		if err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", src.Key, err)
		}
		s.entries[src.Key] = id

		if src.Period > 0 && src.Period != s.interval {
			s.logger.Info("Source period differs from poll interval, using poll interval",
				"source", src.Key, "period", src.Period, "interval", s.interval)
		}
		s.logger.Info("Scheduled source", "source", src.Key, "interval", s.interval)

		if s.runOnStart {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				wrapped.Run()
			}()
		}
	}

	s.cancel = cancel
	s.cron.Start()
	return nil
}

// Stop cancels running cycles and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Next reports the next planned run per source key.
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for key, id := range s.entries {
		out[key] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Scheduler) runner(ctx context.Context, job *Job) cron.Job {
	return cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = job.Run(ctx)
	})
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
