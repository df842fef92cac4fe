// Package scheduler runs backup sessions on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned by RunOnce while another run is in progress
var ErrAlreadyRunning = errors.New("a backup session is already running")

// RunFunc performs one backup session
type RunFunc func(ctx context.Context) error

// Scheduler handles cron scheduling for backup sessions
type Scheduler struct {
	cronScheduler *cron.Cron
	schedule      string
	entryID       cron.EntryID
	run           RunFunc
	log           logrus.FieldLogger

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// New validates the cron expression and returns a stopped scheduler.
// Standard five-field expressions and descriptors such as @daily or @every 6h are accepted.
func New(schedule string, run RunFunc, log logrus.FieldLogger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	log = log.WithField("schedule", schedule)
	return &Scheduler{
		cronScheduler: cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log)))),
		schedule:      schedule,
		run:           run,
		log:           log,
	}, nil
}

// Start registers the job and begins scheduling. Runs use a context derived
// from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already started")
	}
	runCtx, cancel := context.WithCancel(ctx)

	id, err := s.cronScheduler.AddFunc(s.schedule, func() {
		if err := s.RunOnce(runCtx); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				s.log.Warn("Previous backup session still running, skipping this run")
				return
			}
			s.log.WithError(err).Error("Scheduled backup session failed")
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	s.entryID = id
	s.cancel = cancel
	s.cronScheduler.Start()
	s.log.WithField("next_run", s.NextRun()).Info("Backup scheduler started")
	return nil
}

// Stop cancels in-flight runs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.cronScheduler.Stop().Done()
	s.log.Info("Backup scheduler stopped")
}

// RunOnce runs a session now unless one is already in progress
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	start := time.Now()
	s.log.Info("Starting backup session")
	err := s.run(ctx)
	s.log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("Backup session finished")
	return err
}

// Running reports whether a session is in progress
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// NextRun returns the next scheduled time, or zero before Start
func (s *Scheduler) NextRun() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cronScheduler.Entry(s.entryID).Next
}
