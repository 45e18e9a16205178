package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Refresher is a task that reloads some in-process state.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs periodic background jobs for the API server.
type Scheduler struct {
	scheduler gocron.Scheduler
	timeout   time.Duration
}

// NewScheduler constructs a stopped scheduler. timeout bounds every job run.
func NewScheduler(timeout time.Duration) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{scheduler: scheduler, timeout: timeout}, nil
}

// AddRefresh runs target every interval, skipping a tick while the previous
// run is still going. It also runs once right away.
func (s *Scheduler) AddRefresh(name string, interval time.Duration, target Refresher) error {
	if interval <= 0 {
		return errors.New("refresh interval must be positive")
	}
	if target == nil {
		return errors.New("refresh target is required")
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.runRefresh, name, target),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}
	log.Printf("registered job %s every %s", name, interval)
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) runRefresh(name string, target Refresher) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := target.Refresh(ctx); err != nil {
		log.Printf("job %s failed: %v", name, err)
	}
}
