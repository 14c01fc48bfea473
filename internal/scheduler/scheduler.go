// Package scheduler runs the periodic booking sweeps on gocron.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Sweeper is implemented by the booking service.
type Sweeper interface {
	SweepNoShows(ctx context.Context) (int, error)
	ExpireUnpaid(ctx context.Context) (int, error)
}

// Scheduler owns a gocron scheduler with the no-show and unpaid-expiry
// jobs registered on it.
type Scheduler struct {
	cron   gocron.Scheduler
	log    logrus.FieldLogger
	ctx    context.Context
	cancel context.CancelFunc
	every  time.Duration
}

// New registers both sweeps to run every interval.  Jobs run in singleton
// mode, so a slow sweep delays the next run instead of overlapping it.
func New(sw Sweeper, every time.Duration, loc *time.Location, log logrus.FieldLogger) (*Scheduler, error) {
	if sw == nil {
		return nil, errors.New("scheduler: nil sweeper")
	}
	if every <= 0 {
		every = time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	cron, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron,
		log:    log.WithField("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
		every:  every,
	}
	jobs := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"sweep-no-shows", sw.SweepNoShows},
		{"expire-unpaid", sw.ExpireUnpaid},
	}
	for _, j := range jobs {
		_, err := cron.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(s.run, j.name, j.run),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			_ = cron.Shutdown()
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) run(name string, fn func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(s.ctx, s.every)
	defer cancel()
	n, err := fn(ctx)
	entry := s.log.WithFields(logrus.Fields{"job": name, "changed": n})
	if err != nil {
		entry.WithError(err).Error("sweep failed")
		return
	}
	entry.Debug("sweep done")
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("every", s.every.String()).Info("scheduler started")
}

// Stop cancels running sweeps and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.cron.Shutdown()
}
