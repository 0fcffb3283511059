package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/jwoo-kim/weather-etl/internal/etl"
)

// Scheduler invokes the ETL runner on a fixed period, indefinitely.
// Runs never overlap: the job is registered in singleton mode, so a tick
// that comes due while a run is still in flight is skipped and the next
// eligible tick is evaluated one period after the last invocation start.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    *etl.Runner
	interval  time.Duration
}

// New creates a Scheduler that triggers runner.RunOnce every interval.
func New(interval time.Duration, runner *etl.Runner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
	}
}

// Start registers the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().SingletonMode().Do(func() {
		log.Println("scheduler: triggering ETL run")
		s.runner.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Printf("scheduler: started, running every %d minute(s)", minutes)
	return nil
}

// Stop stops the scheduler and cancels any future ticks.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
