package service

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is one pass of a periodic background task.
type Job func(ctx context.Context) error

// SchedulerConfig holds configuration for a Scheduler.
type SchedulerConfig struct {
	// Interval is how often the job runs.
	Interval time.Duration

	// Timeout bounds a single run.
	// Default: 5 minutes
	Timeout time.Duration

	// InitialDelay postpones the first run after Start.
	// Default: run immediately
	InitialDelay time.Duration
}

// Scheduler runs a Job on a ticker until stopped. Runs never overlap.
type Scheduler struct {
	name      string
	job       Job
	config    SchedulerConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	runMu     sync.Mutex
	isRunning bool
	mu        sync.Mutex
}

// NewScheduler creates a scheduler; name prefixes its log lines.
func NewScheduler(name string, config SchedulerConfig, job Job) *Scheduler {
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}

	return &Scheduler{
		name:   name,
		job:    job,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Printf("[%s] Started - Interval: %v", s.name, s.config.Interval)

	go func() {
		if s.config.InitialDelay > 0 {
			select {
			case <-time.After(s.config.InitialDelay):
			case <-s.stopCh:
				return
			}
		}
		s.runOnce()
		s.run()
	}()
}

func (s *Scheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stopCh:
			log.Printf("[%s] Stopped", s.name)
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	if err := s.RunNow(); err != nil {
		log.Printf("[%s] Error during run: %v", s.name, err)
	}
}

// Stop stops the scheduler. A run in progress finishes.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow runs the job immediately, waiting for any run in progress.
func (s *Scheduler) RunNow() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	return s.job(ctx)
}
