package poller

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultInterval = 2 * time.Second

// Scheduler maintains one recurring timer per tracked job id. At most one
// timer exists per id at any instant.
type Scheduler struct {
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	timers map[string]chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		interval: interval,
		logger:   logger,
		timers:   make(map[string]chan struct{}),
	}
}

// Start begins polling for jobID. The callback runs once immediately, then on
// every interval tick until Stop. A second Start for the same id is a no-op,
// so a reconciliation pass racing a fresh submission cannot double-poll.
func (s *Scheduler) Start(jobID string, fn func()) {
	s.mu.Lock()
	if _, ok := s.timers[jobID]; ok {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	s.timers[jobID] = done
	s.mu.Unlock()

	s.logger.Debug().Str("job_id", jobID).Msg("polling started")
	s.wg.Add(1)
	go s.run(jobID, fn, done)
}

// run executes ticks for one id in a single goroutine, so two callbacks for
// the same job can never overlap; a tick arriving while a slow callback is
// still waiting on the network is dropped by the ticker, not queued.
func (s *Scheduler) run(jobID string, fn func(), done chan struct{}) {
	defer s.wg.Done()

	fn()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			select {
			case <-done:
				return
			default:
			}
			fn()
		}
	}
}

// Stop cancels the timer for jobID. Idempotent; an in-flight callback is not
// aborted, only the next tick is.
func (s *Scheduler) Stop(jobID string) {
	s.mu.Lock()
	done, ok := s.timers[jobID]
	if ok {
		delete(s.timers, jobID)
	}
	s.mu.Unlock()

	if ok {
		close(done)
		s.logger.Debug().Str("job_id", jobID).Msg("polling stopped")
	}
}

// StopAll cancels every tracked timer and waits for their goroutines to exit.
// Called once at controller teardown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for id, done := range s.timers {
		close(done)
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Active returns the number of tracked timers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
