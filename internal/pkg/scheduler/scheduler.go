package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/nusapay/qrisgate/app/repository"
	"github.com/nusapay/qrisgate/internal/pkg/env"
	"github.com/nusapay/qrisgate/internal/pkg/metrics/counter"
	"github.com/nusapay/qrisgate/internal/pkg/payment"
	"github.com/nusapay/qrisgate/internal/pkg/webhook"
)

// Scheduler drives the periodic maintenance loop: invoice expiry, stale-row
// GC and one webhook batch per tick. Ticks never overlap; if one is still
// running when the interval fires again, that firing is skipped.
type Scheduler struct {
	repos      *repository.Repositories
	payments   *payment.Service
	dispatcher *webhook.Dispatcher

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	ticking  atomic.Bool

	mu      sync.Mutex
	running bool
}

// New creates a scheduler with its interval from the environment.
func New(repos *repository.Repositories, payments *payment.Service, dispatcher *webhook.Dispatcher) *Scheduler {
	return &Scheduler{
		repos:      repos,
		payments:   payments,
		dispatcher: dispatcher,
		interval:   env.GetEnvDuration("SCHEDULER_INTERVAL", 15*time.Second),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the loop. Calling it while the loop is running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	s.wg.Add(1)
	go s.loop()
	log.Infof("[Scheduler] started, interval %s", s.interval)
}

// Stop terminates the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	log.Info("[Scheduler] stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.ticking.CompareAndSwap(false, true) {
				log.Warn("[Scheduler] previous tick still running, skipping")
				continue
			}
			s.Tick(time.Now())
			s.ticking.Store(false)
		}
	}
}

// Tick runs one maintenance pass. Exported so tests and operator tooling can
// drive the loop manually.
func (s *Scheduler) Tick(now time.Time) {
	expired, err := s.payments.ExpireDue(now)
	if err != nil {
		log.Errorf("[Scheduler] expiry scan failed: %v", err)
	} else if expired > 0 {
		log.Infof("[Scheduler] expired %d invoices", expired)
	}

	if n, err := s.repos.Nonce.DeleteExpired(now); err != nil {
		log.Errorf("[Scheduler] nonce GC failed: %v", err)
	} else if n > 0 {
		log.Debugf("[Scheduler] removed %d expired nonces", n)
	}

	if n, err := s.repos.Invoice.SweepExpiredPending(now); err != nil {
		log.Errorf("[Scheduler] pending GC failed: %v", err)
	} else if n > 0 {
		log.Debugf("[Scheduler] removed %d stale pending claims", n)
	}

	s.dispatcher.ProcessBatch(now)

	if err := counter.FlushAll(); err != nil {
		log.Errorf("[Scheduler] counter flush failed: %v", err)
	}
}
