// Package scheduler advances auctions through their lifecycle on a fixed period, independent of any
// client activity.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Martin-Hayot/live-auction-server/internal/metrics"
	"github.com/charmbracelet/log"
)

// DueLister finds auctions whose start or end time has passed.
type DueLister interface {
	ListDueUpcoming(ctx context.Context, now time.Time) ([]int64, error)
	ListDueActive(ctx context.Context, now time.Time) ([]int64, error)
}

// Transitioner applies the guarded lifecycle transitions. *auction.Engine implements it.
type Transitioner interface {
	Activate(ctx context.Context, auctionID int64) (bool, error)
	Resolve(ctx context.Context, auctionID int64) (bool, error)
}

type Scheduler struct {
	store    DueLister
	engine   Transitioner
	interval time.Duration
	metrics  *metrics.Metrics

	sweeping sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store DueLister, engine Transitioner, interval time.Duration, m *metrics.Metrics) *Scheduler {
	return &Scheduler{store: store, engine: engine, interval: interval, metrics: m}
}

// Start sweeps once immediately and then every interval until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
	log.Info("Scheduler started", "interval", s.interval)
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// An in-flight sweep always completes; cancellation only stops the next one.
	sweepCtx := context.WithoutCancel(ctx)
	s.Sweep(sweepCtx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(sweepCtx, now)
		}
	}
}

// Stop cancels the schedule and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info("Scheduler stopped")
}

// Sweep promotes every due UPCOMING auction, then resolves every due ACTIVE one. An auction whose
// start and end have both passed is promoted and resolved in the same sweep, always passing through
// ACTIVE. A sweep that overlaps a slower one is skipped.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (promoted, ended int) {
	if !s.sweeping.TryLock() {
		log.Debug("Previous sweep still running, skipping")
		return 0, 0
	}
	defer s.sweeping.Unlock()

	start := time.Now()
	defer func() {
		s.metrics.SweepsTotal.Inc()
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	upcoming, err := s.store.ListDueUpcoming(ctx, now)
	if err != nil {
		log.Error("Error listing upcoming auctions", "err", err)
	}
	for _, id := range upcoming {
		ok, err := s.engine.Activate(ctx, id)
		if err != nil {
			log.Error("Error starting auction", "auction", id, "err", err)
			continue
		}
		if ok {
			promoted++
		}
	}

	active, err := s.store.ListDueActive(ctx, now)
	if err != nil {
		log.Error("Error listing active auctions", "err", err)
		return promoted, ended
	}
	for _, id := range active {
		ok, err := s.engine.Resolve(ctx, id)
		if err != nil {
			log.Error("Error ending auction", "auction", id, "err", err)
			continue
		}
		if ok {
			ended++
		}
	}

	if promoted > 0 || ended > 0 {
		log.Debugf("Sweep started %d and ended %d auctions", promoted, ended)
	}
	return promoted, ended
}
