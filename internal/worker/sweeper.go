// Package worker runs background maintenance next to the HTTP server.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Purger deletes idempotency keys recorded before a cutoff.
type Purger interface {
	PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper periodically drops idempotency keys older than ttl.
type Sweeper struct {
	store    Purger
	logger   *zap.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(store Purger, logger *zap.Logger, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		logger:   logger,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Start sweeps once right away and then on every interval until Stop is
// called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("starting idempotency key sweeper",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval),
	)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping idempotency key sweeper...")
		close(s.stop)
	})
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.ttl)
	n, err := s.store.PurgeIdempotencyKeys(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("purge idempotency keys", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("purged idempotency keys", zap.Int64("count", n), zap.Time("before", cutoff))
	}
}
