// Package maintain runs the retention sweep over cache entries, pending
// confirmations and history records. Sweeps are idempotent; running them
// concurrently or repeatedly only ever removes what is already past its
// window.
package maintain

import (
	"context"
	"log/slog"
	"time"

	"github.com/brabijan/webshare-arr-connector/internal/domain/ports"
	"github.com/brabijan/webshare-arr-connector/internal/metrics"
)

// Report summarizes one sweep pass.
type Report struct {
	CacheRemoved   int64     `json:"cacheRemoved"`
	PendingExpired int64     `json:"pendingExpired"`
	HistoryRemoved int64     `json:"historyRemoved"`
	SweptAt        time.Time `json:"sweptAt"`
}

type Sweeper struct {
	cache   ports.CacheRepository
	pending ports.PendingRepository
	history ports.HistoryRepository

	pendingTTL       time.Duration
	historyRetention time.Duration
	logger           *slog.Logger

	// Now is injectable for tests.
	Now func() time.Time
}

type SweeperOption func(*Sweeper)

func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSweeper(cache ports.CacheRepository, pending ports.PendingRepository, history ports.HistoryRepository, pendingTTL, historyRetention time.Duration, opts ...SweeperOption) *Sweeper {
	sweeper := &Sweeper{
		cache:            cache,
		pending:          pending,
		history:          history,
		pendingTTL:       pendingTTL,
		historyRetention: historyRetention,
		logger:           slog.Default(),
		Now:              time.Now,
	}
	for _, opt := range opts {
		opt(sweeper)
	}
	return sweeper
}

// Sweep removes expired cache entries, expires stale open pendings and
// drops history records older than the retention window. Each collection is
// swept independently; one failing store does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	now := s.Now()
	report := Report{SweptAt: now}
	var firstErr error

	removed, err := s.cache.DeleteExpired(ctx, now)
	if err != nil {
		firstErr = err
		s.logger.Error("cache sweep failed", slog.String("error", err.Error()))
	} else {
		report.CacheRemoved = removed
		metrics.SweepRemovedTotal.WithLabelValues("search_cache").Add(float64(removed))
	}

	if s.pendingTTL > 0 {
		expired, err := s.pending.ExpireOpenBefore(ctx, now.Add(-s.pendingTTL))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("pending sweep failed", slog.String("error", err.Error()))
		} else {
			report.PendingExpired = expired
			metrics.SweepRemovedTotal.WithLabelValues("pending_confirmations").Add(float64(expired))
			metrics.PendingOpenGauge.Sub(float64(expired))
		}
	}

	if s.historyRetention > 0 {
		removed, err := s.history.DeleteCompletedBefore(ctx, now.Add(-s.historyRetention))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("history sweep failed", slog.String("error", err.Error()))
		} else {
			report.HistoryRemoved = removed
			metrics.SweepRemovedTotal.WithLabelValues("download_history").Add(float64(removed))
		}
	}

	s.logger.Info("retention sweep finished",
		slog.Int64("cacheRemoved", report.CacheRemoved),
		slog.Int64("pendingExpired", report.PendingExpired),
		slog.Int64("historyRemoved", report.HistoryRemoved),
	)
	return report, firstErr
}

// Run sweeps on the given interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("scheduled sweep finished with errors", slog.String("error", err.Error()))
			}
		}
	}
}
