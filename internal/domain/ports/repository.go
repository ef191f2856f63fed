package ports

import (
	"context"
	"time"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

// CacheRepository owns CacheEntry lifetime. Put overwrites unconditionally
// (last writer wins; concurrent misses are collapsed upstream).
type CacheRepository interface {
	Get(ctx context.Context, key string) (domain.CacheEntry, error)
	Put(ctx context.Context, entry domain.CacheEntry) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PendingRepository owns PendingConfirmation lifetime and is the sole
// authority for state transitions.
type PendingRepository interface {
	Create(ctx context.Context, pending domain.PendingConfirmation) error
	Get(ctx context.Context, id string) (domain.PendingConfirmation, error)
	ListOpen(ctx context.Context) ([]domain.PendingConfirmation, error)
	// ConfirmOpen atomically moves the record from open to confirmed,
	// recording the selected index. Exactly one caller succeeds under
	// concurrent attempts; the rest get domain.ErrConfirmationConflict.
	ConfirmOpen(ctx context.Context, id string, index int, at time.Time) (domain.PendingConfirmation, error)
	// ExpireOpenBefore marks open records created before the cutoff as
	// expired and returns how many were transitioned.
	ExpireOpenBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HistoryRepository owns the append-only download ledger.
type HistoryRepository interface {
	Append(ctx context.Context, record domain.HistoryRecord) error
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
