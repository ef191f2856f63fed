// Package confirm implements the pending-confirmation workflow: opening a
// pending record with the top ranked candidates, the single-winner confirm
// transition, and the download dispatch that follows it.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
	"github.com/brabijan/webshare-arr-connector/internal/domain/ports"
	"github.com/brabijan/webshare-arr-connector/internal/metrics"
)

// ErrNoCandidates is returned when a pending record would hold an empty
// candidate list.
var ErrNoCandidates = errors.New("no candidates to confirm")

// ErrDispatchFailed wraps link-resolve or push failures that happen after a
// successful confirm. The pending record stays confirmed; the failure is
// recorded in history and the caller may retry dispatch out of band.
var ErrDispatchFailed = errors.New("download dispatch failed")

// Notifier receives pending lifecycle events. Implemented by the websocket
// hub; a nil notifier disables broadcasting.
type Notifier interface {
	PendingOpened(pending domain.PendingConfirmation)
	PendingConfirmed(pending domain.PendingConfirmation, record domain.HistoryRecord)
}

type Service struct {
	pending  ports.PendingRepository
	history  ports.HistoryRepository
	resolver ports.LinkResolver
	pusher   ports.DownloadPusher
	logger   *slog.Logger
	notifier Notifier

	// Now is injectable for tests.
	Now func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

func NewService(pending ports.PendingRepository, history ports.HistoryRepository, resolver ports.LinkResolver, pusher ports.DownloadPusher, opts ...ServiceOption) *Service {
	svc := &Service{
		pending:  pending,
		history:  history,
		resolver: resolver,
		pusher:   pusher,
		logger:   slog.Default(),
		Now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Open creates a pending confirmation holding at most MaxPendingCandidates
// of the given ranked candidates, best first.
func (s *Service) Open(ctx context.Context, query domain.SearchQuery, candidates []domain.ScoredCandidate) (domain.PendingConfirmation, error) {
	if len(candidates) == 0 {
		return domain.PendingConfirmation{}, ErrNoCandidates
	}
	if len(candidates) > domain.MaxPendingCandidates {
		candidates = candidates[:domain.MaxPendingCandidates]
	}

	pending := domain.PendingConfirmation{
		ID:            uuid.NewString(),
		Query:         query,
		Candidates:    append([]domain.ScoredCandidate(nil), candidates...),
		State:         domain.PendingOpen,
		SelectedIndex: -1,
		CreatedAt:     s.Now(),
	}
	if err := pending.Validate(); err != nil {
		return domain.PendingConfirmation{}, err
	}
	if err := s.pending.Create(ctx, pending); err != nil {
		return domain.PendingConfirmation{}, fmt.Errorf("create pending: %w", err)
	}

	metrics.PendingOpenGauge.Inc()
	s.logger.Info("pending confirmation opened",
		slog.String("id", pending.ID),
		slog.String("query", query.Display()),
		slog.Int("candidates", len(pending.Candidates)),
	)
	if s.notifier != nil {
		s.notifier.PendingOpened(pending)
	}
	return pending, nil
}

// SeedPendingGauge aligns the open-pending gauge with the store. Call once
// at startup; without it the gauge starts at zero after a restart and the
// expiry decrements drive it negative.
func (s *Service) SeedPendingGauge(ctx context.Context) error {
	open, err := s.pending.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open pending: %w", err)
	}
	metrics.PendingOpenGauge.Set(float64(len(open)))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.PendingConfirmation, error) {
	return s.pending.Get(ctx, id)
}

func (s *Service) ListOpen(ctx context.Context) ([]domain.PendingConfirmation, error) {
	return s.pending.ListOpen(ctx)
}

// Confirm selects one candidate of an open pending record and dispatches
// the download. The Open->Confirmed transition is atomic in the repository:
// under concurrent confirms exactly one caller proceeds to dispatch, the
// rest get domain.ErrConfirmationConflict. A dispatch failure after the
// transition leaves the record confirmed and appends a failed history entry.
func (s *Service) Confirm(ctx context.Context, id string, index int) (domain.HistoryRecord, error) {
	current, err := s.pending.Get(ctx, id)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	if index < 0 || index >= len(current.Candidates) {
		metrics.ConfirmationsTotal.WithLabelValues("index_out_of_range").Inc()
		return domain.HistoryRecord{}, domain.ErrIndexOutOfRange
	}

	confirmed, err := s.pending.ConfirmOpen(ctx, id, index, s.Now())
	if err != nil {
		if errors.Is(err, domain.ErrConfirmationConflict) {
			metrics.ConfirmationsTotal.WithLabelValues("conflict").Inc()
		}
		return domain.HistoryRecord{}, err
	}
	metrics.PendingOpenGauge.Dec()

	chosen := confirmed.Candidates[index]
	record := domain.HistoryRecord{
		ID:          uuid.NewString(),
		QueryKey:    confirmed.Query.Key(),
		Chosen:      chosen,
		CompletedAt: s.Now(),
	}

	packageID, dispatchErr := s.dispatch(ctx, confirmed.Query, chosen)
	if dispatchErr != nil {
		record.Outcome = domain.OutcomeFailed
		record.Error = dispatchErr.Error()
		metrics.ConfirmationsTotal.WithLabelValues("dispatch_failed").Inc()
		metrics.DownloadsPushedTotal.WithLabelValues("error").Inc()
	} else {
		record.Outcome = domain.OutcomeSucceeded
		record.PackageID = packageID
		metrics.ConfirmationsTotal.WithLabelValues("ok").Inc()
		metrics.DownloadsPushedTotal.WithLabelValues("ok").Inc()
	}

	if err := s.history.Append(ctx, record); err != nil {
		s.logger.Error("history append failed",
			slog.String("pendingId", id),
			slog.String("error", err.Error()),
		)
	}
	if s.notifier != nil {
		s.notifier.PendingConfirmed(confirmed, record)
	}

	if dispatchErr != nil {
		s.logger.Warn("download dispatch failed",
			slog.String("pendingId", id),
			slog.String("ident", chosen.Candidate.Ident),
			slog.String("error", dispatchErr.Error()),
		)
		return record, fmt.Errorf("%w: %s", ErrDispatchFailed, dispatchErr.Error())
	}

	s.logger.Info("download dispatched",
		slog.String("pendingId", id),
		slog.String("ident", chosen.Candidate.Ident),
		slog.String("packageId", packageID),
	)
	return record, nil
}

func (s *Service) dispatch(ctx context.Context, query domain.SearchQuery, chosen domain.ScoredCandidate) (string, error) {
	link, err := s.resolver.Resolve(ctx, chosen.Candidate.Ident)
	if err != nil {
		return "", fmt.Errorf("resolve link: %w", err)
	}
	packageID, err := s.pusher.Push(ctx, []string{link}, query.Display())
	if err != nil {
		return "", fmt.Errorf("push download: %w", err)
	}
	return packageID, nil
}

// History lists ledger entries matching the filter, newest first.
func (s *Service) History(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	return s.history.List(ctx, filter)
}
