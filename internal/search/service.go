package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
	"github.com/brabijan/webshare-arr-connector/internal/domain/ports"
	"github.com/brabijan/webshare-arr-connector/internal/metrics"
	"github.com/brabijan/webshare-arr-connector/internal/rank"
)

// maxConcurrentProviders limits simultaneous provider calls within one
// fan-out pass.
const maxConcurrentProviders = 4

const (
	defaultCacheTTL   = 168 * time.Hour
	defaultMergeLimit = 50
)

// Ranker orders raw candidates; satisfied by rank.Engine.
type Ranker interface {
	Rank(candidates []domain.RawCandidate, policy domain.RankPolicy) []domain.ScoredCandidate
}

// Result is the outcome of one search orchestration: the full ranked list
// plus provenance. Candidates are ordered best first.
type Result struct {
	Query      domain.SearchQuery       `json:"query"`
	Candidates []domain.ScoredCandidate `json:"candidates"`
	FromCache  bool                     `json:"fromCache"`
	Providers  []ProviderStatus         `json:"providers,omitempty"`
	ElapsedMS  int64                    `json:"elapsedMs"`
}

// Service runs the search pipeline: cache lookup, collapsed provider
// fan-out on miss, dedup and merge, cache write, then parse and rank.
type Service struct {
	providers     []Provider
	cache         ports.CacheRepository
	redisCache    *RedisCacheBackend
	ranker        Ranker
	policy        domain.RankPolicy
	timeout       time.Duration
	mergeLimit    int
	cacheTTL      time.Duration
	cacheDisabled bool
	logger        *slog.Logger
	group         singleflight.Group

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

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithMergeLimit(limit int) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.mergeLimit = limit
		}
	}
}

func NewService(providers []Provider, cache ports.CacheRepository, ranker Ranker, policy domain.RankPolicy, timeout time.Duration, opts ...ServiceOption) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	svc := &Service{
		providers:  providers,
		cache:      cache,
		ranker:     ranker,
		policy:     policy,
		timeout:    timeout,
		mergeLimit: defaultMergeLimit,
		cacheTTL:   defaultCacheTTL,
		logger:     slog.Default(),
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Search resolves a query to a ranked candidate list. Concurrent calls for
// the same query key share a single provider fan-out; every caller gets the
// ranked view of the same raw results.
func (s *Service) Search(ctx context.Context, query domain.SearchQuery) (Result, error) {
	if strings.TrimSpace(query.Title) == "" {
		return Result{}, ErrInvalidQuery
	}
	if len(s.providers) == 0 {
		return Result{}, ErrNoProviders
	}

	started := s.Now()
	key := query.Key()

	if !s.cacheDisabled {
		if results, ok := s.cacheLookup(ctx, key); ok {
			metrics.SearchesTotal.WithLabelValues(string(query.Source), "cache_hit").Inc()
			return s.buildResult(query, results, true, nil, started), nil
		}
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		results, statuses, fanErr := s.fanOut(ctx, query)
		if fanErr != nil {
			return flight{statuses: statuses}, fanErr
		}
		if !s.cacheDisabled {
			s.cacheStore(ctx, domain.CacheEntry{
				Key:       key,
				Results:   results,
				CreatedAt: s.Now(),
				TTL:       s.cacheTTL,
			})
		}
		return flight{results: results, statuses: statuses}, nil
	})
	fl, _ := value.(flight)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(string(query.Source), "error").Inc()
		return Result{Query: query, Providers: fl.statuses}, err
	}

	metrics.SearchesTotal.WithLabelValues(string(query.Source), "ok").Inc()
	return s.buildResult(query, fl.results, false, fl.statuses, started), nil
}

type flight struct {
	results  []domain.RawCandidate
	statuses []ProviderStatus
}

func (s *Service) buildResult(query domain.SearchQuery, results []domain.RawCandidate, fromCache bool, statuses []ProviderStatus, started time.Time) Result {
	return Result{
		Query:      query,
		Candidates: s.ranker.Rank(results, s.policy),
		FromCache:  fromCache,
		Providers:  statuses,
		ElapsedMS:  s.Now().Sub(started).Milliseconds(),
	}
}

// cacheLookup consults Redis first when configured, then the repository.
// An expired repository entry counts as a miss and stays in place for the
// sweeper to remove.
func (s *Service) cacheLookup(ctx context.Context, key string) ([]domain.RawCandidate, bool) {
	now := s.Now()
	if s.redisCache != nil {
		entry, found, err := s.redisCache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("redis cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if found && !entry.Expired(now) {
			metrics.CacheHitsTotal.Inc()
			return entry.Results, true
		}
	}

	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	if entry.Expired(now) {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return entry.Results, true
}

func (s *Service) cacheStore(ctx context.Context, entry domain.CacheEntry) {
	if s.redisCache != nil {
		if err := s.redisCache.Set(ctx, entry); err != nil {
			s.logger.Warn("redis cache write failed", slog.String("key", entry.Key), slog.String("error", err.Error()))
		}
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		s.logger.Warn("cache write failed", slog.String("key", entry.Key), slog.String("error", err.Error()))
	}
}

// fanOut runs every query variant in order, querying all providers per
// variant with bounded concurrency. Results from all variants are merged
// with ident dedup up to the merge cap.
func (s *Service) fanOut(ctx context.Context, query domain.SearchQuery) ([]domain.RawCandidate, []ProviderStatus, error) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		merged   []domain.RawCandidate
		seen     = make(map[string]struct{})
		statuses []ProviderStatus
	)

	for _, variant := range Variants(query) {
		sem := semaphore.NewWeighted(maxConcurrentProviders)
		var wg sync.WaitGroup

		for _, provider := range s.providers {
			wg.Add(1)
			go func(provider Provider, variant string) {
				defer wg.Done()

				if err := sem.Acquire(runCtx, 1); err != nil {
					mu.Lock()
					statuses = append(statuses, ProviderStatus{
						Name:    provider.Name(),
						Variant: variant,
						Error:   "context cancelled",
					})
					mu.Unlock()
					return
				}
				defer sem.Release(1)

				providerStarted := time.Now()
				var items []domain.RawCandidate
				searchErr := RetryWithBackoff(runCtx, DefaultRetryConfig(), func() error {
					var err error
					items, err = provider.Search(runCtx, variant, s.mergeLimit)
					return err
				})
				metrics.ProviderRequestDuration.WithLabelValues(provider.Name()).Observe(time.Since(providerStarted).Seconds())

				status := ProviderStatus{
					Name:    provider.Name(),
					Variant: variant,
					OK:      searchErr == nil,
					Count:   len(items),
				}
				if searchErr != nil {
					status.Error = searchErr.Error()
					metrics.ProviderRequestsTotal.WithLabelValues(provider.Name(), "error").Inc()
					s.logger.Warn("provider search failed",
						slog.String("provider", provider.Name()),
						slog.String("variant", variant),
						slog.String("error", searchErr.Error()),
					)
				} else {
					metrics.ProviderRequestsTotal.WithLabelValues(provider.Name(), "ok").Inc()
				}

				mu.Lock()
				statuses = append(statuses, status)
				for _, item := range items {
					if item.Ident == "" {
						continue
					}
					if _, exists := seen[item.Ident]; exists {
						continue
					}
					if len(merged) >= s.mergeLimit {
						break
					}
					seen[item.Ident] = struct{}{}
					merged = append(merged, item)
				}
				mu.Unlock()
			}(provider, variant)
		}
		wg.Wait()

		mu.Lock()
		full := len(merged) >= s.mergeLimit
		mu.Unlock()
		if full {
			break
		}
	}

	if len(merged) == 0 && allFailed(statuses) {
		return nil, statuses, ErrAllProvidersFailed
	}
	return merged, statuses, nil
}

func allFailed(statuses []ProviderStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, status := range statuses {
		if status.OK {
			return false
		}
	}
	return true
}

// Ensure rank.Engine keeps satisfying Ranker.
var _ Ranker = (*rank.Engine)(nil)
