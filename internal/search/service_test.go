package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
	"github.com/brabijan/webshare-arr-connector/internal/rank"
	"github.com/brabijan/webshare-arr-connector/internal/release"
)

type fakeProvider struct {
	name  string
	items []domain.RawCandidate
	hits  atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(ctx context.Context, text string, limit int) ([]domain.RawCandidate, error) {
	_ = ctx
	_ = text
	_ = limit
	p.hits.Add(1)
	return append([]domain.RawCandidate(nil), p.items...), nil
}

type failingProvider struct {
	name string
	err  error
	hits atomic.Int32
}

func (p *failingProvider) Name() string { return p.name }

func (p *failingProvider) Search(ctx context.Context, text string, limit int) ([]domain.RawCandidate, error) {
	p.hits.Add(1)
	return nil, p.err
}

type blockingProvider struct {
	name    string
	items   []domain.RawCandidate
	release chan struct{}
	hits    atomic.Int32
}

func (p *blockingProvider) Name() string { return p.name }

func (p *blockingProvider) Search(ctx context.Context, text string, limit int) ([]domain.RawCandidate, error) {
	p.hits.Add(1)
	select {
	case <-p.release:
		return append([]domain.RawCandidate(nil), p.items...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestService(providers []Provider, opts ...ServiceOption) *Service {
	engine := rank.NewEngine(release.New("cs"))
	return NewService(providers, NewMemoryCache(), engine, domain.RankPolicy{}, 2*time.Second, opts...)
}

func query(title string) domain.SearchQuery {
	return domain.SearchQuery{Title: title, Source: domain.QuerySourceManual}
}

// ---------------------------------------------------------------------------
// Search - basic scenarios
// ---------------------------------------------------------------------------

func TestSearchMergesAndDeduplicatesByIdent(t *testing.T) {
	service := newTestService([]Provider{
		&fakeProvider{name: "first", items: []domain.RawCandidate{
			{Ident: "aaa", Name: "Movie.1080p.WEB-DL.mkv", PositiveVotes: 3},
			{Ident: "bbb", Name: "Movie.720p.HDTV.mkv"},
		}},
		&fakeProvider{name: "second", items: []domain.RawCandidate{
			{Ident: "aaa", Name: "Movie.1080p.WEB-DL.mkv", PositiveVotes: 9},
			{Ident: "ccc", Name: "Movie.2160p.BluRay.mkv"},
		}},
	})

	result, err := service.Search(context.Background(), query("Movie"))
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(result.Candidates) != 3 {
		t.Fatalf("expected 3 deduplicated candidates, got %d", len(result.Candidates))
	}
	if result.FromCache {
		t.Fatalf("first search must not come from cache")
	}
	seen := map[string]int{}
	for _, c := range result.Candidates {
		seen[c.Candidate.Ident]++
	}
	for ident, count := range seen {
		if count != 1 {
			t.Fatalf("ident %q appears %d times", ident, count)
		}
	}
}

func TestSearchEmptyTitleRejected(t *testing.T) {
	service := newTestService([]Provider{&fakeProvider{name: "p"}})
	if _, err := service.Search(context.Background(), query("   ")); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchNoProvidersRejected(t *testing.T) {
	service := newTestService(nil)
	if _, err := service.Search(context.Background(), query("Movie")); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Search - partial failure policy
// ---------------------------------------------------------------------------

func TestSearchPartialFailureStillReturnsResults(t *testing.T) {
	service := newTestService([]Provider{
		&failingProvider{name: "broken", err: errors.New("upstream down")},
		&fakeProvider{name: "healthy", items: []domain.RawCandidate{
			{Ident: "x", Name: "Movie.1080p.WEB-DL.mkv"},
		}},
	})

	result, err := service.Search(context.Background(), query("Movie"))
	if err != nil {
		t.Fatalf("partial failure must not fail the search: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}
	var sawError bool
	for _, status := range result.Providers {
		if !status.OK && status.Error != "" {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("provider statuses must record the failure: %#v", result.Providers)
	}
}

func TestSearchAllProvidersFailed(t *testing.T) {
	service := newTestService([]Provider{
		&failingProvider{name: "one", err: errors.New("down")},
		&failingProvider{name: "two", err: errors.New("also down")},
	})

	_, err := service.Search(context.Background(), query("Movie"))
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
}

func TestSearchAllEmptyButHealthyIsNotAnError(t *testing.T) {
	service := newTestService([]Provider{&fakeProvider{name: "empty"}})
	result, err := service.Search(context.Background(), query("Movie"))
	if err != nil {
		t.Fatalf("empty results from a healthy provider must not error: %v", err)
	}
	if len(result.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(result.Candidates))
	}
}

// ---------------------------------------------------------------------------
// Search - cache behavior
// ---------------------------------------------------------------------------

func TestSearchSecondCallServedFromCache(t *testing.T) {
	provider := &fakeProvider{name: "p", items: []domain.RawCandidate{
		{Ident: "x", Name: "Movie.1080p.WEB-DL.mkv"},
	}}
	service := newTestService([]Provider{provider})

	if _, err := service.Search(context.Background(), query("Movie")); err != nil {
		t.Fatalf("first search: %v", err)
	}
	hitsAfterFirst := provider.hits.Load()

	result, err := service.Search(context.Background(), query("Movie"))
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if !result.FromCache {
		t.Fatalf("second search must be served from cache")
	}
	if provider.hits.Load() != hitsAfterFirst {
		t.Fatalf("cached search must not hit the provider again")
	}
}

func TestSearchExpiredCacheEntryIsAMiss(t *testing.T) {
	provider := &fakeProvider{name: "p", items: []domain.RawCandidate{
		{Ident: "x", Name: "Movie.1080p.WEB-DL.mkv"},
	}}
	service := newTestService([]Provider{provider}, WithCacheTTL(time.Hour))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.Now = func() time.Time { return base }
	if _, err := service.Search(context.Background(), query("Movie")); err != nil {
		t.Fatalf("first search: %v", err)
	}
	hitsAfterFirst := provider.hits.Load()

	service.Now = func() time.Time { return base.Add(time.Hour) }
	result, err := service.Search(context.Background(), query("Movie"))
	if err != nil {
		t.Fatalf("search at exact TTL age: %v", err)
	}
	if result.FromCache {
		t.Fatalf("entry at age equal to TTL must count as a miss")
	}
	if provider.hits.Load() == hitsAfterFirst {
		t.Fatalf("expired entry must trigger a new provider fan-out")
	}
}

func TestSearchElapsedDerivedFromInjectedClock(t *testing.T) {
	provider := &fakeProvider{name: "p", items: []domain.RawCandidate{
		{Ident: "x", Name: "Movie.1080p.WEB-DL.mkv"},
	}}
	service := newTestService([]Provider{provider})

	// A base far from the wall clock makes any real-clock arithmetic obvious.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	service.Now = func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)-1) * 50 * time.Millisecond)
	}

	result, err := service.Search(context.Background(), query("Movie"))
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if result.ElapsedMS < 0 || result.ElapsedMS > 1000 {
		t.Fatalf("elapsed must come from the injected clock, got %dms", result.ElapsedMS)
	}
}

func TestSearchCacheDisabledAlwaysFansOut(t *testing.T) {
	provider := &fakeProvider{name: "p", items: []domain.RawCandidate{
		{Ident: "x", Name: "Movie.1080p.WEB-DL.mkv"},
	}}
	service := newTestService([]Provider{provider}, WithCacheDisabled(true))

	for i := 0; i < 3; i++ {
		if _, err := service.Search(context.Background(), query("Movie")); err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
	}
	if got := provider.hits.Load(); got != 3 {
		t.Fatalf("expected 3 provider calls with cache disabled, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Search - request collapsing
// ---------------------------------------------------------------------------

func TestConcurrentIdenticalSearchesCollapse(t *testing.T) {
	provider := &blockingProvider{
		name:    "slow",
		items:   []domain.RawCandidate{{Ident: "x", Name: "Movie.1080p.WEB-DL.mkv"}},
		release: make(chan struct{}),
	}
	service := newTestService([]Provider{provider})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.Search(context.Background(), query("Movie"))
		}(i)
	}

	// Let all callers reach the singleflight barrier, then release the
	// provider once.
	time.Sleep(50 * time.Millisecond)
	close(provider.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if len(results[i].Candidates) != 1 {
			t.Fatalf("caller %d: expected 1 candidate, got %d", i, len(results[i].Candidates))
		}
	}
	if got := provider.hits.Load(); got != 1 {
		t.Fatalf("expected a single collapsed provider call, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Variants
// ---------------------------------------------------------------------------

func TestVariantsForEpisodicQuery(t *testing.T) {
	variants := Variants(domain.SearchQuery{Title: "The Rookie", Season: 1, Episode: 5})
	want := []string{"The Rookie S01E05", "The Rookie 1x05", "The Rookie"}
	if len(variants) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), variants)
	}
	for i := range want {
		if variants[i] != want[i] {
			t.Fatalf("variant %d: expected %q, got %q", i, want[i], variants[i])
		}
	}
}

func TestVariantsForYearQuery(t *testing.T) {
	variants := Variants(domain.SearchQuery{Title: "Heat", Year: 1995})
	want := []string{"Heat 1995", "Heat"}
	if len(variants) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), variants)
	}
	for i := range want {
		if variants[i] != want[i] {
			t.Fatalf("variant %d: expected %q, got %q", i, want[i], variants[i])
		}
	}
}

func TestVariantsCollapseWhitespaceAndDuplicates(t *testing.T) {
	variants := Variants(domain.SearchQuery{Title: "  Solo   Title  "})
	if len(variants) != 1 || variants[0] != "Solo Title" {
		t.Fatalf("unexpected variants: %v", variants)
	}
}

func TestBareTitleVariantFindsCandidateWhenSpecificOnesMiss(t *testing.T) {
	provider := &variantAwareProvider{
		name: "p",
		byVariant: map[string][]domain.RawCandidate{
			"The Rookie": {{Ident: "x", Name: "The.Rookie.S01E05.1080p.WEB-DL.mkv"}},
		},
	}
	service := newTestService([]Provider{provider})

	result, err := service.Search(context.Background(), domain.SearchQuery{
		Title: "The Rookie", Season: 1, Episode: 5, Source: domain.QuerySourceSonarr,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected bare title variant to find the candidate, got %d", len(result.Candidates))
	}
	if got := provider.hits.Load(); got != 3 {
		t.Fatalf("expected all 3 variants attempted, got %d calls", got)
	}
}

func TestSearchMergesCandidatesAcrossAllVariants(t *testing.T) {
	provider := &variantAwareProvider{
		name: "p",
		byVariant: map[string][]domain.RawCandidate{
			"The Rookie S01E05": {{Ident: "a", Name: "The.Rookie.S01E05.2160p.WEB-DL.mkv"}},
			"The Rookie 1x05": {
				{Ident: "b", Name: "The.Rookie.1x05.1080p.WEB-DL.mkv"},
				{Ident: "a", Name: "The.Rookie.S01E05.2160p.WEB-DL.mkv"},
			},
			"The Rookie": {{Ident: "c", Name: "The.Rookie.S01E05.720p.HDTV.mkv"}},
		},
	}
	service := newTestService([]Provider{provider})

	result, err := service.Search(context.Background(), domain.SearchQuery{
		Title: "The Rookie", Season: 1, Episode: 5, Source: domain.QuerySourceSonarr,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(result.Candidates) != 3 {
		t.Fatalf("expected candidates from all 3 variants merged, got %d", len(result.Candidates))
	}
	seen := make(map[string]bool, len(result.Candidates))
	for _, candidate := range result.Candidates {
		seen[candidate.Candidate.Ident] = true
	}
	for _, ident := range []string{"a", "b", "c"} {
		if !seen[ident] {
			t.Errorf("candidate %q missing from merged result", ident)
		}
	}
	if got := provider.hits.Load(); got != 3 {
		t.Fatalf("expected all 3 variants queried, got %d calls", got)
	}
}

func TestSearchStopsVariantsAtMergeLimit(t *testing.T) {
	provider := &variantAwareProvider{
		name: "p",
		byVariant: map[string][]domain.RawCandidate{
			"The Rookie S01E05": {
				{Ident: "a", Name: "The.Rookie.S01E05.2160p.WEB-DL.mkv"},
				{Ident: "b", Name: "The.Rookie.S01E05.1080p.WEB-DL.mkv"},
			},
			"The Rookie 1x05": {{Ident: "c", Name: "The.Rookie.1x05.1080p.WEB-DL.mkv"}},
			"The Rookie":      {{Ident: "d", Name: "The.Rookie.S01E05.720p.HDTV.mkv"}},
		},
	}
	service := newTestService([]Provider{provider}, WithMergeLimit(2))

	result, err := service.Search(context.Background(), domain.SearchQuery{
		Title: "The Rookie", Season: 1, Episode: 5, Source: domain.QuerySourceSonarr,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("expected merge limit to cap candidates at 2, got %d", len(result.Candidates))
	}
	if got := provider.hits.Load(); got != 1 {
		t.Fatalf("expected later variants skipped once the cap is reached, got %d calls", got)
	}
}

type variantAwareProvider struct {
	name      string
	byVariant map[string][]domain.RawCandidate
	hits      atomic.Int32
}

func (p *variantAwareProvider) Name() string { return p.name }

func (p *variantAwareProvider) Search(ctx context.Context, text string, limit int) ([]domain.RawCandidate, error) {
	p.hits.Add(1)
	return append([]domain.RawCandidate(nil), p.byVariant[text]...), nil
}
