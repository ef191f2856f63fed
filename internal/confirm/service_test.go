package confirm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
	"github.com/brabijan/webshare-arr-connector/internal/metrics"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakePendingRepo struct {
	mu      sync.Mutex
	records map[string]domain.PendingConfirmation
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{records: make(map[string]domain.PendingConfirmation)}
}

func (r *fakePendingRepo) Create(_ context.Context, pending domain.PendingConfirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[pending.ID] = pending
	return nil
}

func (r *fakePendingRepo) Get(_ context.Context, id string) (domain.PendingConfirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, ok := r.records[id]
	if !ok {
		return domain.PendingConfirmation{}, domain.ErrNotFound
	}
	return pending, nil
}

func (r *fakePendingRepo) ListOpen(_ context.Context) ([]domain.PendingConfirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []domain.PendingConfirmation
	for _, pending := range r.records {
		if pending.State == domain.PendingOpen {
			open = append(open, pending)
		}
	}
	return open, nil
}

func (r *fakePendingRepo) ConfirmOpen(_ context.Context, id string, index int, at time.Time) (domain.PendingConfirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, ok := r.records[id]
	if !ok {
		return domain.PendingConfirmation{}, domain.ErrNotFound
	}
	if pending.State != domain.PendingOpen {
		return domain.PendingConfirmation{}, domain.ErrConfirmationConflict
	}
	pending.State = domain.PendingConfirmed
	pending.SelectedIndex = index
	pending.ConfirmedAt = &at
	r.records[id] = pending
	return pending, nil
}

func (r *fakePendingRepo) ExpireOpenBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired int64
	for id, pending := range r.records {
		if pending.State == domain.PendingOpen && pending.CreatedAt.Before(cutoff) {
			pending.State = domain.PendingExpired
			r.records[id] = pending
			expired++
		}
	}
	return expired, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
}

func (r *fakeHistoryRepo) Append(_ context.Context, record domain.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeHistoryRepo) List(_ context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.HistoryRecord
	for _, record := range r.records {
		if filter.QueryKey != "" && record.QueryKey != filter.QueryKey {
			continue
		}
		if filter.Outcome != "" && record.Outcome != filter.Outcome {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (r *fakeHistoryRepo) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var removed int64
	for _, record := range r.records {
		if record.CompletedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	r.records = kept
	return removed, nil
}

type fakeResolver struct {
	link string
	err  error
}

func (r *fakeResolver) Resolve(_ context.Context, ident string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.link + ident, nil
}

type fakePusher struct {
	mu        sync.Mutex
	packageID string
	err       error
	pushed    [][]string
}

func (p *fakePusher) Push(_ context.Context, links []string, packageName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.pushed = append(p.pushed, links)
	return p.packageID, nil
}

func candidates(n int) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, n)
	for i := range out {
		out[i] = domain.ScoredCandidate{
			Candidate: domain.RawCandidate{Ident: string(rune('a' + i)), Name: "Movie.1080p.WEB-DL.mkv"},
			Score:     100 - i,
			Position:  i + 1,
		}
	}
	return out
}

func testQuery() domain.SearchQuery {
	return domain.SearchQuery{Title: "The Rookie", Season: 1, Episode: 5, Source: domain.QuerySourceSonarr}
}

// ---------------------------------------------------------------------------
// Open
// ---------------------------------------------------------------------------

func TestOpenCapsCandidates(t *testing.T) {
	repo := newFakePendingRepo()
	service := NewService(repo, &fakeHistoryRepo{}, &fakeResolver{link: "https://dl/"}, &fakePusher{packageID: "1"})

	pending, err := service.Open(context.Background(), testQuery(), candidates(9))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if len(pending.Candidates) != domain.MaxPendingCandidates {
		t.Fatalf("expected %d candidates, got %d", domain.MaxPendingCandidates, len(pending.Candidates))
	}
	if pending.State != domain.PendingOpen {
		t.Fatalf("expected open state, got %s", pending.State)
	}
	if pending.SelectedIndex != -1 {
		t.Fatalf("expected no selection, got %d", pending.SelectedIndex)
	}
}

func TestOpenRejectsEmptyCandidateList(t *testing.T) {
	service := NewService(newFakePendingRepo(), &fakeHistoryRepo{}, &fakeResolver{}, &fakePusher{})
	if _, err := service.Open(context.Background(), testQuery(), nil); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestSeedPendingGaugeMatchesStore(t *testing.T) {
	repo := newFakePendingRepo()
	service := NewService(repo, &fakeHistoryRepo{}, &fakeResolver{link: "https://dl/"}, &fakePusher{packageID: "1"})

	for i := 0; i < 3; i++ {
		if _, err := service.Open(context.Background(), testQuery(), candidates(1)); err != nil {
			t.Fatalf("open error: %v", err)
		}
	}

	// A restart loses the in-process gauge while the store keeps the records.
	metrics.PendingOpenGauge.Set(0)
	if err := service.SeedPendingGauge(context.Background()); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	if got := testutil.ToFloat64(metrics.PendingOpenGauge); got != 3 {
		t.Fatalf("expected gauge seeded to 3 open pendings, got %v", got)
	}
}

// ---------------------------------------------------------------------------
// Confirm - happy path
// ---------------------------------------------------------------------------

func TestConfirmDispatchesAndAppendsHistory(t *testing.T) {
	repo := newFakePendingRepo()
	history := &fakeHistoryRepo{}
	pusher := &fakePusher{packageID: "pkg-42"}
	service := NewService(repo, history, &fakeResolver{link: "https://dl/"}, pusher)

	pending, err := service.Open(context.Background(), testQuery(), candidates(3))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	record, err := service.Confirm(context.Background(), pending.ID, 1)
	if err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	if record.Outcome != domain.OutcomeSucceeded {
		t.Fatalf("expected succeeded outcome, got %s", record.Outcome)
	}
	if record.PackageID != "pkg-42" {
		t.Fatalf("expected package id pkg-42, got %q", record.PackageID)
	}
	if record.QueryKey != testQuery().Key() {
		t.Fatalf("unexpected query key %q", record.QueryKey)
	}

	stored, err := repo.Get(context.Background(), pending.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if stored.State != domain.PendingConfirmed {
		t.Fatalf("expected confirmed state, got %s", stored.State)
	}
	if stored.SelectedIndex != 1 {
		t.Fatalf("expected selected index 1, got %d", stored.SelectedIndex)
	}
	if stored.ConfirmedAt == nil {
		t.Fatalf("confirmedAt must be set")
	}
	if len(history.records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history.records))
	}
	if len(pusher.pushed) != 1 || len(pusher.pushed[0]) != 1 {
		t.Fatalf("expected a single pushed link, got %#v", pusher.pushed)
	}
}

// ---------------------------------------------------------------------------
// Confirm - error taxonomy
// ---------------------------------------------------------------------------

func TestConfirmUnknownIDReturnsNotFound(t *testing.T) {
	service := NewService(newFakePendingRepo(), &fakeHistoryRepo{}, &fakeResolver{}, &fakePusher{})
	if _, err := service.Confirm(context.Background(), "missing", 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmIndexOutOfRangeCheckedBeforeTransition(t *testing.T) {
	repo := newFakePendingRepo()
	service := NewService(repo, &fakeHistoryRepo{}, &fakeResolver{}, &fakePusher{})

	pending, err := service.Open(context.Background(), testQuery(), candidates(2))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	if _, err := service.Confirm(context.Background(), pending.ID, 5); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}

	stored, _ := repo.Get(context.Background(), pending.ID)
	if stored.State != domain.PendingOpen {
		t.Fatalf("out-of-range index must not consume the record, state=%s", stored.State)
	}
}

func TestConfirmSecondAttemptConflicts(t *testing.T) {
	repo := newFakePendingRepo()
	service := NewService(repo, &fakeHistoryRepo{}, &fakeResolver{link: "https://dl/"}, &fakePusher{packageID: "1"})

	pending, err := service.Open(context.Background(), testQuery(), candidates(2))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if _, err := service.Confirm(context.Background(), pending.ID, 0); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := service.Confirm(context.Background(), pending.ID, 1); !errors.Is(err, domain.ErrConfirmationConflict) {
		t.Fatalf("expected ErrConfirmationConflict, got %v", err)
	}
}

func TestConcurrentConfirmsHaveExactlyOneWinner(t *testing.T) {
	repo := newFakePendingRepo()
	history := &fakeHistoryRepo{}
	service := NewService(repo, history, &fakeResolver{link: "https://dl/"}, &fakePusher{packageID: "1"})

	pending, err := service.Open(context.Background(), testQuery(), candidates(5))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	const attempts = 10
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Confirm(context.Background(), pending.ID, i%5)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, domain.ErrConfirmationConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if len(history.records) != 1 {
		t.Fatalf("expected exactly one history record, got %d", len(history.records))
	}
}

// ---------------------------------------------------------------------------
// Confirm - dispatch failures
// ---------------------------------------------------------------------------

func TestConfirmResolveFailureKeepsRecordConfirmed(t *testing.T) {
	repo := newFakePendingRepo()
	history := &fakeHistoryRepo{}
	service := NewService(repo, history, &fakeResolver{err: errors.New("link gone")}, &fakePusher{packageID: "1"})

	pending, err := service.Open(context.Background(), testQuery(), candidates(1))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	record, err := service.Confirm(context.Background(), pending.ID, 0)
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
	if record.Outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", record.Outcome)
	}
	if record.Error == "" {
		t.Fatalf("failed record must carry the error text")
	}

	stored, _ := repo.Get(context.Background(), pending.ID)
	if stored.State != domain.PendingConfirmed {
		t.Fatalf("dispatch failure must not roll back the confirm, state=%s", stored.State)
	}
	if len(history.records) != 1 || history.records[0].Outcome != domain.OutcomeFailed {
		t.Fatalf("expected one failed history record, got %#v", history.records)
	}
}

func TestConfirmPushFailureRecordedAsFailed(t *testing.T) {
	repo := newFakePendingRepo()
	history := &fakeHistoryRepo{}
	service := NewService(repo, history, &fakeResolver{link: "https://dl/"}, &fakePusher{err: errors.New("pyload unreachable")})

	pending, err := service.Open(context.Background(), testQuery(), candidates(1))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	record, err := service.Confirm(context.Background(), pending.ID, 0)
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
	if record.Outcome != domain.OutcomeFailed || record.PackageID != "" {
		t.Fatalf("unexpected record: %#v", record)
	}
}

// ---------------------------------------------------------------------------
// History listing
// ---------------------------------------------------------------------------

func TestHistoryFilterByOutcome(t *testing.T) {
	repo := newFakePendingRepo()
	history := &fakeHistoryRepo{}
	service := NewService(repo, history, &fakeResolver{link: "https://dl/"}, &fakePusher{packageID: "1"})

	first, _ := service.Open(context.Background(), testQuery(), candidates(1))
	if _, err := service.Confirm(context.Background(), first.ID, 0); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	failing := NewService(repo, history, &fakeResolver{err: errors.New("gone")}, &fakePusher{})
	second, _ := failing.Open(context.Background(), domain.SearchQuery{Title: "Heat", Year: 1995}, candidates(1))
	if _, err := failing.Confirm(context.Background(), second.ID, 0); !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected dispatch failure, got %v", err)
	}

	succeeded, err := service.History(context.Background(), domain.HistoryFilter{Outcome: domain.OutcomeSucceeded})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(succeeded) != 1 {
		t.Fatalf("expected 1 succeeded record, got %d", len(succeeded))
	}
	failed, err := service.History(context.Background(), domain.HistoryFilter{Outcome: domain.OutcomeFailed})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed record, got %d", len(failed))
	}
}
