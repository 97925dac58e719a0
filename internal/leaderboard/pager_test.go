package leaderboard

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prode/internal/domain"
	"prode/pkg/errors"
	"prode/pkg/logger"
)

func entries(from, n int) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, n)
	for i := range out {
		out[i] = domain.LeaderboardEntry{
			Position:         from + i,
			DisplayName:      gofakeit.Username(),
			Points:           1000 - (from + i),
			ExactPredictions: gofakeit.IntRange(0, 10),
		}
	}
	return out
}

func strPtr(s string) *string { return &s }

// pagedFetcher serves fixed pages keyed by round slug and cursor ("" is the first page)
type pagedFetcher struct {
	mu    sync.Mutex
	pages map[string]map[string]domain.LeaderboardPage
	calls int32
	// gate, when set, blocks fetches for the given round until closed
	gate     map[string]chan struct{}
	started  chan string
	failOnce error
}

func (f *pagedFetcher) FetchLeaderboardPage(ctx context.Context, roundSlug string, tournamentID int, cursor *string) (*domain.LeaderboardPage, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- roundSlug
	}
	if g, ok := f.gate[roundSlug]; ok {
		select {
		case <-g:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce != nil {
		err := f.failOnce
		f.failOnce = nil
		return nil, err
	}
	key := ""
	if cursor != nil {
		key = *cursor
	}
	page, ok := f.pages[roundSlug][key]
	if !ok {
		return nil, errors.NewNotFoundError("no such page")
	}
	return &page, nil
}

func twoPageFetcher() *pagedFetcher {
	return &pagedFetcher{pages: map[string]map[string]domain.LeaderboardPage{
		"r1": {
			"":          {Entries: entries(1, 20), Next: strPtr("cursor123")},
			"cursor123": {Entries: entries(21, 15), Next: nil},
		},
		"r2": {
			"": {Entries: entries(1, 5), Next: nil},
		},
	}}
}

func assertContiguousRanks(t *testing.T, got []domain.LeaderboardEntry) {
	t.Helper()
	for i, e := range got {
		assert.Equal(t, i+1, e.Position, "rank gap at index %d", i)
	}
}

func TestAppendPage(t *testing.T) {
	first := entries(1, 3)
	second := domain.LeaderboardPage{Entries: entries(4, 2)}

	got := AppendPage(first[:2:3], second)
	require.Len(t, got, 4)
	assert.Equal(t, 3, first[2].Position, "existing backing array must not be overwritten")
	assert.Equal(t, []int{1, 2, 4, 5}, []int{got[0].Position, got[1].Position, got[2].Position, got[3].Position})

	assert.Empty(t, AppendPage(nil, domain.LeaderboardPage{}))
}

func TestAppendPage_NoDeduplication(t *testing.T) {
	page := domain.LeaderboardPage{Entries: entries(1, 2)}
	got := AppendPage(AppendPage(nil, page), page)
	assert.Len(t, got, 4)
}

func TestPager_FetchesAndAppendsInOrder(t *testing.T) {
	f := twoPageFetcher()
	p := NewPager(f, logger.Nop())
	ctx := context.Background()

	view, err := p.ResetAndFetchFirstPage(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 20)
	assert.True(t, view.HasMore)
	assert.True(t, view.Loaded)

	view, err = p.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 35)
	assert.False(t, view.HasMore)
	assertContiguousRanks(t, view.Entries)

	view, err = p.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 35, "no more pages is a no-op")
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestPager_ResetYieldsExactlyFirstPage(t *testing.T) {
	f := twoPageFetcher()
	p := NewPager(f, logger.Nop())
	ctx := context.Background()

	_, err := p.ResetAndFetchFirstPage(ctx, "r1", 0)
	require.NoError(t, err)
	_, err = p.LoadMore(ctx)
	require.NoError(t, err)

	view, err := p.ResetAndFetchFirstPage(ctx, "r1", 0)
	require.NoError(t, err)
	if diff := cmp.Diff(f.pages["r1"][""].Entries, view.Entries); diff != "" {
		t.Fatalf("reset entries mismatch (-want +got):\n%s", diff)
	}

	view, err = p.ResetAndFetchFirstPage(ctx, "r2", 7)
	require.NoError(t, err)
	assert.Equal(t, "r2", view.RoundSlug)
	assert.Equal(t, 7, view.TournamentID)
	assert.Len(t, view.Entries, 5)
}

func TestPager_LoadMoreBeforeFirstPage(t *testing.T) {
	p := NewPager(twoPageFetcher(), logger.Nop())

	_, err := p.LoadMore(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
}

func TestPager_FailedLoadMoreLeavesListUnchanged(t *testing.T) {
	f := twoPageFetcher()
	p := NewPager(f, logger.Nop())
	ctx := context.Background()

	_, err := p.ResetAndFetchFirstPage(ctx, "r1", 0)
	require.NoError(t, err)

	f.failOnce = stderrors.New("network down")
	view, err := p.LoadMore(ctx)
	require.Error(t, err)
	assert.Len(t, view.Entries, 20)
	assert.True(t, view.HasMore)

	view, err = p.LoadMore(ctx)
	require.NoError(t, err, "the cursor is still usable after a failure")
	assert.Len(t, view.Entries, 35)
}

func TestPager_ConcurrentLoadMoreDoesNotDuplicate(t *testing.T) {
	f := twoPageFetcher()
	p := NewPager(f, logger.Nop())
	ctx := context.Background()

	_, err := p.ResetAndFetchFirstPage(ctx, "r1", 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.LoadMore(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view := p.View()
	assert.Len(t, view.Entries, 35)
	assertContiguousRanks(t, view.Entries)
}

func TestPager_StaleFirstPageIsDiscarded(t *testing.T) {
	f := twoPageFetcher()
	f.gate = map[string]chan struct{}{"r1": make(chan struct{})}
	f.started = make(chan string, 4)
	p := NewPager(f, logger.Nop())
	ctx := context.Background()

	done := make(chan domain.LeaderboardView)
	go func() {
		view, err := p.ResetAndFetchFirstPage(ctx, "r1", 0)
		assert.NoError(t, err)
		done <- view
	}()
	require.Equal(t, "r1", <-f.started)

	// the user switches rounds while r1 is still loading
	view, err := p.ResetAndFetchFirstPage(ctx, "r2", 0)
	require.NoError(t, err)
	require.Equal(t, "r2", <-f.started)
	assert.Len(t, view.Entries, 5)

	close(f.gate["r1"])
	late := <-done
	assert.Equal(t, "r2", late.RoundSlug)

	final := p.View()
	assert.Equal(t, "r2", final.RoundSlug)
	assert.Len(t, final.Entries, 5, "late r1 response must not overwrite r2")
}

func TestPager_StaleLoadMoreIsDiscarded(t *testing.T) {
	f := twoPageFetcher()
	p := NewPager(f, logger.Nop())
	ctx := context.Background()

	_, err := p.ResetAndFetchFirstPage(ctx, "r1", 0)
	require.NoError(t, err)

	f.gate = map[string]chan struct{}{"r1": make(chan struct{})}
	f.started = make(chan string, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := p.LoadMore(ctx)
		assert.NoError(t, err)
	}()
	require.Equal(t, "r1", <-f.started)

	_, err = p.ResetAndFetchFirstPage(ctx, "r2", 0)
	require.NoError(t, err)
	<-f.started

	close(f.gate["r1"])
	<-done

	view := p.View()
	assert.Equal(t, "r2", view.RoundSlug)
	assert.Len(t, view.Entries, 5)
}

func TestPager_FirstPageErrorSurfaces(t *testing.T) {
	f := twoPageFetcher()
	f.failOnce = errors.NewAuthenticationError("token expired")
	p := NewPager(f, logger.Nop())

	view, err := p.ResetAndFetchFirstPage(context.Background(), "r1", 0)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.Empty(t, view.Entries)
	assert.False(t, view.Loaded)
}

func TestPager_SharedLoadMoreSurvivesCallerCancel(t *testing.T) {
	f := twoPageFetcher()
	p := NewPager(f, logger.Nop())

	_, err := p.ResetAndFetchFirstPage(context.Background(), "r1", 0)
	require.NoError(t, err)

	f.gate = map[string]chan struct{}{"r1": make(chan struct{})}
	f.started = make(chan string, 4)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.LoadMore(firstCtx)
		firstErr <- err
	}()
	require.Equal(t, "r1", <-f.started)

	// the first caller goes away while its request is still in flight
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		view domain.LeaderboardView
		err  error
	}
	second := make(chan result, 1)
	go func() {
		view, err := p.LoadMore(context.Background())
		second <- result{view, err}
	}()

	// let the second caller join before the upstream answers
	time.Sleep(50 * time.Millisecond)
	close(f.gate["r1"])
	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.view.Entries, 35)
	assertContiguousRanks(t, got.view.Entries)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls), "second caller joins the in-flight request")
}

func TestPager_RepeatedCursorEndsPagination(t *testing.T) {
	f := &pagedFetcher{pages: map[string]map[string]domain.LeaderboardPage{
		"r1": {
			"":   {Entries: entries(1, 20), Next: strPtr("c1")},
			"c1": {Entries: entries(21, 20), Next: strPtr("c1")},
		},
	}}
	p := NewPager(f, logger.Nop())
	ctx := context.Background()

	_, err := p.ResetAndFetchFirstPage(ctx, "r1", 0)
	require.NoError(t, err)

	view, err := p.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 40)
	assert.False(t, view.HasMore)

	view, err = p.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 40)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}
