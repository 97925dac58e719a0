// Package leaderboard accumulates cursor-paginated leaderboard pages for
// infinite-scroll consumers.
package leaderboard

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"prode/internal/domain"
	"prode/pkg/errors"
	"prode/pkg/logger"
)

// Fetcher performs one leaderboard page request. A nil cursor asks for the first
// page; tournamentID 0 means the general leaderboard.
type Fetcher interface {
	FetchLeaderboardPage(ctx context.Context, roundSlug string, tournamentID int, cursor *string) (*domain.LeaderboardPage, error)
}

// AppendPage concatenates page entries after existing, preserving order. It
// never de-duplicates and never writes into existing's backing array.
func AppendPage(existing []domain.LeaderboardEntry, page domain.LeaderboardPage) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, len(existing)+len(page.Entries))
	out = append(out, existing...)
	return append(out, page.Entries...)
}

// Pager owns the accumulated entries of one leaderboard. Every fetch is tagged
// with the epoch current when it started; a reset bumps the epoch so responses
// that land afterwards are dropped. Concurrent LoadMore calls on the same cursor
// share one request.
type Pager struct {
	fetcher Fetcher
	log     *logger.Logger
	group   singleflight.Group

	mu           sync.Mutex
	epoch        uint64
	roundSlug    string
	tournamentID int
	entries      []domain.LeaderboardEntry
	next         *string
	loaded       bool
}

// NewPager creates an empty pager
func NewPager(fetcher Fetcher, log *logger.Logger) *Pager {
	return &Pager{fetcher: fetcher, log: log}
}

// ResetAndFetchFirstPage drops everything accumulated so far and loads the
// first page of roundSlug/tournamentID.
func (p *Pager) ResetAndFetchFirstPage(ctx context.Context, roundSlug string, tournamentID int) (domain.LeaderboardView, error) {
	p.mu.Lock()
	p.epoch++
	epoch := p.epoch
	p.roundSlug = roundSlug
	p.tournamentID = tournamentID
	p.entries = nil
	p.next = nil
	p.loaded = false
	p.mu.Unlock()

	page, err := p.fetcher.FetchLeaderboardPage(ctx, roundSlug, tournamentID, nil)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if p.epoch != epoch {
			return p.viewLocked(), nil
		}
		return p.viewLocked(), err
	}
	if p.epoch != epoch {
		p.log.WithFields(map[string]interface{}{
			"round_slug": roundSlug,
			"epoch":      epoch,
		}).Debug("Discarding stale first leaderboard page")
		return p.viewLocked(), nil
	}
	p.entries = AppendPage(nil, *page)
	p.next = page.Next
	p.loaded = true
	return p.viewLocked(), nil
}

// LoadMore fetches the page after the stored cursor and appends it. It is a
// no-op when there are no further pages.
func (p *Pager) LoadMore(ctx context.Context) (domain.LeaderboardView, error) {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return p.View(), errors.NewConflictError("leaderboard first page has not been loaded")
	}
	if p.next == nil {
		view := p.viewLocked()
		p.mu.Unlock()
		return view, nil
	}
	epoch := p.epoch
	cursor := *p.next
	roundSlug, tournamentID := p.roundSlug, p.tournamentID
	p.mu.Unlock()

	// The shared fetch outlives any one caller; each caller still stops
	// waiting when its own ctx ends.
	fetchCtx := context.WithoutCancel(ctx)
	key := strconv.FormatUint(epoch, 10) + ":" + cursor
	ch := p.group.DoChan(key, func() (interface{}, error) {
		page, err := p.fetcher.FetchLeaderboardPage(fetchCtx, roundSlug, tournamentID, &cursor)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.epoch != epoch || p.next == nil || *p.next != cursor {
			p.log.WithFields(map[string]interface{}{
				"round_slug": roundSlug,
				"epoch":      epoch,
			}).Debug("Discarding stale leaderboard page")
			return nil, nil
		}
		p.entries = AppendPage(p.entries, *page)
		p.next = page.Next
		if p.next != nil && *p.next == cursor {
			p.log.WithField("round_slug", roundSlug).Warn("Leaderboard cursor did not advance, treating as last page")
			p.next = nil
		}
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			p.log.WithField("round_slug", roundSlug).Debug("Joined in-flight leaderboard request")
		}
		return p.View(), res.Err
	case <-ctx.Done():
		return p.View(), ctx.Err()
	}
}

// View returns a snapshot of the accumulated leaderboard
func (p *Pager) View() domain.LeaderboardView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Pager) viewLocked() domain.LeaderboardView {
	entries := make([]domain.LeaderboardEntry, len(p.entries))
	copy(entries, p.entries)
	return domain.LeaderboardView{
		RoundSlug:    p.roundSlug,
		TournamentID: p.tournamentID,
		Entries:      entries,
		HasMore:      p.next != nil,
		Loaded:       p.loaded,
	}
}
