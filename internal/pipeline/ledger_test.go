package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/state"
)

type recordingPersister struct {
	mu    sync.Mutex
	snaps []state.Snapshot
	err   error
}

func (p *recordingPersister) Persist(_ context.Context, snap state.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return p.err
}

func (p *recordingPersister) last() state.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snaps[len(p.snaps)-1]
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func strPtr(s string) *string { return &s }

func TestLedgerClaimPersistsImmediately(t *testing.T) {
	t.Parallel()

	p := &recordingPersister{}
	l := NewLedger(p, state.Snapshot{Processed: []string{"https://e.test/old"}}, nil)
	ctx := context.Background()

	claimed, err := l.Claim(ctx, "https://e.test/old")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Zero(t, p.count())

	claimed, err = l.Claim(ctx, "https://e.test/new")
	require.NoError(t, err)
	assert.True(t, claimed)
	require.Equal(t, 1, p.count())
	assert.Equal(t, []string{"https://e.test/old", "https://e.test/new"}, p.last().Processed)
	assert.True(t, l.Seen("https://e.test/new"))
}

func TestLedgerClaimPersistFailureKeepsClaim(t *testing.T) {
	t.Parallel()

	persistErr := &contest.StatePersistError{Object: "processed.json", Err: errors.New("disk full")}
	l := NewLedger(&recordingPersister{err: persistErr}, state.Snapshot{}, nil)

	claimed, err := l.Claim(context.Background(), "https://e.test/a")
	assert.True(t, claimed)
	assert.ErrorIs(t, err, persistErr)

	claimed, err = l.Claim(context.Background(), "https://e.test/a")
	assert.False(t, claimed)
	assert.NoError(t, err)
}

func TestLedgerAddReplacesSameURL(t *testing.T) {
	t.Parallel()

	p := &recordingPersister{}
	l := NewLedger(p, state.Snapshot{}, nil)
	ctx := context.Background()

	require.NoError(t, l.Add(ctx, contest.Record{URL: "https://e.test/a", Title: "first"}))
	require.NoError(t, l.Add(ctx, contest.Record{URL: "https://e.test/b", Title: "other"}))
	require.NoError(t, l.Add(ctx, contest.Record{URL: "https://e.test/a", Title: "second"}))

	records := l.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Title)
	assert.Equal(t, "other", records[1].Title)
	assert.Len(t, p.last().Records, 2)
}

func TestLedgerSeedDeduplicatesRecords(t *testing.T) {
	t.Parallel()

	l := NewLedger(&recordingPersister{}, state.Snapshot{Records: []contest.Record{
		{URL: "u", Title: "old"},
		{URL: "u", Title: "new"},
	}}, nil)
	records := l.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].Title)
}

func TestLedgerPruneExpired(t *testing.T) {
	t.Parallel()

	p := &recordingPersister{}
	l := NewLedger(p, state.Snapshot{
		Processed: []string{"past", "future", "undated", "start-only-past"},
		Records: []contest.Record{
			{URL: "past", StartDate: strPtr("01/01/2020"), EndDate: strPtr("01/02/2020")},
			{URL: "future", StartDate: strPtr("01/01/2030"), EndDate: strPtr("01/02/2030")},
			{URL: "undated"},
			{URL: "start-only-past", StartDate: strPtr("01/01/2025")},
		},
	}, nil)
	today := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	removed, err := l.PruneExpired(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	var urls []string
	for _, r := range l.Records() {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{"future", "undated"}, urls)
	assert.Len(t, l.Processed(), 4, "processed set never shrinks")

	before := p.count()
	removed, err = l.PruneExpired(context.Background(), today)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, before, p.count(), "nothing to persist")

	require.NoError(t, l.Add(context.Background(), contest.Record{URL: "future", Title: "updated"}))
	assert.Len(t, l.Records(), 2, "index is rebuilt after pruning")
}

func TestLedgerConcurrentClaims(t *testing.T) {
	t.Parallel()

	l := NewLedger(&recordingPersister{}, state.Snapshot{}, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := l.Claim(context.Background(), "https://e.test/same")
			assert.NoError(t, err)
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
