package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/daterange"
	"github.com/JakeFAU/concurso-crawler/internal/metrics"
	"github.com/JakeFAU/concurso-crawler/internal/state"
)

// Persister writes a full state snapshot.
type Persister interface {
	Persist(ctx context.Context, snap state.Snapshot) error
}

// Ledger is the single writer of the processed set and the record list.
// Every mutation persists the whole snapshot before returning, while the
// lock is still held, so concurrent workers never interleave writes.
type Ledger struct {
	mu        sync.Mutex
	store     Persister
	processed map[string]struct{}
	order     []string
	records   []contest.Record
	byURL     map[string]int
	logger    *zap.Logger
}

// NewLedger seeds a Ledger from a loaded snapshot.
func NewLedger(store Persister, snap state.Snapshot, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:     store,
		processed: make(map[string]struct{}, len(snap.Processed)),
		byURL:     make(map[string]int, len(snap.Records)),
		logger:    logger,
	}
	for _, u := range snap.Processed {
		if _, ok := l.processed[u]; ok {
			continue
		}
		l.processed[u] = struct{}{}
		l.order = append(l.order, u)
	}
	for _, r := range snap.Records {
		l.upsertLocked(r)
	}
	metrics.SetRecords(len(l.records))
	return l
}

// Claim marks url as attempted and persists. It returns false when url was
// already processed. A persist failure is returned alongside claimed=true:
// the claim holds in memory and the caller should keep working.
func (l *Ledger) Claim(ctx context.Context, url string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.processed[url]; seen {
		return false, nil
	}
	l.processed[url] = struct{}{}
	l.order = append(l.order, url)
	return true, l.persistLocked(ctx)
}

// Seen reports whether url is in the processed set.
func (l *Ledger) Seen(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.processed[url]
	return ok
}

// Add stores rec, replacing any record with the same URL, and persists.
func (l *Ledger) Add(ctx context.Context, rec contest.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.upsertLocked(rec)
	metrics.SetRecords(len(l.records))
	return l.persistLocked(ctx)
}

// PruneExpired drops records whose date window ended before today and
// persists when anything changed. Undated records are kept. The processed set
// is untouched.
func (l *Ledger) PruneExpired(ctx context.Context, today time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]contest.Record, 0, len(l.records))
	for _, r := range l.records {
		start := daterange.ParsePtr(r.StartDate)
		end := daterange.ParsePtr(r.EndDate)
		if daterange.IsExpired(start, end, today) {
			l.logger.Debug("pruning expired record", zap.String("url", r.URL))
			continue
		}
		kept = append(kept, r)
	}
	removed := len(l.records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	l.records = kept
	l.byURL = make(map[string]int, len(kept))
	for i, r := range kept {
		l.byURL[r.URL] = i
	}
	metrics.SetRecords(len(l.records))
	return removed, l.persistLocked(ctx)
}

// Flush persists the current snapshot.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked(ctx)
}

// Records returns a copy of the records in insertion order.
func (l *Ledger) Records() []contest.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]contest.Record(nil), l.records...)
}

// Processed returns a copy of the processed URLs in claim order.
func (l *Ledger) Processed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

func (l *Ledger) upsertLocked(rec contest.Record) {
	if i, ok := l.byURL[rec.URL]; ok {
		l.records[i] = rec
		return
	}
	l.byURL[rec.URL] = len(l.records)
	l.records = append(l.records, rec)
}

func (l *Ledger) persistLocked(ctx context.Context) error {
	snap := state.Snapshot{
		Processed: append([]string(nil), l.order...),
		Records:   append([]contest.Record(nil), l.records...),
	}
	if err := l.store.Persist(ctx, snap); err != nil {
		metrics.ObserveStatePersistFailure()
		return err
	}
	return nil
}
