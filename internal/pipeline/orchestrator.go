// Package pipeline drives one batch pass over the contest listing: dedup,
// document scan, expiry filter, record assembly and persistence.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/daterange"
	"github.com/JakeFAU/concurso-crawler/internal/matcher"
	"github.com/JakeFAU/concurso-crawler/internal/metrics"
)

// Lister returns the contests of the listing page in page order.
type Lister interface {
	ListContests(ctx context.Context) ([]contest.ListingItem, error)
}

// Orchestrator runs batches. It is safe to call Run concurrently only if the
// caller serializes runs; the dispatcher package does.
type Orchestrator struct {
	lister   Lister
	source   contest.Source
	scanner  *matcher.Scanner
	ledger   *Ledger
	clock    contest.Clock
	ids      contest.IDGenerator
	notifier contest.Notifier
	archiver contest.Archiver
	workers  int
	logger   *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers processes up to n contests at once. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithClock overrides the clock that decides "today".
func WithClock(c contest.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithIDGenerator sets the batch run ID source.
func WithIDGenerator(g contest.IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

// WithNotifier sends every new record to n.
func WithNotifier(n contest.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithArchiver stores the matching document of every new record.
func WithArchiver(a contest.Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// New builds an Orchestrator.
func New(
	lister Lister,
	source contest.Source,
	scanner *matcher.Scanner,
	ledger *Ledger,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		lister:  lister,
		source:  source,
		scanner: scanner,
		ledger:  ledger,
		clock:   utcClock{},
		workers: 1,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ledger exposes the state owned by the orchestrator.
func (o *Orchestrator) Ledger() *Ledger {
	return o.ledger
}

// Run performs one pass over the listing. Only a listing failure is returned
// as an error; every per-contest problem is folded into the stats.
func (o *Orchestrator) Run(ctx context.Context) (stats contest.BatchStats, err error) {
	stats.StartedAt = o.clock.Now()
	if o.ids != nil {
		id, err := o.ids.NewID()
		if err != nil {
			o.logger.Warn("run id unavailable", zap.Error(err))
		}
		stats.RunID = id
	}
	logger := o.logger.With(zap.String("run_id", stats.RunID))
	defer func() {
		stats.FinishedAt = o.clock.Now()
		stats.Duration = stats.FinishedAt.Sub(stats.StartedAt)
		metrics.ObserveBatch(stats.Duration)
	}()

	items, err := o.lister.ListContests(ctx)
	if err != nil {
		logger.Error("listing unavailable, batch aborted", zap.Error(err))
		return stats, err
	}
	stats.Listed = len(items)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.workers)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := o.Process(ctx, item)
			mu.Lock()
			stats.Add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("batch finished",
		zap.Int("listed", stats.Listed),
		zap.Int("attempted", stats.Attempted),
		zap.Int("matched", stats.Matched),
		zap.Int("unmatched", stats.Unmatched),
		zap.Int("expired", stats.Expired),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, ctx.Err()
}

// Process takes one listing item to a terminal outcome.
func (o *Orchestrator) Process(ctx context.Context, item contest.ListingItem) contest.Outcome {
	logger := o.logger.With(zap.String("url", item.DetailURL))
	outcome := o.process(ctx, item, logger)
	metrics.ObserveContest(string(outcome))
	logger.Debug("contest processed", zap.String("outcome", string(outcome)))
	return outcome
}

func (o *Orchestrator) process(ctx context.Context, item contest.ListingItem, logger *zap.Logger) contest.Outcome {
	claimed, err := o.ledger.Claim(ctx, item.DetailURL)
	if err != nil {
		logger.Error("processed set not persisted", zap.Error(err))
	}
	if !claimed {
		return contest.OutcomeSkipped
	}
	today := daterange.Day(o.clock.Now())

	var (
		found bool
		doc   contest.Document
		res   matcher.Result
	)
	err = o.source.Documents(ctx, item, func(d contest.Document) bool {
		r := o.scanner.Scan(d.Text)
		if !o.scanner.Relevant(r) {
			return true
		}
		found, doc, res = true, d, r
		return false
	})
	var extractErr *contest.ExtractionError
	switch {
	case errors.Is(err, contest.ErrNoDocuments):
		logger.Info("no candidate documents")
		return contest.OutcomeUnmatched
	case errors.As(err, &extractErr):
		logger.Warn("document unreadable", zap.Error(err))
		return contest.OutcomeUnmatched
	case err != nil:
		logger.Warn("contest failed", zap.Error(err))
		return contest.OutcomeFailed
	case !found:
		return contest.OutcomeUnmatched
	}

	window := daterange.Parse(item.DateText)
	if window.Expired(today) {
		logger.Info("contest expired", zap.String("dates", item.DateText))
		return contest.OutcomeExpired
	}

	rec := contest.Record{
		Title:       item.Title,
		URL:         item.DetailURL,
		Region:      item.Region,
		AllJobs:     res.Roles,
		Topics:      res.Topics,
		StartDate:   window.StartString(),
		EndDate:     window.EndString(),
		ProcessedAt: o.clock.Now().UTC(),
	}
	if len(res.Roles) > 0 {
		job := res.Roles[0]
		rec.Job = &job
	}
	if doc.URL != "" {
		u := doc.URL
		rec.DocumentURL = &u
	}
	if o.archiver != nil && len(doc.Body) > 0 {
		uri, err := o.archiver.Archive(ctx, doc.URL, doc.Body)
		if err != nil {
			logger.Warn("document not archived", zap.Error(err))
		} else {
			rec.ArchiveURI = &uri
		}
	}

	if err := o.ledger.Add(ctx, rec); err != nil {
		logger.Error("record not persisted", zap.Error(err))
	}
	logger.Info("contest matched",
		zap.String("title", rec.Title),
		zap.Strings("jobs", rec.AllJobs),
	)

	if o.notifier != nil {
		if err := o.notifier.Notify(ctx, rec); err != nil {
			metrics.ObserveNotifyFailure()
			logger.Warn("notification failed", zap.Error(err))
		}
	}
	return contest.OutcomeMatched
}
