// Package app builds the long-lived services of the scanner from
// configuration and exposes the batch, prune, sync and serve entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/api"
	"github.com/JakeFAU/concurso-crawler/internal/archive"
	"github.com/JakeFAU/concurso-crawler/internal/clock/system"
	"github.com/JakeFAU/concurso-crawler/internal/config"
	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/daterange"
	"github.com/JakeFAU/concurso-crawler/internal/discovery"
	"github.com/JakeFAU/concurso-crawler/internal/dispatcher"
	"github.com/JakeFAU/concurso-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/concurso-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/concurso-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/concurso-crawler/internal/hash/sha256"
	"github.com/JakeFAU/concurso-crawler/internal/headless/detector"
	"github.com/JakeFAU/concurso-crawler/internal/id/uuid"
	"github.com/JakeFAU/concurso-crawler/internal/keywords"
	"github.com/JakeFAU/concurso-crawler/internal/matcher"
	"github.com/JakeFAU/concurso-crawler/internal/metrics"
	"github.com/JakeFAU/concurso-crawler/internal/notify"
	"github.com/JakeFAU/concurso-crawler/internal/pipeline"
	"github.com/JakeFAU/concurso-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/concurso-crawler/internal/state"
	"github.com/JakeFAU/concurso-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/concurso-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/concurso-crawler/internal/storage/local"
	"github.com/JakeFAU/concurso-crawler/internal/storage/postgres"
)

// RecordSyncer mirrors records into the relational store.
type RecordSyncer interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, records []contest.Record, today time.Time) (postgres.UpsertResult, error)
	CloseExpired(ctx context.Context, today time.Time) (int64, error)
	StatusSummary(ctx context.Context) (map[daterange.Status]int, error)
	Close()
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	blobs    storage.BlobStore
	notifier contest.Notifier
	clock    contest.Clock
	syncer   func(ctx context.Context) (RecordSyncer, error)
}

// WithBlobStore replaces the configured state backend.
func WithBlobStore(b storage.BlobStore) Option {
	return func(o *options) { o.blobs = b }
}

// WithNotifier replaces the configured notification channel.
func WithNotifier(n contest.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock replaces the zone clock built from pipeline.timezone.
func WithClock(c contest.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRecordSyncer replaces the Postgres store opened from db.dsn. Sync
// closes s when it returns.
func WithRecordSyncer(s RecordSyncer) Option {
	return func(o *options) {
		o.syncer = func(context.Context) (RecordSyncer, error) { return s, nil }
	}
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	clock        contest.Clock
	ledger       *pipeline.Ledger
	orchestrator *pipeline.Orchestrator
	dispatcher   *dispatcher.Dispatcher
	syncer       func(ctx context.Context) (RecordSyncer, error)

	headless     *headlessfetcher.Fetcher
	storage      *gcs.Client
	pubsubClient *pubsub.Client
	pubsub       *notify.PubSubNotifier
}

// New builds every collaborator named by cfg and loads the persisted state.
// It fails fast when a configured backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.clock = o.clock
	if a.clock == nil {
		clk, err := system.NewInZone(cfg.Pipeline.Timezone)
		if err != nil {
			return nil, err
		}
		a.clock = clk
	}

	vocab, err := keywords.Load(cfg.Keywords.File)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}
	threshold := 0
	if cfg.Pipeline.TopicsEnabled {
		threshold = cfg.Pipeline.TopicThreshold
	}
	scanner := matcher.NewScanner(vocab, threshold)

	files := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		Timeout:       cfg.HTTP.Timeout,
		MaxRetries:    cfg.HTTP.MaxRetries,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		RespectRobots: cfg.HTTP.RespectRobots,
	}, ratelimit.New(ratelimit.Config{
		RPS:   cfg.HTTP.RateLimitRPS,
		Burst: cfg.HTTP.RateLimitBurst,
	}), logger.Named("fetcher"))

	var pages contest.Fetcher = files
	if cfg.Headless.Enabled {
		hf, herr := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.Headless.NavigationTimeout,
			WaitSelector:      cfg.Headless.WaitSelector,
		})
		if herr != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", herr)
		}
		a.headless = hf
		pages = detector.NewPromoting(files, hf,
			detector.NewHeuristic(cfg.Headless.PromotionThreshold, ""), logger.Named("detector"))
	}

	disc, err := discovery.New(pages, discovery.Config{
		ListingURL: cfg.Source.ListingURL,
		Selectors: discovery.Selectors{
			Block:  cfg.Source.BlockSelector,
			Title:  cfg.Source.TitleSelector,
			Region: cfg.Source.RegionSelector,
			Date:   cfg.Source.DateSelector,
		},
		AnnouncementPattern: cfg.Source.AnnouncementPattern,
	}, logger.Named("discovery"))
	if err != nil {
		return nil, fmt.Errorf("init discovery: %w", err)
	}

	var source contest.Source
	switch cfg.Pipeline.Mode {
	case config.ModeHTML:
		source = extract.NewHTMLSource(disc, cfg.Source.ContentSelector)
	default:
		source = extract.NewPDFSource(disc, files, logger.Named("extract"))
	}

	blobs := o.blobs
	if blobs == nil {
		blobs, err = a.openBlobStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	store := state.New(blobs, state.Config{
		Prefix:          cfg.State.Prefix,
		ProcessedObject: cfg.State.ProcessedObject,
		RecordsObject:   cfg.State.RecordsObject,
	}, logger.Named("state"))
	snap, loadErr := store.Load(ctx)
	if loadErr != nil {
		logger.Warn("state load degraded; continuing with what was readable", zap.Error(loadErr))
	}
	a.ledger = pipeline.NewLedger(store, snap, logger.Named("ledger"))

	pipelineOpts := []pipeline.Option{
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithClock(a.clock),
		pipeline.WithIDGenerator(uuid.New()),
	}
	notifier := o.notifier
	if notifier == nil {
		notifier, err = a.openNotifier(ctx)
		if err != nil {
			return nil, err
		}
	}
	if notifier != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithNotifier(notifier))
	}
	if cfg.Archive.Enabled {
		pipelineOpts = append(pipelineOpts,
			pipeline.WithArchiver(archive.New(blobs, sha256.New(), cfg.Archive.Prefix)))
	}
	a.orchestrator = pipeline.New(disc, source, scanner, a.ledger, logger.Named("pipeline"), pipelineOpts...)
	a.dispatcher = dispatcher.New(a.orchestrator, logger.Named("dispatcher"))

	a.syncer = o.syncer
	if a.syncer == nil {
		a.syncer = a.openRecordStore
	}

	ok = true
	logger.Info("application services initialized",
		zap.String("listing_url", cfg.Source.ListingURL),
		zap.String("mode", cfg.Pipeline.Mode),
		zap.String("state_backend", cfg.State.Backend),
		zap.Int("workers", cfg.Pipeline.Workers),
		zap.Int("records", len(snap.Records)),
		zap.Int("processed", len(snap.Processed)))
	return a, nil
}

func (a *App) openBlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.State.Backend {
	case config.BackendGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.State.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		return store, nil
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.State.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		return store, nil
	}
}

func (a *App) openNotifier(ctx context.Context) (contest.Notifier, error) {
	switch a.cfg.Notify.Provider {
	case config.NotifyPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.pubsubClient = client
		n, err := notify.NewPubSub(client, a.cfg.Notify.TopicID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.pubsub = n
		return n, nil
	case config.NotifyLog:
		return notify.NewLog(a.logger.Named("notify")), nil
	default:
		return nil, nil
	}
}

func (a *App) openRecordStore(ctx context.Context) (RecordSyncer, error) {
	if a.cfg.DB.DSN == "" {
		return nil, ErrNoDatabase
	}
	return postgres.NewRecordStore(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	}, a.logger.Named("postgres"))
}

// ErrNoDatabase is returned by Sync when no database is configured.
var ErrNoDatabase = errors.New("db.dsn is not configured")

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Ledger exposes the loaded state.
func (a *App) Ledger() *pipeline.Ledger {
	return a.ledger
}

// Run performs one batch pass over the listing.
func (a *App) Run(ctx context.Context) (contest.BatchStats, error) {
	stats, err := a.orchestrator.Run(ctx)
	if err != nil {
		return stats, fmt.Errorf("batch run: %w", err)
	}
	return stats, nil
}

// Prune drops persisted records whose window has closed and returns how many
// were removed.
func (a *App) Prune(ctx context.Context) (int, error) {
	removed, err := a.ledger.PruneExpired(ctx, a.clock.Now())
	if err != nil {
		return removed, fmt.Errorf("prune: %w", err)
	}
	a.logger.Info("prune complete",
		zap.Int("removed", removed),
		zap.Int("remaining", len(a.ledger.Records())))
	return removed, nil
}

// SyncReport summarizes one relational sync.
type SyncReport struct {
	Upsert  postgres.UpsertResult
	Closed  int64
	Summary map[daterange.Status]int
}

// Sync pushes every persisted record into the relational store, closes rows
// whose start date has passed and reports the per-status counts.
func (a *App) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	store, err := a.syncer(ctx)
	if err != nil {
		return report, fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return report, err
	}
	today := a.clock.Now()
	report.Upsert, err = store.Upsert(ctx, a.ledger.Records(), today)
	if err != nil {
		return report, fmt.Errorf("upsert records: %w", err)
	}
	report.Closed, err = store.CloseExpired(ctx, today)
	if err != nil {
		return report, err
	}
	report.Summary, err = store.StatusSummary(ctx)
	if err != nil {
		return report, err
	}
	for status, n := range report.Summary {
		a.logger.Info("status summary", zap.String("status", string(status)), zap.Int("count", n))
	}
	return report, nil
}

// Serve runs the HTTP API and the periodic scheduler until ctx is canceled
// or the process receives SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(ctx, a.ledger, a.dispatcher, a.clock, a.cfg, a.logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		a.dispatcher.Run(ctx, a.cfg.Server.RunInterval)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-schedulerDone
	a.dispatcher.Wait()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close writes the state once more, then shuts down all services in the App
// container. The final write retries any snapshot a failed persist left behind.
func (a *App) Close() {
	if a.ledger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.ledger.Flush(ctx); err != nil {
			a.logger.Error("state not flushed on shutdown", zap.Error(err))
		}
		cancel()
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsub != nil {
		a.pubsub.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}
