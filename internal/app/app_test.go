package app_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/app"
	"github.com/JakeFAU/concurso-crawler/internal/clock/system"
	"github.com/JakeFAU/concurso-crawler/internal/config"
	"github.com/JakeFAU/concurso-crawler/internal/daterange"
	"github.com/JakeFAU/concurso-crawler/internal/extract/extracttest"
	"github.com/JakeFAU/concurso-crawler/internal/notify"
	"github.com/JakeFAU/concurso-crawler/internal/storage/memory"
	"github.com/JakeFAU/concurso-crawler/internal/storage/postgres"
)

var june = system.Fixed{T: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}

func contestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
<div data-url="/noticias/tribunal">
  <a href="/noticias/tribunal">Tribunal Regional - SP</a>
  <div class="cc">SP</div>
  <div class="ce">De 10/06/2025 a 20/06/2025</div>
</div></body></html>`)
	})
	mux.HandleFunc("/noticias/tribunal", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div id="noticia">
<a href="/arquivos/edital.pdf">Edital de Abertura</a>
</div></body></html>`)
	})
	mux.HandleFunc("/arquivos/edital.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(extracttest.BuildPDF(extracttest.TextPage("Cargo: Analista de Sistemas")))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, listingURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Source.ListingURL = listingURL
	cfg.State.Dir = t.TempDir()
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.HTTP.RateLimitRPS = 1000
	cfg.HTTP.RateLimitBurst = 10
	cfg.Notify.Provider = config.NotifyNone
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunThenPrune(t *testing.T) {
	t.Parallel()

	srv := contestSite(t)
	cfg := testConfig(t, srv.URL+"/")
	recorder := notify.NewRecorder()

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithClock(june), app.WithNotifier(recorder))
	require.NoError(t, err)
	defer a.Close()

	stats, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	require.Len(t, recorder.Records(), 1)

	removed, err := a.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed, "window is still open in June")

	// A later process sees the persisted state and drops the closed window.
	july := system.Fixed{T: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	later, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithClock(july))
	require.NoError(t, err)
	defer later.Close()

	require.Len(t, later.Ledger().Records(), 1)
	removed, err = later.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, later.Ledger().Records())
	assert.Contains(t, later.Ledger().Processed(), srv.URL+"/noticias/tribunal")
}

func TestSyncPushesRecords(t *testing.T) {
	t.Parallel()

	srv := contestSite(t)
	cfg := testConfig(t, srv.URL+"/")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := postgres.NewRecordStoreWithPool(mock, "", zap.NewNop())
	require.NoError(t, err)

	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithClock(june), app.WithRecordSyncer(store))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS concursos").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery("INSERT INTO concursos").
		WithArgs(pgxmock.AnyArg(), srv.URL+"/noticias/tribunal", "SP", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), string(daterange.StatusOpen)).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectExec("UPDATE concursos").
		WithArgs(string(daterange.StatusClosed), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).AddRow("Open", int64(1)))
	mock.ExpectClose()

	report, err := a.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, postgres.UpsertResult{Inserted: 1}, report.Upsert)
	assert.Equal(t, map[daterange.Status]int{daterange.StatusOpen: 1}, report.Summary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncWithoutDatabase(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://example.com/")
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithClock(june))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Sync(context.Background())
	require.ErrorIs(t, err, app.ErrNoDatabase)
}

func TestNewRejectsBadKeywordsFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://example.com/")
	cfg.Keywords.File = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "load keywords")
}

func TestRunFailsWhenListingIsDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, err := app.New(context.Background(), testConfig(t, srv.URL+"/"), zap.NewNop(), app.WithClock(june))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.Error(t, err)
}

func TestCloseFlushesUnsavedState(t *testing.T) {
	t.Parallel()

	srv := contestSite(t)
	cfg := testConfig(t, srv.URL+"/")
	blobs := memory.NewBlobStore()

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithClock(june), app.WithBlobStore(blobs))
	require.NoError(t, err)

	blobs.SetFailPut(errors.New("bucket unavailable"))
	stats, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Matched)
	assert.Empty(t, blobs.Paths())

	blobs.SetFailPut(nil)
	a.Close()

	data, err := blobs.GetObject(context.Background(), cfg.State.RecordsObject)
	require.NoError(t, err)
	assert.Contains(t, string(data), srv.URL+"/noticias/tribunal")
	processed, err := blobs.GetObject(context.Background(), cfg.State.ProcessedObject)
	require.NoError(t, err)
	assert.Contains(t, string(processed), srv.URL+"/noticias/tribunal")
}
