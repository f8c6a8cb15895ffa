package discovery

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
)

const listingHTML = `<html><body>
<div id="concursos">
  <div class="ca" data-url="/noticias/prefeitura-de-campinas-sp">
    <a href="/noticias/prefeitura-de-campinas-sp" title="Prefeitura de Campinas - SP">Prefeitura de Campinas - SP</a>
    <div class="cc">SP</div>
    <div class="ce"><span>De 01/01/2030 a 01/02/2030</span></div>
  </div>
  <div class="ca" data-url="https://www.example.com/noticias/tre-rj">
    <a href="https://www.example.com/noticias/tre-rj">  TRE
      RJ </a>
  </div>
  <div class="ca" data-url="/noticias/prefeitura-de-campinas-sp">
    <a>Duplicate</a>
  </div>
  <div class="ca" data-url="">
    <a href="javascript:void(0)">No link</a>
  </div>
</div>
</body></html>`

const detailHTML = `<html><body>
<div id="noticia">
  <a href="/arquivos/anexo-1.pdf">Anexo I</a>
  <a href="/arquivos/edital-abertura.pdf">Edital de Abertura</a>
  <a href="/arquivos/retificacao.pdf" title="Edital de abertura retificado">Retificação</a>
  <a href="/arquivos/edital-abertura.pdf#page=2">Edital de Abertura (mirror)</a>
  <a href="#top">Topo</a>
</div>
</body></html>`

const fallbackHTML = `<html><body>
<a href="/a.pdf">Documento A</a>
<a href="/b.PDF">Documento B</a>
<a href="/a.pdf">Documento A de novo</a>
<a href="/page.html">Página</a>
<a href="mailto:x@example.com">contato</a>
</body></html>`

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseListing(t *testing.T) {
	t.Parallel()

	items, err := ParseListing([]byte(listingHTML), mustURL(t, "https://www.example.com/"), Selectors{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, contest.ListingItem{
		Title:     "Prefeitura de Campinas - SP",
		DetailURL: "https://www.example.com/noticias/prefeitura-de-campinas-sp",
		Region:    "SP",
		DateText:  "De 01/01/2030 a 01/02/2030",
	}, items[0])

	assert.Equal(t, "TRE RJ", items[1].Title)
	assert.Equal(t, contest.DefaultRegion, items[1].Region)
	assert.Equal(t, contest.DefaultDateText, items[1].DateText)
}

func TestParseListingCustomSelectors(t *testing.T) {
	t.Parallel()

	html := `<ul><li class="item"><h2><a href="/c/1">Concurso 1</a></h2><em>RS</em><time>10/03/2030</time></li></ul>`
	items, err := ParseListing([]byte(html), mustURL(t, "https://site.test/lista"), Selectors{
		Block:  "li.item",
		Title:  "h2 a",
		Region: "em",
		Date:   "time",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://site.test/c/1", items[0].DetailURL)
	assert.Equal(t, "RS", items[0].Region)
	assert.Equal(t, "10/03/2030", items[0].DateText)
}

func TestParseDocumentLinksPrefersAnnouncement(t *testing.T) {
	t.Parallel()

	links, err := ParseDocumentLinks(
		[]byte(detailHTML),
		mustURL(t, "https://www.example.com/noticias/x"),
		regexp.MustCompile(DefaultAnnouncementPattern),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.example.com/arquivos/edital-abertura.pdf",
		"https://www.example.com/arquivos/retificacao.pdf",
	}, links)
}

func TestParseDocumentLinksFallsBackToPDFs(t *testing.T) {
	t.Parallel()

	links, err := ParseDocumentLinks(
		[]byte(fallbackHTML),
		mustURL(t, "https://www.example.com/noticias/y"),
		regexp.MustCompile(DefaultAnnouncementPattern),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.example.com/a.pdf",
		"https://www.example.com/b.PDF",
	}, links)
}

func TestParseDocumentLinksNone(t *testing.T) {
	t.Parallel()

	links, err := ParseDocumentLinks([]byte(`<p>nada</p>`), mustURL(t, "https://e.test/"), nil)
	require.NoError(t, err)
	assert.Empty(t, links)
}

type stubFetcher struct {
	pages map[string]contest.Response
	calls []string
}

func (s *stubFetcher) Fetch(_ context.Context, u string) (contest.Response, error) {
	s.calls = append(s.calls, u)
	resp, ok := s.pages[u]
	if !ok {
		return contest.Response{}, &contest.FetchError{URL: u, StatusCode: 404, Err: errors.New("Not Found")}
	}
	if resp.URL == "" {
		resp.URL = u
	}
	return resp, nil
}

func TestClientListAndDiscover(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{pages: map[string]contest.Response{
		"https://www.example.com/":                                   {Body: []byte(listingHTML)},
		"https://www.example.com/noticias/prefeitura-de-campinas-sp": {Body: []byte(detailHTML)},
	}}
	client, err := New(fetcher, Config{ListingURL: "https://www.example.com/"}, nil)
	require.NoError(t, err)

	items, err := client.ListContests(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	docs, err := client.DiscoverDocuments(context.Background(), items[0].DetailURL)
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.com/arquivos/edital-abertura.pdf", docs[0])

	_, err = client.DiscoverDocuments(context.Background(), items[1].DetailURL)
	var fe *contest.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 404, fe.StatusCode)
}

func TestClientListingFailure(t *testing.T) {
	t.Parallel()

	client, err := New(&stubFetcher{}, Config{ListingURL: "https://down.test/"}, nil)
	require.NoError(t, err)
	_, err = client.ListContests(context.Background())
	var fe *contest.FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{ListingURL: "https://e.test"}, nil)
	assert.Error(t, err)
	_, err = New(&stubFetcher{}, Config{ListingURL: "/relative"}, nil)
	assert.Error(t, err)
	_, err = New(&stubFetcher{}, Config{ListingURL: "https://e.test", AnnouncementPattern: "("}, nil)
	assert.Error(t, err)
}
