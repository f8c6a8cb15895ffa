package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/extract/extracttest"
	"github.com/JakeFAU/concurso-crawler/internal/textnorm"
)

func TestPDFTextConcatenatesPages(t *testing.T) {
	t.Parallel()

	data := extracttest.BuildPDF(
		extracttest.TextPage("EDITAL DE ABERTURA"),
		"",
		extracttest.TextPage(`Cargo: Analista de Sistemas - T\351cnico`),
	)
	text, err := PDFText("edital.pdf", data)
	require.NoError(t, err)

	normalized := textnorm.Normalize(text)
	assert.Contains(t, normalized, "edital de abertura")
	assert.Contains(t, normalized, "analista de sistemas")
	assert.Contains(t, normalized, "tecnico")
	assert.Less(t, strings.Index(normalized, "edital"), strings.Index(normalized, "analista"))
}

func TestPDFTextCorrupt(t *testing.T) {
	t.Parallel()

	for name, data := range map[string][]byte{
		"empty":     nil,
		"html":      []byte("<html>not a pdf</html>"),
		"truncated": extracttest.BuildPDF(extracttest.TextPage("x"))[:40],
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := PDFText("bad.pdf", data)
			var extractErr *contest.ExtractionError
			require.ErrorAs(t, err, &extractErr)
			assert.Equal(t, "bad.pdf", extractErr.Source)
		})
	}
}

func TestRegionText(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><head><style>.x{}</style></head><body>
<nav>Menu Principal</nav>
<div id="noticia"><h1>Prefeitura</h1><p>Vagas para
   Analista de Sistemas</p><script>track()</script></div>
</body></html>`)

	text, err := RegionText("u", page, "")
	require.NoError(t, err)
	assert.Equal(t, "Prefeitura Vagas para Analista de Sistemas", text)

	text, err = RegionText("u", page, "#missing")
	require.NoError(t, err)
	assert.Contains(t, text, "Menu Principal")
	assert.Contains(t, text, "Analista de Sistemas")
	assert.NotContains(t, text, "track()")
}

type stubPage struct {
	text string
	err  error
	bad  bool
}

func (p stubPage) GetPlainText(map[string]*pdf.Font) (string, error) {
	if p.bad {
		panic("malformed content stream")
	}
	return p.text, p.err
}

func TestJoinPagesSkipsPanickingPage(t *testing.T) {
	t.Parallel()

	got := joinPages([]plainTexter{
		stubPage{text: "Cargo: Analista de Sistemas"},
		stubPage{bad: true},
		stubPage{err: errors.New("no text")},
		stubPage{text: "Inscrições até 10/03/2030"},
	})
	assert.Contains(t, got, "Analista de Sistemas")
	assert.Contains(t, got, "10/03/2030")
}
