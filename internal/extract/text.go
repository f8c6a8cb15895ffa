// Package extract turns fetched documents into plain text and exposes the two
// document strategies (announcement PDFs, detail-page region) as sources.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
)

// DefaultRegionSelector is the content region of a pciconcursos detail page.
const DefaultRegionSelector = "#noticia"

// PDFText concatenates the text of every page in order. A page without
// extractable text contributes nothing; unreadable input yields
// *contest.ExtractionError.
func PDFText(source string, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &contest.ExtractionError{Source: source, Err: fmt.Errorf("pdf reader panic: %v", r)}
		}
	}()

	if len(data) == 0 {
		return "", &contest.ExtractionError{Source: source, Err: errors.New("empty document")}
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &contest.ExtractionError{Source: source, Err: err}
	}

	pages := make([]plainTexter, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pages = append(pages, page)
	}
	return joinPages(pages), nil
}

type plainTexter interface {
	GetPlainText(fonts map[string]*pdf.Font) (string, error)
}

// joinPages keeps the text of every page that could be read.
func joinPages(pages []plainTexter) string {
	var b strings.Builder
	for _, p := range pages {
		t, err := pageText(p)
		if err != nil {
			continue
		}
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String()
}

// pageText extracts one page. The reader panics on malformed content
// streams; that only costs the page it happened on.
func pageText(p plainTexter) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf page panic: %v", r)
		}
	}()
	return p.GetPlainText(nil)
}

// RegionText returns the visible text of the first element matching selector,
// or of the whole body when the region is absent.
func RegionText(source string, body []byte, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", &contest.ExtractionError{Source: source, Err: err}
	}
	doc.Find("script, style, noscript, template").Remove()

	if selector == "" {
		selector = DefaultRegionSelector
	}
	region := doc.Find(selector).First()
	if region.Length() == 0 {
		region = doc.Find("body")
	}
	return strings.Join(strings.Fields(region.Text()), " "), nil
}
