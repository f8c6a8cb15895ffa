package extract

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/metrics"
)

// DocumentLocator lists candidate document URLs for a detail page.
type DocumentLocator interface {
	DiscoverDocuments(ctx context.Context, detailURL string) ([]string, error)
}

// DetailFetcher fetches a contest's detail page.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, detailURL string) (contest.Response, error)
}

// PDFSource yields the text of each candidate PDF in priority order.
type PDFSource struct {
	locator DocumentLocator
	files   contest.Fetcher
	logger  *zap.Logger
}

// NewPDFSource builds a PDFSource.
func NewPDFSource(locator DocumentLocator, files contest.Fetcher, logger *zap.Logger) *PDFSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFSource{locator: locator, files: files, logger: logger}
}

// Documents visits each readable candidate until visit returns false. A
// candidate that fails to fetch or parse is logged and skipped. The call
// fails only when the detail page is unreachable or every candidate failed
// to fetch; it returns contest.ErrNoDocuments when there are no candidates.
func (s *PDFSource) Documents(ctx context.Context, item contest.ListingItem, visit func(contest.Document) bool) error {
	links, err := s.locator.DiscoverDocuments(ctx, item.DetailURL)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return contest.ErrNoDocuments
	}

	var fetchErrs []error
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := s.files.Fetch(ctx, link)
		metrics.ObserveFetch("document", err)
		if err != nil {
			s.logger.Warn("document fetch failed",
				zap.String("url", item.DetailURL),
				zap.String("document", link),
				zap.Error(err),
			)
			fetchErrs = append(fetchErrs, err)
			continue
		}
		text, err := PDFText(link, resp.Body)
		if err != nil {
			s.logger.Warn("document unreadable",
				zap.String("url", item.DetailURL),
				zap.String("document", link),
				zap.Error(err),
			)
			continue
		}
		if !visit(contest.Document{URL: link, Text: text, Body: resp.Body}) {
			return nil
		}
	}
	if len(fetchErrs) == len(links) {
		return errors.Join(fetchErrs...)
	}
	return nil
}

// HTMLSource yields a single document: the content region of the detail page.
type HTMLSource struct {
	pages    DetailFetcher
	selector string
}

// NewHTMLSource builds an HTMLSource. An empty selector uses DefaultRegionSelector.
func NewHTMLSource(pages DetailFetcher, selector string) *HTMLSource {
	if selector == "" {
		selector = DefaultRegionSelector
	}
	return &HTMLSource{pages: pages, selector: selector}
}

// Documents fetches the detail page and visits its region text.
func (s *HTMLSource) Documents(ctx context.Context, item contest.ListingItem, visit func(contest.Document) bool) error {
	resp, err := s.pages.FetchDetail(ctx, item.DetailURL)
	if err != nil {
		return err
	}
	text, err := RegionText(item.DetailURL, resp.Body, s.selector)
	if err != nil {
		return err
	}
	visit(contest.Document{Text: text})
	return nil
}
