// Package discovery finds contests on the listing page and the candidate
// announcement documents on each contest's detail page.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/metrics"
)

// Default selectors for the pciconcursos listing markup.
const (
	DefaultBlockSelector       = "[data-url]"
	DefaultTitleSelector       = "a"
	DefaultRegionSelector      = ".cc"
	DefaultDateSelector        = ".ce"
	DefaultAnnouncementPattern = `(?i)edital\s+(de\s+)?abertura`
)

// Selectors locate the fields of a contest block.
type Selectors struct {
	Block  string
	Title  string
	Region string
	Date   string
}

func (s Selectors) withDefaults() Selectors {
	if s.Block == "" {
		s.Block = DefaultBlockSelector
	}
	if s.Title == "" {
		s.Title = DefaultTitleSelector
	}
	if s.Region == "" {
		s.Region = DefaultRegionSelector
	}
	if s.Date == "" {
		s.Date = DefaultDateSelector
	}
	return s
}

// Config wires a Client to one listing source.
type Config struct {
	ListingURL          string
	Selectors           Selectors
	AnnouncementPattern string
}

// Client performs discovery over a page fetcher.
type Client struct {
	pages     contest.Fetcher
	listing   *url.URL
	selectors Selectors
	announce  *regexp.Regexp
	logger    *zap.Logger
}

// New validates cfg and returns a Client.
func New(pages contest.Fetcher, cfg Config, logger *zap.Logger) (*Client, error) {
	if pages == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	listing, err := url.Parse(cfg.ListingURL)
	if err != nil || listing.Scheme == "" || listing.Host == "" {
		return nil, fmt.Errorf("listing url %q must be absolute", cfg.ListingURL)
	}
	pattern := cfg.AnnouncementPattern
	if pattern == "" {
		pattern = DefaultAnnouncementPattern
	}
	announce, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile announcement pattern: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		pages:     pages,
		listing:   listing,
		selectors: cfg.Selectors.withDefaults(),
		announce:  announce,
		logger:    logger,
	}, nil
}

// ListContests fetches the listing page and returns its contests in page order.
func (c *Client) ListContests(ctx context.Context) ([]contest.ListingItem, error) {
	resp, err := c.pages.Fetch(ctx, c.listing.String())
	metrics.ObserveFetch("listing", err)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	base := c.listing
	if resp.FinalURL != "" {
		if u, perr := url.Parse(resp.FinalURL); perr == nil {
			base = u
		}
	}
	items, err := ParseListing(resp.Body, base, c.selectors)
	if err != nil {
		return nil, err
	}
	c.logger.Info("listing parsed", zap.String("url", c.listing.String()), zap.Int("contests", len(items)))
	return items, nil
}

// FetchDetail fetches a contest's detail page.
func (c *Client) FetchDetail(ctx context.Context, detailURL string) (contest.Response, error) {
	resp, err := c.pages.Fetch(ctx, detailURL)
	metrics.ObserveFetch("detail", err)
	if err != nil {
		return contest.Response{}, fmt.Errorf("fetch detail page: %w", err)
	}
	return resp, nil
}

// DiscoverDocuments fetches the detail page and returns its candidate document URLs.
func (c *Client) DiscoverDocuments(ctx context.Context, detailURL string) ([]string, error) {
	resp, err := c.FetchDetail(ctx, detailURL)
	if err != nil {
		return nil, err
	}
	return c.DocumentLinks(resp)
}

// DocumentLinks extracts candidate document URLs from an already fetched detail page.
func (c *Client) DocumentLinks(resp contest.Response) ([]string, error) {
	baseURL := resp.FinalURL
	if baseURL == "" {
		baseURL = resp.URL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse detail url: %w", err)
	}
	return ParseDocumentLinks(resp.Body, base, c.announce)
}

// ParseListing extracts the contest blocks of a listing page. Blocks without a
// resolvable detail URL are dropped.
func ParseListing(body []byte, base *url.URL, sel Selectors) ([]contest.ListingItem, error) {
	sel = sel.withDefaults()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	var items []contest.ListingItem
	seen := make(map[string]struct{})
	doc.Find(sel.Block).Each(func(_ int, block *goquery.Selection) {
		link := block.Find(sel.Title).First()
		href, _ := block.Attr("data-url")
		if strings.TrimSpace(href) == "" {
			href, _ = link.Attr("href")
		}
		detail, ok := resolve(base, href)
		if !ok {
			return
		}
		if _, dup := seen[detail]; dup {
			return
		}
		seen[detail] = struct{}{}

		title := cleanText(link.Text())
		if title == "" {
			title = cleanText(link.AttrOr("title", ""))
		}
		region := cleanText(block.Find(sel.Region).First().Text())
		if region == "" {
			region = contest.DefaultRegion
		}
		dateText := cleanText(block.Find(sel.Date).First().Text())
		if dateText == "" {
			dateText = contest.DefaultDateText
		}
		items = append(items, contest.ListingItem{
			Title:     title,
			DetailURL: detail,
			Region:    region,
			DateText:  dateText,
		})
	})
	return items, nil
}

// ParseDocumentLinks returns the announcement links of a detail page, matched
// on link text, title or aria-label. When none match it falls back to every
// link ending in .pdf. Order is document order; duplicates are removed.
func ParseDocumentLinks(body []byte, base *url.URL, announce *regexp.Regexp) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse detail html: %w", err)
	}

	var announced, pdfs []string
	seenAnnounced := make(map[string]struct{})
	seenPDF := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		abs, ok := resolve(base, a.AttrOr("href", ""))
		if !ok {
			return
		}
		if announce != nil && announce.MatchString(linkLabel(a)) {
			if _, dup := seenAnnounced[abs]; !dup {
				seenAnnounced[abs] = struct{}{}
				announced = append(announced, abs)
			}
			return
		}
		if isPDF(abs) {
			if _, dup := seenPDF[abs]; !dup {
				seenPDF[abs] = struct{}{}
				pdfs = append(pdfs, abs)
			}
		}
	})
	if len(announced) > 0 {
		return announced, nil
	}
	return pdfs, nil
}

func linkLabel(a *goquery.Selection) string {
	parts := []string{a.Text(), a.AttrOr("title", ""), a.AttrOr("aria-label", "")}
	return cleanText(strings.Join(parts, " "))
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func isPDF(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
