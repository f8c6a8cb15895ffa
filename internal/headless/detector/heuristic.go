// Package detector decides when a page fetched over plain HTTP must be
// re-fetched through the headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
)

// DefaultBodyThreshold is the size under which a script-heavy page is
// considered an unrendered shell.
const DefaultBodyThreshold = 2048

// scriptShare is the minimum percentage of the body held by inline scripts
// for a small page to count as a shell.
const scriptShare = 25

var spaMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="__nuxt"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
}

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyThreshold int
	// Required, when set, is a selector whose absence forces promotion. The
	// listing block selector is a good choice.
	Required string
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int, required string) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyThreshold
	}
	return &Heuristic{BodyThreshold: threshold, Required: strings.TrimSpace(required)}
}

// ShouldPromote reports whether resp looks like a page whose content is
// produced by client-side scripts.
func (h *Heuristic) ShouldPromote(resp contest.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if h.Required != "" && doc.Find(h.Required).Length() == 0 {
		return true
	}
	if len(body) >= h.BodyThreshold {
		return false
	}
	scripts := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts += len(s.Text())
	})
	return scripts > 0 && scripts*100/len(body) >= scriptShare
}
