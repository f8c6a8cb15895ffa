package contest

import (
	"net/http"
	"time"
)

// Listing defaults applied when a block omits a field.
const (
	DefaultRegion   = "NATIONAL"
	DefaultDateText = "upcoming"
)

// ListingItem is one contest block discovered on the listing page.
type ListingItem struct {
	Title     string
	DetailURL string
	Region    string
	DateText  string
}

// Record is the durable unit of output. DetailURL (json "url") is its key.
type Record struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Region      string    `json:"state"`
	Job         *string   `json:"job"`
	AllJobs     []string  `json:"all_jobs"`
	Topics      []string  `json:"topics,omitempty"`
	StartDate   *string   `json:"start_date"`
	EndDate     *string   `json:"end_date"`
	DocumentURL *string   `json:"pdf_url"`
	ArchiveURI  *string   `json:"archive_uri,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Document is the text extracted from one candidate source of a contest.
// URL is empty when the text came from the detail page itself.
type Document struct {
	URL  string
	Text string
	Body []byte
}

// Response is the result of one HTTP fetch.
type Response struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Outcome is the terminal state of one listing item within a batch.
type Outcome string

// Outcome values.
const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeMatched   Outcome = "matched"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeExpired   Outcome = "expired"
	OutcomeFailed    Outcome = "failed"
)

// BatchStats aggregates outcomes over one pass of the listing.
type BatchStats struct {
	RunID      string        `json:"run_id"`
	Listed     int           `json:"listed"`
	Attempted  int           `json:"attempted"`
	Matched    int           `json:"matched"`
	Unmatched  int           `json:"unmatched"`
	Expired    int           `json:"expired"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Add counts one outcome. Every non-skipped outcome is also an attempt.
func (s *BatchStats) Add(o Outcome) {
	switch o {
	case OutcomeSkipped:
		s.Skipped++
		return
	case OutcomeMatched:
		s.Matched++
	case OutcomeUnmatched:
		s.Unmatched++
	case OutcomeExpired:
		s.Expired++
	case OutcomeFailed:
		s.Failed++
	}
	s.Attempted++
}
