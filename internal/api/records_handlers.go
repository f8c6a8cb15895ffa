package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/daterange"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
)

// RecordsHandler exposes read-only views over the persisted records.
type RecordsHandler struct {
	source RecordSource
	clock  contest.Clock
	logger *zap.Logger
}

// NewRecordsHandler wires the record source, clock and logger.
func NewRecordsHandler(source RecordSource, clock contest.Clock, logger *zap.Logger) *RecordsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordsHandler{source: source, clock: clock, logger: logger}
}

// ListRecords handles GET /v1/records?state=&status=&limit=&offset=. state
// filters on the region label (case-insensitive); status is one of open,
// closed, cancelled as derived from the start date. It returns
// {"records": [...], "total": n} where total counts the filtered set before
// paging, 400 for invalid filters, or 503 when no source is configured.
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "record source unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	region := strings.TrimSpace(q.Get("state"))
	var status *daterange.Status
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		parsed, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}

	today := time.Now()
	if h.clock != nil {
		today = h.clock.Now()
	}
	filtered := make([]recordDTO, 0)
	for _, rec := range h.source.Records() {
		if region != "" && !strings.EqualFold(rec.Region, region) {
			continue
		}
		st := daterange.DeriveStatus(daterange.ParsePtr(rec.StartDate), today)
		if status != nil && st != *status {
			continue
		}
		filtered = append(filtered, recordDTO{Record: rec, Status: st})
	}

	total := len(filtered)
	page := filtered[min(offset, total):min(offset+limit, total)]
	writeJSON(w, http.StatusOK, map[string]any{
		"records": page,
		"total":   total,
	})
}

type recordDTO struct {
	contest.Record
	Status daterange.Status `json:"status"`
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (daterange.Status, error) {
	switch strings.ToLower(input) {
	case "open":
		return daterange.StatusOpen, nil
	case "closed":
		return daterange.StatusClosed, nil
	case "cancelled", "canceled":
		return daterange.StatusCancelled, nil
	default:
		return "", errors.New("invalid status")
	}
}
