// Package notify delivers matched records to downstream channels.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
)

// FormatMessage renders a record as the human readable announcement text.
func FormatMessage(r contest.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Novo concurso: %s\n", r.Title)
	fmt.Fprintf(&b, "Estado: %s\n", r.Region)
	if len(r.AllJobs) > 0 {
		fmt.Fprintf(&b, "Cargos: %s\n", strings.Join(r.AllJobs, ", "))
	}
	if len(r.Topics) > 0 {
		fmt.Fprintf(&b, "Temas: %s\n", strings.Join(r.Topics, ", "))
	}
	switch {
	case r.StartDate != nil && r.EndDate != nil:
		fmt.Fprintf(&b, "Inscrições: %s a %s\n", *r.StartDate, *r.EndDate)
	case r.StartDate != nil:
		fmt.Fprintf(&b, "Inscrições até: %s\n", *r.StartDate)
	default:
		b.WriteString("Inscrições: a definir\n")
	}
	if r.DocumentURL != nil {
		fmt.Fprintf(&b, "Edital: %s\n", *r.DocumentURL)
	}
	fmt.Fprintf(&b, "Detalhes: %s", r.URL)
	return b.String()
}

// LogNotifier writes each record to the logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLog returns a LogNotifier.
func NewLog(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the formatted record.
func (n *LogNotifier) Notify(_ context.Context, r contest.Record) error {
	n.logger.Info("new contest match",
		zap.String("url", r.URL),
		zap.Strings("jobs", r.AllJobs),
		zap.String("message", FormatMessage(r)),
	)
	return nil
}

// Recorder keeps notified records in memory.
type Recorder struct {
	mu      sync.Mutex
	records []contest.Record
	err     error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes later Notify calls return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Notify records rec, or fails if FailWith was set.
func (r *Recorder) Notify(_ context.Context, rec contest.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

// Records returns a copy of the notified records.
func (r *Recorder) Records() []contest.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]contest.Record(nil), r.records...)
}
