package detector

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
)

// Promoting fetches with a plain fetcher and retries through a rendering
// fetcher when the heuristic says the page was not rendered.
type Promoting struct {
	plain    contest.Fetcher
	rendered contest.Fetcher
	detector *Heuristic
	logger   *zap.Logger
}

// NewPromoting builds a Promoting fetcher.
func NewPromoting(plain, rendered contest.Fetcher, detector *Heuristic, logger *zap.Logger) *Promoting {
	if detector == nil {
		detector = NewHeuristic(0, "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{plain: plain, rendered: rendered, detector: detector, logger: logger}
}

// Fetch returns the plain response unless it needs rendering. A failed
// rendering falls back to the plain response.
func (p *Promoting) Fetch(ctx context.Context, url string) (contest.Response, error) {
	resp, err := p.plain.Fetch(ctx, url)
	if err != nil || p.rendered == nil || !p.detector.ShouldPromote(resp) {
		return resp, err
	}
	p.logger.Debug("promoting to headless", zap.String("url", url))
	rendered, rerr := p.rendered.Fetch(ctx, url)
	if rerr != nil {
		p.logger.Warn("headless fetch failed; using plain response",
			zap.String("url", url), zap.Error(rerr))
		return resp, nil
	}
	return rendered, nil
}
