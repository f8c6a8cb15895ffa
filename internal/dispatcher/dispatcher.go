// Package dispatcher schedules batch passes so that at most one runs at a time.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
)

// Runner executes one batch pass.
type Runner interface {
	Run(ctx context.Context) (contest.BatchStats, error)
}

// Report describes the most recent batch pass.
type Report struct {
	Running bool               `json:"running"`
	Stats   contest.BatchStats `json:"stats"`
	Error   string             `json:"error,omitempty"`
}

// Dispatcher starts batch passes on demand or on a fixed interval.
type Dispatcher struct {
	runner Runner
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	last    *Report
	wg      sync.WaitGroup
}

// New creates a Dispatcher.
func New(runner Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{runner: runner, logger: logger}
}

// TryStart launches a pass in the background unless one is already running.
// The pass runs under ctx, not under the caller's request.
func (d *Dispatcher) TryStart(ctx context.Context) bool {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return false
	}
	d.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.execute(ctx)
	}()
	return true
}

func (d *Dispatcher) execute(ctx context.Context) {
	stats, err := d.runner.Run(ctx)
	report := &Report{Stats: stats}
	if err != nil {
		report.Error = err.Error()
		d.logger.Error("batch run failed", zap.String("run_id", stats.RunID), zap.Error(err))
	}

	d.mu.Lock()
	d.running = false
	d.last = report
	d.mu.Unlock()
}

// Last returns the most recent report. ok is false before the first pass
// starts.
func (d *Dispatcher) Last() (Report, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		if d.running {
			return Report{Running: true}, true
		}
		return Report{}, false
	}
	out := *d.last
	out.Running = d.running
	return out, true
}

// Run triggers a pass immediately and then every interval until ctx is
// done, skipping ticks that land while a pass is still running. A zero
// interval disables scheduling. Run waits for the in-flight pass before
// returning.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	defer d.Wait()
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	d.trigger(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.trigger(ctx)
		}
	}
}

func (d *Dispatcher) trigger(ctx context.Context) {
	if !d.TryStart(ctx) {
		d.logger.Info("scheduled run skipped; previous run still active")
	}
}

// Wait blocks until no pass is running.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
