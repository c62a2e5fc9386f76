package upload

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker tracks and reports progress of an upload run.
// Updated concurrently by the worker pool; the total is unknown up
// front because the chunk source is streamed.
type ProgressTracker struct {
	writer         io.Writer
	reportInterval int
	delivered      int
	failed         int
	skipped        int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress output (typically os.Stderr)
// reportInterval: report progress every N processed chunks
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	if writer == nil {
		writer = io.Discard
	}
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.delivered = 0
	p.failed = 0
	p.skipped = 0
	p.lastReported = 0
}

// AddDelivered records n chunks delivered to the backend.
func (p *ProgressTracker) AddDelivered(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered += n
	p.maybeReport()
}

// AddFailed records n chunks that failed permanently.
func (p *ProgressTracker) AddFailed(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed += n
	p.maybeReport()
}

// SetSkipped records how many chunks were skipped as already delivered.
func (p *ProgressTracker) SetSkipped(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipped = n
}

// Finish prints the final progress line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer) // Print newline after final progress
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// Counts returns the delivered and failed totals so far.
func (p *ProgressTracker) Counts() (delivered, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivered, p.failed
}

// maybeReport prints progress when a report interval has been crossed.
// Must be called with lock held.
func (p *ProgressTracker) maybeReport() {
	if !p.started {
		return
	}
	processed := p.delivered + p.failed
	if processed-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = processed
	}
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.delivered+p.failed) / elapsed.Seconds()
	}

	fmt.Fprintf(p.writer, "\rDelivered: %d, failed: %d, skipped: %d - %.1f chunks/s",
		p.delivered, p.failed, p.skipped, rate)
}
