// Copyright 2025 Syntropic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/syntropic/vecfeed/ai"
	"github.com/syntropic/vecfeed/core"
	"github.com/syntropic/vecfeed/storage"
	"github.com/syntropic/vecfeed/vectordb"
)

const (
	// DefaultBatchSize is the number of chunks per backend call.
	DefaultBatchSize = 50

	// DefaultWorkers is the number of concurrent in-flight batches.
	DefaultWorkers = 4

	// DefaultMaxAttempts bounds delivery attempts per batch before the
	// batch is abandoned.
	DefaultMaxAttempts = 5

	// DefaultReportInterval is how often progress is reported
	// (number of chunks).
	DefaultReportInterval = 500
)

// Summary reports the outcome of one upload run.
type Summary struct {
	// Delivered is the number of chunks accepted by the backend.
	Delivered int

	// Skipped is the number of chunks filtered out because the ledger
	// already recorded them.
	Skipped int

	// TotalAttempts is the number of delivery attempts across all
	// batches, including retries.
	TotalAttempts int

	// FailedChunkIDs lists every chunk that failed permanently: the
	// backend rejected it, or its batch exceeded the attempt limit.
	FailedChunkIDs []string
}

// Uploader delivers chunk records to a vector store in rate-limited,
// idempotent batches. Already delivered chunks are skipped via the
// ledger, throttle responses feed the shared rate limiter, and every
// delivered chunk is recorded before the run ends, so an interrupted
// run resumes where it stopped.
type Uploader struct {
	store          vectordb.Store
	ledger         storage.LedgerRepository
	embedder       ai.Embedder
	limiter        *RateLimiter
	pool           *ants.Pool
	batchSize      int
	maxAttempts    int
	reportInterval int
	progress       io.Writer
	logger         *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader) error

// WithBatchSize sets the number of chunks per backend call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(u *Uploader) error {
		if size < 1 {
			return ErrInvalidBatchSize
		}
		u.batchSize = size
		return nil
	}
}

// WithWorkers sets the worker pool size for concurrent batches.
// Default is DefaultWorkers, with a minimum of 1.
func WithWorkers(size int) Option {
	return func(u *Uploader) error {
		if size < 1 {
			size = 1
		}

		if u.pool != nil {
			u.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		u.pool = pool
		return nil
	}
}

// WithMaxAttempts sets how many delivery attempts a batch gets before
// it is abandoned. Default is DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(u *Uploader) error {
		if n < 1 {
			return ErrInvalidMaxAttempts
		}
		u.maxAttempts = n
		return nil
	}
}

// WithRateLimiter sets the shared rate limiter.
// Default is a reactive-only limiter.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(u *Uploader) error {
		if limiter != nil {
			u.limiter = limiter
		}
		return nil
	}
}

// WithEmbedder sets a client-side embedder. When set, batch texts are
// embedded before delivery and the vectors attached to each object.
// Default is nil: the backend vectorizes server-side.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(u *Uploader) error {
		u.embedder = embedder
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) error {
		if logger == nil {
			logger = slog.Default()
		}
		u.logger = logger
		return nil
	}
}

// WithProgress sets where progress output is written
// (typically os.Stderr). Default discards it.
func WithProgress(w io.Writer) Option {
	return func(u *Uploader) error {
		if w == nil {
			w = io.Discard
		}
		u.progress = w
		return nil
	}
}

// WithReportInterval sets how often progress is reported
// (number of chunks). Default is DefaultReportInterval.
func WithReportInterval(n int) Option {
	return func(u *Uploader) error {
		if n < 1 {
			n = 1
		}
		u.reportInterval = n
		return nil
	}
}

// New creates an uploader delivering to store and recording in ledger.
func New(store vectordb.Store, ledger storage.LedgerRepository, opts ...Option) (*Uploader, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if ledger == nil {
		return nil, ErrLedgerRequired
	}

	pool, err := ants.NewPool(DefaultWorkers)
	if err != nil {
		return nil, err
	}

	u := &Uploader{
		store:          store,
		ledger:         ledger,
		limiter:        NewRateLimiter(DefaultLimiterConfig()),
		pool:           pool,
		batchSize:      DefaultBatchSize,
		maxAttempts:    DefaultMaxAttempts,
		reportInterval: DefaultReportInterval,
		progress:       io.Discard,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(u); optErr != nil {
			u.Release()
			return nil, optErr
		}
	}

	return u, nil
}

// Release releases the worker pool.
// The uploader should not be used after calling Release.
func (u *Uploader) Release() {
	if u.pool != nil {
		u.pool.Release()
	}
}

// Run delivers every chunk from source that the ledger does not already
// record. It returns when the source is exhausted and all in-flight
// batches have settled. On cancellation, no new batches are admitted,
// in-flight network calls finish, delivered chunks are recorded, and
// ctx.Err() is returned alongside the partial summary.
//
// On a clean completion every non-skipped chunk is accounted for in
// exactly one of Delivered or FailedChunkIDs.
func (u *Uploader) Run(ctx context.Context, source iter.Seq2[core.ChunkRecord, error]) (*Summary, error) {
	deliveredSet, err := u.ledger.DeliveredIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading delivery ledger: %w", err)
	}

	tracker := NewProgressTracker(u.progress, u.reportInterval)
	tracker.Start()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &runState{abort: cancel}
	builder := newBatchBuilder(source, u.batchSize, deliveredSet)
	defer builder.Close()

	u.logger.Info("starting upload run",
		"batch_size", u.batchSize,
		"max_attempts", u.maxAttempts,
		"already_delivered", len(deliveredSet))

	var wg sync.WaitGroup
	for runCtx.Err() == nil {
		batch, buildErr := builder.Next()
		if buildErr != nil {
			state.setFatal(fmt.Errorf("reading chunk source: %w", buildErr))
			break
		}
		if batch == nil {
			break
		}

		wg.Add(1)
		// Submit blocks while all workers are busy; that is the
		// back-pressure keeping memory bounded.
		if submitErr := u.pool.Submit(func() {
			defer wg.Done()
			u.processBatch(runCtx, batch, state, tracker)
		}); submitErr != nil {
			wg.Done()
			state.setFatal(fmt.Errorf("submitting batch: %w", submitErr))
			break
		}
	}
	wg.Wait()

	tracker.SetSkipped(builder.Skipped())
	tracker.Finish()

	summary := state.summary()
	summary.Skipped = builder.Skipped()

	elapsed := tracker.Elapsed()
	u.logger.Info("upload run finished",
		"delivered", summary.Delivered,
		"failed", len(summary.FailedChunkIDs),
		"skipped", summary.Skipped,
		"attempts", summary.TotalAttempts,
		"elapsed", elapsed.Round(time.Second))
	if elapsed > 0 {
		fmt.Fprintf(u.progress, "Upload complete. Delivered %d chunks in %v (%.1f chunks/sec), skipped %d, failed %d\n",
			summary.Delivered, elapsed.Round(time.Second),
			float64(summary.Delivered)/elapsed.Seconds(), summary.Skipped, len(summary.FailedChunkIDs))
	}

	if fatal := state.fatalErr(); fatal != nil {
		return summary, fatal
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// processBatch drives one batch to a terminal state: delivered,
// failed, or dropped by cancellation.
func (u *Uploader) processBatch(ctx context.Context, batch *Batch, state *runState, tracker *ProgressTracker) {
	batch.Status = StatusInFlight
	estimatedCost := batch.EstimatedCost()

	for {
		if ctx.Err() != nil {
			// Cancelled before delivery; the chunks stay unrecorded and
			// the next run picks them up.
			return
		}

		if err := u.limiter.Wait(ctx, estimatedCost); err != nil {
			return
		}

		batch.Attempts++
		state.countAttempt()

		// The network call gets to finish even when the run is being
		// cancelled; interrupting mid-flight would waste the quota the
		// limiter already admitted.
		callCtx := context.WithoutCancel(ctx)

		result, err := u.deliver(callCtx, batch)
		if err == nil {
			u.settleDelivery(callCtx, batch, result, state, tracker)
			return
		}

		switch {
		case errors.Is(err, vectordb.ErrAuth):
			u.logger.Error("backend refused credentials, aborting run",
				"batch", batch.ID, "err", err)
			batch.Status = StatusFailed
			state.abortWith(err)
			return

		case errors.Is(err, vectordb.ErrThrottled):
			hint := vectordb.RetryAfterHint(err)
			u.limiter.ReportThrottled(hint)
			u.logger.Warn("backend throttled batch",
				"batch", batch.ID,
				"attempt", batch.Attempts,
				"hint", hint,
				"reset_at", u.limiter.ResetAt().Format(time.TimeOnly))

		case errors.Is(err, vectordb.ErrUnavailable):
			// Treated like a throttle with no hint: back off, retry.
			u.limiter.ReportThrottled(0)
			u.logger.Warn("backend unavailable",
				"batch", batch.ID, "attempt", batch.Attempts, "err", err)

		case errors.Is(err, vectordb.ErrRejected):
			u.logger.Warn("backend rejected batch call",
				"batch", batch.ID, "attempt", batch.Attempts, "err", err)

		default:
			// Embedding failures and anything unclassified: back off
			// and retry, the attempt limit bounds the damage.
			u.limiter.ReportThrottled(0)
			u.logger.Warn("batch attempt failed",
				"batch", batch.ID, "attempt", batch.Attempts, "err", err)
		}

		if batch.Attempts >= u.maxAttempts {
			u.logger.Error("abandoning batch after max attempts",
				"batch", batch.ID,
				"attempts", batch.Attempts,
				"chunks", len(batch.Chunks))
			batch.Status = StatusFailed
			state.fail(batch.ChunkIDs()...)
			tracker.AddFailed(len(batch.Chunks))
			return
		}
	}
}

// deliver shapes the batch into backend objects, embedding first when a
// client-side embedder is configured, and posts it.
func (u *Uploader) deliver(ctx context.Context, batch *Batch) (*vectordb.BatchResult, error) {
	objects := make([]vectordb.Object, len(batch.Chunks))

	if u.embedder == nil {
		for i, chunk := range batch.Chunks {
			objects[i] = vectordb.NewObject(chunk, nil)
		}
		return u.store.UpsertBatch(ctx, objects)
	}

	texts := make([]string, len(batch.Chunks))
	for i, chunk := range batch.Chunks {
		texts[i] = chunk.Text
	}
	vectors, err := u.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding batch: %w", err)
	}
	if len(vectors) != len(batch.Chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch.Chunks))
	}

	for i, chunk := range batch.Chunks {
		objects[i] = vectordb.NewObject(chunk, ai.NormalizeVector(vectors[i]))
	}
	return u.store.UpsertBatch(ctx, objects)
}

// settleDelivery records the per-item outcome of a successful batch
// call: accepted chunks go to the ledger, rejected ones to the failed
// set. Rejections are permanent and never retried.
func (u *Uploader) settleDelivery(ctx context.Context, batch *Batch, result *vectordb.BatchResult, state *runState, tracker *ProgressTracker) {
	for _, rejection := range result.Rejected {
		u.logger.Warn("backend rejected chunk",
			"chunk", rejection.ChunkID, "reason", rejection.Reason)
		state.fail(rejection.ChunkID)
	}
	if n := len(result.Rejected); n > 0 {
		tracker.AddFailed(n)
	}

	if len(result.Delivered) > 0 {
		now := time.Now().UTC()
		entries := make([]core.LedgerEntry, len(result.Delivered))
		for i, chunkID := range result.Delivered {
			entries[i] = core.LedgerEntry{
				ChunkID:     chunkID,
				DeliveredAt: now,
				Attempts:    batch.Attempts,
			}
		}
		if err := u.ledger.MarkDelivered(ctx, entries...); err != nil {
			// Delivered but not recorded: the next run re-sends these
			// chunks and the backend's idempotent upsert absorbs it.
			u.logger.Error("failed to record delivery",
				"chunks", len(entries), "err", err)
		}
		state.deliver(len(result.Delivered))
		tracker.AddDelivered(len(result.Delivered))
	}

	batch.Status = StatusDelivered
	u.limiter.ReportSuccess(batch.EstimatedCost())

	u.logger.Debug("batch delivered",
		"batch", batch.ID,
		"delivered", len(result.Delivered),
		"rejected", len(result.Rejected),
		"attempts", batch.Attempts)
}

// runState accumulates the summary across workers. Only the first
// fatal error wins; abortWith additionally cancels the run for errors
// that doom every future batch.
type runState struct {
	mu        sync.Mutex
	delivered int
	attempts  int
	failedIDs []string
	fatal     error
	abort     context.CancelFunc
}

func (s *runState) countAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
}

func (s *runState) deliver(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered += n
}

func (s *runState) fail(chunkIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, chunkIDs...)
}

// setFatal records the error but lets in-flight batches settle.
func (s *runState) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

// abortWith records the error and cancels the run.
func (s *runState) abortWith(err error) {
	s.mu.Lock()
	first := s.fatal == nil
	if first {
		s.fatal = err
	}
	s.mu.Unlock()

	if first && s.abort != nil {
		s.abort()
	}
}

func (s *runState) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *runState) summary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make([]string, len(s.failedIDs))
	copy(failed, s.failedIDs)
	return &Summary{
		Delivered:      s.delivered,
		TotalAttempts:  s.attempts,
		FailedChunkIDs: failed,
	}
}
