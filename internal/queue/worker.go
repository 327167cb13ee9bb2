package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// Handler processes one decoded message. A returned error leaves the
// message undeleted, so goqite redelivers it after the visibility timeout;
// returning nil deletes it.
type Handler func(ctx context.Context, body []byte) error

// WorkerPool runs a fixed number of goroutines polling a single queue,
// decoding each message's body and dispatching it to handler. Grounded on
// the staggered-start, ticker-driven poll loop with exponential-backoff
// delete retries used throughout the pipeline's stage workers.
type WorkerPool struct {
	mgr     *Manager
	handler Handler
	config  Config
	logger  arbor.ILogger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWorkerPool builds a pool bound to one queue and one handler. Each
// pipeline stage (crawl, download, extract, rename) constructs its own pool.
func NewWorkerPool(mgr *Manager, handler Handler, config Config, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		mgr:     mgr,
		handler: handler,
		config:  config,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches config.Concurrency worker goroutines.
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Str("queue", wp.mgr.Name()).
		Int("concurrency", wp.config.Concurrency).
		Msg("starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		go wp.worker(i)
	}
}

// Stop cancels the pool's context and gives in-flight handlers a brief
// window to return. In-flight messages that don't finish in that window
// stay undeleted and are redelivered after the visibility timeout expires -
// the pipeline's crash-resumption path, not a special shutdown case.
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Str("queue", wp.mgr.Name()).Msg("stopping worker pool")
	wp.cancel()
	time.Sleep(500 * time.Millisecond)
}

func (wp *WorkerPool) worker(workerID int) {
	if wp.config.Concurrency > 0 {
		stagger := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
		if stagger > 0 {
			time.Sleep(stagger)
		}
	}

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			wp.processOne(workerID)
		}
	}
}

func (wp *WorkerPool) processOne(workerID int) {
	var body rawBody

	deleteFn, err := wp.mgr.Receive(wp.ctx, &body)
	if err != nil {
		if !errors.Is(err, ErrNoMessage) && !isTransientBusy(err) {
			wp.logger.Warn().Err(err).Str("queue", wp.mgr.Name()).Int("worker_id", workerID).Msg("failed to receive message")
		}
		return
	}

	handlerErr := wp.handler(wp.ctx, body)

	if handlerErr != nil {
		wp.logger.Warn().
			Err(handlerErr).
			Str("queue", wp.mgr.Name()).
			Int("worker_id", workerID).
			Msg("handler failed, message stays queued for redelivery")
		return
	}

	if err := wp.retryDelete(deleteFn); err != nil {
		wp.logger.Error().
			Err(err).
			Str("queue", wp.mgr.Name()).
			Int("worker_id", workerID).
			Msg("failed to delete message after successful processing, will be redelivered")
	}
}

// rawBody implements json.Unmarshaler by capturing the raw message bytes,
// letting the handler decode into its own stage-specific message type.
type rawBody []byte

func (b *rawBody) UnmarshalJSON(data []byte) error {
	*b = append((*b)[:0], data...)
	return nil
}

func (b rawBody) MarshalJSON() ([]byte, error) {
	return b, nil
}

func isTransientBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// retryDelete retries queue message deletion with exponential backoff for
// SQLITE_BUSY errors, which are routine under concurrent stage access.
func (wp *WorkerPool) retryDelete(deleteFn func(context.Context) error) error {
	delay := 200 * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		lastErr = deleteFn(ctx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if !isTransientBusy(lastErr) {
			return lastErr
		}
		if attempt < 3 {
			time.Sleep(delay)
			delay *= 2
		}
	}

	return lastErr
}
