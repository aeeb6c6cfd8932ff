// Package common holds the generic fan-out engine used to run language-model
// calls over a candidate list with bounded concurrency.
package common

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

var (
	ErrShutdown    = stderrors.New("batch processor is shutting down")
	ErrCircuitOpen = stderrors.New("circuit breaker is open")
)

// ItemStatus is the outcome of a single item.
type ItemStatus int

const (
	ItemStatusSuccess ItemStatus = iota
	ItemStatusFailed
	ItemStatusTimeout
	ItemStatusCancelled
)

func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ProcessFunc processes one item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult is the outcome for the item at Index of the input slice.
type ItemResult[R any] struct {
	Index    int
	Result   R
	Error    error
	Attempts int
	Duration time.Duration
	Status   ItemStatus
}

// BatchResult aggregates a run. Results is ordered by input index.
type BatchResult[R any] struct {
	Results       []*ItemResult[R]
	TotalCount    int
	SuccessCount  int
	FailureCount  int
	TotalDuration time.Duration
}

// BatchProcessor runs fn over every item with bounded concurrency, a
// per-item timeout, optional retry and an optional circuit breaker.
// A failing item never fails the batch; Process returns an error only when
// the batch cannot start.
type BatchProcessor[T, R any] interface {
	Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error)
	// Shutdown rejects new batches and waits for in-flight ones.
	Shutdown(ctx context.Context) error
}

// BatchObserver receives batch and breaker events. The prometheus
// AppMetrics implements it.
type BatchObserver interface {
	ObserveBatch(name string, total, succeeded, failed int, elapsed time.Duration)
	ObserveCircuitBreaker(name, from, to string)
}

type nopObserver struct{}

func (nopObserver) ObserveBatch(string, int, int, int, time.Duration) {}
func (nopObserver) ObserveCircuitBreaker(string, string, string)      {}

// RetryPolicy governs how failed items are retried. A nil Retryable retries
// every error.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Retryable         func(error) bool
}

func shouldRetry(err error, policy *RetryPolicy) bool {
	if policy == nil || err == nil {
		return false
	}
	if policy.Retryable == nil {
		return true
	}
	return policy.Retryable(err)
}

// calculateBackoff applies exponential back-off with ±25% jitter, capped at
// MaxBackoff.
func calculateBackoff(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil || policy.InitialBackoff <= 0 {
		return 0
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(policy.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if policy.MaxBackoff > 0 && base > float64(policy.MaxBackoff) {
		base = float64(policy.MaxBackoff)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

const (
	cbStateClosed   int32 = 0
	cbStateOpen     int32 = 1
	cbStateHalfOpen int32 = 2
)

var cbStateNames = map[int32]string{
	cbStateClosed:   "CLOSED",
	cbStateOpen:     "OPEN",
	cbStateHalfOpen: "HALF_OPEN",
}

// circuitBreaker trips after threshold consecutive failures and lets a
// single probe through once resetDuration has elapsed.
type circuitBreaker struct {
	name             string
	state            atomic.Int32
	consecutiveFails atomic.Int32
	threshold        int32
	resetDuration    time.Duration
	lastOpenTime     atomic.Int64
	halfOpenPermits  atomic.Int32
	logger           logging.Logger
	observer         BatchObserver
}

func newCircuitBreaker(name string, threshold int, d time.Duration, logger logging.Logger, obs BatchObserver) *circuitBreaker {
	cb := &circuitBreaker{
		name:          name,
		threshold:     int32(threshold),
		resetDuration: d,
		logger:        logger,
		observer:      obs,
	}
	cb.state.Store(cbStateClosed)
	return cb
}

func (cb *circuitBreaker) allow() bool {
	if cb == nil || cb.threshold <= 0 {
		return true
	}
	switch cb.state.Load() {
	case cbStateClosed:
		return true
	case cbStateOpen:
		openedAt := cb.lastOpenTime.Load()
		if time.Since(time.Unix(0, openedAt)) < cb.resetDuration {
			return false
		}
		if cb.state.CompareAndSwap(cbStateOpen, cbStateHalfOpen) {
			cb.halfOpenPermits.Store(1)
			cb.transition(cbStateOpen, cbStateHalfOpen)
		}
		return cb.halfOpenPermits.Add(-1) >= 0
	case cbStateHalfOpen:
		return cb.halfOpenPermits.Add(-1) >= 0
	}
	return false
}

func (cb *circuitBreaker) recordSuccess() {
	if cb == nil || cb.threshold <= 0 {
		return
	}
	cb.consecutiveFails.Store(0)
	if cb.state.CompareAndSwap(cbStateHalfOpen, cbStateClosed) {
		cb.transition(cbStateHalfOpen, cbStateClosed)
	}
}

func (cb *circuitBreaker) recordFailure() {
	if cb == nil || cb.threshold <= 0 {
		return
	}
	fails := cb.consecutiveFails.Add(1)
	switch cb.state.Load() {
	case cbStateClosed:
		if fails >= cb.threshold && cb.state.CompareAndSwap(cbStateClosed, cbStateOpen) {
			cb.lastOpenTime.Store(time.Now().UnixNano())
			cb.transition(cbStateClosed, cbStateOpen)
		}
	case cbStateHalfOpen:
		if cb.state.CompareAndSwap(cbStateHalfOpen, cbStateOpen) {
			cb.lastOpenTime.Store(time.Now().UnixNano())
			cb.transition(cbStateHalfOpen, cbStateOpen)
		}
	}
}

func (cb *circuitBreaker) transition(from, to int32) {
	cb.logger.Info("circuit breaker state change",
		logging.String("breaker", cb.name),
		logging.String("from", cbStateNames[from]),
		logging.String("to", cbStateNames[to]))
	cb.observer.ObserveCircuitBreaker(cb.name, cbStateNames[from], cbStateNames[to])
}

func (cb *circuitBreaker) currentState() int32 {
	if cb == nil {
		return cbStateClosed
	}
	return cb.state.Load()
}

type batchConfig struct {
	name           string
	maxConcurrency int
	itemTimeout    time.Duration
	batchTimeout   time.Duration
	retryPolicy    *RetryPolicy
	cbThreshold    int
	cbDuration     time.Duration
	observer       BatchObserver
	logger         logging.Logger
}

func defaultBatchConfig() *batchConfig {
	return &batchConfig{
		name:           "batch",
		maxConcurrency: runtime.NumCPU(),
		itemTimeout:    30 * time.Second,
		batchTimeout:   5 * time.Minute,
	}
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*batchConfig)

// WithName labels logs and metrics.
func WithName(name string) BatchOption {
	return func(c *batchConfig) {
		if name != "" {
			c.name = name
		}
	}
}

func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout bounds each attempt of fn.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.itemTimeout = d
		}
	}
}

func WithBatchTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

// WithRetryPolicy retries errors accepted by retryable up to maxRetries
// times with exponential back-off.
func WithRetryPolicy(maxRetries int, backoff time.Duration, retryable func(error) bool) BatchOption {
	return func(c *batchConfig) {
		if maxRetries > 0 {
			c.retryPolicy = &RetryPolicy{
				MaxRetries:        maxRetries,
				InitialBackoff:    backoff,
				MaxBackoff:        backoff * 16,
				BackoffMultiplier: 2.0,
				Retryable:         retryable,
			}
		}
	}
}

// WithCircuitBreaker enables the breaker. Zero values leave it disabled.
func WithCircuitBreaker(threshold int, d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if threshold > 0 && d > 0 {
			c.cbThreshold = threshold
			c.cbDuration = d
		}
	}
}

func WithObserver(o BatchObserver) BatchOption {
	return func(c *batchConfig) { c.observer = o }
}

func WithLogger(l logging.Logger) BatchOption {
	return func(c *batchConfig) { c.logger = l }
}

type batchProcessor[T, R any] struct {
	cfg *batchConfig

	shutdownOnce sync.Once
	isShutdown   atomic.Bool
	activeWg     sync.WaitGroup
	mu           sync.Mutex
}

// NewBatchProcessor creates a BatchProcessor with the supplied options.
func NewBatchProcessor[T, R any](opts ...BatchOption) BatchProcessor[T, R] {
	cfg := defaultBatchConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.observer == nil {
		cfg.observer = nopObserver{}
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNopLogger()
	}
	return &batchProcessor[T, R]{cfg: cfg}
}

// Process runs fn over items. The circuit breaker, when enabled, lives for
// one call only, so failures in one batch never reject items of another.
func (bp *batchProcessor[T, R]) Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("process function must not be nil")
	}

	bp.mu.Lock()
	if bp.isShutdown.Load() {
		bp.mu.Unlock()
		return nil, ErrShutdown
	}
	bp.activeWg.Add(1)
	bp.mu.Unlock()
	defer bp.activeWg.Done()

	n := len(items)
	if n == 0 {
		return &BatchResult[R]{Results: []*ItemResult[R]{}}, nil
	}

	start := time.Now()
	batchCtx, cancel := context.WithTimeout(ctx, bp.cfg.batchTimeout)
	defer cancel()

	results := make([]*ItemResult[R], n)
	sem := semaphore.NewWeighted(int64(bp.cfg.maxConcurrency))
	var cb *circuitBreaker
	if bp.cfg.cbThreshold > 0 {
		cb = newCircuitBreaker(bp.cfg.name, bp.cfg.cbThreshold, bp.cfg.cbDuration, bp.cfg.logger, bp.cfg.observer)
	}

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			if err := sem.Acquire(batchCtx, 1); err != nil {
				results[idx] = &ItemResult[R]{Index: idx, Error: err, Status: classifyError(batchCtx, err)}
				return
			}
			defer sem.Release(1)
			results[idx] = bp.processOneItem(batchCtx, cb, idx, item, fn)
		}(i, items[i])
	}
	wg.Wait()

	br := buildBatchResult(results, time.Since(start))
	bp.cfg.observer.ObserveBatch(bp.cfg.name, br.TotalCount, br.SuccessCount, br.FailureCount, br.TotalDuration)
	bp.cfg.logger.Debug("batch processed",
		logging.String("batch", bp.cfg.name),
		logging.Int("total", br.TotalCount),
		logging.Int("succeeded", br.SuccessCount),
		logging.Int("failed", br.FailureCount),
		logging.Duration("elapsed", br.TotalDuration))
	return br, nil
}

func (bp *batchProcessor[T, R]) Shutdown(ctx context.Context) error {
	bp.shutdownOnce.Do(func() {
		bp.mu.Lock()
		bp.isShutdown.Store(true)
		bp.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		bp.activeWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch shutdown timed out: %w", ctx.Err())
	}
}

func (bp *batchProcessor[T, R]) processOneItem(batchCtx context.Context, cb *circuitBreaker, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	itemStart := time.Now()

	if !cb.allow() {
		return &ItemResult[R]{Index: idx, Error: ErrCircuitOpen, Status: ItemStatusFailed, Duration: time.Since(itemStart)}
	}

	maxAttempts := 1
	if p := bp.cfg.retryPolicy; p != nil && p.MaxRetries > 0 {
		maxAttempts = 1 + p.MaxRetries
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if delay := calculateBackoff(attempt-1, bp.cfg.retryPolicy); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-batchCtx.Done():
					timer.Stop()
					return &ItemResult[R]{
						Index:    idx,
						Error:    lastErr,
						Attempts: attempts,
						Status:   classifyError(batchCtx, batchCtx.Err()),
						Duration: time.Since(itemStart),
					}
				case <-timer.C:
				}
			}
		}

		attempts++
		itemCtx, itemCancel := context.WithTimeout(batchCtx, bp.cfg.itemTimeout)
		result, err := fn(itemCtx, item)
		itemCancel()

		if err == nil {
			cb.recordSuccess()
			return &ItemResult[R]{
				Index:    idx,
				Result:   result,
				Attempts: attempts,
				Status:   ItemStatusSuccess,
				Duration: time.Since(itemStart),
			}
		}

		lastErr = err
		cb.recordFailure()

		if attempt < maxAttempts-1 && shouldRetry(err, bp.cfg.retryPolicy) {
			bp.cfg.logger.Debug("retrying item",
				logging.String("batch", bp.cfg.name),
				logging.Int("index", idx),
				logging.Int("attempt", attempts),
				logging.Err(err))
			continue
		}
		break
	}

	return &ItemResult[R]{
		Index:    idx,
		Error:    lastErr,
		Attempts: attempts,
		Status:   classifyError(batchCtx, lastErr),
		Duration: time.Since(itemStart),
	}
}

func buildBatchResult[R any](results []*ItemResult[R], total time.Duration) *BatchResult[R] {
	br := &BatchResult[R]{
		Results:       results,
		TotalCount:    len(results),
		TotalDuration: total,
	}
	for _, r := range results {
		if r.Status == ItemStatusSuccess {
			br.SuccessCount++
		} else {
			br.FailureCount++
		}
	}
	return br
}

func classifyError(batchCtx context.Context, err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if stderrors.Is(err, context.DeadlineExceeded) || errors.IsCode(err, errors.ErrCodeServiceTimeout) {
		return ItemStatusTimeout
	}
	if stderrors.Is(err, context.Canceled) {
		return ItemStatusCancelled
	}
	switch batchCtx.Err() {
	case context.DeadlineExceeded:
		return ItemStatusTimeout
	case context.Canceled:
		return ItemStatusCancelled
	}
	return ItemStatusFailed
}
