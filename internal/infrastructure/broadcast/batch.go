package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
)

// BatchConfig controls batching thresholds for tick broadcast.
type BatchConfig struct {
	Size    int
	Timeout time.Duration
}

// QuoteBatcher buffers ticks and flushes them downstream in groups, by size
// or by timeout, whichever trips first. It smooths bursty feeds so the
// broker sees batch-sized messages instead of one per tick.
type QuoteBatcher struct {
	buf *batchBuffer[domain.MarketQuote]
}

// NewQuoteBatcher wires a batcher that flushes through the given function.
func NewQuoteBatcher(cfg BatchConfig, flush func(context.Context, []domain.MarketQuote) error, logger *logrus.Logger) *QuoteBatcher {
	return &QuoteBatcher{
		buf: newBatchBuffer(cfg, flush, logger.WithField("component", "quote_batcher")),
	}
}

// Run sets the base context for asynchronous flushes.
func (b *QuoteBatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	b.buf.setContext(ctx)
}

// Add appends one tick, flushing if the batch is full.
func (b *QuoteBatcher) Add(quote domain.MarketQuote) error {
	return b.buf.enqueue(quote)
}

// Stop flushes whatever remains using the provided context.
func (b *QuoteBatcher) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b.buf.setContext(ctx)
	return b.buf.drain(ctx)
}

type batchBuffer[T any] struct {
	cfg     BatchConfig
	mu      sync.Mutex
	items   []T
	timer   *time.Timer
	flushFn func(context.Context, []T) error
	logger  *logrus.Entry
	ctx     context.Context
}

func newBatchBuffer[T any](cfg BatchConfig, flushFn func(context.Context, []T) error, logger *logrus.Entry) *batchBuffer[T] {
	return &batchBuffer[T]{
		cfg:     cfg,
		flushFn: flushFn,
		logger:  logger,
	}
}

func (bb *batchBuffer[T]) setContext(ctx context.Context) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.ctx = ctx
}

func (bb *batchBuffer[T]) enqueue(item T) error {
	bb.mu.Lock()
	ctx := bb.ctx
	if ctx == nil {
		bb.mu.Unlock()
		return errors.New("batcher is not running")
	}
	if err := ctx.Err(); err != nil {
		bb.mu.Unlock()
		return err
	}
	bb.items = append(bb.items, item)
	var batch []T
	limit := bb.cfg.Size
	if limit <= 0 {
		limit = 1
	}
	if len(bb.items) >= limit {
		batch = bb.takeBatchLocked()
	} else if bb.timer == nil && bb.cfg.Timeout > 0 {
		bb.startTimerLocked()
	}
	bb.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return bb.flushWithContext(ctx, batch)
}

func (bb *batchBuffer[T]) startTimerLocked() {
	bb.timer = time.AfterFunc(bb.cfg.Timeout, func() {
		batch := bb.takeBatch()
		if len(batch) == 0 {
			return
		}
		bb.mu.Lock()
		ctx := bb.ctx
		bb.mu.Unlock()
		if err := bb.flushWithContext(ctx, batch); err != nil {
			bb.logger.WithError(err).Warn("batch flush failed")
		}
	})
}

func (bb *batchBuffer[T]) takeBatch() []T {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return bb.takeBatchLocked()
}

func (bb *batchBuffer[T]) takeBatchLocked() []T {
	if bb.timer != nil {
		bb.timer.Stop()
		bb.timer = nil
	}
	if len(bb.items) == 0 {
		return nil
	}
	batch := make([]T, len(bb.items))
	copy(batch, bb.items)
	bb.items = bb.items[:0]
	return batch
}

func (bb *batchBuffer[T]) flushWithContext(ctx context.Context, batch []T) error {
	if len(batch) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if err := bb.flushFn(ctx, batch); err != nil {
		return err
	}
	bb.logger.WithFields(logrus.Fields{
		"size":    len(batch),
		"took_ms": time.Since(start).Milliseconds(),
	}).Debug("flushed tick batch")
	return nil
}

func (bb *batchBuffer[T]) drain(ctx context.Context) error {
	batch := bb.takeBatch()
	if len(batch) == 0 {
		return nil
	}
	return bb.flushWithContext(ctx, batch)
}
