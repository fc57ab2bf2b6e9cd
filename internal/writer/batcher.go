package writer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// flushFunc persists one batch and reports rows skipped as duplicates.
type flushFunc[T any] func(ctx context.Context, rows []T) (conflicts int, err error)

// batcher owns one table's bounded buffer and flush worker. Submitted row
// groups queue on a channel; the worker accumulates them and flushes on
// size or age. Pending rows are only touched by the worker goroutine.
type batcher[T any] struct {
	table   string
	cfg     Config
	flushFn flushFunc[T]
	logger  *slog.Logger

	input   chan []T
	space   chan struct{}
	pending []T

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopped atomic.Bool

	submitted atomic.Int64
	rejected  atomic.Int64
	inserted  atomic.Int64
	conflicts atomic.Int64
	flushes   atomic.Int64
	errors    atomic.Int64
	spilled   atomic.Int64
	dropped   atomic.Int64
	queued    atomic.Int64
}

func newBatcher[T any](table string, cfg Config, flushFn flushFunc[T], logger *slog.Logger) *batcher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &batcher[T]{
		table:   table,
		cfg:     cfg,
		flushFn: flushFn,
		logger:  logger.With("table", table),
		input:   make(chan []T, max(cfg.BufferCapacity, 1)),
		space:   make(chan struct{}, 1),
		pending: make([]T, 0, cfg.BatchSize),
	}
}

func (b *batcher[T]) start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.run()
}

// stop drains the buffer and performs a final flush bounded by ctx.
func (b *batcher[T]) stop(ctx context.Context) {
	b.stopped.Store(true)
	b.signalSpace()
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// The worker takes no more input after cancellation, so
		// everything still queued is lost.
		lost := b.queued.Load()
		b.dropped.Add(lost)
		b.logger.Warn("writer stop timed out, abandoning queued rows",
			"count", lost,
		)
		return
	}

	b.drain()
	b.flush(ctx)
}

// submit queues rows for the flush worker. Returns ErrBufferFull when the
// buffer is at capacity under the reject policy, or after the block
// timeout under the block policy.
func (b *batcher[T]) submit(rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if b.stopped.Load() {
		return ErrStopped
	}

	n := int64(len(rows))

	if b.queued.Load()+n > int64(b.cfg.BufferCapacity) {
		if b.cfg.Backpressure != BackpressureBlock {
			b.rejected.Add(n)
			return ErrBufferFull
		}
		if !b.awaitSpace(n) {
			b.rejected.Add(n)
			return ErrBufferFull
		}
	}

	select {
	case b.input <- rows:
		b.queued.Add(n)
		b.submitted.Add(n)
		return nil
	default:
		b.rejected.Add(n)
		return ErrBufferFull
	}
}

// awaitSpace waits up to BlockTimeout for the worker to free capacity.
// Wakeups come from signalSpace; a missed signal is bounded by the timer.
func (b *batcher[T]) awaitSpace(n int64) bool {
	timer := time.NewTimer(b.cfg.BlockTimeout)
	defer timer.Stop()

	for {
		if b.stopped.Load() {
			return false
		}
		if b.queued.Load()+n <= int64(b.cfg.BufferCapacity) {
			return true
		}
		select {
		case <-b.space:
		case <-timer.C:
			return false
		}
	}
}

// signalSpace wakes one blocked submit.
func (b *batcher[T]) signalSpace() {
	select {
	case b.space <- struct{}{}:
	default:
	}
}

func (b *batcher[T]) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		// A flush can outlive cancellation; never take more input after it.
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		select {
		case <-b.ctx.Done():
			return

		case rows := <-b.input:
			b.queued.Add(-int64(len(rows)))
			b.signalSpace()
			b.pending = append(b.pending, rows...)
			if len(b.pending) >= b.cfg.BatchSize {
				b.flush(b.ctx)
			}

		case <-ticker.C:
			b.flush(b.ctx)
		}
	}
}

// drain moves everything still queued on the channel into pending.
func (b *batcher[T]) drain() {
	for {
		select {
		case rows := <-b.input:
			b.queued.Add(-int64(len(rows)))
			b.pending = append(b.pending, rows...)
		default:
			return
		}
	}
}

// flush writes pending rows in batch-sized chunks. A chunk that exhausts
// its retries is spilled or dropped so one bad batch cannot wedge the rest.
func (b *batcher[T]) flush(ctx context.Context) {
	for len(b.pending) > 0 {
		n := len(b.pending)
		if n > b.cfg.BatchSize {
			n = b.cfg.BatchSize
		}
		chunk := b.pending[:n]

		start := time.Now()
		var conflicts int
		err := b.cfg.Retry.Do(ctx, func(ctx context.Context) error {
			var ferr error
			conflicts, ferr = b.flushFn(ctx, chunk)
			return ferr
		})

		if err != nil {
			b.errors.Add(1)
			b.exhausted(chunk, err)
		} else {
			b.inserted.Add(int64(n - conflicts))
			b.conflicts.Add(int64(conflicts))
			b.flushes.Add(1)
			b.logger.Debug("flushed batch",
				"count", n,
				"conflicts", conflicts,
				"duration", time.Since(start),
			)
		}

		b.pending = b.pending[n:]
	}

	// Reset backing array so retained capacity stays bounded.
	b.pending = make([]T, 0, b.cfg.BatchSize)
}

func (b *batcher[T]) exhausted(chunk []T, cause error) {
	if b.cfg.OnExhausted == OnExhaustedSpill && b.cfg.SpillDir != "" {
		path, err := spillBatch(b.cfg.SpillDir, b.table, chunk)
		if err != nil {
			b.logger.Error("spill failed, dropping batch",
				"count", len(chunk),
				"flush_error", cause,
				"spill_error", err,
			)
			b.dropped.Add(int64(len(chunk)))
			return
		}
		b.spilled.Add(int64(len(chunk)))
		b.logger.Error("flush retries exhausted, batch spilled",
			"count", len(chunk),
			"path", path,
			"error", cause,
		)
		return
	}

	b.dropped.Add(int64(len(chunk)))
	b.logger.Error("flush retries exhausted, batch dropped",
		"count", len(chunk),
		"error", cause,
	)
}

func (b *batcher[T]) stats() TableStats {
	return TableStats{
		Submitted: b.submitted.Load(),
		Rejected:  b.rejected.Load(),
		Inserted:  b.inserted.Load(),
		Conflicts: b.conflicts.Load(),
		Flushes:   b.flushes.Load(),
		Errors:    b.errors.Load(),
		Spilled:   b.spilled.Load(),
		Dropped:   b.dropped.Load(),
		Queued:    b.queued.Load(),
	}
}
