package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/clock"
	"github.com/congo-pay/giftcard/internal/ledger"
	"github.com/congo-pay/giftcard/internal/metrics"
)

const (
	defaultBatchSize = 500
	defaultInterval  = time.Minute
)

// Result counts the cards moved by one sweep.
type Result struct {
	Expired int64
	Emptied int64
}

// Worker keeps stored card statuses in line with expiry and balance, so the
// status-only spend finder never returns a card that should be closed.
type Worker struct {
	store     ledger.Sweeper
	clock     clock.Clock
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
}

// Option customizes a Worker.
type Option func(*Worker)

// WithBatchSize bounds the number of rows touched per statement.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithInterval sets the pause between sweeps in Run.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(clk clock.Clock) Option {
	return func(w *Worker) {
		if clk != nil {
			w.clock = clk
		}
	}
}

// NewWorker builds a sweep worker.
func NewWorker(store ledger.Sweeper, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		store:     store,
		clock:     clock.System{},
		logger:    logger,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce expires due cards, then empties drained ones. Each step repeats in
// batches until a batch comes back short.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	now := w.clock.Now()

	expired, err := w.drain(ctx, card.StatusExpired, func(ctx context.Context) (int64, error) {
		return w.store.ExpireDue(ctx, now, w.batchSize)
	})
	if err != nil {
		return Result{Expired: expired}, err
	}
	emptied, err := w.drain(ctx, card.StatusEmpty, func(ctx context.Context) (int64, error) {
		return w.store.MarkEmpty(ctx, now, w.batchSize)
	})
	res := Result{Expired: expired, Emptied: emptied}
	if err != nil {
		return res, err
	}

	if res.Expired > 0 || res.Emptied > 0 {
		w.logger.Info("card sweep", slog.Int64("expired", res.Expired), slog.Int64("emptied", res.Emptied))
	}
	return res, nil
}

// Run sweeps immediately and then on every interval until ctx is done.
// Failed sweeps are logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("card sweep failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) drain(ctx context.Context, status card.Status, step func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := step(ctx)
		if err != nil {
			return total, err
		}
		total += n
		metrics.RecordSweep(string(status), n)
		if n < int64(w.batchSize) {
			return total, nil
		}
	}
}
