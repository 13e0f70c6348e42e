package disburse

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"hyc/hyc-node/logging"
)

// Worker drains a TransferQueue into a Ledger with a fixed number of goroutines.
type Worker struct {
	Queue       *TransferQueue
	Ledger      Ledger
	Concurrency int
	PollTimeout time.Duration
	// OnResult is called after every processed transfer, err is nil on success.
	OnResult func(t *Transfer, err error)
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	n := w.Concurrency
	if n < 1 {
		n = 1
	}
	logging.Logger().Info().Int("workers", n).Str("queue", w.Queue.pendingKey()).Msg("Starting transfer workers")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				w.processNext(ctx)
			}
			return nil
		})
	}
	err := g.Wait()
	logging.Logger().Info().Str("queue", w.Queue.pendingKey()).Msg("Transfer workers stopped")
	return err
}

// processNext handles at most one transfer and reports whether one was taken off the queue.
func (w *Worker) processNext(ctx context.Context) bool {
	timeout := w.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t, err := w.Queue.Dequeue(ctx, timeout)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return false
		}
		logging.Logger().Error().Err(err).Msg("Error dequeuing transfer")
		sleep(ctx, 2*time.Second)
		return false
	}
	if t == nil {
		return false
	}

	err = apply(ctx, w.Ledger, t)
	if err != nil {
		logging.Logger().Error().
			Err(err).
			Str("transfer_id", t.ID).
			Str("to", t.To).
			Msg("Failed to process transfer")
		if ferr := w.Queue.Fail(context.WithoutCancel(ctx), t, err); ferr != nil {
			logging.Logger().Error().Err(ferr).Str("transfer_id", t.ID).Msg("Failed to record failed transfer")
		}
	} else {
		logging.Logger().Info().
			Str("transfer_id", t.ID).
			Str("kind", string(t.Kind)).
			Str("to", t.To).
			Str("amount", t.Amount.String()).
			Msg("Transfer completed")
	}
	if w.OnResult != nil {
		w.OnResult(t, err)
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
