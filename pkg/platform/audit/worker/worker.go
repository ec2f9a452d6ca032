package worker

import (
	"context"
	"log/slog"
	"sync/atomic"

	audit "digisafe/pkg/platform/audit"
)

// Worker drains an inbox of audit events into a store. A failed append is
// logged and counted; the worker keeps draining so one bad write cannot
// stall the trail.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger

	persisted atomic.Int64
	failed    atomic.Int64
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run returns nil once the inbox is closed and empty, or ctx.Err() if the
// context ends first.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				w.failed.Add(1)
				w.logger.WarnContext(ctx, "failed to persist audit event",
					"action", event.Action,
					"subject", event.Subject,
					"error", err,
				)
				continue
			}
			w.persisted.Add(1)
		}
	}
}

func (w *Worker) Persisted() int64 { return w.persisted.Load() }

func (w *Worker) Failed() int64 { return w.failed.Load() }
