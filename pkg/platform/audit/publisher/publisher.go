package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "digisafe/pkg/platform/audit"
	"digisafe/pkg/platform/audit/worker"

	"github.com/google/uuid"
)

var (
	ErrClosed     = errors.New("audit publisher closed")
	ErrBufferFull = errors.New("audit buffer full")
)

// Publisher assigns identity to audit events and hands them to a store,
// either inline or through a bounded buffer drained by a worker.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	inbox      chan audit.Event
	cancel     context.CancelFunc
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}

	if p.bufferSize > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.cancel = cancel
		p.done = make(chan struct{})
		go p.drain(ctx)
	}
	return p
}

func (p *Publisher) drain(ctx context.Context) {
	defer close(p.done)
	var opts []worker.Option
	if p.logger != nil {
		opts = append(opts, worker.WithLogger(p.logger))
	}
	_ = worker.NewWorker(p.store, p.inbox, opts...).Run(ctx)
}

// Emit records event. In async mode a full buffer drops the event and
// returns ErrBufferFull.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// List returns every stored event.
func (p *Publisher) List(ctx context.Context) ([]audit.Event, error) {
	return p.store.ListAll(ctx)
}

// Close stops accepting events and waits for buffered events to be stored.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.inbox != nil {
		close(p.inbox)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
		p.cancel()
	}
}
