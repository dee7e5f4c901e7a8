package repositorycache

import (
	"context"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// MutationKind is the kind of write that produced a Mutation.
type MutationKind int

const (
	MutationCreated MutationKind = iota + 1
	MutationUpdated
	MutationDeleted
	MutationPurged
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreated:
		return "created"
	case MutationUpdated:
		return "updated"
	case MutationDeleted:
		return "deleted"
	case MutationPurged:
		return "purged"
	default:
		return "unknown"
	}
}

// Mutation is one successful write. Records is empty for MutationPurged.
type Mutation[T any] struct {
	Kind    MutationKind
	Records []T
}

// ErrWorkerClosed is returned by Submit after Close.
var ErrWorkerClosed = goerrors.New("invalidation worker is closed", goerrors.CategoryInternal).
	WithTextCode("WORKER_CLOSED")

func apply[T any](ctx context.Context, inv Invalidator[T], m Mutation[T]) error {
	switch m.Kind {
	case MutationCreated:
		return inv.Created(ctx, m.Records)
	case MutationUpdated:
		return inv.Updated(ctx, m.Records)
	case MutationDeleted:
		return inv.Deleted(ctx, m.Records)
	case MutationPurged:
		return inv.Purged(ctx)
	default:
		return goerrors.New("unknown mutation kind", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": int(m.Kind)})
	}
}

// Worker applies mutations to an Invalidator from a single goroutine, in
// the order they were received. It is itself an Invalidator, so it can be
// handed to New in place of the inline one.
type Worker[T any] struct {
	target Invalidator[T]
	logger *zap.Logger
	ch     chan Mutation[T]

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Submit holds sendMu for reading while it sends; Close takes it for
	// writing once stop is closed, so no send can land after the drain.
	sendMu sync.RWMutex
	closed atomic.Bool
	stop   chan struct{}

	processed *xsync.Counter
	failed    *xsync.Counter
}

// DefaultWorkerBuffer is used when NewWorker gets a non-positive buffer.
const DefaultWorkerBuffer = 128

// NewWorker creates a stopped worker forwarding to target.
func NewWorker[T any](target Invalidator[T], buffer int, logger *zap.Logger) *Worker[T] {
	if buffer <= 0 {
		buffer = DefaultWorkerBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker[T]{
		target:    target,
		logger:    logger,
		ch:        make(chan Mutation[T], buffer),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
		processed: xsync.NewCounter(),
		failed:    xsync.NewCounter(),
	}
}

// Start launches the consumer. The worker outlives ctx cancellation
// until Close is called; ctx only seeds values.
func (w *Worker[T]) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed.Load() {
		return
	}
	w.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	go w.run(runCtx)
}

// Close stops the consumer after applying what is already queued. A
// worker that was never started applies its queue before returning.
// Blocked Submit calls return ErrWorkerClosed.
func (w *Worker[T]) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.stop)
	w.sendMu.Lock()
	w.sendMu.Unlock()

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if !started {
		w.drain(context.Background())
		return nil
	}
	w.cancel()
	<-w.done
	return nil
}

// Submit queues m, waiting for room until ctx is done or the worker is
// closed.
func (w *Worker[T]) Submit(ctx context.Context, m Mutation[T]) error {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed.Load() {
		return ErrWorkerClosed
	}

	select {
	case w.ch <- m:
		return nil
	case <-w.stop:
		return ErrWorkerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker[T]) Created(ctx context.Context, records []T) error {
	return w.Submit(ctx, Mutation[T]{Kind: MutationCreated, Records: records})
}

func (w *Worker[T]) Updated(ctx context.Context, records []T) error {
	return w.Submit(ctx, Mutation[T]{Kind: MutationUpdated, Records: records})
}

func (w *Worker[T]) Deleted(ctx context.Context, records []T) error {
	return w.Submit(ctx, Mutation[T]{Kind: MutationDeleted, Records: records})
}

func (w *Worker[T]) Purged(ctx context.Context) error {
	return w.Submit(ctx, Mutation[T]{Kind: MutationPurged})
}

// Processed is the number of mutations applied, failed ones included.
func (w *Worker[T]) Processed() int64 { return w.processed.Value() }

// Failed is the number of mutations the target rejected.
func (w *Worker[T]) Failed() int64 { return w.failed.Value() }

func (w *Worker[T]) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case m := <-w.ch:
			w.handle(ctx, m)
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

func (w *Worker[T]) drain(ctx context.Context) {
	for {
		select {
		case m := <-w.ch:
			w.handle(ctx, m)
		default:
			return
		}
	}
}

func (w *Worker[T]) handle(ctx context.Context, m Mutation[T]) {
	err := apply(ctx, w.target, m)
	w.processed.Inc()
	if err != nil {
		w.failed.Inc()
		w.logger.Warn("cache invalidation failed",
			zap.Stringer("kind", m.Kind),
			zap.Int("records", len(m.Records)),
			zap.Error(err),
		)
	}
}
