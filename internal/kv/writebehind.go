package kv

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/opsboard/opsboard/internal/metrics"
)

const defaultWriteTimeout = 5 * time.Second

type pendingWrite struct {
	value   []byte
	deleted bool
}

// WriteBehind hands Set and Delete to a single background writer so callers
// never wait on the backend. Only the latest pending value per key is
// written. Get sees pending values before the backend does. Close drains
// everything queued; it leaves the wrapped Storage open.
type WriteBehind struct {
	inner   Storage
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	pending  map[string]pendingWrite
	inflight map[string]pendingWrite
	closed   bool

	wake chan struct{}
	done chan struct{}
}

// NewWriteBehind starts the writer goroutine. A nil logger uses
// slog.Default; timeout <= 0 bounds each backend write at five seconds.
func NewWriteBehind(inner Storage, logger *slog.Logger, timeout time.Duration) *WriteBehind {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	w := &WriteBehind{
		inner:   inner,
		logger:  logger,
		timeout: timeout,
		pending: make(map[string]pendingWrite),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *WriteBehind) Get(ctx context.Context, key string) ([]byte, error) {
	w.mu.Lock()
	p, ok := w.pending[key]
	if !ok {
		p, ok = w.inflight[key]
	}
	w.mu.Unlock()
	if ok {
		if p.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), p.value...), nil
	}
	return w.inner.Get(ctx, key)
}

func (w *WriteBehind) Set(ctx context.Context, key string, value []byte) error {
	return w.enqueue(ctx, key, pendingWrite{value: append([]byte(nil), value...)})
}

func (w *WriteBehind) Delete(ctx context.Context, key string) error {
	return w.enqueue(ctx, key, pendingWrite{deleted: true})
}

// enqueue writes through, after the final drain, once the writer is closed.
func (w *WriteBehind) enqueue(ctx context.Context, key string, p pendingWrite) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		if p.deleted {
			return w.inner.Delete(ctx, key)
		}
		return w.inner.Set(ctx, key, p.value)
	}
	w.pending[key] = p
	select {
	case w.wake <- struct{}{}:
	default:
	}
	w.mu.Unlock()
	return nil
}

// Close stops accepting queued writes and waits until the queue is drained.
// It is safe to call more than once.
func (w *WriteBehind) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.wake)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}

func (w *WriteBehind) run() {
	defer close(w.done)
	for range w.wake {
		w.drain()
	}
	w.drain()
}

func (w *WriteBehind) drain() {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.inflight = nil
			w.mu.Unlock()
			return
		}
		batch := w.pending
		w.inflight = maps.Clone(batch)
		w.pending = make(map[string]pendingWrite)
		w.mu.Unlock()

		for key, p := range batch {
			w.write(key, p)
		}
	}
}

func (w *WriteBehind) write(key string, p pendingWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	op := "write"
	var err error
	if p.deleted {
		op = "delete"
		err = w.inner.Delete(ctx, key)
	} else {
		err = w.inner.Set(ctx, key, p.value)
	}
	if err != nil {
		metrics.PersistFailuresTotal.WithLabelValues(key, op).Inc()
		w.logger.Warn("write-behind "+op+" failed", "store_key", key, "err", err)
	}
}
