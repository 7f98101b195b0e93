package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/metrics"
)

const defaultPersistTimeout = 2 * time.Second

// PersistOptions tunes a persistence adapter.
type PersistOptions struct {
	// Version is written alongside the state. A stored blob with another
	// version is ignored on rehydration.
	Version int
	Logger  *slog.Logger
	// Timeout bounds each storage read and write.
	Timeout time.Duration
}

type envelope struct {
	State   json.RawMessage `json:"state"`
	Version int             `json:"version"`
}

// Persist synchronizes the whole state of s with storage under key.
func Persist[S any](s *Store[S], storage kv.Storage, key string, opts PersistOptions) func() {
	return PersistPartial(s, storage, key,
		func(v S) S { return v },
		func(_ S, p S) S { return p },
		opts,
	)
}

// PersistPartial rehydrates s from storage under key, then writes
// partialize(state) on every change. merge folds a rehydrated partial into
// the store's current (default) state. Storage failures never reach the
// caller: a bad read means "no prior state" and a failed write is dropped.
// The returned function detaches the adapter.
func PersistPartial[S, P any](s *Store[S], storage kv.Storage, key string, partialize func(S) P, merge func(S, P) S, opts PersistOptions) func() {
	if s == nil || storage == nil || partialize == nil || merge == nil {
		return func() {}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("store_key", key)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}

	if partial, ok := readPartial[P](storage, key, opts.Version, timeout, logger); ok {
		s.Update(func(cur S) S { return merge(cur, partial) })
	}

	var (
		mu   sync.Mutex
		last []byte
	)
	if raw, err := encodeEnvelope(partialize(s.Get()), opts.Version); err == nil {
		last = raw
	}

	return s.Subscribe(func(next, _ S) {
		raw, err := encodeEnvelope(partialize(next), opts.Version)
		if err != nil {
			metrics.PersistFailuresTotal.WithLabelValues(key, "encode").Inc()
			logger.Warn("persist encode failed", "err", err)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if bytes.Equal(raw, last) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := storage.Set(ctx, key, raw); err != nil {
			metrics.PersistFailuresTotal.WithLabelValues(key, "write").Inc()
			logger.Warn("persist write failed", "err", err)
			return
		}
		last = raw
	})
}

func readPartial[P any](storage kv.Storage, key string, version int, timeout time.Duration, logger *slog.Logger) (P, bool) {
	var zero P

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	raw, err := storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			metrics.PersistFailuresTotal.WithLabelValues(key, "read").Inc()
			logger.Warn("persist read failed", "err", err)
		}
		return zero, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.State) == 0 {
		logger.Warn("persisted state is corrupt; using defaults")
		return zero, false
	}
	if env.Version != version {
		logger.Info("persisted state version mismatch; using defaults", "stored", env.Version, "want", version)
		return zero, false
	}

	var partial P
	if err := json.Unmarshal(env.State, &partial); err != nil {
		logger.Warn("persisted state does not decode; using defaults", "err", err)
		return zero, false
	}
	return partial, true
}

func encodeEnvelope[P any](partial P, version int) ([]byte, error) {
	state, err := json.Marshal(partial)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{State: state, Version: version})
}
