// Package kv implements the durable key-value storage the state layer
// persists into.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get when key has never been written.
var ErrNotFound = errors.New("kv: key not found")

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Storage is a flat string-keyed blob store.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Memory is a process-local Storage.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Prefixed namespaces every key of an underlying Storage.
type Prefixed struct {
	Storage Storage
	Prefix  string
}

func (p Prefixed) key(k string) string { return p.Prefix + k }

func (p Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.Storage.Get(ctx, p.key(key))
}

func (p Prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.Storage.Set(ctx, p.key(key), value)
}

func (p Prefixed) Delete(ctx context.Context, key string) error {
	return p.Storage.Delete(ctx, p.key(key))
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	SQLitePath  string
	DatabaseURL string
}

// Closer is a Storage holding resources.
type Closer interface {
	Storage
	Close() error
}

type nopCloser struct{ Storage }

func (nopCloser) Close() error { return nil }

// Open returns the configured backend.
func Open(ctx context.Context, opts Options) (Closer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory:
		return nopCloser{NewMemory()}, nil
	case "", BackendSQLite:
		return OpenSQLite(opts.SQLitePath)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
