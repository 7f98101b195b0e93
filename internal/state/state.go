// Package state holds the dashboard's application state: one store per
// domain slice, each owning its records and the operations over them.
package state

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/metrics"
	"github.com/opsboard/opsboard/internal/store"
)

// Persisted store keys.
const (
	KeyAuth     = "auth-storage"
	KeyUsers    = "user-storage"
	KeyAssets   = "asset-storage"
	KeySoftware = "software-storage"
	KeyNetwork  = "network-storage"
	KeyProxmox  = "proxmox-storage"
	KeyPatch    = "patch-storage"
	KeyAdmin    = "admin-storage"
	KeyUI       = "ui-storage"
)

func mutate[S any](s *store.Store[S], name string, fn func(S) S) S {
	metrics.StoreMutationsTotal.WithLabelValues(name).Inc()
	return s.Update(fn)
}

func persistOptions(logger *slog.Logger) store.PersistOptions {
	return store.PersistOptions{Logger: logger}
}

// attach wires the persistence adapter when storage is configured.
func attach[S, P any](s *store.Store[S], storage kv.Storage, key string, partialize func(S) P, merge func(S, P) S, logger *slog.Logger) {
	if storage == nil {
		return
	}
	store.PersistPartial(s, storage, key, partialize, merge, persistOptions(logger))
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
