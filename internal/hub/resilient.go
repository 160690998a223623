package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ResilientStore wraps a durable Store with an in-memory overlay. While the
// durable store errors, writes land in the overlay and are queued; once a
// durable operation succeeds again the queue is replayed in order. Reads
// prefer the overlay so components keep seeing their own writes while
// degraded.
type ResilientStore struct {
	durable Store
	overlay *MemoryStore
	log     *zap.Logger

	mu       sync.Mutex
	degraded bool
	pending  []func(ctx context.Context, s Store) error
}

// NewResilientStore wraps durable.
func NewResilientStore(durable Store, log *zap.Logger) *ResilientStore {
	return &ResilientStore{
		durable: durable,
		overlay: NewMemoryStore(),
		log:     log,
	}
}

// Degraded reports whether writes are currently buffered locally.
func (r *ResilientStore) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

// write runs op against the durable store, mirroring into the overlay.
// On durable failure it flips to degraded mode and queues the op.
func (r *ResilientStore) write(ctx context.Context, op func(ctx context.Context, s Store) error) error {
	if err := op(ctx, r.overlay); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.degraded {
		if err := op(ctx, r.durable); err != nil {
			r.degraded = true
			r.pending = append(r.pending, op)
			r.log.Warn("hub store unavailable, degrading to local state", zap.Error(err))
			return nil
		}
		return nil
	}

	// Already degraded: queue and probe for recovery.
	r.pending = append(r.pending, op)
	r.replayLocked(ctx)
	return nil
}

// replayLocked re-applies queued ops; stops at the first failure.
func (r *ResilientStore) replayLocked(ctx context.Context) {
	for len(r.pending) > 0 {
		if err := r.pending[0](ctx, r.durable); err != nil {
			return
		}
		r.pending = r.pending[1:]
	}
	r.degraded = false
	r.log.Info("hub store recovered, local state reconciled")
}

func (r *ResilientStore) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := r.overlay.Get(ctx, key); err == nil {
		return v, nil
	}
	return r.durable.Get(ctx, key)
}

func (r *ResilientStore) Set(ctx context.Context, key string, value []byte) error {
	return r.write(ctx, func(ctx context.Context, s Store) error {
		return s.Set(ctx, key, value)
	})
}

func (r *ResilientStore) CompareAndSet(ctx context.Context, key string, old, value []byte) (bool, error) {
	// CAS must stay authoritative: while healthy it runs against the
	// durable store; degraded mode falls back to the overlay so the
	// engine keeps its local idempotency guarantees.
	r.mu.Lock()
	degraded := r.degraded
	r.mu.Unlock()

	if !degraded {
		won, err := r.durable.CompareAndSet(ctx, key, old, value)
		if err == nil {
			if won {
				_ = r.overlay.Set(ctx, key, value)
			}
			return won, nil
		}
		r.mu.Lock()
		r.degraded = true
		r.mu.Unlock()
		r.log.Warn("hub store unavailable during CAS, degrading", zap.Error(err))
	}
	won, err := r.overlay.CompareAndSet(ctx, key, old, value)
	if err != nil || !won {
		return won, err
	}
	value = append([]byte(nil), value...)
	r.mu.Lock()
	r.pending = append(r.pending, func(ctx context.Context, s Store) error {
		return s.Set(ctx, key, value)
	})
	r.mu.Unlock()
	return true, nil
}

func (r *ResilientStore) Delete(ctx context.Context, key string) error {
	return r.write(ctx, func(ctx context.Context, s Store) error {
		return s.Delete(ctx, key)
	})
}

func (r *ResilientStore) ListAppend(ctx context.Context, key string, value []byte) error {
	value = append([]byte(nil), value...)
	return r.write(ctx, func(ctx context.Context, s Store) error {
		return s.ListAppend(ctx, key, value)
	})
}

func (r *ResilientStore) ListRange(ctx context.Context, key string, limit int) ([][]byte, error) {
	if vs, err := r.overlay.ListRange(ctx, key, limit); err == nil && len(vs) > 0 {
		return vs, nil
	}
	return r.durable.ListRange(ctx, key, limit)
}

func (r *ResilientStore) ListTrim(ctx context.Context, key string, max int) error {
	return r.write(ctx, func(ctx context.Context, s Store) error {
		return s.ListTrim(ctx, key, max)
	})
}

func (r *ResilientStore) SetAdd(ctx context.Context, key, member string) error {
	return r.write(ctx, func(ctx context.Context, s Store) error {
		return s.SetAdd(ctx, key, member)
	})
}

func (r *ResilientStore) SetRemove(ctx context.Context, key, member string) error {
	return r.write(ctx, func(ctx context.Context, s Store) error {
		return s.SetRemove(ctx, key, member)
	})
}

func (r *ResilientStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if ms, err := r.overlay.SetMembers(ctx, key); err == nil && len(ms) > 0 {
		return ms, nil
	}
	return r.durable.SetMembers(ctx, key)
}

func (r *ResilientStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	durableKeys, err := r.durable.Keys(ctx, prefix)
	if err != nil {
		return r.overlay.Keys(ctx, prefix)
	}
	overlayKeys, _ := r.overlay.Keys(ctx, prefix)
	seen := make(map[string]struct{}, len(durableKeys))
	for _, k := range durableKeys {
		seen[k] = struct{}{}
	}
	for _, k := range overlayKeys {
		if _, ok := seen[k]; !ok {
			durableKeys = append(durableKeys, k)
		}
	}
	return durableKeys, nil
}

func (r *ResilientStore) Close() error { return r.durable.Close() }

var _ Store = (*ResilientStore)(nil)
