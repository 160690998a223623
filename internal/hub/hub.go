// Package hub is the durable key-value coordination surface shared by the
// engine's components. The key layout is fixed: single-value records,
// ordered lists and membership sets, with compare-and-set where callers
// need idempotency.
package hub

import (
	"context"
	"errors"
)

// Well-known keys and key prefixes.
const (
	KeyBotStatus       = "bot:status"
	KeyDashboardStats  = "dashboard:stats"
	KeyRealtimeMetrics = "realtime:metrics"
	KeyRawOpportunity  = "all_raw_opportunities"
	KeyOpenPositions   = "positions:open"
	KeyEventLog        = "events:log"

	PrefixOpportunity = "opportunity:"
	PrefixPosition    = "position:"
	PrefixDecision    = "decision:"
)

// Store errors.
var (
	// ErrNotFound is returned when a requested key does not exist.
	ErrNotFound = errors.New("hub: key not found")

	// ErrUnavailable is returned when the backing store cannot be reached.
	// Callers degrade to local state and reconcile later.
	ErrUnavailable = errors.New("hub: store unavailable")
)

// Store is the narrow KV contract the components agree on.
type Store interface {
	// Get retrieves the value at key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes the value at key unconditionally.
	Set(ctx context.Context, key string, value []byte) error

	// CompareAndSet writes value only when the current value equals old.
	// A nil old means "only if absent". Returns true when the write won.
	CompareAndSet(ctx context.Context, key string, old, value []byte) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListAppend appends value to the ordered list at key.
	ListAppend(ctx context.Context, key string, value []byte) error

	// ListRange returns up to limit entries from the list at key, oldest
	// first. limit <= 0 means all.
	ListRange(ctx context.Context, key string, limit int) ([][]byte, error)

	// ListTrim keeps only the newest max entries of the list at key.
	ListTrim(ctx context.Context, key string, max int) error

	// SetAdd adds member to the set at key.
	SetAdd(ctx context.Context, key, member string) error

	// SetRemove removes member from the set at key.
	SetRemove(ctx context.Context, key, member string) error

	// SetMembers returns all members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the backing store.
	Close() error
}
