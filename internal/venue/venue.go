// Package venue contains one client per market-data source. Clients own
// only their transport, a per-host token bucket and a short response
// cache; degradation policy belongs to the aggregator, so failures are
// surfaced rather than masked.
package venue

import (
	"context"
	"sync"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Client is the uniform pull surface every venue exposes.
type Client interface {
	// ID returns the stable source identifier ("binance", "raydium", ...).
	ID() string

	// Class returns the trust class used for fusion weighting.
	Class() domain.SourceClass

	// Quote returns one observation for symbol. Failures wrap the
	// sentinel errors in domain (ErrUnavailable, ErrRateLimited,
	// ErrParse).
	Quote(ctx context.Context, symbol string) (*domain.Quote, error)
}

// Streamer is implemented by venues with a push channel.
type Streamer interface {
	Client

	// Subscribe opens a stream of venue events for the given topics.
	Subscribe(ctx context.Context, topics []string) (<-chan domain.VenueEvent, error)
}

// MetadataProvider is implemented by venues that can describe tokens.
type MetadataProvider interface {
	// TokenMetadata returns best-effort metadata for a token address.
	TokenMetadata(ctx context.Context, address string) (*domain.TokenMetadata, error)
}

const quoteCacheTTL = 5 * time.Second

// quoteCache holds recent responses keyed by symbol; each entry expires
// ttl after it was stored.
type quoteCache struct {
	mu      sync.Mutex
	entries map[string]cachedQuote
	ttl     time.Duration
	now     func() time.Time
}

type cachedQuote struct {
	quote   *domain.Quote
	expires time.Time
}

func newQuoteCache(ttl time.Duration) *quoteCache {
	if ttl <= 0 {
		ttl = quoteCacheTTL
	}
	return &quoteCache{
		entries: make(map[string]cachedQuote),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *quoteCache) get(symbol string) (*domain.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[symbol]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	q := *entry.quote
	return &q, true
}

func (c *quoteCache) put(symbol string, q *domain.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := *q
	c.entries[symbol] = cachedQuote{quote: &cp, expires: c.now().Add(c.ttl)}
}

// tokenBucket is a minimal per-host rate limiter. Take blocks until a
// token is available or the context is cancelled.
type tokenBucket struct {
	mu     sync.Mutex
	tokens float64
	rate   float64 // tokens per second
	max    float64
	last   time.Time
	now    func() time.Time
}

func newTokenBucket(ratePerSecond float64) *tokenBucket {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	// Hold at least one whole token so rates below 1/s still admit requests.
	capacity := ratePerSecond
	if capacity < 1 {
		capacity = 1
	}
	return &tokenBucket{
		tokens: capacity,
		rate:   ratePerSecond,
		max:    capacity,
		last:   time.Now(),
		now:    time.Now,
	}
}

// tryTake consumes a token if available; returns the wait until the next
// token otherwise.
func (b *tokenBucket) tryTake() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.max {
		b.tokens = b.max
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	return false, wait
}

// take blocks until a token is available or ctx is done.
func (b *tokenBucket) take(ctx context.Context) error {
	for {
		ok, wait := b.tryTake()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
