// Package stream owns the engine's long-lived venue subscriptions and
// multiplexes their events onto one bounded channel. Price updates are
// lossy under backpressure; new-pool and new-token events are never
// dropped.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/venue"
)

// Manager fans venue subscriptions into a single event channel.
type Manager struct {
	streamers []venue.Streamer
	topics    []string
	log       *zap.Logger

	prices  chan domain.VenueEvent // lossy ring: full buffer drops oldest
	control chan domain.VenueEvent // preserved: sends block
	out     chan domain.VenueEvent

	dropped atomic.Int64
	wg      sync.WaitGroup

	mu sync.Mutex
}

// NewManager creates a stream manager. bufferSize bounds the in-flight
// price updates.
func NewManager(streamers []venue.Streamer, topics []string, bufferSize int, log *zap.Logger) *Manager {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Manager{
		streamers: streamers,
		topics:    topics,
		log:       log,
		prices:    make(chan domain.VenueEvent, bufferSize),
		control:   make(chan domain.VenueEvent, bufferSize),
		out:       make(chan domain.VenueEvent, bufferSize),
	}
}

// C is the multiplexed event channel. It closes after Start's context is
// cancelled and all pumps have drained.
func (m *Manager) C() <-chan domain.VenueEvent { return m.out }

// Dropped returns the number of price updates discarded under
// backpressure.
func (m *Manager) Dropped() int64 { return m.dropped.Load() }

// Start subscribes to every streamer and begins multiplexing. A venue
// that fails to subscribe is logged and skipped; its client keeps
// reconnecting internally.
func (m *Manager) Start(ctx context.Context) error {
	for _, s := range m.streamers {
		events, err := s.Subscribe(ctx, m.topics)
		if err != nil {
			m.log.Warn("venue subscription failed",
				zap.String("source", s.ID()), zap.Error(err))
			continue
		}
		m.wg.Add(1)
		go m.pump(ctx, s.ID(), events)
	}

	m.wg.Add(1)
	go m.dispatch(ctx)

	go func() {
		m.wg.Wait()
		close(m.out)
	}()
	return nil
}

// pump routes one venue's events into the right internal queue.
func (m *Manager) pump(ctx context.Context, sourceID string, events <-chan domain.VenueEvent) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				m.log.Info("venue stream ended", zap.String("source", sourceID))
				return
			}
			if ev.Kind == domain.VenueEventQuote {
				m.offerPrice(ev)
				continue
			}
			// Pool/token/fill events are preserved.
			select {
			case m.control <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// offerPrice enqueues a price update, discarding the oldest queued update
// when the buffer is full.
func (m *Manager) offerPrice(ev domain.VenueEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		select {
		case m.prices <- ev:
			return
		default:
		}
		select {
		case <-m.prices:
			m.dropped.Add(1)
		default:
		}
	}
}

// dispatch merges the two queues into out, control events first.
func (m *Manager) dispatch(ctx context.Context) {
	defer m.wg.Done()

	for {
		// Drain control with priority.
		select {
		case ev := <-m.control:
			if !m.deliver(ctx, ev) {
				return
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-m.control:
			if !m.deliver(ctx, ev) {
				return
			}
		case ev := <-m.prices:
			if !m.deliver(ctx, ev) {
				return
			}
		}
	}
}

func (m *Manager) deliver(ctx context.Context, ev domain.VenueEvent) bool {
	select {
	case m.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
