package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/venue"
)

// fakeStreamer replays a fixed list of events.
type fakeStreamer struct {
	id     string
	events []domain.VenueEvent
	fail   bool
}

func (f *fakeStreamer) ID() string                { return f.id }
func (f *fakeStreamer) Class() domain.SourceClass { return domain.SourceClassAMM }

func (f *fakeStreamer) Quote(context.Context, string) (*domain.Quote, error) {
	return nil, domain.ErrUnavailable
}

func (f *fakeStreamer) Subscribe(ctx context.Context, _ []string) (<-chan domain.VenueEvent, error) {
	if f.fail {
		return nil, domain.ErrUnavailable
	}
	ch := make(chan domain.VenueEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func quoteEvent(source string, price float64) domain.VenueEvent {
	return domain.VenueEvent{
		Kind:     domain.VenueEventQuote,
		SourceID: source,
		Quote:    &domain.Quote{Symbol: "TKN1/SOL", Price: price, SourceID: source},
	}
}

func newTokenEvent(mint string) domain.VenueEvent {
	return domain.VenueEvent{
		Kind:     domain.VenueEventNewToken,
		SourceID: "pumpfun",
		NewToken: &domain.NewTokenEvent{Mint: mint},
	}
}

func collect(t *testing.T, ch <-chan domain.VenueEvent, want int) []domain.VenueEvent {
	t.Helper()
	var got []domain.VenueEvent
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d/%d events", len(got), want)
		}
	}
	return got
}

func TestManager_MergesSources(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &fakeStreamer{id: "a", events: []domain.VenueEvent{quoteEvent("a", 1)}}
	b := &fakeStreamer{id: "b", events: []domain.VenueEvent{newTokenEvent("MintA")}}

	m := NewManager([]venue.Streamer{a, b}, nil, 8, zap.NewNop())
	require.NoError(t, m.Start(ctx))

	got := collect(t, m.C(), 2)
	kinds := map[domain.VenueEventKind]int{}
	for _, ev := range got {
		kinds[ev.Kind]++
	}
	assert.Equal(t, 1, kinds[domain.VenueEventQuote])
	assert.Equal(t, 1, kinds[domain.VenueEventNewToken])
}

func TestManager_SkipsFailedSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bad := &fakeStreamer{id: "bad", fail: true}
	good := &fakeStreamer{id: "good", events: []domain.VenueEvent{quoteEvent("good", 2)}}

	m := NewManager([]venue.Streamer{bad, good}, nil, 8, zap.NewNop())
	require.NoError(t, m.Start(ctx))

	got := collect(t, m.C(), 1)
	assert.Equal(t, "good", got[0].SourceID)
}

func TestManager_DropsOldestPricesNotControlEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// More quotes than the buffer holds, followed by one control event.
	var events []domain.VenueEvent
	for i := 0; i < 20; i++ {
		events = append(events, quoteEvent("a", float64(i)))
	}
	events = append(events, newTokenEvent("MintKept"))

	src := &fakeStreamer{id: "a", events: events}
	m := NewManager([]venue.Streamer{src}, nil, 4, zap.NewNop())

	// Don't consume until a drop is recorded so backpressure builds.
	require.NoError(t, m.Start(ctx))
	require.Eventually(t, func() bool { return m.Dropped() > 0 }, 2*time.Second, 10*time.Millisecond)

	var sawToken bool
	for ev := range m.C() {
		if ev.Kind == domain.VenueEventNewToken {
			sawToken = true
			cancel()
		}
	}
	assert.True(t, sawToken, "new-token event must survive backpressure")
	assert.Greater(t, m.Dropped(), int64(0))
}
