package venue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/solana"
)

// Raydium's AMM program logs this tag when a pool is initialized.
const poolInitLogTag = "initialize2"

// HeliusClient is the enhanced-RPC source. It streams on-chain pool
// creations straight from program logs and serves token facts from RPC;
// it has no ticker of its own, so Quote fails Unavailable and the
// aggregator drops it from fusion.
type HeliusClient struct {
	id        string
	rpc       solana.RPCClient
	ws        solana.WSClient
	programID string
	log       *zap.Logger
}

// NewHeliusClient creates the enhanced-RPC client. programID is the AMM
// program whose pool initializations should be watched.
func NewHeliusClient(rpc solana.RPCClient, ws solana.WSClient, programID string, log *zap.Logger) *HeliusClient {
	return &HeliusClient{
		id:        "helius",
		rpc:       rpc,
		ws:        ws,
		programID: programID,
		log:       log,
	}
}

func (c *HeliusClient) ID() string                { return c.id }
func (c *HeliusClient) Class() domain.SourceClass { return domain.SourceClassEnhancedRPC }

// Quote is unsupported; the enhanced-RPC source only pushes events.
func (c *HeliusClient) Quote(_ context.Context, symbol string) (*domain.Quote, error) {
	return nil, fmt.Errorf("%w: helius serves no ticker for %s", domain.ErrUnavailable, symbol)
}

// TokenMetadata reads token facts from chain RPC.
func (c *HeliusClient) TokenMetadata(ctx context.Context, address string) (*domain.TokenMetadata, error) {
	supply, err := c.rpc.GetTokenSupply(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: helius token supply: %v", domain.ErrUnavailable, err)
	}
	_ = supply // supply confirms the mint exists; detail fields stay unknown

	return &domain.TokenMetadata{Address: address}, nil
}

// Subscribe streams NewPool events derived from AMM program logs.
func (c *HeliusClient) Subscribe(ctx context.Context, _ []string) (<-chan domain.VenueEvent, error) {
	if c.ws == nil {
		return nil, fmt.Errorf("%w: helius websocket not configured", domain.ErrUnavailable)
	}

	logs, err := c.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{c.programID}})
	if err != nil {
		return nil, fmt.Errorf("%w: helius subscribe: %v", domain.ErrUnavailable, err)
	}

	out := make(chan domain.VenueEvent, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case note, ok := <-logs:
				if !ok {
					return
				}
				if note.Err != nil || !containsPoolInit(note.Logs) {
					continue
				}
				event := domain.VenueEvent{
					Kind:     domain.VenueEventNewPool,
					SourceID: c.id,
					NewPool: &domain.NewPoolEvent{
						TxSignature: note.Signature,
						CreatedAt:   time.Now(),
					},
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func containsPoolInit(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, poolInitLogTag) {
			return true
		}
	}
	return false
}

var (
	_ Client           = (*HeliusClient)(nil)
	_ Streamer         = (*HeliusClient)(nil)
	_ MetadataProvider = (*HeliusClient)(nil)
)
