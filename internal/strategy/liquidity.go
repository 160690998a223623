package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// LiquidityPoolSniping targets newly created AMM pools with attractive
// fee yield.
type LiquidityPoolSniping struct {
	mu        sync.Mutex
	params    LiquidityPoolParams
	maxSize   float64
	preferred map[string]struct{} // quote mints; empty set disables check
}

// NewLiquidityPoolSniping creates the new-pool sniper.
func NewLiquidityPoolSniping(params LiquidityPoolParams, maxPositionSize float64, preferredQuotes []string) *LiquidityPoolSniping {
	preferred := make(map[string]struct{}, len(preferredQuotes))
	for _, q := range preferredQuotes {
		preferred[strings.ToUpper(q)] = struct{}{}
	}
	if maxPositionSize <= 0 {
		maxPositionSize = 1000
	}
	return &LiquidityPoolSniping{
		params:    params,
		maxSize:   maxPositionSize,
		preferred: preferred,
	}
}

func (s *LiquidityPoolSniping) ID() string { return "liquidity_sniping" }

func (s *LiquidityPoolSniping) RequiredSources() []string {
	return []string{"raydium", "meteora", "helius"}
}

// Params returns the current parameters.
func (s *LiquidityPoolSniping) Params() LiquidityPoolParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// UpdateParams applies a validated patch.
func (s *LiquidityPoolSniping) UpdateParams(patch map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.params.Apply(patch)
	if err != nil {
		return err
	}
	s.params = next
	return nil
}

// estimateAPR annualizes pool fee income as a percentage.
func estimateAPR(volume24h, liquidity float64, feeBps int) float64 {
	if liquidity <= 0 {
		return 0
	}
	dailyFees := volume24h * float64(feeBps) / 10_000
	return dailyFees / liquidity * 365 * 100
}

func (s *LiquidityPoolSniping) isPreferredQuote(pool *domain.NewPoolEvent) bool {
	if len(s.preferred) == 0 {
		return true
	}
	_, ok := s.preferred[strings.ToUpper(pool.QuoteMint)]
	return ok
}

// Analyze scores a new pool. Sub-score weights sum to one.
func (s *LiquidityPoolSniping) Analyze(_ context.Context, sc *Context) (*domain.Signal, error) {
	s.mu.Lock()
	p := s.params
	maxSize := s.maxSize
	s.mu.Unlock()

	pool := sc.Pool
	if pool == nil {
		return nil, nil
	}

	age := int64(time.Since(pool.CreatedAt).Seconds())
	if age < p.MinPoolAgeSeconds || age > p.MaxPoolAgeSeconds {
		return nil, nil
	}
	if pool.LiquidityUSD < p.MinInitialLiquidity || pool.LiquidityUSD > p.MaxInitialLiquidity {
		return nil, nil
	}

	liquidity := sc.View.LiquidityDepth
	if liquidity <= 0 {
		liquidity = pool.LiquidityUSD
	}

	feeBps := pool.FeeBps
	if feeBps <= 0 {
		feeBps = p.DefaultFeeBps
	}

	apr := estimateAPR(sc.View.Volume, liquidity, feeBps)
	if apr < p.MinAPRPct {
		return nil, nil
	}

	volumeRatio := 0.0
	if liquidity > 0 {
		volumeRatio = sc.View.Volume / liquidity
	}
	if volumeRatio < p.MinVolumeRatio {
		return nil, nil
	}
	if !s.isPreferredQuote(pool) {
		return nil, nil
	}

	preferredBonus := 0.0
	if len(s.preferred) > 0 {
		preferredBonus = 1.0
	}

	strength := 0.25*volumeMomentum(sc.View.Volume, sc.Market.PrevVolume) +
		0.20*priceMomentum(sc.View.ConsensusPrice, sc.Market.PrevPrice) +
		0.20*clamp01(apr/200) +
		0.15*clamp01(volumeRatio/0.5) +
		0.10*sc.View.Confidence +
		0.10*preferredBonus
	strength = clamp01(strength)

	// Cap the position so its estimated price impact stays inside the
	// configured bound.
	size := maxSize * strength
	maxImpactSize := liquidity * p.MaxPriceImpactPct
	if size > maxImpactSize {
		size = maxImpactSize
	}

	return &domain.Signal{
		StrategyID:    s.ID(),
		Symbol:        sc.View.Symbol,
		TokenAddress:  pool.BaseMint,
		Action:        domain.ActionBuy,
		Strength:      strength,
		SuggestedSize: size,
		Price:         sc.View.ConsensusPrice,
		PoolLiquidity: liquidity,
		Volatility:    sc.Market.Volatility,
		Rationale: fmt.Sprintf("new pool %.0f liquidity, est APR %.0f%%, strength %.2f",
			pool.LiquidityUSD, apr, strength),
		Metadata: map[string]string{
			"pool_address":  pool.PoolAddress,
			"estimated_apr": strconv.FormatFloat(apr, 'f', 1, 64),
			"volume_ratio":  strconv.FormatFloat(volumeRatio, 'f', 3, 64),
		},
		CreatedAt: time.Now(),
	}, nil
}

func (s *LiquidityPoolSniping) OnFill(domain.Fill) {}

func (s *LiquidityPoolSniping) OnClose(domain.PositionClose) {}

var _ Strategy = (*LiquidityPoolSniping)(nil)
