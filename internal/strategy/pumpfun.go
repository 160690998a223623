package strategy

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// PumpfunSniping targets tokens still on a bonding curve before they
// graduate to an AMM.
type PumpfunSniping struct {
	mu        sync.Mutex
	params    PumpfunParams
	maxSize   float64
	blacklist map[string]struct{}
	fills     int
	closes    int
}

// NewPumpfunSniping creates the bonding-curve sniper.
func NewPumpfunSniping(params PumpfunParams, maxPositionSize float64, creatorBlacklist []string) *PumpfunSniping {
	blacklist := make(map[string]struct{}, len(creatorBlacklist))
	for _, c := range creatorBlacklist {
		blacklist[c] = struct{}{}
	}
	if maxPositionSize <= 0 {
		maxPositionSize = 500
	}
	return &PumpfunSniping{
		params:    params,
		maxSize:   maxPositionSize,
		blacklist: blacklist,
	}
}

func (s *PumpfunSniping) ID() string { return "pumpfun_sniping" }

func (s *PumpfunSniping) RequiredSources() []string {
	return []string{"pumpfun", "jupiter"}
}

// Params returns the current parameters.
func (s *PumpfunSniping) Params() PumpfunParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// UpdateParams applies a validated patch.
func (s *PumpfunSniping) UpdateParams(patch map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.params.Apply(patch)
	if err != nil {
		return err
	}
	s.params = next
	return nil
}

// eligible runs the token-specific gate. Optional facts missing from
// metadata (holder count) pass; core facts (market cap, curve progress)
// must be present.
func (s *PumpfunSniping) eligible(sc *Context, p PumpfunParams) bool {
	meta := sc.Metadata
	if meta == nil || meta.MarketCap == nil || meta.BondingCurveProgress == nil {
		return false
	}
	if meta.Flags.Graduated {
		return false
	}
	mcap := *meta.MarketCap
	if mcap < p.MinMarketCap || mcap > p.MaxMarketCap {
		return false
	}
	if meta.AgeSeconds == nil || *meta.AgeSeconds > p.MaxAgeSeconds {
		return false
	}
	if sc.View.Volume < p.MinVolume24h {
		return false
	}
	progress := *meta.BondingCurveProgress
	if progress < p.MinBondingProgress || progress > p.MaxBondingProgress {
		return false
	}
	if meta.HolderCount != nil && *meta.HolderCount < p.MinHolders {
		return false
	}
	if meta.CreatorID != nil {
		if _, banned := s.blacklist[*meta.CreatorID]; banned {
			return false
		}
	}
	return true
}

// mcapPosition scores the market cap against a triangular sweet spot
// peaking at sqrt(min*max).
func mcapPosition(mcap, min, max float64) float64 {
	if mcap <= min || mcap >= max {
		return 0
	}
	peak := math.Sqrt(min * max)
	if mcap <= peak {
		return (mcap - min) / (peak - min)
	}
	return (max - mcap) / (max - peak)
}

// Analyze scores an eligible token. Sub-score weights sum to one.
func (s *PumpfunSniping) Analyze(_ context.Context, sc *Context) (*domain.Signal, error) {
	s.mu.Lock()
	p := s.params
	maxSize := s.maxSize
	s.mu.Unlock()

	if !s.eligible(sc, p) {
		return nil, nil
	}

	meta := sc.Metadata
	mcap := *meta.MarketCap
	newness := 1 - float64(*meta.AgeSeconds)/float64(p.MaxAgeSeconds)

	strength := 0.30*volumeMomentum(sc.View.Volume, sc.Market.PrevVolume) +
		0.25*priceMomentum(sc.View.ConsensusPrice, sc.Market.PrevPrice) +
		0.20*sc.View.Confidence +
		0.15*mcapPosition(mcap, p.MinMarketCap, p.MaxMarketCap) +
		0.10*clamp01(newness)
	strength = clamp01(strength)

	size := maxSize * strength
	if mcap < 50_000 {
		// Micro caps get half size regardless of score.
		size /= 2
	}

	metadata := map[string]string{
		"market_cap":             strconv.FormatFloat(mcap, 'f', 2, 64),
		"bonding_curve_progress": strconv.FormatFloat(*meta.BondingCurveProgress, 'f', 4, 64),
	}
	if *meta.BondingCurveProgress >= p.GraduationProgress {
		metadata["graduation_imminent"] = "true"
	}

	return &domain.Signal{
		StrategyID:    s.ID(),
		Symbol:        sc.View.Symbol,
		TokenAddress:  meta.Address,
		Action:        domain.ActionBuy,
		Strength:      strength,
		SuggestedSize: size,
		Price:         sc.View.ConsensusPrice,
		PoolLiquidity: sc.View.LiquidityDepth,
		Volatility:    sc.Market.Volatility,
		Rationale: fmt.Sprintf("bonding curve %.0f%%, mcap %.0f, strength %.2f",
			*meta.BondingCurveProgress*100, mcap, strength),
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}, nil
}

func (s *PumpfunSniping) OnFill(domain.Fill) {
	s.mu.Lock()
	s.fills++
	s.mu.Unlock()
}

func (s *PumpfunSniping) OnClose(domain.PositionClose) {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
}

var _ Strategy = (*PumpfunSniping)(nil)
