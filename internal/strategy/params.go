package strategy

import (
	"errors"
	"fmt"
)

// Parameter validation errors.
var (
	ErrBadRange   = errors.New("parameter out of range")
	ErrBadOrder   = errors.New("parameter bounds inverted")
	ErrUnknownKey = errors.New("unknown parameter")
)

// PumpfunParams are the typed knobs of the bonding-curve sniper. All
// mutation goes through Apply, which validates before swapping.
type PumpfunParams struct {
	MinMarketCap       float64
	MaxMarketCap       float64
	MaxAgeSeconds      int64
	MinVolume24h       float64
	MinBondingProgress float64
	MaxBondingProgress float64
	GraduationProgress float64
	MinHolders         int
}

// DefaultPumpfunParams returns the stock configuration.
func DefaultPumpfunParams() PumpfunParams {
	return PumpfunParams{
		MinMarketCap:       10_000,
		MaxMarketCap:       1_000_000,
		MaxAgeSeconds:      24 * 3600,
		MinVolume24h:       5_000,
		MinBondingProgress: 0.10,
		MaxBondingProgress: 0.90,
		GraduationProgress: 0.80,
		MinHolders:         10,
	}
}

// Validate checks internal consistency.
func (p PumpfunParams) Validate() error {
	if p.MinMarketCap < 0 || p.MinVolume24h < 0 || p.MaxAgeSeconds <= 0 {
		return fmt.Errorf("%w: negative bound", ErrBadRange)
	}
	if p.MinMarketCap >= p.MaxMarketCap {
		return fmt.Errorf("%w: market cap bounds", ErrBadOrder)
	}
	if p.MinBondingProgress < 0 || p.MaxBondingProgress > 1 ||
		p.MinBondingProgress >= p.MaxBondingProgress {
		return fmt.Errorf("%w: bonding progress bounds", ErrBadRange)
	}
	if p.GraduationProgress <= 0 || p.GraduationProgress > 1 {
		return fmt.Errorf("%w: graduation progress", ErrBadRange)
	}
	return nil
}

// Apply returns a copy with the patch applied, validating the result.
// Unknown keys fail so typos cannot silently do nothing.
func (p PumpfunParams) Apply(patch map[string]float64) (PumpfunParams, error) {
	next := p
	for key, value := range patch {
		switch key {
		case "min_market_cap":
			next.MinMarketCap = value
		case "max_market_cap":
			next.MaxMarketCap = value
		case "max_age_seconds":
			next.MaxAgeSeconds = int64(value)
		case "min_volume_24h":
			next.MinVolume24h = value
		case "min_bonding_progress":
			next.MinBondingProgress = value
		case "max_bonding_progress":
			next.MaxBondingProgress = value
		case "graduation_progress":
			next.GraduationProgress = value
		case "min_holders":
			next.MinHolders = int(value)
		default:
			return p, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}
	if err := next.Validate(); err != nil {
		return p, err
	}
	return next, nil
}

// LiquidityPoolParams are the typed knobs of the new-pool sniper.
type LiquidityPoolParams struct {
	MinPoolAgeSeconds   int64
	MaxPoolAgeSeconds   int64
	MinInitialLiquidity float64
	MaxInitialLiquidity float64
	MinAPRPct           float64
	MinVolumeRatio      float64
	MaxPriceImpactPct   float64
	DefaultFeeBps       int
}

// DefaultLiquidityPoolParams returns the stock configuration.
func DefaultLiquidityPoolParams() LiquidityPoolParams {
	return LiquidityPoolParams{
		MinPoolAgeSeconds:   5 * 60,
		MaxPoolAgeSeconds:   12 * 3600,
		MinInitialLiquidity: 5_000,
		MaxInitialLiquidity: 100_000,
		MinAPRPct:           50,
		MinVolumeRatio:      0.10,
		MaxPriceImpactPct:   0.03,
		DefaultFeeBps:       25,
	}
}

// Validate checks internal consistency.
func (p LiquidityPoolParams) Validate() error {
	if p.MinPoolAgeSeconds < 0 || p.MinPoolAgeSeconds >= p.MaxPoolAgeSeconds {
		return fmt.Errorf("%w: pool age bounds", ErrBadOrder)
	}
	if p.MinInitialLiquidity <= 0 || p.MinInitialLiquidity >= p.MaxInitialLiquidity {
		return fmt.Errorf("%w: liquidity bounds", ErrBadOrder)
	}
	if p.MinAPRPct < 0 || p.MinVolumeRatio < 0 {
		return fmt.Errorf("%w: negative threshold", ErrBadRange)
	}
	if p.MaxPriceImpactPct <= 0 || p.MaxPriceImpactPct > 0.5 {
		return fmt.Errorf("%w: price impact", ErrBadRange)
	}
	if p.DefaultFeeBps <= 0 || p.DefaultFeeBps > 10_000 {
		return fmt.Errorf("%w: fee bps", ErrBadRange)
	}
	return nil
}

// Apply returns a copy with the patch applied, validating the result.
func (p LiquidityPoolParams) Apply(patch map[string]float64) (LiquidityPoolParams, error) {
	next := p
	for key, value := range patch {
		switch key {
		case "min_pool_age_seconds":
			next.MinPoolAgeSeconds = int64(value)
		case "max_pool_age_seconds":
			next.MaxPoolAgeSeconds = int64(value)
		case "min_initial_liquidity":
			next.MinInitialLiquidity = value
		case "max_initial_liquidity":
			next.MaxInitialLiquidity = value
		case "min_apr_pct":
			next.MinAPRPct = value
		case "min_volume_ratio":
			next.MinVolumeRatio = value
		case "max_price_impact_pct":
			next.MaxPriceImpactPct = value
		case "default_fee_bps":
			next.DefaultFeeBps = int(value)
		default:
			return p, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}
	if err := next.Validate(); err != nil {
		return p, err
	}
	return next, nil
}
