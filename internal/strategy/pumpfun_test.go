package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func i64ptr(v int64) *int64   { return &v }
func sptr(v string) *string   { return &v }

// curveContext builds an eligible bonding-curve token context.
func curveContext() *Context {
	return &Context{
		View: &domain.AggregatedView{
			Symbol:         "TKN1/SOL",
			ConsensusPrice: 1.1,
			Volume:         20_000,
			Confidence:     0.9,
		},
		Metadata: &domain.TokenMetadata{
			Address:              "MintTKN1",
			Symbol:               "TKN1",
			MarketCap:            fptr(100_000),
			AgeSeconds:           i64ptr(2 * 3600),
			HolderCount:          iptr(50),
			CreatorID:            sptr("GoodCreator"),
			BondingCurveProgress: fptr(0.5),
		},
		Market: MarketConditions{
			PrevPrice:  1.0,
			PrevVolume: 10_000,
		},
	}
}

func TestPumpfunAnalyze_EmitsStrongSignal(t *testing.T) {
	s := NewPumpfunSniping(DefaultPumpfunParams(), 500, nil)

	sig, err := s.Analyze(context.Background(), curveContext())
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, "pumpfun_sniping", sig.StrategyID)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.InDelta(t, 0.97, sig.Strength, 0.02)
	assert.Greater(t, sig.SuggestedSize, 0.0)
	assert.NotContains(t, sig.Metadata, "graduation_imminent")
}

func TestPumpfunAnalyze_GraduationImminentFlag(t *testing.T) {
	s := NewPumpfunSniping(DefaultPumpfunParams(), 500, nil)

	sc := curveContext()
	sc.Metadata.BondingCurveProgress = fptr(0.85)

	sig, err := s.Analyze(context.Background(), sc)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "true", sig.Metadata["graduation_imminent"])
}

func TestPumpfunAnalyze_EligibilityGates(t *testing.T) {
	s := NewPumpfunSniping(DefaultPumpfunParams(), 500, []string{"Rugger"})

	tests := []struct {
		name   string
		mutate func(*Context)
	}{
		{"market cap too small", func(sc *Context) { sc.Metadata.MarketCap = fptr(5_000) }},
		{"market cap too large", func(sc *Context) { sc.Metadata.MarketCap = fptr(2_000_000) }},
		{"too old", func(sc *Context) { sc.Metadata.AgeSeconds = i64ptr(48 * 3600) }},
		{"volume too low", func(sc *Context) { sc.View.Volume = 1_000 }},
		{"curve barely started", func(sc *Context) { sc.Metadata.BondingCurveProgress = fptr(0.05) }},
		{"curve nearly done", func(sc *Context) { sc.Metadata.BondingCurveProgress = fptr(0.95) }},
		{"too few holders", func(sc *Context) { sc.Metadata.HolderCount = iptr(3) }},
		{"blacklisted creator", func(sc *Context) { sc.Metadata.CreatorID = sptr("Rugger") }},
		{"already graduated", func(sc *Context) { sc.Metadata.Flags.Graduated = true }},
		{"no market cap fact", func(sc *Context) { sc.Metadata.MarketCap = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := curveContext()
			tt.mutate(sc)
			sig, err := s.Analyze(context.Background(), sc)
			require.NoError(t, err)
			assert.Nil(t, sig)
		})
	}
}

func TestPumpfunAnalyze_UnknownHolderCountPasses(t *testing.T) {
	s := NewPumpfunSniping(DefaultPumpfunParams(), 500, nil)

	sc := curveContext()
	sc.Metadata.HolderCount = nil

	sig, err := s.Analyze(context.Background(), sc)
	require.NoError(t, err)
	assert.NotNil(t, sig)
}

func TestPumpfunAnalyze_MicroCapHalvesSize(t *testing.T) {
	s := NewPumpfunSniping(DefaultPumpfunParams(), 500, nil)

	normal := curveContext()
	sigNormal, err := s.Analyze(context.Background(), normal)
	require.NoError(t, err)
	require.NotNil(t, sigNormal)

	micro := curveContext()
	micro.Metadata.MarketCap = fptr(30_000)
	sigMicro, err := s.Analyze(context.Background(), micro)
	require.NoError(t, err)
	require.NotNil(t, sigMicro)

	assert.Less(t, sigMicro.SuggestedSize, sigNormal.SuggestedSize)
}

func TestMcapPosition_TriangularPeak(t *testing.T) {
	min, max := 10_000.0, 1_000_000.0
	peak := 100_000.0 // sqrt(min*max)

	assert.Equal(t, 0.0, mcapPosition(min, min, max))
	assert.Equal(t, 0.0, mcapPosition(max, min, max))
	assert.InDelta(t, 1.0, mcapPosition(peak, min, max), 1e-9)
	assert.Greater(t, mcapPosition(peak, min, max), mcapPosition(40_000, min, max))
	assert.Greater(t, mcapPosition(peak, min, max), mcapPosition(500_000, min, max))
}

func TestPumpfunUpdateParams(t *testing.T) {
	s := NewPumpfunSniping(DefaultPumpfunParams(), 500, nil)

	require.NoError(t, s.UpdateParams(map[string]float64{"min_market_cap": 20_000}))
	assert.Equal(t, 20_000.0, s.Params().MinMarketCap)

	// Invalid patch leaves params untouched.
	err := s.UpdateParams(map[string]float64{"min_market_cap": 5_000_000})
	require.Error(t, err)
	assert.Equal(t, 20_000.0, s.Params().MinMarketCap)

	err = s.UpdateParams(map[string]float64{"no_such_knob": 1})
	assert.ErrorIs(t, err, ErrUnknownKey)
}
