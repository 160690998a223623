package executor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/config"
	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/hub"
	"github.com/SynergiaOS/SolanaSniper/internal/solana"
	"github.com/SynergiaOS/SolanaSniper/internal/wallet"
)

// Order lifecycle states persisted to the hub.
const (
	StateSubmitting = "submitting"
	StateSubmitted  = "submitted"
	StateFilled     = "filled"
	StateFailed     = "failed"
	StateExpired    = "expired"
)

var lamportsPerSOL = decimal.NewFromInt(1_000_000_000)

// RiskBook is the slice of the risk manager the coordinator needs to
// confirm or release reservations.
type RiskBook interface {
	Confirm(decisionID string)
	Release(decisionID string)
}

// Coordinator drives accepted decisions through quote, routing, submission
// and fill confirmation. Per decision id, at most one submission ever
// happens, enforced by a hub compare-and-set.
type Coordinator struct {
	jupiter *JupiterClient
	jito    *JitoClient
	rpc     solana.RPCClient
	keypair *wallet.Keypair
	hub     *hub.Hub
	risk    RiskBook

	botCfg config.BotConfig
	mevCfg config.MEVConfig

	commitment     solana.Commitment
	maxSlippageBps int
	txTimeout      time.Duration
	log            *zap.Logger
	now            func() time.Time
}

// Options wires a Coordinator.
type Options struct {
	Jupiter        *JupiterClient
	Jito           *JitoClient
	RPC            solana.RPCClient
	Keypair        *wallet.Keypair
	Hub            *hub.Hub
	Risk           RiskBook
	Bot            config.BotConfig
	MEV            config.MEVConfig
	Commitment     solana.Commitment
	MaxSlippageBps int
	TxTimeout      time.Duration
	Log            *zap.Logger
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	txTimeout := opts.TxTimeout
	if txTimeout <= 0 {
		txTimeout = 60 * time.Second
	}
	commitment := opts.Commitment
	if commitment == "" {
		commitment = solana.CommitmentConfirmed
	}
	return &Coordinator{
		jupiter:        opts.Jupiter,
		jito:           opts.Jito,
		rpc:            opts.RPC,
		keypair:        opts.Keypair,
		hub:            opts.Hub,
		risk:           opts.Risk,
		botCfg:         opts.Bot,
		mevCfg:         opts.MEV,
		commitment:     commitment,
		maxSlippageBps: opts.MaxSlippageBps,
		txTimeout:      txTimeout,
		log:            log,
		now:            time.Now,
	}
}

// Execute runs one accepted decision to a terminal outcome. It returns the
// fill on success, nil with no error when the submission was suppressed
// (duplicate decision, dry run), and a coded error otherwise.
func (c *Coordinator) Execute(ctx context.Context, decision *domain.Decision, view *domain.AggregatedView) (*domain.Fill, error) {
	if !decision.Accepted() {
		return nil, nil
	}

	// A decision that already reached a terminal state never submits
	// again, even across restarts.
	if rec, err := c.hub.GetDecisionRecord(ctx, decision.DecisionID); err == nil {
		switch rec.Status {
		case StateFilled, StateFailed, StateExpired:
			c.log.Info("decision already terminal, submission suppressed",
				zap.String("decision", decision.DecisionID),
				zap.String("status", rec.Status))
			return nil, nil
		}
	}

	// At-most-once per decision id.
	won, err := c.hub.AcquireInflight(ctx, decision.DecisionID)
	if err != nil {
		return nil, fmt.Errorf("acquire inflight: %w", err)
	}
	if !won {
		c.log.Info("duplicate submission suppressed",
			zap.String("decision", decision.DecisionID))
		return nil, nil
	}
	defer c.hub.ReleaseInflight(ctx, decision.DecisionID)

	fill, err := c.execute(ctx, decision, view)
	if err != nil {
		c.risk.Release(decision.DecisionID)
		return nil, err
	}
	return fill, nil
}

func (c *Coordinator) execute(ctx context.Context, decision *domain.Decision, view *domain.AggregatedView) (*domain.Fill, error) {
	sig := decision.Signal
	notional := decision.SizedQuantity * sig.Price

	if c.botCfg.PaperTrading {
		return c.paperFill(ctx, decision, view)
	}
	if c.botCfg.DryRun {
		c.log.Info("dry run: submission suppressed",
			zap.String("decision", decision.DecisionID),
			zap.String("symbol", sig.Symbol),
			zap.Float64("notional", notional))
		c.risk.Release(decision.DecisionID)
		c.saveRecord(ctx, decision, StateExpired, "", "")
		return nil, nil
	}

	// Quote step. Buys spend SOL notional; sells spend the token quantity.
	inputMint, outputMint := WSOLMint, sig.TokenAddress
	inAmount := decimal.NewFromFloat(notional).Mul(lamportsPerSOL)
	if sig.Action == domain.ActionSell {
		inputMint, outputMint = sig.TokenAddress, WSOLMint
		inAmount = decimal.NewFromFloat(decision.SizedQuantity).Mul(lamportsPerSOL)
	}
	inLamports := inAmount.BigInt().Uint64()

	quote, err := c.jupiter.GetQuote(ctx, QuoteRequest{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      inLamports,
		SlippageBps: c.maxSlippageBps,
	})
	if err != nil {
		c.saveRecord(ctx, decision, StateFailed, "", "")
		return nil, err
	}

	// Slippage control against the consensus price.
	if view != nil && c.maxSlippageBps > 0 {
		if impliedDeviationBps(quote, view.ConsensusPrice) > float64(c.maxSlippageBps) {
			c.saveRecord(ctx, decision, StateFailed, "", "")
			return nil, domain.NewCodedError(domain.CodeSlippageExceeded,
				fmt.Sprintf("quote deviates more than %d bps from consensus", c.maxSlippageBps), nil)
		}
	}

	swapTx, err := c.jupiter.BuildSwap(ctx, quote, c.keypair.Address())
	if err != nil {
		c.saveRecord(ctx, decision, StateFailed, "", "")
		return nil, domain.NewCodedError(domain.CodeNoRoute, "swap assembly failed", err)
	}

	c.saveRecord(ctx, decision, StateSubmitting, "", "")

	// Routing decision: bundle when MEV protection applies.
	if c.mevCfg.Enabled && notional >= c.mevCfg.ThresholdNotional && c.jito != nil {
		fill, err := c.submitBundle(ctx, decision, swapTx, quote)
		if err == nil || domain.CodeOf(err) != domain.CodeBundleTimeout {
			return fill, err
		}
		if !c.mevCfg.Fallback {
			c.saveRecord(ctx, decision, StateFailed, "", "")
			return nil, err
		}
		c.log.Warn("bundle timed out, falling back to direct submission",
			zap.String("decision", decision.DecisionID))
	}

	return c.submitDirect(ctx, decision, swapTx, quote)
}

// paperFill simulates an immediate fill at consensus price.
func (c *Coordinator) paperFill(ctx context.Context, decision *domain.Decision, view *domain.AggregatedView) (*domain.Fill, error) {
	price := decision.Signal.Price
	if view != nil {
		price = view.ConsensusPrice
	}
	fill := &domain.Fill{
		DecisionID: decision.DecisionID,
		Signature:  "paper-" + uuid.NewString(),
		Symbol:     decision.Signal.Symbol,
		StrategyID: decision.Signal.StrategyID,
		Price:      price,
		Quantity:   decision.SizedQuantity,
		FilledAt:   c.now(),
	}
	c.risk.Confirm(decision.DecisionID)
	c.saveRecord(ctx, decision, StateFilled, fill.Signature, "")
	return fill, nil
}

// submitBundle wraps the swap with a tip transfer and waits for the relay.
func (c *Coordinator) submitBundle(ctx context.Context, decision *domain.Decision, swapTx string, quote *QuoteResponse) (*domain.Fill, error) {
	tip := c.mevCfg.MaxTipLamports
	tipTx, err := c.jito.BuildTipTransaction(ctx, c.keypair, tip)
	if err != nil {
		return nil, domain.NewCodedError(domain.CodeTxFailed, "tip assembly failed", err)
	}

	bundleID, err := c.jito.SubmitBundle(ctx, []string{tipTx, swapTx})
	if err != nil {
		return nil, domain.NewCodedError(domain.CodeTxFailed, "bundle submission failed", err)
	}
	c.saveRecord(ctx, decision, StateSubmitted, "", bundleID)
	c.log.Info("bundle submitted",
		zap.String("decision", decision.DecisionID),
		zap.String("bundle", bundleID),
		zap.Uint64("tip_lamports", tip))

	timeout := time.Duration(c.mevCfg.BundleTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	status, err := c.jito.WaitForBundle(ctx, bundleID, timeout)
	if err != nil {
		return nil, err
	}
	if status != BundleStatusLanded {
		c.saveRecord(ctx, decision, StateFailed, "", bundleID)
		return nil, domain.NewCodedError(domain.CodeTxFailed,
			fmt.Sprintf("bundle %s terminal status %s", bundleID, status), nil)
	}

	fill := c.buildFill(decision, quote, "", bundleID)
	c.risk.Confirm(decision.DecisionID)
	c.saveRecord(ctx, decision, StateFilled, "", bundleID)
	return fill, nil
}

// submitDirect sends the transaction straight to the RPC node and polls
// until the configured commitment or timeout.
func (c *Coordinator) submitDirect(ctx context.Context, decision *domain.Decision, swapTx string, quote *QuoteResponse) (*domain.Fill, error) {
	signature, err := c.rpc.SendTransaction(ctx, swapTx)
	if err != nil {
		c.saveRecord(ctx, decision, StateFailed, "", "")
		return nil, domain.NewCodedError(domain.CodeTxFailed, "send transaction failed", err)
	}
	c.saveRecord(ctx, decision, StateSubmitted, signature, "")
	c.log.Info("order submitted",
		zap.String("decision", decision.DecisionID),
		zap.String("signature", signature))

	confirmed, err := c.waitForSignature(ctx, signature)
	if err != nil {
		c.saveRecord(ctx, decision, StateExpired, signature, "")
		return nil, err
	}
	if !confirmed {
		c.saveRecord(ctx, decision, StateFailed, signature, "")
		return nil, domain.NewCodedError(domain.CodeTxFailed,
			fmt.Sprintf("transaction %s failed on chain", signature), nil)
	}

	fill := c.buildFill(decision, quote, signature, "")
	c.risk.Confirm(decision.DecisionID)
	c.saveRecord(ctx, decision, StateFilled, signature, "")
	return fill, nil
}

// waitForSignature polls signature status until commitment, failure or
// timeout.
func (c *Coordinator) waitForSignature(ctx context.Context, signature string) (bool, error) {
	deadline := c.now().Add(c.txTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			if statuses[0].Failed() {
				return false, nil
			}
			if statuses[0].Confirmed(c.commitment) {
				return true, nil
			}
		}

		if c.now().After(deadline) {
			return false, domain.NewCodedError(domain.CodeTimeout,
				fmt.Sprintf("transaction %s unconfirmed after %s", signature, c.txTimeout), nil)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) buildFill(decision *domain.Decision, quote *QuoteResponse, signature, bundleID string) *domain.Fill {
	price := decision.Signal.Price
	if in, errIn := strconv.ParseFloat(quote.InAmount, 64); errIn == nil && in > 0 {
		if out, errOut := strconv.ParseFloat(quote.OutAmount, 64); errOut == nil && out > 0 {
			// Executed price implied by the route amounts. Token decimals
			// differ per mint, so only trust it near the signal price.
			implied := in / out
			if implied > price/2 && implied < price*2 {
				price = implied
			}
		}
	}
	return &domain.Fill{
		DecisionID: decision.DecisionID,
		Signature:  signature,
		BundleID:   bundleID,
		Symbol:     decision.Signal.Symbol,
		StrategyID: decision.Signal.StrategyID,
		Price:      price,
		Quantity:   decision.SizedQuantity,
		FilledAt:   c.now(),
	}
}

// impliedDeviationBps compares the quote's implied price to consensus.
func impliedDeviationBps(quote *QuoteResponse, consensusPrice float64) float64 {
	in, errIn := strconv.ParseFloat(quote.InAmount, 64)
	out, errOut := strconv.ParseFloat(quote.OutAmount, 64)
	if errIn != nil || errOut != nil || in <= 0 || out <= 0 || consensusPrice <= 0 {
		return 0
	}
	implied := in / out
	return math.Abs(implied-consensusPrice) / consensusPrice * 10_000
}

// saveRecord persists the decision's execution state to the hub.
func (c *Coordinator) saveRecord(ctx context.Context, decision *domain.Decision, state, signature, bundleID string) {
	rec := &hub.DecisionRecord{
		DecisionID: decision.DecisionID,
		Symbol:     decision.Signal.Symbol,
		Status:     state,
		Signature:  signature,
		BundleID:   bundleID,
		UpdatedAt:  c.now(),
	}
	if state == StateSubmitting || state == StateSubmitted {
		rec.SubmittedAt = c.now()
	}
	if err := c.hub.SaveDecisionRecord(ctx, rec); err != nil {
		c.log.Warn("decision record not persisted",
			zap.String("decision", decision.DecisionID), zap.Error(err))
	}
}

// Reconcile resolves decisions left in submitted state by an earlier
// process: anything older than the confirmation timeout is settled via
// chain RPC before new work is accepted.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	records, err := c.hub.SubmittedDecisions(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if c.now().Sub(rec.SubmittedAt) < c.txTimeout {
			continue
		}
		if rec.Signature == "" {
			rec.Status = StateExpired
			rec.UpdatedAt = c.now()
			_ = c.hub.SaveDecisionRecord(ctx, rec)
			c.risk.Release(rec.DecisionID)
			continue
		}

		statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{rec.Signature})
		if err != nil {
			c.log.Warn("reconciliation status fetch failed",
				zap.String("decision", rec.DecisionID), zap.Error(err))
			continue
		}

		switch {
		case len(statuses) == 1 && statuses[0] != nil && statuses[0].Confirmed(c.commitment):
			rec.Status = StateFilled
			c.risk.Confirm(rec.DecisionID)
		default:
			rec.Status = StateFailed
			c.risk.Release(rec.DecisionID)
		}
		rec.UpdatedAt = c.now()
		if err := c.hub.SaveDecisionRecord(ctx, rec); err != nil {
			c.log.Warn("reconciliation record not persisted",
				zap.String("decision", rec.DecisionID), zap.Error(err))
		}
		c.log.Info("reconciled stale submission",
			zap.String("decision", rec.DecisionID),
			zap.String("status", rec.Status))
	}
	return nil
}
