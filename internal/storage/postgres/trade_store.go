package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/storage"
	"github.com/SynergiaOS/SolanaSniper/internal/storage/migrations"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a TradeStore and ensures the schema exists.
func NewTradeStore(ctx context.Context, pool *Pool) (*TradeStore, error) {
	if _, err := pool.Exec(ctx, migrations.TradesSchema); err != nil {
		return nil, fmt.Errorf("apply trades schema: %w", err)
	}
	return &TradeStore{pool: pool}, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)

const insertTradeQuery = `
	INSERT INTO trades (
		trade_id, decision_id, position_id, symbol, strategy_id,
		action, quantity, price, fee_lamports, signature, bundle_id,
		executed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const selectTradeColumns = `
	trade_id, decision_id, position_id, symbol, strategy_id,
	action, quantity, price, fee_lamports, signature, bundle_id,
	executed_at
`

// Insert adds a trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeQuery,
		t.TradeID, t.DecisionID, t.PositionID, t.Symbol, t.StrategyID,
		string(t.Action), t.Quantity, t.Price, int64(t.FeeLamports), t.Signature, t.BundleID,
		t.ExecutedAt.UnixMilli(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByID retrieves one trade. Returns ErrNotFound if absent.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	trade, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade: %w", err)
	}
	return trade, nil
}

// GetBySymbol retrieves all trades for a symbol, newest first.
func (s *TradeStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades WHERE symbol = $1 ORDER BY executed_at DESC`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query trades by symbol: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// GetByTimeRange retrieves trades executed within [start, end] millis.
func (s *TradeStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trades
		WHERE executed_at >= $1 AND executed_at <= $2 ORDER BY executed_at ASC`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trades by time: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var action string
	var feeLamports, executedAt int64

	err := row.Scan(
		&t.TradeID, &t.DecisionID, &t.PositionID, &t.Symbol, &t.StrategyID,
		&action, &t.Quantity, &t.Price, &feeLamports, &t.Signature, &t.BundleID,
		&executedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Action = domain.SignalAction(action)
	t.FeeLamports = uint64(feeLamports)
	t.ExecutedAt = time.UnixMilli(executedAt).UTC()
	return &t, nil
}

func collectTrades(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}
