package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pairtrader/internal/models"
)

// Ошибки журнала сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// pnlPlaces - точность хранения PnL (NUMERIC(20,8))
const pnlPlaces = 8

const tradeSchema = `
	CREATE TABLE IF NOT EXISTS pair_trades (
		id           SERIAL PRIMARY KEY,
		pair_id      VARCHAR(64)    NOT NULL,
		action       VARCHAR(16)    NOT NULL,
		reason       VARCHAR(64)    NOT NULL,
		symbol1      VARCHAR(32)    NOT NULL,
		qty1         DOUBLE PRECISION NOT NULL,
		price1       DOUBLE PRECISION NOT NULL,
		symbol2      VARCHAR(32)    NOT NULL,
		qty2         DOUBLE PRECISION NOT NULL,
		price2       DOUBLE PRECISION NOT NULL,
		realized_pnl NUMERIC(20,8)  NOT NULL DEFAULT 0,
		fill_time    TIMESTAMPTZ    NOT NULL,
		created_at   TIMESTAMPTZ    NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pair_trades_pair ON pair_trades (pair_id, fill_time DESC)`

const tradeColumns = `id, pair_id, action, reason, symbol1, qty1, price1, symbol2, qty2, price2, realized_pnl, fill_time, created_at`

// TradeRepository - журнал сделок по парам (таблица pair_trades)
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// EnsureSchema создаёт таблицу журнала, если её нет
func (r *TradeRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, tradeSchema); err != nil {
		return fmt.Errorf("create pair_trades: %w", err)
	}
	return nil
}

// Create записывает сделку и заполняет ID и CreatedAt
func (r *TradeRepository) Create(ctx context.Context, trade *models.TradeRecord) error {
	query := `
		INSERT INTO pair_trades (pair_id, action, reason, symbol1, qty1, price1, symbol2, qty2, price2, realized_pnl, fill_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	trade.CreatedAt = time.Now()
	pnl := decimal.NewFromFloat(trade.RealizedPnl).Round(pnlPlaces)

	err := r.db.QueryRowContext(ctx,
		query,
		trade.PairID,
		trade.Action,
		trade.Reason,
		trade.Symbol1,
		trade.Qty1,
		trade.Price1,
		trade.Symbol2,
		trade.Qty2,
		trade.Price2,
		pnl.String(),
		trade.FillTime,
		trade.CreatedAt,
	).Scan(&trade.ID)

	if err != nil {
		return err
	}

	return nil
}

// GetByID возвращает запись по ID
func (r *TradeRepository) GetByID(ctx context.Context, id int) (*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM pair_trades WHERE id = $1`

	trade, err := scanTrade(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return trade, nil
}

// GetByPairID возвращает сделки пары, новые первыми
func (r *TradeRepository) GetByPairID(ctx context.Context, pairID string) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM pair_trades WHERE pair_id = $1 ORDER BY fill_time DESC`

	rows, err := r.db.QueryContext(ctx, query, pairID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetRecent возвращает последние limit сделок
func (r *TradeRepository) GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM pair_trades ORDER BY fill_time DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// SumRealizedPnl возвращает суммарный реализованный PnL по закрытиям
//
// Сумма считается в NUMERIC и читается как decimal, без потери точности.
func (r *TradeRepository) SumRealizedPnl(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(realized_pnl), 0)::TEXT FROM pair_trades WHERE action = $1`

	var raw string
	if err := r.db.QueryRowContext(ctx, query, models.TradeActionClose).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse realized pnl %q: %w", raw, err)
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*models.TradeRecord, error) {
	trade := &models.TradeRecord{}
	err := row.Scan(
		&trade.ID,
		&trade.PairID,
		&trade.Action,
		&trade.Reason,
		&trade.Symbol1,
		&trade.Qty1,
		&trade.Price1,
		&trade.Symbol2,
		&trade.Qty2,
		&trade.Price2,
		&trade.RealizedPnl,
		&trade.FillTime,
		&trade.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func scanTrades(rows *sql.Rows) ([]*models.TradeRecord, error) {
	var trades []*models.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}
