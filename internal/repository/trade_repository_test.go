package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"pairtrader/internal/models"
)

// ============================================================
// TradeRepository Tests
// ============================================================

var tradeRowColumns = []string{"id", "pair_id", "action", "reason", "symbol1", "qty1", "price1", "symbol2", "qty2", "price2", "realized_pnl", "fill_time", "created_at"}

func TestNewTradeRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewTradeRepository(db)
	if repo == nil {
		t.Fatal("NewTradeRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestTradeRepositoryEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS pair_trades`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewTradeRepository(db).EnsureSchema(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTradeRepositoryCreate(t *testing.T) {
	fill := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		trade       *models.TradeRecord
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			trade: &models.TradeRecord{
				PairID:      "AAA-BBB",
				Action:      models.TradeActionClose,
				Reason:      "CLOSE",
				Symbol1:     "AAA",
				Qty1:        10,
				Price1:      101,
				Symbol2:     "BBB",
				Qty2:        -20,
				Price2:      50,
				RealizedPnl: 12.123456789,
				FillTime:    fill,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO pair_trades`).
					WithArgs("AAA-BBB", "CLOSE", "CLOSE", "AAA", 10.0, 101.0, "BBB", -20.0, 50.0, "12.12345679", fill, sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
			expectError: false,
		},
		{
			name: "database error",
			trade: &models.TradeRecord{
				PairID: "AAA-BBB",
				Action: models.TradeActionAnomaly,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO pair_trades`).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewTradeRepository(db)
			err = repo.Create(context.Background(), tt.trade)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if tt.trade.ID != 1 {
					t.Errorf("expected ID=1, got %d", tt.trade.ID)
				}
				if tt.trade.CreatedAt.IsZero() {
					t.Error("CreatedAt not set")
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestTradeRepositoryGetByID(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		id          int
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			id:   1,
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(tradeRowColumns).
					AddRow(1, "AAA-BBB", "OPEN", "LONG_SPREAD", "AAA", 10.0, 101.0, "BBB", -20.0, 50.0, 0.0, now, now)
				mock.ExpectQuery(`SELECT .+ FROM pair_trades WHERE id = \$1`).
					WithArgs(1).
					WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			id:   999,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM pair_trades WHERE id = \$1`).
					WithArgs(999).
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrTradeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			result, err := NewTradeRepository(db).GetByID(context.Background(), tt.id)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if result.Reason != "LONG_SPREAD" || result.Qty2 != -20 {
					t.Errorf("unexpected record: %+v", result)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestTradeRepositoryGetByPairID(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(tradeRowColumns).
		AddRow(2, "AAA-BBB", "CLOSE", "CLOSE", "AAA", 10.0, 105.0, "BBB", -20.0, 49.0, 60.0, now, now).
		AddRow(1, "AAA-BBB", "OPEN", "LONG_SPREAD", "AAA", 10.0, 101.0, "BBB", -20.0, 50.0, 0.0, now, now)
	mock.ExpectQuery(`SELECT .+ FROM pair_trades WHERE pair_id = \$1`).
		WithArgs("AAA-BBB").
		WillReturnRows(rows)

	trades, err := NewTradeRepository(db).GetByPairID(context.Background(), "AAA-BBB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].RealizedPnl != 60 {
		t.Errorf("expected RealizedPnl=60, got %v", trades[0].RealizedPnl)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTradeRepositoryGetRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM pair_trades ORDER BY fill_time DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnError(errors.New("connection lost"))

	if _, err := NewTradeRepository(db).GetRecent(context.Background(), 5); err == nil {
		t.Error("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTradeRepositorySumRealizedPnl(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(realized_pnl\), 0\)`).
		WithArgs(models.TradeActionClose).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("37.10000001"))

	sum, err := NewTradeRepository(db).SumRealizedPnl(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.String() != "37.10000001" {
		t.Errorf("expected 37.10000001, got %s", sum.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
