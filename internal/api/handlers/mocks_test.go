package handlers

import (
	"context"
	"errors"
	"time"

	"pairtrader/internal/bot"
	"pairtrader/internal/models"
)

var ErrMockDatabase = errors.New("mock database error")

// ============ StatusSource mock ============

type mockStatusSource struct {
	status bot.Status
}

func (m *mockStatusSource) Latest() bot.Status {
	return m.status
}

func newMockStatus() *mockStatusSource {
	report := models.NewCycleReport(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	report.Record(models.StageOpen, true)
	report.Record(models.StageOpen, false)
	report.Equity = 10500

	return &mockStatusSource{status: bot.Status{
		Cycle: report,
		Portfolio: bot.PortfolioSnapshot{
			StartingCapital: 10000,
			Equity:          10500,
			HighWaterMark:   11000,
			Realized:        300,
			Unrealized:      200,
		},
		Pairs: []models.PairRuntime{
			{PairID: "CCC-DDD", State: models.PairStateLegacy, Phase: models.PhaseOpen},
			{PairID: "AAA-BBB", State: models.PairStateCointegrated, Phase: models.PhaseFlat, QualityScore: 0.9},
			{PairID: "EEE-FFF", State: models.PairStateArchived, Phase: models.PhaseFlat},
			{PairID: "BRK-B-SPY", State: models.PairStateCointegrated, Phase: models.PhaseFlat, QualityScore: 0.9},
		},
		Pending: 1,
	}}
}

// ============ TradeReader mock ============

type mockTradeReader struct {
	trades    []*models.TradeRecord
	err       error
	lastLimit int
	lastPair  string
}

func (m *mockTradeReader) GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.trades, nil
}

func (m *mockTradeReader) GetByPairID(ctx context.Context, pairID string) ([]*models.TradeRecord, error) {
	m.lastPair = pairID
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.TradeRecord
	for _, t := range m.trades {
		if t.PairID == pairID {
			out = append(out, t)
		}
	}
	return out, nil
}
