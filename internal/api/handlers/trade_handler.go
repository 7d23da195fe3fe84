package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"pairtrader/internal/models"
)

const (
	defaultTradesLimit = 50
	maxTradesLimit     = 500
)

// TradeReader - чтение журнала сделок
type TradeReader interface {
	GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error)
	GetByPairID(ctx context.Context, pairID string) ([]*models.TradeRecord, error)
}

// TradeHandler отдаёт журнал сделок
//
// Endpoints:
// - GET /api/v1/trades?limit=N        - последние сделки
// - GET /api/v1/trades?pair=AAA-BBB   - сделки одной пары
type TradeHandler struct {
	trades TradeReader
}

// NewTradeHandler создает новый TradeHandler
func NewTradeHandler(trades TradeReader) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// TradesResponse - список сделок
type TradesResponse struct {
	Trades []*models.TradeRecord `json:"trades"`
	Count  int                   `json:"count"`
}

// GetTrades возвращает сделки из журнала
// GET /api/v1/trades
func (h *TradeHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		trades []*models.TradeRecord
		err    error
	)
	if pair := strings.TrimSpace(q.Get("pair")); pair != "" {
		id, ok := models.ParsePairID(pair)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "invalid_pair", "Invalid pair ID", "expected SYMBOL1-SYMBOL2")
			return
		}
		trades, err = h.trades.GetByPairID(r.Context(), id.String())
	} else {
		limit := defaultTradesLimit
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > maxTradesLimit {
				respondWithError(w, http.StatusBadRequest, "invalid_limit", "Invalid limit",
					"limit must be between 1 and "+strconv.Itoa(maxTradesLimit))
				return
			}
		}
		trades, err = h.trades.GetRecent(r.Context(), limit)
	}

	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "journal_error", "Failed to read trade journal", err.Error())
		return
	}
	if trades == nil {
		trades = []*models.TradeRecord{}
	}
	respondWithJSON(w, http.StatusOK, TradesResponse{Trades: trades, Count: len(trades)})
}
