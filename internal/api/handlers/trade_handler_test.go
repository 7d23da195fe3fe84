package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"pairtrader/internal/models"
)

// ============ TradeHandler Tests ============

func TestTradeHandler_GetTrades(t *testing.T) {
	trades := []*models.TradeRecord{
		{ID: 2, PairID: "AAA-BBB", Action: models.TradeActionClose, RealizedPnl: 42},
		{ID: 1, PairID: "CCC-DDD", Action: models.TradeActionOpen},
	}

	tests := []struct {
		name       string
		url        string
		err        error
		wantStatus int
		wantCount  int
		wantLimit  int
		wantPair   string
	}{
		{"recent default limit", "/api/v1/trades", nil, http.StatusOK, 2, defaultTradesLimit, ""},
		{"recent explicit limit", "/api/v1/trades?limit=10", nil, http.StatusOK, 2, 10, ""},
		{"by pair normalized", "/api/v1/trades?pair=aaa-bbb", nil, http.StatusOK, 1, 0, "AAA-BBB"},
		{"limit out of range", "/api/v1/trades?limit=1000", nil, http.StatusBadRequest, 0, 0, ""},
		{"limit not a number", "/api/v1/trades?limit=abc", nil, http.StatusBadRequest, 0, 0, ""},
		{"malformed pair", "/api/v1/trades?pair=AAA", nil, http.StatusBadRequest, 0, 0, ""},
		{"hyphenated symbol kept whole", "/api/v1/trades?pair=brk-b-spy", nil, http.StatusOK, 0, 0, "BRK-B-SPY"},
		{"journal error", "/api/v1/trades", ErrMockDatabase, http.StatusInternalServerError, 0, defaultTradesLimit, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockTradeReader{trades: trades, err: tt.err}
			handler := NewTradeHandler(reader)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			handler.GetTrades(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if reader.lastLimit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, reader.lastLimit)
			}
			if reader.lastPair != tt.wantPair {
				t.Errorf("expected pair %q, got %q", tt.wantPair, reader.lastPair)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var response TradesResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Count != tt.wantCount {
				t.Errorf("expected %d trades, got %d", tt.wantCount, response.Count)
			}
		})
	}
}
