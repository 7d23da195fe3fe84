package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"pairtrader/internal/bot"
	"pairtrader/internal/models"
)

// StatusSource - источник последнего снимка ядра
type StatusSource interface {
	Latest() bot.Status
}

// StatusHandler отдаёт диагностическое состояние торгового ядра
//
// Endpoints:
// - GET /api/v1/pairs            - runtime всех пар (?state=COINTEGRATED|LEGACY|ARCHIVED)
// - GET /api/v1/pairs/{id}       - runtime одной пары (id вида AAA-BBB)
// - GET /api/v1/cycle            - отчёт последнего цикла
// - GET /api/v1/portfolio        - equity, HWM, просадка, волатильность
//
// Все данные только для чтения: хендлеры не меняют состояние ядра.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler создает новый StatusHandler
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// PairsResponse - список пар
type PairsResponse struct {
	Pairs []models.PairRuntime `json:"pairs"`
	Count int                  `json:"count"`
}

// PortfolioResponse - снимок портфеля
type PortfolioResponse struct {
	bot.PortfolioSnapshot
	Drawdown         float64 `json:"drawdown"`
	PendingOrderSets int     `json:"pending_order_sets"`
}

// GetPairs возвращает runtime пар
// GET /api/v1/pairs
func (h *StatusHandler) GetPairs(w http.ResponseWriter, r *http.Request) {
	status := h.source.Latest()

	state := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state")))
	switch models.PairState(state) {
	case "", models.PairStateCointegrated, models.PairStateLegacy, models.PairStateArchived:
	default:
		respondWithError(w, http.StatusBadRequest, "invalid_state", "Invalid pair state filter", state)
		return
	}

	pairs := make([]models.PairRuntime, 0, len(status.Pairs))
	for _, p := range status.Pairs {
		if state != "" && string(p.State) != state {
			continue
		}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].PairID < pairs[j].PairID })

	respondWithJSON(w, http.StatusOK, PairsResponse{Pairs: pairs, Count: len(pairs)})
}

// GetPair возвращает runtime одной пары
// GET /api/v1/pairs/{id}
func (h *StatusHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	id, ok := models.ParsePairID(mux.Vars(r)["id"])
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid pair ID", "expected SYMBOL1-SYMBOL2")
		return
	}

	for _, p := range h.source.Latest().Pairs {
		if p.PairID == id {
			respondWithJSON(w, http.StatusOK, p)
			return
		}
	}
	respondWithError(w, http.StatusNotFound, "not_found", "Pair not tracked", string(id))
}

// GetCycle возвращает отчёт последнего цикла
// GET /api/v1/cycle
func (h *StatusHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	status := h.source.Latest()
	if status.Cycle == nil {
		respondWithError(w, http.StatusNotFound, "no_cycle", "No cycle has run yet", "")
		return
	}
	respondWithJSON(w, http.StatusOK, status.Cycle)
}

// GetPortfolio возвращает снимок портфеля
// GET /api/v1/portfolio
func (h *StatusHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	status := h.source.Latest()
	respondWithJSON(w, http.StatusOK, PortfolioResponse{
		PortfolioSnapshot: status.Portfolio,
		Drawdown:          status.Portfolio.Drawdown(),
		PendingOrderSets:  status.Pending,
	})
}
