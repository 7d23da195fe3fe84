package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pairtrader/internal/api/handlers"
	"pairtrader/internal/api/middleware"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Status handlers.StatusSource
	// Trades - журнал сделок; nil, если БД отключена
	Trades handlers.TradeReader
	Logger *zap.Logger
}

// SetupRoutes настраивает HTTP маршруты диагностики
//
// Структура маршрутов:
//
//	/health              - проверка живости
//	/metrics             - Prometheus
//	/api/v1/
//	├── GET /pairs       - runtime пар
//	├── GET /pairs/{id}  - runtime одной пары
//	├── GET /cycle       - отчёт последнего цикла
//	├── GET /portfolio   - снимок портфеля
//	└── GET /trades      - журнал сделок (только при включённой БД)
//
// Middleware: Recovery, затем Logging.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	var logger *zap.Logger
	if deps != nil {
		logger = deps.Logger
	}
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))

	api := router.PathPrefix("/api/v1").Subrouter()

	if deps != nil && deps.Status != nil {
		statusHandler := handlers.NewStatusHandler(deps.Status)
		api.HandleFunc("/pairs", statusHandler.GetPairs).Methods("GET")
		api.HandleFunc("/pairs/{id}", statusHandler.GetPair).Methods("GET")
		api.HandleFunc("/cycle", statusHandler.GetCycle).Methods("GET")
		api.HandleFunc("/portfolio", statusHandler.GetPortfolio).Methods("GET")
	}

	if deps != nil && deps.Trades != nil {
		tradeHandler := handlers.NewTradeHandler(deps.Trades)
		api.HandleFunc("/trades", tradeHandler.GetTrades).Methods("GET")
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
