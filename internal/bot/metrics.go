package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Экспортируются через /metrics (internal/api). Метки ограничены
// стадией цикла, именем правила и статусом: идентификаторы пар в метки
// не попадают, чтобы не раздувать кардинальность.

// ============ Метрики латентности ============

// CycleLatency - длительность одного цикла ExecutionManager
var CycleLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "pairs",
		Subsystem: "engine",
		Name:      "cycle_latency_ms",
		Help:      "Duration of one execution cycle in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	},
)

// ============ Счётчики намерений ============

// IntentsPlanned - намерения, сформированные за цикл, по стадиям
var IntentsPlanned = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairs",
		Subsystem: "engine",
		Name:      "intents_planned_total",
		Help:      "Number of intents planned per cycle stage",
	},
	[]string{"stage"}, // portfolio_risk, residual_sweep, pair_risk, close, open
)

// IntentsExecuted - намерения, реально отправленные брокеру
var IntentsExecuted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairs",
		Subsystem: "engine",
		Name:      "intents_executed_total",
		Help:      "Number of intents submitted per cycle stage",
	},
	[]string{"stage"},
)

// Submissions - результаты отправки намерений
var Submissions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairs",
		Subsystem: "execution",
		Name:      "submissions_total",
		Help:      "Intent submissions by result",
	},
	[]string{"result"}, // submitted, locked, failed, partial
)

// ============ Жизненный цикл ордеров ============

// OrderEvents - события брокера по статусам
var OrderEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairs",
		Subsystem: "tickets",
		Name:      "order_events_total",
		Help:      "Broker order events by status",
	},
	[]string{"status"},
)

// FillsCompleted - завершённые (обе ноги) открытия и закрытия
var FillsCompleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairs",
		Subsystem: "tickets",
		Name:      "fills_completed_total",
		Help:      "Completed two-leg fills by action",
	},
	[]string{"action"},
)

// AnomaliesDetected - пары с аномальным исполнением
var AnomaliesDetected = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pairs",
		Subsystem: "tickets",
		Name:      "anomalies_detected_total",
		Help:      "Number of pairs that entered ANOMALY order status",
	},
)

// ============ Risk ============

// RiskTriggers - срабатывания risk-правил
var RiskTriggers = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairs",
		Subsystem: "risk",
		Name:      "rule_triggers_total",
		Help:      "Number of risk rule triggers",
	},
	[]string{"scope", "rule"},
)

// EntriesBlocked - циклы, в которых открытия заблокированы
var EntriesBlocked = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pairs",
		Subsystem: "risk",
		Name:      "entries_blocked_total",
		Help:      "Number of cycles with new entries blocked",
	},
)

// ============ Метрики состояния ============

// PairsByState - количество пар по классификации
var PairsByState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "pairs",
		Subsystem: "registry",
		Name:      "pairs",
		Help:      "Number of tracked pairs by state",
	},
	[]string{"state"}, // COINTEGRATED, LEGACY, ARCHIVED
)

// OpenPositions - количество пар с позицией
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairs",
		Subsystem: "registry",
		Name:      "open_positions",
		Help:      "Number of pairs holding a position",
	},
)

// Equity - текущая оценка капитала
var Equity = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairs",
		Subsystem: "portfolio",
		Name:      "equity",
		Help:      "Current marked equity",
	},
)

// RealizedPnl - накопленный реализованный PnL (может быть отрицательным)
var RealizedPnl = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairs",
		Subsystem: "portfolio",
		Name:      "realized_pnl",
		Help:      "Cumulative realized PnL",
	},
)

// ============ Вспомогательные функции ============

// RecordStage записывает одно намерение стадии цикла
func RecordStage(stage string, executed bool) {
	IntentsPlanned.WithLabelValues(stage).Inc()
	if executed {
		IntentsExecuted.WithLabelValues(stage).Inc()
	}
}

// RecordRiskTrigger записывает срабатывание правила
func RecordRiskTrigger(scope, rule string) {
	RiskTriggers.WithLabelValues(scope, rule).Inc()
}

// UpdatePairGauges обновляет gauge'и реестра пар
func UpdatePairGauges(byState map[string]int, withPosition int) {
	for _, s := range []string{"COINTEGRATED", "LEGACY", "ARCHIVED"} {
		PairsByState.WithLabelValues(s).Set(float64(byState[s]))
	}
	OpenPositions.Set(float64(withPosition))
}

// UpdatePortfolio обновляет gauge'и портфеля
func UpdatePortfolio(equity, realized float64) {
	Equity.Set(equity)
	RealizedPnl.Set(realized)
}
