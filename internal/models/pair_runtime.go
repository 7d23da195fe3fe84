package models

import "time"

// PairRuntime - снимок runtime состояния пары для диагностики
type PairRuntime struct {
	PairID        PairID        `json:"pair_id"`
	State         PairState     `json:"state"`
	Phase         PositionPhase `json:"phase"`
	Sector        string        `json:"sector"`
	QualityScore  float64       `json:"quality_score"`
	HedgeRatio    float64       `json:"hedge_ratio"`
	Legs          []Leg         `json:"legs"`
	UnrealizedPnl float64       `json:"unrealized_pnl"`
	RealizedPnl   float64       `json:"realized_pnl"`
	CooldownUntil time.Time     `json:"cooldown_until"`
	Anomalous     bool          `json:"anomalous"`
	EntryTime     time.Time     `json:"entry_time"`
}

// Leg представляет одну ногу позиции пары
type Leg struct {
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"` // со знаком
	EntryPrice float64 `json:"entry_price"`
}

// CycleReport - итог одного цикла (planned vs executed по стадиям)
type CycleReport struct {
	Time          time.Time      `json:"time"`
	PortfolioRule string         `json:"portfolio_rule,omitempty"`
	Sweep         bool           `json:"sweep"`
	EntryBlocked  bool           `json:"entry_blocked"`
	Planned       map[string]int `json:"planned"`
	Executed      map[string]int `json:"executed"`
	Equity        float64        `json:"equity"`
}

// Стадии цикла для отчёта
const (
	StagePortfolioRisk = "portfolio_risk"
	StageSweep         = "residual_sweep"
	StagePairRisk      = "pair_risk"
	StageClose         = "close"
	StageOpen          = "open"
)

// NewCycleReport создаёт пустой отчёт
func NewCycleReport(t time.Time) *CycleReport {
	return &CycleReport{
		Time:     t,
		Planned:  make(map[string]int),
		Executed: make(map[string]int),
	}
}

// Record учитывает одно запланированное намерение и результат отправки
func (r *CycleReport) Record(stage string, executed bool) {
	r.Planned[stage]++
	if executed {
		r.Executed[stage]++
	}
}
