package bot

import (
	"pairtrader/pkg/utils"
)

// PortfolioSnapshot - состояние портфеля на момент цикла
type PortfolioSnapshot struct {
	StartingCapital    float64 `json:"starting_capital"`
	Equity             float64 `json:"equity"`
	HighWaterMark      float64 `json:"high_water_mark"`
	Realized           float64 `json:"realized_pnl"`
	Unrealized         float64 `json:"unrealized_pnl"`
	RealizedVolatility float64 `json:"realized_volatility"`
	VolatilityReady    bool    `json:"volatility_ready"`
}

// Drawdown - просадка equity от HWM в долях HWM
func (s PortfolioSnapshot) Drawdown() float64 {
	if s.HighWaterMark <= 0 {
		return 0
	}
	return (s.HighWaterMark - s.Equity) / s.HighWaterMark
}

// Portfolio - учёт капитала для портфельных risk-правил
//
// equity = starting capital + realized + Σ нереализованный PnL пар.
// Волатильность - выборочное std лог-доходностей equity за окно lookback.
type Portfolio struct {
	startingCapital float64
	realized        float64
	unrealized      float64
	equity          float64
	hwm             float64

	lookback int
	window   []float64
}

// NewPortfolio создаёт учёт портфеля
func NewPortfolio(startingCapital float64, lookback int) *Portfolio {
	if lookback < 2 {
		lookback = 2
	}
	return &Portfolio{
		startingCapital: startingCapital,
		equity:          startingCapital,
		hwm:             startingCapital,
		lookback:        lookback,
	}
}

// AddRealized учитывает реализованный PnL закрытия
//
// marked - нереализованный PnL пары на последней переоценке: он уже сидит в
// unrealized и переносится в realized, а не добавляется второй раз.
// HWM здесь не двигается, его обновляет только Mark.
func (pf *Portfolio) AddRealized(pnl, marked float64) {
	pf.realized += pnl
	pf.unrealized -= marked
	pf.equity = pf.startingCapital + pf.realized + pf.unrealized
}

// Mark переоценивает equity по нереализованному PnL открытых пар
// и добавляет точку в окно волатильности
func (pf *Portfolio) Mark(unrealized float64) {
	pf.unrealized = unrealized
	pf.equity = pf.startingCapital + pf.realized + unrealized
	if pf.equity > pf.hwm {
		pf.hwm = pf.equity
	}

	pf.window = append(pf.window, pf.equity)
	if len(pf.window) > pf.lookback {
		pf.window = pf.window[1:]
	}

	UpdatePortfolio(pf.equity, pf.realized)
}

// Equity возвращает текущую оценку капитала
func (pf *Portfolio) Equity() float64 {
	return pf.equity
}

// RealizedVolatility - std лог-доходностей equity в окне
func (pf *Portfolio) RealizedVolatility() float64 {
	return utils.StdDev(utils.LogReturns(pf.window))
}

// Snapshot возвращает снимок состояния портфеля
func (pf *Portfolio) Snapshot() PortfolioSnapshot {
	return PortfolioSnapshot{
		StartingCapital:    pf.startingCapital,
		Equity:             pf.equity,
		HighWaterMark:      pf.hwm,
		Realized:           pf.realized,
		Unrealized:         pf.unrealized,
		RealizedVolatility: pf.RealizedVolatility(),
		VolatilityReady:    len(pf.window) >= pf.lookback,
	}
}
