package bot

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"pairtrader/internal/models"
	"pairtrader/pkg/utils"
)

// TradingParams - параметры сигналов и сайзинга, общие для всех пар
//
// Полосы z-score: 0 <= ExitZ < EntryZMin <= EntryZMax < StopZ.
type TradingParams struct {
	EntryZMin float64
	EntryZMax float64
	ExitZ     float64
	StopZ     float64

	// Капитал на единицу стоимости ноги (1.0 = без плеча)
	LongMargin  float64
	ShortMargin float64

	LotSize float64
}

// DefaultTradingParams возвращает параметры по умолчанию
func DefaultTradingParams() TradingParams {
	return TradingParams{
		EntryZMin:   1.0,
		EntryZMax:   1.75,
		ExitZ:       0.25,
		StopZ:       3.0,
		LongMargin:  1.0,
		ShortMargin: 1.5,
		LotSize:     1.0,
	}
}

// CooldownPolicy - таблица длительностей cooldown пары после закрытия
type CooldownPolicy struct {
	AfterProfit time.Duration
	AfterLoss   time.Duration
	AfterStop   time.Duration
	// ByReason переопределяет длительность по причине закрытия (без учёта регистра)
	ByReason map[string]time.Duration
}

// For возвращает длительность cooldown для причины закрытия и реализованного PnL
func (c CooldownPolicy) For(reason string, pnl float64) time.Duration {
	for r, d := range c.ByReason {
		if strings.EqualFold(r, reason) {
			return d
		}
	}
	if reason == models.ReasonStopLoss {
		return c.AfterStop
	}
	if pnl >= 0 {
		return c.AfterProfit
	}
	return c.AfterLoss
}

// Pair - состояние одной пары: параметры модели, позиция, cooldown
//
// Pair владеет своими количествами и ценами входа эксклюзивно и никогда не
// читает общий по инструменту учёт позиций: один инструмент может входить в
// несколько пар. Все методы вызываются из одного цикла, блокировок нет.
type Pair struct {
	id      models.PairID
	key     string
	symbol1 string
	symbol2 string

	// Замороженные параметры модели (обновляются только без позиции)
	beta       float64
	intercept  float64
	spreadMean float64
	spreadStd  float64

	quality float64
	sector  string

	params   TradingParams
	cooldown CooldownPolicy

	state models.PairState
	phase models.PositionPhase

	// Отслеживаемая позиция пары (количества со знаком)
	qty1, qty2     float64
	entry1, entry2 float64
	entryTime      time.Time
	entryNotional  float64
	hwm            float64

	cooldownUntil time.Time
	realizedPnl   float64
	anomalous     bool

	// Циклов подряд в ARCHIVED без позиции (для вывода из учёта)
	archivedCycles int

	logger *zap.Logger
}

// NewPair создаёт пару из записи анализа
func NewPair(rec models.AnalysisRecord, params TradingParams, cooldown CooldownPolicy, logger *zap.Logger) *Pair {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := rec.PairID()
	s1, s2 := rec.Symbols()
	p := &Pair{
		id:       id,
		key:      rec.CanonicalKey(),
		symbol1:  s1,
		symbol2:  s2,
		params:   params,
		cooldown: cooldown,
		state:    models.PairStateCointegrated,
		phase:    models.PhaseFlat,
		logger:   logger.With(zap.String("pair", id.String())),
	}
	p.applyParams(rec)
	return p
}

func (p *Pair) applyParams(rec models.AnalysisRecord) {
	p.beta = rec.HedgeRatio
	p.intercept = rec.Intercept
	p.spreadMean = rec.SpreadMean
	p.spreadStd = rec.SpreadStd
	p.quality = rec.QualityScore
	p.sector = rec.Sector
}

// ============ Геттеры ============

func (p *Pair) ID() models.PairID { return p.id }
func (p *Pair) Symbols() (string, string) { return p.symbol1, p.symbol2 }

// Key - ключ пары без учёта порядка ног
func (p *Pair) Key() string { return p.key }
func (p *Pair) HedgeRatio() float64 { return p.beta }
func (p *Pair) QualityScore() float64 { return p.quality }
func (p *Pair) Sector() string { return p.sector }
func (p *Pair) State() models.PairState { return p.state }
func (p *Pair) Phase() models.PositionPhase { return p.phase }
func (p *Pair) Quantities() (float64, float64) { return p.qty1, p.qty2 }
func (p *Pair) EntryPrices() (float64, float64) { return p.entry1, p.entry2 }
func (p *Pair) EntryTime() time.Time { return p.entryTime }
func (p *Pair) CooldownUntil() time.Time { return p.cooldownUntil }
func (p *Pair) RealizedPnl() float64 { return p.realizedPnl }
func (p *Pair) IsAnomalous() bool { return p.anomalous }
func (p *Pair) EntryNotional() float64 { return p.entryNotional }

// HasPosition возвращает true, если пара отслеживает ненулевую позицию
func (p *Pair) HasPosition() bool {
	return p.qty1 != 0 || p.qty2 != 0
}

// InCooldown возвращает true внутри окна cooldown
func (p *Pair) InCooldown(now time.Time) bool {
	return now.Before(p.cooldownUntil)
}

// SetState устанавливает классификацию цикла (вызывается PairsManager)
func (p *Pair) SetState(s models.PairState) {
	p.state = s
}

// ============ Сигналы ============

// ZScore вычисляет стандартизованное отклонение спреда в лог-пространстве
//
// spread = ln(p1) - (intercept + beta*ln(p2)), z = (spread - mean) / std.
// ok == false, если нет цены одной из ног или std не положительна.
func (p *Pair) ZScore(prices map[string]float64) (z float64, ok bool) {
	p1, p2 := prices[p.symbol1], prices[p.symbol2]
	if p1 <= 0 || p2 <= 0 || p.spreadStd <= 0 {
		return 0, false
	}
	spread := math.Log(p1) - (p.intercept + p.beta*math.Log(p2))
	return (spread - p.spreadMean) / p.spreadStd, true
}

// GetSignal возвращает торговый сигнал пары по текущим ценам
func (p *Pair) GetSignal(prices map[string]float64, now time.Time) models.Signal {
	if !p.HasPosition() && p.InCooldown(now) {
		return models.SignalCooldown
	}

	z, ok := p.ZScore(prices)
	if !ok {
		return models.SignalWait
	}
	absZ := math.Abs(z)

	if p.HasPosition() {
		switch {
		case absZ > p.params.StopZ:
			return models.SignalStopLoss
		case absZ <= p.params.ExitZ:
			return models.SignalClose
		default:
			return models.SignalHold
		}
	}

	if absZ >= p.params.EntryZMin && absZ <= p.params.EntryZMax {
		if z < 0 {
			return models.SignalLongSpread
		}
		return models.SignalShortSpread
	}
	return models.SignalHold
}

// ============ Намерения ============

// GetOpenIntent рассчитывает намерение открытия на выделенный капитал
//
// Решается система: стоимость ног с учётом маржи = capital и q2/q1 = beta.
// Для LONG_SPREAD leg1 длинная, leg2 короткая, для SHORT_SPREAD наоборот:
//
//	q1 = capital / (p1*m1 + beta*p2*m2), q2 = beta*q1
//
// Возвращает nil, если сигнал не входной, пара не во FLAT, beta <= 0 или
// после округления до лота одна из ног нулевая.
func (p *Pair) GetOpenIntent(capital float64, prices map[string]float64, now time.Time) *models.OpenIntent {
	if capital <= 0 || p.phase != models.PhaseFlat || p.HasPosition() || p.anomalous {
		return nil
	}
	signal := p.GetSignal(prices, now)
	if !signal.IsEntry() {
		return nil
	}
	if p.beta <= 0 {
		p.logger.Debug("non-positive hedge ratio, entry skipped", zap.Float64("beta", p.beta))
		return nil
	}

	p1, p2 := prices[p.symbol1], prices[p.symbol2]
	m1, m2 := p.params.LongMargin, p.params.ShortMargin
	if signal == models.SignalShortSpread {
		m1, m2 = m2, m1
	}
	if m1 <= 0 {
		m1 = 1
	}
	if m2 <= 0 {
		m2 = 1
	}

	q1 := capital / (p1*m1 + p.beta*p2*m2)
	q2 := p.beta * q1
	q1 = utils.RoundToLotSize(q1, p.params.LotSize)
	q2 = utils.RoundToLotSize(q2, p.params.LotSize)
	if q1 <= 0 || q2 <= 0 {
		p.logger.Debug("allocation below one lot, entry skipped",
			zap.Float64("capital", capital),
			zap.Float64("q1", q1),
			zap.Float64("q2", q2))
		return nil
	}

	dir := signal.Direction()
	intent := models.NewOpenIntent(p.id,
		models.OrderLeg{Symbol: p.symbol1, Quantity: dir * q1},
		models.OrderLeg{Symbol: p.symbol2, Quantity: -dir * q2},
		signal)
	return &intent
}

// GetCloseIntent строит намерение закрытия из собственных количеств пары
func (p *Pair) GetCloseIntent(reason string) *models.CloseIntent {
	if !p.HasPosition() {
		return nil
	}
	intent := models.NewCloseIntent(p.id,
		models.OrderLeg{Symbol: p.symbol1, Quantity: -p.qty1},
		models.OrderLeg{Symbol: p.symbol2, Quantity: -p.qty2},
		reason)
	return &intent
}

// GetResidualCloseIntent закрывает отслеживаемую позицию плюс неучтённую
// экспозицию (например, исполненную ногу аномальной пары)
func (p *Pair) GetResidualCloseIntent(reason string, extra1, extra2 float64) *models.CloseIntent {
	exp1, exp2 := p.qty1+extra1, p.qty2+extra2
	if exp1 == 0 && exp2 == 0 {
		return nil
	}
	intent := models.NewCloseIntent(p.id,
		models.OrderLeg{Symbol: p.symbol1, Quantity: -exp1},
		models.OrderLeg{Symbol: p.symbol2, Quantity: -exp2},
		reason)
	return &intent
}

// ============ Жизненный цикл позиции ============

// MarkSubmitted переводит пару в PENDING_OPEN / PENDING_CLOSE после регистрации ордеров
func (p *Pair) MarkSubmitted(action models.IntentAction) error {
	to := models.PhasePendingOpen
	if action == models.ActionClose {
		to = models.PhasePendingClose
	}
	if !CanTransition(p.phase, to) {
		return fmt.Errorf("pair %s: invalid transition %s -> %s", p.id, p.phase, to)
	}
	p.phase = to
	return nil
}

// legFill - агрегированное исполнение по символу
type legFill struct {
	qty   float64
	price float64
}

func aggregateFills(handles []*models.OrderTicket) map[string]legFill {
	out := make(map[string]legFill, len(handles))
	for _, h := range handles {
		if h == nil || h.FilledQty == 0 {
			continue
		}
		f := out[h.Symbol]
		notional := math.Abs(f.qty)*f.price + math.Abs(h.FilledQty)*h.AvgFillPrice
		f.qty += h.FilledQty
		f.price = utils.SafeDiv(notional, math.Abs(f.qty))
		out[h.Symbol] = f
	}
	return out
}

// OnPositionFilled - callback завершённого исполнения обеих ног
//
// Открытие: фиксирует количества, цены и время входа, сбрасывает HWM.
// Закрытие: считает реализованный PnL, очищает позицию и взводит cooldown
// (cooldownUntil только растёт). Возвращает реализованный PnL закрытия.
func (p *Pair) OnPositionFilled(action models.IntentAction, reason string, fillTime time.Time, handles []*models.OrderTicket) float64 {
	fills := aggregateFills(handles)

	if action == models.ActionOpen {
		f1, f2 := fills[p.symbol1], fills[p.symbol2]
		p.qty1, p.qty2 = f1.qty, f2.qty
		p.entry1, p.entry2 = f1.price, f2.price
		p.entryTime = fillTime
		p.entryNotional = math.Abs(p.qty1)*p.entry1 + math.Abs(p.qty2)*p.entry2
		p.hwm = 0
		p.anomalous = false
		p.setPhase(models.PhaseOpen)

		p.logger.Info("position opened",
			zap.String("signal", reason),
			zap.Float64("qty1", p.qty1),
			zap.Float64("qty2", p.qty2),
			zap.Float64("entry1", p.entry1),
			zap.Float64("entry2", p.entry2))
		return 0
	}

	var pnl float64
	if f, ok := fills[p.symbol1]; ok && p.qty1 != 0 {
		pnl += p.qty1 * (f.price - p.entry1)
	}
	if f, ok := fills[p.symbol2]; ok && p.qty2 != 0 {
		pnl += p.qty2 * (f.price - p.entry2)
	}

	p.realizedPnl += pnl
	p.qty1, p.qty2 = 0, 0
	p.entry1, p.entry2 = 0, 0
	p.entryTime = time.Time{}
	p.entryNotional = 0
	p.hwm = 0
	p.anomalous = false
	p.setPhase(models.PhaseFlat)

	until := fillTime.Add(p.cooldown.For(reason, pnl))
	if until.After(p.cooldownUntil) {
		p.cooldownUntil = until
	}

	p.logger.Info("position closed",
		zap.String("reason", reason),
		zap.Float64("pnl", pnl),
		zap.Time("cooldown_until", p.cooldownUntil))
	return pnl
}

// OnPositionAnomaly - одна нога не исполнена или исполнение противоречиво
//
// Пара переходит во FLAT с флагом аномалии. Отслеживаемые количества не
// меняются, cooldown не взводится: остаточная экспозиция закрывается
// правилом position_anomaly.
func (p *Pair) OnPositionAnomaly(handles []*models.OrderTicket) {
	p.anomalous = true
	p.setPhase(models.PhaseFlat)

	fields := []zap.Field{zap.String("phase", string(p.phase))}
	for _, h := range handles {
		fields = append(fields, zap.String(h.Symbol, fmt.Sprintf("%s filled=%g", h.Status, h.FilledQty)))
	}
	p.logger.Warn("anomalous execution, pair flagged", fields...)
}

// ClearAnomaly снимает флаг аномалии, когда остаточной экспозиции нет
func (p *Pair) ClearAnomaly() {
	if !p.anomalous {
		return
	}
	p.anomalous = false
	p.logger.Info("anomaly cleared without residual exposure")
}

func (p *Pair) setPhase(to models.PositionPhase) {
	if p.phase == to {
		return
	}
	if !CanTransition(p.phase, to) {
		p.logger.Warn("unexpected phase transition",
			zap.String("from", string(p.phase)),
			zap.String("to", string(to)))
	}
	p.phase = to
}

// UpdateParams обновляет параметры модели из свежего анализа
//
// Только без позиции: при открытой позиции (или незакрытой аномалии, или
// ордерах в полёте) возвращает false и ничего не меняет.
func (p *Pair) UpdateParams(rec models.AnalysisRecord) bool {
	if p.HasPosition() || p.anomalous || p.phase != models.PhaseFlat {
		return false
	}
	p.applyParams(rec)
	return true
}

// ============ PnL ============

// GetPairPnL - нереализованный PnL позиции пары: Σ q_i * (p_i - entry_i)
//
// Нога без текущей цены в сумму не входит.
func (p *Pair) GetPairPnL(prices map[string]float64) float64 {
	var pnl float64
	if px := prices[p.symbol1]; px > 0 && p.qty1 != 0 {
		pnl += p.qty1 * (px - p.entry1)
	}
	if px := prices[p.symbol2]; px > 0 && p.qty2 != 0 {
		pnl += p.qty2 * (px - p.entry2)
	}
	return pnl
}

// GetPairDrawdown - просадка PnL от HWM в долях стоимости входа
//
// Единственный побочный эффект - обновление HWM.
func (p *Pair) GetPairDrawdown(prices map[string]float64) float64 {
	if !p.HasPosition() {
		return 0
	}
	pnl := p.GetPairPnL(prices)
	if pnl > p.hwm {
		p.hwm = pnl
	}
	if p.entryNotional <= 0 {
		return 0
	}
	return (p.hwm - pnl) / p.entryNotional
}

// Snapshot возвращает снимок состояния для диагностики
func (p *Pair) Snapshot(prices map[string]float64) models.PairRuntime {
	rt := models.PairRuntime{
		PairID:        p.id,
		State:         p.state,
		Phase:         p.phase,
		Sector:        p.sector,
		QualityScore:  p.quality,
		HedgeRatio:    p.beta,
		UnrealizedPnl: p.GetPairPnL(prices),
		RealizedPnl:   p.realizedPnl,
		CooldownUntil: p.cooldownUntil,
		Anomalous:     p.anomalous,
		EntryTime:     p.entryTime,
	}
	if p.HasPosition() {
		rt.Legs = []models.Leg{
			{Symbol: p.symbol1, Quantity: p.qty1, EntryPrice: p.entry1},
			{Symbol: p.symbol2, Quantity: p.qty2, EntryPrice: p.entry2},
		}
	}
	return rt
}
