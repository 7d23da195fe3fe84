package models

import "strings"

// PairID - идентификатор пары инструментов
//
// Формат: "SYMBOL1-SYMBOL2", порядок ног такой, каким его выдал этап анализа
// (leg1 регрессируется на leg2). Символ сам может содержать "-" (BRK-B),
// поэтому ID не разбирается обратно на ноги: символы берутся из записи
// анализа, а от дублей вида (A,B)/(B,A) защищает CanonicalKey.
type PairID string

// NewPairID создаёт идентификатор пары из двух символов
func NewPairID(symbol1, symbol2 string) PairID {
	return PairID(normalizeSymbol(symbol1) + "-" + normalizeSymbol(symbol2))
}

// ParsePairID нормализует внешний ID ("brk-b-spy" -> "BRK-B-SPY").
// ID на ноги не разбирается, проверяется только наличие разделителя
// не на краях строки.
func ParsePairID(raw string) (PairID, bool) {
	s := normalizeSymbol(raw)
	i := strings.Index(s, "-")
	if i <= 0 || strings.HasSuffix(s, "-") {
		return "", false
	}
	return PairID(s), true
}

func (id PairID) String() string {
	return string(id)
}

// CanonicalKey - ключ пары, не зависящий от порядка ног
func CanonicalKey(symbol1, symbol2 string) string {
	s1, s2 := normalizeSymbol(symbol1), normalizeSymbol(symbol2)
	if s2 < s1 {
		s1, s2 = s2, s1
	}
	return s1 + "|" + s2
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// PairState - классификация пары в текущем цикле
//
// Пересчитывается каждый цикл только из (seen-this-cycle, has-position),
// предыдущая классификация не учитывается.
type PairState string

const (
	PairStateCointegrated PairState = "COINTEGRATED" // прошла статистический тест в этом цикле
	PairStateLegacy       PairState = "LEGACY"       // не прошла, но держит позицию
	PairStateArchived     PairState = "ARCHIVED"     // не прошла и без позиции
)

// ClassifyPair - чистая функция классификации
func ClassifyPair(seenThisCycle, hasPosition bool) PairState {
	switch {
	case seenThisCycle:
		return PairStateCointegrated
	case hasPosition:
		return PairStateLegacy
	default:
		return PairStateArchived
	}
}

// Signal - торговый сигнал пары
type Signal string

const (
	SignalLongSpread  Signal = "LONG_SPREAD"  // z < 0: покупаем leg1, продаём leg2
	SignalShortSpread Signal = "SHORT_SPREAD" // z > 0: продаём leg1, покупаем leg2
	SignalClose       Signal = "CLOSE"        // спред вернулся в узкую полосу выхода
	SignalStopLoss    Signal = "STOP_LOSS"    // спред ушёл за аварийную полосу
	SignalWait        Signal = "WAIT"         // нет данных для расчёта (цены/параметры)
	SignalCooldown    Signal = "COOLDOWN"     // пара без позиции внутри окна cooldown
	SignalHold        Signal = "HOLD"         // ничего не делаем
)

// IsEntry возвращает true для сигналов открытия
func (s Signal) IsEntry() bool {
	return s == SignalLongSpread || s == SignalShortSpread
}

// IsExit возвращает true для сигналов закрытия
func (s Signal) IsExit() bool {
	return s == SignalClose || s == SignalStopLoss
}

// Direction возвращает знак позиции по leg1: +1 для LONG_SPREAD, -1 для SHORT_SPREAD
func (s Signal) Direction() float64 {
	switch s {
	case SignalLongSpread:
		return 1
	case SignalShortSpread:
		return -1
	default:
		return 0
	}
}

// PositionPhase - фаза жизненного цикла позиции пары (state machine)
type PositionPhase string

const (
	PhaseFlat         PositionPhase = "FLAT"
	PhasePendingOpen  PositionPhase = "PENDING_OPEN"
	PhaseOpen         PositionPhase = "OPEN"
	PhasePendingClose PositionPhase = "PENDING_CLOSE"
)
