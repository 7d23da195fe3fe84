package bot

import (
	"math"
	"time"

	"pairtrader/internal/models"
)

// Пара AAA/BBB с hedge ratio 2.0 и std спреда 0.1.
// При цене BBB = 1 спред равен ln(AAA), поэтому z = ln(AAA) / 0.1.
const (
	testSym1 = "AAA"
	testSym2 = "BBB"
	testStd  = 0.1
)

var testStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testRecord(sym1, sym2 string, quality float64) models.AnalysisRecord {
	return models.AnalysisRecord{
		Symbol1:      sym1,
		Symbol2:      sym2,
		HedgeRatio:   2.0,
		Intercept:    0,
		SpreadMean:   0,
		SpreadStd:    testStd,
		QualityScore: quality,
		Sector:       "tech",
	}
}

func testParams() TradingParams {
	return TradingParams{
		EntryZMin:   1.0,
		EntryZMax:   1.75,
		ExitZ:       0.25,
		StopZ:       3.0,
		LongMargin:  1.0,
		ShortMargin: 1.0,
		LotSize:     1.0,
	}
}

func testCooldown() CooldownPolicy {
	return CooldownPolicy{
		AfterProfit: time.Hour,
		AfterLoss:   2 * time.Hour,
		AfterStop:   4 * time.Hour,
	}
}

func newTestPair() *Pair {
	return NewPair(testRecord(testSym1, testSym2, 1), testParams(), testCooldown(), nil)
}

// pricesForZ возвращает цены, при которых z-score пары AAA/BBB равен z
func pricesForZ(z float64) map[string]float64 {
	return map[string]float64{
		testSym1: math.Exp(z * testStd),
		testSym2: 1,
	}
}

// pricesForZOn - то же для произвольной пары символов с теми же параметрами
func pricesForZOn(sym1, sym2 string, z float64) map[string]float64 {
	return map[string]float64{
		sym1: math.Exp(z * testStd),
		sym2: 1,
	}
}

// filledHandles возвращает исполненные handle'ы для ног намерения
func filledHandles(intent models.Intent, prices map[string]float64, at time.Time) []*models.OrderTicket {
	var out []*models.OrderTicket
	for i, leg := range intent.Legs() {
		out = append(out, &models.OrderTicket{
			OrderID:      intent.Tag() + "-" + string(rune('a'+i)),
			Symbol:       leg.Symbol,
			Quantity:     leg.Quantity,
			FilledQty:    leg.Quantity,
			AvgFillPrice: prices[leg.Symbol],
			Status:       models.OrderStatusFilled,
			FillTime:     at,
		})
	}
	return out
}

// openPair открывает позицию пары напрямую через callback'и
func openPair(p *Pair, z float64, at time.Time) map[string]float64 {
	prices := pricesForZ(z)
	intent := p.GetOpenIntent(10000, prices, at)
	if intent == nil {
		panic("no open intent")
	}
	if err := p.MarkSubmitted(models.ActionOpen); err != nil {
		panic(err)
	}
	p.OnPositionFilled(models.ActionOpen, string(intent.Signal), at, filledHandles(*intent, prices, at))
	return prices
}

// submittedHandles - handle'ы ног в статусе submitted
func submittedHandles(ids ...string) []*models.OrderTicket {
	syms := []string{testSym1, testSym2}
	var out []*models.OrderTicket
	for i, id := range ids {
		qty := 10.0
		if i%2 == 1 {
			qty = -20
		}
		out = append(out, &models.OrderTicket{
			OrderID:  id,
			Symbol:   syms[i%2],
			Quantity: qty,
			Status:   models.OrderStatusSubmitted,
		})
	}
	return out
}

// recordingHandler запоминает callback'и TicketsManager
type recordingHandler struct {
	filled    []models.PairID
	fillTimes []time.Time
	anomalies []models.PairID
}

func (h *recordingHandler) OnPositionFilled(id models.PairID, _ models.IntentAction, _ string, fillTime time.Time, _ []*models.OrderTicket) {
	h.filled = append(h.filled, id)
	h.fillTimes = append(h.fillTimes, fillTime)
}

func (h *recordingHandler) OnPositionAnomaly(id models.PairID, _ models.IntentAction, _ []*models.OrderTicket) {
	h.anomalies = append(h.anomalies, id)
}
