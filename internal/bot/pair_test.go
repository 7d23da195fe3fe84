package bot

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairtrader/internal/models"
)

func TestPair_ZScore(t *testing.T) {
	p := newTestPair()

	z, ok := p.ZScore(pricesForZ(1.2))
	require.True(t, ok)
	assert.InDelta(t, 1.2, z, 1e-9)

	_, ok = p.ZScore(map[string]float64{testSym1: 1})
	assert.False(t, ok, "нет цены второй ноги")

	_, ok = p.ZScore(map[string]float64{testSym1: -1, testSym2: 1})
	assert.False(t, ok, "неположительная цена")
}

func TestPair_GetSignal(t *testing.T) {
	tests := []struct {
		name string
		z    float64
		want models.Signal
	}{
		{"inside band, positive", 1.2, models.SignalShortSpread},
		{"inside band, negative", -1.2, models.SignalLongSpread},
		{"near lower edge", 1.01, models.SignalShortSpread},
		{"near upper edge", -1.74, models.SignalLongSpread},
		{"below band", 0.5, models.SignalHold},
		{"above band", 2.5, models.SignalHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPair()
			if got := p.GetSignal(pricesForZ(tt.z), testStart); got != tt.want {
				t.Errorf("GetSignal(z=%v) = %s, want %s", tt.z, got, tt.want)
			}
		})
	}
}

func TestPair_GetSignal_MissingPrice(t *testing.T) {
	p := newTestPair()
	assert.Equal(t, models.SignalWait, p.GetSignal(map[string]float64{testSym1: 1.1}, testStart))
}

// Символ с дефисом не должен ломать разбор ног
func TestPair_HyphenatedSymbol(t *testing.T) {
	p := NewPair(testRecord("BRK-B", "SPY", 1), testParams(), testCooldown(), nil)

	s1, s2 := p.Symbols()
	assert.Equal(t, "BRK-B", s1)
	assert.Equal(t, "SPY", s2)
	assert.Equal(t, models.PairID("BRK-B-SPY"), p.ID())

	z, ok := p.ZScore(pricesForZOn("BRK-B", "SPY", 1.2))
	require.True(t, ok)
	assert.InDelta(t, 1.2, z, 1e-9)
	assert.Equal(t, models.SignalShortSpread, p.GetSignal(pricesForZOn("BRK-B", "SPY", 1.2), testStart))
}

func TestAggregateFills(t *testing.T) {
	fills := aggregateFills([]*models.OrderTicket{
		{Symbol: testSym1, FilledQty: -10, AvgFillPrice: 2},
		{Symbol: testSym1, FilledQty: -30, AvgFillPrice: 4},
		{Symbol: testSym2, FilledQty: 5, AvgFillPrice: 1},
		{Symbol: testSym2, FilledQty: -5, AvgFillPrice: 1},
		{Symbol: "CCC", FilledQty: 0, AvgFillPrice: 9},
		nil,
	})

	assert.Equal(t, -40.0, fills[testSym1].qty)
	assert.InDelta(t, 3.5, fills[testSym1].price, 1e-12, "средняя по объёму")
	assert.Zero(t, fills[testSym2].qty)
	assert.Zero(t, fills[testSym2].price, "нетто-ноль без деления на ноль")
	_, ok := fills["CCC"]
	assert.False(t, ok)
}

// Сценарий: z 0.5 → 1.2 даёт входной сигнал, после исполнения z=0.2 даёт CLOSE
func TestPair_SignalScenario(t *testing.T) {
	p := newTestPair()

	assert.Equal(t, models.SignalHold, p.GetSignal(pricesForZ(0.5), testStart))
	assert.Equal(t, models.SignalShortSpread, p.GetSignal(pricesForZ(1.2), testStart))

	openPair(p, 1.2, testStart)
	require.True(t, p.HasPosition())
	assert.Equal(t, models.PhaseOpen, p.Phase())

	assert.Equal(t, models.SignalHold, p.GetSignal(pricesForZ(0.8), testStart))
	assert.Equal(t, models.SignalClose, p.GetSignal(pricesForZ(0.2), testStart))
	assert.Equal(t, models.SignalStopLoss, p.GetSignal(pricesForZ(3.5), testStart))
}

func TestPair_GetOpenIntent_Sizing(t *testing.T) {
	p := newTestPair()
	prices := pricesForZ(1.2)

	intent := p.GetOpenIntent(10000, prices, testStart)
	require.NotNil(t, intent)

	assert.Equal(t, models.SignalShortSpread, intent.Signal)
	assert.Equal(t, testSym1, intent.Leg1.Symbol)
	assert.Equal(t, testSym2, intent.Leg2.Symbol)

	// SHORT_SPREAD: leg1 продаём, leg2 покупаем
	assert.Less(t, intent.Leg1.Quantity, 0.0)
	assert.Greater(t, intent.Leg2.Quantity, 0.0)

	q1, q2 := math.Abs(intent.Leg1.Quantity), math.Abs(intent.Leg2.Quantity)
	assert.Equal(t, math.Floor(q1), q1, "количество кратно лоту")
	assert.Equal(t, math.Floor(q2), q2, "количество кратно лоту")
	assert.InDelta(t, 2.0, q2/q1, 0.01, "отношение ног равно hedge ratio")

	cost := q1*prices[testSym1] + q2*prices[testSym2]
	assert.LessOrEqual(t, cost, 10000.0)
	assert.Greater(t, cost, 9990.0)

	assert.Equal(t, "OPEN_SHORT_SPREAD_AAA-BBB", intent.Tag())
}

func TestPair_GetOpenIntent_MarginAsymmetry(t *testing.T) {
	params := testParams()
	params.ShortMargin = 2.0
	p := NewPair(testRecord(testSym1, testSym2, 1), params, testCooldown(), nil)
	prices := pricesForZ(-1.2)

	intent := p.GetOpenIntent(10000, prices, testStart)
	require.NotNil(t, intent)
	assert.Equal(t, models.SignalLongSpread, intent.Signal)

	// LONG_SPREAD: leg1 длинная (маржа 1), leg2 короткая (маржа 2)
	q1, q2 := intent.Leg1.Quantity, -intent.Leg2.Quantity
	capital := q1*prices[testSym1]*1.0 + q2*prices[testSym2]*2.0
	assert.LessOrEqual(t, capital, 10000.0)
	assert.Greater(t, capital, 9990.0)
}

func TestPair_GetOpenIntent_Nil(t *testing.T) {
	t.Run("no entry signal", func(t *testing.T) {
		assert.Nil(t, newTestPair().GetOpenIntent(10000, pricesForZ(0.5), testStart))
	})
	t.Run("allocation below one lot", func(t *testing.T) {
		assert.Nil(t, newTestPair().GetOpenIntent(1, pricesForZ(1.2), testStart))
	})
	t.Run("non-positive hedge ratio", func(t *testing.T) {
		rec := testRecord(testSym1, testSym2, 1)
		rec.HedgeRatio = -0.5
		p := NewPair(rec, testParams(), testCooldown(), nil)
		assert.Nil(t, p.GetOpenIntent(10000, pricesForZ(1.2), testStart))
	})
	t.Run("already pending", func(t *testing.T) {
		p := newTestPair()
		require.NoError(t, p.MarkSubmitted(models.ActionOpen))
		assert.Nil(t, p.GetOpenIntent(10000, pricesForZ(1.2), testStart))
	})
}

func TestPair_GetCloseIntent(t *testing.T) {
	p := newTestPair()
	assert.Nil(t, p.GetCloseIntent(models.ReasonClose), "нечего закрывать")

	openPair(p, 1.2, testStart)
	q1, q2 := p.Quantities()

	intent := p.GetCloseIntent(models.ReasonClose)
	require.NotNil(t, intent)
	assert.Equal(t, -q1, intent.Leg1.Quantity)
	assert.Equal(t, -q2, intent.Leg2.Quantity)
	assert.Equal(t, "CLOSE_CLOSE_AAA-BBB", intent.Tag())
}

func TestPair_GetResidualCloseIntent(t *testing.T) {
	p := newTestPair()
	assert.Nil(t, p.GetResidualCloseIntent(RulePositionAnomaly, 0, 0))

	intent := p.GetResidualCloseIntent(RulePositionAnomaly, 5, 0)
	require.NotNil(t, intent)
	assert.Equal(t, -5.0, intent.Leg1.Quantity)
	assert.Equal(t, 0.0, intent.Leg2.Quantity)
	assert.Equal(t, RulePositionAnomaly, intent.Reason)
}

// Открытие и закрытие по одинаковым ценам даёт нулевой PnL и чистое состояние
func TestPair_RoundTripZeroPnl(t *testing.T) {
	p := newTestPair()
	prices := openPair(p, 1.2, testStart)

	assert.InDelta(t, 0, p.GetPairPnL(prices), 1e-9)

	intent := p.GetCloseIntent(models.ReasonClose)
	require.NotNil(t, intent)
	require.NoError(t, p.MarkSubmitted(models.ActionClose))
	closeAt := testStart.Add(time.Hour)
	pnl := p.OnPositionFilled(models.ActionClose, models.ReasonClose, closeAt, filledHandles(*intent, prices, closeAt))

	assert.InDelta(t, 0, pnl, 1e-9)
	assert.False(t, p.HasPosition())
	q1, q2 := p.Quantities()
	assert.Zero(t, q1)
	assert.Zero(t, q2)
	assert.True(t, p.EntryTime().IsZero())
	assert.Equal(t, models.PhaseFlat, p.Phase())

	// PnL >= 0 → cooldown после прибыли
	assert.Equal(t, closeAt.Add(time.Hour), p.CooldownUntil())
	assert.Equal(t, models.SignalCooldown, p.GetSignal(pricesForZ(1.2), closeAt.Add(30*time.Minute)))
	assert.Equal(t, models.SignalShortSpread, p.GetSignal(pricesForZ(1.2), closeAt.Add(2*time.Hour)))
}

func TestPair_ClosePnlAndCooldownByReason(t *testing.T) {
	p := newTestPair()
	openPair(p, 1.2, testStart)

	// Спред расширился: короткая leg1 дорожает → убыток
	exit := pricesForZ(3.5)
	intent := p.GetCloseIntent(models.ReasonStopLoss)
	require.NoError(t, p.MarkSubmitted(models.ActionClose))
	pnl := p.OnPositionFilled(models.ActionClose, models.ReasonStopLoss, testStart, filledHandles(*intent, exit, testStart))

	assert.Less(t, pnl, 0.0)
	assert.Equal(t, pnl, p.RealizedPnl())
	assert.Equal(t, testStart.Add(4*time.Hour), p.CooldownUntil(), "stop → AfterStop")
}

func TestPair_CooldownMonotonic(t *testing.T) {
	p := newTestPair()
	p.cooldownUntil = testStart.Add(10 * time.Hour)

	openPair(p, 1.2, testStart.Add(11*time.Hour))
	prices := pricesForZ(1.2)
	intent := p.GetCloseIntent(models.ReasonClose)
	require.NoError(t, p.MarkSubmitted(models.ActionClose))

	// Закрытие "в прошлом" не может сократить окно cooldown
	p.OnPositionFilled(models.ActionClose, models.ReasonClose, testStart, filledHandles(*intent, prices, testStart))
	assert.Equal(t, testStart.Add(10*time.Hour), p.CooldownUntil())
}

func TestCooldownPolicy_For(t *testing.T) {
	policy := CooldownPolicy{
		AfterProfit: time.Hour,
		AfterLoss:   2 * time.Hour,
		AfterStop:   3 * time.Hour,
		ByReason:    map[string]time.Duration{"holding_timeout": 5 * time.Hour},
	}

	tests := []struct {
		reason string
		pnl    float64
		want   time.Duration
	}{
		{models.ReasonClose, 10, time.Hour},
		{models.ReasonClose, 0, time.Hour},
		{models.ReasonClose, -1, 2 * time.Hour},
		{models.ReasonStopLoss, 10, 3 * time.Hour},
		{RuleHoldingTimeout, -1, 5 * time.Hour},
	}
	for _, tt := range tests {
		if got := policy.For(tt.reason, tt.pnl); got != tt.want {
			t.Errorf("For(%s, %v) = %v, want %v", tt.reason, tt.pnl, got, tt.want)
		}
	}
}

func TestPair_UpdateParams(t *testing.T) {
	p := newTestPair()
	rec := testRecord(testSym1, testSym2, 0.7)
	rec.HedgeRatio = 1.5

	require.True(t, p.UpdateParams(rec))
	assert.Equal(t, 1.5, p.HedgeRatio())
	assert.Equal(t, 0.7, p.QualityScore())

	p2 := newTestPair()
	openPair(p2, 1.2, testStart)
	assert.False(t, p2.UpdateParams(rec), "позиция открыта")
	assert.Equal(t, 2.0, p2.HedgeRatio(), "параметры не изменились")

	p3 := newTestPair()
	require.NoError(t, p3.MarkSubmitted(models.ActionOpen))
	assert.False(t, p3.UpdateParams(rec), "ордера в полёте")
}

func TestPair_MarkSubmitted_InvalidTransition(t *testing.T) {
	p := newTestPair()
	require.NoError(t, p.MarkSubmitted(models.ActionOpen))
	assert.Error(t, p.MarkSubmitted(models.ActionOpen))
	assert.Equal(t, models.PhasePendingOpen, p.Phase())
}

func TestPair_OnPositionAnomaly(t *testing.T) {
	p := newTestPair()
	require.NoError(t, p.MarkSubmitted(models.ActionOpen))

	handles := submittedHandles("o1", "o2")
	handles[0].Status = models.OrderStatusFilled
	handles[0].FilledQty = 10
	handles[1].Status = models.OrderStatusCanceled

	p.OnPositionAnomaly(handles)
	assert.True(t, p.IsAnomalous())
	assert.Equal(t, models.PhaseFlat, p.Phase())
	assert.False(t, p.HasPosition(), "количества пары не меняются")
	assert.True(t, p.CooldownUntil().IsZero(), "cooldown не взводится")

	p.ClearAnomaly()
	assert.False(t, p.IsAnomalous())
}

func TestPair_Drawdown(t *testing.T) {
	p := newTestPair()
	openPair(p, -1.2, testStart) // LONG_SPREAD: длинная leg1

	up := pricesForZ(-0.5)
	assert.Greater(t, p.GetPairPnL(up), 0.0)
	assert.Zero(t, p.GetPairDrawdown(up), "новый максимум")

	back := pricesForZ(-1.2)
	dd := p.GetPairDrawdown(back)
	assert.Greater(t, dd, 0.0)
	expected := p.GetPairPnL(up) / p.EntryNotional()
	assert.InDelta(t, expected, dd, 1e-9)
}

func TestPair_Snapshot(t *testing.T) {
	p := newTestPair()
	prices := openPair(p, 1.2, testStart)

	snap := p.Snapshot(prices)
	assert.Equal(t, models.PairID("AAA-BBB"), snap.PairID)
	assert.Equal(t, models.PhaseOpen, snap.Phase)
	require.Len(t, snap.Legs, 2)
	assert.Equal(t, testStart, snap.EntryTime)
}
