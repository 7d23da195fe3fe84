package bot

import (
	"fmt"
	"time"

	"pairtrader/internal/models"
)

// pairCooldown - метки cooldown правила по парам
type pairCooldown struct {
	until map[models.PairID]time.Time
}

func (c *pairCooldown) activate(id models.PairID, now time.Time, d time.Duration) {
	if c.until == nil {
		c.until = make(map[models.PairID]time.Time)
	}
	if until := now.Add(d); until.After(c.until[id]) {
		c.until[id] = until
	}
}

func (c *pairCooldown) active(id models.PairID, now time.Time) bool {
	return now.Before(c.until[id])
}

// Until возвращает метку cooldown пары (нулевое время - не взведён)
func (c *pairCooldown) Until(id models.PairID) time.Time {
	return c.until[id]
}

// ============================================================
// Position anomaly: частичное или противоречивое исполнение
// ============================================================

// PositionAnomalyRule закрывает остаточную экспозицию аномальной пары
//
// Срабатывает, если:
//   - ордера пары в статусе ANOMALY и все ноги уже в конечном статусе;
//   - отслеживается только одна нога;
//   - обе ноги в одном направлении.
type PositionAnomalyRule struct {
	baseRule
	cooldown pairCooldown
}

// NewPositionAnomalyRule создаёт правило
func NewPositionAnomalyRule(cfg RuleConfig) *PositionAnomalyRule {
	return &PositionAnomalyRule{baseRule: baseRule{name: RulePositionAnomaly, cfg: cfg}}
}

func (r *PositionAnomalyRule) Action() RuleAction { return RuleActionCloseAll }

func (r *PositionAnomalyRule) Check(rc RiskContext) (bool, string) {
	p := rc.Pair
	if p == nil || !r.Enabled() || r.IsInCooldown(rc) {
		return false, ""
	}

	if rc.Tickets != nil && rc.Tickets.IsAnomalous(p.ID()) {
		// Нога ещё в полёте: закрывать остаток рано, он не известен
		if !rc.Tickets.IsSettled(p.ID()) {
			return false, ""
		}
		return true, "order legs canceled or invalid"
	}
	if p.IsAnomalous() {
		return true, "pair flagged after anomalous execution"
	}

	q1, q2 := p.Quantities()
	switch {
	case (q1 == 0) != (q2 == 0):
		return true, fmt.Sprintf("single leg held: qty1=%g qty2=%g", q1, q2)
	case q1*q2 > 0:
		return true, fmt.Sprintf("legs in same direction: qty1=%g qty2=%g", q1, q2)
	}
	return false, ""
}

// CloseIntent закрывает отслеживаемую позицию плюс исполненные ноги
// аномальных ордеров, которые пара ещё не учла
func (r *PositionAnomalyRule) CloseIntent(rc RiskContext) *models.CloseIntent {
	p := rc.Pair
	var extra1, extra2 float64
	if rc.Tickets != nil && rc.Tickets.IsAnomalous(p.ID()) {
		filled := rc.Tickets.FilledQuantities(p.ID())
		s1, s2 := p.Symbols()
		extra1, extra2 = filled[s1], filled[s2]
	}
	return p.GetResidualCloseIntent(r.Name(), extra1, extra2)
}

func (r *PositionAnomalyRule) ActivateCooldown(rc RiskContext) {
	r.cooldown.activate(rc.Pair.ID(), rc.Now, r.cfg.Cooldown)
}

func (r *PositionAnomalyRule) IsInCooldown(rc RiskContext) bool {
	return rc.Pair != nil && r.cooldown.active(rc.Pair.ID(), rc.Now)
}

// ============================================================
// Pair drawdown: просадка PnL пары от её HWM
// ============================================================

// PairDrawdownRule закрывает пару при просадке от HWM
//
// Длительность cooldown зависит от результата пары на момент закрытия.
type PairDrawdownRule struct {
	baseRule
	cooldown     pairCooldown
	maxDrawdown  float64
	cooldownWin  time.Duration
	cooldownLoss time.Duration
}

// NewPairDrawdownRule создаёт правило; maxDrawdown - доля стоимости входа
func NewPairDrawdownRule(cfg RuleConfig, maxDrawdown float64, cooldownWin, cooldownLoss time.Duration) *PairDrawdownRule {
	return &PairDrawdownRule{
		baseRule:     baseRule{name: RulePairDrawdown, cfg: cfg},
		maxDrawdown:  maxDrawdown,
		cooldownWin:  cooldownWin,
		cooldownLoss: cooldownLoss,
	}
}

func (r *PairDrawdownRule) Action() RuleAction { return RuleActionCloseAll }

func (r *PairDrawdownRule) Check(rc RiskContext) (bool, string) {
	p := rc.Pair
	if p == nil || !r.Enabled() || r.IsInCooldown(rc) || !p.HasPosition() {
		return false, ""
	}
	if dd := p.GetPairDrawdown(rc.Prices); dd >= r.maxDrawdown {
		return true, fmt.Sprintf("pair drawdown %.2f%% exceeds %.2f%%", dd*100, r.maxDrawdown*100)
	}
	return false, ""
}

func (r *PairDrawdownRule) ActivateCooldown(rc RiskContext) {
	d := r.cooldownLoss
	if rc.Pair.GetPairPnL(rc.Prices) >= 0 {
		d = r.cooldownWin
	}
	r.cooldown.activate(rc.Pair.ID(), rc.Now, d)
}

func (r *PairDrawdownRule) IsInCooldown(rc RiskContext) bool {
	return rc.Pair != nil && r.cooldown.active(rc.Pair.ID(), rc.Now)
}

// ============================================================
// Holding timeout: позиция держится дольше максимума
// ============================================================

// HoldingTimeoutRule закрывает пару по возрасту позиции
//
// Возраст - длительность now - entryTime, а не число календарных дней.
type HoldingTimeoutRule struct {
	baseRule
	cooldown   pairCooldown
	maxHolding time.Duration
}

// NewHoldingTimeoutRule создаёт правило
func NewHoldingTimeoutRule(cfg RuleConfig, maxHolding time.Duration) *HoldingTimeoutRule {
	return &HoldingTimeoutRule{baseRule: baseRule{name: RuleHoldingTimeout, cfg: cfg}, maxHolding: maxHolding}
}

func (r *HoldingTimeoutRule) Action() RuleAction { return RuleActionCloseAll }

func (r *HoldingTimeoutRule) Check(rc RiskContext) (bool, string) {
	p := rc.Pair
	if p == nil || !r.Enabled() || r.IsInCooldown(rc) || !p.HasPosition() || p.EntryTime().IsZero() {
		return false, ""
	}
	if age := rc.Now.Sub(p.EntryTime()); age > r.maxHolding {
		return true, fmt.Sprintf("held %s, max %s", age.Round(time.Minute), r.maxHolding)
	}
	return false, ""
}

func (r *HoldingTimeoutRule) ActivateCooldown(rc RiskContext) {
	r.cooldown.activate(rc.Pair.ID(), rc.Now, r.cfg.Cooldown)
}

func (r *HoldingTimeoutRule) IsInCooldown(rc RiskContext) bool {
	return rc.Pair != nil && r.cooldown.active(rc.Pair.ID(), rc.Now)
}

var (
	_ RiskRule       = (*PositionAnomalyRule)(nil)
	_ ResidualCloser = (*PositionAnomalyRule)(nil)
	_ RiskRule       = (*PairDrawdownRule)(nil)
	_ RiskRule       = (*HoldingTimeoutRule)(nil)
)
