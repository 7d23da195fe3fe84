package bot

import (
	"fmt"
	"time"
)

// Имена встроенных правил (используются как причина закрытия)
const (
	RuleAccountBlowup     = "ACCOUNT_BLOWUP"
	RuleExcessiveDrawdown = "EXCESSIVE_DRAWDOWN"
	RuleMarketVolatility  = "MARKET_VOLATILITY"
	RulePositionAnomaly   = "POSITION_ANOMALY"
	RulePairDrawdown      = "PAIR_DRAWDOWN"
	RuleHoldingTimeout    = "HOLDING_TIMEOUT"
)

// RuleConfig - общие параметры правила
type RuleConfig struct {
	Enabled  bool
	Priority int
	Cooldown time.Duration
}

// baseRule - имя, приоритет и флаг включения
type baseRule struct {
	name string
	cfg  RuleConfig
}

func (b baseRule) Name() string  { return b.name }
func (b baseRule) Priority() int { return b.cfg.Priority }
func (b baseRule) Enabled() bool { return b.cfg.Enabled }

// portfolioCooldown - одна метка cooldown на правило
type portfolioCooldown struct {
	until time.Time
}

func (c *portfolioCooldown) activate(now time.Time, d time.Duration) {
	if until := now.Add(d); until.After(c.until) {
		c.until = until
	}
}

func (c *portfolioCooldown) active(now time.Time) bool {
	return now.Before(c.until)
}

// ============================================================
// Account blowup: equity ниже доли стартового капитала
// ============================================================

// AccountBlowupRule закрывает все позиции при потере капитала
type AccountBlowupRule struct {
	baseRule
	cooldown portfolioCooldown
	fraction float64
}

// NewAccountBlowupRule создаёт правило; fraction - доля стартового капитала
func NewAccountBlowupRule(cfg RuleConfig, fraction float64) *AccountBlowupRule {
	return &AccountBlowupRule{baseRule: baseRule{name: RuleAccountBlowup, cfg: cfg}, fraction: fraction}
}

func (r *AccountBlowupRule) Action() RuleAction { return RuleActionCloseAll }

func (r *AccountBlowupRule) Check(rc RiskContext) (bool, string) {
	if !r.Enabled() || r.IsInCooldown(rc) {
		return false, ""
	}
	limit := r.fraction * rc.Portfolio.StartingCapital
	if rc.Portfolio.Equity < limit {
		return true, fmt.Sprintf("equity %.2f below %.0f%% of starting capital (%.2f)",
			rc.Portfolio.Equity, r.fraction*100, limit)
	}
	return false, ""
}

func (r *AccountBlowupRule) ActivateCooldown(rc RiskContext) {
	r.cooldown.activate(rc.Now, r.cfg.Cooldown)
}

func (r *AccountBlowupRule) IsInCooldown(rc RiskContext) bool {
	return r.cooldown.active(rc.Now)
}

// ============================================================
// Excessive drawdown: equity ниже HWM на порог
// ============================================================

// ExcessiveDrawdownRule закрывает все позиции при просадке портфеля
type ExcessiveDrawdownRule struct {
	baseRule
	cooldown    portfolioCooldown
	maxDrawdown float64
}

// NewExcessiveDrawdownRule создаёт правило; maxDrawdown - доля от HWM
func NewExcessiveDrawdownRule(cfg RuleConfig, maxDrawdown float64) *ExcessiveDrawdownRule {
	return &ExcessiveDrawdownRule{baseRule: baseRule{name: RuleExcessiveDrawdown, cfg: cfg}, maxDrawdown: maxDrawdown}
}

func (r *ExcessiveDrawdownRule) Action() RuleAction { return RuleActionCloseAll }

func (r *ExcessiveDrawdownRule) Check(rc RiskContext) (bool, string) {
	if !r.Enabled() || r.IsInCooldown(rc) {
		return false, ""
	}
	if dd := rc.Portfolio.Drawdown(); dd >= r.maxDrawdown {
		return true, fmt.Sprintf("drawdown %.2f%% from high-water mark %.2f exceeds %.2f%%",
			dd*100, rc.Portfolio.HighWaterMark, r.maxDrawdown*100)
	}
	return false, ""
}

func (r *ExcessiveDrawdownRule) ActivateCooldown(rc RiskContext) {
	r.cooldown.activate(rc.Now, r.cfg.Cooldown)
}

func (r *ExcessiveDrawdownRule) IsInCooldown(rc RiskContext) bool {
	return r.cooldown.active(rc.Now)
}

// ============================================================
// Market volatility: блокирует новые входы
// ============================================================

// MarketVolatilityRule запрещает открытия при высокой волатильности
//
// Источник - внешняя оценка из цикла, если она есть, иначе реализованная
// волатильность equity (после заполнения окна).
type MarketVolatilityRule struct {
	baseRule
	cooldown  portfolioCooldown
	threshold float64
}

// NewMarketVolatilityRule создаёт правило
func NewMarketVolatilityRule(cfg RuleConfig, threshold float64) *MarketVolatilityRule {
	return &MarketVolatilityRule{baseRule: baseRule{name: RuleMarketVolatility, cfg: cfg}, threshold: threshold}
}

func (r *MarketVolatilityRule) Action() RuleAction { return RuleActionBlockEntries }

func (r *MarketVolatilityRule) Check(rc RiskContext) (bool, string) {
	if !r.Enabled() || r.IsInCooldown(rc) {
		return false, ""
	}
	if v := rc.ExternalVolatility; v != nil {
		if *v > r.threshold {
			return true, fmt.Sprintf("external volatility %.4f above %.4f", *v, r.threshold)
		}
		return false, ""
	}
	if rc.Portfolio.VolatilityReady && rc.Portfolio.RealizedVolatility > r.threshold {
		return true, fmt.Sprintf("realized volatility %.4f above %.4f", rc.Portfolio.RealizedVolatility, r.threshold)
	}
	return false, ""
}

func (r *MarketVolatilityRule) ActivateCooldown(rc RiskContext) {
	r.cooldown.activate(rc.Now, r.cfg.Cooldown)
}

func (r *MarketVolatilityRule) IsInCooldown(rc RiskContext) bool {
	return r.cooldown.active(rc.Now)
}

var (
	_ RiskRule = (*AccountBlowupRule)(nil)
	_ RiskRule = (*ExcessiveDrawdownRule)(nil)
	_ RiskRule = (*MarketVolatilityRule)(nil)
)
