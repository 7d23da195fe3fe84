package bot

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"pairtrader/internal/models"
)

// RuleScope - область действия risk-правила
type RuleScope string

const (
	ScopePortfolio RuleScope = "portfolio"
	ScopePair      RuleScope = "pair"
)

// RuleAction - что делает сработавшее правило
type RuleAction string

const (
	RuleActionCloseAll     RuleAction = "close_all"     // закрыть позиции в своей области
	RuleActionBlockEntries RuleAction = "block_entries" // запретить новые открытия
)

// RiskContext - данные цикла для проверки правил
//
// Правила не хранят ссылок на менеджеры: всё нужное передаётся здесь.
type RiskContext struct {
	Now                time.Time
	Prices             map[string]float64
	Portfolio          PortfolioSnapshot
	ExternalVolatility *float64
	Tickets            *TicketsManager

	// Pair заполняется только для правил пар
	Pair *Pair
}

// ForPair возвращает копию контекста для проверки пары
func (rc RiskContext) ForPair(p *Pair) RiskContext {
	rc.Pair = p
	return rc
}

// RiskRule - единый контракт risk-правила
//
// Check сам возвращает (false, "") для выключенного правила или правила в
// cooldown. Cooldown портфельного правила - одна метка времени, правила
// пары - метка на каждую пару.
type RiskRule interface {
	Name() string
	Priority() int
	Enabled() bool
	Action() RuleAction
	Check(rc RiskContext) (triggered bool, reason string)
	ActivateCooldown(rc RiskContext)
	IsInCooldown(rc RiskContext) bool
}

// ResidualCloser - правило строит своё намерение закрытия
// (вместо закрытия отслеживаемой позиции пары)
type ResidualCloser interface {
	CloseIntent(rc RiskContext) *models.CloseIntent
}

// PortfolioDecision - итог проверки портфельных правил
type PortfolioDecision struct {
	Rule    RiskRule
	Reason  string
	Intents []models.CloseIntent
}

// PairDecision - итог проверки правил пары
type PairDecision struct {
	Rule   RiskRule
	Reason string
	// Intent == nil: правило сработало, но закрывать нечего
	Intent *models.CloseIntent
}

type pairTrigger struct {
	rule RiskRule
	rc   RiskContext
}

// RiskManager - приоритетный движок risk-правил
//
// В каждой области побеждает первое сработавшее правило по убыванию
// приоритета; правила ниже в этом цикле не проверяются.
type RiskManager struct {
	portfolioRules []RiskRule
	pairRules      []RiskRule

	// Какое правило закрыло пару в текущем цикле (для cooldown)
	triggered map[models.PairID]pairTrigger

	logger *zap.Logger
}

// NewRiskManager создаёт менеджер рисков
func NewRiskManager(logger *zap.Logger) *RiskManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskManager{
		triggered: make(map[models.PairID]pairTrigger),
		logger:    logger.With(zap.String("component", "risk")),
	}
}

func sortRules(rules []RiskRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority() > rules[j].Priority()
	})
}

// AddPortfolioRule регистрирует портфельное правило
func (rm *RiskManager) AddPortfolioRule(r RiskRule) {
	rm.portfolioRules = append(rm.portfolioRules, r)
	sortRules(rm.portfolioRules)
}

// AddPairRule регистрирует правило пары
func (rm *RiskManager) AddPairRule(r RiskRule) {
	rm.pairRules = append(rm.pairRules, r)
	sortRules(rm.pairRules)
}

// ============================================================
// Портфельные правила
// ============================================================

// CheckPortfolioRisks проверяет портфельные правила по приоритету
//
// Для правила CloseAll возвращаются намерения закрытия всех переданных
// пар с позицией. nil - ни одно правило не сработало.
func (rm *RiskManager) CheckPortfolioRisks(rc RiskContext, pairsWithPosition []*Pair) *PortfolioDecision {
	for _, r := range rm.portfolioRules {
		triggered, reason := r.Check(rc)
		if !triggered {
			continue
		}

		RecordRiskTrigger(string(ScopePortfolio), r.Name())
		rm.logger.Warn("portfolio risk rule triggered",
			zap.String("rule", r.Name()),
			zap.String("reason", reason),
			zap.String("action", string(r.Action())),
			zap.Float64("equity", rc.Portfolio.Equity))

		d := &PortfolioDecision{Rule: r, Reason: reason}
		if r.Action() == RuleActionCloseAll {
			for _, p := range pairsWithPosition {
				if intent := p.GetCloseIntent(r.Name()); intent != nil {
					d.Intents = append(d.Intents, *intent)
				}
			}
		}
		return d
	}
	return nil
}

// ActivateCooldownForPortfolio взводит cooldown портфельного правила
func (rm *RiskManager) ActivateCooldownForPortfolio(r RiskRule, rc RiskContext) {
	r.ActivateCooldown(rc)
	rm.logger.Info("portfolio rule cooldown activated", zap.String("rule", r.Name()))
}

// ActiveLiquidationCooldown возвращает CloseAll-правило, находящееся в cooldown
// (пока оно активно, открытые позиции зачищаются каждый цикл)
func (rm *RiskManager) ActiveLiquidationCooldown(rc RiskContext) RiskRule {
	for _, r := range rm.portfolioRules {
		if r.Enabled() && r.Action() == RuleActionCloseAll && r.IsInCooldown(rc) {
			return r
		}
	}
	return nil
}

// EntriesBlocked - есть BlockEntries-правило в cooldown
func (rm *RiskManager) EntriesBlocked(rc RiskContext) bool {
	for _, r := range rm.portfolioRules {
		if r.Enabled() && r.Action() == RuleActionBlockEntries && r.IsInCooldown(rc) {
			return true
		}
	}
	return false
}

// ============================================================
// Правила пар
// ============================================================

// CheckPairRisks проверяет правила пары (rc.Pair) по приоритету
//
// Победившее правило запоминается для ActivateCooldownForPairs.
func (rm *RiskManager) CheckPairRisks(rc RiskContext) *PairDecision {
	p := rc.Pair
	if p == nil {
		return nil
	}

	for _, r := range rm.pairRules {
		triggered, reason := r.Check(rc)
		if !triggered {
			continue
		}

		RecordRiskTrigger(string(ScopePair), r.Name())
		rm.logger.Warn("pair risk rule triggered",
			zap.String("pair", p.ID().String()),
			zap.String("rule", r.Name()),
			zap.String("reason", reason))

		var intent *models.CloseIntent
		if closer, ok := r.(ResidualCloser); ok {
			intent = closer.CloseIntent(rc)
		} else {
			intent = p.GetCloseIntent(r.Name())
		}

		rm.triggered[p.ID()] = pairTrigger{rule: r, rc: rc}
		return &PairDecision{Rule: r, Reason: reason, Intent: intent}
	}
	return nil
}

// ActivateCooldownForPairs взводит cooldown только тем правилам, которые
// закрыли указанные пары в этом цикле. Остальные записи цикла сбрасываются.
func (rm *RiskManager) ActivateCooldownForPairs(ids []models.PairID) {
	for _, id := range ids {
		t, ok := rm.triggered[id]
		if !ok {
			continue
		}
		t.rule.ActivateCooldown(t.rc)
		rm.logger.Debug("pair rule cooldown activated",
			zap.String("pair", id.String()),
			zap.String("rule", t.rule.Name()))
	}
	rm.triggered = make(map[models.PairID]pairTrigger)
}

// IsPairBlocked - какое-либо правило пары в cooldown для этой пары
// (пара не открывается заново, пока правило подавлено)
func (rm *RiskManager) IsPairBlocked(p *Pair, now time.Time) bool {
	rc := RiskContext{Now: now, Pair: p}
	for _, r := range rm.pairRules {
		if r.Enabled() && r.IsInCooldown(rc) {
			return true
		}
	}
	return false
}
