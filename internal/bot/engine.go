package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pairtrader/internal/config"
	"pairtrader/internal/models"
	"pairtrader/pkg/retry"
)

// TradeJournal - журнал завершённых операций по парам
type TradeJournal interface {
	Create(ctx context.Context, trade *models.TradeRecord) error
}

// Submitter отправляет намерение брокеру и возвращает handle'ы ног
type Submitter interface {
	Submit(ctx context.Context, intent models.Intent) ([]*models.OrderTicket, error)
}

// EngineDeps - зависимости ExecutionManager
type EngineDeps struct {
	Pairs     *PairsManager
	Tickets   *TicketsManager
	Risk      *RiskManager
	Executor  Submitter
	Portfolio *Portfolio
	Allocator Allocator

	// Journal и Board необязательны
	Journal TradeJournal
	Board   *StatusBoard

	// MinTicket - минимальная аллокация, при которой пара открывается
	MinTicket float64
	// JournalTimeout ограничивает запись одной операции в журнал (с повторами)
	JournalTimeout time.Duration

	Logger *zap.Logger
}

// ExecutionManager - оркестратор цикла
//
// Цикл выполняется целиком до начала следующего. Порядок стадий:
//  1. портфельные правила (CloseAll: закрыть всё, взвести cooldown, выход);
//  2. активный cooldown CloseAll-правила: зачистка позиций, выход;
//  3. правила пар;
//  4. обычные закрытия по сигналу;
//  5. открытия в пределах свободного капитала.
//
// Любая отправка проходит одну последовательность: IsPairLocked →
// Submit → MarkSubmitted → RegisterTickets. Поэтому у пары не бывает двух
// наборов ордеров в полёте.
type ExecutionManager struct {
	pairs     *PairsManager
	tickets   *TicketsManager
	risk      *RiskManager
	executor  Submitter
	portfolio *Portfolio
	allocator Allocator
	journal   TradeJournal
	board     *StatusBoard

	minTicket      float64
	journalTimeout time.Duration

	// Капитал, выделенный при открытии; освобождается после закрытия
	committed map[models.PairID]float64
	// Нереализованный PnL пар на последней переоценке портфеля
	marked map[models.PairID]float64

	lastReport *models.CycleReport

	logger *zap.Logger
}

// NewExecutionManager создаёт оркестратор и подписывает его на исполнения
func NewExecutionManager(deps EngineDeps) *ExecutionManager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	alloc := deps.Allocator
	if alloc == nil {
		alloc = NewQualityWeightedAllocator(1)
	}
	timeout := deps.JournalTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	em := &ExecutionManager{
		pairs:          deps.Pairs,
		tickets:        deps.Tickets,
		risk:           deps.Risk,
		executor:       deps.Executor,
		portfolio:      deps.Portfolio,
		allocator:      alloc,
		journal:        deps.Journal,
		board:          deps.Board,
		minTicket:      deps.MinTicket,
		journalTimeout: timeout,
		committed:      make(map[models.PairID]float64),
		marked:         make(map[models.PairID]float64),
		logger:         logger.With(zap.String("component", "engine")),
	}
	em.tickets.SetObserver(em)
	return em
}

// LastReport возвращает отчёт последнего цикла (nil до первого цикла)
func (em *ExecutionManager) LastReport() *models.CycleReport {
	return em.lastReport
}

// RunCycle выполняет один цикл
//
// Торговые ситуации (отказ брокера, блокировка пары, нехватка капитала)
// не являются ошибками: они логируются и учитываются в отчёте.
func (em *ExecutionManager) RunCycle(ctx context.Context, cycle *models.Cycle) *models.CycleReport {
	start := time.Now()
	now := cycle.Time
	prices := cycle.Prices
	report := models.NewCycleReport(now)

	defer func() {
		report.Equity = em.portfolio.Equity()
		em.lastReport = report
		em.publish(report, prices)
		CycleLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
		em.logger.Debug("cycle finished",
			zap.Time("time", now),
			zap.String("portfolio_rule", report.PortfolioRule),
			zap.Bool("sweep", report.Sweep),
			zap.Bool("entry_blocked", report.EntryBlocked),
			zap.Any("planned", report.Planned),
			zap.Any("executed", report.Executed))
	}()

	if cycle.Analysis != nil {
		em.pairs.UpdatePairs(cycle.Analysis)
	}
	em.markPortfolio(prices)

	rc := RiskContext{
		Now:                now,
		Prices:             prices,
		Portfolio:          em.portfolio.Snapshot(),
		ExternalVolatility: cycle.Volatility,
		Tickets:            em.tickets,
	}
	withPosition := em.pairs.GetPairsWithPosition()

	// ============ 1. Портфельные правила ============
	entriesBlocked := false
	if d := em.risk.CheckPortfolioRisks(rc, withPosition); d != nil {
		report.PortfolioRule = d.Rule.Name()
		if d.Rule.Action() == RuleActionCloseAll {
			covered := make(map[models.PairID]bool, len(d.Intents))
			for _, intent := range d.Intents {
				covered[intent.Pair()] = true
				em.submit(ctx, intent, models.StagePortfolioRisk, report)
			}
			// Аномальные пары без позиции: исполненная нога закрывается остатком
			for _, p := range em.liquidationTargets(withPosition) {
				if covered[p.ID()] {
					continue
				}
				if intent := em.residualIntent(p, d.Rule.Name()); intent != nil {
					em.submit(ctx, *intent, models.StagePortfolioRisk, report)
				}
			}
			// Cooldown взводится даже при неудачной отправке: торговля должна остановиться
			em.risk.ActivateCooldownForPortfolio(d.Rule, rc)
			return report
		}
		em.risk.ActivateCooldownForPortfolio(d.Rule, rc)
		entriesBlocked = true
	}

	// ============ 2. Зачистка во время cooldown ============
	if r := em.risk.ActiveLiquidationCooldown(rc); r != nil {
		report.Sweep = true
		em.sweep(ctx, withPosition, report)
		return report
	}

	// ============ 3. Правила пар ============
	handled := em.checkPairRisks(ctx, rc, withPosition, report)

	// ============ 4. Обычные закрытия ============
	for _, p := range withPosition {
		if handled[p.ID()] || !p.HasPosition() || p.IsAnomalous() {
			continue
		}
		var reason string
		switch p.GetSignal(prices, now) {
		case models.SignalClose:
			reason = models.ReasonClose
		case models.SignalStopLoss:
			reason = models.ReasonStopLoss
		default:
			continue
		}
		if intent := p.GetCloseIntent(reason); intent != nil {
			em.submit(ctx, *intent, models.StageClose, report)
		}
	}

	// ============ 5. Открытия ============
	if entriesBlocked || em.risk.EntriesBlocked(rc) {
		report.EntryBlocked = true
		EntriesBlocked.Inc()
		em.logger.Debug("entries blocked this cycle")
		return report
	}
	em.openPositions(ctx, now, prices, report)

	return report
}

// markPortfolio переоценивает портфель по нереализованному PnL пар
func (em *ExecutionManager) markPortfolio(prices map[string]float64) {
	var unrealized float64
	clear(em.marked)
	for _, p := range em.pairs.All() {
		if p.HasPosition() {
			pnl := p.GetPairPnL(prices)
			em.marked[p.ID()] = pnl
			unrealized += pnl
		}
	}
	em.portfolio.Mark(unrealized)
}

// liquidationTargets - пары с позицией плюс пары с аномальным набором ордеров
// (у них может быть исполненная нога при нулевой позиции пары)
func (em *ExecutionManager) liquidationTargets(withPosition []*Pair) []*Pair {
	seen := make(map[models.PairID]bool, len(withPosition))
	targets := append([]*Pair(nil), withPosition...)
	for _, p := range withPosition {
		seen[p.ID()] = true
	}
	for _, id := range em.tickets.GetAnomalyPairs() {
		if p, ok := em.pairs.Get(id); ok && !seen[id] {
			targets = append(targets, p)
		}
	}
	return targets
}

// sweep закрывает всё, что ещё открыто, пока действует cooldown CloseAll-правила
func (em *ExecutionManager) sweep(ctx context.Context, withPosition []*Pair, report *models.CycleReport) {
	for _, p := range em.liquidationTargets(withPosition) {
		intent := em.residualIntent(p, models.ReasonResidualSweep)
		if intent == nil {
			continue
		}
		em.submit(ctx, *intent, models.StageSweep, report)
	}
}

// residualIntent - закрытие позиции пары вместе с исполненными ногами
// аномального набора ордеров (если он уже завершён)
func (em *ExecutionManager) residualIntent(p *Pair, reason string) *models.CloseIntent {
	id := p.ID()
	if em.tickets.IsAnomalous(id) {
		if !em.tickets.IsSettled(id) {
			return nil
		}
		filled := em.tickets.FilledQuantities(id)
		s1, s2 := p.Symbols()
		return p.GetResidualCloseIntent(reason, filled[s1], filled[s2])
	}
	return p.GetCloseIntent(reason)
}

// checkPairRisks проверяет правила пар с позицией и пар с аномальными
// ордерами. Возвращает пары, по которым сработало правило.
func (em *ExecutionManager) checkPairRisks(ctx context.Context, rc RiskContext, withPosition []*Pair, report *models.CycleReport) map[models.PairID]bool {
	candidates := append([]*Pair(nil), withPosition...)
	seen := make(map[models.PairID]bool, len(withPosition))
	for _, p := range withPosition {
		seen[p.ID()] = true
	}
	for _, id := range em.tickets.GetAnomalyPairs() {
		if p, ok := em.pairs.Get(id); ok && !seen[id] {
			candidates = append(candidates, p)
			seen[id] = true
		}
	}
	// Пара могла получить флаг аномалии и потерять handle'ы
	for _, p := range em.pairs.All() {
		if p.IsAnomalous() && !seen[p.ID()] {
			candidates = append(candidates, p)
			seen[p.ID()] = true
		}
	}

	handled := make(map[models.PairID]bool)
	var executed []models.PairID
	for _, p := range candidates {
		id := p.ID()
		if em.tickets.IsPairLocked(id) {
			continue
		}
		d := em.risk.CheckPairRisks(rc.ForPair(p))
		if d == nil {
			continue
		}
		handled[id] = true

		if d.Intent == nil {
			// Аномалия без исполненных ног: закрывать нечего
			if em.tickets.IsAnomalous(id) || p.IsAnomalous() {
				em.tickets.Release(id)
				p.ClearAnomaly()
				delete(em.committed, id)
				em.pairs.Reclassify(id)
			}
			continue
		}
		if em.submit(ctx, *d.Intent, models.StagePairRisk, report) {
			executed = append(executed, id)
		}
	}

	em.risk.ActivateCooldownForPairs(executed)
	return handled
}

// openPositions распределяет свободный капитал между кандидатами на вход
func (em *ExecutionManager) openPositions(ctx context.Context, now time.Time, prices map[string]float64, report *models.CycleReport) {
	var candidates []*Pair
	for _, p := range em.pairs.GetSequencedEntryCandidates(prices, now) {
		if em.tickets.IsPairLocked(p.ID()) {
			continue
		}
		if em.risk.IsPairBlocked(p, now) {
			em.logger.Debug("entry skipped, pair rule in cooldown", zap.String("pair", p.ID().String()))
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return
	}

	equity := em.portfolio.Equity()
	available := em.availableCapital(equity)
	allocation := em.allocator.Allocate(candidates, available, equity)

	for _, p := range candidates {
		amount := allocation[p.ID()]
		if amount <= 0 || amount < em.minTicket {
			em.logger.Debug("allocation below minimum ticket, entry skipped",
				zap.String("pair", p.ID().String()),
				zap.Float64("allocation", amount),
				zap.Float64("min_ticket", em.minTicket))
			continue
		}
		intent := p.GetOpenIntent(amount, prices, now)
		if intent == nil {
			continue
		}
		if em.submit(ctx, *intent, models.StageOpen, report) {
			em.committed[p.ID()] = amount
		}
	}
}

// availableCapital - equity за вычетом капитала открытых и открывающихся пар
func (em *ExecutionManager) availableCapital(equity float64) float64 {
	available := equity
	for _, amount := range em.committed {
		available -= amount
	}
	if available < 0 {
		return 0
	}
	return available
}

// submit - единственный путь отправки намерения брокеру
func (em *ExecutionManager) submit(ctx context.Context, intent models.Intent, stage string, report *models.CycleReport) bool {
	id := intent.Pair()
	record := func(executed bool) bool {
		report.Record(stage, executed)
		RecordStage(stage, executed)
		return executed
	}

	p, ok := em.pairs.Get(id)
	if !ok {
		em.logger.Warn("intent for untracked pair dropped", zap.String("pair", id.String()))
		return record(false)
	}
	if em.tickets.IsPairLocked(id) {
		Submissions.WithLabelValues("locked").Inc()
		em.logger.Debug("pair locked by pending orders, intent skipped",
			zap.String("pair", id.String()),
			zap.String("tag", intent.Tag()))
		return record(false)
	}
	if !em.tickets.IsSettled(id) {
		// Аномальный набор с ногой в полёте: новая регистрация потеряла бы её
		Submissions.WithLabelValues("locked").Inc()
		em.logger.Debug("pair has legs in flight, intent skipped",
			zap.String("pair", id.String()),
			zap.String("tag", intent.Tag()))
		return record(false)
	}

	handles, err := em.executor.Submit(ctx, intent)
	if err != nil {
		em.logger.Error("intent submission failed",
			zap.String("pair", id.String()),
			zap.String("stage", stage),
			zap.String("tag", intent.Tag()),
			zap.Error(err))
		return record(false)
	}

	// Фаза меняется до регистрации: регистрация может сразу сообщить аномалию
	if err := p.MarkSubmitted(intent.Action()); err != nil {
		em.logger.Error("phase transition rejected, tracking orders anyway",
			zap.String("pair", id.String()),
			zap.Error(err))
	}
	em.tickets.RegisterTickets(id, handles, intent.Action(), intent.Label())

	em.logger.Info("intent submitted",
		zap.String("pair", id.String()),
		zap.String("stage", stage),
		zap.String("tag", intent.Tag()))
	return record(true)
}

// ============================================================
// FillHandler
// ============================================================

// OnPositionFilled передаёт завершённое исполнение паре и в журнал
func (em *ExecutionManager) OnPositionFilled(pairID models.PairID, action models.IntentAction, reason string, fillTime time.Time, handles []*models.OrderTicket) {
	p, ok := em.pairs.Get(pairID)
	if !ok {
		em.logger.Warn("fill for untracked pair", zap.String("pair", pairID.String()))
		return
	}

	pnl := p.OnPositionFilled(action, reason, fillTime, handles)
	if action == models.ActionClose {
		em.portfolio.AddRealized(pnl, em.marked[pairID])
		delete(em.marked, pairID)
		delete(em.committed, pairID)
	}
	em.pairs.Reclassify(pairID)

	rec := em.tradeRecord(p, handles, fillTime)
	rec.Reason = reason
	rec.RealizedPnl = pnl
	if action == models.ActionOpen {
		rec.Action = models.TradeActionOpen
	} else {
		rec.Action = models.TradeActionClose
	}
	em.writeJournal(rec)
}

// OnPositionAnomaly помечает пару; остаток закроет правило position anomaly
func (em *ExecutionManager) OnPositionAnomaly(pairID models.PairID, action models.IntentAction, handles []*models.OrderTicket) {
	p, ok := em.pairs.Get(pairID)
	if !ok {
		em.logger.Warn("anomaly for untracked pair", zap.String("pair", pairID.String()))
		return
	}
	p.OnPositionAnomaly(handles)

	rec := em.tradeRecord(p, handles, time.Time{})
	rec.Action = models.TradeActionAnomaly
	rec.Reason = string(action)
	em.writeJournal(rec)
}

func (em *ExecutionManager) tradeRecord(p *Pair, handles []*models.OrderTicket, fillTime time.Time) *models.TradeRecord {
	s1, s2 := p.Symbols()
	fills := aggregateFills(handles)
	f1, f2 := fills[s1], fills[s2]
	if fillTime.IsZero() {
		fillTime = maxFillTime(handles, time.Now())
	}
	return &models.TradeRecord{
		PairID:   p.ID().String(),
		Symbol1:  s1,
		Qty1:     f1.qty,
		Price1:   f1.price,
		Symbol2:  s2,
		Qty2:     f2.qty,
		Price2:   f2.price,
		FillTime: fillTime,
	}
}

// writeJournal пишет запись с повторами; ошибка только логируется
func (em *ExecutionManager) writeJournal(rec *models.TradeRecord) {
	if em.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), em.journalTimeout)
	defer cancel()

	err := retry.Do(ctx, retry.JournalConfig(), func(ctx context.Context) error {
		return em.journal.Create(ctx, rec)
	})
	if err != nil {
		em.logger.Error("trade journal write failed",
			zap.String("pair", rec.PairID),
			zap.String("action", rec.Action),
			zap.Error(err))
	}
}

func (em *ExecutionManager) publish(report *models.CycleReport, prices map[string]float64) {
	if em.board == nil {
		return
	}
	em.board.Publish(Status{
		Cycle:     report,
		Portfolio: em.portfolio.Snapshot(),
		Pairs:     em.pairs.Snapshots(prices),
		Pending:   em.tickets.TrackedPairs(),
	})
}

var _ FillHandler = (*ExecutionManager)(nil)

// ============================================================
// Сборка из конфигурации
// ============================================================

// TradingParamsFromConfig переводит торговую секцию конфигурации
func TradingParamsFromConfig(c config.TradingConfig) TradingParams {
	return TradingParams{
		EntryZMin:   c.EntryZMin,
		EntryZMax:   c.EntryZMax,
		ExitZ:       c.ExitZ,
		StopZ:       c.StopZ,
		LongMargin:  c.LongMargin,
		ShortMargin: c.ShortMargin,
		LotSize:     c.LotSize,
	}
}

// CooldownPolicyFromConfig переводит таблицу cooldown
func CooldownPolicyFromConfig(c config.CooldownConfig) CooldownPolicy {
	return CooldownPolicy{
		AfterProfit: c.AfterProfit,
		AfterLoss:   c.AfterLoss,
		AfterStop:   c.AfterStop,
		ByReason:    c.ByReason,
	}
}

// Приоритеты встроенных правил
const (
	PriorityAccountBlowup     = 100
	PriorityExcessiveDrawdown = 90
	PriorityMarketVolatility  = 80

	PriorityPositionAnomaly = 100
	PriorityPairDrawdown    = 90
	PriorityHoldingTimeout  = 80
)

// NewRiskManagerFromConfig регистрирует все встроенные правила
func NewRiskManagerFromConfig(c config.RiskConfig, logger *zap.Logger) *RiskManager {
	rm := NewRiskManager(logger)

	rm.AddPortfolioRule(NewAccountBlowupRule(
		RuleConfig{Enabled: c.BlowupEnabled, Priority: PriorityAccountBlowup, Cooldown: c.BlowupCooldown},
		c.BlowupFraction))
	rm.AddPortfolioRule(NewExcessiveDrawdownRule(
		RuleConfig{Enabled: c.DrawdownEnabled, Priority: PriorityExcessiveDrawdown, Cooldown: c.DrawdownCooldown},
		c.MaxDrawdown))
	rm.AddPortfolioRule(NewMarketVolatilityRule(
		RuleConfig{Enabled: c.VolatilityEnabled, Priority: PriorityMarketVolatility, Cooldown: c.VolatilityCooldown},
		c.VolatilityThreshold))

	rm.AddPairRule(NewPositionAnomalyRule(
		RuleConfig{Enabled: c.AnomalyEnabled, Priority: PriorityPositionAnomaly, Cooldown: c.AnomalyCooldown}))
	rm.AddPairRule(NewPairDrawdownRule(
		RuleConfig{Enabled: c.PairDrawdownEnabled, Priority: PriorityPairDrawdown},
		c.PairMaxDrawdown, c.PairDrawdownCooldownWin, c.PairDrawdownCooldownLoss))
	rm.AddPairRule(NewHoldingTimeoutRule(
		RuleConfig{Enabled: c.TimeoutEnabled, Priority: PriorityHoldingTimeout, Cooldown: c.TimeoutCooldown},
		c.MaxHolding))

	return rm
}
