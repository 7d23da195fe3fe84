package bot

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"pairtrader/internal/models"
)

// FillHandler - получатель итогов исполнения пары
//
// Вызывается синхронно из OnOrderEvent, в том же цикле обработки событий.
type FillHandler interface {
	// OnPositionFilled вызывается ровно один раз при переходе пары в COMPLETED
	OnPositionFilled(pairID models.PairID, action models.IntentAction, reason string, fillTime time.Time, handles []*models.OrderTicket)
	// OnPositionAnomaly вызывается один раз при первом переходе в ANOMALY
	OnPositionAnomaly(pairID models.PairID, action models.IntentAction, handles []*models.OrderTicket)
}

// pairTickets - ордера одной пары в полёте
type pairTickets struct {
	handles         []*models.OrderTicket
	action          models.IntentAction
	reason          string
	anomalyReported bool
}

// TicketsManager отслеживает handle'ы ордеров по парам
//
// Статус пары не кэшируется и всегда вычисляется из handle'ов ног.
// Индекс orderID → pairID принадлежит только этому компоненту.
type TicketsManager struct {
	pairs      map[models.PairID]*pairTickets
	orderIndex map[string]models.PairID
	observer   FillHandler
	logger     *zap.Logger
}

// NewTicketsManager создаёт менеджер ордеров
func NewTicketsManager(logger *zap.Logger) *TicketsManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketsManager{
		pairs:      make(map[models.PairID]*pairTickets),
		orderIndex: make(map[string]models.PairID),
		logger:     logger.With(zap.String("component", "tickets")),
	}
}

// SetObserver регистрирует получателя callback'ов исполнения
func (tm *TicketsManager) SetObserver(h FillHandler) {
	tm.observer = h
}

// RegisterTickets регистрирует handle'ы намерения пары
//
// Предыдущие handle'ы пары (например, оставленные аномалией) заменяются.
// Если одна из ног уже отклонена при отправке, аномалия сообщается сразу.
func (tm *TicketsManager) RegisterTickets(pairID models.PairID, handles []*models.OrderTicket, action models.IntentAction, reason string) {
	tm.release(pairID)

	entry := &pairTickets{
		handles: handles,
		action:  action,
		reason:  reason,
	}
	tm.pairs[pairID] = entry
	for _, h := range handles {
		tm.orderIndex[h.OrderID] = pairID
	}

	tm.logger.Debug("tickets registered",
		zap.String("pair", pairID.String()),
		zap.String("action", string(action)),
		zap.String("reason", reason),
		zap.Int("legs", len(handles)))

	if tm.GetPairStatus(pairID) == models.PairOrderAnomaly {
		tm.reportAnomaly(pairID, entry)
	}
}

// GetPairStatus вычисляет агрегированный статус ордеров пары
//
// ANOMALY проверяется раньше полноты: отменённая нога побеждает
// одновременно исполненную другую ногу.
func (tm *TicketsManager) GetPairStatus(pairID models.PairID) models.PairOrderStatus {
	entry, ok := tm.pairs[pairID]
	if !ok || len(entry.handles) == 0 {
		return models.PairOrderNone
	}

	for _, h := range entry.handles {
		if h.Status.IsFailed() {
			return models.PairOrderAnomaly
		}
	}
	for _, h := range entry.handles {
		if h.Status != models.OrderStatusFilled {
			return models.PairOrderPending
		}
	}
	return models.PairOrderCompleted
}

// OnOrderEvent применяет событие брокера к handle'у и пересчитывает статус пары
func (tm *TicketsManager) OnOrderEvent(ev models.OrderEvent) {
	OrderEvents.WithLabelValues(string(ev.Status)).Inc()

	pairID, ok := tm.orderIndex[ev.OrderID]
	if !ok {
		tm.logger.Debug("event for unknown order ignored",
			zap.String("order_id", ev.OrderID),
			zap.String("status", string(ev.Status)))
		return
	}
	entry := tm.pairs[pairID]
	for _, h := range entry.handles {
		if h.OrderID == ev.OrderID {
			h.Apply(ev)
			break
		}
	}

	switch tm.GetPairStatus(pairID) {
	case models.PairOrderCompleted:
		fillTime := maxFillTime(entry.handles, ev.Time)
		handles := entry.handles
		tm.release(pairID)

		FillsCompleted.WithLabelValues(string(entry.action)).Inc()
		tm.logger.Info("pair orders completed",
			zap.String("pair", pairID.String()),
			zap.String("action", string(entry.action)),
			zap.String("reason", entry.reason),
			zap.Time("fill_time", fillTime))

		if tm.observer != nil {
			tm.observer.OnPositionFilled(pairID, entry.action, entry.reason, fillTime, handles)
		}

	case models.PairOrderAnomaly:
		tm.reportAnomaly(pairID, entry)
	}
}

// reportAnomaly логирует аномалию и уведомляет observer один раз.
// Автоматической коррекции нет: handle'ы остаются до новой регистрации.
func (tm *TicketsManager) reportAnomaly(pairID models.PairID, entry *pairTickets) {
	if entry.anomalyReported {
		return
	}
	entry.anomalyReported = true
	AnomaliesDetected.Inc()

	fields := []zap.Field{
		zap.String("pair", pairID.String()),
		zap.String("action", string(entry.action)),
	}
	for _, h := range entry.handles {
		fields = append(fields,
			zap.String("leg_"+h.Symbol, string(h.Status)),
			zap.Float64("filled_"+h.Symbol, h.FilledQty))
	}
	tm.logger.Warn("pair orders anomalous", fields...)

	if tm.observer != nil {
		tm.observer.OnPositionAnomaly(pairID, entry.action, entry.handles)
	}
}

func maxFillTime(handles []*models.OrderTicket, fallback time.Time) time.Time {
	var t time.Time
	for _, h := range handles {
		if h.FillTime.After(t) {
			t = h.FillTime
		}
	}
	if t.IsZero() {
		return fallback
	}
	return t
}

// release удаляет handle'ы пары и их записи индекса
func (tm *TicketsManager) release(pairID models.PairID) {
	entry, ok := tm.pairs[pairID]
	if !ok {
		return
	}
	for _, h := range entry.handles {
		if tm.orderIndex[h.OrderID] == pairID {
			delete(tm.orderIndex, h.OrderID)
		}
	}
	delete(tm.pairs, pairID)
}

// Release забывает handle'ы пары (аномалия без остаточной экспозиции)
func (tm *TicketsManager) Release(pairID models.PairID) {
	tm.release(pairID)
}

// IsPairLocked - у пары есть незавершённый набор ордеров
func (tm *TicketsManager) IsPairLocked(pairID models.PairID) bool {
	return tm.GetPairStatus(pairID) == models.PairOrderPending
}

// IsSettled - все ноги пары в конечном статусе (исполнены или отклонены)
func (tm *TicketsManager) IsSettled(pairID models.PairID) bool {
	entry, ok := tm.pairs[pairID]
	if !ok {
		return true
	}
	for _, h := range entry.handles {
		if h.Status != models.OrderStatusFilled && !h.Status.IsFailed() {
			return false
		}
	}
	return true
}

// GetAnomalyPairs возвращает пары в статусе ANOMALY (отсортированы)
func (tm *TicketsManager) GetAnomalyPairs() []models.PairID {
	var out []models.PairID
	for id := range tm.pairs {
		if tm.GetPairStatus(id) == models.PairOrderAnomaly {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsAnomalous - пара в статусе ANOMALY
func (tm *TicketsManager) IsAnomalous(pairID models.PairID) bool {
	return tm.GetPairStatus(pairID) == models.PairOrderAnomaly
}

// FilledQuantities возвращает исполненные количества ног пары по символам
func (tm *TicketsManager) FilledQuantities(pairID models.PairID) map[string]float64 {
	out := make(map[string]float64)
	entry, ok := tm.pairs[pairID]
	if !ok {
		return out
	}
	for _, h := range entry.handles {
		out[h.Symbol] += h.FilledQty
	}
	return out
}

// Handles возвращает копии handle'ов пары (для диагностики)
func (tm *TicketsManager) Handles(pairID models.PairID) []models.OrderTicket {
	entry, ok := tm.pairs[pairID]
	if !ok {
		return nil
	}
	out := make([]models.OrderTicket, 0, len(entry.handles))
	for _, h := range entry.handles {
		out = append(out, *h)
	}
	return out
}

// TrackedPairs - число пар с зарегистрированными ордерами
func (tm *TicketsManager) TrackedPairs() int {
	return len(tm.pairs)
}
