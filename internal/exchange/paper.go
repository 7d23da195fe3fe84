package exchange

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pairtrader/internal/models"
)

// PaperConfig - настройки paper-брокера
type PaperConfig struct {
	Name string
	// RejectSymbols - ордера по этим символам отклоняются при отправке
	RejectSymbols []string
	// CancelSymbols - ордера по этим символам принимаются, но отменяются при Advance
	CancelSymbols []string
}

// PaperBroker - брокер в памяти процесса
//
// Рыночные ордера исполняются по цене следующего вызова Advance, то есть
// событие исполнения всегда приходит отдельно от отправки. Ордер по символу
// без цены остаётся в ожидании до появления цены.
type PaperBroker struct {
	name   string
	logger *zap.Logger

	mu       sync.Mutex
	reject   map[string]bool
	cancel   map[string]bool
	pending  []*models.OrderTicket
	byID     map[string]*models.OrderTicket
	handlers []func(models.OrderEvent)
	closed   bool
}

// NewPaperBroker создаёт paper-брокер
func NewPaperBroker(cfg PaperConfig, logger *zap.Logger) *PaperBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "paper"
	}
	b := &PaperBroker{
		name:   name,
		logger: logger.With(zap.String("component", "paper_broker")),
		reject: make(map[string]bool),
		cancel: make(map[string]bool),
		byID:   make(map[string]*models.OrderTicket),
	}
	for _, s := range cfg.RejectSymbols {
		b.reject[strings.ToUpper(s)] = true
	}
	for _, s := range cfg.CancelSymbols {
		b.cancel[strings.ToUpper(s)] = true
	}
	return b
}

// GetName возвращает имя брокера
func (b *PaperBroker) GetName() string {
	return b.name
}

// PlaceMarketOrder принимает ордер и возвращает handle в статусе submitted
func (b *PaperBroker) PlaceMarketOrder(ctx context.Context, symbol string, qty float64, tag string) (*models.OrderTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if qty == 0 {
		return nil, ErrZeroQuantity
	}

	symbol = strings.ToUpper(symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.reject[symbol] {
		return nil, &BrokerError{Broker: b.name, Code: CodeRejected, Message: "order rejected for " + symbol}
	}

	ticket := &models.OrderTicket{
		OrderID:  uuid.NewString(),
		Symbol:   symbol,
		Quantity: qty,
		Status:   models.OrderStatusSubmitted,
		Tag:      tag,
	}
	b.pending = append(b.pending, ticket)
	b.byID[ticket.OrderID] = ticket

	b.logger.Debug("order accepted",
		zap.String("order_id", ticket.OrderID),
		zap.String("symbol", symbol),
		zap.Float64("qty", qty),
		zap.String("tag", tag))

	// Возвращаем копию: handle вызывающей стороны обновляется только событиями
	out := *ticket
	return &out, nil
}

// SubscribeOrders регистрирует обработчик событий ордеров
func (b *PaperBroker) SubscribeOrders(handler func(models.OrderEvent)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

// Advance исполняет ожидающие ордера по переданным ценам и рассылает события
//
// Обработчики вызываются синхронно, после освобождения внутренней блокировки,
// в порядке отправки ордеров.
func (b *PaperBroker) Advance(now time.Time, prices map[string]float64) []models.OrderEvent {
	b.mu.Lock()
	var (
		events []models.OrderEvent
		still  []*models.OrderTicket
	)
	for _, t := range b.pending {
		switch {
		case b.cancel[t.Symbol]:
			events = append(events, models.OrderEvent{
				OrderID: t.OrderID,
				Status:  models.OrderStatusCanceled,
				Time:    now,
				Message: "canceled by broker",
			})
		case prices[t.Symbol] > 0:
			events = append(events, models.OrderEvent{
				OrderID:      t.OrderID,
				Status:       models.OrderStatusFilled,
				FilledQty:    t.Quantity,
				AvgFillPrice: prices[t.Symbol],
				Time:         now,
			})
		default:
			still = append(still, t)
			continue
		}
		delete(b.byID, t.OrderID)
	}
	b.pending = still
	handlers := append([]func(models.OrderEvent){}, b.handlers...)
	b.mu.Unlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
	return events
}

// CancelOrder отменяет ожидающий ордер; событие отмены рассылается сразу
func (b *PaperBroker) CancelOrder(orderID string, now time.Time) error {
	b.mu.Lock()
	t, ok := b.byID[orderID]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownOrder
	}
	delete(b.byID, orderID)
	for i, p := range b.pending {
		if p == t {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	handlers := append([]func(models.OrderEvent){}, b.handlers...)
	b.mu.Unlock()

	ev := models.OrderEvent{OrderID: orderID, Status: models.OrderStatusCanceled, Time: now, Message: "canceled on request"}
	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// PendingCount возвращает число ордеров в ожидании
func (b *PaperBroker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close закрывает брокер; новые ордера отклоняются
func (b *PaperBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
