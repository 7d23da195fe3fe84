package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pairtrader/internal/exchange"
	"pairtrader/internal/models"
)

// Ошибки исполнителя
var (
	ErrNoLegs       = errors.New("intent has no non-zero legs")
	ErrSubmitFailed = errors.New("all legs rejected by broker")
)

// OrderExecutor - исполнитель намерений с ПАРАЛЛЕЛЬНОЙ отправкой ног
//
// Ноги отправляются одновременно (goroutines), общее время отправки
// = max(latency ног). Повторов и откатов нет: если одна нога отклонена,
// вместо неё возвращается handle в статусе invalid, пара становится
// аномальной и закрывается risk-слоем.
type OrderExecutor struct {
	broker exchange.Broker
	logger *zap.Logger
}

// legResult - результат отправки одной ноги
type legResult struct {
	index  int
	ticket *models.OrderTicket
	err    error
}

// NewOrderExecutor создаёт исполнитель
func NewOrderExecutor(broker exchange.Broker, logger *zap.Logger) *OrderExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderExecutor{
		broker: broker,
		logger: logger.With(zap.String("component", "executor")),
	}
}

// Submit отправляет все ненулевые ноги намерения и возвращает их handle'ы
//
// Ошибка возвращается только если отправлять нечего (ErrNoLegs) или брокер
// отклонил все ноги (ErrSubmitFailed). Частичный отказ не ошибка: отклонённая
// нога представлена handle'ом со статусом invalid.
func (oe *OrderExecutor) Submit(ctx context.Context, intent models.Intent) ([]*models.OrderTicket, error) {
	var legs []models.OrderLeg
	for _, leg := range intent.Legs() {
		if leg.Quantity != 0 {
			legs = append(legs, leg)
		}
	}
	if len(legs) == 0 {
		return nil, fmt.Errorf("%s: %w", intent.Tag(), ErrNoLegs)
	}

	// Буфер на все ноги: горутины не блокируются, даже если ждать перестали
	results := make(chan legResult, len(legs))
	for i, leg := range legs {
		go func(i int, leg models.OrderLeg) {
			ticket, err := oe.broker.PlaceMarketOrder(ctx, leg.Symbol, leg.Quantity, intent.Tag())
			results <- legResult{index: i, ticket: ticket, err: err}
		}(i, leg)
	}

	tickets := make([]*models.OrderTicket, len(legs))
	var errs []error
	for range legs {
		res := <-results
		if res.err != nil || res.ticket == nil {
			err := res.err
			if err == nil {
				err = errors.New("broker returned no ticket")
			}
			errs = append(errs, fmt.Errorf("%s: %w", legs[res.index].Symbol, err))
			tickets[res.index] = rejectedTicket(legs[res.index], intent.Tag(), err)
			continue
		}
		tickets[res.index] = res.ticket
	}

	if len(errs) == len(legs) {
		Submissions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%s: %w: %v", intent.Tag(), ErrSubmitFailed, errors.Join(errs...))
	}

	if len(errs) > 0 {
		Submissions.WithLabelValues("partial").Inc()
		oe.logger.Warn("leg rejected, pair will be anomalous",
			zap.String("pair", intent.Pair().String()),
			zap.String("tag", intent.Tag()),
			zap.Error(errors.Join(errs...)))
	} else {
		Submissions.WithLabelValues("submitted").Inc()
	}

	for _, t := range tickets {
		oe.logger.Debug("leg submitted",
			zap.String("pair", intent.Pair().String()),
			zap.String("order_id", t.OrderID),
			zap.String("symbol", t.Symbol),
			zap.Float64("qty", t.Quantity),
			zap.String("status", string(t.Status)))
	}
	return tickets, nil
}

// rejectedTicket - handle для ноги, которую брокер не принял
func rejectedTicket(leg models.OrderLeg, tag string, err error) *models.OrderTicket {
	return &models.OrderTicket{
		OrderID:  "rejected-" + uuid.NewString(),
		Symbol:   leg.Symbol,
		Quantity: leg.Quantity,
		Status:   models.OrderStatusInvalid,
		Tag:      tag,
		Error:    err.Error(),
	}
}
