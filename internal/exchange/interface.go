package exchange

import (
	"context"
	"errors"

	"pairtrader/internal/models"
)

// Broker - контракт брокерского слоя для торгового ядра
//
// Отправка ордера возвращает handle сразу (статус submitted). Исполнение,
// отмена или отклонение приходят позже отдельным событием через обработчик,
// зарегистрированный в SubscribeOrders.
type Broker interface {
	// GetName возвращает имя брокера
	GetName() string

	// PlaceMarketOrder размещает рыночный ордер; qty со знаком (+ покупка, - продажа)
	PlaceMarketOrder(ctx context.Context, symbol string, qty float64, tag string) (*models.OrderTicket, error)

	// SubscribeOrders регистрирует обработчик событий ордеров
	SubscribeOrders(handler func(models.OrderEvent))

	// Close освобождает ресурсы брокера
	Close() error
}

// Ошибки брокерского слоя
var (
	ErrZeroQuantity = errors.New("order quantity is zero")
	ErrUnknownOrder = errors.New("unknown order id")
	ErrClosed       = errors.New("broker is closed")
)

// BrokerError представляет ошибку от брокера
type BrokerError struct {
	Broker   string
	Code     string
	Message  string
	Original error
}

func (e *BrokerError) Error() string {
	return e.Broker + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *BrokerError) Unwrap() error {
	return e.Original
}

// Коды ошибок брокера
const (
	CodeRejected = "rejected"
)
