package models

import "time"

// OrderStatus - статус одной ноги у брокера
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCanceled  OrderStatus = "canceled"
	OrderStatusInvalid   OrderStatus = "invalid"
)

// IsFailed возвращает true для статусов, которые делают пару аномальной
func (s OrderStatus) IsFailed() bool {
	return s == OrderStatusCanceled || s == OrderStatusInvalid
}

// OrderTicket - handle ордера одной ноги
//
// Заполняется брокером при отправке и обновляется событиями ордера.
// Агрегированный статус пары всегда вычисляется из этих handle'ов.
type OrderTicket struct {
	OrderID      string      `json:"order_id"`
	Symbol       string      `json:"symbol"`
	Quantity     float64     `json:"quantity"`      // запрошенное количество со знаком
	FilledQty    float64     `json:"filled_qty"`    // исполненное количество со знаком
	AvgFillPrice float64     `json:"avg_fill_price"`
	Status       OrderStatus `json:"status"`
	FillTime     time.Time   `json:"fill_time"`
	Tag          string      `json:"tag"`
	Error        string      `json:"error,omitempty"`
}

// Apply применяет событие ордера к handle
func (t *OrderTicket) Apply(ev OrderEvent) {
	t.Status = ev.Status
	if ev.FilledQty != 0 {
		t.FilledQty = ev.FilledQty
	}
	if ev.AvgFillPrice > 0 {
		t.AvgFillPrice = ev.AvgFillPrice
	}
	if !ev.Time.IsZero() {
		t.FillTime = ev.Time
	}
	if ev.Message != "" {
		t.Error = ev.Message
	}
}

// OrderEvent - асинхронное событие брокера по ордеру (fill / cancel / invalid)
type OrderEvent struct {
	OrderID      string      `json:"order_id"`
	Status       OrderStatus `json:"status"`
	FilledQty    float64     `json:"filled_qty"`
	AvgFillPrice float64     `json:"avg_fill_price"`
	Time         time.Time   `json:"time"`
	Message      string      `json:"message,omitempty"`
}

// PairOrderStatus - агрегированный статус ордеров пары
type PairOrderStatus string

const (
	PairOrderNone      PairOrderStatus = "NONE"
	PairOrderPending   PairOrderStatus = "PENDING"
	PairOrderCompleted PairOrderStatus = "COMPLETED"
	PairOrderAnomaly   PairOrderStatus = "ANOMALY"
)
