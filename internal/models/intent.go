package models

import "fmt"

// IntentAction - тип намерения
type IntentAction string

const (
	ActionOpen  IntentAction = "OPEN"
	ActionClose IntentAction = "CLOSE"
)

// Причины закрытия, не связанные с risk-правилами
const (
	ReasonClose         = "CLOSE"          // обычный выход по сигналу
	ReasonStopLoss      = "STOP_LOSS"      // аварийная полоса z-score
	ReasonResidualSweep = "RESIDUAL_SWEEP" // зачистка позиций во время портфельного cooldown
)

// OrderLeg - одна нога намерения (количество со знаком: + покупка, - продажа)
type OrderLeg struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// Intent - неизменяемое описание желаемой сделки по двум ногам
//
// Передаётся по значению. Не содержит поведения, только данные и
// производные геттеры.
type Intent interface {
	Pair() PairID
	Action() IntentAction
	Legs() []OrderLeg
	// Label - сигнал (для открытия) или причина (для закрытия)
	Label() string
	Tag() string
}

// OpenIntent - намерение открыть позицию по паре
type OpenIntent struct {
	PairID PairID
	Leg1   OrderLeg
	Leg2   OrderLeg
	Signal Signal
	Trace  string
}

// NewOpenIntent создаёт намерение открытия с trace-тегом
func NewOpenIntent(id PairID, leg1, leg2 OrderLeg, signal Signal) OpenIntent {
	return OpenIntent{
		PairID: id,
		Leg1:   leg1,
		Leg2:   leg2,
		Signal: signal,
		Trace:  TraceTag(ActionOpen, string(signal), id),
	}
}

func (i OpenIntent) Pair() PairID { return i.PairID }
func (i OpenIntent) Action() IntentAction { return ActionOpen }
func (i OpenIntent) Legs() []OrderLeg { return []OrderLeg{i.Leg1, i.Leg2} }
func (i OpenIntent) Label() string { return string(i.Signal) }
func (i OpenIntent) Tag() string { return i.Trace }

// CloseIntent - намерение закрыть позицию пары
type CloseIntent struct {
	PairID PairID
	Leg1   OrderLeg
	Leg2   OrderLeg
	Reason string
	Trace  string
}

// NewCloseIntent создаёт намерение закрытия с trace-тегом
func NewCloseIntent(id PairID, leg1, leg2 OrderLeg, reason string) CloseIntent {
	return CloseIntent{
		PairID: id,
		Leg1:   leg1,
		Leg2:   leg2,
		Reason: reason,
		Trace:  TraceTag(ActionClose, reason, id),
	}
}

func (i CloseIntent) Pair() PairID { return i.PairID }
func (i CloseIntent) Action() IntentAction { return ActionClose }
func (i CloseIntent) Legs() []OrderLeg { return []OrderLeg{i.Leg1, i.Leg2} }
func (i CloseIntent) Label() string { return i.Reason }
func (i CloseIntent) Tag() string { return i.Trace }

// TraceTag формирует диагностический тег "{action}_{signal-or-reason}_{pairId}"
func TraceTag(action IntentAction, label string, id PairID) string {
	return fmt.Sprintf("%s_%s_%s", action, label, id)
}
