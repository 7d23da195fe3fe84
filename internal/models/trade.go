package models

import "time"

// TradeRecord - запись журнала сделок (одна завершённая операция по паре)
type TradeRecord struct {
	ID          int       `json:"id" db:"id"`
	PairID      string    `json:"pair_id" db:"pair_id"`
	Action      string    `json:"action" db:"action"`           // OPEN, CLOSE, ANOMALY
	Reason      string    `json:"reason" db:"reason"`           // сигнал или причина
	Symbol1     string    `json:"symbol1" db:"symbol1"`
	Qty1        float64   `json:"qty1" db:"qty1"`
	Price1      float64   `json:"price1" db:"price1"`
	Symbol2     string    `json:"symbol2" db:"symbol2"`
	Qty2        float64   `json:"qty2" db:"qty2"`
	Price2      float64   `json:"price2" db:"price2"`
	RealizedPnl float64   `json:"realized_pnl" db:"realized_pnl"`
	FillTime    time.Time `json:"fill_time" db:"fill_time"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Действия журнала
const (
	TradeActionOpen    = "OPEN"
	TradeActionClose   = "CLOSE"
	TradeActionAnomaly = "ANOMALY"
)
