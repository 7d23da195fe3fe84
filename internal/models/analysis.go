package models

import "time"

// AnalysisRecord - результат внешнего этапа анализа (коинтеграция + оценка качества)
type AnalysisRecord struct {
	Symbol1      string  `json:"symbol1"`
	Symbol2      string  `json:"symbol2"`
	HedgeRatio   float64 `json:"hedge_ratio"`
	Intercept    float64 `json:"intercept"`
	SpreadMean   float64 `json:"spread_mean"`
	SpreadStd    float64 `json:"spread_std"`
	QualityScore float64 `json:"quality_score"`
	Sector       string  `json:"sector"`
}

// PairID возвращает идентификатор пары записи
func (r AnalysisRecord) PairID() PairID {
	return NewPairID(r.Symbol1, r.Symbol2)
}

// Symbols возвращает нормализованные символы ног в порядке leg1, leg2
func (r AnalysisRecord) Symbols() (string, string) {
	return normalizeSymbol(r.Symbol1), normalizeSymbol(r.Symbol2)
}

// CanonicalKey возвращает ключ пары без учёта порядка ног
func (r AnalysisRecord) CanonicalKey() string {
	return CanonicalKey(r.Symbol1, r.Symbol2)
}

// Cycle - один логический цикл, вызванный обновлением рыночных данных
//
// Analysis == nil означает, что этап анализа в этом цикле не запускался и
// классификация пар не пересчитывается.
type Cycle struct {
	Time       time.Time          `json:"time"`
	Prices     map[string]float64 `json:"prices"`
	Analysis   []AnalysisRecord   `json:"analysis,omitempty"`
	Volatility *float64           `json:"volatility,omitempty"` // внешняя волатильность рынка
}
