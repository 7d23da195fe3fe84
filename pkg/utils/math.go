package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// math.go - математические утилиты для торговли парами
//
// Все функции чистые, без побочных эффектов.
//
// Функции:
// - RoundToLotSize: округление количества ВНИЗ до шага лота (decimal, без накопления ошибки float)
// - Mean / StdDev: статистика ряда (волатильность портфеля)
// - LogReturns: логарифмические доходности ряда
// - SafeDiv: деление с защитой от нуля

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Расчёт ведётся в decimal: math.Floor(0.3/0.1) даёт 2, а не 3.
// Если lotSize <= 0, возвращается исходное значение.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(100.5, 1) = 100
//   - RoundToLotSize(0.3, 0.1) = 0.3
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 || value <= 0 {
		if value < 0 {
			return 0
		}
		return value
	}
	v := decimal.NewFromFloat(value)
	lot := decimal.NewFromFloat(lotSize)
	steps := v.Div(lot).Floor()
	f, _ := steps.Mul(lot).Float64()
	return f
}

// Mean возвращает среднее значение ряда (0 для пустого ряда)
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev возвращает выборочное стандартное отклонение (n-1).
// Для рядов короче двух значений возвращает 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// LogReturns возвращает ln(v[i]/v[i-1]); неположительные значения пропускаются
func LogReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// SafeDiv делит a на b, возвращая 0 при b == 0
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
