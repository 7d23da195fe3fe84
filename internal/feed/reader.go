package feed

// reader.go - replay рыночных данных из JSON-lines файла
//
// Одна строка = один цикл:
//   {"time":"2024-03-01T10:00:00Z","prices":{"AAA":101.5},"analysis":[...],"volatility":0.02}
//
// Пустые строки пропускаются. Битая строка - ошибка с номером строки:
// молча пропускать циклы при replay нельзя, это меняет историю цен.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"pairtrader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxLineSize - предел длины строки (большие снимки analysis)
const maxLineSize = 4 << 20

// Ошибки replay
var (
	ErrMissingTime   = errors.New("cycle has no time")
	ErrMissingPrices = errors.New("cycle has no prices")
)

// Reader читает циклы по одному
type Reader struct {
	sc     *bufio.Scanner
	line   int
	closer io.Closer
}

// NewReader создаёт Reader поверх произвольного потока
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Open открывает файл replay; Close закрывает его
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", path, err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next возвращает следующий цикл или io.EOF в конце потока
func (r *Reader) Next() (*models.Cycle, error) {
	for r.sc.Scan() {
		r.line++
		raw := strings.TrimSpace(r.sc.Text())
		if raw == "" {
			continue
		}

		var c models.Cycle
		if err := json.UnmarshalFromString(raw, &c); err != nil {
			return nil, fmt.Errorf("feed line %d: %w", r.line, err)
		}
		if err := validate(&c); err != nil {
			return nil, fmt.Errorf("feed line %d: %w", r.line, err)
		}
		return &c, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("feed line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}

// Close закрывает файл, если Reader создан через Open
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func validate(c *models.Cycle) error {
	if c.Time.IsZero() {
		return ErrMissingTime
	}
	if len(c.Prices) == 0 {
		return ErrMissingPrices
	}
	// Символы в верхнем регистре, как у PairID
	prices := make(map[string]float64, len(c.Prices))
	for sym, p := range c.Prices {
		prices[strings.ToUpper(strings.TrimSpace(sym))] = p
	}
	c.Prices = prices
	return nil
}
