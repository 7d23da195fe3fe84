package bot

import (
	"sync"

	"pairtrader/internal/models"
)

// Status - последний опубликованный снимок ядра
type Status struct {
	Cycle     *models.CycleReport  `json:"cycle"`
	Portfolio PortfolioSnapshot    `json:"portfolio"`
	Pairs     []models.PairRuntime `json:"pairs"`
	Pending   int                  `json:"pending_order_sets"`
}

// StatusBoard - единственная точка, через которую ядро делится состоянием
// с другими горутинами (HTTP). Ядро пишет раз в цикл, читатели получают копию.
type StatusBoard struct {
	mu     sync.RWMutex
	status Status
}

// NewStatusBoard создаёт пустую доску
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{}
}

// Publish заменяет снимок
func (b *StatusBoard) Publish(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// Latest возвращает копию последнего снимка
func (b *StatusBoard) Latest() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.status
	if s.Cycle != nil {
		c := *s.Cycle
		c.Planned = copyCounts(c.Planned)
		c.Executed = copyCounts(c.Executed)
		s.Cycle = &c
	}
	s.Pairs = append([]models.PairRuntime(nil), s.Pairs...)
	return s
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
