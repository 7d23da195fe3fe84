package bot

import (
	"math"

	"pairtrader/internal/models"
)

// Allocator распределяет свободный капитал между кандидатами на вход
type Allocator interface {
	Allocate(candidates []*Pair, available, equity float64) map[models.PairID]float64
}

// QualityWeightedAllocator делит капитал пропорционально quality score
//
// Доля одной пары ограничена MaxPairFraction * equity. Остаток, срезанный
// лимитом, перераспределяется между парами, которые в лимит не упёрлись.
// Кандидаты с неположительным score получают нулевой вес; если таких
// весов нет ни у кого, капитал делится поровну.
type QualityWeightedAllocator struct {
	MaxPairFraction float64
}

// NewQualityWeightedAllocator создаёт аллокатор
func NewQualityWeightedAllocator(maxPairFraction float64) *QualityWeightedAllocator {
	return &QualityWeightedAllocator{MaxPairFraction: maxPairFraction}
}

func (a *QualityWeightedAllocator) Allocate(candidates []*Pair, available, equity float64) map[models.PairID]float64 {
	out := make(map[models.PairID]float64, len(candidates))
	if len(candidates) == 0 || available <= 0 {
		return out
	}

	limit := math.Inf(1)
	if a.MaxPairFraction > 0 && equity > 0 {
		limit = a.MaxPairFraction * equity
	}

	weights := make(map[models.PairID]float64, len(candidates))
	var total float64
	for _, p := range candidates {
		w := math.Max(p.QualityScore(), 0)
		weights[p.ID()] = w
		total += w
	}
	if total == 0 {
		for _, p := range candidates {
			weights[p.ID()] = 1
		}
	}

	open := candidates
	remaining := available
	for len(open) > 0 && remaining > 1e-9 {
		var sum float64
		for _, p := range open {
			sum += weights[p.ID()]
		}
		if sum == 0 {
			break
		}

		var next []*Pair
		var spent float64
		for _, p := range open {
			share := remaining * weights[p.ID()] / sum
			room := limit - out[p.ID()]
			if share >= room {
				share = room
			} else {
				next = append(next, p)
			}
			out[p.ID()] += share
			spent += share
		}

		remaining -= spent
		// Никто не упёрся в лимит: всё распределено
		if len(next) == len(open) {
			break
		}
		open = next
	}

	for id, v := range out {
		if v <= 0 {
			delete(out, id)
		}
	}
	return out
}

var _ Allocator = (*QualityWeightedAllocator)(nil)
