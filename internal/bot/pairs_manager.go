package bot

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"pairtrader/internal/models"
)

// UpdateResult - итог применения результатов анализа
type UpdateResult struct {
	Created    []models.PairID
	Updated    []models.PairID
	Locked     []models.PairID // параметры не обновлены: позиция открыта
	Duplicates int
	Retired    []models.PairID
}

// PairsManager - реестр пар и их классификация по циклам
//
// Владеет всеми Pair. Pair не хранит обратных ссылок на менеджер:
// цены и время передаются явными параметрами.
type PairsManager struct {
	pairs map[models.PairID]*Pair
	// canonical key → id в том порядке ног, в котором пара была создана
	byKey map[string]models.PairID

	params            TradingParams
	cooldown          CooldownPolicy
	maxArchivedCycles int

	logger *zap.Logger
}

// NewPairsManager создаёт реестр пар
//
// maxArchivedCycles - сколько циклов анализа подряд пара может быть
// ARCHIVED без позиции до вывода из учёта (0 = никогда).
func NewPairsManager(params TradingParams, cooldown CooldownPolicy, maxArchivedCycles int, logger *zap.Logger) *PairsManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PairsManager{
		pairs:             make(map[models.PairID]*Pair),
		byKey:             make(map[string]models.PairID),
		params:            params,
		cooldown:          cooldown,
		maxArchivedCycles: maxArchivedCycles,
		logger:            logger.With(zap.String("component", "pairs")),
	}
}

// UpdatePairs применяет результаты анализа текущего цикла
//
// Каждая пара, присутствующая в records, становится COINTEGRATED; остальные
// классифицируются как LEGACY (есть позиция) или ARCHIVED (без позиции).
// Дубликаты (в том числе (A,B)/(B,A)) в пределах цикла учитываются один раз;
// обратная ориентация существующей пары считается "увиденной", но параметры
// не обновляет: hedge ratio для другого порядка ног несопоставим.
func (pm *PairsManager) UpdatePairs(records []models.AnalysisRecord) UpdateResult {
	var res UpdateResult
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		id := rec.PairID()
		s1, s2 := rec.Symbols()
		if s1 == "" || s2 == "" || s1 == s2 {
			pm.logger.Warn("invalid analysis record skipped",
				zap.String("symbol1", rec.Symbol1),
				zap.String("symbol2", rec.Symbol2))
			continue
		}

		key := rec.CanonicalKey()
		if tracked, ok := pm.pairs[id]; ok && tracked.Key() != key {
			// "A-B"+"C" и "A"+"B-C" дают один ID, но это разные пары
			res.Duplicates++
			pm.logger.Warn("pair id collides with tracked pair of other symbols, skipped",
				zap.String("pair", id.String()),
				zap.String("symbol1", s1),
				zap.String("symbol2", s2))
			continue
		}
		if seen[key] {
			res.Duplicates++
			pm.logger.Debug("duplicate pair in analysis ignored", zap.String("pair", id.String()))
			continue
		}
		seen[key] = true

		existingID, ok := pm.byKey[key]
		if !ok {
			pm.pairs[id] = NewPair(rec, pm.params, pm.cooldown, pm.logger)
			pm.byKey[key] = id
			res.Created = append(res.Created, id)
			continue
		}

		if existingID != id {
			pm.logger.Debug("reversed orientation of tracked pair, params kept",
				zap.String("pair", existingID.String()),
				zap.String("reported", id.String()))
			continue
		}

		if pm.pairs[existingID].UpdateParams(rec) {
			res.Updated = append(res.Updated, existingID)
		} else {
			res.Locked = append(res.Locked, existingID)
		}
	}

	for _, p := range pm.sorted() {
		state := models.ClassifyPair(seen[p.Key()], p.HasPosition())
		p.SetState(state)

		if state == models.PairStateArchived {
			p.archivedCycles++
		} else {
			p.archivedCycles = 0
		}

		if pm.retirable(p) {
			pm.remove(p.ID())
			res.Retired = append(res.Retired, p.ID())
		}
	}

	pm.publishGauges()

	pm.logger.Debug("pairs updated",
		zap.Int("created", len(res.Created)),
		zap.Int("updated", len(res.Updated)),
		zap.Int("locked", len(res.Locked)),
		zap.Int("retired", len(res.Retired)),
		zap.Int("tracked", len(pm.pairs)))
	return res
}

func (pm *PairsManager) retirable(p *Pair) bool {
	return pm.maxArchivedCycles > 0 &&
		p.State() == models.PairStateArchived &&
		p.archivedCycles >= pm.maxArchivedCycles &&
		p.Phase() == models.PhaseFlat &&
		!p.HasPosition() &&
		!p.IsAnomalous()
}

func (pm *PairsManager) remove(id models.PairID) {
	if p, ok := pm.pairs[id]; ok {
		delete(pm.byKey, p.Key())
	}
	delete(pm.pairs, id)
	pm.logger.Info("archived pair retired", zap.String("pair", id.String()))
}

// Reclassify пересчитывает классификацию пары после смены позиции
// (открытие, исполненное для уже ARCHIVED пары, становится LEGACY)
func (pm *PairsManager) Reclassify(id models.PairID) {
	p, ok := pm.pairs[id]
	if !ok {
		return
	}
	p.SetState(models.ClassifyPair(p.State() == models.PairStateCointegrated, p.HasPosition()))
}

func (pm *PairsManager) publishGauges() {
	counts := make(map[string]int, 3)
	withPos := 0
	for _, p := range pm.pairs {
		counts[string(p.State())]++
		if p.HasPosition() {
			withPos++
		}
	}
	UpdatePairGauges(counts, withPos)
}

// ============ Представления ============

// sorted возвращает все пары, отсортированные по id (детерминированный порядок)
func (pm *PairsManager) sorted() []*Pair {
	out := make([]*Pair, 0, len(pm.pairs))
	for _, p := range pm.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Get возвращает пару по id
func (pm *PairsManager) Get(id models.PairID) (*Pair, bool) {
	p, ok := pm.pairs[id]
	return p, ok
}

// All возвращает все отслеживаемые пары, включая ARCHIVED
func (pm *PairsManager) All() []*Pair {
	return pm.sorted()
}

// Count - число отслеживаемых пар
func (pm *PairsManager) Count() int {
	return len(pm.pairs)
}

func isTradeable(p *Pair) bool {
	return p.State() == models.PairStateCointegrated || p.State() == models.PairStateLegacy
}

// GetTradeablePairs возвращает COINTEGRATED ∪ LEGACY
func (pm *PairsManager) GetTradeablePairs() []*Pair {
	var out []*Pair
	for _, p := range pm.sorted() {
		if isTradeable(p) {
			out = append(out, p)
		}
	}
	return out
}

// GetPairsWithPosition / GetPairsWithoutPosition - один проход по торгуемым парам
func (pm *PairsManager) splitByPosition() (with, without []*Pair) {
	for _, p := range pm.sorted() {
		if !isTradeable(p) {
			continue
		}
		if p.HasPosition() {
			with = append(with, p)
		} else {
			without = append(without, p)
		}
	}
	return with, without
}

// GetPairsWithPosition возвращает торгуемые пары с позицией
func (pm *PairsManager) GetPairsWithPosition() []*Pair {
	with, _ := pm.splitByPosition()
	return with
}

// GetPairsWithoutPosition возвращает торгуемые пары без позиции
func (pm *PairsManager) GetPairsWithoutPosition() []*Pair {
	_, without := pm.splitByPosition()
	return without
}

// GetSequencedEntryCandidates - пары без позиции с входным сигналом,
// по убыванию quality score (капитал достаётся лучшим первыми)
func (pm *PairsManager) GetSequencedEntryCandidates(prices map[string]float64, now time.Time) []*Pair {
	var out []*Pair
	for _, p := range pm.GetPairsWithoutPosition() {
		if p.Phase() != models.PhaseFlat || p.IsAnomalous() {
			continue
		}
		if p.GetSignal(prices, now).IsEntry() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QualityScore() > out[j].QualityScore()
	})
	return out
}

// Snapshots возвращает снимки всех пар для диагностики
func (pm *PairsManager) Snapshots(prices map[string]float64) []models.PairRuntime {
	all := pm.sorted()
	out := make([]models.PairRuntime, 0, len(all))
	for _, p := range all {
		out = append(out, p.Snapshot(prices))
	}
	return out
}
