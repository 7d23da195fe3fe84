package bot

import "pairtrader/internal/models"

// ValidTransitions определяет допустимые переходы фаз позиции пары
//
// FLAT → PENDING_CLOSE допустим только для пары с аномальным исполнением:
// risk-слой закрывает остаточную экспозицию пары, формально стоящей во FLAT.
var ValidTransitions = map[models.PositionPhase][]models.PositionPhase{
	models.PhaseFlat:         {models.PhasePendingOpen, models.PhasePendingClose},
	models.PhasePendingOpen:  {models.PhaseOpen, models.PhaseFlat}, // FLAT при аномалии
	models.PhaseOpen:         {models.PhasePendingClose},
	models.PhasePendingClose: {models.PhaseFlat},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.PositionPhase) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// PhaseInfo возвращает описание фазы для диагностики
func PhaseInfo(p models.PositionPhase) string {
	switch p {
	case models.PhaseFlat:
		return "Позиции нет (ожидание сигнала)"
	case models.PhasePendingOpen:
		return "Ордера на открытие отправлены"
	case models.PhaseOpen:
		return "Позиция открыта"
	case models.PhasePendingClose:
		return "Ордера на закрытие отправлены"
	default:
		return "Неизвестная фаза"
	}
}
