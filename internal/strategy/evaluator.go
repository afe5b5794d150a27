package strategy

import (
	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/pkg/models"
)

// Evaluate принимает решение для одной пары по срезу индикаторов и текущей
// цене. Функция детерминированная и без побочных эффектов: одинаковые входы
// всегда дают одинаковое решение, что обеспечивает паритет живого запуска и
// бэктеста.
//
// pos — открытая позиция пары или nil, если позиции нет. Для открытой
// позиции сначала проверяется тейк-профит, затем стоп-лосс; пара в лонге
// никогда не рассматривает повторный вход.
func Evaluate(cfg config.PairConfig, pos *models.Position, snap models.IndicatorSnapshot, price float64) models.Decision {
	if pos != nil {
		// Порядок проверок фиксированный: TP, затем SL
		if price >= pos.TakeProfit {
			return models.Exit(models.ExitTakeProfit)
		}
		if price <= pos.StopLoss {
			return models.Exit(models.ExitStopLoss)
		}
		return models.Hold()
	}

	// Вход только в лонг: RSI ниже порога и цена достаточно глубоко под
	// нижней полосой. Короткая сторона не оценивается, порог
	// rsi_short_threshold присутствует в конфигурации только как задел.
	if snap.RSI < cfg.RSILongThreshold && DistanceBelowLower(price, snap.BBLower) >= cfg.ShadowDistancePct {
		return models.EnterLong()
	}

	return models.Hold()
}

// DistanceBelowLower возвращает, на сколько процентов цена ниже нижней
// полосы Боллинджера. Положительное значение — цена под полосой.
func DistanceBelowLower(price, lower float64) float64 {
	if lower == 0 {
		return 0
	}
	return (lower - price) / lower * 100
}
