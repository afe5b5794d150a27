package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/pkg/models"
)

func pairConfig() config.PairConfig {
	return config.PairConfig{
		Enabled:           true,
		Leverage:          10,
		TradeVolume:       50,
		RSILongThreshold:  14,
		ShadowDistancePct: 1.5,
		TakeProfitPct:     2,
		StopLossPct:       5,
	}
}

func TestEvaluate_EnterLong(t *testing.T) {
	cfg := pairConfig()

	// RSI под порогом, цена на 2% ниже нижней полосы
	snap := models.IndicatorSnapshot{RSI: 10, BBLower: 100}
	d := Evaluate(cfg, nil, snap, 98)
	assert.Equal(t, models.DecisionEnterLong, d.Kind)
}

func TestEvaluate_HoldWhenRSITooHigh(t *testing.T) {
	cfg := pairConfig()

	snap := models.IndicatorSnapshot{RSI: 20, BBLower: 100}
	d := Evaluate(cfg, nil, snap, 98)
	assert.Equal(t, models.DecisionHold, d.Kind)
}

func TestEvaluate_HoldWhenDistanceTooSmall(t *testing.T) {
	cfg := pairConfig()

	// Цена всего на 1% ниже полосы при пороге 1.5%
	snap := models.IndicatorSnapshot{RSI: 10, BBLower: 100}
	d := Evaluate(cfg, nil, snap, 99)
	assert.Equal(t, models.DecisionHold, d.Kind)
}

func TestEvaluate_Boundaries(t *testing.T) {
	cfg := pairConfig()
	snap := models.IndicatorSnapshot{RSI: 10, BBLower: 100}

	// Порог расстояния включительный: ровно 1.5% — вход
	d := Evaluate(cfg, nil, snap, 98.5)
	assert.Equal(t, models.DecisionEnterLong, d.Kind)

	// Порог RSI строгий: ровно 14 — входа нет
	snap.RSI = 14
	d = Evaluate(cfg, nil, snap, 98)
	assert.Equal(t, models.DecisionHold, d.Kind)
}

func TestEvaluate_NoShortEntry(t *testing.T) {
	cfg := pairConfig()
	cfg.RSIShortThreshold = 86

	// Перекупленность выше нижней полосы коротких входов не порождает
	snap := models.IndicatorSnapshot{RSI: 95, BBLower: 100, BBUpper: 110}
	d := Evaluate(cfg, nil, snap, 112)
	assert.Equal(t, models.DecisionHold, d.Kind)
}

func TestEvaluate_OpenPositionTakeProfit(t *testing.T) {
	cfg := pairConfig()
	pos := &models.Position{
		Symbol:     "BTCUSDT",
		EntryPrice: 100,
		TakeProfit: 102,
		StopLoss:   95,
		OpenedAt:   time.Now(),
	}

	d := Evaluate(cfg, pos, models.IndicatorSnapshot{RSI: 50}, 102)
	assert.Equal(t, models.DecisionExit, d.Kind)
	assert.Equal(t, models.ExitTakeProfit, d.Reason)
}

func TestEvaluate_OpenPositionStopLoss(t *testing.T) {
	cfg := pairConfig()
	pos := &models.Position{
		Symbol:     "BTCUSDT",
		EntryPrice: 100,
		TakeProfit: 102,
		StopLoss:   95,
	}

	d := Evaluate(cfg, pos, models.IndicatorSnapshot{RSI: 50}, 95)
	assert.Equal(t, models.DecisionExit, d.Kind)
	assert.Equal(t, models.ExitStopLoss, d.Reason)
}

func TestEvaluate_OpenPositionHoldBetweenLevels(t *testing.T) {
	cfg := pairConfig()
	pos := &models.Position{
		EntryPrice: 100,
		TakeProfit: 102,
		StopLoss:   95,
	}

	d := Evaluate(cfg, pos, models.IndicatorSnapshot{RSI: 50}, 100)
	assert.Equal(t, models.DecisionHold, d.Kind)
}

func TestEvaluate_TakeProfitCheckedBeforeStopLoss(t *testing.T) {
	cfg := pairConfig()

	// Вырожденные уровни, накрывающие цену с обеих сторон:
	// порядок проверок фиксированный, TP первым
	pos := &models.Position{
		EntryPrice: 100,
		TakeProfit: 100,
		StopLoss:   110,
	}

	d := Evaluate(cfg, pos, models.IndicatorSnapshot{RSI: 50}, 105)
	assert.Equal(t, models.DecisionExit, d.Kind)
	assert.Equal(t, models.ExitTakeProfit, d.Reason)
}

func TestEvaluate_NoReentryWhileLong(t *testing.T) {
	cfg := pairConfig()
	pos := &models.Position{
		EntryPrice: 100,
		TakeProfit: 102,
		StopLoss:   95,
	}

	// Условия входа выполнены, но пара уже в лонге
	snap := models.IndicatorSnapshot{RSI: 5, BBLower: 105}
	d := Evaluate(cfg, pos, snap, 100)
	assert.Equal(t, models.DecisionHold, d.Kind)
}

func TestEvaluate_Deterministic(t *testing.T) {
	cfg := pairConfig()
	snap := models.IndicatorSnapshot{RSI: 10, BBLower: 100}

	first := Evaluate(cfg, nil, snap, 98)
	second := Evaluate(cfg, nil, snap, 98)
	assert.Equal(t, first, second)
}

func TestDistanceBelowLower(t *testing.T) {
	assert.InDelta(t, 2.0, DistanceBelowLower(98, 100), 1e-9)
	assert.InDelta(t, -2.0, DistanceBelowLower(102, 100), 1e-9)
	// Вырожденная полоса не дает деления на ноль
	assert.Equal(t, 0.0, DistanceBelowLower(98, 0))
}
