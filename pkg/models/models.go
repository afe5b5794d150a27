package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// IndicatorSnapshot представляет срез индикаторов на последней свече.
// Срез неизменяемый: на каждую новую свечу рассчитывается заново.
type IndicatorSnapshot struct {
	RSI        float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	ComputedAt time.Time
}

// PositionState представляет состояние позиции по паре
type PositionState string

const (
	StateFlat PositionState = "FLAT"
	StateLong PositionState = "LONG"
)

// Position представляет открытую позицию.
// Существует только пока состояние пары LONG; не больше одной на пару.
type Position struct {
	ID         string
	Symbol     string
	EntryPrice float64
	Quantity   float64
	Leverage   int
	OpenedAt   time.Time
	TakeProfit float64
	StopLoss   float64
	RSIAtEntry float64
}

// ExitReason указывает причину закрытия позиции
type ExitReason string

const (
	ExitTakeProfit     ExitReason = "TAKE_PROFIT"
	ExitStopLoss       ExitReason = "STOP_LOSS"
	ExitSignalReversal ExitReason = "SIGNAL_REVERSAL"
)

// DecisionKind вид решения по паре на одной свече
type DecisionKind string

const (
	DecisionHold      DecisionKind = "HOLD"
	DecisionEnterLong DecisionKind = "ENTER_LONG"
	DecisionExit      DecisionKind = "EXIT"
)

// Decision представляет решение оценщика сигналов для одной пары.
// Reason заполняется только для DecisionExit.
type Decision struct {
	Kind   DecisionKind
	Reason ExitReason
}

// Hold возвращает решение "ничего не делать"
func Hold() Decision {
	return Decision{Kind: DecisionHold}
}

// EnterLong возвращает решение на вход в лонг
func EnterLong() Decision {
	return Decision{Kind: DecisionEnterLong}
}

// Exit возвращает решение на выход с указанной причиной
func Exit(reason ExitReason) Decision {
	return Decision{Kind: DecisionExit, Reason: reason}
}

// TradeRecord представляет запись о закрытой сделке.
// Запись неизменяемая после создания, журнал только дополняется.
type TradeRecord struct {
	Symbol     string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Leverage   int
	RSIAtEntry float64
	ExitReason ExitReason
	PnLPct     float64
	PnLAbs     float64
}

// Duration возвращает время удержания позиции
func (t TradeRecord) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// Fill представляет результат исполнения ордера
type Fill struct {
	Price float64
	Time  time.Time
}

// IntervalDuration возвращает длительность свечного интервала
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
