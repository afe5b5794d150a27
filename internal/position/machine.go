package position

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/pkg/models"
)

// ExecutionPort — порт исполнения решений. Живой вариант размещает ордера
// на бирже, бэктестовый симулирует заполнение по историческим свечам.
// Вызовы могут блокироваться и падать, поэтому принимают контекст.
type ExecutionPort interface {
	Open(ctx context.Context, symbol string, quantity float64, leverage int) (models.Fill, error)
	Close(ctx context.Context, symbol string, quantity float64) (models.Fill, error)
}

// ExecutionError означает сбой порта исполнения. Автомат состояний при нем
// сохраняет состояние до вызова и отдает ошибку наверх для повтора.
type ExecutionError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("исполнение %s для %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Machine — автомат состояний позиции одной пары: FLAT ↔ LONG.
// На каждую пару ровно один экземпляр; экземпляры независимы и не делят
// состояние, поэтому пары можно оценивать параллельно без блокировок.
// Позиция принадлежит только своему автомату, извне она не изменяется.
type Machine struct {
	symbol string
	cfg    config.PairConfig
	port   ExecutionPort
	pos    *models.Position // nil означает FLAT
}

// NewMachine создает автомат в состоянии FLAT
func NewMachine(symbol string, cfg config.PairConfig, port ExecutionPort) *Machine {
	return &Machine{
		symbol: symbol,
		cfg:    cfg,
		port:   port,
	}
}

// State возвращает текущее состояние пары
func (m *Machine) State() models.PositionState {
	if m.pos == nil {
		return models.StateFlat
	}
	return models.StateLong
}

// Position возвращает копию открытой позиции или nil в состоянии FLAT
func (m *Machine) Position() *models.Position {
	if m.pos == nil {
		return nil
	}
	p := *m.pos
	return &p
}

// Apply применяет решение оценщика к автомату.
//
// ENTER_LONG из FLAT открывает позицию через порт исполнения; при сбое
// открытия автомат остается FLAT и позиция не создается. EXIT из LONG
// закрывает позицию и возвращает запись о сделке; при сбое закрытия
// автомат остается LONG, а ошибка отдается наверх для повтора. HOLD не
// меняет ничего. Частичных и неоднозначных состояний не бывает.
//
// price — цена, по которой принималось решение; rsi — значение RSI среза,
// фиксируется в позиции на входе.
func (m *Machine) Apply(ctx context.Context, d models.Decision, price float64, rsi float64) (*models.TradeRecord, error) {
	switch d.Kind {
	case models.DecisionHold:
		return nil, nil

	case models.DecisionEnterLong:
		if m.pos != nil {
			// Пирамидинг не поддерживается: не больше одной позиции на пару
			return nil, fmt.Errorf("позиция по %s уже открыта", m.symbol)
		}
		return nil, m.open(ctx, price, rsi)

	case models.DecisionExit:
		if m.pos == nil {
			return nil, fmt.Errorf("нет открытой позиции по %s для выхода", m.symbol)
		}
		return m.close(ctx, d.Reason)

	default:
		return nil, fmt.Errorf("неизвестное решение %q", d.Kind)
	}
}

// open открывает лонг: объем в базовом активе считается от торгового
// объема и плеча, TP/SL выставляются в процентах от цены заполнения.
func (m *Machine) open(ctx context.Context, price float64, rsi float64) error {
	if price <= 0 {
		return fmt.Errorf("некорректная цена входа %v для %s", price, m.symbol)
	}

	quantity := m.cfg.TradeVolume * float64(m.cfg.Leverage) / price

	fill, err := m.port.Open(ctx, m.symbol, quantity, m.cfg.Leverage)
	if err != nil {
		// Позиция не создается: состояние остается FLAT
		return &ExecutionError{Op: "open", Symbol: m.symbol, Err: err}
	}

	entry := fill.Price
	m.pos = &models.Position{
		ID:         fmt.Sprintf("%s_%s", m.symbol, fill.Time.UTC().Format("20060102_150405")),
		Symbol:     m.symbol,
		EntryPrice: entry,
		Quantity:   quantity,
		Leverage:   m.cfg.Leverage,
		OpenedAt:   fill.Time,
		TakeProfit: entry * (1 + m.cfg.TakeProfitPct/100),
		StopLoss:   entry * (1 - m.cfg.StopLossPct/100),
		RSIAtEntry: rsi,
	}
	return nil
}

// close закрывает позицию и формирует запись о сделке.
// Цена выхода берется из заполнения, которое вернул порт исполнения.
func (m *Machine) close(ctx context.Context, reason models.ExitReason) (*models.TradeRecord, error) {
	fill, err := m.port.Close(ctx, m.symbol, m.pos.Quantity)
	if err != nil {
		// Позиция остается открытой: повтор — забота вызывающего
		return nil, &ExecutionError{Op: "close", Symbol: m.symbol, Err: err}
	}

	pos := m.pos
	m.pos = nil

	change := fill.Price - pos.EntryPrice
	record := &models.TradeRecord{
		Symbol:     pos.Symbol,
		EntryTime:  pos.OpenedAt,
		ExitTime:   fill.Time,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.Price,
		Quantity:   pos.Quantity,
		Leverage:   pos.Leverage,
		RSIAtEntry: pos.RSIAtEntry,
		ExitReason: reason,
		PnLPct:     change / pos.EntryPrice * 100 * float64(pos.Leverage),
		PnLAbs:     change / pos.EntryPrice * m.cfg.TradeVolume * float64(pos.Leverage),
	}
	return record, nil
}

// HoldingTime возвращает, сколько позиция уже удерживается, для логов
func (m *Machine) HoldingTime(now time.Time) time.Duration {
	if m.pos == nil {
		return 0
	}
	return now.Sub(m.pos.OpenedAt)
}
