package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/internal/indicator"
	"github.com/skalibog/gintrader/internal/position"
	"github.com/skalibog/gintrader/internal/strategy"
	"github.com/skalibog/gintrader/pkg/logger"
	"github.com/skalibog/gintrader/pkg/models"
)

// Policy определяет порядок разрешения TP/SL внутри одной свечи, когда
// диапазон high/low накрывает оба уровня. По умолчанию стоп-лосс
// разрешается первым: считается, что цена сначала коснулась худшего уровня.
type Policy string

const (
	PolicyStopFirst   Policy = "stop_first"
	PolicyProfitFirst Policy = "profit_first"
)

// Engine прогоняет оценщик сигналов и автомат позиции по историческим
// свечам с симулированным портом исполнения. Решения идентичны живому
// запуску; единственный источник времени внутри прогона — метки самих
// свечей, поэтому повторный прогон на тех же данных дает байт-в-байт тот
// же журнал сделок.
type Engine struct {
	indicator *indicator.Engine
	policy    Policy
}

// NewEngine создает движок бэктеста
func NewEngine(ind *indicator.Engine, policy Policy) *Engine {
	if policy == "" {
		policy = PolicyStopFirst
	}
	return &Engine{
		indicator: ind,
		policy:    policy,
	}
}

// Result представляет итог прогона
type Result struct {
	Trades    []models.TradeRecord
	Summary   Summary
	PerSymbol map[string]Summary
	Symbols   []string
}

// Run прогоняет бэктест по всем парам. Каждая пара обрабатывается
// независимо на свежем автомате состояний: предыдущие прогоны не
// оставляют следов.
func (e *Engine) Run(series map[string][]models.Candle, pairs map[string]config.PairConfig) (*Result, error) {
	// Стабильный порядок пар ради детерминизма
	symbols := make([]string, 0, len(pairs))
	for symbol, cfg := range pairs {
		if !cfg.Enabled {
			continue
		}
		if _, ok := series[symbol]; !ok {
			logger.Warn("Нет исторических данных для пары", zap.String("symbol", symbol))
			continue
		}
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	result := &Result{
		PerSymbol: make(map[string]Summary, len(symbols)),
		Symbols:   symbols,
	}

	for _, symbol := range symbols {
		trades, sum, err := e.runSymbol(symbol, series[symbol], pairs[symbol])
		if err != nil {
			return nil, fmt.Errorf("бэктест %s: %w", symbol, err)
		}
		result.Trades = append(result.Trades, trades...)
		result.PerSymbol[symbol] = sum
	}

	// Общий журнал упорядочен по времени выхода, при равенстве — по паре
	sort.SliceStable(result.Trades, func(i, j int) bool {
		a, b := result.Trades[i], result.Trades[j]
		if !a.ExitTime.Equal(b.ExitTime) {
			return a.ExitTime.Before(b.ExitTime)
		}
		return a.Symbol < b.Symbol
	})

	result.Summary = summarize(result.Trades)
	for _, sum := range result.PerSymbol {
		result.Summary.SkippedInsufficient += sum.SkippedInsufficient
		result.Summary.DataGaps += sum.DataGaps
		result.Summary.OpenAtEnd += sum.OpenAtEnd
	}

	return result, nil
}

// runSymbol прогоняет одну пару по ее серии свечей
func (e *Engine) runSymbol(symbol string, candles []models.Candle, cfg config.PairConfig) ([]models.TradeRecord, Summary, error) {
	if !sort.SliceIsSorted(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	}) {
		return nil, Summary{}, fmt.Errorf("серия свечей не упорядочена по open_time")
	}

	ctx := context.Background()
	sim := &simulator{}
	machine := position.NewMachine(symbol, cfg, sim)
	lookback := e.indicator.Lookback()

	var trades []models.TradeRecord
	var skipped, gaps int

	for i, c := range candles {
		if machine.State() == models.StateLong {
			// Сначала выходы: TP/SL разрешаются по диапазону свечи,
			// заполнение — по цене сработавшего уровня. Пара в лонге
			// вход не рассматривает.
			pos := machine.Position()
			trigger, reason, hit := resolveIntrabar(pos, c, e.policy)
			if !hit {
				continue
			}
			sim.fill = models.Fill{Price: trigger, Time: c.OpenTime}
			record, err := machine.Apply(ctx, models.Exit(reason), trigger, 0)
			if err != nil {
				return nil, Summary{}, err
			}
			trades = append(trades, *record)
			continue
		}

		if i+1 < lookback {
			skipped++
			continue
		}

		window := candles[i+1-lookback : i+1]
		snap, err := e.indicator.Snapshot(window)
		switch {
		case err == nil:
		case isInsufficient(err):
			skipped++
			continue
		case isDataGap(err):
			// Разрыв не пропускается молча: попадает в лог и в сводку
			gaps++
			logger.Warn("Разрыв в исторических данных",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		default:
			return nil, Summary{}, err
		}

		decision := strategy.Evaluate(cfg, nil, snap, c.Close)
		if decision.Kind != models.DecisionEnterLong {
			continue
		}

		// Вход заполняется по закрытию сигнальной свечи
		sim.fill = models.Fill{Price: c.Close, Time: c.OpenTime}
		if _, err := machine.Apply(ctx, decision, c.Close, snap.RSI); err != nil {
			return nil, Summary{}, err
		}
	}

	sum := summarize(trades)
	sum.SkippedInsufficient = skipped
	sum.DataGaps = gaps
	if machine.State() == models.StateLong {
		// Позиция, не закрытая к концу данных, в журнал не попадает
		sum.OpenAtEnd = 1
	}

	return trades, sum, nil
}

// resolveIntrabar проверяет, накрывает ли диапазон свечи уровни TP/SL
// открытого лонга, и возвращает цену и причину срабатывания
func resolveIntrabar(pos *models.Position, c models.Candle, policy Policy) (float64, models.ExitReason, bool) {
	stopHit := c.Low <= pos.StopLoss
	profitHit := c.High >= pos.TakeProfit

	switch {
	case stopHit && profitHit:
		if policy == PolicyProfitFirst {
			return pos.TakeProfit, models.ExitTakeProfit, true
		}
		return pos.StopLoss, models.ExitStopLoss, true
	case stopHit:
		return pos.StopLoss, models.ExitStopLoss, true
	case profitHit:
		return pos.TakeProfit, models.ExitTakeProfit, true
	default:
		return 0, "", false
	}
}

// simulator — симулированный порт исполнения. Заполнение детерминированное:
// движок выставляет цену и время перед каждым вызовом, сбои исполнения в
// бэктесте не моделируются.
type simulator struct {
	fill models.Fill
}

func (s *simulator) Open(_ context.Context, _ string, _ float64, _ int) (models.Fill, error) {
	return s.fill, nil
}

func (s *simulator) Close(_ context.Context, _ string, _ float64) (models.Fill, error) {
	return s.fill, nil
}

func isInsufficient(err error) bool {
	return errors.Is(err, indicator.ErrInsufficientHistory)
}

func isDataGap(err error) bool {
	return errors.Is(err, indicator.ErrDataGap)
}
