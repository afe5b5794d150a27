package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/internal/indicator"
	"github.com/skalibog/gintrader/internal/notify"
	"github.com/skalibog/gintrader/internal/position"
	"github.com/skalibog/gintrader/internal/storage"
	"github.com/skalibog/gintrader/internal/strategy"
	"github.com/skalibog/gintrader/pkg/logger"
	"github.com/skalibog/gintrader/pkg/models"
)

const (
	// Вызов порта исполнения ограничен по времени: зависший или
	// оборванный вызов считается сбоем, а не тихим успехом
	execTimeout = 30 * time.Second

	// Попытки закрытия в пределах одного цикла
	maxCloseAttempts = 3
)

// Задержки между повторами закрытия
var (
	closeBackoffMin = time.Second
	closeBackoffMax = 10 * time.Second
)

// Exchange — биржа глазами раннера: источник свечей и цен плюс порт
// исполнения ордеров
type Exchange interface {
	position.ExecutionPort
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Runner — живой цикл: раз в свечной интервал переоценивает каждую пару
// по свежей истории и прогоняет решение через автомат позиции с биржевым
// портом исполнения. Пары независимы: сбой одной не останавливает
// остальные.
type Runner struct {
	cfg      *config.Config
	client   Exchange
	ind      *indicator.Engine
	store    storage.Storage
	notifier notify.Notifier
	machines map[string]*position.Machine
}

// New создает раннер со свежим автоматом на каждую включенную пару
func New(cfg *config.Config, client Exchange, ind *indicator.Engine, store storage.Storage, notifier notify.Notifier) *Runner {
	machines := make(map[string]*position.Machine)
	for _, symbol := range cfg.EnabledSymbols() {
		machines[symbol] = position.NewMachine(symbol, cfg.Trading.Pairs[symbol], client)
	}

	return &Runner{
		cfg:      cfg,
		client:   client,
		ind:      ind,
		store:    store,
		notifier: notifier,
		machines: machines,
	}
}

// Run крутит цикл переоценки до отмены контекста
func (r *Runner) Run(ctx context.Context) error {
	interval := models.IntervalDuration(r.cfg.Trading.Interval)
	logger.Info("Запуск торгового цикла",
		zap.String("interval", r.cfg.Trading.Interval),
		zap.Int("pairs", len(r.machines)))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Первый цикл запускается сразу, не дожидаясь тика
	r.cycle(ctx)

	for {
		select {
		case <-ticker.C:
			r.cycle(ctx)
		case <-ctx.Done():
			logger.Info("Торговый цикл остановлен")
			return ctx.Err()
		}
	}
}

// cycle переоценивает все пары параллельно. Состояние каждой пары
// принадлежит только ее автомату, поэтому блокировки не нужны.
func (r *Runner) cycle(ctx context.Context) {
	var wg sync.WaitGroup
	for _, symbol := range r.cfg.EnabledSymbols() {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			r.evaluateSymbol(ctx, sym)
		}(symbol)
	}
	wg.Wait()

	// Сводка по открытым позициям в конце цикла
	now := time.Now()
	open := 0
	for _, symbol := range r.cfg.EnabledSymbols() {
		m := r.machines[symbol]
		if m.State() != models.StateLong {
			continue
		}
		open++
		logger.Info("Позиция удерживается",
			zap.String("symbol", symbol),
			zap.Duration("holding", m.HoldingTime(now)))
	}
	logger.Info("Цикл завершен", zap.Int("open_positions", open))
}

// fetchCandles получает историю пары с биржи; при сбое падает назад на
// последние сохраненные свечи, чтобы перебой биржи не ослеплял открытую
// позицию
func (r *Runner) fetchCandles(ctx context.Context, symbol string) ([]models.Candle, error) {
	candles, err := r.client.GetKlines(ctx, symbol, r.cfg.Trading.Interval, r.cfg.Trading.CandleHistory)
	if err == nil {
		// Сохранение свечей — вспомогательное, его сбой не прерывает цикл
		if saveErr := r.store.SaveCandles(ctx, candles); saveErr != nil {
			logger.Warn("Ошибка сохранения свечей", zap.String("symbol", symbol), zap.Error(saveErr))
		}
		return candles, nil
	}

	logger.Warn("Ошибка получения свечей с биржи, используется хранилище",
		zap.String("symbol", symbol), zap.Error(err))

	stored, storeErr := r.store.GetCandles(ctx, symbol, r.cfg.Trading.Interval, r.cfg.Trading.CandleHistory)
	if storeErr != nil || len(stored) == 0 {
		return nil, err
	}
	return stored, nil
}

// evaluateSymbol выполняет один цикл оценки для пары
func (r *Runner) evaluateSymbol(ctx context.Context, symbol string) {
	pairCfg := r.cfg.Trading.Pairs[symbol]
	machine := r.machines[symbol]

	candles, err := r.fetchCandles(ctx, symbol)
	if err != nil {
		logger.Error("Свечи недоступны", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	snap, err := r.ind.Snapshot(candles)
	switch {
	case err == nil:
	case errors.Is(err, indicator.ErrInsufficientHistory):
		// Сигнала пока нет: ждем накопления истории
		logger.Debug("Недостаточно истории", zap.String("symbol", symbol), zap.Error(err))
		return
	case errors.Is(err, indicator.ErrDataGap):
		logger.Error("Разрыв в свечах", zap.String("symbol", symbol), zap.Error(err))
		r.notifier.Errorf("Разрыв в данных %s: %v", symbol, err)
		return
	default:
		logger.Error("Ошибка расчета индикаторов", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	// Решения по входу принимаются на закрытии последней свечи; для
	// открытой позиции TP/SL проверяются по живой цене
	price := candles[len(candles)-1].Close
	if machine.State() == models.StateLong {
		if current, err := r.client.CurrentPrice(ctx, symbol); err == nil {
			price = current
		} else {
			logger.Warn("Живая цена недоступна, используется закрытие свечи",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}

	decision := strategy.Evaluate(pairCfg, machine.Position(), snap, price)
	logger.Debug("Решение по паре",
		zap.String("symbol", symbol),
		zap.String("decision", string(decision.Kind)),
		zap.Float64("price", price),
		zap.Float64("rsi", snap.RSI),
		zap.Float64("bb_lower", snap.BBLower),
		zap.Float64("distance_pct", strategy.DistanceBelowLower(price, snap.BBLower)))

	switch decision.Kind {
	case models.DecisionHold:
		return
	case models.DecisionEnterLong:
		r.enter(ctx, machine, decision, price, snap.RSI)
	case models.DecisionExit:
		r.exit(ctx, machine, decision, price)
	}
}

// enter открывает позицию. При сбое порта автомат остается FLAT,
// ошибка уходит в уведомления, цикл для остальных пар не страдает.
func (r *Runner) enter(ctx context.Context, machine *position.Machine, d models.Decision, price, rsi float64) {
	execCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	if _, err := machine.Apply(execCtx, d, price, rsi); err != nil {
		logger.Error("Сбой открытия позиции", zap.Error(err))
		r.notifier.Errorf("Сбой открытия позиции: %v", err)
		return
	}

	pos := machine.Position()
	logger.Info("Позиция открыта",
		zap.String("symbol", pos.Symbol),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("quantity", pos.Quantity),
		zap.Int("leverage", pos.Leverage))
	r.notifier.PositionOpened(*pos)
}

// exit закрывает позицию с повторами: автомат при сбое остается LONG,
// попытка повторяется с нарастающей задержкой. После последней неудачной
// попытки ждать нечего — ошибка сразу уходит наверх.
func (r *Runner) exit(ctx context.Context, machine *position.Machine, d models.Decision, price float64) {
	retry := &backoff.Backoff{
		Min:    closeBackoffMin,
		Max:    closeBackoffMax,
		Factor: 2,
	}

	var record *models.TradeRecord
	var err error
	for attempt := 1; attempt <= maxCloseAttempts; attempt++ {
		execCtx, cancel := context.WithTimeout(ctx, execTimeout)
		record, err = machine.Apply(execCtx, d, price, 0)
		cancel()
		if err == nil {
			break
		}
		if attempt == maxCloseAttempts || ctx.Err() != nil {
			break
		}
		logger.Warn("Сбой закрытия позиции, повтор",
			zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(retry.Duration()):
		case <-ctx.Done():
		}
	}
	if err != nil {
		// Позиция осталась открытой: оператору нужно знать об этом
		logger.Error("Позиция не закрыта после повторов", zap.Error(err))
		r.notifier.Errorf("Не удалось закрыть позицию: %v", err)
		return
	}

	logger.Info("Позиция закрыта",
		zap.String("symbol", record.Symbol),
		zap.String("reason", string(record.ExitReason)),
		zap.Float64("pnl", record.PnLAbs))

	if err := r.store.SaveTrade(ctx, *record); err != nil {
		logger.Warn("Ошибка сохранения сделки", zap.Error(err))
	}
	r.notifier.PositionClosed(*record)
}
