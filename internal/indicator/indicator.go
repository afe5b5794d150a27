package indicator

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/gintrader/pkg/models"
)

var (
	// ErrInsufficientHistory означает, что свечей меньше, чем требует лукбэк.
	// Это не сбой: вызывающий трактует его как "сигнала пока нет".
	ErrInsufficientHistory = errors.New("недостаточно истории для расчета индикаторов")

	// ErrDataGap означает разрыв в серии свечей. Индикаторы считаются по
	// непрерывному окну, поэтому разрыв нельзя молча пропускать.
	ErrDataGap = errors.New("разрыв в серии свечей")
)

// Engine рассчитывает RSI и полосы Боллинджера по окну свечей одной пары.
// Чистое вычисление без состояния: безопасно вызывать из разных горутин
// для независимых пар.
type Engine struct {
	rsiPeriod int
	bbPeriod  int
	bbStdDev  float64
}

// NewEngine создает движок индикаторов с заданными периодами
func NewEngine(rsiPeriod, bbPeriod int, bbStdDev float64) *Engine {
	return &Engine{
		rsiPeriod: rsiPeriod,
		bbPeriod:  bbPeriod,
		bbStdDev:  bbStdDev,
	}
}

// NewDefaultEngine создает движок со стандартными параметрами стратегии:
// RSI(6) и полосы Боллинджера SMA(20) ± 2σ.
func NewDefaultEngine() *Engine {
	return NewEngine(6, 20, 2.0)
}

// Lookback возвращает минимальное число свечей для расчета среза
func (e *Engine) Lookback() int {
	if e.rsiPeriod+1 > e.bbPeriod {
		return e.rsiPeriod + 1
	}
	return e.bbPeriod
}

// Snapshot рассчитывает срез индикаторов для последней свечи окна.
// Свечи должны идти по возрастанию OpenTime без разрывов.
func (e *Engine) Snapshot(candles []models.Candle) (models.IndicatorSnapshot, error) {
	if len(candles) < e.Lookback() {
		return models.IndicatorSnapshot{}, fmt.Errorf("%w: есть %d свечей, нужно %d",
			ErrInsufficientHistory, len(candles), e.Lookback())
	}

	if err := checkContiguous(candles[len(candles)-e.Lookback():]); err != nil {
		return models.IndicatorSnapshot{}, err
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	rsi := calcRSI(closes, e.rsiPeriod)

	upper, middle, lower := talib.BBands(closes, e.bbPeriod, e.bbStdDev, e.bbStdDev, 0)
	last := len(closes) - 1

	return models.IndicatorSnapshot{
		RSI:        rsi,
		BBUpper:    upper[last],
		BBMiddle:   middle[last],
		BBLower:    lower[last],
		ComputedAt: candles[len(candles)-1].OpenTime,
	}, nil
}

// calcRSI считает RSI как средний прирост / среднее падение по последним
// period изменениям цены закрытия: RSI = 100 − 100/(1+RS).
// При нулевом среднем падении RSI равен 100 — это определенный краевой
// случай, а не деление на ноль.
func calcRSI(closes []float64, period int) float64 {
	var avgGain, avgLoss float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// checkContiguous проверяет, что свечи идут строго по возрастанию времени
// с одинаковым шагом
func checkContiguous(candles []models.Candle) error {
	if len(candles) < 2 {
		return nil
	}
	step := candles[1].OpenTime.Sub(candles[0].OpenTime)
	if step <= 0 {
		return fmt.Errorf("%w: свечи не упорядочены по времени (%s после %s)",
			ErrDataGap, candles[1].OpenTime, candles[0].OpenTime)
	}
	for i := 2; i < len(candles); i++ {
		d := candles[i].OpenTime.Sub(candles[i-1].OpenTime)
		if d != step {
			return fmt.Errorf("%w: между %s и %s шаг %s вместо %s",
				ErrDataGap, candles[i-1].OpenTime, candles[i].OpenTime, d, step)
		}
	}
	return nil
}
