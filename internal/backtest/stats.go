package backtest

import (
	"time"

	"github.com/skalibog/gintrader/pkg/models"
)

// Summary представляет сводную статистику прогона
type Summary struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	NetPnL       float64
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
	AvgWin       float64
	AvgLoss      float64

	MaxDrawdown float64
	AvgDuration time.Duration

	TakeProfits int
	StopLosses  int

	// Счетчики подавленных циклов: без сводки они бы потерялись
	SkippedInsufficient int
	DataGaps            int
	OpenAtEnd           int
}

// summarize считает статистику по журналу сделок. Журнал должен быть
// упорядочен по времени выхода: просадка считается по кумулятивному PnL.
func summarize(trades []models.TradeRecord) Summary {
	sum := Summary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return sum
	}

	var totalWin, totalLoss float64
	var totalDuration time.Duration
	var running, peak, maxDD float64

	for _, trade := range trades {
		if trade.PnLAbs > 0 {
			sum.WinningTrades++
			totalWin += trade.PnLAbs
		} else if trade.PnLAbs < 0 {
			sum.LosingTrades++
			totalLoss += trade.PnLAbs
		}

		switch trade.ExitReason {
		case models.ExitTakeProfit:
			sum.TakeProfits++
		case models.ExitStopLoss:
			sum.StopLosses++
		}

		// Просадка: отклонение кумулятивного PnL от пика
		running += trade.PnLAbs
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > maxDD {
			maxDD = dd
		}

		totalDuration += trade.Duration()
	}

	sum.WinRate = float64(sum.WinningTrades) / float64(sum.TotalTrades) * 100
	sum.NetPnL = running
	sum.GrossProfit = totalWin
	sum.GrossLoss = totalLoss
	if totalLoss != 0 {
		sum.ProfitFactor = totalWin / -totalLoss
	}
	if sum.WinningTrades > 0 {
		sum.AvgWin = totalWin / float64(sum.WinningTrades)
	}
	if sum.LosingTrades > 0 {
		sum.AvgLoss = totalLoss / float64(sum.LosingTrades)
	}
	sum.MaxDrawdown = maxDD
	sum.AvgDuration = totalDuration / time.Duration(sum.TotalTrades)

	return sum
}
